package server

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/phuslu/log"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. YAS_MCP_SERVER_PORT
const EnvPrefix = "YAS_MCP_"

// Server modes
const (
	ModeStdio = "stdio"
	ModeHTTP  = "http"
	ModeSSE   = "sse"
)

// Endpoint auth types
const (
	AuthNone   = "none"
	AuthBasic  = "basic"
	AuthBearer = "bearer"
	AuthAPIKey = "api_key"
	AuthOAuth2 = "oauth2"
)

// DefaultConfigPaths are searched in order when no --config is given
var DefaultConfigPaths = []string{
	"config.yaml",
	"/etc/yas-mcp/config.yaml",
	"/config/config.yaml",
}

// ServerConfig holds the listener and identity settings
type ServerConfig struct {
	Port              int    `yaml:"port" toml:"port"`
	Host              string `yaml:"host" toml:"host"`
	Timeout           string `yaml:"timeout" toml:"timeout"`
	Mode              string `yaml:"mode" toml:"mode"`
	Name              string `yaml:"name" toml:"name"`
	Version           string `yaml:"version" toml:"version"`
	ValidateArguments bool   `yaml:"validate_arguments" toml:"validate_arguments"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TimeoutDuration parses Timeout ("30s", "1m", or plain seconds)
func (s ServerConfig) TimeoutDuration() (time.Duration, error) {
	d, err := cast.ToDurationE(s.Timeout)
	if err != nil {
		return 0, err
	}
	// cast reads bare integers as nanoseconds
	if d > 0 && d < time.Millisecond {
		d *= time.Second
	}
	return d, nil
}

// LoggingConfig controls the logger built by pkg/logger
type LoggingConfig struct {
	Level          string `yaml:"level" toml:"level"`
	Format         string `yaml:"format" toml:"format"`
	Color          bool   `yaml:"color" toml:"color"`
	OutputPath     string `yaml:"output_path" toml:"output_path"`
	AppendToFile   bool   `yaml:"append_to_file" toml:"append_to_file"`
	DisableConsole bool   `yaml:"disable_console" toml:"disable_console"`
}

// EndpointConfig describes the backend REST API
type EndpointConfig struct {
	BaseURL    string            `yaml:"base_url" toml:"base_url"`
	AuthType   string            `yaml:"auth_type" toml:"auth_type"`
	AuthConfig map[string]string `yaml:"auth_config" toml:"auth_config"`
	Headers    map[string]string `yaml:"headers" toml:"headers"`
}

// OAuthConfig is parsed and validated but no login flow is served
type OAuthConfig struct {
	Enabled      bool              `yaml:"enabled" toml:"enabled"`
	Provider     string            `yaml:"provider" toml:"provider"`
	ClientID     string            `yaml:"client_id" toml:"client_id"`
	ClientSecret string            `yaml:"client_secret" toml:"client_secret"`
	Scopes       []string          `yaml:"scopes" toml:"scopes"`
	AllowOrigins []string          `yaml:"allow_origins" toml:"allow_origins"`
	AuthURL      string            `yaml:"auth_url" toml:"auth_url"`
	TokenURL     string            `yaml:"token_url" toml:"token_url"`
	UserInfoURL  string            `yaml:"user_info_url" toml:"user_info_url"`
	RedirectURI  string            `yaml:"redirect_uri" toml:"redirect_uri"`
	ExtraParams  map[string]string `yaml:"extra_params" toml:"extra_params"`
}

// DatabaseConfig points at the Postgres spec store
type DatabaseConfig struct {
	URL string `yaml:"url" toml:"url"`
	// PollInterval is how often db: and URL sources are checked for changes; 0 disables polling
	PollInterval string `yaml:"poll_interval" toml:"poll_interval"`
}

// PollDuration parses PollInterval. Empty means disabled.
func (d DatabaseConfig) PollDuration() (time.Duration, error) {
	if d.PollInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(d.PollInterval)
}

// AppConfig is the complete runtime configuration
type AppConfig struct {
	Server          ServerConfig   `yaml:"server" toml:"server"`
	Logging         LoggingConfig  `yaml:"logging" toml:"logging"`
	Endpoint        EndpointConfig `yaml:"endpoint" toml:"endpoint"`
	SwaggerFile     string         `yaml:"swagger_file" toml:"swagger_file"`
	AdjustmentsFile string         `yaml:"adjustments_file" toml:"adjustments_file"`
	Transcript      string         `yaml:"transcript" toml:"transcript"`
	OAuth           *OAuthConfig   `yaml:"oauth" toml:"oauth"`
	Database        DatabaseConfig `yaml:"database" toml:"database"`

	// Source is the config file that was read, empty when none was found
	Source string `yaml:"-" toml:"-"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig(version string) *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    3000,
			Host:    "127.0.0.1",
			Timeout: "30s",
			Mode:    ModeStdio,
			Name:    "yas-mcp",
			Version: version,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "compact",
			Color:  true,
		},
		Endpoint: EndpointConfig{
			AuthType:   AuthNone,
			AuthConfig: map[string]string{},
			Headers:    map[string]string{},
		},
		Database: DatabaseConfig{
			PollInterval: "30s",
		},
	}
}

// LoadConfig layers defaults, the first config file found and YAS_MCP_* environment variables.
// An explicit path that does not exist is an error; the default search paths are optional.
func LoadConfig(path string, version string) (*AppConfig, error) {
	cfg := DefaultConfig(version)

	file, err := findConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
		cfg.Source = file
	}

	if err := cfg.applyEnv(os.Environ()); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func findConfigFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", Wrap(err, ErrorTypeConfig, "config file not readable")
		}
		return path, nil
	}
	for _, candidate := range DefaultConfigPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return Wrap(err, ErrorTypeConfig, "failed to read config file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).Decode(c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return Wrap(err, ErrorTypeConfig, fmt.Sprintf("failed to parse config file %s", path))
	}
	return nil
}

// applyEnv reads YAS_MCP_* pairs from environ ("KEY=value" form).
// Map-valued settings use a key suffix: YAS_MCP_ENDPOINT_HEADERS_X_TRACE=1.
func (c *AppConfig) applyEnv(environ []string) error {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if err := c.setEnv(strings.TrimPrefix(key, EnvPrefix), value); err != nil {
			return NewError(ErrorTypeConfig, fmt.Sprintf("invalid value for %s", key), err.Error())
		}
	}
	return nil
}

func (c *AppConfig) setEnv(key, value string) error {
	var err error
	switch key {
	case "SERVER_PORT":
		c.Server.Port, err = cast.ToIntE(value)
	case "SERVER_HOST":
		c.Server.Host = value
	case "SERVER_TIMEOUT":
		c.Server.Timeout = value
	case "SERVER_MODE":
		c.Server.Mode = value
	case "SERVER_NAME":
		c.Server.Name = value
	case "SERVER_VERSION":
		c.Server.Version = value
	case "SERVER_VALIDATE_ARGUMENTS":
		c.Server.ValidateArguments, err = cast.ToBoolE(value)
	case "LOGGING_LEVEL":
		c.Logging.Level = value
	case "LOGGING_FORMAT":
		c.Logging.Format = value
	case "LOGGING_COLOR":
		c.Logging.Color, err = cast.ToBoolE(value)
	case "LOGGING_OUTPUT_PATH":
		c.Logging.OutputPath = value
	case "LOGGING_APPEND_TO_FILE":
		c.Logging.AppendToFile, err = cast.ToBoolE(value)
	case "LOGGING_DISABLE_CONSOLE":
		c.Logging.DisableConsole, err = cast.ToBoolE(value)
	case "ENDPOINT_BASE_URL":
		c.Endpoint.BaseURL = value
	case "ENDPOINT_AUTH_TYPE":
		c.Endpoint.AuthType = value
	case "SWAGGER_FILE":
		c.SwaggerFile = value
	case "ADJUSTMENTS_FILE":
		c.AdjustmentsFile = value
	case "TRANSCRIPT":
		c.Transcript = value
	case "DATABASE_URL":
		c.Database.URL = value
	case "DATABASE_POLL_INTERVAL":
		c.Database.PollInterval = value
	case "OAUTH_ENABLED":
		c.oauth().Enabled, err = cast.ToBoolE(value)
	case "OAUTH_PROVIDER":
		c.oauth().Provider = value
	case "OAUTH_CLIENT_ID":
		c.oauth().ClientID = value
	case "OAUTH_CLIENT_SECRET":
		c.oauth().ClientSecret = value
	case "OAUTH_SCOPES":
		c.oauth().Scopes = []string{value}
	case "OAUTH_REDIRECT_URI":
		c.oauth().RedirectURI = value
	default:
		switch {
		case strings.HasPrefix(key, "ENDPOINT_AUTH_CONFIG_"):
			if c.Endpoint.AuthConfig == nil {
				c.Endpoint.AuthConfig = map[string]string{}
			}
			c.Endpoint.AuthConfig[strings.ToLower(strings.TrimPrefix(key, "ENDPOINT_AUTH_CONFIG_"))] = value
		case strings.HasPrefix(key, "ENDPOINT_HEADERS_"):
			if c.Endpoint.Headers == nil {
				c.Endpoint.Headers = map[string]string{}
			}
			name := strings.ReplaceAll(strings.TrimPrefix(key, "ENDPOINT_HEADERS_"), "_", "-")
			c.Endpoint.Headers[name] = value
		}
	}
	return err
}

func (c *AppConfig) oauth() *OAuthConfig {
	if c.OAuth == nil {
		c.OAuth = &OAuthConfig{}
	}
	return c.OAuth
}

func (c *AppConfig) normalize() {
	c.Server.Mode = strings.ToLower(strings.TrimSpace(c.Server.Mode))
	c.Endpoint.AuthType = strings.ToLower(strings.TrimSpace(c.Endpoint.AuthType))
	if c.Endpoint.AuthType == "" {
		c.Endpoint.AuthType = AuthNone
	}
	if c.Database.URL == "" {
		c.Database.URL = os.Getenv("DATABASE_URL")
	}
	if c.OAuth != nil && len(c.OAuth.Scopes) == 1 && strings.Contains(c.OAuth.Scopes[0], " ") {
		c.OAuth.Scopes = strings.Fields(c.OAuth.Scopes[0])
	}
}

// Validate validates the configuration
func (c *AppConfig) Validate() error {
	var problems []error

	if c.SwaggerFile == "" {
		problems = append(problems, errors.New("swagger file is required"))
	}
	switch c.Server.Mode {
	case ModeStdio, ModeHTTP, ModeSSE:
	default:
		problems = append(problems, fmt.Errorf("unknown server mode %q", c.Server.Mode))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("port %d out of range", c.Server.Port))
	}
	if d, err := c.Server.TimeoutDuration(); err != nil || d <= 0 {
		problems = append(problems, fmt.Errorf("invalid timeout %q", c.Server.Timeout))
	}
	switch c.Endpoint.AuthType {
	case AuthNone, AuthBasic, AuthBearer, AuthAPIKey, AuthOAuth2:
	default:
		problems = append(problems, fmt.Errorf("unknown auth type %q", c.Endpoint.AuthType))
	}
	if d, err := c.Database.PollDuration(); err != nil || d < 0 {
		problems = append(problems, fmt.Errorf("invalid poll interval %q", c.Database.PollInterval))
	}
	if c.OAuth != nil && c.OAuth.Enabled && c.OAuth.ClientID == "" {
		problems = append(problems, errors.New("oauth is enabled but client_id is empty"))
	}

	if len(problems) > 0 {
		return Wrap(errors.Join(problems...), ErrorTypeConfig, "invalid configuration")
	}
	return nil
}

// LogConfiguration logs the effective configuration with secrets masked
func (c *AppConfig) LogConfiguration(logger *log.Logger) {
	logger.Info().
		Str("source", c.Source).
		Str("mode", c.Server.Mode).
		Str("addr", c.Server.Addr()).
		Str("timeout", c.Server.Timeout).
		Str("swagger_file", c.SwaggerFile).
		Str("adjustments_file", c.AdjustmentsFile).
		Msg("configuration loaded")

	entry := logger.Info().
		Str("base_url", c.Endpoint.BaseURL).
		Str("auth_type", c.Endpoint.AuthType).
		Int("headers", len(c.Endpoint.Headers))
	for k, v := range c.Endpoint.AuthConfig {
		entry = entry.Str("auth_"+k, MaskSensitive(v))
	}
	entry.Msg("endpoint")

	if c.Database.URL != "" {
		logger.Info().Str("database_url", MaskSensitive(c.Database.URL)).Msg("spec store configured")
	}
	if c.OAuth != nil && c.OAuth.Enabled {
		logger.Info().
			Str("provider", c.OAuth.Provider).
			Str("client_id", MaskSensitive(c.OAuth.ClientID)).
			Strs("scopes", c.OAuth.Scopes).
			Msg("oauth configured")
	}
}

// MaskSensitive masks the middle of secrets for logging
func MaskSensitive(s string) string {
	if len(s) > 20 {
		return s[:8] + "***" + s[len(s)-8:]
	}
	return "***"
}
