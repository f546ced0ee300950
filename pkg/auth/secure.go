package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// DefaultAPIKeyHeader is used when an api_key endpoint names no header or query param
const DefaultAPIKeyHeader = "X-API-Key"

// SecureAuthProvider supplies credentials per request without global state
type SecureAuthProvider interface {
	// GetAuthHeaders returns authentication headers for the given context
	GetAuthHeaders(ctx context.Context) map[string]string

	// GetAuthQueryParams returns authentication query parameters for the given context
	GetAuthQueryParams(ctx context.Context) map[string]string
}

// endpointAuthProvider applies the static endpoint credentials, letting
// passthrough credentials from the context take precedence
type endpointAuthProvider struct {
	headers map[string]string
	query   map[string]string
}

// NewSecureAuthProvider builds a provider from the endpoint auth settings.
//
//	basic:   auth_config.username, auth_config.password
//	bearer:  auth_config.token
//	api_key: auth_config.key plus auth_config.header (default X-API-Key) or auth_config.query
//	oauth2:  auth_config.access_token when present, sent as a bearer token
func NewSecureAuthProvider(cfg server.EndpointConfig) (SecureAuthProvider, error) {
	p := &endpointAuthProvider{
		headers: map[string]string{},
		query:   map[string]string{},
	}
	ac := cfg.AuthConfig

	switch cfg.AuthType {
	case "", server.AuthNone:
	case server.AuthBasic:
		if ac["username"] == "" {
			return nil, missing(cfg.AuthType, "username")
		}
		creds := base64.StdEncoding.EncodeToString([]byte(ac["username"] + ":" + ac["password"]))
		p.headers["Authorization"] = "Basic " + creds
	case server.AuthBearer:
		if ac["token"] == "" {
			return nil, missing(cfg.AuthType, "token")
		}
		p.headers["Authorization"] = "Bearer " + ac["token"]
	case server.AuthAPIKey:
		if ac["key"] == "" {
			return nil, missing(cfg.AuthType, "key")
		}
		switch {
		case ac["query"] != "":
			p.query[ac["query"]] = ac["key"]
		case ac["header"] != "":
			p.headers[ac["header"]] = ac["key"]
		default:
			p.headers[DefaultAPIKeyHeader] = ac["key"]
		}
	case server.AuthOAuth2:
		if tok := ac["access_token"]; tok != "" {
			p.headers["Authorization"] = "Bearer " + tok
		}
	default:
		return nil, server.NewError(server.ErrorTypeConfig, fmt.Sprintf("unsupported auth type %q", cfg.AuthType), "")
	}
	return p, nil
}

func missing(authType, key string) error {
	return server.NewError(server.ErrorTypeConfig,
		fmt.Sprintf("auth type %s requires auth_config.%s", authType, key), "")
}

// GetAuthHeaders returns the static headers overlaid with passthrough credentials
func (p *endpointAuthProvider) GetAuthHeaders(ctx context.Context) map[string]string {
	headers := make(map[string]string, len(p.headers)+2)
	for k, v := range p.headers {
		headers[k] = v
	}

	if authCtx, ok := FromContext(ctx); ok {
		if authCtx.Authorization != "" {
			headers["Authorization"] = authCtx.Authorization
		}
		if authCtx.APIKey != "" {
			headers[DefaultAPIKeyHeader] = authCtx.APIKey
		}
	}

	if len(headers) == 0 {
		return nil
	}
	return headers
}

// GetAuthQueryParams returns the static query credentials
func (p *endpointAuthProvider) GetAuthQueryParams(ctx context.Context) map[string]string {
	if len(p.query) == 0 {
		return nil
	}
	params := make(map[string]string, len(p.query))
	for k, v := range p.query {
		params[k] = v
	}
	// a passthrough API key replaces a query-placed static key
	if authCtx, ok := FromContext(ctx); ok && authCtx.APIKey != "" {
		for k := range params {
			params[k] = authCtx.APIKey
		}
	}
	return params
}

// SecureRequestModifier adds provider credentials to a request in place
type SecureRequestModifier struct {
	provider SecureAuthProvider
}

// NewSecureRequestModifier creates a new secure request modifier
func NewSecureRequestModifier(provider SecureAuthProvider) *SecureRequestModifier {
	return &SecureRequestModifier{provider: provider}
}

// ModifyRequest adds authentication to an HTTP request using its context
func (m *SecureRequestModifier) ModifyRequest(req *http.Request) {
	ctx := req.Context()

	for key, value := range m.provider.GetAuthHeaders(ctx) {
		req.Header.Set(key, value)
	}

	if params := m.provider.GetAuthQueryParams(ctx); params != nil {
		q := req.URL.Query()
		for key, value := range params {
			q.Set(key, value)
		}
		req.URL.RawQuery = q.Encode()
	}
}
