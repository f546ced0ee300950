// Command yas-mcp serves the operations of an OpenAPI document as MCP tools
// over stdio or HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ubermorgenland/yas-mcp/pkg/gemini"
	"github.com/ubermorgenland/yas-mcp/pkg/logger"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

// Set with -ldflags "-X main.version=... -X main.commit=... -X main.date=..."
var (
	version = "dev"
	commit  = ""
	date    = ""
)

// flags mirrors the command line. Only flags the user set override the
// config file and environment.
type flags struct {
	configFile        string
	mode              string
	swaggerFile       string
	adjustmentsFile   string
	host              string
	port              int
	endpoint          string
	validateArguments bool
	logLevel          string
	transcript        string
	pollInterval      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	build := server.BuildInfo{Version: version, Commit: commit, Date: date}
	if err := newRootCmd(build).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(build server.BuildInfo) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "yas-mcp",
		Short: "Serve an OpenAPI document as MCP tools",
		Long: `yas-mcp compiles every operation of an OpenAPI 3 document into an MCP
tool and forwards tool calls to the REST API it describes.

The spec may be a file, an http(s) URL or db:<name> for a spec stored with
spec-manager.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.Flags(), &f, build)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "config file (yaml or toml)")
	pf.StringVar(&f.swaggerFile, "swagger-file", "", "OpenAPI document: path, URL or db:<name>")
	pf.StringVar(&f.adjustmentsFile, "adjustments-file", "", "YAML file filtering routes and overriding descriptions")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	fl := root.Flags()
	fl.StringVar(&f.mode, "mode", "", "transport: stdio, http or sse")
	fl.StringVar(&f.host, "host", "", "listen host for http and sse modes")
	fl.IntVarP(&f.port, "port", "p", 0, "listen port for http and sse modes")
	fl.StringVarP(&f.endpoint, "endpoint", "e", "", "base URL of the REST API")
	fl.BoolVar(&f.validateArguments, "validate-arguments", false, "check tool arguments against the input schema")
	fl.StringVar(&f.transcript, "transcript", "", "append a JSONL transcript of all MCP traffic to this file")
	fl.StringVar(&f.pollInterval, "poll-interval", "", "how often db: and URL specs are checked for changes, 0 to disable")

	root.AddCommand(
		versionCmd(build),
		validateCmd(&f, build),
		toolsCmd(&f, build),
	)
	return root
}

// loadConfig layers the flags the user set over file and environment
func loadConfig(fs *pflag.FlagSet, f *flags, build server.BuildInfo) (*server.AppConfig, error) {
	cfg, err := server.LoadConfig(f.configFile, build.Version)
	if err != nil {
		return nil, err
	}
	applyFlags(fs, f, cfg)
	return cfg, cfg.Validate()
}

func applyFlags(fs *pflag.FlagSet, f *flags, cfg *server.AppConfig) {
	set := func(name string) bool {
		fl := fs.Lookup(name)
		return fl != nil && fl.Changed
	}
	if set("mode") {
		cfg.Server.Mode = f.mode
	}
	if set("swagger-file") {
		cfg.SwaggerFile = f.swaggerFile
	}
	if set("adjustments-file") {
		cfg.AdjustmentsFile = f.adjustmentsFile
	}
	if set("host") {
		cfg.Server.Host = f.host
	}
	if set("port") {
		cfg.Server.Port = f.port
	}
	if set("endpoint") {
		cfg.Endpoint.BaseURL = f.endpoint
	}
	if set("validate-arguments") {
		cfg.Server.ValidateArguments = f.validateArguments
	}
	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("transcript") {
		cfg.Transcript = f.transcript
	}
	if set("poll-interval") {
		cfg.Database.PollInterval = f.pollInterval
	}
}

// setup loads the config and builds the logger and the app around it
func setup(ctx context.Context, fs *pflag.FlagSet, f *flags, build server.BuildInfo) (*app, error) {
	cfg, err := loadConfig(fs, f, build)
	if err != nil {
		return nil, err
	}
	lg, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	cfg.LogConfiguration(lg)

	a, err := newApp(ctx, cfg, lg)
	if err != nil {
		logFailure(lg, err, "startup failed")
		return nil, err
	}
	return a, nil
}

func runServe(ctx context.Context, fs *pflag.FlagSet, f *flags, build server.BuildInfo) error {
	a, err := setup(ctx, fs, f, build)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info().Str("build", build.Banner()).Msg("starting")
	if err := a.prepare(ctx); err != nil {
		logFailure(a.logger, err, "startup failed")
		return err
	}
	if err := a.serve(ctx); err != nil {
		logFailure(a.logger, err, "server stopped")
		return err
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

func logFailure(lg *log.Logger, err error, msg string) {
	lg.Error().Err(err).Str("type", string(server.GetType(err))).Msg(msg)
}

func versionCmd(build server.BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.Banner())
		},
	}
}

func validateCmd(f *flags, build server.BuildInfo) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compile the spec and report tools that Gemini-based clients reject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, cmd.Flags(), f, build)
			if err != nil {
				return err
			}
			defer a.Close()

			compiled, err := a.compile(ctx)
			if err != nil {
				logFailure(a.logger, err, "compile failed")
				return err
			}
			report := gemini.ValidateAll(toolMetadata(compiled))
			gemini.PrintReport(cmd.OutOrStdout(), report, verbose)
			if report.InvalidTools > 0 {
				return fmt.Errorf("%d of %d tools are invalid", report.InvalidTools, report.TotalTools)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list valid tools too")
	return cmd
}

func toolsCmd(f *flags, build server.BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Compile the spec and list the generated tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, cmd.Flags(), f, build)
			if err != nil {
				return err
			}
			defer a.Close()

			compiled, err := a.compile(ctx)
			if err != nil {
				logFailure(a.logger, err, "compile failed")
				return err
			}
			openapi2mcp.PrintToolSummary(cmd.OutOrStdout(), compiled)
			return nil
		},
	}
}
