package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/database"
	"github.com/ubermorgenland/yas-mcp/pkg/gemini"
	"github.com/ubermorgenland/yas-mcp/pkg/loader"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/processor"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/registry"
	mcpserver "github.com/ubermorgenland/yas-mcp/pkg/mcp/server"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
	"github.com/ubermorgenland/yas-mcp/pkg/reload"
	"github.com/ubermorgenland/yas-mcp/pkg/repository"
	"github.com/ubermorgenland/yas-mcp/pkg/requester"
	"github.com/ubermorgenland/yas-mcp/pkg/server"
	"github.com/ubermorgenland/yas-mcp/pkg/transport"
)

// shutdownTimeout leaves headroom under a 30s termination grace period
const shutdownTimeout = 25 * time.Second

// app is everything built from one configuration
type app struct {
	cfg        *server.AppConfig
	logger     *log.Logger
	db         *sql.DB
	loader     *loader.SpecLoader
	adjuster   *adjuster.Adjuster
	compiler   *openapi2mcp.OpenAPICompiler
	registry   *registry.Registry
	processor  *processor.Processor
	reloader   *reload.Reloader
	transcript io.WriteCloser
}

// newApp wires the pipeline. It does not read the spec.
func newApp(ctx context.Context, cfg *server.AppConfig, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var loaderOpts []loader.Option
	if loader.IsDBSource(cfg.SwaggerFile) {
		if cfg.Database.URL == "" {
			return nil, server.NewError(server.ErrorTypeConfig,
				"database source requires a database url", cfg.SwaggerFile)
		}
		db, err := database.OpenAndMigrate(ctx, cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		loaderOpts = append(loaderOpts, loader.WithStore(repository.NewOpenAPISpecRepository(db)))
	}
	a.loader = loader.NewSpecLoader(logger, loaderOpts...)
	a.adjuster = adjuster.New(logger)
	a.compiler = openapi2mcp.NewCompiler(a.adjuster, logger, openapi2mcp.WithSpecReader(a.loader.Load))
	return a, nil
}

// compile reads and compiles the configured spec without serving it
func (a *app) compile(ctx context.Context) ([]openapi2mcp.CompiledTool, error) {
	return a.compiler.Init(ctx, a.cfg.SwaggerFile, a.cfg.AdjustmentsFile)
}

// prepare builds executors and the processor, then loads the first tool set
func (a *app) prepare(ctx context.Context) error {
	timeout, err := a.cfg.Server.TimeoutDuration()
	if err != nil {
		return server.Wrap(err, server.ErrorTypeConfig, "invalid timeout")
	}
	req, err := requester.NewRequester(a.cfg.Endpoint, timeout, a.logger)
	if err != nil {
		return err
	}

	a.registry = registry.New(a.logger)
	a.reloader = reload.New(reload.Config{
		Source:          a.cfg.SwaggerFile,
		AdjustmentsFile: a.cfg.AdjustmentsFile,
		Read:            a.loader.Load,
		Adjuster:        a.adjuster,
		Compiler:        a.compiler,
		Registry:        a.registry,
		Builder:         req,
	}, a.logger)

	res, err := a.reloader.Reload(ctx)
	if err != nil {
		return err
	}
	if res.Tools == 0 {
		a.logger.Warn().Str("source", a.cfg.SwaggerFile).Msg("no tools were generated from the spec")
	}

	a.processor = processor.New(a.registry, processor.Options{
		Name:              a.cfg.Server.Name,
		Version:           a.cfg.Server.Version,
		ValidateArguments: a.cfg.Server.ValidateArguments,
	}, a.logger)

	if a.cfg.Transcript != "" {
		f, err := os.OpenFile(a.cfg.Transcript, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return server.Wrap(err, server.ErrorTypeConfig, "failed to open transcript file")
		}
		a.transcript = f
	}
	return nil
}

// wrapTransport records traffic when a transcript is configured
func (a *app) wrapTransport() func(transport.Transport) transport.Transport {
	if a.transcript == nil {
		return nil
	}
	rec := gemini.NewRecorder(a.transcript, a.logger)
	return rec.Wrap
}

// pollsSource reports whether the spec can change under a running server
func (a *app) pollsSource() bool {
	return loader.IsDBSource(a.cfg.SwaggerFile) || loader.IsURLSource(a.cfg.SwaggerFile)
}

// serve runs the configured transport until ctx ends or stdin closes
func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if a.pollsSource() {
		interval, err := a.cfg.Database.PollDuration()
		if err != nil {
			return server.Wrap(err, server.ErrorTypeConfig, "invalid poll interval")
		}
		g.Go(func() error { return a.reloader.Poll(gctx, interval) })
	}

	switch a.cfg.Server.Mode {
	case server.ModeStdio:
		var t transport.Transport = transport.NewStdioTransport()
		if wrap := a.wrapTransport(); wrap != nil {
			t = wrap(t)
		}
		g.Go(func() error {
			defer cancel()
			a.logger.Info().Int("tools", a.registry.Count()).Msg("serving MCP over stdio")
			return transport.NewRunner(t, a.processor, a.logger).Run(gctx)
		})

	case server.ModeHTTP, server.ModeSSE:
		srv := a.httpServer(ctx)
		addr := a.cfg.Server.Addr()
		g.Go(func() error {
			a.logger.Info().
				Str("addr", addr).
				Str("mode", a.cfg.Server.Mode).
				Int("tools", a.registry.Count()).
				Msg("serving MCP over HTTP")
			return srv.Start(addr)
		})
		g.Go(func() error {
			<-gctx.Done()
			a.logger.Info().Dur("timeout", shutdownTimeout).Msg("shutting down")
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})

	default:
		return server.NewError(server.ErrorTypeConfig, "unknown server mode", a.cfg.Server.Mode)
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) httpServer(ctx context.Context) *mcpserver.HTTPServer {
	opts := []mcpserver.Option{
		mcpserver.WithServiceName(a.cfg.Server.Name),
		mcpserver.WithToolCount(a.registry.Count),
		mcpserver.WithReloadFunc(a.reloader.ReloadFunc(ctx)),
	}
	if timeout, err := a.cfg.Server.TimeoutDuration(); err == nil {
		opts = append(opts, mcpserver.WithReadTimeout(timeout))
	}
	if a.cfg.OAuth != nil && len(a.cfg.OAuth.AllowOrigins) > 0 {
		opts = append(opts, mcpserver.WithAllowOrigins(a.cfg.OAuth.AllowOrigins))
	}
	if wrap := a.wrapTransport(); wrap != nil {
		opts = append(opts, mcpserver.WithTransportWrapper(wrap))
	}
	return mcpserver.NewHTTPServer(a.processor, a.logger, opts...)
}

func (a *app) Close() error {
	var errs []error
	if a.transcript != nil {
		errs = append(errs, a.transcript.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func toolMetadata(compiled []openapi2mcp.CompiledTool) []mcp.Tool {
	tools := make([]mcp.Tool, len(compiled))
	for i, c := range compiled {
		tools[i] = c.Tool
	}
	return tools
}
