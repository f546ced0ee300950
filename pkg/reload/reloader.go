// Package reload recompiles the served spec and swaps the tool registry when
// the document changed, on demand or on a polling interval.
package reload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/singleflight"

	"github.com/ubermorgenland/yas-mcp/pkg/adjuster"
	"github.com/ubermorgenland/yas-mcp/pkg/mcp/registry"
	"github.com/ubermorgenland/yas-mcp/pkg/openapi2mcp"
)

// Config wires a Reloader
type Config struct {
	Source          string
	AdjustmentsFile string
	Read            openapi2mcp.SpecReader
	Adjuster        *adjuster.Adjuster
	Compiler        openapi2mcp.Compiler
	Registry        *registry.Registry
	Builder         registry.ExecutorBuilder
}

// adjustedCompiler compiles through a given set of adjustments
type adjustedCompiler interface {
	WithAdjuster(adj *adjuster.Adjuster) openapi2mcp.Compiler
}

// Result describes one reload attempt
type Result struct {
	Tools   int
	Changed bool
	Hash    string
}

// Reloader keeps the registry in step with its spec source
type Reloader struct {
	cfg    Config
	logger *log.Logger
	group  singleflight.Group

	mu       sync.Mutex
	lastHash string
}

// New creates a Reloader. Seed it with MarkLoaded after the initial compile
// so the first poll does not rebuild an unchanged registry.
func New(cfg Config, logger *log.Logger) *Reloader {
	return &Reloader{cfg: cfg, logger: logger}
}

// Hash fingerprints a spec document
func Hash(spec []byte) string {
	sum := sha256.Sum256(spec)
	return hex.EncodeToString(sum[:])
}

// fingerprint covers the document and the adjustments applied to it
func fingerprint(spec []byte, adj *adjuster.Adjuster) string {
	if adj == nil {
		return Hash(spec)
	}
	h := sha256.New()
	h.Write(spec)
	fmt.Fprintf(h, "\x00%v", adj.Adjustments())
	return hex.EncodeToString(h.Sum(nil))
}

// MarkLoaded records the fingerprint of the document already being served
// with the current adjustments
func (r *Reloader) MarkLoaded(spec []byte) {
	r.mu.Lock()
	r.lastHash = fingerprint(spec, r.cfg.Adjuster)
	r.mu.Unlock()
}

// Reload reads the source and, when its content changed, recompiles it and
// replaces the registry. Concurrent calls share one attempt. On error the
// registry keeps serving the previous tools.
func (r *Reloader) Reload(ctx context.Context) (Result, error) {
	v, err, _ := r.group.Do("reload", func() (any, error) {
		return r.reload(ctx)
	})
	if err != nil {
		return Result{Tools: r.cfg.Registry.Count()}, err
	}
	return v.(Result), nil
}

func (r *Reloader) reload(ctx context.Context) (Result, error) {
	data, err := r.cfg.Read(ctx, r.cfg.Source)
	if err != nil {
		return Result{}, err
	}

	// adjustments are read into a fresh adjuster and only become visible
	// once the registry holds the tools compiled with them
	compiler := r.cfg.Compiler
	var fresh *adjuster.Adjuster
	if r.cfg.Adjuster != nil {
		fresh = adjuster.New(r.logger)
		if err := fresh.Load(r.cfg.AdjustmentsFile); err != nil {
			return Result{}, err
		}
		if ac, ok := compiler.(adjustedCompiler); ok {
			compiler = ac.WithAdjuster(fresh)
		}
	}
	hash := fingerprint(data, fresh)

	r.mu.Lock()
	unchanged := hash == r.lastHash
	r.mu.Unlock()
	if unchanged {
		r.logger.Debug().Str("source", r.cfg.Source).Msg("spec unchanged, skipping reload")
		return Result{Tools: r.cfg.Registry.Count(), Hash: hash}, nil
	}

	compiled, err := compiler.Compile(ctx, data)
	if err != nil {
		return Result{}, err
	}
	if err := r.cfg.Registry.Reload(compiled, r.cfg.Builder); err != nil {
		return Result{}, err
	}
	if fresh != nil {
		r.cfg.Adjuster.Set(fresh.Adjustments())
	}

	r.mu.Lock()
	r.lastHash = hash
	r.mu.Unlock()

	r.logger.Info().
		Str("source", r.cfg.Source).
		Int("tools", len(compiled)).
		Str("hash", hash[:12]).
		Msg("spec reloaded")
	return Result{Tools: r.cfg.Registry.Count(), Changed: true, Hash: hash}, nil
}

// ReloadFunc adapts Reload to the /reload route
func (r *Reloader) ReloadFunc(ctx context.Context) func() (int, error) {
	return func() (int, error) {
		res, err := r.Reload(ctx)
		return res.Tools, err
	}
}

// Poll reloads every interval until ctx ends. Failures are logged and the
// next tick tries again.
func (r *Reloader) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	r.logger.Info().Str("source", r.cfg.Source).Dur("interval", interval).Msg("polling spec for changes")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Reload(ctx); err != nil {
				r.logger.Error().Err(err).Str("source", r.cfg.Source).Msg("spec poll failed")
			}
		}
	}
}
