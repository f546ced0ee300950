// Package logger builds the phuslu logger used throughout yas-mcp.
//
// Console output always goes to stderr: in stdio mode stdout carries the
// JSON-RPC stream and must never see a log line.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"

	"github.com/ubermorgenland/yas-mcp/pkg/server"
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

// New creates a logger from the logging section of the config
func New(cfg server.LoggingConfig) (*log.Logger, error) {
	return newWithConsole(cfg, os.Stderr)
}

func newWithConsole(cfg server.LoggingConfig, console io.Writer) (*log.Logger, error) {
	var writers []log.Writer

	if !cfg.DisableConsole {
		writers = append(writers, consoleWriter(cfg, console))
	}

	if cfg.OutputPath != "" {
		if !cfg.AppendToFile {
			if err := os.Truncate(cfg.OutputPath, 0); err != nil && !os.IsNotExist(err) {
				return nil, server.Wrap(err, server.ErrorTypeConfig, "failed to truncate log file")
			}
		}
		writers = append(writers, &log.FileWriter{
			Filename:     cfg.OutputPath,
			FileMode:     0o644,
			MaxSize:      50 * 1024 * 1024,
			MaxBackups:   5,
			EnsureFolder: true,
			LocalTime:    true,
		})
	}

	var w log.Writer
	switch len(writers) {
	case 0:
		w = &log.IOWriter{Writer: io.Discard}
	case 1:
		w = writers[0]
	default:
		multi := log.MultiEntryWriter(writers)
		w = &multi
	}

	return &log.Logger{
		Level:      parseLevel(cfg.Level),
		Caller:     0,
		TimeFormat: timeFormat,
		Writer:     w,
	}, nil
}

func consoleWriter(cfg server.LoggingConfig, out io.Writer) log.Writer {
	switch strings.ToLower(cfg.Format) {
	case "json":
		return &log.IOWriter{Writer: out}
	default:
		return &log.ConsoleWriter{
			ColorOutput:    cfg.Color,
			QuoteString:    true,
			EndWithMessage: true,
			Writer:         out,
		}
	}
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "":
		return log.InfoLevel
	case "warning":
		return log.WarnLevel
	default:
		return log.ParseLevel(level)
	}
}

// Nop returns a logger that discards everything
func Nop() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}
