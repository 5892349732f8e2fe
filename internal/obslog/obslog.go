// Package obslog wraps zerolog behind a WithFunc(name) call-site convention:
// every logger is scoped to the function or component that owns it, and
// every call carries the request's context for request-id correlation (see
// SPEC_FULL.md §10.1).
package obslog

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var base = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Config controls log level and optional file rotation.
type Config struct {
	Level      string // trace|debug|info|warn|error
	File       string // empty = stderr only
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

// Setup installs the process-wide logger per cfg. Safe to call once at
// startup; subsequent WithFunc calls derive from the installed base.
func Setup(cfg Config) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
		})
	}
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return nil
}

// Func is a logger scoped to one exported operation's name, mirroring the
// teacher's log.WithFunc(name) call sites.
type Func struct {
	name string
}

// WithFunc scopes a logger to name (e.g. "session.StartSession").
func WithFunc(name string) Func { return Func{name: name} }

func (f Func) entry(ctx context.Context, lvl zerolog.Level) *zerolog.Event {
	ev := base.WithLevel(lvl).Str("func", f.name)
	if ctx != nil {
		if rid, ok := ctx.Value(ctxKeyRequestID{}).(string); ok && rid != "" {
			ev = ev.Str("request_id", rid)
		}
	}
	return ev
}

func (f Func) Infof(ctx context.Context, format string, args ...any) {
	f.entry(ctx, zerolog.InfoLevel).Msgf(format, args...)
}

func (f Func) Warnf(ctx context.Context, format string, args ...any) {
	f.entry(ctx, zerolog.WarnLevel).Msgf(format, args...)
}

func (f Func) Errorf(ctx context.Context, format string, args ...any) {
	f.entry(ctx, zerolog.ErrorLevel).Msgf(format, args...)
}

type ctxKeyRequestID struct{}

// WithRequestID annotates ctx so subsequent log calls carry a request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}
