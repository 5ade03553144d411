// Package trace provides a slog-backed resolution tracer for fabrica.
//
// Wire a *Tracer into Definition.Tracer to see every attribute resolution of
// a generate call, including nested sub-factory builds. The tracer is
// observational only and never alters resolution.
//
// This package is EXPERIMENTAL and its API may change before v1.
package trace

import (
	"log/slog"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Tracer logs resolution events at debug level.
type Tracer struct {
	log    *slog.Logger
	values bool
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithValues also logs resolved values, rendered with spew.
func WithValues() Option {
	return func(t *Tracer) { t.values = true }
}

// New builds a Tracer over the given logger, defaulting to slog.Default.
func New(log *slog.Logger, opts ...Option) *Tracer {
	if log == nil {
		log = slog.Default()
	}
	t := &Tracer{log: log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracer) ResolveStart(factory, attr string, depth int) {
	t.log.Debug("resolve start",
		"factory", factory,
		"attr", attr,
		"depth", depth,
	)
}

func (t *Tracer) ResolveEnd(factory, attr string, depth int, value any, err error) {
	attrs := []any{
		"factory", factory,
		"attr", attr,
		"depth", depth,
	}
	if err != nil {
		attrs = append(attrs, "err", err)
		t.log.Debug("resolve failed", attrs...)
		return
	}
	if t.values {
		attrs = append(attrs, "value", strings.TrimSpace(spew.Sdump(value)))
	}
	t.log.Debug("resolve end", attrs...)
}
