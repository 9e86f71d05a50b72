// Package logger builds the service's *slog.Logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// Option configures a logger created with New.
type Option func(*options)

type options struct {
	level  slog.Level
	pretty bool
	writer io.Writer
}

// WithDebug lowers the level to Debug when true.
func WithDebug(debug bool) Option {
	return func(o *options) {
		if debug {
			o.level = slog.LevelDebug
		} else {
			o.level = slog.LevelInfo
		}
	}
}

// WithPretty switches from JSON to colourised terminal output.
func WithPretty(pretty bool) Option {
	return func(o *options) {
		o.pretty = pretty
	}
}

// WithWriter overrides the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// New returns a JSON logger unless WithPretty is set.
func New(opts ...Option) *slog.Logger {
	o := options{level: slog.LevelInfo, writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	if o.pretty {
		h := charmlog.NewWithOptions(o.writer, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(o.level),
		})
		return slog.New(h)
	}

	return slog.New(slog.NewJSONHandler(o.writer, &slog.HandlerOptions{Level: o.level}))
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
