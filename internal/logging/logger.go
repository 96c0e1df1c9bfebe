package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type options struct {
	w    io.Writer
	json bool
}

// Option configures the logger.
type Option func(*options)

// WithJSON switches the handler to JSON output (for log shippers).
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// WithWriter redirects output (tests).
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.w = w }
}

// New creates a configured application logger.
// It writes to Stderr (to keep Stdout free for reports and MCP JSON-RPC).
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level, opts ...Option) *slog.Logger {
	o := options{w: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	ho := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Standardize 'error' key to 'err'
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if o.json {
		return slog.New(slog.NewJSONHandler(o.w, ho))
	}
	return slog.New(slog.NewTextHandler(o.w, ho))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
