// Package logging builds the structured logger the CLI passes to the
// recovery engine; it holds no package-level logger of its own.
package logging

import (
	"log/slog"
	"os"
	"time"
)

// Format selects the slog handler used for output.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps a --log-format flag value to a Format, defaulting to
// text for anything unrecognized.
func ParseFormat(s string) Format {
	if s == "json" {
		return FormatJSON
	}
	return FormatText
}

// New builds a *slog.Logger at the given level and format, with
// timestamps normalized to RFC3339.
func New(format Format, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
