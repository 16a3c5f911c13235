// Package logging builds the process logger. Module stdout is reserved for
// the JSON result, so logs go to stderr or to a file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/joeycumines/cvansible/internal/config"
)

// Options are the resolved logging settings. Flag values take precedence
// over config values, the same way for every field.
type Options struct {
	Level  string
	Format string
	File   string
}

// Setup resolves options against cfg and returns the logger plus a closer
// for the log file (a no-op closer when logging to stderr).
func Setup(opts Options, cfg *config.Config, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	resolve := func(flagValue, key string) string {
		if flagValue != "" || cfg == nil {
			return flagValue
		}
		v, _ := cfg.GetGlobalOption(key)
		return v
	}

	level, err := ParseLevel(resolve(opts.Level, config.OptLogLevel))
	if err != nil {
		return nil, nil, err
	}

	out := stderr
	var closer io.Closer = nopCloser{}
	if path := resolve(opts.File, config.OptLogFile); path != "" {
		maxSizeMB, maxFiles := 10, 5
		if cfg != nil {
			if v := cfg.GetInt(config.OptLogMaxSizeMB); v > 0 {
				maxSizeMB = v
			}
			if _, ok := cfg.GetGlobalOption(config.OptLogMaxFiles); ok {
				maxFiles = cfg.GetInt(config.OptLogMaxFiles)
			}
		}
		w, err := NewRotatingFileWriter(path, maxSizeMB, maxFiles)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		out, closer = w, w
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := strings.ToLower(resolve(opts.Format, config.OptLogFormat)); format {
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(out, handlerOpts)
	case "", "auto":
		if isTerminal(out) {
			handler = slog.NewTextHandler(out, handlerOpts)
		} else {
			handler = slog.NewJSONHandler(out, handlerOpts)
		}
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("invalid log format: %s", format)
	}

	return slog.New(handler), closer, nil
}

// ParseLevel parses debug, info, warn or error. Empty means warn, which
// keeps module runs quiet unless something goes wrong.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
