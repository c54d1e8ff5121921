package config

import (
	"fmt"
	"io"
	"log/slog"
)

// SetupLogging installs a text slog handler writing to w as the default
// logger. level is one of debug, info, warn or error.
func SetupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})))
	return nil
}
