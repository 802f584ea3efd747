// Package log builds the loggers used by the Outpost CLI.
package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/outpost-run/outpost-go/pkg/config"
)

// NewLogger returns a logger for cfg. When cfg.Log.Path is set the output
// goes to that file instead of stderr, and the caller must close it.
func NewLogger(cfg *config.Config) (*log.Logger, *os.File, error) {
	if cfg == nil {
		return nil, nil, config.ErrNilConfig
	}

	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.Log.TimeFormat,
		Formatter:       formatter(cfg.Log.Format),
		Level:           level(cfg.Log.Level),
	}

	var f *os.File
	out := os.Stderr
	if cfg.Log.Path != "" {
		var err error
		f, err = os.OpenFile(cfg.Log.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	return log.NewWithOptions(out, opts), f, nil
}

func formatter(name string) log.Formatter {
	switch strings.ToLower(name) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}

// level resolves the configured level. OUTPOST_DEBUG wins over it.
func level(name string) log.Level {
	if config.IsDebug() {
		return log.DebugLevel
	}
	if lvl, err := log.ParseLevel(name); err == nil && name != "" {
		return lvl
	}
	return log.InfoLevel
}
