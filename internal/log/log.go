// Package log builds the server logger and throttles noisy warnings.
package log

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/PaulBabatuyi/streams/internal/config"
)

// NewLogger returns a logger configured by cfg.Log. When cfg.Log.Path is
// set the returned file is the log destination and the caller closes it.
func NewLogger(cfg *config.Config) (*log.Logger, *os.File, error) {
	if cfg == nil {
		return nil, nil, config.ErrNilConfig
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateOnly,
	})

	if cfg.Log.Level != "" {
		lvl, err := log.ParseLevel(strings.ToLower(cfg.Log.Level))
		if err != nil {
			return nil, nil, err
		}
		logger.SetLevel(lvl)
	}
	if cfg.Log.TimeFormat != "" {
		logger.SetTimeFormat(cfg.Log.TimeFormat)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	case "text":
		logger.SetFormatter(log.TextFormatter)
	}

	var f *os.File
	if cfg.Log.Path != "" {
		var err error
		f, err = os.OpenFile(cfg.Log.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
		if err != nil {
			return nil, nil, err //nolint:wrapcheck
		}
		logger.SetOutput(f)
	}

	return logger, f, nil
}
