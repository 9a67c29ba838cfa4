// Package logging configures the process wide logger from the daemon
// configuration.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/spin-stack/procsnap/internal/config"
	"github.com/spin-stack/procsnap/internal/paths"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup applies the level and format to log.L and, when a log file is
// configured, mirrors output into a size rotated file. The returned Closer
// flushes and closes the file.
func Setup(cfg *config.Config) (io.Closer, error) {
	return setup(log.L.Logger, os.Stderr, cfg)
}

func setup(logger *logrus.Logger, stderr io.Writer, cfg *config.Config) (io.Closer, error) {
	if err := log.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	if err := log.SetFormat(log.OutputFormat(cfg.Logging.Format)); err != nil {
		return nil, fmt.Errorf("invalid log format %q: %w", cfg.Logging.Format, err)
	}

	file := paths.LogFilePath(cfg)
	if file == "" {
		logger.SetOutput(stderr)
		return nopCloser{}, nil
	}
	if err := paths.EnsureParent(file, 0o750); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		LocalTime:  true,
	}
	logger.SetOutput(io.MultiWriter(stderr, rotator))
	return rotator, nil
}
