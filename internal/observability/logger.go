// Package observability contains logging setup for the relnet binaries.
package observability

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gamevidea/relnet/internal/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger builds a logrus logger from the provided configuration and sets it as the standard
// logger. File outputs are rotated when rotation is enabled.
func SetupLogger(c config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(c.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.ToLower(c.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var writers []io.Writer
	for _, out := range c.Outputs {
		switch strings.ToLower(out) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			// Treat as file path; use rotation only when enabled
			if c.Rotation.Enable {
				writers = append(writers, &lumberjack.Logger{
					Filename:   chooseFilename(out, c),
					MaxSize:    max(c.Rotation.MaxSizeMB, 10),
					MaxBackups: max(c.Rotation.MaxBackups, 1),
					MaxAge:     max(c.Rotation.MaxAgeDays, 7),
					Compress:   c.Rotation.Compress,
				})
				continue
			}

			if dir := filepath.Dir(out); dir != "." {
				_ = os.MkdirAll(dir, 0o755)
			}

			f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				// fallback to stderr on failure
				writers = append(writers, os.Stderr)
				continue
			}
			writers = append(writers, f)
		}
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(os.Stdout)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	logrus.SetLevel(logger.GetLevel())
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)

	return logger, nil
}

// chooseFilename returns the output filename. If a filename is provided in the rotation
// config, prefer it; otherwise use the `out`.
func chooseFilename(out string, c config.LogConfig) string {
	if strings.TrimSpace(c.Rotation.Filename) != "" {
		return c.Rotation.Filename
	}
	return out
}
