// Package logging configures the process-wide logrus logger.
//
// Only the composition root calls Init. Library packages log through the
// global logrus logger and never configure it.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

// Config selects the level, format and destination of log output.
type Config struct {
	// Level is a logrus level name such as "debug" or "info".
	Level string
	// Format is "text" or "json".
	Format string
	// File enables a rotating log file. Empty logs to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

var (
	mu     sync.Mutex
	closer io.Closer
)

// Init applies cfg to the global logger. Calling it again replaces the
// previous configuration and closes the previous log file.
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	var formatter logrus.Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return fmt.Errorf("log format %q: must be text or json", cfg.Format)
	}

	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = rotating
		closer = rotating
	}

	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(out)

	logrus.WithFields(logrus.Fields{
		"function": "logging.Init",
		"level":    level.String(),
		"format":   cfg.Format,
		"file":     cfg.File,
	}).Debug("Logging configured")
	return nil
}

// Shutdown closes the log file, if any, and restores stderr output.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	logrus.SetOutput(os.Stderr)
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}
