package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a new logger instance
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	if level != "" {
		switch strings.ToUpper(level) {
		case "DEBUG":
			logger.SetLevel(logrus.DebugLevel)
		case "INFO":
			logger.SetLevel(logrus.InfoLevel)
		case "WARN":
			logger.SetLevel(logrus.WarnLevel)
		case "ERROR":
			logger.SetLevel(logrus.ErrorLevel)
		}
	}

	return logger
}

// NewLoggerFromConfig applies level, format and file output from the logging section.
// The returned closer releases the log file, if any.
func NewLoggerFromConfig(cfg LoggingYAMLConfig) (*logrus.Logger, io.Closer, error) {
	logger := NewLogger(cfg.Level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.FilePath == "" {
		return logger, nopCloser{}, nil
	}

	f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return logger, nopCloser{}, fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, f))
	return logger, f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
