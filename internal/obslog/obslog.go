// Package obslog sets up the process-wide logrus logger the way the
// teacher's API server does (JSON formatter, stdout, parsed level with
// a safe fallback — see infrastructure/api/src/main.go upstream).
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger configured for structured JSON logging at
// levelName (parsed via logrus.ParseLevel; an unparseable level falls
// back to Info rather than failing startup).
func New(levelName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// TruncateForLog shortens a sensitive identifier (asset id, token) to
// its first n characters followed by an ellipsis, for safe inclusion
// in log fields.
func TruncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
