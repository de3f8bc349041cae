// Package logging builds the process-wide logger. The level is decided
// once at startup from configuration; components receive a
// logrus.FieldLogger and never consult the environment themselves.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New constructs the root logger for the given environment and level.
// Unknown levels fall back to info rather than failing startup.
func New(environment, level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// Component returns a logger scoped to one component. All log lines from
// that component carry the component field.
func Component(logger logrus.FieldLogger, name string) logrus.FieldLogger {
	return logger.WithField("component", name)
}
