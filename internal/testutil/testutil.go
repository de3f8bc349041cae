// Package testutil provides shared test helpers for the pronto service.
package testutil

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

// TestLogger returns a debug-level logger that records entries in
// memory instead of writing them anywhere. Tests assert on suppressed
// and degraded paths through the returned hook.
func TestLogger(t *testing.T) (*logrus.Logger, *logrustest.Hook) {
	t.Helper()
	logger, hook := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}
