package testutils

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a logger. The level defaults to Warn and
// can be raised with CRAFTY_TEST_LOG_LEVEL=debug to trace execution flow.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("CRAFTY_TEST_LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}
