package orchestrator

import (
	"os"
	"testing"

	"go.uber.org/zap"

	"perpctl/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InfoLogger = zap.NewNop()
	logger.FatalLogger = zap.NewNop()
	os.Exit(m.Run())
}
