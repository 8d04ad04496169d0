package analysis

import (
	"sync"

	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the analysis package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("analysis")
	})
	return serviceLogger
}
