package utils

import (
	"github.com/pagepack/pagepack/internal/logger"
)

// Debug writes a debug-level message through the global logger.
func Debug(format string, args ...any) {
	logger.L().Debugf(format, args...)
}
