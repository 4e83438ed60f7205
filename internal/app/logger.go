package app

import (
	"strings"

	"github.com/lucasberan/keygate/pkg/logger"
)

// ConfigureLogging initialises the global logger from server settings.
func ConfigureLogging(level, format string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.Init(logger.Options{Level: level, Format: format})
}
