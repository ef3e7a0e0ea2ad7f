package logging

import (
	"persistence-engine/internal/config"
)

// DevelopmentLoggingConfig is human-readable debug output with database
// statements included.
func DevelopmentLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:                 "debug",
		Format:                "console",
		Output:                "stdout",
		EnableRequestTracing:  true,
		EnableDatabaseLogging: true,
	}
}

// DebugLoggingConfig is development logging written to stderr so CLI output stays clean.
func DebugLoggingConfig() config.LoggingConfig {
	cfg := DevelopmentLoggingConfig()
	cfg.Output = "stderr"
	return cfg
}

// TestLoggingConfig keeps tests quiet: errors only.
func TestLoggingConfig() config.LoggingConfig {
	return config.LoggingConfig{
		Level:  "error",
		Format: "json",
		Output: "stderr",
	}
}
