package config

import (
	"fmt"
	"strings"
)

// Development keeps everything readable: no encryption, no compression,
// pretty JSON and data validation on.
func Development() *Config {
	cfg := DefaultConfig()
	cfg.Storage.ValidateData = true
	cfg.Serialization.PrettyPrint = true
	cfg.Encryption.Enabled = false
	cfg.Compression.Enabled = false
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "console"
	return cfg
}

// Debug is Development with database statement logging and an in-memory key-value store.
func Debug() *Config {
	cfg := Development()
	cfg.KeyValue.InMemory = true
	cfg.Logging.EnableDatabaseLogging = true
	return cfg
}

// Release trades readability for size: compressed payloads, no validation pass.
func Release() *Config {
	cfg := DefaultConfig()
	cfg.Storage.ValidateData = false
	cfg.Serialization.PrettyPrint = false
	cfg.Compression.Enabled = true
	cfg.Compression.Algorithm = "s2"
	cfg.Compression.Level = 6
	cfg.Encryption.Enabled = false
	cfg.Logging.Level = "warn"
	return cfg
}

// Production compresses and encrypts. The caller must supply the encryption key
// (PERSIST_ENCRYPTION_KEY or the config file); Validate rejects an empty one.
func Production() *Config {
	cfg := DefaultConfig()
	cfg.Storage.ValidateData = true
	cfg.Serialization.PrettyPrint = false
	cfg.Compression.Enabled = true
	cfg.Compression.Algorithm = "zstd"
	cfg.Compression.Level = 6
	cfg.Encryption.Enabled = true
	cfg.Encryption.Algorithm = "aes"
	cfg.Cache.Enabled = true
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

// Preset returns the named preset.
func Preset(name string) (*Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "development", "dev":
		return Development(), nil
	case "debug":
		return Debug(), nil
	case "release":
		return Release(), nil
	case "production", "prod":
		return Production(), nil
	case "default", "":
		return DefaultConfig(), nil
	default:
		return nil, fmt.Errorf("unknown config preset: %s", name)
	}
}

// LoadPreset starts from a preset instead of the defaults, then applies the file and environment.
func LoadPreset(name, configPath string) (*Config, error) {
	cfg, err := Preset(name)
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadFromEnvironment(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}
