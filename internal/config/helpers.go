package config

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDirectories ensures all required directories exist
func (c *Config) EnsureDirectories() error {
	if c.Storage.FS == "memory" {
		return nil
	}
	return os.MkdirAll(c.Storage.DataDir, 0755)
}

// GetPartPath returns the directory of a committed part
func (c *Config) GetPartPath(part string) string {
	return filepath.Join(c.Storage.DataDir, part)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Logging.Level == "info" && c.Logging.Format == "json"
}

// Adaptive reports whether mark sizes follow block byte sizes
func (c *WriterConfig) Adaptive() bool {
	return c.IndexGranularityBytes > 0
}

// ColumnCodec returns the configured codec of a column, "plain" when unset
func (c *WriterConfig) ColumnCodec(column string) string {
	if codec, ok := c.ColumnCodecs[column]; ok {
		return strings.ToLower(codec)
	}
	// viper lower-cases map keys
	if codec, ok := c.ColumnCodecs[strings.ToLower(column)]; ok {
		return strings.ToLower(codec)
	}
	return "plain"
}

// AnnounceEnabled reports whether committed parts are published
func (c *AnnounceConfig) AnnounceEnabled() bool {
	return c.Type != "" && c.Type != "none"
}
