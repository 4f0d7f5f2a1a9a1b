package config

import (
	"fmt"
	"strings"
)

// Config represents the complete application configuration
type Config struct {
	Writer   WriterConfig   `mapstructure:"writer"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Announce AnnounceConfig `mapstructure:"announce"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// WriterConfig represents wide part writer configuration
type WriterConfig struct {
	IndexGranularity      int `mapstructure:"index_granularity"`       // Max rows per mark (default: 8192)
	IndexGranularityBytes int `mapstructure:"index_granularity_bytes"` // Target bytes per mark, 0 = fixed granularity (default: 10MiB)

	MinCompressBlockSize int    `mapstructure:"min_compress_block_size"` // Cut a block before a mark once this many bytes are buffered (default: 64KiB)
	MaxCompressBlockSize int    `mapstructure:"max_compress_block_size"` // Max decompressed bytes per block (default: 1MiB)
	Compression          string `mapstructure:"compression"`             // none, snappy, lz4, zstd

	WithFinalMark             bool `mapstructure:"with_final_mark"`                // Write a zero-row mark after the last granule
	BlocksAreGranulesSize     bool `mapstructure:"blocks_are_granules_size"`       // Every block is exactly one granule
	ReplaceLongFileNameToHash bool `mapstructure:"replace_long_file_name_to_hash"` // Hash stream names longer than MaxFileNameLength
	MaxFileNameLength         int  `mapstructure:"max_file_name_length"`
	SelfCheck                 bool `mapstructure:"self_check"`     // Re-read fixed-size columns after writing
	SyncOnFinish              bool `mapstructure:"sync_on_finish"` // fsync every file of the part on finish
	LowCardinalityMaxDictSize int  `mapstructure:"low_cardinality_max_dictionary_size"`

	// ColumnCodecs maps a column name to its value codec: plain, delta,
	// gorilla, dictionary, bitmap. Keys are lower-cased by the loader.
	ColumnCodecs map[string]string `mapstructure:"column_codecs"`
}

// StorageConfig represents part storage configuration
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
	FS      string `mapstructure:"fs"` // os, memory
}

// AnnounceConfig represents where committed parts are announced
type AnnounceConfig struct {
	Type     string `mapstructure:"type"`     // none (default), memory, nats, redis, kafka
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222, redis://localhost:6379)
	Subject  string `mapstructure:"subject"`  // Subject / stream / topic of announcements
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication

	// Redis-specific options
	RedisDB     int    `mapstructure:"redis_db"`     // Redis database number (default: 0)
	RedisStream string `mapstructure:"redis_stream"` // Redis stream prefix (default: "widepart")

	// Kafka-specific options
	KafkaBrokers []string `mapstructure:"kafka_brokers"` // Kafka broker addresses
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Writer.Validate(); err != nil {
		return fmt.Errorf("writer config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Announce.Validate(); err != nil {
		return fmt.Errorf("announce config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates writer configuration
func (c *WriterConfig) Validate() error {
	if c.IndexGranularity < 1 {
		return fmt.Errorf("index_granularity must be at least 1")
	}

	if c.IndexGranularityBytes < 0 {
		return fmt.Errorf("index_granularity_bytes cannot be negative")
	}

	if c.MaxCompressBlockSize < 1 {
		return fmt.Errorf("max_compress_block_size must be positive")
	}

	if c.MinCompressBlockSize < 1 || c.MinCompressBlockSize > c.MaxCompressBlockSize {
		return fmt.Errorf("min_compress_block_size must be between 1 and max_compress_block_size")
	}

	validCompression := map[string]bool{
		"none":   true,
		"snappy": true,
		"lz4":    true,
		"zstd":   true,
	}

	if !validCompression[strings.ToLower(c.Compression)] {
		return fmt.Errorf("compression must be one of: none, snappy, lz4, zstd")
	}

	if c.BlocksAreGranulesSize && c.IndexGranularityBytes == 0 {
		return fmt.Errorf("blocks_are_granules_size requires index_granularity_bytes > 0")
	}

	if c.ReplaceLongFileNameToHash && c.MaxFileNameLength < 16 {
		return fmt.Errorf("max_file_name_length must be at least 16 when hashing long names")
	}

	if c.LowCardinalityMaxDictSize < 0 {
		return fmt.Errorf("low_cardinality_max_dictionary_size cannot be negative")
	}

	validCodecs := map[string]bool{
		"plain":      true,
		"delta":      true,
		"gorilla":    true,
		"dictionary": true,
		"bitmap":     true,
	}

	for column, codec := range c.ColumnCodecs {
		if !validCodecs[strings.ToLower(codec)] {
			return fmt.Errorf("column_codecs.%s: unknown codec %q", column, codec)
		}
	}

	return nil
}

// Validate validates storage configuration
func (c *StorageConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.FS != "os" && c.FS != "memory" {
		return fmt.Errorf("storage.fs must be 'os' or 'memory'")
	}

	return nil
}

// Validate validates announce configuration
func (c *AnnounceConfig) Validate() error {
	switch c.Type {
	case "", "none", "memory":
		return nil
	case "nats", "redis":
		if c.URL == "" {
			return fmt.Errorf("announce.url is required for %s", c.Type)
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 && c.URL == "" {
			return fmt.Errorf("announce.kafka_brokers or announce.url is required for kafka")
		}
	default:
		return fmt.Errorf("announce.type must be one of: none, memory, nats, redis, kafka")
	}

	if c.Subject == "" {
		return fmt.Errorf("announce.subject is required")
	}

	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}
