package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")             // Current directory
		v.AddConfigPath("./configs")     // Project configs directory
		v.AddConfigPath("/etc/widepart") // System-wide config
	}

	// Set defaults
	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("WIDEPART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Writer defaults
	v.SetDefault("writer.index_granularity", d.Writer.IndexGranularity)
	v.SetDefault("writer.index_granularity_bytes", d.Writer.IndexGranularityBytes)
	v.SetDefault("writer.min_compress_block_size", d.Writer.MinCompressBlockSize)
	v.SetDefault("writer.max_compress_block_size", d.Writer.MaxCompressBlockSize)
	v.SetDefault("writer.compression", d.Writer.Compression)
	v.SetDefault("writer.with_final_mark", d.Writer.WithFinalMark)
	v.SetDefault("writer.blocks_are_granules_size", d.Writer.BlocksAreGranulesSize)
	v.SetDefault("writer.replace_long_file_name_to_hash", d.Writer.ReplaceLongFileNameToHash)
	v.SetDefault("writer.max_file_name_length", d.Writer.MaxFileNameLength)
	v.SetDefault("writer.self_check", d.Writer.SelfCheck)
	v.SetDefault("writer.sync_on_finish", d.Writer.SyncOnFinish)
	v.SetDefault("writer.low_cardinality_max_dictionary_size", d.Writer.LowCardinalityMaxDictSize)

	// Storage defaults
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.fs", d.Storage.FS)

	// Announce defaults
	v.SetDefault("announce.type", d.Announce.Type)
	v.SetDefault("announce.subject", d.Announce.Subject)
	v.SetDefault("announce.redis_stream", d.Announce.RedisStream)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		// Return default configuration
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Writer: WriterConfig{
			IndexGranularity:          8192,
			IndexGranularityBytes:     10 << 20,
			MinCompressBlockSize:      64 << 10,
			MaxCompressBlockSize:      1 << 20,
			Compression:               "lz4",
			WithFinalMark:             true,
			ReplaceLongFileNameToHash: true,
			MaxFileNameLength:         127,
			LowCardinalityMaxDictSize: 8192,
		},
		Storage: StorageConfig{
			DataDir: "./data",
			FS:      "os",
		},
		Announce: AnnounceConfig{
			Type:        "none",
			Subject:     "widepart.parts",
			RedisStream: "widepart",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
