package part

import (
	"fmt"
	"strings"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/config"
	"github.com/soltixdb/widepart/internal/granularity"
)

const (
	DataFileExtension         = ".bin"
	MarkFileExtension         = ".mrk"
	AdaptiveMarkFileExtension = ".mrk2"
	ColumnsFileName           = "columns.txt"
	CountFileName             = "count.txt"
	CodecsFileName            = "codecs.txt"
	ChecksumsFileName         = "checksums.txt"
	TmpPartPrefix             = "tmp_"
	defaultMaxDictionarySize  = 8192
)

// WriterSettings controls the layout of a written part
type WriterSettings struct {
	Granularity granularity.Settings

	MinCompressBlockSize int
	MaxCompressBlockSize int
	Compression          compression.Algorithm

	WithFinalMark             bool
	ReplaceLongFileNameToHash bool
	MaxFileNameLength         int
	SelfCheck                 bool
	SyncOnFinish              bool

	LowCardinalityMaxDictionarySize int

	// ColumnCodecs overrides the value encoding of the named columns
	ColumnCodecs map[string]compression.ValueCodec
}

// DefaultWriterSettings returns the settings of the default configuration
func DefaultWriterSettings() WriterSettings {
	s, err := SettingsFromConfig(config.DefaultConfig().Writer)
	if err != nil {
		panic(err)
	}
	return s
}

// SettingsFromConfig converts the writer section of the configuration
func SettingsFromConfig(cfg config.WriterConfig) (WriterSettings, error) {
	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return WriterSettings{}, err
	}

	codecs := make(map[string]compression.ValueCodec, len(cfg.ColumnCodecs))
	for column, name := range cfg.ColumnCodecs {
		codec, err := compression.ParseValueCodec(name)
		if err != nil {
			return WriterSettings{}, fmt.Errorf("column %s: %w", column, err)
		}
		codecs[column] = codec
	}

	s := WriterSettings{
		Granularity: granularity.Settings{
			IndexGranularity:      cfg.IndexGranularity,
			IndexGranularityBytes: cfg.IndexGranularityBytes,
			BlocksAreGranulesSize: cfg.BlocksAreGranulesSize,
		},
		MinCompressBlockSize:            cfg.MinCompressBlockSize,
		MaxCompressBlockSize:            cfg.MaxCompressBlockSize,
		Compression:                     algo,
		WithFinalMark:                   cfg.WithFinalMark,
		ReplaceLongFileNameToHash:       cfg.ReplaceLongFileNameToHash,
		MaxFileNameLength:               cfg.MaxFileNameLength,
		SelfCheck:                       cfg.SelfCheck,
		SyncOnFinish:                    cfg.SyncOnFinish,
		LowCardinalityMaxDictionarySize: cfg.LowCardinalityMaxDictSize,
		ColumnCodecs:                    codecs,
	}
	return s, s.Validate()
}

func (s WriterSettings) Validate() error {
	if err := s.Granularity.Validate(); err != nil {
		return err
	}
	if s.MaxCompressBlockSize <= 0 {
		return fmt.Errorf("max compress block size must be positive")
	}
	if s.MinCompressBlockSize <= 0 || s.MinCompressBlockSize > s.MaxCompressBlockSize {
		return fmt.Errorf("min compress block size %d must be in [1, %d]", s.MinCompressBlockSize, s.MaxCompressBlockSize)
	}
	if s.ReplaceLongFileNameToHash && s.MaxFileNameLength < 16 {
		return fmt.Errorf("max file name length %d is shorter than a hashed name", s.MaxFileNameLength)
	}
	return nil
}

// MarkExtension returns the extension of mark files
func (s WriterSettings) MarkExtension() string {
	if s.Granularity.Adaptive() {
		return AdaptiveMarkFileExtension
	}
	return MarkFileExtension
}

// ColumnCodec returns the value codec of a column
func (s WriterSettings) ColumnCodec(column string) compression.ValueCodec {
	if codec, ok := s.ColumnCodecs[column]; ok {
		return codec
	}
	// configuration keys arrive lower-cased
	if codec, ok := s.ColumnCodecs[strings.ToLower(column)]; ok {
		return codec
	}
	return compression.CodecPlain
}

func (s WriterSettings) maxDictionarySize() int {
	if s.LowCardinalityMaxDictionarySize > 0 {
		return s.LowCardinalityMaxDictionarySize
	}
	return defaultMaxDictionarySize
}
