package compression

import (
	"fmt"
	"strings"
)

// Algorithm defines compression types. The value is stored as the method
// byte of every compressed block.
type Algorithm uint8

const (
	None   Algorithm = 0
	Snappy Algorithm = 1
	LZ4    Algorithm = 2
	Zstd   Algorithm = 3
)

var algorithmNames = map[Algorithm]string{
	None:   "none",
	Snappy: "snappy",
	LZ4:    "lz4",
	Zstd:   "zstd",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", uint8(a))
}

// ParseAlgorithm maps a configuration value to an Algorithm
func ParseAlgorithm(name string) (Algorithm, error) {
	for algo, n := range algorithmNames {
		if n == strings.ToLower(name) {
			return algo, nil
		}
	}
	return None, fmt.Errorf("unknown compression algorithm: %q", name)
}

// Compressor interface for compression algorithms
type Compressor interface {
	// Compress compresses data
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data; size is the decompressed size recorded
	// in the block header
	Decompress(data []byte, size int) ([]byte, error)

	// Algorithm returns the compression algorithm type
	Algorithm() Algorithm
}

// GetCompressor returns a compressor for the given algorithm
func GetCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None:
		return &NoneCompressor{}, nil
	case Snappy:
		return NewSnappyCompressor(), nil
	case LZ4:
		return NewLZ4Compressor(), nil
	case Zstd:
		return NewZstdCompressor()
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %d", algo)
	}
}

// NoneCompressor is a no-op compressor
type NoneCompressor struct{}

func (n *NoneCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoneCompressor) Decompress(data []byte, size int) ([]byte, error) {
	if len(data) != size {
		return nil, fmt.Errorf("uncompressed block has %d bytes, header says %d", len(data), size)
	}
	return data, nil
}

func (n *NoneCompressor) Algorithm() Algorithm {
	return None
}
