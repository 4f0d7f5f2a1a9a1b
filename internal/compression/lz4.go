package compression

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements Compressor using LZ4 block compression
type LZ4Compressor struct {
	c lz4.Compressor
}

func NewLZ4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

// Compress returns nil, nil when the data is not compressible; callers store
// such blocks uncompressed.
func (l *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := l.c.CompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress failed: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return dst[:n], nil
}

func (l *LZ4Compressor) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress failed: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lz4 block decodes to %d bytes, header says %d", n, size)
	}
	return dst, nil
}

func (l *LZ4Compressor) Algorithm() Algorithm {
	return LZ4
}
