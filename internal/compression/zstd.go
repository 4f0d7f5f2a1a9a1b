package compression

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// The decoder is safe for concurrent DecodeAll calls and is shared by every
// reader in the process.
var getZstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

// ZstdCompressor implements Compressor using Zstandard
type ZstdCompressor struct {
	enc *zstd.Encoder
}

func NewZstdCompressor() (*ZstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(3)), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &ZstdCompressor{enc: enc}, nil
}

func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return z.enc.EncodeAll(data, nil), nil
}

func (z *ZstdCompressor) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	dec, err := getZstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("zstd block decodes to %d bytes, header says %d", len(out), size)
	}
	return out, nil
}

func (z *ZstdCompressor) Algorithm() Algorithm {
	return Zstd
}
