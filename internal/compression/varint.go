package compression

import (
	"errors"
	"io"
)

// ErrVarintOverflow is returned for varints longer than 10 bytes
var ErrVarintOverflow = errors.New("varint overflows 64 bits")

// AppendVarint appends a variable-length encoded uint64 to buf
func AppendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// ReadVarint reads a variable-length encoded uint64 from data.
// Returns the value and number of bytes read (0 if truncated or overlong).
func ReadVarint(data []byte) (uint64, int) {
	var x uint64
	var s uint
	for i, b := range data {
		if i == 10 {
			return 0, 0
		}
		if b < 0x80 {
			return x | uint64(b)<<s, i + 1
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, 0
}

// ReadVarintFrom reads a varint byte by byte from a stream
func ReadVarintFrom(r io.ByteReader) (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if b < 0x80 {
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, ErrVarintOverflow
}

// AppendString appends a varint length prefix followed by s
func AppendString(buf []byte, s string) []byte {
	buf = AppendVarint(buf, uint64(len(s)))
	return append(buf, s...)
}
