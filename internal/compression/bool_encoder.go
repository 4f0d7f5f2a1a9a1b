package compression

import (
	"encoding/binary"
	"fmt"
)

// BoolEncoder implements bitmap encoding for boolean values.
// Each bool is stored as 1 bit, packing 8 bools per byte.
type BoolEncoder struct{}

func NewBoolEncoder() *BoolEncoder {
	return &BoolEncoder{}
}

func (e *BoolEncoder) Codec() ValueCodec {
	return CodecBitmap
}

// EncodeBool appends count + value bitmap to dst
func (e *BoolEncoder) EncodeBool(dst []byte, values []bool) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(values)))
	mask := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			mask[i/8] |= 1 << (i % 8)
		}
	}
	return append(dst, mask...)
}

func (e *BoolEncoder) DecodeBool(data []byte, count int) ([]bool, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for count")
	}
	storedCount := binary.LittleEndian.Uint32(data)
	if int(storedCount) != count {
		return nil, fmt.Errorf("count mismatch: expected %d, got %d", count, storedCount)
	}

	maskSize := (count + 7) / 8
	if len(data) != 4+maskSize {
		return nil, fmt.Errorf("bitmap has %d bytes, expected %d", len(data)-4, maskSize)
	}
	mask := data[4:]

	values := make([]bool, count)
	for i := range values {
		values[i] = mask[i/8]&(1<<(i%8)) != 0
	}
	return values, nil
}
