package compression

import (
	"encoding/binary"
	"fmt"
)

// DeltaEncoder implements delta + zigzag + varint compression for int64 values.
// Efficient for monotonically increasing values like timestamps or ids.
//
// Wire format:
//
//	[count: 4 bytes LE]
//	[first value: 8 bytes LE]
//	[zigzag varint deltas: count-1 values]
type DeltaEncoder struct{}

func NewDeltaEncoder() *DeltaEncoder {
	return &DeltaEncoder{}
}

func (e *DeltaEncoder) Codec() ValueCodec {
	return CodecDelta
}

// EncodeInt64 appends the encoded form of values to dst
func (e *DeltaEncoder) EncodeInt64(dst []byte, values []int64) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(values)))
	if len(values) == 0 {
		return dst
	}
	dst = binary.LittleEndian.AppendUint64(dst, uint64(values[0]))

	prev := values[0]
	for _, v := range values[1:] {
		delta := v - prev
		zigzag := (delta << 1) ^ (delta >> 63)
		dst = AppendVarint(dst, uint64(zigzag))
		prev = v
	}
	return dst
}

// EncodeUint64 encodes unsigned values through their two's complement bits
func (e *DeltaEncoder) EncodeUint64(dst []byte, values []uint64) []byte {
	ints := make([]int64, len(values))
	for i, v := range values {
		ints[i] = int64(v)
	}
	return e.EncodeInt64(dst, ints)
}

// DecodeInt64 decodes exactly count values
func (e *DeltaEncoder) DecodeInt64(data []byte, count int) ([]int64, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for count")
	}
	storedCount := binary.LittleEndian.Uint32(data)
	if int(storedCount) != count {
		return nil, fmt.Errorf("count mismatch: expected %d, got %d", count, storedCount)
	}
	if count == 0 {
		return []int64{}, nil
	}
	offset := 4

	if offset+8 > len(data) {
		return nil, fmt.Errorf("data too short for first value")
	}
	prev := int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8

	values := make([]int64, count)
	values[0] = prev
	for i := 1; i < count; i++ {
		zigzag, n := ReadVarint(data[offset:])
		if n <= 0 {
			return nil, fmt.Errorf("failed to read varint at position %d", i)
		}
		offset += n

		delta := int64(zigzag>>1) ^ -int64(zigzag&1)
		prev += delta
		values[i] = prev
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after delta values", len(data)-offset)
	}
	return values, nil
}

func (e *DeltaEncoder) DecodeUint64(data []byte, count int) ([]uint64, error) {
	ints, err := e.DecodeInt64(data, count)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(ints))
	for i, v := range ints {
		out[i] = uint64(v)
	}
	return out, nil
}
