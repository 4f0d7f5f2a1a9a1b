package compression

import (
	"encoding/binary"
	"fmt"
	"math"
)

// GorillaEncoder implements XOR-based compression for float64 values.
// Based on Facebook's Gorilla paper (Section 4.1.2):
//
//	Pelkonen et al., "Gorilla: A Fast, Scalable, In-Memory Time Series Database"
//	PVLDB, Vol. 8, No. 12, 2015.
//
// XOR bit-packing algorithm:
//
//  1. First value: stored as raw 64-bit IEEE 754.
//  2. Subsequent values: XOR with previous value's bits.
//     - XOR == 0: write single '0' bit  (values are identical)
//     - XOR != 0: write '1' bit, then:
//     a) If leading zeros >= prevLeading AND trailing zeros >= prevTrailing:
//     write '0' bit + meaningful bits only (prevMeaningBits width)
//     b) Otherwise:
//     write '1' bit + 6 bits (leading zeros count) + 6 bits (meaningful bits length - 1)
//     + meaningful bits
//
// Wire format:
//
//	[count: 4 bytes LE]
//	[first value: 8 bytes LE, raw IEEE 754 bits]
//	[XOR bit stream, padded to a byte boundary]
type GorillaEncoder struct{}

func NewGorillaEncoder() *GorillaEncoder {
	return &GorillaEncoder{}
}

func (e *GorillaEncoder) Codec() ValueCodec {
	return CodecGorilla
}

// EncodeFloat64 appends the encoded form of values to dst
func (e *GorillaEncoder) EncodeFloat64(dst []byte, values []float64) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(values)))
	if len(values) == 0 {
		return dst
	}

	firstBits := math.Float64bits(values[0])
	dst = binary.LittleEndian.AppendUint64(dst, firstBits)

	// typically ~11 bits per value
	bw := NewBitWriter(len(values) * 2)

	prevBits := firstBits
	prevLeading := uint8(64)
	prevTrailing := uint8(0)
	prevMeaningBits := uint8(64)

	for _, v := range values[1:] {
		currentBits := math.Float64bits(v)
		xor := prevBits ^ currentBits
		prevBits = currentBits

		if xor == 0 {
			bw.WriteBit(0)
			continue
		}
		bw.WriteBit(1)

		leading := min(LeadingZeros64(xor), 63)
		trailing := TrailingZeros64(xor)
		meaningBits := 64 - leading - trailing

		if prevMeaningBits < 64 && leading >= prevLeading && trailing >= prevTrailing {
			bw.WriteBit(0)
			bw.WriteBits(xor>>prevTrailing, prevMeaningBits)
			continue
		}

		bw.WriteBit(1)
		bw.WriteBits(uint64(leading), 6)
		// meaningBits is 1..64, stored as 0..63
		bw.WriteBits(uint64(meaningBits-1), 6)
		bw.WriteBits(xor>>trailing, meaningBits)

		prevLeading = leading
		prevTrailing = trailing
		prevMeaningBits = meaningBits
	}

	return append(dst, bw.Bytes()...)
}

// DecodeFloat64 decodes exactly count values
func (e *GorillaEncoder) DecodeFloat64(data []byte, count int) ([]float64, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short for count")
	}
	storedCount := binary.LittleEndian.Uint32(data)
	if int(storedCount) != count {
		return nil, fmt.Errorf("count mismatch: expected %d, got %d", count, storedCount)
	}
	if count == 0 {
		return []float64{}, nil
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("data too short for first value")
	}

	prevBits := binary.LittleEndian.Uint64(data[4:])
	values := make([]float64, count)
	values[0] = math.Float64frombits(prevBits)

	br := NewBitReader(data[12:])
	prevTrailing := uint8(0)
	prevMeaningBits := uint8(64)

	for i := 1; i < count; i++ {
		control, ok := br.ReadBit()
		if !ok {
			return nil, fmt.Errorf("unexpected end of bitstream at value %d", i)
		}
		if control == 0 {
			values[i] = math.Float64frombits(prevBits)
			continue
		}

		window, ok := br.ReadBit()
		if !ok {
			return nil, fmt.Errorf("unexpected end of bitstream at value %d (window)", i)
		}

		var xor uint64
		if window == 0 {
			meaningful, ok := br.ReadBits(prevMeaningBits)
			if !ok {
				return nil, fmt.Errorf("unexpected end of bitstream at value %d (bits)", i)
			}
			xor = meaningful << prevTrailing
		} else {
			leading, ok1 := br.ReadBits(6)
			meaningRaw, ok2 := br.ReadBits(6)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("unexpected end of bitstream at value %d (header)", i)
			}
			meaningBits := uint8(meaningRaw) + 1
			trailing := 64 - uint8(leading) - meaningBits

			meaningful, ok := br.ReadBits(meaningBits)
			if !ok {
				return nil, fmt.Errorf("unexpected end of bitstream at value %d (bits)", i)
			}
			xor = meaningful << trailing
			prevTrailing = trailing
			prevMeaningBits = meaningBits
		}

		prevBits ^= xor
		values[i] = math.Float64frombits(prevBits)
	}

	return values, nil
}
