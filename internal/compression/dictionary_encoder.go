package compression

import (
	"encoding/binary"
	"fmt"
)

// DictionaryEncoder implements dictionary encoding for string values.
// Builds a dictionary of unique strings and stores varint indices.
//
// Wire format:
//
//	[count: 4 bytes LE]
//	[dictionary size: 4 bytes LE]
//	[dictionary entries: 4 bytes LE length + bytes]
//	[varint indices: count values]
type DictionaryEncoder struct{}

func NewDictionaryEncoder() *DictionaryEncoder {
	return &DictionaryEncoder{}
}

func (e *DictionaryEncoder) Codec() ValueCodec {
	return CodecDictionary
}

// EncodeStrings appends the encoded form of values to dst
func (e *DictionaryEncoder) EncodeStrings(dst []byte, values []string) []byte {
	indices, dictList := BuildDictionary(values)

	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(values)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(dictList)))
	for _, s := range dictList {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s)))
		dst = append(dst, s...)
	}
	for _, idx := range indices {
		dst = AppendVarint(dst, uint64(idx))
	}
	return dst
}

// BuildDictionary assigns each distinct value an index in order of first appearance
func BuildDictionary(values []string) ([]uint32, []string) {
	indices := make([]uint32, len(values))
	dictList := make([]string, 0, 8)

	// For small dictionaries linear scan beats map hash. Columns with few
	// distinct values (status codes, hosts) stay on the linear path.
	const mapThreshold = 32
	var dict map[string]uint32

	var lastStr string
	var lastIdx uint32
	var lastValid bool

	for i, s := range values {
		if lastValid && s == lastStr {
			indices[i] = lastIdx
			continue
		}

		var idx uint32
		var found bool
		if dict != nil {
			idx, found = dict[s]
		} else {
			for j, ds := range dictList {
				if ds == s {
					idx, found = uint32(j), true
					break
				}
			}
		}

		if !found {
			idx = uint32(len(dictList))
			dictList = append(dictList, s)
			if dict == nil && len(dictList) > mapThreshold {
				dict = make(map[string]uint32, len(dictList)*2)
				for j, ds := range dictList {
					dict[ds] = uint32(j)
				}
			} else if dict != nil {
				dict[s] = idx
			}
		}

		indices[i] = idx
		lastStr, lastIdx, lastValid = s, idx, true
	}
	return indices, dictList
}

// DecodeStrings decodes exactly count values
func (e *DictionaryEncoder) DecodeStrings(data []byte, count int) ([]string, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("data too short for header")
	}
	storedCount := binary.LittleEndian.Uint32(data)
	if int(storedCount) != count {
		return nil, fmt.Errorf("count mismatch: expected %d, got %d", count, storedCount)
	}
	dictSize := binary.LittleEndian.Uint32(data[4:])
	offset := 8

	dictList := make([]string, dictSize)
	for i := range dictList {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("data too short for dict entry length")
		}
		sLen := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if offset+sLen > len(data) {
			return nil, fmt.Errorf("data too short for dict entry")
		}
		dictList[i] = string(data[offset : offset+sLen])
		offset += sLen
	}

	values := make([]string, count)
	for i := range values {
		idx, n := ReadVarint(data[offset:])
		if n <= 0 {
			return nil, fmt.Errorf("failed to read varint at position %d", i)
		}
		offset += n
		if idx >= uint64(len(dictList)) {
			return nil, fmt.Errorf("dictionary index out of range: %d >= %d", idx, len(dictList))
		}
		values[i] = dictList[idx]
	}
	if offset != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after dictionary indices", len(data)-offset)
	}
	return values, nil
}
