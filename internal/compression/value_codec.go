package compression

import (
	"fmt"
	"strings"
)

// ValueCodec selects how the values of one granule are laid out inside the
// compressed stream of a column
type ValueCodec uint8

const (
	// CodecPlain stores values with their natural fixed width or length prefix
	CodecPlain ValueCodec = iota
	// CodecDelta applies DeltaEncoder to integer columns
	CodecDelta
	// CodecGorilla applies GorillaEncoder to float columns
	CodecGorilla
	// CodecDictionary applies DictionaryEncoder to string columns
	CodecDictionary
	// CodecBitmap applies BoolEncoder to bool columns
	CodecBitmap
)

var valueCodecNames = []string{"plain", "delta", "gorilla", "dictionary", "bitmap"}

func (c ValueCodec) String() string {
	if int(c) < len(valueCodecNames) {
		return valueCodecNames[c]
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// ParseValueCodec maps a configuration value to a ValueCodec
func ParseValueCodec(name string) (ValueCodec, error) {
	for i, n := range valueCodecNames {
		if n == strings.ToLower(name) {
			return ValueCodec(i), nil
		}
	}
	return CodecPlain, fmt.Errorf("unknown column codec: %q", name)
}
