package serialization

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/types"
)

// plain serializes scalar columns into a single stream. With the plain codec
// fixed-size values take their natural little-endian width and strings are
// length prefixed. Any other codec writes one frame per SerializeBulk call:
//
//	[payload length: varint][encoder payload, starting with the 4-byte row count]
type plain struct {
	typ   *types.Type
	codec compression.ValueCodec
	width int
}

func newPlain(_ *Registry, t *types.Type, codec compression.ValueCodec) (Serialization, error) {
	if err := checkCodec(t, codec); err != nil {
		return nil, err
	}
	width, _ := t.FixedSize()
	return &plain{typ: t, codec: codec, width: width}, nil
}

// checkCodec rejects codecs that cannot encode values of t
func checkCodec(t *types.Type, codec compression.ValueCodec) error {
	ok := false
	switch codec {
	case compression.CodecPlain:
		ok = true
	case compression.CodecDelta:
		ok = t.IsSigned() || t.IsUnsigned()
	case compression.CodecGorilla:
		ok = t.IsFloat()
	case compression.CodecDictionary:
		ok = t.Kind == types.KindString
	case compression.CodecBitmap:
		ok = t.Kind == types.KindBool
	}
	if !ok {
		return fmt.Errorf("codec %s cannot encode %s", codec, t)
	}
	return nil
}

func (s *plain) Type() *types.Type { return s.typ }

// Codec returns the value codec of the stream
func (s *plain) Codec() compression.ValueCodec { return s.codec }

func (s *plain) EnumerateStreams(path SubstreamPath, fn func(SubstreamPath)) {
	fn(path)
}

func (s *plain) SerializePrefix(SubstreamPath, *SerializeSettings, *State) error { return nil }
func (s *plain) SerializeSuffix(SubstreamPath, *SerializeSettings, *State) error { return nil }
func (s *plain) DeserializePrefix(SubstreamPath, *DeserializeSettings, *State) error {
	return nil
}

func (s *plain) SerializeBulk(col types.Column, offset, limit int, path SubstreamPath, settings *SerializeSettings, _ *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	if err := checkRange(col, offset, limit); err != nil {
		return err
	}
	w := settings.Getter(path)
	if w == nil || limit == 0 {
		return nil
	}

	var buf []byte
	if s.codec == compression.CodecPlain {
		buf = s.appendPlain(nil, col, offset, limit)
	} else {
		payload := s.appendEncoded(nil, col, offset, limit)
		buf = compression.AppendVarint(make([]byte, 0, len(payload)+binary.MaxVarintLen64), uint64(len(payload)))
		buf = append(buf, payload...)
	}
	_, err := w.Write(buf)
	return err
}

func (s *plain) appendPlain(buf []byte, col types.Column, offset, limit int) []byte {
	switch c := col.(type) {
	case *types.IntColumn:
		for _, v := range c.Values[offset : offset+limit] {
			buf = appendFixed(buf, uint64(v), s.width)
		}
	case *types.UIntColumn:
		for _, v := range c.Values[offset : offset+limit] {
			buf = appendFixed(buf, v, s.width)
		}
	case *types.FloatColumn:
		for _, v := range c.Values[offset : offset+limit] {
			if s.width == 4 {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
			} else {
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
			}
		}
	case *types.BoolColumn:
		for _, v := range c.Values[offset : offset+limit] {
			if v {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	case *types.StringColumn:
		for _, v := range c.Values[offset : offset+limit] {
			buf = compression.AppendString(buf, v)
		}
	}
	return buf
}

func (s *plain) appendEncoded(buf []byte, col types.Column, offset, limit int) []byte {
	switch c := col.(type) {
	case *types.IntColumn:
		return compression.NewDeltaEncoder().EncodeInt64(buf, c.Values[offset:offset+limit])
	case *types.UIntColumn:
		return compression.NewDeltaEncoder().EncodeUint64(buf, c.Values[offset:offset+limit])
	case *types.FloatColumn:
		return compression.NewGorillaEncoder().EncodeFloat64(buf, c.Values[offset:offset+limit])
	case *types.StringColumn:
		return compression.NewDictionaryEncoder().EncodeStrings(buf, c.Values[offset:offset+limit])
	case *types.BoolColumn:
		return compression.NewBoolEncoder().EncodeBool(buf, c.Values[offset:offset+limit])
	}
	return buf
}

func appendFixed(buf []byte, v uint64, width int) []byte {
	switch width {
	case 1:
		return append(buf, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(buf, v)
	}
}

func readFixed(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

// signExtend restores the sign of a value read with a narrower width
func signExtend(v uint64, width int) int64 {
	shift := uint(64 - width*8)
	return int64(v<<shift) >> shift
}

func (s *plain) DeserializeBulk(col types.MutableColumn, limit int, path SubstreamPath, settings *DeserializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	if limit == 0 {
		return nil
	}
	r := settings.Getter(path)
	if r == nil {
		return fmt.Errorf("no stream for %s", path)
	}
	if s.codec != compression.CodecPlain {
		return s.deserializeFrames(col, limit, r, state)
	}

	if s.typ.Kind == types.KindString {
		c := col.(*types.StringColumn)
		for i := 0; i < limit; i++ {
			n, err := compression.ReadVarintFrom(r)
			if err != nil {
				return fmt.Errorf("read string length: %w", unexpectedEOF(err))
			}
			b := make([]byte, n)
			if _, err := io.ReadFull(r, b); err != nil {
				return fmt.Errorf("read string: %w", unexpectedEOF(err))
			}
			c.Values = append(c.Values, string(b))
		}
		return nil
	}

	data := make([]byte, limit*s.width)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read %d values of %s: %w", limit, s.typ, unexpectedEOF(err))
	}
	for i := 0; i < limit; i++ {
		raw := readFixed(data[i*s.width:], s.width)
		switch c := col.(type) {
		case *types.IntColumn:
			c.Values = append(c.Values, signExtend(raw, s.width))
		case *types.UIntColumn:
			c.Values = append(c.Values, raw)
		case *types.FloatColumn:
			if s.width == 4 {
				c.Values = append(c.Values, float64(math.Float32frombits(uint32(raw))))
			} else {
				c.Values = append(c.Values, math.Float64frombits(raw))
			}
		case *types.BoolColumn:
			c.Values = append(c.Values, raw != 0)
		}
	}
	return nil
}

func (s *plain) deserializeFrames(col types.MutableColumn, limit int, r Reader, state *State) error {
	read, err := takePending(col, limit, state)
	if err != nil {
		return err
	}
	for read < limit {
		frame, err := s.readFrame(r)
		if err != nil {
			return err
		}
		n, err := appendFrame(col, frame, limit-read, state)
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

func (s *plain) readFrame(r Reader) (types.MutableColumn, error) {
	size, err := compression.ReadVarintFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read %s frame length: %w", s.codec, unexpectedEOF(err))
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read %s frame: %w", s.codec, unexpectedEOF(err))
	}
	if len(payload) < 4 {
		return nil, fmt.Errorf("%s frame of %d bytes has no row count", s.codec, len(payload))
	}
	count := int(binary.LittleEndian.Uint32(payload))

	frame := types.NewEmptyColumn(s.typ)
	switch c := frame.(type) {
	case *types.IntColumn:
		c.Values, err = compression.NewDeltaEncoder().DecodeInt64(payload, count)
	case *types.UIntColumn:
		c.Values, err = compression.NewDeltaEncoder().DecodeUint64(payload, count)
	case *types.FloatColumn:
		c.Values, err = compression.NewGorillaEncoder().DecodeFloat64(payload, count)
	case *types.StringColumn:
		c.Values, err = compression.NewDictionaryEncoder().DecodeStrings(payload, count)
	case *types.BoolColumn:
		c.Values, err = compression.NewBoolEncoder().DecodeBool(payload, count)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s frame: %w", s.codec, err)
	}
	return frame, nil
}
