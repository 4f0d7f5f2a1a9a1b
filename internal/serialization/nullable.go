package serialization

import (
	"fmt"
	"io"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/types"
)

// nullable writes a one-byte-per-row null map next to the nested values.
// Null rows hold the nested type's default value.
type nullable struct {
	typ    *types.Type
	nested Serialization
}

func newNullable(r *Registry, t *types.Type, codec compression.ValueCodec) (Serialization, error) {
	nested, err := r.Get(t.Elem, codec)
	if err != nil {
		return nil, err
	}
	return &nullable{typ: t, nested: nested}, nil
}

func (s *nullable) Type() *types.Type { return s.typ }

func (s *nullable) EnumerateStreams(path SubstreamPath, fn func(SubstreamPath)) {
	fn(path.Append(Substream{Kind: NullMap}))
	s.nested.EnumerateStreams(path.Append(Substream{Kind: NullableElements}), fn)
}

func (s *nullable) SerializePrefix(path SubstreamPath, settings *SerializeSettings, state *State) error {
	return s.nested.SerializePrefix(path.Append(Substream{Kind: NullableElements}), settings, state.child(0))
}

func (s *nullable) SerializeSuffix(path SubstreamPath, settings *SerializeSettings, state *State) error {
	return s.nested.SerializeSuffix(path.Append(Substream{Kind: NullableElements}), settings, state.child(0))
}

func (s *nullable) DeserializePrefix(path SubstreamPath, settings *DeserializeSettings, state *State) error {
	return s.nested.DeserializePrefix(path.Append(Substream{Kind: NullableElements}), settings, state.child(0))
}

func (s *nullable) SerializeBulk(col types.Column, offset, limit int, path SubstreamPath, settings *SerializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	if err := checkRange(col, offset, limit); err != nil {
		return err
	}
	c := col.(*types.NullableColumn)

	if w := settings.Getter(path.Append(Substream{Kind: NullMap})); w != nil && limit > 0 {
		buf := make([]byte, limit)
		for i, isNull := range c.NullMap[offset : offset+limit] {
			if isNull {
				buf[i] = 1
			}
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return s.nested.SerializeBulk(c.Nested, offset, limit, path.Append(Substream{Kind: NullableElements}), settings, state.child(0))
}

func (s *nullable) DeserializeBulk(col types.MutableColumn, limit int, path SubstreamPath, settings *DeserializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	c := col.(*types.NullableColumn)
	if limit == 0 {
		return nil
	}

	r := settings.Getter(path.Append(Substream{Kind: NullMap}))
	if r == nil {
		return fmt.Errorf("no null map stream for %s", path)
	}
	buf := make([]byte, limit)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read null map: %w", unexpectedEOF(err))
	}
	for _, b := range buf {
		c.NullMap = append(c.NullMap, b != 0)
	}
	return s.nested.DeserializeBulk(c.Nested, limit, path.Append(Substream{Kind: NullableElements}), settings, state.child(0))
}
