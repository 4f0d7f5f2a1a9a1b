package serialization

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/types"
)

// array writes the size of every row as a uint64 into the sizes stream and the
// flattened elements of the same rows into the nested streams. The element
// range of a granule is derived from the cumulative offsets.
type array struct {
	typ    *types.Type
	nested Serialization
}

func newArray(r *Registry, t *types.Type, codec compression.ValueCodec) (Serialization, error) {
	nested, err := r.Get(t.Elem, codec)
	if err != nil {
		return nil, err
	}
	return &array{typ: t, nested: nested}, nil
}

func (s *array) Type() *types.Type { return s.typ }

func (s *array) EnumerateStreams(path SubstreamPath, fn func(SubstreamPath)) {
	fn(path.Append(Substream{Kind: ArraySizes}))
	s.nested.EnumerateStreams(path.Append(Substream{Kind: ArrayElements}), fn)
}

func (s *array) SerializePrefix(path SubstreamPath, settings *SerializeSettings, state *State) error {
	return s.nested.SerializePrefix(path.Append(Substream{Kind: ArrayElements}), settings, state.child(0))
}

func (s *array) SerializeSuffix(path SubstreamPath, settings *SerializeSettings, state *State) error {
	return s.nested.SerializeSuffix(path.Append(Substream{Kind: ArrayElements}), settings, state.child(0))
}

func (s *array) DeserializePrefix(path SubstreamPath, settings *DeserializeSettings, state *State) error {
	return s.nested.DeserializePrefix(path.Append(Substream{Kind: ArrayElements}), settings, state.child(0))
}

func (s *array) SerializeBulk(col types.Column, offset, limit int, path SubstreamPath, settings *SerializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	if err := checkRange(col, offset, limit); err != nil {
		return err
	}
	c := col.(*types.ArrayColumn)
	if limit == 0 {
		return nil
	}

	if w := settings.Getter(path.Append(Substream{Kind: ArraySizes})); w != nil {
		buf := make([]byte, 0, limit*8)
		for i := offset; i < offset+limit; i++ {
			buf = binary.LittleEndian.AppendUint64(buf, c.SizeAt(i))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}

	start := c.OffsetAt(offset)
	end := c.Offsets[offset+limit-1]
	return s.nested.SerializeBulk(c.Elements, int(start), int(end-start), path.Append(Substream{Kind: ArrayElements}), settings, state.child(0))
}

func (s *array) DeserializeBulk(col types.MutableColumn, limit int, path SubstreamPath, settings *DeserializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	c := col.(*types.ArrayColumn)
	if limit == 0 {
		return nil
	}

	r := settings.Getter(path.Append(Substream{Kind: ArraySizes}))
	if r == nil {
		return fmt.Errorf("no sizes stream for %s", path)
	}
	buf := make([]byte, limit*8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read array sizes: %w", unexpectedEOF(err))
	}
	sizes := make([]uint64, limit)
	var total uint64
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint64(buf[i*8:])
		total += sizes[i]
	}

	if err := s.nested.DeserializeBulk(c.Elements, int(total), path.Append(Substream{Kind: ArrayElements}), settings, state.child(0)); err != nil {
		return err
	}
	c.AppendSizes(sizes)
	return nil
}
