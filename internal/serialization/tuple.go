package serialization

import (
	"fmt"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/types"
)

// tuple writes every element into its own group of streams
type tuple struct {
	typ      *types.Type
	elements []Serialization
}

func newTuple(r *Registry, t *types.Type, codec compression.ValueCodec) (Serialization, error) {
	if len(t.Fields) == 0 {
		return nil, fmt.Errorf("tuple without elements")
	}
	elements := make([]Serialization, len(t.Fields))
	for i, f := range t.Fields {
		s, err := r.Get(f.Type, codec)
		if err != nil {
			return nil, fmt.Errorf("tuple element %q: %w", f.Name, err)
		}
		elements[i] = s
	}
	return &tuple{typ: t, elements: elements}, nil
}

func (s *tuple) Type() *types.Type { return s.typ }

func (s *tuple) elementPath(path SubstreamPath, i int) SubstreamPath {
	return path.Append(Substream{Kind: TupleElement, Name: s.typ.Fields[i].Name})
}

func (s *tuple) EnumerateStreams(path SubstreamPath, fn func(SubstreamPath)) {
	for i, e := range s.elements {
		e.EnumerateStreams(s.elementPath(path, i), fn)
	}
}

func (s *tuple) SerializePrefix(path SubstreamPath, settings *SerializeSettings, state *State) error {
	for i, e := range s.elements {
		if err := e.SerializePrefix(s.elementPath(path, i), settings, state.child(i)); err != nil {
			return err
		}
	}
	return nil
}

func (s *tuple) SerializeSuffix(path SubstreamPath, settings *SerializeSettings, state *State) error {
	for i, e := range s.elements {
		if err := e.SerializeSuffix(s.elementPath(path, i), settings, state.child(i)); err != nil {
			return err
		}
	}
	return nil
}

func (s *tuple) DeserializePrefix(path SubstreamPath, settings *DeserializeSettings, state *State) error {
	for i, e := range s.elements {
		if err := e.DeserializePrefix(s.elementPath(path, i), settings, state.child(i)); err != nil {
			return err
		}
	}
	return nil
}

func (s *tuple) SerializeBulk(col types.Column, offset, limit int, path SubstreamPath, settings *SerializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	c := col.(*types.TupleColumn)
	for i, e := range s.elements {
		if err := e.SerializeBulk(c.Elements[i], offset, limit, s.elementPath(path, i), settings, state.child(i)); err != nil {
			return fmt.Errorf("tuple element %q: %w", s.typ.Fields[i].Name, err)
		}
	}
	return nil
}

func (s *tuple) DeserializeBulk(col types.MutableColumn, limit int, path SubstreamPath, settings *DeserializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	c := col.(*types.TupleColumn)
	for i, e := range s.elements {
		if err := e.DeserializeBulk(c.Elements[i], limit, s.elementPath(path, i), settings, state.child(i)); err != nil {
			return fmt.Errorf("tuple element %q: %w", s.typ.Fields[i].Name, err)
		}
	}
	return nil
}
