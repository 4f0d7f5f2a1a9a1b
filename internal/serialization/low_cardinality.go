package serialization

import (
	"errors"
	"fmt"
	"io"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/types"
)

const lowCardinalityVersion = 1

// lowCardinality keeps one dictionary of distinct keys per column for the
// whole part in the DictionaryKeys stream. Keys are appended to it the first
// time they are seen. The index stream holds one frame per SerializeBulk call:
//
//	[rows: varint]
//	[shared dictionary size when written: varint]
//	[additional keys: varint count + length prefixed strings]
//	[indices: varint each]
//
// Indices below the shared size address the shared dictionary, the rest
// address the frame's additional keys. Additional keys are used once the
// shared dictionary reached its maximum size.
type lowCardinality struct {
	typ *types.Type
}

type lowCardinalityDict struct {
	index map[string]uint64
	keys  []string
}

func newLowCardinality(_ *Registry, t *types.Type, codec compression.ValueCodec) (Serialization, error) {
	if t.Elem == nil || t.Elem.Kind != types.KindString {
		return nil, fmt.Errorf("LowCardinality supports only String, got %s", t)
	}
	if codec != compression.CodecPlain && codec != compression.CodecDictionary {
		return nil, fmt.Errorf("codec %s cannot encode %s", codec, t)
	}
	return &lowCardinality{typ: t}, nil
}

func (s *lowCardinality) Type() *types.Type { return s.typ }

func (s *lowCardinality) EnumerateStreams(path SubstreamPath, fn func(SubstreamPath)) {
	fn(path.Append(Substream{Kind: DictionaryKeys}))
	fn(path)
}

func (s *lowCardinality) dict(state *State) *lowCardinalityDict {
	if state.dict == nil {
		state.dict = &lowCardinalityDict{index: make(map[string]uint64)}
	}
	return state.dict
}

func (s *lowCardinality) SerializePrefix(path SubstreamPath, settings *SerializeSettings, state *State) error {
	s.dict(state)
	w := settings.Getter(path.Append(Substream{Kind: DictionaryKeys}))
	if w == nil {
		return nil
	}
	_, err := w.Write(compression.AppendVarint(nil, lowCardinalityVersion))
	return err
}

func (s *lowCardinality) SerializeSuffix(SubstreamPath, *SerializeSettings, *State) error {
	return nil
}

func (s *lowCardinality) SerializeBulk(col types.Column, offset, limit int, path SubstreamPath, settings *SerializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	if err := checkRange(col, offset, limit); err != nil {
		return err
	}
	if limit == 0 {
		return nil
	}
	values := col.(*types.StringColumn).Values[offset : offset+limit]
	dict := s.dict(state)

	maxSize := settings.MaxDictionarySize
	var newKeys []string
	for _, v := range values {
		if _, ok := dict.index[v]; ok {
			continue
		}
		if maxSize > 0 && len(dict.keys) >= maxSize {
			break
		}
		dict.index[v] = uint64(len(dict.keys))
		dict.keys = append(dict.keys, v)
		newKeys = append(newKeys, v)
	}

	if len(newKeys) > 0 {
		if w := settings.Getter(path.Append(Substream{Kind: DictionaryKeys})); w != nil {
			buf := compression.AppendVarint(nil, uint64(len(newKeys)))
			for _, k := range newKeys {
				buf = compression.AppendString(buf, k)
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}

	shared := uint64(len(dict.keys))
	var additional []string
	additionalIndex := make(map[string]uint64)
	indices := make([]uint64, len(values))
	for i, v := range values {
		if idx, ok := dict.index[v]; ok {
			indices[i] = idx
			continue
		}
		idx, ok := additionalIndex[v]
		if !ok {
			idx = shared + uint64(len(additional))
			additionalIndex[v] = idx
			additional = append(additional, v)
		}
		indices[i] = idx
	}

	w := settings.Getter(path)
	if w == nil {
		return nil
	}
	buf := compression.AppendVarint(nil, uint64(len(values)))
	buf = compression.AppendVarint(buf, shared)
	buf = compression.AppendVarint(buf, uint64(len(additional)))
	for _, k := range additional {
		buf = compression.AppendString(buf, k)
	}
	for _, idx := range indices {
		buf = compression.AppendVarint(buf, idx)
	}
	_, err := w.Write(buf)
	return err
}

// DeserializePrefix loads the whole shared dictionary. The DictionaryKeys
// stream must be positioned at its start.
func (s *lowCardinality) DeserializePrefix(path SubstreamPath, settings *DeserializeSettings, state *State) error {
	dict := s.dict(state)
	r := settings.Getter(path.Append(Substream{Kind: DictionaryKeys}))
	if r == nil {
		return fmt.Errorf("no dictionary stream for %s", path)
	}

	version, err := compression.ReadVarintFrom(r)
	if err != nil {
		return fmt.Errorf("read dictionary version: %w", unexpectedEOF(err))
	}
	if version != lowCardinalityVersion {
		return fmt.Errorf("unsupported dictionary version %d", version)
	}

	for {
		count, err := compression.ReadVarintFrom(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read dictionary frame: %w", err)
		}
		for i := uint64(0); i < count; i++ {
			key, err := readString(r)
			if err != nil {
				return fmt.Errorf("read dictionary key: %w", err)
			}
			dict.index[key] = uint64(len(dict.keys))
			dict.keys = append(dict.keys, key)
		}
	}
}

func (s *lowCardinality) DeserializeBulk(col types.MutableColumn, limit int, path SubstreamPath, settings *DeserializeSettings, state *State) error {
	if err := checkType(s, col); err != nil {
		return err
	}
	read, err := takePending(col, limit, state)
	if err != nil {
		return err
	}
	if read == limit {
		return nil
	}

	r := settings.Getter(path)
	if r == nil {
		return fmt.Errorf("no index stream for %s", path)
	}
	dict := s.dict(state)
	for read < limit {
		frame, err := s.readFrame(r, dict)
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

func (s *lowCardinality) readFrame(r Reader, dict *lowCardinalityDict) (types.MutableColumn, error) {
	var head [3]uint64
	for i := range head {
		v, err := compression.ReadVarintFrom(r)
		if err != nil {
			return nil, fmt.Errorf("read index frame header: %w", unexpectedEOF(err))
		}
		head[i] = v
	}
	rows, shared, extra := head[0], head[1], head[2]
	if shared > uint64(len(dict.keys)) {
		return nil, fmt.Errorf("index frame needs %d dictionary keys, %d loaded", shared, len(dict.keys))
	}

	additional := make([]string, extra)
	for i := range additional {
		key, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read additional key: %w", err)
		}
		additional[i] = key
	}

	frame := types.NewEmptyColumn(s.typ).(*types.StringColumn)
	frame.Values = make([]string, rows)
	for i := range frame.Values {
		idx, err := compression.ReadVarintFrom(r)
		if err != nil {
			return nil, fmt.Errorf("read index: %w", unexpectedEOF(err))
		}
		switch {
		case idx < shared:
			frame.Values[i] = dict.keys[idx]
		case idx-shared < extra:
			frame.Values[i] = additional[idx-shared]
		default:
			return nil, fmt.Errorf("index %d outside dictionary of %d+%d keys", idx, shared, extra)
		}
	}
	return frame, nil
}

func readString(r Reader) (string, error) {
	n, err := compression.ReadVarintFrom(r)
	if err != nil {
		return "", unexpectedEOF(err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", unexpectedEOF(err)
	}
	return string(b), nil
}
