package serialization

import (
	"errors"
	"fmt"
	"io"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/types"
)

// ErrTypeMismatch is returned when a column does not match the type the
// serialization was built for
var ErrTypeMismatch = errors.New("column type mismatch")

// Reader is a decompressed stream that can also be read byte by byte
type Reader interface {
	io.Reader
	io.ByteReader
}

// SerializeSettings resolves the output stream of every substream. A nil
// writer skips the substream.
type SerializeSettings struct {
	Getter func(path SubstreamPath) io.Writer

	// Keys beyond this size of a LowCardinality dictionary are written with
	// every granule instead of being added to the shared dictionary
	MaxDictionarySize int
}

// DeserializeSettings resolves the input stream of every substream
type DeserializeSettings struct {
	Getter func(path SubstreamPath) Reader
}

// State carries per-column serialization state across SerializeBulk and
// DeserializeBulk calls. It is created once per column and never reset
// while a part is written or read.
type State struct {
	children []*State

	dict    *lowCardinalityDict
	pending types.MutableColumn
}

func NewState() *State {
	return &State{}
}

func (s *State) child(i int) *State {
	for len(s.children) <= i {
		s.children = append(s.children, &State{})
	}
	return s.children[i]
}

// Serialization writes and reads one logical type as a set of substreams
type Serialization interface {
	Type() *types.Type

	// EnumerateStreams calls fn for every physical substream, in write order
	EnumerateStreams(path SubstreamPath, fn func(path SubstreamPath))

	SerializePrefix(path SubstreamPath, settings *SerializeSettings, state *State) error
	// SerializeBulk writes rows [offset, offset+limit) of col
	SerializeBulk(col types.Column, offset, limit int, path SubstreamPath, settings *SerializeSettings, state *State) error
	SerializeSuffix(path SubstreamPath, settings *SerializeSettings, state *State) error

	DeserializePrefix(path SubstreamPath, settings *DeserializeSettings, state *State) error
	// DeserializeBulk appends exactly limit rows to col
	DeserializeBulk(col types.MutableColumn, limit int, path SubstreamPath, settings *DeserializeSettings, state *State) error
}

// Factory builds the serialization of t. Wrapper kinds use the registry to
// build their nested serializations.
type Factory func(r *Registry, t *types.Type, codec compression.ValueCodec) (Serialization, error)

// Registry maps a type kind to the factory of its serialization
type Registry struct {
	factories map[types.Kind]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[types.Kind]Factory)}
}

func (r *Registry) Register(kind types.Kind, f Factory) {
	r.factories[kind] = f
}

// Get returns the serialization of t. codec applies to the value stream of
// the innermost scalar type.
func (r *Registry) Get(t *types.Type, codec compression.ValueCodec) (Serialization, error) {
	f, ok := r.factories[t.Kind]
	if !ok {
		return nil, fmt.Errorf("no serialization registered for %s", t)
	}
	return f(r, t, codec)
}

var defaultRegistry = newDefaultRegistry()

// DefaultRegistry returns the registry of all built-in serializations
func DefaultRegistry() *Registry {
	return defaultRegistry
}

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, k := range []types.Kind{
		types.KindInt8, types.KindInt16, types.KindInt32, types.KindInt64,
		types.KindUInt8, types.KindUInt16, types.KindUInt32, types.KindUInt64,
		types.KindFloat32, types.KindFloat64, types.KindBool, types.KindString,
	} {
		r.Register(k, newPlain)
	}
	r.Register(types.KindNullable, newNullable)
	r.Register(types.KindArray, newArray)
	r.Register(types.KindTuple, newTuple)
	r.Register(types.KindLowCardinality, newLowCardinality)
	return r
}

// StreamInfo describes one physical substream of a column
type StreamInfo struct {
	Path     SubstreamPath
	FullName string
}

// ColumnStreams lists the substreams of a column with their full names
func ColumnStreams(column string, s Serialization) []StreamInfo {
	var out []StreamInfo
	s.EnumerateStreams(nil, func(path SubstreamPath) {
		out = append(out, StreamInfo{Path: path.Clone(), FullName: StreamName(column, path)})
	})
	return out
}

func checkType(s Serialization, col types.Column) error {
	if !col.Type().Equal(s.Type()) {
		return fmt.Errorf("%w: serialization of %s got column of %s", ErrTypeMismatch, s.Type(), col.Type())
	}
	return nil
}

func checkRange(col types.Column, offset, limit int) error {
	if offset < 0 || limit < 0 || offset+limit > col.Len() {
		return fmt.Errorf("row range [%d, %d) outside column of %d rows", offset, offset+limit, col.Len())
	}
	return nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// takePending moves up to limit rows left over from a previous frame into col
func takePending(col types.MutableColumn, limit int, state *State) (int, error) {
	if state.pending == nil || state.pending.Len() == 0 {
		return 0, nil
	}
	n := min(limit, state.pending.Len())
	if err := col.AppendRange(state.pending, 0, n); err != nil {
		return 0, err
	}
	rest := types.NewEmptyColumn(state.pending.Type())
	if err := rest.AppendRange(state.pending, n, state.pending.Len()-n); err != nil {
		return 0, err
	}
	state.pending = rest
	return n, nil
}

// appendFrame moves the decoded rows of one frame into col, keeping rows
// beyond limit for the next call
func appendFrame(col types.MutableColumn, frame types.MutableColumn, limit int, state *State) (int, error) {
	n := min(limit, frame.Len())
	if err := col.AppendRange(frame, 0, n); err != nil {
		return 0, err
	}
	if n < frame.Len() {
		rest := types.NewEmptyColumn(frame.Type())
		if err := rest.AppendRange(frame, n, frame.Len()-n); err != nil {
			return 0, err
		}
		state.pending = rest
	}
	return n, nil
}
