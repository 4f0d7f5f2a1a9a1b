package serialization

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/types"
)

type memStreams map[string]*bytes.Buffer

func (m memStreams) writeSettings(column string, maxDict int) *SerializeSettings {
	return &SerializeSettings{
		Getter: func(path SubstreamPath) io.Writer {
			name := StreamName(column, path)
			if m[name] == nil {
				m[name] = &bytes.Buffer{}
			}
			return m[name]
		},
		MaxDictionarySize: maxDict,
	}
}

func (m memStreams) readSettings(column string) *DeserializeSettings {
	readers := make(map[string]*bytes.Reader)
	return &DeserializeSettings{
		Getter: func(path SubstreamPath) Reader {
			name := StreamName(column, path)
			if readers[name] == nil {
				buf, ok := m[name]
				if !ok {
					return nil
				}
				readers[name] = bytes.NewReader(buf.Bytes())
			}
			return readers[name]
		},
	}
}

// roundTrip serializes col in chunks of the given sizes, then reads it
// back with a different chunking
func roundTrip(t *testing.T, col types.Column, codec compression.ValueCodec, writeChunks, readChunks []int) (types.MutableColumn, memStreams) {
	t.Helper()
	s, err := DefaultRegistry().Get(col.Type(), codec)
	require.NoError(t, err)

	streams := memStreams{}
	ws := streams.writeSettings("c", 0)
	wstate := NewState()
	require.NoError(t, s.SerializePrefix(nil, ws, wstate))
	offset := 0
	for _, n := range writeChunks {
		require.NoError(t, s.SerializeBulk(col, offset, n, nil, ws, wstate))
		offset += n
	}
	require.Equal(t, col.Len(), offset)
	require.NoError(t, s.SerializeSuffix(nil, ws, wstate))

	out := types.NewEmptyColumn(col.Type())
	rs := streams.readSettings("c")
	rstate := NewState()
	require.NoError(t, s.DeserializePrefix(nil, rs, rstate))
	for _, n := range readChunks {
		require.NoError(t, s.DeserializeBulk(out, n, nil, rs, rstate))
	}
	return out, streams
}

func TestPlain_FixedWidthRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		col   types.Column
		width int
	}{
		{"Int8", types.NewIntColumn(types.Scalar(types.KindInt8), []int64{-128, -1, 0, 127}), 1},
		{"Int16", types.NewIntColumn(types.Scalar(types.KindInt16), []int64{-300, 300, 0, 1}), 2},
		{"Int64", types.NewInt64Column(-1, 1<<40, 0, 5), 8},
		{"UInt32", types.NewUIntColumn(types.Scalar(types.KindUInt32), []uint64{0, 1, 1 << 31, 4294967295}), 4},
		{"Float32", types.NewFloatColumn(types.Scalar(types.KindFloat32), []float64{0.5, -2, 1024, 0}), 4},
		{"Float64", types.NewFloat64Column(3.25, -1e300, 0, 7), 8},
		{"Bool", types.NewBoolColumn(true, false, true, true), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, streams := roundTrip(t, tt.col, compression.CodecPlain, []int{3, 1}, []int{1, 3})
			assert.Equal(t, tt.col, out)
			assert.Equal(t, 4*tt.width, streams["c"].Len())
		})
	}
}

func TestPlain_StringRoundTrip(t *testing.T) {
	col := types.NewStringColumn("", "a", strings.Repeat("x", 300), "unicode ü")
	out, _ := roundTrip(t, col, compression.CodecPlain, []int{2, 2}, []int{4})
	assert.Equal(t, col, out)
}

func TestPlain_CodecFramesAcrossCalls(t *testing.T) {
	tests := []struct {
		name  string
		col   types.Column
		codec compression.ValueCodec
	}{
		{"Delta", types.NewInt64Column(10, 20, 30, 40, 50, 60, 70), compression.CodecDelta},
		{"DeltaUInt8", types.NewUIntColumn(types.Scalar(types.KindUInt8), []uint64{255, 0, 3, 4, 5, 6, 7}), compression.CodecDelta},
		{"Gorilla", types.NewFloat64Column(1.5, 1.5, 2.5, 3.75, -1, 0, 9), compression.CodecGorilla},
		{"Dictionary", types.NewStringColumn("a", "b", "a", "a", "c", "b", "a"), compression.CodecDictionary},
		{"Bitmap", types.NewBoolColumn(true, false, false, true, true, false, true), compression.CodecBitmap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// frames of 3 and 4 rows, read back as 2, 2, 3
			out, _ := roundTrip(t, tt.col, tt.codec, []int{3, 4}, []int{2, 2, 3})
			assert.Equal(t, tt.col, out)
		})
	}
}

func TestRegistry_RejectsIncompatibleCodec(t *testing.T) {
	tests := []struct {
		typ   string
		codec compression.ValueCodec
	}{
		{"Float64", compression.CodecDelta},
		{"Int64", compression.CodecGorilla},
		{"Int64", compression.CodecDictionary},
		{"String", compression.CodecBitmap},
		{"Array(String)", compression.CodecDelta},
		{"LowCardinality(String)", compression.CodecGorilla},
	}
	for _, tt := range tests {
		typ, err := types.ParseType(tt.typ)
		require.NoError(t, err)
		_, err = DefaultRegistry().Get(typ, tt.codec)
		assert.Error(t, err, "%s with %s", tt.typ, tt.codec)
	}
}

func TestSerializeBulk_TypeMismatch(t *testing.T) {
	s, err := DefaultRegistry().Get(types.Int64(), compression.CodecPlain)
	require.NoError(t, err)

	err = s.SerializeBulk(types.NewStringColumn("x"), 0, 1, nil, memStreams{}.writeSettings("c", 0), NewState())
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNullable_NullMapAndDefaults(t *testing.T) {
	col := types.NewEmptyColumn(types.Nullable(types.Int64())).(*types.NullableColumn)
	src := types.NewInt64Column(0, 0, 7, 0, 9)
	for i, isNull := range []bool{true, true, false, true, false} {
		if isNull {
			col.AppendNull()
		} else {
			require.NoError(t, col.AppendValue(src, i))
		}
	}

	out, streams := roundTrip(t, col, compression.CodecPlain, []int{5}, []int{5})
	assert.Equal(t, []byte{1, 1, 0, 1, 0}, streams["c.null"].Bytes())
	require.Equal(t, 5*8, streams["c"].Len())

	got := out.(*types.NullableColumn)
	assert.Equal(t, []bool{true, true, false, true, false}, got.NullMap)
	assert.Equal(t, []int64{0, 0, 7, 0, 9}, got.Nested.(*types.IntColumn).Values)
}

func TestArray_SizesAndElements(t *testing.T) {
	elems := types.NewStringColumn("a", "b", "c", "d", "e", "f")
	col, err := types.NewArrayColumn(elems, []uint64{2, 2, 5, 6})
	require.NoError(t, err)

	out, streams := roundTrip(t, col, compression.CodecPlain, []int{1, 2, 1}, []int{3, 1})
	assert.Equal(t, col, out)

	sizes := streams["c.size0"].Bytes()
	require.Len(t, sizes, 4*8)
	var sum uint64
	for i := 0; i < 4; i++ {
		sum += uint64(sizes[i*8])
	}
	assert.Equal(t, uint64(elems.Len()), sum)
}

func TestNestedArrayOfNullable_StreamNames(t *testing.T) {
	typ, err := types.ParseType("Array(Tuple(a Nullable(Int64), b Array(LowCardinality(String))))")
	require.NoError(t, err)
	s, err := DefaultRegistry().Get(typ, compression.CodecPlain)
	require.NoError(t, err)

	var names []string
	for _, st := range ColumnStreams("col x", s) {
		names = append(names, st.FullName)
	}
	assert.Equal(t, []string{
		"col%20x.size0",
		"col%20x.a.null",
		"col%20x.a",
		"col%20x.b.size1",
		"col%20x.b.dict",
		"col%20x.b",
	}, names)
}

func TestTuple_RoundTrip(t *testing.T) {
	col, err := types.NewTupleColumn([]string{"id", "tags"}, []types.MutableColumn{
		types.NewUInt64Column(1, 2, 3),
		func() types.MutableColumn {
			a, err := types.NewArrayColumn(types.NewInt64Column(5, 6, 7), []uint64{0, 2, 3})
			require.NoError(t, err)
			return a
		}(),
	})
	require.NoError(t, err)

	out, streams := roundTrip(t, col, compression.CodecDelta, []int{2, 1}, []int{3})
	assert.Equal(t, col, out)
	assert.Contains(t, streams, "c.id")
	assert.Contains(t, streams, "c.tags.size0")
	assert.Contains(t, streams, "c.tags")
}

func TestLowCardinality_SharedDictionary(t *testing.T) {
	col := types.NewLowCardinalityColumn("get", "put", "get", "get", "delete", "put", "get")

	out, streams := roundTrip(t, col, compression.CodecPlain, []int{3, 2, 2}, []int{4, 3})
	assert.Equal(t, col, out)

	// version, then frames of new keys {get, put} and {delete}
	dict := streams["c.dict"].Bytes()
	assert.Equal(t, byte(lowCardinalityVersion), dict[0])
	assert.Equal(t, 1+(1+4+4)+(1+7), len(dict))
}

func TestLowCardinality_AdditionalKeysBeyondMaxSize(t *testing.T) {
	col := types.NewLowCardinalityColumn("a", "b", "c", "d", "a", "c", "e", "e")
	s, err := DefaultRegistry().Get(col.Type(), compression.CodecPlain)
	require.NoError(t, err)

	streams := memStreams{}
	ws := streams.writeSettings("c", 2)
	state := NewState()
	require.NoError(t, s.SerializePrefix(nil, ws, state))
	require.NoError(t, s.SerializeBulk(col, 0, 4, nil, ws, state))
	require.NoError(t, s.SerializeBulk(col, 4, 4, nil, ws, state))
	assert.Equal(t, []string{"a", "b"}, state.dict.keys)

	out := types.NewEmptyColumn(col.Type())
	rs := streams.readSettings("c")
	rstate := NewState()
	require.NoError(t, s.DeserializePrefix(nil, rs, rstate))
	require.NoError(t, s.DeserializeBulk(out, 8, nil, rs, rstate))
	assert.Equal(t, col.Values, out.(*types.StringColumn).Values)
}

func TestDeserialize_TruncatedStream(t *testing.T) {
	col := types.NewInt64Column(1, 2, 3)
	s, err := DefaultRegistry().Get(col.Type(), compression.CodecPlain)
	require.NoError(t, err)

	streams := memStreams{}
	require.NoError(t, s.SerializeBulk(col, 0, 3, nil, streams.writeSettings("c", 0), NewState()))

	out := types.NewEmptyColumn(col.Type())
	err = s.DeserializeBulk(out, 4, nil, streams.readSettings("c"), NewState())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
