package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType_RoundTrip(t *testing.T) {
	tests := []string{
		"Int64",
		"UInt8",
		"Float32",
		"String",
		"Bool",
		"Nullable(Int64)",
		"Array(Nullable(String))",
		"Array(Array(UInt32))",
		"LowCardinality(String)",
		"Tuple(a UInt8, b Array(String))",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			typ, err := ParseType(name)
			require.NoError(t, err)
			assert.Equal(t, name, typ.String())

			again, err := ParseType(typ.String())
			require.NoError(t, err)
			assert.True(t, typ.Equal(again))
		})
	}
}

func TestParseType_UnnamedTupleElements(t *testing.T) {
	typ, err := ParseType("Tuple(Int64, Array(String))")
	require.NoError(t, err)
	require.Len(t, typ.Fields, 2)
	assert.Equal(t, "1", typ.Fields[0].Name)
	assert.Equal(t, "2", typ.Fields[1].Name)
	assert.Equal(t, KindArray, typ.Fields[1].Type.Kind)
}

func TestParseType_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown type", "Decimal"},
		{"unclosed", "Array(Int64"},
		{"trailing input", "Int64)"},
		{"nullable of array", "Nullable(Array(Int64))"},
		{"low cardinality of number", "LowCardinality(Int64)"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseType(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestType_FixedSize(t *testing.T) {
	tests := []struct {
		typ   *Type
		size  int
		fixed bool
	}{
		{Scalar(KindInt8), 1, true},
		{Scalar(KindUInt16), 2, true},
		{Scalar(KindFloat32), 4, true},
		{Int64(), 8, true},
		{Bool(), 1, true},
		{String(), 0, false},
		{Nullable(Int64()), 0, false},
	}

	for _, tt := range tests {
		size, fixed := tt.typ.FixedSize()
		assert.Equal(t, tt.size, size, tt.typ.String())
		assert.Equal(t, tt.fixed, fixed, tt.typ.String())
	}
}

func TestNamesAndTypes_RoundTrip(t *testing.T) {
	cols := NamesAndTypes{
		{Name: "id", Type: UInt64()},
		{Name: "tags", Type: Array(String())},
		{Name: "weird name", Type: Nullable(Float64())},
	}

	parsed, err := ParseNamesAndTypes(cols.String())
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	for i := range cols {
		assert.Equal(t, cols[i].Name, parsed[i].Name)
		assert.True(t, cols[i].Type.Equal(parsed[i].Type))
	}
}
