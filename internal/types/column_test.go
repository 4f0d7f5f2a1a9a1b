package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableColumn_AppendNullInsertsDefault(t *testing.T) {
	col := NewEmptyColumn(Nullable(Int64())).(*NullableColumn)
	src := NewInt64Column(10, 20)

	col.AppendNull()
	require.NoError(t, col.AppendValue(src, 1))
	col.AppendNull()

	assert.Equal(t, []bool{true, false, true}, col.NullMap)
	assert.Equal(t, []int64{0, 20, 0}, col.Nested.(*IntColumn).Values)
	assert.Equal(t, 3, col.Len())
}

func TestArrayColumn_Permute(t *testing.T) {
	// rows: [1 2] [] [3 4 5]
	col, err := NewArrayColumn(NewInt64Column(1, 2, 3, 4, 5), []uint64{2, 2, 5})
	require.NoError(t, err)

	permuted := col.Permute(Permutation{2, 0, 1}).(*ArrayColumn)

	assert.Equal(t, []uint64{3, 5, 5}, permuted.Offsets)
	assert.Equal(t, []int64{3, 4, 5, 1, 2}, permuted.Elements.(*IntColumn).Values)
}

func TestArrayColumn_AppendRange(t *testing.T) {
	src, err := NewArrayColumn(NewStringColumn("a", "b", "c", "d"), []uint64{1, 3, 4})
	require.NoError(t, err)

	dst := NewEmptyColumn(Array(String())).(*ArrayColumn)
	require.NoError(t, dst.AppendRange(src, 1, 2))
	require.NoError(t, dst.AppendRange(src, 0, 1))

	assert.Equal(t, []uint64{2, 3, 4}, dst.Offsets)
	assert.Equal(t, []string{"b", "c", "d", "a"}, dst.Elements.(*StringColumn).Values)
	assert.Equal(t, uint64(2), dst.SizeAt(0))
}

func TestNewArrayColumn_Invalid(t *testing.T) {
	_, err := NewArrayColumn(NewInt64Column(1, 2), []uint64{2, 1})
	assert.Error(t, err)

	_, err = NewArrayColumn(NewInt64Column(1, 2), []uint64{1})
	assert.Error(t, err)
}

func TestTupleColumn_PermuteAndAppend(t *testing.T) {
	tuple, err := NewTupleColumn([]string{"a", "b"}, []MutableColumn{
		NewInt64Column(1, 2, 3),
		NewStringColumn("x", "y", "z"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Tuple(a Int64, b String)", tuple.Type().String())

	permuted := tuple.Permute(Permutation{1, 2, 0}).(*TupleColumn)
	assert.Equal(t, []int64{2, 3, 1}, permuted.Elements[0].(*IntColumn).Values)
	assert.Equal(t, []string{"y", "z", "x"}, permuted.Elements[1].(*StringColumn).Values)

	dst := NewEmptyColumn(tuple.Type())
	require.NoError(t, dst.AppendRange(tuple, 2, 1))
	dst.AppendDefault()
	assert.Equal(t, 2, dst.Len())
}

func TestBlock_Validate(t *testing.T) {
	block := NewBlock(
		ColumnWithName{Name: "a", Column: NewInt64Column(1, 2)},
		ColumnWithName{Name: "b", Column: NewStringColumn("x")},
	)
	assert.Error(t, block.Validate())

	block.Columns[1].Column = NewStringColumn("x", "y")
	assert.NoError(t, block.Validate())
	assert.Equal(t, 2, block.Rows())
	assert.Equal(t, 2*8+2*8+2, block.ByteSize())
}

func TestPermutation_Validate(t *testing.T) {
	assert.NoError(t, Permutation{2, 0, 1}.Validate(3))
	assert.Error(t, Permutation{0, 0, 1}.Validate(3))
	assert.Error(t, Permutation{0, 1}.Validate(3))
	assert.Error(t, Permutation{0, 1, 3}.Validate(3))
}
