package granularity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIndexGranularity(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		bytes    int
		settings Settings
		want     int
	}{
		{"fixed ignores bytes", 100, 1 << 30, Settings{IndexGranularity: 8192}, 8192},
		{"block larger than granule bytes", 1000, 4000, Settings{IndexGranularity: 8192, IndexGranularityBytes: 1000}, 250},
		{"block smaller than granule bytes", 10, 80, Settings{IndexGranularity: 8192, IndexGranularityBytes: 800}, 100},
		{"capped by row granularity", 10, 10, Settings{IndexGranularity: 64, IndexGranularityBytes: 1 << 20}, 64},
		{"row wider than granule bytes", 4, 4000, Settings{IndexGranularity: 8192, IndexGranularityBytes: 100}, 1},
		{"blocks are granules", 20000, 5, Settings{IndexGranularity: 8192, IndexGranularityBytes: 100, BlocksAreGranulesSize: true}, 20000},
		{"empty adaptive block", 0, 0, Settings{IndexGranularity: 8192, IndexGranularityBytes: 100}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeIndexGranularity(tt.rows, tt.bytes, tt.settings))
		})
	}
}

func TestSettings_Validate(t *testing.T) {
	assert.NoError(t, Settings{IndexGranularity: 1}.Validate())
	assert.Error(t, Settings{IndexGranularity: 0}.Validate())
	assert.Error(t, Settings{IndexGranularity: 1, IndexGranularityBytes: -1}.Validate())
	assert.Error(t, Settings{IndexGranularity: 1, BlocksAreGranulesSize: true}.Validate())
}

func TestFillIndexGranularity(t *testing.T) {
	g := New()
	FillIndexGranularity(g, 8192, 0, 10000)
	assert.Equal(t, []uint64{8192, 8192}, g.Rows())

	// 6384 rows of the block complete the previous mark
	FillIndexGranularity(g, 8192, 6384, 5000)
	assert.Equal(t, 2, g.MarksCount())

	FillIndexGranularity(g, 100, 50, 300)
	assert.Equal(t, []uint64{8192, 8192, 100, 100, 100}, g.Rows())
}

func TestGranulesToWrite_FreshBlock(t *testing.T) {
	g := New()
	FillIndexGranularity(g, 8192, 0, 10000)

	granules, err := GranulesToWrite(g, 10000, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, Granules{
		{StartRow: 0, RowsToWrite: 8192, MarkNumber: 0, MarkOnStart: true, IsComplete: true},
		{StartRow: 8192, RowsToWrite: 1808, MarkNumber: 1, MarkOnStart: true, IsComplete: false},
	}, granules)
	assert.True(t, granules.LastIncomplete())
}

func TestGranulesToWrite_ContinuesUnfinishedMark(t *testing.T) {
	g := FromRows([]uint64{8192, 8192})

	granules, err := GranulesToWrite(g, 5000, 1, 1808)
	require.NoError(t, err)
	assert.Equal(t, Granules{
		{StartRow: 0, RowsToWrite: 5000, MarkNumber: 1, MarkOnStart: false, IsComplete: false},
	}, granules)

	g.AppendMark(8192)
	g.AppendMark(8192)
	granules, err = GranulesToWrite(g, 10000, 1, 6808)
	require.NoError(t, err)
	assert.Equal(t, Granules{
		{StartRow: 0, RowsToWrite: 1384, MarkNumber: 1, MarkOnStart: false, IsComplete: true},
		{StartRow: 1384, RowsToWrite: 8192, MarkNumber: 2, MarkOnStart: true, IsComplete: true},
		{StartRow: 9576, RowsToWrite: 424, MarkNumber: 3, MarkOnStart: true, IsComplete: false},
	}, granules)
}

func TestGranulesToWrite_EmptyBlock(t *testing.T) {
	g := FromRows([]uint64{8192})
	granules, err := GranulesToWrite(g, 0, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, granules)
	assert.False(t, granules.LastIncomplete())
}

func TestGranulesToWrite_MissingMark(t *testing.T) {
	_, err := GranulesToWrite(New(), 10, 0, 0)
	assert.Error(t, err)

	_, err = GranulesToWrite(FromRows([]uint64{10}), 5, 0, 10)
	assert.Error(t, err)
}

// Fixed granularity 8192, blocks of 10000, 5000 and 1 rows
func TestGranuleCoverage_Scenario(t *testing.T) {
	s := Settings{IndexGranularity: 8192}
	g := New()
	currentMark, rowsWritten := 0, 0
	completed := 0

	for _, rows := range []int{10000, 5000, 1} {
		forBlock := ComputeIndexGranularity(rows, rows*8, s)
		offset := 0
		if rowsWritten > 0 {
			markRows, err := g.MarkRows(currentMark)
			require.NoError(t, err)
			offset = int(markRows) - rowsWritten
		}
		FillIndexGranularity(g, forBlock, offset, rows)

		granules, err := GranulesToWrite(g, rows, currentMark, rowsWritten)
		require.NoError(t, err)
		for _, gr := range granules {
			if gr.IsComplete {
				completed++
			}
		}

		if granules.LastIncomplete() {
			currentMark += len(granules) - 1
			if len(granules) == 1 {
				rowsWritten += rows
			} else {
				rowsWritten = granules[len(granules)-1].RowsToWrite
			}
		} else {
			currentMark += len(granules)
			rowsWritten = 0
		}
	}

	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, currentMark)
	assert.Equal(t, 6809, rowsWritten)

	// closing the part shrinks the unfinished mark
	require.NoError(t, g.PopMark())
	g.AppendMark(uint64(rowsWritten))
	assert.Equal(t, []uint64{8192, 6809}, g.Rows())
	assert.Equal(t, uint64(15001), g.TotalRows())
}

func TestIndexGranularity_FinalMark(t *testing.T) {
	g := FromRows([]uint64{100, 50})
	assert.False(t, g.HasFinalMark())
	assert.Equal(t, uint64(100), g.MarkStartingRow(1))
	assert.Equal(t, uint64(150), g.MarkStartingRow(5))

	g.AppendMark(0)
	assert.True(t, g.HasFinalMark())
	assert.Equal(t, 3, g.MarksCount())
	assert.Equal(t, 2, g.MarksCountWithoutFinal())
	assert.Equal(t, uint64(150), g.TotalRows())
	assert.Equal(t, uint64(0), g.LastMarkRows())

	require.NoError(t, g.PopMark())
	require.NoError(t, g.PopMark())
	require.NoError(t, g.PopMark())
	assert.True(t, g.Empty())
	assert.Error(t, g.PopMark())
	_, err := g.MarkRows(0)
	assert.Error(t, err)
}
