package part

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/soltixdb/widepart/internal/granularity"
	"github.com/soltixdb/widepart/internal/logging"
	"github.com/soltixdb/widepart/internal/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSettings() WriterSettings {
	s := DefaultWriterSettings()
	s.Granularity.IndexGranularityBytes = 0
	s.SelfCheck = true
	return s
}

func adaptiveSettings() WriterSettings {
	s := DefaultWriterSettings()
	s.SelfCheck = true
	return s
}

func int64Seq(start, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(start + i)
	}
	return out
}

func int64Block(name string, values []int64) *types.Block {
	return types.NewBlock(types.ColumnWithName{Name: name, Column: types.NewInt64Column(values...)})
}

func newTestWriter(t *testing.T, columns types.NamesAndTypes, settings WriterSettings) (*WideWriter, *Storage) {
	t.Helper()
	storage, err := NewStorage(afero.NewMemMapFs(), "/data/tmp_part")
	require.NoError(t, err)
	w, err := NewWideWriter(storage, columns, settings, logging.NewNop(), nil)
	require.NoError(t, err)
	return w, storage
}

func readMarkFile(t *testing.T, storage *Storage, name string, adaptive bool) []MarkRecord {
	t.Helper()
	f, err := storage.Open(name)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	marks, err := ReadMarks(f, adaptive)
	require.NoError(t, err)
	return marks
}

func TestWideWriter_MarksAcrossBlocks(t *testing.T) {
	tests := []struct {
		name     string
		settings WriterSettings
		markFile string
	}{
		{name: "fixed", settings: fixedSettings(), markFile: "v.mrk"},
		{name: "adaptive", settings: adaptiveSettings(), markFile: "v.mrk2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
			w, storage := newTestWriter(t, columns, tt.settings)

			require.NoError(t, w.Write(int64Block("v", int64Seq(0, 10000)), nil))
			assert.Equal(t, 1, w.CurrentMark())
			assert.Equal(t, 1808, w.RowsWrittenInLastMark())

			require.NoError(t, w.Write(int64Block("v", int64Seq(10000, 5000)), nil))
			assert.Equal(t, 1, w.CurrentMark())
			assert.Equal(t, 6808, w.RowsWrittenInLastMark())

			require.NoError(t, w.Write(int64Block("v", int64Seq(15000, 1)), nil))

			cs, err := w.FillChecksums()
			require.NoError(t, err)
			assert.Equal(t, []uint64{8192, 6809, 0}, w.IndexGranularity().Rows())
			assert.Equal(t, 2, w.IndexGranularity().MarksCountWithoutFinal())
			assert.True(t, cs.Has("v.bin"))
			assert.True(t, cs.Has(tt.markFile))
			assert.True(t, cs.Files["v.bin"].IsCompressed)

			require.NoError(t, w.Finish(false))
			assert.Equal(t, "finished", w.State())
			assert.Equal(t, 0, w.NumberOfOpenStreams())
			assert.Equal(t, uint64(15001), w.Rows())

			marks := readMarkFile(t, storage, tt.markFile, tt.settings.Granularity.Adaptive())
			require.Len(t, marks, 3)
			assert.Equal(t, Mark{}, marks[0].Mark)
			if tt.settings.Granularity.Adaptive() {
				assert.Equal(t, uint64(8192), marks[0].Rows)
				assert.Equal(t, uint64(6809), marks[1].Rows)
				assert.Equal(t, uint64(0), marks[2].Rows)
			}
		})
	}
}

func TestWideWriter_AdjustLastMarkToSmallerGranularity(t *testing.T) {
	s := adaptiveSettings()
	s.Granularity.IndexGranularity = 100
	s.Granularity.IndexGranularityBytes = 1000

	columns := types.NamesAndTypes{{Name: "s", Type: types.String()}}
	w, storage := newTestWriter(t, columns, s)

	small := make([]string, 30)
	for i := range small {
		small[i] = "a"
	}
	require.NoError(t, w.Write(types.NewBlock(types.ColumnWithName{Name: "s", Column: types.NewStringColumn(small...)}), nil))
	assert.Equal(t, []uint64{100}, w.IndexGranularity().Rows())
	assert.Equal(t, 30, w.RowsWrittenInLastMark())

	// 208 bytes per row gives granules of 5 rows
	large := make([]string, 20)
	for i := range large {
		large[i] = strings.Repeat("x", 200)
	}
	require.NoError(t, w.Write(types.NewBlock(types.ColumnWithName{Name: "s", Column: types.NewStringColumn(large...)}), nil))
	assert.Equal(t, []uint64{30, 5, 5, 5, 5}, w.IndexGranularity().Rows())
	assert.Equal(t, 5, w.CurrentMark())
	assert.Equal(t, 0, w.RowsWrittenInLastMark())

	require.NoError(t, w.Finish(false))
	marks := readMarkFile(t, storage, "s.mrk2", true)
	rows := make([]uint64, len(marks))
	for i, m := range marks {
		rows[i] = m.Rows
	}
	assert.Equal(t, []uint64{30, 5, 5, 5, 5, 0}, rows)
}

func TestWideWriter_AdjustLastMarkKeepsItOpen(t *testing.T) {
	s := adaptiveSettings()
	s.Granularity.IndexGranularity = 100
	s.Granularity.IndexGranularityBytes = 1000

	columns := types.NamesAndTypes{{Name: "s", Type: types.String()}}
	w, _ := newTestWriter(t, columns, s)

	small := make([]string, 30)
	for i := range small {
		small[i] = "a"
	}
	require.NoError(t, w.Write(types.NewBlock(types.ColumnWithName{Name: "s", Column: types.NewStringColumn(small...)}), nil))

	// 20 bytes per row gives granules of 50 rows
	medium := make([]string, 10)
	for i := range medium {
		medium[i] = strings.Repeat("y", 12)
	}
	require.NoError(t, w.Write(types.NewBlock(types.ColumnWithName{Name: "s", Column: types.NewStringColumn(medium...)}), nil))
	assert.Equal(t, []uint64{50}, w.IndexGranularity().Rows())
	assert.Equal(t, 0, w.CurrentMark())
	assert.Equal(t, 40, w.RowsWrittenInLastMark())

	_, err := w.FillChecksums()
	require.NoError(t, err)
	assert.Equal(t, []uint64{40, 0}, w.IndexGranularity().Rows())
}

func TestWideWriter_WithoutFinalMark(t *testing.T) {
	s := fixedSettings()
	s.WithFinalMark = false

	columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
	w, storage := newTestWriter(t, columns, s)

	require.NoError(t, w.Write(int64Block("v", int64Seq(0, 100)), nil))
	require.NoError(t, w.Finish(false))

	assert.Equal(t, []uint64{100}, w.IndexGranularity().Rows())
	assert.False(t, w.IndexGranularity().HasFinalMark())
	assert.Len(t, readMarkFile(t, storage, "v.mrk", false), 1)
}

func TestWideWriter_EmptyPart(t *testing.T) {
	columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
	w, storage := newTestWriter(t, columns, fixedSettings())

	require.NoError(t, w.Write(int64Block("v", nil), nil))
	assert.Equal(t, "idle", w.State())

	require.NoError(t, w.Finish(false))
	assert.True(t, w.IndexGranularity().Empty())
	assert.Empty(t, readMarkFile(t, storage, "v.mrk", false))
}

func TestWideWriter_FillChecksumsIsIdempotent(t *testing.T) {
	columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
	w, _ := newTestWriter(t, columns, fixedSettings())

	require.NoError(t, w.Write(int64Block("v", int64Seq(0, 1000)), nil))

	first, err := w.FillChecksums()
	require.NoError(t, err)
	second, err := w.FillChecksums()
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, "finishing", w.State())
	assert.Equal(t, []uint64{1000, 0}, w.IndexGranularity().Rows())

	// the returned manifest is a copy
	first.AddFile("extra.txt", 1, 1)
	third, err := w.FillChecksums()
	require.NoError(t, err)
	assert.False(t, third.Has("extra.txt"))

	err = w.Write(int64Block("v", int64Seq(0, 1)), nil)
	assert.True(t, errors.Is(err, ErrWriterState))
}

func TestWideWriter_StateErrors(t *testing.T) {
	columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
	w, _ := newTestWriter(t, columns, fixedSettings())

	require.NoError(t, w.Write(int64Block("v", int64Seq(0, 10)), nil))
	require.NoError(t, w.Finish(false))

	assert.ErrorIs(t, w.Write(int64Block("v", int64Seq(0, 10)), nil), ErrWriterState)
	assert.ErrorIs(t, w.Finish(false), ErrWriterState)
	assert.ErrorIs(t, w.Cancel(), ErrWriterState)
}

func TestWideWriter_Cancel(t *testing.T) {
	columns := types.NamesAndTypes{
		{Name: "v", Type: types.Int64()},
		{Name: "arr", Type: types.Array(types.String())},
	}
	w, storage := newTestWriter(t, columns, fixedSettings())

	elements := types.NewStringColumn("a", "b", "c")
	arr, err := types.NewArrayColumn(elements, []uint64{1, 1, 3})
	require.NoError(t, err)
	block := types.NewBlock(
		types.ColumnWithName{Name: "v", Column: types.NewInt64Column(1, 2, 3)},
		types.ColumnWithName{Name: "arr", Column: arr},
	)
	require.NoError(t, w.Write(block, nil))

	files, err := storage.Files()
	require.NoError(t, err)
	assert.Len(t, files, 6)

	require.NoError(t, w.Cancel())
	assert.Equal(t, "cancelled", w.State())
	assert.Equal(t, 0, w.NumberOfOpenStreams())

	files, err = storage.Files()
	require.NoError(t, err)
	assert.Empty(t, files)

	assert.ErrorIs(t, w.Write(block, nil), ErrWriterState)
	assert.ErrorIs(t, w.Cancel(), ErrWriterState)
	_, err = w.FillChecksums()
	assert.ErrorIs(t, err, ErrWriterState)
}

func TestWideWriter_RejectsBadBlocks(t *testing.T) {
	columns := types.NamesAndTypes{
		{Name: "v", Type: types.Int64()},
		{Name: "s", Type: types.String()},
	}
	w, _ := newTestWriter(t, columns, fixedSettings())

	ragged := types.NewBlock(
		types.ColumnWithName{Name: "v", Column: types.NewInt64Column(1, 2, 3)},
		types.ColumnWithName{Name: "s", Column: types.NewStringColumn("a")},
	)
	assert.Error(t, w.Write(ragged, nil))

	good := types.NewBlock(
		types.ColumnWithName{Name: "v", Column: types.NewInt64Column(1, 2)},
		types.ColumnWithName{Name: "s", Column: types.NewStringColumn("a", "b")},
	)
	assert.Error(t, w.Write(good, types.Permutation{0, 0}))

	// invalid blocks and permutations leave the writer usable
	require.NoError(t, w.Write(good, nil))
	assert.Equal(t, uint64(2), w.Rows())
}

func TestWideWriter_InconsistentBlockBreaksWriter(t *testing.T) {
	columns := types.NamesAndTypes{
		{Name: "v", Type: types.Int64()},
		{Name: "s", Type: types.String()},
	}
	good := types.NewBlock(
		types.ColumnWithName{Name: "v", Column: types.NewInt64Column(1, 2)},
		types.ColumnWithName{Name: "s", Column: types.NewStringColumn("a", "b")},
	)

	tests := []struct {
		name  string
		block *types.Block
	}{
		{
			name:  "missing column",
			block: int64Block("v", int64Seq(0, 2)),
		},
		{
			name: "type mismatch",
			block: types.NewBlock(
				types.ColumnWithName{Name: "v", Column: types.NewStringColumn("a", "b")},
				types.ColumnWithName{Name: "s", Column: types.NewStringColumn("a", "b")},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, storage := newTestWriter(t, columns, fixedSettings())
			require.NoError(t, w.Write(good, nil))

			assert.ErrorIs(t, w.Write(tt.block, nil), ErrLogical)

			assert.ErrorIs(t, w.Write(good, nil), ErrWriterState)
			_, err := w.FillChecksums()
			assert.ErrorIs(t, err, ErrWriterState)

			require.NoError(t, w.Cancel())
			files, err := storage.Files()
			require.NoError(t, err)
			assert.Empty(t, files)
		})
	}
}

func TestNewWideWriter_RemovesDataFileWhenMarkFileFails(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorage(afero.NewOsFs(), dir)
	require.NoError(t, err)
	// a directory in place of the mark file makes creating it fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, "v"+MarkFileExtension), 0o755))

	columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
	_, err = NewWideWriter(storage, columns, fixedSettings(), logging.NewNop(), nil)
	require.Error(t, err)

	assert.False(t, storage.Exists("v"+DataFileExtension))
}

func TestNewWideWriter_InvalidColumns(t *testing.T) {
	storage, err := NewStorage(afero.NewMemMapFs(), "/part")
	require.NoError(t, err)

	_, err = NewWideWriter(storage, nil, fixedSettings(), logging.NewNop(), nil)
	assert.Error(t, err)

	dup := types.NamesAndTypes{
		{Name: "v", Type: types.Int64()},
		{Name: "v", Type: types.Int64()},
	}
	_, err = NewWideWriter(storage, dup, fixedSettings(), logging.NewNop(), nil)
	assert.Error(t, err)

	// a failed writer leaves no files behind
	files, err := storage.Files()
	require.NoError(t, err)
	assert.Empty(t, files)

	bad := fixedSettings()
	bad.Granularity.IndexGranularity = 0
	_, err = NewWideWriter(storage, types.NamesAndTypes{{Name: "v", Type: types.Int64()}}, bad, logging.NewNop(), nil)
	assert.Error(t, err)
}

func TestWideWriter_LongStreamNamesAreHashed(t *testing.T) {
	name := strings.Repeat("very_long_column_name_", 8)
	columns := types.NamesAndTypes{{Name: name, Type: types.Int64()}}
	w, storage := newTestWriter(t, columns, fixedSettings())

	require.NoError(t, w.Write(int64Block(name, int64Seq(0, 10)), nil))
	require.NoError(t, w.Finish(false))

	renamed := w.StreamNames()
	require.Len(t, renamed, 1)
	stem := renamed[name]
	assert.Len(t, stem, 16)
	assert.True(t, storage.Exists(stem+DataFileExtension))
	assert.True(t, storage.Exists(stem+MarkFileExtension))
}

func TestWideWriter_BlocksAreGranules(t *testing.T) {
	s := adaptiveSettings()
	s.Granularity.BlocksAreGranulesSize = true

	columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
	w, _ := newTestWriter(t, columns, s)

	for _, n := range []int{10, 20000, 3} {
		require.NoError(t, w.Write(int64Block("v", int64Seq(0, n)), nil))
	}
	require.NoError(t, w.Finish(false))
	assert.Equal(t, []uint64{10, 20000, 3, 0}, w.IndexGranularity().Rows())
}

func TestWideWriter_SelfCheckDetectsBadGranularity(t *testing.T) {
	tests := []struct {
		name string
		rows []uint64
	}{
		{name: "more rows than written", rows: []uint64{150, 0}},
		{name: "more marks than written", rows: []uint64{100, 5, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := fixedSettings()
			s.SelfCheck = false
			columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
			w, _ := newTestWriter(t, columns, s)

			require.NoError(t, w.Write(int64Block("v", int64Seq(0, 100)), nil))
			_, err := w.FillChecksums()
			require.NoError(t, err)
			require.NoError(t, w.validate())

			w.granularity = granularity.FromRows(tt.rows)
			err = w.validate()
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, ErrLogical)
		})
	}
}

func TestWideWriter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	storage, err := NewStorage(afero.NewMemMapFs(), "/part")
	require.NoError(t, err)
	columns := types.NamesAndTypes{{Name: "v", Type: types.Int64()}}
	w, err := NewWideWriter(storage, columns, fixedSettings(), logging.NewNop(), metrics)
	require.NoError(t, err)

	require.NoError(t, w.Write(int64Block("v", int64Seq(0, 10000)), nil))
	require.NoError(t, w.Finish(false))

	assert.Equal(t, float64(10000), testutil.ToFloat64(metrics.rowsWritten))
	// two data marks and the final mark
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.marksWritten))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.parts.WithLabelValues("finished")))
	assert.Greater(t, testutil.ToFloat64(metrics.bytesWritten.WithLabelValues("bin")), float64(0))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}
