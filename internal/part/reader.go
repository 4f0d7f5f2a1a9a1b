package part

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/soltixdb/widepart/internal/checksum"
	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/granularity"
	"github.com/soltixdb/widepart/internal/serialization"
	"github.com/soltixdb/widepart/internal/types"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// ReaderOptions configures how a committed part is opened
type ReaderOptions struct {
	// IndexGranularity is required for parts with fixed granularity, whose
	// mark files do not store row counts
	IndexGranularity int
}

// Reader reads the columns of a committed part mark by mark
type Reader struct {
	storage     *Storage
	columns     types.NamesAndTypes
	codecs      map[string]compression.ValueCodec
	rows        uint64
	adaptive    bool
	markExt     string
	granularity *granularity.IndexGranularity
}

// OpenReader loads the metadata files and the index granularity of a part
func OpenReader(storage *Storage, opts ReaderOptions) (*Reader, error) {
	data, err := storage.ReadFile(ColumnsFileName)
	if err != nil {
		return nil, err
	}
	columns, err := types.ParseNamesAndTypes(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ColumnsFileName, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("part has no columns")
	}

	data, err = storage.ReadFile(CountFileName)
	if err != nil {
		return nil, err
	}
	rows, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CountFileName, err)
	}

	codecs := make(map[string]compression.ValueCodec)
	if storage.Exists(CodecsFileName) {
		data, err = storage.ReadFile(CodecsFileName)
		if err != nil {
			return nil, err
		}
		if codecs, err = parseCodecs(string(data)); err != nil {
			return nil, fmt.Errorf("%s: %w", CodecsFileName, err)
		}
	}

	r := &Reader{
		storage: storage,
		columns: columns,
		codecs:  codecs,
		rows:    rows,
	}

	first, err := r.streams(columns[0].Name)
	if err != nil {
		return nil, err
	}
	stem := r.stem(first[0].FullName)
	switch {
	case storage.Exists(stem + AdaptiveMarkFileExtension):
		r.adaptive, r.markExt = true, AdaptiveMarkFileExtension
	case storage.Exists(stem + MarkFileExtension):
		r.adaptive, r.markExt = false, MarkFileExtension
	default:
		return nil, fmt.Errorf("no mark file for stream %s", first[0].FullName)
	}

	marks, err := r.readMarks(stem)
	if err != nil {
		return nil, err
	}
	if r.adaptive {
		counts := make([]uint64, len(marks))
		for i, m := range marks {
			counts[i] = m.Rows
		}
		r.granularity = granularity.FromRows(counts)
	} else {
		if opts.IndexGranularity <= 0 {
			return nil, fmt.Errorf("part has fixed granularity, index granularity must be given")
		}
		r.granularity = fixedGranularity(len(marks), rows, uint64(opts.IndexGranularity))
	}

	if r.granularity.TotalRows() != rows {
		return nil, fmt.Errorf("marks cover %d rows, part has %d", r.granularity.TotalRows(), rows)
	}
	return r, nil
}

// fixedGranularity rebuilds mark rows of a fixed granularity part: full marks,
// then the remainder, then zero-row marks
func fixedGranularity(marks int, rows, g uint64) *granularity.IndexGranularity {
	out := granularity.New()
	left := rows
	for i := 0; i < marks; i++ {
		n := min(left, g)
		out.AppendMark(n)
		left -= n
	}
	return out
}

func parseCodecs(s string) (map[string]compression.ValueCodec, error) {
	out := make(map[string]compression.ValueCodec)
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		if line == "" {
			continue
		}
		name, codecName, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		column, err := serialization.UnescapeFileName(name)
		if err != nil {
			return nil, err
		}
		codec, err := compression.ParseValueCodec(codecName)
		if err != nil {
			return nil, err
		}
		out[column] = codec
	}
	return out, nil
}

func (r *Reader) Columns() types.NamesAndTypes { return r.columns }
func (r *Reader) Rows() uint64                 { return r.rows }
func (r *Reader) Adaptive() bool               { return r.adaptive }

func (r *Reader) IndexGranularity() *granularity.IndexGranularity {
	return r.granularity
}

// Checksums reads the manifest of the part
func (r *Reader) Checksums() (*checksum.Checksums, error) {
	f, err := r.storage.Open(ChecksumsFileName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return checksum.Read(f)
}

// Verify checks every file of the part against its manifest
func (r *Reader) Verify() error {
	cs, err := r.Checksums()
	if err != nil {
		return err
	}
	return cs.Verify(r.storage.Fs(), r.storage.Dir())
}

func (r *Reader) columnType(name string) (*types.Type, error) {
	for _, c := range r.columns {
		if c.Name == name {
			return c.Type, nil
		}
	}
	return nil, fmt.Errorf("part has no column %s", name)
}

func (r *Reader) serialization(name string) (serialization.Serialization, error) {
	t, err := r.columnType(name)
	if err != nil {
		return nil, err
	}
	codec, ok := r.codecs[name]
	if !ok {
		codec = compression.CodecPlain
	}
	return serialization.DefaultRegistry().Get(t, codec)
}

func (r *Reader) streams(column string) ([]serialization.StreamInfo, error) {
	ser, err := r.serialization(column)
	if err != nil {
		return nil, err
	}
	return serialization.ColumnStreams(column, ser), nil
}

// stem returns the file stem of a stream: its full name, or the hash of it
// when the full name was too long
func (r *Reader) stem(fullName string) string {
	if r.storage.Exists(fullName + DataFileExtension) {
		return fullName
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(fullName))
}

func (r *Reader) readMarks(stem string) ([]MarkRecord, error) {
	f, err := r.storage.Open(stem + r.markExt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadMarks(f, r.adaptive)
}

// StreamMarks are the marks of one stream of a column
type StreamMarks struct {
	FullName string
	Stem     string
	Marks    []MarkRecord
}

// Marks returns the marks of every stream of a column
func (r *Reader) Marks(column string) ([]StreamMarks, error) {
	infos, err := r.streams(column)
	if err != nil {
		return nil, err
	}
	out := make([]StreamMarks, 0, len(infos))
	for _, info := range infos {
		stem := r.stem(info.FullName)
		marks, err := r.readMarks(stem)
		if err != nil {
			return nil, err
		}
		out = append(out, StreamMarks{FullName: info.FullName, Stem: stem, Marks: marks})
	}
	return out, nil
}

// ReadColumn reads the rows of marks [fromMark, toMark) of a column
func (r *Reader) ReadColumn(column string, fromMark, toMark int) (_ types.Column, err error) {
	if fromMark < 0 || fromMark > toMark || toMark > r.granularity.MarksCountWithoutFinal() {
		return nil, fmt.Errorf("mark range [%d, %d) outside part of %d marks", fromMark, toMark, r.granularity.MarksCountWithoutFinal())
	}
	ser, err := r.serialization(column)
	if err != nil {
		return nil, err
	}

	var files []afero.File
	defer func() {
		for _, f := range files {
			err = multierr.Append(err, f.Close())
		}
	}()

	readers := make(map[string]*compression.CompressedReader)
	marks := make(map[string][]MarkRecord)
	for _, info := range serialization.ColumnStreams(column, ser) {
		stem := r.stem(info.FullName)
		f, openErr := r.storage.Open(stem + DataFileExtension)
		if openErr != nil {
			return nil, openErr
		}
		files = append(files, f)

		readers[info.FullName] = compression.NewCompressedReader(f)
		if info.Path.Last() == serialization.DictionaryKeys {
			continue
		}
		records, markErr := r.readMarks(stem)
		if markErr != nil {
			return nil, markErr
		}
		marks[info.FullName] = records
	}

	settings := &serialization.DeserializeSettings{
		Getter: func(path serialization.SubstreamPath) serialization.Reader {
			cr, ok := readers[serialization.StreamName(column, path)]
			if !ok {
				return nil
			}
			return cr
		},
	}
	state := serialization.NewState()
	// shared dictionaries are read from the start of their stream
	if err := ser.DeserializePrefix(nil, settings, state); err != nil {
		return nil, fmt.Errorf("read prefix of %s: %w", column, err)
	}

	col := types.NewEmptyColumn(ser.Type())
	if fromMark == toMark {
		return col, nil
	}

	for name, records := range marks {
		if fromMark >= len(records) {
			return nil, fmt.Errorf("stream %s has %d marks, need mark %d", name, len(records), fromMark)
		}
		m := records[fromMark]
		if err := readers[name].Seek(m.Compressed, m.Decompressed); err != nil {
			return nil, fmt.Errorf("seek %s to mark %d: %w", name, fromMark, err)
		}
	}

	rows := 0
	for i := fromMark; i < toMark; i++ {
		n, err := r.granularity.MarkRows(i)
		if err != nil {
			return nil, err
		}
		rows += int(n)
	}
	if err := ser.DeserializeBulk(col, rows, nil, settings, state); err != nil {
		return nil, fmt.Errorf("read %d rows of %s: %w", rows, column, err)
	}
	return col, nil
}

// ReadAll reads every row of a column
func (r *Reader) ReadAll(column string) (types.Column, error) {
	return r.ReadColumn(column, 0, r.granularity.MarksCountWithoutFinal())
}
