package part

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/soltixdb/widepart/internal/checksum"
	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/granularity"
	"github.com/soltixdb/widepart/internal/logging"
	"github.com/soltixdb/widepart/internal/serialization"
	"github.com/soltixdb/widepart/internal/types"
	"go.uber.org/multierr"
)

type writerState int

const (
	stateIdle writerState = iota
	stateWriting
	stateFinishing
	stateFinished
	stateCancelled
)

func (s writerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateWriting:
		return "writing"
	case stateFinishing:
		return "finishing"
	case stateFinished:
		return "finished"
	case stateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// columnEntry is the serialization state of one column of the part
type columnEntry struct {
	name     string
	typ      *types.Type
	ser      serialization.Serialization
	state    *serialization.State
	settings *serialization.SerializeSettings
	// streams are indexes into WideWriter.streams, in serialization order
	streams       []int
	prefixWritten bool
}

// WideWriter writes a part in wide format: every substream of every column
// goes to its own data file with its own mark file. It is driven by a
// single goroutine.
type WideWriter struct {
	id       string
	storage  *Storage
	columns  types.NamesAndTypes
	settings WriterSettings
	logger   *logging.Logger
	metrics  *Metrics

	entries   []*columnEntry
	byName    map[string]*columnEntry
	names     *serialization.NameMap
	streams   []*ColumnStream
	streamIDs map[string]int

	granularity           *granularity.IndexGranularity
	currentMark           int
	rowsWrittenInLastMark int
	// pendingMarks holds, per column, the marks of the granule that is
	// still receiving rows
	pendingMarks map[string][]streamMark

	rows      uint64
	state     writerState
	broken    error
	checksums *checksum.Checksums
}

// NewWideWriter creates the data and mark files of every column in storage
func NewWideWriter(storage *Storage, columns types.NamesAndTypes, settings WriterSettings, logger *logging.Logger, metrics *Metrics) (*WideWriter, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid writer settings: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("part must have at least one column")
	}

	codec, err := compression.GetCompressor(settings.Compression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	id := uuid.NewString()
	w := &WideWriter{
		id:           id,
		storage:      storage,
		columns:      columns,
		settings:     settings,
		logger:       logger.With("writer", id),
		metrics:      metrics,
		byName:       make(map[string]*columnEntry, len(columns)),
		names:        serialization.NewNameMap(settings.ReplaceLongFileNameToHash, settings.MaxFileNameLength),
		streamIDs:    make(map[string]int),
		granularity:  granularity.New(),
		pendingMarks: make(map[string][]streamMark),
	}

	for _, c := range columns {
		if err := w.addStreams(c, codec); err != nil {
			return nil, multierr.Append(err, w.removeStreams())
		}
	}

	w.logger.Debug("Part writer created",
		"dir", storage.Dir(),
		"columns", len(columns),
		"streams", len(w.streams),
		"adaptive", settings.Granularity.Adaptive())
	return w, nil
}

// addStreams registers every substream of a column and opens its files
func (w *WideWriter) addStreams(c types.NameAndType, codec compression.Compressor) error {
	if _, ok := w.byName[c.Name]; ok {
		return fmt.Errorf("duplicate column %s", c.Name)
	}

	ser, err := serialization.DefaultRegistry().Get(c.Type, w.settings.ColumnCodec(c.Name))
	if err != nil {
		return fmt.Errorf("column %s: %w", c.Name, err)
	}

	entry := &columnEntry{
		name:  c.Name,
		typ:   c.Type,
		ser:   ser,
		state: serialization.NewState(),
	}
	w.entries = append(w.entries, entry)
	w.byName[c.Name] = entry

	for _, info := range serialization.ColumnStreams(c.Name, ser) {
		if _, ok := w.streamIDs[info.FullName]; ok {
			return fmt.Errorf("%w: stream %s of column %s is already registered", ErrLogical, info.FullName, c.Name)
		}
		stem, err := w.names.Register(info.FullName)
		if err != nil {
			return err
		}
		s, err := newColumnStream(w.storage, info.FullName, stem, codec, w.settings.MaxCompressBlockSize, w.settings.MarkExtension())
		if err != nil {
			return err
		}
		w.streamIDs[info.FullName] = len(w.streams)
		entry.streams = append(entry.streams, len(w.streams))
		w.streams = append(w.streams, s)
	}

	column := c.Name
	entry.settings = &serialization.SerializeSettings{
		Getter: func(path serialization.SubstreamPath) io.Writer {
			id, ok := w.streamIDs[serialization.StreamName(column, path)]
			if !ok {
				return nil
			}
			return w.streams[id]
		},
		MaxDictionarySize: w.settings.maxDictionarySize(),
	}
	return nil
}

func (w *WideWriter) ID() string                     { return w.id }
func (w *WideWriter) Columns() types.NamesAndTypes   { return w.columns }
func (w *WideWriter) Settings() WriterSettings       { return w.settings }
func (w *WideWriter) Rows() uint64                   { return w.rows }
func (w *WideWriter) State() string                  { return w.state.String() }
func (w *WideWriter) Streams() []*ColumnStream       { return w.streams }
func (w *WideWriter) CurrentMark() int               { return w.currentMark }
func (w *WideWriter) RowsWrittenInLastMark() int     { return w.rowsWrittenInLastMark }
func (w *WideWriter) StreamNames() map[string]string { return w.names.Renamed() }

// IndexGranularity returns the rows of every mark written or planned so far
func (w *WideWriter) IndexGranularity() *granularity.IndexGranularity {
	return w.granularity
}

// NumberOfOpenStreams returns the number of streams whose files are open
func (w *WideWriter) NumberOfOpenStreams() int {
	n := 0
	for _, s := range w.streams {
		if !s.closed {
			n++
		}
	}
	return n
}

func (w *WideWriter) checkUsable() error {
	switch w.state {
	case stateFinished, stateCancelled:
		return fmt.Errorf("%w: writer is %s", ErrWriterState, w.state)
	}
	if w.broken != nil {
		return fmt.Errorf("%w: writer failed and must be cancelled: %v", ErrWriterState, w.broken)
	}
	return nil
}

func (w *WideWriter) fail(err error) error {
	w.broken = err
	return err
}

// Write appends the rows of block to the part. perm, if not nil, reorders the
// rows before they are written. Columns of block not in the part are ignored.
// A missing part column or a type mismatch breaks the writer.
func (w *WideWriter) Write(block *types.Block, perm types.Permutation) error {
	if err := w.checkUsable(); err != nil {
		return err
	}
	if w.state == stateFinishing {
		return fmt.Errorf("%w: cannot write after checksums were filled", ErrWriterState)
	}
	if err := block.Validate(); err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}

	rows := block.Rows()
	if rows == 0 {
		return nil
	}
	if perm != nil {
		if err := perm.Validate(rows); err != nil {
			return err
		}
	}

	cols := make([]types.Column, len(w.entries))
	bytes := 0
	for i, e := range w.entries {
		col, ok := block.ByName(e.name)
		if !ok {
			return w.fail(fmt.Errorf("%w: block has no column %s", ErrLogical, e.name))
		}
		if !col.Type().Equal(e.typ) {
			return w.fail(fmt.Errorf("%w: column %s has type %s, part has %s", ErrLogical, e.name, col.Type(), e.typ))
		}
		if perm != nil {
			col = col.Permute(perm)
		}
		cols[i] = col
		bytes += col.ByteSize()
	}

	w.state = stateWriting
	if err := w.writeBlock(rows, bytes, cols); err != nil {
		return w.fail(err)
	}
	return nil
}

func (w *WideWriter) writeBlock(rows, bytes int, cols []types.Column) error {
	granularityForBlock := granularity.ComputeIndexGranularity(rows, bytes, w.settings.Granularity)

	if w.rowsWrittenInLastMark > 0 {
		markRows, err := w.granularity.MarkRows(w.currentMark)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLogical, err)
		}
		// the unfinished mark was planned for a larger granularity
		rowsLeftInLastMark := int(markRows) - w.rowsWrittenInLastMark
		if rowsLeftInLastMark > granularityForBlock {
			target := granularityForBlock
			if w.rowsWrittenInLastMark >= granularityForBlock {
				target = w.rowsWrittenInLastMark
			}
			if err := w.adjustLastMarkIfNeedAndFlushToDisk(target); err != nil {
				return err
			}
		}
	}

	indexOffset := 0
	if w.rowsWrittenInLastMark > 0 {
		markRows, err := w.granularity.MarkRows(w.currentMark)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLogical, err)
		}
		indexOffset = int(markRows) - w.rowsWrittenInLastMark
	}
	granularity.FillIndexGranularity(w.granularity, granularityForBlock, indexOffset, rows)

	granules, err := granularity.GranulesToWrite(w.granularity, rows, w.currentMark, w.rowsWrittenInLastMark)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogical, err)
	}
	if len(granules) == 0 {
		return fmt.Errorf("%w: no granules for a block of %d rows", ErrLogical, rows)
	}

	for i, e := range w.entries {
		if err := w.writeColumn(e, cols[i], granules); err != nil {
			return err
		}
	}

	if err := w.shiftCurrentMark(granules); err != nil {
		return err
	}
	w.rows += uint64(rows)
	w.metrics.rowsWritten.Add(float64(rows))
	return nil
}

// writeColumn serializes the granules of one column, saving marks when a
// granule starts and writing them once the granule is complete
func (w *WideWriter) writeColumn(e *columnEntry, col types.Column, granules granularity.Granules) error {
	if !e.prefixWritten {
		if err := e.ser.SerializePrefix(nil, e.settings, e.state); err != nil {
			return fmt.Errorf("serialize prefix of %s: %w", e.name, err)
		}
		e.prefixWritten = true
	}

	for _, g := range granules {
		if g.MarkOnStart {
			if len(w.pendingMarks[e.name]) > 0 {
				return fmt.Errorf("%w: column %s starts mark %d with an unwritten mark", ErrLogical, e.name, g.MarkNumber)
			}
			marks, err := w.currentMarksForColumn(e)
			if err != nil {
				return err
			}
			w.pendingMarks[e.name] = marks
		}

		if err := e.ser.SerializeBulk(col, g.StartRow, g.RowsToWrite, nil, e.settings, e.state); err != nil {
			if errors.Is(err, serialization.ErrTypeMismatch) {
				return fmt.Errorf("%w: column %s: %v", ErrLogical, e.name, err)
			}
			return fmt.Errorf("serialize column %s: %w", e.name, err)
		}

		for _, id := range e.streams {
			if err := w.streams[id].nextIfAtEnd(); err != nil {
				return err
			}
		}

		if g.IsComplete {
			marks := w.pendingMarks[e.name]
			if len(marks) == 0 {
				return fmt.Errorf("%w: no saved marks for column %s, mark %d", ErrLogical, e.name, g.MarkNumber)
			}
			rows, err := w.granularity.MarkRows(g.MarkNumber)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrLogical, err)
			}
			if err := w.flushMarks(marks, rows); err != nil {
				return err
			}
			delete(w.pendingMarks, e.name)
		}
	}
	return nil
}

// currentMarksForColumn captures the position of every stream of a column
func (w *WideWriter) currentMarksForColumn(e *columnEntry) ([]streamMark, error) {
	marks := make([]streamMark, 0, len(e.streams))
	for _, id := range e.streams {
		s := w.streams[id]
		if err := s.cutBlockIfLarger(w.settings.MinCompressBlockSize); err != nil {
			return nil, err
		}
		marks = append(marks, streamMark{stream: id, mark: s.CurrentMark()})
	}
	return marks, nil
}

func (w *WideWriter) flushMarks(marks []streamMark, rows uint64) error {
	adaptive := w.settings.Granularity.Adaptive()
	for _, m := range marks {
		if err := w.streams[m.stream].writeMark(m.mark, rows, adaptive); err != nil {
			return err
		}
	}
	w.metrics.marksWritten.Add(float64(len(marks)))
	return nil
}

func (w *WideWriter) shiftCurrentMark(granules granularity.Granules) error {
	last := granules[len(granules)-1]
	if last.IsComplete {
		w.currentMark += len(granules)
		w.rowsWrittenInLastMark = 0
		return nil
	}

	if w.settings.Granularity.BlocksAreGranulesSize {
		return fmt.Errorf("%w: incomplete granules are not allowed while blocks are granules", ErrLogical)
	}
	w.currentMark += len(granules) - 1
	if len(granules) == 1 {
		w.rowsWrittenInLastMark += last.RowsToWrite
	} else {
		w.rowsWrittenInLastMark = last.RowsToWrite
	}
	return nil
}

// adjustLastMarkIfNeedAndFlushToDisk shrinks the unfinished last mark to
// newRows rows. If that many rows are already written the mark is complete
// and its saved marks are flushed.
func (w *WideWriter) adjustLastMarkIfNeedAndFlushToDisk(newRows int) error {
	if w.rowsWrittenInLastMark > newRows {
		return fmt.Errorf("%w: trying to make mark %d smaller (%d rows) than it already has %d",
			ErrLogical, w.currentMark, newRows, w.rowsWrittenInLastMark)
	}
	if w.currentMark != w.granularity.MarksCount()-1 {
		return fmt.Errorf("%w: adjusting mark %d with %d rows written, total marks %d",
			ErrLogical, w.currentMark, w.rowsWrittenInLastMark, w.granularity.MarksCount())
	}

	if err := w.granularity.PopMark(); err != nil {
		return fmt.Errorf("%w: %v", ErrLogical, err)
	}
	w.granularity.AppendMark(uint64(newRows))

	if len(w.pendingMarks) == 0 {
		return fmt.Errorf("%w: no saved marks for last mark %d having %d rows written",
			ErrLogical, w.currentMark, w.rowsWrittenInLastMark)
	}

	if w.rowsWrittenInLastMark == newRows {
		for _, e := range w.entries {
			marks, ok := w.pendingMarks[e.name]
			if !ok {
				continue
			}
			if err := w.flushMarks(marks, uint64(newRows)); err != nil {
				return err
			}
		}
		w.pendingMarks = make(map[string][]streamMark)
		w.currentMark++
		w.rowsWrittenInLastMark = 0
	}
	return nil
}

// FillChecksums completes all marks, flushes every stream and returns the
// manifest of the data and mark files. Later calls return the same manifest.
func (w *WideWriter) FillChecksums() (*checksum.Checksums, error) {
	if w.checksums != nil && w.state != stateCancelled {
		return w.checksums.Clone(), nil
	}
	if err := w.checkUsable(); err != nil {
		return nil, err
	}

	cs, err := w.fillChecksums()
	if err != nil {
		return nil, w.fail(err)
	}
	w.checksums = cs
	w.state = stateFinishing
	return cs.Clone(), nil
}

func (w *WideWriter) fillChecksums() (*checksum.Checksums, error) {
	if w.rowsWrittenInLastMark > 0 {
		if w.settings.Granularity.BlocksAreGranulesSize {
			return nil, fmt.Errorf("%w: incomplete last granule of %d rows while blocks are granules",
				ErrLogical, w.rowsWrittenInLastMark)
		}
		if err := w.adjustLastMarkIfNeedAndFlushToDisk(w.rowsWrittenInLastMark); err != nil {
			return nil, err
		}
	}

	for _, e := range w.entries {
		if !e.prefixWritten {
			continue
		}
		if err := e.ser.SerializeSuffix(nil, e.settings, e.state); err != nil {
			return nil, fmt.Errorf("serialize suffix of %s: %w", e.name, err)
		}
	}

	if w.settings.WithFinalMark && w.rows > 0 {
		for _, e := range w.entries {
			marks, err := w.currentMarksForColumn(e)
			if err != nil {
				return nil, err
			}
			if err := w.flushMarks(marks, 0); err != nil {
				return nil, err
			}
		}
		w.granularity.AppendMark(0)
	}

	cs := checksum.New()
	for _, s := range w.streams {
		if err := s.flush(); err != nil {
			return nil, err
		}
		s.addToChecksums(cs)

		compressed, _, marks := s.Stats()
		w.metrics.bytesWritten.WithLabelValues("bin").Add(float64(compressed))
		w.metrics.bytesWritten.WithLabelValues("mrk").Add(float64(marks))
	}

	if w.settings.SelfCheck {
		if err := w.validate(); err != nil {
			return nil, err
		}
	}

	w.logger.Debug("Part checksums filled",
		"rows", w.rows,
		"marks", w.granularity.MarksCount(),
		"files", len(cs.Files))
	return cs, nil
}

// Finish completes the part data, syncing every file when sync is set, and
// closes all streams. Checksums are filled first if needed.
func (w *WideWriter) Finish(sync bool) error {
	if err := w.checkUsable(); err != nil {
		return err
	}
	start := time.Now()

	if w.checksums == nil {
		if _, err := w.FillChecksums(); err != nil {
			return err
		}
	}

	var err error
	if sync {
		for _, s := range w.streams {
			err = multierr.Append(err, s.sync())
		}
	}
	for _, s := range w.streams {
		err = multierr.Append(err, s.close())
	}
	if err != nil {
		return w.fail(fmt.Errorf("failed to finish part: %w", err))
	}

	w.state = stateFinished
	w.metrics.parts.WithLabelValues("finished").Inc()
	w.metrics.finishSeconds.Observe(time.Since(start).Seconds())
	w.logger.Debug("Part data finished",
		"rows", w.rows,
		"marks", w.granularity.MarksCountWithoutFinal(),
		"streams", len(w.streams),
		"synced", sync)
	return nil
}

// Cancel closes every stream and removes all files the writer created. The
// part is never readable afterwards.
func (w *WideWriter) Cancel() error {
	switch w.state {
	case stateFinished, stateCancelled:
		return fmt.Errorf("%w: writer is %s", ErrWriterState, w.state)
	}

	err := w.removeStreams()
	w.state = stateCancelled
	w.pendingMarks = make(map[string][]streamMark)
	w.metrics.parts.WithLabelValues("cancelled").Inc()

	w.logger.Warn("Part writer cancelled", "rows", w.rows, "streams", len(w.streams))
	if err != nil {
		w.logger.Error("Failed to clean up cancelled part", "error", err)
	}
	return err
}

func (w *WideWriter) removeStreams() error {
	var err error
	for _, s := range w.streams {
		err = multierr.Append(err, s.close())
		err = multierr.Append(err, w.storage.Remove(s.DataFile()))
		err = multierr.Append(err, w.storage.Remove(s.MarkFile()))
	}
	return err
}
