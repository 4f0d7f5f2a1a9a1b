package part

import (
	"fmt"

	"github.com/soltixdb/widepart/internal/compression"
	"github.com/soltixdb/widepart/internal/serialization"
	"github.com/soltixdb/widepart/internal/types"
	"go.uber.org/multierr"
)

type codecReporter interface {
	Codec() compression.ValueCodec
}

// selfCheckable reports whether a column is read back by the self-check:
// a single stream of plain fixed-size values
func selfCheckable(e *columnEntry) bool {
	if _, ok := e.typ.FixedSize(); !ok {
		return false
	}
	c, ok := e.ser.(codecReporter)
	return ok && c.Codec() == compression.CodecPlain && len(e.streams) == 1
}

// validate re-reads every self-checkable column mark by mark and compares
// the rows found with the index granularity
func (w *WideWriter) validate() error {
	checked := 0
	for _, e := range w.entries {
		if !selfCheckable(e) {
			continue
		}
		if err := w.validateColumnOfFixedSize(e); err != nil {
			return err
		}
		checked++
	}
	w.logger.Debug("Part self-check passed", "columns", checked, "marks", w.granularity.MarksCount())
	return nil
}

func (w *WideWriter) validateColumnOfFixedSize(e *columnEntry) (err error) {
	s := w.streams[e.streams[0]]
	adaptive := w.settings.Granularity.Adaptive()

	markFile, err := w.storage.Open(s.MarkFile())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, markFile.Close()) }()

	records, err := ReadMarks(markFile, adaptive)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, s.MarkFile(), err)
	}
	if len(records) != w.granularity.MarksCount() {
		return fmt.Errorf("%w: %s has %d marks, index granularity has %d",
			ErrValidation, s.MarkFile(), len(records), w.granularity.MarksCount())
	}

	dataFile, err := w.storage.Open(s.DataFile())
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dataFile.Close()) }()

	reader := compression.NewCompressedReader(dataFile)
	settings := &serialization.DeserializeSettings{
		Getter: func(serialization.SubstreamPath) serialization.Reader { return reader },
	}
	state := serialization.NewState()
	if err := e.ser.DeserializePrefix(nil, settings, state); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, e.name, err)
	}

	for i, rec := range records {
		rows, err := w.granularity.MarkRows(i)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if adaptive && rec.Rows != rows {
			return fmt.Errorf("%w: mark %d of %s declares %d rows, index granularity has %d",
				ErrValidation, i, s.MarkFile(), rec.Rows, rows)
		}
		if err := reader.Seek(rec.Compressed, rec.Decompressed); err != nil {
			return fmt.Errorf("%w: cannot seek to mark %d %s of %s: %v", ErrValidation, i, rec.Mark, s.DataFile(), err)
		}

		if rows == 0 {
			eof, err := reader.AtEOF()
			if err != nil || !eof {
				return fmt.Errorf("%w: final mark %d of %s is not at the end of the file", ErrValidation, i, s.DataFile())
			}
			continue
		}

		col := types.NewEmptyColumn(e.typ)
		if err := e.ser.DeserializeBulk(col, int(rows), nil, settings, state); err != nil {
			return fmt.Errorf("%w: cannot read %d rows of mark %d of %s: %v", ErrValidation, rows, i, s.DataFile(), err)
		}
		if col.Len() != int(rows) {
			return fmt.Errorf("%w: mark %d of %s has %d rows, expected %d", ErrValidation, i, s.DataFile(), col.Len(), rows)
		}
	}

	eof, err := reader.AtEOF()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrValidation, s.DataFile(), err)
	}
	if !eof {
		return fmt.Errorf("%w: still have data in %s after the last mark", ErrValidation, s.DataFile())
	}
	return nil
}
