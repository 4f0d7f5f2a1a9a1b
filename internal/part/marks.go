package part

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	markSize         = 16
	adaptiveMarkSize = 24
)

// Mark locates the start of a granule inside a stream: the offset of a
// compressed block in the file and the offset inside its decompressed data
type Mark struct {
	Compressed   uint64
	Decompressed uint64
}

func (m Mark) String() string {
	return fmt.Sprintf("(%d, %d)", m.Compressed, m.Decompressed)
}

// MarkRecord is one entry of a mark file. Rows is only stored in adaptive parts.
type MarkRecord struct {
	Mark
	Rows uint64
}

// appendMark encodes one mark file record
func appendMark(buf []byte, m Mark, rows uint64, adaptive bool) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, m.Compressed)
	buf = binary.LittleEndian.AppendUint64(buf, m.Decompressed)
	if adaptive {
		buf = binary.LittleEndian.AppendUint64(buf, rows)
	}
	return buf
}

// ReadMarks decodes a whole mark file
func ReadMarks(r io.Reader, adaptive bool) ([]MarkRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	size := markSize
	if adaptive {
		size = adaptiveMarkSize
	}
	if len(data)%size != 0 {
		return nil, fmt.Errorf("mark file of %d bytes is not a multiple of %d", len(data), size)
	}

	marks := make([]MarkRecord, 0, len(data)/size)
	for off := 0; off < len(data); off += size {
		rec := MarkRecord{
			Mark: Mark{
				Compressed:   binary.LittleEndian.Uint64(data[off:]),
				Decompressed: binary.LittleEndian.Uint64(data[off+8:]),
			},
		}
		if adaptive {
			rec.Rows = binary.LittleEndian.Uint64(data[off+16:])
		}
		marks = append(marks, rec)
	}
	return marks, nil
}

// streamMark is a mark captured for one stream, not yet written to its file
type streamMark struct {
	stream int
	mark   Mark
}
