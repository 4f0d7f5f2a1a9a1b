package part

import (
	"bufio"
	"fmt"

	"github.com/soltixdb/widepart/internal/checksum"
	"github.com/soltixdb/widepart/internal/compression"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// ColumnStream is one physical substream of a part: a data file of
// compressed blocks and a mark file. Bytes flow
// plain hashing -> compressed writer -> compressed hashing -> buffered file.
type ColumnStream struct {
	// FullName is the logical stream name, Stem the file name without extension
	FullName string
	Stem     string

	dataExt string
	markExt string

	dataFile   afero.File
	dataBuf    *bufio.Writer
	dataHash   *checksum.HashingWriter
	compressed *compression.CompressedWriter
	plain      *checksum.HashingWriter

	markFile afero.File
	markBuf  *bufio.Writer
	markHash *checksum.HashingWriter
	marks    int
	scratch  []byte

	closed bool
}

// newColumnStream creates the data and mark files of a stream
func newColumnStream(storage *Storage, fullName, stem string, codec compression.Compressor, maxBlockSize int, markExt string) (*ColumnStream, error) {
	s := &ColumnStream{
		FullName: fullName,
		Stem:     stem,
		dataExt:  DataFileExtension,
		markExt:  markExt,
	}

	dataFile, err := storage.Create(s.DataFile())
	if err != nil {
		return nil, err
	}
	markFile, err := storage.Create(s.MarkFile())
	if err != nil {
		return nil, multierr.Combine(err, dataFile.Close(), storage.Remove(s.DataFile()))
	}

	s.dataFile = dataFile
	s.dataBuf = bufio.NewWriter(dataFile)
	s.dataHash = checksum.NewHashingWriter(s.dataBuf)
	s.compressed = compression.NewCompressedWriter(s.dataHash, codec, maxBlockSize)
	s.plain = checksum.NewHashingWriter(s.compressed)

	s.markFile = markFile
	s.markBuf = bufio.NewWriter(markFile)
	s.markHash = checksum.NewHashingWriter(s.markBuf)
	return s, nil
}

func (s *ColumnStream) DataFile() string { return s.Stem + s.dataExt }
func (s *ColumnStream) MarkFile() string { return s.Stem + s.markExt }

// Write appends decompressed bytes to the stream
func (s *ColumnStream) Write(p []byte) (int, error) {
	return s.plain.Write(p)
}

// CurrentMark returns the position the next written byte will have
func (s *ColumnStream) CurrentMark() Mark {
	return Mark{
		Compressed:   s.compressed.Count(),
		Decompressed: uint64(s.compressed.Offset()),
	}
}

// cutBlockIfLarger starts a new compressed block when the current one holds
// at least minBlockSize bytes
func (s *ColumnStream) cutBlockIfLarger(minBlockSize int) error {
	if s.compressed.Offset() >= minBlockSize {
		return s.compressed.Next()
	}
	return nil
}

// nextIfAtEnd emits the current block if it is full
func (s *ColumnStream) nextIfAtEnd() error {
	return s.compressed.NextIfAtEnd()
}

// writeMark appends a record to the mark file
func (s *ColumnStream) writeMark(m Mark, rows uint64, adaptive bool) error {
	s.scratch = appendMark(s.scratch[:0], m, rows, adaptive)
	if _, err := s.markHash.Write(s.scratch); err != nil {
		return fmt.Errorf("failed to write mark of %s: %w", s.FullName, err)
	}
	s.marks++
	return nil
}

// Marks returns the number of marks written
func (s *ColumnStream) Marks() int {
	return s.marks
}

// flush emits the last block and drains the file buffers
func (s *ColumnStream) flush() error {
	if err := s.compressed.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.DataFile(), err)
	}
	if err := s.dataBuf.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.DataFile(), err)
	}
	if err := s.markBuf.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.MarkFile(), err)
	}
	return nil
}

func (s *ColumnStream) sync() error {
	return multierr.Combine(s.dataFile.Sync(), s.markFile.Sync())
}

// close releases both files without flushing
func (s *ColumnStream) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return multierr.Combine(s.dataFile.Close(), s.markFile.Close())
}

// addToChecksums records both files of the stream. Must follow flush.
func (s *ColumnStream) addToChecksums(cs *checksum.Checksums) {
	cs.AddCompressedFile(s.DataFile(), s.dataHash.Count(), s.dataHash.Sum64(), s.plain.Count(), s.plain.Sum64())
	cs.AddFile(s.MarkFile(), s.markHash.Count(), s.markHash.Sum64())
}

// Stats returns the compressed, decompressed and mark file sizes
func (s *ColumnStream) Stats() (compressed, uncompressed, marks uint64) {
	return s.dataHash.Count(), s.plain.Count(), s.markHash.Count()
}
