package compression

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Compressed block layout:
//
//	[checksum: 8 bytes LE, xxhash64 of everything after it]
//	[method: 1 byte]
//	[compressed size: 4 bytes LE, header included]
//	[decompressed size: 4 bytes LE]
//	[payload]
const (
	ChecksumSize    = 8
	BlockHeaderSize = 9
)

// ErrCorruptBlock is returned when a block fails its checksum or header checks
var ErrCorruptBlock = errors.New("corrupt compressed block")

// EncodeBlock compresses data into one framed block. Blocks that do not
// shrink are stored with method None.
func EncodeBlock(codec Compressor, data []byte) ([]byte, error) {
	method := codec.Algorithm()
	payload, err := codec.Compress(data)
	if err != nil {
		return nil, err
	}
	if payload == nil || method != None && len(payload) >= len(data) {
		method = None
		payload = data
	}

	out := make([]byte, ChecksumSize+BlockHeaderSize+len(payload))
	out[ChecksumSize] = byte(method)
	binary.LittleEndian.PutUint32(out[ChecksumSize+1:], uint32(BlockHeaderSize+len(payload)))
	binary.LittleEndian.PutUint32(out[ChecksumSize+5:], uint32(len(data)))
	copy(out[ChecksumSize+BlockHeaderSize:], payload)
	binary.LittleEndian.PutUint64(out, xxhash.Sum64(out[ChecksumSize:]))
	return out, nil
}

// BlockHeader is the decoded fixed part of a block
type BlockHeader struct {
	Checksum         uint64
	Method           Algorithm
	CompressedSize   uint32
	DecompressedSize uint32
}

// ParseBlockHeader decodes the first ChecksumSize+BlockHeaderSize bytes of a block
func ParseBlockHeader(data []byte) (BlockHeader, error) {
	if len(data) < ChecksumSize+BlockHeaderSize {
		return BlockHeader{}, fmt.Errorf("%w: header too short", ErrCorruptBlock)
	}
	h := BlockHeader{
		Checksum:         binary.LittleEndian.Uint64(data),
		Method:           Algorithm(data[ChecksumSize]),
		CompressedSize:   binary.LittleEndian.Uint32(data[ChecksumSize+1:]),
		DecompressedSize: binary.LittleEndian.Uint32(data[ChecksumSize+5:]),
	}
	if h.CompressedSize < BlockHeaderSize {
		return BlockHeader{}, fmt.Errorf("%w: compressed size %d smaller than header", ErrCorruptBlock, h.CompressedSize)
	}
	return h, nil
}

// CompressedWriter buffers bytes and emits them as framed compressed blocks.
// A block is cut when the buffer reaches maxBlockSize or Next is called.
type CompressedWriter struct {
	out          io.Writer
	codec        Compressor
	maxBlockSize int

	buf          []byte
	written      uint64
	uncompressed uint64
	blocks       int
}

func NewCompressedWriter(out io.Writer, codec Compressor, maxBlockSize int) *CompressedWriter {
	return &CompressedWriter{
		out:          out,
		codec:        codec,
		maxBlockSize: maxBlockSize,
		buf:          make([]byte, 0, maxBlockSize),
	}
}

// Write appends p to the current block, cutting blocks as the buffer fills.
// A full buffer is only emitted once more data arrives.
func (w *CompressedWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		if len(w.buf) >= w.maxBlockSize {
			if err := w.Next(); err != nil {
				return total - len(p), err
			}
		}
		n := min(w.maxBlockSize-len(w.buf), len(p))
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
	}
	return total, nil
}

// WriteByte implements io.ByteWriter
func (w *CompressedWriter) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// Offset returns the number of bytes in the current, not yet emitted block
func (w *CompressedWriter) Offset() int {
	return len(w.buf)
}

// Count returns the number of compressed bytes emitted to the underlying writer
func (w *CompressedWriter) Count() uint64 {
	return w.written
}

// UncompressedBytes returns the number of bytes accepted by Write
func (w *CompressedWriter) UncompressedBytes() uint64 {
	return w.uncompressed + uint64(len(w.buf))
}

// Blocks returns the number of emitted blocks
func (w *CompressedWriter) Blocks() int {
	return w.blocks
}

// Next compresses the buffered bytes into a block. It is a no-op for an empty buffer.
func (w *CompressedWriter) Next() error {
	if len(w.buf) == 0 {
		return nil
	}
	block, err := EncodeBlock(w.codec, w.buf)
	if err != nil {
		return err
	}
	if _, err := w.out.Write(block); err != nil {
		return fmt.Errorf("writing compressed block: %w", err)
	}
	w.written += uint64(len(block))
	w.uncompressed += uint64(len(w.buf))
	w.blocks++
	w.buf = w.buf[:0]
	return nil
}

// NextIfAtEnd emits the current block only if the buffer is full
func (w *CompressedWriter) NextIfAtEnd() error {
	if len(w.buf) >= w.maxBlockSize {
		return w.Next()
	}
	return nil
}

// Flush emits any pending bytes
func (w *CompressedWriter) Flush() error {
	return w.Next()
}

// CompressedReader reads the decompressed byte stream of a file of framed
// blocks and can be positioned at a mark.
type CompressedReader struct {
	src    io.ReadSeeker
	codecs map[Algorithm]Compressor

	block      []byte
	pos        int
	blockStart uint64
	nextBlock  uint64
}

func NewCompressedReader(src io.ReadSeeker) *CompressedReader {
	return &CompressedReader{src: src, codecs: make(map[Algorithm]Compressor)}
}

// Seek positions the reader at decompressed offset inside the block that
// starts at compressed offset. An offset equal to the file size with a zero
// decompressed offset positions the reader at EOF.
func (r *CompressedReader) Seek(compressed, decompressed uint64) error {
	if _, err := r.src.Seek(int64(compressed), io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", compressed, err)
	}
	r.nextBlock = compressed
	r.block = r.block[:0]
	r.pos = 0

	err := r.readBlock()
	if errors.Is(err, io.EOF) {
		if decompressed != 0 {
			return fmt.Errorf("decompressed offset %d past end of file", decompressed)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if decompressed > uint64(len(r.block)) {
		return fmt.Errorf("decompressed offset %d outside block of %d bytes at %d", decompressed, len(r.block), compressed)
	}
	r.pos = int(decompressed)
	return nil
}

// Position returns the (compressed, decompressed) pair of the next byte to be
// read, normalized to the start of the next block when the current one is drained.
func (r *CompressedReader) Position() (uint64, uint64) {
	if r.pos >= len(r.block) {
		return r.nextBlock, 0
	}
	return r.blockStart, uint64(r.pos)
}

// AtEOF reports whether no more bytes can be read
func (r *CompressedReader) AtEOF() (bool, error) {
	if r.pos < len(r.block) {
		return false, nil
	}
	err := r.readBlock()
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

func (r *CompressedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if r.pos >= len(r.block) {
		if err := r.readBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.block[r.pos:])
	r.pos += n
	return n, nil
}

// ReadByte implements io.ByteReader
func (r *CompressedReader) ReadByte() (byte, error) {
	for r.pos >= len(r.block) {
		if err := r.readBlock(); err != nil {
			return 0, err
		}
	}
	b := r.block[r.pos]
	r.pos++
	return b, nil
}

func (r *CompressedReader) readBlock() error {
	head := make([]byte, ChecksumSize+BlockHeaderSize)
	if _, err := io.ReadFull(r.src, head); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("%w: reading header at %d: %v", ErrCorruptBlock, r.nextBlock, err)
	}
	h, err := ParseBlockHeader(head)
	if err != nil {
		return err
	}

	payload := make([]byte, h.CompressedSize-BlockHeaderSize)
	if _, err := io.ReadFull(r.src, payload); err != nil {
		return fmt.Errorf("%w: reading payload at %d: %v", ErrCorruptBlock, r.nextBlock, err)
	}

	digest := xxhash.New()
	_, _ = digest.Write(head[ChecksumSize:])
	_, _ = digest.Write(payload)
	if digest.Sum64() != h.Checksum {
		return fmt.Errorf("%w: checksum mismatch at %d", ErrCorruptBlock, r.nextBlock)
	}

	codec, err := r.codec(h.Method)
	if err != nil {
		return err
	}
	data, err := codec.Decompress(payload, int(h.DecompressedSize))
	if err != nil {
		return fmt.Errorf("block at %d: %w", r.nextBlock, err)
	}

	r.blockStart = r.nextBlock
	r.nextBlock += uint64(ChecksumSize) + uint64(h.CompressedSize)
	r.block = data
	r.pos = 0
	return nil
}

func (r *CompressedReader) codec(algo Algorithm) (Compressor, error) {
	if c, ok := r.codecs[algo]; ok {
		return c, nil
	}
	c, err := GetCompressor(algo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
	}
	r.codecs[algo] = c
	return c, nil
}
