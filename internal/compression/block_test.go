package compression

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func newTestWriter(t *testing.T, algo Algorithm, maxBlock int) (*CompressedWriter, *bytes.Buffer) {
	t.Helper()
	codec, err := GetCompressor(algo)
	if err != nil {
		t.Fatalf("GetCompressor failed: %v", err)
	}
	var out bytes.Buffer
	return NewCompressedWriter(&out, codec, maxBlock), &out
}

func TestCompressedWriter_BuffersUntilFull(t *testing.T) {
	w, out := newTestWriter(t, LZ4, 16)

	if _, err := w.Write(make([]byte, 10)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if w.Offset() != 10 || w.Count() != 0 || out.Len() != 0 {
		t.Fatalf("Expected 10 buffered bytes and nothing emitted, got offset=%d count=%d", w.Offset(), w.Count())
	}

	// Filling the buffer exactly does not emit it yet
	if _, err := w.Write(make([]byte, 6)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if w.Offset() != 16 || w.Blocks() != 0 {
		t.Fatalf("Expected full buffer, got offset=%d blocks=%d", w.Offset(), w.Blocks())
	}

	if err := w.NextIfAtEnd(); err != nil {
		t.Fatalf("NextIfAtEnd failed: %v", err)
	}
	if w.Offset() != 0 || w.Blocks() != 1 || w.Count() != uint64(out.Len()) {
		t.Fatalf("Expected one emitted block, got offset=%d blocks=%d count=%d", w.Offset(), w.Blocks(), w.Count())
	}

	// Not full: NextIfAtEnd keeps the data
	if _, err := w.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.NextIfAtEnd(); err != nil {
		t.Fatalf("NextIfAtEnd failed: %v", err)
	}
	if w.Offset() != 3 {
		t.Errorf("Expected 3 buffered bytes, got %d", w.Offset())
	}
	if w.UncompressedBytes() != 19 {
		t.Errorf("Expected 19 uncompressed bytes, got %d", w.UncompressedBytes())
	}
}

func TestCompressedWriter_SplitsLargeWrites(t *testing.T) {
	w, _ := newTestWriter(t, None, 8)

	if _, err := w.Write(make([]byte, 20)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if w.Blocks() != 2 || w.Offset() != 4 {
		t.Errorf("Expected 2 blocks and 4 buffered bytes, got %d and %d", w.Blocks(), w.Offset())
	}
	if w.Count() != 2*(ChecksumSize+BlockHeaderSize+8) {
		t.Errorf("Unexpected compressed count %d", w.Count())
	}
}

func TestCompressedReader_SeekToMarks(t *testing.T) {
	for _, algo := range []Algorithm{None, Snappy, LZ4, Zstd} {
		t.Run(algo.String(), func(t *testing.T) {
			w, out := newTestWriter(t, algo, 64)

			type mark struct{ compressed, decompressed uint64 }
			var marks []mark
			var want [][]byte
			for i := 0; i < 10; i++ {
				marks = append(marks, mark{w.Count(), uint64(w.Offset())})
				chunk := bytes.Repeat([]byte{byte('a' + i)}, 7+i*3)
				want = append(want, chunk)
				if _, err := w.Write(chunk); err != nil {
					t.Fatalf("Write failed: %v", err)
				}
				if err := w.NextIfAtEnd(); err != nil {
					t.Fatalf("NextIfAtEnd failed: %v", err)
				}
			}
			if err := w.Flush(); err != nil {
				t.Fatalf("Flush failed: %v", err)
			}

			r := NewCompressedReader(bytes.NewReader(out.Bytes()))
			for i := len(marks) - 1; i >= 0; i-- {
				if err := r.Seek(marks[i].compressed, marks[i].decompressed); err != nil {
					t.Fatalf("Seek to mark %d failed: %v", i, err)
				}
				got := make([]byte, len(want[i]))
				if _, err := io.ReadFull(r, got); err != nil {
					t.Fatalf("ReadFull at mark %d failed: %v", i, err)
				}
				if !bytes.Equal(got, want[i]) {
					t.Errorf("Mark %d: got %q, want %q", i, got, want[i])
				}
			}

			last := len(marks) - 1
			if err := r.Seek(marks[last].compressed, marks[last].decompressed); err != nil {
				t.Fatalf("Seek to last mark failed: %v", err)
			}
			if _, err := io.ReadFull(r, make([]byte, len(want[last]))); err != nil {
				t.Fatalf("ReadFull failed: %v", err)
			}
			eof, err := r.AtEOF()
			if err != nil || !eof {
				t.Errorf("Expected EOF after last chunk, got eof=%v err=%v", eof, err)
			}
		})
	}
}

func TestCompressedReader_SeekAtEndOfFile(t *testing.T) {
	w, out := newTestWriter(t, LZ4, 32)
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	r := NewCompressedReader(bytes.NewReader(out.Bytes()))
	if err := r.Seek(w.Count(), 0); err != nil {
		t.Fatalf("Seek to end failed: %v", err)
	}
	if c, d := r.Position(); c != w.Count() || d != 0 {
		t.Errorf("Unexpected position (%d, %d)", c, d)
	}
	if err := r.Seek(w.Count(), 1); err == nil {
		t.Error("Expected error for decompressed offset past end of file")
	}
	if err := r.Seek(0, 6); err == nil {
		t.Error("Expected error for decompressed offset outside block")
	}
}

func TestCompressedReader_DetectsCorruption(t *testing.T) {
	w, out := newTestWriter(t, Snappy, 128)
	if _, err := w.Write(bytes.Repeat([]byte("xyz"), 20)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data := out.Bytes()
	data[len(data)-1] ^= 0xFF

	r := NewCompressedReader(bytes.NewReader(data))
	_, err := r.ReadByte()
	if !errors.Is(err, ErrCorruptBlock) {
		t.Errorf("Expected ErrCorruptBlock, got %v", err)
	}
}

func TestEncodeBlock_IncompressibleStoredRaw(t *testing.T) {
	codec := NewLZ4Compressor()
	data := []byte{0x01, 0x9a, 0x33, 0xf0}

	block, err := EncodeBlock(codec, data)
	if err != nil {
		t.Fatalf("EncodeBlock failed: %v", err)
	}
	h, err := ParseBlockHeader(block)
	if err != nil {
		t.Fatalf("ParseBlockHeader failed: %v", err)
	}
	if h.Method != None {
		t.Errorf("Expected raw block, got method %s", h.Method)
	}
	if int(h.CompressedSize) != BlockHeaderSize+len(data) || int(h.DecompressedSize) != len(data) {
		t.Errorf("Unexpected sizes %d/%d", h.CompressedSize, h.DecompressedSize)
	}
}
