package checksum

import (
	"io"

	"github.com/cespare/xxhash/v2"
)

// HashingWriter forwards writes to an underlying writer while counting bytes
// and hashing them with xxhash64
type HashingWriter struct {
	w      io.Writer
	digest *xxhash.Digest
	count  uint64
}

func NewHashingWriter(w io.Writer) *HashingWriter {
	return &HashingWriter{w: w, digest: xxhash.New()}
}

func (h *HashingWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	_, _ = h.digest.Write(p[:n])
	h.count += uint64(n)
	return n, err
}

// Count returns the number of bytes written so far
func (h *HashingWriter) Count() uint64 {
	return h.count
}

// Sum64 returns the hash of all bytes written so far
func (h *HashingWriter) Sum64() uint64 {
	return h.digest.Sum64()
}

// HashReader hashes everything readable from r
func HashReader(r io.Reader) (uint64, uint64, error) {
	digest := xxhash.New()
	n, err := io.Copy(digest, r)
	if err != nil {
		return 0, 0, err
	}
	return uint64(n), digest.Sum64(), nil
}
