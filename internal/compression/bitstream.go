package compression

import "math/bits"

// BitWriter packs bits MSB first into a byte buffer
type BitWriter struct {
	buf     []byte
	current byte
	used    uint8 // bits filled in current (0-7)
}

func NewBitWriter(capacity int) *BitWriter {
	return &BitWriter{buf: make([]byte, 0, capacity)}
}

// WriteBit writes a single bit (0 or 1)
func (w *BitWriter) WriteBit(bit byte) {
	w.WriteBits(uint64(bit&1), 1)
}

// WriteBits writes the lowest nbits bits of val, most significant first.
// nbits must be <= 64.
func (w *BitWriter) WriteBits(val uint64, nbits uint8) {
	for nbits > 0 {
		free := 8 - w.used
		if nbits < free {
			w.current |= byte(val<<(free-nbits)) & (0xFF >> w.used)
			w.used += nbits
			return
		}
		shift := nbits - free
		w.current |= byte(val>>shift) & (0xFF >> w.used)
		w.buf = append(w.buf, w.current)
		w.current, w.used = 0, 0
		nbits = shift
	}
}

// Bytes returns the written bits, the last partial byte zero padded
func (w *BitWriter) Bytes() []byte {
	if w.used > 0 {
		return append(w.buf, w.current)
	}
	return w.buf
}

// BitLen returns total number of bits written
func (w *BitWriter) BitLen() int {
	return len(w.buf)*8 + int(w.used)
}

// BitReader reads bits MSB first from a byte buffer
type BitReader struct {
	data []byte
	pos  int // absolute bit position
}

func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// ReadBit returns the next bit, ok=false once the data is exhausted
func (r *BitReader) ReadBit() (byte, bool) {
	v, ok := r.ReadBits(1)
	return byte(v), ok
}

// ReadBits reads nbits (<= 64) bits right aligned into a uint64
func (r *BitReader) ReadBits(nbits uint8) (uint64, bool) {
	if r.pos+int(nbits) > len(r.data)*8 {
		return 0, false
	}
	var val uint64
	for nbits > 0 {
		off := uint8(r.pos % 8)
		avail := 8 - off
		take := min(avail, nbits)
		b := r.data[r.pos/8] >> (avail - take) & (0xFF >> (8 - take))
		val = val<<take | uint64(b)
		r.pos += int(take)
		nbits -= take
	}
	return val, true
}

func LeadingZeros64(x uint64) uint8 {
	return uint8(bits.LeadingZeros64(x))
}

func TrailingZeros64(x uint64) uint8 {
	return uint8(bits.TrailingZeros64(x))
}
