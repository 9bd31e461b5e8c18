package pdu

// bitReader reads big endian bit fields, most significant bit first, as used by the
// CDMA bearer data encoding.
type bitReader struct {
	data []byte
	pos  int // in bits
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (r *bitReader) remaining() int {
	return len(r.data)*8 - r.pos
}

// read returns the next n bits, n <= 32.
func (r *bitReader) read(n int) (uint32, error) {
	if n > r.remaining() {
		return 0, truncated("bit field of %d bits at offset %d exceeds %d bytes", n, r.pos, len(r.data))
	}
	var v uint32
	for i := 0; i < n; i++ {
		b := r.data[(r.pos+i)/8]
		bit := (b >> (7 - uint((r.pos+i)%8))) & 0x01
		v = v<<1 | uint32(bit)
	}
	r.pos += n
	return v, nil
}

// readFields returns count fields of width bits each, one field per byte. width <= 8.
func (r *bitReader) readFields(count, width int) ([]byte, error) {
	out := make([]byte, count)
	for i := range out {
		v, err := r.read(width)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

func (r *bitReader) skip(n int) error {
	if n > r.remaining() {
		return truncated("skip of %d bits at offset %d exceeds %d bytes", n, r.pos, len(r.data))
	}
	r.pos += n
	return nil
}
