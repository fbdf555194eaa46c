package membuf

import "io"

// FillFrom reads one chunk's worth of data directly from r into the
// buffer's tail segment, growing it first if it has no room. It returns
// the number of bytes appended and r's error (including io.EOF) unwrapped.
// This is the counterpart of the reference's mm_buffer_fill: the event
// loop calls it once per readiness notification so incoming bytes land
// straight in buffer-owned memory with no intermediate copy.
func (b *Buffer) FillFrom(r io.Reader) (int, error) {
	b.demand(defaultChunkSize)
	n, err := r.Read(b.tail.data[b.tailOff:])
	b.tailOff += n
	return n, err
}

// FlushTo writes up to size unread bytes to w, advancing the head past
// whatever was successfully written. It issues one Write per segment and
// moves on to the next segment until size bytes have been written, the
// buffer is drained, or a Write comes back short or with an error,
// mirroring mm_buffer_flush's segment-at-a-time drain so a short write
// never loses track of which segment it was writing from.
func (b *Buffer) FlushTo(w io.Writer, size int) (int, error) {
	written := 0
	for written < size && b.head != nil {
		segEnd := len(b.head.data)
		if b.head == b.tail {
			segEnd = b.tailOff
		}
		avail := segEnd - b.headOff
		if avail <= 0 {
			if b.head == b.tail {
				break
			}
			b.advanceHead()
			continue
		}
		want := size - written
		if want > avail {
			want = avail
		}
		n, err := w.Write(b.head.data[b.headOff : b.headOff+want])
		b.headOff += n
		written += n
		if err != nil {
			return written, err
		}
		if n < want {
			return written, nil
		}
		if b.headOff >= len(b.head.data) {
			b.advanceHead()
		} else if b.head == b.tail && b.headOff >= b.tailOff {
			break
		}
	}
	return written, nil
}

// WriteTo drains the entire buffer to w, implementing io.WriterTo.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for !b.Empty() {
		n, err := b.FlushTo(w, b.Len())
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
