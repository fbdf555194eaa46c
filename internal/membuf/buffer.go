package membuf

// ReleaseFunc is invoked exactly once, when the buffer's read head advances
// past the external segment it was attached to. It lets a value's backing
// array stay live in the cache table while a send is in flight without the
// buffer taking ownership of it.
type ReleaseFunc func()

// segment is one link in the buffer's FIFO chain. Internal segments own
// pooled memory that Buffer allocates and recycles; external segments
// borrow caller-supplied memory and call release when they are consumed.
type segment struct {
	data     []byte
	next     *segment
	internal bool
	release  ReleaseFunc
}

// Buffer is an unbounded FIFO of bytes assembled from internal (pooled,
// buffer-owned) and external (borrowed) segments. Data is appended at the
// tail and consumed from the head, exactly like the source's mm_buffer:
// a growing tail segment for incoming bytes, a draining head segment for
// outgoing ones, with whole segments recycled once fully drained.
//
// A Buffer is not safe for concurrent use; each connection fiber owns one.
type Buffer struct {
	head    *segment
	tail    *segment
	headOff int
	tailOff int
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Empty reports whether there are no unread bytes.
func (b *Buffer) Empty() bool {
	if b.head == nil {
		return true
	}
	if b.head != b.tail {
		return false
	}
	return b.headOff == b.tailOff
}

// Len returns the number of unread bytes currently buffered.
func (b *Buffer) Len() int {
	n := 0
	for s := b.head; s != nil; s = s.next {
		if s == b.tail {
			n += b.tailOff
			break
		}
		n += len(s.data)
	}
	if b.head != nil {
		n -= b.headOff
	}
	return n
}

// demand ensures the tail segment has room for at least size more bytes,
// appending a fresh internal segment if necessary.
func (b *Buffer) demand(size int) {
	if b.tail != nil && len(b.tail.data)-b.tailOff >= size {
		return
	}
	chunkSize := defaultChunkSize
	if size > chunkSize {
		chunkSize = size
	}
	s := &segment{data: getChunk(chunkSize), internal: true}
	if b.tail == nil {
		b.head = s
		b.tail = s
		b.headOff = 0
		b.tailOff = 0
		return
	}
	b.tail.data = b.tail.data[:b.tailOff]
	b.tail.next = s
	b.tail = s
	b.tailOff = 0
}

// Write copies p into the buffer's tail, growing it as needed. It never
// fails: like the reference buffer, demand always succeeds or panics via
// the underlying allocator.
func (b *Buffer) Write(p []byte) (int, error) {
	remaining := p
	for len(remaining) > 0 {
		want := len(remaining)
		if want > defaultChunkSize {
			want = defaultChunkSize
		}
		b.demand(want)
		n := copy(b.tail.data[b.tailOff:], remaining)
		b.tailOff += n
		remaining = remaining[n:]
	}
	return len(p), nil
}

// Splice appends an externally-owned segment without copying. release, if
// non-nil, is called exactly once when the head consumes past data.
func (b *Buffer) Splice(data []byte, release ReleaseFunc) {
	if len(data) == 0 {
		if release != nil {
			release()
		}
		return
	}
	s := &segment{data: data, release: release}
	if b.tail == nil {
		b.head = s
		b.tail = s
		b.headOff = 0
		b.tailOff = len(data)
		return
	}
	// The current tail is closed at its written length (any unwritten
	// room in an internal chunk is dropped); the external segment is
	// appended as its own link and becomes the new tail, so later writes
	// go into a fresh internal segment after it.
	b.tail.data = b.tail.data[:b.tailOff]
	b.tail.next = s
	b.tail = s
	b.tailOff = len(data)
}

// advanceHead releases the current head segment (recycling internal
// memory, invoking external release callbacks) and moves to the next one.
func (b *Buffer) advanceHead() {
	s := b.head
	if s.internal {
		putChunk(s.data)
	} else if s.release != nil {
		s.release()
	}
	b.head = s.next
	b.headOff = 0
	if b.head == nil {
		b.tail = nil
		b.tailOff = 0
	}
}

// Read drains up to len(p) bytes from the head of the buffer.
func (b *Buffer) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if b.head == nil {
			break
		}
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
		n := copy(p[total:], b.head.data[b.headOff:segEnd])
		b.headOff += n
		total += n
		if b.headOff >= len(b.head.data) {
			b.advanceHead()
		}
	}
	if total == 0 && len(p) > 0 {
		return 0, errBufferEmpty
	}
	return total, nil
}

// Discard drops up to n unread bytes from the head without copying them
// anywhere, releasing any segments fully consumed in the process.
func (b *Buffer) Discard(n int) int {
	discarded := 0
	for discarded < n {
		if b.head == nil {
			break
		}
		segEnd := len(b.head.data)
		if b.head == b.tail {
			segEnd = b.tailOff
		}
		avail := segEnd - b.headOff
		want := n - discarded
		if avail <= want {
			discarded += avail
			if b.head == b.tail {
				b.headOff = segEnd
				break
			}
			b.advanceHead()
			continue
		}
		b.headOff += want
		discarded += want
	}
	return discarded
}

// PeekByte returns the byte at offset i past the current head without
// consuming it, and whether that many bytes are actually buffered.
func (b *Buffer) PeekByte(i int) (byte, bool) {
	for s := b.head; s != nil; s = s.next {
		start := 0
		if s == b.head {
			start = b.headOff
		}
		end := len(s.data)
		if s == b.tail {
			end = b.tailOff
		}
		n := end - start
		if i < n {
			return s.data[start+i], true
		}
		i -= n
	}
	return 0, false
}

// Reset releases every segment, recycling internal ones and invoking
// release callbacks on external ones, leaving the buffer empty.
func (b *Buffer) Reset() {
	for b.head != nil {
		b.advanceHead()
	}
}

type bufferError string

func (e bufferError) Error() string { return string(e) }

const errBufferEmpty = bufferError("membuf: read from empty buffer")
