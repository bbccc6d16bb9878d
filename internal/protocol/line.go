package protocol

// DefaultLineCapacity is the size of the line accumulator, including the
// slot reserved for the terminator.
const DefaultLineCapacity = 64

// FeedResult tells the caller what a byte did to the line buffer.
type FeedResult int

const (
	// Pending means the byte was stored.
	Pending FeedResult = iota
	// Complete means a terminator closed a non-empty line.
	Complete
	// Ignored means a terminator arrived on an empty buffer.
	Ignored
	// Overflow means the buffer was full; its content and the byte were discarded.
	Overflow
)

// LineBuffer accumulates bytes until CR or LF. The write cursor stays below
// capacity-1 so a line never exceeds capacity-1 bytes.
type LineBuffer struct {
	buf    []byte
	cursor int
}

// NewLineBuffer creates a buffer. capacity below 2 is raised to 2.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &LineBuffer{buf: make([]byte, capacity)}
}

// Cap returns the buffer capacity.
func (b *LineBuffer) Cap() int { return len(b.buf) }

// Len returns the number of buffered bytes.
func (b *LineBuffer) Len() int { return b.cursor }

// Feed processes one byte. The returned line is only set for Complete.
func (b *LineBuffer) Feed(c byte) (string, FeedResult) {
	if c == '\n' || c == '\r' {
		if b.cursor == 0 {
			return "", Ignored
		}
		line := string(b.buf[:b.cursor])
		b.cursor = 0
		return line, Complete
	}
	if b.cursor >= len(b.buf)-1 {
		b.cursor = 0
		return "", Overflow
	}
	b.buf[b.cursor] = c
	b.cursor++
	return "", Pending
}

// Reset discards buffered content.
func (b *LineBuffer) Reset() { b.cursor = 0 }
