package transport

import "bytes"

// lineBuffer retains bytes received past a terminator so that burst
// responses spanning several lines are served one line per Read.
type lineBuffer struct {
	pending []byte
}

// push appends received bytes.
func (b *lineBuffer) push(p []byte) {
	b.pending = append(b.pending, p...)
}

// takeLine pops everything through the first occurrence of term,
// terminator included. Returns false when no full line is buffered.
func (b *lineBuffer) takeLine(term []byte) ([]byte, bool) {
	idx := bytes.Index(b.pending, term)
	if idx < 0 {
		return nil, false
	}
	end := idx + len(term)
	line := make([]byte, end)
	copy(line, b.pending[:end])
	b.pending = b.pending[end:]
	return line, true
}

// takeByte pops a single byte, the read shape used by one-byte
// acknowledge handshakes.
func (b *lineBuffer) takeByte() (byte, bool) {
	if len(b.pending) == 0 {
		return 0, false
	}
	by := b.pending[0]
	b.pending = b.pending[1:]
	return by, true
}

// len reports the number of buffered bytes.
func (b *lineBuffer) len() int {
	return len(b.pending)
}
