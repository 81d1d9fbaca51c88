package runner

import "sync"

// LogBuffer is an append-only sequence of log lines supporting offset-based
// reads. Consumers may poll Since repeatedly; reads are monotonic and
// gap-free, and never block writers.
type LogBuffer struct {
	mu    sync.RWMutex
	lines []string
}

// NewLogBuffer returns an empty buffer.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{}
}

// Append adds one line to the end of the buffer.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

// Since returns a copy of all lines at or after offset, plus the next
// offset to poll from. Offsets beyond the end return no lines; negative
// offsets read from the start.
func (b *LogBuffer) Since(offset int) ([]string, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(b.lines) {
		return nil, len(b.lines)
	}
	out := make([]string, len(b.lines)-offset)
	copy(out, b.lines[offset:])
	return out, len(b.lines)
}

// Len returns the number of lines appended so far.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Tail returns a copy of the last n lines (all lines when n exceeds the
// buffer length).
func (b *LogBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := len(b.lines) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(b.lines)-start)
	copy(out, b.lines[start:])
	return out
}

// Snapshot returns a copy of the whole buffer.
func (b *LogBuffer) Snapshot() []string {
	lines, _ := b.Since(0)
	return lines
}
