package ui

import (
	"strings"
	"sync"
)

// DefaultLogLines is the number of lines LogBuffer keeps by default.
const DefaultLogLines = 500

// LogBuffer is an io.Writer that keeps the most recent log lines for the
// activity pane. Writers never block on the UI.
type LogBuffer struct {
	mu      sync.Mutex
	lines   []string
	partial string
	max     int
	updates chan struct{}
}

// NewLogBuffer creates a buffer keeping at most limit lines.
func NewLogBuffer(limit int) *LogBuffer {
	if limit <= 0 {
		limit = DefaultLogLines
	}
	return &LogBuffer{
		max:     limit,
		updates: make(chan struct{}, 1),
	}
}

// Write appends complete lines; a trailing partial line is held until its
// newline arrives.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	text := b.partial + string(p)
	parts := strings.Split(text, "\n")
	b.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		b.lines = append(b.lines, strings.TrimRight(line, "\r"))
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append(b.lines[:0:0], b.lines[over:]...)
	}
	b.mu.Unlock()

	select {
	case b.updates <- struct{}{}:
	default:
	}
	return len(p), nil
}

// Lines returns a copy of the buffered lines.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

// String joins the buffered lines.
func (b *LogBuffer) String() string {
	return strings.Join(b.Lines(), "\n")
}

// Updates signals, coalesced, that new lines were written.
func (b *LogBuffer) Updates() <-chan struct{} {
	return b.updates
}
