package ui

import (
	"strings"
	"sync"
)

// LogBuffer keeps the last lines written to it so log output can be shown
// inside the full-screen stage instead of tearing through it.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	size  int
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{size: max(size, 1)}
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	if text == "" {
		return len(p), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, strings.Split(text, "\n")...)
	if over := len(b.lines) - b.size; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
	return len(p), nil
}

// Tail returns up to n of the most recent lines, oldest first.
func (b *LogBuffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	n = min(n, len(b.lines))
	if n <= 0 {
		return nil
	}
	return append([]string(nil), b.lines[len(b.lines)-n:]...)
}
