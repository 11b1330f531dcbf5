package sandbox

import (
	"sync"
	"time"
)

// ConsoleEntry is one line written by generated code through the console stub.
type ConsoleEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"` // "log" or "error"
	Line      string    `json:"line"`
}

// Console is a bounded buffer that keeps the last N lines written by one
// execution. Each execution owns its own Console.
type Console struct {
	mu         sync.Mutex
	entries    []ConsoleEntry
	maxEntries int
	dropped    int
}

// NewConsole creates a console that retains up to maxEntries lines.
func NewConsole(maxEntries int) *Console {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxConsoleLines
	}
	return &Console{
		entries:    make([]ConsoleEntry, 0, min(maxEntries, 64)),
		maxEntries: maxEntries,
	}
}

// Write appends a line, dropping the oldest one when full.
func (c *Console) Write(stream, line string) {
	if len(line) > maxConsoleLineBytes {
		line = line[:maxConsoleLineBytes] + "…"
	}
	entry := ConsoleEntry{
		Timestamp: time.Now().UTC(),
		Stream:    stream,
		Line:      line,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.entries = c.entries[1:]
		c.dropped++
	}
	c.entries = append(c.entries, entry)
}

// Entries returns a copy of the retained lines, oldest first.
func (c *Console) Entries() []ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConsoleEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Dropped reports how many lines were evicted.
func (c *Console) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
