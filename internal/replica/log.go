// Package replica implements the ordered-commit state machine: the log,
// reorder buffer, multicast-signatures table, reply cache, and the
// single-writer commit loop that drives them.
package replica

import "neobft/internal/wire"

// LogEntry is a committed request, indexed 1-based by seq. NextLink is
// the cumulative SHA-256 chain hash used under the P-256-with-linking
// discipline; it is unused (zero) under the other two disciplines.
type LogEntry struct {
	Request  wire.Request
	NextLink [32]byte
}

// Log is a 1-indexed append-only sequence of LogEntry.
type Log struct {
	entries []LogEntry
}

// Len returns the number of committed entries.
func (l *Log) Len() uint32 { return uint32(len(l.entries)) }

// At returns the entry at 1-based position seq. seq must be <= Len().
func (l *Log) At(seq uint32) *LogEntry {
	return &l.entries[seq-1]
}

// Has reports whether seq has already been committed.
func (l *Log) Has(seq uint32) bool { return seq <= l.Len() }

// Append adds a new entry at position Len()+1.
func (l *Log) Append(entry LogEntry) {
	l.entries = append(l.entries, entry)
}
