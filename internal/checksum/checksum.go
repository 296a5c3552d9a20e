// Package checksum fingerprints file contents so a watcher can tell its
// own writes apart from edits made by someone else.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Ledger remembers the digest of the last content written under each key.
// It is safe for concurrent use.
type Ledger struct {
	mu   sync.Mutex
	sums map[string]string
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{sums: make(map[string]string)}
}

// Record notes that data was written under key.
func (l *Ledger) Record(key string, data []byte) {
	sum := Sum(data)
	l.mu.Lock()
	l.sums[key] = sum
	l.mu.Unlock()
}

// Matches reports whether data is exactly what was last recorded for key.
func (l *Ledger) Matches(key string, data []byte) bool {
	sum := Sum(data)
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.sums[key]
	return ok && last == sum
}
