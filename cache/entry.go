package cache

import (
	"time"

	"github.com/devcache/devcache/cache/integrity"
)

// Entry is the unit of cached data. It is owned by the Manager and
// mutated only through Get/Set.
type Entry struct {
	Key          string           `json:"key"`
	Data         []byte           `json:"data"`
	Timestamp    int64            `json:"timestamp"` // unix milliseconds
	Hash         string           `json:"hash,omitempty"`
	Size         int              `json:"size"`
	Compressed   bool             `json:"compressed"`
	AccessCount  int64            `json:"access_count"`
	LastAccessed int64            `json:"last_accessed"`
	TTL          time.Duration    `json:"ttl,omitempty"`
	Checksum     integrity.Result `json:"checksum"`
}

// IsExpired checks whether the entry's TTL has elapsed
func (entry *Entry) IsExpired(now time.Time) bool {
	if entry.TTL <= 0 {
		return false
	}

	return now.UnixMilli()-entry.Timestamp > entry.TTL.Milliseconds()
}

// IsValid checks TTL and, when an input hash was supplied at lookup time,
// that it equals the stored hash
func (entry *Entry) IsValid(now time.Time, inputHash string) bool {
	if entry.IsExpired(now) {
		return false
	}

	if len(inputHash) > 0 && inputHash != entry.Hash {
		return false
	}

	return true
}

// Touch updates access metadata
func (entry *Entry) Touch(now time.Time) {
	entry.AccessCount++
	entry.LastAccessed = now.UnixMilli()
}
