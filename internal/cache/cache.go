// Package cache stores finished summaries keyed by a digest of their source
// text, so repeated requests for the same text skip the backend.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache provides summary caching
type Cache interface {
	// GetSummary retrieves a cached summary by key
	// Returns nil if not found
	GetSummary(ctx context.Context, key string) (*Summary, error)

	// SetSummary stores a summary with TTL
	SetSummary(ctx context.Context, key string, summary *Summary, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// Summary is a cached summarization result.
type Summary struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Key derives the cache key for a source text.
func Key(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
