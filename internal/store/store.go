// Package store persists the result cache, batch-validator checkpoints,
// and the dead-letter queue for failed batch rows.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/utility-lookup/internal/resilience"
)

// Store is the persistence interface the HTTP server and the batch
// validator share. A single embedded SQLite database backs all three
// concerns; they are kept on one interface because every implementation
// so far is one database handle.
type Store interface {
	// Result cache (C8).
	Get(ctx context.Context, addressKey string) (payload []byte, hit bool, err error)
	Put(ctx context.Context, addressKey string, payload []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, addressKey string) error
	ClearExpired(ctx context.Context) (int, error)
	ClearAll(ctx context.Context) (int, error)

	// Batch checkpoint/resume.
	SaveCheckpoint(ctx context.Context, runID string, data []byte) error
	LoadCheckpoint(ctx context.Context, runID string) (data []byte, ok bool, err error)
	DeleteCheckpoint(ctx context.Context, runID string) error

	// Dead letter queue for failed batch rows.
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
	IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	RemoveDLQ(ctx context.Context, id string) error
	CountDLQ(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// abbreviations standardizes the handful of street-suffix and directional
// abbreviations that most commonly appear in both forms across tenant data
// and geocoder output, so "123 N Main St" and "123 North Main Street" hash
// to the same cache key.
var abbreviations = map[string]string{
	"street": "st", "avenue": "ave", "boulevard": "blvd", "drive": "dr",
	"road": "rd", "lane": "ln", "court": "ct", "circle": "cir",
	"place": "pl", "terrace": "ter", "highway": "hwy", "parkway": "pkwy",
	"north": "n", "south": "s", "east": "e", "west": "w",
	"northeast": "ne", "northwest": "nw", "southeast": "se", "southwest": "sw",
	"apartment": "apt", "suite": "ste", "building": "bldg",
}

// AddressKey normalizes a raw address into the key the result cache uses:
// lowercase, collapsed whitespace, standardized street-suffix and
// directional abbreviations.
func AddressKey(raw string) string {
	fields := strings.Fields(strings.ToLower(raw))
	for i, f := range fields {
		trimmed := strings.Trim(f, ".,")
		if abbr, ok := abbreviations[trimmed]; ok {
			fields[i] = abbr
		} else {
			fields[i] = trimmed
		}
	}
	return strings.Join(fields, " ")
}
