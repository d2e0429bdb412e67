package auction

import (
	"context"
	"io"
	"time"
)

// Fetcher performs one rate-limited logical GET. It never fails outside of
// the returned outcome.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchOutcome
}

// BlobStore writes attachment payloads and returns a location URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ResultRecorder persists finalized results (audit log).
type ResultRecorder interface {
	RecordResult(ctx context.Context, result Result) error
}

// IDGenerator produces request ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
