package archive

import (
	"context"
	"net/http"
	"time"
)

// Checkpoint persists the index of the most recently dispatched record.
// Load returns zero when nothing has been persisted yet.
type Checkpoint interface {
	Load(ctx context.Context) (DispatchProgress, error)
	Save(ctx context.Context, progress DispatchProgress) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes upload notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher issues a single GET and reports the status and body. Non-2xx
// responses are returned as responses, not errors; errors are reserved for
// transport failures and timeouts.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Response is what a Fetcher returns for a completed request.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for upload notifications.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
