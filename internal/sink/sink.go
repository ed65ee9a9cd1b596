// Package sink uploads downloaded snapshot bodies to a blob store under
// their archive key and optionally announces each upload.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/metrics"
)

// Config controls how bodies are written and announced.
type Config struct {
	ContentType string
	Minify      bool
	// Topic receives an UploadNotification per upload; empty disables it.
	Topic string
	// RunID tags notifications with the fetch run that produced them.
	RunID string
	// ArchiveHost is used to render the snapshot URL in notifications.
	ArchiveHost string
}

// Deps are the collaborators of a Sink. Publisher, Hasher and Clock are
// optional.
type Deps struct {
	Blobs     archive.BlobStore
	Publisher archive.Publisher
	Hasher    archive.Hasher
	Clock     archive.Clock
	Logger    *zap.Logger
}

// UploadNotification is the message published after a successful upload.
type UploadNotification struct {
	RunID      string    `json:"run_id,omitempty"`
	Key        string    `json:"key"`
	BlobURI    string    `json:"blob_uri"`
	URL        string    `json:"url"`
	Timestamp  string    `json:"timestamp"`
	SHA256     string    `json:"sha256,omitempty"`
	Bytes      int       `json:"bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Sink writes snapshot bodies. Uploads are idempotent by key, so a record
// dispatched twice overwrites its own object.
type Sink struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns a Sink.
func New(cfg Config, deps Deps) (*Sink, error) {
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.ArchiveHost == "" {
		cfg.ArchiveHost = "web.archive.org"
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Sink{cfg: cfg, deps: deps}, nil
}

// Put stores body for rec and returns the blob URI. A body that cannot be
// minified is stored as received. Notification failures are logged and do
// not fail the upload.
func (s *Sink) Put(ctx context.Context, rec archive.IndexRecord, body []byte) (string, error) {
	key, err := archive.SinkKey(rec)
	if err != nil {
		metrics.ObserveUpload("error")
		return "", fmt.Errorf("build sink key: %w", err)
	}

	payload := body
	if s.cfg.Minify {
		minified, err := Minify(body)
		if err != nil {
			s.deps.Logger.Warn("could not minify snapshot, storing raw body",
				zap.String("key", key),
				zap.Error(err))
		} else {
			payload = minified
		}
	}

	uri, err := s.deps.Blobs.PutObject(ctx, key, s.cfg.ContentType, payload)
	if err != nil {
		metrics.ObserveUpload("error")
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	metrics.ObserveUpload("ok")
	s.deps.Logger.Info("snapshot uploaded", zap.String("key", key), zap.String("uri", uri), zap.Int("bytes", len(payload)))

	s.notify(ctx, rec, key, uri, payload)
	return uri, nil
}

func (s *Sink) notify(ctx context.Context, rec archive.IndexRecord, key, uri string, payload []byte) {
	if s.deps.Publisher == nil || s.cfg.Topic == "" {
		return
	}
	msg := UploadNotification{
		RunID:     s.cfg.RunID,
		Key:       key,
		BlobURI:   uri,
		URL:       archive.SnapshotURL(s.cfg.ArchiveHost, rec),
		Timestamp: rec.Timestamp,
		Bytes:     len(payload),
	}
	if s.deps.Clock != nil {
		msg.UploadedAt = s.deps.Clock.Now()
	} else {
		msg.UploadedAt = time.Now().UTC()
	}
	if s.deps.Hasher != nil {
		digest, err := s.deps.Hasher.Hash(payload)
		if err != nil {
			s.deps.Logger.Warn("hash snapshot", zap.String("key", key), zap.Error(err))
		} else {
			msg.SHA256 = digest
		}
	}
	if _, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, msg); err != nil {
		s.deps.Logger.Error("publish upload notification", zap.String("key", key), zap.Error(err))
	}
}
