package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/hash/sha256"
	pubmemory "github.com/JakeFAU/wayback-fetcher/internal/publisher/memory"
	"github.com/JakeFAU/wayback-fetcher/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

var rec = archive.IndexRecord{Timestamp: "20200101000000", URL: "www.example.co.uk/news/a.html"}

func TestPutWritesUnderSinkKey(t *testing.T) {
	blobs := memory.NewBlobStore()
	s, err := New(Config{Minify: true}, Deps{Blobs: blobs})
	require.NoError(t, err)

	uri, err := s.Put(context.Background(), rec, []byte("<p>\n  hi\n</p>"))
	require.NoError(t, err)

	wantKey := "example.co.uk/20200101000000_www.example.co.uk_news_a.html"
	assert.Equal(t, "memory://"+wantKey, uri)
	got, ok := blobs.Get(wantKey)
	require.True(t, ok)
	assert.Equal(t, "<p> hi </p>", string(got))
}

func TestPutFallsBackToRawBody(t *testing.T) {
	blobs := memory.NewBlobStore()
	s, err := New(Config{Minify: true}, Deps{Blobs: blobs})
	require.NoError(t, err)

	_, err = s.Put(context.Background(), rec, []byte("plain text body"))
	require.NoError(t, err)
	got, ok := blobs.Get("example.co.uk/20200101000000_www.example.co.uk_news_a.html")
	require.True(t, ok)
	assert.Equal(t, "plain text body", string(got))
}

func TestPutIsIdempotentByKey(t *testing.T) {
	blobs := memory.NewBlobStore()
	s, err := New(Config{}, Deps{Blobs: blobs})
	require.NoError(t, err)

	_, err = s.Put(context.Background(), rec, []byte("one"))
	require.NoError(t, err)
	_, err = s.Put(context.Background(), rec, []byte("two"))
	require.NoError(t, err)

	assert.Len(t, blobs.Keys(), 1)
}

func TestPutReportsUploadFailure(t *testing.T) {
	pub := pubmemory.New()
	s, err := New(Config{Topic: "uploads"}, Deps{Blobs: failingBlobs{}, Publisher: pub})
	require.NoError(t, err)

	_, err = s.Put(context.Background(), rec, []byte("x"))
	assert.Error(t, err)
	assert.Empty(t, pub.Messages())
}

func TestPutPublishesNotification(t *testing.T) {
	pub := pubmemory.New()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(
		Config{Topic: "uploads", RunID: "run-1"},
		Deps{Blobs: memory.NewBlobStore(), Publisher: pub, Hasher: sha256.New(), Clock: fixedClock{now}},
	)
	require.NoError(t, err)

	uri, err := s.Put(context.Background(), rec, []byte("hello world"))
	require.NoError(t, err)

	payloads := pub.Topic("uploads")
	require.Len(t, payloads, 1)
	msg, ok := payloads[0].(UploadNotification)
	require.True(t, ok)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, uri, msg.BlobURI)
	assert.Equal(t, "http://web.archive.org/web/20200101000000/www.example.co.uk/news/a.html", msg.URL)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", msg.SHA256)
	assert.Equal(t, 11, msg.Bytes)
	assert.Equal(t, now, msg.UploadedAt)
}

func TestPutIgnoresPublishFailure(t *testing.T) {
	pub := pubmemory.New()
	pub.Err = errors.New("pubsub down")
	s, err := New(Config{Topic: "uploads"}, Deps{Blobs: memory.NewBlobStore(), Publisher: pub})
	require.NoError(t, err)

	_, err = s.Put(context.Background(), rec, []byte("x"))
	assert.NoError(t, err)
}

func TestNewRequiresBlobs(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
