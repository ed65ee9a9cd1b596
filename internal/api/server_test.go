package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/worker"
)

type fakeSource struct {
	rate    archive.RateState
	summary worker.Summary
}

func (f fakeSource) RateState() archive.RateState { return f.rate }
func (f fakeSource) Summary() worker.Summary     { return f.summary }

func TestServerStatus(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	source := fakeSource{
		rate:    archive.RateState{Limit: 1, InFlight: 1, DDOSLevel: 3},
		summary: worker.Summary{Dispatched: 42, Succeeded: 40, Throttled: 2, LastIndex: 41},
	}
	server := NewServer(source, "run-1", started, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	var got Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, started, got.StartedAt)
	assert.Equal(t, source.rate.DDOSLevel, got.Rate.DDOSLevel)
	assert.Equal(t, source.summary, got.Summary)
}

func TestServerProbes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source StatusSource
		path   string
		want   int
	}{
		{name: "healthz", source: nil, path: "/healthz", want: http.StatusOK},
		{name: "readyz without run", source: nil, path: "/readyz", want: http.StatusServiceUnavailable},
		{name: "readyz with run", source: fakeSource{}, path: "/readyz", want: http.StatusOK},
		{name: "status without run", source: nil, path: "/v1/status", want: http.StatusServiceUnavailable},
		{name: "metrics", source: nil, path: "/metrics", want: http.StatusOK},
		{name: "unknown", source: nil, path: "/v1/jobs", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := NewServer(tt.source, "run", time.Now(), nil)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := NewServer(fakeSource{}, "run", time.Now(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln, time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
