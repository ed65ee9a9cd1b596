package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Index.StateDir = filepath.Join(dir, "state")
	cfg.Index.CSVDir = filepath.Join(dir, "csv")
	cfg.Fetch.CheckpointPath = filepath.Join(dir, "status")
	cfg.Storage.Backend = "memory"
	return cfg
}

func TestPaginatorUsesFileStore(t *testing.T) {
	t.Parallel()

	a := New(testConfig(t), zap.NewNop())
	defer func() { require.NoError(t, a.Close()) }()

	p, err := a.Paginator(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, filepath.Join(a.Config().Index.CSVDir, "example.org.csv"), a.CSVPath("example.org"))
}

func TestFetchPoolBuildsFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "memory", mutate: func(*config.Config) {}},
		{name: "local", mutate: func(c *config.Config) {
			c.Storage.Backend = "local"
			c.Storage.BaseDir = filepath.Join(filepath.Dir(c.Fetch.CheckpointPath), "pages")
		}},
		{name: "bucket", mutate: func(c *config.Config) {
			c.Storage.Backend = "bucket"
			c.Storage.BucketURL = "mem://pages"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tt.mutate(&cfg)
			a := New(cfg, nil)

			pool, err := a.FetchPool(context.Background(), "run-1")
			require.NoError(t, err)
			assert.Equal(t, archive.RateState{Limit: cfg.Fetch.Concurrency}, pool.RateState())
			require.NoError(t, a.Close())
		})
	}
}

func TestFetchPoolLogsUnderComponentName(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	a := New(testConfig(t), zap.New(core))
	defer func() { require.NoError(t, a.Close()) }()

	pool, err := a.FetchPool(context.Background(), "run-1")
	require.NoError(t, err)
	_, err = pool.Run(context.Background(), nil)
	require.NoError(t, err)

	started := logs.FilterMessage("fetch run starting").All()
	require.Len(t, started, 1)
	assert.Equal(t, "pool", started[0].LoggerName)
}

func TestPostgresStoreRequiresReachableDB(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Index.Store = "postgres"
	cfg.DB.DSN = "not a dsn"
	a := New(cfg, nil)

	_, err := a.Paginator(context.Background())
	require.ErrorContains(t, err, "postgres init failed")
}

type mockCloser struct {
	mock.Mock
}

func (m *mockCloser) Close() error {
	return m.Called().Error(0)
}

func TestCloseRunsInReverseAndJoinsErrors(t *testing.T) {
	t.Parallel()

	a := New(config.Config{}, nil)
	var order []string
	first := &mockCloser{}
	first.On("Close").Run(func(mock.Arguments) { order = append(order, "first") }).Return(nil).Once()
	second := &mockCloser{}
	second.On("Close").Run(func(mock.Arguments) { order = append(order, "second") }).Return(errors.New("boom")).Once()
	a.onClose("first", first.Close)
	a.onClose("second", second.Close)

	err := a.Close()
	require.ErrorContains(t, err, "close second: boom")
	assert.Equal(t, []string{"second", "first"}, order)
	first.AssertExpectations(t)
	second.AssertExpectations(t)

	require.NoError(t, a.Close(), "closers run once")
}
