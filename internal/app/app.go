// Package app builds the long-lived services of an index or fetch run from
// Config and releases them on Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/clock/system"
	"github.com/JakeFAU/wayback-fetcher/internal/config"
	collyfetcher "github.com/JakeFAU/wayback-fetcher/internal/fetcher/colly"
	"github.com/JakeFAU/wayback-fetcher/internal/hash/sha256"
	"github.com/JakeFAU/wayback-fetcher/internal/index"
	"github.com/JakeFAU/wayback-fetcher/internal/logging"
	"github.com/JakeFAU/wayback-fetcher/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/wayback-fetcher/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/wayback-fetcher/internal/publisher/pubsub"
	"github.com/JakeFAU/wayback-fetcher/internal/sink"
	bucketstorage "github.com/JakeFAU/wayback-fetcher/internal/storage/bucket"
	"github.com/JakeFAU/wayback-fetcher/internal/storage/file"
	gcsstorage "github.com/JakeFAU/wayback-fetcher/internal/storage/gcs"
	localstorage "github.com/JakeFAU/wayback-fetcher/internal/storage/local"
	memorystorage "github.com/JakeFAU/wayback-fetcher/internal/storage/memory"
	pgstore "github.com/JakeFAU/wayback-fetcher/internal/storage/postgres"
	"github.com/JakeFAU/wayback-fetcher/internal/store"
	"github.com/JakeFAU/wayback-fetcher/internal/worker"
)

// App owns the clients opened for a run. Components are built on demand so
// an index run never dials blob storage and a fetch run never needs the
// record store.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	closers []closer

	pgPool *pgxpool.Pool
}

type closer struct {
	name string
	fn   func() error
}

// New returns an App for cfg. A nil logger is replaced with a no-op one.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Config returns the configuration the App was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Paginator builds the index client, pacing limiter and record store.
func (a *App) Paginator(ctx context.Context) (*index.Paginator, error) {
	rs, err := a.recordStore(ctx)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: a.cfg.Index.RequestsPerSecond, DefaultBurst: 1})
	retry := index.NewRetryPolicy(a.cfg.Index.MaxRetries, time.Second, 30*time.Second)
	client := index.NewClient(index.ClientConfig{
		BaseURL:   a.cfg.Index.BaseURL,
		UserAgent: a.cfg.Index.UserAgent,
		Timeout:   a.cfg.Index.Timeout,
	}, limiter, retry, logging.Component(a.logger, "index_client"))
	return index.NewPaginator(client, rs, index.QueryTemplate{
		MatchType:      a.cfg.Index.MatchType,
		CollapseWindow: a.cfg.Index.CollapseWindow,
		FromYear:       a.cfg.Index.FromYear,
	}, logging.Component(a.logger, "paginator")), nil
}

// CSVPath returns where the index export for domain is written.
func (a *App) CSVPath(domain string) string {
	return filepath.Join(a.cfg.Index.CSVDir, domain+".csv")
}

// FetchPool builds the gate, escalation, transport, sink and checkpoint for
// one fetch run tagged runID.
func (a *App) FetchPool(ctx context.Context, runID string) (*worker.Pool, error) {
	blobs, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	checkpoint, err := a.checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	snapshotSink, err := sink.New(sink.Config{
		ContentType: a.cfg.Storage.ContentType,
		Minify:      a.cfg.Storage.Minify,
		Topic:       a.cfg.PubSub.TopicName,
		RunID:       runID,
		ArchiveHost: a.cfg.Fetch.ArchiveHost,
	}, sink.Deps{
		Blobs:     blobs,
		Publisher: publisher,
		Hasher:    sha256.New(),
		Clock:     clock,
		Logger:    logging.Component(a.logger, "sink"),
	})
	if err != nil {
		return nil, fmt.Errorf("sink init failed: %w", err)
	}

	gate := ratelimit.NewGate(a.cfg.Fetch.Concurrency, clock)
	escalation := ratelimit.NewEscalation(ratelimit.EscalationConfig{
		Nominal:          a.cfg.Fetch.Concurrency,
		CoolOff:          a.cfg.DDOS.CoolOff,
		ErrorCoolOff:     a.cfg.DDOS.ErrorCoolOff,
		Threshold:        a.cfg.DDOS.Threshold,
		PenaltyWindow:    a.cfg.DDOS.PenaltyWindow,
		DetectionTimeout: a.cfg.DDOS.DetectionTimeout,
	}, gate, clock, logging.Component(a.logger, "escalation"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Fetch.UserAgent,
		Timeout:   a.cfg.Fetch.RequestTimeout,
	})
	a.logger.Info("fetch run configured",
		zap.String("run_id", runID),
		zap.String("storage_backend", a.cfg.Storage.Backend),
		zap.String("checkpoint_store", a.cfg.Fetch.CheckpointStore),
		zap.Int("limit", a.cfg.Fetch.Concurrency),
		zap.Int("fetch_limit", a.cfg.Fetch.Limit))

	pool, err := worker.New(worker.Config{
		ArchiveHost:    a.cfg.Fetch.ArchiveHost,
		Concurrency:    a.cfg.Fetch.Concurrency,
		Limit:          a.cfg.Fetch.Limit,
		RequestTimeout: a.cfg.Fetch.RequestTimeout,
		DrainTimeout:   a.cfg.Fetch.DrainTimeout,
	}, worker.Deps{
		Fetcher:    fetcher,
		Sink:       snapshotSink,
		Checkpoint: checkpoint,
		Gate:       gate,
		Escalation: escalation,
		Logger:     logging.Component(a.logger, "pool"),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pool init failed: %w", err)
	}
	return pool, nil
}

// Close releases every opened client in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.pgPool = nil
	return errors.Join(errs...)
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pgPool != nil {
		return a.pgPool, nil
	}
	pool, err := pgstore.Connect(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres init failed: %w", err)
	}
	a.pgPool = pool
	a.onClose("postgres", func() error { pool.Close(); return nil })
	return pool, nil
}

func (a *App) recordStore(ctx context.Context) (store.RecordStore, error) {
	switch a.cfg.Index.Store {
	case "postgres":
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		rs, err := pgstore.NewRecordStoreWithPool(pool, a.cfg.DB.Table)
		if err != nil {
			return nil, fmt.Errorf("record store init failed: %w", err)
		}
		if err := rs.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("using postgres record store", zap.String("table", a.cfg.DB.Table))
		return rs, nil
	default:
		rs, err := file.NewRecordStore(a.cfg.Index.StateDir)
		if err != nil {
			return nil, fmt.Errorf("record store init failed: %w", err)
		}
		a.logger.Info("using file record store", zap.String("dir", a.cfg.Index.StateDir))
		return rs, nil
	}
}

func (a *App) checkpoint(ctx context.Context) (archive.Checkpoint, error) {
	if a.cfg.Fetch.CheckpointStore == "postgres" {
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		cp, err := pgstore.NewCheckpoint(pool, a.cfg.Fetch.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("checkpoint init failed: %w", err)
		}
		if err := cp.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return cp, nil
	}
	cp, err := file.NewCheckpoint(a.cfg.Fetch.CheckpointPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint init failed: %w", err)
	}
	return cp, nil
}

func (a *App) blobStore(ctx context.Context) (archive.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.onClose("gcs", client.Close)
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case "bucket":
		blobs, err := bucketstorage.Open(ctx, a.cfg.Storage.BucketURL)
		if err != nil {
			return nil, fmt.Errorf("bucket blob store init failed: %w", err)
		}
		a.onClose("bucket", blobs.Close)
		a.logger.Info("using portable bucket backend", zap.String("url", a.cfg.Storage.BucketURL))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.BaseDir))
		return blobs, nil
	default:
		a.logger.Warn("using in-memory storage backend, snapshots are discarded on exit")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) publisher(ctx context.Context) (archive.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, upload notifications stay in memory")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.onClose("pubsub client", client.Close)
	publisher := gcppublisher.New(client)
	a.onClose("pubsub publisher", func() error { publisher.Close(); return nil })
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName))
	return publisher, nil
}
