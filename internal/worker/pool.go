// Package worker implements the snapshot download pool: records are
// dispatched in order through the rate gate, checkpointed before each
// dispatch, and their outcomes routed to the sink or the escalation state
// machine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/metrics"
	"github.com/JakeFAU/wayback-fetcher/internal/policy/ratelimit"
)

// ErrNothingToFetch is returned for a fetch limit of zero.
var ErrNothingToFetch = errors.New("nothing to fetch with a limit of 0")

// Uploader stores a downloaded body.
type Uploader interface {
	Put(ctx context.Context, rec archive.IndexRecord, body []byte) (string, error)
}

// Config controls Pool behavior.
type Config struct {
	ArchiveHost string
	// Concurrency is the nominal gate limit; the worker count is derived from it.
	Concurrency int
	// Limit caps dispatch to indices below it; negative means unbounded.
	Limit          int
	RequestTimeout time.Duration
	// DrainTimeout bounds how long in-flight work may run after cancellation.
	DrainTimeout time.Duration
}

// Deps are the collaborators of a Pool.
type Deps struct {
	Fetcher    archive.Fetcher
	Sink       Uploader
	Checkpoint archive.Checkpoint
	Gate       *ratelimit.Gate
	Escalation *ratelimit.Escalation
	Logger     *zap.Logger
}

// Summary counts what a run did.
type Summary struct {
	StartIndex   int `json:"start_index"`
	LastIndex    int `json:"last_index"`
	Dispatched   int `json:"dispatched"`
	Succeeded    int `json:"succeeded"`
	NotFound     int `json:"not_found"`
	Throttled    int `json:"throttled"`
	Failed       int `json:"failed"`
	UploadFailed int `json:"upload_failed"`
}

type counters struct {
	startIndex   atomic.Int64
	lastIndex    atomic.Int64
	dispatched   atomic.Int64
	succeeded    atomic.Int64
	notFound     atomic.Int64
	throttled    atomic.Int64
	failed       atomic.Int64
	uploadFailed atomic.Int64
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.startIndex, &c.lastIndex, &c.dispatched, &c.succeeded,
		&c.notFound, &c.throttled, &c.failed, &c.uploadFailed,
	} {
		v.Store(0)
	}
}

func (c *counters) summary() Summary {
	return Summary{
		StartIndex:   int(c.startIndex.Load()),
		LastIndex:    int(c.lastIndex.Load()),
		Dispatched:   int(c.dispatched.Load()),
		Succeeded:    int(c.succeeded.Load()),
		NotFound:     int(c.notFound.Load()),
		Throttled:    int(c.throttled.Load()),
		Failed:       int(c.failed.Load()),
		UploadFailed: int(c.uploadFailed.Load()),
	}
}

type job struct {
	index int
	rec   archive.IndexRecord
}

// Pool downloads records. A Pool is reusable but runs are not concurrent.
type Pool struct {
	cfg    Config
	deps   Deps
	stats  counters
	logger *zap.Logger
}

// PoolSize returns the smallest power of two not below n, and at least one.
func PoolSize(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// New validates deps and returns a Pool.
func New(cfg Config, deps Deps) (*Pool, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Sink == nil:
		return nil, errors.New("sink is required")
	case deps.Checkpoint == nil:
		return nil, errors.New("checkpoint is required")
	case deps.Gate == nil || deps.Escalation == nil:
		return nil, errors.New("gate and escalation are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ArchiveHost == "" {
		cfg.ArchiveHost = "web.archive.org"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{cfg: cfg, deps: deps, logger: logger}, nil
}

// Summary returns the live counters of the current or last run.
func (p *Pool) Summary() Summary {
	return p.stats.summary()
}

// RateState returns the live gate and escalation view.
func (p *Pool) RateState() archive.RateState {
	return p.deps.Escalation.State()
}

// Run dispatches records from the checkpointed index onward. Cancelling ctx
// stops dispatch; requests already in flight get DrainTimeout to finish.
// Per-record failures are counted and logged, never returned.
func (p *Pool) Run(ctx context.Context, records []archive.IndexRecord) (Summary, error) {
	if p.cfg.Limit == 0 {
		return Summary{}, ErrNothingToFetch
	}
	p.stats.reset()

	progress, err := p.deps.Checkpoint.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load checkpoint: %w", err)
	}
	start := progress.LastIndex
	end := len(records)
	if p.cfg.Limit > 0 && p.cfg.Limit < end {
		end = p.cfg.Limit
	}
	p.stats.startIndex.Store(int64(start))
	p.stats.lastIndex.Store(int64(start))

	// In-flight work outlives ctx by at most DrainTimeout.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stopDrain := context.AfterFunc(ctx, func() {
		time.AfterFunc(p.cfg.DrainTimeout, cancelWork)
	})
	defer stopDrain()

	workers := PoolSize(p.cfg.Concurrency)
	p.logger.Info("fetch run starting",
		zap.Int("start_index", start),
		zap.Int("end_index", end),
		zap.Int("workers", workers),
		zap.Int("limit", p.cfg.Concurrency))

	jobs := make(chan job)
	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for j := range jobs {
				p.process(workCtx, j)
			}
			return nil
		})
	}

	dispatchErr := p.dispatch(ctx, records, start, end, jobs)
	close(jobs)
	_ = g.Wait()

	summary := p.stats.summary()
	p.logger.Info("fetch run finished",
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("not_found", summary.NotFound),
		zap.Int("throttled", summary.Throttled),
		zap.Int("failed", summary.Failed),
		zap.Int("upload_failed", summary.UploadFailed))
	return summary, dispatchErr
}

func (p *Pool) dispatch(ctx context.Context, records []archive.IndexRecord, start, end int, jobs chan<- job) error {
	for i := start; i < end; i++ {
		p.deps.Escalation.Recover()
		if err := p.deps.Gate.Acquire(ctx); err != nil {
			return fmt.Errorf("dispatch stopped before index %d: %w", i, err)
		}
		if err := p.deps.Checkpoint.Save(ctx, archive.DispatchProgress{LastIndex: i}); err != nil {
			p.deps.Gate.Release()
			return fmt.Errorf("save checkpoint %d: %w", i, err)
		}
		p.stats.lastIndex.Store(int64(i))
		select {
		case jobs <- job{index: i, rec: records[i]}:
			p.stats.dispatched.Add(1)
		case <-ctx.Done():
			p.deps.Gate.Release()
			return fmt.Errorf("dispatch stopped at index %d: %w", i, ctx.Err())
		}
	}
	return nil
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeNotFound
	outcomeThrottled
	outcomeHTTPError
	outcomeError
)

func classify(resp archive.Response, err error) outcome {
	switch {
	case err != nil:
		return outcomeError
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeOK
	case resp.StatusCode == http.StatusNotFound:
		return outcomeNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return outcomeThrottled
	default:
		return outcomeHTTPError
	}
}

func (p *Pool) process(ctx context.Context, j job) {
	url := archive.SnapshotURL(p.cfg.ArchiveHost, j.rec)
	resp, err := p.fetch(ctx, url)
	out := classify(resp, err)

	// Escalation must observe the outcome before the slot is returned, or a
	// throttled response could hand its slot to a waiter at the old limit.
	switch out {
	case outcomeOK, outcomeNotFound:
		p.deps.Escalation.OnResponse()
	case outcomeThrottled:
		p.deps.Escalation.OnThrottled()
	case outcomeHTTPError:
		p.deps.Escalation.OnResponse()
		p.deps.Escalation.OnError()
	case outcomeError:
		p.deps.Escalation.OnError()
	}
	p.deps.Gate.Release()

	fields := []zap.Field{zap.Int("index", j.index), zap.String("url", url)}
	switch out {
	case outcomeOK:
		metrics.ObserveFetch(metrics.OutcomeOK, len(resp.Body), resp.Duration)
		p.logger.Info("snapshot fetched", append(fields, zap.Int("status", resp.StatusCode))...)
		if _, err := p.deps.Sink.Put(ctx, j.rec, resp.Body); err != nil {
			p.stats.uploadFailed.Add(1)
			p.logger.Error("snapshot upload failed", append(fields, zap.Error(err))...)
			return
		}
		p.stats.succeeded.Add(1)
	case outcomeNotFound:
		p.stats.notFound.Add(1)
		metrics.ObserveFetch(metrics.OutcomeNotFound, 0, resp.Duration)
		p.logger.Warn("snapshot not found", append(fields, zap.Int("status", resp.StatusCode))...)
	case outcomeThrottled:
		p.stats.throttled.Add(1)
		metrics.ObserveFetch(metrics.OutcomeThrottled, 0, resp.Duration)
		p.logger.Error("archive throttled request, dropping record for this pass",
			append(fields, zap.Int("status", resp.StatusCode), zap.Int("ddos_level", p.deps.Escalation.Level()))...)
	case outcomeHTTPError:
		p.stats.failed.Add(1)
		metrics.ObserveFetch(metrics.OutcomeHTTPError, 0, resp.Duration)
		p.logger.Error("unexpected snapshot status",
			append(fields, zap.Int("status", resp.StatusCode), zap.ByteString("body", snippet(resp.Body)))...)
	case outcomeError:
		p.stats.failed.Add(1)
		metrics.ObserveFetch(metrics.OutcomeError, 0, 0)
		p.logger.Error("snapshot fetch failed", append(fields, zap.Error(err))...)
	}
}

func (p *Pool) fetch(ctx context.Context, url string) (archive.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	resp, err := p.deps.Fetcher.Fetch(reqCtx, url)
	if err != nil {
		return archive.Response{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	return resp, nil
}

func snippet(body []byte) []byte {
	const limit = 200
	if len(body) > limit {
		return body[:limit]
	}
	return body
}
