package index

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/metrics"
	"github.com/JakeFAU/wayback-fetcher/internal/store"
)

// ErrStalled means the index handed back the resume key it was given
// without any new rows, which would otherwise loop forever.
var ErrStalled = errors.New("index resume key did not advance")

// PageFetcher issues a single CDX page request.
type PageFetcher interface {
	FetchPage(ctx context.Context, q Query) ([][]string, error)
}

// QueryTemplate carries the per-run query knobs applied to every domain.
type QueryTemplate struct {
	MatchType      string
	CollapseWindow int
	FromYear       int
}

// Paginator walks the index for one domain at a time.
type Paginator struct {
	fetcher  PageFetcher
	store    store.RecordStore
	template QueryTemplate
	logger   *zap.Logger
}

// NewPaginator wires a paginator. Zero template fields keep NewQuery's defaults.
func NewPaginator(fetcher PageFetcher, rs store.RecordStore, template QueryTemplate, logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{fetcher: fetcher, store: rs, template: template, logger: logger}
}

// Run paginates domain to exhaustion, resuming from any saved state, and
// returns the HTML-looking records in first-seen order.
func (p *Paginator) Run(ctx context.Context, domain string) ([]archive.IndexRecord, error) {
	records, err := p.Collect(ctx, domain)
	if err != nil {
		return nil, err
	}
	return FilterHTML(records), nil
}

// Collect paginates domain to exhaustion and returns every record.
func (p *Paginator) Collect(ctx context.Context, domain string) ([]archive.IndexRecord, error) {
	state, err := p.store.Load(ctx, domain)
	switch {
	case errors.Is(err, store.ErrNotFound):
		state = archive.NewPaginationState(domain)
	case err != nil:
		return nil, fmt.Errorf("load state for %s: %w", domain, err)
	}
	if state.Finished() {
		p.logger.Debug("index already complete", zap.String("domain", domain), zap.Int("records", len(state.Records)))
		return state.Records, nil
	}

	set := archive.NewRecordSet(state.Records...)
	for {
		q := p.query(domain, state.ResumeKey)
		rows, err := p.fetcher.FetchPage(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("fetch index page for %s: %w", domain, err)
		}
		page, err := ParsePage(rows)
		if err != nil {
			return nil, fmt.Errorf("parse index page for %s: %w", domain, err)
		}

		fresh := make([]archive.IndexRecord, 0, len(page.Rows))
		for _, row := range page.Rows {
			fresh = append(fresh, archive.IndexRecord{Timestamp: row.Timestamp, URL: NormalizeURLKey(row.URLKey)})
		}
		added := set.Merge(fresh)
		metrics.ObserveIndexRecords(domain, added)

		if !page.Finished() && page.ResumeKey == state.ResumeKey && added == 0 {
			return nil, fmt.Errorf("paginate %s at %q: %w", domain, page.ResumeKey, ErrStalled)
		}

		state.Header = page.Header
		state.ResumeKey = page.ResumeKey
		state.Records = set.Records()
		if err := p.store.Save(ctx, state); err != nil {
			return nil, fmt.Errorf("save state for %s: %w", domain, err)
		}
		p.logger.Info("index page merged",
			zap.String("domain", domain),
			zap.Int("rows", len(page.Rows)),
			zap.Int("added", added),
			zap.Int("records", set.Len()),
			zap.Bool("finished", page.Finished()))

		if page.Finished() {
			return state.Records, nil
		}
	}
}

func (p *Paginator) query(domain, resumeKey string) Query {
	q := NewQuery(domain)
	if p.template.MatchType != "" {
		q.MatchType = p.template.MatchType
	}
	if p.template.CollapseWindow > 0 {
		q.CollapseWindow = p.template.CollapseWindow
	}
	if p.template.FromYear > 0 {
		q.FromYear = p.template.FromYear
	}
	q.ResumeKey = resumeKey
	return q
}
