package core

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
)

// DefaultPageSize is the page size used when a query does not set one.
const DefaultPageSize = 1000

// Paginator reads every page of a query.
type Paginator struct {
	api      ObjectAPI
	logger   *slog.Logger
	progress ProgressFunc
}

// NewPaginator creates a paginator over api.
func NewPaginator(api ObjectAPI) *Paginator {
	return &Paginator{api: api, logger: slog.Default()}
}

// WithLogger sets the logger.
func (p *Paginator) WithLogger(logger *slog.Logger) *Paginator {
	p.logger = logger
	return p
}

// WithProgress sets the progress callback, called after every page.
func (p *Paginator) WithProgress(fn ProgressFunc) *Paginator {
	p.progress = fn
	return p
}

// FetchAll requests pages from page 0 until a page holds fewer objects
// than the page size. When the last page is exactly full one extra empty
// page is requested to detect the end. Filters are passed unchanged to
// every request.
func (p *Paginator) FetchAll(ctx context.Context, q ObjectQuery) ([]APIObject, error) {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}

	var all []APIObject
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pq := q
		pq.Page = page
		res, err := p.api.GetObjects(ctx, pq)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", q.ObjectType, page, err)
		}

		all = append(all, res.Objects...)
		p.logger.Debug("page fetched",
			"object_type", q.ObjectType,
			"page", page,
			"objects", len(res.Objects),
			"total_so_far", len(all),
		)
		p.progress.notify(ProgressEvent{
			Phase:   PhaseFetching,
			Current: page + 1,
			Objects: len(all),
		})

		if len(res.Objects) < q.PageSize {
			return all, nil
		}
	}
}

// FetchAllFiltered runs FetchAll once per filter value, setting key to the
// value, and concatenates the results in value order. With no values it is
// a plain FetchAll.
func (p *Paginator) FetchAllFiltered(ctx context.Context, q ObjectQuery, key string, values []string) ([]APIObject, error) {
	if key == "" || len(values) == 0 {
		return p.FetchAll(ctx, q)
	}

	var all []APIObject
	for _, v := range values {
		fq := q
		fq.Filters = maps.Clone(q.Filters)
		if fq.Filters == nil {
			fq.Filters = make(map[string]string, 1)
		}
		fq.Filters[key] = v

		objs, err := p.FetchAll(ctx, fq)
		if err != nil {
			return nil, fmt.Errorf("%s=%s: %w", key, v, err)
		}
		p.logger.Info("filter fetched", "object_type", q.ObjectType, key, v, "objects", len(objs))
		all = append(all, objs...)
	}
	return all, nil
}
