// Package query compiles list requests into index queries, applies
// visibility and type scoping, and reshapes the stored rows for output.
package query

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domquery "github.com/kailas-cloud/resdex/internal/domain/query"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
	"github.com/kailas-cloud/resdex/internal/logger"
	"github.com/kailas-cloud/resdex/internal/metrics"
)

// facetLimit caps buckets per facet.
const facetLimit = 100

// Config tunes paging and the retry policy.
type Config struct {
	DefaultLimit    int
	MaxLimit        int
	OptionListLimit int
	RetryInitial    time.Duration
	RetryMax        time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit:    50,
		MaxLimit:        100,
		OptionListLimit: 9999,
		RetryInitial:    time.Second,
		RetryMax:        4 * time.Second,
	}
}

// Request is one list call.
type Request struct {
	Kind domtype.Kind
	// Bundle restricts the list to one type; empty lists every visible type.
	Bundle     string
	Caller     domprov.Caller
	Params     url.Values
	OptionList bool
}

// Result is a page of reshaped rows.
type Result struct {
	Total  int
	Offset int
	Limit  int
	Rows   []Row
	Facets map[string][]db.FacetBucket
}

// Service compiles and runs list queries.
type Service struct {
	index      Index
	types      Structure
	files      Files
	cfg        Config
	newBackOff func() backoff.BackOff
	fileURL    func(media.File) string
}

// New creates a query service.
func New(index Index, types Structure, files Files, cfg Config) *Service {
	s := &Service{
		index:   index,
		types:   types,
		files:   files,
		cfg:     cfg,
		fileURL: func(f media.File) string { return f.URI() },
	}
	s.newBackOff = s.defaultBackOff
	return s
}

// WithBackOff replaces the retry schedule.
func (s *Service) WithBackOff(fn func() backoff.BackOff) *Service {
	s.newBackOff = fn
	return s
}

// WithFileURL sets how file uris are rendered for readers.
func (s *Service) WithFileURL(fn func(media.File) string) *Service {
	s.fileURL = fn
	return s
}

// List runs a filtered, sorted, paginated query.
func (s *Service) List(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.list(ctx, req)

	mode, status := "list", "ok"
	if req.OptionList {
		mode = "options"
	}
	if err != nil {
		status = "error"
	}
	metrics.QueryDuration.WithLabelValues(string(req.Kind), mode, status).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.QueryResultsTotal.WithLabelValues(string(req.Kind)).Add(float64(len(res.Rows)))
	}
	return res, err
}

func (s *Service) list(ctx context.Context, req Request) (Result, error) {
	bundles, t, err := s.scope(ctx, req)
	if err != nil {
		return Result{}, err
	}

	parsed, err := domquery.Parse(req.Params, domquery.Limits{
		DefaultLimit: s.cfg.DefaultLimit,
		MaxLimit:     s.cfg.MaxLimit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	if req.OptionList {
		parsed.Page = domquery.Page{Limit: s.cfg.OptionListLimit}
		parsed.Facets = nil
	}
	if len(bundles) == 0 {
		return Result{Rows: []Row{}, Offset: parsed.Page.Offset, Limit: parsed.Page.Limit}, nil
	}
	if parsed.Search != "" && !s.index.TextSearch(ctx) {
		return Result{}, fmt.Errorf("%w: full-text search is not available", domain.ErrBadRequest)
	}

	idx, err := s.index.IndexFor(ctx, req.Kind, t)
	if err != nil {
		return Result{}, fmt.Errorf("resolve index: %w", err)
	}
	r := resolver{t: t, schema: idx.Schema, provider: req.Caller.UUID()}

	filter, err := r.group(parsed.Filter)
	if err != nil {
		return Result{}, err
	}
	sorts, err := r.sorts(parsed.Sort)
	if err != nil {
		return Result{}, err
	}
	if len(sorts) == 0 {
		sorts = defaultSort(req.OptionList)
	}
	root := domquery.NewGroup(domquery.And, nil, filter, stored.Visibility(req.Caller), bundleScope(bundles))

	sq := &db.SearchQuery{
		IndexName: idx.Name,
		Filter:    root,
		Schema:    idx.Schema,
		Text:      parsed.Search,
		Sort:      sorts,
		Offset:    parsed.Page.Offset,
		Limit:     parsed.Page.Limit,
	}
	var (
		entities []stored.Entity
		total    int
	)
	err = s.retry(ctx, req.Kind, func() error {
		var err error
		entities, total, err = s.index.Search(ctx, sq)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Total: total, Offset: sq.Offset, Limit: sq.Limit, Rows: make([]Row, 0, len(entities))}
	for _, e := range entities {
		if req.OptionList {
			res.Rows = append(res.Rows, OptionRow(e))
			continue
		}
		row, err := s.Reshape(ctx, e, req.Caller)
		if err != nil {
			return Result{}, err
		}
		res.Rows = append(res.Rows, row)
	}

	if len(parsed.Facets) > 0 {
		if res.Facets, err = s.facets(ctx, req.Kind, r, sq, parsed.Facets); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// scope returns the bundles the caller may list and, for single-type
// requests, the type itself.
func (s *Service) scope(ctx context.Context, req Request) ([]string, *domtype.ResourceType, error) {
	visible, err := s.types.Accessible(ctx, req.Kind, req.Caller.UUID())
	if err != nil {
		return nil, nil, fmt.Errorf("accessible types: %w", err)
	}
	if req.Bundle == "" {
		bundles := visible.ToSlice()
		sort.Strings(bundles)
		return bundles, nil, nil
	}
	if !visible.Contains(req.Bundle) {
		return nil, nil, fmt.Errorf("%w: %s %q", domain.ErrNotFound, req.Kind, req.Bundle)
	}
	t, ok, err := s.types.ByMachineName(ctx, req.Kind, req.Bundle)
	if err != nil {
		return nil, nil, fmt.Errorf("load type %s: %w", req.Bundle, err)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s %q", domain.ErrNotFound, req.Kind, req.Bundle)
	}
	return []string{req.Bundle}, &t, nil
}

func (s *Service) facets(
	ctx context.Context, kind domtype.Kind, r resolver, sq *db.SearchQuery, names []string,
) (map[string][]db.FacetBucket, error) {
	out := make(map[string][]db.FacetBucket, len(names))
	for _, name := range names {
		fieldName, err := r.facet(name)
		if err != nil {
			return nil, err
		}
		fq := &db.FacetQuery{
			IndexName: sq.IndexName,
			Filter:    sq.Filter,
			Schema:    sq.Schema,
			Text:      sq.Text,
			Field:     fieldName,
			Limit:     facetLimit,
		}
		var buckets []db.FacetBucket
		err = s.retry(ctx, kind, func() error {
			var err error
			buckets, err = s.index.Facet(ctx, fq)
			return err
		})
		if err != nil {
			return nil, err
		}
		out[name] = buckets
	}
	return out, nil
}

func bundleScope(bundles []string) domquery.Group {
	c := domquery.Condition{Path: stored.FieldBundle, Operator: domquery.OpIn, Values: bundles}
	if len(bundles) == 1 {
		c.Operator = domquery.OpEq
	}
	return domquery.NewGroup(domquery.And, []domquery.Condition{c})
}

func defaultSort(optionList bool) []domquery.Sort {
	if optionList {
		return []domquery.Sort{{Path: stored.FieldTitleExact, Direction: domquery.Asc}}
	}
	return []domquery.Sort{{Path: stored.FieldCreated, Direction: domquery.Desc}}
}

// retry runs op, retrying transient backend failures on the backoff
// schedule. Exhausted retries surface as ErrTransientBackend.
func (s *Service) retry(ctx context.Context, kind domtype.Kind, op func() error) error {
	b := backoff.WithContext(s.newBackOff(), ctx)
	err := backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, db.ErrTransient) {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, wait time.Duration) {
		metrics.QueryRetriesTotal.WithLabelValues(string(kind)).Inc()
		logger.FromContext(ctx).Warn("Index query failed, retrying",
			zap.String("kind", string(kind)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}
	return classify(err)
}

func classify(err error) error {
	switch {
	case errors.Is(err, db.ErrTransient):
		return fmt.Errorf("%w: %w", domain.ErrTransientBackend, err)
	case errors.Is(err, db.ErrNotFilterable), errors.Is(err, db.ErrInvalidCondition):
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	return err
}

// ceiling stops a backoff once the next wait would exceed max.
type ceiling struct {
	backoff.BackOff
	max time.Duration
}

func (c *ceiling) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if d == backoff.Stop || d > c.max {
		return backoff.Stop
	}
	return d
}

func (s *Service) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitial
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 2 * s.cfg.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()
	return &ceiling{BackOff: b, max: s.cfg.RetryMax}
}
