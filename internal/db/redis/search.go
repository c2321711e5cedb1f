package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/resdex/internal/db"
)

const keyField = "__key"

// Search runs a filtered, sorted page through FT.AGGREGATE and counts the
// full match set with FT.SEARCH LIMIT 0 0 in the same round-trip.
func (s *Store) Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if q.Limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	expr, err := s.buildQuery(q.Filter, q.Schema, q.Text)
	if err != nil {
		return nil, err
	}

	aggArgs := buildAggregateArgs(q, expr)
	cmds := rueidis.Commands{
		s.b().Arbitrary("FT.AGGREGATE").Args(aggArgs...).Build(),
		s.b().Arbitrary("FT.SEARCH").Args(q.IndexName, expr, "LIMIT", "0", "0", "DIALECT", "2").Build(),
	}
	results := s.client.DoMulti(ctx, cmds...)

	rows, err := results[0].ToArray()
	if err != nil {
		return nil, wrapErr(db.OpAggregate, err)
	}
	countRaw, err := results[1].ToArray()
	if err != nil {
		return nil, wrapErr(db.OpSearch, err)
	}

	res, err := parseAggregateResult(rows)
	if err != nil {
		return nil, err
	}
	total, err := parseCount(countRaw)
	if err != nil {
		return nil, err
	}
	res.Total = total
	return res, nil
}

// Count returns the number of rows matching the query.
func (s *Store) Count(ctx context.Context, q *db.SearchQuery) (int, error) {
	expr, err := s.buildQuery(q.Filter, q.Schema, q.Text)
	if err != nil {
		return 0, err
	}
	cmd := s.b().Arbitrary("FT.SEARCH").Args(q.IndexName, expr, "LIMIT", "0", "0", "DIALECT", "2").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, wrapErr(db.OpSearch, err)
	}
	return parseCount(raw)
}

// Facet counts distinct values of one field. Multi-valued tags are split
// so each value gets its own bucket.
func (s *Store) Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetBucket, error) {
	if q.Field == "" {
		return nil, errors.New("facet field is required")
	}
	if _, ok := q.Schema[q.Field]; !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrNotFilterable, q.Field)
	}
	expr, err := s.buildQuery(q.Filter, q.Schema, q.Text)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	args := []string{
		q.IndexName, expr,
		"LOAD", "1", "@" + q.Field,
		"APPLY", fmt.Sprintf("split(@%s, %q)", q.Field, db.TagSeparator), "AS", "__facet",
		"GROUPBY", "1", "@__facet",
		"REDUCE", "COUNT", "0", "AS", "count",
		"SORTBY", "2", "@count", "DESC",
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	}
	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, wrapErr(db.OpAggregate, err)
	}

	var buckets []db.FacetBucket
	for i := 1; i < len(raw); i++ {
		pairs, err := raw[i].ToArray()
		if err != nil {
			continue
		}
		m := parseFieldPairs(pairs)
		value := m["__facet"]
		if value == "" {
			continue
		}
		n, err := strconv.Atoi(m["count"])
		if err != nil {
			return nil, fmt.Errorf("parse facet count: %w", err)
		}
		buckets = append(buckets, db.FacetBucket{Value: value, Count: n})
	}
	return buckets, nil
}

func buildAggregateArgs(q *db.SearchQuery, expr string) []string {
	load := []string{"@" + keyField}
	seen := map[string]bool{keyField: true}
	for _, f := range q.Load {
		if !seen[f] {
			seen[f] = true
			load = append(load, "@"+f)
		}
	}
	for _, srt := range q.Sort {
		if !seen[srt.Path] {
			seen[srt.Path] = true
			load = append(load, "@"+srt.Path)
		}
	}

	args := []string{q.IndexName, expr, "LOAD", strconv.Itoa(len(load))}
	args = append(args, load...)

	if len(q.Sort) > 0 {
		args = append(args, "SORTBY", strconv.Itoa(len(q.Sort)*2))
		for _, srt := range q.Sort {
			args = append(args, "@"+srt.Path, string(srt.Direction))
		}
	}

	args = append(args, "LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit), "DIALECT", "2")
	return args
}

// --- Result parsing ---

// parseAggregateResult reads [total, row...] where each row is a flat field/value list.
func parseAggregateResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}
	entries := make([]db.SearchEntry, 0, len(raw)-1)
	for i := 1; i < len(raw); i++ {
		pairs, err := raw[i].ToArray()
		if err != nil {
			return nil, fmt.Errorf("parse aggregate row %d: %w", i, err)
		}
		fields := parseFieldPairs(pairs)
		key := fields[keyField]
		delete(fields, keyField)
		entries = append(entries, db.SearchEntry{Key: key, Fields: fields})
	}
	return &db.SearchResult{Entries: entries}, nil
}

func parseCount(raw []rueidis.RedisMessage) (int, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
