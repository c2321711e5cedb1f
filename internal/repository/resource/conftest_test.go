package resource

import (
	"context"
	"testing"

	"github.com/kailas-cloud/resdex/internal/db"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
)

// mockStore keeps hashes and strings in memory; search methods are fn fields.
type mockStore struct {
	hashes  map[string]map[string]string
	strings map[string][]byte
	indexes map[string]*db.IndexDefinition
	noText  bool

	searchFn func(q *db.SearchQuery) (*db.SearchResult, error)
	countFn  func(q *db.SearchQuery) (int, error)
	facetFn  func(q *db.FacetQuery) ([]db.FacetBucket, error)
	dropped  []string
	replaced []string
}

func newMockStore() *mockStore {
	return &mockStore{
		hashes:  map[string]map[string]string{},
		strings: map[string][]byte{},
		indexes: map[string]*db.IndexDefinition{},
	}
}

func (m *mockStore) HReplace(_ context.Context, key string, fields map[string]string) error {
	m.replaced = append(m.replaced, key)
	h := make(map[string]string, len(fields))
	for k, v := range fields {
		h[k] = v
	}
	m.hashes[key] = h
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if h, ok := m.hashes[key]; ok {
		return h, nil
	}
	return map[string]string{}, nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.hashes, k)
		delete(m.strings, k)
	}
	return nil
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.strings[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) Set(_ context.Context, key string, value []byte) error {
	m.strings[key] = value
	return nil
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if _, ok := m.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	m.indexes[def.Name] = def
	return nil
}

func (m *mockStore) DropIndex(_ context.Context, name string) error {
	if _, ok := m.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(m.indexes, name)
	m.dropped = append(m.dropped, name)
	return nil
}

func (m *mockStore) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := m.indexes[name]
	return ok, nil
}

func (m *mockStore) SupportsTextSearch(context.Context) bool { return !m.noText }

func (m *mockStore) Search(_ context.Context, q *db.SearchQuery) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) Count(_ context.Context, q *db.SearchQuery) (int, error) {
	if m.countFn != nil {
		return m.countFn(q)
	}
	return 0, nil
}

func (m *mockStore) Facet(_ context.Context, q *db.FacetQuery) ([]db.FacetBucket, error) {
	if m.facetFn != nil {
		return m.facetFn(q)
	}
	return nil, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := newMockStore()
	return New(ms, "resdex:"), ms
}

func articleType(t *testing.T) domtype.ResourceType {
	t.Helper()
	return domtype.Reconstruct(domtype.KindDocument, "p1", domtype.Params{
		MachineName: "acme_article",
		Label:       "Article",
		Endpoint:    "acme-article",
	}, []field.Definition{
		field.Reconstruct("body", field.StringLong, field.Options{Owner: "p1"}),
		field.Reconstruct("pages", field.Integer, field.Options{Owner: "p1"}),
		field.Reconstruct("period", field.DateRange, field.Options{Owner: "p1"}),
		field.Reconstruct("where", field.Geofield, field.Options{Owner: "p1"}),
		field.Reconstruct("tags", field.EntityReference, field.Options{
			Owner: "p1", Multiple: true,
			Target: field.Target{Kind: "term", Bundle: "acme_tags"},
		}),
		field.Reconstruct("featured", field.Boolean, field.Options{Owner: "p1"}),
		field.Reconstruct("site", field.Link, field.Options{Owner: "p1"}),
		field.Reconstruct("codes", field.String, field.Options{Owner: "p1", Multiple: true}),
	}, 1, 1)
}

func ptr(f float64) *float64 { return &f }

func articleEntity() stored.Entity {
	return stored.Entity{
		V:          stored.Version,
		UUID:       "u1",
		Kind:       domtype.KindDocument,
		Bundle:     "acme_article",
		Owner:      "p1",
		Title:      "Hello | World",
		Author:     "ann",
		Parent:     "t0",
		Published:  true,
		Created:    100,
		Changed:    200,
		RevisionID: 3,
		Fields: map[string]stored.Field{
			"body":   {Type: field.StringLong, Items: []domres.Item{{Value: "long"}, {Value: "text"}}},
			"pages":  {Type: field.Integer, Items: []domres.Item{{Value: "12"}}},
			"period": {Type: field.DateRange, Items: []domres.Item{{Value: "10", End: "20"}}},
			"where":  {Type: field.Geofield, Items: []domres.Item{{Lat: ptr(1.5), Lon: ptr(-2)}}},
			"tags": {Type: field.EntityReference, Multiple: true, TargetKind: "term", Items: []domres.Item{
				{TargetUUID: "t1", Label: "Red"}, {TargetUUID: "t2", Label: "Blue"},
			}},
			"featured": {Type: field.Boolean, Items: []domres.Item{{Value: "true"}}},
			"site":     {Type: field.Link, Items: []domres.Item{{URI: "https://x.test", Title: "X"}}},
			"codes":    {Type: field.String, Multiple: true, Items: []domres.Item{{Value: "a"}, {Value: ""}, {Value: "b"}}},
		},
	}
}
