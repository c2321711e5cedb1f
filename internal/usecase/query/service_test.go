package query

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domquery "github.com/kailas-cloud/resdex/internal/domain/query"
	"github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
)

// --- Mocks ---

type mockIndex struct {
	schema   map[string]db.IndexFieldType
	text     bool
	searchFn func(q *db.SearchQuery) ([]stored.Entity, int, error)
	facetFn  func(q *db.FacetQuery) ([]db.FacetBucket, error)

	indexed  *domtype.ResourceType
	searches []*db.SearchQuery
	facets   []*db.FacetQuery
}

func (m *mockIndex) IndexFor(_ context.Context, kind domtype.Kind, t *domtype.ResourceType) (db.ResolvedIndex, error) {
	m.indexed = t
	name := kind.Plural()
	if t != nil {
		name = t.IndexName()
	}
	return db.ResolvedIndex{Name: name, Schema: m.schema}, nil
}

func (m *mockIndex) TextSearch(context.Context) bool { return m.text }

func (m *mockIndex) Search(_ context.Context, q *db.SearchQuery) ([]stored.Entity, int, error) {
	m.searches = append(m.searches, q)
	if m.searchFn != nil {
		return m.searchFn(q)
	}
	return nil, 0, nil
}

func (m *mockIndex) Facet(_ context.Context, q *db.FacetQuery) ([]db.FacetBucket, error) {
	m.facets = append(m.facets, q)
	if m.facetFn != nil {
		return m.facetFn(q)
	}
	return nil, nil
}

type mockStructure struct {
	types map[string]domtype.ResourceType
}

func (m *mockStructure) ByMachineName(_ context.Context, _ domtype.Kind, name string) (domtype.ResourceType, bool, error) {
	t, ok := m.types[name]
	return t, ok, nil
}

func (m *mockStructure) Accessible(_ context.Context, _ domtype.Kind, provider string) (mapset.Set[string], error) {
	set := mapset.NewSet[string]()
	for name, t := range m.types {
		if t.VisibleTo(provider) {
			set.Add(name)
		}
	}
	return set, nil
}

type mockFiles struct {
	files map[string]media.File
}

func (m *mockFiles) Resolve(_ context.Context, _ domprov.Caller, mediaUUID string) (media.File, error) {
	f, ok := m.files[mediaUUID]
	if !ok {
		return media.File{}, domain.ErrNotFound
	}
	return f, nil
}

// --- Helpers ---

func articleType() domtype.ResourceType {
	return domtype.Reconstruct(domtype.KindDocument, "p1", domtype.Params{
		MachineName: "p1_article",
		Label:       "Article",
		Endpoint:    "articles",
		Flags:       domtype.Flags{Shared: true},
	}, []field.Definition{
		field.Reconstruct("rating", field.Integer, field.Options{Owner: "p1"}),
		field.Reconstruct("featured", field.Boolean, field.Options{Owner: "p1"}),
		field.Reconstruct("released", field.Timestamp, field.Options{Owner: "p1"}),
		field.Reconstruct("period", field.DateRange, field.Options{Owner: "p1"}),
		field.Reconstruct("site", field.Link, field.Options{Owner: "p1"}),
		field.Reconstruct("where", field.Geofield, field.Options{Owner: "p1"}),
		field.Reconstruct("tags", field.EntityReference, field.Options{
			Owner: "p1", Multiple: true, Target: field.Target{Kind: "term", Bundle: "p1_tags"},
		}),
		field.Reconstruct("notes", field.String, field.Options{Owner: "p1", Private: true}),
	}, 1, 1)
}

func privateType() domtype.ResourceType {
	return domtype.Reconstruct(domtype.KindDocument, "p2", domtype.Params{
		MachineName: "p2_secret",
		Label:       "Secret",
		Endpoint:    "secrets",
		Flags:       domtype.Flags{Private: true},
	}, nil, 1, 1)
}

func articleSchema() map[string]db.IndexFieldType {
	return map[string]db.IndexFieldType{
		stored.FieldUUID:       db.IndexFieldTag,
		stored.FieldBundle:     db.IndexFieldTag,
		stored.FieldTitle:      db.IndexFieldText,
		stored.FieldTitleExact: db.IndexFieldTag,
		stored.FieldPublished:  db.IndexFieldTag,
		stored.FieldPrivate:    db.IndexFieldTag,
		stored.FieldProvider:   db.IndexFieldTag,
		stored.FieldAuthor:     db.IndexFieldTag,
		stored.FieldCreated:    db.IndexFieldNumeric,
		stored.FieldChanged:    db.IndexFieldNumeric,
		stored.FieldParent:     db.IndexFieldTag,
		"rating":               db.IndexFieldNumeric,
		"featured":             db.IndexFieldTag,
		"released":             db.IndexFieldNumeric,
		"period":               db.IndexFieldNumeric,
		"period_end":           db.IndexFieldNumeric,
		"tags":                 db.IndexFieldTag,
		"tags_label":           db.IndexFieldTag,
		"notes":                db.IndexFieldTag,
	}
}

func caller(uuid string) domprov.Caller {
	p := domprov.Reconstruct(domprov.Params{UUID: uuid, Name: uuid, Prefix: uuid, APIKey: "k-" + uuid}, 0)
	return domprov.Caller{Provider: &p}
}

type fixture struct {
	svc   *Service
	index *mockIndex
	files *mockFiles
}

func newFixture() *fixture {
	idx := &mockIndex{schema: articleSchema(), text: true}
	types := &mockStructure{types: map[string]domtype.ResourceType{
		"p1_article": articleType(),
		"p2_secret":  privateType(),
	}}
	files := &mockFiles{files: map[string]media.File{}}
	svc := New(idx, types, files, DefaultConfig()).
		WithBackOff(func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) })
	return &fixture{svc: svc, index: idx, files: files}
}

func (fx *fixture) list(t *testing.T, req Request) (Result, *db.SearchQuery) {
	t.Helper()
	res, err := fx.svc.List(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, fx.index.searches)
	return res, fx.index.searches[len(fx.index.searches)-1]
}

func values(t *testing.T, raw string) url.Values {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return v
}

func cond(path string, op domquery.Operator, vals ...string) domquery.Condition {
	return domquery.Condition{Path: path, Operator: op, Values: vals}
}

// --- Tests ---

func TestList_AnonymousVisibilityAlwaysApplied(t *testing.T) {
	fx := newFixture()
	_, sq := fx.list(t, Request{
		Kind:   domtype.KindDocument,
		Bundle: "p1_article",
		Caller: domprov.Anonymous(),
		Params: values(t, "filter[published]=false"),
	})

	require.Len(t, sq.Filter.Groups, 3)
	assert.Equal(t, domquery.And, sq.Filter.Conjunction)
	assert.Equal(t, []domquery.Condition{
		{ID: "published", Path: stored.FieldPublished, Operator: domquery.OpEq, Values: []string{"0"}},
	}, sq.Filter.Groups[0].Conditions)

	vis := sq.Filter.Groups[1]
	assert.Equal(t, domquery.And, vis.Conjunction)
	assert.Equal(t, []domquery.Condition{
		cond(stored.FieldPublished, domquery.OpEq, "1"),
		cond(stored.FieldPrivate, domquery.OpNotEq, "1"),
	}, vis.Conditions)

	assert.Equal(t, []domquery.Condition{cond(stored.FieldBundle, domquery.OpEq, "p1_article")},
		sq.Filter.Groups[2].Conditions)
	assert.Equal(t, "documents_p1_article", sq.IndexName)
}

func TestList_ProviderSeesOwnRows(t *testing.T) {
	fx := newFixture()
	_, sq := fx.list(t, Request{Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1")})

	vis := sq.Filter.Groups[1]
	assert.Equal(t, domquery.Or, vis.Conjunction)
	assert.Equal(t, []domquery.Condition{cond(stored.FieldProvider, domquery.OpEq, "p1")}, vis.Conditions)
	require.Len(t, vis.Groups, 1)
	assert.Equal(t, stored.Visibility(domprov.Anonymous()), vis.Groups[0])
}

func TestList_GroupingTree(t *testing.T) {
	fx := newFixture()
	_, sq := fx.list(t, Request{
		Kind:   domtype.KindDocument,
		Bundle: "p1_article",
		Caller: caller("p1"),
		Params: values(t, "filter[rating][value]=1&filter[rating][memberOf]=g1&filter[g1][group][conjunction]=OR"),
	})

	user := sq.Filter.Groups[0]
	assert.Equal(t, domquery.RootID, user.ID)
	assert.Equal(t, domquery.And, user.Conjunction)
	require.Len(t, user.Groups, 1)
	g1 := user.Groups[0]
	assert.Equal(t, "g1", g1.ID)
	assert.Equal(t, domquery.Or, g1.Conjunction)
	assert.Equal(t, []domquery.Condition{
		{ID: "rating", Path: "rating", Operator: domquery.OpEq, Values: []string{"1"}},
	}, g1.Conditions)
}

func TestList_PageClamp(t *testing.T) {
	fx := newFixture()
	res, sq := fx.list(t, Request{
		Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
		Params: values(t, "page[limit]=10000"),
	})
	assert.Equal(t, 100, sq.Limit)
	assert.Equal(t, 100, res.Limit)

	_, sq = fx.list(t, Request{Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1")})
	assert.Equal(t, 50, sq.Limit)
	assert.Equal(t, 0, sq.Offset)
}

func TestList_Sorting(t *testing.T) {
	fx := newFixture()
	_, sq := fx.list(t, Request{Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1")})
	assert.Equal(t, []domquery.Sort{{Path: stored.FieldCreated, Direction: domquery.Desc}}, sq.Sort)

	_, sq = fx.list(t, Request{
		Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
		Params: values(t, "sort=-rating,title"),
	})
	require.Len(t, sq.Sort, 2)
	assert.Equal(t, domquery.Sort{Path: "rating", Direction: domquery.Desc}, sq.Sort[0])
	assert.Equal(t, stored.FieldTitleExact, sq.Sort[1].Path)
}

func TestList_OptionList(t *testing.T) {
	fx := newFixture()
	fx.index.searchFn = func(*db.SearchQuery) ([]stored.Entity, int, error) {
		return []stored.Entity{
			{UUID: "t1", Kind: domtype.KindDocument, Bundle: "p1_article", Title: "Child", ParentLabel: "Root"},
			{UUID: "t2", Kind: domtype.KindDocument, Bundle: "p1_article", Title: "Root"},
		}, 2, nil
	}

	res, sq := fx.list(t, Request{
		Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
		Params: values(t, "page[limit]=5&facets=rating"), OptionList: true,
	})
	assert.Equal(t, 9999, sq.Limit)
	assert.Equal(t, []domquery.Sort{{Path: stored.FieldTitleExact, Direction: domquery.Asc}}, sq.Sort)
	assert.Empty(t, fx.index.facets)
	assert.Equal(t, []Row{
		{"uuid": "t1", "label": "Child", "display_name": "Root > Child"},
		{"uuid": "t2", "label": "Root", "display_name": "Root"},
	}, res.Rows)
}

func TestList_PathsAndValues(t *testing.T) {
	fx := newFixture()
	_, sq := fx.list(t, Request{
		Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
		Params: values(t, "filter[a][path]=title&filter[a][value]=Hello"+
			"&filter[b][path]=label&filter[b][operator]=CONTAINS&filter[b][value]=wor"+
			"&filter[c][path]=featured&filter[c][value]=true"+
			"&filter[d][path]=released&filter[d][operator]=>%3D&filter[d][value]=2024-01-01"+
			"&filter[e][path]=tags.label&filter[e][value]=a|b"+
			"&filter[f][path]=period.end_value&filter[f][operator]=<&filter[f][value]=100"),
	})

	got := map[string]domquery.Condition{}
	for _, c := range sq.Filter.Groups[0].Conditions {
		got[c.ID] = c
	}
	assert.Equal(t, stored.FieldTitleExact, got["a"].Path)
	assert.Equal(t, stored.FieldTitle, got["b"].Path)
	assert.Equal(t, []string{"1"}, got["c"].Values)
	assert.Equal(t, "released", got["d"].Path)
	assert.Equal(t, []string{"1704067200"}, got["d"].Values)
	assert.Equal(t, "tags_label", got["e"].Path)
	assert.Equal(t, []string{"a b"}, got["e"].Values)
	assert.Equal(t, "period_end", got["f"].Path)
}

func TestList_TitleFallsBackToExactWithoutText(t *testing.T) {
	fx := newFixture()
	delete(fx.index.schema, stored.FieldTitle)
	_, sq := fx.list(t, Request{
		Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
		Params: values(t, "filter[t][path]=title&filter[t][operator]=CONTAINS&filter[t][value]=x"),
	})
	assert.Equal(t, stored.FieldTitleExact, sq.Filter.Groups[0].Conditions[0].Path)
}

func TestList_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		noText  bool
		wantErr error
	}{
		{
			name:    "unknown bundle",
			req:     Request{Kind: domtype.KindDocument, Bundle: "nope", Caller: caller("p1")},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "private type of another provider",
			req:     Request{Kind: domtype.KindDocument, Bundle: "p2_secret", Caller: caller("p1")},
			wantErr: domain.ErrNotFound,
		},
		{
			name: "private field of another provider",
			req: Request{
				Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p3"),
				Params: url.Values{"filter[notes]": {"x"}},
			},
			wantErr: domain.ErrAccessDenied,
		},
		{
			name: "unknown path",
			req: Request{
				Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
				Params: url.Values{"filter[ghost]": {"x"}},
			},
			wantErr: domain.ErrBadRequest,
		},
		{
			name: "malformed grammar",
			req: Request{
				Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
				Params: url.Values{"filter[a][memberOf]": {"missing"}, "filter[a][value]": {"1"}},
			},
			wantErr: domain.ErrBadRequest,
		},
		{
			name: "search without text index",
			req: Request{
				Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
				Params: url.Values{"s": {"hello"}},
			},
			noText:  true,
			wantErr: domain.ErrBadRequest,
		},
		{
			name: "bad boolean",
			req: Request{
				Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
				Params: url.Values{"filter[featured]": {"maybe"}},
			},
			wantErr: domain.ErrBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture()
			fx.index.text = !tt.noText
			_, err := fx.svc.List(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, fx.index.searches)
		})
	}
}

func TestList_AnyScopesVisibleBundles(t *testing.T) {
	fx := newFixture()
	_, sq := fx.list(t, Request{Kind: domtype.KindDocument, Caller: caller("p2")})
	assert.Nil(t, fx.index.indexed)
	assert.Equal(t, "documents", sq.IndexName)
	assert.Equal(t, []domquery.Condition{
		cond(stored.FieldBundle, domquery.OpIn, "p1_article", "p2_secret"),
	}, sq.Filter.Groups[2].Conditions)

	fx = newFixture()
	fx.svc.types = &mockStructure{types: map[string]domtype.ResourceType{"p2_secret": privateType()}}
	res, err := fx.svc.List(context.Background(), Request{Kind: domtype.KindDocument, Caller: caller("p1")})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Empty(t, fx.index.searches)
}

func TestList_RetriesTransientFailures(t *testing.T) {
	fx := newFixture()
	calls := 0
	fx.index.searchFn = func(*db.SearchQuery) ([]stored.Entity, int, error) {
		calls++
		if calls < 3 {
			return nil, 0, &db.Error{Op: "search", Err: db.ErrTransient}
		}
		return nil, 0, nil
	}
	_, err := fx.svc.List(context.Background(), Request{Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1")})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestList_RetryExhausted(t *testing.T) {
	fx := newFixture()
	fx.index.searchFn = func(*db.SearchQuery) ([]stored.Entity, int, error) {
		return nil, 0, db.ErrTransient
	}
	_, err := fx.svc.List(context.Background(), Request{Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1")})
	require.ErrorIs(t, err, domain.ErrTransientBackend)
	assert.Len(t, fx.index.searches, 4)
}

func TestList_PermanentFailureNotRetried(t *testing.T) {
	fx := newFixture()
	fx.index.searchFn = func(*db.SearchQuery) ([]stored.Entity, int, error) {
		return nil, 0, db.ErrInvalidCondition
	}
	_, err := fx.svc.List(context.Background(), Request{Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1")})
	require.ErrorIs(t, err, domain.ErrBadRequest)
	assert.Len(t, fx.index.searches, 1)
}

func TestDefaultBackOffSchedule(t *testing.T) {
	svc := New(&mockIndex{}, &mockStructure{}, &mockFiles{}, DefaultConfig())
	b := svc.defaultBackOff()

	var waits []time.Duration
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		if d == backoff.Stop {
			break
		}
		waits = append(waits, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestList_Facets(t *testing.T) {
	fx := newFixture()
	fx.index.facetFn = func(q *db.FacetQuery) ([]db.FacetBucket, error) {
		return []db.FacetBucket{{Value: "t1", Count: 3}}, nil
	}
	res, _ := fx.list(t, Request{
		Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p1"),
		Params: values(t, "facets=tags,title"),
	})
	require.Len(t, fx.index.facets, 2)
	assert.Equal(t, "tags", fx.index.facets[0].Field)
	assert.Equal(t, stored.FieldTitleExact, fx.index.facets[1].Field)
	assert.Equal(t, []db.FacetBucket{{Value: "t1", Count: 3}}, res.Facets["tags"])

	_, err := newFixture().svc.List(context.Background(), Request{
		Kind: domtype.KindDocument, Bundle: "p1_article", Caller: caller("p9"),
		Params: url.Values{"facets": {"notes"}},
	})
	require.ErrorIs(t, err, domain.ErrAccessDenied)
}

func ptr(f float64) *float64 { return &f }

func TestReshape(t *testing.T) {
	fx := newFixture()
	pub, err := media.NewFile("a.pdf", "application/pdf", false, "p2", 1)
	require.NoError(t, err)
	priv, err := media.NewFile("b.pdf", "application/pdf", true, "p2", 1)
	require.NoError(t, err)
	fx.files.files["m-pub"] = pub
	fx.files.files["m-priv"] = priv

	e := stored.Entity{
		V: stored.Version, UUID: "d1", Kind: domtype.KindDocument, Bundle: "p1_article",
		Owner: "p1", Title: "Doc", Author: "ann", Published: true, Created: 1700000000, Changed: 1700000060,
		RevisionID: 2,
		Fields: map[string]stored.Field{
			"rating":   {Type: field.Integer, Items: []resource.Item{{Value: "5"}}},
			"featured": {Type: field.Boolean, Items: []resource.Item{{Value: "true"}}},
			"released": {Type: field.Timestamp, Items: []resource.Item{{Value: "1704067200"}}},
			"period":   {Type: field.DateRange, Items: []resource.Item{{Value: "1704067200", End: "1704153600"}}},
			"site":     {Type: field.Link, Items: []resource.Item{{URI: "https://x.test", Title: "X"}}},
			"where":    {Type: field.Geofield, Items: []resource.Item{{Lat: ptr(1.5), Lon: ptr(-2)}}},
			"tags": {Type: field.EntityReference, Multiple: true, Items: []resource.Item{
				{TargetUUID: "t1", Label: "One"}, {TargetUUID: "t2", Label: "Two"},
			}},
			"notes":   {Type: field.String, Items: []resource.Item{{Value: "secret"}}},
			"dropped": {Type: field.String, Items: []resource.Item{{Value: "gone"}}},
		},
		Files: []resource.FileRef{{MediaUUID: "m-pub"}, {MediaUUID: "m-priv"}, {MediaUUID: "m-hidden"}},
	}

	row, err := fx.svc.Reshape(context.Background(), e, caller("p3"))
	require.NoError(t, err)

	assert.Equal(t, "Doc", row["title"])
	assert.Equal(t, "2023-11-14T22:13:20Z", row["created"])
	assert.Equal(t, int64(5), row["rating"])
	assert.Equal(t, true, row["featured"])
	assert.Equal(t, "2024-01-01T00:00:00Z", row["released"])
	assert.Equal(t, Range{Start: "2024-01-01T00:00:00Z", End: "2024-01-02T00:00:00Z"}, row["period"])
	assert.Equal(t, LinkValue{URI: "https://x.test", Title: "X"}, row["site"])
	assert.Equal(t, Point{Lat: 1.5, Lon: -2}, row["where"])
	assert.Equal(t, []any{Ref{UUID: "t1", Label: "One"}, Ref{UUID: "t2", Label: "Two"}}, row["tags"])
	assert.NotContains(t, row, "notes")
	assert.NotContains(t, row, "dropped")

	files, ok := row["files"].([]FileValue)
	require.True(t, ok)
	require.Len(t, files, 2)
	assert.Equal(t, pub.URI(), files[0].URI)
	assert.False(t, files[0].Private)
	assert.Empty(t, files[1].URI, "private uri is hidden from non-owners")
	assert.True(t, files[1].Private)

	owner, err := fx.svc.Reshape(context.Background(), e, caller("p2"))
	require.NoError(t, err)
	assert.Equal(t, priv.URI(), owner["files"].([]FileValue)[1].URI)

	fieldOwner, err := fx.svc.Reshape(context.Background(), e, caller("p1"))
	require.NoError(t, err)
	assert.Equal(t, "secret", fieldOwner["notes"])
}

func TestReshape_Term(t *testing.T) {
	fx := newFixture()
	row, err := fx.svc.Reshape(context.Background(), stored.Entity{
		UUID: "t1", Kind: domtype.KindTerm, Bundle: "p1_tags", Title: "Leaf",
		Parent: "t0", ParentLabel: "Root", Description: "d",
	}, domprov.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, "Leaf", row["label"])
	assert.Equal(t, Ref{UUID: "t0", Label: "Root"}, row["parent"])
	assert.NotContains(t, row, "files")
	assert.NotContains(t, row, "title")
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(db.ErrTransient), domain.ErrTransientBackend)
	assert.ErrorIs(t, classify(db.ErrNotFilterable), domain.ErrBadRequest)
	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
}
