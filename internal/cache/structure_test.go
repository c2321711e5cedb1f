package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

func testTypes() []resourcetype.ResourceType {
	return []resourcetype.ResourceType{
		resourcetype.Reconstruct(resourcetype.KindDocument, "p1",
			resourcetype.Params{MachineName: "acme_article", Endpoint: "articles"}, nil, 0, 1),
		resourcetype.Reconstruct(resourcetype.KindDocument, "p2",
			resourcetype.Params{MachineName: "beta_news", Endpoint: "news",
				Flags: resourcetype.Flags{Shared: true}}, nil, 0, 1),
		resourcetype.Reconstruct(resourcetype.KindDocument, "p2",
			resourcetype.Params{MachineName: "beta_secret", Endpoint: "secret",
				Flags: resourcetype.Flags{Private: true}}, nil, 0, 1),
	}
}

func countingLoader(calls *int) Loader {
	return func(_ context.Context, kind resourcetype.Kind) ([]resourcetype.ResourceType, error) {
		*calls++
		if kind != resourcetype.KindDocument {
			return nil, nil
		}
		return testTypes(), nil
	}
}

func TestStructure_LoadsOnce(t *testing.T) {
	calls := 0
	s := New(countingLoader(&calls))
	ctx := context.Background()

	if _, err := s.Types(ctx, resourcetype.KindDocument); err != nil {
		t.Fatalf("Types: %v", err)
	}
	typ, ok, err := s.ByEndpoint(ctx, resourcetype.KindDocument, "news")
	if err != nil || !ok {
		t.Fatalf("ByEndpoint = %v, %v", ok, err)
	}
	if typ.MachineName() != "beta_news" {
		t.Errorf("MachineName = %q", typ.MachineName())
	}
	if _, ok, _ := s.ByMachineName(ctx, resourcetype.KindDocument, "acme_article"); !ok {
		t.Error("expected acme_article")
	}
	if calls != 1 {
		t.Errorf("loader calls = %d, want 1", calls)
	}

	s.Invalidate(resourcetype.KindDocument)
	if _, _, err := s.ByEndpoint(ctx, resourcetype.KindDocument, "news"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("loader calls after invalidate = %d, want 2", calls)
	}
}

func TestStructure_Accessible(t *testing.T) {
	calls := 0
	s := New(countingLoader(&calls))
	ctx := context.Background()

	anon, err := s.Accessible(ctx, resourcetype.KindDocument, "")
	if err != nil {
		t.Fatal(err)
	}
	if !anon.Contains("beta_news") || anon.Cardinality() != 1 {
		t.Errorf("anonymous set = %v", anon)
	}

	p2, err := s.Accessible(ctx, resourcetype.KindDocument, "p2")
	if err != nil {
		t.Fatal(err)
	}
	if !p2.Contains("beta_secret") || p2.Contains("acme_article") {
		t.Errorf("p2 set = %v", p2)
	}
}

func TestStructure_FieldAccessInvalidatedPerKind(t *testing.T) {
	s := New(func(context.Context, resourcetype.Kind) ([]resourcetype.ResourceType, error) { return nil, nil })
	doc := AccessKey{Kind: resourcetype.KindDocument, Bundle: "a", Field: "f", Provider: "p"}
	term := AccessKey{Kind: resourcetype.KindTerm, Bundle: "t", Field: "f", Provider: "p"}
	s.StoreFieldAccess(doc, true)
	s.StoreFieldAccess(term, false)

	s.Invalidate(resourcetype.KindDocument)
	if _, ok := s.FieldAccess(doc); ok {
		t.Error("document memo should be dropped")
	}
	if allowed, ok := s.FieldAccess(term); !ok || allowed {
		t.Errorf("term memo = %v, %v; want false, true", allowed, ok)
	}

	s.InvalidateAll()
	if _, ok := s.FieldAccess(term); ok {
		t.Error("InvalidateAll should drop every memo")
	}
}

func TestStructure_LoaderError(t *testing.T) {
	boom := errors.New("boom")
	s := New(func(context.Context, resourcetype.Kind) ([]resourcetype.ResourceType, error) { return nil, boom })
	if _, err := s.Types(context.Background(), resourcetype.KindTerm); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}
