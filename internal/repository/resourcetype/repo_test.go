package resourcetype

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/resdex/internal/domain"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

func TestCreateAndGet_RoundTrip(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	in := testType(t, domtype.KindDocument, "acme_article", 100)

	if err := repo.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := ms.hashes["resdex:type:document:acme_article"]; !ok {
		t.Fatalf("unexpected keys: %v", ms.hashes)
	}

	got, err := repo.Get(ctx, domtype.KindDocument, "acme_article")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Endpoint() != "acme-article" || !got.Flags().Shared || !got.Flags().UseRevisions {
		t.Errorf("type = %+v", got.Params())
	}
	if got.Revision() != 3 || got.CreatedAt() != 100 || got.Owner() != "p1" {
		t.Errorf("meta: revision=%d created=%d owner=%s", got.Revision(), got.CreatedAt(), got.Owner())
	}
	tags, ok := got.FieldByName("tags")
	if !ok || !tags.Multiple() || tags.Target().Bundle != "acme_tags" || tags.Label() != "Tags" {
		t.Errorf("tags field = %+v", tags)
	}
	secret, _ := got.FieldByName("secret")
	if !secret.Private() || secret.Owner() != "p1" {
		t.Errorf("secret field = %+v", secret)
	}
}

func TestCreate_Conflict(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	typ := testType(t, domtype.KindTerm, "acme_tags", 1)
	if err := repo.Create(ctx, typ); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, typ); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), domtype.KindDocument, "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestList_FiltersKindAndSorts(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	_ = repo.Save(ctx, testType(t, domtype.KindDocument, "b_second", 20))
	_ = repo.Save(ctx, testType(t, domtype.KindDocument, "a_first", 10))
	_ = repo.Save(ctx, testType(t, domtype.KindTerm, "vocab", 5))

	list, err := repo.List(ctx, domtype.KindDocument)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].MachineName() != "a_first" || list[1].MachineName() != "b_second" {
		t.Errorf("list = %v", list)
	}
}

func TestDelete(t *testing.T) {
	repo, ms := newTestRepo(t)
	ctx := context.Background()
	_ = repo.Save(ctx, testType(t, domtype.KindTerm, "vocab", 5))

	if err := repo.Delete(ctx, domtype.KindTerm, "vocab"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(ms.hashes) != 0 {
		t.Errorf("hash not removed: %v", ms.hashes)
	}
	if err := repo.Delete(ctx, domtype.KindTerm, "vocab"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	repo, ms := newTestRepo(t)
	boom := errors.New("boom")
	ms.errFn = func(string) error { return boom }

	if _, err := repo.List(context.Background(), domtype.KindDocument); !errors.Is(err, boom) {
		t.Errorf("List error = %v", err)
	}
	if err := repo.Create(context.Background(), testType(t, domtype.KindDocument, "x", 1)); !errors.Is(err, boom) {
		t.Errorf("Create error = %v", err)
	}
}
