package revision

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/resdex/internal/domain"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

type mockStore struct {
	hashes   map[string]map[string]string
	counters map[string]int64
	incrErr  error
}

func newMockStore() *mockStore {
	return &mockStore{hashes: map[string]map[string]string{}, counters: map[string]int64{}}
}

func (m *mockStore) HSet(_ context.Context, key string, fields map[string]string) error {
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *mockStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return m.hashes[key], nil
}

func (m *mockStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.hashes, k)
		delete(m.counters, k)
	}
	return nil
}

func (m *mockStore) Incr(_ context.Context, key string) (int64, error) {
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	m.counters[key]++
	return m.counters[key], nil
}

func rev(id int64, def bool) domres.Revision {
	return domres.Revision{
		ID: id, ResourceUUID: "u1", Kind: domtype.KindDocument, Bundle: "acme_article",
		Created: id * 10, Default: def, ProviderUUID: "p1",
		Snapshot: domres.Snapshot{Title: "v", Published: def},
	}
}

func TestNextID_Monotonic(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, "resdex:")
	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := repo.NextID(ctx, domtype.KindDocument, "u1")
		if err != nil || got != want {
			t.Fatalf("NextID = %d, %v; want %d", got, err, want)
		}
	}
	if ms.counters["resdex:revseq:document:u1"] != 3 {
		t.Errorf("counters = %v", ms.counters)
	}
}

func TestSaveAndList_NewestFirst(t *testing.T) {
	repo := New(newMockStore(), "resdex:")
	ctx := context.Background()
	if err := repo.Save(ctx, rev(1, false), rev(2, true)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, rev(10, false)); err != nil {
		t.Fatal(err)
	}

	revs, err := repo.List(ctx, domtype.KindDocument, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 3 || revs[0].ID != 10 || revs[2].ID != 1 {
		t.Fatalf("order = %+v", revs)
	}
	if !revs[1].Default || revs[1].Snapshot.Title != "v" {
		t.Errorf("rev 2 = %+v", revs[1])
	}
}

func TestSave_RejectsMixedResources(t *testing.T) {
	repo := New(newMockStore(), "resdex:")
	other := rev(2, false)
	other.ResourceUUID = "u2"
	if err := repo.Save(context.Background(), rev(1, true), other); err == nil {
		t.Error("expected error")
	}
}

func TestGet(t *testing.T) {
	repo := New(newMockStore(), "resdex:")
	ctx := context.Background()
	if err := repo.Save(ctx, rev(1, true)); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx, domtype.KindDocument, "u1", 1)
	if err != nil || got.ID != 1 {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if _, err := repo.Get(ctx, domtype.KindDocument, "u1", 9); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestList_CorruptEntry(t *testing.T) {
	ms := newMockStore()
	ms.hashes["resdex:revisions:term:u1"] = map[string]string{"1": "not json"}
	_, err := New(ms, "resdex:").List(context.Background(), domtype.KindTerm, "u1")
	if !errors.Is(err, domain.ErrFatalIO) {
		t.Errorf("error = %v, want ErrFatalIO", err)
	}
}

func TestDeleteAll(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, "resdex:")
	ctx := context.Background()
	_, _ = repo.NextID(ctx, domtype.KindDocument, "u1")
	_ = repo.Save(ctx, rev(1, true))
	if err := repo.DeleteAll(ctx, domtype.KindDocument, "u1"); err != nil {
		t.Fatal(err)
	}
	if len(ms.hashes) != 0 || len(ms.counters) != 0 {
		t.Errorf("leftovers: %v %v", ms.hashes, ms.counters)
	}
}
