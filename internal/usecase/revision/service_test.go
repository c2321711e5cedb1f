package revision

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/kailas-cloud/resdex/internal/domain"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// --- Mocks ---

type memRepo struct {
	seq   int64
	revs  map[int64]domres.Revision
	saves int
}

func newMemRepo() *memRepo { return &memRepo{revs: map[int64]domres.Revision{}} }

func (m *memRepo) NextID(context.Context, domtype.Kind, string) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *memRepo) Save(_ context.Context, revs ...domres.Revision) error {
	m.saves++
	for _, r := range revs {
		m.revs[r.ID] = r
	}
	return nil
}

func (m *memRepo) List(context.Context, domtype.Kind, string) ([]domres.Revision, error) {
	out := make([]domres.Revision, 0, len(m.revs))
	for _, r := range m.revs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) Get(_ context.Context, _ domtype.Kind, _ string, id int64) (domres.Revision, error) {
	r, ok := m.revs[id]
	if !ok {
		return domres.Revision{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) DeleteAll(context.Context, domtype.Kind, string) error {
	m.revs = map[int64]domres.Revision{}
	return nil
}

func (m *memRepo) defaults() []int64 {
	var ids []int64
	for id, r := range m.revs {
		if r.Default {
			ids = append(ids, id)
		}
	}
	return ids
}

// --- Fixtures ---

func newService(repo *memRepo) *Service {
	clock := int64(1000)
	return New(repo).WithClock(func() time.Time {
		clock++
		return time.Unix(clock, 0)
	})
}

func newResource(t *testing.T, svc *Service) *domres.Resource {
	t.Helper()
	r, err := domres.New(domtype.KindDocument, "acme_article", "p1", domres.Snapshot{Title: "v1"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Initial(context.Background(), &r, "p1", ""); err != nil {
		t.Fatalf("Initial: %v", err)
	}
	return &r
}

func typeWith(flags domtype.Flags) domtype.ResourceType {
	return domtype.Reconstruct(domtype.KindDocument, "p1", domtype.Params{MachineName: "acme_article", Flags: flags}, nil, 1, 1)
}

func assertSingleDefault(t *testing.T, repo *memRepo, want int64) {
	t.Helper()
	d := repo.defaults()
	if len(d) != 1 || d[0] != want {
		t.Errorf("default revisions = %v, want [%d]", d, want)
	}
}

// --- Tests ---

func TestInitial(t *testing.T) {
	repo := newMemRepo()
	r := newResource(t, newService(repo))
	if r.RevisionID() != 1 || repo.revs[1].Log != LogCreated {
		t.Errorf("revision = %d, log = %q", r.RevisionID(), repo.revs[1].Log)
	}
	assertSingleDefault(t, repo, 1)
}

func TestApply_InPlaceWithoutRevisioning(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo)
	r := newResource(t, svc)

	rev, promoted, err := svc.Apply(context.Background(), r, typeWith(domtype.Flags{}),
		domres.Snapshot{Title: "v2"}, Params{}, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !promoted || rev.ID != 1 || len(repo.revs) != 1 {
		t.Errorf("rev = %d, promoted = %v, stored = %d", rev.ID, promoted, len(repo.revs))
	}
	if r.Current().Title != "v2" || repo.revs[1].Snapshot.Title != "v2" || repo.revs[1].Log != LogUpdated {
		t.Errorf("current = %q, stored = %+v", r.Current().Title, repo.revs[1])
	}
}

func TestApply_NewRevision(t *testing.T) {
	tests := []struct {
		name   string
		flags  domtype.Flags
		params Params
	}{
		{"requested", domtype.Flags{}, Params{NewRevision: true, Log: "edit"}},
		{"type mandates", domtype.Flags{UseRevisions: true}, Params{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			svc := newService(repo)
			r := newResource(t, svc)

			rev, promoted, err := svc.Apply(context.Background(), r, typeWith(tt.flags),
				domres.Snapshot{Title: "v2"}, tt.params, "p2")
			if err != nil {
				t.Fatal(err)
			}
			if !promoted || rev.ID != 2 || r.RevisionID() != 2 {
				t.Errorf("rev = %d, resource revision = %d", rev.ID, r.RevisionID())
			}
			if repo.revs[2].ProviderUUID != "p2" || repo.revs[1].Snapshot.Title != "v1" {
				t.Errorf("history = %+v", repo.revs)
			}
			assertSingleDefault(t, repo, 2)
		})
	}
}

func TestApply_Draft(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo)
	r := newResource(t, svc)

	rev, promoted, err := svc.Apply(context.Background(), r, typeWith(domtype.Flags{}),
		domres.Snapshot{Title: "draft"}, Params{Draft: true}, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if promoted || !rev.Draft() {
		t.Errorf("draft promoted = %v, draft = %v", promoted, rev.Draft())
	}
	if r.Current().Title != "v1" || r.RevisionID() != 1 {
		t.Errorf("visible state moved: %q rev %d", r.Current().Title, r.RevisionID())
	}
	assertSingleDefault(t, repo, 1)
}

func TestPublish_LatestDraftInPlace(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo)
	r := newResource(t, svc)
	ctx := context.Background()
	if _, _, err := svc.Apply(ctx, r, typeWith(domtype.Flags{}), domres.Snapshot{Title: "draft"}, Params{Draft: true}, "p1"); err != nil {
		t.Fatal(err)
	}

	draftCreated := repo.revs[2].Created
	svc.WithClock(func() time.Time { return time.Unix(5000, 0) })

	rev, changed, err := svc.Publish(ctx, r, 2, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !changed || rev.ID != 2 || len(repo.revs) != 2 {
		t.Errorf("rev = %d changed = %v stored = %d", rev.ID, changed, len(repo.revs))
	}
	if rev.Created != 5000 || repo.revs[2].Created != 5000 || draftCreated == 5000 {
		t.Errorf("published at %d (stored %d), drafted at %d", rev.Created, repo.revs[2].Created, draftCreated)
	}
	if r.Current().Title != "draft" {
		t.Errorf("current = %q", r.Current().Title)
	}
	assertSingleDefault(t, repo, 2)
}

func TestPublish_OlderRevisionIdempotent(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo)
	r := newResource(t, svc)
	ctx := context.Background()
	typ := typeWith(domtype.Flags{UseRevisions: true})
	if _, _, err := svc.Apply(ctx, r, typ, domres.Snapshot{Title: "v2"}, Params{}, "p1"); err != nil {
		t.Fatal(err)
	}

	rev, changed, err := svc.Publish(ctx, r, 1, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !changed || rev.ID != 3 || rev.PublishedFrom != 1 || r.Current().Title != "v1" {
		t.Errorf("first publish: rev = %+v", rev)
	}
	assertSingleDefault(t, repo, 3)

	saves := repo.saves
	_, changed, err = svc.Publish(ctx, r, 1, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if changed || repo.saves != saves || len(repo.revs) != 3 {
		t.Errorf("second publish must be a no-op: changed = %v, revisions = %d", changed, len(repo.revs))
	}

	_, changed, _ = svc.Publish(ctx, r, 3, "p1")
	if changed {
		t.Error("publishing the default revision must be a no-op")
	}
}

func TestPublish_Missing(t *testing.T) {
	svc := newService(newMemRepo())
	r := newResource(t, svc)
	if _, _, err := svc.Publish(context.Background(), r, 9, "p1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListAndLoad(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo)
	r := newResource(t, svc)
	ctx := context.Background()
	typ := typeWith(domtype.Flags{UseRevisions: true})
	for i := 0; i < MaxListed+5; i++ {
		if _, _, err := svc.Apply(ctx, r, typ, domres.Snapshot{Title: "v"}, Params{}, "p1"); err != nil {
			t.Fatal(err)
		}
	}

	revs, err := svc.List(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != MaxListed || revs[0].ID != int64(MaxListed+6) {
		t.Errorf("listed %d, newest %d", len(revs), revs[0].ID)
	}

	last, err := svc.Load(ctx, r, Last)
	if err != nil || last.ID != int64(MaxListed+6) {
		t.Errorf("last = %d, %v", last.ID, err)
	}
	first, err := svc.Load(ctx, r, "1")
	if err != nil || first.Snapshot.Title != "v1" {
		t.Errorf("first = %+v, %v", first, err)
	}
	if _, err := svc.Load(ctx, r, "abc"); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("bad id error = %v", err)
	}
	if _, err := svc.Load(ctx, r, "999"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing error = %v", err)
	}
	assertSingleDefault(t, repo, int64(MaxListed+6))
}

func TestForget(t *testing.T) {
	repo := newMemRepo()
	svc := newService(repo)
	r := newResource(t, svc)
	if err := svc.Forget(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if len(repo.revs) != 0 {
		t.Errorf("revisions left: %d", len(repo.revs))
	}
}
