package filever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/storage/blob"
)

// --- Mocks ---

type memRepo struct {
	files     map[string]media.FileState
	media     map[string]media.State
	fileMedia map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		files:     map[string]media.FileState{},
		media:     map[string]media.State{},
		fileMedia: map[string]string{},
	}
}

func (r *memRepo) SaveFile(_ context.Context, f *media.File) error {
	r.files[f.UUID()] = f.State()
	return nil
}

func (r *memRepo) GetFile(_ context.Context, uuid string) (media.File, error) {
	st, ok := r.files[uuid]
	if !ok {
		return media.File{}, domain.ErrNotFound
	}
	return media.ReconstructFile(st), nil
}

func (r *memRepo) DeleteFile(_ context.Context, uuid string) error {
	delete(r.files, uuid)
	delete(r.fileMedia, uuid)
	return nil
}

func (r *memRepo) SaveMedia(_ context.Context, m *media.Media) error {
	st := m.State()
	r.media[st.UUID] = st
	for _, rev := range st.Revisions {
		r.fileMedia[rev.FileUUID] = st.UUID
	}
	return nil
}

func (r *memRepo) GetMedia(_ context.Context, uuid string) (media.Media, error) {
	st, ok := r.media[uuid]
	if !ok {
		return media.Media{}, domain.ErrNotFound
	}
	return media.Reconstruct(st), nil
}

func (r *memRepo) MediaForFile(ctx context.Context, fileUUID string) (media.Media, error) {
	id, ok := r.fileMedia[fileUUID]
	if !ok {
		return media.Media{}, domain.ErrNotFound
	}
	return r.GetMedia(ctx, id)
}

func (r *memRepo) DeleteMedia(_ context.Context, m *media.Media) error {
	delete(r.media, m.UUID())
	for _, rev := range m.Revisions() {
		delete(r.fileMedia, rev.FileUUID)
	}
	return nil
}

type mockProviders struct {
	byUUID map[string]domprov.Provider
}

func (m *mockProviders) Get(_ context.Context, uuid string) (domprov.Provider, error) {
	p, ok := m.byUUID[uuid]
	if !ok {
		return domprov.Provider{}, domain.ErrNotFound
	}
	return p, nil
}

// --- Helpers ---

func testProvider(uuid, secret string) domprov.Provider {
	return domprov.Reconstruct(domprov.Params{
		UUID:         uuid,
		Name:         uuid,
		Prefix:       uuid,
		APIKey:       "key-" + uuid,
		SharedSecret: secret,
	}, 0)
}

func writer(p domprov.Provider) domprov.Caller {
	return domprov.Caller{Provider: &p}
}

type fixture struct {
	svc   *Service
	repo  *memRepo
	blobs *blob.Store
	owner domprov.Caller
	other domprov.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, afero.NewMemMapFs())
}

func newFixtureOn(t *testing.T, fs afero.Fs) *fixture {
	t.Helper()
	owner := testProvider("p-owner", "s3cret")
	other := testProvider("p-other", "0ther")
	repo := newMemRepo()
	blobs := blob.New(fs, blob.Config{PublicRoot: "/srv/public", PrivateRoot: "/srv/private"})
	provs := &mockProviders{byUUID: map[string]domprov.Provider{
		owner.UUID(): owner,
		other.UUID(): other,
	}}
	clock := time.Unix(1_700_000_000, 0)
	svc := New(repo, blobs, provs).WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return &fixture{svc: svc, repo: repo, blobs: blobs, owner: writer(owner), other: writer(other)}
}

func (fx *fixture) written(t *testing.T, filename string, data []byte) Written {
	t.Helper()
	ctx := context.Background()
	f, err := fx.svc.CreateFile(ctx, fx.owner, filename, "", false)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	w, err := fx.svc.WriteContent(ctx, fx.owner, f.UUID(), data, false)
	if err != nil {
		t.Fatalf("WriteContent: %v", err)
	}
	return w
}

func (fx *fixture) read(t *testing.T, uri string) string {
	t.Helper()
	b, err := fx.blobs.Read(uri)
	if err != nil {
		t.Fatalf("Read(%s): %v", uri, err)
	}
	return string(b)
}

// --- Tests ---

func TestCreateFile(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := fx.svc.CreateFile(ctx, fx.owner, "report.pdf", "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Temporary() {
		t.Error("new file should be temporary")
	}
	if f.Scheme() != media.SchemePrivate {
		t.Errorf("expected private scheme, got %s", f.Scheme())
	}
	if want := media.URI(media.SchemePrivate, media.ShardedPath("report.pdf")); f.URI() != want {
		t.Errorf("expected uri %s, got %s", want, f.URI())
	}
	if _, ok := fx.repo.files[f.UUID()]; !ok {
		t.Error("descriptor not saved")
	}
}

func TestCreateFile_Errors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.CreateFile(ctx, domprov.Anonymous(), "a.txt", "", false); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("anonymous: expected ErrUnauthenticated, got %v", err)
	}
	ro := fx.owner
	ro.ReadOnly = true
	if _, err := fx.svc.CreateFile(ctx, ro, "a.txt", "", false); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("read-only: expected ErrUnauthenticated, got %v", err)
	}
	if _, err := fx.svc.CreateFile(ctx, fx.owner, "a/b.txt", "", false); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad name: expected ErrValidation, got %v", err)
	}
}

func TestWriteContent_FirstWriteNeverOverwrites(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := fx.svc.CreateFile(ctx, fx.owner, "report.pdf", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.blobs.Write(f.URI(), []byte("someone else"), blob.Replace); err != nil {
		t.Fatal(err)
	}

	w, err := fx.svc.WriteContent(ctx, fx.owner, f.UUID(), []byte("%PDF-1.4"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.File.URI() == f.URI() {
		t.Fatal("collision should pick a numbered uri")
	}
	if w.File.StableURI() != w.File.URI() {
		t.Errorf("stable uri should follow the first write, got %s", w.File.StableURI())
	}
	if w.File.Temporary() {
		t.Error("file should be permanent after write")
	}
	if w.File.Mime() != "application/pdf" {
		t.Errorf("expected derived mime application/pdf, got %s", w.File.Mime())
	}
	if got := fx.read(t, f.URI()); got != "someone else" {
		t.Errorf("existing content overwritten: %q", got)
	}
	if revs := w.Media.Revisions(); len(revs) != 1 || revs[0].FileUUID != f.UUID() {
		t.Errorf("expected media with one revision of the file, got %+v", revs)
	}
}

func TestWriteContent_OverwriteInPlace(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.written(t, "notes.txt", []byte("v1"))

	w, err := fx.svc.WriteContent(ctx, fx.owner, first.File.UUID(), []byte("v2"), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Revisioned {
		t.Error("in-place write should not create a revision")
	}
	if w.File.UUID() != first.File.UUID() || w.File.URI() != first.File.URI() {
		t.Error("in-place write should keep identity and uri")
	}
	if got := fx.read(t, w.File.URI()); got != "v2" {
		t.Errorf("expected v2, got %q", got)
	}
	if len(w.Media.Revisions()) != 1 {
		t.Errorf("expected 1 media revision, got %d", len(w.Media.Revisions()))
	}
}

func TestWriteContent_SwapKeepsStableURI(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.written(t, "manual.pdf", []byte("old bytes"))
	stable := first.File.URI()

	w, err := fx.svc.WriteContent(ctx, fx.owner, first.File.UUID(), []byte("new bytes"), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Revisioned {
		t.Fatal("expected a new revision")
	}

	// original uri serves the new bytes
	if w.File.URI() != stable {
		t.Errorf("new content should live at %s, got %s", stable, w.File.URI())
	}
	if got := fx.read(t, stable); got != "new bytes" {
		t.Errorf("stable uri: expected new bytes, got %q", got)
	}
	if w.File.Generation() != first.File.Generation()+1 {
		t.Errorf("expected generation %d, got %d", first.File.Generation()+1, w.File.Generation())
	}

	// history keeps the old bytes under a rotated uri
	revs := w.Media.Revisions()
	if len(revs) != 2 {
		t.Fatalf("expected 2 media revisions, got %d", len(revs))
	}
	if revs[0].Default || !revs[1].Default {
		t.Errorf("newest revision should be default: %+v", revs)
	}
	if revs[1].FileUUID != w.File.UUID() {
		t.Errorf("default revision should reference the new file")
	}
	old, err := fx.repo.GetFile(ctx, revs[0].FileUUID)
	if err != nil {
		t.Fatal(err)
	}
	if old.URI() == stable {
		t.Error("old descriptor should point at a rotated uri")
	}
	if old.StableURI() != stable {
		t.Errorf("old descriptor should keep stable uri %s, got %s", stable, old.StableURI())
	}
	if got := fx.read(t, old.URI()); got != "old bytes" {
		t.Errorf("old revision: expected old bytes, got %q", got)
	}
}

func TestWriteContent_IdenticalContentNoRevision(t *testing.T) {
	fx := newFixture(t)
	first := fx.written(t, "same.txt", []byte("same"))

	w, err := fx.svc.WriteContent(context.Background(), fx.owner, first.File.UUID(), []byte("same"), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Revisioned || len(w.Media.Revisions()) != 1 {
		t.Error("identical content must not create a revision")
	}
}

func TestWriteContent_HistoricalFileRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.written(t, "h.txt", []byte("a"))
	if _, err := fx.svc.WriteContent(ctx, fx.owner, first.File.UUID(), []byte("b"), true); err != nil {
		t.Fatal(err)
	}

	_, err := fx.svc.WriteContent(ctx, fx.owner, first.File.UUID(), []byte("c"), true)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestWriteContent_NotOwner(t *testing.T) {
	fx := newFixture(t)
	first := fx.written(t, "mine.txt", []byte("a"))

	_, err := fx.svc.WriteContent(context.Background(), fx.other, first.File.UUID(), []byte("b"), false)
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

func TestWriteContent_StorageFailureIsFatal(t *testing.T) {
	fx := newFixtureOn(t, afero.NewReadOnlyFs(afero.NewMemMapFs()))
	ctx := context.Background()
	f, err := fx.svc.CreateFile(ctx, fx.owner, "ro.txt", "", false)
	if err != nil {
		t.Fatal(err)
	}

	_, err = fx.svc.WriteContent(ctx, fx.owner, f.UUID(), []byte("x"), false)
	if !errors.Is(err, domain.ErrFatalIO) {
		t.Errorf("expected ErrFatalIO, got %v", err)
	}
}

func TestMoveToPrivateAndBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.written(t, "secret.txt", []byte("hush"))

	f, err := fx.svc.MoveToPrivate(ctx, fx.owner, first.File.UUID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.IsPrivate() || f.StableURI() != f.URI() {
		t.Errorf("expected private uri with matching stable uri, got %s / %s", f.URI(), f.StableURI())
	}
	if got := fx.read(t, f.URI()); got != "hush" {
		t.Errorf("moved content: %q", got)
	}
	if ok, _ := fx.blobs.Exists(first.File.URI()); ok {
		t.Error("public copy should be gone")
	}

	again, err := fx.svc.MoveToPrivate(ctx, fx.owner, f.UUID())
	if err != nil || again.URI() != f.URI() {
		t.Errorf("second move should be a no-op, got %s, %v", again.URI(), err)
	}

	back, err := fx.svc.MoveToPublic(ctx, fx.owner, f.UUID())
	if err != nil {
		t.Fatal(err)
	}
	if back.IsPrivate() {
		t.Error("expected public scheme")
	}
}

func TestSetMediaPrivate_MovesHistory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.written(t, "doc.txt", []byte("one"))
	w, err := fx.svc.WriteContent(ctx, fx.owner, first.File.UUID(), []byte("two"), true)
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.svc.SetMediaPrivate(ctx, fx.owner, w.Media.UUID(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, rev := range w.Media.Revisions() {
		f, err := fx.repo.GetFile(ctx, rev.FileUUID)
		if err != nil {
			t.Fatal(err)
		}
		if !f.IsPrivate() {
			t.Errorf("revision %d file still public: %s", rev.ID, f.URI())
		}
	}
	cur, err := fx.repo.GetFile(ctx, w.File.UUID())
	if err != nil {
		t.Fatal(err)
	}
	if got := fx.read(t, cur.URI()); got != "two" {
		t.Errorf("current content after move: %q", got)
	}
}

func TestSelectVersion(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.written(t, "v.txt", []byte("1"))
	w, err := fx.svc.WriteContent(ctx, fx.owner, first.File.UUID(), []byte("2"), true)
	if err != nil {
		t.Fatal(err)
	}
	mediaUUID := w.Media.UUID()

	if _, err := fx.svc.SelectVersion(ctx, fx.other, mediaUUID, first.File.UUID()); err != nil {
		t.Fatalf("pin: %v", err)
	}
	f, err := fx.svc.Resolve(ctx, fx.other, mediaUUID)
	if err != nil || f.UUID() != first.File.UUID() {
		t.Errorf("pinned provider should see the old file, got %s, %v", f.UUID(), err)
	}
	f, err = fx.svc.Resolve(ctx, fx.owner, mediaUUID)
	if err != nil || f.UUID() != w.File.UUID() {
		t.Errorf("owner should see latest, got %s, %v", f.UUID(), err)
	}

	if _, err := fx.svc.SelectVersion(ctx, fx.other, mediaUUID, media.SelectHidden); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.Resolve(ctx, fx.other, mediaUUID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("hidden: expected ErrNotFound, got %v", err)
	}

	if _, err := fx.svc.SelectVersion(ctx, fx.other, mediaUUID, media.SelectLatest); err != nil {
		t.Fatal(err)
	}
	if f, _ := fx.svc.Resolve(ctx, fx.other, mediaUUID); f.UUID() != w.File.UUID() {
		t.Errorf("latest: expected %s, got %s", w.File.UUID(), f.UUID())
	}

	if _, err := fx.svc.SelectVersion(ctx, fx.other, mediaUUID, "not-a-revision"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown target: expected ErrValidation, got %v", err)
	}
	if _, err := fx.svc.SelectVersion(ctx, domprov.Anonymous(), mediaUUID, media.SelectLatest); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("anonymous: expected ErrUnauthenticated, got %v", err)
	}
}

func TestDeleteRevision_PinGuard(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.written(t, "guard.txt", []byte("v1"))
	f1 := first.File.UUID()
	w, err := fx.svc.WriteContent(ctx, fx.owner, f1, []byte("v2"), true)
	if err != nil {
		t.Fatal(err)
	}
	mediaUUID := w.Media.UUID()
	stable := w.File.URI()

	if _, err := fx.svc.SelectVersion(ctx, fx.other, mediaUUID, f1); err != nil {
		t.Fatal(err)
	}

	// deleting the default promotes v1
	if err := fx.svc.DeleteRevision(ctx, fx.owner, mediaUUID, 2); err != nil {
		t.Fatalf("delete v2: %v", err)
	}
	m, err := fx.repo.GetMedia(ctx, mediaUUID)
	if err != nil {
		t.Fatalf("media should survive: %v", err)
	}
	revs := m.Revisions()
	if len(revs) != 1 || revs[0].ID != 1 || !revs[0].Default {
		t.Fatalf("expected v1 promoted to default, got %+v", revs)
	}
	if _, err := fx.repo.GetFile(ctx, w.File.UUID()); !errors.Is(err, domain.ErrNotFound) {
		t.Error("v2 file should be deleted")
	}
	if _, err := fx.svc.MediaForFile(ctx, w.File.UUID()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("v2 file should leave the media, got %v", err)
	}
	if owner, err := fx.svc.MediaForFile(ctx, f1); err != nil || owner.UUID() != mediaUUID {
		t.Errorf("v1 should still belong to %s, got %v", mediaUUID, err)
	}
	promoted, err := fx.repo.GetFile(ctx, f1)
	if err != nil {
		t.Fatal(err)
	}
	if promoted.URI() != stable {
		t.Errorf("promoted file should return to %s, got %s", stable, promoted.URI())
	}
	if got := fx.read(t, stable); got != "v1" {
		t.Errorf("stable uri: expected v1, got %q", got)
	}

	// v1 is still pinned by the other provider
	err = fx.svc.DeleteRevision(ctx, fx.owner, mediaUUID, 1)
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
}

func TestDeleteRevision_LastDeletesMedia(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	w := fx.written(t, "only.txt", []byte("x"))

	if err := fx.svc.DeleteRevision(ctx, fx.owner, w.Media.UUID(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fx.repo.GetMedia(ctx, w.Media.UUID()); !errors.Is(err, domain.ErrNotFound) {
		t.Error("media should be deleted")
	}
	if _, err := fx.repo.GetFile(ctx, w.File.UUID()); !errors.Is(err, domain.ErrNotFound) {
		t.Error("file should be deleted")
	}
	if ok, _ := fx.blobs.Exists(w.File.URI()); ok {
		t.Error("content should be deleted")
	}
}

func TestDeleteRevision_Errors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	w := fx.written(t, "e.txt", []byte("x"))

	if err := fx.svc.DeleteRevision(ctx, fx.owner, w.Media.UUID(), 9); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing revision: expected ErrNotFound, got %v", err)
	}
	if err := fx.svc.DeleteRevision(ctx, fx.other, w.Media.UUID(), 1); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("foreign provider: expected ErrAccessDenied, got %v", err)
	}
	if err := fx.svc.DeleteRevision(ctx, domprov.Anonymous(), w.Media.UUID(), 1); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("anonymous: expected ErrUnauthenticated, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	w := fx.written(t, "dl.txt", []byte("payload"))
	owner := *fx.owner.Provider

	f, data, err := fx.svc.Download(ctx, Target{
		Kind:         KindFiles,
		UUID:         w.File.UUID(),
		ProviderUUID: owner.UUID(),
		Hash:         owner.DownloadHashFor(w.File.UUID()),
		Filename:     "dl.txt",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.UUID() != w.File.UUID() || string(data) != "payload" {
		t.Errorf("unexpected download %s %q", f.UUID(), data)
	}

	_, data, err = fx.svc.Download(ctx, Target{
		Kind:         KindMedia,
		UUID:         w.Media.UUID(),
		ProviderUUID: owner.UUID(),
		Hash:         owner.DownloadHashFor(w.Media.UUID()),
	})
	if err != nil || string(data) != "payload" {
		t.Errorf("media download: %q, %v", data, err)
	}

	tests := []struct {
		name   string
		target Target
		want   error
	}{
		{"bad hash", Target{Kind: KindFiles, UUID: w.File.UUID(), ProviderUUID: owner.UUID(), Hash: "nope"}, domain.ErrAccessDenied},
		{"unknown provider", Target{Kind: KindFiles, UUID: w.File.UUID(), ProviderUUID: "ghost", Hash: "x"}, domain.ErrAccessDenied},
		{"wrong filename", Target{
			Kind: KindFiles, UUID: w.File.UUID(), ProviderUUID: owner.UUID(),
			Hash: owner.DownloadHashFor(w.File.UUID()), Filename: "other.txt",
		}, domain.ErrNotFound},
		{"unknown kind", Target{
			Kind: "blobs", UUID: w.File.UUID(), ProviderUUID: owner.UUID(),
			Hash: owner.DownloadHashFor(w.File.UUID()),
		}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := fx.svc.Download(ctx, tt.target); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSignedPath(t *testing.T) {
	p := testProvider("p1", "secret")
	got := SignedPath(KindFiles, "f1", p, "a.pdf")
	want := "/files/f1/p1/" + domprov.DownloadHash("secret", "f1", "p1") + "/a.pdf"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
