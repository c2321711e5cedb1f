// Package filever manages file content, copy-on-write file revisions,
// public/private relocation and per-provider version selection.
package filever

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/logger"
	"github.com/kailas-cloud/resdex/internal/storage/blob"
)

// Download link kinds.
const (
	KindFiles = "files"
	KindMedia = "media"
)

// Written is the outcome of a content write.
type Written struct {
	File  media.File
	Media media.Media
	// Revisioned is true when the write created a new media revision.
	Revisioned bool
}

// Target names a signed direct-download link.
type Target struct {
	Kind         string
	UUID         string
	ProviderUUID string
	Hash         string
	Filename     string
}

// Service handles files and their media containers.
type Service struct {
	repo      Repository
	storage   Storage
	providers Providers
	now       func() time.Time
}

// New creates a file version service.
func New(repo Repository, storage Storage, providers Providers) *Service {
	return &Service{repo: repo, storage: storage, providers: providers, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateFile registers a temporary descriptor at a sharded path.
func (s *Service) CreateFile(
	ctx context.Context, caller domprov.Caller, filename, mimeType string, private bool,
) (media.File, error) {
	if !caller.CanWrite() {
		return media.File{}, fmt.Errorf("create file: %w", domain.ErrUnauthenticated)
	}
	f, err := media.NewFile(filename, mimeType, private, caller.UUID(), s.now().Unix())
	if err != nil {
		return media.File{}, fmt.Errorf("create file: %w: %w", domain.ErrValidation, err)
	}
	if err := s.repo.SaveFile(ctx, &f); err != nil {
		return media.File{}, fmt.Errorf("save file: %w", err)
	}
	return f, nil
}

// GetFile returns a file descriptor.
func (s *Service) GetFile(ctx context.Context, uuid string) (media.File, error) {
	f, err := s.repo.GetFile(ctx, uuid)
	if err != nil {
		return media.File{}, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

// GetMedia returns a media container.
func (s *Service) GetMedia(ctx context.Context, uuid string) (media.Media, error) {
	m, err := s.repo.GetMedia(ctx, uuid)
	if err != nil {
		return media.Media{}, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// MediaForFile returns the media a file belongs to.
func (s *Service) MediaForFile(ctx context.Context, fileUUID string) (media.Media, error) {
	m, err := s.repo.MediaForFile(ctx, fileUUID)
	if err != nil {
		return media.Media{}, fmt.Errorf("media for file %s: %w", fileUUID, err)
	}
	return m, nil
}

// WriteContent stores data for a file.
//
// The first write of a temporary file never overwrites existing content.
// Later writes replace the bytes in place, unless newRevision is set:
// then the old bytes are copied aside, the old descriptor follows them,
// and a new descriptor of the next generation takes over the original uri.
// Identical content never produces a revision.
func (s *Service) WriteContent(
	ctx context.Context, caller domprov.Caller, fileUUID string, data []byte, newRevision bool,
) (Written, error) {
	f, err := s.ownedFile(ctx, caller, fileUUID)
	if err != nil {
		return Written{}, err
	}
	if f.Temporary() {
		return s.writeFirst(ctx, &f, data)
	}
	exists, err := s.storage.Exists(f.URI())
	if err != nil {
		return Written{}, ioErr("stat", err)
	}
	if !newRevision || !exists {
		return s.overwrite(ctx, &f, data)
	}
	if f.URI() != f.StableURI() {
		return Written{}, fmt.Errorf("%w: file %s is a historical revision", domain.ErrConflict, f.UUID())
	}
	if f.Hash() == contentHash(data) {
		m, err := s.ensureMedia(ctx, &f)
		return Written{File: f, Media: m}, err
	}
	return s.swap(ctx, caller, &f, data)
}

func (s *Service) writeFirst(ctx context.Context, f *media.File, data []byte) (Written, error) {
	uri, err := s.storage.Write(f.URI(), data, blob.Rename)
	if err != nil {
		return Written{}, ioErr("write", err)
	}
	s.record(f, uri, data)
	if err := s.repo.SaveFile(ctx, f); err != nil {
		return Written{}, fmt.Errorf("save file: %w", err)
	}
	m, err := s.ensureMedia(ctx, f)
	if err != nil {
		return Written{}, err
	}
	return Written{File: *f, Media: m}, nil
}

func (s *Service) overwrite(ctx context.Context, f *media.File, data []byte) (Written, error) {
	if _, err := s.storage.Write(f.URI(), data, blob.Replace); err != nil {
		return Written{}, ioErr("write", err)
	}
	s.record(f, f.URI(), data)
	if err := s.repo.SaveFile(ctx, f); err != nil {
		return Written{}, fmt.Errorf("save file: %w", err)
	}
	m, err := s.ensureMedia(ctx, f)
	if err != nil {
		return Written{}, err
	}
	return Written{File: *f, Media: m}, nil
}

func (s *Service) swap(ctx context.Context, caller domprov.Caller, f *media.File, data []byte) (Written, error) {
	m, err := s.ensureMedia(ctx, f)
	if err != nil {
		return Written{}, err
	}
	rotated, err := s.storage.Copy(f.URI(), f.URI(), blob.Rename)
	if err != nil {
		return Written{}, ioErr("copy", err)
	}
	now := s.now().Unix()
	next := f.NextGeneration(now)
	if _, err := s.storage.Write(next.URI(), data, blob.Replace); err != nil {
		return Written{}, ioErr("write", err)
	}
	s.record(&next, next.URI(), data)
	f.Rotate(rotated)

	if err := s.repo.SaveFile(ctx, f); err != nil {
		return Written{}, fmt.Errorf("save rotated file: %w", err)
	}
	if err := s.repo.SaveFile(ctx, &next); err != nil {
		return Written{}, fmt.Errorf("save file: %w", err)
	}
	rev := m.AddRevision(next.UUID(), caller.UUID(), now)
	if err := s.repo.SaveMedia(ctx, &m); err != nil {
		return Written{}, fmt.Errorf("save media: %w", err)
	}

	logger.FromContext(ctx).Info("Media revision created",
		zap.String("media_uuid", m.UUID()),
		zap.Int64("revision", rev.ID),
		zap.String("file_uuid", next.UUID()),
		zap.String("rotated_uri", rotated),
	)
	return Written{File: next, Media: m, Revisioned: true}, nil
}

func (s *Service) record(f *media.File, uri string, data []byte) {
	f.RecordContent(uri, int64(len(data)), contentHash(data))
	if f.Mime() == media.MimeUndefined {
		f.SetMime(deriveMime(f.Filename(), data))
	}
}

func (s *Service) ensureMedia(ctx context.Context, f *media.File) (media.Media, error) {
	m, err := s.repo.MediaForFile(ctx, f.UUID())
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return media.Media{}, fmt.Errorf("media for file %s: %w", f.UUID(), err)
	}
	m, err = media.New(f.Filename(), f.Owner(), f.UUID(), s.now().Unix())
	if err != nil {
		return media.Media{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := s.repo.SaveMedia(ctx, &m); err != nil {
		return media.Media{}, fmt.Errorf("save media: %w", err)
	}
	return m, nil
}

// MoveToPrivate relocates a file into private storage.
func (s *Service) MoveToPrivate(ctx context.Context, caller domprov.Caller, fileUUID string) (media.File, error) {
	return s.move(ctx, caller, fileUUID, media.SchemePrivate)
}

// MoveToPublic relocates a file into public storage.
func (s *Service) MoveToPublic(ctx context.Context, caller domprov.Caller, fileUUID string) (media.File, error) {
	return s.move(ctx, caller, fileUUID, media.SchemePublic)
}

func (s *Service) move(
	ctx context.Context, caller domprov.Caller, fileUUID string, scheme media.Scheme,
) (media.File, error) {
	f, err := s.ownedFile(ctx, caller, fileUUID)
	if err != nil {
		return media.File{}, err
	}
	if _, err := s.relocate(ctx, &f, scheme); err != nil {
		return media.File{}, err
	}
	return f, nil
}

// SetMediaPrivate moves every file of a media that the caller owns into
// the scheme matching private.
func (s *Service) SetMediaPrivate(ctx context.Context, caller domprov.Caller, mediaUUID string, private bool) error {
	m, err := s.repo.GetMedia(ctx, mediaUUID)
	if err != nil {
		return fmt.Errorf("get media: %w", err)
	}
	scheme := media.SchemeFor(private)
	for _, rev := range m.Revisions() {
		f, err := s.repo.GetFile(ctx, rev.FileUUID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return fmt.Errorf("get file: %w", err)
		}
		if !f.OwnedBy(caller.UUID()) {
			continue
		}
		if _, err := s.relocate(ctx, &f, scheme); err != nil {
			return err
		}
	}
	return nil
}

// relocate moves f to scheme and reports whether anything changed.
func (s *Service) relocate(ctx context.Context, f *media.File, scheme media.Scheme) (bool, error) {
	if f.Scheme() == scheme {
		return false, nil
	}
	target, err := blob.WithScheme(f.URI(), scheme)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrFatalIO, err)
	}
	stable, err := blob.WithScheme(f.StableURI(), scheme)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrFatalIO, err)
	}
	if !f.Temporary() {
		moved, err := s.storage.Move(f.URI(), target, blob.Rename)
		if err != nil {
			return false, ioErr("move", err)
		}
		if f.URI() == f.StableURI() {
			stable = moved
		}
		target = moved
	}
	f.Relocate(target, stable)
	if err := s.repo.SaveFile(ctx, f); err != nil {
		return false, fmt.Errorf("save file: %w", err)
	}
	logger.FromContext(ctx).Info("File relocated",
		zap.String("file_uuid", f.UUID()),
		zap.String("scheme", string(scheme)),
	)
	return true, nil
}

// SelectVersion stores which file of a media the caller sees: a file uuid,
// media.SelectLatest, or media.SelectHidden (also for empty target).
func (s *Service) SelectVersion(
	ctx context.Context, caller domprov.Caller, mediaUUID, target string,
) (media.Media, error) {
	if caller.IsAnonymous() {
		return media.Media{}, fmt.Errorf("select version: %w", domain.ErrUnauthenticated)
	}
	m, err := s.repo.GetMedia(ctx, mediaUUID)
	if err != nil {
		return media.Media{}, fmt.Errorf("get media: %w", err)
	}
	if err := m.Select(caller.UUID(), target); err != nil {
		return media.Media{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := s.repo.SaveMedia(ctx, &m); err != nil {
		return media.Media{}, fmt.Errorf("save media: %w", err)
	}
	return m, nil
}

// Resolve returns the file of a media as the caller sees it.
func (s *Service) Resolve(ctx context.Context, caller domprov.Caller, mediaUUID string) (media.File, error) {
	m, err := s.repo.GetMedia(ctx, mediaUUID)
	if err != nil {
		return media.File{}, fmt.Errorf("get media: %w", err)
	}
	return s.resolve(ctx, &m, caller.UUID())
}

func (s *Service) resolve(ctx context.Context, m *media.Media, provider string) (media.File, error) {
	fileUUID, ok := m.Resolve(provider)
	if !ok {
		return media.File{}, fmt.Errorf("media %s: %w", m.UUID(), domain.ErrNotFound)
	}
	f, err := s.repo.GetFile(ctx, fileUUID)
	if err != nil {
		return media.File{}, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

// DeleteRevision removes one revision of a media together with its file.
//
// A revision another provider has selected cannot be deleted. Removing the
// default promotes the previous revision and moves its bytes back to the
// stable uri; removing the only revision deletes the media.
func (s *Service) DeleteRevision(ctx context.Context, caller domprov.Caller, mediaUUID string, id int64) error {
	if !caller.CanWrite() {
		return fmt.Errorf("delete revision: %w", domain.ErrUnauthenticated)
	}
	m, err := s.repo.GetMedia(ctx, mediaUUID)
	if err != nil {
		return fmt.Errorf("get media: %w", err)
	}
	rev, ok := m.Revision(id)
	if !ok {
		return fmt.Errorf("revision %d of media %s: %w", id, mediaUUID, domain.ErrNotFound)
	}
	if !m.OwnedBy(caller.UUID()) && rev.ProviderUUID != caller.UUID() {
		return fmt.Errorf("delete revision %d: %w", id, domain.ErrAccessDenied)
	}
	if pins := m.PinnedBy(rev.FileUUID, caller.UUID()); len(pins) > 0 {
		return fmt.Errorf("%w: revision %d is selected by %d other provider(s)",
			domain.ErrAccessDenied, id, len(pins))
	}

	removed, promoted, empty, err := m.RemoveRevision(id, s.now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	old, err := s.repo.GetFile(ctx, removed.FileUUID)
	hasFile := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get file: %w", err)
	}
	if hasFile && !old.Temporary() {
		if err := s.storage.Delete(old.URI()); err != nil {
			return ioErr("delete", err)
		}
	}
	if err := s.repo.DeleteFile(ctx, removed.FileUUID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}

	log := logger.FromContext(ctx)
	if empty {
		if err := s.repo.DeleteMedia(ctx, &m); err != nil {
			return fmt.Errorf("delete media: %w", err)
		}
		log.Info("Media deleted", zap.String("media_uuid", mediaUUID))
		return nil
	}
	if promoted != nil && hasFile {
		if err := s.restoreStable(ctx, &old, promoted.FileUUID); err != nil {
			return err
		}
	}
	if err := s.repo.SaveMedia(ctx, &m); err != nil {
		return fmt.Errorf("save media: %w", err)
	}
	log.Info("Media revision deleted",
		zap.String("media_uuid", mediaUUID),
		zap.Int64("revision", id),
	)
	return nil
}

// restoreStable moves the promoted file back to the stable uri the removed
// default occupied, so direct links keep serving the visible content.
func (s *Service) restoreStable(ctx context.Context, removed *media.File, promotedUUID string) error {
	if removed.URI() != removed.StableURI() {
		return nil
	}
	f, err := s.repo.GetFile(ctx, promotedUUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("get file: %w", err)
	}
	if f.StableURI() != removed.StableURI() || f.URI() == f.StableURI() || f.Temporary() {
		return nil
	}
	moved, err := s.storage.Move(f.URI(), f.StableURI(), blob.Replace)
	if err != nil {
		return ioErr("move", err)
	}
	f.Relocate(moved, moved)
	if err := s.repo.SaveFile(ctx, &f); err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}

// Download verifies a signed link and returns the file with its content.
// Media links serve the file the signing provider has selected.
func (s *Service) Download(ctx context.Context, t Target) (media.File, []byte, error) {
	p, err := s.providers.Get(ctx, t.ProviderUUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return media.File{}, nil, fmt.Errorf("download: %w", domain.ErrAccessDenied)
		}
		return media.File{}, nil, fmt.Errorf("get provider: %w", err)
	}
	if !p.ValidDownloadHash(t.UUID, t.Hash) {
		return media.File{}, nil, fmt.Errorf("download: %w", domain.ErrAccessDenied)
	}

	var f media.File
	switch t.Kind {
	case KindFiles:
		f, err = s.repo.GetFile(ctx, t.UUID)
	case KindMedia:
		var m media.Media
		if m, err = s.repo.GetMedia(ctx, t.UUID); err == nil {
			f, err = s.resolve(ctx, &m, p.UUID())
		}
	default:
		return media.File{}, nil, fmt.Errorf("download kind %q: %w", t.Kind, domain.ErrNotFound)
	}
	if err != nil {
		return media.File{}, nil, fmt.Errorf("download: %w", err)
	}
	if f.Temporary() || (t.Filename != "" && t.Filename != f.Filename()) {
		return media.File{}, nil, fmt.Errorf("download %s: %w", t.UUID, domain.ErrNotFound)
	}
	data, err := s.storage.Read(f.URI())
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return media.File{}, nil, fmt.Errorf("download %s: %w", t.UUID, domain.ErrNotFound)
		}
		return media.File{}, nil, ioErr("read", err)
	}
	return f, data, nil
}

// SignedPath builds the direct-download path of target for p.
func SignedPath(kind, targetUUID string, p domprov.Provider, filename string) string {
	return "/" + kind + "/" + targetUUID + "/" + p.UUID() + "/" + p.DownloadHashFor(targetUUID) + "/" + filename
}

func (s *Service) ownedFile(ctx context.Context, caller domprov.Caller, fileUUID string) (media.File, error) {
	if !caller.CanWrite() {
		return media.File{}, fmt.Errorf("file %s: %w", fileUUID, domain.ErrUnauthenticated)
	}
	f, err := s.repo.GetFile(ctx, fileUUID)
	if err != nil {
		return media.File{}, fmt.Errorf("get file: %w", err)
	}
	if !f.OwnedBy(caller.UUID()) {
		return media.File{}, fmt.Errorf("file %s: %w", fileUUID, domain.ErrAccessDenied)
	}
	return f, nil
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%s content: %w: %w", op, domain.ErrFatalIO, err)
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func deriveMime(filename string, data []byte) string {
	if t := mime.TypeByExtension(path.Ext(filename)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
