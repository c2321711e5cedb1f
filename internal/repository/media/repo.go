package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain"
	dommedia "github.com/kailas-cloud/resdex/internal/domain/media"
)

// store is the consumer interface for file and media descriptors (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, keys ...string) error
}

// Repo stores file descriptors and media entities as JSON documents.
type Repo struct {
	store  store
	prefix string
}

// New creates a file and media repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// SaveFile writes f.
func (r *Repo) SaveFile(ctx context.Context, f *dommedia.File) error {
	b, err := json.Marshal(f.State())
	if err != nil {
		return fmt.Errorf("marshal file %s: %w", f.UUID(), err)
	}
	if err := r.store.JSONSet(ctx, r.fileKey(f.UUID()), "$", b); err != nil {
		return fmt.Errorf("json.set file %s: %w", f.UUID(), err)
	}
	return nil
}

// GetFile loads a file descriptor.
func (r *Repo) GetFile(ctx context.Context, uuid string) (dommedia.File, error) {
	var st dommedia.FileState
	if err := r.getJSON(ctx, r.fileKey(uuid), &st); err != nil {
		return dommedia.File{}, fmt.Errorf("file %s: %w", uuid, err)
	}
	return dommedia.ReconstructFile(st), nil
}

// DeleteFile removes a descriptor and its media pointer.
func (r *Repo) DeleteFile(ctx context.Context, uuid string) error {
	if err := r.store.Del(ctx, r.fileKey(uuid), r.fileMediaKey(uuid)); err != nil {
		return fmt.Errorf("del file %s: %w", uuid, err)
	}
	return nil
}

// SaveMedia writes m and points each of its files back at it.
func (r *Repo) SaveMedia(ctx context.Context, m *dommedia.Media) error {
	st := m.State()
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal media %s: %w", st.UUID, err)
	}
	if err := r.store.JSONSet(ctx, r.mediaKey(st.UUID), "$", b); err != nil {
		return fmt.Errorf("json.set media %s: %w", st.UUID, err)
	}
	for _, rev := range st.Revisions {
		if err := r.store.Set(ctx, r.fileMediaKey(rev.FileUUID), []byte(st.UUID)); err != nil {
			return fmt.Errorf("set file media %s: %w", rev.FileUUID, err)
		}
	}
	return nil
}

// GetMedia loads a media entity.
func (r *Repo) GetMedia(ctx context.Context, uuid string) (dommedia.Media, error) {
	var st dommedia.State
	if err := r.getJSON(ctx, r.mediaKey(uuid), &st); err != nil {
		return dommedia.Media{}, fmt.Errorf("media %s: %w", uuid, err)
	}
	return dommedia.Reconstruct(st), nil
}

// MediaForFile finds the media whose history holds fileUUID.
func (r *Repo) MediaForFile(ctx context.Context, fileUUID string) (dommedia.Media, error) {
	id, err := r.store.Get(ctx, r.fileMediaKey(fileUUID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return dommedia.Media{}, domain.ErrNotFound
		}
		return dommedia.Media{}, fmt.Errorf("get file media %s: %w", fileUUID, err)
	}
	return r.GetMedia(ctx, string(id))
}

// DeleteMedia removes the media document and its file pointers.
func (r *Repo) DeleteMedia(ctx context.Context, m *dommedia.Media) error {
	keys := []string{r.mediaKey(m.UUID())}
	for _, rev := range m.Revisions() {
		keys = append(keys, r.fileMediaKey(rev.FileUUID))
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del media %s: %w", m.UUID(), err)
	}
	return nil
}

func (r *Repo) getJSON(ctx context.Context, key string, v any) error {
	b, err := r.store.JSONGet(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrFatalIO, err)
	}
	return nil
}

// Key patterns:
//   {prefix}file:{uuid}        JSON descriptor
//   {prefix}media:{uuid}       JSON media
//   {prefix}file_media:{uuid}  media uuid

func (r *Repo) fileKey(uuid string) string      { return r.prefix + "file:" + uuid }
func (r *Repo) mediaKey(uuid string) string     { return r.prefix + "media:" + uuid }
func (r *Repo) fileMediaKey(uuid string) string { return r.prefix + "file_media:" + uuid }
