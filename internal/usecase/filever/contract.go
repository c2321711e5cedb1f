package filever

import (
	"context"

	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/storage/blob"
)

// Repository defines the storage contract for file descriptors and media.
type Repository interface {
	SaveFile(ctx context.Context, f *media.File) error
	GetFile(ctx context.Context, uuid string) (media.File, error)
	DeleteFile(ctx context.Context, uuid string) error
	SaveMedia(ctx context.Context, m *media.Media) error
	GetMedia(ctx context.Context, uuid string) (media.Media, error)
	MediaForFile(ctx context.Context, fileUUID string) (media.Media, error)
	DeleteMedia(ctx context.Context, m *media.Media) error
}

// Storage reads and writes file content by storage uri.
type Storage interface {
	Exists(uri string) (bool, error)
	Read(uri string) ([]byte, error)
	Write(uri string, data []byte, mode blob.Mode) (string, error)
	Copy(src, dst string, mode blob.Mode) (string, error)
	Move(src, dst string, mode blob.Mode) (string, error)
	Delete(uri string) error
	Hash(uri string) (string, error)
}

// Providers resolves the provider named in a signed download link.
type Providers interface {
	Get(ctx context.Context, uuid string) (domprov.Provider, error)
}
