package schema

import (
	"context"

	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// Repository defines the storage contract for resource types.
type Repository interface {
	Create(ctx context.Context, t domtype.ResourceType) error
	Save(ctx context.Context, t domtype.ResourceType) error
	Get(ctx context.Context, kind domtype.Kind, machineName string) (domtype.ResourceType, error)
	Delete(ctx context.Context, kind domtype.Kind, machineName string) error
}

// Indexer keeps per-type indexes in step with type definitions.
type Indexer interface {
	Reindex(ctx context.Context, t domtype.ResourceType) error
	DropTypeIndex(ctx context.Context, t domtype.ResourceType) error
	CountBundle(ctx context.Context, kind domtype.Kind, bundle string) (int, error)
}

// Structure is the process-wide type lookup cache.
type Structure interface {
	Types(ctx context.Context, kind domtype.Kind) ([]domtype.ResourceType, error)
	ByMachineName(ctx context.Context, kind domtype.Kind, name string) (domtype.ResourceType, bool, error)
	ByEndpoint(ctx context.Context, kind domtype.Kind, endpoint string) (domtype.ResourceType, bool, error)
	Invalidate(kind domtype.Kind)
}
