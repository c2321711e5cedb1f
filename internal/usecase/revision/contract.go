package revision

import (
	"context"

	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// Repository defines the storage contract for revision history.
type Repository interface {
	NextID(ctx context.Context, kind domtype.Kind, uuid string) (int64, error)
	Save(ctx context.Context, revs ...domres.Revision) error
	List(ctx context.Context, kind domtype.Kind, uuid string) ([]domres.Revision, error)
	Get(ctx context.Context, kind domtype.Kind, uuid string, id int64) (domres.Revision, error)
	DeleteAll(ctx context.Context, kind domtype.Kind, uuid string) error
}
