package resource

import (
	"context"

	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domquery "github.com/kailas-cloud/resdex/internal/domain/query"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
	"github.com/kailas-cloud/resdex/internal/usecase/metadata"
	"github.com/kailas-cloud/resdex/internal/usecase/query"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
)

// Repository persists resource rows.
type Repository interface {
	Get(ctx context.Context, uuid string) (stored.Entity, error)
	Save(ctx context.Context, e stored.Entity) error
	Delete(ctx context.Context, kind domtype.Kind, bundle, uuid string) error
	CountReferences(ctx context.Context, uuid string) (int, error)
	FindByTitle(
		ctx context.Context, kind domtype.Kind, bundles []string, title string, scope domquery.Group, limit int,
	) ([]stored.Entity, error)
}

// TypeLookup resolves resource types by machine name.
type TypeLookup interface {
	ByMachineName(ctx context.Context, kind domtype.Kind, name string) (domtype.ResourceType, bool, error)
}

// Compiler turns metadata entries into field values.
type Compiler interface {
	Compile(ctx context.Context, req metadata.Request) (domres.Values, error)
}

// Revisions runs the revision state machine.
type Revisions interface {
	Initial(ctx context.Context, r *domres.Resource, provider, log string) (domres.Revision, error)
	Apply(
		ctx context.Context, r *domres.Resource, t domtype.ResourceType,
		next domres.Snapshot, p revision.Params, provider string,
	) (domres.Revision, bool, error)
	Publish(ctx context.Context, r *domres.Resource, id int64, provider string) (domres.Revision, bool, error)
	List(ctx context.Context, r *domres.Resource) ([]domres.Revision, error)
	Load(ctx context.Context, r *domres.Resource, ref string) (domres.Revision, error)
	Forget(ctx context.Context, r *domres.Resource) error
}

// Files reads media and moves their files between schemes.
type Files interface {
	GetMedia(ctx context.Context, uuid string) (media.Media, error)
	SetMediaPrivate(ctx context.Context, caller domprov.Caller, mediaUUID string, private bool) error
}

// Reshaper renders a stored entity for a caller.
type Reshaper interface {
	Reshape(ctx context.Context, e stored.Entity, caller domprov.Caller) (query.Row, error)
}
