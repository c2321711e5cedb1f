package chi

import (
	"context"

	dombatch "github.com/kailas-cloud/resdex/internal/domain/batch"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	batchuc "github.com/kailas-cloud/resdex/internal/usecase/batch"
	"github.com/kailas-cloud/resdex/internal/usecase/filever"
	healthuc "github.com/kailas-cloud/resdex/internal/usecase/health"
	"github.com/kailas-cloud/resdex/internal/usecase/query"
	resourceuc "github.com/kailas-cloud/resdex/internal/usecase/resource"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
	"github.com/kailas-cloud/resdex/internal/usecase/schema"
)

// Callers resolves API keys.
type Callers interface {
	ByAPIKey(ctx context.Context, key string) (domprov.Caller, error)
}

// Endpoints maps the route segment of a type to the type.
type Endpoints interface {
	ByEndpoint(ctx context.Context, kind domtype.Kind, endpoint string) (domtype.ResourceType, bool, error)
}

// Schema manages resource types and their fields.
type Schema interface {
	CreateType(ctx context.Context, caller domprov.Caller, kind domtype.Kind, p domtype.Params) (domtype.ResourceType, error)
	GetType(ctx context.Context, caller domprov.Caller, kind domtype.Kind, machineName string) (domtype.ResourceType, error)
	ListTypes(ctx context.Context, caller domprov.Caller, kind domtype.Kind) ([]domtype.ResourceType, error)
	UpdateType(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, machineName string,
		label, description string, flags domtype.Flags,
	) (domtype.ResourceType, error)
	DeleteType(ctx context.Context, caller domprov.Caller, kind domtype.Kind, machineName string) error
	CreateField(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, machineName string, p schema.FieldParams,
	) (field.Definition, error)
	UpdateField(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, machineName, name string,
		label string, private bool,
	) (field.Definition, error)
	DeleteField(ctx context.Context, caller domprov.Caller, kind domtype.Kind, machineName, name string) error
}

// Resources runs single-resource operations.
type Resources interface {
	Create(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string,
		in resourceuc.Input, p revision.Params,
	) (resourceuc.Created, error)
	Get(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string) (resourceuc.View, error)
	Update(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
		in resourceuc.Input, p revision.Params, ifMatch *int64,
	) (resourceuc.View, error)
	Delete(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string) error
	Publish(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid, ref string) (domres.Revision, error)
	Unpublish(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string) error
	Revisions(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string) ([]domres.Revision, error)
	Revision(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid, ref string) (domres.Revision, error)
}

// Lister runs list and option-list queries.
type Lister interface {
	List(ctx context.Context, req query.Request) (query.Result, error)
}

// Bulk creates many resources of one type.
type Bulk interface {
	Create(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string, req batchuc.Request) []dombatch.Result
}

// Files manages files, media and signed downloads.
type Files interface {
	CreateFile(ctx context.Context, caller domprov.Caller, filename, mimeType string, private bool) (media.File, error)
	GetFile(ctx context.Context, uuid string) (media.File, error)
	GetMedia(ctx context.Context, uuid string) (media.Media, error)
	MediaForFile(ctx context.Context, fileUUID string) (media.Media, error)
	WriteContent(
		ctx context.Context, caller domprov.Caller, fileUUID string, data []byte, newRevision bool,
	) (filever.Written, error)
	MoveToPrivate(ctx context.Context, caller domprov.Caller, fileUUID string) (media.File, error)
	MoveToPublic(ctx context.Context, caller domprov.Caller, fileUUID string) (media.File, error)
	SelectVersion(ctx context.Context, caller domprov.Caller, mediaUUID, target string) (media.Media, error)
	Resolve(ctx context.Context, caller domprov.Caller, mediaUUID string) (media.File, error)
	DeleteRevision(ctx context.Context, caller domprov.Caller, mediaUUID string, id int64) error
	Download(ctx context.Context, t filever.Target) (media.File, []byte, error)
}

// Health reports component status.
type Health interface {
	Check(ctx context.Context) healthuc.Report
}
