package query

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
)

// Index runs structured queries against the resource indexes.
type Index interface {
	IndexFor(ctx context.Context, kind domtype.Kind, t *domtype.ResourceType) (db.ResolvedIndex, error)
	TextSearch(ctx context.Context) bool
	Search(ctx context.Context, q *db.SearchQuery) ([]stored.Entity, int, error)
	Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetBucket, error)
}

// Structure provides cached resource type lookups.
type Structure interface {
	ByMachineName(ctx context.Context, kind domtype.Kind, name string) (domtype.ResourceType, bool, error)
	Accessible(ctx context.Context, kind domtype.Kind, provider string) (mapset.Set[string], error)
}

// Files resolves the file a caller sees for a media.
type Files interface {
	Resolve(ctx context.Context, caller domprov.Caller, mediaUUID string) (media.File, error)
}
