package metadata

import (
	"context"
	"encoding/json"

	"github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/domain/query"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
)

// TypeLookup resolves resource types by machine name.
type TypeLookup interface {
	ByMachineName(ctx context.Context, kind domtype.Kind, name string) (domtype.ResourceType, bool, error)
}

// FieldAuthorizer enforces the field access policy.
type FieldAuthorizer interface {
	Require(ctx context.Context, fieldName, bundle string, kind domtype.Kind, provider string) error
}

// Finder reads existing resources to resolve references.
type Finder interface {
	Get(ctx context.Context, uuid string) (stored.Entity, error)
	FindByTitle(
		ctx context.Context, kind domtype.Kind, bundles []string, title string, scope query.Group, limit int,
	) ([]stored.Entity, error)
	FindByProperty(
		ctx context.Context, t domtype.ResourceType, property, value string, scope query.Group,
	) ([]stored.Entity, error)
}

// ChildRequest asks for a nested resource to be created.
// Title alone builds a minimal resource; Data carries a full create payload.
type ChildRequest struct {
	Caller provider.Caller
	Kind   domtype.Kind
	Bundle string
	Author string
	Title  string
	Data   json.RawMessage
	Depth  int
}

// Creator creates nested resources on behalf of the compiler.
type Creator interface {
	CreateChild(ctx context.Context, req ChildRequest) (uuid, title string, err error)
}
