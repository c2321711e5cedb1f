package access

import (
	"context"

	"github.com/kailas-cloud/resdex/internal/cache"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// TypeLookup resolves resource types by machine name.
type TypeLookup interface {
	ByMachineName(ctx context.Context, kind domtype.Kind, name string) (domtype.ResourceType, bool, error)
}

// Memo stores access decisions between requests.
type Memo interface {
	FieldAccess(key cache.AccessKey) (allowed, ok bool)
	StoreFieldAccess(key cache.AccessKey, allowed bool)
}
