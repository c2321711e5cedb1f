package batch

import (
	"context"

	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/usecase/resource"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
)

// Creator creates one resource.
type Creator interface {
	Create(
		ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string,
		in resource.Input, p revision.Params,
	) (resource.Created, error)
}
