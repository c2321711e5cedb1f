package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	dombatch "github.com/kailas-cloud/resdex/internal/domain/batch"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/logger"
	"github.com/kailas-cloud/resdex/internal/usecase/resource"
)

// MaxBatchSize is the maximum number of items per bulk request.
const MaxBatchSize = 100

// Service handles bulk creation with per-item error reporting.
type Service struct {
	creator      Creator
	maxBatchSize int
}

// New creates a batch service.
func New(creator Creator) *Service {
	return &Service{creator: creator, maxBatchSize: MaxBatchSize}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Request is a decoded bulk body: a shared author and the raw items.
type Request struct {
	Author string
	Items  []json.RawMessage
}

// DecodeRequest reads {"author": ..., "documents"|"terms": [...]}.
func DecodeRequest(kind domtype.Kind, raw json.RawMessage) (Request, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return Request{}, fmt.Errorf("%w: bulk body must be a JSON object", domain.ErrValidation)
	}
	var req Request
	if a, ok := body["author"]; ok {
		if err := json.Unmarshal(a, &req.Author); err != nil {
			return Request{}, fmt.Errorf("%w: author must be a string", domain.ErrValidation)
		}
	}
	list, ok := body[kind.Plural()]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, kind.Plural())
	}
	if err := json.Unmarshal(list, &req.Items); err != nil {
		return Request{}, fmt.Errorf("%w: %s must be an array", domain.ErrValidation, kind.Plural())
	}
	return req, nil
}

// Create creates every item independently. Items fail on their own unless
// the failure applies to the whole request (missing write key, cancelled
// context), in which case the remaining items fail with it.
func (s *Service) Create(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string, req Request,
) []dombatch.Result {
	results := make([]dombatch.Result, len(req.Items))

	if len(req.Items) > s.maxBatchSize {
		for i := range req.Items {
			results[i] = dombatch.NewError(i, fmt.Errorf("batch size exceeds %d: %w", s.maxBatchSize, domain.ErrValidation))
		}
		return results
	}

	failed := 0
	for i, raw := range req.Items {
		in, p, err := resource.DecodeInput(kind, raw)
		if err != nil {
			results[i] = dombatch.NewError(i, err)
			failed++
			continue
		}
		if in.Author == nil && req.Author != "" {
			author := req.Author
			in.Author = &author
		}

		c, err := s.creator.Create(ctx, caller, kind, bundle, in, p)
		if err != nil {
			results[i] = dombatch.NewError(i, err)
			failed++
			if cascades(ctx, err) {
				for j := i + 1; j < len(req.Items); j++ {
					results[j] = dombatch.NewError(j, err)
					failed++
				}
				break
			}
			continue
		}
		results[i] = dombatch.NewOK(i, c.UUID, c.Type.Label()+" created")
	}

	logger.FromContext(ctx).Info("Bulk create finished",
		zap.String("kind", string(kind)),
		zap.String("bundle", bundle),
		zap.Int("items", len(req.Items)),
		zap.Int("failed", failed),
	)
	return results
}

func cascades(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, domain.ErrUnauthenticated)
}
