// Package schema creates, changes and removes document types, vocabularies
// and their fields.
package schema

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/provider"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/logger"
)

// Service handles resource type and field definitions.
type Service struct {
	repo      Repository
	index     Indexer
	structure Structure
}

// New creates a schema service.
func New(repo Repository, index Indexer, structure Structure) *Service {
	return &Service{repo: repo, index: index, structure: structure}
}

// FieldParams describes a field to add.
type FieldParams struct {
	Name     string
	Type     field.Type
	Label    string
	Multiple bool
	Private  bool
	Target   field.Target
}

// CreateType registers a new document type or vocabulary owned by the caller.
// The machine name is namespaced with the caller's prefix.
func (s *Service) CreateType(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, p domtype.Params,
) (domtype.ResourceType, error) {
	if !caller.CanWrite() {
		return domtype.ResourceType{}, domain.ErrUnauthenticated
	}
	p.MachineName = caller.Provider.Namespaced(p.MachineName)

	t, err := domtype.New(kind, caller.UUID(), p)
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("validate %s: %w: %w", kind, domain.ErrValidation, err)
	}

	other, taken, err := s.structure.ByEndpoint(ctx, kind, t.Endpoint())
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("lookup endpoint: %w", err)
	}
	if taken {
		return domtype.ResourceType{}, fmt.Errorf("%w: endpoint %q is used by %s",
			domain.ErrConflict, t.Endpoint(), other.MachineName())
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return domtype.ResourceType{}, fmt.Errorf("create %s: %w", kind, err)
	}
	// The type exists from here on; a failed index build is repaired by
	// the next field change, which reindexes.
	s.structure.Invalidate(kind)
	if err := s.index.Reindex(ctx, t); err != nil {
		return domtype.ResourceType{}, fmt.Errorf("create index: %w", err)
	}

	logger.FromContext(ctx).Info("Resource type created",
		zap.String("kind", string(kind)),
		zap.String("machine_name", t.MachineName()),
		zap.String("endpoint", t.Endpoint()),
	)
	return t, nil
}

// GetType returns a type the caller may see.
func (s *Service) GetType(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName string,
) (domtype.ResourceType, error) {
	t, ok, err := s.structure.ByMachineName(ctx, kind, machineName)
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("get %s: %w", kind, err)
	}
	if !ok || !t.VisibleTo(caller.UUID()) {
		return domtype.ResourceType{}, fmt.Errorf("%w: %s %q", domain.ErrNotFound, kind, machineName)
	}
	return t, nil
}

// ListTypes returns every type of kind visible to the caller.
func (s *Service) ListTypes(ctx context.Context, caller provider.Caller, kind domtype.Kind) ([]domtype.ResourceType, error) {
	all, err := s.structure.Types(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s types: %w", kind, err)
	}
	out := make([]domtype.ResourceType, 0, len(all))
	for _, t := range all {
		if t.VisibleTo(caller.UUID()) {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateType changes label, description and flags. Owner only.
func (s *Service) UpdateType(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName string,
	label, description string, flags domtype.Flags,
) (domtype.ResourceType, error) {
	t, err := s.owned(ctx, caller, kind, machineName)
	if err != nil {
		return domtype.ResourceType{}, err
	}
	t, err = t.WithDetails(label, description, flags)
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("validate %s: %w: %w", kind, domain.ErrValidation, err)
	}
	if err := s.repo.Save(ctx, t); err != nil {
		return domtype.ResourceType{}, fmt.Errorf("save %s: %w", kind, err)
	}
	s.structure.Invalidate(kind)
	return t, nil
}

// DeleteType removes a type that holds no content. Owner only.
func (s *Service) DeleteType(ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName string) error {
	t, err := s.owned(ctx, caller, kind, machineName)
	if err != nil {
		return err
	}
	n, err := s.index.CountBundle(ctx, kind, machineName)
	if err != nil {
		return fmt.Errorf("count content: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s %q still has %d items", domain.ErrConflict, kind, machineName, n)
	}
	if err := s.repo.Delete(ctx, kind, machineName); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	s.structure.Invalidate(kind)
	if err := s.index.DropTypeIndex(ctx, t); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}

	logger.FromContext(ctx).Info("Resource type deleted",
		zap.String("kind", string(kind)),
		zap.String("machine_name", machineName),
	)
	return nil
}

// CreateField adds a field owned by the caller. The caller must own the
// type or the type must allow foreign fields.
func (s *Service) CreateField(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName string, p FieldParams,
) (field.Definition, error) {
	if !caller.CanWrite() {
		return field.Definition{}, domain.ErrUnauthenticated
	}
	t, err := s.writableType(ctx, caller, kind, machineName)
	if err != nil {
		return field.Definition{}, err
	}
	if !t.FieldsWritableBy(caller.UUID()) {
		return field.Definition{}, fmt.Errorf("%w: fields of %q", domain.ErrAccessDenied, machineName)
	}

	def, err := field.New(p.Name, p.Type, field.Options{
		Label:    p.Label,
		Multiple: p.Multiple,
		Private:  p.Private,
		Owner:    caller.UUID(),
		Target:   p.Target,
	})
	if err != nil {
		return field.Definition{}, fmt.Errorf("validate field: %w: %w", domain.ErrValidation, err)
	}
	if def.FieldType().IsReference() {
		if err := s.checkTarget(ctx, def.Target()); err != nil {
			return field.Definition{}, err
		}
	}

	t, err = t.WithField(def)
	if err != nil {
		return field.Definition{}, fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	if err := s.commit(ctx, t); err != nil {
		return field.Definition{}, err
	}

	logger.FromContext(ctx).Info("Field created",
		zap.String("kind", string(kind)),
		zap.String("machine_name", machineName),
		zap.String("field", def.Name()),
		zap.String("type", string(def.FieldType())),
	)
	return def, nil
}

// UpdateField changes label and private flag of a field. Allowed for the
// field owner and the type owner.
func (s *Service) UpdateField(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName, name string,
	label string, private bool,
) (field.Definition, error) {
	t, def, err := s.ownedField(ctx, caller, kind, machineName, name)
	if err != nil {
		return field.Definition{}, err
	}
	def = def.WithChanges(label, private)
	t, err = t.ReplaceField(def)
	if err != nil {
		return field.Definition{}, fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	if err := s.commit(ctx, t); err != nil {
		return field.Definition{}, err
	}
	return def, nil
}

// DeleteField removes a field. Allowed for the field owner and the type owner.
// Stored values stay in the blobs and are dropped on the next save.
func (s *Service) DeleteField(ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName, name string) error {
	t, _, err := s.ownedField(ctx, caller, kind, machineName, name)
	if err != nil {
		return err
	}
	t, err = t.WithoutField(name)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	if err := s.commit(ctx, t); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("Field deleted",
		zap.String("kind", string(kind)),
		zap.String("machine_name", machineName),
		zap.String("field", name),
	)
	return nil
}

func (s *Service) commit(ctx context.Context, t domtype.ResourceType) error {
	if err := s.repo.Save(ctx, t); err != nil {
		return fmt.Errorf("save %s: %w", t.Kind(), err)
	}
	s.structure.Invalidate(t.Kind())
	if err := s.index.Reindex(ctx, t); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return nil
}

func (s *Service) checkTarget(ctx context.Context, target field.Target) error {
	kind := domtype.Kind(target.Kind)
	if !kind.IsValid() {
		return fmt.Errorf("%w: invalid target kind %q", domain.ErrValidation, target.Kind)
	}
	_, ok, err := s.structure.ByMachineName(ctx, kind, target.Bundle)
	if err != nil {
		return fmt.Errorf("lookup target: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: target %s %q does not exist", domain.ErrValidation, kind, target.Bundle)
	}
	return nil
}

// writableType loads the stored definition so concurrent field changes
// build on the latest revision rather than the cached one.
func (s *Service) writableType(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName string,
) (domtype.ResourceType, error) {
	t, err := s.repo.Get(ctx, kind, machineName)
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("get %s: %w", kind, err)
	}
	if !t.VisibleTo(caller.UUID()) {
		return domtype.ResourceType{}, fmt.Errorf("%w: %s %q", domain.ErrNotFound, kind, machineName)
	}
	return t, nil
}

func (s *Service) owned(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName string,
) (domtype.ResourceType, error) {
	if !caller.CanWrite() {
		return domtype.ResourceType{}, domain.ErrUnauthenticated
	}
	t, err := s.writableType(ctx, caller, kind, machineName)
	if err != nil {
		return domtype.ResourceType{}, err
	}
	if !t.OwnedBy(caller.UUID()) {
		return domtype.ResourceType{}, fmt.Errorf("%w: %s %q is owned by another provider",
			domain.ErrAccessDenied, kind, machineName)
	}
	return t, nil
}

func (s *Service) ownedField(
	ctx context.Context, caller provider.Caller, kind domtype.Kind, machineName, name string,
) (domtype.ResourceType, field.Definition, error) {
	if !caller.CanWrite() {
		return domtype.ResourceType{}, field.Definition{}, domain.ErrUnauthenticated
	}
	t, err := s.writableType(ctx, caller, kind, machineName)
	if err != nil {
		return domtype.ResourceType{}, field.Definition{}, err
	}
	def, ok := t.FieldByName(name)
	if !ok {
		return domtype.ResourceType{}, field.Definition{}, fmt.Errorf("%w: field %q", domain.ErrNotFound, name)
	}
	if def.Owner() != caller.UUID() && !t.OwnedBy(caller.UUID()) {
		return domtype.ResourceType{}, field.Definition{}, fmt.Errorf("%w: field %q", domain.ErrAccessDenied, name)
	}
	return t, def, nil
}
