// Package access decides whether a provider may read or write a field.
package access

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kailas-cloud/resdex/internal/cache"
	"github.com/kailas-cloud/resdex/internal/domain"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
)

// Structural properties every caller may use regardless of field policy.
var structural = mapset.NewThreadUnsafeSet(
	"uuid", "langcode", "status", "name", "label", "title", "description",
	"default_langcode", "revision_default", "revision_log", "new_revision", "draft",
	"author", "published", "private", "files", "parent", "created", "changed",
	"provider_uuid", "bundle",
)

// IsStructural reports whether name is a structural property.
func IsStructural(name string) bool { return structural.Contains(name) }

// Policy evaluates field access and memoizes the outcome.
type Policy struct {
	types TypeLookup
	memo  Memo
}

// New creates a field access policy.
func New(types TypeLookup, memo Memo) *Policy {
	return &Policy{types: types, memo: memo}
}

// Readable reports whether provider may see values of def.
// Owners always may; everybody may use fields that are not private.
func Readable(def field.Definition, provider string) bool {
	if provider != "" && def.Owner() == provider {
		return true
	}
	return !def.Private()
}

// CanUse reports whether provider may use fieldName on the bundle of kind.
// A field the type does not define yields ErrUnknownField.
func (p *Policy) CanUse(ctx context.Context, fieldName, bundle string, kind domtype.Kind, provider string) (bool, error) {
	if IsStructural(fieldName) {
		return true, nil
	}

	key := cache.AccessKey{Kind: kind, Bundle: bundle, Field: fieldName, Provider: provider}
	if allowed, ok := p.memo.FieldAccess(key); ok {
		return allowed, nil
	}

	t, ok, err := p.types.ByMachineName(ctx, kind, bundle)
	if err != nil {
		return false, fmt.Errorf("load type %s: %w", bundle, err)
	}
	if !ok {
		return false, fmt.Errorf("%w: %s %q", domain.ErrNotFound, kind, bundle)
	}
	def, ok := t.FieldByName(fieldName)
	if !ok {
		return false, fmt.Errorf("%w: %q on %s", domain.ErrUnknownField, fieldName, bundle)
	}

	allowed := Readable(def, provider)
	p.memo.StoreFieldAccess(key, allowed)
	return allowed, nil
}

// Require is CanUse that turns a denial into ErrAccessDenied.
func (p *Policy) Require(ctx context.Context, fieldName, bundle string, kind domtype.Kind, provider string) error {
	ok, err := p.CanUse(ctx, fieldName, bundle, kind, provider)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: field %q", domain.ErrAccessDenied, fieldName)
	}
	return nil
}

// ReadableFields returns the fields of t that provider may read.
func ReadableFields(t domtype.ResourceType, provider string) []field.Definition {
	out := make([]field.Definition, 0, len(t.Fields()))
	for _, f := range t.Fields() {
		if Readable(f, provider) {
			out = append(out, f)
		}
	}
	return out
}
