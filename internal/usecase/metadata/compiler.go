// Package metadata compiles inbound metadata payloads into typed field values.
//
// A payload is an ordered list of single-key objects. Keys name fields of
// the target type; a key with a "_label" suffix on a reference field carries
// human labels that are resolved (or created) in the target vocabulary.
// Reference values may be plain uuids, {"uuid": ...} objects, or actions:
//
//	{"_action": "lookup", "_property": "title", "_value": "Red"}
//	{"_action": "create", "_reference": "term", "_data": {"label": "Red"}}
//
// When the same field appears more than once, multi-valued fields collect
// every value in first-seen order and single-valued fields keep the last.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
)

// DefaultMaxDepth bounds nested resource creation.
const DefaultMaxDepth = 5

const labelSuffix = "_label"

// Request is one compilation.
type Request struct {
	Entries []Entry
	Kind    domtype.Kind
	Bundle  string
	Caller  provider.Caller
	Author  string
	// Depth is the nesting level of the resource being compiled; top level is 0.
	Depth int
}

// Compiler turns metadata entries into resource values.
type Compiler struct {
	types    TypeLookup
	access   FieldAuthorizer
	finder   Finder
	creator  Creator
	maxDepth int
}

// New creates a metadata compiler.
func New(types TypeLookup, access FieldAuthorizer, finder Finder) *Compiler {
	return &Compiler{types: types, access: access, finder: finder, maxDepth: DefaultMaxDepth}
}

// WithCreator sets the collaborator used for nested creation.
func (c *Compiler) WithCreator(cr Creator) *Compiler {
	c.creator = cr
	return c
}

// WithMaxDepth configures the nesting limit.
func (c *Compiler) WithMaxDepth(n int) *Compiler {
	if n > 0 {
		c.maxDepth = n
	}
	return c
}

// Compile validates and converts req.Entries. A JSON null clears a field
// (nil items in the result).
func (c *Compiler) Compile(ctx context.Context, req Request) (resource.Values, error) {
	t, err := c.typeOf(ctx, req.Kind, req.Bundle)
	if err != nil {
		return nil, err
	}

	out := make(resource.Values)
	for _, e := range req.Entries {
		name, byLabel := e.Key, false
		if base, ok := strings.CutSuffix(e.Key, labelSuffix); ok {
			if def, ok := t.FieldByName(base); ok && def.FieldType().IsReference() {
				name, byLabel = base, true
			}
		}

		def, ok := t.FieldByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q on %s", domain.ErrUnknownField, e.Key, t.MachineName())
		}
		if err := c.access.Require(ctx, name, t.MachineName(), t.Kind(), req.Caller.UUID()); err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}

		v, err := decodeValue(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w: %w", e.Key, domain.ErrValidation, err)
		}
		if v == nil {
			out[name] = nil
			continue
		}

		items, err := c.items(ctx, req, def, v, byLabel)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		if len(items) == 0 {
			continue
		}
		if prev, ok := out[name]; ok && prev != nil && def.Multiple() {
			out[name] = append(prev, items...)
		} else {
			out[name] = items
		}
	}
	return out, nil
}

func (c *Compiler) typeOf(ctx context.Context, kind domtype.Kind, bundle string) (domtype.ResourceType, error) {
	t, ok, err := c.types.ByMachineName(ctx, kind, bundle)
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("load type %s: %w", bundle, err)
	}
	if !ok {
		return domtype.ResourceType{}, fmt.Errorf("%w: %s %q", domain.ErrNotFound, kind, bundle)
	}
	return t, nil
}

func (c *Compiler) items(
	ctx context.Context, req Request, def field.Definition, v any, byLabel bool,
) ([]resource.Item, error) {
	vals := []any{v}
	if list, ok := v.([]any); ok {
		vals = list
	}
	if len(vals) > 1 && !def.Multiple() {
		return nil, fmt.Errorf("%w: field takes a single value", domain.ErrValidation)
	}

	if !def.FieldType().IsReference() {
		out := make([]resource.Item, 0, len(vals))
		for _, val := range vals {
			item, err := scalarItem(def.FieldType(), val)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
			}
			out = append(out, item)
		}
		return out, nil
	}

	target, err := c.typeOf(ctx, domtype.Kind(def.Target().Kind), def.Target().Bundle)
	if err != nil {
		return nil, fmt.Errorf("reference target: %w", err)
	}
	out := make([]resource.Item, 0, len(vals))
	for _, val := range vals {
		var (
			item resource.Item
			keep bool
			err  error
		)
		if byLabel {
			item, err = c.byLabel(ctx, req, target, val)
			keep = err == nil
		} else {
			item, keep, err = c.reference(ctx, req, target, val)
		}
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, item)
		}
	}
	return out, nil
}

// reference resolves one reference value. keep is false for a lookup that
// found nothing.
func (c *Compiler) reference(
	ctx context.Context, req Request, target domtype.ResourceType, val any,
) (item resource.Item, keep bool, err error) {
	switch x := val.(type) {
	case string:
		item, err = c.byUUID(ctx, target, x)
		return item, err == nil, err
	case map[string]any:
		action, _ := x["_action"].(string)
		switch action {
		case "lookup":
			return c.lookup(ctx, req, target, x)
		case "create":
			item, err = c.create(ctx, req, target, x)
			return item, err == nil, err
		case "":
			if id, ok := x["uuid"].(string); ok {
				item, err = c.byUUID(ctx, target, id)
				return item, err == nil, err
			}
		}
		return resource.Item{}, false, fmt.Errorf("%w: unknown reference action %q", domain.ErrValidation, action)
	}
	return resource.Item{}, false, fmt.Errorf("%w: reference must be a uuid or an action object", domain.ErrValidation)
}

func (c *Compiler) byUUID(ctx context.Context, target domtype.ResourceType, id string) (resource.Item, error) {
	if err := uuid.Validate(id); err != nil {
		return resource.Item{}, fmt.Errorf("%w: %q is not a uuid", domain.ErrValidation, id)
	}
	e, err := c.finder.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return resource.Item{}, fmt.Errorf("%w: referenced %s %s does not exist", domain.ErrValidation, target.Kind(), id)
	}
	if err != nil {
		return resource.Item{}, fmt.Errorf("load reference %s: %w", id, err)
	}
	if e.Kind != target.Kind() || e.Bundle != target.MachineName() {
		return resource.Item{}, fmt.Errorf("%w: %s is not a %s", domain.ErrValidation, id, target.MachineName())
	}
	return resource.Item{TargetUUID: e.UUID, Label: e.Title}, nil
}

func (c *Compiler) lookup(
	ctx context.Context, req Request, target domtype.ResourceType, x map[string]any,
) (resource.Item, bool, error) {
	property, _ := x["_property"].(string)
	if property == "" {
		property = "title"
	}
	value, err := toString(x["_value"])
	if err != nil {
		return resource.Item{}, false, fmt.Errorf("%w: lookup value: %w", domain.ErrValidation, err)
	}
	found, err := c.finder.FindByProperty(ctx, target, property, value, stored.Visibility(req.Caller))
	if err != nil {
		return resource.Item{}, false, fmt.Errorf("lookup %s=%q: %w", property, value, err)
	}
	if len(found) == 0 {
		return resource.Item{}, false, nil
	}
	return resource.Item{TargetUUID: found[0].UUID, Label: found[0].Title}, true, nil
}

var referenceKinds = map[string]domtype.Kind{
	"node":     domtype.KindDocument,
	"document": domtype.KindDocument,
	"term":     domtype.KindTerm,
}

func (c *Compiler) create(
	ctx context.Context, req Request, target domtype.ResourceType, x map[string]any,
) (resource.Item, error) {
	ref, _ := x["_reference"].(string)
	kind, ok := referenceKinds[ref]
	if !ok {
		return resource.Item{}, fmt.Errorf("%w: unknown _reference %q", domain.ErrValidation, ref)
	}
	if kind != target.Kind() {
		return resource.Item{}, fmt.Errorf("%w: field targets %s, not %s", domain.ErrValidation, target.Kind(), kind)
	}
	data, ok := x["_data"].(map[string]any)
	if !ok {
		return resource.Item{}, fmt.Errorf("%w: create action needs a _data object", domain.ErrValidation)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return resource.Item{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return c.createChild(ctx, req, target, "", raw)
}

// byLabel resolves a human label to a resource of the target type,
// creating a minimal one when the caller may write there.
func (c *Compiler) byLabel(
	ctx context.Context, req Request, target domtype.ResourceType, val any,
) (resource.Item, error) {
	label, err := toString(val)
	if err != nil || strings.TrimSpace(label) == "" {
		return resource.Item{}, fmt.Errorf("%w: labels must be non-empty strings", domain.ErrValidation)
	}
	found, err := c.finder.FindByTitle(
		ctx, target.Kind(), []string{target.MachineName()}, label, stored.Visibility(req.Caller), 1,
	)
	if err != nil {
		return resource.Item{}, fmt.Errorf("resolve label %q: %w", label, err)
	}
	if len(found) > 0 {
		return resource.Item{TargetUUID: found[0].UUID, Label: found[0].Title}, nil
	}
	if !target.ContentWritableBy(req.Caller.UUID()) {
		return resource.Item{}, fmt.Errorf("%w: cannot create %q in %s", domain.ErrAccessDenied, label, target.MachineName())
	}
	return c.createChild(ctx, req, target, label, nil)
}

func (c *Compiler) createChild(
	ctx context.Context, req Request, target domtype.ResourceType, title string, data json.RawMessage,
) (resource.Item, error) {
	if req.Depth+1 > c.maxDepth {
		return resource.Item{}, fmt.Errorf("%w: nested creation deeper than %d", domain.ErrValidation, c.maxDepth)
	}
	if c.creator == nil {
		return resource.Item{}, fmt.Errorf("%w: nested creation", domain.ErrUnsupported)
	}
	id, got, err := c.creator.CreateChild(ctx, ChildRequest{
		Caller: req.Caller,
		Kind:   target.Kind(),
		Bundle: target.MachineName(),
		Author: req.Author,
		Title:  title,
		Data:   data,
		Depth:  req.Depth + 1,
	})
	if err != nil {
		return resource.Item{}, fmt.Errorf("create %s: %w", target.MachineName(), err)
	}
	return resource.Item{TargetUUID: id, Label: got}, nil
}
