// Package cache holds the process-wide lookup tables derived from resource
// type definitions: endpoint to type, provider to accessible types, and the
// field access memo. Every structural write invalidates the affected kind;
// all tables can be rebuilt from the repository at any time.
package cache

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// Loader reads every resource type of a kind from the source of truth.
type Loader func(ctx context.Context, kind resourcetype.Kind) ([]resourcetype.ResourceType, error)

// AccessKey identifies one memoized field access decision.
type AccessKey struct {
	Kind     resourcetype.Kind
	Bundle   string
	Field    string
	Provider string
}

type catalog struct {
	types      []resourcetype.ResourceType
	byMachine  map[string]resourcetype.ResourceType
	byEndpoint map[string]string
	visible    map[string]mapset.Set[string]
}

// Structure is safe for concurrent use.
type Structure struct {
	load Loader

	mu       sync.RWMutex
	catalogs map[resourcetype.Kind]*catalog
	access   map[AccessKey]bool
}

// New creates an empty cache backed by load.
func New(load Loader) *Structure {
	return &Structure{
		load:     load,
		catalogs: make(map[resourcetype.Kind]*catalog),
		access:   make(map[AccessKey]bool),
	}
}

func (s *Structure) catalog(ctx context.Context, kind resourcetype.Kind) (*catalog, error) {
	s.mu.RLock()
	c, ok := s.catalogs[kind]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	types, err := s.load(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s types: %w", kind, err)
	}
	c = &catalog{
		types:      types,
		byMachine:  make(map[string]resourcetype.ResourceType, len(types)),
		byEndpoint: make(map[string]string, len(types)),
		visible:    make(map[string]mapset.Set[string]),
	}
	for _, t := range types {
		c.byMachine[t.MachineName()] = t
		c.byEndpoint[t.Endpoint()] = t.MachineName()
	}

	s.mu.Lock()
	// a concurrent load may have won; either result is equivalent
	if existing, ok := s.catalogs[kind]; ok {
		c = existing
	} else {
		s.catalogs[kind] = c
	}
	s.mu.Unlock()
	return c, nil
}

// Types returns all types of kind.
func (s *Structure) Types(ctx context.Context, kind resourcetype.Kind) ([]resourcetype.ResourceType, error) {
	c, err := s.catalog(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]resourcetype.ResourceType, len(c.types))
	copy(out, c.types)
	return out, nil
}

// ByMachineName looks a type up by its machine name.
func (s *Structure) ByMachineName(
	ctx context.Context, kind resourcetype.Kind, name string,
) (resourcetype.ResourceType, bool, error) {
	c, err := s.catalog(ctx, kind)
	if err != nil {
		return resourcetype.ResourceType{}, false, err
	}
	t, ok := c.byMachine[name]
	return t, ok, nil
}

// ByEndpoint looks a type up by its endpoint path.
func (s *Structure) ByEndpoint(
	ctx context.Context, kind resourcetype.Kind, endpoint string,
) (resourcetype.ResourceType, bool, error) {
	c, err := s.catalog(ctx, kind)
	if err != nil {
		return resourcetype.ResourceType{}, false, err
	}
	name, ok := c.byEndpoint[endpoint]
	if !ok {
		return resourcetype.ResourceType{}, false, nil
	}
	return c.byMachine[name], true, nil
}

// Accessible returns the machine names of kind visible to provider
// ("" for anonymous callers). The returned set must not be modified.
func (s *Structure) Accessible(
	ctx context.Context, kind resourcetype.Kind, provider string,
) (mapset.Set[string], error) {
	c, err := s.catalog(ctx, kind)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	set, ok := c.visible[provider]
	s.mu.RUnlock()
	if ok {
		return set, nil
	}

	set = mapset.NewSet[string]()
	for _, t := range c.types {
		if t.VisibleTo(provider) {
			set.Add(t.MachineName())
		}
	}
	s.mu.Lock()
	c.visible[provider] = set
	s.mu.Unlock()
	return set, nil
}

// FieldAccess returns a memoized decision.
func (s *Structure) FieldAccess(key AccessKey) (allowed, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed, ok = s.access[key]
	return allowed, ok
}

// StoreFieldAccess memoizes a decision.
func (s *Structure) StoreFieldAccess(key AccessKey, allowed bool) {
	s.mu.Lock()
	s.access[key] = allowed
	s.mu.Unlock()
}

// Invalidate drops every table derived from types of kind.
func (s *Structure) Invalidate(kind resourcetype.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.catalogs, kind)
	for k := range s.access {
		if k.Kind == kind {
			delete(s.access, k)
		}
	}
}

// InvalidateAll drops everything.
func (s *Structure) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs = make(map[resourcetype.Kind]*catalog)
	s.access = make(map[AccessKey]bool)
}
