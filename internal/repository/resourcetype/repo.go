package resourcetype

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/resdex/internal/domain"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// store is the consumer interface for resource types (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo stores document types and vocabularies.
type Repo struct {
	store  store
	prefix string
}

// New creates a resource type repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Create stores a new type. An existing machine name is a conflict.
func (r *Repo) Create(ctx context.Context, t domtype.ResourceType) error {
	key := r.typeKey(t.Kind(), t.MachineName())
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s %q already exists", domain.ErrConflict, t.Kind(), t.MachineName())
	}
	return r.Save(ctx, t)
}

// Save writes t, replacing any stored version.
func (r *Repo) Save(ctx context.Context, t domtype.ResourceType) error {
	data, err := typeToHash(t)
	if err != nil {
		return err
	}
	if err := r.store.HSet(ctx, r.typeKey(t.Kind(), t.MachineName()), data); err != nil {
		return fmt.Errorf("hset type %s: %w", t.MachineName(), err)
	}
	return nil
}

// Get loads one type.
func (r *Repo) Get(ctx context.Context, kind domtype.Kind, machineName string) (domtype.ResourceType, error) {
	m, err := r.store.HGetAll(ctx, r.typeKey(kind, machineName))
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("hgetall type %s: %w", machineName, err)
	}
	if len(m) == 0 {
		return domtype.ResourceType{}, domain.ErrNotFound
	}
	return typeFromHash(m)
}

// List returns all types of kind sorted by creation time.
func (r *Repo) List(ctx context.Context, kind domtype.Kind) ([]domtype.ResourceType, error) {
	keys, err := r.store.Scan(ctx, r.typeKey(kind, "*"))
	if err != nil {
		return nil, fmt.Errorf("scan types: %w", err)
	}
	if len(keys) == 0 {
		return []domtype.ResourceType{}, nil
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi types: %w", err)
	}

	types := make([]domtype.ResourceType, 0, len(rows))
	for i, m := range rows {
		if len(m) == 0 {
			continue
		}
		t, err := typeFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse type %s: %w", keys[i], err)
		}
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool {
		if types[i].CreatedAt() != types[j].CreatedAt() {
			return types[i].CreatedAt() < types[j].CreatedAt()
		}
		return types[i].MachineName() < types[j].MachineName()
	})
	return types, nil
}

// Delete removes a type definition. Content is not touched.
func (r *Repo) Delete(ctx context.Context, kind domtype.Kind, machineName string) error {
	key := r.typeKey(kind, machineName)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del type %s: %w", machineName, err)
	}
	return nil
}

// Key pattern: {prefix}type:{kind}:{machine}

func (r *Repo) typeKey(kind domtype.Kind, machineName string) string {
	return fmt.Sprintf("%stype:%s:%s", r.prefix, kind, machineName)
}
