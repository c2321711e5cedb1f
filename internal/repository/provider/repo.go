package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
)

const (
	capReadWrite = "rw"
	capReadOnly  = "ro"
)

// store is the consumer interface for providers (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Repo stores providers and their API key lookups.
type Repo struct {
	store  store
	prefix string
}

// New creates a provider repository. prefix namespaces every key ("resdex:").
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Create stores p and claims both of its keys. A key already bound to
// another provider is a conflict.
func (r *Repo) Create(ctx context.Context, p domprov.Provider) error {
	claimed := make([]string, 0, 2)
	claim := func(key, capability string) error {
		ok, err := r.store.SetNX(ctx, r.apiKeyKey(key), []byte(p.UUID()+"|"+capability))
		if err != nil {
			return fmt.Errorf("claim api key: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: api key already in use", domain.ErrConflict)
		}
		claimed = append(claimed, r.apiKeyKey(key))
		return nil
	}

	err := claim(p.APIKey(), capReadWrite)
	if err == nil && p.ReadOnlyKey() != "" {
		err = claim(p.ReadOnlyKey(), capReadOnly)
	}
	if err == nil {
		err = r.store.HSet(ctx, r.providerKey(p.UUID()), providerToHash(p))
		if err != nil {
			err = fmt.Errorf("hset provider %s: %w", p.UUID(), err)
		}
	}
	if err != nil && len(claimed) > 0 {
		return errors.Join(err, r.store.Del(ctx, claimed...))
	}
	return err
}

// Get loads a provider by uuid.
func (r *Repo) Get(ctx context.Context, uuid string) (domprov.Provider, error) {
	m, err := r.store.HGetAll(ctx, r.providerKey(uuid))
	if err != nil {
		return domprov.Provider{}, fmt.Errorf("hgetall provider %s: %w", uuid, err)
	}
	if len(m) == 0 {
		return domprov.Provider{}, domain.ErrNotFound
	}
	return providerFromHash(m), nil
}

// ByAPIKey resolves a key to its provider and capability.
func (r *Repo) ByAPIKey(ctx context.Context, key string) (domprov.Caller, error) {
	if key == "" {
		return domprov.Caller{}, domain.ErrNotFound
	}
	raw, err := r.store.Get(ctx, r.apiKeyKey(key))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domprov.Caller{}, domain.ErrNotFound
		}
		return domprov.Caller{}, fmt.Errorf("lookup api key: %w", err)
	}
	uuid, capability, ok := strings.Cut(string(raw), "|")
	if !ok {
		return domprov.Caller{}, fmt.Errorf("malformed api key record")
	}
	p, err := r.Get(ctx, uuid)
	if err != nil {
		return domprov.Caller{}, err
	}
	return domprov.Caller{Provider: &p, ReadOnly: capability != capReadWrite}, nil
}

// List returns all providers ordered by creation.
func (r *Repo) List(ctx context.Context) ([]domprov.Provider, error) {
	keys, err := r.store.Scan(ctx, r.providerKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan providers: %w", err)
	}
	if len(keys) == 0 {
		return []domprov.Provider{}, nil
	}
	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi providers: %w", err)
	}
	out := make([]domprov.Provider, 0, len(rows))
	for _, m := range rows {
		if len(m) == 0 {
			continue
		}
		out = append(out, providerFromHash(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt() < out[j].CreatedAt() })
	return out, nil
}

// Delete removes a provider and its key lookups.
func (r *Repo) Delete(ctx context.Context, uuid string) error {
	p, err := r.Get(ctx, uuid)
	if err != nil {
		return err
	}
	keys := []string{r.providerKey(uuid), r.apiKeyKey(p.APIKey())}
	if p.ReadOnlyKey() != "" {
		keys = append(keys, r.apiKeyKey(p.ReadOnlyKey()))
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del provider %s: %w", uuid, err)
	}
	return nil
}

// Key patterns: {prefix}provider:{uuid}, {prefix}apikey:{key}

func (r *Repo) providerKey(uuid string) string { return r.prefix + "provider:" + uuid }

func (r *Repo) apiKeyKey(key string) string { return r.prefix + "apikey:" + key }

func providerToHash(p domprov.Provider) map[string]string {
	prm := p.Params()
	return map[string]string{
		"uuid":          prm.UUID,
		"name":          prm.Name,
		"prefix":        prm.Prefix,
		"api_key":       prm.APIKey,
		"read_only_key": prm.ReadOnlyKey,
		"shared_secret": prm.SharedSecret,
		"drop_folder":   prm.DropFolder,
		"created_at":    strconv.FormatInt(p.CreatedAt(), 10),
	}
}

func providerFromHash(m map[string]string) domprov.Provider {
	created, _ := strconv.ParseInt(m["created_at"], 10, 64)
	return domprov.Reconstruct(domprov.Params{
		UUID:         m["uuid"],
		Name:         m["name"],
		Prefix:       m["prefix"],
		APIKey:       m["api_key"],
		ReadOnlyKey:  m["read_only_key"],
		SharedSecret: m["shared_secret"],
		DropFolder:   m["drop_folder"],
	}, created)
}
