package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/query"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
	"github.com/kailas-cloud/resdex/internal/logger"
)

// store is the consumer interface for resource rows (ISP).
type store interface {
	HReplace(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
	Search(ctx context.Context, q *db.SearchQuery) (*db.SearchResult, error)
	Count(ctx context.Context, q *db.SearchQuery) (int, error)
	Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetBucket, error)
}

const lookupLimit = 10

// Repo stores documents and terms as flat hashes carrying a stored blob.
type Repo struct {
	store  store
	prefix string
}

// New creates a resource repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Save writes the row for e, replacing every previous flat field.
func (r *Repo) Save(ctx context.Context, e stored.Entity) error {
	blob, err := stored.Encode(e)
	if err != nil {
		return err
	}
	if err := r.store.HReplace(ctx, r.rowKey(e.Kind, e.Bundle, e.UUID), flatten(e, blob)); err != nil {
		return fmt.Errorf("replace row %s: %w", e.UUID, err)
	}
	if err := r.store.Set(ctx, r.uuidKey(e.UUID), []byte(string(e.Kind)+":"+e.Bundle)); err != nil {
		return fmt.Errorf("set uuid %s: %w", e.UUID, err)
	}
	return nil
}

// Get loads the stored blob of a resource by UUID alone.
func (r *Repo) Get(ctx context.Context, uuid string) (stored.Entity, error) {
	loc, err := r.store.Get(ctx, r.uuidKey(uuid))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return stored.Entity{}, domain.ErrNotFound
		}
		return stored.Entity{}, fmt.Errorf("get uuid %s: %w", uuid, err)
	}
	kind, bundle, ok := strings.Cut(string(loc), ":")
	if !ok {
		return stored.Entity{}, fmt.Errorf("%w: malformed location for %s", domain.ErrFatalIO, uuid)
	}

	m, err := r.store.HGetAll(ctx, r.rowKey(domtype.Kind(kind), bundle, uuid))
	if err != nil {
		return stored.Entity{}, fmt.Errorf("hgetall row %s: %w", uuid, err)
	}
	if len(m) == 0 {
		return stored.Entity{}, domain.ErrNotFound
	}
	e, err := stored.Decode([]byte(m[stored.FieldStored]))
	if err != nil {
		return stored.Entity{}, fmt.Errorf("%w: %w", domain.ErrFatalIO, err)
	}
	return e, nil
}

// Delete removes the row and its UUID pointer.
func (r *Repo) Delete(ctx context.Context, kind domtype.Kind, bundle, uuid string) error {
	if err := r.store.Del(ctx, r.rowKey(kind, bundle, uuid), r.uuidKey(uuid)); err != nil {
		return fmt.Errorf("del row %s: %w", uuid, err)
	}
	return nil
}

// EnsureKindIndexes creates the document and term indexes when missing.
func (r *Repo) EnsureKindIndexes(ctx context.Context) error {
	for _, kind := range []domtype.Kind{domtype.KindDocument, domtype.KindTerm} {
		err := r.store.CreateIndex(ctx, KindIndex(r.prefix, kind))
		if err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create %s index: %w", kind.Plural(), err)
		}
	}
	return nil
}

// Reindex rebuilds the type index of t so it matches its current fields.
// Existing rows are picked up by the backend's background scan.
func (r *Repo) Reindex(ctx context.Context, t domtype.ResourceType) error {
	def, err := TypeIndex(r.prefix, t)
	if err != nil {
		return fmt.Errorf("build index %s: %w", t.IndexName(), err)
	}
	if err := r.DropTypeIndex(ctx, t); err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	logger.FromContext(ctx).Debug("Type index rebuilt", zap.Stringer("index", def))
	return nil
}

// DropTypeIndex removes the type index of t. A missing index is fine.
func (r *Repo) DropTypeIndex(ctx context.Context, t domtype.ResourceType) error {
	if err := r.store.DropIndex(ctx, t.IndexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", t.IndexName(), err)
	}
	return nil
}

// IndexFor picks the index a query over kind should run against. A single
// type with a live type index gets that index; otherwise the kind index.
func (r *Repo) IndexFor(ctx context.Context, kind domtype.Kind, t *domtype.ResourceType) (db.ResolvedIndex, error) {
	def := KindIndex(r.prefix, kind)
	if t != nil {
		exists, err := r.store.IndexExists(ctx, t.IndexName())
		if err != nil {
			return db.ResolvedIndex{}, fmt.Errorf("check index %s: %w", t.IndexName(), err)
		}
		if exists {
			if def, err = TypeIndex(r.prefix, *t); err != nil {
				return db.ResolvedIndex{}, fmt.Errorf("build index %s: %w", t.IndexName(), err)
			}
		}
	}

	schema := def.Schema()
	if !r.store.SupportsTextSearch(ctx) {
		for name, typ := range schema {
			if typ == db.IndexFieldText {
				delete(schema, name)
			}
		}
	}
	return db.ResolvedIndex{Name: def.Name, Schema: schema}, nil
}

// TextSearch reports whether the backend evaluates free-text queries.
func (r *Repo) TextSearch(ctx context.Context) bool {
	return r.store.SupportsTextSearch(ctx)
}

// Search runs q and decodes the stored blob of every row.
func (r *Repo) Search(ctx context.Context, q *db.SearchQuery) ([]stored.Entity, int, error) {
	q.Load = []string{stored.FieldStored}
	res, err := r.store.Search(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("search %s: %w", q.IndexName, err)
	}

	out := make([]stored.Entity, 0, len(res.Entries))
	for _, entry := range res.Entries {
		e, err := stored.Decode([]byte(entry.Fields[stored.FieldStored]))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: row %s: %w", domain.ErrFatalIO, entry.Key, err)
		}
		out = append(out, e)
	}
	return out, res.Total, nil
}

// Count returns the number of rows matching q.
func (r *Repo) Count(ctx context.Context, q *db.SearchQuery) (int, error) {
	n, err := r.store.Count(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.IndexName, err)
	}
	return n, nil
}

// Facet counts distinct values of one field.
func (r *Repo) Facet(ctx context.Context, q *db.FacetQuery) ([]db.FacetBucket, error) {
	b, err := r.store.Facet(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("facet %s on %s: %w", q.IndexName, q.Field, err)
	}
	return b, nil
}

// CountReferences counts documents and terms that point at uuid, either as
// parent or through a reference field.
func (r *Repo) CountReferences(ctx context.Context, uuid string) (int, error) {
	cond, err := query.NewCondition(stored.FieldRefs, query.OpEq, uuid)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, kind := range []domtype.Kind{domtype.KindDocument, domtype.KindTerm} {
		def := KindIndex(r.prefix, kind)
		n, err := r.Count(ctx, &db.SearchQuery{
			IndexName: def.Name,
			Filter:    query.NewGroup(query.And, []query.Condition{cond}),
			Schema:    def.Schema(),
		})
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// CountBundle counts resources of one type.
func (r *Repo) CountBundle(ctx context.Context, kind domtype.Kind, bundle string) (int, error) {
	cond, err := query.NewCondition(stored.FieldBundle, query.OpEq, bundle)
	if err != nil {
		return 0, err
	}
	def := KindIndex(r.prefix, kind)
	return r.Count(ctx, &db.SearchQuery{
		IndexName: def.Name,
		Filter:    query.NewGroup(query.And, []query.Condition{cond}),
		Schema:    def.Schema(),
	})
}

// FindByTitle returns resources of kind whose title equals title exactly,
// restricted to bundles when any are given and to rows matching scope.
// An empty scope matches every row.
func (r *Repo) FindByTitle(
	ctx context.Context, kind domtype.Kind, bundles []string, title string, scope query.Group, limit int,
) ([]stored.Entity, error) {
	conds := make([]query.Condition, 0, 2)
	c, err := query.NewCondition(stored.FieldTitleExact, query.OpEq, db.TagValue(title))
	if err != nil {
		return nil, err
	}
	conds = append(conds, c)
	if len(bundles) > 0 {
		c, err := query.NewCondition(stored.FieldBundle, query.OpIn, bundles...)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}

	def := KindIndex(r.prefix, kind)
	found, _, err := r.Search(ctx, &db.SearchQuery{
		IndexName: def.Name,
		Filter:    scoped(conds, scope),
		Schema:    def.Schema(),
		Sort:      []query.Sort{{Path: stored.FieldCreated, Direction: query.Asc}},
		Limit:     limit,
	})
	return found, err
}

// FindByProperty returns resources of t matching scope whose property
// equals value. Title, label and name all match the exact title.
func (r *Repo) FindByProperty(
	ctx context.Context, t domtype.ResourceType, property, value string, scope query.Group,
) ([]stored.Entity, error) {
	path := property
	switch property {
	case "title", "label", "name":
		path = stored.FieldTitleExact
	}

	idx, err := r.IndexFor(ctx, t.Kind(), &t)
	if err != nil {
		return nil, err
	}
	typ, ok := idx.Schema[path]
	if !ok || typ == db.IndexFieldText {
		return nil, fmt.Errorf("%w: cannot look up %s by %q", domain.ErrValidation, t.MachineName(), property)
	}
	if typ == db.IndexFieldTag {
		value = db.TagValue(value)
	}

	byValue, err := query.NewCondition(path, query.OpEq, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	byBundle, err := query.NewCondition(stored.FieldBundle, query.OpEq, t.MachineName())
	if err != nil {
		return nil, err
	}
	found, _, err := r.Search(ctx, &db.SearchQuery{
		IndexName: idx.Name,
		Filter:    scoped([]query.Condition{byValue, byBundle}, scope),
		Schema:    idx.Schema,
		Sort:      []query.Sort{{Path: stored.FieldCreated, Direction: query.Asc}},
		Limit:     lookupLimit,
	})
	return found, err
}

func scoped(conds []query.Condition, scope query.Group) query.Group {
	if scope.IsEmpty() {
		return query.NewGroup(query.And, conds)
	}
	return query.NewGroup(query.And, conds, scope)
}

// Key patterns:
//   {prefix}{documents|terms}:{bundle}:{uuid}  HASH row
//   {prefix}uuid:{uuid}                        "kind:bundle"

func (r *Repo) rowKey(kind domtype.Kind, bundle, uuid string) string {
	return fmt.Sprintf("%s%s:%s:%s", r.prefix, kind.Plural(), bundle, uuid)
}

func (r *Repo) uuidKey(uuid string) string {
	return r.prefix + "uuid:" + uuid
}
