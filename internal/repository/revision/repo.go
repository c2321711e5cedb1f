package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/kailas-cloud/resdex/internal/domain"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// store is the consumer interface for revision history (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Repo keeps every revision of a resource in one hash keyed by revision id.
type Repo struct {
	store  store
	prefix string
}

// New creates a revision repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// NextID allocates a revision id, monotonically increasing per resource.
func (r *Repo) NextID(ctx context.Context, kind domtype.Kind, uuid string) (int64, error) {
	id, err := r.store.Incr(ctx, r.seqKey(kind, uuid))
	if err != nil {
		return 0, fmt.Errorf("incr revision seq %s: %w", uuid, err)
	}
	return id, nil
}

// Save writes revisions of one resource in a single call.
func (r *Repo) Save(ctx context.Context, revs ...domres.Revision) error {
	if len(revs) == 0 {
		return nil
	}
	fields := make(map[string]string, len(revs))
	for _, rev := range revs {
		if rev.ResourceUUID != revs[0].ResourceUUID {
			return fmt.Errorf("revisions of different resources in one save")
		}
		b, err := json.Marshal(rev)
		if err != nil {
			return fmt.Errorf("marshal revision %d: %w", rev.ID, err)
		}
		fields[strconv.FormatInt(rev.ID, 10)] = string(b)
	}
	key := r.historyKey(revs[0].Kind, revs[0].ResourceUUID)
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("hset revisions %s: %w", revs[0].ResourceUUID, err)
	}
	return nil
}

// List returns the full history, newest first.
func (r *Repo) List(ctx context.Context, kind domtype.Kind, uuid string) ([]domres.Revision, error) {
	m, err := r.store.HGetAll(ctx, r.historyKey(kind, uuid))
	if err != nil {
		return nil, fmt.Errorf("hgetall revisions %s: %w", uuid, err)
	}
	revs := make([]domres.Revision, 0, len(m))
	for id, raw := range m {
		var rev domres.Revision
		if err := json.Unmarshal([]byte(raw), &rev); err != nil {
			return nil, fmt.Errorf("%w: revision %s of %s: %w", domain.ErrFatalIO, id, uuid, err)
		}
		revs = append(revs, rev)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].ID > revs[j].ID })
	return revs, nil
}

// Get loads one revision.
func (r *Repo) Get(ctx context.Context, kind domtype.Kind, uuid string, id int64) (domres.Revision, error) {
	revs, err := r.List(ctx, kind, uuid)
	if err != nil {
		return domres.Revision{}, err
	}
	for _, rev := range revs {
		if rev.ID == id {
			return rev, nil
		}
	}
	return domres.Revision{}, fmt.Errorf("%w: revision %d of %s", domain.ErrNotFound, id, uuid)
}

// DeleteAll drops the history and the id sequence.
func (r *Repo) DeleteAll(ctx context.Context, kind domtype.Kind, uuid string) error {
	if err := r.store.Del(ctx, r.historyKey(kind, uuid), r.seqKey(kind, uuid)); err != nil {
		return fmt.Errorf("del revisions %s: %w", uuid, err)
	}
	return nil
}

// Key patterns:
//   {prefix}revisions:{kind}:{uuid}  HASH id -> JSON
//   {prefix}revseq:{kind}:{uuid}     counter

func (r *Repo) historyKey(kind domtype.Kind, uuid string) string {
	return fmt.Sprintf("%srevisions:%s:%s", r.prefix, kind, uuid)
}

func (r *Repo) seqKey(kind domtype.Kind, uuid string) string {
	return fmt.Sprintf("%srevseq:%s:%s", r.prefix, kind, uuid)
}
