// Package revision decides when resource changes produce revisions and
// which revision is the visible (default) one.
package revision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/resdex/internal/domain"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// MaxListed caps revision listings.
const MaxListed = 50

// Last selects the newest revision.
const Last = "last"

// Default log messages.
const (
	LogCreated = "Created"
	LogUpdated = "Updated"
)

// Params are the revision controls a write request may carry.
type Params struct {
	NewRevision bool
	Draft       bool
	Log         string
}

// Service handles the revision state machine.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New creates a revision service.
func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Initial records the first revision of a new resource and makes it default.
func (s *Service) Initial(ctx context.Context, r *domres.Resource, provider, log string) (domres.Revision, error) {
	if log == "" {
		log = LogCreated
	}
	id, err := s.repo.NextID(ctx, r.Kind(), r.UUID())
	if err != nil {
		return domres.Revision{}, fmt.Errorf("allocate revision: %w", err)
	}
	now := s.now().Unix()
	rev := s.revision(r, id, now, log, provider, r.Current())
	rev.Default = true
	if err := s.repo.Save(ctx, rev); err != nil {
		return domres.Revision{}, fmt.Errorf("save revision: %w", err)
	}
	r.Promote(rev.Snapshot, id, now)
	return rev, nil
}

// Apply records next as the new state of r.
//
// A new revision is created when requested, when the type always revisions,
// or for drafts. Otherwise the default revision is rewritten in place.
// A draft is stored but leaves the visible state untouched; promoted
// reports whether r changed.
func (s *Service) Apply(
	ctx context.Context, r *domres.Resource, t domtype.ResourceType,
	next domres.Snapshot, p Params, provider string,
) (rev domres.Revision, promoted bool, err error) {
	now := s.now().Unix()
	log := p.Log
	if log == "" {
		log = LogUpdated
	}

	if !p.NewRevision && !p.Draft && !t.Flags().UseRevisions && r.RevisionID() > 0 {
		cur, err := s.repo.Get(ctx, r.Kind(), r.UUID(), r.RevisionID())
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domres.Revision{}, false, fmt.Errorf("load default revision: %w", err)
		}
		if err == nil {
			cur.Snapshot = next.Clone()
			cur.Log = log
			cur.ProviderUUID = provider
			if err := s.repo.Save(ctx, cur); err != nil {
				return domres.Revision{}, false, fmt.Errorf("save revision: %w", err)
			}
			r.Promote(next, cur.ID, now)
			return cur, true, nil
		}
	}

	id, err := s.repo.NextID(ctx, r.Kind(), r.UUID())
	if err != nil {
		return domres.Revision{}, false, fmt.Errorf("allocate revision: %w", err)
	}
	rev = s.revision(r, id, now, log, provider, next)
	if p.Draft {
		if err := s.repo.Save(ctx, rev); err != nil {
			return domres.Revision{}, false, fmt.Errorf("save draft: %w", err)
		}
		return rev, false, nil
	}

	if err := s.makeDefault(ctx, r, rev); err != nil {
		return domres.Revision{}, false, err
	}
	r.Promote(next, id, now)
	return rev, true, nil
}

// Publish makes revision id the visible one. Publishing the default
// revision, or one whose published copy is already default, is a no-op.
// The newest revision is promoted in place; an older one is copied into a
// fresh revision so ids stay monotonic.
func (s *Service) Publish(
	ctx context.Context, r *domres.Resource, id int64, provider string,
) (rev domres.Revision, changed bool, err error) {
	target, err := s.repo.Get(ctx, r.Kind(), r.UUID(), id)
	if err != nil {
		return domres.Revision{}, false, fmt.Errorf("load revision: %w", err)
	}
	if target.Default {
		return target, false, nil
	}

	revs, err := s.repo.List(ctx, r.Kind(), r.UUID())
	if err != nil {
		return domres.Revision{}, false, fmt.Errorf("list revisions: %w", err)
	}
	for _, cur := range revs {
		if cur.Default && cur.PublishedFrom == id {
			return cur, false, nil
		}
	}

	now := s.now().Unix()
	if revs[0].ID == id {
		rev = target
		rev.Created = now
	} else {
		next, err := s.repo.NextID(ctx, r.Kind(), r.UUID())
		if err != nil {
			return domres.Revision{}, false, fmt.Errorf("allocate revision: %w", err)
		}
		rev = s.revision(r, next, now, "Published revision "+strconv.FormatInt(id, 10), provider, target.Snapshot)
		rev.PublishedFrom = id
	}

	if err := s.makeDefault(ctx, r, rev); err != nil {
		return domres.Revision{}, false, err
	}
	r.Promote(rev.Snapshot, rev.ID, now)
	rev.Default = true
	return rev, true, nil
}

// List returns the newest revisions first, capped at MaxListed.
func (s *Service) List(ctx context.Context, r *domres.Resource) ([]domres.Revision, error) {
	revs, err := s.repo.List(ctx, r.Kind(), r.UUID())
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	if len(revs) > MaxListed {
		revs = revs[:MaxListed]
	}
	return revs, nil
}

// Load returns the revision named by ref: a numeric id or "last".
func (s *Service) Load(ctx context.Context, r *domres.Resource, ref string) (domres.Revision, error) {
	if ref == Last {
		revs, err := s.repo.List(ctx, r.Kind(), r.UUID())
		if err != nil {
			return domres.Revision{}, fmt.Errorf("list revisions: %w", err)
		}
		if len(revs) == 0 {
			return domres.Revision{}, fmt.Errorf("%w: no revisions", domain.ErrNotFound)
		}
		return revs[0], nil
	}
	id, err := ParseID(ref)
	if err != nil {
		return domres.Revision{}, err
	}
	rev, err := s.repo.Get(ctx, r.Kind(), r.UUID(), id)
	if err != nil {
		return domres.Revision{}, fmt.Errorf("load revision: %w", err)
	}
	return rev, nil
}

// Forget removes the history of a deleted resource.
func (s *Service) Forget(ctx context.Context, r *domres.Resource) error {
	if err := s.repo.DeleteAll(ctx, r.Kind(), r.UUID()); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	return nil
}

// ParseID parses a numeric revision id.
func ParseID(ref string) (int64, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid revision id %q", domain.ErrBadRequest, ref)
	}
	return id, nil
}

// makeDefault saves rev as default and clears the flag on the previous
// default in the same write.
func (s *Service) makeDefault(ctx context.Context, r *domres.Resource, rev domres.Revision) error {
	rev.Default = true
	batch := []domres.Revision{rev}
	if prev := r.RevisionID(); prev > 0 && prev != rev.ID {
		old, err := s.repo.Get(ctx, r.Kind(), r.UUID(), prev)
		switch {
		case err == nil:
			old.Default = false
			batch = append(batch, old)
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("load default revision: %w", err)
		}
	}
	if err := s.repo.Save(ctx, batch...); err != nil {
		return fmt.Errorf("save revisions: %w", err)
	}
	return nil
}

func (s *Service) revision(
	r *domres.Resource, id, now int64, log, provider string, snap domres.Snapshot,
) domres.Revision {
	return domres.Revision{
		ID:           id,
		ResourceUUID: r.UUID(),
		Kind:         r.Kind(),
		Bundle:       r.Bundle(),
		Created:      now,
		Log:          log,
		ProviderUUID: provider,
		Snapshot:     snap.Clone(),
	}
}
