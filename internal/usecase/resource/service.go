// Package resource orchestrates document and term writes: metadata
// compilation, ownership, revisions, file relocation and index rows.
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domquery "github.com/kailas-cloud/resdex/internal/domain/query"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	"github.com/kailas-cloud/resdex/internal/domain/resource/patch"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/stored"
	"github.com/kailas-cloud/resdex/internal/logger"
	"github.com/kailas-cloud/resdex/internal/usecase/access"
	"github.com/kailas-cloud/resdex/internal/usecase/metadata"
	"github.com/kailas-cloud/resdex/internal/usecase/query"
	"github.com/kailas-cloud/resdex/internal/usecase/revision"
)

// Created identifies a new resource.
type Created struct {
	UUID  string
	Title string
	Type  domtype.ResourceType
}

// View is a resource rendered for a caller.
type View struct {
	Row        query.Row
	RevisionID int64
}

// Service handles resource writes and single-resource reads.
type Service struct {
	repo      Repository
	types     TypeLookup
	compiler  Compiler
	revisions Revisions
	files     Files
	reshaper  Reshaper
	now       func() time.Time
}

// New creates a resource service.
func New(
	repo Repository, types TypeLookup, compiler Compiler,
	revisions Revisions, files Files, reshaper Reshaper,
) *Service {
	return &Service{
		repo:      repo,
		types:     types,
		compiler:  compiler,
		revisions: revisions,
		files:     files,
		reshaper:  reshaper,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create compiles in and stores a new resource of bundle.
func (s *Service) Create(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string, in Input, p revision.Params,
) (Created, error) {
	return s.create(ctx, caller, kind, bundle, in, p.Log, 0)
}

// CreateChild creates a resource requested from inside a metadata payload.
func (s *Service) CreateChild(ctx context.Context, req metadata.ChildRequest) (string, string, error) {
	in := Input{Title: &req.Title}
	if len(req.Data) > 0 {
		var body map[string]json.RawMessage
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return "", "", fmt.Errorf("%w: _data must be an object: %w", domain.ErrValidation, err)
		}
		var err error
		if in, _, err = decodeObject(req.Kind, body); err != nil {
			return "", "", err
		}
	}
	if in.Author == nil && req.Author != "" {
		in.Author = &req.Author
	}
	c, err := s.create(ctx, req.Caller, req.Kind, req.Bundle, in, "", req.Depth)
	if err != nil {
		return "", "", err
	}
	return c.UUID, c.Title, nil
}

func (s *Service) create(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string, in Input, log string, depth int,
) (Created, error) {
	if !caller.CanWrite() {
		return Created{}, fmt.Errorf("%w: creating content needs a read-write key", domain.ErrUnauthenticated)
	}
	t, err := s.visibleType(ctx, caller, kind, bundle)
	if err != nil {
		return Created{}, err
	}
	if !t.ContentWritableBy(caller.UUID()) {
		return Created{}, fmt.Errorf("%w: cannot create content in %s", domain.ErrAccessDenied, bundle)
	}

	author := ""
	if in.Author != nil {
		author = *in.Author
	}
	values, err := s.compiler.Compile(ctx, metadata.Request{
		Entries: in.Entries,
		Kind:    kind,
		Bundle:  bundle,
		Caller:  caller,
		Author:  author,
		Depth:   depth,
	})
	if err != nil {
		return Created{}, err
	}

	snap := patchSnapshot(domres.Snapshot{Published: true}, in, values)
	if err := s.check(ctx, kind, t, "", snap); err != nil {
		return Created{}, err
	}
	if snap.Files, err = s.fileRefs(ctx, in.Files, nil); err != nil {
		return Created{}, err
	}

	r, err := domres.New(kind, bundle, caller.UUID(), snap, s.now().Unix())
	if err != nil {
		return Created{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if _, err := s.revisions.Initial(ctx, &r, caller.UUID(), log); err != nil {
		return Created{}, err
	}
	if err := s.save(ctx, &r, t); err != nil {
		return Created{}, err
	}
	if snap.Private {
		if err := s.moveFiles(ctx, caller, snap.Files, true); err != nil {
			return Created{}, err
		}
	}

	logger.FromContext(ctx).Info("Resource created",
		zap.String("kind", string(kind)),
		zap.String("bundle", bundle),
		zap.String("uuid", r.UUID()),
		zap.Int("depth", depth),
	)
	return Created{UUID: r.UUID(), Title: snap.Title, Type: t}, nil
}

// Get renders the default revision of a resource. Rows the caller may not
// see are reported as missing.
func (s *Service) Get(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
) (View, error) {
	e, _, err := s.readable(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return View{}, err
	}
	row, err := s.reshaper.Reshape(ctx, e, caller)
	if err != nil {
		return View{}, err
	}
	return View{Row: row, RevisionID: e.RevisionID}, nil
}

// Update applies in to the resource. ifMatch, when set, must equal the
// current default revision id.
func (s *Service) Update(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
	in Input, p revision.Params, ifMatch *int64,
) (View, error) {
	e, t, err := s.writable(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return View{}, err
	}
	if ifMatch != nil && *ifMatch != e.RevisionID {
		return View{}, domain.NewRevisionConflict(e.RevisionID)
	}

	author := e.Author
	if in.Author != nil {
		author = *in.Author
	}
	values, err := s.compiler.Compile(ctx, metadata.Request{
		Entries: in.Entries,
		Kind:    kind,
		Bundle:  bundle,
		Caller:  caller,
		Author:  author,
	})
	if err != nil {
		return View{}, err
	}

	r := e.Resource()
	cur := r.Current()
	pp := patch.Params{
		Title:       in.Title,
		Author:      in.Author,
		Description: in.Description,
		Parent:      in.Parent,
		Published:   in.Published,
		Private:     in.Private,
	}
	if len(values) > 0 {
		pp.Fields = values
	}
	if in.Files != nil {
		refs, err := s.fileRefs(ctx, in.Files, cur.Files)
		if err != nil {
			return View{}, err
		}
		pp.Files = &refs
	}
	pt, err := patch.New(pp)
	if err != nil {
		return View{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	next := pt.ApplyTo(cur)
	if err := domres.ValidateSnapshot(kind, next); err != nil {
		return View{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := s.check(ctx, kind, t, uuid, next); err != nil {
		return View{}, err
	}

	rev, promoted, err := s.revisions.Apply(ctx, &r, t, next, p, caller.UUID())
	if err != nil {
		return View{}, err
	}
	if promoted {
		if err := s.save(ctx, &r, t); err != nil {
			return View{}, err
		}
		if next.Private != cur.Private || (next.Private && in.Files != nil) {
			if err := s.moveFiles(ctx, caller, next.Files, next.Private); err != nil {
				return View{}, err
			}
		}
	}

	logger.FromContext(ctx).Info("Resource updated",
		zap.String("kind", string(kind)),
		zap.String("uuid", uuid),
		zap.Int64("revision", rev.ID),
		zap.Bool("draft", !promoted),
	)
	return s.view(ctx, caller, uuid)
}

func (s *Service) view(ctx context.Context, caller domprov.Caller, uuid string) (View, error) {
	e, err := s.repo.Get(ctx, uuid)
	if err != nil {
		return View{}, fmt.Errorf("reload resource: %w", err)
	}
	row, err := s.reshaper.Reshape(ctx, e, caller)
	if err != nil {
		return View{}, err
	}
	return View{Row: row, RevisionID: e.RevisionID}, nil
}

// Delete removes a resource nothing references, with its history.
func (s *Service) Delete(ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string) error {
	e, _, err := s.writable(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return err
	}
	n, err := s.repo.CountReferences(ctx, uuid)
	if err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s is referenced by %d resources", domain.ErrConflict, uuid, n)
	}
	if err := s.repo.Delete(ctx, kind, bundle, uuid); err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	r := e.Resource()
	if err := s.revisions.Forget(ctx, &r); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Resource deleted",
		zap.String("kind", string(kind)),
		zap.String("bundle", bundle),
		zap.String("uuid", uuid),
	)
	return nil
}

// Publish makes revision ref the visible one.
func (s *Service) Publish(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid, ref string,
) (domres.Revision, error) {
	e, t, err := s.writable(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return domres.Revision{}, err
	}
	id, err := revision.ParseID(ref)
	if err != nil {
		return domres.Revision{}, err
	}
	r := e.Resource()
	rev, changed, err := s.revisions.Publish(ctx, &r, id, caller.UUID())
	if err != nil {
		return domres.Revision{}, err
	}
	if changed {
		if err := s.save(ctx, &r, t); err != nil {
			return domres.Revision{}, err
		}
		logger.FromContext(ctx).Info("Revision published",
			zap.String("uuid", uuid),
			zap.Int64("from", id),
			zap.Int64("revision", rev.ID),
		)
	}
	return rev, nil
}

// Unpublish is part of the surface but revisions cannot be withdrawn.
func (s *Service) Unpublish(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
) error {
	if _, _, err := s.writable(ctx, caller, kind, bundle, uuid); err != nil {
		return err
	}
	return fmt.Errorf("%w: revisions cannot be unpublished", domain.ErrUnsupported)
}

// Revisions lists the history of a resource, newest first. Drafts are only
// listed for callers that may write the resource.
func (s *Service) Revisions(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
) ([]domres.Revision, error) {
	e, t, err := s.readable(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return nil, err
	}
	r := e.Resource()
	revs, err := s.revisions.List(ctx, &r)
	if err != nil {
		return nil, err
	}
	if canWrite(caller, &r, t) {
		return revs, nil
	}
	out := make([]domres.Revision, 0, len(revs))
	for _, rev := range revs {
		if rev.Default {
			out = append(out, rev)
		}
	}
	return out, nil
}

// Revision loads one revision by id or "last".
func (s *Service) Revision(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid, ref string,
) (domres.Revision, error) {
	e, t, err := s.readable(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return domres.Revision{}, err
	}
	r := e.Resource()
	rev, err := s.revisions.Load(ctx, &r, ref)
	if err != nil {
		return domres.Revision{}, err
	}
	if rev.Draft() && !canWrite(caller, &r, t) {
		return domres.Revision{}, fmt.Errorf("%w: revision %s", domain.ErrNotFound, ref)
	}
	rev.Snapshot.Fields = readableValues(rev.Snapshot.Fields, t, caller.UUID())
	return rev, nil
}

// readableValues drops the values of fields provider may not read.
func readableValues(v domres.Values, t domtype.ResourceType, provider string) domres.Values {
	out := make(domres.Values, len(v))
	for name, items := range v {
		if def, ok := t.FieldByName(name); ok && access.Readable(def, provider) {
			out[name] = items
		}
	}
	return out
}

// visibleType loads bundle and hides types the caller cannot see.
func (s *Service) visibleType(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle string,
) (domtype.ResourceType, error) {
	t, ok, err := s.types.ByMachineName(ctx, kind, bundle)
	if err != nil {
		return domtype.ResourceType{}, fmt.Errorf("load type %s: %w", bundle, err)
	}
	if !ok || !t.VisibleTo(caller.UUID()) {
		return domtype.ResourceType{}, fmt.Errorf("%w: %s %q", domain.ErrNotFound, kind, bundle)
	}
	return t, nil
}

// load returns the row of uuid if it belongs to bundle.
func (s *Service) load(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
) (stored.Entity, domtype.ResourceType, error) {
	t, err := s.visibleType(ctx, caller, kind, bundle)
	if err != nil {
		return stored.Entity{}, domtype.ResourceType{}, err
	}
	e, err := s.repo.Get(ctx, uuid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return stored.Entity{}, domtype.ResourceType{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, uuid)
		}
		return stored.Entity{}, domtype.ResourceType{}, fmt.Errorf("load resource: %w", err)
	}
	if e.Kind != kind || e.Bundle != bundle {
		return stored.Entity{}, domtype.ResourceType{}, fmt.Errorf("%w: %s %s in %s", domain.ErrNotFound, kind, uuid, bundle)
	}
	return e, t, nil
}

func (s *Service) readable(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
) (stored.Entity, domtype.ResourceType, error) {
	e, t, err := s.load(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return stored.Entity{}, domtype.ResourceType{}, err
	}
	if e.Owner != caller.UUID() && (!e.Published || e.Private) {
		return stored.Entity{}, domtype.ResourceType{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, uuid)
	}
	return e, t, nil
}

func (s *Service) writable(
	ctx context.Context, caller domprov.Caller, kind domtype.Kind, bundle, uuid string,
) (stored.Entity, domtype.ResourceType, error) {
	if !caller.CanWrite() {
		return stored.Entity{}, domtype.ResourceType{}, fmt.Errorf("%w: writes need a read-write key", domain.ErrUnauthenticated)
	}
	e, t, err := s.load(ctx, caller, kind, bundle, uuid)
	if err != nil {
		return stored.Entity{}, domtype.ResourceType{}, err
	}
	r := e.Resource()
	if !canWrite(caller, &r, t) {
		return stored.Entity{}, domtype.ResourceType{}, fmt.Errorf("%w: %s %s belongs to another provider", domain.ErrAccessDenied, kind, uuid)
	}
	return e, t, nil
}

// canWrite: the owner, or anyone when the type accepts outside content.
func canWrite(caller domprov.Caller, r *domres.Resource, t domtype.ResourceType) bool {
	if !caller.CanWrite() {
		return false
	}
	return r.OwnedBy(caller.UUID()) || t.Flags().ContentAllowed
}

// check enforces the term rules: parent in the same vocabulary and, unless
// the vocabulary allows it, unique labels.
func (s *Service) check(ctx context.Context, kind domtype.Kind, t domtype.ResourceType, self string, snap domres.Snapshot) error {
	if kind != domtype.KindTerm {
		return nil
	}
	if snap.Parent != "" {
		if snap.Parent == self {
			return fmt.Errorf("%w: a term cannot be its own parent", domain.ErrValidation)
		}
		p, err := s.parent(ctx, t, snap.Parent)
		if err != nil {
			return err
		}
		if err := s.checkAncestors(ctx, self, p); err != nil {
			return err
		}
	}
	if t.Flags().AllowDuplicates || snap.Title == "" {
		return nil
	}
	found, err := s.repo.FindByTitle(ctx, kind, []string{t.MachineName()}, snap.Title, domquery.Group{}, 2)
	if err != nil {
		return fmt.Errorf("find duplicate labels: %w", err)
	}
	for _, e := range found {
		if e.UUID != self {
			return fmt.Errorf("%w: %q already exists in %s", domain.ErrConflict, snap.Title, t.MachineName())
		}
	}
	return nil
}

func (s *Service) parent(ctx context.Context, t domtype.ResourceType, uuid string) (stored.Entity, error) {
	p, err := s.repo.Get(ctx, uuid)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return stored.Entity{}, fmt.Errorf("%w: parent %s does not exist", domain.ErrValidation, uuid)
		}
		return stored.Entity{}, fmt.Errorf("load parent: %w", err)
	}
	if p.Kind != domtype.KindTerm || p.Bundle != t.MachineName() {
		return stored.Entity{}, fmt.Errorf("%w: parent %s is not in %s", domain.ErrValidation, uuid, t.MachineName())
	}
	return p, nil
}

// checkAncestors walks up from parent and rejects the change when the
// chain reaches self. A new term (self == "") cannot close a cycle.
func (s *Service) checkAncestors(ctx context.Context, self string, parent stored.Entity) error {
	if self == "" {
		return nil
	}
	seen := mapset.NewThreadUnsafeSet(parent.UUID)
	for cur := parent.Parent; cur != ""; {
		if cur == self {
			return fmt.Errorf("%w: %s is an ancestor of its new parent %s", domain.ErrValidation, self, parent.UUID)
		}
		if !seen.Add(cur) {
			return nil
		}
		e, err := s.repo.Get(ctx, cur)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load ancestor %s: %w", cur, err)
		}
		cur = e.Parent
	}
	return nil
}

// fileRefs resolves media uuids, recording each media's current file.
// Refs already on the resource keep the file they were saved with.
func (s *Service) fileRefs(ctx context.Context, ids *[]string, prev []domres.FileRef) ([]domres.FileRef, error) {
	if ids == nil {
		return nil, nil
	}
	known := make(map[string]domres.FileRef, len(prev))
	for _, ref := range prev {
		known[ref.MediaUUID] = ref
	}
	out := make([]domres.FileRef, 0, len(*ids))
	seen := make(map[string]bool, len(*ids))
	for _, id := range *ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if ref, ok := known[id]; ok {
			out = append(out, ref)
			continue
		}
		m, err := s.files.GetMedia(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: media %s does not exist", domain.ErrValidation, id)
			}
			return nil, fmt.Errorf("load media: %w", err)
		}
		out = append(out, domres.FileRef{MediaUUID: id, FileUUID: m.Current().FileUUID})
	}
	return out, nil
}

func (s *Service) moveFiles(ctx context.Context, caller domprov.Caller, refs []domres.FileRef, private bool) error {
	for _, ref := range refs {
		if err := s.files.SetMediaPrivate(ctx, caller, ref.MediaUUID, private); err != nil {
			return fmt.Errorf("relocate media %s: %w", ref.MediaUUID, err)
		}
	}
	return nil
}

// save writes the index row of r's default revision.
func (s *Service) save(ctx context.Context, r *domres.Resource, t domtype.ResourceType) error {
	e := stored.FromResource(r, t)
	if e.Parent != "" {
		p, err := s.repo.Get(ctx, e.Parent)
		switch {
		case err == nil:
			e.ParentLabel = p.Title
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("load parent: %w", err)
		}
	}
	if err := s.repo.Save(ctx, e); err != nil {
		return fmt.Errorf("save resource: %w", err)
	}
	return nil
}

// patchSnapshot applies the structural members of in and the compiled
// values to base.
func patchSnapshot(base domres.Snapshot, in Input, values domres.Values) domres.Snapshot {
	if in.Title != nil {
		base.Title = *in.Title
	}
	if in.Author != nil {
		base.Author = *in.Author
	}
	if in.Description != nil {
		base.Description = *in.Description
	}
	if in.Parent != nil {
		base.Parent = *in.Parent
	}
	if in.Published != nil {
		base.Published = *in.Published
	}
	if in.Private != nil {
		base.Private = *in.Private
	}
	for name, items := range values {
		if items == nil {
			continue
		}
		if base.Fields == nil {
			base.Fields = make(domres.Values, len(values))
		}
		base.Fields[name] = items
	}
	return base
}
