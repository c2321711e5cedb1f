package resource

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kailas-cloud/resdex/internal/domain/resourcetype"
)

// MaxTitleLength bounds titles and term labels.
const MaxTitleLength = 255

// Item is one value of a field. Which members are set depends on the
// field type: scalars use Value, ranges add End, references use
// TargetUUID (+ Label captured at index time), links use URI/Title,
// geofields use Lat/Lon, addresses use Address.
type Item struct {
	Value      string            `json:"value,omitempty"`
	End        string            `json:"end,omitempty"`
	TargetUUID string            `json:"target_uuid,omitempty"`
	Label      string            `json:"label,omitempty"`
	URI        string            `json:"uri,omitempty"`
	Title      string            `json:"title,omitempty"`
	Lat        *float64          `json:"lat,omitempty"`
	Lon        *float64          `json:"lon,omitempty"`
	Address    map[string]string `json:"address,omitempty"`
}

// Values maps field names to their items.
type Values map[string][]Item

// Clone returns a deep copy.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	c := make(Values, len(v))
	for k, items := range v {
		cp := make([]Item, len(items))
		for i, it := range items {
			cp[i] = it.clone()
		}
		c[k] = cp
	}
	return c
}

func (it Item) clone() Item {
	if it.Lat != nil {
		lat := *it.Lat
		it.Lat = &lat
	}
	if it.Lon != nil {
		lon := *it.Lon
		it.Lon = &lon
	}
	if it.Address != nil {
		addr := make(map[string]string, len(it.Address))
		for k, v := range it.Address {
			addr[k] = v
		}
		it.Address = addr
	}
	return it
}

// FileRef points at a Media; FileUUID records the file current at save time.
type FileRef struct {
	MediaUUID string `json:"media_uuid"`
	FileUUID  string `json:"file_uuid,omitempty"`
}

// Snapshot holds everything a revision captures.
type Snapshot struct {
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	Parent      string    `json:"parent,omitempty"`
	Published   bool      `json:"published"`
	Private     bool      `json:"private"`
	Fields      Values    `json:"fields,omitempty"`
	Files       []FileRef `json:"files,omitempty"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	s.Fields = s.Fields.Clone()
	if s.Files != nil {
		files := make([]FileRef, len(s.Files))
		copy(files, s.Files)
		s.Files = files
	}
	return s
}

// References returns the uuids of resources this snapshot points at.
func (s Snapshot) References() []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	add(s.Parent)
	for _, items := range s.Fields {
		for _, it := range items {
			add(it.TargetUUID)
		}
	}
	return refs
}

// Resource is a Document or Term (mutable aggregate, current = default revision).
type Resource struct {
	uuid       string
	kind       resourcetype.Kind
	bundle     string
	owner      string
	created    int64
	changed    int64
	revisionID int64
	current    Snapshot
}

// New validates and creates a Resource with a fresh uuid.
func New(kind resourcetype.Kind, bundle, owner string, snap Snapshot, now int64) (Resource, error) {
	if !kind.IsValid() {
		return Resource{}, fmt.Errorf("invalid resource kind: %q", kind)
	}
	if bundle == "" {
		return Resource{}, fmt.Errorf("bundle is required")
	}
	if owner == "" {
		return Resource{}, fmt.Errorf("owner provider is required")
	}
	if err := ValidateSnapshot(kind, snap); err != nil {
		return Resource{}, err
	}
	return Resource{
		uuid:    uuid.NewString(),
		kind:    kind,
		bundle:  bundle,
		owner:   owner,
		created: now,
		changed: now,
		current: snap.Clone(),
	}, nil
}

// ValidateSnapshot checks the structural properties every revision must have.
func ValidateSnapshot(kind resourcetype.Kind, snap Snapshot) error {
	what := "title"
	if kind == resourcetype.KindTerm {
		what = "label"
	}
	if snap.Title == "" {
		return fmt.Errorf("%s is required", what)
	}
	if len(snap.Title) > MaxTitleLength {
		return fmt.Errorf("%s too long (max %d)", what, MaxTitleLength)
	}
	if kind == resourcetype.KindDocument && snap.Parent != "" {
		return fmt.Errorf("documents have no parent")
	}
	return nil
}

// Reconstruct creates a Resource without validation (storage hydration).
func Reconstruct(
	id string, kind resourcetype.Kind, bundle, owner string,
	created, changed, revisionID int64, snap Snapshot,
) Resource {
	return Resource{
		uuid:       id,
		kind:       kind,
		bundle:     bundle,
		owner:      owner,
		created:    created,
		changed:    changed,
		revisionID: revisionID,
		current:    snap,
	}
}

// UUID returns the immutable resource uuid.
func (r *Resource) UUID() string { return r.uuid }

// Kind returns document or term.
func (r *Resource) Kind() resourcetype.Kind { return r.kind }

// Bundle returns the resource type machine name.
func (r *Resource) Bundle() string { return r.bundle }

// Owner returns the provider uuid that created the resource.
func (r *Resource) Owner() string { return r.owner }

// Created returns the creation timestamp (unix seconds).
func (r *Resource) Created() int64 { return r.created }

// Changed returns the last change timestamp (unix seconds).
func (r *Resource) Changed() int64 { return r.changed }

// RevisionID returns the id of the default revision.
func (r *Resource) RevisionID() int64 { return r.revisionID }

// Current returns a copy of the default revision's data.
func (r *Resource) Current() Snapshot { return r.current.Clone() }

// OwnedBy reports whether provider created the resource.
func (r *Resource) OwnedBy(provider string) bool {
	return provider != "" && r.owner == provider
}

// Promote makes snap the visible state under revision id.
func (r *Resource) Promote(snap Snapshot, revisionID, now int64) {
	r.current = snap.Clone()
	r.revisionID = revisionID
	r.changed = now
}

// Touch records a change that did not move the default revision.
func (r *Resource) Touch(now int64) { r.changed = now }
