package media

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Selection targets other than a file uuid.
const (
	SelectLatest = "latest"
	SelectHidden = "hidden"
)

// Revision is one version of a Media, backed by its own File.
type Revision struct {
	ID           int64  `json:"id"`
	FileUUID     string `json:"file_uuid"`
	Created      int64  `json:"created"`
	Default      bool   `json:"default"`
	ProviderUUID string `json:"provider_uuid"`
}

// Media is the versioned container of a file.
type Media struct {
	uuid       string
	name       string
	owner      string
	revisions  []Revision
	selections map[string]string
	nextID     int64
	created    int64
	changed    int64
}

// State carries a Media for storage hydration.
type State struct {
	UUID       string            `json:"uuid"`
	Name       string            `json:"name"`
	Owner      string            `json:"owner"`
	Revisions  []Revision        `json:"revisions"`
	Selections map[string]string `json:"selections,omitempty"`
	NextID     int64             `json:"next_id"`
	Created    int64             `json:"created"`
	Changed    int64             `json:"changed"`
}

// New creates a Media whose first revision is fileUUID.
func New(name, owner, fileUUID string, now int64) (Media, error) {
	if name == "" {
		return Media{}, fmt.Errorf("media name is required")
	}
	if owner == "" {
		return Media{}, fmt.Errorf("owner provider is required")
	}
	if fileUUID == "" {
		return Media{}, fmt.Errorf("file is required")
	}
	m := Media{
		uuid:       uuid.NewString(),
		name:       name,
		owner:      owner,
		selections: map[string]string{},
		nextID:     1,
		created:    now,
	}
	m.AddRevision(fileUUID, owner, now)
	return m, nil
}

// Reconstruct creates a Media without validation.
func Reconstruct(s State) Media {
	revs := make([]Revision, len(s.Revisions))
	copy(revs, s.Revisions)
	sort.Slice(revs, func(i, j int) bool { return revs[i].ID < revs[j].ID })
	sel := make(map[string]string, len(s.Selections))
	for k, v := range s.Selections {
		sel[k] = v
	}
	return Media{
		uuid:       s.UUID,
		name:       s.Name,
		owner:      s.Owner,
		revisions:  revs,
		selections: sel,
		nextID:     s.NextID,
		created:    s.Created,
		changed:    s.Changed,
	}
}

// State returns the storage form.
func (m *Media) State() State {
	sel := make(map[string]string, len(m.selections))
	for k, v := range m.selections {
		sel[k] = v
	}
	return State{
		UUID:       m.uuid,
		Name:       m.name,
		Owner:      m.owner,
		Revisions:  m.Revisions(),
		Selections: sel,
		NextID:     m.nextID,
		Created:    m.created,
		Changed:    m.changed,
	}
}

// UUID returns the media uuid.
func (m *Media) UUID() string { return m.uuid }

// Name returns the media name.
func (m *Media) Name() string { return m.name }

// Owner returns the provider uuid that created the media.
func (m *Media) Owner() string { return m.owner }

// Created returns the creation timestamp (unix seconds).
func (m *Media) Created() int64 { return m.created }

// Changed returns the last change timestamp (unix seconds).
func (m *Media) Changed() int64 { return m.changed }

// OwnedBy reports whether provider created the media.
func (m *Media) OwnedBy(provider string) bool {
	return provider != "" && m.owner == provider
}

// Revisions returns a copy of the history, oldest first.
func (m *Media) Revisions() []Revision {
	out := make([]Revision, len(m.revisions))
	copy(out, m.revisions)
	return out
}

// Current returns the default revision.
func (m *Media) Current() Revision {
	for _, r := range m.revisions {
		if r.Default {
			return r
		}
	}
	if len(m.revisions) > 0 {
		return m.revisions[len(m.revisions)-1]
	}
	return Revision{}
}

// Revision looks up a revision by id.
func (m *Media) Revision(id int64) (Revision, bool) {
	for _, r := range m.revisions {
		if r.ID == id {
			return r, true
		}
	}
	return Revision{}, false
}

// RevisionByFile looks up the revision backed by fileUUID.
func (m *Media) RevisionByFile(fileUUID string) (Revision, bool) {
	for _, r := range m.revisions {
		if r.FileUUID == fileUUID {
			return r, true
		}
	}
	return Revision{}, false
}

// AddRevision appends a new default revision.
func (m *Media) AddRevision(fileUUID, provider string, now int64) Revision {
	for i := range m.revisions {
		m.revisions[i].Default = false
	}
	if m.nextID == 0 {
		m.nextID = 1
	}
	rev := Revision{
		ID:           m.nextID,
		FileUUID:     fileUUID,
		Created:      now,
		Default:      true,
		ProviderUUID: provider,
	}
	m.nextID++
	m.revisions = append(m.revisions, rev)
	m.changed = now
	return rev
}

// Select stores provider's view of the media. target is a file uuid of
// one of the revisions, SelectLatest, SelectHidden or empty (hidden).
func (m *Media) Select(provider, target string) error {
	if provider == "" {
		return fmt.Errorf("selection requires a provider")
	}
	switch target {
	case SelectLatest:
		delete(m.selections, provider)
		return nil
	case "", SelectHidden:
		m.selections[provider] = SelectHidden
		return nil
	}
	if _, ok := m.RevisionByFile(target); !ok {
		return fmt.Errorf("file %q is not a revision of media %s", target, m.uuid)
	}
	m.selections[provider] = target
	return nil
}

// Selection returns provider's stored target, or "" when it follows latest.
func (m *Media) Selection(provider string) string {
	return m.selections[provider]
}

// Resolve returns the file uuid provider sees, and false when hidden.
func (m *Media) Resolve(provider string) (string, bool) {
	sel, ok := m.selections[provider]
	if !ok || sel == SelectLatest {
		return m.Current().FileUUID, true
	}
	if sel == SelectHidden {
		return "", false
	}
	if _, ok := m.RevisionByFile(sel); ok {
		return sel, true
	}
	return m.Current().FileUUID, true
}

// PinnedBy returns providers other than except whose selection targets fileUUID.
func (m *Media) PinnedBy(fileUUID, except string) []string {
	var out []string
	for p, sel := range m.selections {
		if p != except && sel == fileUUID {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// RemoveRevision drops revision id. Removing the default promotes the
// closest older revision; removing the last revision reports empty=true.
func (m *Media) RemoveRevision(id int64, now int64) (removed Revision, promoted *Revision, empty bool, err error) {
	idx := -1
	for i, r := range m.revisions {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Revision{}, nil, false, fmt.Errorf("revision %d not found", id)
	}
	removed = m.revisions[idx]
	m.revisions = append(m.revisions[:idx:idx], m.revisions[idx+1:]...)
	m.changed = now

	// a pin on the dropped file would resolve to latest anyway
	for p, sel := range m.selections {
		if sel == removed.FileUUID {
			delete(m.selections, p)
		}
	}

	if len(m.revisions) == 0 {
		return removed, nil, true, nil
	}
	if removed.Default {
		prev := idx - 1
		if prev < 0 {
			prev = 0
		}
		m.revisions[prev].Default = true
		p := m.revisions[prev]
		return removed, &p, false, nil
	}
	return removed, nil, false, nil
}
