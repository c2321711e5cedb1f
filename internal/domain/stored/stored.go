// Package stored defines the entity blob written next to every index row.
//
// The blob is produced when a resource is saved and consumed when query
// results are reshaped, so reads never load live entities. It carries a
// version number; readers reject versions they do not know.
package stored

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/resdex/internal/domain/resource"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
)

// Version is the current blob layout.
const Version = 1

// Field is one field's values plus the mapping needed to reshape them.
type Field struct {
	Type       field.Type      `json:"type"`
	Multiple   bool            `json:"multiple,omitempty"`
	TargetKind string          `json:"target_kind,omitempty"`
	Items      []resource.Item `json:"items"`
}

// Entity is the versioned blob.
type Entity struct {
	V           int                `json:"v"`
	UUID        string             `json:"uuid"`
	Kind        resourcetype.Kind  `json:"kind"`
	Bundle      string             `json:"bundle"`
	Owner       string             `json:"owner"`
	Title       string             `json:"title"`
	Author      string             `json:"author,omitempty"`
	Description string             `json:"description,omitempty"`
	Parent      string             `json:"parent,omitempty"`
	ParentLabel string             `json:"parent_label,omitempty"`
	Published   bool               `json:"published"`
	Private     bool               `json:"private"`
	Created     int64              `json:"created"`
	Changed     int64              `json:"changed"`
	RevisionID  int64              `json:"revision_id"`
	Fields      map[string]Field   `json:"fields,omitempty"`
	Files       []resource.FileRef `json:"files,omitempty"`
}

// Encode serializes e with the current version.
func Encode(e Entity) ([]byte, error) {
	e.V = Version
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode stored entity: %w", err)
	}
	return b, nil
}

// Decode parses a blob written by Encode.
func Decode(b []byte) (Entity, error) {
	var e Entity
	if err := json.Unmarshal(b, &e); err != nil {
		return Entity{}, fmt.Errorf("decode stored entity: %w", err)
	}
	if e.V != Version {
		return Entity{}, fmt.Errorf("unsupported stored entity version %d", e.V)
	}
	return e, nil
}

// FromSnapshot builds a blob for snap of r, mapping fields through t.
// Values of fields no longer defined on t are dropped.
func FromSnapshot(r *resource.Resource, t resourcetype.ResourceType, snap resource.Snapshot, revisionID int64) Entity {
	e := Entity{
		V:           Version,
		UUID:        r.UUID(),
		Kind:        r.Kind(),
		Bundle:      r.Bundle(),
		Owner:       r.Owner(),
		Title:       snap.Title,
		Author:      snap.Author,
		Description: snap.Description,
		Parent:      snap.Parent,
		Published:   snap.Published,
		Private:     snap.Private,
		Created:     r.Created(),
		Changed:     r.Changed(),
		RevisionID:  revisionID,
		Files:       snap.Files,
	}
	if len(snap.Fields) > 0 {
		e.Fields = make(map[string]Field, len(snap.Fields))
	}
	for name, items := range snap.Fields {
		def, ok := t.FieldByName(name)
		if !ok {
			continue
		}
		e.Fields[name] = Field{
			Type:       def.FieldType(),
			Multiple:   def.Multiple(),
			TargetKind: def.Target().Kind,
			Items:      items,
		}
	}
	return e
}

// FromResource builds the blob of r's default revision.
func FromResource(r *resource.Resource, t resourcetype.ResourceType) Entity {
	return FromSnapshot(r, t, r.Current(), r.RevisionID())
}

// Snapshot returns the revision data held in the blob.
func (e Entity) Snapshot() resource.Snapshot {
	var values resource.Values
	if len(e.Fields) > 0 {
		values = make(resource.Values, len(e.Fields))
		for name, f := range e.Fields {
			values[name] = f.Items
		}
	}
	return resource.Snapshot{
		Title:       e.Title,
		Author:      e.Author,
		Description: e.Description,
		Parent:      e.Parent,
		Published:   e.Published,
		Private:     e.Private,
		Fields:      values,
		Files:       e.Files,
	}
}

// Resource hydrates the aggregate from the blob.
func (e Entity) Resource() resource.Resource {
	return resource.Reconstruct(
		e.UUID, e.Kind, e.Bundle, e.Owner,
		e.Created, e.Changed, e.RevisionID, e.Snapshot(),
	)
}
