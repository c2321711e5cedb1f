package patch

import (
	"fmt"

	"github.com/kailas-cloud/resdex/internal/domain/resource"
)

// Patch is a partial resource update.
// Nil members are unchanged. A nil slice in Fields deletes that field.
type Patch struct {
	title       *string
	author      *string
	description *string
	parent      *string
	published   *bool
	private     *bool
	fields      resource.Values
	files       *[]resource.FileRef
}

// Params carries the optional members of a Patch.
type Params struct {
	Title       *string
	Author      *string
	Description *string
	Parent      *string
	Published   *bool
	Private     *bool
	Fields      resource.Values
	Files       *[]resource.FileRef
}

// New validates and creates a Patch. At least one member must be provided.
func New(p Params) (Patch, error) {
	if p.Title == nil && p.Author == nil && p.Description == nil && p.Parent == nil &&
		p.Published == nil && p.Private == nil && p.Fields == nil && p.Files == nil {
		return Patch{}, fmt.Errorf("at least one field must be provided")
	}
	if p.Title != nil && *p.Title == "" {
		return Patch{}, fmt.Errorf("title cannot be emptied")
	}
	return Patch{
		title:       p.Title,
		author:      p.Author,
		description: p.Description,
		parent:      p.Parent,
		published:   p.Published,
		private:     p.Private,
		fields:      p.Fields,
		files:       p.Files,
	}, nil
}

// Fields returns field updates (nil slice = delete).
func (p Patch) Fields() resource.Values { return p.fields }

// Files returns the replacement file list, or nil if unchanged.
func (p Patch) Files() *[]resource.FileRef { return p.files }

// Parent returns the new parent, or nil if unchanged.
func (p Patch) Parent() *string { return p.parent }

// Private returns the new private flag, or nil if unchanged.
func (p Patch) Private() *bool { return p.private }

// ApplyTo returns base with the patch applied. base is not modified.
func (p Patch) ApplyTo(base resource.Snapshot) resource.Snapshot {
	out := base.Clone()
	if p.title != nil {
		out.Title = *p.title
	}
	if p.author != nil {
		out.Author = *p.author
	}
	if p.description != nil {
		out.Description = *p.description
	}
	if p.parent != nil {
		out.Parent = *p.parent
	}
	if p.published != nil {
		out.Published = *p.published
	}
	if p.private != nil {
		out.Private = *p.private
	}
	if p.files != nil {
		files := make([]resource.FileRef, len(*p.files))
		copy(files, *p.files)
		out.Files = files
	}
	if len(p.fields) > 0 && out.Fields == nil {
		out.Fields = make(resource.Values, len(p.fields))
	}
	for name, items := range p.fields.Clone() {
		if items == nil {
			delete(out.Fields, name)
			continue
		}
		out.Fields[name] = items
	}
	return out
}
