package field

import (
	"fmt"
	"regexp"
)

// Type is the value kind of a field. The set is closed.
type Type string

// Field type constants.
const (
	String              Type = "string"
	StringLong          Type = "string_long"
	Integer             Type = "integer"
	Boolean             Type = "boolean"
	Timestamp           Type = "timestamp"
	DateRange           Type = "daterange"
	Link                Type = "link"
	EntityReference     Type = "entity_reference"
	EntityReferenceUUID Type = "entity_reference_uuid"
	Geofield            Type = "geofield"
	Telephone           Type = "telephone"
	Email               Type = "email"
	Address             Type = "address"
	SelectedFileVersion Type = "selected_file_version"
)

var validTypes = map[Type]bool{
	String: true, StringLong: true, Integer: true, Boolean: true,
	Timestamp: true, DateRange: true, Link: true,
	EntityReference: true, EntityReferenceUUID: true,
	Geofield: true, Telephone: true, Email: true, Address: true,
	SelectedFileVersion: true,
}

// IsValid reports whether t is a known field type.
func (t Type) IsValid() bool { return validTypes[t] }

// IsReference reports whether values of t point at other resources.
func (t Type) IsReference() bool {
	return t == EntityReference || t == EntityReferenceUUID
}

// IsNumeric reports whether values of t are indexed as numbers.
func (t Type) IsNumeric() bool {
	return t == Integer || t == Timestamp || t == DateRange
}

var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Names owned by the resource itself or by the storage layer.
var reservedFieldNames = map[string]bool{
	"id": true, "uuid": true, "vid": true, "type": true, "bundle": true,
	"langcode": true, "default_langcode": true, "status": true,
	"title": true, "label": true, "name": true, "description": true,
	"author": true, "created": true, "changed": true, "published": true,
	"private": true, "files": true, "parent": true, "metadata": true,
	"provider_uuid": true, "revision_id": true, "revision_log": true,
	"revision_default": true, "revision_translation_affected": true,
	"new_revision": true, "draft": true,
}

// IsReserved reports whether name is taken by a structural property.
func IsReserved(name string) bool { return reservedFieldNames[name] }

// companion suffixes generated by the index writer
var reservedSuffixes = []string{"_label", "_end", "_lat", "_lon", "_exact"}

// Target names the resource type a reference field points at.
type Target struct {
	Kind   string `json:"kind"`
	Bundle string `json:"bundle"`
}

// Options carries the optional parts of a field definition.
type Options struct {
	Label    string
	Multiple bool
	Private  bool
	Owner    string
	Target   Target
}

// Definition is an immutable value object describing one field on a resource type.
type Definition struct {
	name      string
	fieldType Type
	label     string
	multiple  bool
	private   bool
	owner     string
	target    Target
}

// New validates and creates a Definition.
// Name: ^[a-z][a-z0-9_]*$, max 32 chars, not reserved, no companion suffix.
// Reference fields must name a target bundle.
func New(name string, ft Type, opts Options) (Definition, error) {
	if name == "" {
		return Definition{}, fmt.Errorf("field name is required")
	}
	if len(name) > 32 {
		return Definition{}, fmt.Errorf("field name %q too long (max 32)", name)
	}
	if !nameRegex.MatchString(name) {
		return Definition{}, fmt.Errorf("field name %q must be lowercase alphanumeric with underscores", name)
	}
	if reservedFieldNames[name] {
		return Definition{}, fmt.Errorf("field name %q is reserved", name)
	}
	for _, suffix := range reservedSuffixes {
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			return Definition{}, fmt.Errorf("field name %q must not end with %q", name, suffix)
		}
	}
	if !ft.IsValid() {
		return Definition{}, fmt.Errorf("invalid field type %q for %q", ft, name)
	}
	if ft.IsReference() && (opts.Target.Kind == "" || opts.Target.Bundle == "") {
		return Definition{}, fmt.Errorf("reference field %q requires a target type", name)
	}
	if !ft.IsReference() {
		opts.Target = Target{}
	}
	label := opts.Label
	if label == "" {
		label = name
	}
	return Definition{
		name:      name,
		fieldType: ft,
		label:     label,
		multiple:  opts.Multiple,
		private:   opts.Private,
		owner:     opts.Owner,
		target:    opts.Target,
	}, nil
}

// Reconstruct creates a Definition without validation (storage hydration).
func Reconstruct(name string, ft Type, opts Options) Definition {
	return Definition{
		name:      name,
		fieldType: ft,
		label:     opts.Label,
		multiple:  opts.Multiple,
		private:   opts.Private,
		owner:     opts.Owner,
		target:    opts.Target,
	}
}

// Name returns the field machine name.
func (d Definition) Name() string { return d.name }

// FieldType returns the value kind.
func (d Definition) FieldType() Type { return d.fieldType }

// Label returns the human label.
func (d Definition) Label() string { return d.label }

// Multiple reports whether the field holds more than one value.
func (d Definition) Multiple() bool { return d.multiple }

// Private reports whether the field is hidden from non-owners.
func (d Definition) Private() bool { return d.private }

// Owner returns the uuid of the provider that created the field.
func (d Definition) Owner() string { return d.owner }

// Target returns the referenced resource type for reference fields.
func (d Definition) Target() Target { return d.target }

// WithChanges returns a copy with updated label and private flag.
func (d Definition) WithChanges(label string, private bool) Definition {
	if label != "" {
		d.label = label
	}
	d.private = private
	return d
}
