package resourcetype

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
)

var (
	machineNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
	endpointRegex    = regexp.MustCompile(`^[a-z-]+$`)
)

// Kind distinguishes document types from vocabularies.
type Kind string

const (
	// KindDocument is a node-like content type.
	KindDocument Kind = "document"
	// KindTerm is a taxonomy vocabulary.
	KindTerm Kind = "term"
)

// IsValid checks if the kind is supported.
func (k Kind) IsValid() bool {
	return k == KindDocument || k == KindTerm
}

// Plural returns the collection name used in keys, routes and indexes.
func (k Kind) Plural() string {
	if k == KindTerm {
		return "terms"
	}
	return "documents"
}

// KindFromPlural maps "documents"/"terms" back to a Kind.
func KindFromPlural(s string) (Kind, bool) {
	switch s {
	case "documents":
		return KindDocument, true
	case "terms":
		return KindTerm, true
	}
	return "", false
}

// OptionListSuffix marks the option-list variant of a kind.
const OptionListSuffix = "__option_list"

// Endpoints that collide with routes served by the API itself.
var reservedEndpoints = map[string]bool{
	"wait": true, "me": true, "webhooks": true, "types": true, "fields": true,
	"vocabularies": true, "terms": true, "media": true, "files": true,
	"any": true, "all": true,
}

// IsReservedEndpoint reports whether e is taken by a built-in route.
func IsReservedEndpoint(e string) bool { return reservedEndpoints[e] }

// System bundle names of the underlying content model.
var reservedMachineNames = map[string]bool{
	"node": true, "taxonomy_term": true, "media": true, "file": true,
	"user": true, "provider": true, "document": true, "term": true,
	"any": true, "all": true,
}

// Flags are the policy settings registered on a type.
type Flags struct {
	Shared          bool `json:"shared"`
	Private         bool `json:"private"`
	ContentAllowed  bool `json:"content_allowed"`
	FieldsAllowed   bool `json:"fields_allowed"`
	AllowDuplicates bool `json:"allow_duplicates"`
	UseRevisions    bool `json:"use_revisions"`
}

// ResourceType is the bundle aggregate (immutable value object).
type ResourceType struct {
	kind        Kind
	machineName string
	label       string
	description string
	owner       string
	author      string
	endpoint    string
	flags       Flags
	fields      []field.Definition
	createdAt   int64
	revision    int
}

// Params carries the caller-supplied parts of a new type.
type Params struct {
	MachineName string
	Label       string
	Description string
	Author      string
	Endpoint    string
	Flags       Flags
}

func validateMachineName(name string) error {
	if name == "" {
		return fmt.Errorf("machine name is required")
	}
	if len(name) > 32 {
		return fmt.Errorf("machine name too long (max 32)")
	}
	if !machineNameRegex.MatchString(name) {
		return fmt.Errorf("machine name must be lowercase alphanumeric with underscores")
	}
	if reservedMachineNames[name] {
		return fmt.Errorf("machine name %q is reserved", name)
	}
	return nil
}

// ValidateEndpoint checks the endpoint path rules.
func ValidateEndpoint(endpoint string) error {
	if !endpointRegex.MatchString(endpoint) {
		return fmt.Errorf("endpoint %q must match [a-z-]+", endpoint)
	}
	if reservedEndpoints[endpoint] {
		return fmt.Errorf("endpoint %q is reserved", endpoint)
	}
	return nil
}

// DefaultEndpoint derives an endpoint path from a machine name.
func DefaultEndpoint(machineName string) string {
	return strings.ReplaceAll(machineName, "_", "-")
}

// New validates and creates a ResourceType owned by owner.
func New(kind Kind, owner string, p Params) (ResourceType, error) {
	if !kind.IsValid() {
		return ResourceType{}, fmt.Errorf("invalid resource kind: %q", kind)
	}
	if p.Label == "" {
		return ResourceType{}, fmt.Errorf("label is required")
	}
	if err := validateMachineName(p.MachineName); err != nil {
		return ResourceType{}, err
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint(p.MachineName)
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return ResourceType{}, err
	}
	if p.Flags.Shared && p.Flags.Private {
		return ResourceType{}, fmt.Errorf("a type cannot be both shared and private")
	}

	return ResourceType{
		kind:        kind,
		machineName: p.MachineName,
		label:       p.Label,
		description: p.Description,
		owner:       owner,
		author:      p.Author,
		endpoint:    endpoint,
		flags:       p.Flags,
		createdAt:   time.Now().UnixMilli(),
		revision:    1,
	}, nil
}

// Reconstruct creates a ResourceType without validation (storage hydration).
func Reconstruct(
	kind Kind, owner string, p Params, fields []field.Definition,
	createdAt int64, revision int,
) ResourceType {
	return ResourceType{
		kind:        kind,
		machineName: p.MachineName,
		label:       p.Label,
		description: p.Description,
		owner:       owner,
		author:      p.Author,
		endpoint:    p.Endpoint,
		flags:       p.Flags,
		fields:      fields,
		createdAt:   createdAt,
		revision:    revision,
	}
}

// Kind returns document or term.
func (t ResourceType) Kind() Kind { return t.kind }

// MachineName returns the bundle machine name.
func (t ResourceType) MachineName() string { return t.machineName }

// Label returns the human label.
func (t ResourceType) Label() string { return t.label }

// Description returns the free-text description.
func (t ResourceType) Description() string { return t.description }

// Owner returns the owning provider uuid.
func (t ResourceType) Owner() string { return t.owner }

// Author returns the free-text author recorded at creation.
func (t ResourceType) Author() string { return t.author }

// Endpoint returns the route segment the type is served under.
func (t ResourceType) Endpoint() string { return t.endpoint }

// Flags returns the policy flags.
func (t ResourceType) Flags() Flags { return t.flags }

// Fields returns the field definitions.
func (t ResourceType) Fields() []field.Definition { return t.fields }

// CreatedAt returns the creation timestamp (unix millis).
func (t ResourceType) CreatedAt() int64 { return t.createdAt }

// Revision returns the structural version, bumped on every change.
func (t ResourceType) Revision() int { return t.revision }

// Params returns the descriptive parts of the type.
func (t ResourceType) Params() Params {
	return Params{
		MachineName: t.machineName,
		Label:       t.label,
		Description: t.description,
		Author:      t.author,
		Endpoint:    t.endpoint,
		Flags:       t.flags,
	}
}

// IndexName returns the type-scoped index name, e.g. documents_article.
func (t ResourceType) IndexName() string {
	return t.kind.Plural() + "_" + t.machineName
}

// FieldByName looks up a field by name.
func (t ResourceType) FieldByName(name string) (field.Definition, bool) {
	for _, f := range t.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return field.Definition{}, false
}

// OwnedBy reports whether provider owns the type.
func (t ResourceType) OwnedBy(provider string) bool {
	return provider != "" && t.owner == provider
}

// VisibleTo reports whether provider may read content of this type.
// Anonymous callers pass an empty provider.
func (t ResourceType) VisibleTo(provider string) bool {
	if t.OwnedBy(provider) {
		return true
	}
	if t.flags.Private {
		return false
	}
	return t.flags.Shared || t.flags.ContentAllowed
}

// ContentWritableBy reports whether provider may create or edit content.
func (t ResourceType) ContentWritableBy(provider string) bool {
	return t.OwnedBy(provider) || (provider != "" && t.flags.ContentAllowed)
}

// FieldsWritableBy reports whether provider may add fields.
func (t ResourceType) FieldsWritableBy(provider string) bool {
	return t.OwnedBy(provider) || (provider != "" && t.flags.FieldsAllowed)
}

// WithField returns a copy with f appended. Duplicate names are rejected.
func (t ResourceType) WithField(f field.Definition) (ResourceType, error) {
	if _, ok := t.FieldByName(f.Name()); ok {
		return ResourceType{}, fmt.Errorf("duplicate field name: %s", f.Name())
	}
	fields := make([]field.Definition, 0, len(t.fields)+1)
	fields = append(fields, t.fields...)
	t.fields = append(fields, f)
	t.revision++
	return t, nil
}

// ReplaceField returns a copy with the field of the same name swapped for f.
func (t ResourceType) ReplaceField(f field.Definition) (ResourceType, error) {
	fields := make([]field.Definition, len(t.fields))
	copy(fields, t.fields)
	for i := range fields {
		if fields[i].Name() == f.Name() {
			fields[i] = f
			t.fields = fields
			t.revision++
			return t, nil
		}
	}
	return ResourceType{}, fmt.Errorf("field %q not found", f.Name())
}

// WithoutField returns a copy with the named field removed.
func (t ResourceType) WithoutField(name string) (ResourceType, error) {
	fields := make([]field.Definition, 0, len(t.fields))
	found := false
	for _, f := range t.fields {
		if f.Name() == name {
			found = true
			continue
		}
		fields = append(fields, f)
	}
	if !found {
		return ResourceType{}, fmt.Errorf("field %q not found", name)
	}
	t.fields = fields
	t.revision++
	return t, nil
}

// WithDetails returns a copy with label, description and flags updated.
// Empty label or description keep the current values.
func (t ResourceType) WithDetails(label, description string, flags Flags) (ResourceType, error) {
	if flags.Shared && flags.Private {
		return ResourceType{}, fmt.Errorf("a type cannot be both shared and private")
	}
	if label != "" {
		t.label = label
	}
	if description != "" {
		t.description = description
	}
	t.flags = flags
	t.revision++
	return t, nil
}
