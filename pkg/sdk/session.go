package resdex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	resourceuc "github.com/kailas-cloud/resdex/internal/usecase/resource"
	"github.com/kailas-cloud/resdex/internal/usecase/schema"
)

// Kind selects documents or terms.
type Kind string

const (
	// Document is node-like content.
	Document Kind = Kind(domtype.KindDocument)
	// Term is a vocabulary entry.
	Term Kind = Kind(domtype.KindTerm)
)

// Session performs writes on behalf of one provider.
type Session struct {
	client *Client
	caller domprov.Caller
}

// As opens a session for the holder of an API key.
// Unknown and read-only keys are rejected.
func (c *Client) As(ctx context.Context, apiKey string) (*Session, error) {
	caller, err := c.providers.ByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if !caller.CanWrite() {
		return nil, fmt.Errorf("%w: a read-write key is required", ErrUnauthenticated)
	}
	return &Session{client: c, caller: caller}, nil
}

// AsProvider opens a read-write session for a provider by uuid.
func (c *Client) AsProvider(ctx context.Context, providerUUID string) (*Session, error) {
	p, err := c.providers.Get(ctx, providerUUID)
	if err != nil {
		return nil, fmt.Errorf("get provider %s: %w", providerUUID, err)
	}
	return &Session{client: c, caller: domprov.Caller{Provider: &p}}, nil
}

// ProviderUUID returns the uuid of the session's provider.
func (s *Session) ProviderUUID() string { return s.caller.UUID() }

// Flags are the behavior switches of a type or vocabulary.
type Flags struct {
	Shared          bool `json:"shared"`
	Private         bool `json:"private"`
	ContentAllowed  bool `json:"content_allowed"`
	FieldsAllowed   bool `json:"fields_allowed"`
	AllowDuplicates bool `json:"allow_duplicates"`
	UseRevisions    bool `json:"use_revisions"`
}

// TypeSpec describes a document type or vocabulary. MachineName is
// namespaced with the provider prefix on creation.
type TypeSpec struct {
	Kind        Kind
	MachineName string
	Label       string
	Description string
	Endpoint    string
	Flags       Flags
}

// Type is a created document type or vocabulary.
type Type struct {
	Kind        Kind   `json:"kind"`
	MachineName string `json:"machine_name"`
	Label       string `json:"label"`
	Endpoint    string `json:"endpoint"`
}

// CreateType registers a document type or vocabulary owned by the session provider.
func (s *Session) CreateType(ctx context.Context, spec TypeSpec) (_ Type, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("create_type", start, err, "machine_name", spec.MachineName) }()

	t, err := s.client.schema.CreateType(ctx, s.caller, domtype.Kind(spec.Kind), domtype.Params{
		MachineName: spec.MachineName,
		Label:       spec.Label,
		Description: spec.Description,
		Endpoint:    spec.Endpoint,
		Author:      s.caller.Provider.Name(),
		Flags:       domtype.Flags(spec.Flags),
	})
	if err != nil {
		return Type{}, fmt.Errorf("create type: %w", err)
	}
	return Type{
		Kind:        Kind(t.Kind()),
		MachineName: t.MachineName(),
		Label:       t.Label(),
		Endpoint:    t.Endpoint(),
	}, nil
}

// FieldSpec describes a field. Target is set for reference fields.
type FieldSpec struct {
	Name         string
	Type         string
	Label        string
	Multiple     bool
	Private      bool
	TargetKind   Kind
	TargetBundle string
}

// CreateField adds a field to a type or vocabulary.
func (s *Session) CreateField(ctx context.Context, kind Kind, machineName string, spec FieldSpec) (err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("create_field", start, err, "field", spec.Name) }()

	_, err = s.client.schema.CreateField(ctx, s.caller, domtype.Kind(kind), machineName, schema.FieldParams{
		Name:     spec.Name,
		Type:     field.Type(spec.Type),
		Label:    spec.Label,
		Multiple: spec.Multiple,
		Private:  spec.Private,
		Target:   field.Target{Kind: string(spec.TargetKind), Bundle: spec.TargetBundle},
	})
	if err != nil {
		return fmt.Errorf("create field %s: %w", spec.Name, err)
	}
	return nil
}

// Created identifies a new resource.
type Created struct {
	UUID  string `json:"uuid"`
	Title string `json:"title"`
}

// CreateResource creates a document or term from a request body shaped
// like the API's create payload: structural members plus field values.
func (s *Session) CreateResource(ctx context.Context, kind Kind, bundle string, body any) (_ Created, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("create_resource", start, err, "bundle", bundle) }()

	raw, err := json.Marshal(body)
	if err != nil {
		return Created{}, fmt.Errorf("encode body: %w", err)
	}
	in, p, err := resourceuc.DecodeInput(domtype.Kind(kind), raw)
	if err != nil {
		return Created{}, fmt.Errorf("decode body: %w", err)
	}
	c, err := s.client.content.Create(ctx, s.caller, domtype.Kind(kind), bundle, in, p)
	if err != nil {
		return Created{}, fmt.Errorf("create %s: %w", kind, err)
	}
	return Created{UUID: c.UUID, Title: c.Title}, nil
}

// File is a stored file version.
type File struct {
	UUID      string `json:"uuid"`
	Filename  string `json:"filename"`
	Mime      string `json:"mime"`
	Size      int64  `json:"size"`
	URI       string `json:"uri"`
	Private   bool   `json:"private"`
	MediaUUID string `json:"media_uuid,omitempty"`
}

// FileSpec describes a file to upload.
type FileSpec struct {
	Filename string
	// Mime may be empty; it is then derived from the name and content.
	Mime    string
	Private bool
	Content []byte
}

// CreateFile registers a file and writes its first content.
func (s *Session) CreateFile(ctx context.Context, spec FileSpec) (_ File, err error) {
	start := time.Now()
	defer func() { s.client.obs.observe("create_file", start, err, "filename", spec.Filename) }()

	f, err := s.client.files.CreateFile(ctx, s.caller, spec.Filename, spec.Mime, spec.Private)
	if err != nil {
		return File{}, fmt.Errorf("create file: %w", err)
	}
	w, err := s.client.files.WriteContent(ctx, s.caller, f.UUID(), spec.Content, false)
	if err != nil {
		return File{}, fmt.Errorf("write content: %w", err)
	}
	return File{
		UUID:      w.File.UUID(),
		Filename:  w.File.Filename(),
		Mime:      w.File.Mime(),
		Size:      w.File.Size(),
		URI:       w.File.URI(),
		Private:   w.File.IsPrivate(),
		MediaUUID: w.Media.UUID(),
	}, nil
}
