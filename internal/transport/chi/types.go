package chi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/resdex/internal/domain"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/domain/resourcetype/field"
	"github.com/kailas-cloud/resdex/internal/tenancy"
	"github.com/kailas-cloud/resdex/internal/usecase/access"
	"github.com/kailas-cloud/resdex/internal/usecase/schema"
)

type fieldView struct {
	Name     string        `json:"name"`
	Type     field.Type    `json:"type"`
	Label    string        `json:"label"`
	Multiple bool          `json:"multiple"`
	Private  bool          `json:"private"`
	Target   *field.Target `json:"target,omitempty"`
}

type typeView struct {
	MachineName  string        `json:"machine_name"`
	Label        string        `json:"label"`
	Description  string        `json:"description"`
	Endpoint     string        `json:"endpoint"`
	Author       string        `json:"author,omitempty"`
	ProviderUUID string        `json:"provider_uuid"`
	Flags        domtype.Flags `json:"flags"`
	Fields       []fieldView   `json:"fields"`
	Created      int64         `json:"created"`
}

// flagsBody accepts flags either nested under "flags" or at the top level.
type flagsBody struct {
	Shared          *bool `json:"shared"`
	Private         *bool `json:"private"`
	ContentAllowed  *bool `json:"content_allowed"`
	FieldsAllowed   *bool `json:"fields_allowed"`
	AllowDuplicates *bool `json:"allow_duplicates"`
	UseRevisions    *bool `json:"use_revisions"`
}

func (b flagsBody) apply(f domtype.Flags) domtype.Flags {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&f.Shared, b.Shared)
	set(&f.Private, b.Private)
	set(&f.ContentAllowed, b.ContentAllowed)
	set(&f.FieldsAllowed, b.FieldsAllowed)
	set(&f.AllowDuplicates, b.AllowDuplicates)
	set(&f.UseRevisions, b.UseRevisions)
	return f
}

type typeBody struct {
	flagsBody
	MachineName string      `json:"machine_name"`
	Name        string      `json:"name"`
	Label       *string     `json:"label"`
	Description *string     `json:"description"`
	Endpoint    string      `json:"endpoint"`
	Author      string      `json:"author"`
	Flags       *flagsBody  `json:"flags"`
	Fields      []fieldBody `json:"fields"`
}

func (b typeBody) flags(base domtype.Flags) domtype.Flags {
	f := b.flagsBody.apply(base)
	if b.Flags != nil {
		f = b.Flags.apply(f)
	}
	return f
}

type fieldBody struct {
	Name     string       `json:"name"`
	Type     field.Type   `json:"type"`
	Label    *string      `json:"label"`
	Multiple bool         `json:"multiple"`
	Private  *bool        `json:"private"`
	Target   field.Target `json:"target"`
}

func (s *Server) typeRoutes(r chi.Router, kind domtype.Kind) {
	r.Get("/", s.handleListTypes(kind))
	r.Post("/", s.handleCreateType(kind))
	r.Get("/{name}", s.handleGetType(kind))
	r.Patch("/{name}", s.handleUpdateType(kind))
	r.Delete("/{name}", s.handleDeleteType(kind))
	r.Post("/{name}/fields", s.handleCreateField(kind))
	r.Patch("/{name}/fields/{field}", s.handleUpdateField(kind))
	r.Delete("/{name}/fields/{field}", s.handleDeleteField(kind))
}

func (s *Server) handleListTypes(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := tenancy.CallerFromContext(r.Context())
		types, err := s.schema.ListTypes(r.Context(), caller, kind)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		items := make([]typeView, len(types))
		for i, t := range types {
			items[i] = typeToView(t, caller.UUID())
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (s *Server) handleGetType(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := tenancy.CallerFromContext(r.Context())
		t, err := s.schema.GetType(r.Context(), caller, kind, chi.URLParam(r, "name"))
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		w.Header().Set("ETag", etag(int64(t.Revision())))
		writeJSON(w, http.StatusOK, typeToView(t, caller.UUID()))
	}
}

func (s *Server) handleCreateType(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body typeBody
		if !decodeBody(w, r, &body) {
			return
		}
		name := body.MachineName
		if name == "" {
			name = body.Name
		}
		p := domtype.Params{
			MachineName: name,
			Endpoint:    body.Endpoint,
			Author:      body.Author,
			Flags:       body.flags(domtype.Flags{}),
		}
		if body.Label != nil {
			p.Label = *body.Label
		}
		if body.Description != nil {
			p.Description = *body.Description
		}

		caller := tenancy.CallerFromContext(r.Context())
		t, err := s.schema.CreateType(r.Context(), caller, kind, p)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		for _, fb := range body.Fields {
			if _, err := s.schema.CreateField(r.Context(), caller, kind, t.MachineName(), fb.params()); err != nil {
				s.handleDomainError(w, r, fmt.Errorf("field %q: %w", fb.Name, err))
				return
			}
		}
		if len(body.Fields) > 0 {
			if t, err = s.schema.GetType(r.Context(), caller, kind, t.MachineName()); err != nil {
				s.handleDomainError(w, r, err)
				return
			}
		}
		writeJSON(w, http.StatusCreated, typeToView(t, caller.UUID()))
	}
}

func (s *Server) handleUpdateType(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body typeBody
		if !decodeBody(w, r, &body) {
			return
		}
		caller := tenancy.CallerFromContext(r.Context())
		name := chi.URLParam(r, "name")
		cur, err := s.schema.GetType(r.Context(), caller, kind, name)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		label, description := cur.Label(), cur.Description()
		if body.Label != nil {
			label = *body.Label
		}
		if body.Description != nil {
			description = *body.Description
		}
		t, err := s.schema.UpdateType(r.Context(), caller, kind, name, label, description, body.flags(cur.Flags()))
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, typeToView(t, caller.UUID()))
	}
}

func (s *Server) handleDeleteType(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := tenancy.CallerFromContext(r.Context())
		if err := s.schema.DeleteType(r.Context(), caller, kind, chi.URLParam(r, "name")); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleCreateField(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body fieldBody
		if !decodeBody(w, r, &body) {
			return
		}
		caller := tenancy.CallerFromContext(r.Context())
		def, err := s.schema.CreateField(r.Context(), caller, kind, chi.URLParam(r, "name"), body.params())
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, fieldToView(def))
	}
}

func (s *Server) handleUpdateField(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body fieldBody
		if !decodeBody(w, r, &body) {
			return
		}
		caller := tenancy.CallerFromContext(r.Context())
		name, fieldName := chi.URLParam(r, "name"), chi.URLParam(r, "field")
		t, err := s.schema.GetType(r.Context(), caller, kind, name)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		cur, ok := t.FieldByName(fieldName)
		if !ok {
			s.handleDomainError(w, r, fmt.Errorf("field %q: %w", fieldName, domain.ErrNotFound))
			return
		}
		label, private := cur.Label(), cur.Private()
		if body.Label != nil {
			label = *body.Label
		}
		if body.Private != nil {
			private = *body.Private
		}
		def, err := s.schema.UpdateField(r.Context(), caller, kind, name, fieldName, label, private)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fieldToView(def))
	}
}

func (s *Server) handleDeleteField(kind domtype.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := tenancy.CallerFromContext(r.Context())
		err := s.schema.DeleteField(r.Context(), caller, kind, chi.URLParam(r, "name"), chi.URLParam(r, "field"))
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (b fieldBody) params() schema.FieldParams {
	p := schema.FieldParams{
		Name:     b.Name,
		Type:     b.Type,
		Multiple: b.Multiple,
		Target:   b.Target,
	}
	if b.Label != nil {
		p.Label = *b.Label
	}
	if b.Private != nil {
		p.Private = *b.Private
	}
	return p
}

func typeToView(t domtype.ResourceType, provider string) typeView {
	defs := access.ReadableFields(t, provider)
	fields := make([]fieldView, len(defs))
	for i, d := range defs {
		fields[i] = fieldToView(d)
	}
	return typeView{
		MachineName:  t.MachineName(),
		Label:        t.Label(),
		Description:  t.Description(),
		Endpoint:     t.Endpoint(),
		Author:       t.Author(),
		ProviderUUID: t.Owner(),
		Flags:        t.Flags(),
		Fields:       fields,
		Created:      t.CreatedAt(),
	}
}

func fieldToView(d field.Definition) fieldView {
	v := fieldView{
		Name:     d.Name(),
		Type:     d.FieldType(),
		Label:    d.Label(),
		Multiple: d.Multiple(),
		Private:  d.Private(),
	}
	if d.FieldType().IsReference() {
		target := d.Target()
		v.Target = &target
	}
	return v
}

// decodeBody decodes a JSON request body, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return false
	}
	return true
}
