package chi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/resdex/internal/domain"
	"github.com/kailas-cloud/resdex/internal/domain/media"
	domprov "github.com/kailas-cloud/resdex/internal/domain/provider"
	"github.com/kailas-cloud/resdex/internal/tenancy"
	"github.com/kailas-cloud/resdex/internal/usecase/filever"
)

type downloadKind string

const (
	downloadFiles downloadKind = filever.KindFiles
	downloadMedia downloadKind = filever.KindMedia
)

type fileView struct {
	UUID        string `json:"uuid"`
	Filename    string `json:"filename"`
	Mimetype    string `json:"mimetype"`
	Size        int64  `json:"size"`
	Private     bool   `json:"private"`
	Temporary   bool   `json:"temporary"`
	Generation  int    `json:"generation"`
	Created     int64  `json:"created"`
	MediaUUID   string `json:"media_uuid,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

type writtenView struct {
	File       fileView `json:"file"`
	MediaUUID  string   `json:"media_uuid,omitempty"`
	Revisioned bool     `json:"revisioned"`
}

type mediaRevisionView struct {
	ID           int64  `json:"id"`
	FileUUID     string `json:"file_uuid"`
	Created      int64  `json:"created"`
	Default      bool   `json:"default"`
	ProviderUUID string `json:"provider_uuid"`
}

type mediaView struct {
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	Owner     string    `json:"provider_uuid"`
	Created   int64     `json:"created"`
	Changed   int64     `json:"changed"`
	Selection string    `json:"selection,omitempty"`
	File      *fileView `json:"file,omitempty"`
}

type createFileBody struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	Private  bool   `json:"private"`
}

type selectionBody struct {
	Target string `json:"target"`
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var body createFileBody
	if !decodeBody(w, r, &body) {
		return
	}
	caller := tenancy.CallerFromContext(r.Context())
	f, err := s.files.CreateFile(r.Context(), caller, body.Filename, body.Mimetype, body.Private)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fileToView(f, caller))
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	caller := tenancy.CallerFromContext(r.Context())
	f, err := s.files.GetFile(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if (f.IsPrivate() || f.Temporary()) && !f.OwnedBy(caller.UUID()) {
		s.handleDomainError(w, r, fmt.Errorf("file %s: %w", f.UUID(), domain.ErrNotFound))
		return
	}
	v := fileToView(f, caller)
	m, err := s.files.MediaForFile(r.Context(), f.UUID())
	switch {
	case err == nil:
		v.MediaUUID = m.UUID()
	case !errors.Is(err, domain.ErrNotFound):
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleWriteContent(w http.ResponseWriter, r *http.Request) {
	newRevision, err := queryFlag(r, "revision")
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	caller := tenancy.CallerFromContext(r.Context())
	written, err := s.files.WriteContent(r.Context(), caller, chi.URLParam(r, "uuid"), data, newRevision)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, writtenView{
		File:       fileToView(written.File, caller),
		MediaUUID:  written.Media.UUID(),
		Revisioned: written.Revisioned,
	})
}

func (s *Server) handleMoveFile(private bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := tenancy.CallerFromContext(r.Context())
		move := s.files.MoveToPublic
		if private {
			move = s.files.MoveToPrivate
		}
		f, err := move(r.Context(), caller, chi.URLParam(r, "uuid"))
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, fileToView(f, caller))
	}
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	caller := tenancy.CallerFromContext(r.Context())
	m, err := s.files.GetMedia(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	view := mediaView{
		UUID:      m.UUID(),
		Name:      m.Name(),
		Owner:     m.Owner(),
		Created:   m.Created(),
		Changed:   m.Changed(),
		Selection: m.Selection(caller.UUID()),
	}
	f, err := s.files.Resolve(r.Context(), caller, m.UUID())
	switch {
	case err == nil:
		if !f.IsPrivate() || f.OwnedBy(caller.UUID()) {
			fv := fileToView(f, caller)
			view.File = &fv
		}
	case !isNotFound(err):
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMediaRevisions(w http.ResponseWriter, r *http.Request) {
	m, err := s.files.GetMedia(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	revs := m.Revisions()
	items := make([]mediaRevisionView, len(revs))
	for i, rev := range revs {
		items[i] = mediaRevisionView{
			ID:           rev.ID,
			FileUUID:     rev.FileUUID,
			Created:      rev.Created,
			Default:      rev.Default,
			ProviderUUID: rev.ProviderUUID,
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleDeleteMediaRevision(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.handleDomainError(w, r, fmt.Errorf("%w: revision id must be an integer", domain.ErrBadRequest))
		return
	}
	caller := tenancy.CallerFromContext(r.Context())
	if err := s.files.DeleteRevision(r.Context(), caller, chi.URLParam(r, "uuid"), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectVersion(w http.ResponseWriter, r *http.Request) {
	var body selectionBody
	if !decodeBody(w, r, &body) {
		return
	}
	caller := tenancy.CallerFromContext(r.Context())
	m, err := s.files.SelectVersion(r.Context(), caller, chi.URLParam(r, "uuid"), body.Target)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"uuid":      m.UUID(),
		"selection": m.Selection(caller.UUID()),
	})
}

func (s *Server) handleDownload(kind downloadKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, data, err := s.files.Download(r.Context(), filever.Target{
			Kind:         string(kind),
			UUID:         chi.URLParam(r, "uuid"),
			ProviderUUID: chi.URLParam(r, "provider"),
			Hash:         chi.URLParam(r, "hash"),
			Filename:     chi.URLParam(r, "filename"),
		})
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		ct := f.Mime()
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": f.Filename()}))
		if f.IsPrivate() {
			w.Header().Set("Cache-Control", "private, no-store")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// fileToView renders f; authenticated callers get a link signed with their own key.
func fileToView(f media.File, caller domprov.Caller) fileView {
	v := fileView{
		UUID:       f.UUID(),
		Filename:   f.Filename(),
		Mimetype:   f.Mime(),
		Size:       f.Size(),
		Private:    f.IsPrivate(),
		Temporary:  f.Temporary(),
		Generation: f.Generation(),
		Created:    f.Created(),
	}
	if caller.Provider != nil && !f.Temporary() && caller.Provider.SharedSecret() != "" {
		v.DownloadURL = filever.SignedPath(filever.KindFiles, f.UUID(), *caller.Provider, f.Filename())
	}
	return v
}

func queryFlag(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", domain.ErrBadRequest, name)
	}
	return b, nil
}
