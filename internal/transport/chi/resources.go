package chi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	dombatch "github.com/kailas-cloud/resdex/internal/domain/batch"
	domres "github.com/kailas-cloud/resdex/internal/domain/resource"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	logpkg "github.com/kailas-cloud/resdex/internal/logger"
	"github.com/kailas-cloud/resdex/internal/tenancy"
	batchuc "github.com/kailas-cloud/resdex/internal/usecase/batch"
	"github.com/kailas-cloud/resdex/internal/usecase/query"
	resourceuc "github.com/kailas-cloud/resdex/internal/usecase/resource"
)

// anyEndpoint lists every type of a kind visible to the caller.
const anyEndpoint = "any"

type listResponse struct {
	Total  int                      `json:"total"`
	Offset int                      `json:"offset"`
	Limit  int                      `json:"limit"`
	Items  []query.Row              `json:"items"`
	Facets map[string][]facetBucket `json:"facets,omitempty"`
}

type facetBucket struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type createdResponse struct {
	UUID    string `json:"uuid"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type bulkError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// bulkItem carries either the created uuid or an error, never both.
type bulkItem struct {
	Index   int        `json:"index"`
	UUID    string     `json:"uuid,omitempty"`
	Message string     `json:"message,omitempty"`
	Error   *bulkError `json:"error,omitempty"`
}

type bulkResponse struct {
	Items     []bulkItem `json:"items"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

type revisionView struct {
	ID            int64            `json:"id"`
	Created       int64            `json:"created"`
	Log           string           `json:"log"`
	Default       bool             `json:"default"`
	Draft         bool             `json:"draft"`
	ProviderUUID  string           `json:"provider_uuid"`
	PublishedFrom int64            `json:"published_from,omitempty"`
	Snapshot      *domres.Snapshot `json:"snapshot,omitempty"`
}

// target is the kind and bundle a resource route addresses.
type target struct {
	kind   domtype.Kind
	bundle string
}

// resolveTarget maps {kind}/{endpoint} to a bundle. The "any" endpoint
// resolves to an empty bundle and is only valid for listing.
func (s *Server) resolveTarget(r *http.Request, allowAny bool) (target, error) {
	kind, ok := domtype.KindFromPlural(chi.URLParam(r, "kind"))
	if !ok {
		return target{}, fmt.Errorf("%w: unknown kind", domain.ErrNotFound)
	}
	endpoint := chi.URLParam(r, "endpoint")
	if endpoint == anyEndpoint && allowAny {
		return target{kind: kind}, nil
	}
	t, found, err := s.endpoints.ByEndpoint(r.Context(), kind, endpoint)
	if err != nil {
		return target{}, fmt.Errorf("resolve endpoint: %w", err)
	}
	if !found {
		return target{}, fmt.Errorf("%w: %s endpoint %q", domain.ErrNotFound, kind, endpoint)
	}
	return target{kind: kind, bundle: t.MachineName()}, nil
}

func (s *Server) handleList(optionList bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tg, err := s.resolveTarget(r, true)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		params := r.URL.Query()
		params.Del(s.opts.KeyQueryParam)

		res, err := s.lister.List(r.Context(), query.Request{
			Kind:       tg.kind,
			Bundle:     tg.bundle,
			Caller:     tenancy.CallerFromContext(r.Context()),
			Params:     params,
			OptionList: optionList,
		})
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}

		resp := listResponse{Total: res.Total, Offset: res.Offset, Limit: res.Limit, Items: res.Rows}
		if resp.Items == nil {
			resp.Items = []query.Row{}
		}
		if len(res.Facets) > 0 {
			resp.Facets = make(map[string][]facetBucket, len(res.Facets))
			for name, buckets := range res.Facets {
				out := make([]facetBucket, len(buckets))
				for i, b := range buckets {
					out[i] = facetBucket{Value: b.Value, Count: b.Count}
				}
				resp.Facets[name] = out
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	in, p, err := resourceuc.DecodeInput(tg.kind, raw)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	created, err := s.resources.Create(r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle, in, p)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/"+tg.kind.Plural()+"/"+chi.URLParam(r, "endpoint")+"/"+created.UUID)
	writeJSON(w, http.StatusCreated, createdResponse{
		UUID:    created.UUID,
		Title:   created.Title,
		Message: created.Type.Label() + " created",
	})
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	req, err := batchuc.DecodeRequest(tg.kind, raw)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results := s.bulk.Create(r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle, req)
	resp := bulkResponse{Items: make([]bulkItem, len(results))}
	for i, res := range results {
		resp.Items[i] = s.bulkItem(r, res)
		if res.Status() == dombatch.StatusOK {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) bulkItem(r *http.Request, res dombatch.Result) bulkItem {
	if res.Status() == dombatch.StatusOK {
		return bulkItem{Index: res.Index(), UUID: res.UUID(), Message: res.Message()}
	}
	status, _ := statusFor(res.Err())
	if status == http.StatusInternalServerError {
		logpkg.FromContext(r.Context()).Error("Bulk item failed",
			zap.Int("index", res.Index()),
			zap.Error(res.Err()),
		)
	}
	return bulkItem{
		Index: res.Index(),
		Error: &bulkError{Status: status, Message: safeDomainMessage(res.Err())},
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	view, err := s.resources.Get(r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle, chi.URLParam(r, "uuid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(view.RevisionID))
	writeJSON(w, http.StatusOK, view.Row)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	ifMatch, err := parseIfMatch(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	in, p, err := resourceuc.DecodeInput(tg.kind, raw)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	view, err := s.resources.Update(
		r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle, chi.URLParam(r, "uuid"),
		in, p, ifMatch,
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(view.RevisionID))
	writeJSON(w, http.StatusOK, view.Row)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	err = s.resources.Delete(r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle, chi.URLParam(r, "uuid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	revs, err := s.resources.Revisions(
		r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle, chi.URLParam(r, "uuid"),
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]revisionView, len(revs))
	for i, rev := range revs {
		items[i] = revisionToView(rev, false)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleRevision(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	rev, err := s.resources.Revision(
		r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle,
		chi.URLParam(r, "uuid"), chi.URLParam(r, "ref"),
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revisionToView(rev, true))
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	rev, err := s.resources.Publish(
		r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle,
		chi.URLParam(r, "uuid"), chi.URLParam(r, "ref"),
	)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.Header().Set("ETag", etag(rev.ID))
	writeJSON(w, http.StatusOK, revisionToView(rev, false))
}

func (s *Server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	tg, err := s.resolveTarget(r, false)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	err = s.resources.Unpublish(r.Context(), tenancy.CallerFromContext(r.Context()), tg.kind, tg.bundle, chi.URLParam(r, "uuid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func revisionToView(rev domres.Revision, withSnapshot bool) revisionView {
	v := revisionView{
		ID:            rev.ID,
		Created:       rev.Created,
		Log:           rev.Log,
		Default:       rev.Default,
		Draft:         rev.Draft(),
		ProviderUUID:  rev.ProviderUUID,
		PublishedFrom: rev.PublishedFrom,
	}
	if withSnapshot {
		snap := rev.Snapshot
		v.Snapshot = &snap
	}
	return v
}
