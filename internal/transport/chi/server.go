package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	domtype "github.com/kailas-cloud/resdex/internal/domain/resourcetype"
	"github.com/kailas-cloud/resdex/internal/metrics"
	"github.com/kailas-cloud/resdex/internal/tenancy"
	healthuc "github.com/kailas-cloud/resdex/internal/usecase/health"
	"github.com/kailas-cloud/resdex/internal/version"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, r *http.Request, err error) bool

// Options configures the router.
type Options struct {
	// KeyHeader is the header carrying the API key; "Authorization: Bearer" is always accepted.
	KeyHeader string
	// KeyQueryParam is the query parameter carrying the API key.
	KeyQueryParam string
	CORSOrigins   []string
	// MaxUploadBytes bounds file content uploads.
	MaxUploadBytes int64
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		KeyHeader:      "X-API-Key",
		KeyQueryParam:  "api_key",
		MaxUploadBytes: 256 << 20,
	}
}

// Server exposes the resdex HTTP API.
type Server struct {
	callers       Callers
	endpoints     Endpoints
	schema        Schema
	resources     Resources
	lister        Lister
	bulk          Bulk
	files         Files
	health        Health
	logger        *zap.Logger
	opts          Options
	errorHandlers []errorHandler
}

// Deps groups the services behind the API.
type Deps struct {
	Callers   Callers
	Endpoints Endpoints
	Schema    Schema
	Resources Resources
	Lister    Lister
	Bulk      Bulk
	Files     Files
	Health    Health
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps, logger *zap.Logger, opts Options) *Server {
	def := DefaultOptions()
	if opts.KeyHeader == "" {
		opts.KeyHeader = def.KeyHeader
	}
	if opts.KeyQueryParam == "" {
		opts.KeyQueryParam = def.KeyQueryParam
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = def.MaxUploadBytes
	}
	s := &Server{
		callers:   deps.Callers,
		endpoints: deps.Endpoints,
		schema:    deps.Schema,
		resources: deps.Resources,
		lister:    deps.Lister,
		bulk:      deps.Bulk,
		files:     deps.Files,
		health:    deps.Health,
		logger:    logger,
		opts:      opts,
	}
	s.errorHandlers = []errorHandler{revisionConflictHandler}
	for _, m := range errorStatuses[1:] {
		s.errorHandlers = append(s.errorHandlers, sentinelHandler(m.sentinel, m.status, m.code))
	}
	return s
}

// Routes builds the router with all middleware and endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "If-Match", s.opts.KeyHeader},
			ExposedHeaders: []string{"ETag", "X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Use(APIKeyMiddleware(s.callers, s.opts.KeyHeader, s.opts.KeyQueryParam))
	r.Use(metrics.Middleware())

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/me", s.handleMe)

	r.Route("/types", func(r chi.Router) { s.typeRoutes(r, domtype.KindDocument) })
	r.Route("/vocabularies", func(r chi.Router) { s.typeRoutes(r, domtype.KindTerm) })

	r.Route("/files", func(r chi.Router) {
		r.Post("/", s.handleCreateFile)
		r.Get("/{uuid}", s.handleGetFile)
		r.Put("/{uuid}/content", s.handleWriteContent)
		r.Post("/{uuid}/private", s.handleMoveFile(true))
		r.Post("/{uuid}/public", s.handleMoveFile(false))
		r.Get("/{uuid}/{provider}/{hash}/{filename}", s.handleDownload(downloadFiles))
	})
	r.Route("/media", func(r chi.Router) {
		r.Get("/{uuid}", s.handleGetMedia)
		r.Get("/{uuid}/revisions", s.handleMediaRevisions)
		r.Delete("/{uuid}/revisions/{id}", s.handleDeleteMediaRevision)
		r.Put("/{uuid}/selection", s.handleSelectVersion)
		r.Get("/{uuid}/{provider}/{hash}/{filename}", s.handleDownload(downloadMedia))
	})

	r.Route("/{kind:documents|terms}/{endpoint}", func(r chi.Router) {
		r.Get("/", s.handleList(false))
		r.Post("/", s.handleCreate)
		r.Get("/options", s.handleList(true))
		r.Post("/bulk", s.handleBulk)
		r.Route("/{uuid}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Patch("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Get("/revisions", s.handleRevisions)
			r.Get("/revisions/{ref}", s.handleRevision)
			r.Post("/revisions/{ref}/publish", s.handlePublish)
			r.Post("/unpublish", s.handleUnpublish)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders {"message": ...} and records the error code on the request event.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if ev := eventFromContext(r.Context()); ev != nil {
		ev.errorCode = code
	}
	writeJSON(w, status, map[string]string{"message": message})
}

// safeDomainMessage returns a client message that only exposes messages of sentinel errors.
// errorStatuses maps sentinels to responses, first match wins. The revision
// conflict entry comes first; its handler also sets ETag.
var errorStatuses = []struct {
	sentinel error
	status   int
	code     string
}{
	{domain.ErrRevisionConflict, http.StatusConflict, "revision_conflict"},
	{domain.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{domain.ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{domain.ErrConflict, http.StatusBadRequest, "conflict"},
	{domain.ErrUnknownField, http.StatusBadRequest, "unknown_field"},
	{domain.ErrTransientBackend, http.StatusBadRequest, "backend_unavailable"},
	{domain.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{domain.ErrUnauthenticated, http.StatusForbidden, "unauthenticated"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUnsupported, http.StatusPreconditionFailed, "unsupported"},
}

// statusFor returns the HTTP status and code err is answered with.
func statusFor(err error) (int, string) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.sentinel) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// safeDomainMessage hides messages of errors outside the sentinel table.
func safeDomainMessage(err error) string {
	if status, _ := statusFor(err); status == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, r, status, code, safeDomainMessage(err))
		return true
	}
}

// revisionConflictHandler answers a failed If-Match with the current revision as ETag.
func revisionConflictHandler(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, domain.ErrRevisionConflict) {
		return false
	}
	var rce *domain.RevisionConflictError
	if errors.As(err, &rce) {
		w.Header().Set("ETag", etag(rce.CurrentRevision))
	}
	writeError(w, r, http.StatusConflict, "revision_conflict", safeDomainMessage(err))
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if maxAge, ok := domain.CacheMaxAge(err); ok {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	}
	for _, h := range s.errorHandlers {
		if h(w, r, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, "internal_error", "internal error")
}

func etag(rev int64) string { return strconv.Quote(strconv.FormatInt(rev, 10)) }

// parseIfMatch reads an optional If-Match revision id.
func parseIfMatch(r *http.Request) (*int64, error) {
	raw := r.Header.Get("If-Match")
	if raw == "" {
		return nil, nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = unq
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: If-Match must be a revision id", domain.ErrBadRequest)
	}
	return &id, nil
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

type meView struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Prefix   string `json:"prefix"`
	ReadOnly bool   `json:"read_only"`
}

// handleMe describes the provider behind the presented key.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := tenancy.CallerFromContext(r.Context())
	if caller.IsAnonymous() {
		s.handleDomainError(w, r, fmt.Errorf("%w: no valid API key", domain.ErrUnauthenticated))
		return
	}
	p := caller.Provider
	writeJSON(w, http.StatusOK, meView{UUID: p.UUID(), Name: p.Name(), Prefix: p.Prefix(), ReadOnly: caller.ReadOnly})
}

type healthResponse struct {
	Status  healthuc.Status                 `json:"status"`
	Checks  map[string]healthuc.CheckResult `json:"checks"`
	Version string                          `json:"version"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{
		Status:  report.Status,
		Checks:  report.Checks,
		Version: version.Version,
	})
}
