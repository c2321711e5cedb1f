package chi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/resdex/internal/domain"
	logpkg "github.com/kailas-cloud/resdex/internal/logger"
	"github.com/kailas-cloud/resdex/internal/tenancy"
)

// exemptPaths are routes that never look up a key (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// APIKeyMiddleware resolves the API key of a request into a caller.
// The key is read from header, then "Authorization: Bearer", then the
// query parameter. A missing or unknown key leaves the request anonymous;
// write operations reject anonymous callers further in.
func APIKeyMiddleware(callers Callers, header, queryParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok || callers == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := extractKey(r, header, queryParam)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			caller, err := callers.ByAPIKey(r.Context(), key)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					logpkg.FromContext(r.Context()).Warn("API key lookup failed", zap.Error(err))
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := tenancy.WithCaller(r.Context(), caller)
			ctx = logpkg.With(ctx, zap.String("provider_uuid", caller.UUID()))
			trackCaller(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request, header, queryParam string) string {
	if header != "" {
		if k := strings.TrimSpace(r.Header.Get(header)); k != "" {
			return k
		}
	}
	const bearerPrefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
		if k := strings.TrimSpace(auth[len(bearerPrefix):]); k != "" {
			return k
		}
	}
	if queryParam != "" {
		return r.URL.Query().Get(queryParam)
	}
	return ""
}
