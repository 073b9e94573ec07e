package middleware

import (
	"net/http"
	"unicode"

	apperrors "bookswap/pkg/errors"
	httputil "bookswap/pkg/http"
	"bookswap/pkg/logger"
	"bookswap/pkg/sanitizer"
)

const maxRequesterIDLength = 128

// Requester normalizes the X-User-ID header set by the gateway and rejects
// values no gateway would produce. Whether the header is required is left
// to the handlers.
func Requester(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(httputil.HeaderUserID)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			id := sanitizer.TrimAndNormalize(raw)
			if !validRequesterID(id) {
				log.Warn("Rejected malformed requester id",
					"request_id", RequestIDFrom(r.Context()),
					"path", r.URL.Path,
				)
				err := apperrors.InvalidInput("malformed " + httputil.HeaderUserID + " header")
				if writeErr := httputil.WriteError(w, err); writeErr != nil {
					log.Error("failed to write error response", "handler", "Requester", "operation", "WriteError", "error", writeErr)
				}
				return
			}

			r.Header.Set(httputil.HeaderUserID, id)
			next.ServeHTTP(w, r)
		})
	}
}

func validRequesterID(id string) bool {
	if id == "" || len(id) > maxRequesterIDLength {
		return false
	}
	for _, c := range id {
		if unicode.IsSpace(c) || unicode.IsControl(c) {
			return false
		}
	}
	return true
}
