package middleware

import (
	"io"
	"net/http"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// BodyLimit returns a middleware that limits the request body size.
// Requests that declare a larger Content-Length get a 413 right away;
// bodies that grow past the limit fail on read with *http.MaxBytesError.
// Paths for which skip returns true are left unlimited.
func BodyLimit(maxSize int64, logger observability.Logger, metrics *Metrics, skip func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxSize <= 0 || (skip != nil && skip(r)) {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxSize {
				logger.Warn("request body too large",
					observability.Int64("content_length", r.ContentLength),
					observability.Int64("max_size", maxSize),
					observability.String("path", r.URL.Path),
				)

				if metrics != nil {
					metrics.bodyLimitRejected.Inc()
				}

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = io.WriteString(w, ErrRequestEntityTooLarge)
				return
			}

			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			}

			next.ServeHTTP(w, r)
		})
	}
}
