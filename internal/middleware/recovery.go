package middleware

import (
	"errors"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// Recovery returns a middleware that recovers from panics. The router
// recovers handler panics itself; this catches everything around it.
func Recovery(logger observability.Logger, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				// Deliberate connection aborts must keep unwinding.
				if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(err)
				}

				logger.WithContext(r.Context()).Error("panic recovered",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.Any("error", err),
					observability.String("stack", string(debug.Stack())),
				)

				if metrics != nil {
					metrics.panicsRecovered.Inc()
				}

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, ErrInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
