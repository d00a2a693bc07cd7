package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"detectionserver/internal/metrics"
)

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Metrics records count and latency per route template. mux.Router.Use only
// runs it for matched routes; InstrumentUnmatched covers the rest.
func Metrics(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}

// InstrumentUnmatched routes 404 and 405 responses of r through Metrics so
// they are counted under the "unmatched" route.
func InstrumentUnmatched(r *mux.Router, m *metrics.Metrics) {
	mw := Metrics(m)
	r.NotFoundHandler = mw(http.NotFoundHandler())
	r.MethodNotAllowedHandler = mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}))
}
