package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/psantana5/regionocr/pkg/logging"
	"github.com/psantana5/regionocr/pkg/metrics"
	"github.com/psantana5/regionocr/pkg/middleware"
	"github.com/psantana5/regionocr/pkg/tracing"
)

// RouterOptions selects the cross-cutting middleware around the job routes
type RouterOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics  // nil disables HTTP instruments
	Tracing *tracing.Provider // nil disables request spans

	// ServeMetrics exposes /metrics on this router
	ServeMetrics bool
}

// NewRouter builds the API router for h
func NewRouter(h *JobHandler, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Use(middleware.RequestID)
	if opts.Logger != nil {
		r.Use(middleware.Logging(opts.Logger))
	}
	if opts.Tracing != nil {
		r.Use(tracing.HTTPMiddleware(opts.Tracing))
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		if opts.ServeMetrics {
			r.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")
		}
	}

	h.RegisterRoutes(r)
	return r
}
