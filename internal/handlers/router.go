package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"docrag/internal/auth"
	"docrag/internal/metrics"
)

// Router wires every route. Everything except /healthz and /metrics requires a bearer token.
type Router struct {
	Verifier  *auth.Verifier
	Documents *DocumentHandler
	Projects  *ProjectHandler
	Metrics   *metrics.Metrics
	// Health reports backend readiness; nil means always healthy.
	Health    func(ctx context.Context) error
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", rt.healthz)
	r.Handle("/metrics", rt.Metrics.Handler())

	r.Group(func(protected chi.Router) {
		protected.Use(rt.Verifier.Middleware)

		protected.Route("/projects", func(r chi.Router) {
			r.Post("/", rt.Projects.CreateProject)
			r.Get("/", rt.Projects.ListProjects)
		})
		protected.Route("/chats", func(r chi.Router) {
			r.Post("/", rt.Projects.CreateChat)
			r.Get("/", rt.Projects.ListChats)
		})

		protected.Route("/scopes/{scopeType}/{scopeID}", func(r chi.Router) {
			r.Delete("/", rt.Documents.DeleteScope)
			r.Get("/limits", rt.Documents.UploadLimits)
			r.Post("/query", rt.Documents.Query)

			r.Route("/documents", func(r chi.Router) {
				r.Post("/", rt.Documents.UploadDocument)
				r.Get("/", rt.Documents.ListDocuments)
				r.Delete("/{documentID}", rt.Documents.DeleteDocument)
			})
		})

		protected.Get("/documents/{documentID}/status", rt.Documents.DocumentStatus)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := rt.Health(ctx); err != nil {
			logrus.WithError(err).Warn("handler: health check failed")
			respondError(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"ip":          r.RemoteAddr,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request handled")
	})
}
