package server

import (
	"net/http"

	"github.com/cloo-solutions/attestai/internal/api"
	"github.com/cloo-solutions/attestai/internal/api/handlers"
	"github.com/cloo-solutions/attestai/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	AuthValidator    middleware.AuthValidator
	AuthHandler      *handlers.AuthHandler
	DocumentHandler  *handlers.DocumentHandler
	FrameworkHandler *handlers.FrameworkHandler
	AnalysisHandler  *handlers.AnalysisHandler
	SearchHandler    *handlers.SearchHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Chunk ingestion payloads carry full classified documents
	const maxBodyBytes int64 = 10 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.InitUpload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{documentID}", cfg.DocumentHandler.Get)
			r.Post("/{documentID}/complete", cfg.DocumentHandler.CompleteUpload)
			r.Post("/{documentID}/chunks", cfg.DocumentHandler.IngestChunks)
			r.Get("/{documentID}/download", cfg.DocumentHandler.GetDownloadURL)
		})

		r.Route("/frameworks", func(r chi.Router) {
			r.Post("/", cfg.FrameworkHandler.Import)
			r.Get("/", cfg.FrameworkHandler.List)
			r.Get("/{frameworkID}", cfg.FrameworkHandler.Get)
		})

		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", cfg.AnalysisHandler.Create)
			r.Get("/", cfg.AnalysisHandler.List)
			r.Get("/{analysisID}", cfg.AnalysisHandler.Get)
			r.Get("/{analysisID}/report", cfg.AnalysisHandler.GetReport)
			r.Get("/{analysisID}/progress", cfg.AnalysisHandler.Progress)
		})

		r.Post("/evidence/search", cfg.SearchHandler.Search)
	})

	r.Post("/orgs", cfg.AuthHandler.CreateOrg)
	r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)
	r.Delete("/apikeys/{keyID}", cfg.AuthHandler.RevokeAPIKey)

	return r
}
