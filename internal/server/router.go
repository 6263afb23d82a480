// Package server assembles the HTTP routing table from configured handlers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quill-labs/quillai/internal/api"
	"github.com/quill-labs/quillai/internal/api/handlers"
	"github.com/quill-labs/quillai/internal/api/middleware"
)

// Request bodies larger than this are rejected before handlers run.
const maxRequestBody int64 = 5 * 1024 * 1024

// RouterConfig carries the handlers and the API key validator the router
// mounts. All fields are required.
type RouterConfig struct {
	AuthValidator       middleware.AuthValidator
	ItemHandler         *handlers.ItemHandler
	SearchHandler       *handlers.SearchHandler
	ConversationHandler *handlers.ConversationHandler
	FileHandler         *handlers.FileHandler
	AuthHandler         *handlers.AuthHandler
}

// NewRouter returns the full HTTP handler. Everything except /health,
// /workspaces and /apikeys sits behind API key authentication.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxRequestBody))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))
		mountProtected(r, cfg)
	})

	// Provisioning endpoints stay open so a fresh deployment can create
	// its first workspace and key.
	r.Post("/workspaces", cfg.AuthHandler.CreateWorkspace)
	r.Post("/apikeys", cfg.AuthHandler.CreateAPIKey)

	return r
}

func mountProtected(r chi.Router, cfg RouterConfig) {
	r.Route("/items", func(r chi.Router) {
		r.Post("/", cfg.ItemHandler.Create)
		r.Get("/", cfg.ItemHandler.List)
		r.Get("/{id}", cfg.ItemHandler.Get)
		r.Put("/{id}", cfg.ItemHandler.Update)
		r.Delete("/{id}", cfg.ItemHandler.Delete)
	})

	r.Post("/search", cfg.SearchHandler.Search)

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", cfg.ConversationHandler.Create)
		r.Get("/", cfg.ConversationHandler.List)
		r.Get("/{id}", cfg.ConversationHandler.Get)
		r.Delete("/{id}", cfg.ConversationHandler.Delete)
		r.Get("/{id}/messages", cfg.ConversationHandler.Messages)
		r.Post("/{id}/messages", cfg.ConversationHandler.Ask)
	})

	r.Route("/files", func(r chi.Router) {
		r.Post("/init", cfg.FileHandler.InitUpload)
		r.Post("/complete", cfg.FileHandler.CompleteUpload)
		r.Get("/{id}/download", cfg.FileHandler.GetDownloadURL)
		r.Delete("/{id}", cfg.FileHandler.Delete)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}
