package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"session-rag/internal/api/middleware"
	"session-rag/internal/config"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *Handler, serverConfig *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger(log.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   AllowedOrigins(serverConfig.FrontendURL),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimiddleware.Timeout(serverConfig.RequestTimeout))

	RegisterRoutes(r, h, serverConfig.APIPrefix)
	return r
}

// AllowedOrigins is the frontend url plus the local streamlit defaults.
func AllowedOrigins(frontendURL string) []string {
	origins := []string{"http://localhost:8501", "http://127.0.0.1:8501"}
	if frontendURL != "" && frontendURL != origins[0] && frontendURL != origins[1] {
		origins = append([]string{frontendURL}, origins...)
	}
	return origins
}
