package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/boothbuddy/boothbuddy/internal/booth"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins))
	r.Use(BodyLimit(cfg.MaxBodyBytes))

	r.Get("/api/health", healthHandler(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/filters/types", filterTypesHandler(cfg))
		r.Post("/filters/apply", applyFilterHandler(cfg))

		r.Post("/strips/compose", composeHandler(cfg))
		r.Get("/strips/preview/{id}", stripPreviewHandler(cfg, false))
		r.Head("/strips/preview/{id}", stripPreviewHandler(cfg, false))
		r.Get("/strips/{id}/download", stripPreviewHandler(cfg, true))
		r.Head("/strips/{id}/download", stripPreviewHandler(cfg, true))

		r.Post("/storage/upload", uploadHandler(cfg))
		r.Get("/storage/user/{uid}/strips", userStripsHandler(cfg))
		if cfg.LocalStore != nil {
			r.Get("/storage/files/*", storedFileHandler(cfg))
			r.Head("/storage/files/*", storedFileHandler(cfg))
		}
		r.Delete("/storage/*", deleteStoredHandler(cfg))

		r.Post("/photos/save", savePhotosHandler(cfg))
		r.Get("/photos/user/{uid}", listPhotosHandler(cfg))
		r.Delete("/photos/{id}", deletePhotosHandler(cfg))

		if cfg.Kiosk != nil {
			r.Route("/booth", func(r chi.Router) {
				r.Get("/state", boothStateHandler(cfg))
				if cfg.Events != nil {
					r.Get("/events", boothEventsHandler(cfg))
				}

				r.Group(func(r chi.Router) {
					r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

					r.Post("/capture", boothCaptureHandler(cfg))
					r.Post("/filter", boothFilterHandler(cfg))
					r.Delete("/filter", boothClearFilterHandler(cfg))
					r.Post("/compose", boothComposeHandler(cfg))
					r.Post("/save", boothSaveHandler(cfg))
					r.Post("/gallery/refresh", boothGalleryHandler(cfg))
					r.Post("/reset", boothResetHandler(cfg))
					r.With(LoopbackGuard()).Put("/session", signInHandler(cfg))
					r.With(LoopbackGuard()).Delete("/session", signOutHandler(cfg))
				})
			})
		}
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
			Kiosk:   cfg.Kiosk != nil,
		})
	}
}

// decodeJSON reads the request body into v, answering the request itself
// when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request body too large", booth.CodeBadRequest)
			return false
		}
		WriteError(w, http.StatusBadRequest, "invalid JSON body", booth.CodeBadRequest)
		return false
	}
	return true
}
