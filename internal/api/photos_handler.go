package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boothbuddy/boothbuddy/internal/gallery"
)

func savePhotosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SavePhotosRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		set, err := cfg.Gallery.SavePhotos(r.Context(), req.UserID, req.Photos, req.FilterType)
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusOK, SavePhotosResponse{
			Success:      true,
			PhotoStripID: set.ID,
			Message:      "Photos saved successfully",
		})
	}
}

func listPhotosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sets, err := cfg.Gallery.ListPhotos(r.Context(), chi.URLParam(r, "uid"))
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		if sets == nil {
			sets = []*gallery.PhotoSet{}
		}
		WriteJSON(w, http.StatusOK, PhotoSetsResponse{Success: true, PhotoStrips: sets})
	}
}

func deletePhotosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Gallery.DeletePhotos(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Photo strip deleted successfully"})
	}
}
