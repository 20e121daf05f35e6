package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/logging"
	"github.com/boothbuddy/boothbuddy/internal/preview"
)

const storedFileMaxAge = time.Hour

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UploadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.StripID == "" {
			WriteError(w, http.StatusBadRequest, "strip_id is required", booth.CodeBadRequest)
			return
		}

		st, err := cfg.Gallery.Upload(r.Context(), req.StripID, req.UserID)
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}

		logging.WithUserID(logging.WithStripID(cfg.Logger, st.ID), st.UserID).Info("strip uploaded", "path", st.StoragePath)
		WriteJSON(w, http.StatusOK, UploadResponse{
			Success: true,
			Data:    UploadData{Path: st.StoragePath, URL: st.URL},
		})
	}
}

func userStripsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := chi.URLParam(r, "uid")

		strips, err := cfg.Gallery.ListUserStrips(r.Context(), uid)
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}

		items := make([]StripRecordResponse, len(strips))
		for i, s := range strips {
			items[i] = StripToRecord(s)
		}
		WriteJSON(w, http.StatusOK, UserStripsResponse{Count: len(items), Items: items})
	}
}

func deleteStoredHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil || key == "" {
			WriteError(w, http.StatusBadRequest, "storage path is required", booth.CodeBadRequest)
			return
		}

		if err := cfg.Gallery.DeleteStored(r.Context(), key); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "Strip deleted"})
	}
}

// storedFileHandler serves objects of the local storage backend.
func storedFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid storage path", booth.CodeBadRequest)
			return
		}
		path, err := cfg.LocalStore.Path(key)
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		if err := cfg.Preview.ServeFile(w, r, path, preview.Options{MaxAge: storedFileMaxAge}); err != nil {
			writeErr(w, r, cfg.Logger, err)
		}
	}
}
