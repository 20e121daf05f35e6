package api

import (
	"net/http"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/filters"
	"github.com/boothbuddy/boothbuddy/internal/session"
)

func boothStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
	}
}

func boothCaptureHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Kiosk.StartCapture(); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, cfg.Kiosk.Snapshot())
	}
}

func boothFilterHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BoothFilterRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if req.FilterType == "" || req.FilterType == filters.None {
			cfg.Kiosk.ClearFilter()
			WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
			return
		}

		intensity := filters.DefaultIntensity
		if req.Intensity != nil {
			intensity = *req.Intensity
		}
		if err := cfg.Kiosk.ApplyFilter(r.Context(), req.FilterType, intensity); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
	}
}

func boothClearFilterHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Kiosk.ClearFilter()
		WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
	}
}

func boothComposeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BoothComposeRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		if err := cfg.Kiosk.Compose(r.Context(), req.FrameWidth); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
	}
}

func boothSaveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Kiosk.Save(r.Context()); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
	}
}

func boothGalleryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := cfg.Kiosk.RefreshGallery(r.Context()); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
	}
}

func boothResetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Kiosk.Reset(); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Kiosk.Snapshot())
	}
}

func signInHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u session.User
		if !decodeJSON(w, r, &u) {
			return
		}
		if u.UID == "" {
			WriteError(w, http.StatusBadRequest, "uid is required", booth.CodeBadRequest)
			return
		}

		cfg.Kiosk.Session().SignIn(u)
		cfg.Logger.Info("kiosk user signed in", "user_id", u.UID)
		WriteJSON(w, http.StatusOK, SessionResponse{User: cfg.Kiosk.Session().Current()})
	}
}

func signOutHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Kiosk.Session().SignOut()
		WriteJSON(w, http.StatusOK, SessionResponse{})
	}
}
