package api

import (
	"fmt"
	"image"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/gallery"
	"github.com/boothbuddy/boothbuddy/internal/logging"
	"github.com/boothbuddy/boothbuddy/internal/preview"
	"github.com/boothbuddy/boothbuddy/internal/strip"
)

// PreviewRoute is the path prefix of strip previews.
const PreviewRoute = "/api/v1/strips/preview/"

func composeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ComposeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		shots := cfg.Shots
		if shots <= 0 {
			shots = booth.DefaultShots
		}
		if err := strip.RequireFrames(len(req.Frames), shots); err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		if req.FrameWidth < 0 || req.FrameHeight < 0 || (req.Padding != nil && *req.Padding < 0) {
			WriteError(w, http.StatusBadRequest, "frame size and padding must not be negative", booth.CodeBadRequest)
			return
		}
		if req.FrameWidth > strip.MaxFrameSize || req.FrameHeight > strip.MaxFrameSize ||
			(req.Padding != nil && *req.Padding > strip.MaxPadding) {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("frame size is limited to %d and padding to %d", strip.MaxFrameSize, strip.MaxPadding), booth.CodeBadRequest)
			return
		}

		sources := strip.FromDataURLs(req.Frames)
		var (
			img *image.NRGBA
			err error
		)
		if req.FrameHeight > 0 {
			layout := strip.Layout{
				FrameWidth:    req.FrameWidth,
				FrameHeight:   req.FrameHeight,
				DecodeTimeout: cfg.DecodeTimeout,
			}
			if layout.FrameWidth == 0 {
				layout.FrameWidth = strip.DefaultFrameWidth
			}
			img, err = strip.ComposeBands(r.Context(), sources, layout)
		} else {
			opts := strip.VerticalOptions{
				FrameWidth:    req.FrameWidth,
				Padding:       strip.DefaultPadding,
				DecodeTimeout: cfg.DecodeTimeout,
			}
			if req.Padding != nil {
				opts.Padding = *req.Padding
			}
			img, err = strip.ComposeVertical(r.Context(), sources, opts)
		}
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}

		st, err := cfg.Gallery.CreatePreview(r.Context(), img, len(req.Frames))
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}

		logging.WithStripID(cfg.Logger, st.ID).Info("strip composed", "width", st.Width, "height", st.Height)
		WriteJSON(w, http.StatusOK, ComposeResponse{
			StripID:    st.ID,
			PreviewURL: PreviewRoute + st.ID,
			Width:      st.Width,
			Height:     st.Height,
		})
	}
}

// stripPreviewHandler serves an unsaved strip from disk. Strips that have
// been saved redirect to their stored URL.
func stripPreviewHandler(cfg ServerConfig, download bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		st, err := cfg.Gallery.GetStrip(r.Context(), id)
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}
		if st == nil || st.Status == gallery.StatusDeleted {
			WriteError(w, http.StatusNotFound, "strip not found", booth.CodeNotFound)
			return
		}

		if st.Status == gallery.StatusStored {
			if st.URL == "" {
				WriteError(w, http.StatusNotFound, "strip not found", booth.CodeNotFound)
				return
			}
			http.Redirect(w, r, st.URL, http.StatusFound)
			return
		}

		opts := preview.Options{}
		if download {
			opts.Download = true
			opts.Filename = preview.DownloadName
		}
		if err := cfg.Preview.ServeFile(w, r, st.LocalPath, opts); err != nil {
			writeErr(w, r, cfg.Logger, err)
		}
	}
}
