package api

import (
	"net/http"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/filters"
)

func filterTypesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, FilterTypesResponse{Filters: filters.Catalog()})
	}
}

func applyFilterHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ApplyFilterRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if len(req.Images) == 0 {
			WriteError(w, http.StatusBadRequest, "images is required", booth.CodeBadRequest)
			return
		}
		if req.FilterType == "" {
			WriteError(w, http.StatusBadRequest, "filterType is required", booth.CodeBadRequest)
			return
		}
		intensity := filters.DefaultIntensity
		if req.Intensity != nil {
			intensity = *req.Intensity
		}

		out, err := filters.ApplyAll(r.Context(), req.Images, req.FilterType, intensity)
		if err != nil {
			writeErr(w, r, cfg.Logger, err)
			return
		}

		WriteJSON(w, http.StatusOK, ApplyFilterResponse{FilteredImages: out})
	}
}
