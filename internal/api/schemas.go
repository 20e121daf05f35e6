package api

import (
	"time"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/filters"
	"github.com/boothbuddy/boothbuddy/internal/gallery"
	"github.com/boothbuddy/boothbuddy/internal/session"
)

// Codes used only by the HTTP layer.
const (
	CodeUnauthorized booth.Code = "unauthorized"
	CodeForbidden    booth.Code = "forbidden"
)

type ErrorBody struct {
	Code    booth.Code `json:"code"`
	Message string     `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Kiosk   bool   `json:"kiosk"`
}

type FilterTypesResponse struct {
	Filters []filters.FilterSpec `json:"filters"`
}

type ApplyFilterRequest struct {
	Images     []string `json:"images"`
	FilterType string   `json:"filterType"`
	Intensity  *float64 `json:"intensity,omitempty"`
}

type ApplyFilterResponse struct {
	FilteredImages []string `json:"filteredImages"`
}

// ComposeRequest selects the aspect-preserving layout by default. A
// positive FrameHeight selects fixed bands of FrameWidth x FrameHeight.
type ComposeRequest struct {
	Frames      []string `json:"frames"`
	FrameWidth  int      `json:"frameWidth,omitempty"`
	FrameHeight int      `json:"frameHeight,omitempty"`
	Padding     *int     `json:"padding,omitempty"`
}

type ComposeResponse struct {
	StripID    string `json:"stripId"`
	PreviewURL string `json:"previewUrl"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type UploadRequest struct {
	StripID string `json:"strip_id"`
	UserID  string `json:"user_id"`
}

type UploadData struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type UploadResponse struct {
	Success bool       `json:"success"`
	Data    UploadData `json:"data"`
}

type StripRecordResponse struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}

type UserStripsResponse struct {
	Count int                   `json:"count"`
	Items []StripRecordResponse `json:"items"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type SavePhotosRequest struct {
	UserID     string   `json:"userId"`
	Photos     []string `json:"photos"`
	FilterType string   `json:"filterType,omitempty"`
}

type SavePhotosResponse struct {
	Success      bool   `json:"success"`
	PhotoStripID string `json:"photoStripId"`
	Message      string `json:"message"`
}

type PhotoSetsResponse struct {
	Success     bool                `json:"success"`
	PhotoStrips []*gallery.PhotoSet `json:"photoStrips"`
}

type BoothFilterRequest struct {
	FilterType string   `json:"filterType"`
	Intensity  *float64 `json:"intensity,omitempty"`
}

type BoothComposeRequest struct {
	FrameWidth int `json:"frameWidth,omitempty"`
}

type SessionResponse struct {
	User *session.User `json:"user"`
}

func StripToRecord(s *gallery.Strip) StripRecordResponse {
	return StripRecordResponse{
		Name:      s.Filename(),
		ID:        s.ID,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		URL:       s.URL,
	}
}
