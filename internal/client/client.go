// Package client talks to a booth API server over HTTP.
package client

import (
	"context"

	"github.com/boothbuddy/boothbuddy/internal/filters"
)

// StripRecord is one stored strip as listed for a user.
type StripRecord struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}

// ComposeResult identifies a composed strip preview.
type ComposeResult struct {
	StripID    string `json:"stripId"`
	PreviewURL string `json:"previewUrl"`
}

// UploadResult locates a strip after it has been moved to storage.
type UploadResult struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type API interface {
	FilterTypes(ctx context.Context) ([]filters.FilterSpec, error)
	ApplyFilter(ctx context.Context, images []string, filterType string, intensity float64) ([]string, error)
	ComposeStrip(ctx context.Context, frames []string, frameWidth int) (*ComposeResult, error)
	UploadStrip(ctx context.Context, stripID, userID string) (*UploadResult, error)
	ListUserStrips(ctx context.Context, userID string) ([]StripRecord, error)
	DeleteStored(ctx context.Context, path string) error
	SavePhotos(ctx context.Context, userID string, photos []string, filterType string) (string, error)
}
