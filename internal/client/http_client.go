package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boothbuddy/boothbuddy/internal/filters"
)

const (
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 64 << 20
	maxErrorBytes    = 4096
)

// HTTPClient is the API implementation backed by a booth API server.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger,
	}
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) FilterTypes(ctx context.Context) ([]filters.FilterSpec, error) {
	var resp struct {
		Filters []filters.FilterSpec `json:"filters"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/filters/types", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Filters, nil
}

func (c *HTTPClient) ApplyFilter(ctx context.Context, images []string, filterType string, intensity float64) ([]string, error) {
	req := map[string]any{
		"images":     images,
		"filterType": filterType,
		"intensity":  intensity,
	}
	var resp struct {
		FilteredImages []string `json:"filteredImages"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/filters/apply", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.FilteredImages) != len(images) {
		return nil, fmt.Errorf("filter returned %d images for %d frames", len(resp.FilteredImages), len(images))
	}
	return resp.FilteredImages, nil
}

func (c *HTTPClient) ComposeStrip(ctx context.Context, frames []string, frameWidth int) (*ComposeResult, error) {
	req := map[string]any{
		"frames":     frames,
		"frameWidth": frameWidth,
	}
	var resp ComposeResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/strips/compose", req, &resp); err != nil {
		return nil, err
	}
	if resp.StripID == "" {
		return nil, fmt.Errorf("compose response has no stripId")
	}
	resp.PreviewURL = c.resolve(resp.PreviewURL)
	return &resp, nil
}

func (c *HTTPClient) UploadStrip(ctx context.Context, stripID, userID string) (*UploadResult, error) {
	req := map[string]string{
		"strip_id": stripID,
		"user_id":  userID,
	}
	var resp struct {
		Success bool         `json:"success"`
		Data    UploadResult `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/storage/upload", req, &resp); err != nil {
		return nil, err
	}
	resp.Data.URL = c.resolve(resp.Data.URL)
	return &resp.Data, nil
}

func (c *HTTPClient) ListUserStrips(ctx context.Context, userID string) ([]StripRecord, error) {
	var resp struct {
		Count int           `json:"count"`
		Items []StripRecord `json:"items"`
	}
	path := "/api/v1/storage/user/" + url.PathEscape(userID) + "/strips"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Items {
		resp.Items[i].URL = c.resolve(resp.Items[i].URL)
	}
	return resp.Items, nil
}

func (c *HTTPClient) DeleteStored(ctx context.Context, path string) error {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/storage/"+strings.Join(segments, "/"), nil, nil)
}

func (c *HTTPClient) SavePhotos(ctx context.Context, userID string, photos []string, filterType string) (string, error) {
	req := map[string]any{
		"userId":     userID,
		"photos":     photos,
		"filterType": filterType,
	}
	var resp struct {
		Success      bool   `json:"success"`
		PhotoStripID string `json:"photoStripId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/photos/save", req, &resp); err != nil {
		return "", err
	}
	return resp.PhotoStripID, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Debug("booth api call",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return parseAPIError(resp.StatusCode, data)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBytes))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// resolve turns server-relative URLs into absolute ones.
func (c *HTTPClient) resolve(ref string) string {
	if ref == "" || !strings.HasPrefix(ref, "/") {
		return ref
	}
	return c.baseURL + ref
}
