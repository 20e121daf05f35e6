package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/client"
	"github.com/boothbuddy/boothbuddy/internal/gallery"
	"github.com/boothbuddy/boothbuddy/internal/kiosk"
	"github.com/boothbuddy/boothbuddy/internal/media"
	"github.com/boothbuddy/boothbuddy/internal/preview"
	"github.com/boothbuddy/boothbuddy/internal/session"
	"github.com/boothbuddy/boothbuddy/internal/storage"
)

const testToken = "test-token"

type fakeKiosk struct {
	mu         sync.Mutex
	captureErr error
	filterErr  error
	composeErr error
	saveErr    error
	cleared    int
	filter     string
	intensity  float64
	frameWidth int
	resets     int
	sess       *session.Store
}

func newFakeKiosk() *fakeKiosk {
	return &fakeKiosk{sess: session.NewStore()}
}

func (f *fakeKiosk) StartCapture() error { return f.captureErr }

func (f *fakeKiosk) ApplyFilter(ctx context.Context, filterType string, intensity float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter, f.intensity = filterType, intensity
	return f.filterErr
}

func (f *fakeKiosk) ClearFilter() {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
}

func (f *fakeKiosk) Compose(ctx context.Context, frameWidth int) error {
	f.mu.Lock()
	f.frameWidth = frameWidth
	f.mu.Unlock()
	return f.composeErr
}

func (f *fakeKiosk) Save(ctx context.Context) error { return f.saveErr }

func (f *fakeKiosk) RefreshGallery(ctx context.Context) ([]client.StripRecord, error) {
	return nil, nil
}

func (f *fakeKiosk) Reset() error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	return nil
}

func (f *fakeKiosk) Snapshot() kiosk.Snapshot {
	return kiosk.Snapshot{
		Capture: booth.State{Phase: booth.PhaseIdle},
		Shots:   booth.DefaultShots,
		User:    f.sess.Current(),
	}
}

func (f *fakeKiosk) Session() *session.Store { return f.sess }

type testEnv struct {
	router http.Handler
	repo   *gallery.SQLiteRepository
	kiosk  *fakeKiosk
	events *Broadcaster
}

func setupRouter(t *testing.T, withKiosk bool) *testEnv {
	t.Helper()

	repo := setupTestRepo(t)
	if err := repo.SetConfig(context.Background(), AuthTokenKey, testToken); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	local, err := storage.NewLocalBackend(filepath.Join(t.TempDir(), "strips"), "")
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	svc := gallery.NewService(repo, local, filepath.Join(t.TempDir(), "tmp"), nil)

	env := &testEnv{repo: repo}
	cfg := ServerConfig{
		Gallery:        svc,
		Repository:     repo,
		Preview:        preview.NewServer(nil),
		LocalStore:     local,
		AllowedOrigins: []string{"http://localhost:5173"},
		MaxBodyBytes:   8 << 20,
		Logger:         testLogger(),
		StartTime:      time.Now(),
		Version:        "test",
	}
	if withKiosk {
		env.kiosk = newFakeKiosk()
		env.events = NewBroadcaster()
		cfg.Kiosk = env.kiosk
		cfg.Events = env.events
	}
	env.router = NewRouter(cfg)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func pngDataURL(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	s, err := media.EncodeDataURL(imaging.New(w, h, c))
	if err != nil {
		t.Fatalf("EncodeDataURL() error = %v", err)
	}
	return s
}

func frames(t *testing.T, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = pngDataURL(t, 40, 30, color.NRGBA{R: uint8(i * 60), A: 255})
	}
	return out
}

func TestHealth(t *testing.T) {
	env := setupRouter(t, false)
	rr := env.do(t, http.MethodGet, "/api/health", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp HealthResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Status != "ok" || resp.Version != "test" || resp.Kiosk {
		t.Errorf("health = %+v", resp)
	}
}

func TestFilterTypes(t *testing.T) {
	env := setupRouter(t, false)
	rr := env.do(t, http.MethodGet, "/api/v1/filters/types", nil)

	var resp FilterTypesResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.Filters) != 6 || resp.Filters[0].ID != "grayscale" {
		t.Errorf("filters = %+v", resp.Filters)
	}
}

func TestApplyFilter(t *testing.T) {
	env := setupRouter(t, false)
	images := frames(t, 2)

	rr := env.do(t, http.MethodPost, "/api/v1/filters/apply", ApplyFilterRequest{Images: images, FilterType: "sepia"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp ApplyFilterResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if len(resp.FilteredImages) != 2 {
		t.Fatalf("filteredImages = %d", len(resp.FilteredImages))
	}
	for i, s := range resp.FilteredImages {
		if !strings.HasPrefix(s, "data:image/png;base64,") {
			t.Errorf("image %d is not a PNG data URL", i)
		}
	}
}

func TestApplyFilter_Errors(t *testing.T) {
	env := setupRouter(t, false)
	img := pngDataURL(t, 4, 4, color.White)
	tooStrong := 5.0

	tests := []struct {
		name string
		req  ApplyFilterRequest
		code booth.Code
	}{
		{"no images", ApplyFilterRequest{FilterType: "sepia"}, booth.CodeBadRequest},
		{"no filter", ApplyFilterRequest{Images: []string{img}}, booth.CodeBadRequest},
		{"unknown filter", ApplyFilterRequest{Images: []string{img}, FilterType: "vaporwave"}, booth.CodeBadRequest},
		{"intensity", ApplyFilterRequest{Images: []string{img}, FilterType: "blur", Intensity: &tooStrong}, booth.CodeBadRequest},
		{"bad image", ApplyFilterRequest{Images: []string{"data:image/png;base64,AAAA"}, FilterType: "sepia"}, booth.CodeDecodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/filters/apply", tt.req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if code := decodeErrorCode(t, rr.Body); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestApplyFilter_InvalidJSON(t *testing.T) {
	env := setupRouter(t, false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/filters/apply", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func composeStrip(t *testing.T, env *testEnv) ComposeResponse {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/v1/strips/compose", ComposeRequest{Frames: frames(t, 4)})
	if rr.Code != http.StatusOK {
		t.Fatalf("compose status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp ComposeResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	return resp
}

func TestCompose_Vertical(t *testing.T) {
	env := setupRouter(t, false)
	resp := composeStrip(t, env)

	if resp.StripID == "" || resp.PreviewURL != PreviewRoute+resp.StripID {
		t.Errorf("compose = %+v", resp)
	}
	wantH := 4*30 + 3*16
	if resp.Width != 40 || resp.Height != wantH {
		t.Errorf("size = %dx%d, want 40x%d", resp.Width, resp.Height, wantH)
	}
}

func TestCompose_Bands(t *testing.T) {
	env := setupRouter(t, false)
	rr := env.do(t, http.MethodPost, "/api/v1/strips/compose", ComposeRequest{Frames: frames(t, 4), FrameHeight: 50})

	var resp ComposeResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Width != 200 || resp.Height != 200 {
		t.Errorf("size = %dx%d, want 200x200", resp.Width, resp.Height)
	}
}

func TestCompose_WrongFrameCount(t *testing.T) {
	env := setupRouter(t, false)
	rr := env.do(t, http.MethodPost, "/api/v1/strips/compose", ComposeRequest{Frames: frames(t, 3)})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if code := decodeErrorCode(t, rr.Body); code != booth.CodeBadRequest {
		t.Errorf("code = %q", code)
	}
}

func TestCompose_BadFrame(t *testing.T) {
	env := setupRouter(t, false)
	in := frames(t, 4)
	in[2] = "not a data url"
	rr := env.do(t, http.MethodPost, "/api/v1/strips/compose", ComposeRequest{Frames: in})

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if code := decodeErrorCode(t, rr.Body); code != booth.CodeDecodeFailed {
		t.Errorf("code = %q, want decode_failed", code)
	}
}

// bombFrame is a 1x1 PNG whose header claims w x h pixels.
func bombFrame(t *testing.T, w, h int) string {
	t.Helper()
	data, err := media.EncodePNG(imaging.New(1, 1, color.White))
	if err != nil {
		t.Fatal(err)
	}
	binary.BigEndian.PutUint32(data[16:20], uint32(w))
	binary.BigEndian.PutUint32(data[20:24], uint32(h))
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return media.DataURL(media.MimePNG, data)
}

func TestCompose_RejectsOversized(t *testing.T) {
	hugePadding := 100000
	withBomb := func() []string {
		in := frames(t, 4)
		in[1] = bombFrame(t, 40000, 40000)
		return in
	}

	tests := []struct {
		name string
		req  ComposeRequest
	}{
		{"frame width", ComposeRequest{Frames: frames(t, 4), FrameWidth: 40000}},
		{"frame height", ComposeRequest{Frames: frames(t, 4), FrameHeight: 1 << 24}},
		{"padding", ComposeRequest{Frames: frames(t, 4), Padding: &hugePadding}},
		{"decoded frame", ComposeRequest{Frames: withBomb()}},
		{"decoded frame bands", ComposeRequest{Frames: withBomb(), FrameHeight: 50}},
	}

	env := setupRouter(t, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/strips/compose", tt.req)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
			}
			if code := decodeErrorCode(t, rr.Body); code != booth.CodeBadRequest {
				t.Errorf("code = %q, want bad_request", code)
			}
		})
	}
}

func TestApplyFilter_RejectsOversized(t *testing.T) {
	env := setupRouter(t, false)
	rr := env.do(t, http.MethodPost, "/api/v1/filters/apply", ApplyFilterRequest{
		Images:     []string{bombFrame(t, 40000, 40000)},
		FilterType: "sepia",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rr.Code, rr.Body.String())
	}
	if code := decodeErrorCode(t, rr.Body); code != booth.CodeBadRequest {
		t.Errorf("code = %q, want bad_request", code)
	}
}

func TestStripPreviewAndDownload(t *testing.T) {
	env := setupRouter(t, false)
	strip := composeStrip(t, env)

	rr := env.do(t, http.MethodGet, strip.PreviewURL, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("preview status = %d", rr.Code)
	}
	if rr.Header().Get("Content-Type") != "image/png" || rr.Body.Len() == 0 {
		t.Errorf("preview Content-Type = %q, %d bytes", rr.Header().Get("Content-Type"), rr.Body.Len())
	}

	rr = env.do(t, http.MethodGet, strip.PreviewURL, nil, "Range", "bytes=0-7")
	if rr.Code != http.StatusPartialContent || rr.Body.Len() != 8 {
		t.Errorf("range status = %d, %d bytes", rr.Code, rr.Body.Len())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/strips/"+strip.StripID+"/download", nil)
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, preview.DownloadName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rr = env.do(t, http.MethodGet, PreviewRoute+gallery.NewID(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown strip status = %d, want 404", rr.Code)
	}
}

func TestUploadFlow(t *testing.T) {
	env := setupRouter(t, false)

	rr := env.do(t, http.MethodPost, "/api/v1/storage/upload", UploadRequest{StripID: gallery.NewID()})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown strip status = %d, want 404", rr.Code)
	}
	var errResp ErrorResponse
	json.NewDecoder(rr.Body).Decode(&errResp)
	if errResp.Error.Message != "Local strip not found" {
		t.Errorf("message = %q", errResp.Error.Message)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/storage/upload", UploadRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing strip_id status = %d, want 400", rr.Code)
	}

	strip := composeStrip(t, env)
	rr = env.do(t, http.MethodPost, "/api/v1/storage/upload", UploadRequest{StripID: strip.StripID, UserID: "u1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rr.Code, rr.Body.String())
	}
	var up UploadResponse
	json.NewDecoder(rr.Body).Decode(&up)
	if !up.Success || up.Data.Path != "u1/"+strip.StripID+".png" {
		t.Fatalf("upload = %+v", up)
	}
	if up.Data.URL != storage.FilesRoute+up.Data.Path {
		t.Errorf("url = %q", up.Data.URL)
	}

	rr = env.do(t, http.MethodGet, strip.PreviewURL, nil)
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != up.Data.URL {
		t.Errorf("preview after upload = %d, Location %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.do(t, http.MethodGet, up.Data.URL, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/png" {
		t.Errorf("stored file status = %d, type %q", rr.Code, rr.Header().Get("Content-Type"))
	}

	rr = env.do(t, http.MethodGet, "/api/v1/storage/user/u1/strips", nil)
	var list UserStripsResponse
	json.NewDecoder(rr.Body).Decode(&list)
	if list.Count != 1 || list.Items[0].ID != strip.StripID || list.Items[0].Name != strip.StripID+".png" {
		t.Fatalf("list = %+v", list)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/storage/"+up.Data.Path, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/v1/storage/user/u1/strips", nil)
	json.NewDecoder(rr.Body).Decode(&list)
	if list.Count != 0 || list.Items == nil {
		t.Errorf("list after delete = %+v", list)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/storage/u1/missing.png", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", rr.Code)
	}
}

func TestPhotoSets(t *testing.T) {
	env := setupRouter(t, false)

	rr := env.do(t, http.MethodPost, "/api/v1/photos/save", SavePhotosRequest{Photos: []string{"a"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("no user status = %d, want 400", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/photos/user/u1", nil)
	if !strings.Contains(rr.Body.String(), `"photoStrips":[]`) {
		t.Errorf("empty list body = %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/photos/save", SavePhotosRequest{UserID: "u1", Photos: []string{"data:a", "data:b"}, FilterType: "sepia"})
	if rr.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", rr.Code, rr.Body.String())
	}
	var saved SavePhotosResponse
	json.NewDecoder(rr.Body).Decode(&saved)
	if !saved.Success || saved.PhotoStripID == "" {
		t.Fatalf("save = %+v", saved)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/photos/user/u1", nil)
	var list PhotoSetsResponse
	json.NewDecoder(rr.Body).Decode(&list)
	if len(list.PhotoStrips) != 1 || list.PhotoStrips[0].FilterType != "sepia" {
		t.Fatalf("list = %+v", list)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/photos/"+saved.PhotoStripID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, "/api/v1/photos/"+saved.PhotoStripID, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestBoothRoutes_AbsentWithoutKiosk(t *testing.T) {
	env := setupRouter(t, false)
	rr := env.do(t, http.MethodGet, "/api/v1/booth/state", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestBoothCapture(t *testing.T) {
	env := setupRouter(t, true)
	auth := []string{"Authorization", "Bearer " + testToken}

	rr := env.do(t, http.MethodPost, "/api/v1/booth/capture", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/booth/capture", nil, auth...)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("capture status = %d, want 202", rr.Code)
	}
	var snap kiosk.Snapshot
	json.NewDecoder(rr.Body).Decode(&snap)
	if snap.Shots != booth.DefaultShots {
		t.Errorf("snapshot = %+v", snap)
	}

	tests := []struct {
		err  error
		want int
	}{
		{booth.ErrAlreadyCapturing, http.StatusConflict},
		{booth.ErrResourceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		env.kiosk.captureErr = tt.err
		rr = env.do(t, http.MethodPost, "/api/v1/booth/capture", nil, auth...)
		if rr.Code != tt.want {
			t.Errorf("capture with %v: status = %d, want %d", tt.err, rr.Code, tt.want)
		}
	}
}

func TestBoothFilterAndCompose(t *testing.T) {
	env := setupRouter(t, true)
	auth := []string{"Authorization", "Bearer " + testToken}

	rr := env.do(t, http.MethodPost, "/api/v1/booth/filter", BoothFilterRequest{FilterType: "none"}, auth...)
	if rr.Code != http.StatusOK || env.kiosk.cleared != 1 {
		t.Errorf("filter none: status = %d, cleared = %d", rr.Code, env.kiosk.cleared)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/booth/filter", BoothFilterRequest{FilterType: "sepia"}, auth...)
	if rr.Code != http.StatusOK || env.kiosk.filter != "sepia" || env.kiosk.intensity != 1 {
		t.Errorf("filter sepia: status = %d, filter = %q@%v", rr.Code, env.kiosk.filter, env.kiosk.intensity)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/booth/filter", nil, auth...)
	if rr.Code != http.StatusOK || env.kiosk.cleared != 2 {
		t.Errorf("clear filter: status = %d, cleared = %d", rr.Code, env.kiosk.cleared)
	}

	env.kiosk.composeErr = &client.APIError{StatusCode: http.StatusInternalServerError, Message: "compositor down"}
	rr = env.do(t, http.MethodPost, "/api/v1/booth/compose", BoothComposeRequest{FrameWidth: 300}, auth...)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("compose remote failure status = %d, want 502", rr.Code)
	}
	if env.kiosk.frameWidth != 300 {
		t.Errorf("frameWidth = %d", env.kiosk.frameWidth)
	}

	env.kiosk.composeErr = kiosk.ErrNoFrames
	rr = env.do(t, http.MethodPost, "/api/v1/booth/compose", nil, auth...)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("compose without frames status = %d, want 400", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/booth/reset", nil, auth...)
	if rr.Code != http.StatusOK || env.kiosk.resets != 1 {
		t.Errorf("reset: status = %d, resets = %d", rr.Code, env.kiosk.resets)
	}
}

func TestBoothSession(t *testing.T) {
	env := setupRouter(t, true)

	put := func(body any, remote string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(body)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/booth/session", &buf)
		req.Header.Set("Authorization", "Bearer "+testToken)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		return rr
	}

	if rr := put(session.User{}, "127.0.0.1:4000"); rr.Code != http.StatusBadRequest {
		t.Errorf("empty uid status = %d, want 400", rr.Code)
	}
	if rr := put(session.User{UID: "u1"}, "192.168.0.9:4000"); rr.Code != http.StatusForbidden {
		t.Errorf("remote sign-in status = %d, want 403", rr.Code)
	}

	rr := put(session.User{UID: "u1", Email: "a@example.com"}, "127.0.0.1:4000")
	if rr.Code != http.StatusOK {
		t.Fatalf("sign-in status = %d: %s", rr.Code, rr.Body.String())
	}
	if env.kiosk.sess.UserID() != "u1" {
		t.Errorf("UserID() = %q", env.kiosk.sess.UserID())
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/booth/session", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "127.0.0.1:4000"
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || env.kiosk.sess.Current() != nil {
		t.Errorf("sign-out status = %d, user = %+v", rr.Code, env.kiosk.sess.Current())
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	ch, unsub := b.Subscribe()
	if b.Clients() != 1 {
		t.Fatalf("Clients() = %d", b.Clients())
	}

	b.Broadcast(EventSnapshot, map[string]int{"version": 3})
	select {
	case msg := <-ch:
		if msg.Event != EventSnapshot || string(msg.Data) != `{"version":3}` {
			t.Errorf("msg = %s %s", msg.Event, msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	for i := 0; i < eventBuffer*2; i++ {
		b.Broadcast(EventSnapshot, i)
	}
	if len(ch) != eventBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), eventBuffer)
	}

	unsub()
	unsub()
	if b.Clients() != 0 {
		t.Errorf("Clients() after unsub = %d", b.Clients())
	}

	b.Close()
	late, lateUnsub := b.Subscribe()
	defer lateUnsub()
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}

func TestBoothEvents_Stream(t *testing.T) {
	env := setupRouter(t, true)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/booth/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		t.Helper()
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}

	event, data := readEvent()
	if event != EventSnapshot || !strings.Contains(data, `"shots":4`) {
		t.Fatalf("initial event = %s %s", event, data)
	}

	env.events.Broadcast(EventSnapshot, map[string]string{"capture": "counting"})
	event, data = readEvent()
	if event != EventSnapshot || data != `{"capture":"counting"}` {
		t.Errorf("event = %s %s", event, data)
	}

	env.events.Close()
}
