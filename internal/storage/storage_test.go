package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws/credentials"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"guest/strip.png", "guest/strip.png", false},
		{"/guest//strip.png", "guest/strip.png", false},
		{"guest/./strip.png", "guest/strip.png", false},
		{"../etc/passwd", "", true},
		{"guest/../../x", "", true},
		{"guest\\strip.png", "", true},
		{"", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKey(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("CleanKey(%q) error = %v, want ErrInvalidKey", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("CleanKey(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestLocalBackend_PutListDelete(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir(), "http://booth.local")
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}

	data := []byte("png bytes")
	obj, err := b.Put(ctx, "user 1/a.png", bytes.NewReader(data), int64(len(data)), "image/png")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if obj.Key != "user 1/a.png" || obj.Size != int64(len(data)) {
		t.Errorf("Put() = %+v", obj)
	}
	if obj.URL != "http://booth.local/api/v1/storage/files/user%201/a.png" {
		t.Errorf("URL = %q", obj.URL)
	}

	if _, err := b.Put(ctx, "other/b.png", strings.NewReader("x"), 1, "image/png"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	list, err := b.List(ctx, "user 1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Name() != "a.png" {
		t.Fatalf("List() = %+v", list)
	}

	p, _ := b.Path("user 1/a.png")
	got, err := os.ReadFile(p)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("stored content = %q, %v", got, err)
	}

	if err := b.Delete(ctx, "user 1/a.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := b.Delete(ctx, "user 1/a.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestLocalBackend_SizeMismatch(t *testing.T) {
	b, _ := NewLocalBackend(t.TempDir(), "")
	if _, err := b.Put(context.Background(), "u/a.png", strings.NewReader("abc"), 10, ""); err == nil {
		t.Fatal("expected size mismatch error")
	}
	list, _ := b.List(context.Background(), "")
	if len(list) != 0 {
		t.Errorf("failed Put left objects behind: %+v", list)
	}
}

func TestLocalBackend_RejectsTraversal(t *testing.T) {
	b, _ := NewLocalBackend(t.TempDir(), "")
	if _, err := b.Put(context.Background(), "../escape.png", strings.NewReader("x"), 1, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Put() error = %v, want ErrInvalidKey", err)
	}
}

// fakeS3 understands just enough of the path-style S3 API for the backend.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/strips")
	key := strings.TrimPrefix(path, "/")

	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>strips</Name><IsTruncated>false</IsTruncated>`)
		for k, v := range f.objects {
			if strings.HasPrefix(k, prefix) {
				sb.WriteString("<Contents><Key>" + k + "</Key><LastModified>2024-05-01T10:00:00.000Z</LastModified><Size>")
				sb.WriteString(strconv.Itoa(len(v)))
				sb.WriteString("</Size></Contents>")
			}
		}
		sb.WriteString("</ListBucketResult>")
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(sb.String()))
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) get(key string) ([]byte, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[key]
	return body, f.types[key], ok
}

func TestS3Backend(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	b, err := NewS3Backend(S3Config{
		Bucket:      "strips",
		Region:      "us-east-1",
		Endpoint:    srv.URL,
		PathStyle:   true,
		Credentials: credentials.NewStaticCredentials("key", "secret", ""),
	})
	if err != nil {
		t.Fatalf("NewS3Backend() error = %v", err)
	}

	ctx := context.Background()
	obj, err := b.Put(ctx, "guest/s1.png", strings.NewReader("strip"), 5, "image/png")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if obj.URL != srv.URL+"/strips/guest/s1.png" {
		t.Errorf("URL = %q", obj.URL)
	}
	if body, ctype, _ := fake.get("guest/s1.png"); string(body) != "strip" || ctype != "image/png" {
		t.Errorf("stored = %q (%s)", body, ctype)
	}

	list, err := b.List(ctx, "guest/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].Key != "guest/s1.png" || list[0].Size != 5 {
		t.Fatalf("List() = %+v", list)
	}
	if list[0].LastModified.IsZero() {
		t.Error("LastModified not parsed")
	}

	if err := b.Delete(ctx, "guest/s1.png"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, _, ok := fake.get("guest/s1.png"); ok {
		t.Error("object still present after Delete()")
	}
}

func TestS3Backend_URL(t *testing.T) {
	b := &S3Backend{cfg: S3Config{Bucket: "strips", Region: "eu-west-1"}}
	if got := b.URL("guest/a b.png"); got != "https://strips.s3.eu-west-1.amazonaws.com/guest/a%20b.png" {
		t.Errorf("URL() = %q", got)
	}
	b.cfg.PublicURL = "https://cdn.example.com/"
	if got := b.URL("guest/a.png"); got != "https://cdn.example.com/guest/a.png" {
		t.Errorf("URL() with public base = %q", got)
	}
}

func TestNewS3Backend_RequiresBucket(t *testing.T) {
	if _, err := NewS3Backend(S3Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
