// Package preview serves strip images over HTTP with byte-range support.
package preview

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DownloadName is the attachment name offered for strips.
const DownloadName = "boothbuddy_strip.png"

type Options struct {
	// Download sets an attachment Content-Disposition with Filename.
	Download bool
	Filename string
	MaxAge   time.Duration
}

type PreviewService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string, opts Options) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile writes the file, or the requested range of it. A missing file
// is answered with 404 and no error.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string, opts Options) error {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "strip not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open strip: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat strip: %w", err)
	}
	size := stat.Size()

	h := w.Header()
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))
	if opts.MaxAge > 0 {
		h.Set("Cache-Control", "private, max-age="+strconv.Itoa(int(opts.MaxAge.Seconds())))
	}
	if opts.Download {
		name := SanitizeFilename(opts.Filename, 128)
		if name == "" {
			name = DownloadName
		}
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil:
		// malformed ranges are ignored and the whole file is sent
		rng = nil
	}

	var body io.Reader = file
	status := http.StatusOK
	length := size
	if rng != nil {
		if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
		body = io.LimitReader(file, rng.Length())
		status = http.StatusPartialContent
		length = rng.Length()
		h.Set("Content-Range", rng.Header(size))
	}

	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, body); err != nil && s.logger != nil {
		s.logger.Debug("strip transfer interrupted", "path", filePath, "error", err)
	}
	return nil
}

// SanitizeFilename keeps letters, digits and a few separators, replacing
// everything else with '_', and truncates to maxLen runes.
func SanitizeFilename(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	cleaned := strings.Trim(strings.TrimSpace(b.String()), ".")
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}
