// Package camera provides live video sources for the capture sequencer.
package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultFormat = "v4l2"

	maxStderrBytes = 4096
)

var ErrClosed = errors.New("camera is closed")

// FFmpegSource grabs single PNG frames from a device through ffmpeg.
type FFmpegSource struct {
	device string
	format string
	logger *slog.Logger

	mu     sync.RWMutex
	open   bool
	width  int
	height int

	// one ffmpeg process may hold the device at a time
	grabMu sync.Mutex
}

func NewFFmpegSource(device, format string, logger *slog.Logger) *FFmpegSource {
	if device == "" {
		device = DefaultDevice
	}
	return &FFmpegSource{device: device, format: format, logger: logger}
}

// Open learns the frame size, first from ffprobe and otherwise from a
// test grab. Frames are reported only while the source is open.
func (s *FFmpegSource) Open(ctx context.Context) error {
	w, h, err := s.probe()
	if err != nil {
		s.logger.Debug("ffprobe failed, falling back to a test grab", "device", s.device, "error", err)
		img, gerr := s.grab(ctx)
		if gerr != nil {
			return fmt.Errorf("open camera %s: %w", s.device, gerr)
		}
		b := img.Bounds()
		w, h = b.Dx(), b.Dy()
	}

	s.mu.Lock()
	s.open = true
	s.width, s.height = w, h
	s.mu.Unlock()

	s.logger.Info("camera opened", "device", s.device, "format", s.format, "width", w, "height", h)
	return nil
}

func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	wasOpen := s.open
	s.open = false
	s.width, s.height = 0, 0
	s.mu.Unlock()

	if wasOpen {
		s.logger.Info("camera closed", "device", s.device)
	}
	return nil
}

func (s *FFmpegSource) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

func (s *FFmpegSource) Grab(ctx context.Context) (image.Image, error) {
	s.mu.RLock()
	open := s.open
	s.mu.RUnlock()
	if !open {
		return nil, ErrClosed
	}
	return s.grab(ctx)
}

func (s *FFmpegSource) grab(ctx context.Context) (image.Image, error) {
	s.grabMu.Lock()
	defer s.grabMu.Unlock()

	var out bytes.Buffer
	stderr := &limitedBuffer{max: maxStderrBytes}

	cmd := s.stream(&out, stderr)
	cmd.Context = ctx
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg grab failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("decode grabbed frame: %w", err)
	}
	return img, nil
}

func (s *FFmpegSource) stream(out, stderr io.Writer) *ffmpeg.Stream {
	var in []ffmpeg.KwArgs
	if s.format != "" {
		in = append(in, ffmpeg.KwArgs{"format": s.format})
	}
	return ffmpeg.Input(s.device, in...).
		Output("pipe:1", ffmpeg.KwArgs{
			"format":   "image2pipe",
			"vcodec":   "png",
			"frames:v": 1,
		}).
		WithOutput(out).
		WithErrorOutput(stderr)
}

func (s *FFmpegSource) probe() (int, int, error) {
	var kw []ffmpeg.KwArgs
	if s.format != "" {
		kw = append(kw, ffmpeg.KwArgs{"f": s.format})
	}
	raw, err := ffmpeg.Probe(s.device, kw...)
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe error: %w", err)
	}
	return parseProbe(raw)
}

type videoProbe struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func parseProbe(raw string) (int, int, error) {
	var probe videoProbe
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return 0, 0, fmt.Errorf("json unmarshal error: %w", err)
	}
	for _, st := range probe.Streams {
		if st.CodecType == "video" && st.Width > 0 && st.Height > 0 {
			return st.Width, st.Height, nil
		}
	}
	return 0, 0, fmt.Errorf("no video stream with dimensions found")
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
