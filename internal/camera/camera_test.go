package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestParseProbe(t *testing.T) {
	raw := `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1280,"height":720}]}`
	w, h, err := parseProbe(raw)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if w != 1280 || h != 720 {
		t.Errorf("parseProbe() = %dx%d, want 1280x720", w, h)
	}

	if _, _, err := parseProbe(`{"streams":[{"codec_type":"audio"}]}`); err == nil {
		t.Error("expected error without a video stream")
	}
	if _, _, err := parseProbe("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFFmpegSource_GrabArgs(t *testing.T) {
	s := NewFFmpegSource("", DefaultFormat, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cmd := s.stream(&bytes.Buffer{}, &bytes.Buffer{}).Compile()
	args := strings.Join(cmd.Args, " ")

	for _, want := range []string{DefaultDevice, DefaultFormat, "image2pipe", "png", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("ffmpeg args %q missing %q", args, want)
		}
	}
}

func TestFFmpegSource_ClosedSource(t *testing.T) {
	s := NewFFmpegSource("/dev/video9", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if w, h := s.Dimensions(); w != 0 || h != 0 {
		t.Errorf("Dimensions() before Open = %dx%d", w, h)
	}
	if _, err := s.Grab(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Grab() before Open error = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestStillSource(t *testing.T) {
	s := NewStillSource(image.NewNRGBA(image.Rect(0, 0, 64, 48)))
	if w, h := s.Dimensions(); w != 64 || h != 48 {
		t.Errorf("Dimensions() = %dx%d", w, h)
	}
	img, err := s.Grab(context.Background())
	if err != nil || img.Bounds().Dx() != 64 {
		t.Fatalf("Grab() = %v, %v", img, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Grab(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Grab(cancelled) error = %v", err)
	}

	s.Close()
	if w, h := s.Dimensions(); w != 0 || h != 0 {
		t.Errorf("Dimensions() after Close = %dx%d", w, h)
	}
	if _, err := s.Grab(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Grab() after Close error = %v", err)
	}
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	b.Write([]byte("defgh"))
	if b.String() != "abcde" {
		t.Errorf("String() = %q", b.String())
	}
}
