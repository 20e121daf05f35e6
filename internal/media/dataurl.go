// Package media converts between images and the base64 data URIs that every
// frame and strip travels as.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/disintegration/imaging"
)

const (
	MimePNG = "image/png"

	// MaxDimension and MaxPixels bound any image this package decodes.
	MaxDimension = 8192
	MaxPixels    = 24_000_000
)

var (
	ErrInvalidDataURL = errors.New("invalid data url")
	ErrImageTooLarge  = errors.New("image too large")
)

// ParseDataURL splits a data URI into its media type and decoded payload.
// A bare base64 string without the "data:" header is accepted and reported
// with an empty media type.
func ParseDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, ErrInvalidDataURL
	}

	mime := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return "", nil, fmt.Errorf("%w: missing payload", ErrInvalidDataURL)
		}
		header := s[len("data:"):comma]
		payload = s[comma+1:]

		params := strings.Split(header, ";")
		mime = params[0]
		base64Encoded := false
		for _, p := range params[1:] {
			if p == "base64" {
				base64Encoded = true
			}
		}
		if !base64Encoded {
			return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
	}
	return mime, data, nil
}

// DecodeDataURL decodes a PNG, JPEG or GIF data URI.
func DecodeDataURL(s string) (image.Image, error) {
	_, data, err := ParseDataURL(s)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if err := CheckSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// CheckSize fails with ErrImageTooLarge when w x h exceeds MaxDimension on
// either side or MaxPixels in total.
func CheckSize(w, h int) error {
	if w > MaxDimension || h > MaxDimension || int64(w)*int64(h) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, w, h)
	}
	return nil
}

// EncodeDataURL renders img as a PNG data URI.
func EncodeDataURL(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return DataURL(MimePNG, data), nil
}

// DataURL builds a base64 data URI from raw bytes.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeFile opens an image file, applying any EXIF orientation.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	if err := CheckSize(cfg.Width, cfg.Height); err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return img, nil
}
