// Package strip renders ordered frames into one vertically stacked image.
package strip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/media"
)

const (
	DefaultFrameWidth    = 200
	DefaultFrameHeight   = 280
	DefaultPadding       = 16
	DefaultDecodeTimeout = 10 * time.Second

	// MaxFrameSize bounds a requested frame width or height.
	MaxFrameSize = 4096
	MaxPadding   = 256
	// MaxStripPixels bounds the composite canvas.
	MaxStripPixels = 64_000_000
)

var (
	ErrFrameCount    = booth.E(booth.CodeBadRequest, "wrong number of frames")
	ErrNoFrames      = booth.E(booth.CodeBadRequest, "no frames to compose")
	ErrStripTooLarge = booth.E(booth.CodeBadRequest, "strip too large")
	ErrDecodeTimeout = errors.New("decode timed out")
)

// DecodeError reports which input broke the composite.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) ErrorCode() booth.Code {
	if errors.Is(e.Err, ErrDecodeTimeout) {
		return booth.CodeTimeout
	}
	if errors.Is(e.Err, context.Canceled) {
		return booth.CodeCancelled
	}
	if errors.Is(e.Err, media.ErrImageTooLarge) {
		return booth.CodeBadRequest
	}
	return booth.CodeDecodeFailed
}

// Source produces one input image. It should honour ctx, but the
// compositor does not rely on it.
type Source func(ctx context.Context) (image.Image, error)

func FromDataURL(s string) Source {
	return func(ctx context.Context) (image.Image, error) {
		return media.DecodeDataURL(s)
	}
}

func FromFile(path string) Source {
	return func(ctx context.Context) (image.Image, error) {
		return media.DecodeFile(path)
	}
}

func FromImage(img image.Image) Source {
	return func(ctx context.Context) (image.Image, error) {
		if img == nil {
			return nil, errors.New("nil image")
		}
		return img, nil
	}
}

// FromDataURLs maps every data URI to a Source.
func FromDataURLs(urls []string) []Source {
	out := make([]Source, len(urls))
	for i, u := range urls {
		out[i] = FromDataURL(u)
	}
	return out
}

// Layout is the fixed-band geometry: every frame is stretched to exactly
// FrameWidth x FrameHeight.
type Layout struct {
	FrameWidth    int
	FrameHeight   int
	DecodeTimeout time.Duration
}

var DefaultLayout = Layout{FrameWidth: DefaultFrameWidth, FrameHeight: DefaultFrameHeight}

// ComposeBands draws source i into the band [i*H, (i+1)*H) of a
// FrameWidth x N*FrameHeight image. Aspect ratio is not preserved.
func ComposeBands(ctx context.Context, sources []Source, layout Layout) (*image.NRGBA, error) {
	if len(sources) == 0 {
		return nil, ErrNoFrames
	}
	if err := layout.validate(len(sources)); err != nil {
		return nil, err
	}

	w, h := layout.FrameWidth, layout.FrameHeight
	dst := imaging.New(w, h*len(sources), color.White)

	err := decodeInOrder(ctx, sources, layout.DecodeTimeout, func(i int, img image.Image) error {
		band := imaging.Resize(img, w, h, imaging.Lanczos)
		dst = imaging.Paste(dst, band, image.Pt(0, i*h))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

func (l Layout) validate(frames int) error {
	if l.FrameWidth <= 0 || l.FrameHeight <= 0 {
		return booth.E(booth.CodeBadRequest, fmt.Sprintf("invalid frame size %dx%d", l.FrameWidth, l.FrameHeight))
	}
	if l.FrameWidth > MaxFrameSize || l.FrameHeight > MaxFrameSize {
		return fmt.Errorf("%w: frame %dx%d exceeds %d", ErrStripTooLarge, l.FrameWidth, l.FrameHeight, MaxFrameSize)
	}
	if int64(l.FrameWidth)*int64(l.FrameHeight)*int64(frames) > MaxStripPixels {
		return fmt.Errorf("%w: %d frames of %dx%d", ErrStripTooLarge, frames, l.FrameWidth, l.FrameHeight)
	}
	return nil
}

type VerticalOptions struct {
	// FrameWidth resizes every frame to this width first, keeping its
	// aspect ratio. Zero keeps native sizes.
	FrameWidth    int
	Padding       int
	Background    color.Color
	DecodeTimeout time.Duration
}

// ComposeVertical stacks frames top to bottom with Padding between them.
// Frames wider than the narrowest one are scaled down to its width.
func ComposeVertical(ctx context.Context, sources []Source, opts VerticalOptions) (*image.NRGBA, error) {
	if len(sources) == 0 {
		return nil, ErrNoFrames
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.FrameWidth > MaxFrameSize || opts.Padding > MaxPadding {
		return nil, fmt.Errorf("%w: frame width %d, padding %d", ErrStripTooLarge, opts.FrameWidth, opts.Padding)
	}
	if opts.Background == nil {
		opts.Background = color.White
	}

	frames := make([]image.Image, len(sources))
	err := decodeInOrder(ctx, sources, opts.DecodeTimeout, func(i int, img image.Image) error {
		if opts.FrameWidth > 0 {
			b := img.Bounds()
			if b.Dx() <= 0 {
				return booth.E(booth.CodeDecodeFailed, "frame has zero width")
			}
			scaled := int64(b.Dy()) * int64(opts.FrameWidth) / int64(b.Dx())
			if scaled*int64(opts.FrameWidth) > media.MaxPixels {
				return fmt.Errorf("%w: frame %d scales to %dx%d", ErrStripTooLarge, i, opts.FrameWidth, scaled)
			}
			img = imaging.Resize(img, opts.FrameWidth, 0, imaging.Lanczos)
		}
		frames[i] = img
		return nil
	})
	if err != nil {
		return nil, err
	}

	minW := frames[0].Bounds().Dx()
	for _, f := range frames[1:] {
		if fw := f.Bounds().Dx(); fw < minW {
			minW = fw
		}
	}
	if minW <= 0 {
		return nil, booth.E(booth.CodeDecodeFailed, "frame has zero width")
	}

	totalH := opts.Padding * (len(frames) - 1)
	for i, f := range frames {
		if f.Bounds().Dx() != minW {
			frames[i] = imaging.Resize(f, minW, 0, imaging.Lanczos)
		}
		totalH += frames[i].Bounds().Dy()
	}
	if int64(minW)*int64(totalH) > MaxStripPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrStripTooLarge, minW, totalH)
	}

	dst := imaging.New(minW, totalH, opts.Background)
	y := 0
	for _, f := range frames {
		dst = imaging.Paste(dst, f, image.Pt(0, y))
		y += f.Bounds().Dy() + opts.Padding
	}
	return dst, nil
}

// RequireFrames fails with ErrFrameCount unless got == want.
func RequireFrames(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d, need exactly %d", ErrFrameCount, got, want)
	}
	return nil
}

func EncodePNG(img image.Image) ([]byte, error) {
	return media.EncodePNG(img)
}
