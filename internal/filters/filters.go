// Package filters holds the filter catalog and applies filters to frames.
package filters

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/media"
)

const (
	Grayscale  = "grayscale"
	Sepia      = "sepia"
	Brightness = "brightness"
	Contrast   = "contrast"
	Blur       = "blur"
	Sharpen    = "sharpen"

	// None is accepted by photo sets but is not an applicable filter.
	None = "none"

	MinIntensity     = 0.0
	MaxIntensity     = 2.0
	DefaultIntensity = 1.0
)

var (
	ErrUnknownFilter = booth.E(booth.CodeBadRequest, "unknown filter type")
	ErrIntensity     = booth.E(booth.CodeBadRequest, "intensity must be between 0 and 2")
)

type FilterSpec struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	DefaultIntensity float64 `json:"defaultIntensity"`
	MinIntensity     float64 `json:"minIntensity"`
	MaxIntensity     float64 `json:"maxIntensity"`
}

var catalog = []FilterSpec{
	{ID: Grayscale, Name: "Black & White", Description: "Convert to grayscale", DefaultIntensity: 1, MinIntensity: 0, MaxIntensity: 1},
	{ID: Sepia, Name: "Sepia", Description: "Vintage brown tone", DefaultIntensity: 1, MinIntensity: 0, MaxIntensity: 1},
	{ID: Brightness, Name: "Brightness", Description: "Adjust brightness", DefaultIntensity: 1, MinIntensity: 0.5, MaxIntensity: 1.5},
	{ID: Contrast, Name: "Contrast", Description: "Adjust contrast", DefaultIntensity: 1, MinIntensity: 0.5, MaxIntensity: 1.5},
	{ID: Blur, Name: "Blur", Description: "Apply blur effect", DefaultIntensity: 1, MinIntensity: 0, MaxIntensity: 3},
	{ID: Sharpen, Name: "Sharpen", Description: "Sharpen image", DefaultIntensity: 1, MinIntensity: 0, MaxIntensity: 1},
}

// Catalog returns the available filters in display order.
func Catalog() []FilterSpec {
	out := make([]FilterSpec, len(catalog))
	copy(out, catalog)
	return out
}

func Lookup(id string) (FilterSpec, bool) {
	for _, f := range catalog {
		if f.ID == id {
			return f, true
		}
	}
	return FilterSpec{}, false
}

// Validate checks a filter request without touching any image.
func Validate(filterType string, intensity float64) error {
	if _, ok := Lookup(filterType); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, filterType)
	}
	if math.IsNaN(intensity) || intensity < MinIntensity || intensity > MaxIntensity {
		return fmt.Errorf("%w: got %v", ErrIntensity, intensity)
	}
	return nil
}

// Apply returns a filtered copy of img. Alpha is preserved by every filter.
func Apply(img image.Image, filterType string, intensity float64) (*image.NRGBA, error) {
	if err := Validate(filterType, intensity); err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	switch filterType {
	case Grayscale:
		return blend(src, imaging.Grayscale(src), clamp01(intensity)), nil
	case Sepia:
		return sepia(src, intensity), nil
	case Brightness:
		return scale(src, intensity, 0), nil
	case Contrast:
		mean := meanLuma(src)
		return scale(src, intensity, mean), nil
	case Blur:
		sigma := 3 * intensity
		if sigma == 0 {
			return src, nil
		}
		return withAlpha(imaging.Blur(src, sigma), src), nil
	case Sharpen:
		sharp := imaging.Convolve3x3(src, sharpenKernel, &imaging.ConvolveOptions{Normalize: true})
		return blend(src, withAlpha(sharp, src), clamp01(intensity)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, filterType)
}

// ApplyAll decodes each data URI, filters it and re-encodes it as PNG,
// keeping input order.
func ApplyAll(ctx context.Context, dataURLs []string, filterType string, intensity float64) ([]string, error) {
	if err := Validate(filterType, intensity); err != nil {
		return nil, err
	}

	out := make([]string, len(dataURLs))
	for i, s := range dataURLs {
		if err := ctx.Err(); err != nil {
			return nil, booth.Wrap(booth.CodeCancelled, "filter cancelled", err)
		}
		img, err := media.DecodeDataURL(s)
		if errors.Is(err, media.ErrImageTooLarge) {
			return nil, booth.Wrap(booth.CodeBadRequest, fmt.Sprintf("image %d", i), err)
		}
		if err != nil {
			return nil, booth.Wrap(booth.CodeDecodeFailed, fmt.Sprintf("image %d", i), err)
		}
		filtered, err := Apply(img, filterType, intensity)
		if err != nil {
			return nil, err
		}
		encoded, err := media.EncodeDataURL(filtered)
		if err != nil {
			return nil, booth.Wrap(booth.CodeProcessing, fmt.Sprintf("image %d", i), err)
		}
		out[i] = encoded
	}
	return out, nil
}

var sharpenKernel = [9]float64{
	-2, -2, -2,
	-2, 32, -2,
	-2, -2, -2,
}

// sepia moves each pixel toward its sepia tone by t. Values above 1
// overshoot the tone; channels are clamped.
func sepia(img *image.NRGBA, t float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		sr := 0.393*r + 0.769*g + 0.189*b
		sg := 0.349*r + 0.686*g + 0.168*b
		sb := 0.272*r + 0.534*g + 0.131*b
		return color.NRGBA{
			R: clampByte(r + (sr-r)*t),
			G: clampByte(g + (sg-g)*t),
			B: clampByte(b + (sb-b)*t),
			A: c.A,
		}
	})
}

// scale moves every channel away from pivot by factor: pivot 0 is a
// brightness change, the mean luma is a contrast change.
func scale(img *image.NRGBA, factor, pivot float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clampByte(pivot + (float64(c.R)-pivot)*factor),
			G: clampByte(pivot + (float64(c.G)-pivot)*factor),
			B: clampByte(pivot + (float64(c.B)-pivot)*factor),
			A: c.A,
		}
	})
}

func meanLuma(img *image.NRGBA) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum float64
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			sum += 0.299*float64(row[x]) + 0.587*float64(row[x+1]) + 0.114*float64(row[x+2])
		}
	}
	return math.Round(sum / float64(n))
}

// blend returns a + (b-a)*t per colour channel; alpha comes from a.
func blend(a, b *image.NRGBA, t float64) *image.NRGBA {
	out := imaging.Clone(a)
	if t == 0 {
		return out
	}
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			av := float64(a.Pix[i+c])
			out.Pix[i+c] = clampByte(av + (float64(b.Pix[i+c])-av)*t)
		}
	}
	return out
}

// withAlpha copies the alpha channel of orig onto img.
func withAlpha(img, orig *image.NRGBA) *image.NRGBA {
	for i := 3; i < len(img.Pix) && i < len(orig.Pix); i += 4 {
		img.Pix[i] = orig.Pix[i]
	}
	return img
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
