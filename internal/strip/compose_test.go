package strip

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/media"
)

var palette = []color.NRGBA{
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, A: 255},
	{R: 255, G: 255, A: 255},
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func assertColor(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()
	got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) {
		t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

// slowSource finishes after delay, so later frames can decode first.
func slowSource(img image.Image, delay time.Duration) Source {
	return func(ctx context.Context) (image.Image, error) {
		select {
		case <-time.After(delay):
			return img, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestComposeBands_GeometryAndOrder(t *testing.T) {
	sizes := [][2]int{{640, 480}, {100, 100}, {33, 70}, {1280, 720}}
	delays := []time.Duration{40 * time.Millisecond, 0, 20 * time.Millisecond, 5 * time.Millisecond}

	sources := make([]Source, 4)
	for i := range sources {
		sources[i] = slowSource(imaging.New(sizes[i][0], sizes[i][1], palette[i]), delays[i])
	}

	out, err := ComposeBands(context.Background(), sources, DefaultLayout)
	if err != nil {
		t.Fatalf("ComposeBands() error = %v", err)
	}

	b := out.Bounds()
	if b.Dx() != 200 || b.Dy() != 4*280 {
		t.Fatalf("bounds = %dx%d, want 200x1120", b.Dx(), b.Dy())
	}
	for i, c := range palette {
		top := i * 280
		assertColor(t, out, 100, top+140, c)
		assertColor(t, out, 1, top+1, c)
		assertColor(t, out, 198, top+278, c)
	}
}

func TestComposeBands_FromDataURLs(t *testing.T) {
	urls := make([]string, 4)
	for i := range urls {
		s, err := media.EncodeDataURL(imaging.New(20, 30, palette[i]))
		if err != nil {
			t.Fatal(err)
		}
		urls[i] = s
	}

	out, err := ComposeBands(context.Background(), FromDataURLs(urls), Layout{FrameWidth: 10, FrameHeight: 15})
	if err != nil {
		t.Fatalf("ComposeBands() error = %v", err)
	}
	if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 60 {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	assertColor(t, out, 5, 50, palette[3])
}

func TestComposeBands_DecodeError(t *testing.T) {
	sources := []Source{
		FromImage(imaging.New(4, 4, palette[0])),
		FromDataURL("data:image/png;base64,bm90IGFuIGltYWdl"),
		FromImage(imaging.New(4, 4, palette[2])),
	}

	_, err := ComposeBands(context.Background(), sources, DefaultLayout)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if de.Index != 1 {
		t.Errorf("Index = %d, want 1", de.Index)
	}
	if booth.CodeOf(err) != booth.CodeDecodeFailed {
		t.Errorf("CodeOf() = %q", booth.CodeOf(err))
	}
}

func TestComposeBands_DecodeTimeout(t *testing.T) {
	hang := func(ctx context.Context) (image.Image, error) {
		select {}
	}
	sources := []Source{FromImage(imaging.New(4, 4, palette[0])), hang}

	start := time.Now()
	_, err := ComposeBands(context.Background(), sources, Layout{FrameWidth: 10, FrameHeight: 10, DecodeTimeout: 30 * time.Millisecond})
	if !errors.Is(err, ErrDecodeTimeout) {
		t.Fatalf("error = %v, want ErrDecodeTimeout", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("compose did not honour the decode timeout")
	}
	if booth.CodeOf(err) != booth.CodeTimeout {
		t.Errorf("CodeOf() = %q, want timeout", booth.CodeOf(err))
	}
}

func TestComposeBands_Validation(t *testing.T) {
	if _, err := ComposeBands(context.Background(), nil, DefaultLayout); !errors.Is(err, ErrNoFrames) {
		t.Errorf("nil sources error = %v", err)
	}
	one := []Source{FromImage(imaging.New(1, 1, color.Black))}
	if _, err := ComposeBands(context.Background(), one, Layout{}); booth.CodeOf(err) != booth.CodeBadRequest {
		t.Errorf("zero layout error = %v", err)
	}
}

func TestComposeVertical(t *testing.T) {
	sources := []Source{
		FromImage(imaging.New(400, 300, palette[0])),
		FromImage(imaging.New(200, 100, palette[1])),
		FromImage(imaging.New(800, 800, palette[2])),
		FromImage(imaging.New(300, 300, palette[3])),
	}

	out, err := ComposeVertical(context.Background(), sources, VerticalOptions{Padding: DefaultPadding})
	if err != nil {
		t.Fatalf("ComposeVertical() error = %v", err)
	}

	// narrowest is 200: heights become 150, 100, 200, 200
	if out.Bounds().Dx() != 200 {
		t.Errorf("width = %d, want 200", out.Bounds().Dx())
	}
	wantH := 150 + 100 + 200 + 200 + 3*DefaultPadding
	if out.Bounds().Dy() != wantH {
		t.Errorf("height = %d, want %d", out.Bounds().Dy(), wantH)
	}

	assertColor(t, out, 100, 75, palette[0])
	assertColor(t, out, 100, 150+8, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	assertColor(t, out, 100, 150+16+50, palette[1])
	assertColor(t, out, 100, wantH-10, palette[3])
}

func TestComposeVertical_FrameWidth(t *testing.T) {
	sources := []Source{
		FromImage(imaging.New(400, 200, palette[0])),
		FromImage(imaging.New(100, 100, palette[1])),
	}

	out, err := ComposeVertical(context.Background(), sources, VerticalOptions{FrameWidth: 300})
	if err != nil {
		t.Fatalf("ComposeVertical() error = %v", err)
	}
	if out.Bounds().Dx() != 300 || out.Bounds().Dy() != 150+300 {
		t.Errorf("bounds = %v, want 300x450", out.Bounds())
	}
}

func TestRequireFrames(t *testing.T) {
	if err := RequireFrames(4, 4); err != nil {
		t.Errorf("RequireFrames(4, 4) = %v", err)
	}
	err := RequireFrames(3, 4)
	if !errors.Is(err, ErrFrameCount) {
		t.Fatalf("RequireFrames(3, 4) = %v, want ErrFrameCount", err)
	}
	if booth.CodeOf(err) != booth.CodeBadRequest {
		t.Errorf("CodeOf() = %q", booth.CodeOf(err))
	}
}

func TestComposeBands_RejectsOversizedLayout(t *testing.T) {
	sources := make([]Source, 4)
	for i := range sources {
		sources[i] = FromImage(imaging.New(4, 4, palette[i]))
	}

	layouts := []Layout{
		{FrameWidth: 1 << 24, FrameHeight: 1 << 24},
		{FrameWidth: MaxFrameSize + 1, FrameHeight: 10},
		{FrameWidth: 10, FrameHeight: MaxFrameSize + 1},
		{FrameWidth: MaxFrameSize, FrameHeight: MaxFrameSize},
	}
	for _, l := range layouts {
		_, err := ComposeBands(context.Background(), sources, l)
		if !errors.Is(err, ErrStripTooLarge) {
			t.Errorf("layout %dx%d error = %v, want ErrStripTooLarge", l.FrameWidth, l.FrameHeight, err)
		}
		if booth.CodeOf(err) != booth.CodeBadRequest {
			t.Errorf("layout %dx%d code = %q", l.FrameWidth, l.FrameHeight, booth.CodeOf(err))
		}
	}
}

func TestComposeVertical_RejectsOversized(t *testing.T) {
	square := func() []Source {
		return []Source{FromImage(imaging.New(4, 4, palette[0])), FromImage(imaging.New(4, 4, palette[1]))}
	}

	tests := []struct {
		name    string
		sources []Source
		opts    VerticalOptions
	}{
		{"frame width", square(), VerticalOptions{FrameWidth: 1 << 24}},
		{"padding", square(), VerticalOptions{Padding: MaxPadding + 1}},
		{"tall frame upscaled", []Source{FromImage(imaging.New(1, 4000, palette[0]))}, VerticalOptions{FrameWidth: MaxFrameSize}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComposeVertical(context.Background(), tt.sources, tt.opts)
			if !errors.Is(err, ErrStripTooLarge) {
				t.Fatalf("error = %v, want ErrStripTooLarge", err)
			}
			if booth.CodeOf(err) != booth.CodeBadRequest {
				t.Errorf("CodeOf() = %q", booth.CodeOf(err))
			}
		})
	}
}

func TestComposeVertical_RejectsOversizedCanvas(t *testing.T) {
	// each frame is within the per-frame limit, the stack is not
	frame := image.NewNRGBA(image.Rect(0, 0, 1000, 4000))
	sources := make([]Source, 17)
	for i := range sources {
		sources[i] = FromImage(frame)
	}
	_, err := ComposeVertical(context.Background(), sources, VerticalOptions{})
	if !errors.Is(err, ErrStripTooLarge) {
		t.Fatalf("error = %v, want ErrStripTooLarge", err)
	}
}
