package ui

import (
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/boothbuddy/boothbuddy/internal/media"
)

var (
	iconOnce sync.Once
	iconData []byte
)

// iconBytes renders the tray icon: a camera body with a lens.
func iconBytes() []byte {
	iconOnce.Do(func() {
		const size = 32
		body := color.NRGBA{R: 0xE9, G: 0x4F, B: 0x64, A: 0xFF}
		lens := color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

		img := imaging.New(size, size, color.Transparent)
		img = imaging.Paste(img, imaging.New(size-4, size-12, body), image.Pt(2, 8))
		img = imaging.Paste(img, imaging.New(10, 4, body), image.Pt(6, 4))

		cx, cy, r := size/2, size/2+2, 7
		for y := cy - r; y <= cy+r; y++ {
			for x := cx - r; x <= cx+r; x++ {
				if dx, dy := x-cx, y-cy; dx*dx+dy*dy <= r*r {
					img.SetNRGBA(x, y, lens)
				}
			}
		}

		data, err := media.EncodePNG(img)
		if err == nil {
			iconData = data
		}
	})
	return iconData
}
