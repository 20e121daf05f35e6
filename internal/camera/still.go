package camera

import (
	"context"
	"image"
	"sync"

	"github.com/boothbuddy/boothbuddy/internal/media"
)

// StillSource serves the same image on every grab.
type StillSource struct {
	mu  sync.RWMutex
	img image.Image
}

func NewStillSource(img image.Image) *StillSource {
	return &StillSource{img: img}
}

// LoadStill reads an image file, honouring EXIF orientation.
func LoadStill(path string) (*StillSource, error) {
	img, err := media.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return NewStillSource(img), nil
}

func (s *StillSource) Dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *StillSource) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil, ErrClosed
	}
	return s.img, nil
}

func (s *StillSource) Close() error {
	s.mu.Lock()
	s.img = nil
	s.mu.Unlock()
	return nil
}
