package strip

import (
	"context"
	"errors"
	"image"
	"time"
)

var errNilSource = errors.New("source produced no image")

type decoded struct {
	img image.Image
	err error
}

// decodeInOrder starts every decode at once and hands results to draw in
// input order, stopping at the first draw error. All decodes share one deadline; a source that ignores ctx
// is abandoned when it passes.
func decodeInOrder(ctx context.Context, sources []Source, timeout time.Duration, draw func(int, image.Image) error) error {
	if timeout <= 0 {
		timeout = DefaultDecodeTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]chan decoded, len(sources))
	for i, src := range sources {
		ch := make(chan decoded, 1)
		results[i] = ch
		go func(src Source) {
			if src == nil {
				ch <- decoded{err: errNilSource}
				return
			}
			img, err := src(dctx)
			if err == nil && img == nil {
				err = errNilSource
			}
			ch <- decoded{img: img, err: err}
		}(src)
	}

	for i, ch := range results {
		select {
		case r := <-ch:
			if r.err != nil {
				if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
					r.err = ErrDecodeTimeout
				}
				return &DecodeError{Index: i, Err: r.err}
			}
			if err := draw(i, r.img); err != nil {
				return err
			}
		case <-dctx.Done():
			if err := ctx.Err(); err != nil {
				return &DecodeError{Index: i, Err: err}
			}
			return &DecodeError{Index: i, Err: ErrDecodeTimeout}
		}
	}
	return nil
}
