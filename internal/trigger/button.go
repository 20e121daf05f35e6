package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/booth"
)

const (
	DefaultDebounce     = 50 * time.Millisecond
	DefaultPollInterval = 10 * time.Millisecond
)

// Button calls OnPress once per debounced press of an active-low button.
type Button struct {
	driver   Driver
	pin      int
	onPress  func() error
	debounce time.Duration
	poll     time.Duration
	logger   *slog.Logger
}

func NewButton(driver Driver, pin int, onPress func() error, logger *slog.Logger) *Button {
	return &Button{
		driver:   driver,
		pin:      pin,
		onPress:  onPress,
		debounce: DefaultDebounce,
		poll:     DefaultPollInterval,
		logger:   logger,
	}
}

// Run polls the pin until ctx is cancelled.
func (b *Button) Run(ctx context.Context) error {
	if err := b.driver.SetupInput(b.pin); err != nil {
		return fmt.Errorf("setup button pin %d: %w", b.pin, err)
	}
	b.logger.Info("shutter button armed", "pin", b.pin)

	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	var (
		stable     bool
		last       bool
		lastChange = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			level, err := b.driver.ReadPin(b.pin)
			if err != nil {
				b.logger.Warn("button read failed", "pin", b.pin, "error", err)
				continue
			}

			pressed := level == Low
			if pressed != last {
				last = pressed
				lastChange = now
				continue
			}
			if pressed == stable || now.Sub(lastChange) < b.debounce {
				continue
			}

			stable = pressed
			if pressed {
				b.press()
			}
		}
	}
}

func (b *Button) press() {
	err := b.onPress()
	switch {
	case err == nil:
		b.logger.Info("shutter button pressed", "pin", b.pin)
	case errors.Is(err, booth.ErrAlreadyCapturing):
		b.logger.Debug("shutter button ignored, capture in progress")
	default:
		b.logger.Warn("shutter button press failed", "code", booth.CodeOf(err), "error", err)
	}
}
