// Package trigger reads the physical shutter button.
package trigger

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// Level is the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Driver reads GPIO input pins. The Raspberry Pi driver and the mock share
// it so the button can run on a PC.
type Driver interface {
	SetupInput(pin int) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver returns a MockDriver when mock is set and the go-rpio driver
// otherwise.
func NewDriver(mock bool, logger *slog.Logger) (Driver, error) {
	if mock {
		logger.Info("using mock GPIO driver")
		return NewMockDriver(), nil
	}
	return NewRPiDriver(logger)
}

// RPiDriver is the Raspberry Pi implementation using go-rpio.
type RPiDriver struct {
	logger *slog.Logger

	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// NewRPiDriver maps GPIO memory. Requires /dev/gpiomem or root.
func NewRPiDriver(logger *slog.Logger) (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	logger.Debug("GPIO memory mapped")
	return &RPiDriver{logger: logger, pins: make(map[int]rpio.Pin)}, nil
}

// SetupInput configures pin as an input with the pull-up enabled; the
// button shorts it to ground.
func (r *RPiDriver) SetupInput(pin int) error {
	p := rpio.Pin(pin)
	p.Input()
	p.PullUp()

	r.mu.Lock()
	r.pins[pin] = p
	r.mu.Unlock()
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	p, ok := r.pins[pin]
	r.mu.Unlock()
	if !ok {
		if err := r.SetupInput(pin); err != nil {
			return Low, err
		}
		p = rpio.Pin(pin)
	}

	if p.Read() == rpio.High {
		return High, nil
	}
	return Low, nil
}

func (r *RPiDriver) Close() error {
	r.mu.Lock()
	for _, p := range r.pins {
		p.PullOff()
	}
	r.mu.Unlock()
	return rpio.Close()
}

// MockDriver holds pin levels set by SetLevel. Unset pins read High, the
// released state of a pulled-up button.
type MockDriver struct {
	mu     sync.Mutex
	levels map[int]Level
}

func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level)}
}

func (m *MockDriver) SetupInput(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.levels[pin]; !ok {
		m.levels[pin] = High
	}
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.levels[pin]; ok {
		return l, nil
	}
	return High, nil
}

func (m *MockDriver) SetLevel(pin int, l Level) {
	m.mu.Lock()
	m.levels[pin] = l
	m.mu.Unlock()
}

func (m *MockDriver) Close() error {
	return nil
}
