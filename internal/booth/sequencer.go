// Package booth runs the guided multi-shot capture: a countdown, a flash and
// one grabbed frame per step, reported to an observer as the list grows.
package booth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/logging"
	"github.com/boothbuddy/boothbuddy/internal/media"
)

const (
	DefaultShots         = 4
	DefaultCountdownFrom = 3
	DefaultTick          = time.Second
	DefaultFlash         = 150 * time.Millisecond
)

// VideoSource is a live camera feed. Opening and closing it belongs to
// whoever owns the device.
type VideoSource interface {
	// Dimensions reports the native frame size, or zeros when no frames
	// are flowing.
	Dimensions() (w, h int)
	Grab(ctx context.Context) (image.Image, error)
}

type Frame struct {
	Index      int         `json:"index"`
	Image      image.Image `json:"-"`
	DataURL    string      `json:"dataUrl"`
	CapturedAt time.Time   `json:"capturedAt"`
}

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCounting  Phase = "counting"
	PhaseFlashing  Phase = "flashing"
	PhaseCapturing Phase = "capturing"
)

type State struct {
	Phase       Phase `json:"phase"`
	Step        int   `json:"step"`
	SecondsLeft int   `json:"secondsLeft"`
	Capturing   bool  `json:"capturing"`
	Frames      int   `json:"frames"`
	Shots       int   `json:"shots"`
}

// Countdown is the value to display, nil outside the counting phase.
func (s State) Countdown() *int {
	if s.Phase != PhaseCounting {
		return nil
	}
	n := s.SecondsLeft
	return &n
}

type Options struct {
	Shots         int
	CountdownFrom int
	Tick          time.Duration
	Flash         time.Duration

	// OnState is called after every state transition.
	OnState func(State)
	// OnDone receives the outcome of runs launched with Start.
	OnDone func([]Frame, error)
}

func DefaultOptions() Options {
	return Options{
		Shots:         DefaultShots,
		CountdownFrom: DefaultCountdownFrom,
		Tick:          DefaultTick,
		Flash:         DefaultFlash,
	}
}

type Sequencer struct {
	src    VideoSource
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	frames []Frame
}

func NewSequencer(src VideoSource, opts Options, logger *slog.Logger) *Sequencer {
	if opts.Shots < 1 {
		opts.Shots = DefaultShots
	}
	if opts.CountdownFrom < 0 {
		opts.CountdownFrom = 0
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Flash < 0 {
		opts.Flash = 0
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sequencer{
		src:    src,
		opts:   opts,
		logger: logging.WithComponent(logger, "sequencer"),
		state:  State{Phase: PhaseIdle, Shots: opts.Shots},
	}
}

func (s *Sequencer) Shots() int {
	return s.opts.Shots
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frames returns a copy of the frames captured so far.
func (s *Sequencer) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneFrames(s.frames)
}

// Run captures Shots frames, blocking until done. observe is called with
// an empty list first and then with every grown list; each list is a new
// slice the observer may keep.
func (s *Sequencer) Run(ctx context.Context, observe func([]Frame)) ([]Frame, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	return s.run(ctx, observe)
}

// Start is Run in the background. A run already in progress is reported
// synchronously; the outcome of a started run goes to Options.OnDone.
func (s *Sequencer) Start(ctx context.Context, observe func([]Frame)) error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() {
		frames, err := s.run(ctx, observe)
		if s.opts.OnDone != nil {
			s.opts.OnDone(frames, err)
		}
	}()
	return nil
}

func (s *Sequencer) begin() error {
	s.mu.Lock()
	if s.state.Capturing || s.state.Phase != PhaseIdle {
		s.mu.Unlock()
		return ErrAlreadyCapturing
	}
	s.state = State{Phase: PhaseIdle, Capturing: true, Shots: s.opts.Shots}
	s.frames = nil
	st := s.state
	s.mu.Unlock()

	s.publish(st)
	return nil
}

func (s *Sequencer) run(ctx context.Context, observe func([]Frame)) ([]Frame, error) {
	if observe == nil {
		observe = func([]Frame) {}
	}
	observe([]Frame{})

	if !s.Ready() {
		return nil, s.fail(observe, nil, fmt.Errorf("%w: no frame dimensions", ErrResourceUnavailable))
	}

	s.logger.Info("capture started", "shots", s.opts.Shots)

	frames := make([]Frame, 0, s.opts.Shots)
	for step := 1; step <= s.opts.Shots; step++ {
		for sec := s.opts.CountdownFrom; sec >= 1; sec-- {
			s.transition(State{Phase: PhaseCounting, Step: step, SecondsLeft: sec}, len(frames))
			if err := wait(ctx, s.opts.Tick); err != nil {
				return nil, s.fail(observe, frames, cancelled(err))
			}
		}

		s.transition(State{Phase: PhaseFlashing, Step: step}, len(frames))
		if err := wait(ctx, s.opts.Flash); err != nil {
			return nil, s.fail(observe, frames, cancelled(err))
		}

		s.transition(State{Phase: PhaseCapturing, Step: step}, len(frames))
		frame, err := s.grab(ctx, step-1)
		if err != nil {
			return nil, s.fail(observe, frames, err)
		}

		frames = append(frames, frame)
		s.mu.Lock()
		s.frames = cloneFrames(frames)
		s.state.Frames = len(frames)
		s.mu.Unlock()
		observe(cloneFrames(frames))
	}

	s.mu.Lock()
	s.state = State{Phase: PhaseIdle, Frames: len(frames), Shots: s.opts.Shots}
	st := s.state
	s.mu.Unlock()
	s.publish(st)

	s.logger.Info("capture completed", "frames", len(frames))
	return cloneFrames(frames), nil
}

func (s *Sequencer) grab(ctx context.Context, index int) (Frame, error) {
	if !s.Ready() {
		return Frame{}, fmt.Errorf("%w: lost frame dimensions at shot %d", ErrResourceUnavailable, index+1)
	}

	img, err := s.src.Grab(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, cancelled(ctx.Err())
		}
		return Frame{}, Wrap(CodeResourceUnavailable, fmt.Sprintf("grab shot %d", index+1), err)
	}

	dataURL, err := media.EncodeDataURL(img)
	if err != nil {
		return Frame{}, Wrap(CodeProcessing, fmt.Sprintf("encode shot %d", index+1), err)
	}

	return Frame{
		Index:      index,
		Image:      img,
		DataURL:    dataURL,
		CapturedAt: time.Now(),
	}, nil
}

// Ready reports whether the video source is delivering frames.
func (s *Sequencer) Ready() bool {
	if s.src == nil {
		return false
	}
	w, h := s.src.Dimensions()
	return w > 0 && h > 0
}

// fail discards the session. Observers that already saw frames get an
// empty list so their view matches the Idle state.
func (s *Sequencer) fail(observe func([]Frame), frames []Frame, err error) error {
	s.mu.Lock()
	s.state = State{Phase: PhaseIdle, Shots: s.opts.Shots}
	s.frames = nil
	st := s.state
	s.mu.Unlock()
	s.publish(st)

	if len(frames) > 0 {
		observe([]Frame{})
	}

	s.logger.Warn("capture aborted", "frames_discarded", len(frames), "code", CodeOf(err), "error", err)
	return err
}

func (s *Sequencer) transition(st State, frames int) {
	st.Capturing = true
	st.Frames = frames
	st.Shots = s.opts.Shots

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.publish(st)
}

func (s *Sequencer) publish(st State) {
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

func cancelled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, "capture timed out", err)
	}
	return Wrap(CodeCancelled, "capture cancelled", err)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func cloneFrames(frames []Frame) []Frame {
	out := make([]Frame, len(frames))
	copy(out, frames)
	return out
}
