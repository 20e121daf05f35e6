// Package kiosk drives a capture session end to end: countdown and capture,
// filters, strip composition, saving and the user's gallery.
package kiosk

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/client"
	"github.com/boothbuddy/boothbuddy/internal/filters"
	"github.com/boothbuddy/boothbuddy/internal/gallery"
	"github.com/boothbuddy/boothbuddy/internal/logging"
	"github.com/boothbuddy/boothbuddy/internal/notify"
	"github.com/boothbuddy/boothbuddy/internal/session"
	"github.com/boothbuddy/boothbuddy/internal/strip"
)

const (
	defaultReopenInterval = 5 * time.Second
	reopenTimeout         = 10 * time.Second
)

var (
	ErrNoFrames = booth.E(booth.CodeBadRequest, "no frames captured")
	ErrNoStrip  = booth.E(booth.CodeBadRequest, "no strip composed")
	ErrStale    = booth.E(booth.CodeCancelled, "frames changed while the request was in flight")
)

type FilterSelection struct {
	Type      string  `json:"type"`
	Intensity float64 `json:"intensity"`
}

type StripRef struct {
	ID         string `json:"id"`
	PreviewURL string `json:"previewUrl"`
	SavedPath  string `json:"savedPath,omitempty"`
	SavedURL   string `json:"savedUrl,omitempty"`
}

// ErrorInfo is the last failure shown to the operator.
type ErrorInfo struct {
	Op      string     `json:"op"`
	Code    booth.Code `json:"code"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Capture        booth.State          `json:"capture"`
	Countdown      *int                 `json:"countdown"`
	Shots          int                  `json:"shots"`
	Frames         []string             `json:"frames"`
	FilteredFrames []string             `json:"filteredFrames,omitempty"`
	Filter         *FilterSelection     `json:"filter,omitempty"`
	Strip          *StripRef            `json:"strip,omitempty"`
	Gallery        []client.StripRecord `json:"gallery"`
	Filters        []filters.FilterSpec `json:"filters"`
	User           *session.User        `json:"user"`
	LastError      *ErrorInfo           `json:"lastError,omitempty"`
	Version        uint64               `json:"version"`
}

// Display returns the frames to show: filtered when a filter is active.
func (s Snapshot) Display() []string {
	if s.FilteredFrames != nil {
		return s.FilteredFrames
	}
	return s.Frames
}

type Options struct {
	API    client.API
	Source booth.VideoSource
	// Sequence configures the capture run. Its OnState and OnDone hooks
	// are replaced by the controller.
	Sequence   booth.Options
	Session    *session.Store
	Notifier   notify.Notifier
	CatalogTTL time.Duration
	FrameWidth int
	Logger     *slog.Logger

	// Reopen, when set, is called by StartCapture while the source reports
	// no frames, at most once per ReopenInterval.
	Reopen         func(ctx context.Context) error
	ReopenInterval time.Duration
}

type Controller struct {
	api        client.API
	seq        *booth.Sequencer
	session    *session.Store
	notifier   notify.Notifier
	catalog    *FilterCatalog
	frameWidth int
	logger     *slog.Logger

	reopen         func(ctx context.Context) error
	reopenInterval time.Duration
	reopenMu       sync.Mutex
	lastReopen     time.Time

	ctx          context.Context
	cancel       context.CancelFunc
	unsubSession func()

	mu        sync.Mutex
	frameGen  uint64
	filterGen uint64
	version   uint64
	capture   booth.State
	frames    []string
	filtered  []string
	filter    *FilterSelection
	strip     *StripRef
	gallery   []client.StripRecord
	filters   []filters.FilterSpec
	lastErr   *ErrorInfo

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(Snapshot)
}

func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithComponent(logger, "kiosk")

	c := &Controller{
		api:        opts.API,
		session:    opts.Session,
		notifier:   opts.Notifier,
		frameWidth: opts.FrameWidth,
		logger:     logger,
		listeners:  make(map[int]func(Snapshot)),

		reopen:         opts.Reopen,
		reopenInterval: opts.ReopenInterval,
	}
	if c.reopenInterval <= 0 {
		c.reopenInterval = defaultReopenInterval
	}
	if c.session == nil {
		c.session = session.NewStore()
	}
	if c.notifier == nil {
		c.notifier = notify.Nop{}
	}
	if c.frameWidth <= 0 {
		c.frameWidth = strip.DefaultFrameWidth
	}

	seqOpts := opts.Sequence
	seqOpts.OnState = c.onCaptureState
	seqOpts.OnDone = c.onCaptureDone
	c.seq = booth.NewSequencer(opts.Source, seqOpts, logger)
	c.capture = c.seq.State()

	c.catalog = NewFilterCatalog(opts.API.FilterTypes, opts.CatalogTTL, logger)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.unsubSession = c.session.Subscribe(c.onSessionChange)
	return c
}

// Close aborts a capture in progress and detaches from the session.
func (c *Controller) Close() {
	c.unsubSession()
	c.cancel()
}

func (c *Controller) Shots() int {
	return c.seq.Shots()
}

func (c *Controller) Session() *session.Store {
	return c.session
}

// StartCapture begins a capture run in the background. The previous strip
// and filter are dropped.
func (c *Controller) StartCapture() error {
	if !c.seq.Ready() && !c.tryReopen() {
		return c.fail("capture", booth.ErrResourceUnavailable)
	}

	c.mu.Lock()
	if c.capture.Capturing {
		c.mu.Unlock()
		return booth.ErrAlreadyCapturing
	}
	c.frameGen++
	c.filtered = nil
	c.filter = nil
	c.strip = nil
	c.lastErr = nil
	c.mu.Unlock()

	if err := c.seq.Start(c.ctx, c.onFrames); err != nil {
		return err
	}
	c.emit()
	return nil
}

// tryReopen asks the source owner to open the camera again and reports
// whether frames are available afterwards.
func (c *Controller) tryReopen() bool {
	if c.reopen == nil {
		return false
	}

	c.reopenMu.Lock()
	defer c.reopenMu.Unlock()

	if c.seq.Ready() {
		return true
	}
	if !c.lastReopen.IsZero() && time.Since(c.lastReopen) < c.reopenInterval {
		return false
	}
	c.lastReopen = time.Now()

	ctx, cancel := context.WithTimeout(c.ctx, reopenTimeout)
	defer cancel()
	if err := c.reopen(ctx); err != nil {
		c.logger.Warn("camera reopen failed", "error", err)
		return false
	}
	return c.seq.Ready()
}

// LoadFilters returns the filter catalog, cached between calls.
func (c *Controller) LoadFilters(ctx context.Context) ([]filters.FilterSpec, error) {
	list, err := c.catalog.Get(ctx)
	if err != nil {
		return nil, c.fail("filters", err)
	}
	c.mu.Lock()
	c.filters = list
	c.mu.Unlock()
	c.emit()
	return list, nil
}

// ApplyFilter filters the unfiltered frames. Filters never compound: the
// request always carries the frames as captured.
func (c *Controller) ApplyFilter(ctx context.Context, filterType string, intensity float64) error {
	c.mu.Lock()
	if c.capture.Capturing {
		c.mu.Unlock()
		return booth.ErrAlreadyCapturing
	}
	frames := slices.Clone(c.frames)
	gen := c.frameGen
	c.mu.Unlock()

	if len(frames) == 0 {
		return c.fail("filter", ErrNoFrames)
	}
	if err := filters.Validate(filterType, intensity); err != nil {
		return c.fail("filter", err)
	}

	out, err := c.api.ApplyFilter(ctx, frames, filterType, intensity)
	if err != nil {
		return c.fail("filter", err)
	}

	c.mu.Lock()
	if c.frameGen != gen {
		c.mu.Unlock()
		return ErrStale
	}
	c.filtered = out
	c.filter = &FilterSelection{Type: filterType, Intensity: intensity}
	c.filterGen++
	c.strip = nil
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info("filter applied", "filter", filterType, "intensity", intensity, "frames", len(out))
	c.emit()
	return nil
}

func (c *Controller) ClearFilter() {
	c.mu.Lock()
	if c.filter == nil && c.filtered == nil {
		c.mu.Unlock()
		return
	}
	c.filtered = nil
	c.filter = nil
	c.filterGen++
	c.strip = nil
	c.mu.Unlock()
	c.emit()
}

// Compose builds a strip from the displayed frames. Exactly Shots frames
// are required; anything else fails before any request is made.
func (c *Controller) Compose(ctx context.Context, frameWidth int) error {
	c.mu.Lock()
	if c.capture.Capturing {
		c.mu.Unlock()
		return booth.ErrAlreadyCapturing
	}
	frames := c.filtered
	if frames == nil {
		frames = c.frames
	}
	frames = slices.Clone(frames)
	frameGen, filterGen := c.frameGen, c.filterGen
	c.mu.Unlock()

	if err := strip.RequireFrames(len(frames), c.seq.Shots()); err != nil {
		return c.fail("compose", err)
	}
	if frameWidth <= 0 {
		frameWidth = c.frameWidth
	}

	res, err := c.api.ComposeStrip(ctx, frames, frameWidth)
	if err != nil {
		return c.fail("compose", err)
	}

	c.mu.Lock()
	if c.frameGen != frameGen || c.filterGen != filterGen {
		c.mu.Unlock()
		return ErrStale
	}
	c.strip = &StripRef{ID: res.StripID, PreviewURL: res.PreviewURL}
	c.lastErr = nil
	c.mu.Unlock()

	logging.WithStripID(c.logger, res.StripID).Info("strip composed", "frame_width", frameWidth)
	c.emit()
	c.publish(notify.Event{Type: notify.EventStripComposed, StripID: res.StripID, Frames: len(frames)})
	return nil
}

// Save uploads the composed strip for the signed-in user, or the guest
// user when nobody is signed in, then refreshes the gallery.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	var ref StripRef
	if c.strip != nil {
		ref = *c.strip
	}
	c.mu.Unlock()

	if ref.ID == "" {
		return c.fail("save", ErrNoStrip)
	}
	if ref.SavedURL != "" {
		return nil
	}

	userID := c.userID()
	res, err := c.api.UploadStrip(ctx, ref.ID, userID)
	if err != nil {
		return c.fail("save", err)
	}

	c.mu.Lock()
	if c.strip != nil && c.strip.ID == ref.ID {
		saved := *c.strip
		saved.SavedPath = res.Path
		saved.SavedURL = res.URL
		c.strip = &saved
	}
	c.lastErr = nil
	c.mu.Unlock()

	logging.WithUserID(logging.WithStripID(c.logger, ref.ID), userID).Info("strip saved", "path", res.Path)
	c.emit()
	c.publish(notify.Event{Type: notify.EventStripSaved, StripID: ref.ID, UserID: userID, URL: res.URL})

	// a failed refresh is reported on its own; the strip is saved
	_, _ = c.RefreshGallery(ctx)
	return nil
}

// RefreshGallery reloads the current user's stored strips.
func (c *Controller) RefreshGallery(ctx context.Context) ([]client.StripRecord, error) {
	userID := c.userID()
	items, err := c.api.ListUserStrips(ctx, userID)
	if err != nil {
		return nil, c.fail("gallery", err)
	}
	if items == nil {
		items = []client.StripRecord{}
	}

	c.mu.Lock()
	stale := c.userID() != userID
	if !stale {
		c.gallery = items
	}
	c.mu.Unlock()

	if stale {
		return nil, ErrStale
	}
	c.emit()
	return slices.Clone(items), nil
}

// Reset returns to an empty session.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.capture.Capturing {
		c.mu.Unlock()
		return booth.ErrAlreadyCapturing
	}
	c.frameGen++
	c.frames = nil
	c.filtered = nil
	c.filter = nil
	c.strip = nil
	c.lastErr = nil
	c.mu.Unlock()
	c.emit()
	return nil
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe calls fn with a snapshot after every change. The returned
// function removes it.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.lmu.Lock()
			delete(c.listeners, id)
			c.lmu.Unlock()
		})
	}
}

func (c *Controller) onCaptureState(st booth.State) {
	c.mu.Lock()
	c.capture = st
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) onFrames(frames []booth.Frame) {
	urls := make([]string, len(frames))
	for i, f := range frames {
		urls[i] = f.DataURL
	}
	c.mu.Lock()
	c.frames = urls
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) onCaptureDone(frames []booth.Frame, err error) {
	if err != nil {
		c.fail("capture", err)
		return
	}
	c.publish(notify.Event{Type: notify.EventCaptureCompleted, UserID: c.userID(), Frames: len(frames)})
}

func (c *Controller) onSessionChange(u *session.User) {
	c.mu.Lock()
	c.gallery = nil
	c.mu.Unlock()
	c.emit()

	go func() {
		_, _ = c.RefreshGallery(c.ctx)
	}()
}

// fail records err as the last error, logs and publishes it, and
// returns it unchanged. State other than LastError is left alone.
func (c *Controller) fail(op string, err error) error {
	info := &ErrorInfo{
		Op:      op,
		Code:    booth.CodeOf(err),
		Message: err.Error(),
		At:      time.Now().UTC(),
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		info.Message = apiErr.Message
	}

	c.mu.Lock()
	c.lastErr = info
	c.mu.Unlock()

	c.logger.Warn("kiosk operation failed", "op", op, "code", info.Code, "error", err)
	c.emit()
	c.publish(notify.Event{Type: notify.EventError, Code: string(info.Code), Message: info.Message})
	return err
}

func (c *Controller) publish(ev notify.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.notifier.Publish(ctx, ev); err != nil {
		c.logger.Debug("event not published", "type", ev.Type, "error", err)
	}
}

func (c *Controller) emit() {
	c.mu.Lock()
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.lmu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Capture:   c.capture,
		Countdown: c.capture.Countdown(),
		Shots:     c.seq.Shots(),
		Frames:    append([]string{}, c.frames...),
		Gallery:   append([]client.StripRecord{}, c.gallery...),
		Filters:   append([]filters.FilterSpec{}, c.filters...),
		User:      c.session.Current(),
		Version:   c.version,
	}
	if c.filtered != nil {
		s.FilteredFrames = slices.Clone(c.filtered)
	}
	if c.filter != nil {
		f := *c.filter
		s.Filter = &f
	}
	if c.strip != nil {
		st := *c.strip
		s.Strip = &st
	}
	if c.lastErr != nil {
		e := *c.lastErr
		s.LastError = &e
	}
	return s
}

func (c *Controller) userID() string {
	if id := c.session.UserID(); id != "" {
		return id
	}
	return gallery.GuestUser
}
