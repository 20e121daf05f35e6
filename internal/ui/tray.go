package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/boothbuddy/boothbuddy/internal/booth"
	"github.com/boothbuddy/boothbuddy/internal/kiosk"
)

// Kiosk is the booth state the tray shows and drives.
type Kiosk interface {
	StartCapture() error
	Reset() error
	Snapshot() kiosk.Snapshot
	Subscribe(fn func(kiosk.Snapshot)) func()
}

// Pausable is a background job the tray can pause, such as the preview
// janitor.
type Pausable interface {
	Pause()
	Resume()
	IsPaused() bool
}

type Tray struct {
	kiosk   Kiosk
	janitor Pausable
	logger  *slog.Logger

	statusItem *systray.MenuItem
	userItem   *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu    sync.Mutex
	ready bool
	unsub func()

	onQuit func()
}

type TrayConfig struct {
	Kiosk   Kiosk
	Janitor Pausable
	Logger  *slog.Logger
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		kiosk:   cfg.Kiosk,
		janitor: cfg.Janitor,
		logger:  cfg.Logger,
		onQuit:  cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes())
	systray.SetTitle("BoothBuddy")
	systray.SetTooltip("BoothBuddy photo booth")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current booth status")
	t.statusItem.Disable()

	t.userItem = systray.AddMenuItem("User: guest", "Signed-in user")
	t.userItem.Disable()

	systray.AddSeparator()

	captureItem := systray.AddMenuItem("Take photos", "Start a capture run")
	resetItem := systray.AddMenuItem("Reset", "Discard frames and strip")
	t.pauseItem = systray.AddMenuItem("Pause cleanup", "Pause expiry of unsaved strips")
	if t.janitor == nil {
		t.pauseItem.Disable()
	}

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit BoothBuddy")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()

	if t.kiosk != nil {
		t.render(t.kiosk.Snapshot())
		t.unsub = t.kiosk.Subscribe(t.render)
	} else {
		captureItem.Disable()
		resetItem.Disable()
	}

	go func() {
		for {
			select {
			case <-captureItem.ClickedCh:
				t.handleCapture()
			case <-resetItem.ClickedCh:
				t.handleReset()
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	if t.unsub != nil {
		t.unsub()
	}
	t.logger.Info("system tray exiting")
}

func (t *Tray) handleCapture() {
	if err := t.kiosk.StartCapture(); err != nil {
		t.logger.Warn("capture from tray failed", "error", err)
	}
}

func (t *Tray) handleReset() {
	if err := t.kiosk.Reset(); err != nil {
		t.logger.Warn("reset from tray failed", "error", err)
	}
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.janitor == nil {
		return
	}

	if t.janitor.IsPaused() {
		t.janitor.Resume()
		t.pauseItem.SetTitle("Pause cleanup")
	} else {
		t.janitor.Pause()
		t.pauseItem.SetTitle("Resume cleanup")
	}
}

func (t *Tray) render(s kiosk.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ready {
		return
	}
	t.statusItem.SetTitle("Status: " + StatusText(s))
	t.userItem.SetTitle("User: " + UserText(s))
}

// StatusText summarizes a snapshot for the tray menu.
func StatusText(s kiosk.Snapshot) string {
	switch s.Capture.Phase {
	case booth.PhaseCounting:
		return fmt.Sprintf("Shot %d/%d in %d", s.Capture.Step, s.Capture.Shots, s.Capture.SecondsLeft)
	case booth.PhaseFlashing, booth.PhaseCapturing:
		return fmt.Sprintf("Capturing %d/%d", s.Capture.Step, s.Capture.Shots)
	}

	switch {
	case s.Strip != nil && s.Strip.SavedPath != "":
		return "Strip saved"
	case s.Strip != nil:
		return "Strip ready"
	case len(s.Frames) > 0:
		return fmt.Sprintf("Captured %d/%d", len(s.Frames), s.Shots)
	case s.LastError != nil:
		return "Error: " + s.LastError.Message
	}
	return "Idle"
}

func UserText(s kiosk.Snapshot) string {
	if s.User == nil {
		return "guest"
	}
	if s.User.DisplayName != "" {
		return s.User.DisplayName
	}
	if s.User.Email != "" {
		return s.User.Email
	}
	return s.User.UID
}

func (t *Tray) Quit() {
	systray.Quit()
}
