// Package notify publishes booth events to external listeners.
package notify

import (
	"context"
	"time"
)

const (
	EventCaptureCompleted = "capture.completed"
	EventStripComposed    = "strip.composed"
	EventStripSaved       = "strip.saved"
	EventError            = "error"
)

type Event struct {
	Type    string    `json:"type"`
	StripID string    `json:"stripId,omitempty"`
	UserID  string    `json:"userId,omitempty"`
	URL     string    `json:"url,omitempty"`
	Frames  int       `json:"frames,omitempty"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(ctx context.Context, ev Event) error { return nil }

func (Nop) Close() error { return nil }
