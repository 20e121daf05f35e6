package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	connected    bool
	err          error
	messages     []published
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connected = c.err == nil
	c.mu.Unlock()
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.messages = append(c.messages, published{topic: topic, payload: payload.([]byte)})
	}
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	c.disconnected = true
	c.connected = false
	c.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMQTTNotifier_Publish(t *testing.T) {
	fc := &fakeClient{connected: true}
	n := newMQTTNotifierWithClient(fc, "booth/1", testLogger())

	err := n.Publish(context.Background(), Event{Type: EventStripSaved, StripID: "s1", UserID: "u1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(fc.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(fc.messages))
	}
	if fc.messages[0].topic != "booth/1/strip.saved" {
		t.Errorf("topic = %q", fc.messages[0].topic)
	}
	var ev Event
	if err := json.Unmarshal(fc.messages[0].payload, &ev); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if ev.StripID != "s1" || ev.At.IsZero() {
		t.Errorf("event = %+v", ev)
	}
	if pub, errs := n.Stats(); pub != 1 || errs != 0 {
		t.Errorf("Stats() = %d, %d", pub, errs)
	}
}

func TestMQTTNotifier_NotConnected(t *testing.T) {
	n := newMQTTNotifierWithClient(&fakeClient{}, "booth", testLogger())
	if err := n.Publish(context.Background(), Event{Type: EventError}); err == nil {
		t.Fatal("expected error when not connected")
	}
	if _, errs := n.Stats(); errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
}

func TestMQTTNotifier_PublishFailure(t *testing.T) {
	fc := &fakeClient{connected: true, err: errors.New("broker gone")}
	n := newMQTTNotifierWithClient(fc, "booth", testLogger())
	if err := n.Publish(context.Background(), Event{Type: EventError}); err == nil {
		t.Fatal("expected publish error")
	}
}

func TestMQTTNotifier_ConnectAndClose(t *testing.T) {
	fc := &fakeClient{}
	n := newMQTTNotifierWithClient(fc, "", testLogger())
	if err := n.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := n.Topic(EventStripComposed); got != "strip.composed" {
		t.Errorf("Topic() = %q", got)
	}
	n.Close()
	if !fc.disconnected {
		t.Error("Close() did not disconnect")
	}
	if err := n.Publish(context.Background(), Event{Type: EventError}); err == nil {
		t.Error("Publish() after Close() should fail")
	}
}
