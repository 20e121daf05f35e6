package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTNotifier publishes events as JSON to <prefix>/<event type>.
type MQTTNotifier struct {
	client mqtt.Client
	prefix string
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

type MQTTOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// NewMQTTNotifier builds a notifier with an auto-reconnecting paho client.
// Call Connect before publishing.
func NewMQTTNotifier(opts MQTTOptions, logger *slog.Logger) *MQTTNotifier {
	n := &MQTTNotifier{
		prefix: strings.TrimRight(opts.TopicPrefix, "/"),
		logger: logger,
	}

	broker := opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(broker)
	co.SetClientID(opts.ClientID)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)

	co.OnConnect = func(c mqtt.Client) {
		n.setConnected(true)
		logger.Info("mqtt connection established", "broker", broker, "client_id", opts.ClientID)
	}
	co.OnConnectionLost = func(c mqtt.Client, err error) {
		n.setConnected(false)
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	n.client = mqtt.NewClient(co)
	return n
}

func newMQTTNotifierWithClient(client mqtt.Client, prefix string, logger *slog.Logger) *MQTTNotifier {
	return &MQTTNotifier{client: client, prefix: prefix, logger: logger, connected: client.IsConnected()}
}

func (n *MQTTNotifier) Connect(ctx context.Context) error {
	token := n.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	n.setConnected(true)
	return nil
}

func (n *MQTTNotifier) Publish(ctx context.Context, ev Event) error {
	if !n.isConnected() {
		n.countError()
		return fmt.Errorf("mqtt not connected")
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		n.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := n.Topic(ev.Type)
	token := n.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		n.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		n.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	n.mu.Lock()
	n.published++
	n.mu.Unlock()

	n.logger.Debug("event published", "topic", topic, "size", len(payload))
	return nil
}

func (n *MQTTNotifier) Topic(eventType string) string {
	if n.prefix == "" {
		return eventType
	}
	return n.prefix + "/" + eventType
}

// Close disconnects with a 250ms grace period.
func (n *MQTTNotifier) Close() error {
	if n.client != nil && n.client.IsConnected() {
		n.client.Disconnect(250)
		n.logger.Info("mqtt disconnected")
	}
	n.setConnected(false)
	return nil
}

// Stats returns the published and failed counts.
func (n *MQTTNotifier) Stats() (published, errors uint64) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.published, n.errors
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected
}

func (n *MQTTNotifier) countError() {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
}
