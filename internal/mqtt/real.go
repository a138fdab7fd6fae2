package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// subscribeTimeout bounds the SUBACK wait.
const subscribeTimeout = 10 * time.Second

// RealClient talks to an actual MQTT broker through paho. Every Connect
// builds a new paho client so that the client ID is fresh per attempt.
type RealClient struct {
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	client paho.Client
	sink   Sink
}

// NewRealClient creates a client for opts.Broker. It does not connect.
func NewRealClient(opts Options, logger *zap.Logger) *RealClient {
	return &RealClient{
		opts: opts.withDefaults(),
		log:  logger,
	}
}

// Connect opens a clean session. The transport's own reconnect logic is
// disabled; a dropped session is reported to sink as EventConnectionLost.
func (c *RealClient) Connect(ctx context.Context, sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Disconnect(250)
		c.client = nil
	}

	clientID := NewClientID(c.opts.ClientIDPrefix)
	po := paho.NewClientOptions().
		AddBroker(c.opts.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetConnectTimeout(c.opts.ConnectTimeout).
		SetKeepAlive(c.opts.KeepAlive).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			sink.HandleEvent(Event{Kind: EventConnectionLost, Err: err})
		})

	client := paho.NewClient(po)
	token := client.Connect()

	timer := time.NewTimer(c.opts.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		client.Disconnect(0)
		return &ConnectionError{Broker: c.opts.Broker, Err: ErrConnectTimeout}
	case <-ctx.Done():
		client.Disconnect(0)
		return &ConnectionError{Broker: c.opts.Broker, Err: ctx.Err()}
	}
	if err := token.Error(); err != nil {
		return &ConnectionError{Broker: c.opts.Broker, Err: err}
	}

	c.client = client
	c.sink = sink
	c.log.Debug("session established", zap.String("broker", c.opts.Broker), zap.String("client_id", clientID))
	return nil
}

// Subscribe subscribes to every topic at QoS 0.
func (c *RealClient) Subscribe(topics []string) error {
	c.mu.Lock()
	client, sink := c.client, c.sink
	c.mu.Unlock()

	if client == nil {
		return fmt.Errorf("subscribe: not connected")
	}

	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = 0
	}
	token := client.SubscribeMultiple(filters, func(_ paho.Client, m paho.Message) {
		sink.HandleMessage(Message{Topic: m.Topic(), Payload: m.Payload()})
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Disconnect closes the session, waiting up to 250ms for in-flight work.
func (c *RealClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return
	}
	c.client.Disconnect(250)
	c.client = nil
	c.sink = nil
}

// IsConnected reports whether the session is up.
func (c *RealClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnected()
}
