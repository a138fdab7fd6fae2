// Package mqtt provides the broker transport with an abstraction for testing.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultConnectTimeout bounds the broker handshake.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultKeepAlive is the session keep-alive interval.
	DefaultKeepAlive = 100 * time.Second
	// DefaultClientIDPrefix is prepended to every generated client ID.
	DefaultClientIDPrefix = "weatherstation"
)

// ErrConnectTimeout is wrapped in a ConnectionError when the broker does not
// answer within the connect timeout.
var ErrConnectTimeout = errors.New("connect timeout")

// ConnectionError reports a failed session handshake.
type ConnectionError struct {
	Broker string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to broker %s: %v", e.Broker, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Message is one inbound publication.
type Message struct {
	Topic   string
	Payload []byte
}

// EventKind identifies a transport event.
type EventKind int

const (
	// EventConnectionLost is raised when an established session drops.
	EventConnectionLost EventKind = iota + 1
)

func (k EventKind) String() string {
	switch k {
	case EventConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// Event is an asynchronous transport notification.
type Event struct {
	Kind EventKind
	Err  error
}

// Sink receives everything a session delivers. Calls for one session are
// made one at a time and in arrival order.
type Sink interface {
	HandleMessage(Message)
	HandleEvent(Event)
}

// Client is a broker session that can be opened and closed repeatedly.
type Client interface {
	// Connect opens a new session that delivers to sink. Each call uses a
	// freshly generated client ID and a clean session.
	Connect(ctx context.Context, sink Sink) error

	// Subscribe subscribes the current session to topics.
	Subscribe(topics []string) error

	// Disconnect closes the current session. It is safe to call when not
	// connected.
	Disconnect()

	// IsConnected reports whether a session is established.
	IsConnected() bool
}

// Options configures a RealClient.
type Options struct {
	Broker         string
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	ClientIDPrefix string
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.ClientIDPrefix == "" {
		o.ClientIDPrefix = DefaultClientIDPrefix
	}
	return o
}

// NewClientID returns a unique client identifier.
func NewClientID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
