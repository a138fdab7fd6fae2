package mqtt

import (
	"context"
	"sync"
)

// FakeClient records session activity for test assertions and lets tests
// inject messages and connection loss.
type FakeClient struct {
	mu sync.Mutex

	// ConnectErrors are returned by successive Connect calls; once
	// exhausted, Connect succeeds.
	ConnectErrors []error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Connects counts Connect calls, successful or not.
	Connects int

	// Disconnects counts Disconnect calls.
	Disconnects int

	// Subscriptions holds the topic list of every Subscribe call.
	Subscriptions [][]string

	connected bool
	sink      Sink
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Connect records the attempt and, unless an error is queued, opens a fake
// session delivering to sink.
func (f *FakeClient) Connect(_ context.Context, sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Connects++
	if len(f.ConnectErrors) > 0 {
		err := f.ConnectErrors[0]
		f.ConnectErrors = f.ConnectErrors[1:]
		if err != nil {
			return &ConnectionError{Broker: "fake", Err: err}
		}
	}
	f.connected = true
	f.sink = sink
	return nil
}

// Subscribe records topics.
func (f *FakeClient) Subscribe(topics []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.Subscriptions = append(f.Subscriptions, append([]string(nil), topics...))
	return nil
}

// Disconnect closes the fake session.
func (f *FakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnects++
	f.connected = false
	f.sink = nil
}

// IsConnected reports whether the fake session is open.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Deliver hands a message to the current session. It reports false when
// there is no session.
func (f *FakeClient) Deliver(topic string, payload string) bool {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()

	if sink == nil {
		return false
	}
	sink.HandleMessage(Message{Topic: topic, Payload: []byte(payload)})
	return true
}

// Drop simulates the broker dropping the session with err.
func (f *FakeClient) Drop(err error) {
	f.mu.Lock()
	sink := f.sink
	f.connected = false
	f.sink = nil
	f.mu.Unlock()

	if sink != nil {
		sink.HandleEvent(Event{Kind: EventConnectionLost, Err: err})
	}
}

// ConnectCount returns the number of Connect calls.
func (f *FakeClient) ConnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connects
}

// LastSubscription returns the topics of the most recent Subscribe call.
func (f *FakeClient) LastSubscription() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Subscriptions) == 0 {
		return nil
	}
	return append([]string(nil), f.Subscriptions[len(f.Subscriptions)-1]...)
}

// FailNextConnect queues err for the next Connect call.
func (f *FakeClient) FailNextConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectErrors = append(f.ConnectErrors, err)
}
