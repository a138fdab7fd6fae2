package gpio

import "sync"

// FakeLED records LED writes for test assertions.
type FakeLED struct {
	mu sync.Mutex

	// States contains every value passed to Set, in order.
	States []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeLED creates a FakeLED for testing.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records on.
func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.States = append(f.States, on)
	return nil
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// History returns a copy of the recorded states.
func (f *FakeLED) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.States...)
}
