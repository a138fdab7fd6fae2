package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sweeney/weatherstation/internal/logic"
)

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	readings []logic.Reading
	nextID   int64

	// InsertError, if set, is returned by Insert (wrapped in a StorageError).
	InsertError error

	// PingError, if set, is returned by Ping (wrapped in a StorageError).
	PingError error

	// Inserts counts Insert calls, including failed ones.
	Inserts int

	// Closed tracks if Close was called.
	Closed bool
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

// SetInsertError makes subsequent inserts fail with err (nil clears it).
func (m *Memory) SetInsertError(err error) {
	m.mu.Lock()
	m.InsertError = err
	m.mu.Unlock()
}

// SetPingError makes subsequent pings fail with err (nil clears it).
func (m *Memory) SetPingError(err error) {
	m.mu.Lock()
	m.PingError = err
	m.mu.Unlock()
}

// InsertCount returns the number of Insert calls so far.
func (m *Memory) InsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Inserts
}

// Insert implements Store.
func (m *Memory) Insert(_ context.Context, r logic.Reading) (logic.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Inserts++
	if m.InsertError != nil {
		return logic.Reading{}, storageError("insert reading", m.InsertError)
	}
	r.ID = m.nextID
	m.nextID++
	m.readings = append(m.readings, copyReading(r))
	return r, nil
}

// Latest implements Store.
func (m *Memory) Latest(ctx context.Context, loc logic.Location) (logic.Reading, bool, error) {
	rs, _ := m.LastN(ctx, loc, 1)
	if len(rs) == 0 {
		return logic.Reading{}, false, nil
	}
	return rs[0], true, nil
}

// LastN implements Store.
func (m *Memory) LastN(_ context.Context, loc logic.Location, n int) ([]logic.Reading, error) {
	if n <= 0 {
		return nil, nil
	}
	all := m.byLocation(loc)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID > all[j].ID
		}
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// All implements Store.
func (m *Memory) All(_ context.Context, loc logic.Location) ([]logic.Reading, error) {
	return m.byLocation(loc), nil
}

// Count implements Store.
func (m *Memory) Count(_ context.Context, loc logic.Location) (int, error) {
	return len(m.byLocation(loc)), nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return storageError("ping", m.PingError)
}

// Close marks the store as closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) byLocation(loc logic.Location) []logic.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []logic.Reading
	for _, r := range m.readings {
		if r.Location == loc {
			out = append(out, copyReading(r))
		}
	}
	return out
}

func copyReading(r logic.Reading) logic.Reading {
	if r.Temperature != nil {
		r.Temperature = logic.Float(*r.Temperature)
	}
	if r.Humidity != nil {
		r.Humidity = logic.Float(*r.Humidity)
	}
	return r
}
