// Package status holds the live view of the weather station: the latest
// formatted readings per location, the broker connection state and the
// derived sun and high/low statistics. It is read by the HTTP layer and the
// status LED while the ingestion engine writes to it.
package status

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/store"
	"github.com/sweeney/weatherstation/internal/sun"
)

// TimestampLayout is the format of LocationView.Timestamp.
const TimestampLayout = "2006-01-02 15:04"

// ConnectionStatus reflects the broker session state.
type ConnectionStatus string

const (
	Connected    ConnectionStatus = "CONNECTED"
	Disconnected ConnectionStatus = "DISCONNECTED"
)

// LocationView is the formatted snapshot of one sensor location.
type LocationView struct {
	Temperature string
	Humidity    string
	Timestamp   string
	DayHigh     float64
	DayLow      float64
}

func defaultView() LocationView {
	return LocationView{Temperature: "0.0", Humidity: "0.0"}
}

// Config contains daemon configuration for display.
type Config struct {
	Broker string
	Topics []string
	// Zone is used for LocationView timestamps. Nil means time.Local.
	Zone *time.Location
	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Snapshot is a point-in-time view of the station.
// It is a value type and safe to keep after it has been returned.
type Snapshot struct {
	Greenhouse LocationView
	Brewery    LocationView
	Connection ConnectionStatus
	Sun        sun.Stats
	// LastError is the most recent ingestion failure, empty if none.
	LastError string
	StartTime time.Time
	UpdatedAt time.Time
	Config    Config
}

// View returns the view of loc.
func (s Snapshot) View(loc logic.Location) LocationView {
	if loc == logic.LocationBrewery {
		return s.Brewery
	}
	return s.Greenhouse
}

func (s *Snapshot) setView(loc logic.Location, v LocationView) {
	switch loc {
	case logic.LocationGreenhouse:
		s.Greenhouse = v
	case logic.LocationBrewery:
		s.Brewery = v
	}
}

// Tracker publishes immutable snapshots. Readers load the current pointer
// without locking; writers serialize on mu and publish a fresh copy.
type Tracker struct {
	mu   sync.Mutex
	cur  atomic.Pointer[Snapshot]
	subs map[int]chan Snapshot
	next int
	now  func() time.Time
	zone *time.Location
}

// NewTracker creates a Tracker in the cleared state.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	t := &Tracker{
		subs: make(map[int]chan Snapshot),
		now:  cfg.Now,
		zone: cfg.Zone,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.zone == nil {
		t.zone = time.Local
	}
	t.cur.Store(&Snapshot{
		Greenhouse: defaultView(),
		Brewery:    defaultView(),
		Connection: Disconnected,
		StartTime:  startTime,
		UpdatedAt:  startTime,
		Config:     cfg,
	})
	return t
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	return *t.cur.Load()
}

// update applies fn to a copy of the current snapshot and publishes it.
func (t *Tracker) update(fn func(s *Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := *t.cur.Load()
	fn(&next)
	next.UpdatedAt = t.now()
	t.cur.Store(&next)

	for _, ch := range t.subs {
		// Latest value wins: drop the stale one if the reader is behind.
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// UpdateField overwrites one field of a location and stamps the local time.
func (t *Tracker) UpdateField(loc logic.Location, field logic.Field, formatted string) {
	if !loc.Valid() {
		return
	}
	stamp := t.now().In(t.zone).Format(TimestampLayout)
	t.update(func(s *Snapshot) {
		v := s.View(loc)
		switch field {
		case logic.FieldTemperature:
			v.Temperature = formatted
		case logic.FieldHumidity:
			v.Humidity = formatted
		default:
			return
		}
		v.Timestamp = stamp
		s.setView(loc, v)
	})
}

// SetConnection sets the broker connection status.
func (t *Tracker) SetConnection(c ConnectionStatus) {
	t.update(func(s *Snapshot) {
		s.Connection = c
	})
}

// SetError records the latest ingestion failure.
func (t *Tracker) SetError(msg string) {
	t.update(func(s *Snapshot) {
		s.LastError = msg
	})
}

// SetDerived publishes freshly computed sun statistics and per-location
// extremes in a single step. Locations missing from extremes keep their
// previous values.
func (t *Tracker) SetDerived(stats sun.Stats, extremes map[logic.Location]store.Extremes) {
	t.update(func(s *Snapshot) {
		s.Sun = stats
		for loc, e := range extremes {
			v := s.View(loc)
			v.DayHigh = e.High
			v.DayLow = e.Low
			s.setView(loc, v)
		}
	})
}

// Clear resets both locations and marks the connection as disconnected.
// Sun statistics are kept; they do not depend on the broker.
func (t *Tracker) Clear() {
	t.update(func(s *Snapshot) {
		s.Greenhouse = defaultView()
		s.Brewery = defaultView()
		s.Connection = Disconnected
	})
}

// Subscribe returns a channel that receives every published snapshot, and a
// cancel func that must be called to release it. The channel holds only the
// latest snapshot.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.next
	t.next++
	ch := make(chan Snapshot, 1)
	ch <- *t.cur.Load()
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}
