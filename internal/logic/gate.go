package logic

import "time"

// DefaultSaveInterval is the minimum spacing between two persisted readings
// of the same location.
const DefaultSaveInterval = time.Hour

// Accumulator collects the two halves of a reading between saves.
// A nil field is absent.
type Accumulator struct {
	Temperature *float64
	Humidity    *float64
}

// Complete reports whether both halves are present.
func (a Accumulator) Complete() bool {
	return a.Temperature != nil && a.Humidity != nil
}

// locationState tracks the save gate of a single location.
type locationState struct {
	pending  Accumulator
	lastSave time.Time
	inFlight bool
}

// Gate applies the hourly persistence policy independently per location.
// It is not safe for concurrent use; the ingestion loop owns it.
type Gate struct {
	interval time.Duration
	states   map[Location]*locationState
}

// NewGate creates a gate that allows one save per location per interval.
func NewGate(interval time.Duration) *Gate {
	g := &Gate{
		interval: interval,
		states:   make(map[Location]*locationState, len(Locations)),
	}
	for _, l := range Locations {
		g.states[l] = &locationState{}
	}
	return g
}

// Update records a field value and returns the reading to persist, if the
// accumulator is complete, the interval has elapsed since the last save and
// no save is already in flight. The caller must report the outcome with
// Saved or SaveFailed.
func (g *Gate) Update(loc Location, field Field, value float64, now time.Time) *Reading {
	st, ok := g.states[loc]
	if !ok {
		return nil
	}

	switch field {
	case FieldTemperature:
		st.pending.Temperature = Float(value)
	case FieldHumidity:
		st.pending.Humidity = Float(value)
	default:
		return nil
	}

	if st.inFlight || !st.pending.Complete() {
		return nil
	}
	// A zero lastSave means nothing was saved yet; the gate is open.
	if !st.lastSave.IsZero() && now.Sub(st.lastSave) < g.interval {
		return nil
	}

	st.inFlight = true
	return &Reading{
		Location:    loc,
		Temperature: Float(*st.pending.Temperature),
		Humidity:    Float(*st.pending.Humidity),
		Timestamp:   now,
	}
}

// Saved resets the accumulator after a successful write.
func (g *Gate) Saved(loc Location, at time.Time) {
	st, ok := g.states[loc]
	if !ok {
		return
	}
	st.pending = Accumulator{}
	st.lastSave = at
	st.inFlight = false
}

// SaveFailed releases the in-flight marker and keeps the pending values so
// the next completed pair retries the save.
func (g *Gate) SaveFailed(loc Location) {
	if st, ok := g.states[loc]; ok {
		st.inFlight = false
	}
}

// Pending returns a copy of the accumulator for loc.
func (g *Gate) Pending(loc Location) Accumulator {
	st, ok := g.states[loc]
	if !ok {
		return Accumulator{}
	}
	acc := Accumulator{}
	if st.pending.Temperature != nil {
		acc.Temperature = Float(*st.pending.Temperature)
	}
	if st.pending.Humidity != nil {
		acc.Humidity = Float(*st.pending.Humidity)
	}
	return acc
}

// LastSave returns the time of the last successful save for loc, or the
// zero time if nothing was saved yet.
func (g *Gate) LastSave(loc Location) time.Time {
	if st, ok := g.states[loc]; ok {
		return st.lastSave
	}
	return time.Time{}
}

// InFlight reports whether a save for loc awaits its outcome.
func (g *Gate) InFlight(loc Location) bool {
	if st, ok := g.states[loc]; ok {
		return st.inFlight
	}
	return false
}
