// Package store persists sensor readings and answers the simple per-location
// queries the live view needs.
package store

import (
	"context"
	"fmt"
	"math"

	"github.com/sweeney/weatherstation/internal/logic"
)

// DefaultWindow is the number of most recent readings used for the day
// high and low.
const DefaultWindow = 24

// Store is an append-only log of readings keyed by location.
type Store interface {
	// Insert appends one reading and returns it with its assigned ID.
	Insert(ctx context.Context, r logic.Reading) (logic.Reading, error)

	// Latest returns the most recent reading for loc; ok is false when none exist.
	Latest(ctx context.Context, loc logic.Location) (logic.Reading, bool, error)

	// LastN returns up to n readings for loc, newest first.
	LastN(ctx context.Context, loc logic.Location, n int) ([]logic.Reading, error)

	// All returns every reading for loc in no particular order.
	All(ctx context.Context, loc logic.Location) ([]logic.Reading, error)

	// Count returns the number of stored readings for loc.
	Count(ctx context.Context, loc logic.Location) (int, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// StorageError wraps a persistence failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Extremes holds the highest and lowest temperature of a window.
type Extremes struct {
	High float64
	Low  float64
}

// HighLow computes the temperature extremes of readings. Readings without a
// temperature count as the lowest possible value for the high and are
// skipped for the low. Ties keep the first reading seen. Both values are 0
// when no reading has a temperature.
func HighLow(readings []logic.Reading) Extremes {
	var (
		e       Extremes
		best    = -1
		bestKey = math.Inf(-1)
		low     *float64
	)
	for i, r := range readings {
		key := math.Inf(-1)
		if r.Temperature != nil {
			key = *r.Temperature
		}
		if best < 0 || key > bestKey {
			best, bestKey = i, key
		}
		if r.Temperature != nil && (low == nil || *r.Temperature < *low) {
			low = r.Temperature
		}
	}

	if best >= 0 && readings[best].Temperature != nil {
		e.High = *readings[best].Temperature
	}
	if low != nil {
		e.Low = *low
	}
	return e
}

// WindowExtremes loads the last n readings for loc and computes their
// extremes.
func WindowExtremes(ctx context.Context, s Store, loc logic.Location, n int) (Extremes, error) {
	readings, err := s.LastN(ctx, loc, n)
	if err != nil {
		return Extremes{}, err
	}
	return HighLow(readings), nil
}
