// Package logic contains the pure domain model of the weather station:
// locations, topic routing, payload handling and the hourly save gate.
// This package has NO external dependencies (no MQTT, database, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// Location identifies a physical sensor pair. The numeric values are the
// ordinals persisted in the readings table; 0 is reserved as invalid.
type Location int

const (
	LocationInvalid    Location = 0
	LocationGreenhouse Location = 1
	LocationBrewery    Location = 2
)

// Locations lists every valid location in display order.
var Locations = []Location{LocationGreenhouse, LocationBrewery}

func (l Location) String() string {
	switch l {
	case LocationGreenhouse:
		return "greenhouse"
	case LocationBrewery:
		return "brewery"
	default:
		return "invalid"
	}
}

// Valid reports whether l is one of the known sensor locations.
func (l Location) Valid() bool {
	return l == LocationGreenhouse || l == LocationBrewery
}

// ParseLocation accepts a location name (case-insensitive) or its ordinal.
func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "greenhouse", "1":
		return LocationGreenhouse, nil
	case "brewery", "2":
		return LocationBrewery, nil
	}
	return LocationInvalid, fmt.Errorf("unknown location %q", s)
}

// Field names one half of a sensor pair.
type Field string

const (
	FieldTemperature Field = "temperature"
	FieldHumidity    Field = "humidity"
)

// Reading is one persisted observation. Temperature and Humidity are nil
// when the value is absent.
type Reading struct {
	ID          int64
	Location    Location
	Temperature *float64
	Humidity    *float64
	Timestamp   time.Time
}

// Float returns a pointer to v. Convenience for building readings.
func Float(v float64) *float64 {
	return &v
}

// TimestampMillis returns the reading time as epoch milliseconds, the unit
// used by the persisted schema.
func (r Reading) TimestampMillis() int64 {
	return r.Timestamp.UnixMilli()
}
