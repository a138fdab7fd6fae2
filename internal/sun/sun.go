// Package sun computes sunrise, sunset and day-length statistics for a fixed
// observer. All results are deterministic for a given date and coordinate.
package sun

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Default observer coordinate.
const (
	DefaultLatitude  = 60.056553
	DefaultLongitude = 16.793934
)

// NoEvent is reported when the sun does not rise or set on a day.
const NoEvent = "00:00"

const clockLayout = "15:04"

// Stats is the derived sun view shown next to the sensor readings.
type Stats struct {
	Sunrise string
	Sunset  string
	// DeltaWeek is today's day length minus the day length seven days ago, in minutes.
	DeltaWeek int
	// DeltaMidwinter is today's day length minus the midwinter day length, in minutes.
	DeltaMidwinter int
}

// Calculator computes sun times for one coordinate in one time zone.
type Calculator struct {
	lat, lon float64
	loc      *time.Location
}

// NewCalculator returns a calculator for the given coordinate. Times are
// formatted in zone; a nil zone means time.Local.
func NewCalculator(lat, lon float64, zone *time.Location) *Calculator {
	if zone == nil {
		zone = time.Local
	}
	return &Calculator{lat: lat, lon: lon, loc: zone}
}

// day anchors t to midnight of its calendar day in the observer's zone.
func (c *Calculator) day(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// events returns the rise and set instants for the calendar day of date.
// Either value is the zero time when the event does not happen that day.
func (c *Calculator) events(date time.Time) (time.Time, time.Time) {
	d := c.day(date)
	return sunrise.SunriseSunset(c.lat, c.lon, d.Year(), d.Month(), d.Day())
}

// SunTimes returns sunrise and sunset as HH:mm in the observer's zone, or
// NoEvent for an event that does not occur.
func (c *Calculator) SunTimes(date time.Time) (string, string) {
	rise, set := c.events(date)
	return c.clock(rise), c.clock(set)
}

func (c *Calculator) clock(t time.Time) string {
	if t.IsZero() {
		return NoEvent
	}
	return t.In(c.loc).Format(clockLayout)
}

// DayLengthMinutes returns the whole minutes between sunrise and sunset.
// Polar day and polar night both report 0.
func (c *Calculator) DayLengthMinutes(date time.Time) int {
	rise, set := c.events(date)
	return DayLength(rise, set)
}

// DayLength returns the whole minutes from rise to set, or 0 when either is
// missing.
func DayLength(rise, set time.Time) int {
	if rise.IsZero() || set.IsZero() {
		return 0
	}
	return int(set.Sub(rise) / time.Minute)
}

// DeltaVsPreviousWeek compares the day length of date with seven days earlier.
func (c *Calculator) DeltaVsPreviousWeek(date time.Time) int {
	d := c.day(date)
	return c.DayLengthMinutes(d) - c.DayLengthMinutes(d.AddDate(0, 0, -7))
}

// DeltaVsMidwinter compares the day length of date with December 21 of the
// previous year.
func (c *Calculator) DeltaVsMidwinter(date time.Time) int {
	d := c.day(date)
	return c.DayLengthMinutes(d) - c.DayLengthMinutes(MidwinterAnchor(d))
}

// MidwinterAnchor returns December 21 of the year before date, in date's
// zone. Dates from Dec 21 to Dec 31 still compare with the prior year.
func MidwinterAnchor(date time.Time) time.Time {
	return time.Date(date.Year()-1, time.December, 21, 0, 0, 0, 0, date.Location())
}

// Compute returns all sun statistics for date.
func (c *Calculator) Compute(date time.Time) Stats {
	rise, set := c.SunTimes(date)
	return Stats{
		Sunrise:        rise,
		Sunset:         set,
		DeltaWeek:      c.DeltaVsPreviousWeek(date),
		DeltaMidwinter: c.DeltaVsMidwinter(date),
	}
}
