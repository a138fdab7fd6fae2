package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/weatherstation/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Greenhouse    LocationJSON `json:"greenhouse"`
	Brewery       LocationJSON `json:"brewery"`
	Sun           SunJSON      `json:"sun"`
	MQTT          MQTTStatus   `json:"mqtt"`
	LastError     string       `json:"last_error,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	UpdatedAt     string       `json:"updated_at"`
}

// LocationJSON is the JSON representation of a LocationView.
type LocationJSON struct {
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
	Timestamp   string `json:"timestamp"`
	DayHigh     string `json:"day_high"`
	DayLow      string `json:"day_low"`
}

// SunJSON is the JSON representation of the sun statistics.
type SunJSON struct {
	Sunrise               string `json:"sunrise"`
	Sunset                string `json:"sunset"`
	DeltaWeekMinutes      int    `json:"delta_week_minutes"`
	DeltaMidwinterMinutes int    `json:"delta_midwinter_minutes"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connection string   `json:"connection"`
	Connected  bool     `json:"connected"`
	Broker     string   `json:"broker"`
	Topics     []string `json:"topics,omitempty"`
}

func locationJSON(v LocationView) LocationJSON {
	return LocationJSON{
		Temperature: v.Temperature,
		Humidity:    v.Humidity,
		Timestamp:   v.Timestamp,
		DayHigh:     logic.FormatValue(v.DayHigh),
		DayLow:      logic.FormatValue(v.DayLow),
	}
}

// Build converts a snapshot into its JSON representation.
func Build(snap Snapshot, now time.Time) StatusJSON {
	return StatusJSON{Status: StatusInner{
		Greenhouse: locationJSON(snap.Greenhouse),
		Brewery:    locationJSON(snap.Brewery),
		Sun: SunJSON{
			Sunrise:               snap.Sun.Sunrise,
			Sunset:                snap.Sun.Sunset,
			DeltaWeekMinutes:      snap.Sun.DeltaWeek,
			DeltaMidwinterMinutes: snap.Sun.DeltaMidwinter,
		},
		MQTT: MQTTStatus{
			Connection: string(snap.Connection),
			Connected:  snap.Connection == Connected,
			Broker:     snap.Config.Broker,
			Topics:     snap.Config.Topics,
		},
		LastError:     snap.LastError,
		UptimeSeconds: int64(now.Sub(snap.StartTime).Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		UpdatedAt:     snap.UpdatedAt.UTC().Format(time.RFC3339),
	}}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot, now time.Time) []byte {
	data, _ := json.MarshalIndent(Build(snap, now), "", "  ")
	return data
}
