package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/store"
)

// maxReadings caps the n query parameter of /readings.
const maxReadings = 1000

// HistoryJSON is the response of /readings/{location}.
type HistoryJSON struct {
	Location string        `json:"location"`
	High     string        `json:"high"`
	Low      string        `json:"low"`
	Readings []ReadingJSON `json:"readings"`
}

// ReadingJSON is one stored reading. Absent values are null.
type ReadingJSON struct {
	ID          int64    `json:"id"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   int64    `json:"timestamp"`
	Time        string   `json:"time"`
}

func historyJSON(loc logic.Location, readings []logic.Reading) HistoryJSON {
	ext := store.HighLow(readings)
	h := HistoryJSON{
		Location: loc.String(),
		High:     logic.FormatValue(ext.High),
		Low:      logic.FormatValue(ext.Low),
		Readings: make([]ReadingJSON, 0, len(readings)),
	}
	for _, r := range readings {
		h.Readings = append(h.Readings, ReadingJSON{
			ID:          r.ID,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Timestamp:   r.TimestampMillis(),
			Time:        r.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return h
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	loc, err := logic.ParseLocation(mux.Vars(r)["location"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	n := s.deps.Window
	if q := r.URL.Query().Get("n"); q != "" {
		n, err = strconv.Atoi(q)
		if err != nil || n < 1 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > maxReadings {
			n = maxReadings
		}
	}

	readings, err := s.deps.Store.LastN(r.Context(), loc, n)
	if err != nil {
		s.log.Error("query readings", zap.Stringer("location", loc), zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	data, _ := json.MarshalIndent(historyJSON(loc, readings), "", "  ")
	w.Write(data)
}
