package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/ingest"
	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/metrics"
	"github.com/sweeney/weatherstation/internal/mqtt"
	"github.com/sweeney/weatherstation/internal/status"
	"github.com/sweeney/weatherstation/internal/store"
	"github.com/sweeney/weatherstation/internal/sun"
	"github.com/sweeney/weatherstation/internal/web"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type station struct {
	client  *mqtt.FakeClient
	store   *store.SQLStore
	tracker *status.Tracker
	engine  *ingest.Engine
	clock   *clock
	http    *httptest.Server
	topics  logic.TopicSet
}

func newStation(t *testing.T) *station {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "readings.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	topics := logic.DefaultTopics()
	tracker := status.NewTracker(c.Now(), status.Config{
		Broker: "tcp://broker:1883",
		Topics: topics.List(),
		Zone:   time.UTC,
		Now:    c.Now,
	})
	calc := sun.NewCalculator(60.056553, 16.793934, time.UTC)
	refresher := status.NewRefresher(tracker, s, calc, store.DefaultWindow, zap.NewNop())
	m := metrics.New()
	client := mqtt.NewFakeClient()

	engine := ingest.New(ingest.Config{
		Topics:       topics,
		SaveInterval: time.Hour,
		Now:          c.Now,
	}, client, s, tracker, refresher, m, zap.NewNop())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(runCtx)
	}()

	srv := web.New(":0", tracker, web.Deps{
		Store:   s,
		Intents: engine,
		Metrics: m.Handler(),
		Now:     c.Now,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
		cancel()
		<-done
	})

	return &station{
		client:  client,
		store:   s,
		tracker: tracker,
		engine:  engine,
		clock:   c,
		http:    ts,
		topics:  topics,
	}
}

func (st *station) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	if !st.client.Deliver(topic, payload) {
		t.Fatalf("deliver %s: not connected", topic)
	}
}

func (st *station) post(t *testing.T, path string) {
	t.Helper()
	resp, err := http.Post(st.http.URL+path, "text/plain", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST %s: status %d", path, resp.StatusCode)
	}
}

func (st *station) getJSON(t *testing.T, path string, v any) {
	t.Helper()
	resp, err := http.Get(st.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: decode: %v", path, err)
	}
}

func (st *station) index(t *testing.T) status.StatusInner {
	t.Helper()
	var body status.StatusJSON
	st.getJSON(t, "/index.json", &body)
	return body.Status
}

// saved reports whether the loop has accounted for n saves of loc.
func (st *station) saved(t *testing.T, loc logic.Location, n int) bool {
	t.Helper()
	resp, err := http.Get(st.http.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	line := fmt.Sprintf("weatherstation_saves_total{location=%q} %d\n", loc.String(), n)
	return strings.Contains(string(body), line)
}

func (st *station) count(t *testing.T, loc logic.Location) int {
	t.Helper()
	n, err := st.store.Count(context.Background(), loc)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestIntegrationFullFlow drives the station from broker messages through
// the save gate, SQLite and the derived refresh to the HTTP surface.
func TestIntegrationFullFlow(t *testing.T) {
	st := newStation(t)

	st.post(t, "/connect")
	waitFor(t, "connected", func() bool {
		return st.tracker.Snapshot().Connection == status.Connected
	})
	if got := st.client.LastSubscription(); len(got) != 4 {
		t.Fatalf("subscribed topics: %v", got)
	}

	// First complete pair is saved immediately.
	st.deliver(t, st.topics.GreenhouseTemperature, "20.04")
	st.deliver(t, st.topics.GreenhouseHumidity, "61")
	waitFor(t, "first save", func() bool { return st.saved(t, logic.LocationGreenhouse, 1) })
	if n := st.count(t, logic.LocationGreenhouse); n != 1 {
		t.Fatalf("stored readings: got %d", n)
	}
	waitFor(t, "day high after first save", func() bool {
		return st.index(t).Greenhouse.DayHigh == "20.0"
	})

	// Within the hour the view moves but nothing is stored.
	st.clock.Advance(30 * time.Minute)
	st.deliver(t, st.topics.GreenhouseTemperature, "25.0")
	waitFor(t, "view update", func() bool {
		return st.tracker.Snapshot().Greenhouse.Temperature == "25.0"
	})
	if n := st.count(t, logic.LocationGreenhouse); n != 1 {
		t.Fatalf("expected 1 stored reading within the interval, got %d", n)
	}

	// After the interval the next completed pair is stored.
	st.clock.Advance(31 * time.Minute)
	st.deliver(t, st.topics.GreenhouseHumidity, "55.5")
	waitFor(t, "second save", func() bool { return st.saved(t, logic.LocationGreenhouse, 2) })
	waitFor(t, "extremes after second save", func() bool {
		in := st.index(t)
		return in.Greenhouse.DayHigh == "25.0" && in.Greenhouse.DayLow == "20.0"
	})

	in := st.index(t)
	if in.Greenhouse.Temperature != "25.0" || in.Greenhouse.Humidity != "55.5" {
		t.Errorf("greenhouse view: %+v", in.Greenhouse)
	}
	if in.Greenhouse.Timestamp != "2026-05-01 13:01" {
		t.Errorf("greenhouse timestamp: got %q", in.Greenhouse.Timestamp)
	}
	if in.Brewery.Temperature != "0.0" || in.Brewery.Humidity != "0.0" {
		t.Errorf("brewery should be untouched: %+v", in.Brewery)
	}
	if !in.MQTT.Connected || in.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("mqtt status: %+v", in.MQTT)
	}
	if in.Sun.Sunrise == "" || in.Sun.Sunset == "" {
		t.Errorf("sun stats missing: %+v", in.Sun)
	}

	var history web.HistoryJSON
	st.getJSON(t, "/readings/greenhouse", &history)
	if len(history.Readings) != 2 {
		t.Fatalf("history: got %d readings", len(history.Readings))
	}
	newest := history.Readings[0]
	if newest.Temperature == nil || *newest.Temperature != 25.0 {
		t.Errorf("newest temperature: %v", newest.Temperature)
	}
	if newest.Humidity == nil || *newest.Humidity != 55.5 {
		t.Errorf("newest humidity: %v", newest.Humidity)
	}
	if want := st.clock.Now().UnixMilli(); newest.Timestamp != want {
		t.Errorf("newest timestamp: got %d, want %d", newest.Timestamp, want)
	}
	if history.High != "25.0" || history.Low != "20.0" {
		t.Errorf("history extremes: high=%s low=%s", history.High, history.Low)
	}

	// Disconnect clears the live view; stored data is kept.
	st.post(t, "/disconnect")
	in = st.index(t)
	if in.MQTT.Connected || in.MQTT.Connection != string(status.Disconnected) {
		t.Errorf("expected disconnected, got %+v", in.MQTT)
	}
	if in.Greenhouse.Temperature != "0.0" || in.Greenhouse.Humidity != "0.0" {
		t.Errorf("view not cleared: %+v", in.Greenhouse)
	}
	if n := st.count(t, logic.LocationGreenhouse); n != 2 {
		t.Errorf("stored readings after disconnect: got %d", n)
	}
	if st.client.Deliver(st.topics.GreenhouseTemperature, "30.0") {
		t.Error("delivery should fail without a session")
	}
}

func TestIntegrationLocationsAreIndependent(t *testing.T) {
	st := newStation(t)
	if err := st.engine.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	st.deliver(t, st.topics.BreweryTemperature, "18.5")
	st.deliver(t, st.topics.GreenhouseHumidity, "40")
	st.deliver(t, st.topics.BreweryHumidity, "72.26")
	waitFor(t, "brewery save", func() bool { return st.saved(t, logic.LocationBrewery, 1) })

	if n := st.count(t, logic.LocationGreenhouse); n != 0 {
		t.Errorf("greenhouse has only humidity, expected no save, got %d", n)
	}

	latest, ok, err := st.store.Latest(context.Background(), logic.LocationBrewery)
	if err != nil || !ok {
		t.Fatalf("latest brewery: ok=%v err=%v", ok, err)
	}
	if *latest.Temperature != 18.5 || *latest.Humidity != 72.3 {
		t.Errorf("brewery reading: temp=%v hum=%v", *latest.Temperature, *latest.Humidity)
	}

	snap := st.tracker.Snapshot()
	if snap.Greenhouse.Humidity != "40.0" || snap.Greenhouse.Temperature != "0.0" {
		t.Errorf("greenhouse view: %+v", snap.Greenhouse)
	}
}
