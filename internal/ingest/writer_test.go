package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/store"
)

func TestWriterReportsResults(t *testing.T) {
	m := store.NewMemory()
	w := newWriter(logic.LocationBrewery, m, time.Second, zap.NewNop())
	results := make(chan writeResult, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.run(ctx, results)

	if err := w.push(logic.Reading{Location: logic.LocationBrewery, Temperature: logic.Float(10)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case r := <-results:
		if r.err != nil {
			t.Fatalf("unexpected error: %v", r.err)
		}
		if r.reading.ID == 0 {
			t.Error("expected the stored reading with its ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}

	m.SetInsertError(errors.New("locked"))
	if err := w.push(logic.Reading{Location: logic.LocationBrewery, Temperature: logic.Float(11)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case r := <-results:
		var se *store.StorageError
		if !errors.As(r.err, &se) {
			t.Fatalf("expected StorageError, got %v", r.err)
		}
		if r.reading.Location != logic.LocationBrewery || *r.reading.Temperature != 11 {
			t.Errorf("failed result should carry the attempted reading, got %+v", r.reading)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
}

func TestWriterRefusesSecondReading(t *testing.T) {
	w := newWriter(logic.LocationGreenhouse, store.NewMemory(), time.Second, zap.NewNop())

	// Not running, so the first reading stays in the slot.
	if err := w.push(logic.Reading{Location: logic.LocationGreenhouse, Temperature: logic.Float(1)}); err != nil {
		t.Fatalf("first push: %v", err)
	}
	if err := w.push(logic.Reading{Location: logic.LocationGreenhouse, Temperature: logic.Float(2)}); !errors.Is(err, errWriterBusy) {
		t.Fatalf("second push: got %v, want errWriterBusy", err)
	}
}

func TestWriterWritesPendingOnShutdown(t *testing.T) {
	m := store.NewMemory()
	w := newWriter(logic.LocationGreenhouse, m, time.Second, zap.NewNop())
	if err := w.push(logic.Reading{Location: logic.LocationGreenhouse, Temperature: logic.Float(1)}); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(ctx, make(chan writeResult))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
	if n, _ := m.Count(context.Background(), logic.LocationGreenhouse); n != 1 {
		t.Errorf("expected pending reading to be written, got %d", n)
	}
}
