package ingest

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/store"
)

// errWriterBusy is returned by push while the previous reading of the same
// location has not been handed to the store yet.
var errWriterBusy = errors.New("save already pending for location")

// writeResult reports the outcome of one insert back to the engine loop.
type writeResult struct {
	reading logic.Reading
	err     error
}

// writer performs the inserts of one location off the engine loop. The gate
// allows one save in flight per location, so a single slot is enough.
type writer struct {
	loc     logic.Location
	store   store.Store
	timeout time.Duration
	log     *zap.Logger
	next    chan logic.Reading
}

func newWriter(loc logic.Location, s store.Store, timeout time.Duration, logger *zap.Logger) *writer {
	return &writer{
		loc:     loc,
		store:   s,
		timeout: timeout,
		log:     logger.With(zap.Stringer("location", loc)),
		next:    make(chan logic.Reading, 1),
	}
}

// push hands r to the writer without blocking.
func (w *writer) push(r logic.Reading) error {
	select {
	case w.next <- r:
		return nil
	default:
		return errWriterBusy
	}
}

// run writes readings until ctx is done. A reading handed over before
// shutdown is still written. In-flight inserts are not cancelled by ctx.
func (w *writer) run(ctx context.Context, results chan<- writeResult) {
	for {
		select {
		case <-ctx.Done():
			select {
			case r := <-w.next:
				w.write(ctx, r, results)
			default:
			}
			return
		case r := <-w.next:
			w.write(ctx, r, results)
		}
	}
}

func (w *writer) write(ctx context.Context, r logic.Reading, results chan<- writeResult) {
	ictx, cancel := context.WithTimeout(context.Background(), w.timeout)
	saved, err := w.store.Insert(ictx, r)
	cancel()
	if err != nil {
		saved = r
	}

	select {
	case results <- writeResult{reading: saved, err: err}:
	case <-ctx.Done():
		if err != nil {
			w.log.Error("insert reading during shutdown", zap.Error(err))
		}
	}
}
