package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/store"
	"github.com/sweeney/weatherstation/internal/sun"
)

// Refresher recomputes the derived statistics of the live view.
type Refresher struct {
	tracker *Tracker
	store   store.Store
	calc    *sun.Calculator
	window  int
	now     func() time.Time
	log     *zap.Logger
}

// NewRefresher creates a Refresher that uses the last window readings per
// location for the day high and low.
func NewRefresher(tracker *Tracker, s store.Store, calc *sun.Calculator, window int, logger *zap.Logger) *Refresher {
	if window < 1 {
		window = store.DefaultWindow
	}
	return &Refresher{
		tracker: tracker,
		store:   s,
		calc:    calc,
		window:  window,
		now:     time.Now,
		log:     logger,
	}
}

// Refresh recomputes sun statistics and per-location extremes and publishes
// them. Sun statistics are always published; a location whose query fails
// keeps its previous extremes and the error is returned.
func (r *Refresher) Refresh(ctx context.Context) error {
	stats := r.calc.Compute(r.now())

	extremes := make(map[logic.Location]store.Extremes, len(logic.Locations))
	var errs []error
	for _, loc := range logic.Locations {
		e, err := store.WindowExtremes(ctx, r.store, loc, r.window)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s extremes: %w", loc, err))
			continue
		}
		extremes[loc] = e
	}

	r.tracker.SetDerived(stats, extremes)
	r.log.Debug("derived statistics refreshed",
		zap.String("sunrise", stats.Sunrise),
		zap.String("sunset", stats.Sunset),
		zap.Int("delta_week", stats.DeltaWeek),
		zap.Int("delta_midwinter", stats.DeltaMidwinter),
	)
	return errors.Join(errs...)
}

// Run is a cron-friendly wrapper that logs instead of returning the error.
func (r *Refresher) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.Refresh(ctx); err != nil {
		r.log.Warn("refresh derived statistics", zap.Error(err))
	}
}
