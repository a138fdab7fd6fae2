// Package gpio drives the broker connection LED with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"context"

	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/status"
)

// LED is a single output line.
type LED interface {
	// Set switches the LED on or off.
	Set(on bool) error

	// Close switches the LED off and releases GPIO resources.
	Close() error
}

// DefaultChip is the Raspberry Pi header GPIO chip.
const DefaultChip = "gpiochip0"

// Follow lights led while the snapshots report CONNECTED. It returns when
// ctx is done or snaps is closed. Write errors are logged once per change.
func Follow(ctx context.Context, led LED, snaps <-chan status.Snapshot, logger *zap.Logger) {
	known := false
	var lit bool
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			on := snap.Connection == status.Connected
			if known && on == lit {
				continue
			}
			if err := led.Set(on); err != nil {
				logger.Warn("set connection LED", zap.Bool("on", on), zap.Error(err))
				continue
			}
			known, lit = true, on
		}
	}
}
