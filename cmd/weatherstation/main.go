// Command weatherstation ingests greenhouse and brewery sensor readings from
// MQTT, stores hourly samples and serves the live view over HTTP.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/config"
)

const dateLayout = "2006-01-02"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "weatherstation",
		Short: "Greenhouse and brewery weather station",
		Long: `weatherstation listens to temperature and humidity sensors on an MQTT
broker, keeps a live view of the latest readings, stores hourly samples and
serves the view over HTTP.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (environment only when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newSunCmd(&configPath),
		newReadingsCmd(&configPath),
	)
	return root
}

// loadConfig loads and validates the configuration and resolves the
// observer time zone.
func loadConfig(path string) (*config.Config, *time.Location, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	zone, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	return cfg, zone, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := config.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// parseDate parses a YYYY-MM-DD date in zone. An empty string means the
// current day.
func parseDate(s string, zone *time.Location, now time.Time) (time.Time, error) {
	if s == "" {
		return now.In(zone), nil
	}
	d, err := time.ParseInLocation(dateLayout, s, zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	// Noon keeps the calendar day stable across DST shifts.
	return d.Add(12 * time.Hour), nil
}
