package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/status"
	"github.com/sweeney/weatherstation/internal/store"
)

func newReadingsCmd(configPath *string) *cobra.Command {
	var (
		location string
		n        int
	)

	cmd := &cobra.Command{
		Use:   "readings",
		Short: "Print stored readings for a location",
		Long: `Print the most recent stored readings for a location, newest first,
followed by the high and low temperature of those readings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := logic.ParseLocation(location)
			if err != nil {
				return err
			}
			if n < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", n)
			}
			cfg, zone, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			readings, err := s.LastN(ctx, loc, n)
			if err != nil {
				return err
			}
			total, err := s.Count(ctx, loc)
			if err != nil {
				return err
			}
			printReadings(cmd.OutOrStdout(), loc, readings, total, zone)
			return nil
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "greenhouse", "location name or ordinal")
	cmd.Flags().IntVarP(&n, "count", "n", store.DefaultWindow, "number of readings")
	return cmd
}

func printReadings(w io.Writer, loc logic.Location, readings []logic.Reading, total int, zone *time.Location) {
	fmt.Fprintf(w, "%s: %d of %d readings\n", loc, len(readings), total)
	for _, r := range readings {
		fmt.Fprintf(w, "%6d  %s  temperature=%s  humidity=%s\n",
			r.ID,
			r.Timestamp.In(zone).Format(status.TimestampLayout),
			optional(r.Temperature),
			optional(r.Humidity),
		)
	}
	e := store.HighLow(readings)
	fmt.Fprintf(w, "high: %s  low: %s\n", logic.FormatValue(e.High), logic.FormatValue(e.Low))
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return logic.FormatValue(*v)
}
