package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/weatherstation/internal/sun"
)

func newSunCmd(configPath *string) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sun",
		Short: "Print sunrise, sunset and day length deltas",
		Long: `Print sunrise and sunset for the configured station and how the day
length compares with one week earlier and with midwinter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, zone, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			d, err := parseDate(date, zone, time.Now())
			if err != nil {
				return err
			}
			calc := sun.NewCalculator(cfg.Station.Latitude, cfg.Station.Longitude, zone)
			printSun(cmd.OutOrStdout(), d, calc.Compute(d))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default today)")
	return cmd
}

func printSun(w io.Writer, date time.Time, st sun.Stats) {
	fmt.Fprintf(w, "date:            %s\n", date.Format(dateLayout))
	fmt.Fprintf(w, "sunrise:         %s\n", st.Sunrise)
	fmt.Fprintf(w, "sunset:          %s\n", st.Sunset)
	fmt.Fprintf(w, "vs last week:    %+d min\n", st.DeltaWeek)
	fmt.Fprintf(w, "vs midwinter:    %+d min\n", st.DeltaMidwinter)
}
