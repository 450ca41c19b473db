package main

import (
	"fmt"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/config"
	"github.com/laimis/stock-analysis-sub003/internal/schedule"
	"github.com/spf13/cobra"
)

func nextRunCmd() *cobra.Command {
	var (
		at           string
		calendarPath string
	)

	cmd := &cobra.Command{
		Use:   "next-run",
		Short: "Print when the stop and pattern scans run next",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}
				now = t
			}

			if calendarPath == "" {
				calendarPath = config.Load().Calendar.Path
			}
			var (
				cal *schedule.StaticCalendar
				err error
			)
			if calendarPath != "" {
				cal, err = schedule.LoadCalendarFile(calendarPath)
			} else {
				cal, err = schedule.NewYorkCalendar()
			}
			if err != nil {
				return err
			}

			loc := cal.Location()
			fmt.Printf("now:          %s\n", now.In(loc).Format(time.RFC3339))
			for _, c := range []schedule.Cadence{schedule.StopLossScan, schedule.PatternScan} {
				next := schedule.NextRunTime(now, cal, c)
				fmt.Printf("%-13s %s (in %s)\n", c.Name+":", next.In(loc).Format(time.RFC3339), next.Sub(now).Round(time.Second))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this RFC3339 time instead of now")
	cmd.Flags().StringVar(&calendarPath, "calendar", "", "Market calendar YAML file")
	return cmd
}
