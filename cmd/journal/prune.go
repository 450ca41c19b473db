package main

import (
	"context"
	"fmt"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/config"
	"github.com/laimis/stock-analysis-sub003/internal/database"
	"github.com/spf13/cobra"
)

func pruneCmd() *cobra.Command {
	var (
		alertDays int
		barDays   int
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old triggered alerts and cached price bars",
		RunE: func(cmd *cobra.Command, args []string) error {
			if alertDays <= 0 || barDays <= 0 {
				return fmt.Errorf("retention days must be positive")
			}

			cfg := config.Load()
			db, err := database.New(cfg.Database.ConnectionString())
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			now := time.Now()
			alertsDeleted, err := db.DeleteTriggeredAlertsOlderThan(ctx, now.AddDate(0, 0, -alertDays))
			if err != nil {
				return err
			}
			barsDeleted, err := db.DeletePriceBarsOlderThan(ctx, now.AddDate(0, 0, -barDays))
			if err != nil {
				return err
			}

			fmt.Printf("deleted %d triggered alerts and %d price bars\n", alertsDeleted, barsDeleted)
			return nil
		},
	}

	cmd.Flags().IntVar(&alertDays, "alert-days", 90, "Keep triggered alerts this many days")
	cmd.Flags().IntVar(&barDays, "bar-days", 730, "Keep cached price bars this many days")
	return cmd
}
