package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/api"
	"github.com/laimis/stock-analysis-sub003/internal/config"
	"github.com/laimis/stock-analysis-sub003/internal/marketdata"
	"github.com/laimis/stock-analysis-sub003/internal/models"
	"github.com/laimis/stock-analysis-sub003/internal/position"
	"github.com/laimis/stock-analysis-sub003/internal/strategies"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

type simulateFlags struct {
	ticker    string
	quantity  string
	price     string
	stop      string
	opened    string
	exitPrice string
	closed    string
}

func simulateCmd() *cobra.Command {
	var f simulateFlags

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a trade against the default exit strategies",
		Long: `Builds a position from flags, downloads daily bars from Alpaca and
prints the actual trade next to every default strategy.

Example:
  journal simulate --ticker AMD --quantity 20 --price 32.50 --stop 27.50 \
    --opened 2024-06-03 --exit-price 42 --closed 2024-06-20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := f.position()
			if err != nil {
				return err
			}

			cfg := config.Load()
			market := marketdata.NewClient(marketdata.Options{
				APIKey:    cfg.Alpaca.APIKey,
				APISecret: cfg.Alpaca.APISecret,
				BaseURL:   cfg.Alpaca.BaseURL,
				Feed:      cfg.Alpaca.Feed,
			}, nil)

			end := time.Now()
			if p.Closed != nil {
				end = *p.Closed
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			bars, err := market.Bars(ctx, p.Ticker, models.FrequencyDaily, p.Opened, end)
			if err != nil {
				return err
			}

			results := strategies.NewRunner().Run(p, bars)
			data, err := json.Marshal(api.NewSimulationViews(results))
			if err != nil {
				return fmt.Errorf("failed to encode results: %w", err)
			}
			_, err = os.Stdout.Write(pretty.Pretty(data))
			return err
		},
	}

	cmd.Flags().StringVar(&f.ticker, "ticker", "", "Ticker symbol")
	cmd.Flags().StringVar(&f.quantity, "quantity", "", "Shares bought")
	cmd.Flags().StringVar(&f.price, "price", "", "Average entry price")
	cmd.Flags().StringVar(&f.stop, "stop", "", "Initial stop price")
	cmd.Flags().StringVar(&f.opened, "opened", "", "Entry date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.exitPrice, "exit-price", "", "Exit price when the trade is closed")
	cmd.Flags().StringVar(&f.closed, "closed", "", "Exit date (YYYY-MM-DD)")
	for _, name := range []string{"ticker", "quantity", "price", "opened"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// position builds the instance described by the flags
func (f simulateFlags) position() (*position.Instance, error) {
	quantity, err := decimal.NewFromString(f.quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", f.quantity, err)
	}
	price, err := decimal.NewFromString(f.price)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", f.price, err)
	}
	opened, err := time.Parse("2006-01-02", f.opened)
	if err != nil {
		return nil, fmt.Errorf("invalid opened date %q: %w", f.opened, err)
	}

	p := position.NewInstance(strings.ToUpper(f.ticker))
	if err := p.Buy(quantity, price, opened, "cli-entry"); err != nil {
		return nil, err
	}

	if f.stop != "" {
		stop, err := decimal.NewFromString(f.stop)
		if err != nil {
			return nil, fmt.Errorf("invalid stop %q: %w", f.stop, err)
		}
		p.SetStopPrice(stop, opened)
	}

	if f.closed == "" {
		return p, nil
	}
	if f.exitPrice == "" {
		return nil, fmt.Errorf("--exit-price is required with --closed")
	}
	exit, err := decimal.NewFromString(f.exitPrice)
	if err != nil {
		return nil, fmt.Errorf("invalid exit price %q: %w", f.exitPrice, err)
	}
	closed, err := time.Parse("2006-01-02", f.closed)
	if err != nil {
		return nil, fmt.Errorf("invalid closed date %q: %w", f.closed, err)
	}
	if err := p.Sell(quantity, exit, closed, "cli-exit"); err != nil {
		return nil, err
	}
	return p, nil
}
