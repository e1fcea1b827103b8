package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"signaltrack/internal/model"
	"signaltrack/internal/ops"
	"signaltrack/internal/signal"
)

func historyCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the closed signals of a strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, release, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer release()

			out, err := manager.History(cmd.Context(), title)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Strategy title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func statsCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-strategy statistics of recently closed signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if since <= 0 {
				return fmt.Errorf("--since must be positive")
			}
			manager, release, err := openManager(cmd)
			if err != nil {
				return err
			}
			defer release()

			end := time.Now().UTC()
			out, err := manager.Stats(cmd.Context(), end.Add(-since), end)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().DurationVarP(&since, "since", "s", 24*time.Hour, "Window ending now")
	return cmd
}

// openManager builds a manager over the configured store for read-only queries.
func openManager(cmd *cobra.Command) (*signal.Manager, func(), error) {
	loaded, err := ops.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if loaded.Database.Driver == "memory" {
		return nil, nil, fmt.Errorf("database driver memory keeps no history between runs")
	}

	store, release, err := openStore(cmd.Context(), loaded.Database)
	if err != nil {
		return nil, nil, err
	}
	manager, err := signal.NewManager(signal.Config{Store: store, Prices: noPrices{}})
	if err != nil {
		release()
		return nil, nil, err
	}
	return manager, release, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// noPrices backs managers that only answer queries.
type noPrices struct{}

func (noPrices) Get(model.Instrument) (model.PriceSample, bool) {
	return model.PriceSample{}, false
}
