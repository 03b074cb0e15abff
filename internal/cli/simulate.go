package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"fundwatch/internal/app"
)

var (
	simulateFund    string
	simulatePrice   float64
	simulateChannel string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-update",
	Short: "Send a synthetic price update to a Discord channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}

		opts := app.SimulateOptions{
			Instrument: simulateFund,
			Price:      decimal.NewFromFloat(simulatePrice),
			ChannelID:  simulateChannel,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFund, "fund", "", "Fund key to simulate")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Synthetic price in EUR")
	simulateCmd.Flags().StringVar(&simulateChannel, "channel", "", "Discord channel ID to deliver to")
}
