package cli

import (
	"github.com/spf13/cobra"

	"fundwatch/internal/app"
)

var (
	showFund  string
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent price observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{
			Instrument: showFund,
			Limit:      showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showFund, "fund", "", "Fund key to display (defaults to all funds)")
	showCmd.Flags().IntVar(&showLimit, "limit", 0, "Number of observations per fund (defaults to config)")
}
