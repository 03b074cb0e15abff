package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"fundwatch/internal/instrument"
)

// Show prints recent observations per instrument as a table.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	instruments, err := resolveInstruments(opts.Instrument)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	limit := a.Config.ResolveHistoryLimit(opts.Limit)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Instrument\tPrice date\tPrice\tCharges\tFetched (UTC)")

	empty := true
	for _, inst := range instruments {
		observations, err := store.GetObservationHistory(ctx, inst.Key, limit)
		if err != nil {
			return err
		}

		for _, obs := range observations {
			empty = false
			date := ""
			if obs.PriceDate != nil {
				date = *obs.PriceDate
			}
			charges := ""
			if obs.OngoingCharges != nil {
				charges = obs.OngoingCharges.StringFixed(2) + "%"
			}
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\n",
				inst.Key,
				date,
				obs.Price.StringFixed(4),
				charges,
				obs.FetchedAt.UTC().Format(time.RFC3339),
			)
		}
	}

	if empty {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	return writer.Flush()
}

func resolveInstruments(raw string) ([]instrument.Instrument, error) {
	if raw == "" {
		return instrument.All(), nil
	}

	key, err := instrument.Parse(raw)
	if err != nil {
		return nil, err
	}
	inst, err := instrument.Get(key)
	if err != nil {
		return nil, err
	}
	return []instrument.Instrument{inst}, nil
}
