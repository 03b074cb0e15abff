package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fundwatch/internal/storage"
)

// Export renders an instrument's price history as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Instrument == "" {
		return errors.New("--fund is required")
	}

	instruments, err := resolveInstruments(opts.Instrument)
	if err != nil {
		return err
	}
	inst := instruments[0]

	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = a.Config.History.MaxDataPoints
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	observations, err := store.GetObservationHistory(ctx, inst.Key, a.Config.History.MaxDataPoints)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		a.Logger.Info().Str("instrument", string(inst.Key)).Msg("no observations found for export")
		return nil
	}

	ordered := downsampleObservations(chronological(observations), maxPoints)
	a.Logger.Info().
		Str("instrument", string(inst.Key)).
		Int("total", len(observations)).
		Int("exported", len(ordered)).
		Msg("exporting observations")

	if opts.CSVPath != "" {
		if err := writeObservationsCSV(opts.CSVPath, ordered); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeObservationsPNG(opts.PNGPath, inst.DisplayName, ordered); err != nil {
			return err
		}
	}

	return nil
}

// chronological reverses the store's most-recent-first ordering for plotting.
func chronological(observations []storage.Observation) []storage.Observation {
	result := make([]storage.Observation, len(observations))
	for i, obs := range observations {
		result[len(observations)-1-i] = obs
	}
	return result
}

func downsampleObservations(observations []storage.Observation, max int) []storage.Observation {
	if max <= 0 || len(observations) <= max {
		return observations
	}

	result := make([]storage.Observation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

func writeObservationsCSV(path string, observations []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"instrument_key", "price_date", "price", "ongoing_charges", "fetched_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range observations {
		date := ""
		if obs.PriceDate != nil {
			date = *obs.PriceDate
		}
		charges := ""
		if obs.OngoingCharges != nil {
			charges = obs.OngoingCharges.String()
		}
		record := []string{
			string(obs.InstrumentKey),
			date,
			obs.Price.String(),
			charges,
			obs.FetchedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeObservationsPNG(path, title string, observations []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(observations))
	prices := make([]float64, len(observations))
	for i, obs := range observations {
		x[i] = obs.FetchedAt
		prices[i] = obs.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (EUR)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    title,
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
