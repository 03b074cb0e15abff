package bot

import (
	"bytes"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fundwatch/internal/storage"
)

// historyChartPNG renders stored observations (most recent first) as a price
// chart. go-chart needs at least two points to draw a series.
func historyChartPNG(title string, observations []storage.Observation) (*bytes.Buffer, error) {
	x := make([]time.Time, len(observations))
	prices := make([]float64, len(observations))
	for i, obs := range observations {
		pos := len(observations) - 1 - i
		x[pos] = obs.FetchedAt
		prices[pos] = obs.Price.InexactFloat64()
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 450,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		YAxis: chart.YAxis{
			Name: "Price (EUR)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.4f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    title,
				XValues: x,
				YValues: prices,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return &buf, nil
}
