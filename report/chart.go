package report

import (
	"errors"
	"fmt"
	"io"

	"qgrid/reinforcement"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// DEFAULT_SMOOTHING is the trailing window of the moving average series.
const DEFAULT_SMOOTHING = 20

var ErrEmptyReport = errors.New("training report has no episodes")

// WriteTrainingChart renders an html page with steps and return per episode,
// each alongside its moving average.
func WriteTrainingChart(w io.Writer, report reinforcement.TrainingReport) error {
	if report.Episodes == 0 || len(report.StepsPerEp) == 0 {
		return ErrEmptyReport
	}

	episodes := make([]string, len(report.StepsPerEp))
	for i := range episodes {
		episodes[i] = fmt.Sprintf("%d", i+1)
	}

	steps := make([]float64, len(report.StepsPerEp))
	for i, n := range report.StepsPerEp {
		steps[i] = float64(n)
	}

	page := components.NewPage()
	page.AddCharts(
		lineChart("Steps per episode", episodes, "steps", steps),
		lineChart("Return per episode", episodes, "return", report.ReturnsPerEp),
	)
	return page.Render(w)
}

func lineChart(title string, xAxis []string, name string, series []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: title,
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)
	line.SetXAxis(xAxis).
		AddSeries(name, lineData(series)).
		AddSeries(name+" (avg)", lineData(movingAverage(series, DEFAULT_SMOOTHING)))
	return line
}

func lineData(series []float64) []opts.LineData {
	items := make([]opts.LineData, 0, len(series))
	for _, val := range series {
		items = append(items, opts.LineData{Value: val})
	}
	return items
}

// movingAverage returns the trailing mean over at most @window values at each index.
func movingAverage(series []float64, window int) []float64 {
	avg := make([]float64, len(series))
	sum := 0.0
	for i, val := range series {
		sum += val
		if i >= window {
			sum -= series[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		avg[i] = sum / float64(n)
	}
	return avg
}
