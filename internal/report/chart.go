package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
)

const binWidthKmh = 10.0

// SpeedHistogram renders an HTML bar chart of the speed distribution,
// one series per vehicle class, binned in 10 km/h steps.
func SpeedHistogram(w io.Writer, title string, speedsByClass map[string][]float64) error {
	maxSpeed := 0.0
	classes := make([]string, 0, len(speedsByClass))
	for class, speeds := range speedsByClass {
		classes = append(classes, class)
		for _, v := range speeds {
			if v > maxSpeed {
				maxSpeed = v
			}
		}
	}
	sort.Strings(classes)

	bins := int(maxSpeed/binWidthKmh) + 1
	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%d-%d", i*int(binWidthKmh), (i+1)*int(binWidthKmh)-1)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Speed Report", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("km/h, %.0f km/h bins", binWidthKmh)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels)
	for _, class := range classes {
		counts := make([]int, bins)
		for _, v := range speedsByClass[class] {
			idx := int(v / binWidthKmh)
			if idx >= bins {
				idx = bins - 1
			}
			counts[idx]++
		}
		data := make([]opts.BarData, bins)
		for i, c := range counts {
			data[i] = opts.BarData{Value: c}
		}
		bar.AddSeries(class, data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	}
	return errors.Wrap(bar.Render(w), "can't render speed chart")
}
