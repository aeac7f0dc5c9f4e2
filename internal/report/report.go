// Package report draws charts of Completed Results: an interactive HTML
// page for the browser and a PNG for offline review.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/jump/result"
)

// Series is the height curve of one sub-test.
type Series struct {
	Name string
	// HeightsCM holds one value per stored jump; excluded and pending
	// jumps are NaN so indexes line up with the stored collection.
	HeightsCM []float64
	Counted   int
}

// SeriesOf flattens r into one height series per sub-test.
func SeriesOf(r *result.Result) []Series {
	out := make([]Series, len(r.SubTests))
	for i, jumps := range r.SubTests {
		s := Series{Name: subTestName(r, i), HeightsCM: make([]float64, len(jumps))}
		for k, j := range jumps {
			if !j.Counted() {
				s.HeightsCM[k] = math.NaN()
				continue
			}
			s.HeightsCM[k] = j.HeightCM
			s.Counted++
		}
		out[i] = s
	}
	return out
}

func subTestName(r *result.Result, i int) string {
	if r.Type == jump.TestDropJump {
		return fmt.Sprintf("drop %s cm", strconv.FormatFloat(r.Config.DropHeightsCM[i], 'f', -1, 64))
	}
	return string(r.Config.WithDefaults().SubTestKind(i))
}

func longest(series []Series) int {
	n := 0
	for _, s := range series {
		n = max(n, len(s.HeightsCM))
	}
	return n
}

func title(r *result.Result) string {
	if r.AthleteID == "" {
		return string(r.Type)
	}
	return fmt.Sprintf("%s - %s", r.AthleteID, r.Type)
}

// RenderHTML writes a self-contained echarts page for r: jump heights per
// sub-test, plus the best-height comparison for drop jumps and the fatigue
// curve for rebound tests.
func RenderHTML(w io.Writer, r *result.Result) error {
	page := components.NewPage()
	page.PageTitle = title(r)
	page.AddCharts(heightsChart(r))

	switch {
	case r.DropJump != nil:
		page.AddCharts(dropChart(r.DropJump))
	case r.Rebound != nil:
		page.AddCharts(reboundChart(r.Rebound))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func heightsChart(r *result.Result) *charts.Bar {
	series := SeriesOf(r)
	x := make([]string, longest(series))
	for i := range x {
		x[i] = strconv.Itoa(i + 1)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title(r), Subtitle: fmt.Sprintf("headline %.1f cm", r.HeadlineCM())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Jump", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Height (cm)", NameLocation: "middle", NameGap: 40}),
	)
	bar.SetXAxis(x)
	for _, s := range series {
		data := make([]opts.BarData, len(s.HeightsCM))
		for i, h := range s.HeightsCM {
			// echarts leaves "-" cells empty
			if math.IsNaN(h) {
				data[i] = opts.BarData{Value: "-"}
				continue
			}
			data[i] = opts.BarData{Value: round1(h)}
		}
		bar.AddSeries(s.Name, data)
	}
	return bar
}

func dropChart(d *result.DropJump) *charts.Bar {
	x := make([]string, len(d.Heights))
	data := make([]opts.BarData, len(d.Heights))
	for i, p := range d.Heights {
		x[i] = strconv.FormatFloat(p.DropHeightCM, 'f', -1, 64)
		data[i] = opts.BarData{Value: round1(p.Averages.HeightCM)}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Average height by drop height",
			Subtitle: fmt.Sprintf("best drop height %s cm", strconv.FormatFloat(d.BestDropHeightCM, 'f', -1, 64)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Drop (cm)", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x).
		AddSeries("average height", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func reboundChart(rb *result.Rebound) *charts.Line {
	x := make([]string, len(rb.Jumps))
	perf := make([]opts.LineData, len(rb.Jumps))
	stiff := make([]opts.LineData, len(rb.Jumps))
	for i, j := range rb.Jumps {
		x[i] = strconv.Itoa(j.Index + 1)
		perf[i] = opts.LineData{Value: round1(j.Performance)}
		stiff[i] = opts.LineData{Value: round1(j.Stiffness)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Rebound fatigue",
			Subtitle: fmt.Sprintf("performance drop %.1f%%", rb.Averages.PerformanceDrop),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
	)
	line.SetXAxis(x).
		AddSeries("performance %", perf).
		AddSeries("stiffness", stiff)
	return line
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
