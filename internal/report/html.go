package report

import (
	"fmt"
	"io"

	"github.com/CodeStranger-Fred/bishop/observer"
	"github.com/CodeStranger-Fred/bishop/posterior"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const theme = "shine"

func globals(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithInitializationOpts(opts.Initialization{Theme: theme}),
	}
}

// WritePosteriorHTML renders the posterior means, the weighted samples of
// every dimension and the value-iteration length of every sample.
func WritePosteriorHTML(w io.Writer, title string, post *posterior.Store) error {
	sums, err := post.Summaries()
	if err != nil {
		return err
	}
	weights, err := post.Weights()
	if err != nil {
		return err
	}
	samples := post.Samples()

	bar := charts.NewBar()
	bar.SetGlobalOptions(globals(title, fmt.Sprintf("posterior means, ESS %.2f", post.EffectiveSampleSize()))...)
	names := make([]string, len(sums))
	means := make([]opts.BarData, len(sums))
	for i, s := range sums {
		names[i] = s.Kind + ": " + s.Name
		means[i] = opts.BarData{Value: s.Mean}
	}
	bar.SetXAxis(names).AddSeries("mean", means)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(bar)

	nc := len(post.CostNames())
	for d, s := range sums {
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(append(globals(s.Kind+": "+s.Name, "sample value against normalised weight"),
			charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "value"}),
			charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "weight"}),
		)...)
		points := make([]opts.ScatterData, len(samples))
		for i, ws := range samples {
			v := ws.Parameters.Costs
			idx := d
			if d >= nc {
				v, idx = ws.Parameters.Rewards, d-nc
			}
			points[i] = opts.ScatterData{Value: []interface{}{v[idx], weights[i]}}
		}
		scatter.AddSeries(s.Name, points)
		page.AddCharts(scatter)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(globals("value iteration sweeps", "per sample")...)
	xs := make([]string, len(samples))
	iters := make([]opts.LineData, len(samples))
	for i, ws := range samples {
		xs[i] = fmt.Sprintf("%d", i)
		iters[i] = opts.LineData{Value: ws.Iterations}
	}
	line.SetXAxis(xs).AddSeries("iterations", iters)
	page.AddCharts(line)

	return page.Render(w)
}

// WriteRolloutHTML plots the largest value change of each sweep followed by
// the average reward per step of each set of rollouts.
func WriteRolloutHTML(w io.Writer, title string, deltas []float64, results ...observer.PolicyAverageReward) error {
	page := components.NewPage()
	page.PageTitle = title

	conv := charts.NewLine()
	conv.SetGlobalOptions(append(globals(title, "value iteration convergence"),
		charts.WithYAxisOpts(opts.YAxis{Type: "log", Name: "max delta"}),
	)...)
	var sweeps []string
	items := make([]opts.LineData, 0, len(deltas))
	for i, d := range deltas {
		sweeps = append(sweeps, fmt.Sprintf("%d", i+1))
		items = append(items, opts.LineData{Value: d})
	}
	conv.SetXAxis(sweeps).AddSeries("delta", items)
	page.AddCharts(conv)

	if len(results) > 0 {
		numSteps := 0
		for _, r := range results {
			numSteps = max(numSteps, len(r.AverageRewards))
		}
		line := charts.NewLine()
		line.SetGlobalOptions(globals("average reward per step", "")...)
		var steps []string
		for i := 0; i < numSteps; i++ {
			steps = append(steps, fmt.Sprintf("%d", i))
		}
		line.SetXAxis(steps)
		for _, r := range results {
			rewards := make([]opts.LineData, 0, len(r.AverageRewards))
			for _, v := range r.AverageRewards {
				rewards = append(rewards, opts.LineData{Value: v})
			}
			line.AddSeries(r.Name, rewards)
		}
		page.AddCharts(line)
	}
	return page.Render(w)
}
