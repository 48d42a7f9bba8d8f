// Package report renders maps, policies and posterior summaries for people:
// coloured text for the terminal and HTML charts for the browser.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/CodeStranger-Fred/bishop/planner"
	"github.com/CodeStranger-Fred/bishop/posterior"
	"github.com/logrusorgru/aurora"
)

// Printer writes terminal reports. Colours can be switched off for logs and
// tests.
type Printer struct {
	w  io.Writer
	au aurora.Aurora
}

func NewPrinter(w io.Writer, colors bool) *Printer {
	return &Printer{w: w, au: aurora.NewAurora(colors)}
}

func symbol(m *mdp.Map, cell int) string {
	switch {
	case cell == m.Start:
		return "S"
	case cell == m.Exit:
		return "E"
	case m.Walls[cell]:
		return "#"
	case m.ObjectAt(cell) >= 0:
		return "o"
	}
	return strconv.Itoa(m.Terrain[cell])
}

// PrintMap draws the grid, highlighting the cells in path.
func (p *Printer) PrintMap(m *mdp.Map, path []int) {
	onPath := make(map[int]bool, len(path))
	for _, c := range path {
		onPath[c] = true
	}
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			cell := y*m.Width + x
			text := fmt.Sprintf("%2s ", symbol(m, cell))
			switch {
			case onPath[cell]:
				fmt.Fprint(p.w, p.au.Green(text))
			case m.Walls[cell]:
				fmt.Fprint(p.w, p.au.Red(text))
			default:
				fmt.Fprint(p.w, p.au.Blue(text))
			}
		}
		fmt.Fprintln(p.w)
	}
	for t := 0; t < m.NumTerrains(); t++ {
		fmt.Fprintf(p.w, "%d: %s\n", t, m.TerrainName(t))
	}
	for i, o := range m.Objects {
		x, y, _ := m.Coordinates(o.Cell)
		fmt.Fprintf(p.w, "o%d at (%d,%d): %s\n", i, x, y, m.ObjectTypeName(o.Type))
	}
}

// PrintPolicy shows the most likely action in every cell while the objects
// in mask remain.
func (p *Printer) PrintPolicy(pol *planner.Policy, mask uint64) {
	m := pol.Map()
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			cell := y*m.Width + x
			s := mdp.State{Cell: cell, Mask: mask}
			switch {
			case cell == m.Exit || m.Walls[cell]:
				fmt.Fprint(p.w, p.au.White(fmt.Sprintf("%3s ", symbol(m, cell))))
			case m.ObjectAt(cell) >= 0 && s.Has(m.ObjectAt(cell)):
				fmt.Fprint(p.w, p.au.Green(fmt.Sprintf("%3s ", m.ActionName(pol.Best(s)))))
			default:
				fmt.Fprint(p.w, p.au.Blue(fmt.Sprintf("%3s ", m.ActionName(pol.Best(s)))))
			}
			fmt.Fprint(p.w, p.au.White("|"))
		}
		fmt.Fprintln(p.w)
	}
}

// PrintValues shows the value of every cell while the objects in mask
// remain.
func (p *Printer) PrintValues(pol *planner.Policy, mask uint64) {
	m := pol.Map()
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			v := pol.Value(mdp.State{Cell: y*m.Width + x, Mask: mask})
			fmt.Fprint(p.w, p.au.Blue(formatValue(v)))
			fmt.Fprint(p.w, p.au.White("|"))
		}
		fmt.Fprintln(p.w)
	}
}

func formatValue(x float64) string {
	if x < 0 {
		return " -" + fmt.Sprintf("%06.2f", -x)
	}
	return fmt.Sprintf("  %06.2f", x)
}

// PrintTrajectory lists a run step by step.
func (p *Printer) PrintTrajectory(m *mdp.Map, run []mdp.Transition) {
	total := 0.0
	for t, tr := range run {
		x, y, _ := m.Coordinates(tr.State0.Cell)
		total += tr.Reward
		line := fmt.Sprintf("%3d (%d,%d) %-2s %8.3f", t, x, y, m.ActionName(tr.Action), tr.Reward)
		if tr.State1.Mask != tr.State0.Mask {
			fmt.Fprintln(p.w, p.au.Green(line+"  collected"))
			continue
		}
		fmt.Fprintln(p.w, line)
	}
	fmt.Fprintf(p.w, "%d steps, return %.3f\n", len(run), total)
}

// PrintSummaries writes one line per parameter dimension.
func (p *Printer) PrintSummaries(sums []posterior.Summary, ess float64, samples int) {
	fmt.Fprintln(p.w, p.au.Bold(fmt.Sprintf("%-7s %-14s %10s %10s %10s", "kind", "name", "mean", "variance", "sd")))
	for _, s := range sums {
		fmt.Fprintf(p.w, "%-7s %-14s %10.4f %10.4f %10.4f\n", s.Kind, s.Name, s.Mean, s.Variance, math.Sqrt(s.Variance))
	}
	fmt.Fprintf(p.w, "%d samples, effective sample size %.2f\n", samples, ess)
}
