package planner

import (
	"math"

	"github.com/CodeStranger-Fred/bishop/mdp"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

type viResult struct {
	values    []float64
	deltas    []float64
	converged bool
}

// valueIteration runs synchronous Bellman sweeps with a hard max over
// actions until the largest change drops below epsilon. Exit states are
// absorbing with value 0. Sweeps start from lowerBound, so values rise to
// the best return of a path that ends at the exit, even where zero-cost
// loops exist.
func (p *Planner) valueIteration(pol *Policy) viResult {
	size := p.space.Size()
	nA := p.m.NumActions()
	gamma := p.cfg.Discount

	V := make([]float64, size)
	for i := range V {
		V[i] = p.lowerBound(pol, p.space.State(i))
	}
	next := make([]float64, size)
	res := viResult{}

	for iter := 0; iter < p.cfg.MaxIterations; iter++ {
		var delta float64
		for i := 0; i < size; i++ {
			s := p.space.State(i)
			if s.Cell == p.m.Exit || p.m.Walls[s.Cell] {
				next[i] = 0
				continue
			}
			best := math.Inf(-1)
			for a := 0; a < nA; a++ {
				s1, r := pol.Step(s, mdp.Action(a))
				if q := r + gamma*V[p.space.Index(s1)]; q > best {
					best = q
				}
			}
			next[i] = best
			delta = math.Max(math.Abs(best-V[i]), delta)
		}
		V, next = next, V
		res.deltas = append(res.deltas, delta)
		if delta < p.cfg.Epsilon {
			res.converged = true
			break
		}
	}
	res.values = V
	return res
}

// lowerBound is the return of walking the cheapest way to the exit from s
// and, at worst, collecting every negative reward still on the map. Every
// state can do at least this well.
func (p *Planner) lowerBound(pol *Policy, s mdp.State) float64 {
	if s.Cell == p.m.Exit || p.m.Walls[s.Cell] {
		return 0
	}
	v := -pol.dist[len(pol.goals)-1][s.Cell]
	for i, o := range p.m.Objects {
		if s.Has(i) {
			v += math.Min(0, pol.params.Rewards[o.Type])
		}
	}
	return v
}

// distances returns, for every goal cell, the cheapest cost of walking from
// each cell to it, paying enter[c] on entering c. Walking out of the exit is
// not allowed since the exit ends the episode.
func (p *Planner) distances(enter []float64, goals []int) [][]float64 {
	n := p.m.NumCells()
	nA := p.m.NumActions()

	// edges are reversed so one Dijkstra run from a goal covers every origin
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for c := 0; c < n; c++ {
		if !p.m.Walls[c] {
			g.AddNode(simple.Node(c))
		}
	}
	for c := 0; c < n; c++ {
		if p.m.Walls[c] || c == p.m.Exit {
			continue
		}
		for a := 0; a < nA; a++ {
			to := p.next[c*nA+a]
			if to == c {
				continue
			}
			g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(to), T: simple.Node(c), W: enter[to]})
		}
	}

	out := make([][]float64, len(goals))
	for i, goal := range goals {
		sh := path.DijkstraFrom(simple.Node(goal), g)
		d := make([]float64, n)
		for c := range d {
			if p.m.Walls[c] {
				d[c] = math.Inf(1)
				continue
			}
			d[c] = sh.WeightTo(int64(c))
		}
		out[i] = d
	}
	return out
}
