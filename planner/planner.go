// Package planner compiles a map and one parameter draw into the expanded
// decision problem over (cell, objects-remaining) states, solves it with
// value iteration and exposes the resulting two-layer softmax policy.
package planner

import (
	"math"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/sirupsen/logrus"
)

// Config controls value iteration.
type Config struct {
	// Discount defaults to 1: the exit is absorbing, so total cost-to-exit
	// is finite without discounting.
	Discount      float64
	Epsilon       float64
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{
		Discount:      1,
		Epsilon:       1e-6,
		MaxIterations: 10000,
	}
}

type Option func(*Planner)

func WithLogger(l *logrus.Entry) Option {
	return func(p *Planner) { p.log = l }
}

// Planner holds everything about a map that does not depend on the sampled
// parameters. It is read-only after New and safe for concurrent Solve calls.
type Planner struct {
	m     *mdp.Map
	cfg   Config
	log   *logrus.Entry
	space StateSpace

	// next[c*A+a] is the base kernel successor
	next []int
	// objectAt[c] is the object index on cell c, or -1
	objectAt []int
}

// New validates the map, checks that the exit is reachable from every open
// cell, and precomputes the base kernel table.
func New(m *mdp.Map, cfg Config, opts ...Option) (*Planner, error) {
	const op = "planner.New"
	if m == nil {
		return nil, mdp.Configf(op, "nil map")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.CheckExitReachable(); err != nil {
		return nil, err
	}
	if cfg.Discount <= 0 || cfg.Discount > 1 {
		return nil, mdp.Configf(op, "discount %v outside (0,1]", cfg.Discount)
	}
	if cfg.Epsilon <= 0 || cfg.MaxIterations <= 0 {
		return nil, mdp.Configf(op, "epsilon and max iterations must be positive")
	}

	p := &Planner{
		m:     m,
		cfg:   cfg,
		log:   logrus.NewEntry(logrus.StandardLogger()),
		space: StateSpace{Cells: m.NumCells(), Objects: m.NumObjects()},
	}
	for _, opt := range opts {
		opt(p)
	}

	nA := m.NumActions()
	p.next = make([]int, m.NumCells()*nA)
	p.objectAt = make([]int, m.NumCells())
	for c := 0; c < m.NumCells(); c++ {
		p.objectAt[c] = m.ObjectAt(c)
		for a := 0; a < nA; a++ {
			next, err := successor(m, c, mdp.Action(a))
			if err != nil {
				return nil, err
			}
			p.next[c*nA+a] = next
		}
	}
	return p, nil
}

// successor reads the single outcome of a kernel row. The planner only
// handles deterministic movement.
func successor(k mdp.Kernel, cell int, a mdp.Action) (int, error) {
	row := k.Transition(cell, a)
	if len(row.Outcomes) != 1 || row.Probs[0] != 1 {
		return 0, mdp.Configf("planner.New", "kernel row for cell %d action %d is not deterministic", cell, a)
	}
	return row.Outcomes[0], nil
}

func (p *Planner) Map() *mdp.Map     { return p.m }
func (p *Planner) Space() StateSpace { return p.space }
func (p *Planner) Config() Config    { return p.cfg }

// CheckParameters fails if the vectors do not match the map or contain values
// that would make the decision problem ill-posed.
func (p *Planner) CheckParameters(params agent.Parameters) error {
	const op = "planner.Solve"
	if len(params.Costs) != p.m.NumTerrains() {
		return mdp.Configf(op, "%d costs for %d terrain types", len(params.Costs), p.m.NumTerrains())
	}
	if len(params.Rewards) != p.m.NumObjectTypes() {
		return mdp.Configf(op, "%d rewards for %d object types", len(params.Rewards), p.m.NumObjectTypes())
	}
	for i, c := range params.Costs {
		if c < 0 || math.IsNaN(c) || math.IsInf(c, 0) {
			return mdp.Configf(op, "cost %d is %v, want a finite non-negative value", i, c)
		}
	}
	for i, r := range params.Rewards {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return mdp.Configf(op, "reward %d is not finite", i)
		}
	}
	return nil
}

// Solve builds and solves the decision problem for one parameter draw.
// Hitting the iteration cap is not an error: the policy comes back with
// Warning set.
func (p *Planner) Solve(params agent.Parameters, temps agent.Temperatures) (*Policy, error) {
	if err := p.CheckParameters(params); err != nil {
		return nil, err
	}
	if temps.Choice < 0 || temps.Action < 0 {
		return nil, mdp.Configf("planner.Solve", "temperatures must be non-negative")
	}

	enter := make([]float64, p.m.NumCells())
	for c, t := range p.m.Terrain {
		enter[c] = params.Costs[t]
	}

	goals := make([]int, 0, p.m.NumObjects()+1)
	for _, o := range p.m.Objects {
		goals = append(goals, o.Cell)
	}
	goals = append(goals, p.m.Exit)

	pol := &Policy{
		planner: p,
		params:  params.Clone(),
		temps:   temps,
		enter:   enter,
		goals:   goals,
		dist:    p.distances(enter, goals),
	}
	vi := p.valueIteration(pol)
	pol.values = vi.values
	pol.Deltas = vi.deltas
	pol.Iterations = len(vi.deltas)
	pol.Converged = vi.converged
	if !vi.converged {
		pol.Warning = &mdp.ConvergenceWarning{
			Iterations: pol.Iterations,
			Delta:      vi.deltas[len(vi.deltas)-1],
			Epsilon:    p.cfg.Epsilon,
		}
		p.log.WithFields(logrus.Fields{
			"iterations": pol.Iterations,
			"delta":      pol.Warning.Delta,
		}).Warn("value iteration hit its cap, using best available values")
	}
	return pol, nil
}

// Solve is a one-shot helper that builds a planner with the default config.
func Solve(m *mdp.Map, costs, rewards []float64, temps agent.Temperatures) (*Policy, error) {
	p, err := New(m, DefaultConfig())
	if err != nil {
		return nil, err
	}
	return p.Solve(agent.Parameters{Costs: costs, Rewards: rewards}, temps)
}
