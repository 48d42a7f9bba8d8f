package planner

import (
	"math"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
)

// Policy is the solved decision problem for one parameter draw. The action
// distribution at a state is a mixture over goals (each remaining object and
// the exit) of goal probability times the goal-directed action distribution.
// A Policy is never modified after Solve returns it.
type Policy struct {
	planner *Planner
	params  agent.Parameters
	temps   agent.Temperatures

	// enter[c] is the cost of moving into cell c
	enter []float64
	// goals holds object cells in object order, then the exit cell
	goals []int
	// dist[g][c] is the cheapest cost from c to goals[g]
	dist   [][]float64
	values []float64

	Iterations int
	Converged  bool
	// Deltas is the largest value change of each sweep.
	Deltas  []float64
	Warning *mdp.ConvergenceWarning
}

func (pol *Policy) Map() *mdp.Map                    { return pol.planner.m }
func (pol *Policy) Space() StateSpace                { return pol.planner.space }
func (pol *Policy) Parameters() agent.Parameters     { return pol.params.Clone() }
func (pol *Policy) Temperatures() agent.Temperatures { return pol.temps }

// InitialState is the start cell with every object present.
func (pol *Policy) InitialState() mdp.State {
	m := pol.planner.m
	return mdp.State{Cell: m.Start, Mask: m.FullMask()}
}

func (pol *Policy) IsTerminal(s mdp.State) bool {
	return s.Cell == pol.planner.m.Exit
}

// Value is the optimal expected return from s.
func (pol *Policy) Value(s mdp.State) float64 {
	return pol.values[pol.planner.space.Index(s)]
}

// Step applies the expanded transition rule: move by the base kernel, pay the
// terrain cost of the cell entered, and collect and clear any object that is
// still present there. The exit is absorbing.
func (pol *Policy) Step(s mdp.State, a mdp.Action) (mdp.State, float64) {
	p := pol.planner
	if s.Cell == p.m.Exit {
		return s, 0
	}
	to := p.m.Next(s.Cell, a)
	reward := -pol.enter[to]
	mask := s.Mask
	if i := p.objectAt[to]; i >= 0 && s.Has(i) {
		mask &^= 1 << uint(i)
		reward += pol.params.Rewards[p.m.Objects[i].Type]
	}
	return mdp.State{Cell: to, Mask: mask}, reward
}

// Transition is Step as a distribution over next expanded states.
func (pol *Policy) Transition(s mdp.State, a mdp.Action) mdp.DiscretePdf[mdp.State] {
	s1, _ := pol.Step(s, a)
	pdf := mdp.DiscretePdf[mdp.State]{}
	pdf.Add(s1, 1)
	return pdf
}

// GoalValues scores committing to each goal from s: the reward of an object
// minus the cost of reaching it plus the value of the state left behind, or
// minus the cost to the exit. Collected objects score -Inf.
func (pol *Policy) GoalValues(s mdp.State) []float64 {
	m := pol.planner.m
	k := m.NumObjects()
	vals := make([]float64, len(pol.goals))
	for i := 0; i < k; i++ {
		if !s.Has(i) {
			vals[i] = math.Inf(-1)
			continue
		}
		after := mdp.State{Cell: pol.goals[i], Mask: s.Mask &^ (1 << uint(i))}
		vals[i] = pol.params.Rewards[m.Objects[i].Type] - pol.dist[i][s.Cell] + pol.Value(after)
	}
	vals[k] = -pol.dist[k][s.Cell]
	return vals
}

// Goals is the goal-selection layer: a softmax over GoalValues at the choice
// temperature. The last entry is the exit.
func (pol *Policy) Goals(s mdp.State) []float64 {
	return softmax(pol.GoalValues(s), pol.temps.Choice)
}

// ActionsToward is the action layer for one goal: a softmax at the action
// temperature over the cost of each move plus the remaining cost to the goal.
func (pol *Policy) ActionsToward(s mdp.State, goal int) []float64 {
	p := pol.planner
	nA := p.m.NumActions()
	q := make([]float64, nA)
	for a := 0; a < nA; a++ {
		to := p.m.Next(s.Cell, mdp.Action(a))
		q[a] = -pol.enter[to] - pol.dist[goal][to]
	}
	probs := softmax(q, pol.temps.Action)
	if probs == nil {
		return uniform(nA)
	}
	return probs
}

// Action returns the probability of each action at s. Terminal and wall
// states, where no action matters, get a uniform distribution.
func (pol *Policy) Action(s mdp.State) []float64 {
	p := pol.planner
	nA := p.m.NumActions()
	if pol.IsTerminal(s) || p.m.Walls[s.Cell] {
		return uniform(nA)
	}
	goals := pol.Goals(s)
	if goals == nil {
		return uniform(nA)
	}
	out := make([]float64, nA)
	for g, pg := range goals {
		if pg == 0 {
			continue
		}
		for a, pa := range pol.ActionsToward(s, g) {
			out[a] += pg * pa
		}
	}
	return out
}

// Best returns the most probable action at s, lowest index on ties.
func (pol *Policy) Best(s mdp.State) mdp.Action {
	probs := pol.Action(s)
	best := 0
	for a, pa := range probs {
		if pa > probs[best] {
			best = a
		}
	}
	return mdp.Action(best)
}

// Distance is the cheapest cost from cell to goal g (objects in order, then
// the exit).
func (pol *Policy) Distance(g, cell int) float64 {
	return pol.dist[g][cell]
}
