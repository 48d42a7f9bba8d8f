package observer

import (
	"iter"
	"math"

	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/CodeStranger-Fred/bishop/planner"
)

// Step is one observed decision: the cell the agent stood on and the action
// it took there.
type Step struct {
	Cell   int
	Action mdp.Action
}

// Trajectory is an observed path starting at the map's start cell. The cell
// the last action leads to is implied by the kernel.
type Trajectory []Step

func (t Trajectory) Actions() []mdp.Action {
	out := make([]mdp.Action, len(t))
	for i, s := range t {
		out[i] = s.Action
	}
	return out
}

// Validate checks that t is a path the base kernel can produce on m: it
// starts at the start cell, stays on open cells, uses known actions, each
// cell follows from the previous step, and no action is taken on the exit.
func (t Trajectory) Validate(m *mdp.Map) error {
	const op = "Trajectory.Validate"
	if len(t) == 0 {
		return mdp.Trajectoryf(op, -1, "no observed steps")
	}
	for i, s := range t {
		switch {
		case !m.InRange(s.Cell):
			return mdp.Trajectoryf(op, i, "cell %d out of range [0,%d)", s.Cell, m.NumCells())
		case m.Walls[s.Cell]:
			return mdp.Trajectoryf(op, i, "cell %d is a wall", s.Cell)
		case s.Action < 0 || int(s.Action) >= m.NumActions():
			return mdp.Trajectoryf(op, i, "action %d out of range [0,%d)", s.Action, m.NumActions())
		case s.Cell == m.Exit:
			return mdp.Trajectoryf(op, i, "action taken after reaching the exit")
		}
		if i == 0 {
			if s.Cell != m.Start {
				return mdp.Trajectoryf(op, i, "starts at cell %d, not the start cell %d", s.Cell, m.Start)
			}
			continue
		}
		prev := t[i-1]
		if want := m.Next(prev.Cell, prev.Action); s.Cell != want {
			return mdp.Trajectoryf(op, i, "cell %d cannot follow %s from cell %d (expected %d)",
				s.Cell, m.ActionName(prev.Action), prev.Cell, want)
		}
	}
	return nil
}

// TrajectoryFromActions walks the action names from the start cell.
func TrajectoryFromActions(m *mdp.Map, names []string) (Trajectory, error) {
	const op = "TrajectoryFromActions"
	if !m.InRange(m.Start) {
		return nil, mdp.Trajectoryf(op, -1, "map has no start cell")
	}
	t := make(Trajectory, 0, len(names))
	cell := m.Start
	for i, name := range names {
		a, err := m.ActionIndex(name)
		if err != nil {
			return nil, mdp.Trajectoryf(op, i, "unknown action %q", name)
		}
		t = append(t, Step{Cell: cell, Action: a})
		cell = m.Next(cell, a)
	}
	return t, nil
}

// TrajectoryFromTransitions turns a simulated run into an observation.
func TrajectoryFromTransitions(seq iter.Seq[mdp.Transition]) Trajectory {
	var t Trajectory
	for tr := range seq {
		t = append(t, Step{Cell: tr.State0.Cell, Action: tr.Action})
	}
	return t
}

// LogLikelihood is the sum of log π(a|s) along t, advancing the object mask
// as the path consumes objects. It is -Inf when some step has probability
// zero.
func LogLikelihood(pol *planner.Policy, t Trajectory) float64 {
	s := pol.InitialState()
	ll := 0.0
	for _, step := range t {
		s.Cell = step.Cell
		p := pol.Action(s)[step.Action]
		if p <= 0 {
			return math.Inf(-1)
		}
		ll += math.Log(p)
		s, _ = pol.Step(s, step.Action)
	}
	return ll
}
