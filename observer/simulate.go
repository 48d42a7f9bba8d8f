package observer

import (
	"iter"
	"math"
	"math/rand/v2"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/CodeStranger-Fred/bishop/planner"
)

// SimulateTrajectory solves the problem for params and returns a lazy run of
// the resulting policy from the start state. The run stops at the exit or
// after maxSteps transitions. Each range over the sequence starts again from
// seed, so it can be replayed.
func (o *Observer) SimulateTrajectory(params agent.Parameters, seed uint64, maxSteps int) (iter.Seq[mdp.Transition], error) {
	if maxSteps < 0 {
		return nil, mdp.Configf("observer.SimulateTrajectory", "negative step limit %d", maxSteps)
	}
	pol, err := o.Solve(params)
	if err != nil {
		return nil, err
	}
	return Rollout(pol, seed, maxSteps), nil
}

// RolloutRNG is the generator for rollouts seeded with seed. Its stream is
// never used by a posterior sample.
func RolloutRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, math.MaxUint64))
}

// Rollout samples actions from pol starting at its initial state.
func Rollout(pol *planner.Policy, seed uint64, maxSteps int) iter.Seq[mdp.Transition] {
	return func(yield func(mdp.Transition) bool) {
		rng := RolloutRNG(seed)
		s := pol.InitialState()
		for step := 0; step < maxSteps && !pol.IsTerminal(s); step++ {
			a := mdp.ChooseIndex(rng, pol.Action(s))
			if a < 0 {
				return
			}
			s1, r := pol.Step(s, mdp.Action(a))
			if !yield(mdp.Transition{State0: s, Action: mdp.Action(a), State1: s1, Reward: r}) {
				return
			}
			s = s1
		}
	}
}
