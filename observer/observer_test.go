package observer

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/CodeStranger-Fred/bishop/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// corridorMap is 3x3 with a cheap top row, an object top right and the exit
// below it. The cheapest way to the object and out is R R D D.
func corridorMap(t *testing.T) *mdp.Map {
	t.Helper()
	m, err := mdp.BuildGrid(3, 3, false)
	require.NoError(t, err)
	require.NoError(t, m.SetTerrain([]int{0, 0, 0, 1, 1, 1, 1, 1, 0}, []string{"road", "mud"}))
	require.NoError(t, m.PlaceObjects([]int{2}, []int{0}, []string{"apple"}))
	require.NoError(t, m.SetStart(0))
	require.NoError(t, m.SetExit(8))
	return m
}

// twoCellMap is a start cell with the exit directly to its right.
func twoCellMap(t *testing.T) *mdp.Map {
	t.Helper()
	m, err := mdp.BuildGrid(2, 1, false)
	require.NoError(t, err)
	require.NoError(t, m.SetStart(0))
	require.NoError(t, m.SetExit(1))
	return m
}

func hardMax() agent.Model {
	model := agent.DefaultModel()
	model.SoftmaxChoice = false
	model.SoftmaxAction = false
	return model
}

var corridorParams = agent.Parameters{Costs: []float64{1, 10}, Rewards: []float64{100}}

func newObserver(t *testing.T, m *mdp.Map, model agent.Model, opts ...Option) *Observer {
	t.Helper()
	o, err := New(m, model, opts...)
	require.NoError(t, err)
	return o
}

func observe(t *testing.T, m *mdp.Map, names ...string) Trajectory {
	t.Helper()
	traj, err := TrajectoryFromActions(m, names)
	require.NoError(t, err)
	return traj
}

func TestNewValidates(t *testing.T) {
	model := agent.DefaultModel()
	model.CostPriors = []agent.PriorSpec{
		{Family: agent.Constant, Params: []float64{1}},
		{Family: agent.Constant, Params: []float64{1}},
		{Family: agent.Constant, Params: []float64{1}},
	}
	_, err := New(corridorMap(t), model)
	assert.ErrorIs(t, err, mdp.ErrConfiguration)

	walled, err := mdp.BuildGrid(3, 1, false)
	require.NoError(t, err)
	require.NoError(t, walled.SetWalls([]int{1}))
	require.NoError(t, walled.SetStart(0))
	require.NoError(t, walled.SetExit(2))
	_, err = New(walled, agent.DefaultModel())
	var cfgErr *mdp.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	// the caller's model is left alone
	original := agent.DefaultModel()
	o := newObserver(t, corridorMap(t), original)
	costs, rewards := original.Dimensions()
	assert.Zero(t, costs+rewards)
	costs, rewards = o.Model().Dimensions()
	assert.Equal(t, 2, costs)
	assert.Equal(t, 1, rewards)
	assert.Equal(t, []string{"road", "mud"}, o.CostNames())
	assert.Equal(t, []string{"apple"}, o.RewardNames())
}

func TestTrajectoryValidation(t *testing.T) {
	m := corridorMap(t)
	right, _ := m.ActionIndex("R")
	down, _ := m.ActionIndex("D")

	cases := []struct {
		name string
		traj Trajectory
		step int
	}{
		{"empty", Trajectory{}, -1},
		{"wrong start", Trajectory{{Cell: 1, Action: right}}, 0},
		{"cell out of range", Trajectory{{Cell: 0, Action: right}, {Cell: 9, Action: right}}, 1},
		{"action out of range", Trajectory{{Cell: 0, Action: 7}}, 0},
		{"teleport", Trajectory{{Cell: 0, Action: right}, {Cell: 4, Action: down}}, 1},
		{"after exit", Trajectory{
			{Cell: 0, Action: right}, {Cell: 1, Action: right}, {Cell: 2, Action: down},
			{Cell: 5, Action: down}, {Cell: 8, Action: down},
		}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.traj.Validate(m)
			require.Error(t, err)
			var trajErr *mdp.InvalidTrajectoryError
			require.ErrorAs(t, err, &trajErr)
			assert.Equal(t, tc.step, trajErr.Step)
			assert.True(t, errors.Is(err, mdp.ErrInvalidTrajectory))
		})
	}

	assert.NoError(t, observe(t, m, "R", "R", "D", "D").Validate(m))
	// bumping into the edge is a legal self-transition
	assert.NoError(t, observe(t, m, "U", "L", "R").Validate(m))

	_, err := TrajectoryFromActions(m, []string{"R", "UL"})
	var trajErr *mdp.InvalidTrajectoryError
	require.ErrorAs(t, err, &trajErr)
	assert.Equal(t, 1, trajErr.Step)
}

func TestInvalidTrajectoryStopsBeforePlanning(t *testing.T) {
	o := newObserver(t, corridorMap(t), agent.DefaultModel())
	o.solve = func(agent.Parameters, agent.Temperatures) (*planner.Policy, error) {
		t.Fatal("planner called for an invalid trajectory")
		return nil, nil
	}
	_, err := o.InferPosterior(context.Background(), Trajectory{{Cell: 3}}, 10, 1)
	assert.ErrorIs(t, err, mdp.ErrInvalidTrajectory)

	_, err = o.InferPosterior(context.Background(), observe(t, o.Map(), "R"), 0, 1)
	assert.ErrorIs(t, err, mdp.ErrConfiguration)
}

func TestLogLikelihood(t *testing.T) {
	o := newObserver(t, corridorMap(t), hardMax())
	pol, err := o.Solve(corridorParams)
	require.NoError(t, err)

	assert.Equal(t, 0.0, LogLikelihood(pol, observe(t, o.Map(), "R", "R", "D", "D")))
	assert.True(t, math.IsInf(LogLikelihood(pol, observe(t, o.Map(), "D")), -1))

	// once the object is taken the agent heads down, not back towards it
	assert.True(t, math.IsInf(LogLikelihood(pol, observe(t, o.Map(), "R", "R", "L")), -1))
}

func TestInferenceIsDeterministic(t *testing.T) {
	m := corridorMap(t)
	traj := observe(t, m, "R", "R", "D", "D")

	var runs [][]float64
	var first *Observer
	for _, workers := range []int{1, 3, 8} {
		o := newObserver(t, m, agent.DefaultModel(), WithWorkers(workers))
		if first == nil {
			first = o
		}
		store, err := o.InferPosterior(context.Background(), traj, 40, 42)
		require.NoError(t, err)
		require.Equal(t, 40, store.Len())
		var flat []float64
		for _, ws := range store.Samples() {
			flat = append(flat, ws.Parameters.Vector()...)
			flat = append(flat, ws.LogLikelihood)
		}
		runs = append(runs, flat)
	}
	assert.Equal(t, runs[0], runs[1])
	assert.Equal(t, runs[0], runs[2])

	again, err := first.InferPosterior(context.Background(), traj, 40, 42)
	require.NoError(t, err)
	other, err := first.InferPosterior(context.Background(), traj, 40, 43)
	require.NoError(t, err)
	assert.Equal(t, again.Samples(), must(first.InferPosterior(context.Background(), traj, 40, 42)).Samples())
	assert.NotEqual(t, again.Samples()[0].Parameters, other.Samples()[0].Parameters)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func TestPosteriorConcentratesAtZeroCost(t *testing.T) {
	m := twoCellMap(t)
	o := newObserver(t, m, agent.DefaultModel())

	// an agent that dawdles at the start only makes sense if moving is free
	store, err := o.InferPosterior(context.Background(), observe(t, m, "L", "L"), 500, 7)
	require.NoError(t, err)
	sums, err := store.Summaries()
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Less(t, sums[0].Mean, 0.05)
	assert.Less(t, sums[0].Variance, 0.01)

	// heading straight out is better explained by costly terrain
	direct, err := o.InferPosterior(context.Background(), observe(t, m, "R"), 500, 7)
	require.NoError(t, err)
	directSums, err := direct.Summaries()
	require.NoError(t, err)
	assert.Greater(t, directSums[0].Mean, sums[0].Mean)
}

func TestFailedSamplesAreZeroWeighted(t *testing.T) {
	o := newObserver(t, corridorMap(t), agent.DefaultModel(), WithWorkers(2))
	solve := o.solve
	o.solve = func(p agent.Parameters, temps agent.Temperatures) (*planner.Policy, error) {
		if p.Costs[0] > 0.5 {
			return nil, errors.New("synthetic planner failure")
		}
		return solve(p, temps)
	}

	store, err := o.InferPosterior(context.Background(), observe(t, o.Map(), "R", "R", "D", "D"), 30, 3)
	require.NoError(t, err)
	assert.Equal(t, 30, store.Len())
	failed := 0
	for _, ws := range store.Samples() {
		if ws.Parameters.Costs[0] > 0.5 {
			failed++
			assert.True(t, ws.Failed)
			assert.Zero(t, ws.Weight)
			assert.Contains(t, ws.Diagnostic, "synthetic")
		} else {
			assert.False(t, ws.Failed)
		}
	}
	assert.Equal(t, failed, store.Failures())
	assert.Positive(t, failed)
}

func TestCancelledInference(t *testing.T) {
	o := newObserver(t, corridorMap(t), agent.DefaultModel())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.InferPosterior(ctx, observe(t, o.Map(), "R"), 10, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulationStopsAtMaxSteps(t *testing.T) {
	o := newObserver(t, corridorMap(t), agent.DefaultModel())
	seq, err := o.SimulateTrajectory(corridorParams, 11, 2)
	require.NoError(t, err)

	first := slices.Collect(seq)
	assert.Len(t, first, 2)
	// ranging again replays the same run
	assert.Equal(t, first, slices.Collect(seq))

	_, err = o.SimulateTrajectory(corridorParams, 11, -1)
	assert.ErrorIs(t, err, mdp.ErrConfiguration)
	_, err = o.SimulateTrajectory(agent.Parameters{Costs: []float64{1}}, 11, 5)
	assert.ErrorIs(t, err, mdp.ErrConfiguration)
}

func TestSimulationReachesExit(t *testing.T) {
	o := newObserver(t, corridorMap(t), hardMax())
	seq, err := o.SimulateTrajectory(corridorParams, 5, 100)
	require.NoError(t, err)

	var actions []mdp.Action
	total := 0.0
	for tr := range seq {
		actions = append(actions, tr.Action)
		total += tr.Reward
	}
	assert.Equal(t, []string{"R", "R", "D", "D"}, o.Map().ActionNames(actions))
	assert.InDelta(t, 87.0, total, 1e-9)

	traj := TrajectoryFromTransitions(seq)
	require.NoError(t, traj.Validate(o.Map()))
}

func TestSimulatedMasksOnlyClear(t *testing.T) {
	m, err := mdp.BuildGrid(4, 4, true)
	require.NoError(t, err)
	require.NoError(t, m.PlaceObjects([]int{3, 12, 6}, []int{0, 1, 0}, nil))
	require.NoError(t, m.SetStart(0))
	require.NoError(t, m.SetExit(15))
	model := agent.DefaultModel()
	model.ChoiceTemperature = 5
	model.ActionTemperature = 1
	o := newObserver(t, m, model)

	params := agent.Parameters{Costs: []float64{0.5}, Rewards: []float64{4, 6}}
	for seed := uint64(0); seed < 20; seed++ {
		seq, err := o.SimulateTrajectory(params, seed, 60)
		require.NoError(t, err)
		prev := m.FullMask()
		for tr := range seq {
			assert.Equal(t, prev, tr.State0.Mask)
			assert.Zero(t, tr.State1.Mask&^tr.State0.Mask)
			prev = tr.State1.Mask
		}
	}
}

func TestRunPolicyRepeatedly(t *testing.T) {
	o := newObserver(t, corridorMap(t), hardMax())
	pol, err := o.Solve(corridorParams)
	require.NoError(t, err)

	run := RunPolicy(pol, 1, 10)
	assert.True(t, run.ReachedExit)
	assert.Equal(t, 1, run.Collected)
	assert.Equal(t, []float64{-1, 99, -10, -1}, run.Rewards)

	avg := RunPolicyRepeatedly("hard max", pol, 1, 5, 10)
	assert.Equal(t, "hard max", avg.Name)
	assert.Equal(t, 1.0, avg.ExitRate)
	assert.Equal(t, 5, avg.Return.Count)
	assert.InDelta(t, 87.0, avg.Return.Avg, 1e-9)
	assert.Equal(t, []float64{-1, 99, -10, -1}, avg.AverageRewards)

	short := RunPolicyRepeatedly("short", pol, 1, 3, 2)
	assert.Zero(t, short.ExitRate)
	assert.Len(t, short.AverageRewards, 2)
}

// freeObjectMap is a row with the object on terrain 0 and the start, the
// exit and the cell between on terrain 1:
//
//	o . S E
func freeObjectMap(t *testing.T) *mdp.Map {
	t.Helper()
	m, err := mdp.BuildGrid(4, 1, false)
	require.NoError(t, err)
	require.NoError(t, m.SetTerrain([]int{0, 1, 1, 1}, []string{"free", "road"}))
	require.NoError(t, m.PlaceObjects([]int{0}, []int{0}, []string{"coin"}))
	require.NoError(t, m.SetStart(2))
	require.NoError(t, m.SetExit(3))
	return m
}

func TestNullCostsKeepDirectExitLikely(t *testing.T) {
	m := freeObjectMap(t)
	model := hardMax()
	model.CostPriors = []agent.PriorSpec{{Family: agent.Constant, Params: []float64{1}}}
	model.RewardPriors = []agent.PriorSpec{{Family: agent.Constant, Params: []float64{2}}}
	model.CostNullProbability = 0.5
	o := newObserver(t, m, model)
	direct := observe(t, m, "R")

	// a free object cell does not make the detour worth 2 - 1 - 3
	pol, err := o.Solve(agent.Parameters{Costs: []float64{0, 1}, Rewards: []float64{2}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, LogLikelihood(pol, direct))

	// with free roads the object costs nothing to fetch, so going straight out is ruled out
	pol, err = o.Solve(agent.Parameters{Costs: []float64{1, 0}, Rewards: []float64{2}})
	require.NoError(t, err)
	assert.True(t, math.IsInf(LogLikelihood(pol, direct), -1))

	store, err := o.InferPosterior(context.Background(), direct, 64, 9)
	require.NoError(t, err)
	sums, err := store.Summaries()
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.InDelta(t, 1.0, sums[1].Mean, 1e-12)
	assert.InDelta(t, 0.0, sums[1].Variance, 1e-12)
	// both values of the object cell's cost explain the path
	assert.Greater(t, sums[0].Mean, 0.0)
	assert.Less(t, sums[0].Mean, 1.0)
}

func TestRolloutStreamIsSeparate(t *testing.T) {
	for seed := uint64(0); seed < 5; seed++ {
		assert.NotEqual(t, SampleRNG(seed, 0).Uint64(), RolloutRNG(seed).Uint64())
		assert.Equal(t, RolloutRNG(seed).Uint64(), RolloutRNG(seed).Uint64())
	}
}
