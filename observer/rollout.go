package observer

import "github.com/CodeStranger-Fred/bishop/planner"

// RewardStats is a running mean.
type RewardStats struct {
	Sum   float64
	Avg   float64
	Count int
}

func (stats *RewardStats) Add(r float64) {
	stats.Sum += r
	stats.Count++
	stats.Avg = stats.Sum / float64(stats.Count)
}

// RunStats describes one rollout.
type RunStats struct {
	Rewards     []float64
	Return      float64
	Collected   int
	ReachedExit bool
}

// PolicyAverageReward aggregates repeated rollouts of one policy.
// AverageRewards[t] is the mean reward at step t over the runs still going at
// that step.
type PolicyAverageReward struct {
	Name           string
	AverageRewards []float64
	Return         RewardStats
	ExitRate       float64
}

// RunPolicy performs a single rollout.
func RunPolicy(pol *planner.Policy, seed uint64, maxSteps int) RunStats {
	var stats RunStats
	for tr := range Rollout(pol, seed, maxSteps) {
		stats.Rewards = append(stats.Rewards, tr.Reward)
		stats.Return += tr.Reward
		if tr.State1.Mask != tr.State0.Mask {
			stats.Collected++
		}
		stats.ReachedExit = pol.IsTerminal(tr.State1)
	}
	return stats
}

// RunPolicyRepeatedly performs numRuns rollouts, run i seeded with seed+i.
func RunPolicyRepeatedly(name string, pol *planner.Policy, seed uint64, numRuns, maxSteps int) PolicyAverageReward {
	perStep := make([]RewardStats, maxSteps)
	out := PolicyAverageReward{Name: name}
	exits := 0
	for i := 0; i < numRuns; i++ {
		run := RunPolicy(pol, seed+uint64(i), maxSteps)
		for t, r := range run.Rewards {
			perStep[t].Add(r)
		}
		out.Return.Add(run.Return)
		if run.ReachedExit {
			exits++
		}
	}
	for _, st := range perStep {
		if st.Count == 0 {
			break
		}
		out.AverageRewards = append(out.AverageRewards, st.Avg)
	}
	if numRuns > 0 {
		out.ExitRate = float64(exits) / float64(numRuns)
	}
	return out
}
