package planner

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// tieTolerance is the gap under which two values count as equally good when
// a layer runs as hard max.
const tieTolerance = 1e-9

// softmax turns values into probabilities at temperature tau. Entries equal
// to -Inf get zero mass. tau == 0 splits the mass evenly over the maximisers.
// It returns nil when no entry is finite.
func softmax(values []float64, tau float64) []float64 {
	finite := 0
	for _, v := range values {
		if !math.IsInf(v, -1) && !math.IsNaN(v) {
			finite++
		}
	}
	if finite == 0 {
		return nil
	}
	best := math.Inf(-1)
	for _, v := range values {
		if !math.IsNaN(v) && v > best {
			best = v
		}
	}
	out := make([]float64, len(values))
	if tau == 0 {
		n := 0.0
		for i, v := range values {
			if v >= best-tieTolerance*math.Max(1, math.Abs(best)) {
				out[i] = 1
				n++
			}
		}
		floats.Scale(1/n, out)
		return out
	}
	// subtract the max before exponentiating so large values do not overflow
	scaled := make([]float64, 0, finite)
	for _, v := range values {
		if !math.IsInf(v, -1) && !math.IsNaN(v) {
			scaled = append(scaled, (v-best)/tau)
		}
	}
	lse := floats.LogSumExp(scaled)
	for i, v := range values {
		if math.IsInf(v, -1) || math.IsNaN(v) {
			continue
		}
		out[i] = math.Exp((v-best)/tau - lse)
	}
	return out
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 / float64(n)
	}
	return out
}
