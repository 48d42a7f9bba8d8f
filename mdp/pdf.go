package mdp

import (
	"fmt"
	"math"
	"math/rand/v2"
)

type Probability float64

// DiscretePdf is a finite distribution. Outcomes keep insertion order so that
// sampling with a seeded rng is reproducible.
type DiscretePdf[T comparable] struct {
	Outcomes []T
	Probs    []Probability
}

// Add accumulates p onto outcome, appending it if new.
func (p *DiscretePdf[T]) Add(outcome T, prob Probability) {
	for i, o := range p.Outcomes {
		if o == outcome {
			p.Probs[i] += prob
			return
		}
	}
	p.Outcomes = append(p.Outcomes, outcome)
	p.Probs = append(p.Probs, prob)
}

// Prob returns the probability mass on outcome.
func (p DiscretePdf[T]) Prob(outcome T) Probability {
	for i, o := range p.Outcomes {
		if o == outcome {
			return p.Probs[i]
		}
	}
	return 0
}

func (p DiscretePdf[T]) Sum() float64 {
	sum := 0.0
	for _, prob := range p.Probs {
		sum += float64(prob)
	}
	return sum
}

// Check fails if the probabilities do not sum to one.
func (p DiscretePdf[T]) Check() error {
	if sum := p.Sum(); math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("probabilities sum to %v, not 1", sum)
	}
	return nil
}

// Choose draws an outcome using rng.
func (p DiscretePdf[T]) Choose(rng *rand.Rand) T {
	v := rng.Float64()
	cumulative := 0.0
	var last T
	for i, st := range p.Outcomes {
		cumulative += float64(p.Probs[i])
		if cumulative >= v {
			return st
		}
		last = st
	}
	return last
}

// ChooseIndex draws an index from an unnormalised weight vector. It returns
// -1 when every weight is zero.
func ChooseIndex(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return -1
	}
	v := rng.Float64() * total
	cumulative := 0.0
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		if cumulative >= v {
			return i
		}
		last = i
	}
	return last
}
