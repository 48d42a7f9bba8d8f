// Package posterior holds the weighted parameter samples of an inference run
// and computes summaries over them on demand.
package posterior

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WeightedSample is one scored parameter draw. Failed samples carry a zero
// weight and a Diagnostic explaining what went wrong.
type WeightedSample struct {
	Parameters    agent.Parameters
	LogLikelihood float64
	Weight        float64
	Failed        bool
	Diagnostic    string
	Converged     bool
	Iterations    int
}

// Summary is the weighted mean and population variance of one dimension.
type Summary struct {
	Kind     string
	Index    int
	Name     string
	Mean     float64
	Variance float64
}

const (
	KindCost   = "cost"
	KindReward = "reward"
)

// Store is append-only. All methods are safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	costNames   []string
	rewardNames []string
	samples     []WeightedSample
}

// New creates an empty store for parameter vectors with one cost per cost
// name and one reward per reward name.
func New(costNames, rewardNames []string) *Store {
	return &Store{
		costNames:   append([]string(nil), costNames...),
		rewardNames: append([]string(nil), rewardNames...),
	}
}

func (s *Store) CostNames() []string   { return append([]string(nil), s.costNames...) }
func (s *Store) RewardNames() []string { return append([]string(nil), s.rewardNames...) }

// Add appends params with a linear likelihood weight.
func (s *Store) Add(params agent.Parameters, weight float64) error {
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 1) {
		return mdp.Configf("Store.Add", "weight %v must be finite and non-negative", weight)
	}
	return s.AddSample(WeightedSample{
		Parameters:    params,
		LogLikelihood: math.Log(weight),
		Weight:        weight,
		Converged:     true,
	})
}

// AddSample appends a fully described sample. Failed samples are forced to
// zero weight.
func (s *Store) AddSample(ws WeightedSample) error {
	if len(ws.Parameters.Costs) != len(s.costNames) || len(ws.Parameters.Rewards) != len(s.rewardNames) {
		return mdp.Configf("Store.AddSample", "sample has %d costs and %d rewards, store expects %d and %d",
			len(ws.Parameters.Costs), len(ws.Parameters.Rewards), len(s.costNames), len(s.rewardNames))
	}
	if math.IsNaN(ws.LogLikelihood) {
		ws.Failed = true
		if ws.Diagnostic == "" {
			ws.Diagnostic = "log-likelihood is NaN"
		}
	}
	if ws.Failed {
		ws.LogLikelihood = math.Inf(-1)
	}
	ws.Weight = math.Exp(ws.LogLikelihood)
	ws.Parameters = ws.Parameters.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, ws)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Samples returns a copy of every sample in insertion order.
func (s *Store) Samples() []WeightedSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WeightedSample, len(s.samples))
	for i, ws := range s.samples {
		ws.Parameters = ws.Parameters.Clone()
		out[i] = ws
	}
	return out
}

// Failures counts samples that were recorded with a diagnostic.
func (s *Store) Failures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ws := range s.samples {
		if ws.Failed {
			n++
		}
	}
	return n
}

// weights returns the normalised weights. Log weights are shifted by their
// maximum first so that tiny likelihoods do not all underflow to zero.
// It returns nil when the total weight is zero.
func (s *Store) weights() []float64 {
	if len(s.samples) == 0 {
		return nil
	}
	logs := make([]float64, len(s.samples))
	for i, ws := range s.samples {
		logs[i] = ws.LogLikelihood
	}
	top := floats.Max(logs)
	if math.IsInf(top, -1) {
		return nil
	}
	w := make([]float64, len(logs))
	for i, l := range logs {
		w[i] = math.Exp(l - top)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// Weights returns the normalised weight of every sample, in insertion order.
func (s *Store) Weights() ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.weights()
	if w == nil {
		return nil, &mdp.EmptyPosteriorError{Op: "Store.Weights", Samples: len(s.samples)}
	}
	return w, nil
}

// Summaries returns the weighted mean and variance of every cost dimension
// followed by every reward dimension.
func (s *Store) Summaries() ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.weights()
	if w == nil {
		return nil, &mdp.EmptyPosteriorError{Op: "Store.Summaries", Samples: len(s.samples)}
	}

	out := make([]Summary, 0, len(s.costNames)+len(s.rewardNames))
	x := make([]float64, len(s.samples))
	summarise := func(kind string, names []string, pick func(agent.Parameters) []float64) {
		for d, name := range names {
			for i, ws := range s.samples {
				x[i] = pick(ws.Parameters)[d]
			}
			mean := stat.Mean(x, w)
			out = append(out, Summary{
				Kind:     kind,
				Index:    d,
				Name:     name,
				Mean:     mean,
				Variance: stat.MomentAbout(2, x, mean, w),
			})
		}
	}
	summarise(KindCost, s.costNames, func(p agent.Parameters) []float64 { return p.Costs })
	summarise(KindReward, s.rewardNames, func(p agent.Parameters) []float64 { return p.Rewards })
	return out, nil
}

// EffectiveSampleSize is (Σw)²/Σw² over the normalised weights, or 0 when
// the store carries no weight.
func (s *Store) EffectiveSampleSize() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.weights()
	if w == nil {
		return 0
	}
	sum := floats.Sum(w)
	return sum * sum / floats.Dot(w, w)
}

// MAP returns the sample with the highest likelihood, earliest on ties.
func (s *Store) MAP() (WeightedSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.weights() == nil {
		return WeightedSample{}, &mdp.EmptyPosteriorError{Op: "Store.MAP", Samples: len(s.samples)}
	}
	best := 0
	for i, ws := range s.samples {
		if ws.LogLikelihood > s.samples[best].LogLikelihood {
			best = i
		}
	}
	ws := s.samples[best]
	ws.Parameters = ws.Parameters.Clone()
	return ws, nil
}

// Resample draws n parameter vectors with replacement, proportional to
// weight.
func (s *Store) Resample(rng *rand.Rand, n int) ([]agent.Parameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w := s.weights()
	if w == nil {
		return nil, &mdp.EmptyPosteriorError{Op: "Store.Resample", Samples: len(s.samples)}
	}
	cat := distuv.NewCategorical(w, rng)
	out := make([]agent.Parameters, n)
	for i := range out {
		out[i] = s.samples[int(cat.Rand())].Parameters.Clone()
	}
	return out, nil
}
