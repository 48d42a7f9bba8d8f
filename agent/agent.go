// Package agent describes the latent motives of a planning agent: prior
// families over terrain costs and object rewards, the probability that a
// parameter is exactly zero, and the softmax temperatures of its goal choice
// and its movement.
package agent

import (
	"math/rand/v2"

	"github.com/CodeStranger-Fred/bishop/mdp"
)

// Parameters is one fully instantiated draw: one cost per terrain type and
// one reward per object type.
type Parameters struct {
	Costs   []float64 `json:"costs"`
	Rewards []float64 `json:"rewards"`
}

// Vector concatenates costs then rewards.
func (p Parameters) Vector() []float64 {
	out := make([]float64, 0, len(p.Costs)+len(p.Rewards))
	out = append(out, p.Costs...)
	return append(out, p.Rewards...)
}

func (p Parameters) Clone() Parameters {
	return Parameters{
		Costs:   append([]float64(nil), p.Costs...),
		Rewards: append([]float64(nil), p.Rewards...),
	}
}

// Temperatures of the two softmax layers. Zero means hard max.
type Temperatures struct {
	Choice float64
	Action float64
}

// Model is the parametrisation of an agent.
type Model struct {
	CostPriors   []PriorSpec
	RewardPriors []PriorSpec

	// Probability, applied independently per terrain type or object type, that
	// the parameter is forced to zero instead of drawn from its prior.
	CostNullProbability   float64
	RewardNullProbability float64

	ChoiceTemperature float64
	ActionTemperature float64
	SoftmaxChoice     bool
	SoftmaxAction     bool

	// Restrict makes terrain 0 the cheapest terrain in every draw.
	Restrict bool

	numTerrains    int
	numObjectTypes int
}

// DefaultModel returns uniform priors and a temperature of 0.01 on both
// softmax layers.
func DefaultModel() Model {
	return Model{
		CostPriors:        []PriorSpec{{Family: ScaledUniform, Params: []float64{1}}},
		RewardPriors:      []PriorSpec{{Family: ScaledUniform, Params: []float64{10}}},
		ChoiceTemperature: 0.01,
		ActionTemperature: 0.01,
		SoftmaxChoice:     true,
		SoftmaxAction:     true,
	}
}

// Validate checks the model against the map's terrain and object-type counts
// and remembers those counts for SampleParameters.
func (m *Model) Validate(geometry *mdp.Map) error {
	const op = "Model.Validate"
	if geometry == nil {
		return mdp.Configf(op, "nil map")
	}
	terrains, objects := geometry.NumTerrains(), geometry.NumObjectTypes()
	if err := validateSpecs(op, "cost", m.CostPriors, terrains); err != nil {
		return err
	}
	if err := validateSpecs(op, "reward", m.RewardPriors, objects); err != nil {
		return err
	}
	if m.CostNullProbability < 0 || m.CostNullProbability > 1 {
		return mdp.Configf(op, "cost null probability %v outside [0,1]", m.CostNullProbability)
	}
	if m.RewardNullProbability < 0 || m.RewardNullProbability > 1 {
		return mdp.Configf(op, "reward null probability %v outside [0,1]", m.RewardNullProbability)
	}
	if m.ChoiceTemperature < 0 || m.ActionTemperature < 0 {
		return mdp.Configf(op, "temperatures must be non-negative")
	}
	m.numTerrains, m.numObjectTypes = terrains, objects
	return nil
}

// Dimensions returns the cost and reward vector lengths set by Validate.
func (m Model) Dimensions() (costs, rewards int) {
	return m.numTerrains, m.numObjectTypes
}

// Temperatures applies the softmax switches.
func (m Model) Temperatures() Temperatures {
	t := Temperatures{Choice: m.ChoiceTemperature, Action: m.ActionTemperature}
	if !m.SoftmaxChoice {
		t.Choice = 0
	}
	if !m.SoftmaxAction {
		t.Action = 0
	}
	return t
}

// SampleParameters draws one cost and reward vector. The result depends only
// on the rng state, so seeded generators reproduce whole inference runs.
// Validate must have been called first.
func (m Model) SampleParameters(rng *rand.Rand) Parameters {
	costs := drawVector(m.CostPriors, m.numTerrains, rng)
	rewards := drawVector(m.RewardPriors, m.numObjectTypes, rng)
	applyNull(costs, m.CostNullProbability, rng)
	applyNull(rewards, m.RewardNullProbability, rng)
	if m.Restrict && len(costs) > 1 {
		low := 0
		for i, c := range costs {
			if c < costs[low] {
				low = i
			}
		}
		costs[0], costs[low] = costs[low], costs[0]
	}
	return Parameters{Costs: costs, Rewards: rewards}
}

func applyNull(values []float64, p float64, rng *rand.Rand) {
	if p <= 0 {
		return
	}
	for i := range values {
		if rng.Float64() < p {
			values[i] = 0
		}
	}
}
