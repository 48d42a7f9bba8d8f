package agent

import (
	"math"
	"math/rand/v2"

	"github.com/CodeStranger-Fred/bishop/mdp"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

// Family names a prior distribution over a non-negative parameter.
type Family string

const (
	// ScaledUniform draws from U(0, Params[0]).
	ScaledUniform Family = "ScaledUniform"
	// Simplex draws the whole vector from a symmetric Dirichlet with
	// concentration Params[0] and multiplies it by Params[1], so the
	// parameters always sum to Params[1].
	Simplex Family = "Simplex"
	// Constant is a point mass on Params[0].
	Constant Family = "Constant"
	// Exponential has rate Params[0].
	Exponential Family = "Exponential"
	// Gamma has shape Params[0] and rate Params[1].
	Gamma Family = "Gamma"
	// Beta draws Beta(Params[0], Params[1]) scaled by Params[2].
	Beta Family = "Beta"
	// Gaussian draws N(Params[0], Params[1]) truncated to non-negative values.
	Gaussian Family = "Gaussian"
)

// Families lists every recognised prior family.
func Families() []Family {
	return []Family{ScaledUniform, Simplex, Constant, Exponential, Gamma, Beta, Gaussian}
}

var arity = map[Family]int{
	ScaledUniform: 1,
	Simplex:       2,
	Constant:      1,
	Exponential:   1,
	Gamma:         2,
	Beta:          3,
	Gaussian:      2,
}

// PriorSpec is a named family with its hyperparameters.
type PriorSpec struct {
	Family Family    `json:"family" yaml:"family"`
	Params []float64 `json:"params" yaml:"params"`
}

func (p PriorSpec) validate(op string) error {
	n, ok := arity[p.Family]
	if !ok {
		return mdp.Configf(op, "unknown prior family %q, want one of %v", p.Family, Families())
	}
	if len(p.Params) != n {
		return mdp.Configf(op, "%s prior takes %d parameters, got %d", p.Family, n, len(p.Params))
	}
	for _, v := range p.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return mdp.Configf(op, "%s prior has non-finite parameter %v", p.Family, v)
		}
	}
	switch p.Family {
	case ScaledUniform, Constant:
		if p.Params[0] < 0 {
			return mdp.Configf(op, "%s prior needs a non-negative value, got %v", p.Family, p.Params[0])
		}
	case Simplex:
		if p.Params[0] <= 0 || p.Params[1] < 0 {
			return mdp.Configf(op, "Simplex prior needs concentration > 0 and scale >= 0")
		}
	case Exponential:
		if p.Params[0] <= 0 {
			return mdp.Configf(op, "Exponential prior needs rate > 0")
		}
	case Gamma:
		if p.Params[0] <= 0 || p.Params[1] <= 0 {
			return mdp.Configf(op, "Gamma prior needs shape and rate > 0")
		}
	case Beta:
		if p.Params[0] <= 0 || p.Params[1] <= 0 || p.Params[2] < 0 {
			return mdp.Configf(op, "Beta prior needs alpha, beta > 0 and scale >= 0")
		}
	case Gaussian:
		if p.Params[1] <= 0 {
			return mdp.Configf(op, "Gaussian prior needs sd > 0")
		}
	}
	return nil
}

// draw samples one scalar. Simplex is handled by drawVector.
func (p PriorSpec) draw(rng *rand.Rand) float64 {
	switch p.Family {
	case ScaledUniform:
		return distuv.Uniform{Min: 0, Max: p.Params[0], Src: rng}.Rand()
	case Constant:
		return p.Params[0]
	case Exponential:
		return distuv.Exponential{Rate: p.Params[0], Src: rng}.Rand()
	case Gamma:
		return distuv.Gamma{Alpha: p.Params[0], Beta: p.Params[1], Src: rng}.Rand()
	case Beta:
		return p.Params[2] * distuv.Beta{Alpha: p.Params[0], Beta: p.Params[1], Src: rng}.Rand()
	case Gaussian:
		n := distuv.Normal{Mu: p.Params[0], Sigma: p.Params[1], Src: rng}
		for range 64 {
			if v := n.Rand(); v >= 0 {
				return v
			}
		}
		return math.Abs(n.Rand())
	}
	return 0
}

// drawVector samples n values from specs, which is either a single shared
// spec or one spec per dimension.
func drawVector(specs []PriorSpec, n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	if n == 0 || len(specs) == 0 {
		return out
	}
	if len(specs) == 1 && specs[0].Family == Simplex {
		alpha := make([]float64, n)
		for i := range alpha {
			alpha[i] = specs[0].Params[0]
		}
		if n == 1 {
			out[0] = specs[0].Params[1]
			return out
		}
		d := distmv.NewDirichlet(alpha, rng)
		d.Rand(out)
		for i := range out {
			out[i] *= specs[0].Params[1]
		}
		return out
	}
	for i := range out {
		spec := specs[0]
		if len(specs) == n {
			spec = specs[i]
		}
		out[i] = spec.draw(rng)
	}
	return out
}

func validateSpecs(op, what string, specs []PriorSpec, dims int) error {
	if len(specs) == 0 {
		if dims == 0 {
			return nil
		}
		return mdp.Configf(op, "no %s prior for %d dimensions", what, dims)
	}
	if len(specs) != 1 && len(specs) != dims {
		return mdp.Configf(op, "%d %s priors for %d dimensions (want 1 or %d)", len(specs), what, dims, dims)
	}
	for i, s := range specs {
		if s.Family == Simplex && len(specs) != 1 {
			return mdp.Configf(op, "%s prior %d: Simplex must be the only prior, it draws the whole vector", what, i)
		}
		if err := s.validate(op); err != nil {
			return err
		}
	}
	return nil
}
