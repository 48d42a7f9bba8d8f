package mdp

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to one of these so callers
// can branch with errors.Is without caring about the concrete type.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrInvalidTrajectory = errors.New("invalid trajectory")
	ErrEmptyPosterior    = errors.New("empty posterior")
	ErrNotConverged      = errors.New("value iteration did not converge")
)

// ConfigurationError reports malformed or inconsistent geometry, object
// layout, or parameter vectors. It is always raised before solving starts.
type ConfigurationError struct {
	Op  string
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrConfiguration, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Configf builds a ConfigurationError for op.
func Configf(op, format string, args ...any) error {
	return &ConfigurationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvalidTrajectoryError reports an observed trajectory that references a
// cell or action the map cannot produce. Step is the offending index, or -1
// when the whole trajectory is at fault.
type InvalidTrajectoryError struct {
	Op   string
	Step int
	Msg  string
}

func (e *InvalidTrajectoryError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%s: %s: %s", e.Op, ErrInvalidTrajectory, e.Msg)
	}
	return fmt.Sprintf("%s: %s at step %d: %s", e.Op, ErrInvalidTrajectory, e.Step, e.Msg)
}

func (e *InvalidTrajectoryError) Unwrap() error { return ErrInvalidTrajectory }

// Trajectoryf builds an InvalidTrajectoryError for op at step.
func Trajectoryf(op string, step int, format string, args ...any) error {
	return &InvalidTrajectoryError{Op: op, Step: step, Msg: fmt.Sprintf(format, args...)}
}

// EmptyPosteriorError is returned when summaries are requested from a store
// with no samples or with zero total weight.
type EmptyPosteriorError struct {
	Op      string
	Samples int
}

func (e *EmptyPosteriorError) Error() string {
	if e.Samples == 0 {
		return fmt.Sprintf("%s: %s: no samples", e.Op, ErrEmptyPosterior)
	}
	return fmt.Sprintf("%s: %s: %d samples with zero total weight", e.Op, ErrEmptyPosterior, e.Samples)
}

func (e *EmptyPosteriorError) Unwrap() error { return ErrEmptyPosterior }

// ConvergenceWarning is non-fatal: value iteration hit its iteration cap
// before the largest update fell below the threshold. The values computed so
// far are still returned alongside it.
type ConvergenceWarning struct {
	Iterations int
	Delta      float64
	Epsilon    float64
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("%s after %d iterations (delta %.3g > epsilon %.3g)",
		ErrNotConverged, w.Iterations, w.Delta, w.Epsilon)
}

func (w *ConvergenceWarning) Unwrap() error { return ErrNotConverged }
