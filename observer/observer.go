// Package observer inverts the planner: it draws candidate motives from an
// agent model, solves the decision problem each one induces and weights the
// draw by how well it explains an observed trajectory.
package observer

import (
	"runtime"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/CodeStranger-Fred/bishop/planner"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Option func(*Observer)

// WithWorkers sets how many samples are evaluated at once. Values below 1
// mean one.
func WithWorkers(n int) Option {
	return func(o *Observer) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(o *Observer) { o.log = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Observer) { o.tracer = t }
}

func WithPlannerConfig(cfg planner.Config) Option {
	return func(o *Observer) { o.plannerCfg = cfg }
}

// Observer runs inference for one map and one agent model. It never modifies
// either and is safe for concurrent use.
type Observer struct {
	m          *mdp.Map
	model      agent.Model
	planner    *planner.Planner
	plannerCfg planner.Config

	workers int
	log     *logrus.Entry
	tracer  trace.Tracer

	// solve is the per-sample planner call
	solve func(agent.Parameters, agent.Temperatures) (*planner.Policy, error)
}

// New validates model against m and builds the planner, so structural
// problems surface here rather than during sampling.
func New(m *mdp.Map, model agent.Model, opts ...Option) (*Observer, error) {
	if m == nil {
		return nil, mdp.Configf("observer.New", "nil map")
	}
	o := &Observer{
		m:          m,
		plannerCfg: planner.DefaultConfig(),
		workers:    runtime.GOMAXPROCS(0),
		log:        logrus.NewEntry(logrus.StandardLogger()),
		tracer:     noop.NewTracerProvider().Tracer("bishop/observer"),
	}
	for _, opt := range opts {
		opt(o)
	}

	// Validate records dimension counts, so work on a copy
	cp := model
	cp.CostPriors = append([]agent.PriorSpec(nil), model.CostPriors...)
	cp.RewardPriors = append([]agent.PriorSpec(nil), model.RewardPriors...)
	if err := cp.Validate(m); err != nil {
		return nil, err
	}
	o.model = cp

	p, err := planner.New(m, o.plannerCfg, planner.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	o.planner = p
	o.solve = p.Solve
	return o, nil
}

func (o *Observer) Map() *mdp.Map             { return o.m }
func (o *Observer) Model() agent.Model        { return o.model }
func (o *Observer) Planner() *planner.Planner { return o.planner }

// CostNames labels every terrain type, falling back to its index.
func (o *Observer) CostNames() []string {
	names := make([]string, o.m.NumTerrains())
	for i := range names {
		names[i] = o.m.TerrainName(i)
	}
	return names
}

// RewardNames labels every object type, falling back to its index.
func (o *Observer) RewardNames() []string {
	names := make([]string, o.m.NumObjectTypes())
	for i := range names {
		names[i] = o.m.ObjectTypeName(i)
	}
	return names
}

// Solve plans for one explicit parameter setting with the model's
// temperatures.
func (o *Observer) Solve(params agent.Parameters) (*planner.Policy, error) {
	return o.planner.Solve(params, o.model.Temperatures())
}
