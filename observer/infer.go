package observer

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/CodeStranger-Fred/bishop/posterior"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// SampleRNG is the generator for sample i of a run seeded with seed.
// Every sample owns its stream, so results do not depend on scheduling.
func SampleRNG(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)))
}

// InferPosterior draws numSamples parameter vectors from the model, scores
// each against observed and returns every draw with its likelihood weight.
// The trajectory is validated before any planning. A sample whose planning
// fails is kept with zero weight and a diagnostic. Cancelling ctx stops
// scheduling new samples and returns the context error.
func (o *Observer) InferPosterior(ctx context.Context, observed Trajectory, numSamples int, seed uint64) (*posterior.Store, error) {
	const op = "observer.InferPosterior"
	ctx, span := o.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.Int("samples", numSamples),
		attribute.Int64("seed", int64(seed)),
		attribute.Int("workers", o.workers),
		attribute.Int("steps", len(observed)),
	))
	defer span.End()

	fail := func(err error) (*posterior.Store, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if numSamples <= 0 {
		return fail(mdp.Configf(op, "need a positive sample count, got %d", numSamples))
	}
	if err := observed.Validate(o.m); err != nil {
		return fail(err)
	}

	start := time.Now()
	results := make([]posterior.WeightedSample, numSamples)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := 0; i < numSamples; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = o.sample(gctx, observed, seed, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(fmt.Errorf("%s: %w", op, err))
	}
	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%s: %w", op, err))
	}

	store := posterior.New(o.CostNames(), o.RewardNames())
	for _, ws := range results {
		if err := store.AddSample(ws); err != nil {
			return fail(err)
		}
	}

	ess := store.EffectiveSampleSize()
	span.SetAttributes(attribute.Float64("ess", ess), attribute.Int("failed", store.Failures()))
	o.log.WithFields(logrus.Fields{
		"samples": numSamples,
		"failed":  store.Failures(),
		"ess":     ess,
		"elapsed": time.Since(start).String(),
	}).Info("inference finished")
	return store, nil
}

// sample evaluates draw i. Failures are folded into the returned sample.
func (o *Observer) sample(ctx context.Context, observed Trajectory, seed uint64, i int) posterior.WeightedSample {
	_, span := o.tracer.Start(ctx, "observer.sample", trace.WithAttributes(attribute.Int("sample", i)))
	defer span.End()

	params := o.model.SampleParameters(SampleRNG(seed, i))
	ws := posterior.WeightedSample{Parameters: params}

	pol, err := o.solve(params, o.model.Temperatures())
	if err != nil {
		ws.Failed = true
		ws.LogLikelihood = math.Inf(-1)
		ws.Diagnostic = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "planning failed")
		o.log.WithFields(logrus.Fields{"sample": i, "error": err}).Warn("sample failed, recording zero weight")
		return ws
	}

	ws.Converged = pol.Converged
	ws.Iterations = pol.Iterations
	ws.LogLikelihood = LogLikelihood(pol, observed)
	span.SetAttributes(
		attribute.Float64("log_likelihood", ws.LogLikelihood),
		attribute.Int("iterations", pol.Iterations),
		attribute.Bool("converged", pol.Converged),
	)
	return ws
}
