// Command bishop infers the costs and rewards behind an observed path on a
// grid map, simulates agents with known parameters and inspects saved runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/CodeStranger-Fred/bishop/agent"
	"github.com/CodeStranger-Fred/bishop/internal/config"
	"github.com/CodeStranger-Fred/bishop/internal/report"
	"github.com/CodeStranger-Fred/bishop/internal/store"
	"github.com/CodeStranger-Fred/bishop/mdp"
	"github.com/CodeStranger-Fred/bishop/observer"
	"github.com/CodeStranger-Fred/bishop/posterior"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const usage = `usage: bishop <command> [flags]

commands:
  infer     sample the posterior over costs and rewards for a scenario
  simulate  plan with fixed parameters and print a sampled path
  summary   print the posterior of a saved run
  runs      list saved runs

environment (also read from .env):
  BISHOP_DB       default -db
  BISHOP_SAMPLES  default -samples
  BISHOP_WORKERS  default -workers
  BISHOP_COLOR    "0" disables colours`

func main() {
	_ = godotenv.Load()
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	}
	switch args[0] {
	case "infer":
		return runInfer(ctx, args[1:], stdout)
	case "simulate":
		return runSimulate(args[1:], stdout)
	case "summary":
		return runSummary(args[1:], stdout)
	case "runs":
		return runList(args[1:], stdout)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return nil
	}
	fmt.Fprintln(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

// #region infer

func runInfer(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("infer", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "scenario YAML file")
	samples := fs.Int("samples", envInt("BISHOP_SAMPLES", 1000), "number of prior samples")
	seed := fs.Uint64("seed", 1, "random seed")
	workers := fs.Int("workers", envInt("BISHOP_WORKERS", runtime.GOMAXPROCS(0)), "planning workers")
	dbPath := fs.String("db", os.Getenv("BISHOP_DB"), "save the run to this SQLite file")
	htmlPath := fs.String("html", "", "write posterior charts to this HTML file")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return errors.New("infer: -config is required")
	}
	setVerbose(*verbose)

	raw, err := os.ReadFile(*cfgPath)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	sc, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	observed, err := observer.TrajectoryFromActions(sc.Map, sc.Observed)
	if err != nil {
		return err
	}

	log := logrus.WithField("scenario", sc.Name)
	o, err := observer.New(sc.Map, sc.Model, observer.WithWorkers(*workers), observer.WithLogger(log))
	if err != nil {
		return err
	}
	post, err := o.InferPosterior(ctx, observed, *samples, *seed)
	if err != nil {
		return err
	}

	p := report.NewPrinter(stdout, colors())
	p.PrintMap(sc.Map, cells(observed))
	fmt.Fprintln(stdout)
	if err := printPosterior(p, stdout, post); err != nil {
		return err
	}

	if *dbPath != "" {
		s, err := store.NewStore(*dbPath)
		if err != nil {
			return err
		}
		defer s.Close()
		id, err := s.SaveRun(store.Run{
			Name:     sc.Name,
			Seed:     *seed,
			Observed: sc.Observed,
			Scenario: string(raw),
		}, post)
		if err != nil {
			return err
		}
		log.WithField("run_id", id).Info("run saved")
		fmt.Fprintf(stdout, "run %s saved to %s\n", id, *dbPath)
	}
	if *htmlPath != "" {
		return writeHTML(*htmlPath, func(w io.Writer) error {
			return report.WritePosteriorHTML(w, sc.Name, post)
		})
	}
	return nil
}

func cells(t observer.Trajectory) []int {
	out := make([]int, len(t))
	for i, st := range t {
		out[i] = st.Cell
	}
	return out
}

// #endregion infer

// #region simulate

func runSimulate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "scenario YAML file")
	costs := fs.String("costs", "", "comma separated terrain costs, drawn from the prior when empty")
	rewards := fs.String("rewards", "", "comma separated object rewards, drawn from the prior when empty")
	steps := fs.Int("steps", 100, "maximum path length")
	seed := fs.Uint64("seed", 1, "random seed")
	runs := fs.Int("runs", 0, "also average this many rollouts")
	htmlPath := fs.String("html", "", "write convergence and rollout charts to this HTML file")
	showPolicy := fs.Bool("policy", false, "print the greedy policy and values with all objects present")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return errors.New("simulate: -config is required")
	}
	setVerbose(*verbose)

	sc, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	o, err := observer.New(sc.Map, sc.Model, observer.WithLogger(logrus.WithField("scenario", sc.Name)))
	if err != nil {
		return err
	}
	params, err := simulationParameters(o, *costs, *rewards, *seed)
	if err != nil {
		return err
	}

	seq, err := o.SimulateTrajectory(params, *seed, *steps)
	if err != nil {
		return err
	}
	var path []mdp.Transition
	for tr := range seq {
		path = append(path, tr)
	}
	traj := observer.TrajectoryFromTransitions(slices.Values(path))

	p := report.NewPrinter(stdout, colors())
	fmt.Fprintf(stdout, "costs %v rewards %v\n", params.Costs, params.Rewards)
	p.PrintMap(sc.Map, cells(traj))
	fmt.Fprintln(stdout)
	p.PrintTrajectory(sc.Map, path)
	fmt.Fprintf(stdout, "observed: [%s]\n", strings.Join(sc.Map.ActionNames(traj.Actions()), ", "))

	if !*showPolicy && *runs <= 0 && *htmlPath == "" {
		return nil
	}
	pol, err := o.Solve(params)
	if err != nil {
		return err
	}
	if *showPolicy {
		fmt.Fprintln(stdout)
		p.PrintPolicy(pol, sc.Map.FullMask())
		fmt.Fprintln(stdout)
		p.PrintValues(pol, sc.Map.FullMask())
	}
	var results []observer.PolicyAverageReward
	if *runs > 0 {
		avg := observer.RunPolicyRepeatedly(sc.Name, pol, *seed, *runs, *steps)
		fmt.Fprintf(stdout, "%d rollouts: mean return %.3f, exit rate %.2f\n", *runs, avg.Return.Avg, avg.ExitRate)
		results = append(results, avg)
	}
	if *htmlPath != "" {
		return writeHTML(*htmlPath, func(w io.Writer) error {
			return report.WriteRolloutHTML(w, sc.Name, pol.Deltas, results...)
		})
	}
	return nil
}

// simulationParameters parses the given vectors and fills any missing one
// from the scenario's prior.
func simulationParameters(o *observer.Observer, costs, rewards string, seed uint64) (agent.Parameters, error) {
	params := o.Model().SampleParameters(observer.SampleRNG(seed, 0))
	if costs != "" {
		v, err := parseFloats(costs)
		if err != nil {
			return agent.Parameters{}, fmt.Errorf("-costs: %w", err)
		}
		params.Costs = v
	}
	if rewards != "" {
		v, err := parseFloats(rewards)
		if err != nil {
			return agent.Parameters{}, fmt.Errorf("-rewards: %w", err)
		}
		params.Rewards = v
	}
	return params, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// #endregion simulate

// #region saved-runs

func runSummary(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	dbPath := fs.String("db", os.Getenv("BISHOP_DB"), "SQLite file with saved runs")
	runID := fs.String("run", "", "run ID, the most recent run when empty")
	htmlPath := fs.String("html", "", "write posterior charts to this HTML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("summary: -db is required")
	}

	s, err := store.NewStore(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	id := *runID
	if id == "" {
		latest, err := s.ListRuns(1)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			return fmt.Errorf("no runs in %s", *dbPath)
		}
		id = latest[0].ID
	}
	run, post, err := s.LoadRun(id)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "run %s (%s), seed %d, %s\n", run.ID, run.Name, run.Seed, run.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(stdout, "observed: [%s]\n\n", strings.Join(run.Observed, ", "))
	if err := printPosterior(report.NewPrinter(stdout, colors()), stdout, post); err != nil {
		return err
	}
	if *htmlPath != "" {
		return writeHTML(*htmlPath, func(w io.Writer) error {
			return report.WritePosteriorHTML(w, run.Name, post)
		})
	}
	return nil
}

func runList(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", os.Getenv("BISHOP_DB"), "SQLite file with saved runs")
	last := fs.Int("last", 20, "show N most recent runs, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("runs: -db is required")
	}

	s, err := store.NewStore(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(*last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}
	fmt.Fprintf(stdout, "%-36s  %-16s  %8s  %8s  %s\n", "Run", "Name", "Samples", "ESS", "Time")
	for _, r := range runs {
		fmt.Fprintf(stdout, "%-36s  %-16s  %8d  %8.2f  %s\n",
			r.ID, r.Name, r.Samples, r.ESS, r.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion saved-runs

func printPosterior(p *report.Printer, stdout io.Writer, post *posterior.Store) error {
	sums, err := post.Summaries()
	if err != nil {
		return err
	}
	p.PrintSummaries(sums, post.EffectiveSampleSize(), post.Len())
	if n := post.Failures(); n > 0 {
		fmt.Fprintf(stdout, "%d samples failed to plan\n", n)
	}
	best, err := post.MAP()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "MAP: costs %v rewards %v (log likelihood %.3f)\n",
		best.Parameters.Costs, best.Parameters.Rewards, best.LogLikelihood)
	return nil
}

func writeHTML(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logrus.WithField("path", path).Info("charts written")
	return nil
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func colors() bool {
	return os.Getenv("BISHOP_COLOR") != "0"
}

func setVerbose(v bool) {
	if v {
		logrus.SetLevel(logrus.DebugLevel)
	}
}
