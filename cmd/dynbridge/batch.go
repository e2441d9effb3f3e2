package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/dynbridge/internal/automation"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/experiment"
	"github.com/san-kum/dynbridge/internal/storage"
	"github.com/spf13/cobra"
)

var (
	sweepParam   string
	sweepMin     float64
	sweepMax     float64
	sweepSteps   int
	trials       int
	perturbation float64
	seed         int64
	grid         []string
	metricName   string
)

func batchCommands() []*cobra.Command {
	scenarioCmd := &cobra.Command{
		Use:   "scenario [scenario.yaml]",
		Short: "run the steps of a scenario file in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [scene.yaml]",
		Short: "run a scene across values of an engine parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&preset, "preset", "", "base preset")
	sweepCmd.Flags().StringVar(&sweepParam, "param", "timestep", "engine parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 0.001, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 0.01, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")
	sweepCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [scene.yaml]",
		Short: "run a scene with randomly perturbed start positions",
		Args:  cobra.ExactArgs(1),
		RunE:  runMonteCarlo,
	}
	monteCarloCmd.Flags().StringVar(&preset, "preset", "", "base preset")
	monteCarloCmd.Flags().IntVar(&trials, "trials", 10, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturbation, "perturb", 0.05, "maximum offset per axis")
	monteCarloCmd.Flags().Int64Var(&seed, "seed", 0, "base seed (0 picks one)")
	monteCarloCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")

	searchCmd := &cobra.Command{
		Use:   "search [scene.yaml]",
		Short: "grid search engine parameters for the lowest metric",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().StringVar(&preset, "preset", "", "base preset")
	searchCmd.Flags().StringArrayVar(&grid, "grid", nil, "parameter values, e.g. timestep=0.001,0.002,0.005")
	searchCmd.Flags().StringVar(&metricName, "metric", "energy_drift", "metric to minimise")
	searchCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")

	return []*cobra.Command{scenarioCmd, sweepCmd, monteCarloCmd, searchCmd}
}

func batchBuilder() automation.Builder {
	logger := newLogger(os.Stderr, "error")
	return func(cfg *config.Config, path string) (*experiment.Experiment, error) {
		return buildExperiment(cfg, path, logger.With("scene", filepath.Base(path)))
	}
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if sc.Name != "" {
		fmt.Printf("scenario %s: %d steps\n", sc.Name, len(sc.Steps))
	}
	results, runErr := automation.RunScenario(ctx, sc, batchBuilder())
	for i, r := range results {
		status := "ok"
		if r.Result.Halted {
			status = "halted"
		}
		fmt.Printf("%2d  %-24s  %6d steps  %s\n", i+1, filepath.Base(r.Step.Scene), len(r.Result.Times), status)
		if r.Step.SaveAs == "" {
			continue
		}
		cfg, err := r.Step.Config()
		if err != nil {
			return err
		}
		runID, err := st.Save(storage.RunMetadata{
			Scene:    r.Step.SaveAs,
			Solver:   cfg.Solver,
			Dt:       cfg.Dt,
			Duration: cfg.Duration,
			Engine:   cfg.Engine,
		}, r.Result)
		if err != nil {
			return err
		}
		fmt.Printf("    saved as %s\n", runID)
	}
	return runErr
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Scene:     args[0],
		Preset:    preset,
		ParamName: sweepParam,
		ParamMin:  sweepMin,
		ParamMax:  sweepMax,
		NumSteps:  sweepSteps,
		Duration:  duration,
	}, batchBuilder())
	if err != nil {
		return err
	}

	fmt.Printf("%-12s  %-8s  %-12s  %-12s  %-10s\n", sweepParam, "steps", "energy_drift", "stability", "time_ms")
	fmt.Println(strings.Repeat("-", 62))
	for _, r := range results {
		if r.Result == nil {
			fmt.Printf("%-12g  error: %v\n", r.ParamValue, r.Err)
			continue
		}
		fmt.Printf("%-12g  %8d  %12.2e  %12.4f  %10.2f\n", r.ParamValue, len(r.Result.Times),
			r.Result.Metrics["energy_drift"], r.Result.Metrics["stability"], float64(r.Elapsed.Microseconds())/1000)
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Scene:        args[0],
		Preset:       preset,
		Perturbation: perturbation,
		NumTrials:    trials,
		Duration:     duration,
		Seed:         seed,
	}, batchBuilder())
	if err != nil {
		return err
	}

	for _, r := range results {
		status := "stable"
		switch {
		case r.Err != nil:
			status = r.Err.Error()
		case r.Halted:
			status = "halted"
		case !r.Stable:
			status = "unstable"
		}
		fmt.Printf("trial %3d  seed %-20d  stability %.4f  %s\n", r.TrialID, r.Seed, r.Stability, status)
	}
	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("\nstable: %d  unstable: %d\n", stable, unstable)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ranges, err := parseGrid(grid)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	search := &automation.GridSearch{
		Scene:    args[0],
		Preset:   preset,
		Duration: duration,
		Ranges:   ranges,
		Metric:   metricName,
	}
	best, err := search.Search(ctx, batchBuilder())
	if err != nil {
		return err
	}

	names := make([]string, 0, len(best.Params))
	for k := range best.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Printf("trials: %d  failed: %d\n", best.Trials, best.Failed)
	fmt.Printf("best %s: %.6g\n", metricName, best.Value)
	for _, k := range names {
		fmt.Printf("  %s = %g\n", k, best.Params[k])
	}
	return nil
}

// parseGrid reads name=v1,v2,... entries.
func parseGrid(entries []string) (map[string][]float64, error) {
	ranges := make(map[string][]float64, len(entries))
	for _, e := range entries {
		name, list, ok := strings.Cut(e, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("grid entry %q: want name=v1,v2", e)
		}
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("grid entry %q: %w", e, err)
			}
			ranges[name] = append(ranges[name], v)
		}
	}
	return ranges, nil
}
