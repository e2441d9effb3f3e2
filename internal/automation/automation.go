// Package automation runs batches of experiments: scripted scenarios,
// engine parameter sweeps and Monte Carlo perturbation trials.
package automation

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/experiment"
	"gopkg.in/yaml.v3"
)

// Builder turns a resolved config and a scene file into a ready experiment.
type Builder func(cfg *config.Config, scene string) (*experiment.Experiment, error)

// Scenario defines a sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

type ScenarioStep struct {
	Scene    string             `yaml:"scene"`
	Preset   string             `yaml:"preset"`
	Solver   string             `yaml:"solver"`
	Dt       float64            `yaml:"dt"`
	Duration float64            `yaml:"duration"`
	Script   string             `yaml:"script"`
	Params   map[string]float64 `yaml:"params"`
	SaveAs   string             `yaml:"save_as"`
}

// LoadScenario reads a scenario; scene and script paths are relative to
// the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for i := range scenario.Steps {
		st := &scenario.Steps[i]
		if st.Scene == "" {
			return nil, fmt.Errorf("step %d: no scene", i+1)
		}
		if !filepath.IsAbs(st.Scene) {
			st.Scene = filepath.Join(dir, st.Scene)
		}
		if st.Script != "" && !filepath.IsAbs(st.Script) {
			st.Script = filepath.Join(dir, st.Script)
		}
	}
	return &scenario, nil
}

// Config resolves the step's preset and overrides.
func (s ScenarioStep) Config() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if s.Preset != "" {
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", s.Preset)
		}
	}
	if s.Solver != "" {
		cfg.Solver = s.Solver
	}
	if s.Dt > 0 {
		cfg.Dt = s.Dt
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	if s.Script != "" {
		cfg.Script = s.Script
	}
	for k, v := range s.Params {
		if err := SetParam(&cfg.Engine, k, v); err != nil {
			return nil, err
		}
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetParam sets one numeric engine parameter by its config name.
func SetParam(e *config.EngineConfig, name string, v float64) error {
	switch name {
	case "timestep":
		e.Timestep = v
	case "gravity_x":
		e.Gravity[0] = v
	case "gravity_y":
		e.Gravity[1] = v
	case "gravity_z":
		e.Gravity[2] = v
	case "max_force":
		e.MaxForce = v
	case "rate_limit":
		e.RateLimit = v
	case "iterations":
		e.Iterations = int(v)
	case "restart_threshold":
		e.RestartThreshold = int(v)
	default:
		return fmt.Errorf("parameter %q: %w", name, dynamo.ErrInvalidParams)
	}
	return nil
}

type StepResult struct {
	Step   ScenarioStep
	Result *experiment.Result
}

// RunScenario executes all steps in order and stops at the first failure.
func RunScenario(ctx context.Context, scenario *Scenario, build Builder) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Config()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp, err := build(cfg, step.Scene)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}

		result, err := exp.Run(ctx)
		_ = exp.Close()
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{Step: step, Result: result})
	}

	return results, nil
}

// ParameterSweep runs one scene across evenly spaced values of an engine
// parameter.
type ParameterSweep struct {
	Scene     string
	Preset    string
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	Duration  float64
}

type SweepResult struct {
	ParamValue float64
	Result     *experiment.Result
	Err        error
	Elapsed    time.Duration
}

// RunSweep runs every sweep value concurrently.
func RunSweep(ctx context.Context, sweep *ParameterSweep, build Builder) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep steps %d: %w", sweep.NumSteps, dynamo.ErrInvalidParams)
	}
	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	values := make([]float64, sweep.NumSteps)
	builds := make([]experiment.Build, sweep.NumSteps)
	for i := range builds {
		values[i] = sweep.ParamMin + float64(i)*paramStep
		cfg, err := ScenarioStep{
			Scene:    sweep.Scene,
			Preset:   sweep.Preset,
			Duration: sweep.Duration,
			Params:   map[string]float64{sweep.ParamName: values[i]},
		}.Config()
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", sweep.ParamName, values[i], err)
		}
		builds[i] = func() (*experiment.Experiment, error) { return build(cfg, sweep.Scene) }
	}

	results := make([]SweepResult, sweep.NumSteps)
	for i, out := range experiment.RunEnsemble(ctx, builds) {
		results[i] = SweepResult{ParamValue: values[i], Result: out.Result, Err: out.Err, Elapsed: out.Elapsed}
	}
	return results, nil
}

// MonteCarloConfig perturbs the start position of every dynamic body.
type MonteCarloConfig struct {
	Scene        string
	Preset       string
	Perturbation float64
	NumTrials    int
	Duration     float64
	Seed         int64
}

type MonteCarloResult struct {
	TrialID   int
	Seed      int64
	Offsets   map[string]mgl64.Vec3
	Stability float64
	Halted    bool
	Stable    bool
	Err       error
}

// RunMonteCarlo runs NumTrials perturbed copies of the scene concurrently.
// Trial i uses seed Seed+i, so a trial can be replayed on its own.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, build Builder) ([]MonteCarloResult, error) {
	base, err := ScenarioStep{Scene: cfg.Scene, Preset: cfg.Preset, Duration: cfg.Duration}.Config()
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	results := make([]MonteCarloResult, cfg.NumTrials)
	builds := make([]experiment.Build, cfg.NumTrials)
	for trial := range builds {
		res := &results[trial]
		res.TrialID = trial
		res.Seed = seed + int64(trial)
		builds[trial] = func() (*experiment.Experiment, error) {
			exp, err := build(base, cfg.Scene)
			if err != nil {
				return nil, err
			}
			res.Offsets = perturb(exp, rand.New(rand.NewSource(res.Seed)), cfg.Perturbation)
			return exp, nil
		}
	}

	for i, out := range experiment.RunEnsemble(ctx, builds) {
		r := &results[i]
		r.Err = out.Err
		if out.Result == nil {
			continue
		}
		r.Halted = out.Result.Halted
		r.Stability = out.Result.Metrics["stability"]
		r.Stable = !r.Halted && out.Err == nil && r.Stability >= 1
	}
	return results, nil
}

// perturb moves every tracked body by a uniform offset in the solver's x/z
// plane before the first tick.
func perturb(exp *experiment.Experiment, rng *rand.Rand, amount float64) map[string]mgl64.Vec3 {
	g := exp.Scene()
	offsets := make(map[string]mgl64.Vec3)
	for _, h := range exp.Tracked() {
		off := mgl64.Vec3{(rng.Float64() - 0.5) * 2 * amount, 0, (rng.Float64() - 0.5) * 2 * amount}
		tr := g.WorldPose(h)
		tr.Position = tr.Position.Add(off)
		g.Move(h, tr)
		offsets[g.Name(h)] = off
	}
	return offsets
}

// MonteCarloStats counts stable and unstable trials.
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
