package automation

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/experiment"
	"github.com/san-kum/dynbridge/internal/scene"
)

const dropYAML = `
name: drop
objects:
  - name: floor
    type: shape
    pose: {position: [0, 0, -0.1]}
    shape:
      geoms:
        - primitive: box
          size: [5, 5, 0.1]
  - name: box
    type: shape
    pose: {position: [0, 0, 1]}
    shape:
      dynamic: true
      geoms:
        - primitive: box
          size: [0.1, 0.1, 0.1]
`

func writeScene(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "drop.yaml")
	if err := os.WriteFile(path, []byte(dropYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testBuilder(t *testing.T) Builder {
	workDir := t.TempDir()
	return func(cfg *config.Config, path string) (*experiment.Experiment, error) {
		g, _, err := scene.LoadFile(path)
		if err != nil {
			return nil, err
		}
		e := experiment.New(experiment.Config{
			Name:     "drop",
			Dt:       cfg.Dt,
			Duration: cfg.Duration,
			WorkDir:  workDir,
			Engine:   cfg.Engine,
		}, g, nil)
		engine, err := experiment.NewSolvers().Get(cfg.Solver)
		if err != nil {
			return nil, err
		}
		if err := e.Setup(engine, experiment.DefaultMetrics()); err != nil {
			return nil, err
		}
		return e, nil
	}
}

func TestLoadScenario(t *testing.T) {
	dir := t.TempDir()
	writeScene(t, dir)
	data := `
name: test
steps:
  - scene: drop.yaml
    preset: fast
    duration: 0.2
    params: {iterations: 5}
    save_as: first
  - scene: drop.yaml
    dt: 0.05
    duration: 0.1
`
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Name != "test" || len(sc.Steps) != 2 {
		t.Fatalf("scenario = %+v", sc)
	}
	if sc.Steps[0].Scene != filepath.Join(dir, "drop.yaml") {
		t.Errorf("scene path = %s", sc.Steps[0].Scene)
	}
	if sc.Steps[0].SaveAs != "first" {
		t.Errorf("save_as = %q", sc.Steps[0].SaveAs)
	}

	cfg, err := sc.Steps[0].Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Iterations != 5 || cfg.Duration != 0.2 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestLoadScenario_MissingScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("steps:\n  - dt: 0.1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScenario(path); err == nil {
		t.Error("expected error for step without scene")
	}
}

func TestStepConfig_Errors(t *testing.T) {
	if _, err := (ScenarioStep{Preset: "nope"}).Config(); err == nil {
		t.Error("expected unknown preset error")
	}
	_, err := ScenarioStep{Params: map[string]float64{"warp": 1}}.Config()
	if !errors.Is(err, dynamo.ErrInvalidParams) {
		t.Errorf("unknown param err = %v", err)
	}
	_, err = ScenarioStep{Params: map[string]float64{"timestep": -1}}.Config()
	if !errors.Is(err, dynamo.ErrInvalidParams) {
		t.Errorf("negative timestep err = %v", err)
	}
}

func TestSetParam(t *testing.T) {
	e := config.DefaultEngine()
	for name, v := range map[string]float64{
		"timestep":          0.001,
		"gravity_z":         -1.62,
		"max_force":         50,
		"rate_limit":        2,
		"iterations":        20,
		"restart_threshold": 3,
	} {
		if err := SetParam(&e, name, v); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if e.Timestep != 0.001 || e.Gravity[2] != -1.62 || e.Iterations != 20 || e.RestartThreshold != 3 {
		t.Errorf("engine = %+v", e)
	}
}

func TestRunScenario(t *testing.T) {
	path := writeScene(t, t.TempDir())
	sc := &Scenario{Steps: []ScenarioStep{
		{Scene: path, Dt: 0.05, Duration: 0.2},
		{Scene: path, Dt: 0.1, Duration: 0.2},
	}}

	results, err := RunScenario(context.Background(), sc, testBuilder(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if n := len(results[0].Result.Times); n != 5 {
		t.Errorf("first step rows = %d, want 5", n)
	}
	if n := len(results[1].Result.Times); n != 3 {
		t.Errorf("second step rows = %d, want 3", n)
	}
}

func TestRunScenario_StopsOnError(t *testing.T) {
	path := writeScene(t, t.TempDir())
	sc := &Scenario{Steps: []ScenarioStep{
		{Scene: path, Dt: 0.05, Duration: 0.1},
		{Scene: filepath.Join(t.TempDir(), "missing.yaml"), Dt: 0.05, Duration: 0.1},
		{Scene: path, Dt: 0.05, Duration: 0.1},
	}}

	results, err := RunScenario(context.Background(), sc, testBuilder(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(results) != 1 {
		t.Errorf("completed steps = %d, want 1", len(results))
	}
}

func TestRunSweep(t *testing.T) {
	path := writeScene(t, t.TempDir())
	sweep := &ParameterSweep{
		Scene:     path,
		ParamName: "timestep",
		ParamMin:  0.002,
		ParamMax:  0.01,
		NumSteps:  3,
		Duration:  0.2,
	}

	results, err := RunSweep(context.Background(), sweep, testBuilder(t))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	want := []float64{0.002, 0.006, 0.01}
	for i, r := range results {
		if math.Abs(r.ParamValue-want[i]) > 1e-12 {
			t.Errorf("value %d = %g, want %g", i, r.ParamValue, want[i])
		}
		if r.Err != nil || r.Result == nil {
			t.Errorf("value %g: err=%v", r.ParamValue, r.Err)
		}
	}
}

func TestRunSweep_Invalid(t *testing.T) {
	if _, err := RunSweep(context.Background(), &ParameterSweep{NumSteps: 0}, testBuilder(t)); err == nil {
		t.Error("expected error for zero steps")
	}
	sweep := &ParameterSweep{ParamName: "warp", NumSteps: 2, ParamMax: 1}
	if _, err := RunSweep(context.Background(), sweep, testBuilder(t)); !errors.Is(err, dynamo.ErrInvalidParams) {
		t.Errorf("unknown param err = %v", err)
	}
}

func TestRunMonteCarlo(t *testing.T) {
	path := writeScene(t, t.TempDir())
	mc := &MonteCarloConfig{
		Scene:        path,
		Perturbation: 0.2,
		NumTrials:    4,
		Duration:     0.2,
		Seed:         7,
	}

	first, err := RunMonteCarlo(context.Background(), mc, testBuilder(t))
	if err != nil {
		t.Fatalf("monte carlo: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("trials = %d, want 4", len(first))
	}
	for i, r := range first {
		if r.Err != nil {
			t.Fatalf("trial %d: %v", i, r.Err)
		}
		if r.Seed != 7+int64(i) {
			t.Errorf("trial %d seed = %d", i, r.Seed)
		}
		off, ok := r.Offsets["box"]
		if !ok || len(r.Offsets) != 1 {
			t.Fatalf("trial %d offsets = %v", i, r.Offsets)
		}
		if math.Abs(off[0]) > 0.2 || math.Abs(off[2]) > 0.2 || off[1] != 0 {
			t.Errorf("trial %d offset out of range: %v", i, off)
		}
	}

	second, err := RunMonteCarlo(context.Background(), mc, testBuilder(t))
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i].Offsets["box"] != second[i].Offsets["box"] {
			t.Errorf("trial %d not reproducible: %v vs %v", i, first[i].Offsets["box"], second[i].Offsets["box"])
		}
	}

	stable, unstable := MonteCarloStats(first)
	if stable+unstable != 4 {
		t.Errorf("stats = %d+%d, want 4", stable, unstable)
	}
}

func TestMonteCarloStats(t *testing.T) {
	results := []MonteCarloResult{{Stable: true}, {Stable: false}, {Stable: true}}
	stable, unstable := MonteCarloStats(results)
	if stable != 2 || unstable != 1 {
		t.Errorf("stats = %d/%d, want 2/1", stable, unstable)
	}
}

func TestGridSearch(t *testing.T) {
	path := writeScene(t, t.TempDir())
	g := &GridSearch{
		Scene:    path,
		Duration: 0.2,
		Ranges: map[string][]float64{
			"timestep":   {0.002, 0.01},
			"iterations": {5, 10},
		},
		Metric: "kinetic_energy",
	}

	best, err := g.Search(context.Background(), testBuilder(t))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if best.Trials != 4 {
		t.Errorf("trials = %d, want 4", best.Trials)
	}
	if len(best.Params) != 2 {
		t.Errorf("best params = %v", best.Params)
	}
	if math.IsInf(best.Value, 1) {
		t.Error("no best value recorded")
	}
}

func TestGridSearch_Invalid(t *testing.T) {
	g := &GridSearch{Ranges: map[string][]float64{"warp": {1}}}
	if _, err := g.Search(context.Background(), testBuilder(t)); !errors.Is(err, dynamo.ErrInvalidParams) {
		t.Errorf("unknown param err = %v", err)
	}
	g = &GridSearch{}
	if _, err := g.Search(context.Background(), testBuilder(t)); !errors.Is(err, dynamo.ErrInvalidParams) {
		t.Errorf("empty grid err = %v", err)
	}
}
