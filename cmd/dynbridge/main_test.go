package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestSelectColumns(t *testing.T) {
	header := []string{"a.x", "a.y", "a.z", "a.vx", "a.vy", "a.vz", "b.x", "u:hinge"}

	got, err := selectColumns(header, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != maxPlots || got[5] != 5 {
		t.Errorf("default selection = %v", got)
	}

	got, err = selectColumns(header, []string{"u:hinge", "a.z"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 2 {
		t.Errorf("selection = %v, want [7 2]", got)
	}

	if _, err := selectColumns(header, []string{"c.x"}); err == nil {
		t.Error("expected error for an unknown column")
	}
}

func newSceneCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "run"}
	addSceneFlags(cmd)
	return cmd
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(path, []byte("dt: 0.02\nduration: 3\nscene: drop.yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cmd := newSceneCmd()
	if err := cmd.ParseFlags([]string{"--config", path, "--time", "1.5"}); err != nil {
		t.Fatal(err)
	}
	defer func() { configFile, duration = "", 0 }()

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dt != 0.02 {
		t.Errorf("dt = %v, want the file value 0.02", cfg.Dt)
	}
	if cfg.Duration != 1.5 {
		t.Errorf("duration = %v, want the flag value 1.5", cfg.Duration)
	}
	if p, err := scenePath(cfg, nil); err != nil || p != "drop.yaml" {
		t.Errorf("scene = %q, %v", p, err)
	}
}

func TestLoadConfig_Preset(t *testing.T) {
	cmd := newSceneCmd()
	if err := cmd.ParseFlags([]string{"--preset", "accurate"}); err != nil {
		t.Fatal(err)
	}
	defer func() { preset = "" }()

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Timestep != 0.001 {
		t.Errorf("timestep = %v, want the preset value", cfg.Engine.Timestep)
	}

	preset = "nope"
	if _, err := loadConfig(cmd); err == nil {
		t.Error("expected error for an unknown preset")
	}
}

func TestBuildExperiment_Example(t *testing.T) {
	cmd := newSceneCmd()
	if err := cmd.ParseFlags([]string{"--time", "0.2"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	cfg.WorkDir = t.TempDir()

	exp, err := buildExperiment(cfg, filepath.Join("..", "..", "examples", "arm.yaml"), newLogger(os.Stderr, "error"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer exp.Close()
	for i := 0; i < 4; i++ {
		if err := exp.Step(); err != nil {
			t.Fatal(err)
		}
	}
	if exp.Container().Description() == "" {
		t.Error("no model built")
	}
	if len(exp.Context().Injections()) == 0 {
		t.Error("script injection did not reach the context")
	}
}

func TestParseGrid(t *testing.T) {
	ranges, err := parseGrid([]string{"timestep=0.001, 0.002", "iterations=5"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ranges["timestep"]; len(got) != 2 || got[1] != 0.002 {
		t.Errorf("timestep = %v", got)
	}
	if got := ranges["iterations"]; len(got) != 1 || got[0] != 5 {
		t.Errorf("iterations = %v", got)
	}

	for _, bad := range []string{"timestep", "=1", "timestep=fast"} {
		if _, err := parseGrid([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
