package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/san-kum/dynbridge/internal/bridge"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/experiment"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/script"
	"github.com/san-kum/dynbridge/internal/storage"
	"github.com/san-kum/dynbridge/internal/tui"
	"github.com/san-kum/dynbridge/internal/watch"
	"github.com/spf13/cobra"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	preset     string
	solverName string
	dt         float64
	duration   float64
	scriptFile string
	watchDir   string
	live       bool
	frameRate  int
	noSave     bool
	robust     bool
	columns    []string
	xAxis      string
	yAxis      string
	svgOut     string
	svgWidth   int
	svgHeight  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dynbridge",
		Short:         "scene graph to physics solver bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".dynbridge", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [scene.yaml]",
		Short: "run a scene and store its trace",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScene,
	}
	addSceneFlags(runCmd)
	runCmd.Flags().BoolVar(&live, "live", false, "draw the scene while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate for --live")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	liveCmd := &cobra.Command{
		Use:   "live [scene.yaml]",
		Short: "run a scene in the interactive view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSceneFlags(liveCmd)

	describeCmd := &cobra.Command{
		Use:   "describe [scene.yaml]",
		Short: "print the solver model built for a scene",
		Args:  cobra.MaximumNArgs(1),
		RunE:  describeScene,
	}
	addSceneFlags(describeCmd)

	inertiaCmd := &cobra.Command{
		Use:   "inertia [scene.yaml] [object]",
		Short: "compute the mass properties of a shape",
		Args:  cobra.ExactArgs(2),
		RunE:  computeInertia,
	}
	inertiaCmd.Flags().BoolVar(&robust, "robust", true, "fall back to a point mass for degenerate geometry")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to plot (default: first six)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id] [column]",
		Short: "summary and frequency analysis of one column",
		Args:  cobra.ExactArgs(2),
		RunE:  analyzeRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "plot one column against another",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xAxis, "x-axis", "", "column for the x axis")
	phaseCmd.Flags().StringVar(&yAxis, "y-axis", "", "column for the y axis")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run with its trace as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "draw the body trajectories of a run as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&svgOut, "out", "o", "", "output file (default: stdout)")
	exportSVGCmd.Flags().IntVar(&svgWidth, "width", 800, "image width")
	exportSVGCmd.Flags().IntVar(&svgHeight, "height", 600, "image height")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list configuration presets",
		RunE:  listPresets,
	}

	solversCmd := &cobra.Command{
		Use:   "solvers",
		Short: "list solver backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			solvers := experiment.NewSolvers()
			for _, name := range solvers.List() {
				engine, err := solvers.Get(name)
				if err != nil {
					return err
				}
				fmt.Printf("%-10s %s %s\n", name, engine.Name(), engine.Version())
			}
			return nil
		},
	}

	compareCmd := &cobra.Command{
		Use:   "compare [scene.yaml] [preset1] [preset2] ...",
		Short: "run a scene under several presets side by side",
		Args:  cobra.MinimumNArgs(2),
		RunE:  comparePresets,
	}
	compareCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")

	rootCmd.AddCommand(runCmd, liveCmd, describeCmd, inertiaCmd, listCmd, plotCmd, analyzeCmd,
		phaseCmd, exportCmd, exportCSVCmd, exportSVGCmd, presetsCmd, solversCmd, compareCmd)
	rootCmd.AddCommand(batchCommands()...)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addSceneFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringVar(&solverName, "solver", "planar", "solver backend")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "host timestep")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	cmd.Flags().StringVar(&scriptFile, "script", "", "tengo script run before every tick")
	cmd.Flags().StringVar(&watchDir, "watch", "", "directory of description fragments to hot reload")
}

// loadConfig resolves preset, config file and flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("solver") || cfg.Solver == "" {
		cfg.Solver = solverName
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("time") {
		cfg.Duration = duration
	}
	if cmd.Flags().Changed("script") {
		cfg.Script = scriptFile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.Dt <= 0 || cfg.Duration < 0 {
		return nil, fmt.Errorf("dt %g, duration %g: must be positive", cfg.Dt, cfg.Duration)
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "dynbridge",
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

func scenePath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.Scene != "" {
		return cfg.Scene, nil
	}
	return "", fmt.Errorf("no scene: pass a scene file or set scene in the config")
}

// buildExperiment loads the scene and wires fragments, watchers and the
// script. Everything it opens is closed by the experiment.
func buildExperiment(cfg *config.Config, path string, logger *log.Logger) (*experiment.Experiment, error) {
	g, file, err := scene.LoadFile(path)
	if err != nil {
		return nil, err
	}
	name := file.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	engine, err := experiment.NewSolvers().Get(cfg.Solver)
	if err != nil {
		return nil, err
	}

	exp := experiment.New(experiment.Config{
		Name:     name,
		Solver:   cfg.Solver,
		Dt:       cfg.Dt,
		Duration: cfg.Duration,
		WorkDir:  cfg.WorkDir,
		Engine:   cfg.Engine,
	}, g, logger)
	if err := exp.Setup(engine, experiment.DefaultMetrics()); err != nil {
		return nil, err
	}

	if err := wireHooks(exp, cfg, path, file, logger); err != nil {
		_ = exp.Close()
		return nil, err
	}
	return exp, nil
}

func wireHooks(exp *experiment.Experiment, cfg *config.Config, path string, file *scene.File, logger *log.Logger) error {
	g, ctx := exp.Scene(), exp.Context()
	for _, frag := range cfg.Inject {
		inj, err := watch.ReadFragment(frag, g)
		if err != nil {
			return err
		}
		ctx.InjectXML(inj.XML, inj.Element, inj.Object)
	}
	if watchDir != "" {
		r, err := watch.NewReloader(watchDir, g, ctx, logger.With("watch", watchDir))
		if err != nil {
			return err
		}
		exp.AddHook(r)
	}

	src := cfg.Script
	if src == "" && file.Script != "" {
		src = file.Script
		if !filepath.IsAbs(src) {
			src = filepath.Join(filepath.Dir(path), src)
		}
	}
	if src != "" {
		r, err := script.Load(src, g, ctx, cfg.Dt, logger.With("script", filepath.Base(src)))
		if err != nil {
			return err
		}
		exp.AddHook(r)
	}
	return nil
}

func runScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := scenePath(cfg, args)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg.LogLevel)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, err := buildExperiment(cfg, path, logger)
	if err != nil {
		return err
	}
	defer exp.Close()

	if live {
		r := tui.NewLiveRenderer(os.Stdout, exp, frameRate)
		exp.AddHook(r)
		r.Start()
		defer r.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	name := exp.Config().Name
	fmt.Printf("running %s on %s...\n", name, cfg.Solver)
	start := time.Now()

	result, runErr := exp.Run(ctx)
	if result == nil {
		return runErr
	}
	elapsed := time.Since(start)

	if !noSave {
		runID, err := st.Save(storage.RunMetadata{
			Scene:    name,
			Solver:   cfg.Solver,
			Dt:       cfg.Dt,
			Duration: cfg.Duration,
			Engine:   cfg.Engine,
		}, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d\n", len(result.States))
	if result.Halted {
		fmt.Println("halted: solver error, see warnings")
	}
	fmt.Println("\nmetrics:")
	for _, n := range result.MetricNames() {
		fmt.Printf("  %s: %.6f\n", n, result.Metrics[n])
	}
	if len(result.Warnings) > 0 {
		fmt.Println("\nwarnings:")
		for _, w := range result.Warnings {
			fmt.Printf("  %s\n", w)
		}
	}
	return runErr
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := scenePath(cfg, args)
	if err != nil {
		return err
	}
	// the alternate screen owns the terminal; warnings show in the view
	logger := log.New(io.Discard)
	return tui.RunInteractive(func() (*experiment.Experiment, error) {
		return buildExperiment(cfg, path, logger)
	})
}

func describeScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, err := scenePath(cfg, args)
	if err != nil {
		return err
	}
	exp, err := buildExperiment(cfg, path, newLogger(os.Stderr, cfg.LogLevel))
	if err != nil {
		return err
	}
	defer exp.Close()

	if err := exp.Step(); err != nil {
		return err
	}
	c := exp.Container()
	if c.Description() == "" {
		for _, w := range c.Warnings() {
			fmt.Fprintln(os.Stderr, w)
		}
		return fmt.Errorf("no model built for %s", path)
	}

	reg := c.Registry()
	fmt.Fprintf(os.Stderr, "engine: %s\n", c.EngineInfo())
	fmt.Fprintf(os.Stderr, "dynamic content: %v\n", c.IsDynamicContentAvailable())
	if reg != nil {
		fmt.Fprintf(os.Stderr, "shapes: %d  joints: %d  geoms: %d  particles: %d  composites: %d  sensors: %d\n",
			len(reg.Shapes), len(reg.Joints), len(reg.Geoms), len(reg.Particles), len(reg.Composites), len(reg.ForceSensors))
	}
	fmt.Println(c.Description())
	return nil
}

func computeInertia(cmd *cobra.Command, args []string) error {
	g, _, err := scene.LoadFile(args[0])
	if err != nil {
		return err
	}
	h, ok := g.Lookup(args[1])
	if !ok {
		return fmt.Errorf("no object %q in %s", args[1], args[0])
	}
	in, err := bridge.ComputeInertia(g, h, robust)
	if err != nil {
		return err
	}
	p := in.Com.Position
	q := in.Com.Rotation
	fmt.Printf("object:  %s\n", args[1])
	fmt.Printf("mass:    %.6f\n", in.Mass)
	fmt.Printf("com:     %.6f %.6f %.6f\n", p.X(), p.Y(), p.Z())
	fmt.Printf("frame:   %.6f %.6f %.6f %.6f\n", q.W, q.V.X(), q.V.Y(), q.V.Z())
	fmt.Printf("inertia: %.6f %.6f %.6f\n", in.Diag.X(), in.Diag.Y(), in.Diag.Z())
	return nil
}

func comparePresets(cmd *cobra.Command, args []string) error {
	path := args[0]
	presets := args[1:]
	logger := newLogger(os.Stderr, "error")

	builds := make([]experiment.Build, len(presets))
	for i, name := range presets {
		name := name
		cfg := config.GetPreset(name)
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
		}
		if cmd.Flags().Changed("time") {
			cfg.Duration = duration
		}
		builds[i] = func() (*experiment.Experiment, error) {
			return buildExperiment(cfg, path, logger.With("preset", name))
		}
	}

	fmt.Printf("comparing presets for %s\n\n", path)
	fmt.Printf("%-10s  %-8s  %-12s  %-12s  %-10s  %-8s\n", "preset", "steps", "energy_drift", "stability", "time_ms", "status")
	fmt.Println(strings.Repeat("-", 70))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for i, out := range experiment.RunEnsemble(ctx, builds) {
		if out.Result == nil {
			fmt.Printf("%-10s  error: %v\n", presets[i], out.Err)
			continue
		}
		res := out.Result
		status := "ok"
		switch {
		case out.Err != nil:
			status = out.Err.Error()
		case res.Halted:
			status = "halted"
		}
		fmt.Printf("%-10s  %8d  %12.2e  %12.4f  %10.2f  %s\n", presets[i], len(res.Times),
			res.Metrics["energy_drift"], res.Metrics["stability"], float64(out.Elapsed.Microseconds())/1000, status)
	}
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	names := config.ListPresets()
	sort.Strings(names)
	for _, name := range names {
		p := config.GetPreset(name)
		fmt.Printf("%-10s dt=%g timestep=%g iterations=%d smoothing=%s kinematic=%s\n",
			name, p.Dt, p.Engine.Timestep, p.Engine.Iterations, p.Engine.Smoothing, p.Engine.Kinematic)
	}
	return nil
}
