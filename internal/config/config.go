package config

import (
	"fmt"
	"os"

	"github.com/san-kum/dynbridge/internal/dynamo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt               = 0.05
	DefaultDuration         = 5.0
	DefaultTimestep         = 0.005
	DefaultIterations       = 20
	DefaultMaxForce         = 100.0
	DefaultRateLimit        = 10.0
	RestartWarningThreshold = 3
)

const (
	SmoothingLast   = "last"
	SmoothingLinear = "linear"
)

const (
	KinematicInterpolate = "interpolate"
	KinematicJump        = "jump"
	KinematicStatic      = "static"
)

// Config is the host-level run configuration.
type Config struct {
	Solver   string       `yaml:"solver"`
	Scene    string       `yaml:"scene"`
	Script   string       `yaml:"script"`
	Inject   []string     `yaml:"inject"`
	Dt       float64      `yaml:"dt"`
	Duration float64      `yaml:"duration"`
	LogLevel string       `yaml:"log_level"`
	WorkDir  string       `yaml:"work_dir"`
	Engine   EngineConfig `yaml:"engine"`
}

// EngineConfig carries the parameters handed to the bridge on init.
type EngineConfig struct {
	Timestep         float64            `yaml:"timestep"`
	Gravity          [3]float64         `yaml:"gravity,flow"`
	MaxForce         float64            `yaml:"max_force"`
	RateLimit        float64            `yaml:"rate_limit"`
	Iterations       int                `yaml:"iterations"`
	RebuildTrigger   int                `yaml:"rebuild_trigger"`
	Smoothing        string             `yaml:"smoothing"`
	RobustInertia    bool               `yaml:"robust_inertia"`
	Kinematic        string             `yaml:"kinematic"`
	RestartThreshold int                `yaml:"restart_threshold"`
	MassDividers     map[string]float64 `yaml:"mass_dividers,omitempty"`
}

func DefaultEngine() EngineConfig {
	return EngineConfig{
		Timestep:         DefaultTimestep,
		Gravity:          [3]float64{0, 0, -9.81},
		MaxForce:         DefaultMaxForce,
		RateLimit:        DefaultRateLimit,
		Iterations:       DefaultIterations,
		Smoothing:        SmoothingLinear,
		RobustInertia:    true,
		Kinematic:        KinematicInterpolate,
		RestartThreshold: RestartWarningThreshold,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Solver:   "planar",
		Dt:       DefaultDt,
		Duration: DefaultDuration,
		LogLevel: "info",
		Engine:   DefaultEngine(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (e EngineConfig) Validate() error {
	switch {
	case e.Timestep <= 0:
		return fmt.Errorf("timestep %g: %w", e.Timestep, dynamo.ErrInvalidParams)
	case e.Iterations < 0:
		return fmt.Errorf("iterations %d: %w", e.Iterations, dynamo.ErrInvalidParams)
	case e.MaxForce < 0 || e.RateLimit < 0:
		return fmt.Errorf("negative force or rate limit: %w", dynamo.ErrInvalidParams)
	case e.Smoothing != SmoothingLast && e.Smoothing != SmoothingLinear:
		return fmt.Errorf("smoothing %q: %w", e.Smoothing, dynamo.ErrInvalidParams)
	case e.Kinematic != KinematicInterpolate && e.Kinematic != KinematicJump && e.Kinematic != KinematicStatic:
		return fmt.Errorf("kinematic mode %q: %w", e.Kinematic, dynamo.ErrInvalidParams)
	case e.RestartThreshold < 1:
		return fmt.Errorf("restart threshold %d: %w", e.RestartThreshold, dynamo.ErrInvalidParams)
	}
	for name, d := range e.MassDividers {
		if d <= 0 {
			return fmt.Errorf("mass divider %q = %g: %w", name, d, dynamo.ErrInvalidParams)
		}
	}
	return nil
}

// MassDivider returns the divider configured for an object name, or 1.
func (e EngineConfig) MassDivider(name string) float64 {
	if d, ok := e.MassDividers[name]; ok && d > 0 {
		return d
	}
	return 1
}
