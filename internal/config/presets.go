package config

import "sort"

var Presets = map[string]*Config{
	"default": DefaultConfig(),
	"accurate": {
		Solver: "planar", Dt: 0.02, Duration: DefaultDuration, LogLevel: "info",
		Engine: EngineConfig{
			Timestep: 0.001, Gravity: [3]float64{0, 0, -9.81}, MaxForce: DefaultMaxForce,
			RateLimit: DefaultRateLimit, Iterations: 50, Smoothing: SmoothingLinear,
			RobustInertia: true, Kinematic: KinematicInterpolate, RestartThreshold: RestartWarningThreshold,
		},
	},
	"fast": {
		Solver: "planar", Dt: 0.05, Duration: DefaultDuration, LogLevel: "warn",
		Engine: EngineConfig{
			Timestep: 0.01, Gravity: [3]float64{0, 0, -9.81}, MaxForce: DefaultMaxForce,
			RateLimit: DefaultRateLimit, Iterations: 8, Smoothing: SmoothingLast,
			RobustInertia: true, Kinematic: KinematicInterpolate, RestartThreshold: RestartWarningThreshold,
		},
	},
	"kinematic": {
		Solver: "planar", Dt: 0.05, Duration: DefaultDuration, LogLevel: "info",
		Engine: EngineConfig{
			Timestep: DefaultTimestep, Gravity: [3]float64{0, 0, -9.81}, MaxForce: DefaultMaxForce,
			RateLimit: DefaultRateLimit, Iterations: DefaultIterations, Smoothing: SmoothingLast,
			RobustInertia: true, Kinematic: KinematicJump, RestartThreshold: RestartWarningThreshold,
		},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	c := *cfg
	c.Engine.MassDividers = nil
	return &c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
