package automation

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
)

// GridSearch tries every combination of engine parameter values and keeps
// the one with the lowest metric.
type GridSearch struct {
	Scene    string
	Preset   string
	Duration float64
	Ranges   map[string][]float64
	Metric   string
}

type SearchResult struct {
	Params map[string]float64
	Value  float64
	Trials int
	Failed int
}

func (g *GridSearch) names() []string {
	names := make([]string, 0, len(g.Ranges))
	for k := range g.Ranges {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Search runs the grid sequentially. Halted runs and runs without the metric
// count as failed.
func (g *GridSearch) Search(ctx context.Context, build Builder) (*SearchResult, error) {
	if len(g.Ranges) == 0 {
		return nil, fmt.Errorf("empty grid: %w", dynamo.ErrInvalidParams)
	}
	names := g.names()
	for _, n := range names {
		if len(g.Ranges[n]) == 0 {
			return nil, fmt.Errorf("parameter %q has no values: %w", n, dynamo.ErrInvalidParams)
		}
		var probe config.EngineConfig
		if err := SetParam(&probe, n, 0); err != nil {
			return nil, err
		}
	}

	best := &SearchResult{Value: math.Inf(1)}
	err := g.searchRecursive(ctx, names, 0, make(map[string]float64), build, best)
	if err != nil {
		return nil, err
	}
	if best.Params == nil {
		return best, fmt.Errorf("no run produced %q", g.Metric)
	}
	return best, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, names []string, depth int,
	current map[string]float64, build Builder, best *SearchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(names) {
		best.Trials++
		cfg, err := ScenarioStep{Scene: g.Scene, Preset: g.Preset, Duration: g.Duration, Params: current}.Config()
		if err != nil {
			best.Failed++
			return nil
		}
		exp, err := build(cfg, g.Scene)
		if err != nil {
			return err
		}
		result, err := exp.Run(ctx)
		_ = exp.Close()
		if err != nil || result.Halted {
			best.Failed++
			return nil
		}
		val, ok := result.Metrics[g.Metric]
		if !ok || math.IsNaN(val) {
			best.Failed++
			return nil
		}
		if val < best.Value {
			best.Value = val
			best.Params = make(map[string]float64, len(current))
			for k, v := range current {
				best.Params[k] = v
			}
		}
		return nil
	}

	name := names[depth]
	for _, val := range g.Ranges[name] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[name] = val
		if err := g.searchRecursive(ctx, names, depth+1, next, build, best); err != nil {
			return err
		}
	}
	return nil
}
