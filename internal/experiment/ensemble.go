package experiment

import (
	"context"
	"sync"
	"time"
)

// Build creates one member of an ensemble.
type Build func() (*Experiment, error)

type Outcome struct {
	Result  *Result
	Err     error
	Elapsed time.Duration
}

// RunEnsemble runs every build on its own goroutine and closes it when done.
// Members share nothing: each owns its scene, context and container, so a
// failing member does not stop the others.
func RunEnsemble(ctx context.Context, builds []Build) []Outcome {
	outcomes := make([]Outcome, len(builds))

	var wg sync.WaitGroup
	for i, build := range builds {
		wg.Add(1)
		go func(idx int, build Build) {
			defer wg.Done()

			start := time.Now()
			e, err := build()
			if err != nil {
				if e != nil {
					_ = e.Close()
				}
				outcomes[idx] = Outcome{Err: err}
				return
			}
			defer e.Close()

			res, err := e.Run(ctx)
			outcomes[idx] = Outcome{Result: res, Err: err, Elapsed: time.Since(start)}
		}(i, build)
	}

	wg.Wait()
	return outcomes
}
