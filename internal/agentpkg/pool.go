package agentpkg

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// FanOutResult is one slot of a RunFanOut call: either a value or the error
// that call produced.
type FanOutResult[Out any] struct {
	Value Out
	Err   error
}

// RunFanOut dispatches len(temperatures) concurrent calls to fn, bounded by
// maxConcurrency, grounded on Tangerg-lynx/flow/parallel.go's
// goroutine-per-processor-plus-channel-collection shape and
// golang.org/x/sync/semaphore for the concurrency bound (spec §4.4, §5).
// Unlike an errgroup, a single failing call never cancels its siblings:
// results are returned in completion order, and the only error RunFanOut
// itself returns is "every call failed" (spec requires at least one
// success to proceed).
func RunFanOut[Out any](
	ctx context.Context,
	maxConcurrency int,
	temperatures []float64,
	fn func(ctx context.Context, idx int, temperature float64) (Out, error),
) ([]FanOutResult[Out], error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	results := make(chan FanOutResult[Out], len(temperatures))

	for i, temperature := range temperatures {
		i, temperature := i, temperature
		go func() {
			var zero Out
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- FanOutResult[Out]{Value: zero, Err: err}
				return
			}
			defer sem.Release(1)

			val, err := fn(ctx, i, temperature)
			results <- FanOutResult[Out]{Value: val, Err: err}
		}()
	}

	out := make([]FanOutResult[Out], 0, len(temperatures))
	successes := 0
	for range temperatures {
		r := <-results
		if r.Err == nil {
			successes++
		}
		out = append(out, r)
	}

	if successes == 0 {
		return out, errors.New("agentpkg: all fan-out calls failed")
	}
	return out, nil
}

// TestTemperatures returns n temperatures ramping linearly from 0.5 to 1.0
// (spec §4.4's test-generation ramp).
func TestTemperatures(n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{0.5}
	}
	temps := make([]float64, n)
	for i := 0; i < n; i++ {
		temps[i] = 0.5 + 0.5*float64(i)/float64(n-1)
	}
	return temps
}

// sqlTemperatureRamp is the fixed three-step SQL-generation ramp (spec §4.4).
var sqlTemperatureRamp = []float64{0.2, 0.5, 0.8}

// SQLTemperatures returns n temperatures, cycling through sqlTemperatureRamp
// when n exceeds its length.
func SQLTemperatures(n int) []float64 {
	if n <= 0 {
		return nil
	}
	temps := make([]float64, n)
	for i := range temps {
		temps[i] = sqlTemperatureRamp[i%len(sqlTemperatureRamp)]
	}
	return temps
}
