// Package source provides the data source adapter boundary for the Brick
// Engine. Every external source satisfies the same one-method capability
// contract; the load pipeline never branches on source identity.
package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bricklore/brickengine/internal/catalog"
	"github.com/bricklore/brickengine/internal/observability"
)

// Adapter fetches raw records from one external source.
type Adapter interface {
	// Name returns the stable source name used for provenance and priority.
	Name() string

	// Fetch returns the source's records. Implementations honor ctx
	// cancellation and return an empty slice, never partial garbage, on
	// failure.
	Fetch(ctx context.Context) ([]catalog.RawRecord, error)
}

// FetchError records a failed source fetch. It is non-fatal: the source
// contributes zero records and the load cycle proceeds.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchResult aggregates the outcome of fetching all sources.
type FetchResult struct {
	Records   []catalog.RawRecord
	PerSource map[string]int
	Errors    []*FetchError
}

// FetchAll runs every adapter concurrently with a per-source timeout and
// collects their records. A failing or timed-out source is recorded as a
// FetchError and contributes nothing; it never aborts the other fetches.
func FetchAll(ctx context.Context, logger *observability.Logger, adapters []Adapter, timeout time.Duration) *FetchResult {
	result := &FetchResult{PerSource: make(map[string]int, len(adapters))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, adapter := range adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()

			fetchCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			start := time.Now()
			records, err := a.Fetch(fetchCtx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.Errors = append(result.Errors, &FetchError{Source: a.Name(), Err: err})
				result.PerSource[a.Name()] = 0
				logger.Warn().
					Str("source", a.Name()).
					Dur("elapsed", time.Since(start)).
					Err(err).
					Msg("Source fetch failed")
				return
			}

			result.Records = append(result.Records, records...)
			result.PerSource[a.Name()] = len(records)
			logger.Debug().
				Str("source", a.Name()).
				Int("records", len(records)).
				Dur("elapsed", time.Since(start)).
				Msg("Source fetch complete")
		}(adapter)
	}

	wg.Wait()
	return result
}
