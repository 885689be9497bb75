package dataset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// LoadOptions configures Load.
type LoadOptions struct {
	Root       string
	GridSize   int
	NumWorkers int
	Logger     *log.Logger
}

// ErrNoFiles is returned when the root holds no dataset files.
var ErrNoFiles = errors.New("dataset: no dataset files found")

// Load discovers every dataset file under opts.Root and parses them with a
// pool of workers. Files are merged in discovery order, so the result does
// not depend on scheduling.
func Load(ctx context.Context, opts LoadOptions) (*Dataset, error) {
	paths, err := DiscoverFiles(opts.Root)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoFiles, opts.Root)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.NumWorkers > len(paths) {
		opts.NumWorkers = len(paths)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		ds  *Dataset
		err error
	}
	results := make([]result, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case idx, ok := <-jobs:
					if !ok {
						return
					}
					rd := &Reader{GridSize: opts.GridSize, Logger: opts.Logger}
					ds, err := rd.ReadFile(paths[idx])
					results[idx] = result{ds: ds, err: err}
					if err != nil {
						cancel()
					}
				}
			}
		}()
	}

produce:
	for idx := range paths {
		select {
		case <-ctx.Done():
			break produce
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
	}
	merged := &Dataset{}
	for idx, r := range results {
		if r.ds == nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("dataset: %s was not read", paths[idx])
		}
		merged.Append(r.ds)
	}
	return merged, nil
}
