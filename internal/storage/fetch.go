package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Object is a fetched object held in memory.
type Object struct {
	Path string
	Data []byte
}

// Fetcher reads several objects in parallel. The number of parallel reads
// backs off while the store keeps failing.
type Fetcher struct {
	store    ObjectStore
	throttle *Throttle
}

// NewFetcher creates a fetcher.
// concurrency: maximum number of parallel reads
func NewFetcher(store ObjectStore, concurrency int) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{store: store, throttle: NewThrottle(ThrottleConfig{MaxConcurrency: concurrency})}
}

// Throttle returns the fetcher's read throttle.
func (f *Fetcher) Throttle() *Throttle {
	return f.throttle
}

// FetchAll reads every object and returns them in the order of paths.
// The first failure cancels outstanding reads and is returned.
func (f *Fetcher) FetchAll(ctx context.Context, paths []string) ([]Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make([]Object, len(paths))
	sem := semaphore.NewWeighted(int64(f.throttle.Adjust()))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i, p := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(fmt.Errorf("fetch %s: %w", p, err))
			break
		}

		wg.Add(1)
		go func(i int, path string) {
			defer sem.Release(1)
			defer wg.Done()

			data, err := f.read(ctx, path)
			if err != nil {
				if ctx.Err() == nil {
					f.throttle.Record(false)
				}
				fail(fmt.Errorf("fetch %s: %w", path, err))
				return
			}
			f.throttle.Record(true)
			objects[i] = Object{Path: path, Data: data}
		}(i, p)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return objects, nil
}

func (f *Fetcher) read(ctx context.Context, path string) ([]byte, error) {
	rc, err := f.store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
