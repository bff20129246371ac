// Package queue is the bounded-concurrency work dispatcher that runs one
// pipeline per group, generalizing medivac/engine/engine.go's launchAgents
// (a raw buffered-channel semaphore with no exposed per-item state) into a
// reusable dispatcher on golang.org/x/sync/semaphore with a tracked
// queued→processing→(completed|failed) item lifecycle. StatusRetrying is
// defined but the dispatcher never sets it: each item's ProcessFunc runs
// exactly once.
package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Status is an item's position in its lifecycle.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item wraps one unit of work with its tracked state. T is the caller's
// payload type (e.g. issue.Group).
type Item[T any] struct {
	Payload T
	Status  Status
	Attempt int
	Err     error

	mu sync.Mutex
}

func (i *Item[T]) setStatus(s Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Status = s
}

func (i *Item[T]) snapshot() (Status, int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.Status, i.Attempt, i.Err
}

// ProcessFunc does the work for one item. A non-nil error fails the item
// (the caller is responsible for any internal retry loop it wants to run
// before returning).
type ProcessFunc[T any] func(ctx context.Context, payload T) error

// Stats aggregates outcome counts and timing across a Run.
type Stats struct {
	Total     int
	Completed int
	Failed    int
	Interrupted int
	Duration  time.Duration
}

// Dispatcher runs items through ProcessFunc with at most MaxConcurrent
// running at once.
type Dispatcher[T any] struct {
	MaxConcurrent int
	Process       ProcessFunc[T]
}

// New constructs a Dispatcher bounded to maxConcurrent concurrent workers.
func New[T any](maxConcurrent int, process ProcessFunc[T]) *Dispatcher[T] {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher[T]{MaxConcurrent: maxConcurrent, Process: process}
}

// Run processes all items, honoring ctx cancellation as the interrupt
// handle: once ctx is done, no further items start; in-flight items finish
// (ProcessFunc is expected to check ctx internally at its own stage
// boundaries) and any item that had not yet started is marked StatusFailed
// with ctx.Err() as its Err. When ctx is done at the end of Run, every
// failed item is counted under Stats.Interrupted rather than Stats.Failed.
func (d *Dispatcher[T]) Run(ctx context.Context, items []*Item[T]) Stats {
	start := time.Now()
	sem := semaphore.NewWeighted(int64(d.MaxConcurrent))
	var wg sync.WaitGroup

	for _, item := range items {
		item.setStatus(StatusQueued)
	}

	for _, item := range items {
		if ctx.Err() != nil {
			item.mu.Lock()
			item.Status = StatusFailed
			item.Err = ctx.Err()
			item.mu.Unlock()
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			item.mu.Lock()
			item.Status = StatusFailed
			item.Err = ctx.Err()
			item.mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(it *Item[T]) {
			defer wg.Done()
			defer sem.Release(1)

			it.setStatus(StatusProcessing)
			it.mu.Lock()
			it.Attempt++
			it.mu.Unlock()

			err := d.Process(ctx, it.Payload)

			it.mu.Lock()
			defer it.mu.Unlock()
			if err != nil {
				it.Status = StatusFailed
				it.Err = err
				return
			}
			it.Status = StatusCompleted
		}(item)
	}

	wg.Wait()

	stats := Stats{Total: len(items), Duration: time.Since(start)}
	for _, item := range items {
		status, _, _ := item.snapshot()
		switch status {
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			if ctx.Err() != nil {
				stats.Interrupted++
			} else {
				stats.Failed++
			}
		}
	}
	return stats
}
