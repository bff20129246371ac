package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_Run_BoundsConcurrency(t *testing.T) {
	var active int32
	var maxSeen int32

	process := func(ctx context.Context, payload int) error {
		n := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}

	d := New(2, process)
	items := make([]*Item[int], 8)
	for i := range items {
		items[i] = &Item[int]{Payload: i}
	}

	stats := d.Run(context.Background(), items)
	assert.Equal(t, 8, stats.Completed)
	assert.LessOrEqual(t, int(maxSeen), 2)
}

func TestDispatcher_Run_TracksFailures(t *testing.T) {
	process := func(ctx context.Context, payload int) error {
		if payload%2 == 0 {
			return errors.New("boom")
		}
		return nil
	}

	d := New(4, process)
	items := []*Item[int]{{Payload: 0}, {Payload: 1}, {Payload: 2}, {Payload: 3}}
	stats := d.Run(context.Background(), items)

	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, StatusFailed, items[0].Status)
	assert.Equal(t, StatusCompleted, items[1].Status)
}

func TestDispatcher_Run_StopsNewWorkAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	process := func(ctx context.Context, payload int) error { return nil }
	d := New(2, process)
	items := []*Item[int]{{Payload: 0}, {Payload: 1}}

	stats := d.Run(ctx, items)
	assert.Equal(t, 0, stats.Completed)
	assert.Equal(t, 2, stats.Interrupted)
}
