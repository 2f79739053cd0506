package types

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events [][2]int64
}

func (r *recordingSink) OnProgress(done, total int64) {
	r.mu.Lock()
	r.events = append(r.events, [2]int64{done, total})
	r.mu.Unlock()
}

func TestProgressState_ConcurrentAdds(t *testing.T) {
	sink := &recordingSink{}
	state := NewProgressState("p", 100*1000, sink)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				state.Add(10)
			}
		}()
	}
	wg.Wait()
	state.Finish()

	assert.Equal(t, int64(100*1000), state.Downloaded.Load())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.NotEmpty(t, sink.events)

	var prev int64 = -1
	completions := 0
	for _, ev := range sink.events {
		assert.Greater(t, ev[0], prev, "snapshots must be strictly increasing")
		prev = ev[0]
		if ev[0] == ev[1] {
			completions++
		}
	}
	assert.Equal(t, 1, completions, "100%% must be delivered exactly once")
}

func TestProgressState_FinishIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	state := NewProgressState("p", 10, sink)
	state.Add(10)
	state.Finish()
	state.Finish()

	assert.Equal(t, [][2]int64{{10, 10}}, sink.events)
}

func TestProgressState_BaseCountsTowardSnapshot(t *testing.T) {
	state := NewProgressState("p", 1000, nil)
	state.SetBase(400)
	state.Add(100)

	done, total := state.Snapshot()
	assert.Equal(t, int64(500), done)
	assert.Equal(t, int64(1000), total)
	assert.Equal(t, int64(100), state.Downloaded.Load())

	// No sink: must not panic.
	state.Finish()
}
