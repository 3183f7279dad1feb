package limiter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutualExclusion(t *testing.T) {
	g := NewSessionGuard()
	assert.True(t, g.Idle())

	require.True(t, g.TryAcquire(SlotInitiation))
	assert.True(t, g.IsInitiating())
	assert.False(t, g.IsPostingReply())

	// Both slots are blocked while one is held.
	assert.False(t, g.TryAcquire(SlotReply))
	assert.False(t, g.TryAcquire(SlotInitiation))

	require.NoError(t, g.Release(SlotInitiation))
	assert.True(t, g.Idle())

	require.True(t, g.TryAcquire(SlotReply))
	assert.True(t, g.IsPostingReply())
	assert.False(t, g.IsInitiating())
	require.NoError(t, g.Release(SlotReply))
}

func TestReleaseWrongSlot(t *testing.T) {
	g := NewSessionGuard()
	require.True(t, g.TryAcquire(SlotInitiation))

	err := g.Release(SlotReply)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotHeld)
	assert.True(t, g.IsInitiating(), "failed release must not change the holder")

	require.NoError(t, g.Release(SlotInitiation))
	assert.ErrorIs(t, g.Release(SlotInitiation), ErrNotHeld)
}

func TestAcquireNoneRejected(t *testing.T) {
	g := NewSessionGuard()
	assert.False(t, g.TryAcquire(SlotNone))
	assert.True(t, g.Idle())
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	g := NewSessionGuard()

	const attempts = 64
	var wg sync.WaitGroup
	var winners sync.Map
	wins := 0
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		slot := SlotInitiation
		if i%2 == 1 {
			slot = SlotReply
		}
		go func(s Slot, n int) {
			defer wg.Done()
			if g.TryAcquire(s) {
				mu.Lock()
				wins++
				mu.Unlock()
				winners.Store(n, s)
			}
		}(slot, i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one goroutine may hold the session")
	assert.False(t, g.Idle())
}
