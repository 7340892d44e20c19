package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock_StartsAtZero(t *testing.T) {
	clock := NewManualClock()
	assert.Equal(t, time.Duration(0), clock.Now())
	assert.Equal(t, time.Duration(0), clock.Now())
}

func TestManualClock_SleepAdvances(t *testing.T) {
	clock := NewManualClock()

	require.NoError(t, clock.Sleep(context.Background(), 30*time.Millisecond))
	assert.Equal(t, 30*time.Millisecond, clock.Now())

	// negative sleeps are recorded but don't move time
	require.NoError(t, clock.Sleep(context.Background(), -time.Millisecond))
	assert.Equal(t, 30*time.Millisecond, clock.Now())
	assert.Equal(t, []time.Duration{30 * time.Millisecond, -time.Millisecond}, clock.Sleeps())
}

func TestManualClock_SleepCancelled(t *testing.T) {
	clock := NewManualClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := clock.Sleep(ctx, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, time.Duration(0), clock.Elapsed())
	assert.Empty(t, clock.Sleeps())
}

func TestSteppingClock(t *testing.T) {
	clock := NewSteppingClock(2 * time.Millisecond)

	assert.Equal(t, time.Duration(0), clock.Now())
	assert.Equal(t, 2*time.Millisecond, clock.Now())
	clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 14*time.Millisecond, clock.Now())
	assert.Equal(t, 16*time.Millisecond, clock.Elapsed())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock()
	const goroutines = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines*time.Millisecond, clock.Now())
}

func TestPlatform_Records(t *testing.T) {
	p := &Platform{FreeTimeWork: 1}

	require.NoError(t, p.Init([]string{"a"}))
	p.Notify("app", "starting")
	assert.True(t, p.WorkDuringFreeTime(time.Millisecond))
	assert.False(t, p.WorkDuringFreeTime(time.Millisecond))
	p.Yield(3 * time.Millisecond)
	p.Restart()

	assert.Equal(t, []string{"init [a]", "notify app=starting", "yield 3ms", "restart"}, p.Calls())
}

func TestSequenceIDs(t *testing.T) {
	ids := NewSequenceIDs("")
	assert.Equal(t, "image-0001", ids.NewID())
	assert.Equal(t, "image-0002", ids.NewID())

	other := NewSequenceIDs("x")
	assert.Equal(t, "x-0001", other.NewID())
}
