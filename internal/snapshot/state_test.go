package snapshot

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Transitions(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, StateAvailable, sm.State())
	assert.False(t, sm.IsBusy())

	require.True(t, sm.TryAcquire())
	assert.Equal(t, StateBusy, sm.State())
	assert.True(t, sm.IsBusy())

	assert.False(t, sm.TryAcquire(), "second acquire must fail while busy")
	assert.Equal(t, StateBusy, sm.State())

	require.NoError(t, sm.Release())
	assert.Equal(t, StateAvailable, sm.State())
	assert.True(t, sm.TryAcquire(), "gate must be reusable")
}

func TestStateMachine_ReleaseWhenAvailable(t *testing.T) {
	sm := NewStateMachine()

	err := sm.Release()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))

	var ste *StateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, "available", ste.Current)
	assert.Equal(t, StateAvailable, sm.State())
}

func TestStateMachine_ConcurrentAcquire(t *testing.T) {
	sm := NewStateMachine()

	const goroutines = 100
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if sm.TryAcquire() {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, StateBusy, sm.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "available", StateAvailable.String())
	assert.Equal(t, "busy", StateBusy.String())
	assert.Equal(t, "unknown(7)", State(7).String())
}
