package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(7)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock(2)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	assert.Equal(t, 1, k.size())
}

func TestRegistry_ArmTimerReplacesPrevious(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRegistry()

	fired := make(chan int, 2)
	r.armTimer(1, clock.AfterFunc(time.Minute, func() { fired <- 1 }))
	r.armTimer(1, clock.AfterFunc(time.Minute, func() { fired <- 2 }))

	clock.Advance(time.Minute)

	select {
	case v := <-fired:
		assert.Equal(t, 2, v)
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}
	select {
	case <-fired:
		t.Fatal("replaced timer fired")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRegistry_StartLoopOnce(t *testing.T) {
	r := newRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	assert.True(t, r.startLoop(3, cancel))
	assert.False(t, r.startLoop(3, func() {}))

	timer, loop := r.has(3)
	assert.False(t, timer)
	assert.True(t, loop)

	r.release(3)
	r.release(3)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, 0, r.size())
}

func TestRegistry_ReleaseAll(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newRegistry()

	var cancelled int
	for id := range int64(4) {
		r.armTimer(id, clock.AfterFunc(time.Hour, func() {}))
		r.startLoop(id, func() { cancelled++ })
	}
	r.stopTimer(0)
	timer, loop := r.has(0)
	assert.False(t, timer)
	assert.True(t, loop)

	r.releaseAll()
	assert.Equal(t, 4, cancelled)
	assert.Equal(t, 0, r.size())
}

func TestSeededSource_Reproducible(t *testing.T) {
	a, b := NewSeededSource(42), NewSeededSource(42)
	for n := 2; n < 50; n++ {
		va, vb := a.IntN(n), b.IntN(n)
		assert.Equal(t, va, vb)
		assert.GreaterOrEqual(t, va, 0)
		assert.Less(t, va, n)
	}
}

func TestTickResult_String(t *testing.T) {
	assert.Equal(t, "eliminated", TickEliminated.String())
	assert.Equal(t, "finished", TickFinished.String())
	assert.Equal(t, "stopped", TickStopped.String())
}
