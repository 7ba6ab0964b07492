package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrorafael/rmtgen/internal/engine/peripheral"
)

func Test_Engine_allocStartStopFree(t *testing.T) {
	ctx := context.Background()
	e := New(peripheral.NewSimulated())

	plan, err := e.Info(1000, 0.5)
	require.NoError(t, err)

	h, err := e.Alloc(ctx, plan, NoGPIO)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, h.State())
	assert.Equal(t, 7, h.Channel) // first alloc always lands on the highest free channel

	state, err := e.QueryState(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)

	require.NoError(t, e.Start(ctx, h))
	assert.Equal(t, StateRunning, h.State())

	state, err = e.QueryState(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, Busy, state, "state immediately after start on a non-empty buffer must be busy")

	require.NoError(t, e.Stop(ctx, h))
	state, err = e.QueryState(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, Idle, state, "state immediately after stop must be idle")

	require.NoError(t, e.Free(ctx, h))
	assert.Equal(t, StateFreed, h.State())
}

func Test_Engine_AllocFailsCleanlyOnGPIOExhaustion(t *testing.T) {
	ctx := context.Background()
	e := NewWithGPIOPads(peripheral.NewSimulated(), []int{1})

	plan, err := e.Info(1, 0.5) // mem_blocks=1, cheap to allocate many times
	require.NoError(t, err)

	h1, err := e.Alloc(ctx, plan, NoGPIO)
	require.NoError(t, err)
	assert.Equal(t, 1, h1.GPIO)

	// The single managed GPIO pad is now taken; the next Alloc must fail at
	// the GPIO step and must not have touched the channel pool.
	before := e.channels.avail(0)
	_, err = e.Alloc(ctx, plan, NoGPIO)
	assert.ErrorIs(t, err, ErrNoMem)
	assert.Equal(t, before, e.channels.avail(0), "failed alloc must not leak a channel allocation")

	require.NoError(t, e.Free(ctx, h1))
}

func Test_Engine_FreeReleasesGPIOForReuse(t *testing.T) {
	ctx := context.Background()
	e := NewWithGPIOPads(peripheral.NewSimulated(), []int{5})

	plan, err := e.Info(1, 0.5)
	require.NoError(t, err)

	h, err := e.Alloc(ctx, plan, NoGPIO)
	require.NoError(t, err)
	require.NoError(t, e.Free(ctx, h))

	h2, err := e.Alloc(ctx, plan, NoGPIO)
	require.NoError(t, err)
	assert.Equal(t, 5, h2.GPIO)
}

func Test_Registry_putGetRemove(t *testing.T) {
	r := NewRegistry()
	h := &Handle{Channel: 3}
	r.Put(h)

	assert.Same(t, h, r.Get(3))
	assert.Equal(t, []int{3}, r.Channels())

	r.Remove(3)
	assert.Nil(t, r.Get(3))
	assert.Empty(t, r.Channels())
}
