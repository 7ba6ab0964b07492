package engine

/*------------------------------------------------------------------
 *
 * Purpose:	Compose the solver, encoder, and arbiter into the generator
 *		lifecycle: plan -> allocate -> program -> start/stop/free.
 *
 * Description:	Engine owns the GPIO pool and channel pool, the two shared
 *		resources generators contend for. It is the single mutable
 *		value a console or boot sequence threads through the API,
 *		replacing the file-scope globals the original C firmware
 *		used for the same pools.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"

	"github.com/astrorafael/rmtgen/internal/engine/peripheral"
)

// RunState is the hardware-observed state of a running handle.
type RunState int

const (
	Idle RunState = iota
	Busy
)

func (s RunState) String() string {
	if s == Busy {
		return "busy"
	}
	return "idle"
}

// Engine is the process-wide owner of the GPIO pool, channel pool, and
// peripheral backend. It is not safe for concurrent use: callers must
// serialize operations on the same handle, and in practice all of it runs
// on a single command-processing goroutine.
type Engine struct {
	gpio     *gpioPool
	channels *channelPool
	backend  peripheral.Backend
}

// New returns an Engine backed by backend, using the default 4-pad GPIO
// pool.
func New(backend peripheral.Backend) *Engine {
	return &Engine{
		gpio:     newGPIOPool(nil),
		channels: newChannelPool(),
		backend:  backend,
	}
}

// NewWithGPIOPads is like New but overrides the managed GPIO candidate
// pads.
func NewWithGPIOPads(backend peripheral.Backend, pads []int) *Engine {
	return &Engine{
		gpio:     newGPIOPool(pads),
		channels: newChannelPool(),
		backend:  backend,
	}
}

// Info runs the solver and sizing arithmetic for (fout, duty). It is pure:
// it touches no engine state.
func (e *Engine) Info(fout, duty float64) (Plan, error) {
	return Info(fout, duty)
}

// Alloc allocates a GPIO, an item buffer, and a channel/block run for plan,
// programs the peripheral, and leaves it stopped with its completion
// interrupt masked. On any failure already-acquired resources are rolled
// back in reverse order before the error is returned. The returned handle
// is not registered; the caller decides whether and where to register it.
func (e *Engine) Alloc(ctx context.Context, plan Plan, requestedGPIO int) (*Handle, error) {
	gpio, err := e.gpio.allocGPIO(requestedGPIO)
	if err != nil {
		return nil, err
	}

	items := make([]Item, plan.NItems)
	fillBuffer(plan, items)

	channel, err := e.channels.allocChannel(plan.MemBlocks)
	if err != nil {
		e.gpio.freeGPIO(gpio)
		return nil, err
	}

	cfg := peripheral.Config{
		Channel:   channel,
		GPIO:      gpio,
		MemBlocks: plan.MemBlocks,
		Prescaler: plan.Prescaler,
		Loop:      true,
		Carrier:   false,
	}
	if err := e.backend.Configure(ctx, cfg); err != nil {
		e.channels.freeChannel(channel)
		e.gpio.freeGPIO(gpio)
		return nil, hwErr(err)
	}
	if err := e.backend.Stop(ctx, channel); err != nil {
		e.backend.Release(ctx, channel)
		e.channels.freeChannel(channel)
		e.gpio.freeGPIO(gpio)
		return nil, hwErr(err)
	}

	return &Handle{
		Plan:      plan,
		items:     items,
		GPIO:      gpio,
		Channel:   channel,
		MemBlocks: plan.MemBlocks,
		state:     StateStopped,
	}, nil
}

// Start copies h's prepared items into the peripheral's channel memory and
// issues the start command in looping mode. Safe to call on a stopped
// handle; calling it again while already running is not guaranteed to be a
// no-op.
func (e *Engine) Start(ctx context.Context, h *Handle) error {
	packed := make([]uint32, len(h.items))
	for i, it := range h.items {
		packed[i] = it.Pack()
	}
	if err := e.backend.Write(ctx, h.Channel, 0, packed); err != nil {
		return hwErr(err)
	}
	if err := e.backend.Start(ctx, h.Channel); err != nil {
		return hwErr(err)
	}
	h.state = StateRunning
	return nil
}

// Stop issues the peripheral stop command, which as a side effect writes a
// zero word at offset 0 of channel memory — the engine's idle signal.
func (e *Engine) Stop(ctx context.Context, h *Handle) error {
	if err := e.backend.Stop(ctx, h.Channel); err != nil {
		return hwErr(err)
	}
	h.state = StateStopped
	return nil
}

// QueryState reports busy iff the first word of h's peripheral channel
// memory is non-zero. The peripheral's own start/run bit auto-clears at the
// end of the first loop iteration and is not a reliable indicator; the
// terminator Stop writes at offset 0 is.
func (e *Engine) QueryState(ctx context.Context, h *Handle) (RunState, error) {
	word, err := e.backend.PeekWord(ctx, h.Channel, 0)
	if err != nil {
		return Idle, hwErr(err)
	}
	if word != 0 {
		return Busy, nil
	}
	return Idle, nil
}

// Free stops h if running, releases its channel, GPIO, and backend driver
// state, and marks it freed. The caller is responsible for removing h from
// any registry first.
func (e *Engine) Free(ctx context.Context, h *Handle) error {
	if h.state == StateRunning {
		if err := e.Stop(ctx, h); err != nil {
			return err
		}
	}
	e.channels.freeChannel(h.Channel)
	e.gpio.freeGPIO(h.GPIO)
	if err := e.backend.Release(ctx, h.Channel); err != nil {
		return hwErr(err)
	}
	h.state = StateFreed
	return nil
}

func hwErr(err error) error {
	if errors.Is(err, peripheral.ErrHardware) {
		return fmt.Errorf("%w: %v", ErrHardware, err)
	}
	return err
}
