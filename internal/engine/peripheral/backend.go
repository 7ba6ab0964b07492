// Package peripheral models the RMT-style transmit hardware the engine
// drives: per-channel item memory, a clock prescaler, and loop/start/stop
// control. Backend is the seam between the lifecycle in internal/engine and
// whatever actually executes the waveform.
package peripheral

import (
	"context"
	"errors"
)

// ErrHardware means the backend rejected a configure/start/stop/write
// call. The engine package wraps this into its own ErrHardware so callers
// never need to import this package to check the error kind.
var ErrHardware = errors.New("peripheral: hardware rejected request")

// Config is the per-channel programming the lifecycle hands to Configure.
type Config struct {
	Channel   int
	GPIO      int
	MemBlocks int
	Prescaler int
	Loop      bool
	Carrier   bool
}

// Backend is the contract the generator lifecycle (internal/engine) uses to
// drive the peripheral. Implementations must be safe to call sequentially
// from a single goroutine; the engine never calls concurrently into the
// same channel.
type Backend interface {
	// Configure programs a channel's block count and prescaler ahead of
	// any Write/Start call. It must leave the channel stopped with its
	// completion interrupt masked.
	Configure(ctx context.Context, cfg Config) error

	// Write copies items into channel memory starting at offset.
	Write(ctx context.Context, channel int, offset int, items []uint32) error

	// Start begins continuous-loop transmission on channel.
	Start(ctx context.Context, channel int) error

	// Stop halts transmission on channel. Implementations must write a
	// zero word at offset 0 of the channel's memory as a side effect,
	// matching the vendor driver contract the idle check relies on.
	Stop(ctx context.Context, channel int) error

	// PeekWord returns the current contents of channel memory at offset;
	// used to read the idle/terminator word at offset 0.
	PeekWord(ctx context.Context, channel int, offset int) (uint32, error)

	// Release tears down whatever driver resources Configure acquired for
	// channel (install state, held lines, ...).
	Release(ctx context.Context, channel int) error
}
