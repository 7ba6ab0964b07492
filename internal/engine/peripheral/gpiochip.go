package peripheral

/*------------------------------------------------------------------
 *
 * Purpose:	Drive a real GPIO line's logic level alongside the simulated
 *		timing model, so a GPIO pad the arbiter hands out corresponds
 *		to an actual kernel gpiochip line when one is available.
 *
 * Description:	The engine only ever needs to read back the idle word at
 *		offset 0 (see Backend.Stop); it never needs the literal
 *		square wave reproduced in software. So GPIOChip delegates all
 *		memory/timing bookkeeping to an embedded Simulated and adds
 *		just the line request/release/level-on-start-stop behavior
 *		a real pad would need.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOChip is a Backend that requests a real gpiocdev line for each
// channel's GPIO pad in addition to the simulated memory/timing model.
type GPIOChip struct {
	*Simulated

	chipName string

	mu    sync.Mutex
	lines map[int]*gpiocdev.Line // channel -> requested line
}

// NewGPIOChip returns a Backend bound to the named gpiochip device (e.g.
// "gpiochip0"). A channel's line is requested on Configure (closing any
// line already held for that channel) and released on Release.
func NewGPIOChip(chipName string) *GPIOChip {
	return &GPIOChip{
		Simulated: NewSimulated(),
		chipName:  chipName,
		lines:     make(map[int]*gpiocdev.Line),
	}
}

func (g *GPIOChip) Configure(ctx context.Context, cfg Config) error {
	if err := g.Simulated.Configure(ctx, cfg); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.lines[cfg.Channel]; ok {
		_ = old.Close()
		delete(g.lines, cfg.Channel)
	}

	line, err := gpiocdev.RequestLine(g.chipName, cfg.GPIO, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("%w: requesting %s line %d: %v", ErrHardware, g.chipName, cfg.GPIO, err)
	}
	g.lines[cfg.Channel] = line
	return nil
}

func (g *GPIOChip) Start(ctx context.Context, channel int) error {
	if err := g.Simulated.Start(ctx, channel); err != nil {
		return err
	}
	return g.setLevel(channel, 1)
}

func (g *GPIOChip) Stop(ctx context.Context, channel int) error {
	if err := g.Simulated.Stop(ctx, channel); err != nil {
		return err
	}
	return g.setLevel(channel, 0)
}

func (g *GPIOChip) setLevel(channel, value int) error {
	g.mu.Lock()
	line, ok := g.lines[channel]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: channel %d has no requested line", ErrHardware, channel)
	}
	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("%w: setting line for channel %d: %v", ErrHardware, channel, err)
	}
	return nil
}

func (g *GPIOChip) Release(ctx context.Context, channel int) error {
	g.mu.Lock()
	line, ok := g.lines[channel]
	delete(g.lines, channel)
	g.mu.Unlock()

	if ok {
		_ = line.Close()
	}
	return g.Simulated.Release(ctx, channel)
}
