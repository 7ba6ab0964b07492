// Package console implements the interactive command surface: one
// pflag.FlagSet-driven command per line read from a bufio.Scanner, each
// dispatched against a shared *engine.Engine, *engine.Registry, and
// *store.Store.
package console

/*------------------------------------------------------------------
 *
 * Purpose:	Line-oriented command loop: params, create, delete, list,
 *		start, stop, save, load, autoload.
 *
 * Description:	Each command owns its own pflag.FlagSet (ContinueOnError) so
 *		a malformed line reports usage for that command alone rather
 *		than aborting the loop. All engine/registry/store access
 *		happens on this single goroutine, satisfying the "caller
 *		serializes calls on the same handle" requirement without any
 *		locking of its own.
 *
 *------------------------------------------------------------------*/

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/astrorafael/rmtgen/internal/engine"
	"github.com/astrorafael/rmtgen/internal/store"
)

// Console owns the shared engine state and drives the command loop.
type Console struct {
	eng *engine.Engine
	reg *engine.Registry
	st  *store.Store

	out io.Writer
	log *log.Logger
}

// New returns a Console ready to run against eng/reg/st, writing command
// output to out and log lines to logOut.
func New(eng *engine.Engine, reg *engine.Registry, st *store.Store, out, logOut io.Writer) *Console {
	return &Console{
		eng: eng,
		reg: reg,
		st:  st,
		out: out,
		log: log.NewWithOptions(logOut, log.Options{ReportTimestamp: true}),
	}
}

// Run reads lines from in until EOF or ctx is cancelled, dispatching each
// non-blank line as a command.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := c.dispatch(ctx, line); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (c *Console) dispatch(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "params":
		return c.cmdParams(args)
	case "create":
		return c.cmdCreate(ctx, args)
	case "delete":
		return c.cmdDelete(ctx, args)
	case "list":
		return c.cmdList(args)
	case "start":
		return c.cmdStart(ctx, args)
	case "stop":
		return c.cmdStop(ctx, args)
	case "save":
		return c.cmdSave(args)
	case "load":
		return c.cmdLoad(ctx, args)
	case "autoload":
		return c.cmdAutoload(args)
	default:
		fmt.Fprintf(c.out, "unknown command %q\n", name)
		return nil
	}
}

// noChannel marks an absent -c flag: "every channel the predicate accepts".
const noChannel = -1

// validateChannel rejects a -c value outside [0, NumChannels), distinguishing
// that case from "in range but nothing registered there". noChannel (absent
// flag) always passes.
func validateChannel(requested int) error {
	if requested == noChannel {
		return nil
	}
	if requested < 0 || requested >= engine.NumChannels {
		return fmt.Errorf("%w: channel %d out of range [0,%d)", engine.ErrInvalidArg, requested, engine.NumChannels)
	}
	return nil
}

// selectedChannels parses an optional -c channel flag: absent means every
// channel that the predicate f accepts. requested must already have passed
// validateChannel.
func selectedChannels(requested int, f func(int) bool) []int {
	if requested != noChannel {
		if f(requested) {
			return []int{requested}
		}
		return nil
	}
	var cs []int
	for ch := 0; ch < engine.NumChannels; ch++ {
		if f(ch) {
			cs = append(cs, ch)
		}
	}
	return cs
}
