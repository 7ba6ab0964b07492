package main

/*------------------------------------------------------------------
 *
 * Purpose:	Main program for rmtgenctl, the multi-channel square-wave
 *		frequency generator console.
 *
 * Description:	Opens the persistent store, runs the auto-boot sequence if
 *		the resume flag is set, then enters the command loop reading
 *		from stdin or an optional serial console.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/term"
	"github.com/spf13/pflag"

	"github.com/astrorafael/rmtgen/internal/console"
	"github.com/astrorafael/rmtgen/internal/engine"
	"github.com/astrorafael/rmtgen/internal/engine/peripheral"
	"github.com/astrorafael/rmtgen/internal/store"
)

func main() {
	storePath := pflag.StringP("store", "s", "rmtgen.yaml", "persistent store file")
	gpioChip := pflag.StringP("gpio-chip", "g", "", "gpiochip device to drive real GPIO lines, e.g. gpiochip0; omit for a simulated backend")
	pads := pflag.IntSliceP("pads", "p", nil, "managed GPIO pad numbers the allocator may hand out; omit to use the default pool")
	serialPort := pflag.StringP("port", "P", "", "serial device to use as the console instead of stdin/stdout")
	baud := pflag.IntP("baud", "b", 115200, "baud rate when --port is set")
	help := pflag.BoolP("help", "h", false, "display help text")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rmtgenctl [options]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		return
	}

	st, err := store.Open(*storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rmtgenctl: opening store: %v\n", err)
		os.Exit(1)
	}

	var backend peripheral.Backend
	if *gpioChip != "" {
		backend = peripheral.NewGPIOChip(*gpioChip)
	} else {
		backend = peripheral.NewSimulated()
	}

	var eng *engine.Engine
	if len(*pads) > 0 {
		eng = engine.NewWithGPIOPads(backend, *pads)
	} else {
		eng = engine.New(backend)
	}
	reg := engine.NewRegistry()

	in, out, closeConsole, err := openConsoleIO(*serialPort, *baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rmtgenctl: opening console: %v\n", err)
		os.Exit(1)
	}
	defer closeConsole()

	c := console.New(eng, reg, st, out, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runBootSequence(ctx, c, st); err != nil {
		fmt.Fprintf(os.Stderr, "rmtgenctl: boot sequence: %v\n", err)
	}

	if err := c.Run(ctx, in); err != nil {
		fmt.Fprintf(os.Stderr, "rmtgenctl: %v\n", err)
		os.Exit(1)
	}
}

// runBootSequence: when the auto-boot flag is set, iterate channels 7 down
// to 0 performing a load-equivalent alloc + start for every non-empty
// persisted record, self-healing by disabling the flag if anything in the
// sequence fails.
func runBootSequence(ctx context.Context, c *console.Console, st *store.Store) error {
	if st.LoadFlag(store.AutoBootFlagKey) == 0 {
		return nil
	}

	tx := st.Begin(store.ReadOnly)
	records := make(map[int]store.Record)
	for ch := engine.NumChannels - 1; ch >= 0; ch-- {
		if rec := tx.LoadRecord(ch); !rec.Empty() {
			records[ch] = rec
		}
	}
	tx.End(false)

	for ch := engine.NumChannels - 1; ch >= 0; ch-- {
		rec, ok := records[ch]
		if !ok {
			continue
		}
		if err := c.LoadChannel(ctx, ch, rec); err != nil {
			_ = st.SaveFlag(store.AutoBootFlagKey, 0)
			return fmt.Errorf("channel %d: %w", ch, err)
		}
		if err := c.Start(ctx, ch); err != nil {
			_ = st.SaveFlag(store.AutoBootFlagKey, 0)
			return fmt.Errorf("channel %d: %w", ch, err)
		}
	}
	return nil
}

// openConsoleIO returns the reader/writer pair the command loop consumes.
// With no --port, that's stdin/stdout; with --port, a raw-mode serial
// device.
func openConsoleIO(port string, baud int) (in io.Reader, out io.Writer, closeFn func(), err error) {
	if port == "" {
		return os.Stdin, os.Stdout, func() {}, nil
	}

	fd, err := term.Open(port, term.RawMode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening serial console %s: %w", port, err)
	}
	if err := fd.SetSpeed(baud); err != nil {
		fd.Close()
		return nil, nil, nil, fmt.Errorf("setting speed on %s: %w", port, err)
	}

	return fd, fd, func() { fd.Close() }, nil
}
