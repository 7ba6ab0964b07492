package console

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/astrorafael/rmtgen/internal/engine"
	"github.com/astrorafael/rmtgen/internal/store"
)

func (c *Console) newFlagSet(name, synopsis string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(c.out)
	fs.Usage = func() {
		fmt.Fprintf(c.out, "usage: %s\n", synopsis)
		fs.PrintDefaults()
	}
	return fs
}

func (c *Console) cmdParams(args []string) error {
	fs := c.newFlagSet("params", "params -f Hz [-d duty]")
	freq := fs.Float64P("freq", "f", 0, "target frequency in Hz")
	duty := fs.Float64P("duty", "d", 0.5, "duty cycle in (0,1)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plan, err := c.eng.Info(*freq, *duty)
	if err != nil {
		return err
	}
	c.printPlan(plan)
	return nil
}

func (c *Console) cmdCreate(ctx context.Context, args []string) error {
	fs := c.newFlagSet("create", "create -f Hz [-d duty] [-g gpio]")
	freq := fs.Float64P("freq", "f", 0, "target frequency in Hz")
	duty := fs.Float64P("duty", "d", 0.5, "duty cycle in (0,1)")
	gpio := fs.IntP("gpio", "g", noChannel, "GPIO pin, or omit to let the pool choose")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plan, err := c.eng.Info(*freq, *duty)
	if err != nil {
		return err
	}

	h, err := c.eng.Alloc(ctx, plan, *gpio)
	if err != nil {
		return err
	}
	c.reg.Put(h)
	c.log.Info("created generator", "channel", h.Channel, "gpio", h.GPIO, "freq", plan.FreqActual)
	fmt.Fprintf(c.out, "created channel %d (gpio %d, mem_blocks %d)\n", h.Channel, h.GPIO, h.MemBlocks)
	return nil
}

func (c *Console) cmdDelete(ctx context.Context, args []string) error {
	fs := c.newFlagSet("delete", "delete [-c channel] [-n]")
	channel := fs.IntP("channel", "c", noChannel, "channel to delete, omit for all")
	nvs := fs.BoolP("nvs", "n", false, "also erase the persisted record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateChannel(*channel); err != nil {
		return err
	}

	channels := selectedChannels(*channel, func(ch int) bool { return c.reg.Get(ch) != nil })
	for _, ch := range channels {
		h := c.reg.Get(ch)
		if h.State() == engine.StateRunning {
			if err := c.eng.Stop(ctx, h); err != nil {
				return err
			}
		}
		c.reg.Remove(ch)
		if err := c.eng.Free(ctx, h); err != nil {
			return err
		}
		if *nvs {
			if err := c.st.EraseRecord(ch); err != nil {
				return err
			}
		}
		c.log.Info("deleted generator", "channel", ch)
	}
	return nil
}

func (c *Console) cmdList(args []string) error {
	fs := c.newFlagSet("list", "list [-x] [-n]")
	extended := fs.BoolP("extended", "x", false, "show extended fields")
	nvs := fs.BoolP("nvs", "n", false, "list persisted records instead of live generators")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if *nvs {
		return c.listRecords(w, *extended)
	}
	return c.listHandles(w, *extended)
}

func (c *Console) listHandles(w *tabwriter.Writer, extended bool) error {
	if extended {
		fmt.Fprintln(w, "CHANNEL\tSTATE\tGPIO\tFREQ_ACTUAL\tDUTY_ACTUAL\tMEM_BLOCKS")
	} else {
		fmt.Fprintln(w, "CHANNEL\tSTATE\tGPIO")
	}
	for _, ch := range c.reg.Channels() {
		h := c.reg.Get(ch)
		if extended {
			fmt.Fprintf(w, "%d\t%s\t%d\t%g\t%g\t%d\n", ch, h.State(), h.GPIO, h.Plan.FreqActual, h.Plan.DutyActual, h.MemBlocks)
		} else {
			fmt.Fprintf(w, "%d\t%s\t%d\n", ch, h.State(), h.GPIO)
		}
	}
	return nil
}

func (c *Console) listRecords(w *tabwriter.Writer, extended bool) error {
	tx := c.st.Begin(store.ReadOnly)
	defer tx.End(false)

	if extended {
		fmt.Fprintln(w, "CHANNEL\tFREQ\tDUTY\tGPIO\tSAVED_AT")
	} else {
		fmt.Fprintln(w, "CHANNEL\tFREQ\tDUTY\tGPIO")
	}
	for ch := 0; ch < engine.NumChannels; ch++ {
		rec := tx.LoadRecord(ch)
		if rec.Empty() {
			continue
		}
		if extended {
			fmt.Fprintf(w, "%d\t%g\t%g\t%d\t%s\n", ch, rec.Freq, rec.Duty, rec.GPIO, rec.SavedAt)
		} else {
			fmt.Fprintf(w, "%d\t%g\t%g\t%d\n", ch, rec.Freq, rec.Duty, rec.GPIO)
		}
	}
	return nil
}

func (c *Console) cmdStart(ctx context.Context, args []string) error {
	fs := c.newFlagSet("start", "start [-c channel]")
	channel := fs.IntP("channel", "c", noChannel, "channel to start, omit for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateChannel(*channel); err != nil {
		return err
	}

	for _, ch := range selectedChannels(*channel, func(ch int) bool { return c.reg.Get(ch) != nil }) {
		h := c.reg.Get(ch)
		if err := c.eng.Start(ctx, h); err != nil {
			return err
		}
		c.log.Info("started generator", "channel", ch)
	}
	return nil
}

func (c *Console) cmdStop(ctx context.Context, args []string) error {
	fs := c.newFlagSet("stop", "stop [-c channel]")
	channel := fs.IntP("channel", "c", noChannel, "channel to stop, omit for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateChannel(*channel); err != nil {
		return err
	}

	for _, ch := range selectedChannels(*channel, func(ch int) bool { return c.reg.Get(ch) != nil }) {
		h := c.reg.Get(ch)
		if err := c.eng.Stop(ctx, h); err != nil {
			return err
		}
		c.log.Info("stopped generator", "channel", ch)
	}
	return nil
}

func (c *Console) cmdSave(args []string) error {
	fs := c.newFlagSet("save", "save [-c channel]")
	channel := fs.IntP("channel", "c", noChannel, "channel to save, omit for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateChannel(*channel); err != nil {
		return err
	}

	tx := c.st.Begin(store.ReadWrite)
	now := time.Now()
	for _, ch := range selectedChannels(*channel, func(ch int) bool { return c.reg.Get(ch) != nil }) {
		h := c.reg.Get(ch)
		tx.SaveRecord(ch, store.Record{Freq: h.Plan.FreqActual, Duty: h.Plan.DutyActual, GPIO: h.GPIO}, now)
	}
	return tx.End(true)
}

func (c *Console) cmdLoad(ctx context.Context, args []string) error {
	fs := c.newFlagSet("load", "load [-c channel]")
	channel := fs.IntP("channel", "c", noChannel, "channel to load, omit for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := validateChannel(*channel); err != nil {
		return err
	}

	tx := c.st.Begin(store.ReadOnly)
	records := make(map[int]store.Record)
	for ch := engine.NumChannels - 1; ch >= 0; ch-- {
		if *channel != noChannel && ch != *channel {
			continue
		}
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
		if err := c.loadChannel(ctx, ch, rec); err != nil {
			return fmt.Errorf("channel %d: %w", ch, err)
		}
	}
	return nil
}

// loadChannel tears down whatever currently occupies ch, if anything, and
// allocates+registers a fresh generator from rec. Shared between the load
// command and the boot auto-resume sequence.
func (c *Console) loadChannel(ctx context.Context, ch int, rec store.Record) error {
	if existing := c.reg.Get(ch); existing != nil {
		if existing.State() == engine.StateRunning {
			if err := c.eng.Stop(ctx, existing); err != nil {
				return err
			}
		}
		c.reg.Remove(ch)
		if err := c.eng.Free(ctx, existing); err != nil {
			return err
		}
	}

	plan, err := c.eng.Info(rec.Freq, rec.Duty)
	if err != nil {
		return err
	}
	h, err := c.eng.Alloc(ctx, plan, rec.GPIO)
	if err != nil {
		return err
	}
	c.reg.Put(h)
	c.log.Info("loaded generator", "channel", ch, "gpio", h.GPIO)
	return nil
}

func (c *Console) cmdAutoload(args []string) error {
	fs := c.newFlagSet("autoload", "autoload [-y|-n]")
	yes := fs.BoolP("yes", "y", false, "enable boot auto-resume")
	no := fs.BoolP("no", "n", false, "disable boot auto-resume")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *yes:
		return c.st.SaveFlag(store.AutoBootFlagKey, 1)
	case *no:
		return c.st.SaveFlag(store.AutoBootFlagKey, 0)
	default:
		fmt.Fprintf(c.out, "autoload: %v\n", c.st.LoadFlag(store.AutoBootFlagKey) != 0)
		return nil
	}
}

func (c *Console) printPlan(p engine.Plan) {
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "freq_actual\t%g\n", p.FreqActual)
	fmt.Fprintf(w, "duty_actual\t%g\n", p.DutyActual)
	fmt.Fprintf(w, "prescaler\t%d\n", p.Prescaler)
	fmt.Fprintf(w, "n\t%d\n", p.N)
	fmt.Fprintf(w, "nh\t%d\n", p.NH)
	fmt.Fprintf(w, "nl\t%d\n", p.NL)
	fmt.Fprintf(w, "onitems\t%d\n", p.OnItems)
	fmt.Fprintf(w, "nrep\t%d\n", p.NRep)
	fmt.Fprintf(w, "nitems\t%d\n", p.NItems)
	fmt.Fprintf(w, "mem_blocks\t%d\n", p.MemBlocks)
	fmt.Fprintf(w, "jitter_seconds\t%g\n", p.JitterSeconds)
}

// LoadChannel exposes loadChannel to the boot sequence, which drives its own
// store transaction across all channels up front.
func (c *Console) LoadChannel(ctx context.Context, ch int, rec store.Record) error {
	return c.loadChannel(ctx, ch, rec)
}

// Start exposes Engine.Start for a registered channel, for the boot
// sequence's load+start step.
func (c *Console) Start(ctx context.Context, ch int) error {
	h := c.reg.Get(ch)
	if h == nil {
		return fmt.Errorf("channel %d: not registered", ch)
	}
	return c.eng.Start(ctx, h)
}
