package peripheral

import (
	"context"
	"fmt"
)

// Simulated is an in-process Backend modeling the eight 64-word blocks and
// the loop/start/stop/idle-word contract exactly as specified, with no
// actual waveform output. Every engine test runs against this backend.
type Simulated struct {
	channels map[int]*simChannel
}

type simChannel struct {
	cfg     Config
	mem     []uint32
	running bool
}

// NewSimulated returns an empty Simulated backend.
func NewSimulated() *Simulated {
	return &Simulated{channels: make(map[int]*simChannel)}
}

func (s *Simulated) findChannel(channel int) (*simChannel, error) {
	c, ok := s.channels[channel]
	if !ok {
		return nil, fmt.Errorf("peripheral: channel %d not configured", channel)
	}
	return c, nil
}

func (s *Simulated) Configure(_ context.Context, cfg Config) error {
	if cfg.MemBlocks < 1 || cfg.MemBlocks > 8 {
		return fmt.Errorf("peripheral: invalid mem_blocks %d", cfg.MemBlocks)
	}
	s.channels[cfg.Channel] = &simChannel{
		cfg: cfg,
		mem: make([]uint32, cfg.MemBlocks*64),
	}
	return nil
}

func (s *Simulated) Write(_ context.Context, channel int, offset int, items []uint32) error {
	c, err := s.findChannel(channel)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(items) > len(c.mem) {
		return fmt.Errorf("peripheral: write out of bounds on channel %d", channel)
	}
	copy(c.mem[offset:], items)
	return nil
}

func (s *Simulated) Start(_ context.Context, channel int) error {
	c, err := s.findChannel(channel)
	if err != nil {
		return err
	}
	c.running = true
	return nil
}

func (s *Simulated) Stop(_ context.Context, channel int) error {
	c, err := s.findChannel(channel)
	if err != nil {
		return err
	}
	c.running = false
	if len(c.mem) > 0 {
		c.mem[0] = 0 // terminator-as-idle-signal, see Backend.Stop
	}
	return nil
}

func (s *Simulated) PeekWord(_ context.Context, channel int, offset int) (uint32, error) {
	c, err := s.findChannel(channel)
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset >= len(c.mem) {
		return 0, fmt.Errorf("peripheral: peek out of bounds on channel %d", channel)
	}
	return c.mem[offset], nil
}

func (s *Simulated) Release(_ context.Context, channel int) error {
	delete(s.channels, channel)
	return nil
}
