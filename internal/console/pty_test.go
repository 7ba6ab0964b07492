package console

import (
	"bufio"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrorafael/rmtgen/internal/engine"
	"github.com/astrorafael/rmtgen/internal/engine/peripheral"
	"github.com/astrorafael/rmtgen/internal/store"
)

// Test_Console_RunOverPty drives the command loop through a real
// pseudo-terminal pair, the same transport a serial console uses, instead
// of an in-memory buffer.
func Test_Console_RunOverPty(t *testing.T) {
	ptmx, tty, err := pty.Open()
	require.NoError(t, err)
	defer ptmx.Close()
	defer tty.Close()

	st, err := store.Open(filepath.Join(t.TempDir(), "store.yaml"))
	require.NoError(t, err)

	c := New(engine.New(peripheral.NewSimulated()), engine.NewRegistry(), st, tty, tty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, tty) }()

	_, err = ptmx.WriteString("create -f 1000 -d 0.5\n")
	require.NoError(t, err)

	// The pty's line discipline echoes the input line back to the master
	// before the command's own output arrives, so scan forward for it
	// rather than assuming it's the first line read.
	reader := bufio.NewReader(ptmx)
	found := false
	for i := 0; i < 5; i++ {
		line, err := readLineWithTimeout(t, reader, 2*time.Second)
		require.NoError(t, err)
		if strings.Contains(line, "created channel 7") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected to see the create command's output")

	tty.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("console.Run did not return after closing the pty")
	}
}

func readLineWithTimeout(t *testing.T, r *bufio.Reader, timeout time.Duration) (string, error) {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		return res.line, res.err
	case <-time.After(timeout):
		t.Fatal("timed out waiting for console output")
		return "", nil
	}
}
