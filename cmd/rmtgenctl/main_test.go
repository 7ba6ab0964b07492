package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrorafael/rmtgen/internal/console"
	"github.com/astrorafael/rmtgen/internal/engine"
	"github.com/astrorafael/rmtgen/internal/engine/peripheral"
	"github.com/astrorafael/rmtgen/internal/store"
)

func Test_runBootSequence_noAutoBootIsNoop(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "store.yaml"))
	require.NoError(t, err)

	c := console.New(engine.New(peripheral.NewSimulated()), engine.NewRegistry(), st, &bytes.Buffer{}, &bytes.Buffer{})
	require.NoError(t, runBootSequence(context.Background(), c, st))
}

func Test_runBootSequence_resumesPersistedChannels(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "store.yaml"))
	require.NoError(t, err)

	tx := st.Begin(store.ReadWrite)
	tx.SaveRecord(3, store.Record{Freq: 1000, Duty: 0.5, GPIO: 12}, time.Unix(0, 0))
	require.NoError(t, tx.End(true))
	require.NoError(t, st.SaveFlag(store.AutoBootFlagKey, 1))

	eng := engine.New(peripheral.NewSimulated())
	reg := engine.NewRegistry()
	c := console.New(eng, reg, st, &bytes.Buffer{}, &bytes.Buffer{})

	require.NoError(t, runBootSequence(context.Background(), c, st))

	h := reg.Get(3)
	require.NotNil(t, h)
	assert.Equal(t, engine.StateRunning, h.State())
	assert.Equal(t, 12, h.GPIO)
}
