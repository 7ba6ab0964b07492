package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.yaml"))
	require.NoError(t, err)
	return s
}

func Test_Store_roundTripRecord(t *testing.T) {
	s := openTemp(t)

	tx := s.Begin(ReadWrite)
	tx.SaveRecord(3, Record{Freq: 1000, Duty: 0.5, GPIO: 18}, time.Unix(0, 0))
	require.NoError(t, tx.End(true))

	tx2 := s.Begin(ReadOnly)
	rec := tx2.LoadRecord(3)
	require.NoError(t, tx2.End(true))

	assert.Equal(t, 1000.0, rec.Freq)
	assert.Equal(t, 0.5, rec.Duty)
	assert.Equal(t, 18, rec.GPIO)
	assert.False(t, rec.Empty())
}

func Test_Store_missingRecordIsEmpty(t *testing.T) {
	s := openTemp(t)
	tx := s.Begin(ReadOnly)
	defer tx.End(false)

	rec := tx.LoadRecord(5)
	assert.True(t, rec.Empty())
}

func Test_Store_rollbackDiscardsChanges(t *testing.T) {
	s := openTemp(t)

	tx := s.Begin(ReadWrite)
	tx.SaveRecord(2, Record{Freq: 440, Duty: 0.5, GPIO: 4}, time.Unix(0, 0))
	require.NoError(t, tx.End(false))

	tx2 := s.Begin(ReadOnly)
	defer tx2.End(false)
	assert.True(t, tx2.LoadRecord(2).Empty())
}

func Test_Store_eraseRecord(t *testing.T) {
	s := openTemp(t)

	tx := s.Begin(ReadWrite)
	tx.SaveRecord(1, Record{Freq: 100, Duty: 0.5, GPIO: 2}, time.Unix(0, 0))
	require.NoError(t, tx.End(true))

	require.NoError(t, s.EraseRecord(1))

	tx2 := s.Begin(ReadOnly)
	defer tx2.End(false)
	assert.True(t, tx2.LoadRecord(1).Empty())
}

func Test_Store_flagRoundTrip(t *testing.T) {
	s := openTemp(t)
	assert.Equal(t, uint32(0), s.LoadFlag(AutoBootFlagKey))

	require.NoError(t, s.SaveFlag(AutoBootFlagKey, 1))
	assert.Equal(t, uint32(1), s.LoadFlag(AutoBootFlagKey))
}

func Test_Store_persistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	s, err := Open(path)
	require.NoError(t, err)

	tx := s.Begin(ReadWrite)
	tx.SaveRecord(7, Record{Freq: 2000, Duty: 0.25, GPIO: 5}, time.Unix(0, 0))
	require.NoError(t, tx.End(true))
	require.NoError(t, s.SaveFlag(AutoBootFlagKey, 1))

	reopened, err := Open(path)
	require.NoError(t, err)

	tx2 := reopened.Begin(ReadOnly)
	defer tx2.End(false)
	rec := tx2.LoadRecord(7)
	assert.Equal(t, 2000.0, rec.Freq)
	assert.Equal(t, uint32(1), reopened.LoadFlag(AutoBootFlagKey))
}
