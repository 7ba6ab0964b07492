// Package store implements the persistent, transactional key-value store
// the console and boot sequence use to save/restore per-channel generator
// configuration. It stands in for the microcontroller's
// NVS (non-volatile storage) partition: one namespace of per-channel
// records, keyed by channel digit, plus one auto-boot flag.
package store

/*------------------------------------------------------------------
 *
 * Purpose:	Durable, transactional storage for per-channel generator
 *		records and the boot auto-resume flag.
 *
 * Description:	Backed by a single YAML document on disk. "Transaction" is
 *		realized with an in-process mutex (the store is a process-
 *		wide singleton, same as the engine's registry and channel
 *		pool) plus a working copy of the document: writers mutate the
 *		copy and End(true) atomically replaces the file with it via
 *		write-temp-then-rename, so a crash mid-save never leaves a
 *		truncated document on disk.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
	"gopkg.in/yaml.v3"
)

// NoGPIO marks an empty record slot, mirroring engine.NoGPIO without
// importing the engine package.
const NoGPIO = -1

// AutoBootFlagKey is the single key holding the boot auto-resume flag.
const AutoBootFlagKey = "autoboot"

// Record is one channel's persisted generator configuration.
type Record struct {
	Freq    float64 `yaml:"freq"`
	Duty    float64 `yaml:"duty"`
	GPIO    int     `yaml:"gpio"`
	SavedAt string  `yaml:"saved_at,omitempty"`
}

// Empty reports whether r represents "no record saved", signaled by
// GPIO == NoGPIO per the store contract.
func (r Record) Empty() bool { return r.GPIO == NoGPIO }

type document struct {
	Records map[string]Record `yaml:"channels"`
	Flags   map[string]uint32 `yaml:"flags"`
}

// Store is the process-wide persistent store singleton. Zero value is not
// usable; construct with Open.
type Store struct {
	path string

	mu  sync.Mutex
	doc document
}

var savedAtFormatter = mustFormatter("%Y-%m-%d %H:%M:%S")

func mustFormatter(layout string) *strftime.Strftime {
	f, err := strftime.New(layout)
	if err != nil {
		panic(err) // layout is a compile-time constant
	}
	return f
}

// Open loads the store from path, creating an empty document if the file
// doesn't exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, doc: document{Records: map[string]Record{}, Flags: map[string]uint32{}}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("store: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("store: parsing %s: %w", path, err)
	}
	if s.doc.Records == nil {
		s.doc.Records = map[string]Record{}
	}
	if s.doc.Flags == nil {
		s.doc.Flags = map[string]uint32{}
	}
	return s, nil
}

// Mode selects a transaction's read/write intent.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Tx is a begin/end transaction over the per-channel record namespace.
// Every transaction works on a copy of the in-memory document taken at
// Begin (the disk file is read only by Open). Read-only transactions never
// touch the disk file; ReadWrite transactions stage changes in their copy
// until End commits or discards them.
type Tx struct {
	store   *Store
	mode    Mode
	working document
	done    bool
}

// Begin starts a transaction. ReadWrite transactions hold the store's lock
// until End is called.
func (s *Store) Begin(mode Mode) *Tx {
	if mode == ReadWrite {
		s.mu.Lock()
	}
	return &Tx{store: s, mode: mode, working: s.doc.clone()}
}

// End commits (commit=true, ReadWrite only) or discards the transaction.
// Ending a ReadWrite transaction releases the store's lock.
func (tx *Tx) End(commit bool) error {
	if tx.done {
		return nil
	}
	tx.done = true

	if tx.mode != ReadWrite {
		return nil
	}
	defer tx.store.mu.Unlock()

	if !commit {
		return nil
	}

	tx.store.doc = tx.working
	return tx.store.persist()
}

// LoadRecord returns the record for channel, or an empty record (GPIO ==
// NoGPIO) if none is saved.
func (tx *Tx) LoadRecord(channel int) Record {
	rec, ok := tx.working.Records[channelKey(channel)]
	if !ok {
		return Record{GPIO: NoGPIO}
	}
	return rec
}

// SaveRecord stages a record for channel. Requires a ReadWrite transaction;
// takes effect only once End(true) commits.
func (tx *Tx) SaveRecord(channel int, rec Record, now time.Time) {
	rec.SavedAt = savedAtFormatter.FormatString(now)
	tx.working.Records[channelKey(channel)] = rec
}

// EraseRecord removes channel's record in its own internal transaction.
func (s *Store) EraseRecord(channel int) error {
	tx := s.Begin(ReadWrite)
	delete(tx.working.Records, channelKey(channel))
	return tx.End(true)
}

// LoadFlag returns the named flag's value, or 0 if unset.
func (s *Store) LoadFlag(name string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Flags[name]
}

// SaveFlag persists a flag value in its own internal transaction.
func (s *Store) SaveFlag(name string, value uint32) error {
	tx := s.Begin(ReadWrite)
	tx.working.Flags[name] = value
	return tx.End(true)
}

func (s *Store) persist() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("store: renaming %s to %s: %w", tmpName, s.path, err)
	}
	return nil
}

func (d document) clone() document {
	c := document{
		Records: make(map[string]Record, len(d.Records)),
		Flags:   make(map[string]uint32, len(d.Flags)),
	}
	for k, v := range d.Records {
		c.Records[k] = v
	}
	for k, v := range d.Flags {
		c.Flags[k] = v
	}
	return c
}

func channelKey(channel int) string {
	return fmt.Sprintf("%d", channel)
}
