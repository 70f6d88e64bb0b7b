// Package endpoint is the control plane of one messaging endpoint: the
// library directory, per-path send and receive selections, owner bindings and
// the change journal behind them.
//
// Every mutation is serialized, written to the journal, and only then made
// visible. Opening an endpoint on an existing journal replays it to rebuild
// the same state.
//
// Only Execute authorizes: it checks the command signature against the
// application's bound owner (or the admin key) and its nonce. The direct
// mutators (Register, Bind, SetSendLibrary, SetReceiveLibrary, and the rest)
// trust their caller and never return Unauthorized. Anything reachable by an
// untrusted party must go through Execute.
package endpoint

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/defaults"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/internal/logging"
	"xdao.co/libreg/internal/metrics"
	"xdao.co/libreg/journal"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
	"xdao.co/libreg/selection"
	"xdao.co/libreg/storage"
)

// Options configures Open.
type Options struct {
	// Store holds the journal. Required.
	Store storage.Store
	// Ref names the journal head; journal.DefaultRef when empty.
	Ref string
	// Defaults is the network default table. It may be replaced later with a
	// higher version through ReplaceDefaults.
	Defaults *defaults.Table
	// Clock is the checkpoint source. A counter starting at 0 when nil.
	Clock *checkpoint.Counter
	// AdminKey authorizes register, bind and checkpoint.advance commands.
	AdminKey string
}

type Endpoint struct {
	dir     *directory.Directory
	send    *selection.SendTable
	recv    *selection.ReceiveTable
	owners  *ownership.Registry
	clock   *checkpoint.Counter
	journal *journal.Journal
	defs    atomic.Pointer[defaults.Table]
	log     zerolog.Logger

	// mu serializes mutations. Readers never take it.
	mu sync.Mutex
}

// Open builds an endpoint and replays the journal found in opts.Store.
func Open(opts Options) (*Endpoint, error) {
	if opts.Store == nil {
		return nil, errors.New("endpoint: store is required")
	}
	owners, err := ownership.NewRegistry(opts.AdminKey)
	if err != nil {
		return nil, fmt.Errorf("endpoint: admin key: %w", err)
	}
	j, err := journal.Open(opts.Store, opts.Ref)
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = checkpoint.NewCounter(0)
	}
	dir := directory.New()
	e := &Endpoint{
		dir:     dir,
		send:    selection.NewSendTable(dir),
		recv:    selection.NewReceiveTable(dir),
		owners:  owners,
		clock:   clock,
		journal: j,
		log:     logging.New("endpoint"),
	}
	e.defs.Store(opts.Defaults)

	if err := e.replay(); err != nil {
		return nil, err
	}
	if err := opts.Defaults.Validate(dir); err != nil {
		return nil, err
	}

	head, seq := j.Head()
	metrics.SetLibraries(dir.Len())
	metrics.SetCheckpoint(clock.Current())
	metrics.SetJournalSeq(seq)
	e.log.Info().
		Uint64("seq", seq).
		Str("head", head.String()).
		Int("libraries", dir.Len()).
		Uint64("checkpoint", clock.Current()).
		Uint64("defaults_version", opts.Defaults.Version()).
		Msg("endpoint opened")
	return e, nil
}

// replay applies every journal entry without authorization or expiry checks.
func (e *Endpoint) replay() error {
	return e.journal.Walk(func(r journal.Record) error {
		if err := e.applyEvent(r.Entry.Event); err != nil {
			return fmt.Errorf("%w: entry %d (%s): %v", journal.ErrCorrupt, r.Entry.Seq, r.CID, err)
		}
		if err := e.clock.Advance(r.Entry.Checkpoint); err != nil && !errors.Is(err, checkpoint.ErrRegression) {
			return err
		}
		return nil
	})
}

func (e *Endpoint) applyEvent(ev journal.Event) error {
	path := ev.Path()
	switch ev.Type {
	case msglib.OpRegister:
		if err := e.dir.Register(ev.Library, ev.Capability); err != nil {
			return err
		}
	case msglib.OpBind:
		if err := e.owners.Bind(ev.App, ev.Owner); err != nil {
			return err
		}
	case msglib.OpSetSend:
		e.send.Restore(path, ev.To)
	case msglib.OpClearSend:
		e.send.Restore(path, msglib.LibraryID{})
	case msglib.OpSetReceive, msglib.OpSetReceiveTimeout:
		e.recv.Restore(path, &selection.ReceiveRecord{Library: ev.To, Previous: ev.Previous, Expiry: ev.Expiry})
	case msglib.OpClearReceive:
		e.recv.Restore(path, nil)
	case msglib.OpAdvance:
		if err := e.clock.Advance(ev.Checkpoint); err != nil && !errors.Is(err, checkpoint.ErrRegression) {
			return err
		}
	default:
		return fmt.Errorf("unknown event type %q", string(ev.Type))
	}
	if ev.Scope != "" {
		e.owners.Consume(ev.Scope, ev.Nonce)
	}
	return nil
}

// Journal exposes the change journal for subscription and export.
func (e *Endpoint) Journal() *journal.Journal { return e.journal }

// Checkpoint returns the current checkpoint.
func (e *Endpoint) Checkpoint() checkpoint.Checkpoint { return e.clock.Current() }

// Defaults returns the active default table.
func (e *Endpoint) Defaults() *defaults.Table { return e.defs.Load() }

// ReplaceDefaults installs a new default table. Its version must be higher
// than the active one and every library it names must be registered for its
// role.
func (e *Endpoint) ReplaceDefaults(t *defaults.Table) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.defs.Load()
	if t.Version() <= cur.Version() {
		return msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-DEF-003",
			"defaults version %d does not supersede %d", t.Version(), cur.Version())
	}
	if err := t.Validate(e.dir); err != nil {
		return err
	}
	e.defs.Store(t)
	e.log.Warn().Uint64("from_version", cur.Version()).Uint64("to_version", t.Version()).Msg("default libraries rotated")
	return nil
}
