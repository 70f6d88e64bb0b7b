package endpoint

import (
	"errors"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/internal/metrics"
	"xdao.co/libreg/journal"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/selection"
)

// authz identifies the signed command a mutation came from. The zero value
// is an in-process call.
type authz struct {
	scope msglib.AppID
	nonce uint64
}

// Result describes the outcome of a mutation.
type Result struct {
	Op      msglib.Op `json:"op"`
	Changed bool      `json:"changed"`
	Seq     uint64    `json:"seq,omitempty"`
	Block   string    `json:"block,omitempty"`
}

func (e *Endpoint) appendEvent(ev journal.Event, a authz) (journal.Record, error) {
	ev.Scope, ev.Nonce = a.scope, a.nonce
	rec, err := e.journal.Append(e.clock.Current(), ev)
	if err != nil {
		return journal.Record{}, msglib.Wrap(msglib.KindStorage, "LIBREG-JRN-001", "journal append failed", err)
	}
	return rec, nil
}

func eventFromChange(ch selection.Change) journal.Event {
	return journal.Event{
		Type:     ch.Op,
		App:      ch.Key.App,
		EID:      ch.Key.EID,
		Role:     ch.Role,
		From:     ch.From,
		To:       ch.To,
		Previous: ch.Previous,
		Expiry:   ch.Expiry,
	}
}

// commitTo returns a CommitFunc that journals the change and stores the
// record in out.
func (e *Endpoint) commitTo(a authz, out *journal.Record) selection.CommitFunc {
	return func(ch selection.Change) error {
		rec, err := e.appendEvent(eventFromChange(ch), a)
		if err != nil {
			return err
		}
		*out = rec
		return nil
	}
}

// committed runs after a change is visible: it consumes the nonce, notifies
// subscribers and records the change.
func (e *Endpoint) committed(rec journal.Record, a authz) Result {
	if a.scope != "" {
		e.owners.Consume(a.scope, a.nonce)
	}
	e.journal.Publish(rec)

	ev := rec.Entry.Event
	metrics.RecordChange(string(ev.Type))
	metrics.SetJournalSeq(rec.Entry.Seq)

	l := e.log.Info().
		Str("op", string(ev.Type)).
		Uint64("seq", rec.Entry.Seq).
		Str("block", rec.CID.String()).
		Uint64("checkpoint", rec.Entry.Checkpoint)
	if ev.App != "" {
		l = l.Str("app", string(ev.App))
	}
	if ev.Role != "" {
		l = l.Uint32("eid", uint32(ev.EID)).
			Str("role", string(ev.Role)).
			Str("from", ev.From.Label()).
			Str("to", ev.To.Label())
	}
	if ev.Previous.Defined() {
		l = l.Str("previous", ev.Previous.String()).Uint64("expiry", ev.Expiry)
	}
	if ev.Library.Defined() {
		l = l.Str("library", ev.Library.String()).Str("capability", ev.Capability.String())
	}
	if a.scope != "" {
		l = l.Str("scope", string(a.scope)).Uint64("nonce", a.nonce)
	}
	l.Msg("change committed")

	return Result{Op: ev.Type, Changed: true, Seq: rec.Entry.Seq, Block: rec.CID.String()}
}

func (e *Endpoint) rejected(op msglib.Op, err error) error {
	kind := msglib.KindOf(err)
	metrics.RecordRejection(string(op), string(kind))
	e.log.Warn().
		Str("op", string(op)).
		Str("kind", string(kind)).
		Str("rule", msglib.RuleID(err)).
		Err(err).
		Msg("change rejected")
	return err
}

func (e *Endpoint) finish(op msglib.Op, ch selection.Change, rec journal.Record, changed bool, err error, a authz) (Result, error) {
	if err != nil {
		return Result{Op: op}, e.rejected(op, err)
	}
	if !changed {
		e.log.Debug().Str("op", string(op)).Str("path", ch.Key.String()).Msg("no change")
		return Result{Op: op}, nil
	}
	return e.committed(rec, a), nil
}

// Register adds a library to the directory.
func (e *Endpoint) Register(id msglib.LibraryID, capability msglib.Capability) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.register(id, capability, authz{})
}

func (e *Endpoint) register(id msglib.LibraryID, capability msglib.Capability, a authz) (Result, error) {
	op := msglib.OpRegister
	if err := e.checkRegister(id, capability); err != nil {
		return Result{Op: op}, e.rejected(op, err)
	}
	rec, err := e.appendEvent(journal.Event{Type: op, Library: id, Capability: capability}, a)
	if err != nil {
		return Result{Op: op}, e.rejected(op, err)
	}
	if err := e.dir.Register(id, capability); err != nil {
		// Unreachable while mu is held; the journal now has an entry the
		// directory lacks, so surface it loudly.
		e.log.Error().Err(err).Uint64("seq", rec.Entry.Seq).Msg("directory diverged from journal")
		return Result{Op: op}, msglib.Wrap(msglib.KindInternal, "LIBREG-INT-001", "directory diverged from journal", err)
	}
	metrics.SetLibraries(e.dir.Len())
	return e.committed(rec, a), nil
}

func (e *Endpoint) checkRegister(id msglib.LibraryID, capability msglib.Capability) error {
	if err := directory.CheckRegistration(id, capability); err != nil {
		return err
	}
	if c, ok := e.dir.CapabilityOf(id); ok {
		return msglib.Errorf(msglib.KindAlreadyRegistered, "LIBREG-DIR-003",
			"library %s already registered as %s", id, c)
	}
	return nil
}

// Bind records the owner of an application.
func (e *Endpoint) Bind(app msglib.AppID, ownerKey string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bind(app, ownerKey, authz{})
}

func (e *Endpoint) bind(app msglib.AppID, ownerKey string, a authz) (Result, error) {
	op := msglib.OpBind
	if err := e.owners.CheckBind(app, ownerKey); err != nil {
		return Result{Op: op}, e.rejected(op, err)
	}
	rec, err := e.appendEvent(journal.Event{Type: op, App: app, Owner: ownerKey}, a)
	if err != nil {
		return Result{Op: op}, e.rejected(op, err)
	}
	if err := e.owners.Bind(app, ownerKey); err != nil {
		e.log.Error().Err(err).Uint64("seq", rec.Entry.Seq).Msg("owners diverged from journal")
		return Result{Op: op}, msglib.Wrap(msglib.KindInternal, "LIBREG-INT-002", "owners diverged from journal", err)
	}
	return e.committed(rec, a), nil
}

// SetSendLibrary selects lib for sends on (app, eid).
func (e *Endpoint) SetSendLibrary(app msglib.AppID, eid msglib.EID, lib msglib.LibraryID) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setSend(msglib.PathKey{App: app, EID: eid}, lib, authz{})
}

func (e *Endpoint) setSend(key msglib.PathKey, lib msglib.LibraryID, a authz) (Result, error) {
	var rec journal.Record
	ch, changed, err := e.send.Set(key, lib, e.commitTo(a, &rec))
	ch.Key = key
	return e.finish(msglib.OpSetSend, ch, rec, changed, err, a)
}

// ClearSendLibrary returns (app, eid) to the default send library.
func (e *Endpoint) ClearSendLibrary(app msglib.AppID, eid msglib.EID) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clearSend(msglib.PathKey{App: app, EID: eid}, authz{})
}

func (e *Endpoint) clearSend(key msglib.PathKey, a authz) (Result, error) {
	var rec journal.Record
	ch, changed, err := e.send.Clear(key, e.commitTo(a, &rec))
	ch.Key = key
	return e.finish(msglib.OpClearSend, ch, rec, changed, err, a)
}

// SetReceiveLibrary selects lib for receives on (app, eid). A non-zero expiry
// keeps the current library acceptable strictly before that checkpoint.
func (e *Endpoint) SetReceiveLibrary(app msglib.AppID, eid msglib.EID, lib msglib.LibraryID, expiry checkpoint.Checkpoint) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setReceive(msglib.PathKey{App: app, EID: eid}, lib, expiry, authz{})
}

func (e *Endpoint) setReceive(key msglib.PathKey, lib msglib.LibraryID, expiry checkpoint.Checkpoint, a authz) (Result, error) {
	var rec journal.Record
	ch, changed, err := e.recv.Set(key, lib, expiry, e.clock.Current(), e.commitTo(a, &rec))
	ch.Key = key
	return e.finish(msglib.OpSetReceive, ch, rec, changed, err, a)
}

// SetReceiveTimeout opens, moves or (expiry 0) cancels the grace window of
// (app, eid).
func (e *Endpoint) SetReceiveTimeout(app msglib.AppID, eid msglib.EID, prev msglib.LibraryID, expiry checkpoint.Checkpoint) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.setTimeout(msglib.PathKey{App: app, EID: eid}, prev, expiry, authz{})
}

func (e *Endpoint) setTimeout(key msglib.PathKey, prev msglib.LibraryID, expiry checkpoint.Checkpoint, a authz) (Result, error) {
	var rec journal.Record
	ch, changed, err := e.recv.SetTimeout(key, prev, expiry, e.clock.Current(), e.commitTo(a, &rec))
	ch.Key = key
	return e.finish(msglib.OpSetReceiveTimeout, ch, rec, changed, err, a)
}

// ClearReceiveLibrary returns (app, eid) to Unset.
func (e *Endpoint) ClearReceiveLibrary(app msglib.AppID, eid msglib.EID) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clearReceive(msglib.PathKey{App: app, EID: eid}, authz{})
}

func (e *Endpoint) clearReceive(key msglib.PathKey, a authz) (Result, error) {
	var rec journal.Record
	ch, changed, err := e.recv.Clear(key, e.commitTo(a, &rec))
	ch.Key = key
	return e.finish(msglib.OpClearReceive, ch, rec, changed, err, a)
}

// Advance moves the checkpoint forward. Advancing to the current checkpoint
// is a no-op.
func (e *Endpoint) Advance(to checkpoint.Checkpoint) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advance(to, authz{})
}

func (e *Endpoint) advance(to checkpoint.Checkpoint, a authz) (Result, error) {
	op := msglib.OpAdvance
	cur := e.clock.Current()
	if to < cur {
		err := msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-CKP-001", "checkpoint moved backward", checkpoint.Check(e.clock, to))
		return Result{Op: op}, e.rejected(op, err)
	}
	if to == cur {
		return Result{Op: op}, nil
	}
	rec, err := e.appendEvent(journal.Event{Type: op, Checkpoint: to}, a)
	if err != nil {
		return Result{Op: op}, e.rejected(op, err)
	}
	if err := e.clock.Advance(to); err != nil && !errors.Is(err, checkpoint.ErrRegression) {
		return Result{Op: op}, err
	}
	metrics.SetCheckpoint(to)
	return e.committed(rec, a), nil
}
