package endpoint

import (
	"fmt"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/internal/metrics"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
	"xdao.co/libreg/selection"
)

// IsAcceptable reports whether candidate may deliver inbound messages on
// (app, eid) at checkpoint now. It never fails and takes no locks; an
// unconfigured path accepts exactly the current default receive library.
func (e *Endpoint) IsAcceptable(app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID, now checkpoint.Checkpoint) bool {
	key := msglib.PathKey{App: app, EID: eid}
	slot := e.recv.Match(key, e.defs.Load().Receive(eid), candidate, now)
	ok := slot != selection.SlotNone
	metrics.RecordAccept(ok, string(slot))
	e.log.Debug().
		Str("app", string(app)).
		Uint32("eid", uint32(eid)).
		Str("candidate", candidate.Label()).
		Uint64("at", now).
		Str("slot", string(slot)).
		Bool("accepted", ok).
		Msg("accept check")
	return ok
}

// Accept evaluates IsAcceptable at the current checkpoint.
func (e *Endpoint) Accept(app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID) bool {
	return e.IsAcceptable(app, eid, candidate, e.clock.Current())
}

// AcceptAt evaluates IsAcceptable at an explicit checkpoint. Checkpoints
// behind the endpoint's counter are rejected with checkpoint.ErrRegression.
func (e *Endpoint) AcceptAt(app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID, at checkpoint.Checkpoint) (bool, error) {
	if err := checkpoint.Check(e.clock, at); err != nil {
		return false, msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-CKP-002", "accept check behind current checkpoint", err)
	}
	return e.IsAcceptable(app, eid, candidate, at), nil
}

// SendLibrary returns the library outbound messages on (app, eid) use and
// whether it came from the default table.
func (e *Endpoint) SendLibrary(app msglib.AppID, eid msglib.EID) (msglib.LibraryID, bool) {
	if lib, ok := e.send.Get(msglib.PathKey{App: app, EID: eid}); ok {
		return lib, false
	}
	return e.defs.Load().Send(eid), true
}

// ReceiveLibrary returns the current receive library of (app, eid) at now
// and whether it came from the default table. A grace-window library is not
// reported; use Describe for the full state.
func (e *Endpoint) ReceiveLibrary(app msglib.AppID, eid msglib.EID, now checkpoint.Checkpoint) (msglib.LibraryID, bool) {
	st := e.recv.Get(msglib.PathKey{App: app, EID: eid}).Effective(now)
	if st.Kind == selection.Unset {
		return e.defs.Load().Receive(eid), true
	}
	return st.Library, false
}

// SendView is the send side of a PathView.
type SendView struct {
	Library msglib.LibraryID `json:"library"`
	Default bool             `json:"default"`
}

// ReceiveView is the receive side of a PathView.
type ReceiveView struct {
	State    string                `json:"state"`
	Library  msglib.LibraryID      `json:"library"`
	Default  bool                  `json:"default"`
	Previous msglib.LibraryID      `json:"previous,omitempty" cbor:"previous"`
	Expiry   checkpoint.Checkpoint `json:"expiry,omitempty"`
}

// PathView is the effective configuration of one path at one checkpoint.
type PathView struct {
	App        msglib.AppID          `json:"app"`
	EID        msglib.EID            `json:"eid"`
	Checkpoint checkpoint.Checkpoint `json:"checkpoint"`
	Send       SendView              `json:"send"`
	Receive    ReceiveView           `json:"receive"`
}

// Describe reports the effective send and receive selection of (app, eid) at
// the current checkpoint.
func (e *Endpoint) Describe(app msglib.AppID, eid msglib.EID) (PathView, error) {
	if err := app.Validate(); err != nil {
		return PathView{}, err
	}
	now := e.clock.Current()
	v := PathView{App: app, EID: eid, Checkpoint: now}
	v.Send.Library, v.Send.Default = e.SendLibrary(app, eid)

	st := e.recv.Get(msglib.PathKey{App: app, EID: eid}).Effective(now)
	v.Receive.State = st.Kind.String()
	switch st.Kind {
	case selection.Unset:
		v.Receive.Library, v.Receive.Default = e.defs.Load().Receive(eid), true
	default:
		v.Receive.Library = st.Library
		v.Receive.Previous = st.Previous
		v.Receive.Expiry = st.Expiry
	}
	return v, nil
}

// Libraries lists the directory ordered by identity.
func (e *Endpoint) Libraries() []directory.Entry {
	return e.dir.List()
}

// Owners lists the bound applications and the nonce each last consumed.
func (e *Endpoint) Owners() []ownership.Binding {
	return e.owners.Bindings()
}

// Owner returns the owner key bound to app.
func (e *Endpoint) Owner(app msglib.AppID) (string, bool) {
	return e.owners.Owner(app)
}

// NextNonce returns the nonce the next command in app's scope must carry.
func (e *Endpoint) NextNonce(app msglib.AppID) uint64 {
	return e.owners.NextNonce(app)
}

// Head summarizes the journal and clock.
type Head struct {
	Block           string                `json:"block,omitempty"`
	Seq             uint64                `json:"seq"`
	Checkpoint      checkpoint.Checkpoint `json:"checkpoint"`
	DefaultsVersion uint64                `json:"defaults_version"`
}

func (h Head) String() string {
	b := h.Block
	if b == "" {
		b = "(empty)"
	}
	return fmt.Sprintf("seq=%d head=%s checkpoint=%d defaults=v%d", h.Seq, b, h.Checkpoint, h.DefaultsVersion)
}

// Head returns the journal head and the current checkpoint.
func (e *Endpoint) Head() Head {
	c, seq := e.journal.Head()
	h := Head{Seq: seq, Checkpoint: e.clock.Current(), DefaultsVersion: e.defs.Load().Version()}
	if c.Defined() {
		h.Block = c.String()
	}
	return h
}
