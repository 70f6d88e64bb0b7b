package selection

import (
	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/msglib"
)

// ReceiveRecord is a stored receive selection. Previous is undefined when no
// grace window was ever opened or the window was cancelled.
type ReceiveRecord struct {
	Library  msglib.LibraryID      `json:"library"`
	Previous msglib.LibraryID      `json:"previous,omitempty"`
	Expiry   checkpoint.Checkpoint `json:"expiry,omitempty"`
}

// StateKind is the effective state of a receive record at a checkpoint.
type StateKind int

const (
	Unset StateKind = iota
	Pinned
	Migrating
)

func (k StateKind) String() string {
	switch k {
	case Pinned:
		return "pinned"
	case Migrating:
		return "migrating"
	default:
		return "unset"
	}
}

// State is the effective view of a record at one checkpoint.
type State struct {
	Kind     StateKind             `json:"-"`
	Library  msglib.LibraryID      `json:"library,omitempty"`
	Previous msglib.LibraryID      `json:"previous,omitempty"`
	Expiry   checkpoint.Checkpoint `json:"expiry,omitempty"`
}

// Effective evaluates r at now. A nil record is Unset.
func (r *ReceiveRecord) Effective(now checkpoint.Checkpoint) State {
	if r == nil {
		return State{Kind: Unset}
	}
	if r.windowOpen(now) {
		return State{Kind: Migrating, Library: r.Library, Previous: r.Previous, Expiry: r.Expiry}
	}
	return State{Kind: Pinned, Library: r.Library}
}

func (r *ReceiveRecord) windowOpen(now checkpoint.Checkpoint) bool {
	return r.Previous.Defined() && now < r.Expiry
}

// Slot says which part of a record matched a candidate library.
type Slot string

const (
	SlotNone     Slot = "none"
	SlotDefault  Slot = "default"
	SlotCurrent  Slot = "current"
	SlotPrevious Slot = "previous"
)

// Match reports which slot of rec accepts candidate at now. rec == nil means
// the path was never configured and only def is accepted.
func Match(rec *ReceiveRecord, def, candidate msglib.LibraryID, now checkpoint.Checkpoint) Slot {
	if !candidate.Defined() {
		return SlotNone
	}
	if rec == nil {
		if candidate == def {
			return SlotDefault
		}
		return SlotNone
	}
	if candidate == rec.Library {
		return SlotCurrent
	}
	if candidate == rec.Previous && rec.windowOpen(now) {
		return SlotPrevious
	}
	return SlotNone
}

// Acceptable is the inbound acceptance predicate. It has no side effects.
func Acceptable(rec *ReceiveRecord, def, candidate msglib.LibraryID, now checkpoint.Checkpoint) bool {
	return Match(rec, def, candidate, now) != SlotNone
}

// NextReceive computes the record that results from selecting lib with an
// optional grace window ending at expiry (0 for none). changed is false when
// lib is already the current library, in which case next == cur.
func NextReceive(cur *ReceiveRecord, lib msglib.LibraryID, expiry, now checkpoint.Checkpoint) (next *ReceiveRecord, changed bool, err error) {
	if !lib.Defined() {
		return nil, false, msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-RCV-001",
			"receive library is undefined; use clear to return to the default")
	}
	if cur == nil {
		if expiry != 0 {
			return nil, false, msglib.Errorf(msglib.KindInvalidExpiry, "LIBREG-EXP-002",
				"a grace window needs a previously selected library; path uses the default")
		}
		return &ReceiveRecord{Library: lib}, true, nil
	}
	if lib == cur.Library {
		return cur, false, nil
	}
	if expiry == 0 {
		return &ReceiveRecord{Library: lib}, true, nil
	}
	if expiry <= now {
		return nil, false, msglib.Errorf(msglib.KindInvalidExpiry, "LIBREG-EXP-001",
			"expiry %d is not after checkpoint %d", expiry, now)
	}
	// Any window still open on cur is dropped here.
	return &ReceiveRecord{Library: lib, Previous: cur.Library, Expiry: expiry}, true, nil
}

// NextTimeout computes the record that results from setting the grace window of
// cur to (prev, expiry). expiry 0 cancels the window.
func NextTimeout(cur *ReceiveRecord, prev msglib.LibraryID, expiry, now checkpoint.Checkpoint) (next *ReceiveRecord, changed bool, err error) {
	if cur == nil {
		return nil, false, msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-TMO-001",
			"path has no selected receive library")
	}
	if expiry == 0 {
		if !cur.Previous.Defined() {
			return cur, false, nil
		}
		return &ReceiveRecord{Library: cur.Library}, true, nil
	}
	if !prev.Defined() {
		return nil, false, msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-TMO-002",
			"grace window library is undefined")
	}
	if prev == cur.Library {
		return nil, false, msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-TMO-003",
			"grace window library %s is already the current library", prev)
	}
	if expiry <= now {
		return nil, false, msglib.Errorf(msglib.KindInvalidExpiry, "LIBREG-EXP-003",
			"expiry %d is not after checkpoint %d", expiry, now)
	}
	next = &ReceiveRecord{Library: cur.Library, Previous: prev, Expiry: expiry}
	if *next == *cur {
		return cur, false, nil
	}
	return next, true, nil
}
