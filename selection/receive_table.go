package selection

import (
	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/msglib"
)

// ReceiveTable holds receive selections. A missing record means Unset.
type ReceiveTable struct {
	dir Directory
	s    store[ReceiveRecord]
}

func NewReceiveTable(dir Directory) *ReceiveTable {
	return &ReceiveTable{dir: dir}
}

// Get returns a copy of the stored record for key, or nil when Unset.
func (t *ReceiveTable) Get(key msglib.PathKey) *ReceiveRecord {
	p := t.s.load(key)
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Acceptable evaluates the acceptance predicate against the current record
// for key.
func (t *ReceiveTable) Acceptable(key msglib.PathKey, def, candidate msglib.LibraryID, now checkpoint.Checkpoint) bool {
	return Acceptable(t.s.load(key), def, candidate, now)
}

// Match is Acceptable reporting the matching slot.
func (t *ReceiveTable) Match(key msglib.PathKey, def, candidate msglib.LibraryID, now checkpoint.Checkpoint) Slot {
	return Match(t.s.load(key), def, candidate, now)
}

// Set selects lib for key, opening a grace window for the current library
// until expiry when expiry is non-zero.
func (t *ReceiveTable) Set(key msglib.PathKey, lib msglib.LibraryID, expiry, now checkpoint.Checkpoint, fn CommitFunc) (Change, bool, error) {
	if err := key.Validate(); err != nil {
		return Change{}, false, err
	}
	if lib.Defined() {
		if err := t.dir.Require(lib, msglib.RoleReceive); err != nil {
			return Change{}, false, err
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	c := t.s.cellFor(key)
	cur := c.p.Load()
	next, changed, err := NextReceive(cur, lib, expiry, now)
	if err != nil || !changed {
		return Change{}, false, err
	}
	ch := Change{
		Op:       msglib.OpSetReceive,
		Key:      key,
		Role:     msglib.RoleReceive,
		To:       next.Library,
		Previous: next.Previous,
		Expiry:   next.Expiry,
	}
	if cur != nil {
		ch.From = cur.Library
	}
	if err := commit(fn, ch); err != nil {
		return Change{}, false, err
	}
	c.p.Store(next)
	return ch, true, nil
}

// SetTimeout opens, moves or (with expiry 0) cancels the grace window of a
// configured path. prev must be receive-capable.
func (t *ReceiveTable) SetTimeout(key msglib.PathKey, prev msglib.LibraryID, expiry, now checkpoint.Checkpoint, fn CommitFunc) (Change, bool, error) {
	if err := key.Validate(); err != nil {
		return Change{}, false, err
	}
	if expiry != 0 && prev.Defined() {
		if err := t.dir.Require(prev, msglib.RoleReceive); err != nil {
			return Change{}, false, err
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	c := t.s.cellFor(key)
	cur := c.p.Load()
	next, changed, err := NextTimeout(cur, prev, expiry, now)
	if err != nil || !changed {
		return Change{}, false, err
	}
	ch := Change{
		Op:       msglib.OpSetReceiveTimeout,
		Key:      key,
		Role:     msglib.RoleReceive,
		From:     cur.Library,
		To:       next.Library,
		Previous: next.Previous,
		Expiry:   next.Expiry,
	}
	if err := commit(fn, ch); err != nil {
		return Change{}, false, err
	}
	c.p.Store(next)
	return ch, true, nil
}

// Clear returns key to Unset, discarding any grace window.
func (t *ReceiveTable) Clear(key msglib.PathKey, fn CommitFunc) (Change, bool, error) {
	if err := key.Validate(); err != nil {
		return Change{}, false, err
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	c := t.s.cellFor(key)
	cur := c.p.Load()
	if cur == nil {
		return Change{}, false, nil
	}
	ch := Change{Op: msglib.OpClearReceive, Key: key, Role: msglib.RoleReceive, From: cur.Library}
	if err := commit(fn, ch); err != nil {
		return Change{}, false, err
	}
	c.p.Store(nil)
	return ch, true, nil
}

// Restore installs rec for key without validation or commit. It is used when
// replaying a journal; rec == nil clears the path.
func (t *ReceiveTable) Restore(key msglib.PathKey, rec *ReceiveRecord) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if rec != nil {
		cp := *rec
		rec = &cp
	}
	t.s.cellFor(key).p.Store(rec)
}

// Keys lists configured paths ordered by application then EID.
func (t *ReceiveTable) Keys() []msglib.PathKey {
	return t.s.keys()
}
