package selection

import (
	"xdao.co/libreg/msglib"
)

// SendTable holds send selections. A missing record means the default.
type SendTable struct {
	dir Directory
	s    store[msglib.LibraryID]
}

func NewSendTable(dir Directory) *SendTable {
	return &SendTable{dir: dir}
}

// Get returns the selected library for key, if one is set.
func (t *SendTable) Get(key msglib.PathKey) (msglib.LibraryID, bool) {
	p := t.s.load(key)
	if p == nil {
		return msglib.LibraryID{}, false
	}
	return *p, true
}

// Set selects lib for key. lib must be send-capable. Selecting the library
// that is already set changes nothing and commits nothing.
func (t *SendTable) Set(key msglib.PathKey, lib msglib.LibraryID, fn CommitFunc) (Change, bool, error) {
	if err := key.Validate(); err != nil {
		return Change{}, false, err
	}
	if !lib.Defined() {
		return Change{}, false, msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-SND-001",
			"send library is undefined; use clear to return to the default")
	}
	if err := t.dir.Require(lib, msglib.RoleSend); err != nil {
		return Change{}, false, err
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	c := t.s.cellFor(key)
	var from msglib.LibraryID
	if cur := c.p.Load(); cur != nil {
		if *cur == lib {
			return Change{}, false, nil
		}
		from = *cur
	}
	ch := Change{Op: msglib.OpSetSend, Key: key, Role: msglib.RoleSend, From: from, To: lib}
	if err := commit(fn, ch); err != nil {
		return Change{}, false, err
	}
	next := lib
	c.p.Store(&next)
	return ch, true, nil
}

// Clear removes the record for key so the default applies again.
func (t *SendTable) Clear(key msglib.PathKey, fn CommitFunc) (Change, bool, error) {
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
	ch := Change{Op: msglib.OpClearSend, Key: key, Role: msglib.RoleSend, From: *cur}
	if err := commit(fn, ch); err != nil {
		return Change{}, false, err
	}
	c.p.Store(nil)
	return ch, true, nil
}

// Keys lists configured paths ordered by application then EID.
func (t *SendTable) Keys() []msglib.PathKey {
	return t.s.keys()
}

// Restore installs lib for key without validation or commit. An undefined lib
// clears the path.
func (t *SendTable) Restore(key msglib.PathKey, lib msglib.LibraryID) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var p *msglib.LibraryID
	if lib.Defined() {
		p = &lib
	}
	t.s.cellFor(key).p.Store(p)
}
