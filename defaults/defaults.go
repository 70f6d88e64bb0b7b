// Package defaults holds the network default libraries.
//
// A Table is read-only once built. Rotating a default means building a new
// Table with a higher Version and handing it to the endpoint; nothing here
// mutates an existing Table.
package defaults

import (
	"fmt"
	"sort"

	"xdao.co/libreg/msglib"
)

// Pair is the send and receive default for one remote endpoint.
type Pair struct {
	Send    msglib.LibraryID `json:"send" toml:"send"`
	Receive msglib.LibraryID `json:"receive" toml:"receive"`
}

// Table is the network default configuration.
type Table struct {
	version uint64
	global  Pair
	paths   map[msglib.EID]Pair
}

// New builds a table. paths may be nil. Undefined members of a path entry
// fall back to global.
func New(version uint64, global Pair, paths map[msglib.EID]Pair) *Table {
	cp := make(map[msglib.EID]Pair, len(paths))
	for eid, p := range paths {
		cp[eid] = p
	}
	return &Table{version: version, global: global, paths: cp}
}

func (t *Table) Version() uint64 {
	if t == nil {
		return 0
	}
	return t.version
}

// Send returns the default send library for eid.
func (t *Table) Send(eid msglib.EID) msglib.LibraryID {
	if t == nil {
		return msglib.LibraryID{}
	}
	if p, ok := t.paths[eid]; ok && p.Send.Defined() {
		return p.Send
	}
	return t.global.Send
}

// Receive returns the default receive library for eid.
func (t *Table) Receive(eid msglib.EID) msglib.LibraryID {
	if t == nil {
		return msglib.LibraryID{}
	}
	if p, ok := t.paths[eid]; ok && p.Receive.Defined() {
		return p.Receive
	}
	return t.global.Receive
}

// PathOverride is one per-endpoint entry in a table listing.
type PathOverride struct {
	EID msglib.EID `json:"eid"`
	Pair
}

// Overrides lists per-endpoint entries ordered by EID.
func (t *Table) Overrides() []PathOverride {
	if t == nil {
		return nil
	}
	out := make([]PathOverride, 0, len(t.paths))
	for eid, p := range t.paths {
		out = append(out, PathOverride{EID: eid, Pair: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EID < out[j].EID })
	return out
}

// Libraries returns every defined library the table references, deduplicated
// and sorted.
func (t *Table) Libraries() []msglib.LibraryID {
	if t == nil {
		return nil
	}
	seen := map[msglib.LibraryID]struct{}{}
	add := func(id msglib.LibraryID) {
		if id.Defined() {
			seen[id] = struct{}{}
		}
	}
	add(t.global.Send)
	add(t.global.Receive)
	for _, p := range t.paths {
		add(p.Send)
		add(p.Receive)
	}
	out := make([]msglib.LibraryID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Capabilities reports the capability of a library, typically a Directory.
type Capabilities interface {
	CapabilityOf(msglib.LibraryID) (msglib.Capability, bool)
}

// Validate checks that every referenced default is registered for its role.
func (t *Table) Validate(dir Capabilities) error {
	if t == nil {
		return nil
	}
	check := func(id msglib.LibraryID, role msglib.Role, where string) error {
		if !id.Defined() {
			return nil
		}
		c, ok := dir.CapabilityOf(id)
		if !ok {
			return msglib.Errorf(msglib.KindNotRegistered, "LIBREG-DEF-001",
				"default %s library %s for %s is not registered", role, id, where)
		}
		if !c.Allows(role) {
			return msglib.Errorf(msglib.KindInvalidCapability, "LIBREG-DEF-002",
				"default %s library %s for %s is %s", role, id, where, c)
		}
		return nil
	}
	if err := check(t.global.Send, msglib.RoleSend, "network"); err != nil {
		return err
	}
	if err := check(t.global.Receive, msglib.RoleReceive, "network"); err != nil {
		return err
	}
	for _, o := range t.Overrides() {
		where := fmt.Sprintf("eid %d", o.EID)
		if err := check(o.Send, msglib.RoleSend, where); err != nil {
			return err
		}
		if err := check(o.Receive, msglib.RoleReceive, where); err != nil {
			return err
		}
	}
	return nil
}
