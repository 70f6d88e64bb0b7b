// Package directory is the Library Directory: the append-only mapping from a
// library identity to the capability it declared at registration.
//
// Entries are immutable once created, so the directory needs no per-key
// locking; a single RWMutex guards the map itself.
package directory

import (
	"sort"
	"sync"

	"xdao.co/libreg/msglib"
)

// Entry is one registered library.
type Entry struct {
	ID         msglib.LibraryID  `json:"id"`
	Capability msglib.Capability `json:"capability"`
}

// Directory stores registered libraries by identity.
type Directory struct {
	mu    sync.RWMutex
	items map[msglib.LibraryID]msglib.Capability
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{items: make(map[msglib.LibraryID]msglib.Capability)}
}

// Register adds a library. A second registration of the same identity fails
// with AlreadyRegistered and leaves the original capability in place.
func (d *Directory) Register(id msglib.LibraryID, capability msglib.Capability) error {
	if err := CheckRegistration(id, capability); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.items[id]; ok {
		return msglib.Errorf(msglib.KindAlreadyRegistered, "LIBREG-DIR-003",
			"library %s already registered as %s", id, existing)
	}
	d.items[id] = capability
	return nil
}

// CheckRegistration validates a registration request without touching any
// directory.
func CheckRegistration(id msglib.LibraryID, capability msglib.Capability) error {
	if !id.Defined() {
		return msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-DIR-001", "library id is undefined")
	}
	if !capability.Valid() {
		return msglib.Errorf(msglib.KindInvalidCapability, "LIBREG-DIR-002",
			"library %s declares %s", id, capability)
	}
	return nil
}

// CapabilityOf returns the declared capability of id.
func (d *Directory) CapabilityOf(id msglib.LibraryID) (msglib.Capability, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.items[id]
	return c, ok
}

// Lookup is CapabilityOf with a NotRegistered error for missing identities.
func (d *Directory) Lookup(id msglib.LibraryID) (Entry, error) {
	c, ok := d.CapabilityOf(id)
	if !ok {
		return Entry{}, msglib.Errorf(msglib.KindNotRegistered, "LIBREG-DIR-004", "library %s is not registered", id.Label())
	}
	return Entry{ID: id, Capability: c}, nil
}

// Require checks that id is registered with a capability allowing role.
// Unregistered libraries have no capability and fail the same way.
func (d *Directory) Require(id msglib.LibraryID, role msglib.Role) error {
	c, ok := d.CapabilityOf(id)
	if !ok {
		return msglib.Errorf(msglib.KindInvalidCapability, "LIBREG-CAP-100",
			"library %s is not registered", id.Label())
	}
	if !c.Allows(role) {
		return msglib.Errorf(msglib.KindInvalidCapability, capabilityRule(role),
			"library %s is %s and cannot be selected for %s", id, c, role)
	}
	return nil
}

func capabilityRule(role msglib.Role) string {
	if role == msglib.RoleSend {
		return "LIBREG-CAP-101"
	}
	return "LIBREG-CAP-102"
}

// List returns every entry ordered by identity string.
func (d *Directory) List() []Entry {
	d.mu.RLock()
	out := make([]Entry, 0, len(d.items))
	for id, c := range d.items {
		out = append(out, Entry{ID: id, Capability: c})
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Len returns the number of registered libraries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items)
}
