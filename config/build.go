package config

import (
	"fmt"
	"strings"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/defaults"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/casregistry"
)

// LibraryID derives the identity of a configured library address.
func LibraryID(address string) (msglib.LibraryID, error) {
	return msglib.NewLibraryID([]byte(strings.TrimSpace(address)))
}

// DirectoryEntries returns the configured libraries with derived identities.
func (c Config) DirectoryEntries() ([]directory.Entry, error) {
	out := make([]directory.Entry, 0, len(c.Libraries))
	for i, l := range c.Libraries {
		id, err := LibraryID(l.Address)
		if err != nil {
			return nil, fmt.Errorf("libraries[%d]: %w", i, err)
		}
		capability, err := msglib.ParseCapability(l.Capability)
		if err != nil {
			return nil, fmt.Errorf("libraries[%d]: %w", i, err)
		}
		out = append(out, directory.Entry{ID: id, Capability: capability})
	}
	return out, nil
}

// DefaultsTable builds the default table. It returns nil when no default is
// configured.
func (c Config) DefaultsTable() (*defaults.Table, error) {
	d := c.Defaults
	if d.Send == "" && d.Receive == "" && len(d.Paths) == 0 {
		return nil, nil
	}
	resolve := func(addr string) (msglib.LibraryID, error) {
		if strings.TrimSpace(addr) == "" {
			return msglib.LibraryID{}, nil
		}
		return LibraryID(addr)
	}
	pair := func(send, recv string) (defaults.Pair, error) {
		s, err := resolve(send)
		if err != nil {
			return defaults.Pair{}, err
		}
		r, err := resolve(recv)
		if err != nil {
			return defaults.Pair{}, err
		}
		return defaults.Pair{Send: s, Receive: r}, nil
	}

	global, err := pair(d.Send, d.Receive)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	paths := make(map[msglib.EID]defaults.Pair, len(d.Paths))
	for i, p := range d.Paths {
		pp, err := pair(p.Send, p.Receive)
		if err != nil {
			return nil, fmt.Errorf("defaults.path[%d]: %w", i, err)
		}
		paths[msglib.EID(p.EID)] = pp
	}
	return defaults.New(d.Version, global, paths), nil
}

// Clock returns a checkpoint counter starting at checkpoint.start.
func (c Config) Clock() *checkpoint.Counter {
	return checkpoint.NewCounter(c.Checkpoint.Start)
}

// OpenStore opens the journal backend and its mirrors. With mirrors the
// result is a storage.ReplicatingStore whose primary is journal.backend.
// Backends must be linked into the binary (blank import) to be found.
func (c Config) OpenStore(usage casregistry.Usage) (storage.Store, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	primary, closeFn, err := casregistry.Open(c.Journal.Backend, usage, c.Journal.Options)
	if err != nil {
		return nil, nil, fmt.Errorf("journal backend: %w", err)
	}
	if closeFn != nil {
		closers = append(closers, closeFn)
	}
	if len(c.Journal.Mirrors) == 0 {
		return primary, closeAll, nil
	}

	rs := &storage.ReplicatingStore{Backends: []storage.NamedStore{{Name: c.Journal.Backend, Store: primary}}}
	for i, m := range c.Journal.Mirrors {
		s, closeFn, err := casregistry.Open(m.Backend, usage, m.Options)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("journal.mirrors[%d]: %w", i, err)
		}
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
		rs.Backends = append(rs.Backends, storage.NamedStore{Name: m.label(i), Store: s})
	}
	return rs, closeAll, nil
}

// Bindings returns the configured owner bindings.
func (c Config) Bindings() []ownership.Binding {
	out := make([]ownership.Binding, 0, len(c.Owners))
	for _, o := range c.Owners {
		out = append(out, ownership.Binding{App: msglib.AppID(strings.TrimSpace(o.App)), Owner: strings.TrimSpace(o.Key)})
	}
	return out
}
