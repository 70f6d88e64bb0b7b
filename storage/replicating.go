package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/cidutil"
)

// NamedStore associates a Store with a stable backend name for reporting.
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes every block to all backends. The first backend is
// the primary: its refs are authoritative and reads try it first.
//
// SetRef updates mirror refs before the primary's, without compare-and-swap,
// so a mirror may briefly point one entry ahead of the primary after a failed
// swap. The next successful SetRef brings it back in line.
type ReplicatingStore struct {
	Backends []NamedStore

	mu sync.Mutex
}

var _ Store = (*ReplicatingStore)(nil)

// PutAll writes the same bytes to all backends.
//
// It returns:
// - the canonical CID (computed from bytes)
// - a map of backend name -> returned CID
//
// If any backend returns a different CID, ErrCIDMismatch is returned.
func (r *ReplicatingStore) PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingStore has no backends")
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
		got, err := b.Store.Put(bytes)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if got != want {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r *ReplicatingStore) Put(bytes []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

func (r *ReplicatingStore) Get(id cid.Cid) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r *ReplicatingStore) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(id) {
			return true
		}
	}
	return false
}

func (r *ReplicatingStore) primary() (Store, error) {
	if len(r.Backends) == 0 || r.Backends[0].Store == nil {
		return nil, fmt.Errorf("storage: ReplicatingStore has no primary")
	}
	return r.Backends[0].Store, nil
}

func (r *ReplicatingStore) GetRef(name string) (cid.Cid, error) {
	p, err := r.primary()
	if err != nil {
		return cid.Undef, err
	}
	return p.GetRef(name)
}

func (r *ReplicatingStore) SetRef(name string, old, next cid.Cid) error {
	p, err := r.primary()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := p.GetRef(name)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if cur != old {
		return ErrRefConflict
	}
	for _, b := range r.Backends[1:] {
		if err := forceRef(b.Store, name, next); err != nil {
			return fmt.Errorf("storage: mirror %q: %w", b.Name, err)
		}
	}
	return p.SetRef(name, old, next)
}

func forceRef(s Store, name string, next cid.Cid) error {
	for {
		cur, err := s.GetRef(name)
		if err != nil && !IsNotFound(err) {
			return err
		}
		if cur == next {
			return nil
		}
		if err := s.SetRef(name, cur, next); !errors.Is(err, ErrRefConflict) {
			return err
		}
	}
}
