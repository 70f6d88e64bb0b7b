// Package memory is an in-process storage.Store used by tests and by daemons
// configured without persistence.
package memory

import (
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/cidutil"
	"xdao.co/libreg/storage"
)

type Store struct {
	mu     sync.RWMutex
	blocks map[cid.Cid][]byte
	refs   map[string]cid.Cid
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		blocks: make(map[cid.Cid][]byte),
		refs:   make(map[string]cid.Cid),
	}
}

func (s *Store) Put(bytes []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.blocks[id]; ok {
		if string(existing) != string(bytes) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	s.blocks[id] = append([]byte(nil), bytes...)
	return id, nil
}

func (s *Store) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	s.mu.RLock()
	b, ok := s.blocks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[id]
	return ok
}

func (s *Store) GetRef(name string) (cid.Cid, error) {
	if err := storage.CheckRefName(name); err != nil {
		return cid.Undef, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.refs[name]
	if !ok {
		return cid.Undef, storage.ErrNotFound
	}
	return id, nil
}

func (s *Store) SetRef(name string, old, next cid.Cid) error {
	if err := storage.CheckRefName(name); err != nil {
		return err
	}
	if !next.Defined() {
		return storage.ErrInvalidCID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[name] != old {
		return storage.ErrRefConflict
	}
	s.refs[name] = next
	return nil
}

// Len returns the number of stored blocks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}
