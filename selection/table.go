package selection

import (
	"sort"
	"sync"
	"sync/atomic"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/msglib"
)

// Directory checks that a library is registered for a role, typically a
// *directory.Directory.
type Directory interface {
	Require(msglib.LibraryID, msglib.Role) error
}

// Change describes one committed transition of a selection record. From and
// To are undefined when the path uses the default library.
type Change struct {
	Op       msglib.Op
	Key      msglib.PathKey
	Role     msglib.Role
	From     msglib.LibraryID
	To       msglib.LibraryID
	Previous msglib.LibraryID
	Expiry   checkpoint.Checkpoint
}

// CommitFunc persists a change before it becomes visible. A non-nil error
// aborts the mutation.
type CommitFunc func(Change) error

// cell holds one path's record. Readers load it without locking.
type cell[T any] struct {
	p atomic.Pointer[T]
}

// store is a concurrent map of cells. Writers serialize on mu; readers never
// take it.
type store[T any] struct {
	mu    sync.Mutex
	cells sync.Map // msglib.PathKey -> *cell[T]
}

func (s *store[T]) load(key msglib.PathKey) *T {
	v, ok := s.cells.Load(key)
	if !ok {
		return nil
	}
	return v.(*cell[T]).p.Load()
}

// cellFor must be called with mu held.
func (s *store[T]) cellFor(key msglib.PathKey) *cell[T] {
	v, _ := s.cells.LoadOrStore(key, &cell[T]{})
	return v.(*cell[T])
}

func (s *store[T]) keys() []msglib.PathKey {
	var out []msglib.PathKey
	s.cells.Range(func(k, v any) bool {
		if v.(*cell[T]).p.Load() != nil {
			out = append(out, k.(msglib.PathKey))
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].App != out[j].App {
			return out[i].App < out[j].App
		}
		return out[i].EID < out[j].EID
	})
	return out
}

func commit(fn CommitFunc, ch Change) error {
	if fn == nil {
		return nil
	}
	return fn(ch)
}
