// Package testkit holds conformance suites every storage backend runs.
package testkit

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/cidutil"
	"xdao.co/libreg/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

// NewStore constructs a fresh, empty Store instance for a test.
type NewStore func(t *testing.T) storage.Store

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, journal storage")

		id, err := cas.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
		if err := cidutil.Verify(id, got); err != nil {
			t.Fatalf("Get returned bytes not matching requested CID: %v", err)
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}

		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = cas.Get(id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := cas.Put(b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		var undef cid.Cid
		if cas.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}

// RunStoreConformance runs the CAS suite plus the ref contract.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	RunCASConformance(t, func(t *testing.T) storage.CAS { return newStore(t) })

	t.Run("RefUnsetIsNotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetRef("head"); !storage.IsNotFound(err) {
			t.Fatalf("GetRef on unset ref: got %v want ErrNotFound", err)
		}
	})

	t.Run("RefCompareAndSwap", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.Put([]byte("a"))
		b, _ := s.Put([]byte("b"))

		if err := s.SetRef("head", cid.Undef, a); err != nil {
			t.Fatalf("SetRef(unset->a): %v", err)
		}
		if err := s.SetRef("head", cid.Undef, b); !errors.Is(err, storage.ErrRefConflict) {
			t.Fatalf("SetRef with stale old: got %v want ErrRefConflict", err)
		}
		if err := s.SetRef("head", a, b); err != nil {
			t.Fatalf("SetRef(a->b): %v", err)
		}
		got, err := s.GetRef("head")
		if err != nil || got != b {
			t.Fatalf("GetRef = %s, %v want %s", got, err, b)
		}
	})

	t.Run("RefRejectsBadInput", func(t *testing.T) {
		s := newStore(t)
		a, _ := s.Put([]byte("a"))
		for _, name := range []string{"", "../escape", ".hidden", "a/b"} {
			if err := s.SetRef(name, cid.Undef, a); !errors.Is(err, storage.ErrInvalidRef) {
				t.Fatalf("SetRef(%q): got %v want ErrInvalidRef", name, err)
			}
		}
		if err := s.SetRef("head", cid.Undef, cid.Undef); err == nil {
			t.Fatalf("SetRef to undefined CID should fail")
		}
	})

	t.Run("RefConcurrentSwapsHaveOneWinner", func(t *testing.T) {
		s := newStore(t)
		base, _ := s.Put([]byte("base"))
		if err := s.SetRef("head", cid.Undef, base); err != nil {
			t.Fatalf("SetRef: %v", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 8; i++ {
			next, _ := s.Put([]byte{byte('0' + i)})
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.SetRef("head", base, next); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winning swap, got %d", wins)
		}
	})
}
