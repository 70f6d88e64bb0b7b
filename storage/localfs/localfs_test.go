package localfs

import (
	"errors"
	"os"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/cidutil"
	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestLocalFS_RejectMutationByOverwrite(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := s.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path := s.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := s.Get(id); !errors.Is(err, storage.ErrCIDMismatch) {
		t.Fatalf("Get mismatch: got %v want %v", err, storage.ErrCIDMismatch)
	}
	// Put must not repair or overwrite the corrupted object.
	if _, err := s.Put(orig); !errors.Is(err, storage.ErrImmutable) {
		t.Fatalf("Put after corruption: got %v want %v", err, storage.ErrImmutable)
	}

	wantID, err := cidutil.CIDv1RawSHA256CID(orig)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

func TestLocalFS_RefsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, _ := s.Put([]byte("entry"))
	if err := s.SetRef("head", cid.Undef, id); err != nil {
		t.Fatalf("SetRef: %v", err)
	}

	again, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := again.GetRef("head")
	if err != nil || got != id {
		t.Fatalf("GetRef after reopen = %s, %v", got, err)
	}
	entries, _ := os.ReadDir(again.refPath(""))
	for _, e := range entries {
		if e.Name() != "head" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}
