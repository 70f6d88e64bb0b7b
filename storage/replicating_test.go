package storage_test

import (
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/memory"
	"xdao.co/libreg/storage/testkit"
)

func TestReplicating_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		return &storage.ReplicatingStore{Backends: []storage.NamedStore{
			{Name: "primary", Store: memory.New()},
			{Name: "mirror", Store: memory.New()},
		}}
	})
}

func TestReplicating_WritesEverywhere(t *testing.T) {
	primary, mirror := memory.New(), memory.New()
	r := &storage.ReplicatingStore{Backends: []storage.NamedStore{
		{Name: "primary", Store: primary},
		{Name: "mirror", Store: mirror},
	}}

	id, per, err := r.PutAll([]byte("entry"))
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	if per["primary"] != id || per["mirror"] != id {
		t.Fatalf("per-backend CIDs: %v", per)
	}
	if !mirror.Has(id) {
		t.Fatalf("mirror missing block")
	}

	if err := r.SetRef("head", cid.Undef, id); err != nil {
		t.Fatalf("SetRef: %v", err)
	}
	got, err := mirror.GetRef("head")
	if err != nil || got != id {
		t.Fatalf("mirror ref = %s, %v", got, err)
	}
}

func TestReplicating_MirrorCatchesUp(t *testing.T) {
	primary, mirror := memory.New(), memory.New()
	r := &storage.ReplicatingStore{Backends: []storage.NamedStore{
		{Name: "primary", Store: primary},
		{Name: "mirror", Store: mirror},
	}}
	a, _ := r.Put([]byte("a"))
	b, _ := r.Put([]byte("b"))

	// The mirror drifted (for example it was restored from an older copy).
	if err := mirror.SetRef("head", cid.Undef, b); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	if err := r.SetRef("head", cid.Undef, a); err != nil {
		t.Fatalf("SetRef: %v", err)
	}
	if got, _ := mirror.GetRef("head"); got != a {
		t.Fatalf("mirror did not follow primary: %s", got)
	}
	if err := r.SetRef("head", cid.Undef, b); !errors.Is(err, storage.ErrRefConflict) {
		t.Fatalf("stale swap on primary should conflict, got %v", err)
	}
}
