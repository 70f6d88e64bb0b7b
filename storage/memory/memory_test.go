package memory

import (
	"testing"

	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/testkit"
)

func TestMemory_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	s := New()
	id, err := s.Put([]byte("abc"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	b, _ := s.Get(id)
	b[0] = 'z'
	again, _ := s.Get(id)
	if string(again) != "abc" {
		t.Fatalf("stored block mutated through returned slice")
	}
}
