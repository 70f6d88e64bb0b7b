package keys

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
)

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := testSeed(0)

	a, err := DeriveRoleSeed(root, "app1")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, _ := DeriveRoleSeed(root, "app1")
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}
	c, _ := DeriveRoleSeed(root, "admin")
	if string(a) == string(c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
	if len(a) != ed25519.SeedSize {
		t.Fatalf("seed length %d", len(a))
	}
	if _, err := DeriveRoleSeed(root, "bad role"); err == nil {
		t.Fatalf("expected invalid role error")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if _, err := s.Init("ops", testSeed(3), false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := s.Init("ops", testSeed(4), false); err == nil {
		t.Fatalf("Init without overwrite should fail on existing key")
	}
	path, err := s.Derive("ops", "app1", false)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected key file: %v %v", fi, err)
	}

	fromStore, err := s.Seed("ops", "app1")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	want, _ := DeriveRoleSeed(testSeed(3), "app1")
	if string(fromStore) != string(want) {
		t.Fatalf("stored role seed does not match derivation")
	}

	viaFile, err := s.LoadSeed("", filepath.Join(s.Dir, "ops", "root.key"), "", "")
	if err != nil || string(viaFile) != string(testSeed(3)) {
		t.Fatalf("LoadSeed via file: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Name != "ops" || len(list[0].Roles) != 1 || list[0].Roles[0] != "app1" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestLoadSeedRequiresSource(t *testing.T) {
	s := &Store{Dir: t.TempDir()}
	if _, err := s.LoadSeed("", "", "", ""); err == nil {
		t.Fatalf("expected error without a signer source")
	}
}
