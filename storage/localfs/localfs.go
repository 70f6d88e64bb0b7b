package localfs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/cidutil"
	"xdao.co/libreg/storage"
)

// Store is a local filesystem-backed content-addressable store with refs.
//
// Blocks are stored immutably under blocks/ and keyed strictly by CID. Refs
// live under refs/ as one file per name holding a CID string; they are
// replaced by rename so a reader never sees a partial value.
//
// Ref compare-and-swap is serialized within one process. Two processes must
// not write the same directory.
type Store struct {
	root  string
	refMu sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	for _, sub := range []string{"blocks", "refs"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{root: root}, nil
}

func (c *Store) Put(bytes []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := c.Get(id)
			if rerr != nil {
				// An existing but unreadable or corrupted file is an immutability violation.
				return cid.Undef, storage.ErrImmutable
			}
			if string(existing) != string(bytes) {
				return cid.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return cid.Undef, err
	}
	defer f.Close()

	if _, err := f.Write(bytes); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

func (c *Store) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *Store) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *Store) GetRef(name string) (cid.Cid, error) {
	if err := storage.CheckRefName(name); err != nil {
		return cid.Undef, err
	}
	return c.readRef(name)
}

func (c *Store) readRef(name string) (cid.Cid, error) {
	b, err := os.ReadFile(c.refPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return cid.Undef, storage.ErrNotFound
		}
		return cid.Undef, err
	}
	id, err := cid.Decode(strings.TrimSpace(string(b)))
	if err != nil {
		return cid.Undef, storage.ErrInvalidCID
	}
	return id, nil
}

func (c *Store) SetRef(name string, old, next cid.Cid) error {
	if err := storage.CheckRefName(name); err != nil {
		return err
	}
	if !next.Defined() {
		return storage.ErrInvalidCID
	}

	c.refMu.Lock()
	defer c.refMu.Unlock()

	cur, err := c.readRef(name)
	if err != nil && !storage.IsNotFound(err) {
		return err
	}
	if cur != old {
		return storage.ErrRefConflict
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "refs"), "."+name+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(next.String() + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, c.refPath(name)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func (c *Store) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, "blocks", s)
	}
	return filepath.Join(c.root, "blocks", s[len(s)-2:], s)
}

func (c *Store) refPath(name string) string {
	return filepath.Join(c.root, "refs", name)
}
