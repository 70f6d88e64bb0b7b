package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (callers are responsible for supplying canonical bytes).
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Refs is a small set of named, mutable pointers into a CAS.
//
// Contract:
// - GetRef MUST return ErrNotFound for a name that was never set.
// - SetRef MUST be a compare-and-swap: it succeeds only when the stored value
//   equals old (cid.Undef meaning "unset"), and returns ErrRefConflict otherwise.
// - A successful SetRef MUST be durable before it returns.
type Refs interface {
	GetRef(name string) (cid.Cid, error)
	SetRef(name string, old, next cid.Cid) error
}

// Store is a CAS with refs, the unit a journal is opened on.
type Store interface {
	CAS
	Refs
}
