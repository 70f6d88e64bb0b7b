// Package journal is the append-only change log of the control plane.
//
// Each Entry is a canonical CBOR block in content-addressed storage and names
// its predecessor by CID, so the head CID commits to the whole history. The
// head is a named ref, advanced by compare-and-swap.
package journal

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"xdao.co/libreg/internal/logging"
	"xdao.co/libreg/storage"
	"xdao.co/libreg/storage/bundle"
)

// DefaultRef is the ref name used when none is configured.
const DefaultRef = "head"

var (
	ErrCorrupt      = errors.New("journal: corrupt chain")
	errNotCanonical = errors.New("journal: entry is not canonically encoded")
)

// Record is an entry together with its block CID.
type Record struct {
	CID   cid.Cid
	Entry Entry
}

// Journal appends entries to a store and tracks the head.
type Journal struct {
	store storage.Store
	ref   string
	log   zerolog.Logger

	mu   sync.Mutex
	head cid.Cid
	seq  uint64

	subMu  sync.Mutex
	subs   map[int]chan Record
	nextID int
}

// Open loads the head of ref in store. An unset ref is an empty journal.
func Open(store storage.Store, ref string) (*Journal, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: nil store")
	}
	if ref == "" {
		ref = DefaultRef
	}
	j := &Journal{
		store: store,
		ref:   ref,
		log:   logging.New("journal"),
		subs:  make(map[int]chan Record),
	}
	head, err := store.GetRef(ref)
	switch {
	case storage.IsNotFound(err):
		return j, nil
	case err != nil:
		return nil, fmt.Errorf("journal: read ref %q: %w", ref, err)
	}
	e, err := j.load(head)
	if err != nil {
		return nil, err
	}
	j.head, j.seq = head, e.Seq
	return j, nil
}

// Head returns the CID and sequence number of the last entry. Both are zero
// for an empty journal.
func (j *Journal) Head() (cid.Cid, uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.head, j.seq
}

// Append writes ev as the next entry and advances the head. Subscribers are
// not notified; call Publish once the change is visible to readers.
func (j *Journal) Append(checkpoint uint64, ev Event) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e := Entry{Seq: j.seq + 1, Checkpoint: checkpoint, Event: ev}
	if j.head.Defined() {
		e.Prev = j.head.String()
	}
	b, err := encodeEntry(e)
	if err != nil {
		return Record{}, fmt.Errorf("journal: encode entry: %w", err)
	}
	id, err := j.store.Put(b)
	if err != nil {
		return Record{}, fmt.Errorf("journal: put entry %d: %w", e.Seq, err)
	}
	if err := j.store.SetRef(j.ref, j.head, id); err != nil {
		return Record{}, fmt.Errorf("journal: advance %q to entry %d: %w", j.ref, e.Seq, err)
	}
	j.head, j.seq = id, e.Seq
	return Record{CID: id, Entry: e}, nil
}

func (j *Journal) load(id cid.Cid) (Entry, error) {
	b, err := j.store.Get(id)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: get %s: %w", id, err)
	}
	e, err := decodeEntry(b)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	return e, nil
}

// Records returns every entry from the first to the head, checking the chain
// as it goes. Seq values are not trusted for sizing: the walk follows Prev
// links and requires each entry to be numbered one below its successor.
func (j *Journal) Records() ([]Record, error) {
	head, seq := j.Head()
	if !head.Defined() {
		return nil, nil
	}
	var out []Record
	id, want := head, seq
	for {
		e, err := j.load(id)
		if err != nil {
			return nil, err
		}
		if e.Seq != want || want == 0 {
			return nil, fmt.Errorf("%w: %s has seq %d, expected %d", ErrCorrupt, id, e.Seq, want)
		}
		out = append(out, Record{CID: id, Entry: e})
		if e.Prev == "" {
			if e.Seq != 1 {
				return nil, fmt.Errorf("%w: entry %d has no predecessor", ErrCorrupt, e.Seq)
			}
			break
		}
		if e.Seq == 1 {
			return nil, fmt.Errorf("%w: first entry %s has a predecessor", ErrCorrupt, id)
		}
		prev, err := cid.Decode(e.Prev)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d has invalid prev %q", ErrCorrupt, e.Seq, e.Prev)
		}
		id, want = prev, want-1
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

// Walk calls fn for every entry from the first to the head.
func (j *Journal) Walk(fn func(Record) error) error {
	recs, err := j.Records()
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Verify checks the whole chain and returns the number of entries.
func (j *Journal) Verify() (uint64, error) {
	recs, err := j.Records()
	if err != nil {
		return 0, err
	}
	var last uint64
	for _, r := range recs {
		if r.Entry.Checkpoint < last {
			return 0, fmt.Errorf("%w: entry %d checkpoint %d before %d", ErrCorrupt, r.Entry.Seq, r.Entry.Checkpoint, last)
		}
		last = r.Entry.Checkpoint
	}
	return uint64(len(recs)), nil
}

// ErrEmpty is returned when exporting a journal with no entries.
var ErrEmpty = errors.New("journal: no entries")

// Export writes every entry block, oldest first, as a deterministic archive
// labelled with the ref name.
func (j *Journal) Export(w io.Writer) error {
	recs, err := j.Records()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return ErrEmpty
	}
	ids := make([]cid.Cid, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.CID)
	}
	return bundle.Export(w, j.store, j.ref, recs[len(recs)-1].CID, ids)
}

// Import loads an exported journal into store and points ref at its head. The
// ref must be unset. The imported chain is verified before the ref moves.
func Import(r io.Reader, store storage.Store, ref string) (*Journal, error) {
	if ref == "" {
		ref = DefaultRef
	}
	if _, err := store.GetRef(ref); err == nil {
		return nil, fmt.Errorf("journal: ref %q already set", ref)
	} else if !storage.IsNotFound(err) {
		return nil, err
	}

	m, err := bundle.Import(r, store)
	if err != nil {
		return nil, fmt.Errorf("journal: import: %w", err)
	}
	head, err := m.HeadCID()
	if err != nil {
		return nil, fmt.Errorf("journal: import: %w", err)
	}
	if len(m.Blocks) == 0 || m.Blocks[len(m.Blocks)-1].CID != m.Head {
		return nil, fmt.Errorf("%w: archive head %s is not its last block", ErrCorrupt, m.Head)
	}

	probe := &Journal{store: store, ref: ref, log: logging.New("journal"), subs: map[int]chan Record{}}
	e, err := probe.load(head)
	if err != nil {
		return nil, err
	}
	if e.Seq != uint64(len(m.Blocks)) {
		return nil, fmt.Errorf("%w: head entry has seq %d, archive has %d blocks", ErrCorrupt, e.Seq, len(m.Blocks))
	}
	probe.head, probe.seq = head, e.Seq
	n, err := probe.Verify()
	if err != nil {
		return nil, err
	}
	if n != uint64(len(m.Blocks)) {
		return nil, fmt.Errorf("%w: archive has %d blocks, chain has %d", ErrCorrupt, len(m.Blocks), n)
	}
	if err := store.SetRef(ref, cid.Undef, head); err != nil {
		return nil, err
	}
	return probe, nil
}
