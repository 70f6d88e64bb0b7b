// Package selection holds the per-path send and receive selection records.
//
// A send record names one library and is replaced atomically. A receive record
// names the current library and at most one grace window during which the
// previous library is still accepted:
//
//	Unset -> Pinned(lib) -> Migrating(lib, prev, expiry) -> Pinned(lib)
//
// The last transition is never stored: a window whose expiry has been reached
// simply stops matching. Records are immutable values; a mutation builds a new
// record and swaps it in with a single pointer store, so readers observe either
// the old record or the new one.
//
// Tables take a CommitFunc that runs after validation and before the swap.
// The endpoint uses it to append the change to the journal; if it fails the
// record is left untouched.
package selection
