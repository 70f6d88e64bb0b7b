package journal

import (
	"xdao.co/libreg/codec"
	"xdao.co/libreg/msglib"
)

// Event is one committed control-plane change. Type selects which fields are
// meaningful; the others stay zero. From and To are the zero LibraryID when
// the path used or returns to the default library.
type Event struct {
	Type       msglib.Op         `cbor:"type" json:"type"`
	Scope      msglib.AppID      `cbor:"scope,omitempty" json:"scope,omitempty"`
	Nonce      uint64            `cbor:"nonce,omitempty" json:"nonce,omitempty"`
	App        msglib.AppID      `cbor:"app,omitempty" json:"app,omitempty"`
	EID        msglib.EID        `cbor:"eid,omitempty" json:"eid,omitempty"`
	Role       msglib.Role       `cbor:"role,omitempty" json:"role,omitempty"`
	From       msglib.LibraryID  `cbor:"from" json:"from"`
	To         msglib.LibraryID  `cbor:"to" json:"to"`
	Previous   msglib.LibraryID  `cbor:"previous" json:"previous"`
	Expiry     uint64            `cbor:"expiry,omitempty" json:"expiry,omitempty"`
	Library    msglib.LibraryID  `cbor:"library" json:"library"`
	Capability msglib.Capability `cbor:"capability,omitempty" json:"capability,omitempty"`
	Owner      string            `cbor:"owner,omitempty" json:"owner,omitempty"`
	Checkpoint uint64            `cbor:"checkpoint,omitempty" json:"checkpoint,omitempty"`
}

// Path returns the selection key the event touched.
func (e Event) Path() msglib.PathKey {
	return msglib.PathKey{App: e.App, EID: e.EID}
}

// Entry is one block of the journal. Prev is the CID string of the previous
// entry, empty for the first.
type Entry struct {
	Seq        uint64 `cbor:"seq" json:"seq"`
	Prev       string `cbor:"prev" json:"prev,omitempty"`
	Checkpoint uint64 `cbor:"checkpoint" json:"checkpoint"`
	Event      Event  `cbor:"event" json:"event"`
}

func encodeEntry(e Entry) ([]byte, error) {
	return codec.Marshal(e)
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	ok, err := codec.Canonical(b, &e)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, errNotCanonical
	}
	return e, nil
}
