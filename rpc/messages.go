package rpc

import (
	"xdao.co/libreg/journal"
	"xdao.co/libreg/msglib"
)

// AcceptRequest asks whether Library may deliver on (App, EID). A nil At
// means the endpoint's current checkpoint.
type AcceptRequest struct {
	App     msglib.AppID     `cbor:"app"`
	EID     msglib.EID       `cbor:"eid"`
	Library msglib.LibraryID `cbor:"library"`
	At      *uint64          `cbor:"at,omitempty"`
}

// PathRequest names one path.
type PathRequest struct {
	App msglib.AppID `cbor:"app"`
	EID msglib.EID   `cbor:"eid"`
}

// WatchEvent is one committed journal entry.
type WatchEvent struct {
	Block string        `cbor:"block"`
	Entry journal.Entry `cbor:"entry"`
}
