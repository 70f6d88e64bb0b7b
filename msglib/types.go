package msglib

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/ipfs/go-cid"

	"xdao.co/libreg/cidutil"
)

// LibraryID identifies a registered message library.
type LibraryID struct {
	c cid.Cid
}

// NewLibraryID derives the identity of the library deployed at address.
func NewLibraryID(address []byte) (LibraryID, error) {
	if len(address) == 0 {
		return LibraryID{}, Errorf(KindInvalidArgument, "LIBREG-ID-001", "library address is empty")
	}
	c, err := cidutil.CIDv1RawSHA256CID(address)
	if err != nil {
		return LibraryID{}, Wrap(KindInternal, "LIBREG-ID-002", "library identity derivation failed", err)
	}
	return LibraryID{c: c}, nil
}

// MustLibraryID is like NewLibraryID but panics on error. Intended for tests
// and static tables.
func MustLibraryID(address string) LibraryID {
	id, err := NewLibraryID([]byte(address))
	if err != nil {
		panic(err)
	}
	return id
}

// LibraryIDFromCID wraps an already-derived CID.
func LibraryIDFromCID(c cid.Cid) (LibraryID, error) {
	if !c.Defined() {
		return LibraryID{}, Errorf(KindInvalidArgument, "LIBREG-ID-003", "undefined library cid")
	}
	if c.Prefix().Codec != cid.Raw {
		return LibraryID{}, Errorf(KindInvalidArgument, "LIBREG-ID-004", "library cid must use the raw codec")
	}
	return LibraryID{c: c}, nil
}

// ParseLibraryID parses the string form produced by String.
func ParseLibraryID(s string) (LibraryID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LibraryID{}, Errorf(KindInvalidArgument, "LIBREG-ID-005", "empty library id")
	}
	c, err := cid.Decode(s)
	if err != nil {
		return LibraryID{}, Wrap(KindInvalidArgument, "LIBREG-ID-006", "invalid library id "+strconv.Quote(s), err)
	}
	return LibraryIDFromCID(c)
}

// Defined reports whether id names a library (as opposed to the default).
func (id LibraryID) Defined() bool { return id.c.Defined() }

// CID returns the underlying content identifier.
func (id LibraryID) CID() cid.Cid { return id.c }

func (id LibraryID) String() string {
	if !id.c.Defined() {
		return ""
	}
	return id.c.String()
}

// Label is String, except the zero identity renders as "default".
func (id LibraryID) Label() string {
	if !id.Defined() {
		return "default"
	}
	return id.String()
}

func (id LibraryID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *LibraryID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = LibraryID{}
		return nil
	}
	parsed, err := ParseLibraryID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Capability is the set of roles a library declares at registration.
//
// The values are bit flags: SendAndReceive == SendOnly|ReceiveOnly.
type Capability uint8

const (
	SendOnly Capability = 1 << iota
	ReceiveOnly

	SendAndReceive = SendOnly | ReceiveOnly
)

// Valid reports whether c is one of the three declared capabilities.
func (c Capability) Valid() bool {
	return c == SendOnly || c == ReceiveOnly || c == SendAndReceive
}

func (c Capability) CanSend() bool    { return c.Valid() && c&SendOnly != 0 }
func (c Capability) CanReceive() bool { return c.Valid() && c&ReceiveOnly != 0 }

// Allows reports whether c permits selection for role.
func (c Capability) Allows(role Role) bool {
	switch role {
	case RoleSend:
		return c.CanSend()
	case RoleReceive:
		return c.CanReceive()
	default:
		return false
	}
}

func (c Capability) String() string {
	switch c {
	case SendOnly:
		return "send"
	case ReceiveOnly:
		return "receive"
	case SendAndReceive:
		return "send-and-receive"
	default:
		return "invalid(" + strconv.Itoa(int(c)) + ")"
	}
}

// ParseCapability accepts the String forms plus a few common spellings.
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "send", "send-only", "sendonly":
		return SendOnly, nil
	case "receive", "receive-only", "receiveonly", "recv":
		return ReceiveOnly, nil
	case "send-and-receive", "sendandreceive", "both", "send+receive":
		return SendAndReceive, nil
	default:
		return 0, Errorf(KindInvalidArgument, "LIBREG-CAP-001", "unknown capability %q", s)
	}
}

// MarshalText encodes the zero Capability as an empty string so records that
// do not carry a capability still encode.
func (c Capability) MarshalText() ([]byte, error) {
	if c == 0 {
		return []byte{}, nil
	}
	if !c.Valid() {
		return nil, Errorf(KindInvalidArgument, "LIBREG-CAP-002", "cannot encode %s", c)
	}
	return []byte(c.String()), nil
}

func (c *Capability) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = 0
		return nil
	}
	parsed, err := ParseCapability(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Role names the direction a selection record governs.
type Role string

const (
	RoleSend    Role = "send"
	RoleReceive Role = "receive"
)

// AppID is the stable application identifier established at bootstrap.
type AppID string

// Validate rejects empty identifiers and identifiers containing whitespace or
// control characters.
func (a AppID) Validate() error {
	if a == "" {
		return Errorf(KindInvalidArgument, "LIBREG-APP-001", "application id is empty")
	}
	if len(a) > 128 {
		return Errorf(KindInvalidArgument, "LIBREG-APP-002", "application id longer than 128 bytes")
	}
	for _, r := range string(a) {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return Errorf(KindInvalidArgument, "LIBREG-APP-003", "application id %q contains whitespace or control characters", string(a))
		}
	}
	return nil
}

// EID identifies a remote chain endpoint.
type EID uint32

// ParseEID parses a decimal endpoint id.
func ParseEID(s string) (EID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, Wrap(KindInvalidArgument, "LIBREG-EID-001", "invalid endpoint id "+strconv.Quote(s), err)
	}
	return EID(v), nil
}

// PathKey scopes a selection record: one application talking to one remote chain.
type PathKey struct {
	App AppID
	EID EID
}

func (k PathKey) String() string {
	return fmt.Sprintf("%s/%d", k.App, k.EID)
}

// Validate checks the application part of the key.
func (k PathKey) Validate() error {
	return k.App.Validate()
}
