package ownership

import (
	"xdao.co/libreg/codec"
	"xdao.co/libreg/keys"
	"xdao.co/libreg/msglib"
)

// Command is one control operation as signed by its authority. Fields a given
// Op does not use stay zero.
type Command struct {
	Op         msglib.Op         `cbor:"op" json:"op"`
	App        msglib.AppID      `cbor:"app,omitempty" json:"app,omitempty"`
	EID        msglib.EID        `cbor:"eid,omitempty" json:"eid,omitempty"`
	Library    msglib.LibraryID  `cbor:"library" json:"library,omitempty"`
	Capability msglib.Capability `cbor:"capability,omitempty" json:"capability,omitempty"`
	Expiry     uint64            `cbor:"expiry,omitempty" json:"expiry,omitempty"`
	Owner      string            `cbor:"owner,omitempty" json:"owner,omitempty"`
	Checkpoint uint64            `cbor:"checkpoint,omitempty" json:"checkpoint,omitempty"`
	Nonce      uint64            `cbor:"nonce" json:"nonce"`
}

// Scope is the application whose key authorizes c and whose nonce sequence
// it consumes.
func (c Command) Scope() msglib.AppID {
	if c.Op.Admin() {
		return msglib.AdminApp
	}
	return c.App
}

// Path returns the selection key c targets.
func (c Command) Path() msglib.PathKey {
	return msglib.PathKey{App: c.App, EID: c.EID}
}

// Validate checks that c carries the fields its Op needs.
func (c Command) Validate() error {
	if !c.Op.Valid() {
		return msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-CMD-001", "unknown operation %q", string(c.Op))
	}
	switch c.Op {
	case msglib.OpRegister:
		if !c.Library.Defined() {
			return msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-CMD-002", "%s needs a library", c.Op)
		}
	case msglib.OpBind:
		if err := c.App.Validate(); err != nil {
			return err
		}
		if c.Owner == "" {
			return msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-CMD-003", "%s needs an owner key", c.Op)
		}
	case msglib.OpAdvance:
	default:
		if err := c.App.Validate(); err != nil {
			return err
		}
		if c.App == msglib.AdminApp {
			return msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-CMD-004", "%s is reserved", msglib.AdminApp)
		}
	}
	return nil
}

// Signed is a command together with its authority's signature. Command holds
// the canonical encoding that was signed.
type Signed struct {
	Command   []byte `cbor:"command"`
	HashAlg   string `cbor:"hash"`
	Signature []byte `cbor:"sig"`
}

// Sign encodes cmd canonically and signs it.
func Sign(cmd Command, signer keys.Signer, hashAlg string) (Signed, error) {
	if hashAlg == "" {
		hashAlg = keys.HashSHA256
	}
	b, err := codec.Marshal(cmd)
	if err != nil {
		return Signed{}, msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-CMD-010", "encode command", err)
	}
	sig, err := signer.Sign(hashAlg, b)
	if err != nil {
		return Signed{}, msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-CMD-011", "sign command", err)
	}
	return Signed{Command: b, HashAlg: hashAlg, Signature: sig}, nil
}

// Decode returns the command inside s. The bytes must be canonical so that a
// signature covers exactly one logical command.
func (s Signed) Decode() (Command, error) {
	var cmd Command
	ok, err := codec.Canonical(s.Command, &cmd)
	if err != nil {
		return Command{}, msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-CMD-020", "decode command", err)
	}
	if !ok {
		return Command{}, msglib.Errorf(msglib.KindInvalidArgument, "LIBREG-CMD-021", "command encoding is not canonical")
	}
	return cmd, nil
}

// MarshalSigned encodes s for transport.
func MarshalSigned(s Signed) ([]byte, error) {
	return codec.Marshal(s)
}

// UnmarshalSigned decodes a transported envelope.
func UnmarshalSigned(b []byte) (Signed, error) {
	var s Signed
	if err := codec.Unmarshal(b, &s); err != nil {
		return Signed{}, msglib.Wrap(msglib.KindInvalidArgument, "LIBREG-CMD-022", "decode signed command", err)
	}
	return s, nil
}
