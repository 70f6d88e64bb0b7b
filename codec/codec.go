// Package codec is the single place the control plane turns structured
// values into bytes. Everything that is hashed, signed or sent over the wire
// (journal entries, owner commands, RPC payloads) goes through Marshal so the
// same logical value always produces identical bytes.
package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// msglib.LibraryID and msglib.Capability implement TextMarshaler; encode
	// them as text strings so identities stay readable in exported journals.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
		// Signed and hashed payloads must not carry fields the reader would
		// silently drop.
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v, rejecting unknown fields and duplicate keys.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Canonical reports whether data is already in deterministic form for v's type:
// decoding into v and re-encoding yields the same bytes.
func Canonical(data []byte, v any) (bool, error) {
	if err := Unmarshal(data, v); err != nil {
		return false, err
	}
	again, err := Marshal(v)
	if err != nil {
		return false, err
	}
	return string(again) == string(data), nil
}

// NewEncoder returns a stream encoder using the deterministic configuration.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder using the strict configuration.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
