// Package cidutil derives the content identifiers used across the control
// plane: library identities and journal block ids are both CIDv1 values with
// the raw multicodec and a sha2-256 multihash.
package cidutil

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrMismatch is returned by Verify when bytes do not hash to the expected CID.
var ErrMismatch = errors.New("cidutil: content does not match cid")

// Prefix is the CID prefix every derived identifier uses.
var Prefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Verify recomputes the CID of data and compares it against want.
func Verify(want cid.Cid, data []byte) error {
	if !want.Defined() {
		return ErrMismatch
	}
	got, err := Prefix.Sum(data)
	if err != nil {
		return err
	}
	if !got.Equals(want) {
		return ErrMismatch
	}
	return nil
}
