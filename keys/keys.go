package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

const (
	HashSHA256   = "sha256"
	HashSHA512   = "sha512"
	HashSHA3_256 = "sha3-256"
)

// ErrBadSignature is returned by Verify when the signature does not match.
var ErrBadSignature = errors.New("keys: signature invalid")

// PublicKey is a parsed owner key.
type PublicKey struct {
	Alg string
	Raw []byte
}

// String returns the "<alg>:<base64>" form.
func (p PublicKey) String() string {
	return p.Alg + ":" + base64.StdEncoding.EncodeToString(p.Raw)
}

// FormatOwnerKey encodes a raw public key.
func FormatOwnerKey(alg string, raw []byte) (string, error) {
	p := PublicKey{Alg: alg, Raw: raw}
	if err := p.check(); err != nil {
		return "", err
	}
	return p.String(), nil
}

// ParseOwnerKey parses "ed25519:<base64>" or "dilithium3:<base64>".
func ParseOwnerKey(s string) (PublicKey, error) {
	alg, enc, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return PublicKey{}, fmt.Errorf("owner key %q: missing algorithm prefix", s)
	}
	raw, err := decodeBase64(enc)
	if err != nil {
		return PublicKey{}, fmt.Errorf("owner key: invalid base64: %w", err)
	}
	p := PublicKey{Alg: alg, Raw: raw}
	if err := p.check(); err != nil {
		return PublicKey{}, err
	}
	return p, nil
}

func (p PublicKey) check() error {
	switch p.Alg {
	case AlgEd25519:
		if len(p.Raw) != ed25519.PublicKeySize {
			return fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(p.Raw))
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(p.Raw); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
	default:
		return fmt.Errorf("unsupported key algorithm %q", p.Alg)
	}
	return nil
}

// Digest hashes message with hashAlg.
func Digest(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case HashSHA256:
		s := sha256.Sum256(message)
		return s[:], nil
	case HashSHA512:
		s := sha512.Sum512(message)
		return s[:], nil
	case HashSHA3_256:
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// Verify checks sig over hashAlg(message) against owner key pub.
func Verify(pub PublicKey, hashAlg string, message, sig []byte) error {
	digest, err := Digest(hashAlg, message)
	if err != nil {
		return err
	}
	switch pub.Alg {
	case AlgEd25519:
		if len(pub.Raw) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return ErrBadSignature
		}
		if !ed25519.Verify(ed25519.PublicKey(pub.Raw), digest, sig) {
			return ErrBadSignature
		}
		return nil
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub.Raw); err != nil {
			return fmt.Errorf("invalid dilithium3 public key: %w", err)
		}
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest, sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("unsupported key algorithm %q", pub.Alg)
	}
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
