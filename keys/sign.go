package keys

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Signer signs command bytes on behalf of an owner.
type Signer interface {
	// OwnerKey returns the "<alg>:<base64>" public key.
	OwnerKey() string
	// Sign returns a raw signature over hashAlg(message).
	Sign(hashAlg string, message []byte) ([]byte, error)
}

// NewSigner builds a signer for alg from a 32-byte seed. Both algorithms are
// deterministic in the seed.
func NewSigner(alg string, seed []byte) (Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	switch alg {
	case AlgEd25519, "":
		return Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
	case AlgDilithium3:
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		pk, sk := mode3.NewKeyFromSeed(&s)
		return &Dilithium3Signer{pub: pk, priv: sk}, nil
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", alg)
	}
}

type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) Ed25519Signer {
	return Ed25519Signer{priv: priv}
}

func (s Ed25519Signer) OwnerKey() string {
	return PublicKey{Alg: AlgEd25519, Raw: s.priv.Public().(ed25519.PublicKey)}.String()
}

func (s Ed25519Signer) Sign(hashAlg string, message []byte) ([]byte, error) {
	digest, err := Digest(hashAlg, message)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(s.priv, digest), nil
}

type Dilithium3Signer struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

// GenerateDilithium3 returns a signer for a new random Dilithium3 keypair.
func GenerateDilithium3(rand io.Reader) (*Dilithium3Signer, error) {
	pk, sk, err := mode3.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{pub: pk, priv: sk}, nil
}

func (s *Dilithium3Signer) OwnerKey() string {
	return PublicKey{Alg: AlgDilithium3, Raw: s.pub.Bytes()}.String()
}

func (s *Dilithium3Signer) Sign(hashAlg string, message []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("missing private key")
	}
	digest, err := Digest(hashAlg, message)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest, sig)
	return sig, nil
}
