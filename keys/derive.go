package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
)

// OwnerKeyFromSeed returns the owner key string alg derives from seed.
func OwnerKeyFromSeed(alg string, seed []byte) (string, error) {
	s, err := NewSigner(alg, seed)
	if err != nil {
		return "", err
	}
	return s.OwnerKey(), nil
}

// DeriveRoleSeed deterministically derives a role-specific seed from a root
// seed. Operators keep one root per organisation and derive one role per
// application they own (plus "admin" for the endpoint administrator).
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckName(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("xdao-libreg-owner-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	return h.Sum(nil)[:ed25519.SeedSize], nil
}
