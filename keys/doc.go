// Package keys handles owner keys: the "<alg>:<base64>" text form, signing
// and verification with ed25519 or dilithium3, and a local seed store used by
// the operator CLI.
//
// Supported algorithms:
//   - ed25519
//   - dilithium3 (post-quantum, via cloudflare/circl)
//
// Messages are hashed before signing with one of sha256, sha512 or sha3-256.
//
// The filesystem Store is a local convenience for operators and is not part
// of the control protocol.
package keys
