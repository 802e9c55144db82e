// Package signer defines an interface for management of BIP-340 key pairs,
// schnorr signatures and ECDH shared secret derivation.
package signer

// I is the interface of a key manager. Implementations hold at most one key
// pair, either a full signing pair or just a verification pubkey.
type I interface {
	// Generate creates a fresh new key pair from system entropy.
	Generate() (err error)
	// InitSec initialises the secret (signing) key from the raw bytes, and
	// also derives the public key because it can.
	InitSec(sec []byte) (err error)
	// InitPub initializes the public (verification) key from raw bytes.
	InitPub(pub []byte) (err error)
	// Sec returns the secret key bytes.
	Sec() (b []byte)
	// Pub returns the public key bytes (x-only schnorr pubkey).
	Pub() (b []byte)
	// Sign creates a signature using the stored secret key.
	Sign(msg []byte) (sig []byte, err error)
	// Verify checks a message hash and signature match the stored public
	// key.
	Verify(msg, sig []byte) (valid bool, err error)
	// ECDH returns a shared secret derived using Elliptic Curve Diffie
	// Hellman on the I secret key and the provided x-only pubkey.
	ECDH(pub []byte) (secret []byte, err error)
	// Zero wipes the secret key to prevent memory leaks.
	Zero()
}
