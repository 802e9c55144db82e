// Package p256k implements the signer.I interface for secp256k1 BIP-340
// signatures and x-only ECDH.
package p256k

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/signer"
)

// Signer is an implementation of signer.I that uses the btcec library.
type Signer struct {
	SecretKey *btcec.PrivateKey
	PublicKey *btcec.PublicKey
	pkb, skb  []byte
}

var _ signer.I = &Signer{}

// Generate creates a new key pair for the Signer from system entropy.
func (s *Signer) Generate() (err error) {
	if s.SecretKey, err = btcec.NewPrivateKey(); chk.E(err) {
		return
	}
	s.skb = s.SecretKey.Serialize()
	s.PublicKey = s.SecretKey.PubKey()
	s.pkb = schnorr.SerializePubKey(s.PublicKey)
	return
}

// InitSec initialises a Signer using raw secret key bytes. Out of range
// scalars are rejected rather than silently reduced.
func (s *Signer) InitSec(sec []byte) (err error) {
	if len(sec) != secp256k1.PrivKeyBytesLen {
		err = errorf.E("sec key must be %d bytes, got %d",
			secp256k1.PrivKeyBytesLen, len(sec))
		return
	}
	s.SecretKey = secp256k1.PrivKeyFromBytes(sec)
	if s.SecretKey.Key.IsZero() {
		s.SecretKey = nil
		err = errorf.E("sec key is zero")
		return
	}
	// the parser reduces overflowing scalars mod N, a round trip detects it
	if !bytes.Equal(s.SecretKey.Serialize(), sec) {
		s.SecretKey.Zero()
		s.SecretKey = nil
		err = errorf.E("sec key is past the end of the curve order")
		return
	}
	s.skb = sec
	s.PublicKey = s.SecretKey.PubKey()
	s.pkb = schnorr.SerializePubKey(s.PublicKey)
	return
}

// InitPub initializes a signature verifier Signer from raw x-only public key
// bytes.
func (s *Signer) InitPub(pub []byte) (err error) {
	if s.PublicKey, err = schnorr.ParsePubKey(pub); chk.E(err) {
		return
	}
	s.pkb = pub
	return
}

// Sec returns the raw secret key bytes.
func (s *Signer) Sec() (b []byte) { return s.skb }

// Pub returns the raw BIP-340 x-only public key bytes.
func (s *Signer) Pub() (b []byte) { return s.pkb }

// Sign a message hash with the Signer. Requires an initialised secret key.
func (s *Signer) Sign(msg []byte) (sig []byte, err error) {
	if s.SecretKey == nil {
		err = errorf.E("p256k: Signer secret key not initialized")
		return
	}
	var si *schnorr.Signature
	if si, err = schnorr.Sign(s.SecretKey, msg); chk.E(err) {
		return
	}
	sig = si.Serialize()
	return
}

// Verify a message hash signature, only requires the public key is
// initialised.
func (s *Signer) Verify(msg, sig []byte) (valid bool, err error) {
	if s.PublicKey == nil {
		err = errorf.E("p256k: Signer pubkey not initialized")
		return
	}
	var si *schnorr.Signature
	if si, err = schnorr.ParseSignature(sig); chk.D(err) {
		err = errorf.E("failed to parse signature:\n%d %s\n%v", len(sig),
			sig, err)
		return
	}
	valid = si.Verify(msg, s.PublicKey)
	return
}

// ECDH creates a shared secret from the Signer secret key and a counterparty
// x-only public key. The result is the 32 byte X coordinate of the product,
// identical from either end of the conversation. It is advised to hash this
// result for security reasons.
func (s *Signer) ECDH(pubkeyBytes []byte) (secret []byte, err error) {
	if s.SecretKey == nil {
		err = errorf.E("p256k: Signer secret key not initialized")
		return
	}
	// lift the x-only key with the even Y coordinate, negation shares the X
	// coordinate so the product is unaffected by the choice.
	var pub *secp256k1.PublicKey
	if pub, err = secp256k1.ParsePubKey(
		append([]byte{0x02}, pubkeyBytes...)); chk.E(err) {
		return
	}
	secret = secp256k1.GenerateSharedSecret(s.SecretKey, pub)
	return
}

// Zero wipes the bytes of the secret key.
func (s *Signer) Zero() {
	if s.SecretKey != nil {
		s.SecretKey.Zero()
	}
	for i := range s.skb {
		s.skb[i] = 0
	}
}
