// Package keys has helpers for the hexadecimal boundary forms of secret and
// public keys, as accepted by configuration and command line flags.
package keys

import (
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"relix.lol/chk"
	"relix.lol/hex"
	"relix.lol/p256k"
)

// GenerateSecretKeyHex creates a fresh secret key and returns it encoded as
// hexadecimal.
func GenerateSecretKeyHex() (sks string) {
	var err error
	sign := &p256k.Signer{}
	if err = sign.Generate(); chk.E(err) {
		return
	}
	sks = hex.Enc(sign.Sec())
	return
}

// GetPublicKeyHex derives the hexadecimal x-only public key from a
// hexadecimal secret key.
func GetPublicKeyHex(sk string) (pk string, err error) {
	var skb []byte
	if skb, err = hex.Dec(sk); chk.E(err) {
		return
	}
	var pkb []byte
	if pkb, err = SecretToPubKeyBytes(skb); chk.E(err) {
		return
	}
	pk = hex.Enc(pkb)
	return
}

// SecretToPubKeyBytes derives the x-only public key bytes from the secret
// key bytes.
func SecretToPubKeyBytes(skb []byte) (pk []byte, err error) {
	sign := &p256k.Signer{}
	if err = sign.InitSec(skb); chk.E(err) {
		return
	}
	pk = sign.Pub()
	return
}

// IsValid32ByteHex checks a string is lower case hex encoding 32 bytes.
func IsValid32ByteHex(pk string) bool {
	if strings.ToLower(pk) != pk {
		return false
	}
	dec, _ := hex.Dec(pk)
	return len(dec) == 32
}

// IsValidPublicKey checks the string is hex encoding a point on the curve.
func IsValidPublicKey(pk string) bool {
	v, _ := hex.Dec(pk)
	_, err := schnorr.ParsePubKey(v)
	return err == nil
}
