// Package bech32encoding provides the bech32 forms of keys and event ids,
// nsec, npub and note strings, and conversions between them and the raw and
// hexadecimal forms.
package bech32encoding

import (
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/hex"
	"relix.lol/sha256"
)

const (
	// MinKeyStringLen is 56 because Bech32 needs 52 characters plus 4 for
	// the HRP, any string shorter than this cannot be a nostr key.
	MinKeyStringLen = 56
	HexKeyLen       = 64
	Bech32HRPLen    = 4
)

const (
	SecHRP  = "nsec"
	PubHRP  = "npub"
	NoteHRP = "note"
)

// ConvertForBech32 performs the bit expansion required for encoding into
// Bech32.
func ConvertForBech32(b8 []byte) (b5 []byte, err error) {
	return bech32.ConvertBits(b8, 8, 5, true)
}

// ConvertFromBech32 collapses together the bit expanded 5 bit numbers
// encoded in bech32.
func ConvertFromBech32(b5 []byte) (b8 []byte, err error) {
	return bech32.ConvertBits(b5, 5, 8, true)
}

// SecretKeyToNsec encodes a secp256k1 secret key as a Bech32 string (nsec).
func SecretKeyToNsec(sk *secp256k1.PrivateKey) (encoded string, err error) {
	return encode32(SecHRP, sk.Serialize())
}

// PublicKeyToNpub encodes a public key as a bech32 string (npub).
func PublicKeyToNpub(pk *secp256k1.PublicKey) (encoded string, err error) {
	return encode32(PubHRP, schnorr.SerializePubKey(pk))
}

// NsecToSecretKey decodes a nostr secret key (nsec) and returns the
// secp256k1 secret key.
func NsecToSecretKey(encoded string) (sk *secp256k1.PrivateKey, err error) {
	var b8 []byte
	if b8, err = decode32(SecHRP, encoded); chk.E(err) {
		return
	}
	sk = secp256k1.PrivKeyFromBytes(b8)
	return
}

// NpubToPublicKey decodes a nostr public key (npub) and returns a secp256k1
// public key.
func NpubToPublicKey(encoded string) (pk *secp256k1.PublicKey, err error) {
	var b8 []byte
	if b8, err = decode32(PubHRP, encoded); chk.E(err) {
		return
	}
	return schnorr.ParsePubKey(b8)
}

// BinToNsec converts a binary secret key to a bech32 encoded nsec.
func BinToNsec(skb []byte) (nsec string, err error) {
	return encode32(SecHRP, skb)
}

// BinToNpub converts a binary x-only public key to a bech32 encoded npub.
func BinToNpub(pkb []byte) (npub string, err error) {
	return encode32(PubHRP, pkb)
}

// BinToNote converts a binary event id to a bech32 encoded note.
func BinToNote(eid []byte) (note string, err error) {
	return encode32(NoteHRP, eid)
}

// NsecToBin decodes an nsec to the raw secret key bytes.
func NsecToBin(nsec string) (skb []byte, err error) {
	return decode32(SecHRP, nsec)
}

// NpubToBin decodes an npub to the raw x-only public key bytes.
func NpubToBin(npub string) (pkb []byte, err error) {
	return decode32(PubHRP, npub)
}

// NoteToBin decodes a note to the raw event id bytes.
func NoteToBin(note string) (eid []byte, err error) {
	return decode32(NoteHRP, note)
}

// HexToNsec converts a hex encoded secret key to a bech32 encoded nsec.
func HexToNsec(sk string) (nsec string, err error) {
	var skb []byte
	if skb, err = hex.Dec(sk); chk.E(err) {
		return
	}
	return BinToNsec(skb)
}

// HexToNpub converts a hex encoded public key to a bech32 encoded npub.
func HexToNpub(pk string) (npub string, err error) {
	var pkb []byte
	if pkb, err = hex.Dec(pk); chk.E(err) {
		return
	}
	return BinToNpub(pkb)
}

// NsecToHex converts a bech32 encoded nsec to the hex encoded secret key.
func NsecToHex(nsec string) (sk string, err error) {
	var skb []byte
	if skb, err = NsecToBin(nsec); chk.E(err) {
		return
	}
	sk = hex.Enc(skb)
	return
}

// NpubToHex converts a bech32 encoded npub to the hex encoded public key.
func NpubToHex(npub string) (pk string, err error) {
	var pkb []byte
	if pkb, err = NpubToBin(npub); chk.E(err) {
		return
	}
	pk = hex.Enc(pkb)
	return
}

// encode32 bech32 encodes a 32 byte value under the given human readable
// part.
func encode32(hrp string, b8 []byte) (encoded string, err error) {
	if len(b8) != sha256.Size {
		err = errorf.E("value must be %d bytes, got %d", sha256.Size,
			len(b8))
		return
	}
	var b5 []byte
	if b5, err = ConvertForBech32(b8); chk.E(err) {
		return
	}
	return bech32.Encode(hrp, b5)
}

// decode32 decodes a bech32 string, checks the human readable part matches
// and collapses the payload back to the 32 byte value.
func decode32(hrp, encoded string) (b8 []byte, err error) {
	var b5 []byte
	var prefix string
	if prefix, b5, err = bech32.Decode(encoded); chk.E(err) {
		return
	}
	if prefix != hrp {
		err = errorf.E("wrong human readable part, got '%s' want '%s'",
			prefix, hrp)
		return
	}
	if b8, err = ConvertFromBech32(b5); chk.E(err) {
		return
	}
	if len(b8) < sha256.Size {
		err = errorf.E("payload too short, got %d need %d", len(b8),
			sha256.Size)
		return
	}
	// the bit expansion pads the tail with zero bits that produce a spare
	// byte on the way back
	b8 = b8[:sha256.Size]
	return
}
