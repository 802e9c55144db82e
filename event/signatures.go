package event

import (
	"bytes"

	k1 "github.com/btcsuite/btcd/btcec/v2"
	sch "github.com/btcsuite/btcd/btcec/v2/schnorr"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/log"
	"relix.lol/p256k"
	"relix.lol/signer"
)

// Sign the event using the signer.I. Populates the Pubkey from the signer,
// derives the Id from the canonical form and signs it.
//
// Note that this only populates the Pubkey, Id and Sig. The caller must set
// the CreatedAt timestamp as intended.
func (ev *T) Sign(keys signer.I) (err error) {
	ev.Pubkey = keys.Pub()
	ev.Id = ev.GetIDBytes()
	if ev.Sig, err = keys.Sign(ev.Id); chk.E(err) {
		return
	}
	return
}

// Verify an event Id is the hash of the canonical form of the event, and that
// the signature on the Id is valid for the pubkey it contains.
//
// Both checks are required. The signature only attests to the Id field, so an
// event whose content was altered after signing still carries a valid
// signature on its stale Id, and only the canonical hash comparison catches
// the change.
func (ev *T) Verify() (valid bool, err error) {
	keys := p256k.Signer{}
	if err = keys.InitPub(ev.Pubkey); chk.E(err) {
		return
	}
	id := ev.GetIDBytes()
	if !bytes.Equal(id, ev.Id) {
		log.D.F("event Id mismatch: have %0x want %0x", ev.Id, id)
		return
	}
	if valid, err = keys.Verify(ev.Id, ev.Sig); chk.T(err) {
		return
	}
	return
}

// SignWithSecKey signs an event with a given secp256k1 secret key.
//
// Deprecated: use Sign method of event.T and signer.I instead.
func (ev *T) SignWithSecKey(sk *k1.PrivateKey,
	so ...sch.SignOption) (err error) {

	var sig *sch.Signature
	ev.Id = ev.GetIDBytes()
	if sig, err = sch.Sign(sk, ev.Id, so...); chk.D(err) {
		return
	}
	// we know secret key is good so we can generate the public key.
	ev.Pubkey = sch.SerializePubKey(sk.PubKey())
	ev.Sig = sig.Serialize()
	return
}

// CheckSignature returns whether an event signature is authentic and matches
// the event Id and Pubkey.
//
// Deprecated: use Verify
func (ev *T) CheckSignature() (valid bool, err error) {
	// parse pubkey bytes.
	var pk *k1.PublicKey
	if pk, err = sch.ParsePubKey(ev.Pubkey); chk.D(err) {
		err = errorf.E("event has invalid pubkey '%0x': %v", ev.Pubkey, err)
		return
	}
	// parse signature bytes.
	var sig *sch.Signature
	if sig, err = sch.ParseSignature(ev.Sig); chk.D(err) {
		err = errorf.E("failed to parse signature:\n%d %s\n%v", len(ev.Sig),
			ev.Sig, err)
		return
	}
	// check signature.
	valid = sig.Verify(ev.GetIDBytes(), pk)
	return
}
