package p256k_test

import (
	"bytes"
	"testing"

	"lukechampine.com/frand"

	"relix.lol/chk"
	"relix.lol/p256k"
	"relix.lol/sha256"
	"relix.lol/signer"
)

func TestSignerGenerate(t *testing.T) {
	for range 100 {
		var err error
		sign := &p256k.Signer{}
		if err = sign.Generate(); chk.E(err) {
			t.Fatal(err)
		}
		skb := sign.Sec()
		second := &p256k.Signer{}
		if err = second.InitSec(skb); chk.E(err) {
			t.Fatal(err)
		}
		if !bytes.Equal(sign.Pub(), second.Pub()) {
			t.Fatalf("pubkey mismatch after sec key round trip: %0x %0x",
				sign.Pub(), second.Pub())
		}
	}
}

func TestSignerSignVerify(t *testing.T) {
	var err error
	sign := &p256k.Signer{}
	if err = sign.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	verifier := &p256k.Signer{}
	if err = verifier.InitPub(sign.Pub()); chk.E(err) {
		t.Fatal(err)
	}
	for range 100 {
		msg := sha256.Sum256(frand.Bytes(64))
		var sig []byte
		if sig, err = sign.Sign(msg[:]); chk.E(err) {
			t.Fatal(err)
		}
		var valid bool
		if valid, err = verifier.Verify(msg[:], sig); chk.E(err) {
			t.Fatal(err)
		}
		if !valid {
			t.Fatalf("signature did not verify:\nmsg %0x\nsig %0x",
				msg, sig)
		}
		// a different message must not verify under the same signature
		msg[0]++
		if valid, err = verifier.Verify(msg[:], sig); chk.E(err) {
			t.Fatal(err)
		}
		if valid {
			t.Fatalf("altered message verified:\nmsg %0x\nsig %0x", msg, sig)
		}
	}
}

func TestInitSecRejects(t *testing.T) {
	var err error
	sign := &p256k.Signer{}
	zero := make([]byte, 32)
	if err = sign.InitSec(zero); err == nil {
		t.Fatal("zero sec key was accepted")
	}
	big := bytes.Repeat([]byte{0xff}, 32)
	if err = sign.InitSec(big); err == nil {
		t.Fatal("overflowing sec key was accepted")
	}
	short := frand.Bytes(31)
	if err = sign.InitSec(short); err == nil {
		t.Fatal("short sec key was accepted")
	}
}

func TestECDH(t *testing.T) {
	var err error
	var s1, s2 signer.I
	for range 100 {
		s1, s2 = &p256k.Signer{}, &p256k.Signer{}
		if err = s1.Generate(); chk.E(err) {
			t.Fatal(err)
		}
		if err = s2.Generate(); chk.E(err) {
			t.Fatal(err)
		}
		var secret1, secret2 []byte
		if secret1, err = s1.ECDH(s2.Pub()); chk.E(err) {
			t.Fatal(err)
		}
		if secret2, err = s2.ECDH(s1.Pub()); chk.E(err) {
			t.Fatal(err)
		}
		if !bytes.Equal(secret1, secret2) {
			t.Fatalf("ECDH failed to work in both directions, %x %x",
				secret1, secret2)
		}
	}
}
