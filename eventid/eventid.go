// Package eventid is the content address of an event, the digest of its
// canonical form.
package eventid

import (
	"bytes"

	"lukechampine.com/frand"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/hex"
	"relix.lol/sha256"
)

// T is the 32 byte digest of the canonical form of an event.
type T struct {
	b []byte
}

func New() (ei *T) { return &T{} }

func NewWith[V string | []byte](s V) (ei *T) { return &T{b: []byte(s)} }

// Set checks the length and keeps the bytes.
func (ei *T) Set(b []byte) (err error) {
	if len(b) != sha256.Size {
		err = errorf.E("id bytes incorrect size, got %d require %d", len(b),
			sha256.Size)
		return
	}
	ei.b = b
	return
}

func NewFromBytes(b []byte) (ei *T, err error) {
	ei = New()
	if err = ei.Set(b); chk.E(err) {
		return
	}
	return
}

// NewFromHex decodes a 64 character hex id.
func NewFromHex(s string) (ei *T, err error) {
	ei = New()
	var b []byte
	if b, err = hex.Dec(s); chk.E(err) {
		return
	}
	if err = ei.Set(b); chk.E(err) {
		return
	}
	return
}

func (ei *T) String() string {
	if ei == nil || ei.b == nil {
		return ""
	}
	return hex.Enc(ei.b)
}

func (ei *T) Bytes() (b []byte) { return ei.b }

func (ei *T) Len() int {
	if ei == nil || ei.b == nil {
		return 0
	}
	return len(ei.b)
}

func (ei *T) Equal(ei2 *T) bool { return bytes.Equal(ei.b, ei2.b) }

// Marshal appends the quoted hex form to dst.
func (ei *T) Marshal(dst []byte) (b []byte) {
	b = append(dst, '"')
	b = hex.EncAppend(b, ei.b)
	b = append(b, '"')
	return
}

// Gen makes a random id for tests.
func Gen() (ei *T) { return &T{b: frand.Bytes(sha256.Size)} }
