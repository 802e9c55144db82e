// Package subscription is a set of helpers for managing nostr websocket
// subscription Ids, used with the REQ method to maintain an association
// between a REQ and resultant messages such as EVENT, EOSE and CLOSED.
package subscription

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/log"
	"relix.lol/text"
)

// Id is the arbitrary string a client attaches to a REQ, between 1 and 64
// characters.
type Id struct {
	T []byte
}

func (si *Id) String() string { return string(si.T) }

// IsValid returns true if the subscription id is between 1 and 64
// characters. Invalid means too long or not present.
func (si *Id) IsValid() bool { return len(si.T) <= 64 && len(si.T) > 0 }

// NewId inspects a string and converts to Id if it is valid. Invalid means
// length == 0 or length > 64.
func NewId[V string | []byte](s V) (*Id, error) {
	si := &Id{T: []byte(s)}
	if si.IsValid() {
		return si, nil
	}
	l := len(si.T)
	// remove invalid content
	si.T = si.T[:0]
	return si, errorf.E("invalid subscription Id - length %d < 1 or > 64", l)
}

// MustNew is the same as NewId except it doesn't check if you feed it
// rubbish.
//
// DO NOT USE WITHOUT CHECKING THE Id IS NOT NIL AND > 0 AND <= 64
func MustNew[V string | []byte](s V) *Id {
	return &Id{T: []byte(s)}
}

const StdLen = 14
const StdHRP = "su"

// NewStd creates a new standard subscription Id, a 14 byte (92 bit)
// identifier encoded using bech32.
func NewStd() (t *Id) {
	var err error
	src := make([]byte, StdLen)
	if _, err = rand.Read(src); chk.E(err) {
		return
	}
	var bits5 []byte
	if bits5, err = bech32.ConvertBits(src, 8, 5, true); chk.D(err) {
		return
	}
	var dst string
	if dst, err = bech32.Encode(StdHRP, bits5); chk.E(err) {
		return
	}
	t = &Id{T: []byte(dst)}
	return
}

// Marshal renders a subscription.Id as a quoted, escaped JSON string.
func (si *Id) Marshal(dst []byte) (b []byte) {
	ue := text.Escape(nil, si.T)
	if len(ue) < 1 || len(ue) > 64 {
		log.E.F("invalid subscription Id, must be between 1 and 64 "+
			"characters, got %d (possibly due to escaping)", len(ue))
		return dst
	}
	b = dst
	b = append(b, '"')
	b = append(b, ue...)
	b = append(b, '"')
	return
}

// Unmarshal a subscription.Id from the next quoted string in the input.
func (si *Id) Unmarshal(b []byte) (r []byte, err error) {
	var openQuotes, escaping bool
	var start int
	r = b
	for i := range r {
		if !openQuotes && r[i] == '"' {
			openQuotes = true
			start = i + 1
		} else if openQuotes {
			if !escaping && r[i] == '\\' {
				escaping = true
			} else if r[i] == '"' {
				if !escaping {
					si.T = text.Unescape(r[start:i])
					r = r[i+1:]
					return
				}
				escaping = false
			} else {
				escaping = false
			}
		}
	}
	return
}
