// Package hex is the hex codec used throughout, backed by the SIMD
// implementation in templexxx/xhex for the append forms.
package hex

import (
	"encoding/hex"

	"github.com/templexxx/xhex"

	"relix.lol/chk"
)

var (
	Enc      = hex.EncodeToString
	EncBytes = hex.Encode
	Dec      = hex.DecodeString
	DecBytes = hex.Decode
	DecLen   = hex.DecodedLen
)

type InvalidByteError = hex.InvalidByteError

// EncAppend appends the hex encoding of src to dst.
func EncAppend(dst, src []byte) (b []byte) {
	l := len(dst)
	b = append(dst, make([]byte, len(src)*2)...)
	xhex.Encode(b[l:], src)
	return
}

// DecAppend appends the decoded bytes of hex src to dst.
func DecAppend(dst, src []byte) (b []byte, err error) {
	l := len(dst)
	b = append(dst, make([]byte, len(src)/2)...)
	if err = xhex.Decode(b[l:], src); chk.E(err) {
		return
	}
	return
}
