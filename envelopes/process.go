package envelopes

import (
	"io"
)

// Marshaler is a closure that appends the payload of an envelope between the
// label and the closing bracket.
type Marshaler func(dst []byte) (b []byte)

// Marshal frames a payload in the envelope array form with the given label.
func Marshal(dst []byte, label string, m Marshaler) (b []byte) {
	b = dst
	b = append(b, '[', '"')
	b = append(b, label...)
	b = append(b, '"', ',')
	b = m(b)
	b = append(b, ']')
	return
}

// SkipToTheEnd scans past the closing bracket of an envelope, returning an
// error if the input runs out first.
func SkipToTheEnd(dst []byte) (rem []byte, err error) {
	if len(dst) == 0 {
		return
	}
	rem = dst
	// we have everything, just need to snip the end
	for ; len(rem) > 0; rem = rem[1:] {
		if rem[0] == ']' {
			rem = rem[:0]
			return
		}
	}
	err = io.EOF
	return
}
