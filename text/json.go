// Package text implements the byte level JSON primitives the hand rolled
// codecs are built from: quoted strings with protocol escaping, hex fields
// decoded in place, arrays of both, and bare booleans.
package text

import (
	"bytes"
	"io"

	"github.com/templexxx/xhex"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/hex"
)

// AppendBytesClosure appends src to dst in some encoded form.
type AppendBytesClosure func(dst, src []byte) []byte

// Noop appends src verbatim.
func Noop(dst, src []byte) []byte { return append(dst, src...) }

// AppendQuote appends ac(src) wrapped in double quotes.
func AppendQuote(dst, src []byte, ac AppendBytesClosure) []byte {
	dst = append(dst, '"')
	dst = ac(dst, src)
	return append(dst, '"')
}

// Quote appends src wrapped in double quotes.
func Quote(dst, src []byte) []byte { return AppendQuote(dst, src, Noop) }

// Unquote strips the first and last byte, assumed to be quotes.
func Unquote(b []byte) []byte { return b[1 : len(b)-1] }

// JSONKey appends a quoted object key and its colon.
func JSONKey(dst, k []byte) (b []byte) {
	b = append(dst, '"')
	b = append(b, k...)
	b = append(b, '"', ':')
	return
}

// UnmarshalHex finds the next quoted string, decodes it as hex in place, and
// returns the decoded prefix of the span plus the remainder after the close
// quote.
func UnmarshalHex(b []byte) (h, rem []byte, err error) {
	rem = b
	var inQuote, closed bool
	var start int
	for i := 0; i < len(b); i++ {
		if !inQuote {
			if b[i] == '"' {
				inQuote = true
				start = i + 1
			}
		} else if b[i] == '"' {
			h = b[start:i]
			rem = b[i+1:]
			closed = true
			break
		}
	}
	if !closed {
		err = io.EOF
		return
	}
	l := len(h)
	if l%2 != 0 {
		err = errorf.E("invalid length for hex: %d, %0x", l, h)
		return
	}
	if err = xhex.Decode(h, h); chk.E(err) {
		return
	}
	h = h[:l/2]
	return
}

// UnmarshalQuoted finds the next quoted string and unescapes it in place.
func UnmarshalQuoted(b []byte) (content, rem []byte, err error) {
	if len(b) == 0 {
		err = io.EOF
		return
	}
	rem = b
	for len(rem) > 0 && rem[0] != '"' {
		rem = rem[1:]
	}
	if len(rem) == 0 {
		err = io.EOF
		return
	}
	rem = rem[1:]
	content = rem
	var escaping bool
	var l int
	for len(rem) > 0 {
		switch c := rem[0]; {
		case c == '\\':
			escaping = !escaping
		case c == '"':
			if !escaping {
				content = Unescape(content[:l])
				rem = rem[1:]
				return
			}
			escaping = false
		case c == '\b' || c == '\t' || c == '\n' || c == '\f' || c == '\r':
			// raw control codes are not allowed inside a JSON string
			err = errorf.E("invalid character '%s' in quoted string",
				Escape(nil, rem[:1]))
			return
		default:
			escaping = false
		}
		l++
		rem = rem[1:]
	}
	err = io.EOF
	return
}

// MarshalHexArray appends a JSON array of hex encoded quoted strings.
func MarshalHexArray(dst []byte, ha [][]byte) (b []byte) {
	b = append(dst, '[')
	for i := range ha {
		b = AppendQuote(b, ha[i], hex.EncAppend)
		if i != len(ha)-1 {
			b = append(b, ',')
		}
	}
	b = append(b, ']')
	return
}

// UnmarshalHexArray unpacks a JSON array of hex strings, requiring every
// element to decode to exactly size bytes.
func UnmarshalHexArray(b []byte, size int) (t [][]byte, rem []byte, err error) {
	rem = b
	var open bool
	for ; len(rem) > 0; rem = rem[1:] {
		switch {
		case rem[0] == '[':
			open = true
		case !open:
		case rem[0] == ',':
		case rem[0] == ']':
			rem = rem[1:]
			return
		case rem[0] == '"':
			var h []byte
			if h, rem, err = UnmarshalHex(rem); chk.E(err) {
				return
			}
			if len(h) != size {
				err = errorf.E("invalid hex array size, got %d expect %d",
					2*len(h), 2*size)
				return
			}
			t = append(t, h)
			if len(rem) > 0 && rem[0] == ']' {
				rem = rem[1:]
				return
			}
		}
	}
	return
}

// UnmarshalStringArray unpacks a JSON array of quoted strings.
func UnmarshalStringArray(b []byte) (t [][]byte, rem []byte, err error) {
	rem = b
	var open bool
	for ; len(rem) > 0; rem = rem[1:] {
		switch {
		case rem[0] == '[':
			open = true
		case !open:
		case rem[0] == ',':
		case rem[0] == ']':
			rem = rem[1:]
			return
		case rem[0] == '"':
			var s []byte
			if s, rem, err = UnmarshalQuoted(rem); chk.E(err) {
				return
			}
			t = append(t, s)
			if len(rem) > 0 && rem[0] == ']' {
				rem = rem[1:]
				return
			}
		}
	}
	return
}

func True() []byte  { return []byte("true") }
func False() []byte { return []byte("false") }

// MarshalBool appends the JSON boolean for truth.
func MarshalBool(src []byte, truth bool) []byte {
	if truth {
		return append(src, True()...)
	}
	return append(src, False()...)
}

// UnmarshalBool scans forward to the next true or false token.
func UnmarshalBool(src []byte) (rem []byte, truth bool, err error) {
	rem = src
	t, f := True(), False()
	for i := range rem {
		if rem[i] == t[0] && len(rem) >= i+len(t) &&
			bytes.Equal(t, rem[i:i+len(t)]) {
			truth = true
			rem = rem[i+len(t):]
			return
		}
		if rem[i] == f[0] && len(rem) >= i+len(f) &&
			bytes.Equal(f, rem[i:i+len(f)]) {
			rem = rem[i+len(f):]
			return
		}
	}
	err = io.EOF
	return
}

// Comma advances rem to the next comma, so rem[0] is the comma on return.
func Comma(b []byte) (rem []byte, err error) {
	rem = b
	for i := range rem {
		if rem[i] == ',' {
			rem = rem[i:]
			return
		}
	}
	err = io.EOF
	return
}
