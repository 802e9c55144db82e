// Package ints encodes and decodes positive decimal integers in ASCII
// directly into byte slices, the form all integers take in the wire protocol.
package ints

import (
	"io"

	"relix.lol/errorf"
)

type T struct {
	N uint64
}

func New[V uint | int | uint64 | uint32 | uint16 | uint8 | int64 | int32 | int16 | int8](n V) *T {
	return &T{uint64(n)}
}

func (n *T) Uint64() uint64 { return n.N }
func (n *T) Int64() int64   { return int64(n.N) }
func (n *T) Uint16() uint16 { return uint16(n.N) }

// Marshal appends the decimal ASCII form of the value to dst.
func (n *T) Marshal(dst []byte) (b []byte) {
	b = dst
	if n.N == 0 {
		b = append(b, '0')
		return
	}
	var scratch [20]byte
	i := len(scratch)
	for v := n.N; v > 0; v /= 10 {
		i--
		scratch[i] = byte('0' + v%10)
	}
	b = append(b, scratch[i:]...)
	return
}

// Unmarshal reads a positive integer no larger than math.MaxUint64, skipping
// any non-numeric bytes before it. A leading zero terminates the number, so
// zero-padded values do not parse as their unpadded equivalent.
func (n *T) Unmarshal(b []byte) (r []byte, err error) {
	if len(b) < 1 {
		err = errorf.E("zero length number")
		return
	}
	if b[0] == '0' {
		r = b[1:]
		n.N = 0
		return
	}
	for i := range b {
		if b[i] >= '0' && b[i] <= '9' {
			b = b[i:]
			break
		}
	}
	if len(b) == 0 {
		err = io.EOF
		return
	}
	var l int
	for l < len(b) && b[l] >= '0' && b[l] <= '9' {
		l++
	}
	if l == 0 {
		err = errorf.E("zero length number")
		return
	}
	if l > 20 {
		err = errorf.E("too big number for uint64")
		return
	}
	r = b[l:]
	n.N = 0
	for _, ch := range b[:l] {
		n.N = n.N*10 + uint64(ch-'0')
	}
	return
}
