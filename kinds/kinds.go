// Package kinds is an ordered collection of kind numbers, as appears in the
// kinds field of a query filter.
package kinds

import (
	"relix.lol/kind"
)

type T struct {
	K []*kind.T
}

func New(k ...*kind.T) *T { return &T{k} }

func NewWithCap(c int) *T { return &T{make([]*kind.T, 0, c)} }

func FromIntSlice(is []int) (k *T) {
	k = &T{}
	for i := range is {
		k.K = append(k.K, kind.New(is[i]))
	}
	return
}

func (k *T) Len() (l int) {
	if k == nil {
		return
	}
	return len(k.K)
}

func (k *T) Less(i, j int) bool { return k.K[i].K < k.K[j].K }

func (k *T) Swap(i, j int) { k.K[i], k.K[j] = k.K[j], k.K[i] }

func (k *T) ToUint16() (o []uint16) {
	for i := range k.K {
		o = append(o, k.K[i].ToU16())
	}
	return
}

func (k *T) Clone() (c *T) {
	c = &T{K: make([]*kind.T, len(k.K))}
	for i := range k.K {
		c.K[i] = k.K[i]
	}
	return
}

// Contains reports whether the collection includes the given kind.
func (k *T) Contains(s *kind.T) bool {
	for i := range k.K {
		if k.K[i].Equal(s) {
			return true
		}
	}
	return false
}

func (k *T) Equals(t1 *T) bool {
	if k.Len() != t1.Len() {
		return false
	}
	for i := range k.K {
		if !k.K[i].Equal(t1.K[i]) {
			return false
		}
	}
	return true
}

// Marshal appends a JSON array of kind numbers to dst.
func (k *T) Marshal(dst []byte) (b []byte) {
	b = dst
	b = append(b, '[')
	for i := range k.K {
		if i > 0 {
			b = append(b, ',')
		}
		b = k.K[i].Marshal(b)
	}
	b = append(b, ']')
	return
}

// Unmarshal reads a JSON array of kind numbers and returns the remainder.
func (k *T) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	for len(r) > 0 {
		switch r[0] {
		case '[', ',':
			r = r[1:]
			if len(r) > 0 && r[0] == ']' {
				r = r[1:]
				return
			}
			ki := kind.New(0)
			if r, err = ki.Unmarshal(r); err != nil {
				return
			}
			k.K = append(k.K, ki)
		case ']':
			r = r[1:]
			return
		default:
			r = r[1:]
		}
	}
	return
}
