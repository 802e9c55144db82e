// Package tags is the ordered list of tags attached to an event. It is a
// list, not a set: order and duplicates are preserved, which the content
// address depends on.
package tags

import (
	"sort"

	"relix.lol/chk"
	"relix.lol/tag"
)

type T struct {
	t []*tag.T
}

func New(fields ...*tag.T) (t *T) { return &T{t: fields} }

func NewWithCap(c int) (t *T) { return &T{t: make([]*tag.T, 0, c)} }

// F returns the underlying list.
func (t *T) F() (tt []*tag.T) {
	if t == nil {
		return
	}
	return t.t
}

// N returns the tag at index i, an empty tag when out of range.
func (t *T) N(i int) (tt *tag.T) {
	if t == nil || len(t.t) <= i {
		return tag.NewWithCap(0)
	}
	return t.t[i]
}

func (t *T) Len() (l int) {
	if t == nil {
		return
	}
	return len(t.t)
}

func (t *T) Less(i, j int) bool {
	var k int
	for k < t.t[i].Len() && k < t.t[j].Len() {
		if t.t[i].S(k) < t.t[j].S(k) {
			return true
		}
		if t.t[i].S(k) > t.t[j].S(k) {
			return false
		}
		k++
	}
	return t.t[i].Len() < t.t[j].Len()
}

func (t *T) Swap(i, j int) { t.t[i], t.t[j] = t.t[j], t.t[i] }

func (t *T) ToStringSlice() (b [][]string) {
	b = make([][]string, 0, len(t.t))
	for i := range t.t {
		b = append(b, t.t[i].ToStringSlice())
	}
	return
}

func (t *T) Clone() (c *T) {
	c = &T{t: make([]*tag.T, len(t.t))}
	for i, field := range t.t {
		c.t[i] = field.Clone()
	}
	return
}

// Equal compares as sets: both sides are sorted before comparing.
func (t *T) Equal(ta *T) bool {
	if t.Len() != ta.Len() {
		return false
	}
	t1, t2 := t.Clone(), ta.Clone()
	sort.Sort(t1)
	sort.Sort(t2)
	for i := range t1.t {
		if !t1.t[i].Equal(t2.t[i]) {
			return false
		}
	}
	return true
}

// GetFirst returns the first tag that starts with the prefix fields.
func (t *T) GetFirst(prefix *tag.T) *tag.T {
	for _, v := range t.t {
		if v.StartsWith(prefix) {
			return v
		}
	}
	return nil
}

// GetAll returns every tag that starts with the prefix fields.
func (t *T) GetAll(prefix *tag.T) *T {
	result := NewWithCap(2)
	for _, v := range t.t {
		if v.StartsWith(prefix) {
			result.t = append(result.t, v)
		}
	}
	return result
}

// AppendUnique appends a tag unless an equal one is already present.
func (t *T) AppendUnique(tg *tag.T) *T {
	for i := range t.t {
		if t.t[i].Equal(tg) {
			return t
		}
	}
	t.t = append(t.t, tg)
	return t
}

func (t *T) AppendTags(tt ...*tag.T) *T {
	t.t = append(t.t, tt...)
	return t
}

// ContainsAny reports whether any tag with the given key has a value in
// values, as used for matching tag constrained filters.
func (t *T) ContainsAny(key []byte, values *tag.T) bool {
	if t == nil {
		return false
	}
	for _, v := range t.t {
		if v.Len() < 2 {
			continue
		}
		if string(v.Key()) != string(key) {
			continue
		}
		for _, candidate := range values.ToSliceOfBytes() {
			if string(v.Value()) == string(candidate) {
				return true
			}
		}
	}
	return false
}

// Marshal appends the JSON array of arrays form to dst.
func (t *T) Marshal(dst []byte) (b []byte) {
	b = append(dst, '[')
	if t != nil {
		for i, tt := range t.t {
			if i > 0 {
				b = append(b, ',')
			}
			b = tt.Marshal(b)
		}
	}
	b = append(b, ']')
	return
}

// Unmarshal decodes the JSON array of arrays form and returns the remainder.
func (t *T) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	for len(r) > 0 {
		switch r[0] {
		case '[':
			if len(r) > 1 && r[1] == ']' {
				r = r[2:]
				return
			}
			r = r[1:]
			tt := tag.NewWithCap(4)
			if r, err = tt.Unmarshal(r); chk.E(err) {
				return
			}
			t.t = append(t.t, tt)
		case ',':
			r = r[1:]
			tt := tag.NewWithCap(4)
			if r, err = tt.Unmarshal(r); chk.E(err) {
				return
			}
			t.t = append(t.t, tt)
		case ']':
			r = r[1:]
			return
		default:
			r = r[1:]
		}
	}
	return
}
