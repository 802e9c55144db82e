// Package tag implements one tag of an event: an ordered list of string
// fields where the first is the key, the second the value, and for a few
// well known keys the third a relay hint.
package tag

import (
	"bytes"

	"relix.lol/errorf"
	"relix.lol/text"
)

// T is a single tag.
type T struct {
	field [][]byte
}

func New[V string | []byte](fields ...V) (t *T) {
	t = &T{field: make([][]byte, len(fields))}
	for i, f := range fields {
		t.field[i] = []byte(f)
	}
	return
}

func NewWithCap(c int) *T { return &T{make([][]byte, 0, c)} }

func FromBytesSlice(fields ...[]byte) (t *T) { return &T{field: fields} }

// S returns the field at i as a string, empty when out of range.
func (t *T) S(i int) (s string) {
	if t == nil || i >= len(t.field) {
		return
	}
	return string(t.field[i])
}

// B returns the field at i, nil when out of range.
func (t *T) B(i int) (b []byte) {
	if t == nil || i >= len(t.field) {
		return
	}
	return t.field[i]
}

func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.field)
}

func (t *T) Less(i, j int) bool { return bytes.Compare(t.field[i], t.field[j]) < 0 }

func (t *T) Swap(i, j int) { t.field[i], t.field[j] = t.field[j], t.field[i] }

func (t *T) Append(b ...[]byte) (tt *T) {
	t.field = append(t.field, b...)
	return t
}

func (t *T) Clear() { t.field = t.field[:0] }

func (t *T) Clone() (c *T) {
	c = &T{field: make([][]byte, len(t.field))}
	for i := range t.field {
		c.field[i] = make([]byte, len(t.field[i]))
		copy(c.field[i], t.field[i])
	}
	return
}

func (t *T) ToSliceOfBytes() (b [][]byte) {
	if t == nil {
		return [][]byte{}
	}
	return t.field
}

func (t *T) ToStringSlice() (b []string) {
	b = make([]string, 0, len(t.field))
	for i := range t.field {
		b = append(b, string(t.field[i]))
	}
	return
}

// StartsWith reports whether the fields of prefix all match this tag.
func (t *T) StartsWith(prefix *T) bool {
	if prefix.Len() > t.Len() {
		return false
	}
	for i := range prefix.field {
		if !bytes.Equal(prefix.field[i], t.field[i]) {
			return false
		}
	}
	return true
}

// Key returns the first field of the tag.
func (t *T) Key() []byte {
	if t.Len() > 0 {
		return t.field[0]
	}
	return nil
}

// Value returns the second field of the tag.
func (t *T) Value() []byte {
	if t.Len() > 1 {
		return t.field[1]
	}
	return nil
}

// Relay returns the third field of an e or p tag, the relay hint.
func (t *T) Relay() (s []byte) {
	if (bytes.Equal(t.Key(), []byte("e")) ||
		bytes.Equal(t.Key(), []byte("p"))) && t.Len() > 2 {
		return t.field[2]
	}
	return
}

func (t *T) Contains(s []byte) bool {
	if t == nil {
		return false
	}
	for i := range t.field {
		if bytes.Equal(t.field[i], s) {
			return true
		}
	}
	return false
}

func (t *T) Equal(ta *T) bool {
	if t == nil || ta == nil {
		return t.Len() == ta.Len()
	}
	if len(t.field) != len(ta.field) {
		return false
	}
	for i := range t.field {
		if !bytes.Equal(t.field[i], ta.field[i]) {
			return false
		}
	}
	return true
}

// Marshal appends the tag as a JSON array of strings to dst.
func (t *T) Marshal(dst []byte) (b []byte) {
	b = append(dst, '[')
	if t != nil {
		for i, f := range t.field {
			if i > 0 {
				b = append(b, ',')
			}
			b = text.AppendQuote(b, f, text.Escape)
		}
	}
	b = append(b, ']')
	return
}

// Unmarshal decodes a minified JSON array of strings and returns the
// remainder after the closing bracket.
func (t *T) Unmarshal(b []byte) (r []byte, err error) {
	if len(b) == 0 || b[0] != '[' {
		err = errorf.E("tag: expected opening bracket, got '%s'", b)
		return
	}
	t.field = t.field[:0]
	var inQuotes bool
	var start int
	for i := 1; i < len(b); i++ {
		if inQuotes {
			if b[i] == '\\' && i+1 < len(b) {
				i++
			} else if b[i] == '"' {
				inQuotes = false
				t.field = append(t.field, text.Unescape(b[start:i]))
			}
			continue
		}
		switch b[i] {
		case '"':
			inQuotes, start = true, i+1
		case ']':
			r = b[i+1:]
			return
		case ',', ' ':
		default:
			err = errorf.E("tag: unexpected character '%c' outside quotes",
				b[i])
			return
		}
	}
	if inQuotes {
		err = errorf.E("tag: unclosed quote")
		return
	}
	err = errorf.E("tag: unclosed bracket")
	return
}
