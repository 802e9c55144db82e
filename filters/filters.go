// Package filters is a set of tools for working with lists of nostr filters,
// as found in subscription requests, where an event matching any one of the
// list is a match for the list.
package filters

import (
	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/filter"
)

// T is a wrapper around an array of pointers to filter.T.
type T struct {
	F []*filter.T
}

// New creates a new filters.T out of a variadic list of filter.T.
func New(ff ...*filter.T) (f *T) { return &T{F: ff} }

// Make a new filters.T with a fixed number of unfilled slots.
func Make(l int) *T { return &T{F: make([]*filter.T, l)} }

// Len returns the number of elements in a filters.T.
func (f *T) Len() int {
	if f == nil {
		return 0
	}
	return len(f.F)
}

// GetFingerprints returns the fingerprint digests of every filter in the
// list.
func (f *T) GetFingerprints() (fps []uint64, err error) {
	for _, ff := range f.F {
		var fp uint64
		if fp, err = ff.Fingerprint(); chk.E(err) {
			continue
		}
		fps = append(fps, fp)
	}
	return
}

// Match reports whether any filter in the list matches the event.
func (f *T) Match(ev *event.T) bool {
	if f == nil {
		return false
	}
	for _, ff := range f.F {
		if ff.Matches(ev) {
			return true
		}
	}
	return false
}

// String returns the canonical encoded form of the list.
func (f *T) String() (s string) { return string(f.Marshal(nil)) }

// Marshal the list as a JSON array of filter objects appended to dst.
func (f *T) Marshal(dst []byte) (b []byte) {
	b = dst
	b = append(b, '[')
	end := len(f.F) - 1
	for i := range f.F {
		b = f.F[i].Marshal(b)
		if i < end {
			b = append(b, ',')
		}
	}
	b = append(b, ']')
	return
}

// Unmarshal a list of filters in JSON (minified) form and append them to the
// provided filters.T.
//
// The input can be a bracketed array, as Marshal produces, or the bare comma
// separated objects found inside a subscription request envelope. In the bare
// form the terminating bracket belongs to the envelope and is left in the
// remainder for the caller.
func (f *T) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	if len(r) < 1 {
		err = errorf.E("cannot unmarshal empty filter list")
		return
	}
	var bracketed bool
	for len(r) > 0 {
		switch r[0] {
		case '[':
			bracketed = true
			r = r[1:]
		case '{':
			ff := filter.New()
			if r, err = ff.Unmarshal(r); chk.E(err) {
				return
			}
			f.F = append(f.F, ff)
		case ',':
			r = r[1:]
		case ']':
			if bracketed {
				r = r[1:]
			}
			return
		default:
			// tolerate whitespace between elements
			r = r[1:]
		}
	}
	return
}

// GenFilters creates an arbitrary number of fake filters for tests.
func GenFilters(n int) (ff *T, err error) {
	ff = &T{}
	for range n {
		var f *filter.T
		if f, err = filter.GenFilter(); chk.E(err) {
			return
		}
		ff.F = append(ff.F, f)
	}
	return
}
