// Package timestamp handles the one second precision unix timestamps events
// are dated with.
package timestamp

import (
	"time"

	"relix.lol/ints"
)

// T is a unix timestamp in seconds.
type T int64

func New() (t *T) {
	tt := T(0)
	return &tt
}

// Now returns the current second as a timestamp.
func Now() *T {
	tt := T(time.Now().Unix())
	return &tt
}

func (t *T) U64() uint64     { return uint64(*t) }
func (t *T) I64() int64      { return int64(*t) }
func (t *T) Int() int        { return int(*t) }
func (t *T) Time() time.Time { return time.Unix(int64(*t), 0) }

// FromTime truncates a time.Time to a timestamp.
func FromTime(t time.Time) *T {
	tt := T(t.Unix())
	return &tt
}

// FromUnix wraps an int64 unix timestamp.
func FromUnix(t int64) *T {
	tt := T(t)
	return &tt
}

func (t *T) String() string { return string(t.Marshal(nil)) }

// Marshal appends the decimal form to dst.
func (t *T) Marshal(dst []byte) (b []byte) {
	return ints.New(t.U64()).Marshal(dst)
}

// Unmarshal reads a decimal timestamp and returns the remainder.
func (t *T) Unmarshal(b []byte) (r []byte, err error) {
	n := ints.New(0)
	if r, err = n.Unmarshal(b); err != nil {
		return
	}
	*t = T(n.Uint64())
	return
}
