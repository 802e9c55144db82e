// Package closedenvelope defines the message a relay sends when it ends a
// subscription from its side, with a reason carrying a machine-readable
// prefix.
package closedenvelope

import (
	"io"

	"relix.lol/chk"
	"relix.lol/codec"
	"relix.lol/envelopes"
	"relix.lol/subscription"
	"relix.lol/text"
)

const L = "CLOSED"

type T struct {
	Subscription *subscription.Id
	Reason       []byte
}

var _ codec.Envelope = (*T)(nil)

func New() *T { return &T{Subscription: subscription.NewStd()} }

func NewFrom(id *subscription.Id, msg []byte) *T {
	return &T{Subscription: id, Reason: msg}
}

func (en *T) Label() string        { return L }
func (en *T) ReasonString() string { return string(en.Reason) }

func (en *T) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

func (en *T) Marshal(dst []byte) (b []byte) {
	b = dst
	b = envelopes.Marshal(b, L,
		func(bst []byte) (o []byte) {
			o = bst
			o = en.Subscription.Marshal(o)
			o = append(o, ',')
			o = append(o, '"')
			o = text.Escape(o, en.Reason)
			o = append(o, '"')
			return
		})
	return
}

func (en *T) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	en.Subscription = subscription.MustNew("")
	if r, err = en.Subscription.Unmarshal(r); chk.E(err) {
		return
	}
	if en.Reason, r, err = text.UnmarshalQuoted(r); chk.E(err) {
		return
	}
	if r, err = envelopes.SkipToTheEnd(r); chk.E(err) {
		return
	}
	return
}

func Parse(b []byte) (t *T, rem []byte, err error) {
	t = New()
	if rem, err = t.Unmarshal(b); chk.E(err) {
		return
	}
	return
}
