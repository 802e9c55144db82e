// Package eoseenvelope provides an encoder for the EOSE (End Of Stored
// Events) message that signifies a REQ has returned all stored events and
// from here on the request morphs into a live subscription, until CLOSE or
// CLOSED.
package eoseenvelope

import (
	"io"

	"relix.lol/chk"
	"relix.lol/codec"
	"relix.lol/envelopes"
	"relix.lol/subscription"
)

const L = "EOSE"

type T struct {
	Subscription *subscription.Id
}

var _ codec.Envelope = (*T)(nil)

func New() *T                        { return &T{Subscription: subscription.NewStd()} }
func NewFrom(id *subscription.Id) *T { return &T{Subscription: id} }
func (en *T) Label() string          { return L }

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
