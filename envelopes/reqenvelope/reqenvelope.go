// Package reqenvelope defines the message a client sends to open a
// subscription, a subscription Id and one or more filters.
package reqenvelope

import (
	"io"

	"relix.lol/chk"
	"relix.lol/codec"
	"relix.lol/envelopes"
	"relix.lol/filters"
	"relix.lol/subscription"
	"relix.lol/text"
)

const L = "REQ"

type T struct {
	Subscription *subscription.Id
	Filters      *filters.T
}

var _ codec.Envelope = (*T)(nil)

func New() *T {
	return &T{Subscription: subscription.NewStd(), Filters: filters.New()}
}

func NewFrom(id *subscription.Id, ff *filters.T) *T {
	return &T{Subscription: id, Filters: ff}
}

func (en *T) Label() string { return L }

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
			for _, f := range en.Filters.F {
				o = append(o, ',')
				o = f.Marshal(o)
			}
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
	if r, err = text.Comma(r); chk.E(err) {
		return
	}
	en.Filters = filters.New()
	if r, err = en.Filters.Unmarshal(r); chk.E(err) {
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
