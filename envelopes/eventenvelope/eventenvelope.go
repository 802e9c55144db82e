// Package eventenvelope defines the two forms of EVENT message, the
// submission form a client sends to a relay, and the result form a relay
// sends back carrying the subscription Id the event matched.
package eventenvelope

import (
	"io"

	"relix.lol/chk"
	"relix.lol/codec"
	"relix.lol/envelopes"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/subscription"
)

const L = "EVENT"

// Submission is a request from a client for a relay to store an event.
type Submission struct {
	*event.T
}

var _ codec.Envelope = (*Submission)(nil)

func NewSubmission() *Submission                { return &Submission{T: &event.T{}} }
func NewSubmissionWith(ev *event.T) *Submission { return &Submission{T: ev} }
func (en *Submission) Label() string            { return L }

func (en *Submission) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

func (en *Submission) Marshal(dst []byte) (b []byte) {
	b = dst
	b = envelopes.Marshal(b, L, en.T.Marshal)
	return
}

func (en *Submission) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	en.T = event.New()
	if r, err = en.T.Unmarshal(r); chk.T(err) {
		return
	}
	if r, err = envelopes.SkipToTheEnd(r); chk.E(err) {
		return
	}
	return
}

func ParseSubmission(b []byte) (t *Submission, rem []byte, err error) {
	t = NewSubmission()
	if rem, err = t.Unmarshal(b); chk.E(err) {
		return
	}
	return
}

// Result is an event matching a filter associated with a subscription.
type Result struct {
	Subscription *subscription.Id
	Event        *event.T
}

var _ codec.Envelope = (*Result)(nil)

func NewResult() *Result { return &Result{Event: &event.T{}} }

func NewResultWith[V string | []byte](s V, ev *event.T) (res *Result,
	err error) {

	if len(s) < 1 || len(s) > 64 {
		err = errorf.E("subscription id must be length > 0 and <= 64")
		return
	}
	return &Result{subscription.MustNew(s), ev}, nil
}

func (en *Result) Label() string { return L }

func (en *Result) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

func (en *Result) Marshal(dst []byte) (b []byte) {
	b = dst
	b = envelopes.Marshal(b, L,
		func(bst []byte) (o []byte) {
			o = bst
			o = en.Subscription.Marshal(o)
			o = append(o, ',')
			o = en.Event.Marshal(o)
			return
		})
	return
}

func (en *Result) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	en.Subscription = subscription.MustNew("")
	if r, err = en.Subscription.Unmarshal(r); chk.E(err) {
		return
	}
	if !en.Subscription.IsValid() {
		err = errorf.E("invalid subscription id in event envelope: %q",
			en.Subscription)
		return
	}
	en.Event = event.New()
	if r, err = en.Event.Unmarshal(r); chk.E(err) {
		return
	}
	if r, err = envelopes.SkipToTheEnd(r); chk.E(err) {
		return
	}
	return
}

func ParseResult(b []byte) (t *Result, rem []byte, err error) {
	t = NewResult()
	if rem, err = t.Unmarshal(b); chk.E(err) {
		return
	}
	return
}
