// Package authenvelope defines the auth challenge (relay message) and
// response (client message) of the authentication protocol.
package authenvelope

import (
	"io"

	"relix.lol/chk"
	"relix.lol/codec"
	envs "relix.lol/envelopes"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/text"
)

const L = "AUTH"

type Challenge struct {
	Challenge []byte
}

var _ codec.Envelope = (*Challenge)(nil)

func NewChallenge() *Challenge { return &Challenge{} }

func NewChallengeWith[V string | []byte](challenge V) *Challenge {
	return &Challenge{[]byte(challenge)}
}

func (en *Challenge) Label() string { return L }

func (en *Challenge) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

func (en *Challenge) Marshal(dst []byte) (b []byte) {
	b = dst
	b = envs.Marshal(b, L,
		func(bst []byte) (o []byte) {
			o = bst
			o = append(o, '"')
			o = text.Escape(o, en.Challenge)
			o = append(o, '"')
			return
		})
	return
}

func (en *Challenge) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	if en.Challenge, r, err = text.UnmarshalQuoted(r); chk.E(err) {
		return
	}
	if r, err = envs.SkipToTheEnd(r); chk.E(err) {
		return
	}
	return
}

func ParseChallenge(b []byte) (t *Challenge, rem []byte, err error) {
	t = NewChallenge()
	if rem, err = t.Unmarshal(b); chk.E(err) {
		return
	}
	return
}

type Response struct {
	Event *event.T
}

var _ codec.Envelope = (*Response)(nil)

func NewResponse() *Response                   { return &Response{} }
func NewResponseWith(event *event.T) *Response { return &Response{Event: event} }
func (en *Response) Label() string             { return L }

func (en *Response) Write(w io.Writer) (err error) {
	_, err = w.Write(en.Marshal(nil))
	return
}

func (en *Response) Marshal(dst []byte) (b []byte) {
	if en == nil || en.Event == nil {
		chk.E(errorf.E("nil event in auth response"))
		return dst
	}
	b = dst
	b = envs.Marshal(b, L, en.Event.Marshal)
	return
}

func (en *Response) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	// literally just unmarshal the event
	en.Event = event.New()
	if r, err = en.Event.Unmarshal(r); chk.E(err) {
		return
	}
	if r, err = envs.SkipToTheEnd(r); chk.E(err) {
		return
	}
	return
}

func ParseResponse(b []byte) (t *Response, rem []byte, err error) {
	t = NewResponse()
	if rem, err = t.Unmarshal(b); chk.E(err) {
		return
	}
	return
}
