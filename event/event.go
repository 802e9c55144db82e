// Package event provides the primary datatype used in the protocol, the
// event, which is a cryptographically signed message with a kind number,
// timestamp, tags and arbitrary content.
package event

import (
	"encoding/base64"

	"relix.lol/chk"
	"relix.lol/eventid"
	"relix.lol/hex"
	"relix.lol/kind"
	"relix.lol/sha256"
	"relix.lol/signer"
	"relix.lol/tag"
	"relix.lol/tags"
	"relix.lol/timestamp"

	"lukechampine.com/frand"
)

// T is the primary datatype of the protocol, an event.
//
// The ordering of the fields is the same as they appear in the canonical
// form, except the Id, which is the hash of the canonical form, and the Sig,
// which signs the Id.
type T struct {

	// Id is the SHA256 hash of the canonical encoding of the event in binary
	// format
	Id []byte

	// Pubkey is the public key of the event creator in binary format
	Pubkey []byte

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt *timestamp.T

	// Kind is the nostr protocol code for the type of event. See kind.T
	Kind *kind.T

	// Tags are a list of tags, which are a list of strings usually structured
	// as a 3 layer scheme indicating specific features of an event.
	Tags *tags.T

	// Content is an arbitrary string that can contain anything, but usually
	// conforming to a specification relating to the Kind and the Tags.
	Content []byte

	// Sig is the signature on the Id hash that validates as coming from the
	// Pubkey in binary format.
	Sig []byte
}

// Ts is an array of T sorted in reverse chronological order.
type Ts []*T

func (ev Ts) Len() int { return len(ev) }
func (ev Ts) Less(i, j int) bool {
	return ev[i].CreatedAt.I64() > ev[j].CreatedAt.I64()
}
func (ev Ts) Swap(i, j int) { ev[i], ev[j] = ev[j], ev[i] }

// C is a channel that carries T (event).
type C chan *T

// New makes a new event.T, and allocates the Tags so they can be written.
func New() (ev *T) { return &T{Tags: tags.New()} }

// Serialize renders an event.T into minified JSON.
func (ev *T) Serialize() (b []byte) { return ev.Marshal(nil) }

// EventId returns the event Id as an eventid.T.
func (ev *T) EventId() (eid *eventid.T) { return eventid.NewWith(ev.Id) }

// IdString returns the event Id as a hexadecimal encoded string.
func (ev *T) IdString() (s string) { return ev.EventId().String() }

// J is an intermediary format as found in most client libraries, which work
// from the standard library JSON encoding of events. It is used to accept the
// human readable, whitespace containing form of events.
type J struct {
	Id        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int32      `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ToEventJ converts an event.T to the intermediary form J.
func (ev *T) ToEventJ() (j *J) {
	j = &J{
		Id:        hex.Enc(ev.Id),
		Pubkey:    hex.Enc(ev.Pubkey),
		CreatedAt: ev.CreatedAt.I64(),
		Kind:      int32(ev.Kind.K),
		Tags:      ev.Tags.ToStringSlice(),
		Content:   string(ev.Content),
		Sig:       hex.Enc(ev.Sig),
	}
	return
}

// ToEvent converts the intermediary form J to the native event.T.
func (e J) ToEvent() (ev *T, err error) {
	ev = &T{
		CreatedAt: timestamp.FromUnix(e.CreatedAt),
		Kind:      kind.New(e.Kind),
		Content:   []byte(e.Content),
		Tags:      tags.NewWithCap(len(e.Tags)),
	}
	if ev.Id, err = hex.Dec(e.Id); chk.E(err) {
		return
	}
	if ev.Pubkey, err = hex.Dec(e.Pubkey); chk.E(err) {
		return
	}
	if ev.Sig, err = hex.Dec(e.Sig); chk.E(err) {
		return
	}
	for _, t := range e.Tags {
		ev.Tags.AppendTags(tag.New(t...))
	}
	return
}

// Hash is a little helper generate a hash and return a slice instead of an
// array.
func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// GenerateRandomTextNoteEvent creates a generic event with random content for
// testing purposes.
func GenerateRandomTextNoteEvent(sign signer.I, maxSize int) (ev *T,
	err error) {

	l := frand.Intn(maxSize * 6 / 8) // account for base64 expansion
	ev = &T{
		Kind:      kind.TextNote,
		CreatedAt: timestamp.Now(),
		Content:   []byte(base64.StdEncoding.EncodeToString(frand.Bytes(l))),
		Tags:      tags.New(),
	}
	if err = ev.Sign(sign); chk.E(err) {
		return
	}
	return
}
