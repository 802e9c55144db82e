package event

import (
	"bytes"

	"relix.lol/hex"
	"relix.lol/text"
)

// ToCanonical converts the event to the canonical encoding used to derive the
// event Id, the form `[0,pubkey,created_at,kind,tags,content]` minified with
// the pubkey hex encoded and the content escaped.
func (ev *T) ToCanonical(dst []byte) (b []byte) {
	b = dst
	b = append(b, "[0,\""...)
	b = hex.EncAppend(b, ev.Pubkey)
	b = append(b, "\","...)
	b = ev.CreatedAt.Marshal(b)
	b = append(b, ',')
	b = ev.Kind.Marshal(b)
	b = append(b, ',')
	b = ev.Tags.Marshal(b)
	b = append(b, ',')
	b = text.AppendQuote(b, ev.Content, text.Escape)
	b = append(b, ']')
	return
}

// GetIDBytes returns the SHA256 hash of the canonical form of the event,
// which is the raw value of the event Id.
func (ev *T) GetIDBytes() []byte { return Hash(ev.ToCanonical(nil)) }

// CheckId reconstructs the canonical form, hashes it and compares the result
// to the event Id, returning true if they match.
func (ev *T) CheckId() bool { return bytes.Equal(ev.Id, ev.GetIDBytes()) }
