// Package filter is a codec for nostr filters (queries) and includes tools
// for matching them to events and a canonical serial form so the same set of
// constraints always produces the same bytes, enabling a compact fingerprint
// that identifies a filter regardless of the order its fields arrived in.
package filter

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"lukechampine.com/frand"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/hex"
	"relix.lol/ints"
	"relix.lol/kind"
	"relix.lol/kinds"
	"relix.lol/p256k"
	"relix.lol/sha256"
	"relix.lol/tag"
	"relix.lol/tags"
	"relix.lol/text"
	"relix.lol/timestamp"
)

// T is the primary query form for requesting events from a nostr relay.
//
// The protocol does not specify an ordering for the fields of a filter, but
// by applying a consistent sort order before encoding, this library produces
// identical JSON from the same set of fields no matter what order they were
// provided in. That makes an encoded filter usable as an identity for
// deduplicating subscriptions carrying an effectively identical match.
type T struct {
	IDs     *tag.T       `json:"ids,omitempty"`
	Kinds   *kinds.T     `json:"kinds,omitempty"`
	Authors *tag.T       `json:"authors,omitempty"`
	Tags    *tags.T      `json:"-,omitempty"`
	Since   *timestamp.T `json:"since,omitempty"`
	Until   *timestamp.T `json:"until,omitempty"`
	Search  []byte       `json:"search,omitempty"`
	Limit   *uint        `json:"limit,omitempty"`
}

// New creates a new, reasonably initialized filter that is ready for most
// uses without further allocations.
func New() (f *T) {
	return &T{
		IDs:     tag.NewWithCap(10),
		Kinds:   kinds.NewWithCap(10),
		Authors: tag.NewWithCap(10),
		Tags:    tags.New(),
	}
}

// Clone creates a deep copy of a filter. Nil fields stay nil so a clone
// encodes to the same bytes as its source.
func (f *T) Clone() (clone *T) {
	clone = &T{}
	if f.IDs != nil {
		clone.IDs = f.IDs.Clone()
	}
	if f.Kinds != nil {
		clone.Kinds = f.Kinds.Clone()
	}
	if f.Authors != nil {
		clone.Authors = f.Authors.Clone()
	}
	if f.Tags != nil {
		clone.Tags = f.Tags.Clone()
	}
	if f.Since != nil {
		s := *f.Since
		clone.Since = &s
	}
	if f.Until != nil {
		u := *f.Until
		clone.Until = &u
	}
	if len(f.Search) > 0 {
		clone.Search = make([]byte, len(f.Search))
		copy(clone.Search, f.Search)
	}
	if f.Limit != nil {
		l := *f.Limit
		clone.Limit = &l
	}
	return
}

var (
	// IDs is the JSON object key for IDs.
	IDs = []byte("ids")
	// Kinds is the JSON object key for Kinds.
	Kinds = []byte("kinds")
	// Authors is the JSON object key for Authors.
	Authors = []byte("authors")
	// Since is the JSON object key for Since.
	Since = []byte("since")
	// Until is the JSON object key for Until.
	Until = []byte("until")
	// Limit is the JSON object key for Limit.
	Limit = []byte("limit")
	// Search is the JSON object key for Search.
	Search = []byte("search")
)

func isAlpha(b byte) bool { return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' }

// Marshal a filter into raw JSON bytes, minified. The fields and their
// contents are sorted first so the same set of constraints always encodes to
// the same bytes.
func (f *T) Marshal(dst []byte) (b []byte) {
	var first bool
	f.Sort()
	dst = append(dst, '{')
	if f.IDs != nil && f.IDs.Len() > 0 {
		first = true
		dst = text.JSONKey(dst, IDs)
		dst = text.MarshalHexArray(dst, f.IDs.ToSliceOfBytes())
	}
	if f.Kinds.Len() > 0 {
		if first {
			dst = append(dst, ',')
		} else {
			first = true
		}
		dst = text.JSONKey(dst, Kinds)
		dst = f.Kinds.Marshal(dst)
	}
	if f.Authors.Len() > 0 {
		if first {
			dst = append(dst, ',')
		} else {
			first = true
		}
		dst = text.JSONKey(dst, Authors)
		dst = text.MarshalHexArray(dst, f.Authors.ToSliceOfBytes())
	}
	if f.Tags.Len() > 0 {
		// tag constraints nest the key with its values, one object key per
		// constraint:
		//
		//     {"#p":["<pubkey1>","<pubkey2>"],"#t":["hashtag","stuff"]}
		//
		for _, tg := range f.Tags.F() {
			if tg == nil || tg.Len() < 1 {
				continue
			}
			tKey := tg.B(0)
			// the key field must be '#' followed by one alpha character
			if len(tKey) != 2 || tKey[0] != '#' || !isAlpha(tKey[1]) {
				continue
			}
			values := tg.ToSliceOfBytes()[1:]
			if len(values) == 0 {
				continue
			}
			if first {
				dst = append(dst, ',')
			} else {
				first = true
			}
			dst = append(dst, '"', tKey[0], tKey[1], '"', ':')
			dst = append(dst, '[')
			for i, value := range values {
				dst = append(dst, '"')
				if tKey[1] == 'e' || tKey[1] == 'p' {
					// event and pubkey values are stored as binary 32 bytes
					dst = hex.EncAppend(dst, value)
				} else {
					dst = append(dst, value...)
				}
				dst = append(dst, '"')
				if i < len(values)-1 {
					dst = append(dst, ',')
				}
			}
			dst = append(dst, ']')
		}
	}
	if f.Since != nil && f.Since.U64() > 0 {
		if first {
			dst = append(dst, ',')
		} else {
			first = true
		}
		dst = text.JSONKey(dst, Since)
		dst = f.Since.Marshal(dst)
	}
	if f.Until != nil && f.Until.U64() > 0 {
		if first {
			dst = append(dst, ',')
		} else {
			first = true
		}
		dst = text.JSONKey(dst, Until)
		dst = f.Until.Marshal(dst)
	}
	if len(f.Search) > 0 {
		if first {
			dst = append(dst, ',')
		} else {
			first = true
		}
		dst = text.JSONKey(dst, Search)
		dst = text.AppendQuote(dst, f.Search, text.Escape)
	}
	if f.Limit != nil {
		if first {
			dst = append(dst, ',')
		} else {
			first = true
		}
		dst = text.JSONKey(dst, Limit)
		dst = ints.New(*f.Limit).Marshal(dst)
	}
	dst = append(dst, '}')
	b = dst
	return
}

// Serialize a filter.T into raw minified JSON bytes.
func (f *T) Serialize() (b []byte) { return f.Marshal(nil) }

// states of the unmarshaler
const (
	beforeOpen = iota
	openParen
	inKey
	inKV
	inVal
	betweenKV
	afterClose
)

// Unmarshal a filter from raw (minified) JSON bytes into the runtime format,
// returning whatever remains after the closing brace.
func (f *T) Unmarshal(b []byte) (r []byte, err error) {
	r = b
	var key []byte
	var state int
	for ; len(r) > 0; r = r[1:] {
		switch state {
		case beforeOpen:
			if r[0] == '{' {
				state = openParen
			}
		case openParen:
			if r[0] == '"' {
				state = inKey
			}
		case inKey:
			if r[0] == '"' {
				state = inKV
			} else {
				key = append(key, r[0])
			}
		case inKV:
			if r[0] == ':' {
				state = inVal
			}
		case inVal:
			if len(key) < 1 {
				goto invalid
			}
			switch key[0] {
			case '#':
				// tag constraint keys are # and one alpha character
				if len(key) != 2 || !isAlpha(key[1]) {
					err = errorf.E(
						"tag constraint key must be # and one alpha character: '%s'\n%s",
						key, b)
					return
				}
				k := make([]byte, len(key))
				copy(k, key)
				var ff [][]byte
				switch key[1] {
				case 'e', 'p':
					// e and p values must be 64 character hexadecimal
					if ff, r, err = text.UnmarshalHexArray(r,
						sha256.Size); chk.E(err) {
						return
					}
				default:
					// other tag values can be anything
					if ff, r, err = text.UnmarshalStringArray(r); chk.E(err) {
						return
					}
				}
				ff = append([][]byte{k}, ff...)
				f.Tags = f.Tags.AppendTags(tag.FromBytesSlice(ff...))
				state = betweenKV
			case IDs[0]:
				if !bytes.Equal(key, IDs) {
					goto invalid
				}
				var ff [][]byte
				if ff, r, err = text.UnmarshalHexArray(r, sha256.Size); chk.E(err) {
					return
				}
				f.IDs = tag.FromBytesSlice(ff...)
				state = betweenKV
			case Kinds[0]:
				if !bytes.Equal(key, Kinds) {
					goto invalid
				}
				f.Kinds = kinds.NewWithCap(0)
				if r, err = f.Kinds.Unmarshal(r); chk.E(err) {
					return
				}
				state = betweenKV
			case Authors[0]:
				if !bytes.Equal(key, Authors) {
					goto invalid
				}
				var ff [][]byte
				if ff, r, err = text.UnmarshalHexArray(r,
					schnorr.PubKeyBytesLen); chk.E(err) {
					return
				}
				f.Authors = tag.FromBytesSlice(ff...)
				state = betweenKV
			case Until[0]:
				if !bytes.Equal(key, Until) {
					goto invalid
				}
				u := ints.New(0)
				if r, err = u.Unmarshal(r); chk.E(err) {
					return
				}
				f.Until = timestamp.FromUnix(u.Int64())
				state = betweenKV
			case Limit[0]:
				if !bytes.Equal(key, Limit) {
					goto invalid
				}
				l := ints.New(0)
				if r, err = l.Unmarshal(r); chk.E(err) {
					return
				}
				u := uint(l.N)
				f.Limit = &u
				state = betweenKV
			case Search[0]:
				if len(key) < 2 {
					goto invalid
				}
				switch key[1] {
				case Search[1]:
					if !bytes.Equal(key, Search) {
						goto invalid
					}
					var txt []byte
					if txt, r, err = text.UnmarshalQuoted(r); chk.E(err) {
						return
					}
					f.Search = txt
					state = betweenKV
				case Since[1]:
					if !bytes.Equal(key, Since) {
						goto invalid
					}
					s := ints.New(0)
					if r, err = s.Unmarshal(r); chk.E(err) {
						return
					}
					f.Since = timestamp.FromUnix(s.Int64())
					state = betweenKV
				default:
					goto invalid
				}
			default:
				goto invalid
			}
			key = key[:0]
		case betweenKV:
			if r[0] == '}' {
				state = afterClose
			} else if r[0] == ',' {
				state = openParen
			} else if r[0] == '"' {
				state = inKey
			}
		}
		if len(r) == 0 {
			break
		}
		if r[0] == '}' {
			r = r[1:]
			return
		}
	}
	err = io.EOF
	return
invalid:
	err = errorf.E("invalid filter key,\n'%s'\n'%s'\n'%s'", string(b),
		string(b[:len(b)-len(r)]), string(r))
	return
}

// Matches checks a filter against an event and reports whether the event
// satisfies every constraint the filter carries. Every present field must
// match for a true result, and within a field any one value matching
// suffices.
func (f *T) Matches(ev *event.T) bool {
	if ev == nil {
		return false
	}
	if f.IDs.Len() > 0 && !f.IDs.Contains(ev.Id) {
		return false
	}
	if f.Kinds.Len() > 0 && !f.Kinds.Contains(ev.Kind) {
		return false
	}
	if f.Authors.Len() > 0 && !f.Authors.Contains(ev.Pubkey) {
		return false
	}
	if f.Tags.Len() > 0 && !f.matchesTags(ev) {
		return false
	}
	if f.Since != nil && f.Since.I64() != 0 &&
		(ev.CreatedAt == nil || ev.CreatedAt.I64() < f.Since.I64()) {
		return false
	}
	if f.Until != nil && f.Until.I64() != 0 &&
		(ev.CreatedAt == nil || ev.CreatedAt.I64() > f.Until.I64()) {
		return false
	}
	return true
}

// matchesTags requires every tag constraint to be satisfied by at least one
// of the event tags. The values of e and p constraints are held as binary so
// they are hex encoded before comparing with the event tag values.
func (f *T) matchesTags(ev *event.T) bool {
	for _, tg := range f.Tags.F() {
		if tg == nil || tg.Len() < 2 {
			continue
		}
		tKey := tg.B(0)
		if len(tKey) != 2 || tKey[0] != '#' {
			continue
		}
		values := tg.ToSliceOfBytes()[1:]
		if tKey[1] == 'e' || tKey[1] == 'p' {
			hexed := tag.NewWithCap(len(values))
			for _, v := range values {
				hexed = hexed.Append(hex.EncAppend(nil, v))
			}
			if !ev.Tags.ContainsAny(tKey[1:], hexed) {
				return false
			}
		} else if !ev.Tags.ContainsAny(tKey[1:], tag.FromBytesSlice(values...)) {
			return false
		}
	}
	return true
}

// Fingerprint returns an 8 byte truncated sha256 hash of the filter in the
// canonical form created by Marshal.
//
// The hash is generated with the Limit field removed, as the limit does not
// change what a filter matches, and it is zeroed when a subscription is
// renewed after the stored results have already been delivered.
func (f *T) Fingerprint() (fp uint64, err error) {
	lim := f.Limit
	f.Limit = nil
	var b []byte
	b = f.Marshal(b)
	h := sha256.Sum256(b)
	hb := h[:]
	fp = binary.LittleEndian.Uint64(hb)
	f.Limit = lim
	return
}

// Sort the fields of a filter so the same set of constraints produces the
// same encoding and thus the same fingerprint.
func (f *T) Sort() {
	if f.IDs != nil {
		sort.Sort(f.IDs)
	}
	if f.Kinds != nil {
		sort.Sort(f.Kinds)
	}
	if f.Authors != nil {
		sort.Sort(f.Authors)
	}
	if f.Tags != nil {
		sort.Sort(f.Tags)
	}
}

func arePointerValuesEqual[V comparable](a *V, b *V) bool {
	if a == nil && b == nil {
		return true
	}
	if a != nil && b != nil {
		return *a == *b
	}
	return false
}

// Equal checks a filter against another filter to see if they carry the same
// set of constraints. Both sides are sorted by the comparison.
func (f *T) Equal(b *T) bool {
	f.Sort()
	b.Sort()
	if !f.Kinds.Equals(b.Kinds) ||
		!f.IDs.Equal(b.IDs) ||
		!f.Authors.Equal(b.Authors) ||
		!f.Tags.Equal(b.Tags) ||
		!arePointerValuesEqual(f.Since, b.Since) ||
		!arePointerValuesEqual(f.Until, b.Until) ||
		!bytes.Equal(f.Search, b.Search) {
		return false
	}
	return true
}

// GenFilter is a testing tool that creates random arbitrary filters with
// every field populated.
func GenFilter() (f *T, err error) {
	f = New()
	n := frand.Intn(16)
	for range n {
		f.IDs = f.IDs.Append(frand.Bytes(sha256.Size))
	}
	n = frand.Intn(16)
	for range n {
		f.Kinds.K = append(f.Kinds.K, kind.New(frand.Intn(65535)))
	}
	n = frand.Intn(16)
	for range n {
		var s p256k.Signer
		if err = s.Generate(); chk.E(err) {
			return
		}
		f.Authors = f.Authors.Append(s.Pub())
	}
	for b := 'a'; b <= 'z'; b++ {
		l := frand.Intn(6)
		var idb [][]byte
		if b == 'e' || b == 'p' {
			for range l {
				idb = append(idb, frand.Bytes(sha256.Size))
			}
		} else {
			for range l {
				bb := frand.Bytes(frand.Intn(31) + 1)
				id := make([]byte, 0, len(bb)*2)
				id = hex.EncAppend(id, bb)
				idb = append(idb, id)
			}
		}
		idb = append([][]byte{{'#', byte(b)}}, idb...)
		f.Tags = f.Tags.AppendTags(tag.FromBytesSlice(idb...))
	}
	tn := timestamp.Now().I64()
	f.Since = timestamp.FromUnix(tn - int64(frand.Intn(10000)))
	f.Until = timestamp.Now()
	f.Search = []byte("token search text")
	return
}
