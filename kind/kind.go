// Package kind is the event classification number and the semantics hung off
// it by the protocol: which ranges are ephemeral or replaceable, and which
// kinds carry encrypted payloads only their parties should read.
package kind

import (
	"relix.lol/ints"
)

// T is the event kind number.
type T struct {
	K uint16
}

func New[V uint16 | uint32 | int32 | int](k V) (ki *T) { return &T{uint16(k)} }

func (k *T) ToInt() int {
	if k == nil {
		return 0
	}
	return int(k.K)
}

func (k *T) ToU16() uint16 {
	if k == nil {
		return 0
	}
	return k.K
}

func (k *T) ToU64() uint64 {
	if k == nil {
		return 0
	}
	return uint64(k.K)
}

func (k *T) Equal(k2 *T) bool { return k.K == k2.K }

// Marshal appends the decimal kind number to dst.
func (k *T) Marshal(dst []byte) (b []byte) {
	return ints.New(k.ToU64()).Marshal(dst)
}

// Unmarshal reads a decimal kind number and returns the remainder.
func (k *T) Unmarshal(b []byte) (r []byte, err error) {
	n := ints.New(0)
	if r, err = n.Unmarshal(b); err != nil {
		return
	}
	k.K = n.Uint16()
	return
}

var (
	ProfileMetadata        = New(0)
	TextNote               = New(1)
	FollowList             = New(3)
	EncryptedDirectMessage = New(4)
	Deletion               = New(5)
	Repost                 = New(6)
	Reaction               = New(7)
	Seal                   = New(13)
	PrivateDirectMessage   = New(14)
	GiftWrap               = New(1059)
	Relays                 = New(10002)
	ClientAuthentication   = New(22242)
	ApplicationSpecificData = New(30078)
)

var names = map[uint16]string{
	0:     "profile metadata",
	1:     "text note",
	3:     "follow list",
	4:     "encrypted direct message",
	5:     "deletion",
	6:     "repost",
	7:     "reaction",
	13:    "seal",
	14:    "private direct message",
	1059:  "gift wrap",
	10002: "relay list",
	22242: "client authentication",
	30078: "application specific data",
}

// Name returns the protocol name of well known kinds, empty otherwise.
func (k *T) Name() string { return names[k.ToU16()] }

// privileged kinds are messages between parties that only those parties
// should be able to retrieve.
var privileged = []*T{
	EncryptedDirectMessage, Seal, PrivateDirectMessage, GiftWrap,
	ApplicationSpecificData,
}

func (k *T) IsPrivileged() (is bool) {
	for i := range privileged {
		if k.Equal(privileged[i]) {
			return true
		}
	}
	return
}

// IsEphemeral means relays broadcast the event but do not store it.
func (k *T) IsEphemeral() bool { return k.K >= 20000 && k.K < 30000 }

// IsReplaceable means relays keep only the newest event of this kind per
// pubkey.
func (k *T) IsReplaceable() bool {
	return k.K == 0 || k.K == 3 || (k.K >= 10000 && k.K < 20000)
}

// IsParameterizedReplaceable means relays keep only the newest per pubkey
// and d tag value.
func (k *T) IsParameterizedReplaceable() bool {
	return k.K >= 30000 && k.K < 40000
}
