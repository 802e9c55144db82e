// Package relayinfo fetches and represents the capability document relays
// publish over HTTP, the NIP-11 information document. Clients use it to
// learn limits and policies before, or instead of, opening a websocket.
package relayinfo

// T is the information document. Relays omit fields freely, so everything
// is optional.
type T struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Pubkey         string   `json:"pubkey"`
	Contact        string   `json:"contact"`
	Nips           NIPs     `json:"supported_nips"`
	Software       string   `json:"software"`
	Version        string   `json:"version"`
	Limitation     *Limits  `json:"limitation,omitempty"`
	RelayCountries []string `json:"relay_countries,omitempty"`
	LanguageTags   []string `json:"language_tags,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	PostingPolicy  string   `json:"posting_policy,omitempty"`
	PaymentsURL    string   `json:"payments_url,omitempty"`
	Fees           *Fees    `json:"fees,omitempty"`
	Icon           string   `json:"icon,omitempty"`
}

// Limits describes the operational limits of a relay.
type Limits struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	MaxSubscriptions int  `json:"max_subscriptions,omitempty"`
	MaxFilters       int  `json:"max_filters,omitempty"`
	MaxLimit         int  `json:"max_limit,omitempty"`
	MaxSubidLength   int  `json:"max_subid_length,omitempty"`
	MaxEventTags     int  `json:"max_event_tags,omitempty"`
	MaxContentLength int  `json:"max_content_length,omitempty"`
	MinPowDifficulty int  `json:"min_pow_difficulty,omitempty"`
	AuthRequired     bool `json:"auth_required"`
	PaymentRequired  bool `json:"payment_required"`
	RestrictedWrites bool `json:"restricted_writes,omitempty"`
}

// NIPs is a sorted list of supported NIP numbers.
type NIPs []int

// HasNumber reports whether n is present, and the index where it is or
// where it belongs.
func (nn NIPs) HasNumber(n int) (idx int, exists bool) {
	for idx = range nn {
		if nn[idx] == n {
			return idx, true
		}
		if nn[idx] > n {
			return idx, false
		}
	}
	return len(nn), false
}

// AddSupportedNIP inserts a NIP number, keeping the list sorted.
func (ri *T) AddSupportedNIP(n int) {
	idx, exists := ri.Nips.HasNumber(n)
	if exists {
		return
	}
	ri.Nips = append(ri.Nips, -1)
	copy(ri.Nips[idx+1:], ri.Nips[idx:])
	ri.Nips[idx] = n
}

// Admission is the cost of opening an account with a relay.
type Admission struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

// Subscription is the cost of keeping an account open for a specified
// period of time.
type Subscription struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
	Period int    `json:"period"`
}

// Publication is the cost and restrictions on storing events on a relay.
type Publication []struct {
	Kinds  []int  `json:"kinds"`
	Amount int    `json:"amount"`
	Unit   string `json:"unit"`
}

// Fees defines the fee structure used for a paid relay.
type Fees struct {
	Admission    []Admission    `json:"admission,omitempty"`
	Subscription []Subscription `json:"subscription,omitempty"`
	Publication  []Publication  `json:"publication,omitempty"`
}
