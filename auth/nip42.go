// Package auth builds and checks the kind 22242 response events a client
// sends to answer a relay's AUTH challenge.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"relix.lol/chk"
	"relix.lol/event"
	"relix.lol/kind"
	"relix.lol/log"
	"relix.lol/tag"
	"relix.lol/tags"
	"relix.lol/timestamp"
)

var ChallengeTag = []byte("challenge")
var RelayTag = []byte("relay")

// GenerateChallenge creates a 16 character base64 challenge string from 12
// random bytes.
func GenerateChallenge() (b []byte) {
	bb := make([]byte, 12)
	b = make([]byte, 16)
	_, _ = rand.Read(bb)
	base64.StdEncoding.Encode(b, bb)
	return
}

// CreateUnsigned creates the event to be sent in an AUTH response. If the
// authentication succeeds, the user is authenticated as pubkey. The caller
// signs it, which also stamps the Id and Sig.
func CreateUnsigned(pubkey, challenge []byte, relayURL string) (ev *event.T) {
	return &event.T{
		Pubkey:    pubkey,
		CreatedAt: timestamp.Now(),
		Kind:      kind.ClientAuthentication,
		Tags: tags.New(tag.New("relay", relayURL),
			tag.New(string(ChallengeTag), string(challenge))),
	}
}

// helper function for Validate.
func parseURL(input string) (*url.URL, error) {
	return url.Parse(
		strings.ToLower(
			strings.TrimSuffix(input, "/"),
		),
	)
}

// Validate checks whether evt is a well formed response for the given
// challenge and relayURL: correct kind, exact challenge tag, matching relay
// URL, a created_at within ten minutes of now, and a valid signature. The
// verdict is in the ok bool.
func Validate(evt *event.T, challenge []byte, relayURL string) (ok bool,
	err error) {

	if evt.Kind == nil || evt.Kind.K != kind.ClientAuthentication.K {
		err = log.E.Err("event incorrect kind for auth")
		return
	}
	if evt.Tags == nil ||
		evt.Tags.GetFirst(tag.New(ChallengeTag, challenge)) == nil {
		err = log.E.Err("challenge tag missing from auth response")
		return
	}
	var expected, found *url.URL
	if expected, err = parseURL(relayURL); chk.D(err) {
		return
	}
	relayTag := evt.Tags.GetFirst(tag.New(string(RelayTag)))
	if relayTag == nil || len(relayTag.Value()) == 0 {
		err = log.E.Err("relay tag missing from auth response")
		return
	}
	if found, err = parseURL(string(relayTag.Value())); chk.D(err) {
		err = log.E.Err("error parsing relay url: %s", err)
		return
	}
	if expected.Scheme != found.Scheme {
		err = log.E.Err("HTTP scheme incorrect: expected '%s' got '%s'",
			expected.Scheme, found.Scheme)
		return
	}
	if expected.Host != found.Host {
		err = log.E.Err("HTTP host incorrect: expected '%s' got '%s'",
			expected.Host, found.Host)
		return
	}
	if expected.Path != found.Path {
		err = log.E.Err("HTTP path incorrect: expected '%s' got '%s'",
			expected.Path, found.Path)
		return
	}
	if evt.CreatedAt == nil {
		err = log.E.Err("auth response missing created_at")
		return
	}
	now := time.Now()
	if evt.CreatedAt.Time().After(now.Add(10*time.Minute)) ||
		evt.CreatedAt.Time().Before(now.Add(-10*time.Minute)) {
		err = log.E.Err(
			"auth event more than 10 minutes before or after current time")
		return
	}
	// save for last, as it is the most expensive operation
	return evt.Verify()
}
