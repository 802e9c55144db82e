// Package relix is a client-side engine for the nostr protocol: signed,
// content-addressed events, encrypted direct message payloads, and a
// multi-relay connection pool that merges many relay subscriptions into one
// deduplicated event stream.
package relix

// Version is reported by the relix command and in client handshakes.
const Version = "v0.4.2"

// Name is the canonical name of this module.
const Name = "relix"
