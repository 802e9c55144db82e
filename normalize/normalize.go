// Package normalize turns the addresses users type into canonical relay
// websocket URLs.
package normalize

import (
	"bytes"
	"net/url"

	"relix.lol/chk"
	"relix.lol/ints"
	"relix.lol/log"
)

var (
	hp    = bytes.HasPrefix
	WS    = []byte("ws://")
	WSS   = []byte("wss://")
	HTTP  = []byte("http://")
	HTTPS = []byte("https://")
)

// URL normalizes a relay address.
//
// - Adds wss:// to addresses without a port, or with port 443, that have no
// protocol prefix
//
// - Adds ws:// to addresses with any other port
//
// - Converts http/s to ws/s
//
// Malformed addresses produce nil, this function does not return an error.
func URL[V string | []byte](v V) (b []byte) {
	u := []byte(v)
	if len(u) == 0 {
		return nil
	}
	u = bytes.TrimSpace(u)
	u = bytes.ToLower(u)
	// if the address has a port number it is probably a local or development
	// relay, public relays have a domain name and a well known port 80 or
	// 443 and thus no port number.
	//
	// if a protocol prefix is present, assume it is already complete.
	// Converting http/s to the websocket equivalent is done later anyway.
	if bytes.Contains(u, []byte(":")) &&
		!(hp(u, HTTP) || hp(u, HTTPS) || hp(u, WS) || hp(u, WSS)) {

		split := bytes.Split(u, []byte(":"))
		if len(split) != 2 {
			log.D.F("more than one ':' in URL: '%s'", u)
			return
		}
		p := ints.New(0)
		_, err := p.Unmarshal(split[1])
		if chk.E(err) {
			log.D.F("error normalizing URL '%s': %s", u, err)
			return
		}
		if p.Uint64() > 65535 {
			log.D.F("port on address %d: greater than maximum 65535",
				p.Uint64())
			return
		}
		// an explicit port 443 must be a secure websocket, drop the port.
		// Any other explicit port is assumed to be a plain text websocket.
		if p.Uint16() == 443 {
			u = append(WSS, split[0]...)
		} else {
			u = append(WS, u...)
		}
	}

	// if the prefix isn't specified as http/s or websocket, assume secure
	// websocket and add the wss prefix (this is the most common).
	if !(hp(u, HTTP) || hp(u, HTTPS) || hp(u, WS) || hp(u, WSS)) {
		u = append(WSS, u...)
	}
	var err error
	var p *url.URL
	if p, err = url.Parse(string(u)); chk.E(err) {
		return
	}
	// convert http/s to ws/s
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	// remove trailing path slash
	p.Path = string(bytes.TrimRight([]byte(p.Path), "/"))
	return []byte(p.String())
}

// HTTPURL normalizes an address for fetching relay information documents.
//
// - Adds https:// to addresses without a port, or with port 443, that have
// no protocol prefix
//
// - Adds http:// to addresses with any other port
//
// - Converts ws/s to http/s
func HTTPURL[V string | []byte](v V) (b []byte) {
	u := URL(v)
	if len(u) == 0 {
		return
	}
	var err error
	var p *url.URL
	if p, err = url.Parse(string(u)); chk.E(err) {
		return
	}
	switch p.Scheme {
	case "wss":
		p.Scheme = "https"
	case "ws":
		p.Scheme = "http"
	}
	return []byte(p.String())
}
