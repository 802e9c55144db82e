package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"relix.lol/bech32encoding"
	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/hex"
	"relix.lol/keys"
	"relix.lol/kind"
	"relix.lol/log"
	"relix.lol/p256k"
	"relix.lol/tags"
	"relix.lol/timestamp"
	"relix.lol/ws"
)

type postCmd struct {
	Content string   `arg:"-c,--content" help:"text of the note, - or empty reads stdin"`
	Sec     string   `arg:"--sec" help:"secret key, nsec or hex, overrides SECRET_KEY"`
	Relays  []string `arg:"-r,--relay,separate" help:"relay url, repeatable, overrides RELAYS"`
}

func parseSecretKey(s string) (skb []byte, err error) {
	switch {
	case s == "":
		err = errorf.E("no secret key: set SECRET_KEY or run 'key gen'")
	case strings.HasPrefix(s, "nsec"):
		skb, err = bech32encoding.NsecToBin(s)
	case keys.IsValid32ByteHex(s):
		skb, err = hex.Dec(s)
	default:
		err = errorf.E("secret key is neither nsec nor 64 character hex")
	}
	return
}

func runPost(c context.Context, cfg *C, pc *postCmd) (err error) {
	var urls []string
	if urls, err = relayList(cfg, pc.Relays); chk.E(err) {
		return
	}
	sec := pc.Sec
	if sec == "" {
		sec = cfg.SecretKey
	}
	var skb []byte
	if skb, err = parseSecretKey(sec); chk.E(err) {
		return
	}
	sign := &p256k.Signer{}
	if err = sign.InitSec(skb); chk.E(err) {
		return
	}
	content := pc.Content
	if content == "" || content == "-" {
		var b []byte
		if b, err = io.ReadAll(os.Stdin); chk.E(err) {
			return
		}
		content = strings.TrimSpace(string(b))
	}
	if content == "" {
		err = errorf.E("refusing to post an empty note")
		return
	}
	ev := &event.T{
		Pubkey:    sign.Pub(),
		CreatedAt: timestamp.Now(),
		Kind:      kind.TextNote,
		Tags:      tags.New(),
		Content:   []byte(content),
	}
	if err = ev.Sign(sign); chk.E(err) {
		return
	}
	ctx, cancel := context.WithTimeout(c,
		time.Duration(cfg.Timeout)*time.Second)
	defer cancel()
	pool := ws.NewPool(ctx)
	defer pool.Close()
	for _, u := range urls {
		if _, e := pool.Ensure(u); e != nil {
			log.W.F("cannot reach %s: %v", u, e)
		}
	}
	accepted := 0
	for pr := range pool.Publish(ctx, ev) {
		switch {
		case pr.Err != nil:
			fmt.Printf("%s: error: %v\n", pr.Relay.URL(), pr.Err)
		case pr.OK:
			accepted++
			fmt.Printf("%s: accepted\n", pr.Relay.URL())
		default:
			fmt.Printf("%s: rejected: %s\n", pr.Relay.URL(), pr.Reason)
		}
	}
	if accepted == 0 {
		err = errorf.E("no relay accepted event %s", ev.IdString())
		return
	}
	fmt.Printf("%s accepted by %d of %d relays\n",
		ev.IdString(), accepted, len(urls))
	return
}
