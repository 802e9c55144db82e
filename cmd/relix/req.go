package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"relix.lol/bech32encoding"
	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/filter"
	"relix.lol/filters"
	"relix.lol/hex"
	"relix.lol/keys"
	"relix.lol/kinds"
	"relix.lol/timestamp"
	"relix.lol/ws"
)

type reqCmd struct {
	Authors []string `arg:"-a,--author,separate" help:"author pubkey, hex or npub, repeatable"`
	Kinds   []int    `arg:"-k,--kind,separate" help:"event kind number, repeatable"`
	Ids     []string `arg:"-i,--id,separate" help:"event id, hex or note, repeatable"`
	Since   int64    `help:"unix seconds, only events at or after this time"`
	Until   int64    `help:"unix seconds, only events at or before this time"`
	Limit   uint     `arg:"-l,--limit" help:"at most this many stored events per relay"`
	Stream  bool     `arg:"-s,--stream" help:"keep listening after the stored events arrive"`
	Relays  []string `arg:"-r,--relay,separate" help:"relay url, repeatable, overrides RELAYS"`
}

// buildFilter translates the command flags into a query filter. Keys and
// ids are accepted in hex or bech32 and stored in their binary form.
func buildFilter(rc *reqCmd) (f *filter.T, err error) {
	f = filter.New()
	for _, a := range rc.Authors {
		var pkb []byte
		switch {
		case strings.HasPrefix(a, "npub"):
			if pkb, err = bech32encoding.NpubToBin(a); chk.E(err) {
				return
			}
		case keys.IsValid32ByteHex(a):
			if pkb, err = hex.Dec(a); chk.E(err) {
				return
			}
		default:
			err = errorf.E("author %q is neither hex nor npub", a)
			return
		}
		f.Authors.Append(pkb)
	}
	for _, i := range rc.Ids {
		var idb []byte
		switch {
		case strings.HasPrefix(i, "note"):
			if idb, err = bech32encoding.NoteToBin(i); chk.E(err) {
				return
			}
		case keys.IsValid32ByteHex(i):
			if idb, err = hex.Dec(i); chk.E(err) {
				return
			}
		default:
			err = errorf.E("id %q is neither hex nor note", i)
			return
		}
		f.IDs.Append(idb)
	}
	if len(rc.Kinds) > 0 {
		f.Kinds = kinds.FromIntSlice(rc.Kinds)
	}
	if rc.Since > 0 {
		f.Since = timestamp.FromUnix(rc.Since)
	}
	if rc.Until > 0 {
		f.Until = timestamp.FromUnix(rc.Until)
	}
	if rc.Limit > 0 {
		l := rc.Limit
		f.Limit = &l
	}
	return
}

func relayList(cfg *C, override []string) (urls []string, err error) {
	urls = override
	if len(urls) == 0 {
		urls = cfg.Relays
	}
	if len(urls) == 0 {
		err = errorf.E("no relays: pass --relay or set RELAYS")
	}
	return
}

func runReq(c context.Context, cfg *C, rc *reqCmd) (err error) {
	var urls []string
	if urls, err = relayList(cfg, rc.Relays); chk.E(err) {
		return
	}
	var f *filter.T
	if f, err = buildFilter(rc); chk.E(err) {
		return
	}
	pool := ws.NewPool(c)
	defer pool.Close()
	var ps *ws.PoolSub
	if rc.Stream {
		if ps, err = pool.Subscribe(c, urls, filters.New(f)); chk.E(err) {
			return
		}
	} else {
		ctx, cancel := context.WithTimeout(c,
			time.Duration(cfg.Timeout)*time.Second)
		defer cancel()
		if ps, err = pool.SubscribeEose(ctx, urls,
			filters.New(f)); chk.E(err) {
			return
		}
	}
	defer ps.Unsub()
	for ev := range ps.Events {
		fmt.Printf("%s\n", ev.Marshal(nil))
	}
	return
}
