// Command relix is a command line client for the relay engine in this
// module: query relays for events, publish signed notes, and manage the
// keys that identify the client.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/pkg/profile"

	relix "relix.lol"
	"relix.lol/chk"
	"relix.lol/interrupt"
	"relix.lol/log"
	"relix.lol/lol"
)

type args struct {
	Req  *reqCmd  `arg:"subcommand:req" help:"query relays for events matching a filter"`
	Post *postCmd `arg:"subcommand:post" help:"sign a text note and publish it"`
	Key  *keyCmd  `arg:"subcommand:key" help:"generate keys and convert their encodings"`
	Env  *envCmd  `arg:"subcommand:env" help:"print the effective configuration as a .env file"`
}

type envCmd struct{}

func (args) Version() string { return relix.Name + " " + relix.Version }

func (args) Description() string {
	return "talks to nostr relays: publishes signed notes and merges query results from many relays into one stream"
}

func main() {
	var err error
	a := &args{}
	p := arg.MustParse(a)
	var cfg *C
	if cfg, err = NewConfig(); chk.T(err) {
		_, _ = fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		PrintHelp(cfg, os.Stderr)
		os.Exit(1)
	}
	lol.SetLogLevel(cfg.LogLevel)
	if cfg.Pprof {
		defer profile.Start(profile.MemProfile,
			profile.ProfilePath(cfg.Profile)).Stop()
	}
	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupt.AddHandler(cancel)
	switch {
	case a.Req != nil:
		err = runReq(c, cfg, a.Req)
	case a.Post != nil:
		err = runPost(c, cfg, a.Post)
	case a.Key != nil:
		err = runKey(cfg, a.Key)
	case a.Env != nil:
		PrintEnv(cfg, os.Stdout)
	default:
		p.WriteHelp(os.Stderr)
		PrintHelp(cfg, os.Stderr)
	}
	if err != nil {
		log.E.F("%v", err)
		os.Exit(1)
	}
}
