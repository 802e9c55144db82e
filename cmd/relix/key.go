package main

import (
	"fmt"
	"strings"

	"relix.lol/bech32encoding"
	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/hex"
	"relix.lol/keys"
)

type keyCmd struct {
	Gen  *keyGenCmd  `arg:"subcommand:gen" help:"generate a new keypair"`
	Pub  *keyPubCmd  `arg:"subcommand:pub" help:"derive the public encodings of a secret key"`
	Npub *keyNpubCmd `arg:"subcommand:npub" help:"convert a public key between hex and npub"`
	Nsec *keyNsecCmd `arg:"subcommand:nsec" help:"convert a secret key between hex and nsec"`
}

type keyGenCmd struct{}

type keyPubCmd struct {
	Key string `arg:"positional" help:"nsec or hex secret key, empty uses SECRET_KEY"`
}

type keyNpubCmd struct {
	Key string `arg:"positional,required" help:"hex or npub public key"`
}

type keyNsecCmd struct {
	Key string `arg:"positional,required" help:"hex or nsec secret key"`
}

func runKey(cfg *C, kc *keyCmd) (err error) {
	switch {
	case kc.Gen != nil:
		return printKey(keys.GenerateSecretKeyHex())
	case kc.Pub != nil:
		in := kc.Pub.Key
		if in == "" {
			in = cfg.SecretKey
		}
		var skb []byte
		if skb, err = parseSecretKey(in); chk.E(err) {
			return
		}
		return printKey(hex.Enc(skb))
	case kc.Npub != nil:
		return printConverted(kc.Npub.Key, "npub",
			bech32encoding.NpubToHex, bech32encoding.HexToNpub)
	case kc.Nsec != nil:
		return printConverted(kc.Nsec.Key, "nsec",
			bech32encoding.NsecToHex, bech32encoding.HexToNsec)
	}
	return errorf.E("key needs a subcommand: gen, pub, npub or nsec")
}

// printConverted flips a key between its hex and bech32 encodings,
// whichever way the input reads.
func printConverted(in, hrp string, toHex,
	fromHex func(string) (string, error)) (err error) {

	var out string
	switch {
	case strings.HasPrefix(in, hrp):
		out, err = toHex(in)
	case keys.IsValid32ByteHex(in):
		out, err = fromHex(in)
	default:
		return errorf.E("%q is neither hex nor %s", in, hrp)
	}
	if chk.E(err) {
		return
	}
	fmt.Println(out)
	return
}

func printKey(sec string) (err error) {
	var pub string
	if pub, err = keys.GetPublicKeyHex(sec); chk.E(err) {
		return
	}
	var nsec, npub string
	if nsec, err = bech32encoding.HexToNsec(sec); chk.E(err) {
		return
	}
	if npub, err = bech32encoding.HexToNpub(pub); chk.E(err) {
		return
	}
	fmt.Printf("sec  %s\nnsec %s\npub  %s\nnpub %s\n", sec, nsec, pub, npub)
	return
}
