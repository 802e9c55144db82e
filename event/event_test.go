package event

import (
	"bytes"
	"testing"

	"relix.lol/chk"
	"relix.lol/kind"
	"relix.lol/p256k"
	"relix.lol/tags"
	"relix.lol/timestamp"
)

// a small corpus of minified events in the field order produced by Marshal.
// The ids, pubkeys and sigs are length-correct placeholders, the codec does
// not validate them cryptographically.
var corpus = []string{
	`{"id":"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff","pubkey":"ff00112233445566778899aabbccddeeff00112233445566778899aabbccddee","created_at":1700000000,"kind":1,"tags":[],"content":"hello","sig":"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"}`,
	`{"id":"a9c0d9d8a2b3f4e5c6d7e8f9a0b1c2d3b1946ac92492d2347c6235b4d2611184","pubkey":"c6d7e8f9a0b1c2d3b1946ac92492d234a9c0d9d8a2b3f4e57c6235b4d2611184","created_at":1725000000,"kind":30023,"tags":[["d","article-1"],["title","Escaping \" and \\ in titles"],["t","dev"]],"content":"line one\nline two\ttabbed","sig":"a9c0d9d8a2b3f4e5c6d7e8f9a0b1c2d3b1946ac92492d2347c6235b4d2611184a9c0d9d8a2b3f4e5c6d7e8f9a0b1c2d3b1946ac92492d2347c6235b4d2611184"}`,
	`{"id":"1111111111111111111111111111111111111111111111111111111111111111","pubkey":"2222222222222222222222222222222222222222222222222222222222222222","created_at":1681234567,"kind":0,"tags":[],"content":"{\"name\":\"alice\",\"about\":\"tester\"}","sig":"33333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333333"}`,
	`{"id":"4444444444444444444444444444444444444444444444444444444444444444","pubkey":"5555555555555555555555555555555555555555555555555555555555555555","created_at":1699999999,"kind":7,"tags":[["e","00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff","wss://relay.example.com"],["p","ff00112233445566778899aabbccddeeff00112233445566778899aabbccddee"]],"content":"🔥","sig":"66666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666666"}`,
	`{"id":"7777777777777777777777777777777777777777777777777777777777777777","pubkey":"8888888888888888888888888888888888888888888888888888888888888888","created_at":1690000000,"kind":4,"tags":[["p","9999999999999999999999999999999999999999999999999999999999999999"]],"content":"unicode escape é stays as it came","sig":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}`,
	`{"id":"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb","pubkey":"cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc","created_at":1,"kind":20000,"tags":[],"content":"","sig":"dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"}`,
}

func TestTMarshalUnmarshal(t *testing.T) {
	var rem, out []byte
	var err error
	for _, l := range corpus {
		b := []byte(l)
		c := make([]byte, 0, len(b))
		c = append(c, b...)
		ea := New()
		if rem, err = ea.Unmarshal(b); chk.E(err) {
			t.Fatal(err)
		}
		if len(rem) != 0 {
			t.Fatalf("some of input remaining after unmarshal: '%s'", rem)
		}
		out = ea.Marshal(out)
		if !bytes.Equal(out, c) {
			t.Fatalf("mismatched output\n%s\n\n%s\n", c, out)
		}
		out = out[:0]
	}
}

func TestTUnmarshalAnyOrder(t *testing.T) {
	// the same event with its keys rearranged parses to the same canonical
	// form
	shuffled := `{"content":"hello","kind":1,"tags":[],"pubkey":"ff00112233445566778899aabbccddeeff00112233445566778899aabbccddee","id":"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff","sig":"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff","created_at":1700000000}`
	var err error
	ea, eb := New(), New()
	if _, err = ea.Unmarshal([]byte(shuffled)); chk.E(err) {
		t.Fatal(err)
	}
	if _, err = eb.Unmarshal([]byte(corpus[0])); chk.E(err) {
		t.Fatal(err)
	}
	if !bytes.Equal(ea.Marshal(nil), eb.Marshal(nil)) {
		t.Fatalf("key order changed the decoded event:\n%s\n%s",
			ea.Marshal(nil), eb.Marshal(nil))
	}
}

func TestTUnmarshalRejects(t *testing.T) {
	var err error
	bad := []string{
		// truncated
		`{"id":"00112233445566778899aabbccddeeff00112233445566778899aab`,
		// short id
		`{"id":"0011","pubkey":"ff00112233445566778899aabbccddeeff00112233445566778899aabbccddee","created_at":1700000000,"kind":1,"tags":[],"content":"hello","sig":"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"}`,
		// unknown key
		`{"bogus":"hello"}`,
	}
	for _, l := range bad {
		ea := New()
		if _, err = ea.Unmarshal([]byte(l)); err == nil {
			t.Fatalf("accepted malformed event: %s", l)
		}
	}
}

func TestTSignVerify(t *testing.T) {
	var err error
	sign := new(p256k.Signer)
	if err = sign.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	var ev *T
	for range 100 {
		if ev, err = GenerateRandomTextNoteEvent(sign, 1000); chk.E(err) {
			t.Fatal(err)
		}
		var valid bool
		if valid, err = ev.Verify(); chk.E(err) {
			t.Fatal(err)
		}
		if !valid {
			t.Fatalf("invalid signature\n%s", ev.Serialize())
		}
	}
}

func TestTVerifyTamper(t *testing.T) {
	var err error
	sign := new(p256k.Signer)
	if err = sign.InitSec(bytes.Repeat([]byte{0x01}, 32)); chk.E(err) {
		t.Fatal(err)
	}
	ev := &T{
		CreatedAt: timestamp.FromUnix(1700000000),
		Kind:      kind.TextNote,
		Tags:      tags.New(),
		Content:   []byte("hello"),
	}
	if err = ev.Sign(sign); chk.E(err) {
		t.Fatal(err)
	}
	// the canonical form is fully determined by the five signed fields
	canonical := ev.ToCanonical(nil)
	if !bytes.HasPrefix(canonical, []byte("[0,\"")) ||
		!bytes.HasSuffix(canonical,
			[]byte("\",1700000000,1,[],\"hello\"]")) {
		t.Fatalf("unexpected canonical form: %s", canonical)
	}
	if !ev.CheckId() {
		t.Fatal("freshly signed event fails the Id check")
	}
	var valid bool
	if valid, err = ev.Verify(); chk.E(err) {
		t.Fatal(err)
	}
	if !valid {
		t.Fatalf("fresh signature did not verify\n%s", ev.Serialize())
	}
	// identical input signs to the identical Id
	ev2 := &T{
		CreatedAt: timestamp.FromUnix(1700000000),
		Kind:      kind.TextNote,
		Tags:      tags.New(),
		Content:   []byte("hello"),
	}
	if err = ev2.Sign(sign); chk.E(err) {
		t.Fatal(err)
	}
	if !bytes.Equal(ev.Id, ev2.Id) {
		t.Fatalf("same input produced different Ids: %0x %0x", ev.Id, ev2.Id)
	}
	// flipping one bit of the content must break verification
	ev.Content[0] ^= 0x01
	if valid, _ = ev.Verify(); valid {
		t.Fatal("verified after the content was altered")
	}
	ev.Content[0] ^= 0x01
	if valid, err = ev.Verify(); chk.E(err) {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("restored event no longer verifies")
	}
}

func TestTCheckSignature(t *testing.T) {
	// the deprecated direct library path must agree with the signer path
	var err error
	sign := new(p256k.Signer)
	if err = sign.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	var ev *T
	if ev, err = GenerateRandomTextNoteEvent(sign, 1000); chk.E(err) {
		t.Fatal(err)
	}
	var valid bool
	if valid, err = ev.CheckSignature(); chk.E(err) {
		t.Fatal(err)
	}
	if !valid {
		t.Fatalf("CheckSignature rejects an event Verify accepts\n%s",
			ev.Serialize())
	}
}

func TestTWhitespaceFallback(t *testing.T) {
	var err error
	sign := new(p256k.Signer)
	if err = sign.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	var ev *T
	if ev, err = GenerateRandomTextNoteEvent(sign, 1000); chk.E(err) {
		t.Fatal(err)
	}
	pretty := ev.MarshalPretty(nil)
	if !bytes.ContainsRune(pretty, '\n') {
		t.Fatal("MarshalPretty produced no linebreaks")
	}
	eb := New()
	if _, err = eb.Unmarshal(pretty); chk.E(err) {
		t.Fatal(err)
	}
	if !bytes.Equal(ev.Marshal(nil), eb.Marshal(nil)) {
		t.Fatalf("pretty form decoded differently:\n%s\n%s",
			ev.Marshal(nil), eb.Marshal(nil))
	}
	var valid bool
	if valid, err = eb.Verify(); chk.E(err) {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("event no longer verifies after the pretty round trip")
	}
}
