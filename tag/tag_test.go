package tag

import (
	"testing"

	"lukechampine.com/frand"

	"relix.lol/chk"
)

func TestMarshalUnmarshal(t *testing.T) {
	var b, rem []byte
	var err error
	for _ = range 100000 {
		n := frand.Intn(8)
		tg := NewWithCap(n)
		for _ = range n {
			f := make([]byte, frand.Intn(40)+2)
			_, _ = frand.Read(f)
			tg = tg.Append(f)
		}
		b = tg.Marshal(b)
		bb := make([]byte, len(b))
		copy(bb, b)
		ta := &T{}
		if rem, err = ta.Unmarshal(b); chk.E(err) {
			t.Fatal(err)
		}
		if len(rem) != 0 {
			t.Fatalf("leftover '%s'", rem)
		}
		bc := ta.Marshal(nil)
		if string(bb) != string(bc) {
			t.Fatalf("got\n%s\nwant\n%s\n", bc, bb)
		}
		b = b[:0]
	}
}

func TestKeyValue(t *testing.T) {
	tg := New("e", "anid", "wss://relay.example.com")
	if string(tg.Key()) != "e" {
		t.Fatalf("got key '%s'", tg.Key())
	}
	if string(tg.Value()) != "anid" {
		t.Fatalf("got value '%s'", tg.Value())
	}
	if string(tg.Relay()) != "wss://relay.example.com" {
		t.Fatalf("got relay '%s'", tg.Relay())
	}
	if tg.Relay() != nil && !tg.StartsWith(New("e", "anid")) {
		t.Fatal("prefix must match")
	}
	if New("p", "x").Relay() != nil {
		t.Fatal("two field tag has no relay hint")
	}
}

func TestNilSafety(t *testing.T) {
	var tg *T
	if tg.Len() != 0 || tg.Key() != nil || tg.Contains([]byte("x")) {
		t.Fatal("nil tag accessors must be safe")
	}
	b := tg.Marshal(nil)
	if string(b) != "[]" {
		t.Fatalf("got %s", b)
	}
}
