package text

import (
	"bytes"
	"testing"

	"lukechampine.com/frand"

	"relix.lol/chk"
)

func TestEscapeUnescape(t *testing.T) {
	for _ = range 10000 {
		src := frand.Bytes(frand.Intn(120) + 1)
		esc := Escape(nil, src)
		cp := make([]byte, len(esc))
		copy(cp, esc)
		unesc := Unescape(cp)
		if !bytes.Equal(unesc, src) {
			t.Fatalf("round trip failed\nsrc %x\nesc %s\ngot %x", src, esc,
				unesc)
		}
	}
}

func TestEscapeControls(t *testing.T) {
	src := []byte("a\"b\\c\bd\te\nf\fg\rh")
	want := `a\"b\\c\bd\te\nf\fg\rh`
	esc := Escape(nil, src)
	if string(esc) != want {
		t.Fatalf("got %s want %s", esc, want)
	}
	if got := Unescape(esc); !bytes.Equal(got, src) {
		t.Fatalf("got %x want %x", got, src)
	}
}

func TestUnmarshalQuoted(t *testing.T) {
	b := []byte(`"hello \"world\"",rest`)
	content, rem, err := UnmarshalQuoted(b)
	if chk.E(err) {
		t.Fatal(err)
	}
	if string(content) != `hello "world"` {
		t.Fatalf("got '%s'", content)
	}
	if string(rem) != ",rest" {
		t.Fatalf("got rem '%s'", rem)
	}
	if _, _, err = UnmarshalQuoted([]byte("\"raw\ttab\"")); err == nil {
		t.Fatal("control code inside string must fail")
	}
}

func TestUnmarshalHexArray(t *testing.T) {
	var ha [][]byte
	for _ = range 8 {
		ha = append(ha, frand.Bytes(32))
	}
	b := MarshalHexArray(nil, ha)
	got, rem, err := UnmarshalHexArray(b, 32)
	if chk.E(err) {
		t.Fatal(err)
	}
	if len(rem) != 0 {
		t.Fatalf("leftover '%s'", rem)
	}
	for i := range ha {
		if !bytes.Equal(got[i], ha[i]) {
			t.Fatalf("element %d differs", i)
		}
	}
	if _, _, err = UnmarshalHexArray([]byte(`["abcd"]`), 32); err == nil {
		t.Fatal("wrong size hex must fail")
	}
}

func TestUnmarshalBool(t *testing.T) {
	rem, truth, err := UnmarshalBool([]byte("true,x"))
	if chk.E(err) {
		t.Fatal(err)
	}
	if !truth || string(rem) != ",x" {
		t.Fatalf("got %v rem '%s'", truth, rem)
	}
	if _, truth, err = UnmarshalBool([]byte("false]")); chk.E(err) {
		t.Fatal(err)
	}
	if truth {
		t.Fatal("got true want false")
	}
}
