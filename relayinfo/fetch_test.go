package relayinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	doc := `{
		"name": "test relay",
		"description": "fixture",
		"pubkey": "deadbeef",
		"supported_nips": [1, 11, 42],
		"software": "relix-test",
		"version": "0",
		"limitation": {
			"max_subscriptions": 20,
			"auth_required": true,
			"payment_required": false
		}
	}`
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotAccept = r.Header.Get("Accept")
			w.Header().Set("Content-Type", "application/nostr+json")
			_, _ = w.Write([]byte(doc))
		}))
	defer srv.Close()
	// the websocket form of the url must be converted for the http probe
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	info, err := Fetch(context.Background(), wsURL)
	if err != nil {
		t.Fatal(err)
	}
	if gotAccept != "application/nostr+json" {
		t.Fatalf("sent Accept %q", gotAccept)
	}
	if info.Name != "test relay" {
		t.Fatalf("name = %q", info.Name)
	}
	if _, ok := info.Nips.HasNumber(42); !ok {
		t.Fatal("supported nips lost 42")
	}
	if info.Limitation == nil || !info.Limitation.AuthRequired {
		t.Fatal("limitation block lost")
	}
	if info.Limitation.MaxSubscriptions != 20 {
		t.Fatalf("max subscriptions = %d", info.Limitation.MaxSubscriptions)
	}
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "no", http.StatusNotFound)
		}))
	defer srv.Close()
	if _, err := Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("a 404 must not parse as an information document")
	}
}

func TestAddSupportedNIP(t *testing.T) {
	ri := &T{}
	for _, n := range []int{42, 1, 11, 42, 1} {
		ri.AddSupportedNIP(n)
	}
	want := NIPs{1, 11, 42}
	if len(ri.Nips) != len(want) {
		t.Fatalf("got %v, want %v", ri.Nips, want)
	}
	for i := range want {
		if ri.Nips[i] != want[i] {
			t.Fatalf("got %v, want %v", ri.Nips, want)
		}
	}
	if idx, ok := ri.Nips.HasNumber(11); !ok || idx != 1 {
		t.Fatalf("HasNumber(11) = %d, %v", idx, ok)
	}
	if idx, ok := ri.Nips.HasNumber(2); ok || idx != 1 {
		t.Fatalf("HasNumber(2) = %d, %v", idx, ok)
	}
}
