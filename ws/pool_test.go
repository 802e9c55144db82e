package ws

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"relix.lol/envelopes/eoseenvelope"
	"relix.lol/envelopes/okenvelope"
	"relix.lol/envelopes/reqenvelope"
	"relix.lol/event"
	"relix.lol/filter"
	"relix.lol/filters"
	"relix.lol/kind"
	"relix.lol/kinds"
	"relix.lol/normalize"
	"relix.lol/reason"
)

func sendEose(conn *websocket.Conn, req *reqenvelope.T) error {
	return websocket.Message.Send(conn,
		eoseenvelope.NewFrom(req.Subscription).Marshal(nil))
}

// storedHandler answers the first REQ with the given events and an EOSE,
// then keeps the connection open.
func storedHandler(t *testing.T, evs ...*event.T) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		req, err := readReq(conn)
		if err != nil {
			return
		}
		if err = sendStored(conn, req.Subscription.String(), evs...); err != nil {
			t.Error(err)
			return
		}
		if err = sendEose(conn, req); err != nil {
			t.Error(err)
			return
		}
		park(conn)
	}
}

func textNoteFilters() *filters.T {
	f := filter.New()
	f.Kinds = kinds.New(kind.TextNote)
	return filters.New(f)
}

func fastRetry() WithRelayOptions {
	return WithRelayOptions{WithRetry{
		Base: 20 * time.Millisecond, Max: 50 * time.Millisecond, Ceiling: 2,
	}}
}

func TestPoolDedup(t *testing.T) {
	sign := newSigner(t)
	shared := newNote(t, sign, "seen everywhere", 1700000010)
	only1 := newNote(t, sign, "only on one", 1700000011)
	only2 := newNote(t, sign, "only on two", 1700000012)
	srv1 := newWebsocketServer(storedHandler(t, shared, only1))
	defer srv1.Close()
	srv2 := newWebsocketServer(storedHandler(t, shared, only2))
	defer srv2.Close()
	var mu sync.Mutex
	delivered := 0
	pool := NewPool(context.Background(), fastRetry(),
		WithEventMiddleware(func(ie IncomingEvent) {
			mu.Lock()
			delivered++
			mu.Unlock()
		}))
	defer pool.Close()
	ps, err := pool.Subscribe(context.Background(),
		[]string{srv1.URL, srv2.URL}, textNoteFilters())
	if err != nil {
		t.Fatal(err)
	}
	defer ps.Unsub()
	counts := map[string]int{}
	eoses := 0
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ps.Events:
			counts[ev.IdString()]++
		case <-ps.Eose:
			eoses++
		case <-ps.AllEose:
			for {
				select {
				case <-ps.Eose:
					eoses++
					continue
				default:
				}
				break
			}
			if eoses != 2 {
				t.Fatalf("got %d EOSE notifications, want 2", eoses)
			}
			if n := counts[shared.IdString()]; n != 1 {
				t.Fatalf("shared event delivered %d times, want 1", n)
			}
			if len(counts) != 3 {
				t.Fatalf("got %d distinct events, want 3", len(counts))
			}
			if counts[only1.IdString()] != 1 || counts[only2.IdString()] != 1 {
				t.Fatal("per-relay events must arrive exactly once")
			}
			mu.Lock()
			defer mu.Unlock()
			if delivered != 3 {
				t.Fatalf("middleware saw %d events, want 3", delivered)
			}
			return
		case <-timeout:
			t.Fatal("AllEose never fired")
		}
	}
}

func TestPoolFaultWhileDelivering(t *testing.T) {
	sign := newSigner(t)
	shared := newNote(t, sign, "from both", 1700000020)
	followup := newNote(t, sign, "from the survivor", 1700000021)
	srv1 := newWebsocketServer(func(conn *websocket.Conn) {
		req, err := readReq(conn)
		if err != nil {
			return
		}
		sid := req.Subscription.String()
		if err = sendStored(conn, sid, shared); err != nil {
			t.Error(err)
			return
		}
		// leave room for the other relay to deliver its copy and die
		time.Sleep(150 * time.Millisecond)
		if err = sendStored(conn, sid, followup); err != nil {
			t.Error(err)
			return
		}
		if err = sendEose(conn, req); err != nil {
			t.Error(err)
			return
		}
		park(conn)
	})
	defer srv1.Close()
	var mu sync.Mutex
	conns := 0
	srv2 := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		req, err := readReq(conn)
		if err != nil {
			return
		}
		if n > 1 {
			// the replayed subscription after the fault; stay silent
			park(conn)
			return
		}
		if err = sendStored(conn, req.Subscription.String(), shared); err != nil {
			t.Error(err)
		}
		// hang up mid-stream
	})
	defer srv2.Close()
	pool := NewPool(context.Background(), fastRetry())
	defer pool.Close()
	ps, err := pool.Subscribe(context.Background(),
		[]string{srv1.URL, srv2.URL}, textNoteFilters())
	if err != nil {
		t.Fatal(err)
	}
	defer ps.Unsub()
	counts := map[string]int{}
	total := 0
	timeout := time.After(5 * time.Second)
	for total < 2 {
		select {
		case ev := <-ps.Events:
			counts[ev.IdString()]++
			total++
		case <-timeout:
			t.Fatalf("stream stalled after the fault: got %d events", total)
		}
	}
	if counts[shared.IdString()] != 1 {
		t.Fatalf("shared event delivered %d times, want 1",
			counts[shared.IdString()])
	}
	if counts[followup.IdString()] != 1 {
		t.Fatal("delivery did not continue past the faulted relay")
	}
	select {
	case ev := <-ps.Events:
		t.Fatalf("unexpected extra event: %s", ev.Content)
	case v := <-ps.Degraded:
		t.Fatalf("degraded=%v with a live relay remaining", v)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPoolAllEoseWaitsForSilentRelay(t *testing.T) {
	srv1 := newWebsocketServer(storedHandler(t))
	defer srv1.Close()
	srv2 := newWebsocketServer(func(conn *websocket.Conn) {
		if _, err := readReq(conn); err != nil {
			return
		}
		// never send EOSE
		park(conn)
	})
	defer srv2.Close()
	pool := NewPool(context.Background(), fastRetry())
	defer pool.Close()
	ps, err := pool.Subscribe(context.Background(),
		[]string{srv1.URL, srv2.URL}, textNoteFilters())
	if err != nil {
		t.Fatal(err)
	}
	defer ps.Unsub()
	select {
	case url := <-ps.Eose:
		if url != string(normalize.URL(srv1.URL)) {
			t.Fatalf("EOSE from %s, want %s", url, normalize.URL(srv1.URL))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("per-relay EOSE never forwarded")
	}
	select {
	case <-ps.AllEose:
		t.Fatal("AllEose fired while one relay is still streaming stored events")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestPoolDegradedWhenLastRelayDrops(t *testing.T) {
	srv := newWebsocketServer(storedHandler(t))
	pool := NewPool(context.Background(), fastRetry())
	defer pool.Close()
	ps, err := pool.Subscribe(context.Background(),
		[]string{srv.URL}, textNoteFilters())
	if err != nil {
		t.Fatal(err)
	}
	defer ps.Unsub()
	select {
	case <-ps.Eose:
	case <-time.After(3 * time.Second):
		t.Fatal("no EOSE from the only relay")
	}
	srv.CloseClientConnections()
	srv.Close()
	select {
	case v := <-ps.Degraded:
		if !v {
			t.Fatal("first degraded signal after losing every relay must be true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no degraded signal after the last relay dropped")
	}
	select {
	case <-ps.AllEose:
	case <-time.After(5 * time.Second):
		t.Fatal("AllEose must fire once the dead relay cannot report")
	}
}

func TestPoolPublishFanOut(t *testing.T) {
	sign := newSigner(t)
	note := newNote(t, sign, "fan out", 1700000030)
	okHandler := func(ok bool, rsn []byte) func(*websocket.Conn) {
		return func(conn *websocket.Conn) {
			env, err := readSubmission(conn)
			if err != nil {
				return
			}
			verdict := okenvelope.NewFrom(env.T.Id, ok, rsn).Marshal(nil)
			if err = websocket.Message.Send(conn, verdict); err != nil {
				t.Error(err)
			}
			park(conn)
		}
	}
	srvYes := newWebsocketServer(okHandler(true, nil))
	defer srvYes.Close()
	srvNo := newWebsocketServer(okHandler(false,
		reason.Msg(reason.Blocked, "not here")))
	defer srvNo.Close()
	pool := NewPool(context.Background(), fastRetry())
	defer pool.Close()
	for _, u := range []string{srvYes.URL, srvNo.URL} {
		if _, err := pool.Ensure(u); err != nil {
			t.Fatal(err)
		}
	}
	got := map[string]PublishResult{}
	for pr := range pool.Publish(context.Background(), note) {
		got[pr.Relay.URL()] = pr
	}
	if len(got) != 2 {
		t.Fatalf("got %d publish results, want 2", len(got))
	}
	yes := got[string(normalize.URL(srvYes.URL))]
	if yes.Err != nil || !yes.OK {
		t.Fatalf("accepting relay reported ok=%v err=%v", yes.OK, yes.Err)
	}
	no := got[string(normalize.URL(srvNo.URL))]
	if no.Err != nil {
		t.Fatalf("a delivered refusal is not a transport error: %v", no.Err)
	}
	if no.OK {
		t.Fatal("refusing relay reported ok=true")
	}
	if !strings.Contains(string(no.Reason), "blocked") {
		t.Fatalf("refusal reason lost: %s", no.Reason)
	}
}

func TestPoolEnsureShares(t *testing.T) {
	srv := newWebsocketServer(park)
	defer srv.Close()
	pool := NewPool(context.Background(), fastRetry())
	defer pool.Close()
	rl1, err := pool.Ensure(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	rl2, err := pool.Ensure(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if rl1 != rl2 {
		t.Fatal("same url must share one link")
	}
	pool.Remove(srv.URL)
	rl3, err := pool.Ensure(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if rl3 == rl1 {
		t.Fatal("expected a fresh link after Remove")
	}
}

func TestPoolSubscribeEoseEnds(t *testing.T) {
	sign := newSigner(t)
	note := newNote(t, sign, "snapshot", 1700000040)
	srv := newWebsocketServer(storedHandler(t, note))
	defer srv.Close()
	pool := NewPool(context.Background(), fastRetry())
	defer pool.Close()
	ps, err := pool.SubscribeEose(context.Background(),
		[]string{srv.URL}, textNoteFilters())
	if err != nil {
		t.Fatal(err)
	}
	var got []*event.T
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ps.Events {
			got = append(got, ev)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot subscription never ended itself")
	}
	if len(got) != 1 || got[0].IdString() != note.IdString() {
		t.Fatalf("snapshot returned %d events", len(got))
	}
}

func TestPoolQuerySingle(t *testing.T) {
	sign := newSigner(t)
	note := newNote(t, sign, "the one", 1700000050)
	srv := newWebsocketServer(storedHandler(t, note))
	defer srv.Close()
	pool := NewPool(context.Background(), fastRetry())
	defer pool.Close()
	f := filter.New()
	f.Kinds = kinds.New(kind.TextNote)
	ev := pool.QuerySingle(context.Background(), []string{srv.URL}, f)
	if ev == nil {
		t.Fatal("query returned nothing")
	}
	if ev.IdString() != note.IdString() {
		t.Fatal("query returned the wrong event")
	}
}
