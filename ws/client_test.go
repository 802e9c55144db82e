package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"relix.lol/auth"
	"relix.lol/chk"
	"relix.lol/envelopes"
	"relix.lol/envelopes/authenvelope"
	"relix.lol/envelopes/eoseenvelope"
	"relix.lol/envelopes/eventenvelope"
	"relix.lol/envelopes/noticeenvelope"
	"relix.lol/envelopes/okenvelope"
	"relix.lol/envelopes/reqenvelope"
	"relix.lol/event"
	"relix.lol/filter"
	"relix.lol/filters"
	"relix.lol/kind"
	"relix.lol/kinds"
	"relix.lol/p256k"
	"relix.lol/reason"
	"relix.lol/signer"
	"relix.lol/tags"
	"relix.lol/timestamp"
)

func newWebsocketServer(handler func(*websocket.Conn)) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		Handshake: anyOriginHandshake,
		Handler:   handler,
	})
}

// the websocket server by default checks the Origin header against the
// server host; the fake relay takes anything.
var anyOriginHandshake = func(conf *websocket.Config, r *http.Request) (err error) {
	return nil
}

func mustRelayConnect(url string, opts ...Option) *Client {
	rl, err := RelayConnect(context.Background(), url, opts...)
	if err != nil {
		panic(err.Error())
	}
	return rl
}

func newSigner(t *testing.T) *p256k.Signer {
	t.Helper()
	sign := &p256k.Signer{}
	if err := sign.Generate(); chk.E(err) {
		t.Fatal(err)
	}
	return sign
}

func newNote(t *testing.T, sign signer.I, content string, ts int64) *event.T {
	t.Helper()
	ev := &event.T{
		Kind:      kind.TextNote,
		Content:   []byte(content),
		CreatedAt: timestamp.FromUnix(ts),
		Tags:      tags.New(),
	}
	if err := ev.Sign(sign); chk.E(err) {
		t.Fatal(err)
	}
	return ev
}

// park blocks the fake relay handler until the peer hangs up, so the
// connection stays open for the rest of the test.
func park(conn *websocket.Conn) {
	var discard []byte
	for websocket.Message.Receive(conn, &discard) == nil {
	}
}

// readEnvelope receives one frame and identifies its label.
func readEnvelope(conn *websocket.Conn) (label string, rem []byte, err error) {
	var raw []byte
	if err = websocket.Message.Receive(conn, &raw); err != nil {
		return
	}
	return envelopes.Identify(raw)
}

// readSubmission consumes frames until an EVENT submission arrives,
// skipping anything else the client sends first.
func readSubmission(conn *websocket.Conn) (env *eventenvelope.Submission, err error) {
	for {
		var label string
		var rem []byte
		if label, rem, err = readEnvelope(conn); err != nil {
			return
		}
		if label != eventenvelope.L {
			continue
		}
		env = eventenvelope.NewSubmission()
		_, err = env.Unmarshal(rem)
		return
	}
}

// readReq consumes frames until a REQ arrives.
func readReq(conn *websocket.Conn) (req *reqenvelope.T, err error) {
	for {
		var label string
		var rem []byte
		if label, rem, err = readEnvelope(conn); err != nil {
			return
		}
		if label != reqenvelope.L {
			continue
		}
		req = reqenvelope.New()
		_, err = req.Unmarshal(rem)
		return
	}
}

func sendStored(conn *websocket.Conn, sid string, evs ...*event.T) (err error) {
	for _, ev := range evs {
		var res *eventenvelope.Result
		if res, err = eventenvelope.NewResultWith(sid, ev); err != nil {
			return
		}
		if err = websocket.Message.Send(conn, res.Marshal(nil)); err != nil {
			return
		}
	}
	return
}

func TestPublish(t *testing.T) {
	sign := newSigner(t)
	textNote := newNote(t, sign, "hello", 1672068534)
	var mu sync.Mutex
	published := false
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		env, err := readSubmission(conn)
		if err != nil {
			return
		}
		valid, err := env.T.Verify()
		if err != nil || !valid {
			t.Errorf("submitted event does not verify: %v", err)
			return
		}
		mu.Lock()
		published = true
		mu.Unlock()
		ok := okenvelope.NewFrom(env.T.Id, true).Marshal(nil)
		if err = websocket.Message.Send(conn, ok); err != nil {
			t.Error(err)
		}
		park(conn)
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL)
	defer rl.Close()
	if err := rl.Publish(context.Background(), textNote); err != nil {
		t.Fatalf("publish should succeed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !published {
		t.Fatal("fake relay never received the event")
	}
}

func TestPublishRejected(t *testing.T) {
	sign := newSigner(t)
	textNote := newNote(t, sign, "spam", 1672068534)
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		env, err := readSubmission(conn)
		if err != nil {
			return
		}
		ok := okenvelope.NewFrom(env.T.Id, false,
			reason.Msg(reason.Blocked, "no reason")).Marshal(nil)
		if err = websocket.Message.Send(conn, ok); err != nil {
			t.Error(err)
		}
		park(conn)
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL)
	defer rl.Close()
	err := rl.Publish(context.Background(), textNote)
	if err == nil {
		t.Fatal("expected an error from a refused publish")
	}
	if !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("error should carry the relay reason, got: %v", err)
	}
}

func TestPublishStatus(t *testing.T) {
	sign := newSigner(t)
	textNote := newNote(t, sign, "status", 1672068534)
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		env, err := readSubmission(conn)
		if err != nil {
			return
		}
		ok := okenvelope.NewFrom(env.T.Id, false,
			reason.Msg(reason.RateLimited, "slow down")).Marshal(nil)
		if err = websocket.Message.Send(conn, ok); err != nil {
			t.Error(err)
		}
		park(conn)
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL)
	defer rl.Close()
	accepted, why, err := rl.PublishStatus(context.Background(), textNote)
	if err != nil {
		t.Fatalf("a delivered verdict is not a transport error: %v", err)
	}
	if accepted {
		t.Fatal("relay refused the event but accepted came back true")
	}
	if !strings.Contains(string(why), "slow down") {
		t.Fatalf("unexpected refusal reason: %s", why)
	}
}

func TestPublishWriteFailed(t *testing.T) {
	sign := newSigner(t)
	textNote := newNote(t, sign, "void", 1672068534)
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		conn.Close()
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL, WithRetry{
		Base: 10 * time.Millisecond, Max: 20 * time.Millisecond, Ceiling: 1,
	})
	defer rl.Close()
	c, cancel := context.WithTimeout(context.Background(),
		200*time.Millisecond)
	defer cancel()
	if err := rl.Publish(c, textNote); err == nil {
		t.Fatal("expected an error when the relay hangs up")
	}
}

func TestConnectContext(t *testing.T) {
	var mu sync.Mutex
	connected := false
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		connected = true
		mu.Unlock()
		park(conn)
	})
	defer srv.Close()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	rl, err := RelayConnect(c, srv.URL)
	if err != nil {
		t.Fatalf("connect should succeed: %v", err)
	}
	defer rl.Close()
	if rl.State() != Open {
		t.Fatalf("state should be open, got %v", rl.State())
	}
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		ok := connected
		mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fake relay never saw the client")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnectContextCanceled(t *testing.T) {
	srv := newWebsocketServer(park)
	defer srv.Close()
	c, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RelayConnect(c, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConnectWithOrigin(t *testing.T) {
	srv := newWebsocketServer(park)
	defer srv.Close()
	rl := NewRelay(context.Background(), srv.URL)
	rl.RequestHeader = http.Header{"Origin": {"https://example.com"}}
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rl.Connect(c); err != nil {
		t.Fatalf("connect with origin header failed: %v", err)
	}
	rl.Close()
}

func TestSubscribeStoredThenEose(t *testing.T) {
	sign := newSigner(t)
	first := newNote(t, sign, "first", 1700000001)
	second := newNote(t, sign, "second", 1700000002)
	reaction := &event.T{
		Kind:      kind.Reaction,
		Content:   []byte("+"),
		CreatedAt: timestamp.FromUnix(1700000003),
		Tags:      tags.New(),
	}
	if err := reaction.Sign(sign); chk.E(err) {
		t.Fatal(err)
	}
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		req, err := readReq(conn)
		if err != nil {
			return
		}
		sid := req.Subscription.String()
		// the reaction does not match the kind filter and must be
		// dropped client side.
		if err = sendStored(conn, sid, first, second, reaction); err != nil {
			t.Error(err)
			return
		}
		eose := eoseenvelope.NewFrom(req.Subscription).Marshal(nil)
		if err = websocket.Message.Send(conn, eose); err != nil {
			t.Error(err)
			return
		}
		park(conn)
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL)
	defer rl.Close()
	f := filter.New()
	f.Kinds = kinds.New(kind.TextNote)
	sub, err := rl.Subscribe(context.Background(), filters.New(f))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsub()
	var got []*event.T
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			got = append(got, ev)
		case <-sub.EndOfStoredEvents:
			if len(got) != 2 {
				t.Fatalf("got %d stored events before EOSE, want 2",
					len(got))
			}
			if string(got[0].Content) != "first" ||
				string(got[1].Content) != "second" {
				t.Fatalf("stored events out of order: %s, %s",
					got[0].Content, got[1].Content)
			}
			return
		case <-timeout:
			t.Fatal("no EOSE within deadline")
		}
	}
}

func TestSubscriptionReplayAdvancesSince(t *testing.T) {
	sign := newSigner(t)
	older := newNote(t, sign, "older", 1700000100)
	newer := newNote(t, sign, "newer", 1700000200)
	var mu sync.Mutex
	conns := 0
	replayed := make(chan int64, 1)
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		req, err := readReq(conn)
		if err != nil {
			return
		}
		sid := req.Subscription.String()
		if n == 1 {
			// deliver one event, then hang up without an EOSE; the
			// client has to reconnect and replay the subscription.
			if err = sendStored(conn, sid, older); err != nil {
				t.Error(err)
			}
			return
		}
		var since int64
		if len(req.Filters.F) > 0 && req.Filters.F[0].Since != nil {
			since = req.Filters.F[0].Since.I64()
		}
		select {
		case replayed <- since:
		default:
		}
		if err = sendStored(conn, sid, newer); err != nil {
			t.Error(err)
			return
		}
		eose := eoseenvelope.NewFrom(req.Subscription).Marshal(nil)
		if err = websocket.Message.Send(conn, eose); err != nil {
			t.Error(err)
			return
		}
		park(conn)
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL, WithRetry{
		Base: 20 * time.Millisecond, Max: 50 * time.Millisecond, Ceiling: 4,
	})
	defer rl.Close()
	f := filter.New()
	f.Kinds = kinds.New(kind.TextNote)
	sub, err := rl.Subscribe(context.Background(), filters.New(f))
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsub()
	var got []*event.T
	timeout := time.After(10 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-sub.Events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("got %d events, want 2 across the reconnect",
				len(got))
		}
	}
	if string(got[0].Content) != "older" || string(got[1].Content) != "newer" {
		t.Fatalf("events out of order across reconnect: %s, %s",
			got[0].Content, got[1].Content)
	}
	select {
	case since := <-replayed:
		if since != older.CreatedAt.I64() {
			t.Fatalf("replayed REQ carries since %d, want %d",
				since, older.CreatedAt.I64())
		}
	case <-timeout:
		t.Fatal("fake relay never saw the replayed REQ")
	}
}

func TestNoticeHandler(t *testing.T) {
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		notice := noticeenvelope.NewFrom("relay is migrating").Marshal(nil)
		if err := websocket.Message.Send(conn, notice); err != nil {
			t.Error(err)
			return
		}
		park(conn)
	})
	defer srv.Close()
	notices := make(chan []byte, 1)
	rl := mustRelayConnect(srv.URL, WithNoticeHandler(func(n []byte) {
		select {
		case notices <- n:
		default:
		}
	}))
	defer rl.Close()
	select {
	case n := <-notices:
		if string(n) != "relay is migrating" {
			t.Fatalf("unexpected notice: %s", n)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("notice never reached the handler")
	}
}

func TestAuthSignerResponds(t *testing.T) {
	sign := newSigner(t)
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		challenge := auth.GenerateChallenge()
		ch := authenvelope.NewChallengeWith(challenge).Marshal(nil)
		if err := websocket.Message.Send(conn, ch); err != nil {
			t.Error(err)
			return
		}
		label, rem, err := readEnvelope(conn)
		if err != nil {
			return
		}
		if label != authenvelope.L {
			t.Errorf("expected AUTH response, got %s", label)
			return
		}
		resp := authenvelope.NewResponse()
		if _, err = resp.Unmarshal(rem); err != nil {
			t.Error(err)
			return
		}
		relayURL := "ws://" + conn.Request().Host
		valid, err := auth.Validate(resp.Event, challenge, relayURL)
		ok := okenvelope.NewFrom(resp.Event.Id, valid && err == nil).
			Marshal(nil)
		if err = websocket.Message.Send(conn, ok); err != nil {
			t.Error(err)
			return
		}
		park(conn)
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL, WithAuthSigner(func() signer.I {
		return sign
	}))
	defer rl.Close()
	select {
	case <-rl.Authed:
	case <-time.After(5 * time.Second):
		t.Fatal("relay never acknowledged the auth response")
	}
}

func TestStateNotifyOnClose(t *testing.T) {
	srv := newWebsocketServer(park)
	defer srv.Close()
	rl := mustRelayConnect(srv.URL)
	st := make(chan StateChange, 8)
	rl.StateNotify(st)
	defer rl.StateStop(st)
	if err := rl.Close(); err != nil {
		t.Fatal(err)
	}
	for _, want := range []State{Closing, Closed} {
		select {
		case sc := <-st:
			if sc.State != want {
				t.Fatalf("got state %v, want %v", sc.State, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %v notification", want)
		}
	}
	err := <-rl.Write([]byte("[\"REQ\",\"x\",{}]"))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close should fail with ErrClosed, got %v", err)
	}
}

func TestRetryCeilingFaults(t *testing.T) {
	srv := newWebsocketServer(park)
	rl := mustRelayConnect(srv.URL, WithRetry{
		Base: 10 * time.Millisecond, Max: 20 * time.Millisecond, Ceiling: 2,
	})
	defer rl.Close()
	st := make(chan StateChange, 32)
	rl.StateNotify(st)
	defer rl.StateStop(st)
	srv.CloseClientConnections()
	srv.Close()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case sc := <-st:
			if sc.State == Faulted && errors.Is(sc.Err, ErrExhausted) {
				if rl.State() != Faulted {
					t.Fatal("link must stay faulted after the ceiling")
				}
				if rl.IsConnected() {
					t.Fatal("an exhausted link is not connected")
				}
				return
			}
		case <-deadline:
			t.Fatal("retry ceiling notification never arrived")
		}
	}
}

func TestRetryDelayBounds(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second
	for attempt := 1; attempt <= 12; attempt++ {
		shift := attempt - 1
		if shift > 6 {
			shift = 6
		}
		floor := base << shift
		if floor > max {
			floor = max
		}
		ceil := floor + floor/2
		for i := 0; i < 50; i++ {
			d := retryDelay(attempt, base, max)
			if d < floor || d > ceil {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]",
					attempt, d, floor, ceil)
			}
		}
	}
}

func TestQuerySync(t *testing.T) {
	sign := newSigner(t)
	stored := []*event.T{
		newNote(t, sign, "a", 1700000001),
		newNote(t, sign, "b", 1700000002),
		newNote(t, sign, "c", 1700000003),
	}
	srv := newWebsocketServer(func(conn *websocket.Conn) {
		req, err := readReq(conn)
		if err != nil {
			return
		}
		sid := req.Subscription.String()
		if err = sendStored(conn, sid, stored...); err != nil {
			t.Error(err)
			return
		}
		eose := eoseenvelope.NewFrom(req.Subscription).Marshal(nil)
		if err = websocket.Message.Send(conn, eose); err != nil {
			t.Error(err)
			return
		}
		park(conn)
	})
	defer srv.Close()
	rl := mustRelayConnect(srv.URL)
	defer rl.Close()
	f := filter.New()
	f.Kinds = kinds.New(kind.TextNote)
	got, err := rl.QuerySync(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(stored) {
		t.Fatalf("got %d events, want %d", len(got), len(stored))
	}
	for i := range got {
		if got[i].IdString() != stored[i].IdString() {
			t.Fatalf("event %d does not match what the relay sent", i)
		}
	}
}
