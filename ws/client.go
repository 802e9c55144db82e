// Package ws implements the client side of the relay protocol: a Client
// holds one websocket link to a relay and keeps it alive through faults,
// and a Pool merges many links into one deduplicated stream.
package ws

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
	"lukechampine.com/frand"

	"relix.lol/auth"
	"relix.lol/chk"
	"relix.lol/codec"
	"relix.lol/envelopes"
	"relix.lol/envelopes/authenvelope"
	"relix.lol/envelopes/closedenvelope"
	"relix.lol/envelopes/eoseenvelope"
	"relix.lol/envelopes/eventenvelope"
	"relix.lol/envelopes/noticeenvelope"
	"relix.lol/envelopes/okenvelope"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/filter"
	"relix.lol/filters"
	"relix.lol/log"
	"relix.lol/normalize"
	"relix.lol/signer"
)

var subscriptionIDCounter atomic.Int32

// Retry policy defaults. The delay before attempt n doubles from the base,
// capped at the max, with up to half again of jitter on top.
const (
	DefaultRetryBase    = time.Second
	DefaultRetryMax     = time.Minute
	DefaultRetryCeiling = 8
)

// Client is one relay link. After Connect it holds the connection up on its
// own: a transport fault moves it to Faulted and a backoff retry loop redials
// and replays the registered subscriptions, until the retry ceiling is hit.
type Client struct {
	// Ctx is done when the link is finished for good.
	Ctx    context.Context
	cancel context.CancelFunc

	closeMutex sync.Mutex
	url        []byte
	// RequestHeader is sent with the handshake, e.g. for an origin header.
	RequestHeader http.Header

	dial Dialer
	conn Conn

	state      atomic.Int32
	stateSinks *xsync.MapOf[chan StateChange, struct{}]

	retryBase    time.Duration
	retryMax     time.Duration
	retryCeiling int
	reconnecting atomic.Bool

	Subscriptions *xsync.MapOf[string, *Subscription]
	okCallbacks   *xsync.MapOf[string, func(bool, []byte)]
	writeQueue    chan writeRequest
	done          sync.Once

	// notices is non-nil when a WithNoticeHandler option was given
	notices chan []byte

	// challenge is the last auth challenge the relay sent
	authMx      sync.Mutex
	challenge   []byte
	authEventID []byte
	authSigner  func() signer.I

	// AuthRequired signals that an auth challenge arrived. One pending
	// signal is kept.
	AuthRequired chan struct{}
	// Authed signals that the relay accepted our auth response.
	Authed chan struct{}

	// AssumeValid skips verifying signatures of events from this relay.
	AssumeValid bool
	sigChecker  func(*event.T) bool
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// Option configures a Client at construction.
type Option interface {
	IsRelayOption()
}

// WithNoticeHandler takes NOTICE messages and is expected to do something
// with them. When not given they are logged.
type WithNoticeHandler func(notice []byte)

func (WithNoticeHandler) IsRelayOption() {}

// WithAuthSigner supplies the signer used to answer auth challenges as they
// arrive; when set, the link auths by itself.
type WithAuthSigner func() signer.I

func (WithAuthSigner) IsRelayOption() {}

// WithSignatureChecker replaces the built-in signature verification of
// incoming events.
type WithSignatureChecker func(*event.T) bool

func (WithSignatureChecker) IsRelayOption() {}

// WithDialer selects the transport, e.g. DialSocket. The default is
// DialConnection.
type WithDialer Dialer

func (WithDialer) IsRelayOption() {}

// WithRetry overrides the reconnect backoff policy. Zero fields keep their
// defaults.
type WithRetry struct {
	Base    time.Duration
	Max     time.Duration
	Ceiling int
}

func (WithRetry) IsRelayOption() {}

var (
	_ Option = (WithNoticeHandler)(nil)
	_ Option = (WithAuthSigner)(nil)
	_ Option = (WithSignatureChecker)(nil)
	_ Option = (WithDialer)(nil)
	_ Option = WithRetry{}
)

// NewRelay returns a relay link that connects when Connect is called. The
// given context bounds the whole life of the link.
func NewRelay(c context.Context, url string, opts ...Option) (r *Client) {
	ctx, cancel := context.WithCancel(c)
	r = &Client{
		url:           normalize.URL(url),
		Ctx:           ctx,
		cancel:        cancel,
		dial:          DialConnection,
		retryBase:     DefaultRetryBase,
		retryMax:      DefaultRetryMax,
		retryCeiling:  DefaultRetryCeiling,
		stateSinks:    xsync.NewMapOf[chan StateChange, struct{}](),
		Subscriptions: xsync.NewMapOf[string, *Subscription](),
		okCallbacks:   xsync.NewMapOf[string, func(bool, []byte)](),
		writeQueue:    make(chan writeRequest),
		AuthRequired:  make(chan struct{}, 1),
		Authed:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithNoticeHandler:
			r.notices = make(chan []byte)
			go func() {
				for n := range r.notices {
					o(n)
				}
			}()
		case WithAuthSigner:
			r.authSigner = o
		case WithSignatureChecker:
			r.sigChecker = o
		case WithDialer:
			r.dial = Dialer(o)
		case WithRetry:
			if o.Base > 0 {
				r.retryBase = o.Base
			}
			if o.Max > 0 {
				r.retryMax = o.Max
			}
			if o.Ceiling > 0 {
				r.retryCeiling = o.Ceiling
			}
		}
	}
	return
}

// RelayConnect returns a relay link connected to url. The context bounds the
// life of the link, not just the dial; to close the link, call r.Close.
func RelayConnect(c context.Context, url string, opts ...Option) (r *Client,
	err error) {

	r = NewRelay(c, url, opts...)
	err = r.Connect(c)
	return
}

// URL returns the normalized relay URL this link dials.
func (r *Client) URL() string { return string(r.url) }

func (r *Client) String() string { return string(r.url) }

// Context retrieves the context that is associated with this relay link.
func (r *Client) Context() context.Context { return r.Ctx }

// IsConnected returns true while the link is in the Open state.
func (r *Client) IsConnected() bool { return r.State() == Open }

// Connect runs the websocket handshake and starts the read and write loops.
// If the context carries no deadline the dial is bounded to 7 seconds. A
// failed first dial is returned to the caller; faults after that are
// handled by the link itself.
func (r *Client) Connect(c context.Context) (err error) {
	if r.Ctx == nil || r.Subscriptions == nil {
		return errorf.E("relay must be initialized with a call to NewRelay()")
	}
	if len(r.url) < 1 {
		return errorf.E("invalid relay URL '%s'", r.URL())
	}
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, 7*time.Second)
		defer cancel()
	}
	r.setState(Connecting, nil)
	var conn Conn
	if conn, err = r.dial(c, r.URL(), r.RequestHeader); err != nil {
		err = errorf.E("error opening websocket to '%s': %w", r.URL(), err)
		r.setState(Faulted, err)
		return
	}
	r.done.Do(func() { go r.cleanup() })
	r.startSession(conn)
	return
}

// startSession installs conn as the current connection, starts its loop
// pair and moves the link to Open.
func (r *Client) startSession(conn Conn) {
	r.closeMutex.Lock()
	r.conn = conn
	r.closeMutex.Unlock()
	session, cancel := context.WithCancel(r.Ctx)
	var once sync.Once
	fail := func(err error) {
		once.Do(func() {
			cancel()
			_ = conn.Close()
			switch r.State() {
			case Closing, Closed:
				return
			}
			r.setState(Faulted, err)
			go r.reconnect()
		})
	}
	go r.writeLoop(session, conn, fail)
	go r.readLoop(session, conn, fail)
	r.setState(Open, nil)
}

// cleanup runs once per link, releasing everything when the link context
// ends.
func (r *Client) cleanup() {
	<-r.Ctx.Done()
	if r.notices != nil {
		close(r.notices)
	}
	r.Subscriptions.Range(func(_ string, sub *Subscription) bool {
		go sub.Unsub()
		return true
	})
	// answer whatever is still sitting in the write queue
	for {
		select {
		case wr := <-r.writeQueue:
			wr.answer <- errorf.E("%w: %s", ErrClosed, r.URL())
		default:
			return
		}
	}
}

func (r *Client) writeLoop(c context.Context, conn Conn, fail func(error)) {
	// ping every 29 seconds to keep the connection alive
	ticker := time.NewTicker(29 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(c); err != nil {
				log.D.F("{%s} error writing ping: %v; closing websocket",
					r.URL(), err)
				fail(err)
				return
			}
		case wr := <-r.writeQueue:
			// all writes go through here so there is only one writer
			if err := conn.WriteMessage(c, wr.msg); err != nil {
				wr.answer <- err
				close(wr.answer)
				fail(err)
				return
			}
			close(wr.answer)
		case <-c.Done():
			return
		}
	}
}

func (r *Client) readLoop(c context.Context, conn Conn, fail func(error)) {
	for {
		buf := new(bytes.Buffer)
		if err := conn.ReadMessage(c, buf); err != nil {
			fail(err)
			return
		}
		r.dispatch(buf.Bytes())
	}
}

// dispatch routes one incoming message by its envelope label. Unreadable
// and unknown frames are logged and dropped; the link stays up.
func (r *Client) dispatch(message []byte) {
	var err error
	var rem []byte
	var label string
	if label, rem, err = envelopes.Identify(message); chk.D(err) {
		log.D.F("{%s} unreadable frame: %s", r.URL(), message)
		return
	}
	if label == "" {
		return
	}
	switch label {
	case noticeenvelope.L:
		env := noticeenvelope.New()
		if rem, err = env.Unmarshal(rem); chk.E(err) {
			return
		}
		// see WithNoticeHandler
		if r.notices != nil {
			r.notices <- env.Message
		} else {
			log.D.F("NOTICE from %s: '%s'", r.URL(), env.Message)
		}

	case authenvelope.L:
		env := authenvelope.NewChallenge()
		if rem, err = env.Unmarshal(rem); chk.E(err) {
			return
		}
		r.authMx.Lock()
		r.challenge = env.Challenge
		r.authMx.Unlock()
		log.D.F("{%s} received challenge %s", r.URL(), env.Challenge)
		if r.authSigner != nil {
			go func() {
				if err := r.Auth(r.Ctx, r.authSigner()); err != nil {
					log.D.F("{%s} auth failed: %v", r.URL(), err)
				}
			}()
		}
		select {
		case r.AuthRequired <- struct{}{}:
		default:
		}

	case eventenvelope.L:
		env := eventenvelope.NewResult()
		if rem, err = env.Unmarshal(rem); chk.E(err) {
			return
		}
		// if it has no subscription ID we don't know what it is
		if env.Subscription == nil || env.Subscription.String() == "" {
			return
		}
		sub, ok := r.Subscriptions.Load(env.Subscription.String())
		if !ok {
			log.D.F("{%s} no subscription with id '%s'", r.URL(),
				env.Subscription.String())
			return
		}
		// check the event matches the filters, ignore otherwise
		if !sub.Filters.Match(env.Event) {
			log.D.F("{%s} filter does not match: %s ~ %s", r.URL(),
				sub.Filters.String(), env.Event.Serialize())
			return
		}
		if !r.verifies(env.Event) {
			return
		}
		sub.dispatchEvent(env.Event)

	case eoseenvelope.L:
		env := eoseenvelope.New()
		if rem, err = env.Unmarshal(rem); chk.E(err) {
			return
		}
		if sub, ok := r.Subscriptions.Load(env.Subscription.String()); ok {
			sub.dispatchEose()
		}

	case closedenvelope.L:
		env := closedenvelope.New()
		if rem, err = env.Unmarshal(rem); chk.E(err) {
			return
		}
		if sub, ok := r.Subscriptions.Load(env.Subscription.String()); ok {
			sub.dispatchClosed(env.Reason)
		}

	case okenvelope.L:
		env := okenvelope.New()
		if rem, err = env.Unmarshal(rem); chk.E(err) {
			return
		}
		id := env.EventID.String()
		r.authMx.Lock()
		isAuth := r.authEventID != nil &&
			bytes.Equal(env.EventID.Bytes(), r.authEventID)
		r.authMx.Unlock()
		if isAuth && env.OK {
			select {
			case r.Authed <- struct{}{}:
			default:
			}
		}
		if cb, exist := r.okCallbacks.Load(id); exist {
			cb(env.OK, env.Reason)
		} else {
			log.D.F("{%s} got an unexpected OK message for event %s",
				r.URL(), id)
		}

	default:
		log.D.F("{%s} dropping unhandled '%s' message", r.URL(), label)
	}
}

// verifies checks the signature on an incoming event unless the link is
// configured to trust the relay or a custom checker is installed.
func (r *Client) verifies(ev *event.T) bool {
	if r.AssumeValid {
		return true
	}
	if r.sigChecker != nil {
		if !r.sigChecker(ev) {
			log.D.F("{%s} rejected signature on %s", r.URL(), ev.IdString())
			return false
		}
		return true
	}
	valid, err := ev.Verify()
	if chk.D(err) || !valid {
		log.D.F("{%s} bad signature on %s", r.URL(), ev.IdString())
		return false
	}
	return true
}

// reconnect redials with backoff until a session sticks, the ceiling is
// reached, or the link context ends. On success it replays the registered
// subscriptions.
func (r *Client) reconnect() {
	if !r.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer r.reconnecting.Store(false)
	for attempt := 1; attempt <= r.retryCeiling; attempt++ {
		delay := retryDelay(attempt, r.retryBase, r.retryMax)
		log.D.F("{%s} reconnecting in %v (attempt %d/%d)", r.URL(), delay,
			attempt, r.retryCeiling)
		select {
		case <-time.After(delay):
		case <-r.Ctx.Done():
			return
		}
		r.setState(Connecting, nil)
		c, cancel := context.WithTimeout(r.Ctx, 15*time.Second)
		conn, err := r.dial(c, r.URL(), r.RequestHeader)
		cancel()
		if err != nil {
			r.setState(Faulted, err)
			continue
		}
		r.startSession(conn)
		// clear the flag before replaying so a fault during the replay can
		// start a fresh retry loop
		r.reconnecting.Store(false)
		r.resubscribe()
		return
	}
	log.D.F("{%s} giving up after %d attempts", r.URL(), r.retryCeiling)
	r.setState(Faulted, ErrExhausted)
}

// resubscribe fires every live subscription again after a reconnect.
func (r *Client) resubscribe() {
	r.Subscriptions.Range(func(id string, sub *Subscription) bool {
		if !sub.live.Load() {
			return true
		}
		if err := sub.Fire(); err != nil {
			log.D.F("{%s} replay of %s failed: %v", r.URL(), id, err)
		}
		return true
	})
}

// Reset restarts the retry loop after the ceiling was reached. It does
// nothing on a live or deliberately closed link.
func (r *Client) Reset() {
	if r.State() != Faulted {
		return
	}
	go r.reconnect()
}

// retryDelay is the backoff before reconnect attempt n (1-based): the base
// doubles each attempt up to max, plus up to half again of jitter.
func retryDelay(attempt int, base, max time.Duration) (d time.Duration) {
	shift := attempt - 1
	if shift > 6 {
		shift = 6
	}
	d = base * time.Duration(1<<uint(shift))
	if d > max {
		d = max
	}
	d += time.Duration(frand.Intn(int(d/2) + 1))
	return
}

// Write queues a message to be sent to the relay. The returned channel
// yields nil once the write went out, or the error that stopped it. While
// the link is between sessions the queue blocks, so a write waits out a
// short fault and times out on a long one.
func (r *Client) Write(msg []byte) (ch chan error) {
	ch = make(chan error, 1)
	timeout := time.After(5 * time.Second)
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-r.Ctx.Done():
		ch <- errorf.E("%w: %s", ErrClosed, r.URL())
	case <-timeout:
		ch <- errorf.E("write to %s timed out", r.URL())
	}
	return
}

// Publish sends the event and waits for the matching OK. A relay refusal
// (ok false) is folded into the returned error together with the reason.
func (r *Client) Publish(c context.Context, ev *event.T) (err error) {
	var accepted bool
	var why []byte
	if accepted, why, err = r.PublishStatus(c, ev); err != nil {
		return
	}
	if !accepted {
		return errorf.E("msg: %s", why)
	}
	return
}

// PublishStatus sends the event and reports the relay's verdict without
// folding a refusal into the error: accepted is the relay's OK flag, why
// carries its reason, and err is set only when no verdict arrived.
func (r *Client) PublishStatus(c context.Context, ev *event.T) (accepted bool,
	why []byte, err error) {

	return r.publish(c, ev.IdString(), eventenvelope.NewSubmissionWith(ev))
}

// Auth answers the relay's auth challenge with a signed response and waits
// for the OK verdict on it.
func (r *Client) Auth(c context.Context, s signer.I) (err error) {
	r.authMx.Lock()
	challenge := r.challenge
	r.authMx.Unlock()
	if len(challenge) == 0 {
		return errorf.E("%s has not sent an auth challenge", r.URL())
	}
	authEvent := auth.CreateUnsigned(s.Pub(), challenge, r.URL())
	if err = authEvent.Sign(s); chk.E(err) {
		return errorf.E("error signing auth event: %w", err)
	}
	r.authMx.Lock()
	r.authEventID = authEvent.Id
	r.authMx.Unlock()
	var accepted bool
	var why []byte
	if accepted, why, err = r.publish(c, authEvent.IdString(),
		authenvelope.NewResponseWith(authEvent)); err != nil {
		return
	}
	if !accepted {
		return errorf.E("auth rejected by %s: %s", r.URL(), why)
	}
	return
}

// publish carries both EVENT and AUTH submissions: it registers an OK
// callback for id, writes the envelope and waits for the verdict or the
// context.
func (r *Client) publish(c context.Context, id string,
	env codec.Envelope) (accepted bool, why []byte, err error) {

	var cancel context.CancelFunc
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 4 seconds
		c, cancel = context.WithTimeout(c, 4*time.Second)
	} else {
		// otherwise make it cancelable so the OK can end the wait
		c, cancel = context.WithCancel(c)
	}
	defer cancel()
	// the callback runs on the read loop; the mutex covers a verdict
	// racing the timeout
	var mx sync.Mutex
	answered := false
	r.okCallbacks.Store(id, func(ok bool, reason []byte) {
		mx.Lock()
		answered, accepted, why = true, ok, reason
		mx.Unlock()
		cancel()
	})
	defer r.okCallbacks.Delete(id)
	var b []byte
	b = env.Marshal(b)
	if err = <-r.Write(b); err != nil {
		return
	}
	select {
	case <-c.Done():
		mx.Lock()
		defer mx.Unlock()
		if answered {
			return
		}
		err = c.Err()
	case <-r.Ctx.Done():
		// we lost the link before the verdict
		err = errorf.E("%w: %s", ErrClosed, r.URL())
	}
	return
}

// Subscribe sends a REQ and returns the running subscription. Events arrive
// on sub.Events. Cancel subscriptions by calling Unsub or by ending their
// context, or their goroutines stay parked.
func (r *Client) Subscribe(c context.Context, f *filters.T,
	opts ...SubscriptionOption) (sub *Subscription, err error) {

	sub = r.PrepareSubscription(c, f, opts...)
	if err = sub.Fire(); err != nil {
		return nil, errorf.E("couldn't subscribe to %s at %s: %w",
			f.String(), r.URL(), err)
	}
	return
}

// PrepareSubscription registers a subscription without firing it. The
// subscription survives reconnects: after a successful redial the link
// fires it again with the filters advanced past what was already seen.
func (r *Client) PrepareSubscription(c context.Context, f *filters.T,
	opts ...SubscriptionOption) (sub *Subscription) {

	current := subscriptionIDCounter.Add(1)
	ctx, cancel := context.WithCancel(c)
	sub = &Subscription{
		Relay:             r,
		Context:           ctx,
		cancel:            cancel,
		counter:           int(current),
		Events:            make(event.C),
		EndOfStoredEvents: make(chan struct{}),
		ClosedReason:      make(chan []byte, 1),
		incoming:          make(chan queuedEvent, incomingBuffer),
		Filters:           f,
	}
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithLabel:
			sub.label = string(o)
		}
	}
	id := sub.GetID()
	r.Subscriptions.Store(id.String(), sub)
	go sub.start()
	return
}

// QuerySync subscribes with the filter and collects events until EOSE or
// the context deadline, 7 seconds when none is set.
func (r *Client) QuerySync(c context.Context, f *filter.T,
	opts ...SubscriptionOption) (evs []*event.T, err error) {

	var sub *Subscription
	if sub, err = r.Subscribe(c, filters.New(f), opts...); err != nil {
		return
	}
	defer sub.Unsub()
	if _, ok := c.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.CancelFunc
		c, cancel = context.WithTimeout(c, 7*time.Second)
		defer cancel()
	}
	for {
		select {
		case ev := <-sub.Events:
			if ev == nil {
				return
			}
			evs = append(evs, ev)
		case <-sub.EndOfStoredEvents:
			return
		case <-c.Done():
			return
		}
	}
}

// Close tears the link down for good: Closing, then Closed. The connection
// sends a best-effort close frame, pending publishes fail and subscriptions
// end.
func (r *Client) Close() (err error) {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()
	if r.State() == Closed {
		return errorf.E("%w: %s", ErrClosed, r.URL())
	}
	r.setState(Closing, nil)
	r.cancel()
	if r.conn != nil {
		err = r.conn.Close()
	}
	r.setState(Closed, nil)
	return
}
