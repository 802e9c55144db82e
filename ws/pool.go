package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"

	"relix.lol/chk"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/filter"
	"relix.lol/filters"
	"relix.lol/log"
	"relix.lol/normalize"
	"relix.lol/reason"
	"relix.lol/seen"
	"relix.lol/signer"
)

// DefaultSeenCapacity is how many event ids the dedup window of a pool
// subscription retains when WithSeenCapacity is not given.
const DefaultSeenCapacity = 4096

// poolCloseGrace bounds how long Close waits for the links to finish.
const poolCloseGrace = 5 * time.Second

// Pool holds one Client per relay address and runs operations across all of
// them: fan-out publishes with per-relay verdicts and fanned-out
// subscriptions merged back into one deduplicated stream.
type Pool struct {
	Relays  *xsync.MapOf[string, *Client]
	Context context.Context
	cancel  context.CancelFunc

	authHandler func() signer.I
	middleware  []func(IncomingEvent)
	relayOpts   []Option
	seenCap     int

	// SignatureChecker replaces signature verification on every link the
	// pool opens.
	SignatureChecker func(*event.T) bool
}

// IncomingEvent pairs an event with the link that delivered it.
type IncomingEvent struct {
	Event *event.T
	Relay *Client
}

func (ie IncomingEvent) String() string {
	return fmt.Sprintf("[%s] >> %s", ie.Relay.URL(), ie.Event.Serialize())
}

// PublishResult is one relay's verdict on a published event. OK and Reason
// carry the relay's answer; Err is set when no answer arrived.
type PublishResult struct {
	Relay  *Client
	OK     bool
	Reason []byte
	Err    error
}

// PoolOption configures a Pool at construction.
type PoolOption interface {
	ApplyPoolOption(*Pool)
}

// WithAuthHandler supplies the signer used when a relay answers a REQ with
// an auth-required CLOSED; each such relay is authed once and the
// subscription fired again.
type WithAuthHandler func() signer.I

func (h WithAuthHandler) ApplyPoolOption(p *Pool) { p.authHandler = h }

// WithEventMiddleware is called with every delivered event, after dedup.
// More than one can be given.
type WithEventMiddleware func(IncomingEvent)

func (h WithEventMiddleware) ApplyPoolOption(p *Pool) {
	p.middleware = append(p.middleware, h)
}

// WithSeenCapacity sets the id retention window of the dedup set each pool
// subscription carries.
type WithSeenCapacity int

func (n WithSeenCapacity) ApplyPoolOption(p *Pool) { p.seenCap = int(n) }

// WithRelayOptions passes these options to every link the pool opens.
type WithRelayOptions []Option

func (o WithRelayOptions) ApplyPoolOption(p *Pool) {
	p.relayOpts = append(p.relayOpts, o...)
}

var (
	_ PoolOption = (WithAuthHandler)(nil)
	_ PoolOption = (WithEventMiddleware)(nil)
	_ PoolOption = (WithSeenCapacity)(0)
	_ PoolOption = (WithRelayOptions)(nil)
)

// NewPool returns a pool bound to c; canceling it or calling Close ends
// every link and subscription the pool opened.
func NewPool(c context.Context, opts ...PoolOption) (p *Pool) {
	ctx, cancel := context.WithCancel(c)
	p = &Pool{
		Relays:  xsync.NewMapOf[string, *Client](),
		Context: ctx,
		cancel:  cancel,
		seenCap: DefaultSeenCapacity,
	}
	for _, opt := range opts {
		opt.ApplyPoolOption(p)
	}
	return
}

const maxLocks = 50

var namedMutexPool = make([]sync.Mutex, maxLocks)

//go:noescape
//go:linkname memhash runtime.memhash
func memhash(p unsafe.Pointer, h, s uintptr) uintptr

func namedLock(name string) (unlock func()) {
	sptr := unsafe.StringData(name)
	idx := uint64(memhash(unsafe.Pointer(sptr), 0,
		uintptr(len(name)))) % maxLocks
	namedMutexPool[idx].Lock()
	return namedMutexPool[idx].Unlock
}

// Ensure returns the pool's link for url, dialing it first if the pool does
// not hold one yet. Concurrent callers for the same address share one dial.
// A held link that is merely Faulted is returned as is; it reconnects on
// its own.
func (p *Pool) Ensure(url string) (rl *Client, err error) {
	nm := string(normalize.URL(url))
	if len(nm) == 0 {
		return nil, errorf.E("invalid relay URL '%s'", url)
	}
	defer namedLock(nm)()
	var ok bool
	if rl, ok = p.Relays.Load(nm); ok && rl.State() != Closed {
		return
	}
	opts := make([]Option, 0, len(p.relayOpts)+2)
	opts = append(opts, p.relayOpts...)
	if p.SignatureChecker != nil {
		opts = append(opts, WithSignatureChecker(p.SignatureChecker))
	}
	if p.authHandler != nil {
		opts = append(opts, WithAuthSigner(p.authHandler))
	}
	// the link's life is bound to the pool; only the dial gets the timeout
	rl = NewRelay(p.Context, nm, opts...)
	c, cancel := context.WithTimeout(p.Context, 15*time.Second)
	defer cancel()
	if err = rl.Connect(c); err != nil {
		return nil, errorf.E("failed to connect: %w", err)
	}
	p.Relays.Store(nm, rl)
	return
}

// Remove closes and forgets the link for url.
func (p *Pool) Remove(url string) {
	nm := string(normalize.URL(url))
	defer namedLock(nm)()
	if rl, ok := p.Relays.LoadAndDelete(nm); ok {
		chk.D(rl.Close())
	}
}

// Close stops the pool: subscriptions end, retries mid-backoff are cut
// short, and every link closes. It waits up to a grace period for the links
// to finish.
func (p *Pool) Close() {
	p.cancel()
	var wg sync.WaitGroup
	p.Relays.Range(func(nm string, rl *Client) bool {
		wg.Add(1)
		go func(rl *Client) {
			defer wg.Done()
			chk.D(rl.Close())
		}(rl)
		p.Relays.Delete(nm)
		return true
	})
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(poolCloseGrace):
	}
}

// Publish sends the event to every relay currently in the pool and streams
// one PublishResult per relay back. The channel closes when every relay has
// answered or given up; partial acceptance is normal and left to the caller
// to judge.
func (p *Pool) Publish(c context.Context, ev *event.T) (results chan PublishResult) {
	results = make(chan PublishResult)
	var wg sync.WaitGroup
	p.Relays.Range(func(nm string, rl *Client) bool {
		wg.Add(1)
		go func(rl *Client) {
			defer wg.Done()
			accepted, why, err := rl.PublishStatus(c, ev)
			select {
			case results <- PublishResult{
				Relay: rl, OK: accepted, Reason: why, Err: err,
			}:
			case <-c.Done():
			case <-p.Context.Done():
			}
		}(rl)
		return true
	})
	go func() {
		wg.Wait()
		close(results)
	}()
	return
}

// PoolSub is one logical subscription fanned out across several relays and
// merged back into a single stream.
type PoolSub struct {
	// Events is the merged, deduplicated stream. Each relay's own order is
	// preserved; interleaving between relays follows arrival. Closed when
	// the subscription ends.
	Events event.C
	// Eose emits each relay's URL as it reports the end of stored events.
	Eose chan string
	// AllEose is closed once every participating relay has either reported
	// EOSE or terminally failed.
	AllEose chan struct{}
	// Degraded emits true when the last live relay of the subscription
	// goes down, false when one comes back.
	Degraded chan bool

	pool   *Pool
	cancel context.CancelFunc
}

// Unsub ends the subscription on every relay.
func (ps *PoolSub) Unsub() { ps.cancel() }

// linkSignal is what a forwarder reports to the merge consumer. Exactly one
// of the fields is meaningful.
type linkSignal struct {
	rl   *Client
	ev   *event.T
	eose bool
	// dead: the subscription on this link will not deliver again
	dead bool
	// down and up track the link's transport state
	down bool
	up   bool
}

// memberState is the consumer's bookkeeping for one participating link.
type memberState struct {
	up    bool
	eosed bool
	dead  bool
}

// Subscribe fans one subscription out to the named relays, dialing any the
// pool does not hold yet, and merges the results. With no urls it uses
// every relay currently in the pool.
func (p *Pool) Subscribe(c context.Context, urls []string, ff *filters.T,
	opts ...SubscriptionOption) (ps *PoolSub, err error) {

	return p.subscribe(c, urls, ff, false, opts...)
}

// SubscribeEose is Subscribe for snapshot queries: the subscription ends
// itself once every relay has reported EOSE or failed.
func (p *Pool) SubscribeEose(c context.Context, urls []string, ff *filters.T,
	opts ...SubscriptionOption) (ps *PoolSub, err error) {

	return p.subscribe(c, urls, ff, true, opts...)
}

func (p *Pool) subscribe(c context.Context, urls []string, ff *filters.T,
	eoseOnly bool, opts ...SubscriptionOption) (ps *PoolSub, err error) {

	var links []*Client
	have := make(map[string]bool)
	if len(urls) == 0 {
		p.Relays.Range(func(nm string, rl *Client) bool {
			links = append(links, rl)
			return true
		})
		if len(links) == 0 {
			return nil, errorf.E("no relays in pool")
		}
	} else {
		for _, u := range urls {
			var rl *Client
			var e error
			if rl, e = p.Ensure(u); e != nil {
				log.D.F("cannot subscribe on %s: %v", u, e)
				continue
			}
			if have[rl.URL()] {
				continue
			}
			have[rl.URL()] = true
			links = append(links, rl)
		}
		if len(links) == 0 {
			return nil, errorf.E("could not connect to any of %v", urls)
		}
	}
	ctx, cancel := context.WithCancel(c)
	ps = &PoolSub{
		Events:   make(event.C),
		Eose:     make(chan string, len(links)),
		AllEose:  make(chan struct{}),
		Degraded: make(chan bool, 8),
		pool:     p,
		cancel:   cancel,
	}
	sig := make(chan linkSignal)
	members := make(map[*Client]*memberState, len(links))
	for _, rl := range links {
		members[rl] = &memberState{up: rl.State() == Open}
	}
	for _, rl := range links {
		go p.forward(ctx, rl, ff, sig, opts...)
	}
	go ps.run(ctx, sig, members, eoseOnly)
	return
}

// forward runs one link's share of a pool subscription: it subscribes on
// the link, relays everything the subscription emits into sig, watches the
// link's state for fault and recovery, and handles auth-required rejections
// when the pool has an auth handler.
func (p *Pool) forward(ctx context.Context, rl *Client, ff *filters.T,
	sig chan linkSignal, opts ...SubscriptionOption) {

	send := func(s linkSignal) bool {
		s.rl = rl
		select {
		case sig <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}
	st := make(chan StateChange, 8)
	rl.StateNotify(st)
	defer rl.StateStop(st)
	// each link gets its own copy of the filters, since a replay advances
	// Since independently per link
	fc := filters.New()
	for _, f := range ff.F {
		fc.F = append(fc.F, f.Clone())
	}
	sub, err := rl.Subscribe(ctx, fc, opts...)
	if err != nil {
		log.D.F("{%s} subscribe failed: %v", rl.URL(), err)
		send(linkSignal{dead: true})
		return
	}
	defer sub.Unsub()
	hasAuthed := false
	for {
		select {
		case <-ctx.Done():
			return
		case ev, more := <-sub.Events:
			if !more {
				send(linkSignal{dead: true})
				return
			}
			if !send(linkSignal{ev: ev}) {
				return
			}
		case <-sub.EndOfStoredEvents:
			if !send(linkSignal{eose: true}) {
				return
			}
		case rsn := <-sub.ClosedReason:
			if bytes.HasPrefix(rsn, reason.AuthRequired.B()) &&
				p.authHandler != nil && !hasAuthed {
				// the relay wants auth for this REQ; auth once and fire
				// the subscription again
				if err = rl.Auth(ctx, p.authHandler()); err == nil {
					hasAuthed = true
					if err = sub.Fire(); err == nil {
						continue
					}
				}
			}
			log.D.F("{%s} CLOSED: '%s'", rl.URL(), rsn)
			send(linkSignal{dead: true})
			return
		case sc := <-st:
			switch sc.State {
			case Faulted:
				if errors.Is(sc.Err, ErrExhausted) {
					// the link gave up; stop counting on its EOSE, but
					// keep watching in case a Reset revives it
					if !send(linkSignal{dead: true}) {
						return
					}
					continue
				}
				if !send(linkSignal{down: true}) {
					return
				}
			case Open:
				if !send(linkSignal{up: true}) {
					return
				}
			}
		}
	}
}

// run is the merge consumer: the single goroutine that owns the dedup set
// and the membership bookkeeping of one pool subscription.
func (ps *PoolSub) run(ctx context.Context, sig chan linkSignal,
	members map[*Client]*memberState, eoseOnly bool) {

	defer close(ps.Events)
	p := ps.pool
	sn := seen.New(p.seenCap)
	degraded := false
	allEose := false
	anyUp := func() bool {
		for _, m := range members {
			if m.up {
				return true
			}
		}
		return false
	}
	pending := func() bool {
		for _, m := range members {
			if !m.eosed && !m.dead {
				return true
			}
		}
		return false
	}
	sendDegraded := func(v bool) {
		select {
		case ps.Degraded <- v:
		default:
		}
	}
	for {
		var s linkSignal
		select {
		case s = <-sig:
		case <-ctx.Done():
			return
		case <-p.Context.Done():
			return
		}
		m := members[s.rl]
		if m == nil {
			continue
		}
		switch {
		case s.ev != nil:
			if sn.Seen(s.ev.Id) {
				continue
			}
			for _, mw := range p.middleware {
				mw(IncomingEvent{Event: s.ev, Relay: s.rl})
			}
			select {
			case ps.Events <- s.ev:
			case <-ctx.Done():
				return
			case <-p.Context.Done():
				return
			}
		case s.eose:
			if m.eosed || m.dead {
				continue
			}
			m.eosed = true
			ps.Eose <- s.rl.URL()
			if !allEose && !pending() {
				allEose = true
				close(ps.AllEose)
				if eoseOnly {
					ps.cancel()
					return
				}
			}
		case s.dead:
			if m.dead {
				continue
			}
			m.dead = true
			wasUp := m.up
			m.up = false
			if !allEose && !pending() {
				allEose = true
				close(ps.AllEose)
				if eoseOnly {
					ps.cancel()
					return
				}
			}
			if wasUp && !degraded && !anyUp() {
				degraded = true
				sendDegraded(true)
			}
		case s.down:
			if m.dead || !m.up {
				continue
			}
			m.up = false
			if !degraded && !anyUp() {
				degraded = true
				sendDegraded(true)
			}
		case s.up:
			if m.dead || m.up {
				continue
			}
			m.up = true
			if degraded {
				degraded = false
				sendDegraded(false)
			}
		}
	}
}

// QuerySingle returns the first event from the first relay to answer, nil
// when nothing arrives before every relay finishes or the context ends.
func (p *Pool) QuerySingle(c context.Context, urls []string,
	f *filter.T) (ev *event.T) {

	ctx, cancel := context.WithCancel(c)
	defer cancel()
	ps, err := p.SubscribeEose(ctx, urls, filters.New(f))
	if err != nil {
		return
	}
	for ev = range ps.Events {
		return
	}
	return nil
}
