package ws

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/atomic"

	"relix.lol/chk"
	"relix.lol/envelopes/closeenvelope"
	"relix.lol/envelopes/reqenvelope"
	"relix.lol/errorf"
	"relix.lol/event"
	"relix.lol/filters"
	"relix.lol/log"
	"relix.lol/subscription"
	"relix.lol/timestamp"
)

// incomingBuffer is how many events a subscription queues between the read
// loop and the consumer before the read loop feels backpressure.
const incomingBuffer = 32

type Subscription struct {
	label   string
	counter int

	Relay   *Client
	Filters *filters.T

	// Events emits everything that arrives for this subscription, in
	// arrival order. It is closed when the subscription ends.
	Events event.C
	mu     sync.Mutex

	// EndOfStoredEvents receives a signal when the relay reports that
	// everything stored matching the filters has been sent.
	EndOfStoredEvents chan struct{}

	// ClosedReason emits the reason when the relay sends CLOSED.
	ClosedReason chan []byte

	// Context is done when the subscription ends.
	Context context.Context

	live   atomic.Bool
	eosed  atomic.Bool
	closed atomic.Bool
	cancel context.CancelFunc

	// latest is the newest created_at delivered, so a replay after
	// reconnect resumes from where the stream left off.
	latest atomic.Int64

	incoming chan queuedEvent

	// events received before EOSE must be dispatched before the
	// EndOfStoredEvents signal goes out
	storedwg sync.WaitGroup
}

type queuedEvent struct {
	ev *event.T
	// counted marks events that hold up the EndOfStoredEvents signal
	counted bool
}

// SubscriptionOption is the type of the arguments passed to Subscribe and
// PrepareSubscription.
type SubscriptionOption interface {
	IsSubscriptionOption()
}

// WithLabel prefixes the generated subscription id so the relay's logs show
// who is asking.
type WithLabel string

func (WithLabel) IsSubscriptionOption() {}

var _ SubscriptionOption = (WithLabel)("")

// GetID returns the subscription id sent to the relay, a concatenation of
// the label and a serial number.
func (sub *Subscription) GetID() (id *subscription.Id) {
	var err error
	if id, err = subscription.NewId(sub.label + ":" +
		strconv.Itoa(sub.counter)); chk.E(err) {
		return
	}
	return
}

func (sub *Subscription) start() {
	go sub.pump()
	<-sub.Context.Done()
	// the subscription ends once the context is canceled (if not already)
	sub.Unsub()
	// take the lock so a delivery in flight completes before the channel
	// closes under it
	sub.mu.Lock()
	close(sub.Events)
	sub.mu.Unlock()
}

// pump moves queued events to the Events channel one at a time, preserving
// the order the relay sent them.
func (sub *Subscription) pump() {
	for {
		select {
		case q := <-sub.incoming:
			sub.mu.Lock()
			if sub.live.Load() {
				select {
				case sub.Events <- q.ev:
				case <-sub.Context.Done():
				}
			}
			sub.mu.Unlock()
			if q.counted {
				sub.storedwg.Done()
			}
		case <-sub.Context.Done():
			return
		}
	}
}

func (sub *Subscription) dispatchEvent(ev *event.T) {
	if ev.CreatedAt != nil {
		ts := ev.CreatedAt.I64()
		for {
			cur := sub.latest.Load()
			if ts <= cur || sub.latest.CompareAndSwap(cur, ts) {
				break
			}
		}
	}
	counted := false
	if !sub.eosed.Load() {
		sub.storedwg.Add(1)
		counted = true
	}
	select {
	case sub.incoming <- queuedEvent{ev: ev, counted: counted}:
	case <-sub.Context.Done():
		if counted {
			sub.storedwg.Done()
		}
	}
}

func (sub *Subscription) dispatchEose() {
	if sub.eosed.CompareAndSwap(false, true) {
		go func() {
			sub.storedwg.Wait()
			select {
			case sub.EndOfStoredEvents <- struct{}{}:
			case <-sub.Context.Done():
			}
		}()
	}
}

func (sub *Subscription) dispatchClosed(reason []byte) {
	if sub.closed.CompareAndSwap(false, true) {
		select {
		case sub.ClosedReason <- reason:
		default:
		}
	}
}

// Unsub closes the subscription, sending CLOSE to the relay if it is still
// connected. It also closes the Events channel.
func (sub *Subscription) Unsub() {
	sub.cancel()
	if sub.live.CompareAndSwap(true, false) {
		sub.Close()
	}
	sub.Relay.Subscriptions.Delete(sub.GetID().String())
}

// Close just sends a CLOSE message. You probably want Unsub instead.
func (sub *Subscription) Close() {
	if sub.Relay.IsConnected() {
		id := sub.GetID()
		closeMsg := closeenvelope.NewFrom(id)
		b := closeMsg.Marshal(nil)
		log.D.F("{%s} sending %s", sub.Relay.URL(), b)
		<-sub.Relay.Write(b)
	}
}

// Sub sets sub.Filters and fires the subscription.
func (sub *Subscription) Sub(_ context.Context, ff *filters.T) {
	sub.Filters = ff
	chk.D(sub.Fire())
}

// Fire sends the REQ. When events were already delivered, the filters are
// advanced to the latest seen created_at first, so replaying after a
// reconnect does not refetch what already arrived.
func (sub *Subscription) Fire() (err error) {
	id := sub.GetID()
	if since := sub.latest.Load(); since > 0 {
		for _, f := range sub.Filters.F {
			f.Since = timestamp.FromUnix(since)
		}
	}
	var b []byte
	b = reqenvelope.NewFrom(id, sub.Filters).Marshal(b)
	log.D.F("{%s} sending %s", sub.Relay.URL(), b)
	sub.live.Store(true)
	if err = <-sub.Relay.Write(b); err != nil {
		sub.cancel()
		return errorf.E("failed to write: %w", err)
	}
	return
}
