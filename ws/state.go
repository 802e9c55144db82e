package ws

import (
	"errors"
)

// State is the lifecycle stage of a relay link.
type State int32

const (
	// Connecting means a handshake or reconnect attempt is in progress.
	Connecting State = iota
	// Open means the link is established and frames are flowing.
	Open
	// Closing means a deliberate shutdown has begun.
	Closing
	// Closed means the link is finished and will not come back.
	Closed
	// Faulted means the transport failed. The link retries on its own with
	// backoff until the retry ceiling, after which it stays down until
	// Reset is called.
	Faulted
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// StateChange is delivered to channels registered with Client.StateNotify on
// every transition. Err is set on Faulted transitions.
type StateChange struct {
	State State
	Err   error
}

// ErrClosed is returned by operations on a link that has been closed.
var ErrClosed = errors.New("connection closed")

// ErrExhausted is the Err of the Faulted notification sent when the retry
// ceiling is reached without reestablishing the connection.
var ErrExhausted = errors.New("retry ceiling reached")

// StateNotify registers ch to receive a StateChange on every transition.
// Delivery never blocks the link; give the channel capacity if no
// transition may be missed.
func (r *Client) StateNotify(ch chan StateChange) {
	r.stateSinks.Store(ch, struct{}{})
}

// StateStop unregisters a channel previously passed to StateNotify.
func (r *Client) StateStop(ch chan StateChange) { r.stateSinks.Delete(ch) }

// State reports the current lifecycle stage of the link.
func (r *Client) State() State { return State(r.state.Load()) }

func (r *Client) setState(s State, err error) {
	r.state.Store(int32(s))
	sc := StateChange{State: s, Err: err}
	r.stateSinks.Range(func(ch chan StateChange, _ struct{}) bool {
		select {
		case ch <- sc:
		default:
		}
		return true
	})
}
