// Package interrupt runs registered cleanup functions when the process
// receives a termination signal, or when shutdown is requested from inside
// the program.
package interrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"relix.lol/log"
)

var (
	mx       sync.Mutex
	handlers []func()
	once     sync.Once
	requests chan struct{}
	restart  bool
	done     chan struct{}
)

// AddHandler registers a function to run at shutdown. Handlers run in
// reverse registration order, the same way deferred calls unwind. The
// signal listener starts with the first handler.
func AddHandler(handler func()) {
	mx.Lock()
	handlers = append(handlers, handler)
	mx.Unlock()
	once.Do(listen)
}

// Request triggers the shutdown sequence without a signal.
func Request() {
	once.Do(listen)
	select {
	case requests <- struct{}{}:
	case <-done:
	}
}

// RequestRestart triggers the shutdown sequence and then replaces the
// process with a fresh copy of itself.
func RequestRestart() {
	mx.Lock()
	restart = true
	mx.Unlock()
	Request()
}

// Done closes after the handlers have run.
func Done() <-chan struct{} {
	once.Do(listen)
	return done
}

func listen() {
	requests = make(chan struct{})
	done = make(chan struct{})
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-ch:
			log.I.F("received %v, shutting down", sig)
		case <-requests:
			log.D.Ln("shutdown requested")
		}
		signal.Stop(ch)
		mx.Lock()
		hs := make([]func(), len(handlers))
		copy(hs, handlers)
		r := restart
		mx.Unlock()
		for i := len(hs) - 1; i >= 0; i-- {
			hs[i]()
		}
		close(done)
		if r {
			Restart()
		}
	}()
}
