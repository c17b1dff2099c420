// Package event implements a small context-aware publish/subscribe bus.
//
// It is used throughout the telnet package to fan protocol-level events
// (negotiation, subnegotiation, option-state changes) out to whatever
// error sink or application handler wants to observe them, without those
// observers being wired into the FSM or stream directly.
package event

import (
	"context"
	"sync"
)

// Name identifies a class of event on the bus.
type Name string

// Listener receives events for the Name it was registered against.
type Listener interface {
	Listen(ctx context.Context, data any) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, data any) error

func (f ListenerFunc) Listen(ctx context.Context, data any) error { return f(ctx, data) }

// Unsubscribe removes the listener it was returned from. Calling it more
// than once is a no-op.
type Unsubscribe func()

// Dispatcher fans events out to registered listeners.
//
// Listen and ListenFunc return the Unsubscribe closure directly: callers
// never need to hang onto the Listener value just to remove it later.
type Dispatcher interface {
	Listen(event Name, l Listener) Unsubscribe
	ListenFunc(event Name, fn ListenerFunc) Unsubscribe
	Dispatch(ctx context.Context, event Name, data any) error
}

func NewDispatcher() Dispatcher {
	return &dispatcher{handlers: make(map[Name]map[int]Listener)}
}

type dispatcher struct {
	mu       sync.RWMutex
	handlers map[Name]map[int]Listener
	nextID   int
}

func (d *dispatcher) Listen(event Name, l Listener) Unsubscribe {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[int]Listener)
	}
	id := d.nextID
	d.nextID++
	d.handlers[event][id] = l
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[event], id)
	}
}

func (d *dispatcher) ListenFunc(event Name, fn ListenerFunc) Unsubscribe {
	return d.Listen(event, fn)
}

func (d *dispatcher) Dispatch(ctx context.Context, event Name, data any) error {
	d.mu.RLock()
	listeners := make([]Listener, 0, len(d.handlers[event]))
	for _, l := range d.handlers[event] {
		listeners = append(listeners, l)
	}
	d.mu.RUnlock()

	for _, l := range listeners {
		if err := l.Listen(ctx, data); err != nil {
			return err
		}
	}
	return nil
}
