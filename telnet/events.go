package telnet

import (
	"context"
	"fmt"

	"github.com/corvidlabs/gotelnet/internal/event"
)

// Event names dispatched on a Stream's event.Dispatcher. These are
// observational: nothing in this package depends on a listener being
// present, and a listener's error return is discarded without affecting
// protocol processing.
const (
	// EventOptionEnabled fires with an OptionChange payload whenever an
	// option's Q-state reaches YES in either direction.
	EventOptionEnabled event.Name = "telnet.option_enabled"

	// EventOptionDisabled fires with an OptionChange payload whenever an
	// option's Q-state leaves YES in either direction.
	EventOptionDisabled event.Name = "telnet.option_disabled"

	// EventSubnegotiation fires with a Subnegotiation payload whenever a
	// completed SB...SE payload is routed to the HandlerRegistry. STATUS
	// subnegotiations, which the FSM answers itself, do not fire it.
	EventSubnegotiation event.Name = "telnet.subnegotiation"

	// EventProtocolError fires with an ErrorEvent payload for every
	// non-nil error this package's ErrorSink receives, letting an
	// application observe them without implementing ErrorSink itself.
	EventProtocolError event.Name = "telnet.protocol_error"
)

// OptionChange is the payload for EventOptionEnabled/EventOptionDisabled.
type OptionChange struct {
	Option OptionID
	Dir    Direction
}

// Subnegotiation is the payload for EventSubnegotiation.
type Subnegotiation struct {
	Option  OptionID
	Payload []byte
}

// ErrorEvent is the payload for EventProtocolError.
type ErrorEvent struct {
	Code    ErrorCode
	Message string
}

// dispatchingSink wraps an ErrorSink, additionally publishing every logged
// code onto an event.Dispatcher as EventProtocolError. It's how
// cmd/telnetrelay observes errors without depending on the concrete sink
// implementation.
type dispatchingSink struct {
	next ErrorSink
	bus  event.Dispatcher
	ctx  context.Context
}

func newDispatchingSink(next ErrorSink, bus event.Dispatcher) *dispatchingSink {
	if next == nil {
		next = NopSink{}
	}
	return &dispatchingSink{next: next, bus: bus, ctx: context.Background()}
}

func (s *dispatchingSink) Log(code ErrorCode, format string, args ...any) {
	s.next.Log(code, format, args...)
	if s.bus == nil {
		return
	}
	_ = s.bus.Dispatch(s.ctx, EventProtocolError, ErrorEvent{Code: code, Message: fmt.Sprintf(format, args...)})
}
