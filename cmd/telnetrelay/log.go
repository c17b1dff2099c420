package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/corvidlabs/gotelnet/internal/event"
	"github.com/corvidlabs/gotelnet/telnet"
)

// eventLogHandler subscribes to a Stream's event.Dispatcher and traces every
// option-change, subnegotiation, and protocol-error event at Trace level.
type eventLogHandler struct {
	zerolog.Logger
}

func registerEventLog(bus event.Dispatcher, logger zerolog.Logger) {
	h := eventLogHandler{Logger: logger}
	bus.ListenFunc(telnet.EventOptionEnabled, h.listen)
	bus.ListenFunc(telnet.EventOptionDisabled, h.listen)
	bus.ListenFunc(telnet.EventSubnegotiation, h.listen)
	bus.ListenFunc(telnet.EventProtocolError, h.listen)
}

func (h eventLogHandler) listen(_ context.Context, data any) error {
	log := h.Trace()
	switch t := data.(type) {
	case telnet.OptionChange:
		log.Stringer("option", t.Option).Stringer("dir", t.Dir)
	case telnet.Subnegotiation:
		log.Stringer("option", t.Option).Bytes("payload", t.Payload)
	case telnet.ErrorEvent:
		log.Stringer("code", t.Code).Str("message", t.Message)
	default:
		log.Interface("data", t)
	}
	log.Send()
	return nil
}
