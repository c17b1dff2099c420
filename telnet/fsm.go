package telnet

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/corvidlabs/gotelnet/internal/event"
	"github.com/corvidlabs/gotelnet/telnet/metrics"
)

// parserState is the byte-consuming parser's current state (spec.md §3,
// §4.2). Transient slots (currentCommand, currentOption, subnegotiation
// buffer) are cleared whenever the parser returns to Normal.
type parserState int

const (
	stateNormal parserState = iota
	stateHasCR
	stateHasIAC
	stateOptionNegotiation
	stateSubnegotiationOption
	stateSubnegotiation
	stateSubnegotiationIAC
)

// negotiationEvent is an outbound negotiation reply the FSM wants written:
// IAC <cmd> <id> where cmd is derived from (dir, enable).
type negotiationEvent struct {
	Dir    Direction
	Enable bool
	Opt    OptionID
}

func (e negotiationEvent) command() Command {
	switch {
	case e.Dir == Remote && e.Enable:
		return DO
	case e.Dir == Remote && !e.Enable:
		return DONT
	case e.Dir == Local && e.Enable:
		return WILL
	default:
		return WONT
	}
}

// fsmEvent is the tagged union of outbound reactions process_byte may
// produce, per spec.md §4.2. At most one of Negotiation/Raw is set.
type fsmEvent struct {
	Negotiation *negotiationEvent
	Raw         []byte // pre-framed bytes to write verbatim (AYT reply, a subnegotiation reply frame)
}

// protocolFSM is the byte parser plus RFC 1143 Q-Method engine. It owns the
// OptionStatusDB and holds (does not own) the OptionRegistry and
// HandlerRegistry, per spec.md §3's ownership rules.
type protocolFSM struct {
	state parserState

	hasCmd bool
	cmd    Command

	hasOpt  bool
	optDesc OptionDescriptor

	subnegBuf []byte

	status    *OptionStatusDB
	registry  *OptionRegistry
	handlers  *HandlerRegistry
	sink      ErrorSink
	bus       event.Dispatcher
	mtx       *metrics.Collector
	aytReply  []byte
	unknownFn func(OptionID)
}

func newProtocolFSM(registry *OptionRegistry, handlers *HandlerRegistry, sink ErrorSink, bus event.Dispatcher, mtx *metrics.Collector) *protocolFSM {
	if sink == nil {
		sink = NopSink{}
	}
	return &protocolFSM{
		state:    stateNormal,
		status:   newOptionStatusDB(),
		registry: registry,
		handlers: handlers,
		sink:     sink,
		bus:      bus,
		mtx:      mtx,
		aytReply: []byte("\r\n"),
	}
}

// fireEnable runs the application handler for opt's enablement in dir and
// publishes EventOptionEnabled.
func (f *protocolFSM) fireEnable(opt OptionID, dir Direction) {
	f.handlers.handleEnablement(opt, dir)
	f.publish(EventOptionEnabled, OptionChange{Option: opt, Dir: dir})
	f.observeNegotiation(opt, dir, metrics.ResultEnabled)
}

// fireDisable runs the application handler for opt's disablement in dir,
// without awaiting its shutdown channel, and publishes EventOptionDisabled.
func (f *protocolFSM) fireDisable(opt OptionID, dir Direction) {
	f.handlers.handleDisablement(opt, dir)
	f.publish(EventOptionDisabled, OptionChange{Option: opt, Dir: dir})
	f.observeNegotiation(opt, dir, metrics.ResultDisabled)
}

// fireDisableAwait is fireDisable's variant for the outbound DisableOption
// path, which returns the shutdown channel for the caller to await.
func (f *protocolFSM) fireDisableAwait(opt OptionID, dir Direction) <-chan struct{} {
	ch := f.handlers.handleDisablement(opt, dir)
	f.publish(EventOptionDisabled, OptionChange{Option: opt, Dir: dir})
	f.observeNegotiation(opt, dir, metrics.ResultDisabled)
	return ch
}

func (f *protocolFSM) observeNegotiation(opt OptionID, dir Direction, result metrics.NegotiationResult) {
	if f.mtx == nil {
		return
	}
	f.mtx.ObserveNegotiation(opt.String(), dir.String(), result)
}

func (f *protocolFSM) publish(name event.Name, data any) {
	if f.bus == nil {
		return
	}
	_ = f.bus.Dispatch(context.Background(), name, data)
}

func (f *protocolFSM) log(code ErrorCode, format string, args ...any) {
	f.sink.Log(code, format, args...)
	if f.mtx != nil && !code.IsSignal() {
		f.mtx.ObserveProtocolError(code.String())
		if code == ErrSubnegotiationOverflow {
			f.mtx.ObserveSubnegotiationOverflow()
		}
	}
}

// changeState transitions the parser, clearing all transient slots when
// returning to Normal, per spec.md §4.2's change_state.
func (f *protocolFSM) changeState(next parserState) {
	if next == stateNormal {
		f.hasCmd = false
		f.hasOpt = false
		f.subnegBuf = nil
	}
	f.state = next
}

// Enabled reports whether id is enabled in dir. Used by the escaper and by
// callers checking, e.g., BINARY mode.
func (f *protocolFSM) Enabled(id OptionID, dir Direction) bool {
	return f.status.Enabled(id, dir)
}

// ProcessByte feeds one byte through the parser. It returns:
//   - err: nil, a non-terminal signal (absorbed by the stream adapter), a
//     terminal signal (surfaced to the application), or a protocol/internal
//     error. All are ErrorCode-carrying via CodeOf.
//   - forward: whether b is application payload that should be copied to
//     the read buffer. A suppressed earlier CR is reported through the
//     SigCarriageReturn signal instead, for the caller to reinsert.
//   - ev: an optional outbound reaction the caller must write.
func (f *protocolFSM) ProcessByte(b byte) (err error, forward bool, ev *fsmEvent) {
	switch f.state {
	case stateNormal:
		return f.handleNormal(b)
	case stateHasCR:
		return f.handleHasCR(b)
	case stateHasIAC:
		return f.handleHasIAC(b)
	case stateOptionNegotiation:
		return f.handleOptionNegotiation(b)
	case stateSubnegotiationOption:
		return f.handleSubnegotiationOption(b)
	case stateSubnegotiation:
		return f.handleSubnegotiation(b)
	case stateSubnegotiationIAC:
		return f.handleSubnegotiationIAC(b)
	default:
		f.log(ErrProtocolViolation, "byte: 0x%02x, parser in unreachable state %d", b, f.state)
		f.changeState(stateNormal)
		return newError(ErrProtocolViolation, "unreachable parser state"), false, nil
	}
}

func (f *protocolFSM) handleNormal(b byte) (error, bool, *fsmEvent) {
	switch {
	case b == byte(IAC):
		f.changeState(stateHasIAC)
		return nil, false, nil
	case b == '\r' && !f.status.Enabled(Binary, Remote):
		f.changeState(stateHasCR)
		return nil, false, nil
	case b == 0:
		return nil, false, nil
	default:
		return nil, true, nil
	}
}

func (f *protocolFSM) handleHasCR(b byte) (error, bool, *fsmEvent) {
	next := stateNormal
	var err error
	var forward bool

	switch b {
	case '\n':
		err = newError(SigEndOfLine, "CR LF end-of-line")
		forward = true
	case 0:
		err = newError(SigCarriageReturn, "CR NUL: suppressed CR must be reinserted")
		forward = false
	case byte(IAC):
		f.log(ErrProtocolViolation, "bare CR before IAC")
		err = newError(SigCarriageReturn, "bare CR before IAC: reinsert and re-enter HasIAC")
		forward = false
		next = stateHasIAC
	default:
		f.log(ErrProtocolViolation, "bare CR before 0x%02x", b)
		err = newError(SigCarriageReturn, "bare CR before ordinary byte: reinsert both")
		forward = true
	}

	f.changeState(next)
	return err, forward, nil
}

func (f *protocolFSM) handleHasIAC(b byte) (error, bool, *fsmEvent) {
	cmd := Command(b)
	switch cmd {
	case IAC:
		f.changeState(stateNormal)
		return nil, true, nil // escaped 0xFF data byte
	case WILL, WONT, DO, DONT:
		f.hasCmd, f.cmd = true, cmd
		f.changeState(stateOptionNegotiation)
		return nil, false, nil
	case SB:
		f.changeState(stateSubnegotiationOption)
		return nil, false, nil
	case SE:
		f.log(ErrInvalidSubnegotiation, "SE with no matching SB")
		f.changeState(stateNormal)
		return newError(ErrInvalidSubnegotiation, "SE with no matching SB"), false, nil
	case DM:
		f.changeState(stateNormal)
		return newError(SigDataMark, "IAC DM"), false, nil
	case GA:
		f.changeState(stateNormal)
		if f.status.Enabled(SuppressGoAhead, Remote) {
			f.log(ErrIgnoredGoAhead, "GA received with SUPPRESS-GO-AHEAD enabled remotely")
			return newError(ErrIgnoredGoAhead, "GA received with SUPPRESS-GO-AHEAD enabled remotely"), false, nil
		}
		return newError(SigGoAhead, "IAC GA"), false, nil
	case AYT:
		f.changeState(stateNormal)
		return nil, false, &fsmEvent{Raw: f.aytReply}
	case EOR:
		f.changeState(stateNormal)
		if f.status.Enabled(EndOfRecord, Remote) {
			return newError(SigEndOfRecord, "IAC EOR"), false, nil
		}
		return nil, false, nil
	case NOP:
		f.changeState(stateNormal)
		return nil, false, nil
	case EC:
		f.changeState(stateNormal)
		return newError(SigEraseCharacter, "IAC EC"), false, nil
	case EL:
		f.changeState(stateNormal)
		return newError(SigEraseLine, "IAC EL"), false, nil
	case AO:
		f.changeState(stateNormal)
		return newError(SigAbortOutput, "IAC AO"), false, nil
	case IP:
		f.changeState(stateNormal)
		return newError(SigInterruptProcess, "IAC IP"), false, nil
	case BRK:
		f.changeState(stateNormal)
		return newError(SigTelnetBreak, "IAC BRK"), false, nil
	default:
		f.log(ErrInvalidCommand, "byte: 0x%02x, unrecognized command after IAC", b)
		f.changeState(stateNormal)
		return newError(ErrInvalidCommand, "unrecognized command 0x%02x after IAC", b), false, nil
	}
}

func (f *protocolFSM) handleSubnegotiationOption(b byte) (error, bool, *fsmEvent) {
	opt := OptionID(b)
	desc, registered := f.registry.Get(opt)
	if !registered {
		desc = f.registry.UpsertDefault(opt)
		f.log(ErrInvalidSubnegotiation, "SB for unregistered option %v", opt)
	} else if !desc.SupportsSubnegotiation || !(f.status.Enabled(opt, Local) || f.status.Enabled(opt, Remote)) {
		f.log(ErrInvalidSubnegotiation, "SB for option %v that doesn't support subnegotiation or isn't enabled", opt)
	}
	if desc.MaxSubnegotiationSize == 0 {
		// Not a real subnegotiation participant: completeSubnegotiation's
		// SupportsSubnegotiation gate drops the payload either way, but it
		// still needs room to drain up through the matching IAC SE instead
		// of overflowing on the first byte.
		desc.MaxSubnegotiationSize = DefaultMaxSubnegotiationSize
	}

	f.hasOpt, f.optDesc = true, desc
	f.subnegBuf = make([]byte, 0, desc.MaxSubnegotiationSize)
	f.changeState(stateSubnegotiation)
	return nil, false, nil
}

func (f *protocolFSM) subnegCap() int {
	if f.hasOpt {
		return f.optDesc.MaxSubnegotiationSize
	}
	return 0
}

// appendSubneg appends bs to the subnegotiation buffer, returning
// ErrSubnegotiationOverflow the moment the option's max size would be
// exceeded.
func (f *protocolFSM) appendSubneg(bs ...byte) error {
	cap := f.subnegCap()
	for _, b := range bs {
		if len(f.subnegBuf) >= cap {
			return newError(ErrSubnegotiationOverflow, "subnegotiation payload exceeds max size %s for option %v", humanize.Bytes(uint64(cap)), f.optDesc.ID)
		}
		f.subnegBuf = append(f.subnegBuf, b)
	}
	return nil
}

func (f *protocolFSM) handleSubnegotiation(b byte) (error, bool, *fsmEvent) {
	if b == byte(IAC) {
		f.changeState(stateSubnegotiationIAC)
		return nil, false, nil
	}
	if err := f.appendSubneg(b); err != nil {
		f.log(ErrSubnegotiationOverflow, "byte: 0x%02x, subnegotiation overflow for option %v", b, f.optDesc.ID)
		f.changeState(stateNormal)
		return err, false, nil
	}
	return nil, false, nil
}

func (f *protocolFSM) handleSubnegotiationIAC(b byte) (error, bool, *fsmEvent) {
	switch Command(b) {
	case SE:
		ev := f.completeSubnegotiation()
		f.changeState(stateNormal)
		return nil, false, ev
	case IAC:
		if err := f.appendSubneg(byte(IAC)); err != nil {
			f.log(ErrSubnegotiationOverflow, "subnegotiation overflow for option %v while unescaping IAC IAC", f.optDesc.ID)
			f.changeState(stateNormal)
			return err, false, nil
		}
		f.changeState(stateSubnegotiation)
		return nil, false, nil
	default:
		f.log(ErrInvalidCommand, "byte: 0x%02x, unescaped IAC inside subnegotiation for option %v; tolerating", b, f.optDesc.ID)
		if err := f.appendSubneg(byte(IAC), b); err != nil {
			f.changeState(stateNormal)
			return err, false, nil
		}
		f.changeState(stateSubnegotiation)
		return newError(ErrInvalidCommand, "unescaped IAC 0x%02x inside subnegotiation", b), false, nil
	}
}
