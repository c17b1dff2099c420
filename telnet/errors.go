package telnet

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorCode is the closed set of Telnet-layer signals and errors. A single
// ErrorCode range serves both "this happened, and it isn't a failure"
// (processing signals) and "something is wrong" (protocol/internal errors),
// matching the spec's single error-code return channel with distinct
// categories.
type ErrorCode int

const (
	// Non-terminal processing signals, absorbed by the stream adapter.
	SigCarriageReturn ErrorCode = iota + 1
	SigDataMark

	// Terminal processing signals, surfaced to the application as the
	// result of a Read.
	SigEndOfLine
	SigGoAhead
	SigEndOfRecord
	SigAbortOutput
	SigInterruptProcess
	SigTelnetBreak
	SigEraseCharacter
	SigEraseLine

	// Protocol errors. Recoverable: the parser resets to Normal and
	// continues on the next byte.
	ErrProtocolViolation
	ErrInvalidCommand
	ErrInvalidSubnegotiation
	ErrSubnegotiationOverflow
	ErrOptionNotAvailable
	ErrInvalidNegotiation
	ErrIgnoredGoAhead
	ErrNegotiationQueueError

	// Internal invariant violations. Never silently swallowed.
	ErrInternal
)

func (c ErrorCode) String() string {
	switch c {
	case SigCarriageReturn:
		return "carriage_return"
	case SigDataMark:
		return "data_mark"
	case SigEndOfLine:
		return "end_of_line"
	case SigGoAhead:
		return "go_ahead"
	case SigEndOfRecord:
		return "end_of_record"
	case SigAbortOutput:
		return "abort_output"
	case SigInterruptProcess:
		return "interrupt_process"
	case SigTelnetBreak:
		return "telnet_break"
	case SigEraseCharacter:
		return "erase_character"
	case SigEraseLine:
		return "erase_line"
	case ErrProtocolViolation:
		return "protocol_violation"
	case ErrInvalidCommand:
		return "invalid_command"
	case ErrInvalidSubnegotiation:
		return "invalid_subnegotiation"
	case ErrSubnegotiationOverflow:
		return "subnegotiation_overflow"
	case ErrOptionNotAvailable:
		return "option_not_available"
	case ErrInvalidNegotiation:
		return "invalid_negotiation"
	case ErrIgnoredGoAhead:
		return "ignored_go_ahead"
	case ErrNegotiationQueueError:
		return "negotiation_queue_error"
	case ErrInternal:
		return "internal_error"
	default:
		return "unknown_error_code"
	}
}

// IsSignal reports whether c is a processing signal rather than a protocol
// or internal error: something the FSM produced deliberately, not a
// malformed byte stream.
func (c ErrorCode) IsSignal() bool {
	return c >= SigCarriageReturn && c <= SigEraseLine
}

// IsTerminal reports whether c is a signal that ends a Read rather than
// being absorbed internally by the stream adapter.
func (c ErrorCode) IsTerminal() bool {
	switch c {
	case SigEndOfLine, SigGoAhead, SigEndOfRecord, SigAbortOutput,
		SigInterruptProcess, SigTelnetBreak, SigEraseCharacter, SigEraseLine:
		return true
	default:
		return false
	}
}

// codedError pairs an ErrorCode with the cockroachdb/errors chain that
// carries the human-readable message and any wrapped transport cause.
type codedError struct {
	code  ErrorCode
	cause error
}

func (e *codedError) Error() string { return e.cause.Error() }
func (e *codedError) Unwrap() error { return e.cause }

// newError builds a codedError with a formatted message, in the style of
// the source's ProtocolConfig::log_error(code, format, args...).
func newError(code ErrorCode, format string, args ...any) error {
	return &codedError{code: code, cause: errors.Newf("%s: %s", code, fmt.Sprintf(format, args...))}
}

// wrapError attaches code to an existing error (typically a transport
// error) without discarding it, matching the spec's requirement that a
// deferred transport error is *propagated*, never dropped.
func wrapError(code ErrorCode, cause error) error {
	if cause == nil {
		return nil
	}
	return &codedError{code: code, cause: errors.Wrapf(cause, "%s", code)}
}

// CodeOf extracts the ErrorCode carried by err, if any was attached by this
// package. The zero ErrorCode is returned for a nil or foreign error.
func CodeOf(err error) (ErrorCode, bool) {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code, true
	}
	return 0, false
}

// Is reports whether err carries the given ErrorCode anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
