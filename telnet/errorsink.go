package telnet

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// ZerologSink is a zerolog-backed ErrorSink, logging every ErrorCode this
// package produces at a level derived from its category: signals at
// Trace, protocol errors at Warn, internal errors at Error.
type ZerologSink struct {
	zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) ZerologSink {
	return ZerologSink{Logger: logger}
}

func (s ZerologSink) Log(code ErrorCode, format string, args ...any) {
	var ev *zerolog.Event
	switch {
	case code == ErrInternal:
		ev = s.Error()
	case code.IsSignal():
		ev = s.Trace()
	default:
		ev = s.Warn()
	}
	ev.Str("code", code.String()).Msg(fmt.Sprintf(format, args...))
}

// SentrySink wraps another ErrorSink, additionally reporting ErrInternal
// codes to Sentry, matching "internal invariant violations... never
// silently swallowed" for deployments that want off-host visibility.
type SentrySink struct {
	next ErrorSink
}

func NewSentrySink(next ErrorSink) SentrySink {
	if next == nil {
		next = NopSink{}
	}
	return SentrySink{next: next}
}

func (s SentrySink) Log(code ErrorCode, format string, args ...any) {
	s.next.Log(code, format, args...)
	if code != ErrInternal {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("telnet.error_code", code.String())
		sentry.CaptureMessage(fmt.Sprintf(format, args...))
	})
}
