package telnet

import (
	"sync/atomic"

	"github.com/corvidlabs/gotelnet/telnet/metrics"
)

// urgentState is the three-state machine reconciling a TCP urgent-data
// notification with the in-band IAC DM that accompanies Telnet's Synch
// discipline. Either event may arrive first; both must be correlated. See
// RFC 854 "Synch" and spec.md §4.7.
type urgentState int32

const (
	noUrgent urgentState = iota
	hasUrgent
	unexpectedDataMark
)

// urgentTracker is the sole object in this package touched from more than
// one goroutine: the stream's read pipeline and the transport's
// out-of-band callback. Both transitions are compare-and-swap loops, exactly
// as specified.
type urgentTracker struct {
	state atomic.Int32
	sink  ErrorSink
	mtx   *metrics.Collector
}

// SawUrgent records that a TCP urgent-data notification arrived.
//
//   - NoUrgent -> HasUrgent: the common case, OOB notification arrived
//     first.
//   - UnexpectedDataMark -> NoUrgent: the DM had already arrived; this
//     notification is the delayed pairing for an already-consumed Synch.
//   - HasUrgent -> (no transition): reentrant urgent-wait, an internal
//     error since watchUrgent should never report urgent data twice
//     without an intervening SawDataMark.
func (t *urgentTracker) SawUrgent() {
	for {
		cur := urgentState(t.state.Load())
		var next urgentState
		switch cur {
		case noUrgent:
			next = hasUrgent
		case unexpectedDataMark:
			next = noUrgent
			t.log(SigDataMark, "DM already arrived before this urgent notification; assuming Synch is already complete")
		case hasUrgent:
			t.log(ErrInternal, "urgent notification arrived while already HasUrgent: reentrant urgent-wait")
			return
		default:
			t.log(ErrInternal, "urgent tracker in unreachable state %d", cur)
			return
		}
		if t.state.CompareAndSwap(int32(cur), int32(next)) {
			t.observe("saw_urgent")
			return
		}
	}
}

// SawDataMark records that the byte stream yielded an IAC DM.
//
//   - HasUrgent -> NoUrgent: the expected pairing.
//   - NoUrgent -> UnexpectedDataMark: the DM arrived before the OOB
//     notification, which is normal on some TCP stacks.
//   - UnexpectedDataMark -> (no transition): a second DM in a row. Per
//     spec.md's open-question resolution, this is treated as safe and
//     logged, not reset.
func (t *urgentTracker) SawDataMark() {
	for {
		cur := urgentState(t.state.Load())
		var next urgentState
		switch cur {
		case hasUrgent:
			next = noUrgent
		case noUrgent:
			next = unexpectedDataMark
			t.log(SigDataMark, "DM arrived without/before TCP urgent notification")
		case unexpectedDataMark:
			t.log(SigDataMark, "subsequent DM received while already expecting TCP urgent; peer likely sent two DMs quickly, this is safe")
			return
		default:
			t.log(ErrInternal, "urgent tracker in unreachable state %d", cur)
			return
		}
		if t.state.CompareAndSwap(int32(cur), int32(next)) {
			t.observe("saw_data_mark")
			return
		}
	}
}

// Active reports whether the tracker currently believes urgent data is
// in flight, meaning inbound forwarding should discard data bytes until
// the paired DM arrives.
func (t *urgentTracker) Active() bool {
	return urgentState(t.state.Load()) == hasUrgent
}

func (t *urgentTracker) log(code ErrorCode, format string, args ...any) {
	if t.sink != nil {
		t.sink.Log(code, format, args...)
	}
}

func (t *urgentTracker) observe(transition string) {
	t.mtx.ObserveUrgentTransition(transition)
}
