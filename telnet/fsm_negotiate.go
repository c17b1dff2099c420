package telnet

import "github.com/corvidlabs/gotelnet/telnet/metrics"

// negotiationDirection derives which side a negotiation command describes:
// WILL/WONT describe remote behavior, DO/DONT describe local behavior.
func negotiationDirection(cmd Command) Direction {
	if cmd == WILL || cmd == WONT {
		return Remote
	}
	return Local
}

// negotiationEnable reports whether cmd is a request to enable (WILL/DO) as
// opposed to disable (WONT/DONT).
func negotiationEnable(cmd Command) bool {
	return cmd == WILL || cmd == DO
}

// handleOptionNegotiation consumes the option-id byte following a stashed
// WILL/WONT/DO/DONT and runs the RFC 1143 Q-Method inbound table of
// spec.md §4.3. It always returns to Normal.
func (f *protocolFSM) handleOptionNegotiation(b byte) (error, bool, *fsmEvent) {
	cmd := f.cmd
	opt := OptionID(b)
	dir := negotiationDirection(cmd)

	var err error
	var ev *fsmEvent
	if negotiationEnable(cmd) {
		err, ev = f.negotiateEnableRequest(opt, dir)
	} else {
		err, ev = f.negotiateDisableRequest(opt, dir)
	}

	f.changeState(stateNormal)
	return err, false, ev
}

func (f *protocolFSM) negotiateEnableRequest(opt OptionID, dir Direction) (error, *fsmEvent) {
	desc, registered := f.registry.Get(opt)
	st := f.status.Get(opt)

	switch {
	case st.Disabled(dir): // NO
		if !registered || !desc.Supports(dir) {
			if !registered {
				f.registry.UpsertDefault(opt)
				if f.unknownFn != nil {
					f.unknownFn(opt)
				}
			}
			f.observeNegotiation(opt, dir, metrics.ResultRefused)
			return nil, negotiationReply(dir, false, opt)
		}
		st.Enable(dir)
		f.fireEnable(opt, dir)
		return nil, negotiationReply(dir, true, opt)

	case st.Enabled(dir): // YES
		f.log(ErrInvalidNegotiation, "redundant enable request for already-enabled option %v/%v", opt, dir)
		return newError(ErrInvalidNegotiation, "redundant enable request for %v/%v", opt, dir), nil

	case st.PendingEnable(dir) && !st.Queued(dir): // WANTYES/EMPTY
		st.Enable(dir)
		f.fireEnable(opt, dir)
		return nil, nil

	case st.PendingEnable(dir) && st.Queued(dir): // WANTYES/OPPOSITE
		st.Dequeue(dir)
		st.PendDisable(dir)
		return nil, negotiationReply(dir, false, opt)

	case st.PendingDisable(dir) && !st.Queued(dir): // WANTNO/EMPTY
		f.log(ErrInvalidNegotiation, "peer answered enable while we await disable for %v/%v", opt, dir)
		st.Disable(dir)
		return newError(ErrInvalidNegotiation, "peer answered enable while WANTNO for %v/%v", opt, dir), nil

	case st.PendingDisable(dir) && st.Queued(dir): // WANTNO/OPPOSITE
		st.Dequeue(dir)
		st.Enable(dir)
		f.fireEnable(opt, dir)
		return nil, nil

	default:
		st.resetInvalid(dir)
		return newError(ErrProtocolViolation, "impossible Q-state for %v/%v", opt, dir), nil
	}
}

func (f *protocolFSM) negotiateDisableRequest(opt OptionID, dir Direction) (error, *fsmEvent) {
	desc, registered := f.registry.Get(opt)
	_ = desc
	st := f.status.Get(opt)

	switch {
	case st.Disabled(dir): // NO
		if !registered {
			return nil, nil
		}
		f.log(ErrInvalidNegotiation, "redundant disable request for already-disabled option %v/%v", opt, dir)
		return newError(ErrInvalidNegotiation, "redundant disable request for %v/%v", opt, dir), nil

	case st.Enabled(dir): // YES
		st.Disable(dir)
		f.fireDisable(opt, dir) // fired, not awaited: inbound path only
		return nil, negotiationReply(dir, false, opt)

	case st.PendingEnable(dir) && !st.Queued(dir): // WANTYES/EMPTY
		st.Disable(dir)
		return nil, nil

	case st.PendingEnable(dir) && st.Queued(dir): // WANTYES/OPPOSITE
		st.Dequeue(dir)
		st.Disable(dir)
		return nil, nil

	case st.PendingDisable(dir) && !st.Queued(dir): // WANTNO/EMPTY
		// Peer confirms our outbound disable request. The on-disable handler
		// already fired (and its future was returned) when DisableOption was
		// called; this transition is bookkeeping only.
		st.Disable(dir)
		return nil, nil

	case st.PendingDisable(dir) && st.Queued(dir): // WANTNO/OPPOSITE
		st.Dequeue(dir)
		st.PendEnable(dir)
		return nil, negotiationReply(dir, true, opt)

	default:
		st.resetInvalid(dir)
		return newError(ErrProtocolViolation, "impossible Q-state for %v/%v", opt, dir), nil
	}
}

func negotiationReply(dir Direction, enable bool, opt OptionID) *fsmEvent {
	return &fsmEvent{Negotiation: &negotiationEvent{Dir: dir, Enable: enable, Opt: opt}}
}
