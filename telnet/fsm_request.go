package telnet

// RequestOption asks the peer to enable opt in dir, running the outbound
// half of the Q-Method table (spec.md §4.3, "Outbound application request
// option"). ev is non-nil exactly when a wire negotiation frame must be
// written.
func (f *protocolFSM) RequestOption(opt OptionID, dir Direction) (ev *fsmEvent, err error) {
	desc, registered := f.registry.Get(opt)
	if !registered || !desc.Supports(dir) {
		return nil, newError(ErrOptionNotAvailable, "cannot request %v/%v: not registered for that direction", opt, dir)
	}

	st := f.status.Get(opt)
	switch {
	case st.Disabled(dir): // NO
		st.PendEnable(dir)
		return negotiationReply(dir, true, opt), nil

	case st.Enabled(dir): // YES
		f.log(ErrInvalidNegotiation, "RequestOption(%v/%v): already enabled", opt, dir)
		return nil, nil

	case st.PendingEnable(dir) && !st.Queued(dir): // WANTYES/EMPTY
		f.log(ErrInvalidNegotiation, "RequestOption(%v/%v): already pending", opt, dir)
		return nil, nil

	case st.PendingEnable(dir) && st.Queued(dir): // WANTYES/OPPOSITE
		st.Dequeue(dir)
		return nil, nil

	case st.PendingDisable(dir) && !st.Queued(dir): // WANTNO/EMPTY
		if err := st.Enqueue(dir); err != nil {
			return nil, err
		}
		return nil, nil

	case st.PendingDisable(dir) && st.Queued(dir): // WANTNO/OPPOSITE
		f.log(ErrInvalidNegotiation, "RequestOption(%v/%v): already pending with opposite queued", opt, dir)
		return nil, nil

	default:
		st.resetInvalid(dir)
		return nil, newError(ErrProtocolViolation, "impossible Q-state for %v/%v", opt, dir)
	}
}

// DisableOption asks the peer to disable opt in dir. done is always a
// non-nil channel; it is already closed unless this call is the one that
// moved the option from YES to WANTNO, in which case it is the
// OptionHandler's OnDisable shutdown signal.
func (f *protocolFSM) DisableOption(opt OptionID, dir Direction) (ev *fsmEvent, done <-chan struct{}, err error) {
	closedDone := closedChan()

	desc, registered := f.registry.Get(opt)
	if !registered || !desc.Supports(dir) {
		return nil, closedDone, newError(ErrOptionNotAvailable, "cannot disable %v/%v: not registered for that direction", opt, dir)
	}

	st := f.status.Get(opt)
	switch {
	case st.Enabled(dir): // YES
		st.PendDisable(dir)
		return negotiationReply(dir, false, opt), f.fireDisableAwait(opt, dir), nil

	case st.Disabled(dir): // NO
		f.log(ErrInvalidNegotiation, "DisableOption(%v/%v): already disabled", opt, dir)
		return nil, closedDone, nil

	case st.PendingDisable(dir) && !st.Queued(dir): // WANTNO/EMPTY
		f.log(ErrInvalidNegotiation, "DisableOption(%v/%v): already pending", opt, dir)
		return nil, closedDone, nil

	case st.PendingDisable(dir) && st.Queued(dir): // WANTNO/OPPOSITE
		st.Dequeue(dir)
		return nil, closedDone, nil

	case st.PendingEnable(dir) && !st.Queued(dir): // WANTYES/EMPTY
		if err := st.Enqueue(dir); err != nil {
			return nil, closedDone, err
		}
		return nil, closedDone, nil

	case st.PendingEnable(dir) && st.Queued(dir): // WANTYES/OPPOSITE
		f.log(ErrInvalidNegotiation, "DisableOption(%v/%v): already pending with opposite queued", opt, dir)
		return nil, closedDone, nil

	default:
		st.resetInvalid(dir)
		return nil, closedDone, newError(ErrProtocolViolation, "impossible Q-state for %v/%v", opt, dir)
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
