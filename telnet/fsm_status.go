package telnet

import "sort"

// escapeIAC doubles every IAC byte in payload, the standard RFC 855
// subnegotiation escape.
func escapeIAC(payload []byte) []byte {
	out := make([]byte, 0, len(payload))
	for _, b := range payload {
		out = append(out, b)
		if b == byte(IAC) {
			out = append(out, byte(IAC))
		}
	}
	return out
}

// escapeIACAndSE additionally doubles SE(240), a tolerated but non-required
// compatibility extension some STATUS implementations use (spec's Open
// Questions: the RFC only requires escaping IAC).
func escapeIACAndSE(payload []byte) []byte {
	out := make([]byte, 0, len(payload))
	for _, b := range payload {
		out = append(out, b)
		if b == byte(IAC) || b == byte(SE) {
			out = append(out, b)
		}
	}
	return out
}

// frameSubnegotiation assembles IAC SB id <escaped payload> IAC SE from a
// raw, unescaped application payload.
func frameSubnegotiation(id OptionID, payload []byte) []byte {
	return frameSubnegotiationRaw(id, escapeIAC(payload))
}

// frameSubnegotiationRaw wraps an already-escaped payload in IAC SB/SE
// framing without touching its contents, for callers (STATUS) that escape
// with their own rules before framing.
func frameSubnegotiationRaw(id OptionID, escaped []byte) []byte {
	out := make([]byte, 0, len(escaped)+5)
	out = append(out, byte(IAC), byte(SB), byte(id))
	out = append(out, escaped...)
	out = append(out, byte(IAC), byte(SE))
	return out
}

// completeSubnegotiation dispatches a finished SB...SE payload to either the
// internal STATUS handler or the application's HandlerRegistry, per
// spec.md §4.2's SubnegotiationIAC/SE transition.
func (f *protocolFSM) completeSubnegotiation() *fsmEvent {
	if !f.hasOpt {
		return nil
	}
	desc := f.optDesc
	payload := f.subnegBuf

	if !desc.SupportsSubnegotiation || !(f.status.Enabled(desc.ID, Local) || f.status.Enabled(desc.ID, Remote)) {
		return nil
	}

	if desc.ID == Status {
		return f.handleStatusSubnegotiation(payload)
	}

	f.publish(EventSubnegotiation, Subnegotiation{Option: desc.ID, Payload: payload})

	reply := f.handlers.handleSubnegotiation(desc.ID, payload)
	if len(reply) == 0 {
		return nil
	}
	return &fsmEvent{Raw: frameSubnegotiation(desc.ID, reply)}
}

// handleStatusSubnegotiation implements RFC 859 STATUS internally, since it
// must answer directly from the status database the FSM owns (spec.md
// §4.4).
func (f *protocolFSM) handleStatusSubnegotiation(payload []byte) *fsmEvent {
	if len(payload) == 0 {
		f.log(ErrInvalidSubnegotiation, "empty STATUS subnegotiation payload")
		return nil
	}

	switch payload[0] {
	case statusIS:
		if !f.status.Enabled(Status, Remote) {
			f.log(ErrOptionNotAvailable, "STATUS IS received but STATUS not enabled remotely")
			return nil
		}
		reply := f.handlers.handleSubnegotiation(Status, payload[1:])
		if len(reply) == 0 {
			return nil
		}
		return &fsmEvent{Raw: frameSubnegotiation(Status, reply)}

	case statusSEND:
		if !f.status.Enabled(Status, Local) {
			f.log(ErrOptionNotAvailable, "STATUS SEND received but STATUS not enabled locally")
			return nil
		}
		return &fsmEvent{Raw: frameSubnegotiationRaw(Status, f.buildStatusIS())}

	default:
		f.log(ErrInvalidSubnegotiation, "STATUS subnegotiation first byte 0x%02x is neither IS nor SEND", payload[0])
		return nil
	}
}

// buildStatusIS enumerates every locally- and remotely-enabled option
// (excluding STATUS itself) as IS WILL a WILL b DO c ..., sorted by
// OptionID so the wire output is deterministic.
func (f *protocolFSM) buildStatusIS() []byte {
	local := f.status.EnabledOptions(Local)
	remote := f.status.EnabledOptions(Remote)
	sort.Slice(local, func(i, j int) bool { return local[i] < local[j] })
	sort.Slice(remote, func(i, j int) bool { return remote[i] < remote[j] })

	out := make([]byte, 0, 1+2*(len(local)+len(remote)))
	out = append(out, statusIS)
	for _, id := range local {
		if id == Status {
			continue
		}
		out = append(out, byte(WILL), byte(id))
	}
	for _, id := range remote {
		if id == Status {
			continue
		}
		out = append(out, byte(DO), byte(id))
	}
	return escapeIACAndSE(out)
}
