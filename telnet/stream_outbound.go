package telnet

// Write implements spec.md §4.6's write_some: encode via the negotiated
// charset, then escape IAC/CR/LF, then write atomically through the
// transport.
func (s *Stream) Write(p []byte) (int, error) {
	encoded, err := s.writeEncoding().NewEncoder().Bytes(p)
	if err != nil {
		return 0, wrapError(ErrInternal, err)
	}

	escaped := make([]byte, 0, len(encoded)+len(encoded)/8)
	binary := s.fsm.Enabled(Binary, Local)
	for _, b := range encoded {
		switch {
		case b == byte(IAC):
			escaped = append(escaped, byte(IAC), byte(IAC))
		case !binary && b == '\n':
			escaped = append(escaped, '\r', '\n')
		case !binary && b == '\r':
			escaped = append(escaped, '\r', 0)
		default:
			escaped = append(escaped, b)
		}
	}

	if err := s.writeRaw(escaped); err != nil {
		return 0, err
	}
	return len(p), nil
}

// writeRaw writes buf through the transport verbatim, serialized against
// every other writer on this Stream (spec.md §4.6's single-writer
// discipline).
func (s *Stream) writeRaw(buf []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(buf)
	if err != nil {
		return wrapError(ErrInternal, err)
	}
	return nil
}

// WriteCommand writes IAC <cmd>.
func (s *Stream) WriteCommand(cmd Command) error {
	return s.writeRaw([]byte{byte(IAC), byte(cmd)})
}

func (s *Stream) writeNegotiationFrame(ev negotiationEvent) error {
	return s.writeRaw([]byte{byte(IAC), byte(ev.command()), byte(ev.Opt)})
}

// WriteSubnegotiation writes IAC SB id <escaped payload> IAC SE, after
// checking id supports subnegotiation and is currently enabled.
func (s *Stream) WriteSubnegotiation(id OptionID, payload []byte) error {
	desc, ok := s.fsm.registry.Get(id)
	if !ok || !desc.SupportsSubnegotiation {
		return newError(ErrInvalidSubnegotiation, "option %v does not support subnegotiation", id)
	}
	if !s.fsm.Enabled(id, Local) && !s.fsm.Enabled(id, Remote) {
		return newError(ErrOptionNotAvailable, "option %v not enabled in either direction", id)
	}
	return s.writeRaw(frameSubnegotiation(id, payload))
}

// SendSynch implements the Telnet Synch discipline of spec.md §4.6/§4.7:
// three NULs (the middle one flagged out-of-band) followed by IAC DM.
func (s *Stream) SendSynch() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.sendByte(0, false); err != nil {
		return err
	}
	if err := s.sendByte(0, true); err != nil {
		return err
	}
	if err := s.sendByte(0, false); err != nil {
		return err
	}
	if _, err := s.conn.Write([]byte{byte(IAC), byte(DM)}); err != nil {
		return wrapError(ErrInternal, err)
	}
	return nil
}

// sendByte writes a single byte, optionally attempting to flag it urgent
// via TCP OOB. Non-TCP transports (tests, net.Pipe) fall back to an
// in-band write, matching the documented Synch degradation of spec.md §6.
func (s *Stream) sendByte(b byte, urgent bool) error {
	if urgent {
		if err := s.oobWrite(b); err == nil {
			return nil
		}
		s.sink.Log(ErrInternal, "urgent write unsupported on this transport; falling back to in-band Synch byte")
	}
	_, err := s.conn.Write([]byte{b})
	if err != nil {
		return wrapError(ErrInternal, err)
	}
	return nil
}

// RequestOption asks the peer to enable id in dir, writing the negotiation
// frame the Q-Method engine produces, if any.
func (s *Stream) RequestOption(id OptionID, dir Direction) error {
	ev, err := s.fsm.RequestOption(id, dir)
	if err != nil {
		return err
	}
	return s.handleEvent(ev)
}

// DisableOption asks the peer to disable id in dir, writing the negotiation
// frame if any, then awaiting the OptionHandler's shutdown signal.
func (s *Stream) DisableOption(id OptionID, dir Direction) error {
	ev, done, err := s.fsm.DisableOption(id, dir)
	if err != nil {
		return err
	}
	if werr := s.handleEvent(ev); werr != nil {
		return werr
	}
	<-done
	return nil
}

// Enabled reports whether id is currently negotiated to YES in dir.
func (s *Stream) Enabled(id OptionID, dir Direction) bool {
	return s.fsm.Enabled(id, dir)
}
