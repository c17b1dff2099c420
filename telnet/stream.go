package telnet

import (
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/corvidlabs/gotelnet/internal/event"
	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"github.com/corvidlabs/gotelnet/telnet/metrics"
)

// Config configures a Stream at construction, per spec.md §6's
// "Configuration" enumeration.
type Config struct {
	// RegisteredOptions is the descriptor registry the FSM consults. May be
	// shared read-mostly across many Streams.
	RegisteredOptions *OptionRegistry

	// Handlers maps OptionID to application behavior. May be nil, in which
	// case every option's enable/disable/subnegotiation callbacks are
	// no-ops.
	Handlers *HandlerRegistry

	// AYTResponse is the canned reply to an inbound IAC AYT.
	AYTResponse []byte

	// UnknownOptionHandler, if set, is invoked the first time a peer asks
	// to enable (WILL/DO) an option this Stream has no descriptor for, just
	// before the automatic refusal is written. The option is then memoized
	// with an all-false descriptor, so later requests for it are refused
	// without another call.
	UnknownOptionHandler func(OptionID)

	// MaxRawReadBlock bounds the size of each underlying transport read.
	// Zero means DefaultMaxRawReadBlock.
	MaxRawReadBlock int

	// ErrorSink receives every ErrorCode this Stream's FSM produces. Nil
	// means NopSink.
	ErrorSink ErrorSink

	// Events, if set, additionally publishes option-change/subnegotiation/
	// error events for observers that prefer a bus over ErrorSink/OptionHandler.
	Events event.Dispatcher

	// Metrics, if set, is incremented for negotiations, protocol errors,
	// subnegotiation overflows, and urgent-data events.
	Metrics *metrics.Collector
}

// DefaultMaxRawReadBlock is the transport read hint used when
// Config.MaxRawReadBlock is zero.
const DefaultMaxRawReadBlock = 4096

// Stream drives a protocolFSM over a net.Conn-shaped transport: the
// "Stream Adapter" of spec.md §4.5-§4.8. A Stream is built for
// single-goroutine use. ReadAsync/WriteAsync run Read/Write on a new
// errgroup goroutine per call and block until it returns; they add no
// serialization between concurrent callers.
type Stream struct {
	conn   net.Conn
	fsm    *protocolFSM
	urgent *urgentTracker
	sink   ErrorSink
	bus    event.Dispatcher
	mtx    *metrics.Collector
	id     uuid.UUID

	unknownFn       func(OptionID)
	maxRawReadBlock int

	encMu    sync.Mutex
	readEnc  encoding.Encoding
	writeEnc encoding.Encoding

	writeMu sync.Mutex

	raw              []byte // leftover, not-yet-processed inbound bytes
	deferredTransErr error
	deferredSignal   error

	urgentWaitOutstanding bool
	closeOnce             sync.Once
	stopUrgent            chan struct{}
}

// NewStream wraps conn, building a fresh protocolFSM and wiring urgent-data
// tracking best-effort (see enableOOBInline).
func NewStream(conn net.Conn, cfg Config) *Stream {
	if cfg.RegisteredOptions == nil {
		cfg.RegisteredOptions = NewOptionRegistry()
	}
	if cfg.Handlers == nil {
		cfg.Handlers = NewHandlerRegistry()
	}
	sink := cfg.ErrorSink
	if sink == nil {
		sink = NopSink{}
	}
	if cfg.Events != nil {
		sink = newDispatchingSink(sink, cfg.Events)
	}
	maxBlock := cfg.MaxRawReadBlock
	if maxBlock <= 0 {
		maxBlock = DefaultMaxRawReadBlock
	}
	aytReply := cfg.AYTResponse
	if aytReply == nil {
		aytReply = []byte("\r\n")
	}

	fsm := newProtocolFSM(cfg.RegisteredOptions, cfg.Handlers, sink, cfg.Events, cfg.Metrics)
	fsm.aytReply = aytReply
	fsm.unknownFn = cfg.UnknownOptionHandler

	s := &Stream{
		conn:            conn,
		fsm:             fsm,
		urgent:          &urgentTracker{sink: sink, mtx: cfg.Metrics},
		sink:            sink,
		bus:             cfg.Events,
		mtx:             cfg.Metrics,
		id:              uuid.New(),
		unknownFn:       cfg.UnknownOptionHandler,
		maxRawReadBlock: maxBlock,
		readEnc:         ASCII,
		writeEnc:        ASCII,
		stopUrgent:      make(chan struct{}),
	}
	s.enableOOBInline()
	return s
}

// ID is a per-Stream correlation identifier suitable for log lines.
func (s *Stream) ID() uuid.UUID { return s.id }

// SetReadEncoding implements Encodable for TransmitBinaryHandler/CharsetHandler.
func (s *Stream) SetReadEncoding(enc encoding.Encoding) {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	s.readEnc = enc
}

// SetWriteEncoding implements Encodable.
func (s *Stream) SetWriteEncoding(enc encoding.Encoding) {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	s.writeEnc = enc
}

func (s *Stream) readEncoding() encoding.Encoding {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	return s.readEnc
}

func (s *Stream) writeEncoding() encoding.Encoding {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	return s.writeEnc
}

// Close releases the urgent-data watcher and the underlying transport.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.stopUrgent) })
	return s.conn.Close()
}

// enableOOBInline turns on SO_OOBINLINE for a TCP transport and starts the
// urgent-data watcher goroutine, per spec.md §6. It is a documented no-op,
// logged once, for any transport that isn't a syscall.Conn (e.g. net.Pipe
// in tests) — Synch degrades to "send the in-band bytes, skip the OOB
// signal".
func (s *Stream) enableOOBInline() {
	sc, ok := s.conn.(syscall.Conn)
	if !ok {
		s.sink.Log(ErrInternal, "transport does not support OOB signaling; Synch degraded to in-band only")
		return
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		s.sink.Log(ErrInternal, "SyscallConn: %s", err)
		return
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_OOBINLINE, 1)
	})
	if err != nil || sockErr != nil {
		s.sink.Log(ErrInternal, "SO_OOBINLINE: %s", errors.CombineErrors(err, sockErr))
		return
	}
	go s.watchUrgent(raw)
}

// watchUrgent polls for TCP urgent-data notifications via a MSG_OOB Recvfrom,
// translating each into urgentTracker.SawUrgent(). It is the transport's
// out-of-band callback referenced by spec.md §4.7/§5's "sole cross-context
// concurrent object".
func (s *Stream) watchUrgent(raw syscall.RawConn) {
	buf := make([]byte, 1)
	for {
		select {
		case <-s.stopUrgent:
			return
		default:
		}
		var n int
		var oobErr error
		err := raw.Read(func(fd uintptr) bool {
			n, _, oobErr = syscall.Recvfrom(int(fd), buf, syscall.MSG_OOB)
			return true
		})
		if err != nil {
			return
		}
		if oobErr == nil && n > 0 {
			s.urgent.SawUrgent()
		}
	}
}

// Read fills p with sanitized application data, driving the FSM per
// spec.md §4.5's read_some. It returns (0, err) immediately if AO
// processing on a prior call deferred an abort_output signal.
func (s *Stream) Read(p []byte) (int, error) {
	if s.deferredSignal != nil {
		err := s.deferredSignal
		s.deferredSignal = nil
		return 0, err
	}
	for {
		if len(s.raw) == 0 {
			if s.deferredTransErr != nil {
				err := s.deferredTransErr
				s.deferredTransErr = nil
				return 0, err
			}
			block := s.maxRawReadBlock
			buf := make([]byte, block)
			n, err := s.conn.Read(buf)
			if n > 0 {
				s.raw = append(s.raw, buf[:n]...)
			}
			if err != nil {
				if len(s.raw) == 0 {
					return 0, err
				}
				s.deferredTransErr = err
			}
		}

		n, err := s.process(p)
		if err != nil || n > 0 {
			return n, err
		}
		// nothing written, no terminal signal, no transport error: read again.
	}
}

// process drains s.raw into p until p is full, s.raw is exhausted, or a
// terminal signal occurs, per spec.md §4.5's "processing" state.
func (s *Stream) process(p []byte) (int, error) {
	written := 0
	consumed := 0

	defer func() { s.raw = s.raw[consumed:] }()

	for consumed < len(s.raw) && written < len(p) {
		b := s.raw[consumed]
		consumed++

		if s.urgent.Active() {
			// Discard forwarded data bytes while a Synch is in flight; the
			// FSM still needs every byte fed to it to find IAC DM.
			err, _, ev := s.fsm.ProcessByte(b)
			if werr := s.handleEvent(ev); werr != nil {
				s.sink.Log(ErrInternal, "writing FSM event during Synch discard: %s", werr)
			}
			if code, ok := CodeOf(err); ok && code == SigDataMark {
				s.urgent.SawDataMark()
			}
			continue
		}

		err, forward, ev := s.fsm.ProcessByte(b)

		if code, ok := CodeOf(err); ok {
			switch code {
			case SigCarriageReturn:
				p[written] = '\r'
				written++
				err = nil
			case SigDataMark:
				s.urgent.SawDataMark()
				err = nil
			case SigEraseCharacter:
				if written > 0 {
					written--
					err = nil
				}
			case SigEraseLine:
				if written > 0 {
					written = 0
					err = nil
				}
			case SigAbortOutput:
				s.handleAbortOutput()
				err = nil
			}
		}

		if err := s.handleEvent(ev); err != nil {
			s.sink.Log(ErrInternal, "writing FSM event: %s", err)
		}

		if forward && written < len(p) {
			p[written] = b
			written++
		}

		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// handleAbortOutput implements the AO branch of spec.md §4.5: send Synch
// now, defer abort_output to the *next* Read call.
func (s *Stream) handleAbortOutput() {
	if err := s.SendSynch(); err != nil {
		s.sink.Log(ErrInternal, "send_synch during AO: %s", err)
	}
	s.deferredSignal = newError(SigAbortOutput, "IAC AO")
}

// handleEvent writes whatever outbound reaction ProcessByte produced.
func (s *Stream) handleEvent(ev *fsmEvent) error {
	if ev == nil {
		return nil
	}
	if ev.Negotiation != nil {
		return s.writeNegotiationFrame(*ev.Negotiation)
	}
	if ev.Raw != nil {
		return s.writeRaw(ev.Raw)
	}
	return nil
}

var _ io.ReadWriteCloser = (*Stream)(nil)
