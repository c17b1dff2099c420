package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"

	"github.com/corvidlabs/gotelnet/internal/event"
	"github.com/corvidlabs/gotelnet/telnet"
	"github.com/corvidlabs/gotelnet/telnet/metrics"
)

// negotiatedOptions is every option this relay proposes on both ends of a
// connection once it comes up.
var negotiatedOptions = []telnet.OptionID{
	telnet.SuppressGoAhead,
	telnet.EndOfRecord,
	telnet.Binary,
	telnet.Charset,
}

func newRegistry() *telnet.OptionRegistry {
	r := telnet.NewOptionRegistry()
	r.Register(telnet.OptionDescriptor{ID: telnet.Binary, SupportsLocal: true, SupportsRemote: true})
	r.Register(telnet.OptionDescriptor{ID: telnet.Echo, SupportsLocal: true, SupportsRemote: true})
	r.Register(telnet.OptionDescriptor{ID: telnet.SuppressGoAhead, SupportsLocal: true, SupportsRemote: true})
	r.Register(telnet.OptionDescriptor{ID: telnet.Status, SupportsLocal: true, SupportsRemote: true, SupportsSubnegotiation: true})
	r.Register(telnet.OptionDescriptor{ID: telnet.TerminalType, SupportsLocal: true, SupportsRemote: true, SupportsSubnegotiation: true})
	r.Register(telnet.OptionDescriptor{ID: telnet.EndOfRecord, SupportsLocal: true, SupportsRemote: true})
	r.Register(telnet.OptionDescriptor{ID: telnet.NAWS, SupportsLocal: false, SupportsRemote: true, SupportsSubnegotiation: true})
	r.Register(telnet.OptionDescriptor{ID: telnet.Charset, SupportsLocal: true, SupportsRemote: true, SupportsSubnegotiation: true})
	return r
}

// session wraps one Stream with the option handlers this relay cares about:
// TRANSMIT-BINARY switches the codec to raw bytes, CHARSET negotiates UTF-8
// once both ends agree to it.
type session struct {
	*telnet.Stream
	logger         zerolog.Logger
	charset        telnet.CharsetHandler
	transmitBinary telnet.TransmitBinaryHandler
}

func newSession(conn net.Conn, logger zerolog.Logger, mtx *metrics.Collector) *session {
	handlers := telnet.NewHandlerRegistry()
	bus := event.NewDispatcher()

	s := &session{logger: logger}
	stream := telnet.NewStream(conn, telnet.Config{
		RegisteredOptions: newRegistry(),
		Handlers:          handlers,
		ErrorSink:         telnet.NewZerologSink(logger),
		Events:            bus,
		Metrics:           mtx,
	})
	s.Stream = stream

	s.transmitBinary.Target = stream
	s.charset.Target = stream
	s.charset.Sender = stream

	handlers.Register(telnet.Binary, &s.transmitBinary)
	handlers.Register(telnet.Charset, &s.charset)

	registerEventLog(bus, logger)
	bus.ListenFunc(telnet.EventOptionEnabled, func(_ context.Context, data any) error {
		if change, ok := data.(telnet.OptionChange); ok && change.Option == telnet.Charset && change.Dir == telnet.Local {
			s.charset.RequestEncoding(unicode.UTF8)
		}
		return nil
	})

	return s
}

func (s *session) negotiateOptions() {
	for _, opt := range negotiatedOptions {
		if err := s.RequestOption(opt, telnet.Local); err != nil {
			s.logger.Debug().Err(err).Stringer("option", opt).Msg("request local option failed")
		}
		if err := s.RequestOption(opt, telnet.Remote); err != nil {
			s.logger.Debug().Err(err).Stringer("option", opt).Msg("request remote option failed")
		}
	}
}

type downstreamSession struct {
	*session
	*bufio.Scanner
}

func newDownstreamSession(conn net.Conn, mtx *metrics.Collector) *downstreamSession {
	sess := newSession(conn, logger.With().
		Str("client", conn.RemoteAddr().String()).
		Logger(), mtx)
	result := &downstreamSession{
		session: sess,
		Scanner: bufio.NewScanner(sess.Stream),
	}
	result.charset.IsServer = true
	return result
}

func (s *downstreamSession) authenticate() bool {
	if s.Scan() {
		return s.Text() == "login "+*password
	}
	return false
}

func (s *downstreamSession) findUpstream(mtx *metrics.Collector) (*upstreamSession, error) {
	for s.Scan() {
		switch command, rest, _ := strings.Cut(s.Text(), " "); command {
		case "connect":
			addr := strings.TrimSpace(rest)
			fmt.Fprintf(s, "connecting to %v...\r\n", addr)
			upstream := &upstreamSession{}
			if err := upstream.Initialize(addr, mtx); err != nil {
				fmt.Fprintf(s, "error connecting (%v): %v\r\n", addr, err)
				continue
			}
			upstream.AddDownstream(s)
			return upstream, nil
		default:
			fmt.Fprintf(s, "unrecognized command: %s\r\n", s.Text())
		}
	}
	// the only case where we ever get here is if we fail to scan, which will
	// only happen if the client disconnected
	return nil, io.EOF
}

func (s *downstreamSession) runForever(mtx *metrics.Collector) {
	s.logger.Debug().Msg("connected")
	defer s.logger.Debug().Msg("disconnected")

	s.negotiateOptions()
	if !s.authenticate() {
		return
	}
	upstream, err := s.findUpstream(mtx)
	if err != nil {
		fmt.Fprintln(s, "error connecting upstream:", err)
		return
	}
	io.Copy(upstream, s)
}

type upstreamSession struct {
	*session
	mux        sync.Mutex
	downstream []io.WriteCloser
}

func (s *upstreamSession) Initialize(addr string, mtx *metrics.Collector) error {
	tcp, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	s.session = newSession(tcp, logger.With().
		Str("server", tcp.RemoteAddr().String()).
		Logger(), mtx)
	go s.runForever()
	return nil
}

func (s *upstreamSession) AddDownstream(w io.WriteCloser) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.downstream = append(s.downstream, w)
}

func (s *upstreamSession) Close() error {
	s.Stream.Close()
	for _, w := range s.downstream {
		w.Close()
	}
	return nil
}

const proxyBufSize = 4096

func (s *upstreamSession) runForever() {
	defer s.Close()
	s.logger.Debug().Msg("connected")
	s.negotiateOptions()
	for {
		buf := make([]byte, proxyBufSize)
		n, err := s.Read(buf)
		if err != nil {
			break
		}
		s.sendDownstream(buf[:n])
	}
	s.logger.Debug().Msg("disconnected")
}

func (s *upstreamSession) sendDownstream(buf []byte) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, w := range s.downstream {
		w.Write(buf)
	}
}
