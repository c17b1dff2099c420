package telnet

import (
	"bytes"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// Encodable is implemented by whatever owns the byte-level read/write
// encoding a TRANSMIT-BINARY or CHARSET negotiation should switch, normally
// a Stream.
type Encodable interface {
	SetReadEncoding(encoding.Encoding)
	SetWriteEncoding(encoding.Encoding)
}

// ASCII is the fallback encoding used whenever BINARY/CHARSET aren't both
// negotiated.
var ASCII encoding.Encoding

func init() {
	ASCII, _ = ianaindex.IANA.Encoding("US-ASCII")
}

// TransmitBinaryHandler implements RFC 856: switching a Stream's byte
// encoding to a no-op codec while BINARY is enabled in a given direction,
// and back to ASCII once it isn't.
type TransmitBinaryHandler struct {
	Target Encodable
}

func (h *TransmitBinaryHandler) OnEnable(dir Direction) {
	switch dir {
	case Local:
		h.Target.SetWriteEncoding(encoding.Nop)
	case Remote:
		h.Target.SetReadEncoding(encoding.Nop)
	}
}

func (h *TransmitBinaryHandler) OnDisable(dir Direction) <-chan struct{} {
	switch dir {
	case Local:
		h.Target.SetWriteEncoding(ASCII)
	case Remote:
		h.Target.SetReadEncoding(ASCII)
	}
	return closedChan()
}

func (h *TransmitBinaryHandler) OnSubnegotiation([]byte) []byte { return nil }

// SubnegotiationSender is the narrow Stream capability CharsetHandler needs
// to push a spontaneous CHARSET REQUEST that isn't a reply to an inbound
// subnegotiation.
type SubnegotiationSender interface {
	WriteSubnegotiation(id OptionID, payload []byte) error
}

// CharsetHandler implements RFC 2066 CHARSET negotiation: requesting an
// encoding, answering a peer's request, and switching Target's encoding
// once both sides agree.
type CharsetHandler struct {
	IsServer bool
	Target   Encodable
	Sender   SubnegotiationSender

	mu                 sync.Mutex
	enc                encoding.Encoding
	requestedEncodings []encoding.Encoding
}

func (h *CharsetHandler) OnEnable(Direction)                 {}
func (h *CharsetHandler) OnDisable(Direction) <-chan struct{} { return closedChan() }

// RequestEncoding actively proposes a list of encodings to the peer, in
// preference order. With a Stream as Sender, CHARSET must already be
// enabled in at least one direction.
func (h *CharsetHandler) RequestEncoding(encodings ...encoding.Encoding) error {
	out := []byte{CharsetRequest}
	for _, enc := range encodings {
		name, err := ianaindex.IANA.Name(enc)
		if err != nil {
			return errors.Wrapf(err, "resolving IANA name for encoding")
		}
		out = append(out, ";"+name...)
	}
	h.mu.Lock()
	h.requestedEncodings = encodings
	h.mu.Unlock()
	return h.Sender.WriteSubnegotiation(Charset, out)
}

func (h *CharsetHandler) OnSubnegotiation(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}
	cmd, data := payload[0], payload[1:]
	switch cmd {
	case CharsetAccepted:
		h.mu.Lock()
		h.requestedEncodings = nil
		h.mu.Unlock()
		if enc := h.getEncoding(data); enc != nil {
			h.enc = enc
			h.Target.SetReadEncoding(enc)
			h.Target.SetWriteEncoding(enc)
		}
		return nil

	case CharsetRejected:
		h.mu.Lock()
		h.requestedEncodings = nil
		h.mu.Unlock()
		return nil

	case CharsetRequest:
		return h.handleCharsetRequest(data)

	case CharsetTTableIs:
		return []byte{CharsetTTableRejected}

	default:
		return nil
	}
}

func (h *CharsetHandler) handleCharsetRequest(data []byte) []byte {
	h.mu.Lock()
	pending := len(h.requestedEncodings) > 0
	h.mu.Unlock()

	if pending {
		if h.IsServer {
			return []byte{CharsetRejected}
		}
		h.mu.Lock()
		h.requestedEncodings = nil
		h.mu.Unlock()
	}

	const ttable = "[TTABLE]"
	if len(data) > len(ttable)+1 && bytes.HasPrefix(data, []byte(ttable)) {
		data = data[len(ttable)+1:]
	}

	var charset []byte
	var enc encoding.Encoding
	if len(data) > 2 {
		charset, enc = h.selectEncoding(bytes.Split(data[1:], data[0:1]))
	}

	if enc == nil {
		return []byte{CharsetRejected}
	}

	h.enc = enc
	h.Target.SetReadEncoding(enc)
	h.Target.SetWriteEncoding(enc)

	out := append([]byte{CharsetAccepted}, charset...)
	return out
}

func (h *CharsetHandler) selectEncoding(names [][]byte) ([]byte, encoding.Encoding) {
	for _, name := range names {
		if enc := h.getEncoding(name); enc != nil {
			return name, enc
		}
	}
	return nil, nil
}

func (*CharsetHandler) getEncoding(name []byte) encoding.Encoding {
	switch s := string(name); s {
	case "US-ASCII":
		return ASCII
	default:
		enc, _ := ianaindex.IANA.Encoding(s)
		return enc
	}
}
