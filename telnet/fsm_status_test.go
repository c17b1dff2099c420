package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func statusFSM(t *testing.T) *protocolFSM {
	t.Helper()
	registry := NewOptionRegistry()
	registry.Register(OptionDescriptor{ID: Status, SupportsLocal: true, SupportsRemote: true, SupportsSubnegotiation: true})
	registry.Register(OptionDescriptor{ID: Echo, SupportsLocal: true, SupportsRemote: true})
	registry.Register(OptionDescriptor{ID: SuppressGoAhead, SupportsLocal: true, SupportsRemote: true})
	return newProtocolFSM(registry, NewHandlerRegistry(), nil, nil, nil)
}

func TestEscapeIAC(t *testing.T) {
	require.Equal(t, []byte{'a', byte(IAC), byte(IAC), 'b'}, escapeIAC([]byte{'a', byte(IAC), 'b'}))
}

func TestEscapeIACAndSE(t *testing.T) {
	require.Equal(t, []byte{'a', byte(IAC), byte(IAC), byte(SE), byte(SE), 'b'},
		escapeIACAndSE([]byte{'a', byte(IAC), byte(SE), 'b'}))
}

func TestFrameSubnegotiation(t *testing.T) {
	got := frameSubnegotiation(Echo, []byte{'x', byte(IAC), 'y'})
	want := []byte{byte(IAC), byte(SB), byte(Echo), 'x', byte(IAC), byte(IAC), 'y', byte(IAC), byte(SE)}
	require.Equal(t, want, got)
}

// buildStatusIS's output must be sorted by OptionID and exclude STATUS
// itself, per spec.md §8 invariant 6.
func TestBuildStatusIS(t *testing.T) {
	f := statusFSM(t)
	f.status.Get(SuppressGoAhead).Enable(Local)
	f.status.Get(Echo).Enable(Local)
	f.status.Get(Echo).Enable(Remote)
	f.status.Get(Status).Enable(Local)
	f.status.Get(Status).Enable(Remote)

	got := f.buildStatusIS()
	want := []byte{statusIS,
		byte(WILL), byte(Echo), byte(WILL), byte(SuppressGoAhead),
		byte(DO), byte(Echo),
	}
	require.Equal(t, want, got)
}

func TestBuildStatusISEscapesIACAndSE(t *testing.T) {
	f := statusFSM(t)
	weird := OptionID(byte(IAC))
	f.registry.Register(OptionDescriptor{ID: weird, SupportsLocal: true})
	f.status.Get(weird).Enable(Local)
	se := OptionID(byte(SE))
	f.registry.Register(OptionDescriptor{ID: se, SupportsLocal: true})
	f.status.Get(se).Enable(Local)

	got := f.buildStatusIS()
	require.Contains(t, string(got), string([]byte{byte(WILL), byte(IAC), byte(IAC)}))
	require.Contains(t, string(got), string([]byte{byte(WILL), byte(SE), byte(SE)}))
}

func TestHandleStatusSubnegotiationSendRepliesWithIS(t *testing.T) {
	f := statusFSM(t)
	f.status.Get(Status).Enable(Local)
	f.status.Get(Echo).Enable(Local)

	ev := f.handleStatusSubnegotiation([]byte{statusSEND})
	require.NotNil(t, ev)
	want := frameSubnegotiationRaw(Status, f.buildStatusIS())
	require.Equal(t, want, ev.Raw)
}

func TestHandleStatusSubnegotiationSendIgnoredWhenNotEnabledLocally(t *testing.T) {
	f := statusFSM(t)
	ev := f.handleStatusSubnegotiation([]byte{statusSEND})
	require.Nil(t, ev)
}

func TestHandleStatusSubnegotiationISIgnoredWhenNotEnabledRemotely(t *testing.T) {
	f := statusFSM(t)
	ev := f.handleStatusSubnegotiation([]byte{statusIS, byte(WILL), byte(Echo)})
	require.Nil(t, ev)
}

func TestHandleStatusSubnegotiationISDeliveredToHandler(t *testing.T) {
	var captured []byte
	f := statusFSM(t)
	f.handlers.Register(Status, testHandler{onSub: func(p []byte) []byte {
		captured = append([]byte{}, p...)
		return nil
	}})
	f.status.Get(Status).Enable(Remote)

	ev := f.handleStatusSubnegotiation([]byte{statusIS, byte(WILL), byte(Echo)})
	require.Nil(t, ev)
	require.Equal(t, []byte{byte(WILL), byte(Echo)}, captured)
}

func TestHandleStatusSubnegotiationEmptyPayload(t *testing.T) {
	f := statusFSM(t)
	ev := f.handleStatusSubnegotiation(nil)
	require.Nil(t, ev)
}

func TestHandleStatusSubnegotiationUnknownFirstByte(t *testing.T) {
	f := statusFSM(t)
	ev := f.handleStatusSubnegotiation([]byte{2})
	require.Nil(t, ev)
}

func TestCompleteSubnegotiationRoutesStatusInternally(t *testing.T) {
	f := statusFSM(t)
	f.status.Get(Status).Enable(Local)
	f.hasOpt, f.optDesc = true, mustDesc(t, f, Status)
	f.subnegBuf = []byte{statusSEND}

	ev := f.completeSubnegotiation()
	require.NotNil(t, ev)
}

func TestCompleteSubnegotiationIgnoredWhenNotEnabled(t *testing.T) {
	f := statusFSM(t)
	f.hasOpt, f.optDesc = true, mustDesc(t, f, Status)
	f.subnegBuf = []byte{statusSEND}

	ev := f.completeSubnegotiation()
	require.Nil(t, ev)
}

func mustDesc(t *testing.T, f *protocolFSM, id OptionID) OptionDescriptor {
	t.Helper()
	desc, ok := f.registry.Get(id)
	require.True(t, ok)
	return desc
}
