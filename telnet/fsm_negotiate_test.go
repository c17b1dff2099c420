package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// countingHandler records how many times OnEnable/OnDisable fired, which
// is the thing at stake in the WANTNO/EMPTY inbound-disable transition:
// that transition must be bookkeeping only, never a second OnDisable.
type countingHandler struct {
	enables  int
	disables int
}

func (h *countingHandler) OnEnable(Direction) { h.enables++ }
func (h *countingHandler) OnDisable(Direction) <-chan struct{} {
	h.disables++
	return closedChan()
}
func (*countingHandler) OnSubnegotiation([]byte) []byte { return nil }

func negotiateFSM(t *testing.T, h OptionHandler) *protocolFSM {
	t.Helper()
	registry := NewOptionRegistry()
	registry.Register(OptionDescriptor{ID: Echo, SupportsLocal: true, SupportsRemote: true})
	handlers := NewHandlerRegistry()
	if h != nil {
		handlers.Register(Echo, h)
	}
	return newProtocolFSM(registry, handlers, nil, nil, nil)
}

func TestNegotiateEnableRequestFromDisabled(t *testing.T) {
	h := &countingHandler{}
	f := negotiateFSM(t, h)

	err, ev := f.negotiateEnableRequest(Echo, Remote)
	require.NoError(t, err)
	require.NotNil(t, ev.Negotiation)
	require.True(t, ev.Negotiation.Enable)
	require.True(t, f.status.Get(Echo).Enabled(Remote))
	require.Equal(t, 1, h.enables)
}

func TestNegotiateEnableRequestFromDisabledUnregistered(t *testing.T) {
	f := negotiateFSM(t, nil)
	var unknown OptionID
	f.unknownFn = func(opt OptionID) { unknown = opt }

	err, ev := f.negotiateEnableRequest(200, Remote)
	require.NoError(t, err)
	require.NotNil(t, ev.Negotiation)
	require.False(t, ev.Negotiation.Enable)
	require.Equal(t, OptionID(200), unknown)
	_, ok := f.registry.Get(200)
	require.True(t, ok, "unregistered option gets memoized")
}

func TestNegotiateEnableRequestFromDisabledUnsupportedDirection(t *testing.T) {
	f := negotiateFSM(t, nil)
	f.registry.Register(OptionDescriptor{ID: 201, SupportsLocal: true, SupportsRemote: false})

	err, ev := f.negotiateEnableRequest(201, Remote)
	require.NoError(t, err)
	require.False(t, ev.Negotiation.Enable, "registered but unsupported in this direction is still refused")
}

func TestNegotiateEnableRequestRedundant(t *testing.T) {
	f := negotiateFSM(t, nil)
	f.status.Get(Echo).Enable(Remote)

	err, ev := f.negotiateEnableRequest(Echo, Remote)
	require.Error(t, err)
	require.Nil(t, ev)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, ErrInvalidNegotiation, code)
}

func TestNegotiateEnableRequestWantYesEmpty(t *testing.T) {
	h := &countingHandler{}
	f := negotiateFSM(t, h)
	f.status.Get(Echo).PendEnable(Remote)

	err, ev := f.negotiateEnableRequest(Echo, Remote)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.True(t, f.status.Get(Echo).Enabled(Remote))
	require.Equal(t, 1, h.enables)
}

func TestNegotiateEnableRequestWantYesOpposite(t *testing.T) {
	f := negotiateFSM(t, nil)
	st := f.status.Get(Echo)
	st.PendEnable(Remote)
	require.NoError(t, st.Enqueue(Remote))

	err, ev := f.negotiateEnableRequest(Echo, Remote)
	require.NoError(t, err)
	require.False(t, ev.Negotiation.Enable)
	require.True(t, st.PendingDisable(Remote))
	require.False(t, st.Queued(Remote))
}

func TestNegotiateEnableRequestWantNoEmpty(t *testing.T) {
	f := negotiateFSM(t, nil)
	f.status.Get(Echo).PendDisable(Remote)

	err, ev := f.negotiateEnableRequest(Echo, Remote)
	require.Error(t, err)
	require.Nil(t, ev)
	require.True(t, f.status.Get(Echo).Disabled(Remote))
}

func TestNegotiateEnableRequestWantNoOpposite(t *testing.T) {
	h := &countingHandler{}
	f := negotiateFSM(t, h)
	st := f.status.Get(Echo)
	st.PendDisable(Remote)
	require.NoError(t, st.Enqueue(Remote))

	err, ev := f.negotiateEnableRequest(Echo, Remote)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.True(t, st.Enabled(Remote))
	require.False(t, st.Queued(Remote))
	require.Equal(t, 1, h.enables)
}

func TestNegotiateDisableRequestFromDisabledUnregistered(t *testing.T) {
	f := negotiateFSM(t, nil)
	err, ev := f.negotiateDisableRequest(200, Remote)
	require.NoError(t, err)
	require.Nil(t, ev)
}

func TestNegotiateDisableRequestFromDisabledRegistered(t *testing.T) {
	f := negotiateFSM(t, nil)
	err, ev := f.negotiateDisableRequest(Echo, Remote)
	require.Error(t, err)
	require.Nil(t, ev)
}

func TestNegotiateDisableRequestFromEnabled(t *testing.T) {
	h := &countingHandler{}
	f := negotiateFSM(t, h)
	f.status.Get(Echo).Enable(Remote)

	err, ev := f.negotiateDisableRequest(Echo, Remote)
	require.NoError(t, err)
	require.False(t, ev.Negotiation.Enable)
	require.True(t, f.status.Get(Echo).Disabled(Remote))
	require.Equal(t, 1, h.disables)
}

func TestNegotiateDisableRequestWantYesEmpty(t *testing.T) {
	f := negotiateFSM(t, nil)
	f.status.Get(Echo).PendEnable(Remote)

	err, ev := f.negotiateDisableRequest(Echo, Remote)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.True(t, f.status.Get(Echo).Disabled(Remote))
}

func TestNegotiateDisableRequestWantYesOpposite(t *testing.T) {
	f := negotiateFSM(t, nil)
	st := f.status.Get(Echo)
	st.PendEnable(Remote)
	require.NoError(t, st.Enqueue(Remote))

	err, ev := f.negotiateDisableRequest(Echo, Remote)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.True(t, st.Disabled(Remote))
	require.False(t, st.Queued(Remote))
}

// TestNegotiateDisableRequestWantNoEmptyFiresOnceTotal is the regression
// test for the double-fire bug: DisableOption fires OnDisable exactly once,
// at the moment the application calls it; the peer's wire confirmation
// (the WANTNO/EMPTY inbound row) must not fire it again.
func TestNegotiateDisableRequestWantNoEmptyFiresOnceTotal(t *testing.T) {
	h := &countingHandler{}
	f := negotiateFSM(t, h)
	f.status.Get(Echo).Enable(Remote)

	_, done, err := f.DisableOption(Echo, Remote)
	require.NoError(t, err)
	<-done
	require.Equal(t, 1, h.disables, "OnDisable fires once, at DisableOption call time")
	require.True(t, f.status.Get(Echo).PendingDisable(Remote))

	err, ev := f.negotiateDisableRequest(Echo, Remote)
	require.NoError(t, err)
	require.Nil(t, ev)
	require.True(t, f.status.Get(Echo).Disabled(Remote))
	require.Equal(t, 1, h.disables, "peer's wire confirmation is bookkeeping only, not a second OnDisable")
}

func TestNegotiateDisableRequestWantNoOpposite(t *testing.T) {
	f := negotiateFSM(t, nil)
	st := f.status.Get(Echo)
	st.PendDisable(Remote)
	require.NoError(t, st.Enqueue(Remote))

	err, ev := f.negotiateDisableRequest(Echo, Remote)
	require.NoError(t, err)
	require.True(t, ev.Negotiation.Enable)
	require.True(t, st.PendingEnable(Remote))
	require.False(t, st.Queued(Remote))
}

func TestHandleOptionNegotiationByteRouting(t *testing.T) {
	f := negotiateFSM(t, &countingHandler{})
	err, forward, ev := f.ProcessByte(byte(IAC))
	require.NoError(t, err)
	require.False(t, forward)
	require.Nil(t, ev)

	err, forward, ev = f.ProcessByte(byte(DO))
	require.NoError(t, err)
	require.False(t, forward)
	require.Nil(t, ev)

	err, forward, ev = f.ProcessByte(byte(Echo))
	require.NoError(t, err)
	require.False(t, forward)
	require.NotNil(t, ev.Negotiation)
	require.Equal(t, WILL, ev.Negotiation.command())
	require.True(t, f.status.Get(Echo).Enabled(Local))
}

func TestRequestOptionTable(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(st *OptionStatus)
		want   func(t *testing.T, ev *fsmEvent, err error, st *OptionStatus)
	}{
		{
			name:  "from NO enqueues WANTYES and requests",
			setup: func(st *OptionStatus) {},
			want: func(t *testing.T, ev *fsmEvent, err error, st *OptionStatus) {
				require.NoError(t, err)
				require.True(t, ev.Negotiation.Enable)
				require.True(t, st.PendingEnable(Remote))
			},
		},
		{
			name:  "from YES is a no-op",
			setup: func(st *OptionStatus) { st.Enable(Remote) },
			want: func(t *testing.T, ev *fsmEvent, err error, st *OptionStatus) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.True(t, st.Enabled(Remote))
			},
		},
		{
			name:  "from WANTYES/EMPTY is a no-op",
			setup: func(st *OptionStatus) { st.PendEnable(Remote) },
			want: func(t *testing.T, ev *fsmEvent, err error, st *OptionStatus) {
				require.NoError(t, err)
				require.Nil(t, ev)
			},
		},
		{
			name: "from WANTYES/OPPOSITE dequeues",
			setup: func(st *OptionStatus) {
				st.PendEnable(Remote)
				st.Enqueue(Remote)
			},
			want: func(t *testing.T, ev *fsmEvent, err error, st *OptionStatus) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.False(t, st.Queued(Remote))
			},
		},
		{
			name:  "from WANTNO/EMPTY enqueues opposite",
			setup: func(st *OptionStatus) { st.PendDisable(Remote) },
			want: func(t *testing.T, ev *fsmEvent, err error, st *OptionStatus) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.True(t, st.Queued(Remote))
			},
		},
		{
			name: "from WANTNO/OPPOSITE is a no-op",
			setup: func(st *OptionStatus) {
				st.PendDisable(Remote)
				st.Enqueue(Remote)
			},
			want: func(t *testing.T, ev *fsmEvent, err error, st *OptionStatus) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.True(t, st.Queued(Remote))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := negotiateFSM(t, nil)
			st := f.status.Get(Echo)
			test.setup(st)
			ev, err := f.RequestOption(Echo, Remote)
			test.want(t, ev, err, st)
		})
	}
}

func TestRequestOptionUnregistered(t *testing.T) {
	f := negotiateFSM(t, nil)
	_, err := f.RequestOption(200, Remote)
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, ErrOptionNotAvailable, code)
}

func TestDisableOptionTable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(st *OptionStatus)
		want  func(t *testing.T, ev *fsmEvent, done <-chan struct{}, err error, st *OptionStatus, h *countingHandler)
	}{
		{
			name:  "from YES fires OnDisable and requests",
			setup: func(st *OptionStatus) { st.Enable(Remote) },
			want: func(t *testing.T, ev *fsmEvent, done <-chan struct{}, err error, st *OptionStatus, h *countingHandler) {
				require.NoError(t, err)
				require.False(t, ev.Negotiation.Enable)
				<-done
				require.Equal(t, 1, h.disables)
				require.True(t, st.PendingDisable(Remote))
			},
		},
		{
			name:  "from NO is a no-op",
			setup: func(st *OptionStatus) {},
			want: func(t *testing.T, ev *fsmEvent, done <-chan struct{}, err error, st *OptionStatus, h *countingHandler) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.Equal(t, 0, h.disables)
			},
		},
		{
			name:  "from WANTNO/EMPTY is a no-op",
			setup: func(st *OptionStatus) { st.PendDisable(Remote) },
			want: func(t *testing.T, ev *fsmEvent, done <-chan struct{}, err error, st *OptionStatus, h *countingHandler) {
				require.NoError(t, err)
				require.Nil(t, ev)
			},
		},
		{
			name: "from WANTNO/OPPOSITE dequeues",
			setup: func(st *OptionStatus) {
				st.PendDisable(Remote)
				st.Enqueue(Remote)
			},
			want: func(t *testing.T, ev *fsmEvent, done <-chan struct{}, err error, st *OptionStatus, h *countingHandler) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.False(t, st.Queued(Remote))
			},
		},
		{
			name:  "from WANTYES/EMPTY enqueues opposite",
			setup: func(st *OptionStatus) { st.PendEnable(Remote) },
			want: func(t *testing.T, ev *fsmEvent, done <-chan struct{}, err error, st *OptionStatus, h *countingHandler) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.True(t, st.Queued(Remote))
			},
		},
		{
			name: "from WANTYES/OPPOSITE is a no-op",
			setup: func(st *OptionStatus) {
				st.PendEnable(Remote)
				st.Enqueue(Remote)
			},
			want: func(t *testing.T, ev *fsmEvent, done <-chan struct{}, err error, st *OptionStatus, h *countingHandler) {
				require.NoError(t, err)
				require.Nil(t, ev)
				require.True(t, st.Queued(Remote))
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := &countingHandler{}
			f := negotiateFSM(t, h)
			st := f.status.Get(Echo)
			test.setup(st)
			ev, done, err := f.DisableOption(Echo, Remote)
			require.NotNil(t, done)
			test.want(t, ev, done, err, st, h)
		})
	}
}
