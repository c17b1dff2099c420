package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionStatusEnabledDisabledPending(t *testing.T) {
	var tests = []struct {
		side               optionSide
		enabled, disabled  bool
		pendEnable         bool
		pendDisable        bool
	}{
		{optionSide{state: qNo}, false, true, false, false},
		{optionSide{state: qYes}, true, false, false, false},
		{optionSide{state: qWantYes}, false, false, true, false},
		{optionSide{state: qWantNo}, false, false, false, true},
	}

	for i, test := range tests {
		s := &OptionStatus{}
		s.sides[Local] = test.side
		require.Equal(t, test.enabled, s.Enabled(Local), i)
		require.Equal(t, test.disabled, s.Disabled(Local), i)
		require.Equal(t, test.pendEnable, s.PendingEnable(Local), i)
		require.Equal(t, test.pendDisable, s.PendingDisable(Local), i)
	}
}

func TestOptionStatusEnqueueDequeue(t *testing.T) {
	s := &OptionStatus{}
	s.PendEnable(Local)
	require.NoError(t, s.Enqueue(Local))
	require.True(t, s.Queued(Local))

	require.Error(t, s.Enqueue(Local), "enqueue while already queued must fail")

	s.Dequeue(Local)
	require.False(t, s.Queued(Local))

	s2 := &OptionStatus{}
	require.Error(t, s2.Enqueue(Local), "enqueue outside WANTYES/WANTNO must fail")
}

func TestOptionStatusResetInvalid(t *testing.T) {
	s := &OptionStatus{}
	s.PendEnable(Local)
	s.Enqueue(Local)
	s.resetInvalid(Local)
	require.True(t, s.Disabled(Local))
	require.False(t, s.Queued(Local))
}

func TestOptionStatusDBLazyGet(t *testing.T) {
	db := newOptionStatusDB()
	require.False(t, db.Enabled(Echo, Local), "unseen option reads as NO without allocating")
	st := db.Get(Echo)
	st.Enable(Local)
	require.True(t, db.Enabled(Echo, Local))
}

func TestOptionStatusDBEnabledOptions(t *testing.T) {
	db := newOptionStatusDB()
	db.Get(Echo).Enable(Local)
	db.Get(SuppressGoAhead).Enable(Local)
	db.Get(Binary).Enable(Remote)

	local := db.EnabledOptions(Local)
	require.ElementsMatch(t, []OptionID{Echo, SuppressGoAhead}, local)

	remote := db.EnabledOptions(Remote)
	require.ElementsMatch(t, []OptionID{Binary}, remote)
}
