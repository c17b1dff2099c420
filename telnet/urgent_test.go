package telnet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUrgentTrackerSawUrgentThenDataMark(t *testing.T) {
	tr := &urgentTracker{sink: NopSink{}}
	require.False(t, tr.Active())

	tr.SawUrgent()
	require.True(t, tr.Active(), "HasUrgent after the common-case OOB-first pairing")

	tr.SawDataMark()
	require.False(t, tr.Active(), "NoUrgent after the DM completes the pairing")
}

func TestUrgentTrackerDataMarkBeforeUrgent(t *testing.T) {
	sink := &captureSink{}
	tr := &urgentTracker{sink: sink}

	tr.SawDataMark()
	require.False(t, tr.Active())
	require.Equal(t, urgentState(unexpectedDataMark), urgentState(tr.state.Load()))
	require.Contains(t, sink.codes, SigDataMark)

	tr.SawUrgent()
	require.False(t, tr.Active(), "the delayed OOB notification just resolves the already-consumed Synch")
	require.Equal(t, urgentState(noUrgent), urgentState(tr.state.Load()))
}

func TestUrgentTrackerRepeatedDataMarkIsSafe(t *testing.T) {
	sink := &captureSink{}
	tr := &urgentTracker{sink: sink}

	tr.SawDataMark()
	tr.SawDataMark()
	require.Equal(t, urgentState(unexpectedDataMark), urgentState(tr.state.Load()), "a second DM in a row is logged, not reset")
	require.Len(t, sink.codes, 2)
}

func TestUrgentTrackerReentrantSawUrgentIsLoggedNotFatal(t *testing.T) {
	sink := &captureSink{}
	tr := &urgentTracker{sink: sink}

	tr.SawUrgent()
	tr.SawUrgent()
	require.True(t, tr.Active())
	require.Contains(t, sink.codes, ErrInternal)
}

func TestUrgentTrackerNilMetricsSafe(t *testing.T) {
	tr := &urgentTracker{sink: NopSink{}}
	require.NotPanics(t, func() {
		tr.SawUrgent()
		tr.SawDataMark()
	})
}
