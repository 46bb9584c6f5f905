package vna

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() SessionOption {
	l, _ := logtest.NewNullLogger()
	return WithLogger(l)
}

func TestConnectDetectsCalibration(t *testing.T) {
	f := newScripted(map[string]string{
		"CALIS111?;": "1",
		"CALIFUL2?;": "1",
	})
	s := NewSession(openerFor(f), quiet())
	require.NoError(t, s.Connect(16))

	assert.Equal(t, Calibrated, s.State())
	assert.True(t, s.Calibrated())
	assert.Equal(t, CalOnePortP1, s.CalType())

	// display setup, then the probes up to the first positive one
	probes := f.sent[len(f.sent)-3:]
	assert.Equal(t, []string{"CALIRESP?;", "CALIRAI?;", "CALIS111?;"}, probes)
	assert.Equal(t, "DUACON;", f.sent[0])
}

func TestConnectUncalibrated(t *testing.T) {
	f := newScripted(nil)
	s := NewSession(openerFor(f), quiet())
	require.NoError(t, s.Connect(16))

	assert.Equal(t, Uncalibrated, s.State())
	assert.True(t, s.Connected())
	assert.False(t, s.Calibrated())
	assert.Equal(t, CalNone, s.CalType())
}

func TestConnectMalformedCalibration(t *testing.T) {
	f := newScripted(map[string]string{"CALIRAI?;": "garbage"})
	s := NewSession(openerFor(f), quiet())

	err := s.Connect(16)
	require.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, 1, f.closed)
}

func TestConnectDisplayFailure(t *testing.T) {
	f := newScripted(nil)
	f.failOn = "SPLID4;"
	s := NewSession(openerFor(f), quiet())

	require.Error(t, s.Connect(16))
	assert.False(t, s.Connected())
	assert.Equal(t, 1, f.closed)
}

func TestConnectOpenFailure(t *testing.T) {
	cause := errors.New("no such device")
	s := NewSession(func(int) (Transport, error) { return nil, cause }, quiet())

	err := s.Connect(16)
	require.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "16")
	assert.Equal(t, Disconnected, s.State())
}

func TestConnectReplacesConnection(t *testing.T) {
	first, second := newScripted(nil), newScripted(nil)
	transports := []Transport{first, second}
	s := NewSession(func(int) (Transport, error) {
		t := transports[0]
		transports = transports[1:]
		return t, nil
	}, quiet())

	require.NoError(t, s.Connect(16))
	require.NoError(t, s.Connect(16))
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, second.closed)
}

func TestDisconnect(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)

	require.NoError(t, s.Disconnect())
	require.NoError(t, s.Disconnect())
	assert.Equal(t, 1, f.closed)
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, CalNone, s.CalType())
}

func TestDisconnectCloseError(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)
	f.closeErr = errors.New("port busy")

	require.Error(t, s.Disconnect())
	assert.False(t, s.Connected())
}

func TestNotConnected(t *testing.T) {
	s := NewSession(DummyOpener(), quiet())
	cfg := SweepConfig{Start: 7e9, Stop: 13e9, Points: 101, Power: -10, Averaging: 1}

	assert.ErrorIs(t, s.PushConfig(cfg), ErrNotConnected)
	_, err := s.PullConfig()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, s.TriggerSweep(), ErrNotConnected)
	_, err = s.ReadFrequencyAxis()
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.ReadMagnitude(S21)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.ReadPhase(S21)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, s.DisplayFourChannels(), ErrNotConnected)
	assert.ErrorIs(t, s.SetIFBandwidth(3700), ErrNotConnected)
	_, err = s.IFBandwidth()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisplayFourChannels(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)

	require.NoError(t, s.DisplayFourChannels())
	want := []string{
		"DUACON;", "SPLID4;", "OPC?;WAIT;",
		"CHAN1;AUTO;", "S11;", "AUXCON;", "LOGM;",
		"CHAN2;AUTO;", "S21;", "AUXCON;", "LOGM;",
		"CHAN3;AUTO;", "S12;", "LOGM;",
		"CHAN4;AUTO;", "S22;", "LOGM;",
	}
	if diff := cmp.Diff(want, f.sent); diff != "" {
		t.Errorf("display commands mismatch (-want +got):\n%s", diff)
	}
}

func TestPushConfig(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)

	cfg := SweepConfig{Start: 7e9, Stop: 13.256e9, Points: 201, Power: -7.26, Averaging: 8}
	require.NoError(t, s.PushConfig(cfg))

	want := []string{"STAR 7.00GHz;", "STOP 13.26GHz;", "POIN 201;", "POWE -7.3;"}
	if diff := cmp.Diff(want, f.sent); diff != "" {
		t.Errorf("push commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 8, s.Averaging())
}

func TestPullConfig(t *testing.T) {
	f := newScripted(map[string]string{
		"STAR?;": "+7.000000000000E+09",
		"STOP?;": "+1.300000000000E+10",
		"POIN?;": "+1.01000000000000E+02",
		"POWE?;": "-1.000000E+01",
	})
	s, err := connected(f, quiet())
	require.NoError(t, err)

	got, err := s.PullConfig()
	require.NoError(t, err)
	want := SweepConfig{Start: 7e9, Stop: 13e9, Points: 101, Power: -10, Averaging: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pulled config mismatch (-want +got):\n%s", diff)
	}
}

func TestPullConfigMalformed(t *testing.T) {
	f := newScripted(map[string]string{"STAR?;": "seven"})
	s, err := connected(f, quiet())
	require.NoError(t, err)

	_, err = s.PullConfig()
	assert.Error(t, err)
}

func TestDummyPushPullRoundTrip(t *testing.T) {
	s := NewSession(DummyOpener(), quiet())
	require.NoError(t, s.Connect(16))
	assert.True(t, s.Simulated())

	cfg := SweepConfig{Start: 2e9, Stop: 18e9, Points: 401, Power: -12, Averaging: 4, SParams: []SParam{S11}}
	require.NoError(t, s.PushConfig(cfg))
	got, err := s.PullConfig()
	require.NoError(t, err)

	want := cfg.WithSParams(nil)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTriggerSweep(t *testing.T) {
	tests := []struct {
		name      string
		averaging int
		want      []string
	}{
		{
			name:      "single",
			averaging: 1,
			want: []string{
				"CONT;",
				"CHAN1;AUTO;", "AVEROOFF;",
				"CHAN2;AUTO;", "AVEROOFF;",
				"CHAN3;AUTO;", "AVEROOFF;",
				"CHAN4;AUTO;", "AVEROOFF;",
				"OPC?;SING;",
			},
		},
		{
			name:      "averaged",
			averaging: 16,
			want: []string{
				"CONT;",
				"CHAN1;AUTO;", "AVERFACT16;", "AVEROON;",
				"CHAN2;AUTO;", "AVERFACT16;", "AVEROON;",
				"CHAN3;AUTO;", "AVERFACT16;", "AVEROON;",
				"CHAN4;AUTO;", "AVERFACT16;", "AVEROON;",
				"OPC?;NUMG16;",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScripted(nil)
			s, err := connected(f, quiet())
			require.NoError(t, err)
			require.NoError(t, s.PushConfig(SweepConfig{Start: 7e9, Stop: 13e9, Points: 101, Power: -10, Averaging: tt.averaging}))
			f.reset()

			require.NoError(t, s.TriggerSweep())
			if diff := cmp.Diff(tt.want, f.sent); diff != "" {
				t.Errorf("trigger commands mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTriggerSweepQueryFails(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)
	f.failOn = "OPC?;SING;"

	assert.Error(t, s.TriggerSweep())
}

func TestReadFrequencyAxis(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)

	f.reads = []string{" +7.00000000000E+09, 0, 0\n +1.00000000000E+10, 0, 0\n+1.30000000000E+10,0,0\n\n99, 0\n"}
	freq, err := s.ReadFrequencyAxis()
	require.NoError(t, err)
	assert.Equal(t, []float64{7e9, 10e9, 13e9}, freq)
	assert.Equal(t, []string{"OUTPLIML;"}, f.sent)
}

func TestReadFrequencyAxisMalformed(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)

	f.reads = []string{"7e9,0\nnot a number,0\n"}
	_, err = s.ReadFrequencyAxis()
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestReadFrequencyAxisDummy(t *testing.T) {
	s := NewSession(DummyOpener(), quiet())
	require.NoError(t, s.Connect(16))

	freq, err := s.ReadFrequencyAxis()
	require.NoError(t, err)
	assert.NotNil(t, freq)
	assert.Empty(t, freq)
}

func TestReadMagnitudeDecimates(t *testing.T) {
	f := newScripted(nil)
	s, err := connectedTo(blockScripted{f}, f, quiet())
	require.NoError(t, err)

	f.blocks = [][]byte{EncodeBlock([]float64{10, 0, 20, 0, 30, 0})}
	mag, err := s.ReadMagnitude(S21)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30}, mag)
	assert.Equal(t, []string{"FORM5;", "CHAN3;", "LOGM;", "OUTPFORM;"}, f.sent)
}

func TestReadPhaseThroughQuery(t *testing.T) {
	f := newScripted(map[string]string{
		"OUTPFORM;": string(EncodeBlock([]float64{-90, 0, 45, 0})),
	})
	s, err := connected(f, quiet())
	require.NoError(t, err)

	phase, err := s.ReadPhase(S12)
	require.NoError(t, err)
	assert.Equal(t, []float64{-90, 45}, phase)
	assert.Equal(t, []string{"FORM5;", "CHAN2;", "PHAS;", "OUTPFORM;"}, f.sent)
}

func TestReadChannelBadBlock(t *testing.T) {
	f := newScripted(map[string]string{"OUTPFORM;": "#B\x00\x00"})
	s, err := connected(f, quiet())
	require.NoError(t, err)

	_, err = s.ReadMagnitude(S11)
	assert.ErrorIs(t, err, ErrBlock)
}

func TestReadChannelDummy(t *testing.T) {
	s := NewSession(DummyOpener(), quiet())
	require.NoError(t, s.Connect(16))

	for _, sp := range SParams {
		mag, err := s.ReadMagnitude(sp)
		require.NoError(t, err)
		assert.Empty(t, mag)
		phase, err := s.ReadPhase(sp)
		require.NoError(t, err)
		assert.Empty(t, phase)
	}
}

func TestIFBandwidth(t *testing.T) {
	f := newScripted(map[string]string{"IFBW?;": "+3.70000000000E+03"})
	s, err := connected(f, quiet())
	require.NoError(t, err)

	require.NoError(t, s.SetIFBandwidth(3700))
	assert.Equal(t, []string{"IFBW3700HZ;"}, f.sent)

	for _, hz := range []int{IFBandwidthMin - 1, IFBandwidthMax + 1} {
		assert.Error(t, s.SetIFBandwidth(hz), "%d Hz", hz)
	}

	bw, err := s.IFBandwidth()
	require.NoError(t, err)
	assert.Equal(t, 3700.0, bw)
}

func TestWithSession(t *testing.T) {
	f := newScripted(nil)
	var seen State
	err := WithSession(openerFor(f), 16, func(s *Session) error {
		seen = s.State()
		return nil
	}, quiet())
	require.NoError(t, err)
	assert.Equal(t, Uncalibrated, seen)
	assert.Equal(t, 1, f.closed)
}

func TestWithSessionCombinesErrors(t *testing.T) {
	f := newScripted(nil)
	f.closeErr = errors.New("port busy")
	fail := errors.New("measurement failed")

	err := WithSession(openerFor(f), 16, func(*Session) error { return fail }, quiet())
	require.ErrorIs(t, err, fail)
	assert.Contains(t, err.Error(), "port busy")
	assert.Equal(t, 1, f.closed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connected, uncalibrated", Uncalibrated.String())
	assert.Equal(t, "connected, calibrated", Calibrated.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestReadChannelUnknownSParam(t *testing.T) {
	f := newScripted(nil)
	s, err := connected(f, quiet())
	require.NoError(t, err)

	_, err = s.ReadMagnitude(SParam(7))
	assert.Error(t, err)
	_, err = s.ReadPhase(SParam(-1))
	assert.Error(t, err)
	assert.Empty(t, f.sent)
}
