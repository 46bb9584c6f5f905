// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package vna

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gotmc/query"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var (
	// ErrNotConnected is returned by operations that need an open session.
	ErrNotConnected = errors.New("analyzer not connected")
	// ErrConnect wraps failures to open the transport.
	ErrConnect = errors.New("cannot open analyzer connection")
	// ErrProtocol reports a response the analyzer should never send.
	ErrProtocol = errors.New("malformed analyzer response")
	// ErrBlock reports a malformed binary data block.
	ErrBlock = errors.New("malformed binary block")
)

// IF bandwidth limits, in Hz.
const (
	IFBandwidthMin = 10
	IFBandwidthMax = 6000
)

// IFBandwidths lists the IF bandwidths offered on the front panel.
var IFBandwidths = []int{10, 30, 100, 300, 1000, 3000, 3700, 6000}

// State is the connection state of a Session.
type State int

// Session states.
const (
	Disconnected State = iota
	Uncalibrated
	Calibrated
)

var stateDesc = map[State]string{
	Disconnected: "disconnected",
	Uncalibrated: "connected, uncalibrated",
	Calibrated:   "connected, calibrated",
}

func (st State) String() string {
	if desc, ok := stateDesc[st]; ok {
		return desc
	}
	return fmt.Sprintf("State(%d)", int(st))
}

// Session drives one network analyzer. It owns the transport from Connect
// until Disconnect. A Session must not be used from several goroutines at
// once.
type Session struct {
	open      Opener
	t         Transport
	cal       CalType
	averaging int
	pushed    *SweepConfig // last config pushed, echoed back by simulated transports
	log       logrus.FieldLogger
}

// SessionOption applies an option to a session.
type SessionOption func(*Session)

// WithLogger sets the logger used for session events.
func WithLogger(l logrus.FieldLogger) SessionOption {
	return func(s *Session) { s.log = l }
}

// NewSession creates a disconnected session that will use open to reach
// the analyzer.
func NewSession(open Opener, opts ...SessionOption) *Session {
	s := &Session{
		open:      open,
		averaging: 1,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithSession connects a session, runs fn and disconnects again, whatever fn
// returns. Errors from fn and from disconnecting are combined.
func WithSession(open Opener, addr int, fn func(*Session) error, opts ...SessionOption) (err error) {
	s := NewSession(open, opts...)
	if err := s.Connect(addr); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.Disconnect())
	}()
	return fn(s)
}

// State returns the current session state.
func (s *Session) State() State {
	switch {
	case s.t == nil:
		return Disconnected
	case s.cal == CalNone:
		return Uncalibrated
	}
	return Calibrated
}

// Connected reports whether the transport is open.
func (s *Session) Connected() bool { return s.t != nil }

// Calibrated reports whether a calibration was detected on connect.
func (s *Session) Calibrated() bool { return s.State() == Calibrated }

// CalType returns the calibration detected on connect.
func (s *Session) CalType() CalType { return s.cal }

// Averaging returns the averaging factor applied at the next trigger.
func (s *Session) Averaging() int { return s.averaging }

// Simulated reports whether the open transport is a simulation.
func (s *Session) Simulated() bool {
	return s.t != nil && isSimulated(s.t)
}

// Connect opens the transport to the analyzer at addr, sets up the 4
// channel display and detects the loaded calibration. On any failure the
// session stays disconnected; open failures match ErrConnect.
func (s *Session) Connect(addr int) error {
	if s.t != nil {
		if err := s.Disconnect(); err != nil {
			s.log.Warnf("closing previous connection: %s", err)
		}
	}
	t, err := s.open(addr)
	if err != nil {
		return fmt.Errorf("%w at GPIB address %d: %w", ErrConnect, addr, err)
	}
	s.t = t

	if err := s.DisplayFourChannels(); err != nil {
		return s.abortConnect(errors.Wrap(err, "configuring display"))
	}
	cal, err := DetectCalibration(s.t)
	if err != nil {
		return s.abortConnect(errors.Wrap(err, "detecting calibration"))
	}
	s.cal = cal
	s.log.Infof("connected to analyzer at GPIB address %d (%s), calibration: %s", addr, s.State(), cal)
	return nil
}

func (s *Session) abortConnect(err error) error {
	err = multierr.Append(err, s.t.Close())
	s.reset()
	return err
}

func (s *Session) reset() {
	s.t = nil
	s.cal = CalNone
	s.averaging = 1
	s.pushed = nil
}

// Disconnect closes the transport. Disconnecting a disconnected session does
// nothing.
func (s *Session) Disconnect() error {
	if s.t == nil {
		return nil
	}
	err := s.t.Close()
	s.reset()
	if err != nil {
		return errors.Wrap(err, "closing analyzer connection")
	}
	s.log.Debugf("disconnected from analyzer")
	return nil
}

func (s *Session) transport() (Transport, error) {
	if s.t == nil {
		return nil, ErrNotConnected
	}
	return s.t, nil
}

func (s *Session) commands(cmds ...string) error {
	t, err := s.transport()
	if err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := t.Command(cmd); err != nil {
			return errors.Wrapf(err, "sending %q", cmd)
		}
	}
	return nil
}

// DisplayFourChannels lays the display out as a 2x2 grid with one channel
// per quadrant, each in log magnitude.
func (s *Session) DisplayFourChannels() error {
	return s.commands(
		"DUACON;",
		"SPLID4;",
		"OPC?;WAIT;",
		S11.Channel()+";AUTO;",
		"S11;",
		"AUXCON;",
		"LOGM;",
		S12.Channel()+";AUTO;",
		"S21;",
		"AUXCON;",
		"LOGM;",
		S21.Channel()+";AUTO;",
		"S12;",
		"LOGM;",
		S22.Channel()+";AUTO;",
		"S22;",
		"LOGM;",
	)
}

// PushConfig sends the stimulus settings of cfg to the analyzer. The
// averaging factor is kept locally and applied by TriggerSweep.
func (s *Session) PushConfig(cfg SweepConfig) error {
	err := s.commands(
		fmt.Sprintf("STAR %.*fGHz;", freqDecimals, cfg.Start/1e9),
		fmt.Sprintf("STOP %.*fGHz;", freqDecimals, cfg.Stop/1e9),
		fmt.Sprintf("POIN %d;", cfg.Points),
		fmt.Sprintf("POWE %.*f;", powerDecimals, cfg.Power),
	)
	if err != nil {
		return err
	}
	s.averaging = cfg.Averaging
	pushed := cfg.WithSParams(cfg.SParams)
	s.pushed = &pushed
	s.log.Debugf("sweep %s to %s, %d points at %.1f dBm",
		humanize.SIWithDigits(cfg.Start, 2, "Hz"), humanize.SIWithDigits(cfg.Stop, 2, "Hz"), cfg.Points, cfg.Power)
	return nil
}

// PullConfig reads the stimulus settings back from the analyzer. The
// analyzer cannot report which S-parameters are selected, so SParams is
// empty; Averaging is the locally held factor.
func (s *Session) PullConfig() (SweepConfig, error) {
	t, err := s.transport()
	if err != nil {
		return SweepConfig{}, err
	}
	start, err := query.Float64(t, "STAR?;")
	if err != nil {
		return SweepConfig{}, errors.Wrap(err, "reading start frequency")
	}
	stop, err := query.Float64(t, "STOP?;")
	if err != nil {
		return SweepConfig{}, errors.Wrap(err, "reading stop frequency")
	}
	points, err := query.Float64(t, "POIN?;")
	if err != nil {
		return SweepConfig{}, errors.Wrap(err, "reading point count")
	}
	power, err := query.Float64(t, "POWE?;")
	if err != nil {
		return SweepConfig{}, errors.Wrap(err, "reading power")
	}
	cfg := SweepConfig{
		Start:     start,
		Stop:      stop,
		Points:    int(points),
		Power:     power,
		Averaging: s.averaging,
	}
	if isSimulated(t) && s.pushed != nil {
		cfg.Start, cfg.Stop = s.pushed.Start, s.pushed.Stop
		cfg.Points, cfg.Power = s.pushed.Points, s.pushed.Power
	}
	return cfg, nil
}

// TriggerSweep auto-scales every channel, applies the averaging factor and
// blocks until the analyzer reports the acquisition complete. Channel data
// read before it returns is not valid.
func (s *Session) TriggerSweep() error {
	cmds := []string{"CONT;"}
	for _, sp := range SParams {
		cmds = append(cmds, sp.Channel()+";AUTO;")
		if s.averaging < 2 {
			cmds = append(cmds, "AVEROOFF;")
		} else {
			cmds = append(cmds, fmt.Sprintf("AVERFACT%d;", s.averaging), "AVEROON;")
		}
	}
	if err := s.commands(cmds...); err != nil {
		return err
	}

	opc := "OPC?;SING;"
	if s.averaging >= 2 {
		opc = fmt.Sprintf("OPC?;NUMG%d;", s.averaging)
	}
	if _, err := s.t.Query(opc); err != nil {
		return errors.Wrapf(err, "waiting for sweep (%s)", opc)
	}
	return nil
}

// ReadFrequencyAxis returns the stimulus values of the last sweep, taken
// from the limit test dump. Parsing stops at the first empty line. Simulated
// transports return an empty axis.
func (s *Session) ReadFrequencyAxis() ([]float64, error) {
	if err := s.commands("OUTPLIML;"); err != nil {
		return nil, err
	}
	dump, err := s.t.Read()
	if err != nil {
		return nil, errors.Wrap(err, "reading limit test dump")
	}
	if isSimulated(s.t) {
		return []float64{}, nil
	}
	return parseLimitDump(dump)
}

func parseLimitDump(dump string) ([]float64, error) {
	freqs := []float64{}
	for _, line := range strings.Split(dump, "\n") {
		if strings.TrimSpace(line) == "" {
			break
		}
		field, _, _ := strings.Cut(line, ",")
		f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, errors.Wrapf(ErrProtocol, "limit test line %q", line)
		}
		freqs = append(freqs, f)
	}
	return freqs, nil
}

// ReadMagnitude returns the log magnitude trace of sp, in dB.
func (s *Session) ReadMagnitude(sp SParam) ([]float64, error) {
	return s.readChannel(sp, "LOGM;")
}

// ReadPhase returns the phase trace of sp, in degrees.
func (s *Session) ReadPhase(sp SParam) ([]float64, error) {
	return s.readChannel(sp, "PHAS;")
}

func (s *Session) readChannel(sp SParam, format string) ([]float64, error) {
	if !sp.Valid() {
		return nil, errors.Errorf("unknown S-parameter %s", sp)
	}
	if err := s.commands("FORM5;", sp.Channel()+";", format); err != nil {
		return nil, err
	}
	if isSimulated(s.t) {
		return []float64{}, nil
	}
	var block []byte
	if bq, ok := s.t.(BlockQuerier); ok {
		b, err := bq.QueryBlock("OUTPFORM;")
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s data", sp)
		}
		block = b
	} else {
		r, err := s.t.Query("OUTPFORM;")
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s data", sp)
		}
		block = []byte(r)
	}
	pairs, err := DecodeBlock(block)
	if err != nil {
		return nil, errors.Wrapf(err, "%s data", sp)
	}
	return Decimate(pairs), nil
}

// SetIFBandwidth sets the IF bandwidth in Hz.
func (s *Session) SetIFBandwidth(hz int) error {
	if hz < IFBandwidthMin || hz > IFBandwidthMax {
		return errors.Errorf("IF bandwidth %d Hz outside %d-%d Hz", hz, IFBandwidthMin, IFBandwidthMax)
	}
	return s.commands(fmt.Sprintf("IFBW%dHZ;", hz))
}

// IFBandwidth reads the IF bandwidth in Hz.
func (s *Session) IFBandwidth() (float64, error) {
	t, err := s.transport()
	if err != nil {
		return 0, err
	}
	bw, err := query.Float64(t, "IFBW?;")
	return bw, errors.Wrap(err, "reading IF bandwidth")
}
