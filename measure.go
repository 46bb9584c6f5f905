// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package vna

import (
	"math/rand/v2"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// Trace is the magnitude (dB) and phase (degrees) of one S-parameter over
// the frequency axis.
type Trace struct {
	Magnitude []float64
	Phase     []float64
}

// Result holds one sweep: the config it was taken with, the frequency axis
// and a trace per measured S-parameter. It is not changed after NewResult
// and has no reference to the session that produced it.
type Result struct {
	cfg    SweepConfig
	freq   []float64
	order  []SParam
	traces map[SParam]Trace
}

// NewResult assembles a result. Every trace must have as many magnitude and
// phase values as freq has points.
func NewResult(cfg SweepConfig, freq []float64, traces map[SParam]Trace) (*Result, error) {
	r := &Result{
		cfg:    cfg.WithSParams(cfg.SParams),
		freq:   slices.Clone(freq),
		traces: make(map[SParam]Trace, len(traces)),
	}
	for _, sp := range SParams {
		tr, ok := traces[sp]
		if !ok {
			continue
		}
		if len(tr.Magnitude) != len(freq) || len(tr.Phase) != len(freq) {
			return nil, errors.Errorf("%s trace has %d magnitude and %d phase values for %d frequencies",
				sp, len(tr.Magnitude), len(tr.Phase), len(freq))
		}
		r.order = append(r.order, sp)
		r.traces[sp] = Trace{Magnitude: slices.Clone(tr.Magnitude), Phase: slices.Clone(tr.Phase)}
	}
	if len(r.traces) != len(traces) {
		return nil, errors.New("result has traces for unknown S-parameters")
	}
	return r, nil
}

// Config returns the sweep config the result was taken with.
func (r *Result) Config() SweepConfig { return r.cfg.WithSParams(r.cfg.SParams) }

// Freq returns a copy of the frequency axis, in Hz.
func (r *Result) Freq() []float64 { return slices.Clone(r.freq) }

// Len is the number of frequency points.
func (r *Result) Len() int { return len(r.freq) }

// SParams returns the measured S-parameters in channel order.
func (r *Result) SParams() []SParam { return slices.Clone(r.order) }

// Trace returns a copy of the trace for sp.
func (r *Result) Trace(sp SParam) (Trace, bool) {
	tr, ok := r.traces[sp]
	if !ok {
		return Trace{}, false
	}
	return Trace{Magnitude: slices.Clone(tr.Magnitude), Phase: slices.Clone(tr.Phase)}, true
}

// Split returns one result per measured S-parameter.
func (r *Result) Split() []*Result {
	out := make([]*Result, 0, len(r.order))
	for _, sp := range r.order {
		single, _ := NewResult(r.cfg.WithSParams([]SParam{sp}), r.freq, map[SParam]Trace{sp: r.traces[sp]})
		out = append(out, single)
	}
	return out
}

// Recorder persists a result under a step identifier such as an angle.
type Recorder interface {
	Record(step string, r *Result) error
}

// Measurer runs complete sweeps on a session.
type Measurer struct {
	rec Recorder
	rnd *rand.Rand
	log logrus.FieldLogger
}

// MeasurerOption applies an option to a Measurer.
type MeasurerOption func(*Measurer)

// WithRecorder makes MeasureStep persist results to rec.
func WithRecorder(rec Recorder) MeasurerOption {
	return func(m *Measurer) { m.rec = rec }
}

// WithRand sets the source for simulated jitter.
func WithRand(rnd *rand.Rand) MeasurerOption {
	return func(m *Measurer) { m.rnd = rnd }
}

// WithMeasureLogger sets the logger used for measurement events.
func WithMeasureLogger(l logrus.FieldLogger) MeasurerOption {
	return func(m *Measurer) { m.log = l }
}

// NewMeasurer creates a Measurer.
func NewMeasurer(opts ...MeasurerOption) *Measurer {
	m := &Measurer{
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Measure pushes cfg, triggers a sweep and reads the frequency axis and the
// traces of cfg.SParams. It returns nil without an error if s is not
// connected. Against a simulated transport the axis is spaced linearly over
// the configured range and the traces are noisy ramps.
func (m *Measurer) Measure(s *Session, cfg SweepConfig) (*Result, error) {
	if !s.Connected() {
		return nil, nil
	}
	if err := s.PushConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.TriggerSweep(); err != nil {
		return nil, err
	}
	freq, err := s.ReadFrequencyAxis()
	if err != nil {
		return nil, err
	}
	sim := s.Simulated()
	if sim {
		freq = linspace(cfg.Start, cfg.Stop, cfg.Points)
	}

	traces := make(map[SParam]Trace, len(cfg.SParams))
	for _, sp := range cfg.SParams {
		var tr Trace
		if tr.Magnitude, err = s.ReadMagnitude(sp); err != nil {
			return nil, err
		}
		if tr.Phase, err = s.ReadPhase(sp); err != nil {
			return nil, err
		}
		if sim {
			tr = m.simulate(len(freq))
		}
		traces[sp] = tr
	}
	r, err := NewResult(cfg, freq, traces)
	if err != nil {
		return nil, errors.Wrap(err, "assembling result")
	}
	m.log.Debugf("measured %d points for %v", r.Len(), r.SParams())
	return r, nil
}

// MeasureAll measures the S-parameters made meaningful by the session's
// calibration: all four after a full 2-port cal, S11 or S22 after a 1-port
// cal. Otherwise the selection in cfg is kept.
func (m *Measurer) MeasureAll(s *Session, cfg SweepConfig) (*Result, error) {
	if sp := s.CalType().SParams(); sp != nil {
		cfg = cfg.WithSParams(sp)
	}
	return m.Measure(s, cfg)
}

// MeasureStep runs MeasureAll and hands the result to the recorder, if one
// is set, under step.
func (m *Measurer) MeasureStep(s *Session, cfg SweepConfig, step string) (*Result, error) {
	r, err := m.MeasureAll(s, cfg)
	if err != nil || r == nil {
		return r, err
	}
	if m.rec != nil {
		if err := m.rec.Record(step, r); err != nil {
			return r, errors.Wrapf(err, "recording step %s", step)
		}
	}
	return r, nil
}

func linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, stop)
}

// Ramp endpoints and jitter bounds for simulated traces.
const (
	simMagLow, simMagHigh     = -30.0, -10.0 // dB
	simPhaseLow, simPhaseHigh = -180.0, 180.0
	simMagJitter              = 0.5
	simPhaseJitter            = 2.0
)

func (m *Measurer) simulate(n int) Trace {
	tr := Trace{
		Magnitude: linspace(simMagLow, simMagHigh, n),
		Phase:     linspace(simPhaseLow, simPhaseHigh, n),
	}
	for i := range tr.Magnitude {
		tr.Magnitude[i] += simMagJitter * (2*m.rnd.Float64() - 1)
		tr.Phase[i] += simPhaseJitter * (2*m.rnd.Float64() - 1)
	}
	return tr
}
