// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package vna

import (
	"fmt"
	"strings"
)

// Instrument limits for the 8720-series network analyzer.
const (
	FreqMin       = 0.05e9  // Hz
	FreqMax       = 40.05e9 // Hz
	PointsMin     = 3
	PointsMax     = 1601
	PointsDefault = 101
	PowerMin      = -15.0 // dBm
	PowerMax      = -5.0  // dBm
	AveragingMin  = 1
	AveragingMax  = 999

	freqDecimals  = 2
	powerDecimals = 1
)

// SupportedPoints lists the point counts the analyzer offers directly.
var SupportedPoints = []int{3, 11, 21, 26, 51, 101, 201, 401, 801, 1601}

// SParam is a measured scattering parameter. Each one is displayed on a
// fixed analyzer channel.
type SParam int

// Available S-parameters, in channel order.
const (
	S11 SParam = iota
	S12
	S21
	S22
)

// SParams lists every S-parameter in channel order.
var SParams = []SParam{S11, S12, S21, S22}

var sparamNames = [...]string{S11: "S11", S12: "S12", S21: "S21", S22: "S22"}

// The mapping never changes at runtime.
var sparamChannels = [...]string{S11: "CHAN1", S12: "CHAN2", S21: "CHAN3", S22: "CHAN4"}

func (sp SParam) String() string {
	if !sp.Valid() {
		return fmt.Sprintf("SParam(%d)", int(sp))
	}
	return sparamNames[sp]
}

// Valid reports whether sp is one of S11, S12, S21 or S22.
func (sp SParam) Valid() bool {
	return sp >= 0 && int(sp) < len(sparamNames)
}

// Channel returns the analyzer channel the S-parameter is displayed on, or
// "" for an invalid one.
func (sp SParam) Channel() string {
	if !sp.Valid() {
		return ""
	}
	return sparamChannels[sp]
}

// ParseSParam parses a name such as "S21" (case insensitive).
func ParseSParam(s string) (SParam, error) {
	for i, name := range sparamNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return SParam(i), nil
		}
	}
	return 0, fmt.Errorf("unknown S-parameter %q", s)
}

// SweepConfig holds the parameters for a frequency sweep, not the measured
// data itself. Treat it as a value: derive modified copies with the With
// methods instead of editing a shared one.
type SweepConfig struct {
	Start     float64 // Hz
	Stop      float64 // Hz
	Points    int
	Power     float64 // dBm
	Averaging int     // 1 disables averaging
	SParams   []SParam
}

// WithSParams returns a copy of c measuring sp instead. The slice is copied
// so later changes to sp do not leak into the result.
func (c SweepConfig) WithSParams(sp []SParam) SweepConfig {
	c.SParams = append([]SParam(nil), sp...)
	return c
}

func (c SweepConfig) String() string {
	names := make([]string, 0, len(c.SParams))
	for _, sp := range c.SParams {
		names = append(names, sp.String())
	}
	return fmt.Sprintf("<SweepConfig start:%.3E stop:%.3E points:%d power:%.2f averaging:%d sp: [%s]>",
		c.Start, c.Stop, c.Points, c.Power, c.Averaging, strings.Join(names, " "))
}

// Validate checks c against the instrument limits and returns every
// violated constraint, or nil if there are none. The S-parameter selection
// is only checked when checkSParams is set.
func (c SweepConfig) Validate(checkSParams bool) []string {
	var msgs []string
	// Checks are written as negated acceptance so NaN fails them.
	if !(c.Start >= FreqMin && c.Start <= FreqMax) {
		msgs = append(msgs, fmt.Sprintf("Start frequency should be %g GHz to %g GHz", FreqMin/1e9, FreqMax/1e9))
	}
	if !(c.Stop >= FreqMin && c.Stop <= FreqMax) {
		msgs = append(msgs, fmt.Sprintf("Stop frequency should be %g GHz to %g GHz", FreqMin/1e9, FreqMax/1e9))
	}
	if !(c.Start < c.Stop) {
		msgs = append(msgs, "Stop frequency should be greater than start frequency")
	}
	if c.Points < PointsMin || c.Points > PointsMax {
		msgs = append(msgs, fmt.Sprintf("Number of points should be from %d to %d", PointsMin, PointsMax))
	}
	if !(c.Power >= PowerMin && c.Power <= PowerMax) {
		msgs = append(msgs, fmt.Sprintf("Power level should be between %g dBm and %g dBm", PowerMin, PowerMax))
	}
	if c.Averaging < AveragingMin || c.Averaging > AveragingMax {
		msgs = append(msgs, fmt.Sprintf("Averaging factor should be between %d and %d", AveragingMin, AveragingMax))
	}
	if checkSParams {
		if len(c.SParams) == 0 {
			msgs = append(msgs, "No S-parameters are selected")
		}
		for _, sp := range c.SParams {
			if !sp.Valid() {
				msgs = append(msgs, fmt.Sprintf("Unknown S-parameter %s", sp))
			}
		}
	}
	return msgs
}

// Check is Validate reported as an error. The returned error is a
// ValidationError holding all messages.
func (c SweepConfig) Check(checkSParams bool) error {
	if msgs := c.Validate(checkSParams); msgs != nil {
		return ValidationError(msgs)
	}
	return nil
}

// ValidationError lists every constraint a SweepConfig violates.
type ValidationError []string

func (e ValidationError) Error() string {
	return "invalid sweep: " + strings.Join(e, "; ")
}
