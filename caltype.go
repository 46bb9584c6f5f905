// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package vna

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/query"
	"github.com/pkg/errors"
)

// CalType is the kind of error correction loaded on the analyzer.
type CalType int

// Calibration types. CalNone means no calibration was detected.
const (
	CalNone CalType = iota
	CalResponse
	CalResponseIsolation
	CalOnePortP1 // 1-port on port 1
	CalOnePortP2 // 1-port on port 2
	CalFullTwoPort
)

// CalTypes lists the calibration types in detection order.
var CalTypes = []CalType{
	CalResponse,
	CalResponseIsolation,
	CalOnePortP1,
	CalOnePortP2,
	CalFullTwoPort,
}

type calInfo struct {
	mnemonic string
	desc     string
	length   int // calibration arrays needed for a complete cal
}

var calInfos = map[CalType]calInfo{
	CalNone:              {"", "none", 0},
	CalResponse:          {"CALIRESP", "response", 1},
	CalResponseIsolation: {"CALIRAI", "response and isolation", 2},
	CalOnePortP1:         {"CALIS111", "1-port on port 1", 3},
	CalOnePortP2:         {"CALIS221", "1-port on port 2", 3},
	CalFullTwoPort:       {"CALIFUL2", "full 2-port", 12},
}

func (ct CalType) String() string {
	if info, ok := calInfos[ct]; ok {
		return info.desc
	}
	return fmt.Sprintf("CalType(%d)", int(ct))
}

// Mnemonic returns the analyzer command name for the calibration type.
func (ct CalType) Mnemonic() string { return calInfos[ct].mnemonic }

// DataLength returns how many calibration arrays a complete calibration of
// this type holds.
func (ct CalType) DataLength() int { return calInfos[ct].length }

// SParams returns the S-parameters a calibration makes meaningful. Response
// calibrations and CalNone return nil since they do not say which path was
// calibrated.
func (ct CalType) SParams() []SParam {
	switch ct {
	case CalFullTwoPort:
		return []SParam{S11, S12, S21, S22}
	case CalOnePortP1:
		return []SParam{S11}
	case CalOnePortP2:
		return []SParam{S22}
	}
	return nil
}

// DetectCalibration asks the analyzer about each calibration type in
// CalTypes order and returns the first one reported present. The analyzer
// can report stale flags for several types at once, so the order decides.
// A reply that is not an integer is an ErrProtocol.
func DetectCalibration(q query.Querier) (CalType, error) {
	for _, ct := range CalTypes {
		cmd := ct.Mnemonic() + "?;"
		s, err := query.String(q, cmd)
		if err != nil {
			return CalNone, errors.Wrapf(err, "querying %s", cmd)
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return CalNone, errors.Wrapf(ErrProtocol, "%s answered %q", cmd, s)
		}
		if v != 0 {
			return ct, nil
		}
	}
	return CalNone, nil
}
