// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package vna

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// DecodeBlock decodes an HP "#A" binary block as sent in FORM5 mode:
//
//	2 bytes: '#', 'A'
//	2 bytes: byte count, big endian
//	data:    little endian float32 values
//
// Bytes after the counted data (a trailing terminator) are ignored.
func DecodeBlock(block []byte) ([]float64, error) {
	if len(block) < 4 {
		return nil, errors.Wrapf(ErrBlock, "short block of %d bytes", len(block))
	}
	if block[0] != '#' || block[1] != 'A' {
		return nil, errors.Wrapf(ErrBlock, "invalid header %q", block[:2])
	}
	count := int(binary.BigEndian.Uint16(block[2:4]))
	if count%4 != 0 {
		return nil, errors.Wrapf(ErrBlock, "byte count %d is not a multiple of 4", count)
	}
	data := block[4:]
	if len(data) < count {
		return nil, errors.Wrapf(ErrBlock, "expect %d data bytes, got %d", count, len(data))
	}
	vals := make([]float64, 0, count/4)
	for i := 0; i < count; i += 4 {
		bits := binary.LittleEndian.Uint32(data[i : i+4])
		vals = append(vals, float64(math.Float32frombits(bits)))
	}
	return vals, nil
}

// EncodeBlock is the inverse of DecodeBlock.
func EncodeBlock(vals []float64) []byte {
	block := make([]byte, 4, 4+4*len(vals))
	block[0], block[1] = '#', 'A'
	binary.BigEndian.PutUint16(block[2:], uint16(4*len(vals)))
	for _, v := range vals {
		block = binary.LittleEndian.AppendUint32(block, math.Float32bits(float32(v)))
	}
	return block
}

// Decimate keeps the first value of every pair. FORM5 channel data comes as
// (value, 0) pairs for magnitude and phase displays.
func Decimate(pairs []float64) []float64 {
	out := make([]float64, 0, (len(pairs)+1)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, pairs[i])
	}
	return out
}
