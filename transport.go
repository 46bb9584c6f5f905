// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package vna

// Transport is a message based connection to an instrument. Command sends a
// command without waiting for a reply, Read reads one response and Query
// does both. Query has the shape of query.Querier, so the typed helpers in
// github.com/gotmc/query work on any Transport.
type Transport interface {
	Command(cmd string) error
	Read() (string, error)
	Query(cmd string) (string, error)
	Close() error
}

// BlockQuerier is implemented by transports that can read a length-prefixed
// binary block. Transports without it return the block through Query.
type BlockQuerier interface {
	QueryBlock(cmd string) ([]byte, error)
}

// Simulator is implemented by transports that do not talk to hardware.
type Simulator interface {
	Simulated() bool
}

// Opener opens a transport to the instrument at the given GPIB address.
type Opener func(addr int) (Transport, error)

// dummyReply is returned for every read and query on a Dummy.
const dummyReply = "1"

// Dummy is a Transport that performs no I/O. Every read and query answers
// "1", which the analyzer would send for a true flag.
type Dummy struct{}

// DummyOpener opens a Dummy regardless of address.
func DummyOpener() Opener {
	return func(int) (Transport, error) { return Dummy{}, nil }
}

func (Dummy) Command(string) error { return nil }
func (Dummy) Read() (string, error) { return dummyReply, nil }
func (Dummy) Query(string) (string, error) { return dummyReply, nil }
func (Dummy) Close() error { return nil }
func (Dummy) Simulated() bool { return true }

func isSimulated(t Transport) bool {
	s, ok := t.(Simulator)
	return ok && s.Simulated()
}
