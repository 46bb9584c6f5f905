package vna

import (
	"fmt"

	"github.com/pkg/errors"
)

// scripted is a Transport that records every command and query and answers
// from canned replies. Queries without a canned reply answer "0".
type scripted struct {
	sent     []string
	replies  map[string]string
	reads    []string
	blocks   [][]byte
	failOn   string
	closeErr error
	closed   int
	sim      bool
}

func newScripted(replies map[string]string) *scripted {
	if replies == nil {
		replies = map[string]string{}
	}
	return &scripted{replies: replies}
}

func (f *scripted) Command(cmd string) error {
	f.sent = append(f.sent, cmd)
	if cmd == f.failOn {
		return errors.Errorf("write %q failed", cmd)
	}
	return nil
}

func (f *scripted) Read() (string, error) {
	if len(f.reads) == 0 {
		return "", errors.New("nothing to read")
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return r, nil
}

func (f *scripted) Query(cmd string) (string, error) {
	f.sent = append(f.sent, cmd)
	if cmd == f.failOn {
		return "", errors.Errorf("query %q failed", cmd)
	}
	if r, ok := f.replies[cmd]; ok {
		return r, nil
	}
	return "0", nil
}

func (f *scripted) Close() error {
	f.closed++
	return f.closeErr
}

func (f *scripted) Simulated() bool { return f.sim }

// reset forgets what was sent so far.
func (f *scripted) reset() { f.sent = nil }

// blockScripted adds binary block reads to scripted.
type blockScripted struct {
	*scripted
}

func (f blockScripted) QueryBlock(cmd string) ([]byte, error) {
	f.sent = append(f.sent, cmd)
	if len(f.blocks) == 0 {
		return nil, fmt.Errorf("no block queued for %q", cmd)
	}
	b := f.blocks[0]
	f.blocks = f.blocks[1:]
	return b, nil
}

func openerFor(t Transport) Opener {
	return func(int) (Transport, error) { return t, nil }
}

// connected returns a session connected to f, with the connect traffic
// discarded.
func connected(f *scripted, opts ...SessionOption) (*Session, error) {
	return connectedTo(f, f, opts...)
}

func connectedTo(t Transport, f *scripted, opts ...SessionOption) (*Session, error) {
	s := NewSession(openerFor(t), opts...)
	if err := s.Connect(16); err != nil {
		return nil, err
	}
	f.reset()
	return s, nil
}
