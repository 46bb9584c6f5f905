// Package cmdlog mirrors the traffic of a vna.Transport to a logger.
package cmdlog

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/marslab/vna"
	"github.com/sirupsen/logrus"
)

// Commands this long or longer are cut to their first shortLen bytes.
const (
	maxLen   = 200
	shortLen = 30
)

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

func isASCII(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

// Shorten returns s, or its first 30 bytes followed by " ..." if s is 200
// bytes or longer.
func Shorten(s string) string {
	if len(s) < maxLen {
		return s
	}
	return s[:shortLen] + " ..."
}

// Transport logs every command and response passing through the wrapped
// transport at debug level. It keeps the optional vna.BlockQuerier and
// vna.Simulator behaviour of the wrapped transport.
type Transport struct {
	t   vna.Transport
	log logrus.FieldLogger
}

// Wrap returns t with its traffic mirrored to l.
func Wrap(t vna.Transport, l logrus.FieldLogger) *Transport {
	return &Transport{t: t, log: l}
}

// Opener wraps every transport opened by open.
func Opener(open vna.Opener, l logrus.FieldLogger) vna.Opener {
	return func(addr int) (vna.Transport, error) {
		t, err := open(addr)
		if err != nil {
			return nil, err
		}
		return Wrap(t, l), nil
	}
}

func (c *Transport) cmd(s string) {
	c.log.Debug(CmdStyle.Render(Shorten(s)))
}

func (c *Transport) reply(s string, err error) {
	switch {
	case err != nil:
		c.log.Debugf("%s", R1Style.Render("error: "+err.Error()))
	case len(s) == 0:
		c.log.Debug(R1Style.Render("<no response>"))
	case isASCII(s):
		c.log.Debugf("%s [%d] %q", R2Style.Render("<-"), len(s), Shorten(s))
	default:
		c.log.Debugf("%s [%d] % 2x", R2Style.Render("<-"), len(s), []byte(Shorten(s)))
	}
}

func (c *Transport) Command(s string) error {
	c.cmd(s)
	err := c.t.Command(s)
	if err != nil {
		c.reply("", err)
	}
	return err
}

func (c *Transport) Read() (string, error) {
	s, err := c.t.Read()
	c.reply(s, err)
	return s, err
}

func (c *Transport) Query(s string) (string, error) {
	c.cmd(s)
	r, err := c.t.Query(s)
	c.reply(r, err)
	return r, err
}

// QueryBlock forwards to the wrapped transport, falling back to Query when
// it cannot read binary blocks.
func (c *Transport) QueryBlock(s string) ([]byte, error) {
	bq, ok := c.t.(vna.BlockQuerier)
	if !ok {
		r, err := c.Query(s)
		return []byte(r), err
	}
	c.cmd(s)
	b, err := bq.QueryBlock(s)
	c.reply(string(b), err)
	return b, err
}

func (c *Transport) Simulated() bool {
	s, ok := c.t.(vna.Simulator)
	return ok && s.Simulated()
}

func (c *Transport) Close() error {
	c.log.Debug(CmdStyle.Render("<close>"))
	return c.t.Close()
}
