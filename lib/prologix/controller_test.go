package prologix

import (
	"bytes"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback serves canned instrument output and records what is written.
type loopback struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func newLoopback(in string) *loopback {
	return &loopback{in: bytes.NewReader([]byte(in))}
}

func (l *loopback) Read(p []byte) (int, error)  { return l.in.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.out.Write(p) }

func (l *loopback) lines() []string {
	return strings.Split(strings.TrimSuffix(l.out.String(), "\n"), "\n")
}

func newTestController(t *testing.T, in string, opts ...ControllerOption) (*Controller, *loopback) {
	t.Helper()
	l, _ := logtest.NewNullLogger()
	lb := newLoopback(in)
	c, err := NewController(lb, 16, false, append([]ControllerOption{WithLogger(l)}, opts...)...)
	require.NoError(t, err)
	lb.out.Reset()
	return c, lb
}

func TestNewControllerInit(t *testing.T) {
	lb := newLoopback("")
	_, err := NewController(lb, 16, true, WithEOTChar(4), WithReadTimeout(3*time.Second))
	require.NoError(t, err)

	want := []string{
		"++verbose 0",
		"++savecfg 0",
		"++addr 16",
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eos 0",
		"++read_tmo_ms 3000",
		"++eot_char 4",
		"++eot_enable 1",
		"++savecfg 1",
		"++clr",
	}
	assert.Equal(t, want, lb.lines())
}

func TestNewControllerAR488(t *testing.T) {
	lb := newLoopback("")
	_, err := NewController(lb, 5, false, WithAR488(), WithSecondaryAddress(96))
	require.NoError(t, err)

	lines := lb.lines()
	assert.Equal(t, "++addr 5 96", lines[0])
	assert.NotContains(t, lines, "++verbose 0")
	assert.NotContains(t, lines, "++savecfg 1")
}

func TestNewControllerInvalidAddress(t *testing.T) {
	_, err := NewController(newLoopback(""), 31, false)
	assert.Error(t, err)
	_, err = NewController(newLoopback(""), 1, false, WithSecondaryAddress(20))
	assert.Error(t, err)
}

func TestCommand(t *testing.T) {
	c, lb := newTestController(t, "")
	require.NoError(t, c.Command("  POIN 101; "))
	require.NoError(t, c.Commandf("IFBW%dHZ;", 3700))
	assert.Equal(t, []string{"POIN 101;", "IFBW3700HZ;"}, lb.lines())
}

func TestQuery(t *testing.T) {
	c, lb := newTestController(t, "+1.01000000000000E+02\r\n\n", WithEOTChar('\n'))
	got, err := c.Query("POIN?;")
	require.NoError(t, err)
	assert.Equal(t, "+1.01000000000000E+02", got)
	assert.Equal(t, []string{"POIN?;", "++read eoi"}, lb.lines())
}

func TestReadMultiLine(t *testing.T) {
	dump := "7E9,0,0\n1E10,0,0\n1.3E10,0,0\n"
	c, _ := newTestController(t, dump+"\x04", WithEOTChar(4))
	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, dump, got)
}

func TestReadEOF(t *testing.T) {
	c, _ := newTestController(t, "partial", WithEOTChar(4))
	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "partial", got)
}

func TestQueryBlock(t *testing.T) {
	// the data holds the EOT character, which must not end the read
	block := "#A\x00\x08\x00\x00\x04\x3f\x00\x00\x20\xc0"
	c, lb := newTestController(t, block+"\x04"+"next\x04", WithEOTChar(4))

	got, err := c.QueryBlock("OUTPFORM;")
	require.NoError(t, err)
	assert.Equal(t, []byte(block), got)
	assert.Equal(t, []string{"OUTPFORM;", "++read eoi"}, lb.lines())

	rest, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, "next", rest)
}

func TestQueryBlockErrors(t *testing.T) {
	c, _ := newTestController(t, "ERR\x04")
	_, err := c.QueryBlock("OUTPFORM;")
	assert.Error(t, err)

	c, _ = newTestController(t, "#A\x00\x10\x00\x00")
	_, err = c.QueryBlock("OUTPFORM;")
	assert.Error(t, err)
}

func TestQueryController(t *testing.T) {
	c, lb := newTestController(t, "Prologix GPIB-USB Controller version 6.101\r\n")
	ver, err := c.Version()
	require.NoError(t, err)
	assert.Equal(t, "Prologix GPIB-USB Controller version 6.101", ver)
	assert.Equal(t, []string{"++ver"}, lb.lines())
}

func TestControllerCommands(t *testing.T) {
	c, lb := newTestController(t, "")
	require.NoError(t, c.FrontPanel(true))
	require.NoError(t, c.FrontPanel(false))
	require.NoError(t, c.ClearDevice())
	require.NoError(t, c.SetGPIBTermination(AppendNothing))
	require.NoError(t, c.CommandController("  LOC "))
	assert.Equal(t, []string{"++loc", "++llo", "++clr", "++eos 3", "++loc"}, lb.lines())
}

func TestGpibTermString(t *testing.T) {
	assert.Equal(t, `Append CR+LF (\r\n) to instrument commands`, AppendCRLF.String())
}
