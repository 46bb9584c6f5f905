// Copyright (c) 2024–2026 The ctrack developers. All rights reserved.
// Project site: https://github.com/marslab/vna
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package prologix drives instruments through a Prologix GPIB-USB (VCP) or
// GPIB-Ethernet controller.
package prologix

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Controller models a GPIB controller-in-charge addressing one instrument.
type Controller struct {
	rw               io.ReadWriter
	r                *bufio.Reader
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	usbTerm          byte
	eotChar          byte
	readTimeout      time.Duration
	writeDelay       time.Duration
	debug            bool // log every command and response. Set via WithDebug().
	ar488            bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
	log              logrus.FieldLogger
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge at the given address
// using rw, which is either a Virtual COM Port (VCP) or an Ethernet
// connection to the Prologix. Enable clear to send the Selected Device Clear
// (SDC) message to the GPIB address.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:          rw,
		primaryAddr: addr,
		usbTerm:     '\n',
		eotChar:     '\n',
		readTimeout: 500 * time.Millisecond,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.r = bufio.NewReader(rw)

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, errors.Errorf("invalid primary address %d (must by 0-30)", c.primaryAddr)
	}
	addrCmd := fmt.Sprintf("addr %d", c.primaryAddr)
	if c.hasSecondaryAddr {
		if !isSecondaryAddressValid(c.secondaryAddr) {
			return nil, errors.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
		}
		addrCmd = fmt.Sprintf("addr %d %d", c.primaryAddr, c.secondaryAddr)
	}

	var cmds []string
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // don't wear out the EPROM while configuring
		)
	}
	cmds = append(cmds,
		addrCmd,
		"mode 1", // controller mode
		"auto 0", // no read-after-write; reads are requested explicitly
		"eoi 1",
		fmt.Sprintf("eos %d", int(AppendCRLF)),
		fmt.Sprintf("read_tmo_ms %d", c.readTimeout.Milliseconds()),
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // append eot_char when EOI is seen
	)
	if !c.ar488 {
		cmds = append(cmds, "savecfg 1")
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithDebug causes commands and responses to be logged.
func WithDebug() ControllerOption { return func(c *Controller) { c.debug = true } }

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithWriteDelay waits d before every write. Some instruments drop commands
// that arrive back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithReadTimeout sets the GPIB read timeout of the Prologix (1-3000 ms).
func WithReadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.readTimeout = d }
}

// WithEOTChar sets the character the Prologix appends when the instrument
// asserts EOI. Use a character the instrument never sends when responses
// span several lines.
func WithEOTChar(b byte) ControllerOption {
	return func(c *Controller) { c.eotChar = b }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

func (c *Controller) write(s string) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	_, err := io.WriteString(c.rw, s)
	return err
}

// Command sends a command to the instrument at the assigned GPIB address.
// Leading and trailing whitespace is removed before the USB terminator is
// appended.
func (c *Controller) Command(cmd string) error {
	cmd = fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	if c.debug {
		c.log.Debugf("cmd %q", cmd)
	}
	return errors.Wrap(c.write(cmd), "writing command")
}

// Commandf formats according to a format specifier and sends the result
// with Command.
func (c *Controller) Commandf(format string, a ...any) error {
	return c.Command(fmt.Sprintf(format, a...))
}

func (c *Controller) requestRead() error {
	if c.auto {
		return nil
	}
	return c.CommandController("read eoi")
}

// Read asks the instrument to talk and returns everything up to the EOT
// character, which is dropped.
func (c *Controller) Read() (string, error) {
	if err := c.requestRead(); err != nil {
		return "", err
	}
	s, err := c.r.ReadString(c.eotChar)
	if err == io.EOF {
		c.log.Debugf("found EOF")
		err = nil
	}
	if err != nil {
		return "", errors.Wrap(err, "reading response")
	}
	s = strings.TrimSuffix(s, string(c.eotChar))
	if c.debug {
		c.log.Debugf("read %q", s)
	}
	return s, nil
}

// Query sends cmd and reads the response, without trailing CR/LF.
func (c *Controller) Query(cmd string) (string, error) {
	if err := c.Command(cmd); err != nil {
		return "", err
	}
	s, err := c.Read()
	return strings.TrimRight(s, "\r\n"), err
}

// QueryBlock sends cmd and reads an HP "#A" binary block: the 4 byte header
// (with a big endian byte count) and the data. The block is returned with
// its header. Binary data may contain the EOT character, so the read is
// driven by the byte count.
func (c *Controller) QueryBlock(cmd string) ([]byte, error) {
	if err := c.Command(cmd); err != nil {
		return nil, err
	}
	if err := c.requestRead(); err != nil {
		return nil, err
	}
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(c.r, hdr); err != nil {
		return nil, errors.Wrap(err, "reading block header")
	}
	if hdr[0] != '#' || hdr[1] != 'A' {
		return nil, errors.Errorf("invalid block header %q", hdr[:2])
	}
	n := int(hdr[2])<<8 | int(hdr[3])
	block := make([]byte, 4+n)
	copy(block, hdr)
	if _, err := io.ReadFull(c.r, block[4:]); err != nil {
		return nil, errors.Wrapf(err, "reading %d byte block", n)
	}
	if b, err := c.r.ReadByte(); err == nil && b != c.eotChar {
		_ = c.r.UnreadByte()
	}
	if c.debug {
		c.log.Debugf("read block of %d bytes", n)
	}
	return block, nil
}

// QueryController sends the given command to the Prologix controller and
// returns its response as a string.
func (c *Controller) QueryController(cmd string) (string, error) {
	if err := c.CommandController(cmd); err != nil {
		return "", err
	}
	s, err := c.r.ReadString('\n')
	if c.debug {
		c.log.Debugf("read data: %q", s)
	}
	return strings.TrimSpace(s), errors.Wrapf(err, "reading ++%s response", cmd)
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
// Addtionally, a new line is appended to act as the USB termination character.
func (c *Controller) CommandController(cmd string) error {
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	if c.debug {
		c.log.Debugf("cmd %q (%2x)", cmd, cmd)
	}
	return errors.Wrapf(c.write(cmd), "writing %q", cmd)
}

// FrontPanel returns the instrument to local control when local is true and
// locks the front panel out otherwise.
func (c *Controller) FrontPanel(local bool) error {
	if local {
		return c.CommandController("loc")
	}
	return c.CommandController("llo")
}

// ClearDevice sends the Selected Device Clear (SDC) message.
func (c *Controller) ClearDevice() error {
	return c.CommandController("clr")
}

// Version returns the Prologix firmware version string.
func (c *Controller) Version() (string, error) {
	return c.QueryController("ver")
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

var gpibTermDesc = map[GpibTerm]string{
	AppendCRLF:    `Append CR+LF (\r\n) to instrument commands`,
	AppendCR:      `Append CR (\r) to instrument commands`,
	AppendLF:      `Append LF (\n) to instrument commands`,
	AppendNothing: `Do not append anything to instrument commands`,
}

func (term GpibTerm) String() string {
	return gpibTermDesc[term]
}

// SetGPIBTermination sets the terminator the Prologix appends to commands
// sent over GPIB.
func (c *Controller) SetGPIBTermination(term GpibTerm) error {
	return c.CommandController(fmt.Sprintf("eos %d", int(term)))
}

func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}
