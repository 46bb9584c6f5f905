// Package connutil opens the link to a GPIB instrument behind a Prologix
// controller, over a serial port or Ethernet.
package connutil

import (
	"io"
	"net"
	"strings"
	"time"

	"github.com/marslab/vna"
	"github.com/marslab/vna/lib/find"
	"github.com/marslab/vna/lib/prologix"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

// Conn describes how to reach the Prologix controller.
type Conn struct {
	// Port is a serial device (/dev/ttyUSB0, COM3) or host:port for a
	// GPIB-Ethernet controller. If empty, Serial is used to find the device.
	Port string
	// Serial is the USB serial number of the controller.
	Serial      string
	Delay       time.Duration // delay between writes
	ReadTimeout time.Duration // port read timeout, serial or TCP; the GPIB timeout is capped at 3s
	EOTChar     byte          // 0 keeps the controller default
	Debug       bool
	Log         logrus.FieldLogger
}

const (
	baudRate        = 115200
	maxGPIBTimeout  = 3 * time.Second
	defaultTimeout  = 30 * time.Second
	ethernetNetwork = "tcp"
)

// port is the part of a serial port the link needs.
type port interface {
	io.ReadWriteCloser
}

var (
	openSerial = func(name string, timeout time.Duration) (port, error) {
		p, err := serial.Open(name, &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, err
		}
		if err := p.SetReadTimeout(timeout); err != nil {
			return nil, multierr.Append(err, p.Close())
		}
		return p, nil
	}
	dialEthernet = func(addr string, timeout time.Duration) (port, error) {
		c, err := net.DialTimeout(ethernetNetwork, addr, timeout)
		if err != nil {
			return nil, err
		}
		return &netPort{Conn: c, timeout: timeout}, nil
	}
	findTTY = find.Find
)

// netPort gives every read on a TCP connection the same timeout a serial
// port has, so a silent instrument fails the read instead of hanging it.
type netPort struct {
	net.Conn
	timeout time.Duration
}

func (p *netPort) Read(b []byte) (int, error) {
	if err := p.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
		return 0, err
	}
	return p.Conn.Read(b)
}

// Locate resolves the device to open. An explicit Port wins; otherwise the
// USB tty with the configured serial number is used.
func (c *Conn) Locate() (string, error) {
	if c.Port != "" {
		return c.Port, nil
	}
	if c.Serial == "" {
		return "", errors.New("no port or USB serial number configured")
	}
	tty, err := findTTY(find.SerialFilter(c.Serial))
	if err != nil {
		return "", errors.Wrapf(err, "locating controller %s", c.Serial)
	}
	return "/dev/" + tty, nil
}

func (c *Conn) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// Open connects to the controller and addresses the instrument at addr.
func (c *Conn) Open(addr int, opts ...prologix.ControllerOption) (*Link, error) {
	dev, err := c.Locate()
	if err != nil {
		return nil, err
	}
	timeout := c.ReadTimeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	var p port
	if strings.Contains(dev, ":") && !strings.HasPrefix(dev, "/") {
		p, err = dialEthernet(dev, timeout)
	} else {
		p, err = openSerial(dev, timeout)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", dev)
	}
	c.logger().Debugf("opened %s", dev)

	opts = append([]prologix.ControllerOption{prologix.WithLogger(c.logger())}, opts...)
	if c.Delay > 0 {
		opts = append(opts, prologix.WithWriteDelay(c.Delay))
	}
	if timeout < maxGPIBTimeout {
		opts = append(opts, prologix.WithReadTimeout(timeout))
	} else {
		opts = append(opts, prologix.WithReadTimeout(maxGPIBTimeout))
	}
	if c.EOTChar != 0 {
		opts = append(opts, prologix.WithEOTChar(c.EOTChar))
	}
	if c.Debug {
		opts = append(opts, prologix.WithDebug())
	}
	gpib, err := prologix.NewController(p, addr, false, opts...)
	if err != nil {
		return nil, multierr.Append(err, p.Close())
	}
	return &Link{Controller: gpib, port: p}, nil
}

// Opener returns a vna.Opener backed by Open.
func (c *Conn) Opener(opts ...prologix.ControllerOption) vna.Opener {
	return func(addr int) (vna.Transport, error) {
		l, err := c.Open(addr, opts...)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
}

// Link is an instrument reached through a Prologix controller. It owns the
// underlying port.
type Link struct {
	*prologix.Controller
	port port
}

// Close returns the instrument to front panel control, discards unread
// input and closes the port.
func (l *Link) Close() error {
	err := l.FrontPanel(true)
	if fl, ok := l.port.(interface{ ResetInputBuffer() error }); ok {
		err = multierr.Append(err, fl.ResetInputBuffer())
	}
	return multierr.Append(err, l.port.Close())
}
