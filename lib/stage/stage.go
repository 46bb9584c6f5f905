// Package stage drives the rotary positioner: a stepper motor behind an
// Arduino that takes signed step counts over serial.
//
// Protocol: a bare integer moves that many steps (positive is
// counter-clockwise); "a<n>" moves until a limit switch trips and replies
// with the step count reached; "r" zeroes the position counter.
package stage

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// StepsPerDegree with micro-stepping enabled (1600 steps per revolution
	// of the motor, geared down).
	StepsPerDegree = 800
	baudRate       = 115200
	// limitSteps is beyond either end of travel, so the arm always reaches
	// a limit switch.
	limitSteps = 73000
)

// Port is the serial connection to the Arduino.
type Port interface {
	io.ReadWriteCloser
}

type inputResetter interface {
	ResetInputBuffer() error
}

// Stage is a rotary positioner. It tracks its angle relative to the last
// Home or Zero.
type Stage struct {
	port           Port
	r              *bufio.Reader
	stepsPerDegree float64
	settle         time.Duration
	travel         time.Duration
	angle          float64
	sleep          func(time.Duration)
	log            logrus.FieldLogger
}

// Option applies an option to a stage.
type Option func(*Stage)

// WithStepsPerDegree overrides StepsPerDegree.
func WithStepsPerDegree(n float64) Option { return func(s *Stage) { s.stepsPerDegree = n } }

// WithSettle sets how long to wait before reading a reply.
func WithSettle(d time.Duration) Option { return func(s *Stage) { s.settle = d } }

// WithTravel sets how long a move to a limit switch may take.
func WithTravel(d time.Duration) Option { return func(s *Stage) { s.travel = d } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Stage) { s.log = l } }

// New uses an already open port.
func New(p Port, opts ...Option) *Stage {
	s := &Stage{
		port:           p,
		r:              bufio.NewReader(p),
		stepsPerDegree: StepsPerDegree,
		settle:         time.Second,
		travel:         20 * time.Second,
		sleep:          time.Sleep,
		log:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the Arduino's serial port.
func Open(name string, opts ...Option) (*Stage, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, errors.Wrapf(err, "opening stage on %s", name)
	}
	return New(p, opts...), nil
}

// Close closes the serial port.
func (s *Stage) Close() error {
	return s.port.Close()
}

// Angle returns the position in degrees, counter-clockwise positive.
func (s *Stage) Angle() float64 { return s.angle }

func (s *Stage) send(msg string) error {
	s.log.Debugf("stage: sending %q", msg)
	_, err := io.WriteString(s.port, msg)
	return errors.Wrapf(err, "sending %q to stage", msg)
}

func (s *Stage) steps(deg float64) int {
	return int(math.Round(deg * s.stepsPerDegree))
}

// StepCCW rotates counter-clockwise by deg degrees.
func (s *Stage) StepCCW(deg float64) error {
	n := s.steps(deg)
	if err := s.send(strconv.Itoa(n)); err != nil {
		return err
	}
	s.angle += float64(n) / s.stepsPerDegree
	return nil
}

// StepCW rotates clockwise by deg degrees.
func (s *Stage) StepCW(deg float64) error {
	n := s.steps(-deg)
	if err := s.send(strconv.Itoa(n)); err != nil {
		return err
	}
	s.angle += float64(n) / s.stepsPerDegree
	return nil
}

// Rotate turns by deg degrees, counter-clockwise for positive values.
func (s *Stage) Rotate(deg float64) error {
	if deg < 0 {
		return s.StepCW(-deg)
	}
	return s.StepCCW(deg)
}

// ReadMessage discards pending input, waits for the settle time and reads
// one line.
func (s *Stage) ReadMessage() (string, error) {
	if rs, ok := s.port.(inputResetter); ok {
		if err := rs.ResetInputBuffer(); err != nil {
			return "", errors.Wrap(err, "resetting stage input")
		}
	}
	s.r.Reset(s.port)
	s.sleep(s.settle)
	line, err := s.r.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", errors.Wrap(err, "reading stage reply")
	}
	return strings.TrimSpace(line), nil
}

func (s *Stage) toLimit(steps int) (float64, error) {
	if err := s.send("a" + strconv.Itoa(steps)); err != nil {
		return 0, err
	}
	s.log.Infof("stage moving to limit switch; stay clear of motion and guide cables")
	s.sleep(s.travel)
	msg, err := s.r.ReadString('\n')
	if err != nil && !(err == io.EOF && msg != "") {
		return 0, errors.Wrap(err, "reading limit position")
	}
	pos, err := strconv.ParseFloat(strings.TrimSpace(msg), 64)
	return pos, errors.Wrapf(err, "limit position %q", msg)
}

// Home finds both limit switches, moves to the middle of the travel and
// zeroes the position there.
func (s *Stage) Home() error {
	right, err := s.toLimit(limitSteps)
	if err != nil {
		return err
	}
	left, err := s.toLimit(-limitSteps)
	if err != nil {
		return err
	}
	delta := math.Abs(right - left)
	s.log.Infof("stage travel is %.0f steps", delta)
	if err := s.send(strconv.Itoa(int(delta / 2))); err != nil {
		return err
	}
	s.sleep(s.travel)
	return s.Zero()
}

// Zero makes the current position the origin.
func (s *Stage) Zero() error {
	if err := s.send("r"); err != nil {
		return err
	}
	s.angle = 0
	return nil
}
