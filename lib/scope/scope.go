// Package scope reads the photodetector current from an R&S RTM2000
// oscilloscope channel terminated into a known resistance.
package scope

import (
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/query"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// DefaultTermination is the channel termination in ohms.
const DefaultTermination = 50.0

const channel = "CHAN2"

// Instrument is the connection the oscilloscope is driven through.
type Instrument interface {
	query.Querier
	Command(cmd string) error
}

// Scope measures current on one oscilloscope channel.
type Scope struct {
	inst        Instrument
	termination float64
	settle      time.Duration
	sleep       func(time.Duration)
}

// Option applies an option to a Scope.
type Option func(*Scope)

// WithTermination sets the termination resistance in ohms.
func WithTermination(ohms float64) Option { return func(s *Scope) { s.termination = ohms } }

// WithSettle sets how long to wait after a single acquisition is started.
func WithSettle(d time.Duration) Option { return func(s *Scope) { s.settle = d } }

// New returns a Scope using inst.
func New(inst Instrument, opts ...Option) *Scope {
	s := &Scope{
		inst:        inst,
		termination: DefaultTermination,
		settle:      time.Second,
		sleep:       time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup selects ASCII data output and DC coupling.
func (s *Scope) Setup() error {
	for _, cmd := range []string{"FORM ASC", channel + ":COUP DC"} {
		if err := s.inst.Command(cmd); err != nil {
			return errors.Wrapf(err, "sending %q", cmd)
		}
	}
	return nil
}

// Format returns the data format the scope reports.
func (s *Scope) Format() (string, error) {
	return query.String(s.inst, "FORM?")
}

// Current takes a single acquisition and returns the mean current in
// amperes.
func (s *Scope) Current() (float64, error) {
	if err := s.inst.Command("SING"); err != nil {
		return 0, errors.Wrap(err, "starting acquisition")
	}
	s.sleep(s.settle)
	data, err := query.String(s.inst, channel+":DATA?")
	if err != nil {
		return 0, errors.Wrap(err, "reading trace")
	}
	volts, err := parseTrace(data)
	if err != nil {
		return 0, err
	}
	return stat.Mean(volts, nil) / s.termination, nil
}

func parseTrace(data string) ([]float64, error) {
	if strings.TrimSpace(data) == "" {
		return nil, errors.New("empty trace")
	}
	fields := strings.Split(strings.TrimSpace(data), ",")
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "trace value %q", f)
		}
		vals = append(vals, v)
	}
	return vals, nil
}
