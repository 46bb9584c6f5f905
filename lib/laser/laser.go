// Package laser drives an HP 8168-series tunable laser source over GPIB.
package laser

import (
	"fmt"

	"github.com/gotmc/query"
	"github.com/pkg/errors"
)

// Output power limits, in dBm. The EDFA after the laser saturates above
// PowerMax.
const (
	PowerMin = -10.0
	PowerMax = 0.0
)

// Wavelength limits of the source, in nm.
const (
	WavelengthMin = 1470.0
	WavelengthMax = 1580.0
)

// Instrument is the connection the laser is driven through.
type Instrument interface {
	query.Querier
	Command(cmd string) error
}

// Laser is a tunable laser source.
type Laser struct {
	inst Instrument
}

// New returns a Laser using inst.
func New(inst Instrument) *Laser {
	return &Laser{inst: inst}
}

// Output turns the laser output on or off.
func (l *Laser) Output(on bool) error {
	cmd := ":OUTP OFF"
	if on {
		cmd = ":OUTP ON"
	}
	return errors.Wrap(l.inst.Command(cmd), "switching laser output")
}

// OutputState reports whether the output is on.
func (l *Laser) OutputState() (bool, error) {
	v, err := query.Float64(l.inst, ":OUTP?")
	if err != nil {
		return false, errors.Wrap(err, "reading laser output state")
	}
	return v != 0, nil
}

// DisableModulation turns off the modulation output signal.
func (l *Laser) DisableModulation() error {
	return errors.Wrap(l.inst.Command(":SOUR:MODOUT FRQRDY"), "disabling modulation")
}

// SetPower sets the output power in dBm.
func (l *Laser) SetPower(dbm float64) error {
	if dbm < PowerMin || dbm > PowerMax {
		return errors.Errorf("laser power %g dBm outside %g to %g dBm", dbm, PowerMin, PowerMax)
	}
	return errors.Wrap(l.inst.Command(fmt.Sprintf("SOUR:POW:LEV:IMM:AMP %g", dbm)), "setting laser power")
}

// SetWavelength tunes the source to nm nanometers.
func (l *Laser) SetWavelength(nm float64) error {
	if nm < WavelengthMin || nm > WavelengthMax {
		return errors.Errorf("wavelength %g nm outside %g-%g nm", nm, WavelengthMin, WavelengthMax)
	}
	return errors.Wrap(l.inst.Command(fmt.Sprintf("SOUR:WAVE:CW %gNM", nm)), "setting wavelength")
}

// Wavelength returns the wavelength the source is tuned to, in nm. The
// instrument reports meters.
func (l *Laser) Wavelength() (float64, error) {
	m, err := query.Float64(l.inst, "SOUR:WAVE:CW?")
	if err != nil {
		return 0, errors.Wrap(err, "reading wavelength")
	}
	return m * 1e9, nil
}
