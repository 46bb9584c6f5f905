package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/marslab/vna/lib/connutil"
	"github.com/marslab/vna/lib/laser"
	"github.com/marslab/vna/lib/scope"
	"github.com/marslab/vna/lib/stage"
)

func (a *app) openStage() (*stage.Stage, error) {
	c := a.cfg.Stage
	return stage.Open(c.Port,
		stage.WithStepsPerDegree(c.StepsPerDegree),
		stage.WithSettle(c.Settle),
		stage.WithTravel(c.Travel),
		stage.WithLogger(logrus.StandardLogger()),
	)
}

func (a *app) newRotateCommand() *cobra.Command {
	var deg float64
	cmd := &cobra.Command{
		Use:       "rotate -d DEGREES l|r",
		Short:     "Rotate the positioner left (counter-clockwise) or right",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"l", "r"},
		RunE: func(_ *cobra.Command, args []string) (err error) {
			var step func(*stage.Stage, float64) error
			switch args[0] {
			case "l":
				step = (*stage.Stage).StepCCW
			case "r":
				step = (*stage.Stage).StepCW
			default:
				return errors.Errorf("direction must be l or r, not %q", args[0])
			}
			st, err := a.openStage()
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, st.Close()) }()
			return step(st, deg)
		},
	}
	cmd.Flags().Float64VarP(&deg, "degrees", "d", 0, "angle to rotate by")
	return cmd
}

func (a *app) newHomeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Move the positioner to the middle of its travel and zero it",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) (err error) {
			st, err := a.openStage()
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, st.Close()) }()
			return st.Home()
		},
	}
}

// withLink opens the GPIB instrument described by g for the duration of fn.
func withLink(g GPIBConfig, fn func(*connutil.Link) error) (err error) {
	l, err := g.conn(0).Open(g.Address)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, l.Close()) }()
	return fn(l)
}

func (a *app) newLaserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "laser",
		Short: "Control the tunable laser",
	}
	setOutput := func(on bool) func(*cobra.Command, []string) error {
		return func(*cobra.Command, []string) error {
			return withLink(a.cfg.Laser, func(l *connutil.Link) error {
				return laser.New(l).Output(on)
			})
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "on", Short: "Turn the output on", Args: cobra.NoArgs, RunE: setOutput(true)},
		&cobra.Command{Use: "off", Short: "Turn the output off", Args: cobra.NoArgs, RunE: setOutput(false)},
		&cobra.Command{
			Use:   "wave NM",
			Short: "Set the wavelength in nm",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				nm, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return errors.Wrap(err, "wavelength")
				}
				return withLink(a.cfg.Laser, func(l *connutil.Link) error {
					ls := laser.New(l)
					if err := ls.SetWavelength(nm); err != nil {
						return err
					}
					got, err := ls.Wavelength()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "wavelength: %g nm\n", got)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "power DBM",
			Short: "Set the output power in dBm",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				dbm, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return errors.Wrap(err, "power")
				}
				return withLink(a.cfg.Laser, func(l *connutil.Link) error {
					return laser.New(l).SetPower(dbm)
				})
			},
		},
	)
	return cmd
}

func (a *app) newCurrentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Measure the photodetector current on the oscilloscope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.cfg.Scope
			return withLink(c.GPIBConfig, func(l *connutil.Link) error {
				sc := scope.New(l, scope.WithTermination(c.Termination), scope.WithSettle(c.Settle))
				if err := sc.Setup(); err != nil {
					return err
				}
				amps, err := sc.Current()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "current: %.6g A\n", amps)
				return nil
			})
		},
	}
}
