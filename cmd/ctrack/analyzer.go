package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/marslab/vna"
	"github.com/marslab/vna/lib/record"
)

// defaultSweep stands in for the stimulus settings of a simulated analyzer
// that has not been configured in this process.
var defaultSweep = vna.SweepConfig{
	Start:     7e9,
	Stop:      13e9,
	Points:    vna.PointsDefault,
	Power:     vna.PowerMax,
	Averaging: vna.AveragingMin,
}

// currentSweep reads the analyzer's stimulus settings.
func currentSweep(s *vna.Session) (vna.SweepConfig, error) {
	cfg, err := s.PullConfig()
	if err != nil {
		return vna.SweepConfig{}, err
	}
	if s.Simulated() && cfg.Check(false) != nil {
		return defaultSweep, nil
	}
	return cfg, nil
}

// withAnalyzer connects to the network analyzer for the duration of fn.
func (a *app) withAnalyzer(fn func(*vna.Session) error) error {
	return vna.WithSession(a.cfg.VNA.opener(), a.cfg.VNA.Address, fn,
		vna.WithLogger(logrus.StandardLogger()))
}

func (a *app) newGetFreqCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "getfreq",
		Short: "Print the analyzer's stimulus settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAnalyzer(func(s *vna.Session) error {
				cfg, err := s.PullConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cfg)
				return nil
			})
		},
	}
}

func (a *app) newSetFreqCommand() *cobra.Command {
	var start, stop float64
	var points int
	cmd := &cobra.Command{
		Use:   "setfreq",
		Short: "Set the frequency range and number of points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAnalyzer(func(s *vna.Session) error {
				cfg, err := currentSweep(s)
				if err != nil {
					return err
				}
				cfg.Start, cfg.Stop, cfg.Points = start*1e9, stop*1e9, points
				if err := cfg.Check(false); err != nil {
					return err
				}
				return s.PushConfig(cfg)
			})
		},
	}
	cmd.Flags().Float64VarP(&start, "start", "s", 7, "start frequency in GHz")
	cmd.Flags().Float64VarP(&stop, "end", "e", 13, "stop frequency in GHz")
	cmd.Flags().IntVarP(&points, "points", "p", vna.PointsDefault, "number of points")
	return cmd
}

func (a *app) newSetPowerCommand() *cobra.Command {
	var power float64
	cmd := &cobra.Command{
		Use:   "setpwr",
		Short: "Set the source power in dBm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAnalyzer(func(s *vna.Session) error {
				cfg, err := currentSweep(s)
				if err != nil {
					return err
				}
				cfg.Power = power
				if err := cfg.Check(false); err != nil {
					return err
				}
				return s.PushConfig(cfg)
			})
		},
	}
	cmd.Flags().Float64VarP(&power, "power", "p", vna.PowerMax, "source power in dBm")
	return cmd
}

func (a *app) newDisplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "display4",
		Short: "Show all four S-parameters in a 2x2 layout",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.withAnalyzer((*vna.Session).DisplayFourChannels)
		},
	}
}

func (a *app) newSetIFBWCommand() *cobra.Command {
	var hz int
	cmd := &cobra.Command{
		Use:   "setifbw",
		Short: "Set the IF bandwidth in Hz",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.withAnalyzer(func(s *vna.Session) error {
				return s.SetIFBandwidth(hz)
			})
		},
	}
	cmd.Flags().IntVarP(&hz, "freq", "f", 3700, fmt.Sprintf("IF bandwidth in Hz, one of %v", vna.IFBandwidths))
	return cmd
}

func (a *app) newGetIFBWCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "getifbw",
		Short: "Print the IF bandwidth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAnalyzer(func(s *vna.Session) error {
				bw, err := s.IFBandwidth()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "IF bandwidth: %g Hz\n", bw)
				return nil
			})
		},
	}
}

func (a *app) newCalTypeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "caltype",
		Short: "Print the calibration loaded on the analyzer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAnalyzer(func(s *vna.Session) error {
				ct := s.CalType()
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d arrays)\n", ct, ct.Mnemonic(), ct.DataLength())
				return nil
			})
		},
	}
}

func (a *app) newSweepCommand() *cobra.Command {
	var (
		angle     float64
		name      string
		dir       string
		averaging int
		sparams   []string
	)
	cmd := &cobra.Command{
		Use:   "fsweep",
		Short: "Run one frequency sweep and save it",
		Long: "Run one frequency sweep with the analyzer's current stimulus settings and save it\n" +
			"under the given angle. Without --path a new run directory is created below output.dir.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel := make([]vna.SParam, 0, len(sparams))
			for _, arg := range sparams {
				sp, err := vna.ParseSParam(arg)
				if err != nil {
					return err
				}
				sel = append(sel, sp)
			}
			if dir == "" {
				var err error
				dir, err = record.NewRunDir(a.cfg.Output.Dir, name, time.Now(), logrus.StandardLogger())
				if err != nil {
					return err
				}
			}
			m := vna.NewMeasurer(
				vna.WithRecorder(&record.Writer{Dir: dir, Log: logrus.StandardLogger()}),
			)
			return a.withAnalyzer(func(s *vna.Session) error {
				cfg, err := currentSweep(s)
				if err != nil {
					return err
				}
				cfg.Averaging = averaging
				cfg = cfg.WithSParams(sel)
				if err := cfg.Check(true); err != nil {
					return err
				}
				r, err := m.MeasureStep(s, cfg, record.AngleStep(angle))
				if err != nil {
					return err
				}
				if r == nil {
					return errors.Wrap(vna.ErrNotConnected, "sweep")
				}
				logrus.Infof("measured %v at %d points", r.SParams(), r.Len())
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.Float64VarP(&angle, "angle", "a", 0, "angle the sweep is recorded under, in degrees")
	f.StringVarP(&name, "name", "n", "", "run name used in the new directory")
	f.StringVarP(&dir, "path", "p", "", "directory to save into instead of a new run directory")
	f.IntVar(&averaging, "averaging", vna.AveragingMin, "averaging factor")
	f.StringSliceVar(&sparams, "sparams", []string{"S12", "S21"}, "S-parameters to measure without a 1- or 2-port calibration")
	return cmd
}
