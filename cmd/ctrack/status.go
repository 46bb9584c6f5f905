package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/marslab/vna"
)

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func stateString(st vna.State) string {
	switch st {
	case vna.Calibrated:
		return color.GreenString(st.String())
	case vna.Uncalibrated:
		return color.YellowString(st.String())
	}
	return color.RedString(st.String())
}

func printStatus(w io.Writer, s *vna.Session, cfg vna.SweepConfig, ifbw float64) {
	fmt.Fprintf(w, "%s %s\n", bold("Analyzer:"), stateString(s.State()))
	if s.Simulated() {
		fmt.Fprintf(w, "  %s\n", color.New(color.Faint).Sprint("simulated"))
	}
	fmt.Fprintf(w, "  calibration:  %s\n", s.CalType())
	if sp := s.CalType().SParams(); sp != nil {
		fmt.Fprintf(w, "  measures:     %v\n", sp)
	}
	fmt.Fprintf(w, "  sweep:        %s to %s, %d points\n",
		humanize.SIWithDigits(cfg.Start, 3, "Hz"), humanize.SIWithDigits(cfg.Stop, 3, "Hz"), cfg.Points)
	fmt.Fprintf(w, "  power:        %.1f dBm\n", cfg.Power)
	fmt.Fprintf(w, "  IF bandwidth: %s\n", humanize.SIWithDigits(ifbw, 1, "Hz"))
}

func (a *app) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the analyzer's calibration and stimulus settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAnalyzer(func(s *vna.Session) error {
				cfg, err := currentSweep(s)
				if err != nil {
					return err
				}
				bw, err := s.IFBandwidth()
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), s, cfg, bw)
				return nil
			})
		},
	}
}
