package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the configuration loaded before any subcommand runs.
type app struct {
	v   *viper.Viper
	cfg *Config
}

// NewCommand returns the ctrack root command.
func NewCommand() *cobra.Command {
	a := &app{v: viper.New()}
	var configFile string

	cmd := &cobra.Command{
		Use:           "ctrack",
		Short:         "ctrack drives the circular track measurement bench",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.v, configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return setupLogger(cfg.Log.Level)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&configFile, "config", "", "config file (default ./ctrack.yaml or $HOME/.config/ctrack/ctrack.yaml)")
	f.StringP("log-level", "l", "info", "log level (trace, debug, info, warn, error)")
	f.Bool("dummy", false, "simulate the network analyzer")
	_ = a.v.BindPFlag("log.level", f.Lookup("log-level"))
	_ = a.v.BindPFlag("vna.dummy", f.Lookup("dummy"))

	cmd.AddCommand(
		a.newRotateCommand(),
		a.newHomeCommand(),
		a.newGetFreqCommand(),
		a.newSetFreqCommand(),
		a.newSetPowerCommand(),
		a.newDisplayCommand(),
		a.newSetIFBWCommand(),
		a.newGetIFBWCommand(),
		a.newCalTypeCommand(),
		a.newStatusCommand(),
		a.newSweepCommand(),
		a.newLaserCommand(),
		a.newCurrentCommand(),
	)
	return cmd
}
