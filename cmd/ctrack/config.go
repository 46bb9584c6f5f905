package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/marslab/vna"
	"github.com/marslab/vna/lib/cmdlog"
	"github.com/marslab/vna/lib/connutil"
)

// Config is the bench configuration, read from ctrack.yaml, CTRACK_*
// environment variables and flags.
type Config struct {
	VNA    VNAConfig    `mapstructure:"vna"`
	Stage  StageConfig  `mapstructure:"stage"`
	Laser  GPIBConfig   `mapstructure:"laser"`
	Scope  ScopeConfig  `mapstructure:"scope"`
	Output OutputConfig `mapstructure:"output"`
	Log    LogConfig    `mapstructure:"log"`
}

// GPIBConfig locates an instrument behind the Prologix controller.
type GPIBConfig struct {
	Port    string        `mapstructure:"port"`
	Serial  string        `mapstructure:"serial"`
	Address int           `mapstructure:"address"`
	Delay   time.Duration `mapstructure:"delay"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VNAConfig struct {
	GPIBConfig `mapstructure:",squash"`
	Dummy      bool `mapstructure:"dummy"`
}

type StageConfig struct {
	Port           string        `mapstructure:"port"`
	StepsPerDegree float64       `mapstructure:"steps_per_degree"`
	Settle         time.Duration `mapstructure:"settle"`
	Travel         time.Duration `mapstructure:"travel"`
}

type ScopeConfig struct {
	GPIBConfig  `mapstructure:",squash"`
	Termination float64       `mapstructure:"termination"`
	Settle      time.Duration `mapstructure:"settle"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vna.port", "/dev/ttyUSB0")
	v.SetDefault("vna.address", 16)
	v.SetDefault("vna.dummy", false)
	v.SetDefault("vna.delay", "0s")
	v.SetDefault("vna.timeout", "30s")
	v.SetDefault("stage.port", "/dev/ttyACM0")
	v.SetDefault("stage.steps_per_degree", 800)
	v.SetDefault("stage.settle", "1s")
	v.SetDefault("stage.travel", "20s")
	v.SetDefault("laser.port", "/dev/ttyUSB0")
	v.SetDefault("laser.address", 20)
	v.SetDefault("laser.timeout", "3s")
	v.SetDefault("scope.port", "/dev/ttyUSB0")
	v.SetDefault("scope.address", 7)
	v.SetDefault("scope.timeout", "3s")
	v.SetDefault("scope.termination", 50.0)
	v.SetDefault("scope.settle", "1s")
	v.SetDefault("output.dir", "./cli_measurement")
	v.SetDefault("log.level", "info")
}

// loadConfig reads the configuration file, if there is one, and the
// environment. An explicit path must exist.
func loadConfig(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ctrack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ctrack")
	}
	v.SetEnvPrefix("CTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return &cfg, nil
}

func setupLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		FullTimestamp:   true,
	})
	return nil
}

// eotChar is appended by the Prologix when the analyzer asserts EOI. The
// limit test dump spans several lines, so it cannot be a newline.
const eotChar = 0x04

func (g GPIBConfig) conn(eot byte) *connutil.Conn {
	return &connutil.Conn{
		Port:        g.Port,
		Serial:      g.Serial,
		Delay:       g.Delay,
		ReadTimeout: g.Timeout,
		EOTChar:     eot,
		Debug:       logrus.IsLevelEnabled(logrus.TraceLevel),
		Log:         logrus.StandardLogger(),
	}
}

// opener returns how to reach the analyzer, mirroring its traffic to the
// debug log.
func (c VNAConfig) opener() vna.Opener {
	open := vna.DummyOpener()
	if !c.Dummy {
		open = c.conn(eotChar).Opener()
	}
	return cmdlog.Opener(open, logrus.StandardLogger())
}
