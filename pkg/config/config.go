package config

import (
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const EnvPrefix = "SLMCAL"

// MeterConfig addresses a talk-only or query-driven bus meter.
type MeterConfig struct {
	Address int    `mapstructure:"address" json:"address"`
	Query   string `mapstructure:"query" json:"query"`
}

// Station is the bench wiring: where the bus controller is and which
// address each instrument answers on.
type Station struct {
	Controller  string        `mapstructure:"controller" json:"controller"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	Voltmeter   int           `mapstructure:"voltmeter" json:"voltmeter"`
	Generator   int           `mapstructure:"generator" json:"generator"`
	Attenuator  int           `mapstructure:"attenuator" json:"attenuator"`
	Counter     MeterConfig   `mapstructure:"counter" json:"counter"`
	Distortion  MeterConfig   `mapstructure:"distortion" json:"distortion"`
	Barometer   MeterConfig   `mapstructure:"barometer" json:"barometer"`
	Calibration string        `mapstructure:"calibration" json:"calibration"`
	Socket      string        `mapstructure:"socket" json:"socket"`
	Simulate    bool          `mapstructure:"simulate" json:"simulate"`
}

// NewViper returns a viper instance with every station default set and
// SLMCAL_* environment overrides enabled. Nested keys map to env names with
// underscores, e.g. SLMCAL_COUNTER_ADDRESS.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("controller", "")
	v.SetDefault("timeout", 10*time.Second)
	v.SetDefault("voltmeter", 16)
	v.SetDefault("generator", 20)
	v.SetDefault("attenuator", 3)
	v.SetDefault("counter.address", 5)
	v.SetDefault("counter.query", "")
	v.SetDefault("distortion.address", 6)
	v.SetDefault("distortion.query", "")
	v.SetDefault("barometer.address", 7)
	v.SetDefault("barometer.query", "")
	v.SetDefault("calibration", "calibration.yaml")
	v.SetDefault("socket", "/tmp/slmcal.sock")
	v.SetDefault("simulate", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadStation reads the optional station file into v and decodes the merged
// settings. An empty path searches for slmcal.yaml in the working directory
// and $HOME/.slmcal; not finding one is fine.
func LoadStation(v *viper.Viper, path string) (*Station, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("slmcal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.slmcal")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, pkgerrors.Wrap(err, "failed to read station config")
		}
		logrus.Debug("no station config file found, using defaults")
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("station config loaded")
	}

	s := &Station{}
	if err := v.Unmarshal(s); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode station config")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the bus addresses. A missing controller is only an
// error when not simulating.
func (s *Station) Validate() error {
	var errs []error
	if !s.Simulate && s.Controller == "" {
		errs = append(errs, &Error{Key: "controller", Reason: "address required unless simulating"})
	}
	if s.Timeout <= 0 {
		errs = append(errs, &Error{Key: "timeout", Reason: "must be positive"})
	}
	for key, addr := range map[string]int{
		"voltmeter":          s.Voltmeter,
		"generator":          s.Generator,
		"attenuator":         s.Attenuator,
		"counter.address":    s.Counter.Address,
		"distortion.address": s.Distortion.Address,
		"barometer.address":  s.Barometer.Address,
	} {
		if addr < 0 || addr > 30 {
			errs = append(errs, &Error{Key: key, Reason: "bus address must be 0..30"})
		}
	}
	return errors.Join(errs...)
}

func (s *Station) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"controller": s.Controller,
		"timeout":    s.Timeout,
		"voltmeter":  s.Voltmeter,
		"generator":  s.Generator,
		"attenuator": s.Attenuator,
		"simulate":   s.Simulate,
	}
}
