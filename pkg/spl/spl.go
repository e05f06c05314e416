// Package spl calibrates a measurement microphone by insert voltage: the
// calibrator drives the microphone, the generator then reproduces the
// amplifier output through the attenuator and the sound pressure level
// follows from the insert voltage, the attenuation and the microphone
// sensitivity.
package spl

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/tuner"
	"github.com/charlie0129/slmcal/pkg/uncertainty"
)

// Scanner channels of the bench.
const (
	ChannelInsertVoltage     = 3
	ChannelPolarisingVoltage = 4
	ChannelAmplifier         = 5
)

// NominalLevels are the calibrator levels the bench supports.
var NominalLevels = []float64{94, 104, 114}

// Bench holds the instruments used by a microphone calibration.
type Bench struct {
	Scanner    instrument.Scanner
	Generator  instrument.Generator
	Attenuator instrument.Attenuator
	// Counter reads the generator frequency in Hz.
	Counter instrument.Meter
	// Distortion reads the total harmonic distortion in %.
	Distortion instrument.Meter
	// Barometer reads the static pressure in hPa.
	Barometer instrument.Meter
}

// Options tunes the measurement sequence.
type Options struct {
	// Repeats is the number of measurements per device.
	Repeats int
	// Devices are measured in turn, once per repeat.
	Devices []string

	ScanReadings       int
	ScanInterval       time.Duration
	DistortionReadings int
	CounterReadings    int
	MeterInterval      time.Duration
	// Settle is waited after every attenuator correction.
	Settle time.Duration
	// MaxIterations bounds the voltage match when positive.
	MaxIterations int
}

// DefaultOptions returns the bench defaults.
func DefaultOptions() Options {
	return Options{
		Repeats:            5,
		Devices:            []string{"Reference Standard", "Customer Device"},
		ScanReadings:       20,
		ScanInterval:       990 * time.Millisecond,
		DistortionReadings: 10,
		CounterReadings:    20,
		MeterInterval:      1990 * time.Millisecond,
		Settle:             5 * time.Second,
		MaxIterations:      50,
	}
}

// Environment is a set of ambient conditions.
type Environment struct {
	Temperature       float64 `json:"temperature"`
	Humidity          float64 `json:"humidity"`
	Pressure          float64 `json:"pressure"`
	PolarisingVoltage float64 `json:"polarisingVoltage"`
}

func (e Environment) mean(o Environment) Environment {
	return Environment{
		Temperature:       (e.Temperature + o.Temperature) / 2,
		Humidity:          (e.Humidity + o.Humidity) / 2,
		Pressure:          (e.Pressure + o.Pressure) / 2,
		PolarisingVoltage: (e.PolarisingVoltage + o.PolarisingVoltage) / 2,
	}
}

// Reading is one SPL determination of one device.
type Reading struct {
	Attenuation float64 `json:"attenuation"`
	// Vmic is the amplifier output driven by the calibrator.
	Vmic float64 `json:"vmic"`
	// Vins is the amplifier output driven by the generator once matched.
	Vins float64 `json:"vins"`
	// IV is the insert voltage.
	IV          float64 `json:"iv"`
	Frequency   float64 `json:"frequency"`
	Distortion  float64 `json:"distortion"`
	THD         float64 `json:"thd"`
	Fluctuation float64 `json:"fluctuation"`
	SPL         float64 `json:"spl"`
}

// DeviceResult is the series of readings of one device and its uncertainty.
type DeviceResult struct {
	Name        string             `json:"name"`
	Readings    []Reading          `json:"readings"`
	Uncertainty uncertainty.Result `json:"uncertainty"`
}

// Report is the outcome of a microphone calibration.
type Report struct {
	NominalLevel float64         `json:"nominalLevel"`
	Sensitivity  float64         `json:"sensitivity"`
	Initial      Environment     `json:"initial"`
	Final        Environment     `json:"final"`
	Warnings     []string        `json:"warnings,omitempty"`
	Devices      []*DeviceResult `json:"devices"`
}

// Calibration runs the microphone calibration sequence.
type Calibration struct {
	bench    Bench
	operator operator.Channel
	tuner    *tuner.Tuner
	opts     Options
}

const title = "Microphone SPL calibration"

func New(b Bench, op operator.Channel, opts Options) *Calibration {
	return &Calibration{
		bench:    b,
		operator: op,
		tuner:    tuner.New(b.Generator, b.Attenuator, op),
		opts:     opts,
	}
}

// Run records the environment, measures every device Repeats times,
// records the environment again and evaluates the uncertainty budget. An
// unstable amplifier output aborts the whole run.
func (c *Calibration) Run(ctx context.Context) (*Report, error) {
	if c.opts.Repeats < 1 || len(c.opts.Devices) == 0 {
		return nil, pkgerrors.Errorf("invalid options: %d repeats of %d devices", c.opts.Repeats, len(c.opts.Devices))
	}
	r := &Report{}

	var err error
	if r.Initial, err = c.environment(ctx, r, "Initial"); err != nil {
		return nil, err
	}
	if r.NominalLevel, err = c.nominalLevel(ctx); err != nil {
		return nil, err
	}
	if r.Sensitivity, err = operator.AskNumber(ctx, c.operator, title, "Microphone Sensitivity (check certificate, e.g. -26.49)"); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"nominal":     r.NominalLevel,
		"sensitivity": r.Sensitivity,
	}).Info("starting microphone calibration")

	for _, name := range c.opts.Devices {
		r.Devices = append(r.Devices, &DeviceResult{Name: name})
	}
	for i := 0; i < c.opts.Repeats; i++ {
		for _, d := range r.Devices {
			if err := c.operator.Wait(ctx, title, fmt.Sprintf("Please connect and turn on the %s.", d.Name)); err != nil {
				return nil, err
			}
			reading, err := c.measure(ctx, d.Name, r.NominalLevel, r.Sensitivity)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "%s measurement %d", d.Name, i+1)
			}
			d.Readings = append(d.Readings, reading)
		}
	}

	if r.Final, err = c.environment(ctx, r, "Final"); err != nil {
		return nil, err
	}

	for _, d := range r.Devices {
		ms := make([]uncertainty.Measurement, 0, len(d.Readings))
		for _, rd := range d.Readings {
			ms = append(ms, uncertainty.Measurement{Attenuation: rd.Attenuation, SPL: rd.SPL, Frequency: rd.Frequency})
		}
		if d.Uncertainty, err = uncertainty.Calculate(ms); err != nil {
			return nil, pkgerrors.Wrapf(err, "%s uncertainty", d.Name)
		}
	}
	return r, nil
}

// environment asks for temperature and humidity and reads the pressure and
// the polarising voltage. Values outside the preferred ranges are shown to
// the operator but do not stop the run.
func (c *Calibration) environment(ctx context.Context, r *Report, when string) (Environment, error) {
	var env Environment
	var err error
	if env.Temperature, err = operator.AskNumber(ctx, c.operator, title, when+" temperature (oC)"); err != nil {
		return env, err
	}
	if env.Humidity, err = operator.AskNumber(ctx, c.operator, title, when+" humidity (%)"); err != nil {
		return env, err
	}
	if env.Pressure, err = c.bench.Barometer.Read(ctx); err != nil {
		return env, pkgerrors.Wrap(err, "failed to read pressure")
	}
	vpol, err := c.bench.Scanner.Scan(ctx, ChannelPolarisingVoltage, "VOLT:DC", 1, 0)
	if err != nil {
		return env, pkgerrors.Wrap(err, "failed to read polarising voltage")
	}
	env.PolarisingVoltage = vpol[0]

	for _, check := range []struct {
		r uncertainty.Range
		v float64
	}{
		{uncertainty.TemperatureRange, env.Temperature},
		{uncertainty.HumidityRange, env.Humidity},
		{uncertainty.PressureRange, env.Pressure},
		{uncertainty.PolarisingVoltageRange, env.PolarisingVoltage},
	} {
		msg := check.r.Check(check.v)
		if msg == "" {
			continue
		}
		logrus.Warn(msg)
		r.Warnings = append(r.Warnings, msg)
		if err := c.operator.Wait(ctx, title, msg); err != nil {
			return env, err
		}
	}
	logrus.WithFields(logrus.Fields{
		"when":        strings.ToLower(when),
		"temperature": env.Temperature,
		"humidity":    env.Humidity,
		"pressure":    env.Pressure,
		"vpol":        env.PolarisingVoltage,
	}).Info("environment recorded")
	return env, nil
}

func (c *Calibration) nominalLevel(ctx context.Context) (float64, error) {
	const q = "Calibrator Nominal Level (94, 104 or 114dB)"
	v, err := operator.AskNumber(ctx, c.operator, title, q)
	if err != nil {
		return 0, err
	}
	for _, l := range NominalLevels {
		if v == l {
			return v, nil
		}
	}
	return 0, &operator.InputError{
		Question: q,
		Answer:   strconv.FormatFloat(v, 'g', -1, 64),
		Err:      fmt.Errorf("nominal level must be one of %v", NominalLevels),
	}
}

func (c *Calibration) scan(ctx context.Context, channel int, function string, times int) ([]float64, error) {
	return c.bench.Scanner.Scan(ctx, channel, function, times, c.opts.ScanInterval.Seconds())
}

// measure determines the SPL of the connected device once.
func (c *Calibration) measure(ctx context.Context, device string, nominal, sensitivity float64) (Reading, error) {
	var r Reading
	log := logrus.WithField("device", device)
	gen := c.bench.Generator
	if err := gen.TurnOff(ctx); err != nil {
		return r, err
	}

	dc, err := c.scan(ctx, ChannelAmplifier, "VOLT:DC", c.opts.ScanReadings)
	if err != nil {
		return r, pkgerrors.Wrap(err, "failed to read amplifier output")
	}
	if err := uncertainty.CheckStability(dc); err != nil {
		log.WithField("values", dc).Error("amplifier output is not stable")
		return r, err
	}
	r.Vmic = instrument.Mean(dc)
	r.Fluctuation = uncertainty.Fluctuation(dc)

	before, err := instrument.ReadN(ctx, c.bench.Distortion, c.opts.DistortionReadings, c.opts.MeterInterval)
	if err != nil {
		return r, pkgerrors.Wrap(err, "failed to read distortion")
	}
	if err := c.operator.Wait(ctx, title, fmt.Sprintf("Stop %s, press any key to continue...", device)); err != nil {
		return r, err
	}

	if err := gen.TurnOn(ctx); err != nil {
		return r, err
	}
	r.Attenuation, err = c.tuner.MatchVoltage(ctx, tuner.Match{
		Start:     100 - sensitivity - nominal,
		Reference: r.Vmic,
		Read: func(ctx context.Context) (float64, error) {
			v, err := c.scan(ctx, ChannelAmplifier, "VOLT:DC", 1)
			if err != nil {
				return 0, err
			}
			r.Vins = v[0]
			return v[0], nil
		},
		Settle:        c.opts.Settle,
		MaxIterations: c.opts.MaxIterations,
	})
	if err != nil {
		return r, err
	}
	if err := gen.TurnOff(ctx); err != nil {
		return r, err
	}

	ac, err := c.scan(ctx, ChannelInsertVoltage, "VOLT:AC", c.opts.ScanReadings)
	if err != nil {
		return r, pkgerrors.Wrap(err, "failed to read insert voltage")
	}
	r.IV = math.Abs(instrument.Mean(ac))

	freqs, err := instrument.ReadN(ctx, c.bench.Counter, c.opts.CounterReadings, c.opts.MeterInterval)
	if err != nil {
		return r, pkgerrors.Wrap(err, "failed to read frequency")
	}
	r.Frequency = instrument.Mean(freqs)

	after, err := instrument.ReadN(ctx, c.bench.Distortion, c.opts.DistortionReadings, c.opts.MeterInterval)
	if err != nil {
		return r, pkgerrors.Wrap(err, "failed to read distortion")
	}
	r.THD = uncertainty.StdDev(after)
	r.Distortion = (instrument.Mean(before) + instrument.Mean(after)) / 2
	r.SPL = uncertainty.UncorrectedSPL(r.IV, r.Attenuation, sensitivity)

	log.WithFields(logrus.Fields{
		"attenuation": r.Attenuation,
		"iv":          r.IV,
		"frequency":   r.Frequency,
		"spl":         r.SPL,
	}).Info("SPL measured")
	return r, nil
}

// Tables renders the report.
func (r *Report) Tables() []calibration.Table {
	env := calibration.Table{
		Procedure: calibration.ProcedureMicrophoneSPL,
		Title:     "Environment",
		Columns:   []string{"", "Pressure (hPa)", "Temperature (oC)", "Relative Humidity (%)", "Polarising Voltage (V)"},
		Notes:     r.Warnings,
	}
	for _, e := range []struct {
		label string
		env   Environment
	}{
		{"Initial", r.Initial},
		{"Final", r.Final},
		{"Mean", r.Initial.mean(r.Final)},
	} {
		env.Rows = append(env.Rows, []string{
			e.label, f2(e.env.Pressure), f2(e.env.Temperature), f2(e.env.Humidity), f2(e.env.PolarisingVoltage),
		})
	}

	out := []calibration.Table{env}
	for _, d := range r.Devices {
		t := calibration.Table{
			Procedure: calibration.ProcedureMicrophoneSPL,
			Title:     d.Name + " Results",
			Columns: []string{
				"Freq (Hz)", "MA o/p (V)", "MA o/p (V)", "IV (V)", "Atten (dB)", "P+V Corrn (dB)", "S.P.L. (dB)", "THD (%)",
			},
		}
		var freqs, spls, thds []float64
		for _, rd := range d.Readings {
			t.Rows = append(t.Rows, []string{
				strconv.FormatFloat(rd.Frequency, 'f', 1, 64), f2(rd.Vmic), f2(rd.Vins), f2(rd.IV),
				f2(rd.Attenuation), f2(0), f2(rd.SPL), f2(rd.THD),
			})
			freqs = append(freqs, rd.Frequency)
			spls = append(spls, rd.SPL)
			thds = append(thds, rd.THD)
		}
		u := d.Uncertainty
		t.Notes = []string{
			fmt.Sprintf("Mean Freq = %.2f Hz, Freq unc = %.2f Hz (k=2.00) Mean dist=%.2f%% Dist unc=%.2f%% (k=2.00)",
				instrument.Mean(freqs), u.Frequency, instrument.Mean(thds), u.THD),
			fmt.Sprintf("Mean S.P.L. = %.2f", instrument.Mean(spls)),
			fmt.Sprintf("Type A unc = %.3f dB Total unc = %.3f dB", u.TypeA, u.Total),
		}
		out = append(out, t)
	}
	return out
}

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
