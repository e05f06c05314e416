// Package agilent33250a drives an Agilent/Keysight 33250A function generator.
package agilent33250a

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/instrument/bus"
)

// DefaultAddress is the GPIB address the bench uses for the generator.
const DefaultAddress = 20

// halfCyclePoints is the length of the arbitrary waveform holding one
// half-sine followed by silence.
const halfCyclePoints = 64

var _ instrument.Generator = (*Agilent33250A)(nil)

type Agilent33250A struct {
	conn bus.Conn
}

func New(conn bus.Conn) *Agilent33250A {
	return &Agilent33250A{conn: conn}
}

func (a *Agilent33250A) write(ctx context.Context, cmds ...string) error {
	for _, cmd := range cmds {
		if err := a.conn.Write(ctx, cmd); err != nil {
			return pkgerrors.Wrapf(err, "33250A %q", cmd)
		}
	}
	return nil
}

// Initialize clears the registers and sets a high impedance load.
func (a *Agilent33250A) Initialize(ctx context.Context) error {
	return a.write(ctx, "*CLS", "OUTP:LOAD MAX")
}

func (a *Agilent33250A) SetFrequency(ctx context.Context, freq, volt float64) error {
	return a.SetWaveform(ctx, instrument.ShapeSine, freq, volt)
}

func (a *Agilent33250A) SetWaveform(ctx context.Context, shape instrument.Shape, freq, volt float64) error {
	logrus.WithFields(logrus.Fields{
		"shape": shape,
		"freq":  freq,
		"volt":  volt,
	}).Info("setting generator waveform")
	return a.write(ctx, "BURS:STAT OFF", fmt.Sprintf("APPL:%s %g, %g", shape, freq, volt))
}

func (a *Agilent33250A) TurnOn(ctx context.Context) error {
	return a.write(ctx, "OUTP ON")
}

func (a *Agilent33250A) TurnOff(ctx context.Context) error {
	logrus.Debug("ensuring generator provides zero output")
	return a.write(ctx, "OUTP OFF")
}

// StartBurst emits count-cycle sine bursts with delay seconds of silence
// between them.
func (a *Agilent33250A) StartBurst(ctx context.Context, freq, volt, delay float64, count int) error {
	if count < 1 {
		return pkgerrors.Errorf("invalid burst count %d", count)
	}
	return a.write(ctx,
		"BURS:STAT OFF",
		fmt.Sprintf("APPL:SIN %g, %g", freq, volt),
		"BURS:MODE TRIG",
		fmt.Sprintf("BURS:NCYC %d", count),
		fmt.Sprintf("BURS:INT:PER %g", burstPeriod(freq, delay, count)),
		"TRIG:SOUR IMM",
		"BURS:STAT ON",
		"OUTP ON",
	)
}

func burstPeriod(freq, delay float64, count int) float64 {
	p := float64(count)/freq + delay
	if p < 1e-6 {
		p = 1e-6
	}
	return p
}

func (a *Agilent33250A) StopBurst(ctx context.Context) error {
	return a.write(ctx, "BURS:STAT OFF", "OUTP OFF")
}

func (a *Agilent33250A) PositiveHalfCycle(ctx context.Context, freq, volt float64) error {
	return a.halfCycle(ctx, freq, volt, 1)
}

func (a *Agilent33250A) NegativeHalfCycle(ctx context.Context, freq, volt float64) error {
	return a.halfCycle(ctx, freq, volt, -1)
}

// halfCycle loads a waveform whose first half is a half-sine of the given
// polarity and emits it once per trigger at freq.
func (a *Agilent33250A) halfCycle(ctx context.Context, freq, volt, polarity float64) error {
	return a.write(ctx,
		"BURS:STAT OFF",
		"DATA VOLATILE, "+HalfCycleData(polarity),
		"FUNC:USER VOLATILE",
		"FUNC USER",
		fmt.Sprintf("FREQ %g", freq),
		fmt.Sprintf("VOLT %g", volt),
		"VOLT:OFFS 0",
		"BURS:MODE TRIG",
		"BURS:NCYC 1",
		"TRIG:SOUR IMM",
		"BURS:STAT ON",
		"OUTP ON",
	)
}

// HalfCycleData renders the arbitrary waveform points, normalized to ±1.
func HalfCycleData(polarity float64) string {
	points := make([]string, halfCyclePoints)
	half := halfCyclePoints / 2
	for i := range points {
		v := 0.0
		if i < half {
			v = polarity * math.Sin(math.Pi*float64(i)/float64(half))
		}
		if v == 0 {
			v = 0 // no "-0.0000"
		}
		points[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return strings.Join(points, ",")
}

func (a *Agilent33250A) Voltage(ctx context.Context) (float64, error) {
	raw, err := a.conn.Query(ctx, "VOLT?")
	if err != nil {
		return 0, pkgerrors.Wrap(err, "33250A VOLT?")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid 33250A voltage %q", raw)
	}
	return v, nil
}
