// Package keithley2001 drives a Keithley 2001 multimeter with a scanner card.
package keithley2001

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/instrument/bus"
)

// Mode is the voltage measurement function.
type Mode string

const (
	ModeAC Mode = "AC"
	ModeDC Mode = "DC"
)

// DefaultAddress is the GPIB address the bench uses for the multimeter.
const DefaultAddress = 16

var (
	_ instrument.Voltmeter = (*Keithley2001)(nil)
	_ instrument.Scanner   = (*Keithley2001)(nil)
)

type Keithley2001 struct {
	conn bus.Conn
	mode Mode
}

func New(conn bus.Conn) *Keithley2001 {
	return &Keithley2001{conn: conn, mode: ModeAC}
}

// Initialize clears the status registers and selects AC volts.
func (k *Keithley2001) Initialize(ctx context.Context) error {
	if err := k.conn.Write(ctx, "*CLS"); err != nil {
		return err
	}
	return k.SetMeasurementMode(ctx, ModeAC)
}

func (k *Keithley2001) SetMeasurementMode(ctx context.Context, mode Mode) error {
	var cmd string
	switch mode {
	case ModeAC:
		cmd = ":conf:volt:ac"
	case ModeDC:
		cmd = ":conf:volt:dc"
	default:
		return pkgerrors.Errorf("unknown measurement mode %q", string(mode))
	}
	if err := k.conn.Write(ctx, cmd); err != nil {
		return err
	}
	k.mode = mode
	logrus.WithField("mode", mode).Debug("keithley2001 measurement mode set")
	return nil
}

func (k *Keithley2001) ReadVoltage(ctx context.Context) (float64, error) {
	raw, err := k.conn.Query(ctx, ":READ?")
	if err != nil {
		return 0, err
	}
	return ParseReading(raw)
}

func (k *Keithley2001) ReadVoltageAverage(ctx context.Context) (float64, error) {
	cmd := ":volt:ac:nplc 10"
	if k.mode == ModeDC {
		cmd = ":volt:dc:nplc 10"
	}
	if err := k.conn.Write(ctx, cmd); err != nil {
		return 0, err
	}
	raw, err := k.conn.Query(ctx, ":read?")
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return ParseReading(raw)
}

// Scan routes an internal scanner channel to the meter, configures its
// function and takes times readings rounded to 5 decimals.
func (k *Keithley2001) Scan(ctx context.Context, channel int, function string, times int, interval float64) ([]float64, error) {
	if channel < 1 || channel > 10 {
		return nil, pkgerrors.Errorf("scanner channel %d outside 1..10", channel)
	}
	logrus.WithFields(logrus.Fields{
		"channel":  channel,
		"function": function,
		"times":    times,
		"interval": interval,
	}).Debug("keithley2001 scanning channel")

	setup := []string{
		":rout:SCAN:LSEL INT",
		fmt.Sprintf(":rout:CLOSE (@%d)", channel),
		fmt.Sprintf(":rout:open (@%d)", channel),
		fmt.Sprintf(":rout:scan:int:func (@%d), '%s'", channel, function),
		fmt.Sprintf(":rout:scan:int (@%d)", channel),
	}
	for _, cmd := range setup {
		if err := k.conn.Write(ctx, cmd); err != nil {
			return nil, err
		}
	}

	var out []float64
	for i := 0; i < times; i++ {
		raw, err := k.conn.Query(ctx, ":READ?")
		if err != nil {
			return nil, err
		}
		v, err := ParseReading(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, roundTo(v, 5))
		if err := instrument.Sleep(ctx, instrument.Seconds(interval)); err != nil {
			return nil, err
		}
	}
	if err := k.conn.Write(ctx, fmt.Sprintf(":rout:CLOSE (@%d)", channel)); err != nil {
		return nil, err
	}
	return out, nil
}

// ResetAutozero forces an autozero cycle lasting d.
func (k *Keithley2001) ResetAutozero(ctx context.Context, d time.Duration) error {
	for _, cmd := range []string{"*CLS", ":SYSTem:AZERo:STATe ON", ":syst:faz ON"} {
		if err := k.conn.Write(ctx, cmd); err != nil {
			return err
		}
	}
	if err := instrument.Sleep(ctx, d); err != nil {
		return err
	}
	for _, cmd := range []string{":syst:faz off", ":SYSTem:AZERo:STATe OFF"} {
		if err := k.conn.Write(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// ParseReading extracts the value of a reading such as
// "-38.3204E-03NVDC,+73597.273513SECS,+39170RDNG#,00EXTCHAN".
func ParseReading(raw string) (float64, error) {
	field := strings.SplitN(raw, ",", 2)[0]
	field = strings.NewReplacer("NVDC", "", "NVAC", "", "VDC", "", "VAC", "").Replace(field)
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid keithley2001 reading %q", raw)
	}
	return v, nil
}

func roundTo(v float64, decimals int) float64 {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	r, _ := strconv.ParseFloat(s, 64)
	return r
}
