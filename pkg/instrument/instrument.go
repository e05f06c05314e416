// Package instrument defines one interface per device role used during an
// SLM calibration, and the Station that bundles them behind an exclusive bus
// lock.
package instrument

import (
	"context"
)

// Shape is the waveform produced by a Generator.
type Shape string

const (
	ShapeSine      Shape = "SIN"
	ShapeRectangle Shape = "SQU"
)

// Voltmeter reads the generator output at the attenuator input.
type Voltmeter interface {
	// ReadVoltage triggers and returns one fresh reading in volts.
	ReadVoltage(ctx context.Context) (float64, error)
	// ReadVoltageAverage returns a reading integrated over 10 power line cycles.
	ReadVoltageAverage(ctx context.Context) (float64, error)
}

// Scanner is a multichannel voltmeter able to read a given input channel.
type Scanner interface {
	// Scan reads channel times times, waiting interval seconds in between.
	// function is a SCPI sense function such as "VOLT:DC".
	Scan(ctx context.Context, channel int, function string, times int, interval float64) ([]float64, error)
}

// Generator is the sine/burst waveform generator feeding the attenuator.
type Generator interface {
	// SetFrequency programs a continuous sine of freq Hz and volt Vpp.
	SetFrequency(ctx context.Context, freq, volt float64) error
	// SetWaveform programs a continuous waveform of the given shape.
	SetWaveform(ctx context.Context, shape Shape, freq, volt float64) error
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	// StartBurst emits bursts of count cycles separated by delay seconds.
	StartBurst(ctx context.Context, freq, volt, delay float64, count int) error
	StopBurst(ctx context.Context) error
	PositiveHalfCycle(ctx context.Context, freq, volt float64) error
	NegativeHalfCycle(ctx context.Context, freq, volt float64) error
	// Voltage returns the programmed amplitude in Vpp.
	Voltage(ctx context.Context) (float64, error)
}

// Attenuator is the programmable attenuator between generator and SLM.
// Values are in dB, 0.00 to 99.99 with two decimals.
type Attenuator interface {
	Set(ctx context.Context, db float64) error
	Get(ctx context.Context) (float64, error)
}

// Meter is a single-value instrument such as a frequency counter, a
// distortion meter or a barometer.
type Meter interface {
	Read(ctx context.Context) (float64, error)
}
