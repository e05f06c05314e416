// Package fake provides in-memory instruments. They back dry runs of the
// procedures without a bench and the package tests.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/charlie0129/slmcal/pkg/instrument"
)

// Generator records every call and remembers its programmed state.
type Generator struct {
	mu    sync.Mutex
	Calls []string
	Shape instrument.Shape
	Freq  float64
	Volt  float64
	On    bool
	// Tuned, when non-zero, is reported by Voltage as if the operator had
	// turned the amplitude knob.
	Tuned float64
}

func (g *Generator) record(format string, args ...any) {
	g.Calls = append(g.Calls, fmt.Sprintf(format, args...))
}

func (g *Generator) SetFrequency(ctx context.Context, freq, volt float64) error {
	return g.SetWaveform(ctx, instrument.ShapeSine, freq, volt)
}

func (g *Generator) SetWaveform(_ context.Context, shape instrument.Shape, freq, volt float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("waveform %s %g %g", shape, freq, volt)
	g.Shape, g.Freq, g.Volt = shape, freq, volt
	return nil
}

func (g *Generator) TurnOn(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("on")
	g.On = true
	return nil
}

func (g *Generator) TurnOff(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("off")
	g.On = false
	return nil
}

func (g *Generator) StartBurst(_ context.Context, freq, volt, delay float64, count int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("burst %g %g %g %d", freq, volt, delay, count)
	g.Freq, g.Volt, g.On = freq, volt, true
	return nil
}

func (g *Generator) StopBurst(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("stop burst")
	g.On = false
	return nil
}

func (g *Generator) PositiveHalfCycle(_ context.Context, freq, volt float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("positive half %g %g", freq, volt)
	g.Freq, g.Volt, g.On = freq, volt, true
	return nil
}

func (g *Generator) NegativeHalfCycle(_ context.Context, freq, volt float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("negative half %g %g", freq, volt)
	g.Freq, g.Volt, g.On = freq, volt, true
	return nil
}

func (g *Generator) Voltage(context.Context) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Tuned != 0 {
		return g.Tuned, nil
	}
	return g.Volt, nil
}

// CallLog returns a copy of the recorded calls.
func (g *Generator) CallLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Calls...)
}

// Attenuator remembers the last value set. Get returns queued operator
// adjustments first, then the current value.
type Attenuator struct {
	mu      sync.Mutex
	Value   float64
	History []float64
	Adjust  []float64
}

func (a *Attenuator) Set(_ context.Context, db float64) error {
	if _, err := instrument.FormatAttenuation(db); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Value = db
	a.History = append(a.History, db)
	return nil
}

func (a *Attenuator) Get(context.Context) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Adjust) > 0 {
		a.Value = a.Adjust[0]
		a.Adjust = a.Adjust[1:]
	}
	return a.Value, nil
}

// Meter returns queued readings, then repeats Value.
type Meter struct {
	mu       sync.Mutex
	Value    float64
	Readings []float64
	Count    int
}

func (m *Meter) Read(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Count++
	if len(m.Readings) > 0 {
		v := m.Readings[0]
		m.Readings = m.Readings[1:]
		return v, nil
	}
	return m.Value, nil
}

// Voltmeter is a Meter answering both voltage reads.
type Voltmeter struct {
	Meter
}

func (v *Voltmeter) ReadVoltage(ctx context.Context) (float64, error) { return v.Read(ctx) }

func (v *Voltmeter) ReadVoltageAverage(ctx context.Context) (float64, error) { return v.Read(ctx) }

// Scanner serves each channel from its own Meter.
type Scanner struct {
	mu       sync.Mutex
	Channels map[int]*Meter
}

func (s *Scanner) Scan(ctx context.Context, channel int, _ string, times int, _ float64) ([]float64, error) {
	s.mu.Lock()
	m, ok := s.Channels[channel]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fake scanner: channel %d not wired", channel)
	}
	out := make([]float64, 0, times)
	for i := 0; i < times; i++ {
		v, err := m.Read(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// NewStation returns a station of fakes, with the fakes for inspection.
func NewStation() (*instrument.Station, *Voltmeter, *Generator, *Attenuator) {
	v := &Voltmeter{}
	g := &Generator{}
	a := &Attenuator{}
	return instrument.NewStation(v, g, a), v, g, a
}
