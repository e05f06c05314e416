// Package bench opens the instruments named by the station settings, either
// on the GPIB controller or as in-memory fakes for a simulated bench.
package bench

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/instrument/agilent33250a"
	"github.com/charlie0129/slmcal/pkg/instrument/bus"
	"github.com/charlie0129/slmcal/pkg/instrument/el100"
	"github.com/charlie0129/slmcal/pkg/instrument/fake"
	"github.com/charlie0129/slmcal/pkg/instrument/keithley2001"
	"github.com/charlie0129/slmcal/pkg/instrument/scpimeter"
	"github.com/charlie0129/slmcal/pkg/spl"
)

// Bench is every instrument of the calibration bench.
type Bench struct {
	Station    *instrument.Station
	Scanner    instrument.Scanner
	Counter    instrument.Meter
	Distortion instrument.Meter
	Barometer  instrument.Meter

	closer func() error
}

// SPL returns the instruments used by the microphone calibration.
func (b *Bench) SPL() spl.Bench {
	return spl.Bench{
		Scanner:    b.Scanner,
		Generator:  b.Station.Generator,
		Attenuator: b.Station.Attenuator,
		Counter:    b.Counter,
		Distortion: b.Distortion,
		Barometer:  b.Barometer,
	}
}

func (b *Bench) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// Open connects to the controller and initializes the multimeter and the
// generator. With st.Simulate set it returns Simulated instead.
func Open(ctx context.Context, st *config.Station) (*Bench, error) {
	if st.Simulate {
		logrus.Warn("using a simulated bench, readings are not real")
		return Simulated(), nil
	}

	ctrl, err := bus.Dial(st.Controller, st.Timeout)
	if err != nil {
		return nil, err
	}
	k := keithley2001.New(ctrl.Device(st.Voltmeter))
	g := agilent33250a.New(ctrl.Device(st.Generator))
	a := el100.New(ctrl.Device(st.Attenuator))

	if err := k.Initialize(ctx); err != nil {
		_ = ctrl.Close()
		return nil, pkgerrors.Wrap(err, "failed to initialize multimeter")
	}
	if err := g.Initialize(ctx); err != nil {
		_ = ctrl.Close()
		return nil, pkgerrors.Wrap(err, "failed to initialize generator")
	}

	logrus.WithFields(st.LogrusFields()).Info("bench opened")
	return &Bench{
		Station:    instrument.NewStation(k, g, a),
		Scanner:    k,
		Counter:    scpimeter.New("counter", ctrl.Device(st.Counter.Address), st.Counter.Query),
		Distortion: scpimeter.New("distortion analyzer", ctrl.Device(st.Distortion.Address), st.Distortion.Query),
		Barometer:  scpimeter.New("barometer", ctrl.Device(st.Barometer.Address), st.Barometer.Query),
		closer:     ctrl.Close,
	}, nil
}

// Simulated returns a bench of fakes with nominal readings: 1 kHz, 0.1 %
// distortion, 1013 hPa, 200 V polarisation and a steady 1 V amplifier.
func Simulated() *Bench {
	g := &fake.Generator{Tuned: 1}
	v := &fake.Voltmeter{Meter: fake.Meter{Value: 0.5}}
	a := &fake.Attenuator{}
	return &Bench{
		Station: instrument.NewStation(v, g, a),
		Scanner: &fake.Scanner{Channels: map[int]*fake.Meter{
			spl.ChannelInsertVoltage:     {Value: 0.05},
			spl.ChannelPolarisingVoltage: {Value: 200},
			spl.ChannelAmplifier:         {Value: 1},
		}},
		Counter:    &fake.Meter{Value: 1000},
		Distortion: &fake.Meter{Value: 0.1},
		Barometer:  &fake.Meter{Value: 1013},
	}
}
