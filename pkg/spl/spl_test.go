package spl

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/instrument/fake"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/uncertainty"
)

type rig struct {
	bench   Bench
	scanner *fake.Scanner
	gen     *fake.Generator
	att     *fake.Attenuator
	counter *fake.Meter
}

func newRig() *rig {
	r := &rig{
		scanner: &fake.Scanner{Channels: map[int]*fake.Meter{
			ChannelInsertVoltage:     {Value: 0.05},
			ChannelPolarisingVoltage: {Value: 200},
			ChannelAmplifier:         {Value: 1},
		}},
		gen:     &fake.Generator{},
		att:     &fake.Attenuator{},
		counter: &fake.Meter{Value: 1000},
	}
	r.bench = Bench{
		Scanner:    r.scanner,
		Generator:  r.gen,
		Attenuator: r.att,
		Counter:    r.counter,
		Distortion: &fake.Meter{Value: 0.1},
		Barometer:  &fake.Meter{Value: 1013},
	}
	return r
}

func testOptions() Options {
	o := DefaultOptions()
	o.Repeats = 2
	o.ScanReadings = 3
	o.ScanInterval = 0
	o.DistortionReadings = 2
	o.CounterReadings = 2
	o.MeterInterval = 0
	o.Settle = 0
	return o
}

func TestRun(t *testing.T) {
	r := newRig()
	op := operator.NewScripted("23", "50", "94", "-26", "23.4", "51")
	report, err := New(r.bench, op, testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 94.0, report.NominalLevel)
	assert.Equal(t, -26.0, report.Sensitivity)
	assert.Equal(t, Environment{Temperature: 23, Humidity: 50, Pressure: 1013, PolarisingVoltage: 200}, report.Initial)
	assert.Equal(t, 23.4, report.Final.Temperature)
	assert.Empty(t, report.Warnings)
	assert.Zero(t, op.Remaining())

	require.Len(t, report.Devices, 2)
	wantSPL := 20*math.Log10(0.05) - 20*math.Log10(uncertainty.ReferencePressure) - 32 + 26
	for _, d := range report.Devices {
		require.Len(t, d.Readings, 2, d.Name)
		for _, rd := range d.Readings {
			assert.Equal(t, 32.0, rd.Attenuation)
			assert.Equal(t, 1.0, rd.Vmic)
			assert.Equal(t, 1.0, rd.Vins)
			assert.InDelta(t, 0.05, rd.IV, 1e-12)
			assert.Equal(t, 1000.0, rd.Frequency)
			assert.InDelta(t, 0.1, rd.Distortion, 1e-12)
			assert.InDelta(t, 0, rd.THD, 1e-9)
			assert.InDelta(t, wantSPL, rd.SPL, 1e-3)
		}
		assert.InDelta(t, 0, d.Uncertainty.TypeA, 1e-9)
		assert.Greater(t, d.Uncertainty.Total, 0.0)
	}

	var waits []string
	for _, x := range op.Transcript {
		if x.Kind == "wait" {
			waits = append(waits, x.Text)
		}
	}
	assert.Equal(t, []string{
		"Please connect and turn on the Reference Standard.",
		"Stop Reference Standard, press any key to continue...",
		"Please connect and turn on the Customer Device.",
		"Stop Customer Device, press any key to continue...",
		"Please connect and turn on the Reference Standard.",
		"Stop Reference Standard, press any key to continue...",
		"Please connect and turn on the Customer Device.",
		"Stop Customer Device, press any key to continue...",
	}, waits)

	assert.False(t, r.gen.On)
	assert.Equal(t, 8, r.counter.Count)

	tables := report.Tables()
	require.Len(t, tables, 3)
	assert.Equal(t, "Environment", tables[0].Title)
	require.Len(t, tables[0].Rows, 3)
	assert.Equal(t, []string{"Mean", "1013.00", "23.20", "50.50", "200.00"}, tables[0].Rows[2])
	assert.Equal(t, "Customer Device Results", tables[2].Title)
	assert.Len(t, tables[2].Rows, 2)
	assert.Len(t, tables[2].Notes, 3)
}

func TestRunWarnsOutsidePreferredRange(t *testing.T) {
	r := newRig()
	op := operator.NewScripted("28", "50", "114", "-26.49", "23", "50")
	o := testOptions()
	o.Repeats = 1
	o.Devices = []string{"Customer Device"}
	report, err := New(r.bench, op, o).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "Temperature 28 oC")
	assert.Equal(t, report.Warnings[0], op.Transcript[2].Text)
	assert.Equal(t, []string{report.Warnings[0]}, report.Tables()[0].Notes)
}

func TestRunRejectsUnknownNominalLevel(t *testing.T) {
	r := newRig()
	op := operator.NewScripted("23", "50", "100")
	_, err := New(r.bench, op, testOptions()).Run(context.Background())
	var ie *operator.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "100", ie.Answer)
}

func TestRunAbortsOnUnstableAmplifier(t *testing.T) {
	r := newRig()
	r.scanner.Channels[ChannelAmplifier].Readings = []float64{1, 0.9, 0.6}
	op := operator.NewScripted("23", "50", "94", "-26")
	_, err := New(r.bench, op, testOptions()).Run(context.Background())
	var se *uncertainty.StabilityError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, err.Error(), "Reference Standard measurement 1")
}

func TestRunRejectsEmptyOptions(t *testing.T) {
	o := testOptions()
	o.Devices = nil
	_, err := New(newRig().bench, operator.NewScripted(), o).Run(context.Background())
	assert.Error(t, err)
}
