package uncertainty

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttenuatorTerms(t *testing.T) {
	tests := []struct {
		atten   float64
		u, e    float64
		wantErr bool
	}{
		{atten: 5.2, u: 0.01, e: 0.004},
		{atten: 15, u: 0.02, e: 0.008},
		{atten: 29.99, u: 0.03, e: 0.008},
		{atten: 32.51, u: 0.04, e: 0.009},
		{atten: 59, u: 0.06, e: 0.009},
		{atten: 61, wantErr: true},
	}
	for _, tt := range tests {
		u, err := AttenuatorUncertainty(tt.atten)
		if tt.wantErr {
			assert.Error(t, err, tt.atten)
			e, err := AttenuatorError(tt.atten)
			require.NoError(t, err)
			assert.InDelta(t, 0.010, e, 1e-12)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.u, u, 1e-12, tt.atten)
		e, err := AttenuatorError(tt.atten)
		require.NoError(t, err)
		assert.InDelta(t, tt.e, e, 1e-12, tt.atten)
	}

	_, err := AttenuatorError(75)
	assert.Error(t, err)
}

func TestCombined(t *testing.T) {
	b, err := NewBudget(32.51)
	require.NoError(t, err)

	sq := func(v, d float64) float64 { return (v / d) * (v / d) }
	s3 := math.Sqrt(3)
	want := math.Sqrt(sq(b.IVu, 2) + sq(b.Au, 2) + sq(b.Mu, 2) +
		sq(b.IVe, s3) + sq(b.Ae, s3) + sq(0.038, s3) + sq(0.050, s3) + sq(0.005, s3) +
		sq(0.01, s3) + sq(0.02, s3) + sq(0.02, s3) + sq(0.005, s3))
	assert.InDelta(t, want, b.Combined(), 0.0005)
	assert.Equal(t, math.Round(b.Combined()*1000)/1000, b.Combined())
}

func TestCalculate(t *testing.T) {
	r, err := Calculate([]Measurement{
		{Attenuation: 32.0, SPL: 94.0, Frequency: 999},
		{Attenuation: 33.0, SPL: 94.2, Frequency: 1001},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, r.TypeA, 1e-9)
	assert.InDelta(t, 2.0, r.Frequency, 1e-9)
	assert.InDelta(t, 0.08, r.THD, 1e-12)
	assert.InDelta(t, r.Budget.Combined()*2, r.Total, 1e-12)

	_, err = Calculate(nil)
	assert.Error(t, err)
}

func TestStability(t *testing.T) {
	assert.NoError(t, CheckStability([]float64{1.0, 0.9, 0.8}))
	err := CheckStability([]float64{1.0, 0.9, 0.6})
	var se *StabilityError
	require.ErrorAs(t, err, &se)
	assert.Len(t, se.Values, 3)

	err = CheckStability([]float64{0, 0, 0})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []float64{0, 0, 0}, se.Values)
	assert.Error(t, CheckStability([]float64{0, 0.5}))
}

func TestFluctuation(t *testing.T) {
	f := Fluctuation([]float64{1, 1, 1, 2})
	assert.InDelta(t, 20*math.Log10(2/1.25), f, 1e-9)

	f = Fluctuation([]float64{1, 1, 1, 0.1})
	assert.InDelta(t, 20*math.Log10(0.1/0.775), f, 1e-9)
}

func TestUncorrectedSPL(t *testing.T) {
	// 1 V into 0 dB with a 0 dB re 1 V/Pa microphone is 1 Pa.
	assert.InDelta(t, 93.979, UncorrectedSPL(1, 0, 0), 1e-9)
	assert.InDelta(t, 93.979-32.5+26.49, UncorrectedSPL(1, 32.5, -26.49), 1e-9)
}

func TestRangeCheck(t *testing.T) {
	assert.Empty(t, TemperatureRange.Check(23))
	assert.Empty(t, PressureRange.Check(1003))
	assert.Contains(t, HumidityRange.Check(80), "outside preferred range of 50+-20")
	assert.NotEmpty(t, PolarisingVoltageRange.Check(197.9))
}
