package keithley2001

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/instrument/bus/bustest"
)

func TestParseReading(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"-38.3204E-03NVDC,+73597.273513SECS,+39170RDNG#,00EXTCHAN", -0.0383204, false},
		{"+1.00012E+00NVAC", 1.00012, false},
		{"0.5", 0.5, false},
		{"OVERFLOW", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseReading(tt.raw)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-12)
	}
}

func TestReadVoltage(t *testing.T) {
	rec := bustest.New("+2.00000E+00NVAC,+1SECS")
	k := New(rec)
	v, err := k.ReadVoltage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)
	assert.Equal(t, []string{":READ?"}, rec.Writes)
}

func TestReadVoltageAverageFollowsMode(t *testing.T) {
	rec := bustest.New("", "+0.7NVDC")
	k := New(rec)
	ctx := context.Background()

	v, err := k.ReadVoltageAverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	require.NoError(t, k.SetMeasurementMode(ctx, ModeDC))
	v, err = k.ReadVoltageAverage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.7, v)

	assert.Equal(t, []string{
		":volt:ac:nplc 10", ":read?",
		":conf:volt:dc",
		":volt:dc:nplc 10", ":read?",
	}, rec.Writes)
}

func TestScan(t *testing.T) {
	rec := bustest.New("+200.0123456NVDC", "+199.98NVDC")
	k := New(rec)
	got, err := k.Scan(context.Background(), 4, "VOLT:DC", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{200.01235, 199.98}, got)
	assert.Equal(t, ":rout:scan:int:func (@4), 'VOLT:DC'", rec.Writes[3])
	assert.Equal(t, ":rout:CLOSE (@4)", rec.Writes[len(rec.Writes)-1])

	_, err = k.Scan(context.Background(), 11, "VOLT:DC", 1, 0)
	assert.Error(t, err)
}
