package scpimeter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/instrument/bus/bustest"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"F +1.00012E+03", 1000.12, false},
		{"1013.25 mbar", 1013.25, false},
		{"THD=0.012%", 0.012, false},
		{"-.5", -0.5, false},
		{"ERR", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.raw)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-9, tt.raw)
	}
}

func TestReadN(t *testing.T) {
	rec := bustest.New("999.8", "1000.2", "1000.0")
	m := New("counter", rec, "READ?")
	got, err := instrument.ReadN(context.Background(), m, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []float64{999.8, 1000.2, 1000.0}, got)
	assert.InDelta(t, 1000.0, instrument.Mean(got), 1e-9)
	assert.Equal(t, []string{"READ?", "READ?", "READ?"}, rec.Writes)
}

func TestTalkOnly(t *testing.T) {
	rec := bustest.New("1013.1")
	m := New("barometer", rec, "")
	v, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1013.1, v)
	assert.Empty(t, rec.Writes)
}
