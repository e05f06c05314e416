package agilent33250a

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/instrument/bus/bustest"
)

func TestSetFrequency(t *testing.T) {
	rec := bustest.New()
	g := New(rec)
	require.NoError(t, g.SetFrequency(context.Background(), 1000, 0.5))
	assert.Equal(t, []string{"BURS:STAT OFF", "APPL:SIN 1000, 0.5"}, rec.Writes)
}

func TestSetWaveformRectangle(t *testing.T) {
	rec := bustest.New()
	g := New(rec)
	require.NoError(t, g.SetWaveform(context.Background(), instrument.ShapeRectangle, 2000, 1.2))
	assert.Equal(t, "APPL:SQU 2000, 1.2", rec.Writes[1])
}

func TestStartBurst(t *testing.T) {
	rec := bustest.New()
	g := New(rec)
	require.NoError(t, g.StartBurst(context.Background(), 4000, 2, 0.2, 800))
	assert.Contains(t, rec.Writes, "BURS:NCYC 800")
	assert.Contains(t, rec.Writes, "BURS:INT:PER 0.4")
	assert.Equal(t, "OUTP ON", rec.Writes[len(rec.Writes)-1])

	assert.Error(t, g.StartBurst(context.Background(), 4000, 2, 0, 0))
}

func TestHalfCycleData(t *testing.T) {
	pos := strings.Split(HalfCycleData(1), ",")
	neg := strings.Split(HalfCycleData(-1), ",")
	require.Len(t, pos, halfCyclePoints)
	assert.Equal(t, "1.0000", pos[halfCyclePoints/4])
	assert.Equal(t, "-1.0000", neg[halfCyclePoints/4])
	assert.Equal(t, "0.0000", pos[halfCyclePoints-1])
}

func TestVoltage(t *testing.T) {
	rec := bustest.New("+1.234000000000E+00\n")
	g := New(rec)
	v, err := g.Voltage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.234, v)
}
