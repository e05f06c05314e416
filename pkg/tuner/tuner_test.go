package tuner

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/instrument/fake"
	"github.com/charlie0129/slmcal/pkg/operator"
)

func TestDirect(t *testing.T) {
	g := &fake.Generator{Tuned: 1.25}
	a := &fake.Attenuator{Adjust: []float64{32.4}}
	op := operator.NewScripted()
	tu := New(g, a, op)

	got, err := tu.Direct(context.Background(), 8000, 140, "Linearity")
	require.NoError(t, err)
	assert.Equal(t, Setting{Voltage: 1.25, Attenuation: 32.4}, got)
	assert.Equal(t, []string{"waveform SIN 8000 0.001", "off"}, g.CallLog())
	require.Len(t, op.Transcript, 1)
	assert.Contains(t, op.Transcript[0].Text, "achieve SLM 140 dB")
}

func TestSteppedDescending(t *testing.T) {
	a := &fake.Attenuator{}
	op := operator.NewScripted("n", "n", "y", "n", "y")
	tu := New(&fake.Generator{}, a, op)

	st, err := tu.Stepped(context.Background(), Search{Start: 10.0, Direction: Descending})
	require.NoError(t, err)
	assert.InDelta(t, 9.9, st.Value, 1e-9)
	assert.True(t, st.Fine)
	assert.True(t, st.CorrectionApplied)
	assert.Equal(t, FineStep, st.Step)
	assert.Equal(t, 4, st.Iterations)
	assert.Equal(t, []float64{9.5, 9.0, 9.0, 8.9}, a.History)
	assert.Zero(t, op.Remaining())
}

func TestSteppedAscending(t *testing.T) {
	a := &fake.Attenuator{}
	op := operator.NewScripted("n", "n", "y", "n", "y")
	tu := New(&fake.Generator{}, a, op)

	st, err := tu.Stepped(context.Background(), Search{Start: 10.0, Direction: Ascending})
	require.NoError(t, err)
	assert.InDelta(t, 10.1, st.Value, 1e-9)
	assert.Equal(t, []float64{10.5, 11.0, 11.0, 11.1}, a.History)
}

func TestSteppedCorrectionOnlyOnce(t *testing.T) {
	a := &fake.Attenuator{}
	op := operator.NewScripted("y", "y")
	tu := New(&fake.Generator{}, a, op)

	st, err := tu.Stepped(context.Background(), Search{Start: 20.0})
	require.NoError(t, err)
	assert.InDelta(t, 21.0, st.Value, 1e-9)
	assert.Equal(t, 1, st.Iterations)
}

func TestSteppedHooksAndCancel(t *testing.T) {
	a := &fake.Attenuator{}
	op := operator.NewScripted("n", "n", "n")
	tu := New(&fake.Generator{}, a, op)

	ctx, cancel := context.WithCancel(context.Background())
	var before, after int
	_, err := tu.Stepped(ctx, Search{
		Start:  30,
		Before: func(context.Context) error { before++; return nil },
		After: func(context.Context) error {
			after++
			if after == 2 {
				cancel()
			}
			return nil
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, before)
	assert.Equal(t, 2, after)
	assert.Equal(t, 1, op.Remaining())
}

func TestSteppedOutOfRange(t *testing.T) {
	a := &fake.Attenuator{}
	op := operator.NewScripted("n", "n")
	tu := New(&fake.Generator{}, a, op)
	_, err := tu.Stepped(context.Background(), Search{Start: 0.7})
	assert.Error(t, err)
}

func TestMatchVoltage(t *testing.T) {
	const source = 10.0
	a := &fake.Attenuator{}
	read := func(context.Context) (float64, error) {
		return source * math.Pow(10, -a.Value/20), nil
	}
	tu := New(&fake.Generator{}, a, operator.NewScripted())

	got, err := tu.MatchVoltage(context.Background(), Match{
		Start:     40,
		Reference: source * math.Pow(10, -32.51/20),
		Read:      read,
	})
	require.NoError(t, err)
	assert.InDelta(t, 32.51, got, 0.005)
	assert.Len(t, a.History, 3)
}

func TestMatchVoltageGivesUp(t *testing.T) {
	a := &fake.Attenuator{}
	tu := New(&fake.Generator{}, a, operator.NewScripted())
	_, err := tu.MatchVoltage(context.Background(), Match{
		Start:         40,
		Reference:     1,
		Read:          func(context.Context) (float64, error) { return 2, nil },
		MaxIterations: 3,
	})
	assert.Error(t, err)
}
