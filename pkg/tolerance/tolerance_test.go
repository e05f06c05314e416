package tolerance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrection(t *testing.T) {
	tests := []struct {
		name    string
		freq    float64
		w       Weighting
		want    float64
		wantErr error
	}{
		{"4k A", 4000, WeightingA, 1.0, nil},
		{"31.5 C", 31.5, WeightingC, -3.0, nil},
		{"16k C", 16000, WeightingC, -8.5, nil},
		{"125 Z", 125, WeightingZ, 0, nil},
		{"undefined frequency", 3150, WeightingA, 0, ErrUndefinedFrequency},
		{"undefined weighting", 1000, Weighting("B"), 0, ErrUndefinedWeighting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Correction(tt.freq, tt.w)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimitsClass2IsWider(t *testing.T) {
	for _, f := range Frequencies() {
		c1, err := Limits(f, Class1)
		require.NoError(t, err)
		c2, err := Limits(f, Class2)
		require.NoError(t, err)
		assert.LessOrEqual(t, c2.Min, c1.Min, "freq %g", f)
		assert.GreaterOrEqual(t, c2.Max, c1.Max, "freq %g", f)
	}

	c2, err := Limits(12500, Class2)
	require.NoError(t, err)
	assert.True(t, math.IsInf(c2.Min, -1))
}

func TestClassifyFrequencyWeightingMonotonic(t *testing.T) {
	for _, f := range Frequencies() {
		prevPos, prevNeg := Class1, Class1
		for i := 0; i <= 3000; i++ {
			d := float64(i) / 100
			_, pos, err := ClassifyFrequencyWeighting(f, d, FrequencyWeightingBudget)
			require.NoError(t, err)
			_, neg, err := ClassifyFrequencyWeighting(f, -d, FrequencyWeightingBudget)
			require.NoError(t, err)
			if pos < prevPos || neg < prevNeg {
				t.Fatalf("class improved at freq %g deviation %g", f, d)
			}
			prevPos, prevNeg = pos, neg
		}
	}
}

func TestClassifyFrequencyWeightingOnTarget(t *testing.T) {
	corr, err := Correction(1000, WeightingA)
	require.NoError(t, err)
	expected := 95.0 + corr
	deviation := Round(95.0-expected+0+0, 2)

	adjusted, class, err := ClassifyFrequencyWeighting(1000, deviation, FrequencyWeightingBudget)
	require.NoError(t, err)
	assert.InDelta(t, 0.21, adjusted, 1e-9)
	assert.Equal(t, Class1, class)
}

func TestClassifyFrequencyWeightingSign(t *testing.T) {
	adjusted, class, err := ClassifyFrequencyWeighting(8000, -3.0, FrequencyWeightingBudget)
	require.NoError(t, err)
	assert.InDelta(t, -3.21, adjusted, 1e-9)
	assert.Equal(t, Class2, class)

	_, class, err = ClassifyFrequencyWeighting(1000, 1.5, FrequencyWeightingBudget)
	require.NoError(t, err)
	assert.Equal(t, Fail, class)

	_, _, err = ClassifyFrequencyWeighting(100, 0, FrequencyWeightingBudget)
	require.ErrorIs(t, err, ErrUndefinedFrequency)
}

func TestClassifyLinearity(t *testing.T) {
	assert.Equal(t, Class1, ClassifyLinearity(0.5, LinearityUncertainty))
	assert.Equal(t, Class1, ClassifyLinearity(-0.5, LinearityUncertainty))
	assert.Equal(t, Class2, ClassifyLinearity(1.0, LinearityUncertainty))
	assert.Equal(t, Fail, ClassifyLinearity(1.3, LinearityUncertainty))
	assert.Equal(t, Fail, ClassifyLinearity(-1.3, LinearityUncertainty))
}

func TestTablesAreCopies(t *testing.T) {
	runs := ToneburstRuns()
	runs[0].Options[0].Offset = 100
	runs[1].Setting = "changed"
	fresh := ToneburstRuns()
	assert.Equal(t, -1.0, fresh[0].Options[0].Offset)
	assert.Equal(t, "Slow (LAS MAX)", fresh[1].Setting)
	assert.Len(t, fresh[1].Options, 2)

	freqs := Frequencies()
	freqs[0] = 1
	assert.Equal(t, 31.5, Frequencies()[0])
	v, err := Correction(31.5, WeightingA)
	require.NoError(t, err)
	assert.Equal(t, -39.4, v)
}

func TestElectricalChecks(t *testing.T) {
	assert.Equal(t, Class1, ClassifyOverload(1.8))
	assert.Equal(t, Class2, ClassifyOverload(-2.3))
	assert.Equal(t, Class1, ClassifyPeakC(PeakCOneCycle8k, 1.39))
	assert.Equal(t, Class2, ClassifyPeakC(PeakCOneCycle8k, 1.4))
	assert.Equal(t, Class2, ClassifyPeakC(PeakCNegativeHalf500Hz, -2.4))

	opt := ToneburstRuns()[0].Options[1]
	assert.Equal(t, Class1, ClassifyToneburst(opt, 1.3))
	assert.Equal(t, Class2, ClassifyToneburst(opt, 1.31))

	assert.Equal(t, Pass, JudgePeakResponse(-1.9))
	assert.Equal(t, Failed, JudgePeakResponse(2.0))
	assert.Equal(t, Pass, JudgeAcoustic(93.6, 93.65, 0.1))
	assert.Equal(t, Failed, JudgeAcoustic(93.4, 93.65, 0.1))
	assert.Equal(t, Pass, JudgeTimeAveraging(TimeAveragingLimit(1), -1.0))
	assert.Equal(t, Failed, JudgeTimeAveraging(TimeAveragingLimit(0), 0.6))
	assert.Equal(t, Pass, VerdictOf(Class2))
	assert.Equal(t, Failed, VerdictOf(Fail))
}

func TestJudgeTimeWeighting(t *testing.T) {
	tests := []struct {
		name    string
		slmType int
		d       Detector
		diff    float64
		want    Verdict
		wantErr bool
	}{
		{"fast type 1 on nominal", 1, DetectorFast, 1.0, Pass, false},
		{"fast type 2 low", 2, DetectorFast, -0.9, Pass, false},
		{"fast type 0 out", 0, DetectorFast, 1.6, Failed, false},
		{"slow type 3", 3, DetectorSlow, 6.0, Pass, false},
		{"impulse 2k type 2", 2, DetectorImpulse2k, 11.7, Pass, false},
		{"impulse 100 type 0 out", 0, DetectorImpulse100, 4.0, Failed, false},
		{"impulse type 3 undefined", 3, DetectorImpulse2k, 8.8, Failed, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JudgeTimeWeighting(tt.slmType, tt.d, tt.diff)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalogWeightingTracksTable(t *testing.T) {
	for _, f := range []float64{125, 1000, 4000} {
		nominal, err := Correction(f, WeightingA)
		require.NoError(t, err)
		got, err := AnalogWeighting(f, WeightingA)
		require.NoError(t, err)
		assert.InDelta(t, nominal, got, 0.3, "freq %g", f)
	}

	_, err := AnalogWeighting(1000, Weighting("B"))
	require.ErrorIs(t, err, ErrUndefinedWeighting)
}
