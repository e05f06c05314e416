package tolerance

import (
	"math"
)

const (
	// FrequencyWeightingBudget is the standard uncertainty budget added to
	// every frequency weighting deviation.
	FrequencyWeightingBudget = 0.21
	// LinearityUncertainty is the fixed uncertainty of level linearity and
	// related single-reading tests.
	LinearityUncertainty = 0.2

	linearityClass1 = 1.1
	linearityClass2 = 1.4
)

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// ClassifyFrequencyWeighting widens deviation by budget, keeping its sign
// (zero counts as positive), and returns the widened value together with the
// best class whose limits at freq contain it.
func ClassifyFrequencyWeighting(freq, deviation, budget float64) (float64, Class, error) {
	adjusted := deviation + budget
	if deviation < 0 {
		adjusted = deviation - budget
	}

	c1, err := Limits(freq, Class1)
	if err != nil {
		return adjusted, Fail, err
	}
	c2, err := Limits(freq, Class2)
	if err != nil {
		return adjusted, Fail, err
	}

	switch {
	case c1.Contains(adjusted):
		return adjusted, Class1, nil
	case c2.Contains(adjusted):
		return adjusted, Class2, nil
	default:
		return adjusted, Fail, nil
	}
}

// ClassifyLinearity classifies |deviation| + uncertainty against the
// 1.1 dB / 1.4 dB linearity limits.
func ClassifyLinearity(deviation, uncertainty float64) Class {
	total := math.Abs(deviation) + uncertainty
	switch {
	case total <= linearityClass1:
		return Class1
	case total <= linearityClass2:
		return Class2
	default:
		return Fail
	}
}
