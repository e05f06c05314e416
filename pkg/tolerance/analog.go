package tolerance

import (
	"github.com/cwbudde/algo-dsp/dsp/filter/weighting"
	pkgerrors "github.com/pkg/errors"
)

// AnalogSampleRate keeps the bilinear warping of the digital weighting
// filters negligible up to 16 kHz.
const AnalogSampleRate = 1e6

// AnalogWeighting returns the response of the weighting filter at freq,
// normalized to 0 dB at 1 kHz. It is a cross check for the tabulated
// corrections, which remain the reference for classification.
func AnalogWeighting(freq float64, w Weighting) (float64, error) {
	var t weighting.Type
	switch w {
	case WeightingA:
		t = weighting.TypeA
	case WeightingC:
		t = weighting.TypeC
	case WeightingZ:
		t = weighting.TypeZ
	default:
		return 0, pkgerrors.Wrapf(ErrUndefinedWeighting, "%q", string(w))
	}
	if freq <= 0 || freq >= AnalogSampleRate/2 {
		return 0, pkgerrors.Wrapf(ErrUndefinedFrequency, "%g Hz", freq)
	}
	return weighting.New(t, AnalogSampleRate).MagnitudeDB(freq, AnalogSampleRate), nil
}
