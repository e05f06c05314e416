package procedure

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

// FrequencyWeightingHeadroom is how far below the top of the linear
// operating range the frequency weighting reference level is set.
const FrequencyWeightingHeadroom = 45.0

// FrequencyWeighting measures the A, C and Z responses at every configured
// frequency against a reference level set at 1 kHz.
type FrequencyWeighting struct {
	Target      float64
	Attenuation float64
	Rows        map[tolerance.Weighting][]FrequencyWeightingRow
}

func (*FrequencyWeighting) ID() calibration.Procedure {
	return calibration.ProcedureFrequencyWeighting
}

func (p *FrequencyWeighting) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 99); err != nil {
		return err
	}
	freq, volt := s.referenceTone()
	if err := s.gen().SetFrequency(ctx, freq, volt); err != nil {
		return pkgerrors.Wrap(err, "failed to set reference tone")
	}
	if err := s.gen().TurnOn(ctx); err != nil {
		return err
	}

	p.Target = s.Config.LinearOperatingRange.Max - FrequencyWeightingHeadroom
	s.enter(calibration.PhaseTune, "reference level %g dB", p.Target)
	atten, err := s.Tuner.Attenuator(ctx, s.title,
		fmt.Sprintf("Please set your Sound Level Meter to A weighting and tune the attenuator until SLM value is %g.", p.Target))
	if err != nil {
		return err
	}
	p.Attenuation = atten
	logrus.WithFields(logrus.Fields{
		"freq":        freq,
		"voltage":     volt,
		"attenuation": atten,
		"target":      p.Target,
	}).Info("frequency weighting reference set")

	ref := s.Config.ReferenceLevelRange()
	p.Rows = make(map[tolerance.Weighting][]FrequencyWeightingRow)
	with60651 := s.Config.Standard == calibration.Standard60651
	for _, w := range tolerance.Weightings() {
		s.enter(calibration.PhaseMeasure, "%s weighting", w)
		if err := s.wait(ctx, "Please set your Sound Level Meter REF level range (%g, %g) and %s weighting and press any key to continue.",
			ref.Upper, ref.Lower, w); err != nil {
			return err
		}
		var rows []FrequencyWeightingRow
		for _, f := range s.Config.Frequencies {
			r, err := p.measure(ctx, s, w, f, volt)
			if err != nil {
				return err
			}
			if with60651 {
				r.Verdict = tolerance.VerdictOf(r.Class)
			}
			rows = append(rows, r)
		}
		p.Rows[w] = rows

		columns := frequencyWeightingColumns
		if with60651 {
			columns = append(append([]string(nil), columns...), "Result")
		}
		s.emit(table(fmt.Sprintf("Frequency Weighting %s Results", w), columns, rows))
	}
	return s.reset(ctx, 0)
}

func (p *FrequencyWeighting) measure(ctx context.Context, s *Session, w tolerance.Weighting, freq, volt float64) (FrequencyWeightingRow, error) {
	r := FrequencyWeightingRow{Weighting: w, Frequency: freq, Attenuation: p.Attenuation}
	var err error
	if r.Case, err = s.Config.CaseCorrection(freq); err != nil {
		return r, err
	}
	if r.Windshield, err = s.Config.WindshieldCorrection(freq); err != nil {
		return r, err
	}
	correction, err := tolerance.Correction(freq, w)
	if err != nil {
		return r, err
	}

	if err := s.gen().SetFrequency(ctx, freq, volt); err != nil {
		return r, pkgerrors.Wrapf(err, "failed to set %g Hz", freq)
	}
	if r.Reading, err = s.ask(ctx, "Frequency = %g. What is the SLM reading (dB)?", freq); err != nil {
		return r, err
	}

	r.Overall = r.Reading + r.Case + r.Windshield
	r.Expected = p.Target + correction
	raw := tolerance.Round(r.Reading-r.Expected+r.Windshield+r.Case, 2)
	r.Deviation, r.Class, err = tolerance.ClassifyFrequencyWeighting(freq, raw, tolerance.FrequencyWeightingBudget)
	return r, err
}

// FreqTimeWeighting compares the F and S time weightings of every frequency
// weighting at a steady 94 dB, 1 kHz (IEC 61672-3 clause 13).
type FreqTimeWeighting struct {
	Attenuation float64
	Fast        []TimeWeightingRow
	Slow        []TimeWeightingRow
}

// FreqTimeWeightingVoltage is the generator amplitude of the steady tone.
const FreqTimeWeightingVoltage = 2.0

func (*FreqTimeWeighting) ID() calibration.Procedure {
	return calibration.ProcedureFreqTimeWeighting
}

func (p *FreqTimeWeighting) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 99); err != nil {
		return err
	}
	if err := s.gen().SetFrequency(ctx, 1000, FreqTimeWeightingVoltage); err != nil {
		return pkgerrors.Wrap(err, "failed to set reference tone")
	}

	s.enter(calibration.PhaseTune, "steady %g dB", ReferenceSPL)
	atten, err := s.Tuner.Attenuator(ctx, s.title,
		fmt.Sprintf("Please configure the attenuator value so that SLM reads %g dB.", ReferenceSPL))
	if err != nil {
		return err
	}
	p.Attenuation = atten

	columns := []string{"Time weighting", "Expected Value (dB)", "SLM reading value (dB)", "Deviation (dB)", "Uncertainty (dB)", "Class"}
	for _, tw := range []string{"F", "S"} {
		s.enter(calibration.PhaseMeasure, "time weighting %s", tw)
		var rows []TimeWeightingRow
		for _, w := range tolerance.Weightings() {
			reading, err := s.ask(ctx, "Please set your SLM to %s%s weighting and write your SLM value.", w, tw)
			if err != nil {
				return err
			}
			deviation := ReferenceSPL - reading
			rows = append(rows, TimeWeightingRow{
				Setting:     string(w) + tw,
				Expected:    ReferenceSPL,
				Reading:     reading,
				Deviation:   deviation,
				Uncertainty: tolerance.LinearityUncertainty,
				Class:       tolerance.ClassifyLinearity(deviation, tolerance.LinearityUncertainty),
			})
		}
		if tw == "F" {
			p.Fast = rows
		} else {
			p.Slow = rows
		}
		t := table("Time weighting "+tw, columns, rows)
		t.Notes = []string{fmt.Sprintf("Attenuator value: %.2f dB", atten)}
		s.emit(t)
	}
	return s.reset(ctx, 0)
}
