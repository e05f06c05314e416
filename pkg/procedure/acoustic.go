package procedure

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

// ReadingPause separates repeated readings of a steady acoustic signal.
const ReadingPause = 3 * time.Second

// AcousticTest checks the SLM against the reference calibrator.
type AcousticTest struct {
	Corrected  float64
	Readings   []float64
	Average    float64
	Difference float64
	Verdict    tolerance.Verdict
}

func (*AcousticTest) ID() calibration.Procedure { return calibration.ProcedureAcousticTest }

func (p *AcousticTest) Run(ctx context.Context, s *Session) error {
	cal := s.Config.Calibrator
	lr := s.Config.LinearOperatingRange
	p.Corrected = cal.CorrectedSPL()

	s.enter(calibration.PhaseSetup, "corrected calibrator level %.2f dB", p.Corrected)
	if err := s.wait(ctx, "Please connect customer SLM and EIM reference calibrator."); err != nil {
		return err
	}
	if err := s.wait(ctx, "Please configure the SLM to use A weighting and range %g, %g dB.", lr.Min, lr.Max); err != nil {
		return err
	}

	s.enter(calibration.PhaseMeasure, "three readings")
	readings, err := s.readings(ctx, 3, ReadingPause, "What is the SLM reading (dB)?")
	if err != nil {
		return err
	}
	p.Readings = readings
	p.Average = instrument.Mean(readings)
	p.Difference = p.Average - p.Corrected
	p.Verdict = tolerance.JudgeAcoustic(p.Average, p.Corrected, cal.SPLTolerance)

	s.emit(table("Acoustic Test",
		[]string{"Calibrator", "SLM m1", "SLM m2", "SLM m3", "Average (dB)", "Corrected SPL (dB)", "Difference (dB)", "Result"},
		[]VerdictRow{{
			Label:      cal.Manufacturer + " " + cal.Type + " " + cal.SerialNumber,
			Readings:   readings,
			Value:      p.Average,
			Reference:  p.Corrected,
			Difference: p.Difference,
			Verdict:    p.Verdict,
		}}))

	if p.Verdict == tolerance.Failed {
		logrus.WithFields(logrus.Fields{
			"average":   p.Average,
			"corrected": p.Corrected,
			"tolerance": cal.SPLTolerance,
		}).Warn("acoustic test failed")
		s.Operator.Notify("Acoustic test failed.")
		return s.wait(ctx, "Please adjust SLM and repeat the test.")
	}
	return nil
}

// SelfGeneratedNoise reads the SLM with the microphone replaced by a dummy
// capacitor (BS 7580 Part 1, 5.5.2).
type SelfGeneratedNoise struct {
	Rows []ReadingsRow
}

// NoiseWeightings are the weightings read by the self-generated noise test.
var NoiseWeightings = []string{"A", "C", "Lin Wide"}

func (*SelfGeneratedNoise) ID() calibration.Procedure {
	return calibration.ProcedureSelfGeneratedNoise
}

func (p *SelfGeneratedNoise) Run(ctx context.Context, s *Session) error {
	s.enter(calibration.PhaseSetup, "dummy capacitor")
	if err := s.wait(ctx, "Please disconnect the microphone and connect the dummy transmitter (capacitor)."); err != nil {
		return err
	}

	p.Rows = nil
	for _, w := range NoiseWeightings {
		s.enter(calibration.PhaseMeasure, "%s weighting", w)
		if err := s.wait(ctx, "Please use %s weighting.", w); err != nil {
			return err
		}
		readings, err := s.readings(ctx, 3, ReadingPause, "What is the SLM reading (dB)?")
		if err != nil {
			return err
		}
		p.Rows = append(p.Rows, ReadingsRow{Setting: w, Readings: readings, Mean: instrument.Mean(readings)})
	}

	s.emit(table("Self-generated noise",
		[]string{"Weighting", "SLM m1", "SLM m2", "SLM m3", "Mean (dB)"}, p.Rows))
	return nil
}
