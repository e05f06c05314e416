package procedure

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/tolerance"
	"github.com/charlie0129/slmcal/pkg/tuner"
)

// TimeWeightingBurst is one burst signal of the BS 7580 time weighting test.
type TimeWeightingBurst struct {
	Label     string
	Detector  tolerance.Detector
	Frequency float64
	Cycles    int
}

// TimeWeightingStage is one SLM setting of the BS 7580 time weighting test
// with the bursts applied in it.
type TimeWeightingStage struct {
	Name   string
	Setup  string
	Bursts []TimeWeightingBurst
}

// TimeWeightingStages returns the Fast, Slow and Impulse stages.
func TimeWeightingStages() []TimeWeightingStage {
	return []TimeWeightingStage{
		{
			Name:   "Fast",
			Setup:  "Please configure your SLM to FA weighting.",
			Bursts: []TimeWeightingBurst{{Label: "2000Hz, 200 cycles", Detector: tolerance.DetectorFast, Frequency: 2000, Cycles: 200}},
		},
		{
			Name:   "Slow",
			Setup:  "Please configure your SLM to SA weighting.",
			Bursts: []TimeWeightingBurst{{Label: "2000Hz, 500 cycles", Detector: tolerance.DetectorSlow, Frequency: 2000, Cycles: 500}},
		},
		{
			Name:  "Impulse",
			Setup: "Please configure your SLM to Impulse A weighting.",
			Bursts: []TimeWeightingBurst{
				{Label: "2000Hz, 5 cycles", Detector: tolerance.DetectorImpulse2k, Frequency: 2000, Cycles: 5},
				{Label: "100Hz, 5 cycles", Detector: tolerance.DetectorImpulse100, Frequency: 100, Cycles: 5},
			},
		},
	}
}

// TimeWeighting60651Headroom is how far below the top of the linear
// operating range the continuous level is set.
const TimeWeighting60651Headroom = 4.0

// TimeWeighting60651 checks the F, S and I time weightings with tone bursts
// against a continuous 2 kHz level (BS 7580 Part 1).
type TimeWeighting60651 struct {
	Target   float64
	Settings map[string]tuner.Setting
	Rows     map[string][]VerdictRow
}

func (*TimeWeighting60651) ID() calibration.Procedure {
	return calibration.ProcedureTimeWeighting60651
}

func (p *TimeWeighting60651) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 99); err != nil {
		return err
	}
	p.Target = s.Config.LinearOperatingRange.Max - TimeWeighting60651Headroom
	p.Settings = make(map[string]tuner.Setting)
	p.Rows = make(map[string][]VerdictRow)

	for _, stage := range TimeWeightingStages() {
		title := fmt.Sprintf("Time Weighting (%s)", stage.Name)
		s.enter(calibration.PhaseSetup, "%s", stage.Name)
		if err := s.Operator.Wait(ctx, title, stage.Setup); err != nil {
			return err
		}
		s.enter(calibration.PhaseTune, "2 kHz at %g dB", p.Target)
		setting, err := s.Tuner.Direct(ctx, 2000, p.Target, title)
		if err != nil {
			return err
		}
		p.Settings[stage.Name] = setting
		if err := s.gen().TurnOff(ctx); err != nil {
			return err
		}
		if err := s.Operator.Wait(ctx, title, "Please reset your SLM."); err != nil {
			return err
		}

		var rows []VerdictRow
		for _, b := range stage.Bursts {
			s.enter(calibration.PhaseMeasure, "%s", b.Label)
			row, err := p.measure(ctx, s, title, setting.Voltage, b)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		p.Rows[stage.Name] = rows
		t := table(title, verdictColumns, rows)
		t.Notes = []string{fmt.Sprintf("Continuous SLM %g dB, attenuator %.2f dB", p.Target, setting.Attenuation)}
		s.emit(t)
	}
	return s.reset(ctx, 0)
}

func (p *TimeWeighting60651) measure(ctx context.Context, s *Session, title string, volt float64, b TimeWeightingBurst) (VerdictRow, error) {
	row := VerdictRow{Label: b.Label, Reference: p.Target}
	for i := 0; i < 3; i++ {
		if err := s.gen().StartBurst(ctx, b.Frequency, volt, 0, b.Cycles); err != nil {
			return row, pkgerrors.Wrap(err, "failed to start burst")
		}
		v, err := operator.AskNumber(ctx, s.Operator, title, "What is the SLM reading (dB)?")
		if err != nil {
			return row, err
		}
		if err := s.gen().StopBurst(ctx); err != nil {
			return row, err
		}
		row.Readings = append(row.Readings, v)
		if err := s.Operator.Wait(ctx, title, "Please reset your SLM."); err != nil {
			return row, err
		}
	}
	row.Value = instrument.Mean(row.Readings)
	row.Difference = row.Value - p.Target

	verdict, err := tolerance.JudgeTimeWeighting(s.Config.SLMType, b.Detector, row.Difference)
	if err != nil {
		// Type 3 meters have no impulse limits.
		logrus.WithFields(logrus.Fields{
			"detector": b.Detector,
			"slmType":  s.Config.SLMType,
		}).Warn("no time weighting limits, result not judged")
		verdict = "N/A"
	}
	row.Verdict = verdict
	return row, nil
}

// RMSHeadroom is how far below the least sensitive upper limit the
// continuous 2 kHz level is set.
const RMSHeadroom = 2.0

// RMSBurstCycles is the length of the 2 kHz tone burst used by the RMS
// accuracy and overload test.
const RMSBurstCycles = 11

// RMSAccuracyAndOverload searches the overload point of an 11 cycle 2 kHz
// tone burst, then reads the SLM 1 dB and 4 dB below it (BS 7580 Part 1).
type RMSAccuracyAndOverload struct {
	Initial float64
	Setting tuner.Setting
	Rows    []OverloadRow
}

func (*RMSAccuracyAndOverload) ID() calibration.Procedure {
	return calibration.ProcedureRMSAccuracyAndOverload
}

func (p *RMSAccuracyAndOverload) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 0); err != nil {
		return err
	}
	ls := s.Config.LeastSensitive()
	s.enter(calibration.PhaseSetup, "least sensitive range %s", ls)
	if err := s.wait(ctx, "Please set your Sound Level Meter REF level range (%g, %g) and A weighting and press any key to continue.",
		ls.Upper, ls.Lower); err != nil {
		return err
	}
	if err := s.att().Set(ctx, OverloadStartAttenuation); err != nil {
		return err
	}

	p.Initial = ls.Upper - 1
	target := ls.Upper - RMSHeadroom
	s.enter(calibration.PhaseTune, "2 kHz at %g dB", target)
	setting, err := s.Tuner.Direct(ctx, 2000, target, s.title)
	if err != nil {
		return err
	}
	p.Setting = setting

	start := func(ctx context.Context) error {
		return s.gen().StartBurst(ctx, 2000, setting.Voltage, 0, RMSBurstCycles)
	}
	s.enter(calibration.PhaseSearch, "%d cycle burst", RMSBurstCycles)
	row, err := overloadSearch(ctx, s, "Overload", p.Initial, setting.Attenuation, tuner.Search{
		Before: start,
		After:  s.gen().StopBurst,
	})
	if err != nil {
		return err
	}
	p.Rows = []OverloadRow{row}

	s.enter(calibration.PhaseMeasure, "reduced levels")
	atten := row.OverloadAttenuation
	for _, r := range []struct {
		label string
		by    float64
	}{
		{"Overload -1 dB", 1},
		{"Overload -4 dB", 3},
	} {
		atten = tolerance.Round(atten+r.by, 2)
		if err := s.att().Set(ctx, atten); err != nil {
			return err
		}
		if err := start(ctx); err != nil {
			return pkgerrors.Wrap(err, "failed to start burst")
		}
		reading, err := s.ask(ctx, "What is the current SLM value?")
		if err != nil {
			return err
		}
		if err := s.gen().StopBurst(ctx); err != nil {
			return err
		}
		p.Rows = append(p.Rows, overloadRow(r.label, p.Initial, setting.Attenuation, atten, reading))
	}

	s.emit(table("RMS Accuracy and Overload", overloadColumns, p.Rows))
	return s.reset(ctx, 0)
}

// PeakResponseHeadroom is how far below the reference upper limit the
// 2 kHz level is set.
const PeakResponseHeadroom = 1.0

// PeakResponse compares a rectangular with a sine signal of the same
// amplitude (BS 7580 Part 1).
type PeakResponse struct {
	Setting tuner.Setting
	Sine    float64
	Square  float64
	Row     VerdictRow
}

func (*PeakResponse) ID() calibration.Procedure { return calibration.ProcedurePeakResponse }

func (p *PeakResponse) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 0); err != nil {
		return err
	}
	ref := s.Config.ReferenceLevelRange()
	s.enter(calibration.PhaseSetup, "reference range %s", ref)
	if err := s.wait(ctx, "Please set your Sound Level Meter REF level range (%g, %g) and A weighting and press any key to continue.",
		ref.Upper, ref.Lower); err != nil {
		return err
	}

	aim := ref.Upper - PeakResponseHeadroom
	s.enter(calibration.PhaseTune, "2 kHz at %g dB", aim)
	setting, err := s.Tuner.Direct(ctx, 2000, aim, s.title)
	if err != nil {
		return err
	}
	p.Setting = setting

	s.enter(calibration.PhaseMeasure, "sine and rectangle")
	if p.Sine, err = p.read(ctx, s, instrument.ShapeSine); err != nil {
		return err
	}
	if err := s.wait(ctx, "Please reset your SLM."); err != nil {
		return err
	}
	if p.Square, err = p.read(ctx, s, instrument.ShapeRectangle); err != nil {
		return err
	}

	diff := p.Square - p.Sine
	p.Row = VerdictRow{
		Label:      "Rectangle vs sine",
		Readings:   []float64{p.Sine, p.Square},
		Value:      p.Square,
		Reference:  p.Sine,
		Difference: diff,
		Verdict:    tolerance.JudgePeakResponse(diff),
	}
	t := table("Peak Response", verdictColumns, []VerdictRow{p.Row})
	t.Notes = []string{fmt.Sprintf("2kHz, %g V, attenuator %.2f dB", setting.Voltage, setting.Attenuation)}
	s.emit(t)
	return s.reset(ctx, 0)
}

func (p *PeakResponse) read(ctx context.Context, s *Session, shape instrument.Shape) (float64, error) {
	if err := s.gen().SetWaveform(ctx, shape, 2000, p.Setting.Voltage); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to set %s waveform", shape)
	}
	if err := s.gen().TurnOn(ctx); err != nil {
		return 0, err
	}
	v, err := s.ask(ctx, "What is the SLM reading (dB)?")
	if err != nil {
		return 0, err
	}
	return v, s.gen().TurnOff(ctx)
}

const (
	// TimeAveragingTarget is the continuous Leq level.
	TimeAveragingTarget = 90.0
	// TimeAveragingVoltage is the generator amplitude of both signals.
	TimeAveragingVoltage = 1.0
)

// TimeAveragingRun is one burst sequence integrated by the SLM.
type TimeAveragingRun struct {
	Label    string
	Duration time.Duration
	Limit    func(slmType int) float64
}

// TimeAveragingRuns returns the 60 s and 300 s sequences.
func TimeAveragingRuns() []TimeAveragingRun {
	return []TimeAveragingRun{
		{Label: "Burst 1ms, 60s", Duration: time.Minute, Limit: tolerance.TimeAveragingLimit},
		{Label: "Burst 1ms, 300s", Duration: 5 * time.Minute, Limit: func(int) float64 { return tolerance.TimeAveragingLongLimit }},
	}
}

// TimeAveraging compares the Leq of a continuous 4 kHz tone with the Leq of
// tone burst sequences (BS 7580 Part 1).
type TimeAveraging struct {
	Attenuation float64
	Continuous  float64
	Rows        []VerdictRow
}

func (*TimeAveraging) ID() calibration.Procedure { return calibration.ProcedureTimeAveraging }

func (p *TimeAveraging) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 99); err != nil {
		return err
	}
	s.enter(calibration.PhaseSetup, "Leq")
	if err := s.wait(ctx, "Please configure your SLM to use Leq."); err != nil {
		return err
	}
	if err := s.gen().SetFrequency(ctx, 4000, TimeAveragingVoltage); err != nil {
		return err
	}
	s.enter(calibration.PhaseTune, "4 kHz at %g dB", TimeAveragingTarget)
	atten, err := s.Tuner.Attenuator(ctx, s.title,
		fmt.Sprintf("Please configure the attenuator value so that SLM reads %g dB.", TimeAveragingTarget))
	if err != nil {
		return err
	}
	p.Attenuation = atten
	if err := s.wait(ctx, "Please reset your SLM."); err != nil {
		return err
	}

	s.enter(calibration.PhaseMeasure, "continuous")
	if err := s.gen().SetFrequency(ctx, 4000, TimeAveragingVoltage); err != nil {
		return err
	}
	if p.Continuous, err = s.ask(ctx, "What is the SLM reading (dB)?"); err != nil {
		return err
	}
	if err := s.gen().TurnOff(ctx); err != nil {
		return err
	}
	if err := s.wait(ctx, "Please reset your SLM."); err != nil {
		return err
	}

	p.Rows = nil
	for _, run := range TimeAveragingRuns() {
		s.enter(calibration.PhaseMeasure, "%s", run.Label)
		if err := s.gen().StartBurst(ctx, 2000, TimeAveragingVoltage, 0, 1); err != nil {
			return pkgerrors.Wrap(err, "failed to start burst")
		}
		if err := s.Sleep(ctx, run.Duration); err != nil {
			return err
		}
		if err := s.gen().StopBurst(ctx); err != nil {
			return err
		}
		v, err := s.ask(ctx, "What is the SLM reading (dB)?")
		if err != nil {
			return err
		}
		diff := v - p.Continuous
		p.Rows = append(p.Rows, VerdictRow{
			Label:      run.Label,
			Readings:   []float64{v},
			Value:      v,
			Reference:  p.Continuous,
			Difference: diff,
			Verdict:    tolerance.JudgeTimeAveraging(run.Limit(s.Config.SLMType), diff),
		})
		if err := s.wait(ctx, "Please reset your SLM."); err != nil {
			return err
		}
	}

	t := table("Time Averaging", verdictColumns, p.Rows)
	t.Notes = []string{fmt.Sprintf("Continuous 4kHz, %g V, Leq %g dB, attenuator %.2f dB", TimeAveragingVoltage, p.Continuous, atten)}
	s.emit(t)
	return s.reset(ctx, 0)
}
