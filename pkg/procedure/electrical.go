package procedure

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/tolerance"
	"github.com/charlie0129/slmcal/pkg/tuner"
)

// OverloadStartAttenuation is set before tuning an overload test so the
// search starts from a low signal.
const OverloadStartAttenuation = 20.0

// OverloadIndication finds the overload point of positive and negative
// half cycles on the least sensitive level range (IEC 61672-3 clause 18).
type OverloadIndication struct {
	Initial float64
	Setting tuner.Setting
	Rows    []OverloadRow
}

func (*OverloadIndication) ID() calibration.Procedure {
	return calibration.ProcedureOverloadIndication
}

func (p *OverloadIndication) Run(ctx context.Context, s *Session) error {
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
	s.enter(calibration.PhaseTune, "4 kHz at %g dB", p.Initial)
	setting, err := s.Tuner.Direct(ctx, 4000, p.Initial, s.title)
	if err != nil {
		return err
	}
	p.Setting = setting

	p.Rows = nil
	halves := []struct {
		label string
		emit  func(ctx context.Context, freq, volt float64) error
	}{
		{"Positive half cycle", s.gen().PositiveHalfCycle},
		{"Negative half cycle", s.gen().NegativeHalfCycle},
	}
	for i, h := range halves {
		if i > 0 {
			// Each half cycle is searched from the tuned attenuation.
			if err := s.att().Set(ctx, setting.Attenuation); err != nil {
				return err
			}
		}
		if err := h.emit(ctx, 4000, setting.Voltage/2); err != nil {
			return pkgerrors.Wrapf(err, "failed to emit %s", h.label)
		}
		s.enter(calibration.PhaseSearch, "%s", h.label)
		row, err := overloadSearch(ctx, s, h.label, p.Initial, setting.Attenuation, tuner.Search{})
		if err != nil {
			return err
		}
		p.Rows = append(p.Rows, row)
		if err := s.gen().TurnOff(ctx); err != nil {
			return err
		}
	}

	s.emit(table("Overload Indication", overloadColumns, p.Rows))
	return s.reset(ctx, 0)
}

// overloadSearch runs a descending stepped search from start and reads the
// SLM at the overload point.
func overloadSearch(ctx context.Context, s *Session, label string, initial, start float64, search tuner.Search) (OverloadRow, error) {
	search.Start = start
	search.Direction = tuner.Descending
	search.Title = s.title
	st, err := s.Tuner.Stepped(ctx, search)
	if err != nil {
		return OverloadRow{}, err
	}
	reading, err := s.ask(ctx, "What is the current SLM value?")
	if err != nil {
		return OverloadRow{}, err
	}
	return overloadRow(label, initial, start, st.Value, reading), nil
}

func overloadRow(label string, initial, start, atten, reading float64) OverloadRow {
	diff := reading - initial
	return OverloadRow{
		Signal:              label,
		Initial:             initial,
		Attenuation:         start,
		Reading:             reading,
		OverloadAttenuation: atten,
		Difference:          diff,
		Uncertainty:         tolerance.LinearityUncertainty,
		Class:               tolerance.ClassifyOverload(diff),
	}
}

// PeakCHeadroom is how far below the least sensitive upper limit the
// steady C-weighted level is set.
const PeakCHeadroom = 8.0

// PeakC compares C-weighted peak readings of short signals with the steady
// level (IEC 61672-3 clause 17).
type PeakC struct {
	Target float64
	// Steady holds the LCF readings of the steady 8 kHz and 500 Hz tones.
	Steady   []float64
	Settings []tuner.Setting
	Rows     []BurstRow
}

func (*PeakC) ID() calibration.Procedure { return calibration.ProcedurePeakCSoundLevel }

func (p *PeakC) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 0); err != nil {
		return err
	}
	ls := s.Config.LeastSensitive()
	p.Target = ls.Upper - PeakCHeadroom
	s.enter(calibration.PhaseSetup, "least sensitive range %s", ls)
	if err := s.wait(ctx, "Please set your Sound Level Meter to C weighting, main variable LCF and the least sensitive level range (%g, %g).",
		ls.Upper, ls.Lower); err != nil {
		return err
	}

	p.Steady, p.Settings, p.Rows = nil, nil, nil
	v8k, err := p.steady(ctx, s, 8000)
	if err != nil {
		return err
	}
	row, err := p.measure(ctx, s, tolerance.PeakCOneCycle8k, func(ctx context.Context) error {
		return s.gen().StartBurst(ctx, 8000, v8k, 0, 1)
	})
	if err != nil {
		return err
	}
	p.Rows = append(p.Rows, row)

	v500, err := p.steady(ctx, s, 500)
	if err != nil {
		return err
	}
	for _, c := range []struct {
		check tolerance.PeakCCheck
		emit  func(ctx context.Context, freq, volt float64) error
	}{
		{tolerance.PeakCPositiveHalf500Hz, s.gen().PositiveHalfCycle},
		{tolerance.PeakCNegativeHalf500Hz, s.gen().NegativeHalfCycle},
	} {
		row, err := p.measure(ctx, s, c.check, func(ctx context.Context) error {
			return c.emit(ctx, 500, v500/2)
		})
		if err != nil {
			return err
		}
		p.Rows = append(p.Rows, row)
	}

	t := table("Peak C sound level", peakCColumns, p.Rows)
	t.Notes = []string{
		fmt.Sprintf("Steady 8kHz: target %g dB, LCF %g dB, attenuator %.2f dB", p.Target, p.Steady[0], p.Settings[0].Attenuation),
		fmt.Sprintf("Steady 500Hz: target %g dB, LCF %g dB, attenuator %.2f dB", p.Target, p.Steady[1], p.Settings[1].Attenuation),
	}
	s.emit(t)
	return s.reset(ctx, 0)
}

// steady tunes a steady tone to the target and records its LCF reading.
func (p *PeakC) steady(ctx context.Context, s *Session, freq float64) (float64, error) {
	s.enter(calibration.PhaseTune, "steady %g Hz at %g dB", freq, p.Target)
	setting, err := s.Tuner.Direct(ctx, freq, p.Target, s.title)
	if err != nil {
		return 0, err
	}
	p.Settings = append(p.Settings, setting)
	if err := s.gen().SetFrequency(ctx, freq, setting.Voltage); err != nil {
		return 0, err
	}
	lcf, err := s.ask(ctx, "What is the SLM LCF value (dB)?")
	if err != nil {
		return 0, err
	}
	p.Steady = append(p.Steady, lcf)
	if err := s.gen().TurnOff(ctx); err != nil {
		return 0, err
	}
	return setting.Voltage, s.wait(ctx, "Please reset your SLM.")
}

func (p *PeakC) measure(ctx context.Context, s *Session, check tolerance.PeakCCheck, emit func(context.Context) error) (BurstRow, error) {
	s.enter(calibration.PhaseMeasure, "%s", check.Label)
	row := BurstRow{
		Label:       check.Label,
		Offset:      check.Offset,
		Expected:    p.Target + check.Offset,
		Uncertainty: tolerance.LinearityUncertainty,
	}
	for i := 0; i < 3; i++ {
		if err := emit(ctx); err != nil {
			return row, pkgerrors.Wrapf(err, "failed to emit %s", check.Label)
		}
		if err := s.gen().StopBurst(ctx); err != nil {
			return row, err
		}
		if err := s.gen().TurnOff(ctx); err != nil {
			return row, err
		}
		v, err := s.ask(ctx, "What is the SLM LCpeakMax value (dB)?")
		if err != nil {
			return row, err
		}
		row.Readings = append(row.Readings, v)
		if err := s.wait(ctx, "Please reset your SLM."); err != nil {
			return row, err
		}
	}
	row.Average = instrument.Mean(row.Readings)
	row.Deviation = row.Average - row.Expected
	row.Class = tolerance.ClassifyPeakC(check, row.Deviation)
	return row, nil
}

// ToneburstHeadroom is how far below the reference upper limit the steady
// 4 kHz level is set.
const ToneburstHeadroom = 3.0

// Toneburst measures the response to 4 kHz tone bursts of decreasing length
// with F, S and Leq settings (IEC 61672-3 clause 16).
type Toneburst struct {
	Target  float64
	Setting tuner.Setting
	Rows    map[string][]BurstRow
}

func (*Toneburst) ID() calibration.Procedure { return calibration.ProcedureToneburstResponse }

func (p *Toneburst) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 0); err != nil {
		return err
	}
	ref := s.Config.ReferenceLevelRange()
	s.enter(calibration.PhaseSetup, "reference range %s", ref)
	if err := s.wait(ctx, "Please set your Sound Level Meter REF level range (%g, %g) and A weighting and press any key to continue.",
		ref.Upper, ref.Lower); err != nil {
		return err
	}

	p.Target = ref.Upper - ToneburstHeadroom
	s.enter(calibration.PhaseTune, "4 kHz at %g dB", p.Target)
	setting, err := s.Tuner.Direct(ctx, 4000, p.Target, s.title)
	if err != nil {
		return err
	}
	p.Setting = setting

	p.Rows = make(map[string][]BurstRow)
	for _, run := range tolerance.ToneburstRuns() {
		s.enter(calibration.PhaseMeasure, "%s", run.Setting)
		var rows []BurstRow
		for _, opt := range run.Options {
			row := BurstRow{
				Delay:       opt.Delay,
				Cycles:      opt.Cycles,
				Offset:      opt.Offset,
				Expected:    p.Target + opt.Offset,
				Uncertainty: tolerance.LinearityUncertainty,
			}
			for i := 0; i < 3; i++ {
				if err := s.wait(ctx, "Please use SLM setting %s and reset instrument.", run.Setting); err != nil {
					return err
				}
				if err := s.burst(ctx, 4000, setting.Voltage, opt.Delay, opt.Cycles); err != nil {
					return err
				}
				v, err := s.ask(ctx, "What is the SLM reading (dB)?")
				if err != nil {
					return err
				}
				row.Readings = append(row.Readings, v)
			}
			row.Average = instrument.Mean(row.Readings)
			row.Deviation = row.Average - row.Expected
			row.Class = tolerance.ClassifyToneburst(opt, row.Deviation)
			rows = append(rows, row)
		}
		p.Rows[run.Setting] = rows
		s.emit(table("Toneburst "+run.Setting, toneburstColumns, rows))
	}
	return s.reset(ctx, 0)
}
