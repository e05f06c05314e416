package procedure

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/tolerance"
	"github.com/charlie0129/slmcal/pkg/tuner"
)

// LinearityTargets returns the nominal levels of the level linearity test:
// from ReferenceSPL up to hi in 5 dB steps, then 1 dB steps over the top
// 4 dB; and from ReferenceSPL down to lo in 5 dB steps, then 1 dB steps
// over the bottom 5 dB.
func LinearityTargets(lo, hi float64) (upper, lower []float64) {
	ref := int(ReferenceSPL)
	top, bottom := int(hi), int(lo)
	for v := ref; v < top-4; v += 5 {
		upper = append(upper, float64(v))
	}
	for v := top - 4; v <= top; v++ {
		upper = append(upper, float64(v))
	}
	for v := ref; v > bottom+5; v -= 5 {
		lower = append(lower, float64(v))
	}
	for v := bottom + 5; v >= bottom; v-- {
		lower = append(lower, float64(v))
	}
	return upper, lower
}

// Linearity checks the level linearity on the reference level range, then
// compares the additional level ranges with each other (IEC 61672-3 clauses
// 14 and 15).
type Linearity struct {
	Setting     tuner.Setting
	Rows        []LinearityRow
	Ranges      []LevelRangeRow
	UpperRanges []LevelRangeRow
	// RangeAttenuation is the attenuation used for UpperRanges.
	RangeAttenuation float64
}

func (*Linearity) ID() calibration.Procedure { return calibration.ProcedureLinearity }

func (p *Linearity) Run(ctx context.Context, s *Session) error {
	if err := s.reset(ctx, 0); err != nil {
		return err
	}
	lr := s.Config.LinearOperatingRange
	upper, lower := LinearityTargets(lr.Min, lr.Max)
	logrus.WithFields(logrus.Fields{
		"upper": upper,
		"lower": lower,
	}).Debug("linearity targets")

	s.enter(calibration.PhaseSetup, "linear operating range %g..%g dB", lr.Min, lr.Max)
	if err := s.wait(ctx, "Please configure SLM to LAF weighting at reference level range [%g, %g].", lr.Min, lr.Max); err != nil {
		return err
	}
	s.enter(calibration.PhaseTune, "8 kHz at %g dB", lr.Max)
	setting, err := s.Tuner.Direct(ctx, 8000, lr.Max, s.title)
	if err != nil {
		return err
	}
	p.Setting = setting
	if err := s.gen().TurnOn(ctx); err != nil {
		return err
	}

	s.enter(calibration.PhaseMeasure, "%d upper and %d lower levels", len(upper), len(lower))
	p.Rows = nil
	if err := p.walk(ctx, s, upper, stepDown); err != nil {
		return err
	}
	if err := p.walk(ctx, s, lower, stepUp); err != nil {
		return err
	}

	columns := linearityColumns
	if s.Config.Standard == calibration.Standard60651 {
		columns = append(append([]string(nil), columns...), "Result")
	}
	t := table("Linearity Test", columns, p.Rows)
	t.Notes = []string{"Deviation is (nominal - 94) - (nominal - 94) and is always 0 dB."}
	s.emit(t)

	if len(s.Config.LevelRanges) > 1 {
		if err := p.levelRanges(ctx, s); err != nil {
			return err
		}
	}
	return s.reset(ctx, 0)
}

// stepDown raises the signal for the next higher nominal level.
func stepDown(atten float64) (float64, bool) {
	switch {
	case atten > 5:
		return atten - 5, true
	case atten > 1:
		return atten - 1, true
	}
	return atten, false
}

// stepUp lowers the signal for the next lower nominal level.
func stepUp(atten float64) (float64, bool) {
	switch {
	case atten < 95:
		return atten + 5, true
	case atten < 99:
		return atten + 1, true
	}
	return atten, false
}

func (p *Linearity) walk(ctx context.Context, s *Session, targets []float64, advance func(float64) (float64, bool)) error {
	with60651 := s.Config.Standard == calibration.Standard60651
	for _, nominal := range targets {
		atten, err := s.Tuner.Attenuator(ctx, s.title, fmt.Sprintf("Please tune the attenuator until SLM reads %g dB.", nominal))
		if err != nil {
			return err
		}
		// The attenuator cannot go below 0 dB, so the level was not reached.
		if atten == 0 {
			logrus.WithField("nominal", nominal).Warn("attenuator at 0 dB, skipping level")
			continue
		}
		diffRef := nominal - ReferenceSPL
		nomDiff := nominal - ReferenceSPL
		deviation := diffRef - nomDiff
		voltage, err := s.Station.Voltmeter.ReadVoltage(ctx)
		if err != nil {
			return pkgerrors.Wrap(err, "failed to read generator voltage")
		}
		r := LinearityRow{
			Nominal:     nominal,
			Attenuation: atten,
			DiffRef:     diffRef,
			NomDiff:     nomDiff,
			Deviation:   deviation,
			Uncertainty: tolerance.LinearityUncertainty,
			Voltage:     voltage,
			Class:       tolerance.ClassifyLinearity(deviation, tolerance.LinearityUncertainty),
		}
		if with60651 {
			r.Verdict = tolerance.VerdictOf(r.Class)
		}
		p.Rows = append(p.Rows, r)

		if next, ok := advance(atten); ok {
			if err := s.att().Set(ctx, next); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Linearity) levelRanges(ctx context.Context, s *Session) error {
	lr := s.Config.LinearOperatingRange
	extra := s.Config.LevelRanges[1:]

	s.enter(calibration.PhaseTune, "1 kHz at %g dB", lr.Max)
	setting, err := s.Tuner.Direct(ctx, 1000, lr.Max, s.title)
	if err != nil {
		return err
	}
	if err := s.gen().TurnOn(ctx); err != nil {
		return err
	}

	s.enter(calibration.PhaseLevelSet, "%d additional level ranges", len(extra))
	p.Ranges = nil
	ref := &rangeReference{}
	for _, r := range extra {
		if err := s.wait(ctx, "Please configure SLM to A weighting at reference level range [%g, %g].", r.Upper, r.Lower); err != nil {
			return err
		}
		if err := s.wait(ctx, "Please set attenuator value to %.2f", setting.Attenuation); err != nil {
			return err
		}
		row, err := ref.row(ctx, s, r)
		if err != nil {
			return err
		}
		p.Ranges = append(p.Ranges, row)
	}
	s.emit(table("Level ranges", levelRangeColumns, p.Ranges))

	last := extra[len(extra)-1]
	if err := s.gen().SetFrequency(ctx, 1000, setting.Voltage); err != nil {
		return err
	}
	if err := s.gen().TurnOn(ctx); err != nil {
		return err
	}
	atten, err := s.Tuner.Attenuator(ctx, s.title,
		fmt.Sprintf("Please configure the attenuator so that SLM reads %g dB (upper limit -5)", last.Upper-5))
	if err != nil {
		return err
	}
	p.RangeAttenuation = atten

	p.UpperRanges = nil
	ref = &rangeReference{}
	for _, r := range extra {
		if err := s.wait(ctx, "Please configure SLM to A weighting at reference level range [%g, %g].", r.Upper, r.Lower); err != nil {
			return err
		}
		row, err := ref.row(ctx, s, r)
		if err != nil {
			return err
		}
		p.UpperRanges = append(p.UpperRanges, row)
	}
	t := table("Level ranges (upper limit -5 dB)", levelRangeColumns, p.UpperRanges)
	t.Notes = []string{fmt.Sprintf("Attenuator value: %.2f dB", atten)}
	s.emit(t)
	return nil
}

// rangeReference holds the first level range reading, the expected value
// of the following ranges.
type rangeReference struct {
	value float64
	set   bool
}

func (ref *rangeReference) row(ctx context.Context, s *Session, r config.LevelRange) (LevelRangeRow, error) {
	reading, err := s.ask(ctx, "What is the SLM value?")
	if err != nil {
		return LevelRangeRow{}, err
	}
	if !ref.set {
		ref.value, ref.set = reading, true
	}
	deviation := ref.value - reading
	return LevelRangeRow{
		Range:       r,
		Expected:    ref.value,
		Reading:     reading,
		Deviation:   deviation,
		Uncertainty: tolerance.LinearityUncertainty,
		Class:       tolerance.ClassifyLinearity(deviation, tolerance.LinearityUncertainty),
	}, nil
}
