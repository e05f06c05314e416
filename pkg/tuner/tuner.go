// Package tuner brings the generator/attenuator chain to a target SLM
// indication, either by letting the operator tune it directly, by a guided
// yes/no stepped search, or automatically against a reference voltage.
package tuner

import (
	"context"
	"fmt"
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

const (
	// TuningVoltage is the generator amplitude handed to the operator before
	// a direct tune.
	TuningVoltage = 0.001

	CoarseStep = 0.5
	FineStep   = 0.1
	// Correction is applied once, against the search direction, when the
	// fine search confirms the overload.
	Correction = 1.0

	DefaultQuestion = "Do we have an overload in the Sound Level Meter? (y / n)"
)

// Tuner drives a station's generator and attenuator with operator help.
type Tuner struct {
	gen      instrument.Generator
	att      instrument.Attenuator
	operator operator.Channel
}

func New(gen instrument.Generator, att instrument.Attenuator, op operator.Channel) *Tuner {
	return &Tuner{gen: gen, att: att, operator: op}
}

// Setting is a generator amplitude and attenuation that produce a target
// indication.
type Setting struct {
	Voltage     float64 `json:"voltage"`
	Attenuation float64 `json:"attenuation"`
}

// Direct sets the generator to freq at TuningVoltage, lets the operator tune
// the generator voltage and then the attenuator until the SLM indicates
// target, reads both back and turns the generator off.
func (t *Tuner) Direct(ctx context.Context, freq, target float64, title string) (Setting, error) {
	log := logrus.WithFields(logrus.Fields{
		"freq":   freq,
		"target": target,
	})
	if err := t.gen.SetFrequency(ctx, freq, TuningVoltage); err != nil {
		return Setting{}, pkgerrors.Wrap(err, "failed to prepare generator for tuning")
	}
	msg := fmt.Sprintf("Please tune first Waveform Generator voltage and then the attenuator to achieve SLM %g dB.", target)
	if err := t.operator.Wait(ctx, title, msg); err != nil {
		return Setting{}, err
	}
	volt, err := t.gen.Voltage(ctx)
	if err != nil {
		return Setting{}, pkgerrors.Wrap(err, "failed to read tuned generator voltage")
	}
	atten, err := t.att.Get(ctx)
	if err != nil {
		return Setting{}, pkgerrors.Wrap(err, "failed to read tuned attenuation")
	}
	if err := t.gen.TurnOff(ctx); err != nil {
		return Setting{}, err
	}
	log.WithFields(logrus.Fields{
		"voltage":     volt,
		"attenuation": atten,
	}).Info("generator tuned")
	return Setting{Voltage: volt, Attenuation: atten}, nil
}

// Attenuator asks the operator to adjust the attenuator only and returns
// the resulting attenuation.
func (t *Tuner) Attenuator(ctx context.Context, title, text string) (float64, error) {
	if err := t.operator.Wait(ctx, title, text); err != nil {
		return 0, err
	}
	atten, err := t.att.Get(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read attenuation")
	}
	logrus.WithField("attenuation", atten).Debug("attenuator tuned by operator")
	return atten, nil
}

// Direction is the way a stepped search moves the attenuation.
type Direction int

const (
	// Descending lowers the attenuation, raising the signal, until overload.
	Descending Direction = iota
	// Ascending raises the attenuation, lowering the signal.
	Ascending
)

func (d Direction) String() string {
	if d == Ascending {
		return "ascending"
	}
	return "descending"
}

func (d Direction) sign() float64 {
	if d == Ascending {
		return 1
	}
	return -1
}

// Search configures a stepped search.
type Search struct {
	Start     float64
	Direction Direction
	Title     string
	// Question defaults to DefaultQuestion.
	Question string
	// Before runs before every question, e.g. to emit a tone burst.
	Before func(ctx context.Context) error
	// After runs after every answer.
	After func(ctx context.Context) error
}

// State is the progress of one stepped search.
type State struct {
	Value             float64   `json:"value"`
	Step              float64   `json:"step"`
	Direction         Direction `json:"direction"`
	Fine              bool      `json:"fine"`
	CorrectionApplied bool      `json:"correctionApplied"`
	Iterations        int       `json:"iterations"`
}

// Stepped runs the overload search. Every "no" moves the attenuation one
// step in the search direction and applies it. The first "yes" switches from
// the coarse to the fine step without moving. The second "yes" ends the
// search after moving Correction dB back, once. The final value is returned
// but not applied to the attenuator. The search has no iteration cap;
// cancellation is checked between iterations.
func (t *Tuner) Stepped(ctx context.Context, s Search) (State, error) {
	q := s.Question
	if q == "" {
		q = DefaultQuestion
	}
	st := State{Value: s.Start, Step: CoarseStep, Direction: s.Direction}
	log := logrus.WithFields(logrus.Fields{
		"start":     s.Start,
		"direction": s.Direction,
	})

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if s.Before != nil {
			if err := s.Before(ctx); err != nil {
				return st, err
			}
		}
		yes, err := operator.AskYesNo(ctx, t.operator, s.Title, q)
		if err != nil {
			return st, err
		}
		if s.After != nil {
			if err := s.After(ctx); err != nil {
				return st, err
			}
		}

		if yes {
			if st.Fine {
				if !st.CorrectionApplied {
					st.Value = tolerance.Round(st.Value-s.Direction.sign()*Correction, 2)
					st.CorrectionApplied = true
				}
				log.WithField("attenuation", st.Value).Info("overload found")
				return st, nil
			}
			st.Fine = true
			st.Step = FineStep
			log.WithField("attenuation", st.Value).Info("switching to fine step")
		} else {
			st.Value = tolerance.Round(st.Value+s.Direction.sign()*st.Step, 2)
		}

		if err := t.att.Set(ctx, st.Value); err != nil {
			return st, pkgerrors.Wrap(err, "stepped search")
		}
		st.Iterations++
		log.WithFields(logrus.Fields{
			"attenuation": st.Value,
			"step":        st.Step,
		}).Debug("stepped search iteration")
	}
}

// Match configures an automatic voltage match.
type Match struct {
	Start float64
	// Reference is the voltage to reproduce, in volts.
	Reference float64
	// Read returns the voltage produced by the current attenuation.
	Read func(ctx context.Context) (float64, error)
	// Tolerance in dB, default 0.005.
	Tolerance float64
	// Consecutive in-tolerance readings required, default 2.
	Consecutive int
	// Settle is waited after every correction.
	Settle time.Duration
	// MaxIterations bounds the loop when positive.
	MaxIterations int
}

// MatchVoltage adjusts the attenuation by the dB error between Reference
// and the measured voltage until the error stays within Tolerance for
// Consecutive readings in a row.
func (t *Tuner) MatchVoltage(ctx context.Context, m Match) (float64, error) {
	if m.Tolerance <= 0 {
		m.Tolerance = 0.005
	}
	if m.Consecutive <= 0 {
		m.Consecutive = 2
	}
	if m.Reference <= 0 {
		return 0, pkgerrors.Errorf("invalid reference voltage %g", m.Reference)
	}

	atten := m.Start
	good := 0
	for i := 0; good < m.Consecutive; i++ {
		if m.MaxIterations > 0 && i >= m.MaxIterations {
			return atten, pkgerrors.Errorf("voltage match did not converge after %d iterations", i)
		}
		if err := ctx.Err(); err != nil {
			return atten, err
		}
		if err := t.att.Set(ctx, atten); err != nil {
			return atten, pkgerrors.Wrap(err, "voltage match")
		}
		v, err := m.Read(ctx)
		if err != nil {
			return atten, err
		}
		if v <= 0 {
			return atten, pkgerrors.Errorf("non-positive insert voltage %g", v)
		}
		dbErr := 20 * math.Log10(m.Reference/v)
		entry := logrus.WithFields(logrus.Fields{
			"attenuation": atten,
			"error":       dbErr,
		})
		if math.Abs(dbErr) <= m.Tolerance {
			good++
			entry.Debug("voltage matched")
			continue
		}
		good = 0
		entry.Debug("voltage mismatch")
		atten -= dbErr
		if err := instrument.Sleep(ctx, m.Settle); err != nil {
			return atten, err
		}
	}
	return atten, nil
}
