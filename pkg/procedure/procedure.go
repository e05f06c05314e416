// Package procedure implements the electrical and acoustic test procedures
// of an SLM calibration. Every procedure is a fixed sequence of phases that
// drive the station, ask the operator for readings and classify the results
// into tables.
package procedure

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/tuner"
)

// ReferenceSPL is the fixed reference point of the level linearity checks.
const ReferenceSPL = 94.0

// Procedure is one test procedure. Implementations keep their typed rows
// after Run for inspection.
type Procedure interface {
	ID() calibration.Procedure
	Run(ctx context.Context, s *Session) error
}

// New returns a fresh procedure for id.
func New(id calibration.Procedure) (Procedure, error) {
	switch id {
	case calibration.ProcedureAcousticTest:
		return &AcousticTest{}, nil
	case calibration.ProcedureSelfGeneratedNoise:
		return &SelfGeneratedNoise{}, nil
	case calibration.ProcedureFrequencyWeighting:
		return &FrequencyWeighting{}, nil
	case calibration.ProcedureLinearity:
		return &Linearity{}, nil
	case calibration.ProcedureFreqTimeWeighting:
		return &FreqTimeWeighting{}, nil
	case calibration.ProcedureOverloadIndication:
		return &OverloadIndication{}, nil
	case calibration.ProcedurePeakCSoundLevel:
		return &PeakC{}, nil
	case calibration.ProcedureToneburstResponse:
		return &Toneburst{}, nil
	case calibration.ProcedureTimeWeighting60651:
		return &TimeWeighting60651{}, nil
	case calibration.ProcedureRMSAccuracyAndOverload:
		return &RMSAccuracyAndOverload{}, nil
	case calibration.ProcedurePeakResponse:
		return &PeakResponse{}, nil
	case calibration.ProcedureTimeAveraging:
		return &TimeAveraging{}, nil
	}
	return nil, fmt.Errorf("unknown procedure %q", string(id))
}

var titles = map[calibration.Procedure]string{
	calibration.ProcedureAcousticTest:           "Acoustic Test",
	calibration.ProcedureSelfGeneratedNoise:     "Self-generated noise test (5.5.2 BS7580, Part 1)",
	calibration.ProcedureFrequencyWeighting:     "Frequency Weighting",
	calibration.ProcedureLinearity:              "Linearity (61672-3 Electrical Tests Par.14, 15)",
	calibration.ProcedureFreqTimeWeighting:      "Frequency and Time Weighting (61672-3 Electrical Tests Par.13)",
	calibration.ProcedureOverloadIndication:     "Overload Indication (61672-3 Electrical Tests Par.18)",
	calibration.ProcedurePeakCSoundLevel:        "Peak C sound Level (61672-3 Electrical Tests Par.17)",
	calibration.ProcedureToneburstResponse:      "Toneburst Response, ISO61672-3 Electrical Tests Par. 16",
	calibration.ProcedureTimeWeighting60651:     "Time Weighting (BS 7580)",
	calibration.ProcedureRMSAccuracyAndOverload: "RMS Accuracy and Overload",
	calibration.ProcedurePeakResponse:           "Peak Response",
	calibration.ProcedureTimeAveraging:          "Time Averaging",
}

// Title returns the dialog title of a procedure.
func Title(id calibration.Procedure) string {
	if t, ok := titles[id]; ok {
		return t
	}
	return string(id)
}

// Session is what a procedure works with while it runs: the read-only
// calibration, the station, the operator and the tables produced so far.
type Session struct {
	Config   *config.Calibration
	Station  *instrument.Station
	Operator operator.Channel
	Tuner    *tuner.Tuner
	// Sleep waits between readings; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	observer  Observer
	procedure calibration.Procedure
	title     string
	phase     calibration.Phase
	tables    []calibration.Table
}

// NewSession binds a procedure run to its collaborators. observer may be nil.
func NewSession(cfg *config.Calibration, st *instrument.Station, op operator.Channel, observer Observer) *Session {
	return &Session{
		Config:   cfg,
		Station:  st,
		Operator: op,
		Tuner:    tuner.New(st.Generator, st.Attenuator, op),
		Sleep:    instrument.Sleep,
		observer: observer,
		phase:    calibration.PhaseIdle,
	}
}

func (s *Session) begin(id calibration.Procedure) {
	s.procedure = id
	s.title = Title(id)
	s.phase = calibration.PhaseIdle
	s.tables = nil
}

// Tables returns the tables emitted by the current procedure.
func (s *Session) Tables() []calibration.Table {
	return append([]calibration.Table(nil), s.tables...)
}

// Phase returns the current phase.
func (s *Session) Phase() calibration.Phase {
	return s.phase
}

func (s *Session) enter(to calibration.Phase, format string, args ...any) {
	from := s.phase
	s.phase = to
	msg := fmt.Sprintf(format, args...)
	logrus.WithFields(logrus.Fields{
		"procedure": s.procedure,
		"from":      from,
		"to":        to,
	}).Debug(msg)
	if s.observer != nil {
		s.observer.Phase(s.procedure, from, to, msg)
	}
}

func (s *Session) emit(t calibration.Table) {
	t.Procedure = s.procedure
	s.tables = append(s.tables, t)
	logrus.WithFields(logrus.Fields{
		"procedure": s.procedure,
		"title":     t.Title,
		"rows":      len(t.Rows),
	}).Info("result table ready")
	if s.observer != nil {
		s.observer.Table(t)
	}
}

func (s *Session) wait(ctx context.Context, format string, args ...any) error {
	return s.Operator.Wait(ctx, s.title, fmt.Sprintf(format, args...))
}

func (s *Session) ask(ctx context.Context, format string, args ...any) (float64, error) {
	return operator.AskNumber(ctx, s.Operator, s.title, fmt.Sprintf(format, args...))
}

// readings asks the same question n times, pausing after every answer.
func (s *Session) readings(ctx context.Context, n int, pause time.Duration, question string) ([]float64, error) {
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v, err := s.ask(ctx, "%s", question)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if err := s.Sleep(ctx, pause); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// reset turns the generator off and sets the attenuator to db.
func (s *Session) reset(ctx context.Context, db float64) error {
	s.enter(calibration.PhaseReset, "generator off, attenuator %.2f dB", db)
	return s.Station.Reset(ctx, db)
}

func (s *Session) gen() instrument.Generator { return s.Station.Generator }

func (s *Session) att() instrument.Attenuator { return s.Station.Attenuator }

// ReferenceFrequency is the tone the frequency weighting reference level is
// set at. Expected readings are offset from it by the weighting correction,
// which is 0 dB only at 1 kHz.
const ReferenceFrequency = 1000.0

// referenceTone is the steady tone used to set up the frequency weighting
// reference level. Only the amplitude is configurable.
func (s *Session) referenceTone() (freq, volt float64) {
	volt = 0.5
	if s.Config.GeneratorVoltage > 0 {
		volt = s.Config.GeneratorVoltage
	}
	return ReferenceFrequency, volt
}

// burst emits one tone burst and stops the generator.
func (s *Session) burst(ctx context.Context, freq, volt, delay float64, count int) error {
	if err := s.gen().StartBurst(ctx, freq, volt, delay, count); err != nil {
		return pkgerrors.Wrap(err, "failed to start burst")
	}
	if err := s.gen().StopBurst(ctx); err != nil {
		return pkgerrors.Wrap(err, "failed to stop burst")
	}
	return s.gen().TurnOff(ctx)
}
