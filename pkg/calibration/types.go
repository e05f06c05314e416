package calibration

import (
	"fmt"
	"time"
)

// Standard selects the family of procedures a run may execute.
type Standard string

const (
	Standard60651   Standard = "60651"
	Standard61672_3 Standard = "61672-3"
)

// Procedure identifies a test procedure.
type Procedure string

const (
	ProcedureAcousticTest           Procedure = "acoustic-test"
	ProcedureSelfGeneratedNoise     Procedure = "self-generated-noise"
	ProcedureFrequencyWeighting     Procedure = "frequency-weighting"
	ProcedureLinearity              Procedure = "linearity"
	ProcedureFreqTimeWeighting      Procedure = "freq-time-weighting"
	ProcedureOverloadIndication     Procedure = "overload-indication"
	ProcedurePeakCSoundLevel        Procedure = "peak-c-sound-level"
	ProcedureToneburstResponse      Procedure = "toneburst-response"
	ProcedureTimeWeighting60651     Procedure = "time-weighting-60651"
	ProcedureRMSAccuracyAndOverload Procedure = "rms-accuracy-and-overload"
	ProcedurePeakResponse           Procedure = "peak-response"
	ProcedureTimeAveraging          Procedure = "time-averaging"

	// ProcedureMicrophoneSPL is the microphone pressure calibration. It is
	// not part of any SLM standard and runs on its own.
	ProcedureMicrophoneSPL Procedure = "microphone-spl"
)

// Procedures returns the procedures available for a standard, in the order
// they are offered to the operator and executed.
func (s Standard) Procedures() ([]Procedure, error) {
	switch s {
	case Standard61672_3:
		return []Procedure{
			ProcedureAcousticTest,
			ProcedureSelfGeneratedNoise,
			ProcedureFrequencyWeighting,
			ProcedureLinearity,
			ProcedureFreqTimeWeighting,
			ProcedureOverloadIndication,
			ProcedurePeakCSoundLevel,
			ProcedureToneburstResponse,
		}, nil
	case Standard60651:
		return []Procedure{
			ProcedureAcousticTest,
			ProcedureSelfGeneratedNoise,
			ProcedureFrequencyWeighting,
			ProcedureLinearity,
			ProcedureTimeWeighting60651,
			ProcedureRMSAccuracyAndOverload,
			ProcedurePeakResponse,
			ProcedureTimeAveraging,
		}, nil
	default:
		return nil, fmt.Errorf("unknown standard %q", string(s))
	}
}

// Phase is a named step of a running procedure.
type Phase string

const (
	PhaseIdle      Phase = "Idle"
	PhaseSetup     Phase = "Setup"
	PhaseTune      Phase = "Tune"
	PhaseMeasure   Phase = "Measure"
	PhaseSearch    Phase = "OverloadSearch"
	PhaseLevelSet  Phase = "LevelRanges"
	PhaseReset     Phase = "ResetInstruments"
	PhaseDone      Phase = "Done"
	PhaseError     Phase = "Error"
	PhaseCancelled Phase = "Cancelled"
)

// Prompt is a question waiting for the operator.
type Prompt struct {
	ID    int64  `json:"id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
	// Acknowledge is set when any answer continues the procedure.
	Acknowledge bool      `json:"acknowledge"`
	AskedAt     time.Time `json:"askedAt"`
}

// Status is a synthesized view of a run exposed via HTTP.
type Status struct {
	RunID      string      `json:"runId"`
	Standard   Standard    `json:"standard"`
	Procedure  Procedure   `json:"procedure,omitempty"`
	Phase      Phase       `json:"phase"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt,omitempty"`
	Completed  []Procedure `json:"completed"`
	Pending    []Procedure `json:"pending"`
	Prompt     *Prompt     `json:"prompt,omitempty"`
	Tables     int         `json:"tables"`
	LastError  string      `json:"lastError,omitempty"`
}

// Table is the structured result of one part of a procedure. Rows are kept
// in the order they were measured.
type Table struct {
	Procedure Procedure  `json:"procedure"`
	Title     string     `json:"title"`
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Notes     []string   `json:"notes,omitempty"`
}
