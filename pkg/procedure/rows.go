package procedure

import (
	"strconv"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

func f2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func g(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

type row interface {
	cells() []string
}

func table[R row](title string, columns []string, rows []R) calibration.Table {
	t := calibration.Table{Title: title, Columns: columns, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.cells())
	}
	return t
}

// FrequencyWeightingRow is one frequency of one weighting.
type FrequencyWeightingRow struct {
	Weighting   tolerance.Weighting `json:"weighting"`
	Frequency   float64             `json:"frequency"`
	Attenuation float64             `json:"attenuation"`
	Reading     float64             `json:"reading"`
	Windshield  float64             `json:"windshield"`
	Case        float64             `json:"case"`
	Overall     float64             `json:"overall"`
	Expected    float64             `json:"expected"`
	// Deviation already includes the uncertainty budget.
	Deviation float64         `json:"deviation"`
	Class     tolerance.Class `json:"class"`
	// Verdict is only reported for 60651.
	Verdict tolerance.Verdict `json:"verdict,omitempty"`
}

var frequencyWeightingColumns = []string{
	"Frequency (Hz)", "Attn (dB)", "Slm reading (dB)", "Windshield corr (dB)", "Case corr (dB)",
	"Overall response (dB)", "Expected (dB)", "Deviation (dB)", "Class",
}

func (r FrequencyWeightingRow) cells() []string {
	c := []string{
		strconv.FormatFloat(r.Frequency, 'f', 1, 64), f2(r.Attenuation), f2(r.Reading), f2(r.Windshield),
		f2(r.Case), f2(r.Overall), f2(r.Expected), f2(r.Deviation), r.Class.String(),
	}
	if r.Verdict != "" {
		c = append(c, string(r.Verdict))
	}
	return c
}

// LinearityRow is one nominal level of the level linearity test.
type LinearityRow struct {
	Nominal     float64           `json:"nominal"`
	Attenuation float64           `json:"attenuation"`
	DiffRef     float64           `json:"diffRef"`
	NomDiff     float64           `json:"nomDiff"`
	Deviation   float64           `json:"deviation"`
	Uncertainty float64           `json:"uncertainty"`
	Voltage     float64           `json:"voltage"`
	Class       tolerance.Class   `json:"class"`
	Verdict     tolerance.Verdict `json:"verdict,omitempty"`
}

var linearityColumns = []string{
	"Nominal SPL (dB)", "Attn Setting (dB)", "Diff re RefSpl (dB)", "Nom Diff (dB)",
	"Deviation (dB)", "Uncertainty (dB)", "Voltage (V)", "Class",
}

func (r LinearityRow) cells() []string {
	c := []string{
		strconv.FormatFloat(r.Nominal, 'f', 1, 64), f2(r.Attenuation), f2(r.DiffRef), f2(r.NomDiff),
		f2(r.Deviation), f2(r.Uncertainty), strconv.FormatFloat(r.Voltage, 'f', 4, 64), r.Class.String(),
	}
	if r.Verdict != "" {
		c = append(c, string(r.Verdict))
	}
	return c
}

// LevelRangeRow compares one additional level range with the first.
type LevelRangeRow struct {
	Range       config.LevelRange `json:"range"`
	Expected    float64           `json:"expected"`
	Reading     float64           `json:"reading"`
	Deviation   float64           `json:"deviation"`
	Uncertainty float64           `json:"uncertainty"`
	Class       tolerance.Class   `json:"class"`
}

var levelRangeColumns = []string{
	"SLM range setting (dB)", "Expected value (dB)", "SLM Reading value (dB)", "Deviation (dB)", "Uncertainty (dB)", "Class",
}

func (r LevelRangeRow) cells() []string {
	return []string{r.Range.String(), f2(r.Expected), f2(r.Reading), f2(r.Deviation), f2(r.Uncertainty), r.Class.String()}
}

// TimeWeightingRow is one weighting read at a steady 94 dB.
type TimeWeightingRow struct {
	Setting     string          `json:"setting"`
	Expected    float64         `json:"expected"`
	Reading     float64         `json:"reading"`
	Deviation   float64         `json:"deviation"`
	Uncertainty float64         `json:"uncertainty"`
	Class       tolerance.Class `json:"class"`
}

func (r TimeWeightingRow) cells() []string {
	return []string{r.Setting, f2(r.Expected), f2(r.Reading), f2(r.Deviation), f2(r.Uncertainty), r.Class.String()}
}

// OverloadRow is the result of one overload search or one reduced signal
// reading after it.
type OverloadRow struct {
	Signal              string          `json:"signal"`
	Initial             float64         `json:"initial"`
	Attenuation         float64         `json:"attenuation"`
	Reading             float64         `json:"reading"`
	OverloadAttenuation float64         `json:"overloadAttenuation"`
	Difference          float64         `json:"difference"`
	Uncertainty         float64         `json:"uncertainty"`
	Class               tolerance.Class `json:"class"`
}

var overloadColumns = []string{
	"Signal", "Initial SLM (dB)", "Atten (dB)", "Overload SLM (dB)", "Atten (dB)", "Diff SLM (dB)", "Uncertainty (dB)", "Class",
}

func (r OverloadRow) cells() []string {
	return []string{
		r.Signal, f2(r.Initial), f2(r.Attenuation), f2(r.Reading), f2(r.OverloadAttenuation),
		f2(r.Difference), f2(r.Uncertainty), r.Class.String(),
	}
}

// BurstRow is a check averaged over three operator readings.
type BurstRow struct {
	Label       string          `json:"label"`
	Delay       float64         `json:"delay,omitempty"`
	Cycles      int             `json:"cycles,omitempty"`
	Offset      float64         `json:"offset"`
	Expected    float64         `json:"expected"`
	Readings    []float64       `json:"readings"`
	Average     float64         `json:"average"`
	Deviation   float64         `json:"deviation"`
	Uncertainty float64         `json:"uncertainty"`
	Class       tolerance.Class `json:"class"`
}

var peakCColumns = []string{
	"Peak C Response", "LCpeak-LC (dB)", "Expected (dB)", "SLM m1", "SLM m2", "SLM m3", "SLM avg (dB)",
	"Deviation (dB)", "Uncertainty (dB)", "Class",
}

var toneburstColumns = []string{
	"Burst Delay (ms)", "Burst Cycles (N)", "LAFmax-LA (dB)", "Expected (dB)", "SLM m1", "SLM m2", "SLM m3",
	"SLM avg (dB)", "Deviation (dB)", "Unc (dB)", "Class",
}

func (r BurstRow) cells() []string {
	var c []string
	if r.Label != "" {
		c = append(c, r.Label)
	} else {
		c = append(c, g(tolerance.Round(r.Delay*1000, 3)), strconv.Itoa(r.Cycles))
	}
	c = append(c, g(r.Offset), f2(r.Expected))
	for _, v := range r.Readings {
		c = append(c, f2(v))
	}
	return append(c, f2(r.Average), f2(r.Deviation), f2(r.Uncertainty), r.Class.String())
}

// ReadingsRow is a setting read three times and averaged.
type ReadingsRow struct {
	Setting  string    `json:"setting"`
	Readings []float64 `json:"readings"`
	Mean     float64   `json:"mean"`
}

func (r ReadingsRow) cells() []string {
	c := []string{r.Setting}
	for _, v := range r.Readings {
		c = append(c, f2(v))
	}
	return append(c, f2(r.Mean))
}

// VerdictRow is a BS 7580 style measurement with a PASS/FAIL outcome.
type VerdictRow struct {
	Label      string            `json:"label"`
	Readings   []float64         `json:"readings"`
	Value      float64           `json:"value"`
	Reference  float64           `json:"reference"`
	Difference float64           `json:"difference"`
	Verdict    tolerance.Verdict `json:"verdict"`
}

func (r VerdictRow) cells() []string {
	c := []string{r.Label}
	for _, v := range r.Readings {
		c = append(c, f2(v))
	}
	for i := len(r.Readings); i < 3; i++ {
		c = append(c, "")
	}
	return append(c, f2(r.Value), f2(r.Reference), f2(r.Difference), string(r.Verdict))
}

var verdictColumns = []string{"Signal", "SLM m1", "SLM m2", "SLM m3", "SLM (dB)", "Reference (dB)", "Difference (dB)", "Result"}
