package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

// Error reports an invalid or missing calibration setting.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// Range is the linear operating range of the SLM in dB.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// LevelRange is an SLM level range, written [upper, lower] in YAML.
type LevelRange struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}

func (r *LevelRange) UnmarshalYAML(node *yaml.Node) error {
	var pair []float64
	if err := node.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: level range must be [upper, lower], got %d values", node.Line, len(pair))
	}
	r.Upper, r.Lower = pair[0], pair[1]
	return nil
}

func (r LevelRange) MarshalYAML() (any, error) {
	return []float64{r.Upper, r.Lower}, nil
}

func (r LevelRange) String() string {
	return fmt.Sprintf("%.2f - %.2f", r.Upper, r.Lower)
}

// Calibrator describes the reference acoustic calibrator and its
// certificate corrections.
type Calibrator struct {
	Manufacturer         string  `yaml:"manufacturer" json:"manufacturer"`
	Type                 string  `yaml:"type" json:"type"`
	SerialNumber         string  `yaml:"serial_number" json:"serialNumber"`
	SPL                  float64 `yaml:"spl" json:"spl"`
	FreeFieldCorrection  float64 `yaml:"free_field_correction" json:"freeFieldCorrection"`
	WindscreenCorrection float64 `yaml:"windscreen_correction" json:"windscreenCorrection"`
	PressureCorrection   float64 `yaml:"pressure_correction" json:"pressureCorrection"`
	SPLTolerance         float64 `yaml:"spl_tolerance" json:"splTolerance"`
}

// CorrectedSPL is the calibrator level as seen by a free-field SLM.
func (c Calibrator) CorrectedSPL() float64 {
	return c.SPL + c.FreeFieldCorrection + c.WindscreenCorrection + c.PressureCorrection
}

// Calibration is the per-SLM calibration file. It is loaded once and never
// modified while procedures run.
type Calibration struct {
	Standard             calibration.Standard `yaml:"standard" json:"standard"`
	LinearOperatingRange Range                `yaml:"linear_operating_range" json:"linearOperatingRange"`
	// LevelRanges[0] is the reference level range.
	LevelRanges              []LevelRange        `yaml:"level_ranges" json:"levelRanges"`
	LeastSensitiveLevelRange *LevelRange         `yaml:"least_sensitive_level_range,omitempty" json:"leastSensitiveLevelRange,omitempty"`
	Frequencies              []float64           `yaml:"frequencies" json:"frequencies"`
	CaseCorrections          map[float64]float64 `yaml:"case_corrections" json:"caseCorrections"`
	WindshieldCorrections    map[float64]float64 `yaml:"windshield_corrections" json:"windshieldCorrections"`
	Calibrator               Calibrator          `yaml:"calibrator" json:"calibrator"`
	SLMType                  int                 `yaml:"slm_type" json:"slmType"`
	GeneratorFrequency       float64             `yaml:"generator_frequency,omitempty" json:"generatorFrequency,omitempty"`
	GeneratorVoltage         float64             `yaml:"generator_voltage,omitempty" json:"generatorVoltage,omitempty"`
}

// LoadCalibration reads and validates a calibration file. Unknown keys are
// rejected.
func LoadCalibration(path string) (*Calibration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read calibration file %s", path)
	}
	c, err := ParseCalibration(b)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "calibration file %s", path)
	}
	logrus.WithFields(c.LogrusFields()).Debug("calibration loaded")
	return c, nil
}

// ParseCalibration decodes and validates YAML calibration data.
func ParseCalibration(b []byte) (*Calibration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	c := &Calibration{}
	if err := dec.Decode(c); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode calibration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every setting and returns all problems found, each as an
// *Error.
func (c *Calibration) Validate() error {
	var errs []error
	bad := func(key, format string, args ...any) {
		errs = append(errs, &Error{Key: key, Reason: fmt.Sprintf(format, args...)})
	}

	if _, err := c.Standard.Procedures(); err != nil {
		bad("standard", "must be %q or %q, got %q", calibration.Standard60651, calibration.Standard61672_3, c.Standard)
	}
	if c.LinearOperatingRange.Min >= c.LinearOperatingRange.Max {
		bad("linear_operating_range", "min %g must be below max %g", c.LinearOperatingRange.Min, c.LinearOperatingRange.Max)
	}
	if len(c.LevelRanges) == 0 {
		bad("level_ranges", "at least the reference level range is required")
	}
	for i, r := range c.LevelRanges {
		if r.Lower >= r.Upper {
			bad(fmt.Sprintf("level_ranges[%d]", i), "upper %g must be above lower %g", r.Upper, r.Lower)
		}
	}
	if r := c.LeastSensitiveLevelRange; r != nil && r.Lower >= r.Upper {
		bad("least_sensitive_level_range", "upper %g must be above lower %g", r.Upper, r.Lower)
	}
	if len(c.Frequencies) == 0 {
		bad("frequencies", "at least one frequency is required")
	}
	for _, f := range c.Frequencies {
		if _, err := tolerance.Correction(f, tolerance.WeightingA); err != nil {
			bad("frequencies", "%g Hz has no tolerance limits", f)
			continue
		}
		if _, ok := c.CaseCorrections[f]; !ok {
			bad("case_corrections", "missing %g Hz", f)
		}
		if _, ok := c.WindshieldCorrections[f]; !ok {
			bad("windshield_corrections", "missing %g Hz", f)
		}
	}
	if c.SLMType < 0 || c.SLMType > 3 {
		bad("slm_type", "must be 0..3, got %d", c.SLMType)
	}
	if f := c.GeneratorFrequency; f != 0 && f != 1000 {
		bad("generator_frequency", "the reference tone is 1000 Hz, got %g", f)
	}
	if c.GeneratorVoltage < 0 {
		bad("generator_voltage", "must not be negative")
	}
	if c.Calibrator.SPLTolerance < 0 {
		bad("calibrator.spl_tolerance", "must not be negative")
	}
	return errors.Join(errs...)
}

// ReferenceLevelRange returns the first configured level range.
func (c *Calibration) ReferenceLevelRange() LevelRange {
	if len(c.LevelRanges) == 0 {
		return LevelRange{}
	}
	return c.LevelRanges[0]
}

// LeastSensitive returns the least sensitive level range, defaulting to the
// last configured level range.
func (c *Calibration) LeastSensitive() LevelRange {
	if c.LeastSensitiveLevelRange != nil {
		return *c.LeastSensitiveLevelRange
	}
	if len(c.LevelRanges) == 0 {
		return LevelRange{}
	}
	return c.LevelRanges[len(c.LevelRanges)-1]
}

// CaseCorrection returns the case correction at freq.
func (c *Calibration) CaseCorrection(freq float64) (float64, error) {
	v, ok := c.CaseCorrections[freq]
	if !ok {
		return 0, &Error{Key: "case_corrections", Reason: fmt.Sprintf("missing %g Hz", freq)}
	}
	return v, nil
}

// WindshieldCorrection returns the windshield correction at freq.
func (c *Calibration) WindshieldCorrection(freq float64) (float64, error) {
	v, ok := c.WindshieldCorrections[freq]
	if !ok {
		return 0, &Error{Key: "windshield_corrections", Reason: fmt.Sprintf("missing %g Hz", freq)}
	}
	return v, nil
}

func (c *Calibration) LogrusFields() logrus.Fields {
	freqs := append([]float64(nil), c.Frequencies...)
	sort.Float64s(freqs)
	return logrus.Fields{
		"standard":       c.Standard,
		"linearRange":    fmt.Sprintf("%g..%g", c.LinearOperatingRange.Min, c.LinearOperatingRange.Max),
		"levelRanges":    len(c.LevelRanges),
		"frequencies":    freqs,
		"slmType":        c.SLMType,
		"calibrator":     c.Calibrator.Manufacturer + " " + c.Calibrator.Type,
		"calibratorSPL":  c.Calibrator.SPL,
		"leastSensitive": c.LeastSensitive().String(),
	}
}
