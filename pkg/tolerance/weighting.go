package tolerance

import (
	"errors"
	"math"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrUndefinedFrequency is returned for a frequency outside the tables.
	ErrUndefinedFrequency = errors.New("frequency not defined in tolerance tables")
	// ErrUndefinedWeighting is returned for a weighting other than A, C or Z.
	ErrUndefinedWeighting = errors.New("frequency weighting not defined in tolerance tables")
)

// Weighting is a frequency weighting of the sound level meter.
type Weighting string

const (
	WeightingA Weighting = "A"
	WeightingC Weighting = "C"
	WeightingZ Weighting = "Z"
)

// Weightings lists the weightings tested by the frequency weighting procedure.
func Weightings() []Weighting {
	return []Weighting{WeightingA, WeightingC, WeightingZ}
}

// ParseWeighting accepts "a", "C", ... and returns the canonical weighting.
func ParseWeighting(s string) (Weighting, error) {
	w := Weighting(strings.ToUpper(strings.TrimSpace(s)))
	switch w {
	case WeightingA, WeightingC, WeightingZ:
		return w, nil
	}
	return "", pkgerrors.Wrapf(ErrUndefinedWeighting, "%q", s)
}

// Class is the accuracy class a reading qualifies for.
type Class int

const (
	Class1 Class = 1
	Class2 Class = 2
	// Fail keeps the numeric code used on printed calibration sheets.
	Fail Class = 666
)

func (c Class) String() string {
	switch c {
	case Class1:
		return "1"
	case Class2:
		return "2"
	case Fail:
		return "666"
	}
	return "unknown"
}

// Bounds is an inclusive deviation interval in dB. Min may be -Inf.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether Min <= d <= Max.
func (b Bounds) Contains(d float64) bool {
	return b.Min <= d && d <= b.Max
}

// IEC 61672-1:2002 Table 2, relative to 1 kHz.
var weightingCorrections = map[float64]map[Weighting]float64{
	1000.0:  {WeightingA: 0.0, WeightingC: 0.0, WeightingZ: 0.0},
	2000.0:  {WeightingA: 1.2, WeightingC: -0.2, WeightingZ: 0.0},
	4000.0:  {WeightingA: 1.0, WeightingC: -0.8, WeightingZ: 0.0},
	8000.0:  {WeightingA: -1.1, WeightingC: -3.0, WeightingZ: 0.0},
	12500.0: {WeightingA: -4.3, WeightingC: -6.2, WeightingZ: 0.0},
	16000.0: {WeightingA: -6.6, WeightingC: -8.5, WeightingZ: 0.0},
	31.5:    {WeightingA: -39.4, WeightingC: -3.0, WeightingZ: 0.0},
	63.0:    {WeightingA: -26.2, WeightingC: -0.8, WeightingZ: 0.0},
	125.0:   {WeightingA: -16.1, WeightingC: -0.2, WeightingZ: 0.0},
	250.0:   {WeightingA: -8.6, WeightingC: 0.0, WeightingZ: 0.0},
	500.0:   {WeightingA: -3.2, WeightingC: 0.0, WeightingZ: 0.0},
}

var frequencyLimits = map[float64]map[Class]Bounds{
	1000.0:  {Class1: {-1.1, 1.1}, Class2: {-1.4, 1.4}},
	2000.0:  {Class1: {-1.6, 1.6}, Class2: {-2.6, 2.6}},
	4000.0:  {Class1: {-1.6, 1.6}, Class2: {-3.6, 3.6}},
	8000.0:  {Class1: {-3.1, 2.1}, Class2: {-5.6, 5.6}},
	12500.0: {Class1: {-6.0, 3.0}, Class2: {math.Inf(-1), 6.0}},
	16000.0: {Class1: {-17.0, 3.5}, Class2: {math.Inf(-1), 6.0}},
	31.5:    {Class1: {-2.0, 2.0}, Class2: {-3.5, 3.5}},
	63.0:    {Class1: {-1.5, 1.5}, Class2: {-2.5, 2.5}},
	125.0:   {Class1: {-1.5, 1.5}, Class2: {-2.0, 2.0}},
	250.0:   {Class1: {-1.4, 1.4}, Class2: {-1.9, 1.9}},
	500.0:   {Class1: {-1.4, 1.4}, Class2: {-1.9, 1.9}},
}

// Frequencies returns the tabulated frequencies in ascending order.
func Frequencies() []float64 {
	out := make([]float64, 0, len(weightingCorrections))
	for f := range weightingCorrections {
		out = append(out, f)
	}
	sort.Float64s(out)
	return out
}

// Correction returns the nominal weighting correction for freq.
func Correction(freq float64, w Weighting) (float64, error) {
	row, ok := weightingCorrections[freq]
	if !ok {
		return 0, pkgerrors.Wrapf(ErrUndefinedFrequency, "%g Hz", freq)
	}
	v, ok := row[w]
	if !ok {
		return 0, pkgerrors.Wrapf(ErrUndefinedWeighting, "%q", string(w))
	}
	return v, nil
}

// Limits returns the frequency weighting acceptance interval of a class.
func Limits(freq float64, class Class) (Bounds, error) {
	row, ok := frequencyLimits[freq]
	if !ok {
		return Bounds{}, pkgerrors.Wrapf(ErrUndefinedFrequency, "%g Hz", freq)
	}
	b, ok := row[class]
	if !ok {
		return Bounds{}, pkgerrors.Errorf("no limits for class %s", class)
	}
	return b, nil
}
