// Package uncertainty computes the uncertainty budget of a microphone SPL
// calibration and the checks that guard its measurements.
package uncertainty

import (
	"fmt"
	"math"

	dsptime "github.com/cwbudde/algo-dsp/stats/time"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

// ReferencePressure is 20 µPa.
const ReferencePressure = 2e-5

// Voltmeter certificate ratios.
const (
	VoltmeterUncertaintyRatio = 1.0005
	VoltmeterErrorRatio       = 1.0003
)

// Fixed budget terms in dB.
const (
	MicrophoneSensitivity = 0.01  // Mu, from the reference microphone certificate
	MicrophonePressure    = 0.038 // Mp, static pressure correction
	MicrophoneTemperature = 0.050 // Mt, ambient temperature correction
	VoltageMatching       = 0.005 // MM
	PolarisingVoltage     = 0.01  // Kpv
	StaticPressure        = 0.02  // Kp
	MicrophoneVolume      = 0.02  // Kmv
	Resolution            = 0.005 // SPLr
)

// StabilityError is returned when a series of readings decays too fast to
// be trusted.
type StabilityError struct {
	Values []float64
}

func (e *StabilityError) Error() string {
	return fmt.Sprintf("measurement stability: last/first ratio below %g in %v", StabilityRatio, e.Values)
}

// StabilityRatio is the smallest acceptable last/first reading ratio.
const StabilityRatio = 0.7

// CheckStability fails when the last value is less than StabilityRatio of
// the first. A series starting at zero has no ratio and fails too.
func CheckStability(values []float64) error {
	if len(values) == 0 {
		return &StabilityError{}
	}
	if values[0] == 0 || values[len(values)-1]/values[0] < StabilityRatio {
		return &StabilityError{Values: append([]float64(nil), values...)}
	}
	return nil
}

// Fluctuation returns whichever of the max and min deviations from the
// mean, in dB, is larger in magnitude.
func Fluctuation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := instrument.Mean(values)
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	high := 20 * math.Log10(hi/mean)
	low := 20 * math.Log10(lo/mean)
	if math.Abs(high) > math.Abs(low) {
		return high
	}
	return low
}

// UncorrectedSPL converts an insert voltage, attenuation A (dB) and
// microphone sensitivity M (dB re 1 V/Pa) to a sound pressure level.
func UncorrectedSPL(vins, atten, sensitivity float64) float64 {
	spl := 20*math.Log10(vins) - 20*math.Log10(ReferencePressure) - atten - sensitivity
	return tolerance.Round(spl, 3)
}

// VoltmeterUncertainty converts a certificate ratio to dB.
func VoltmeterUncertainty(ratio float64) float64 {
	return 20 * math.Log10(ratio)
}

// AttenuatorUncertainty is 0.01 dB per decade digit of the setting, from
// 0.01 at 0x.xx to 0.06 at 5x.xx.
func AttenuatorUncertainty(atten float64) (float64, error) {
	d, err := instrument.LeadingDigit(atten)
	if err != nil {
		return 0, err
	}
	if d > 5 {
		return 0, fmt.Errorf("no attenuator uncertainty for %05.2f dB", atten)
	}
	return float64(d+1) / 100, nil
}

// AttenuatorError is the reading error at 1 kHz: 0.004 dB LSD error plus a
// term depending on the leading digit.
func AttenuatorError(atten float64) (float64, error) {
	d, err := instrument.LeadingDigit(atten)
	if err != nil {
		return 0, err
	}
	switch {
	case d == 0:
		return 0.004, nil
	case d <= 2:
		return 0.004 + 0.004, nil
	case d <= 5:
		return 0.005 + 0.004, nil
	case d == 6:
		return 0.006 + 0.004, nil
	}
	return 0, fmt.Errorf("no attenuator error for %05.2f dB", atten)
}

// Budget holds every term of the combined uncertainty, in dB.
type Budget struct {
	IVu  float64 `json:"ivu"`
	IVe  float64 `json:"ive"`
	Au   float64 `json:"au"`
	Ae   float64 `json:"ae"`
	Mu   float64 `json:"mu"`
	Mp   float64 `json:"mp"`
	Mt   float64 `json:"mt"`
	MM   float64 `json:"mm"`
	Kpv  float64 `json:"kpv"`
	Kp   float64 `json:"kp"`
	Kmv  float64 `json:"kmv"`
	SPLr float64 `json:"splr"`
}

// NewBudget fills the budget for a mean attenuation setting.
func NewBudget(meanAtten float64) (Budget, error) {
	au, err := AttenuatorUncertainty(meanAtten)
	if err != nil {
		return Budget{}, err
	}
	ae, err := AttenuatorError(meanAtten)
	if err != nil {
		return Budget{}, err
	}
	return Budget{
		IVu:  VoltmeterUncertainty(VoltmeterUncertaintyRatio),
		IVe:  VoltmeterUncertainty(VoltmeterErrorRatio),
		Au:   au,
		Ae:   ae,
		Mu:   MicrophoneSensitivity,
		Mp:   MicrophonePressure,
		Mt:   MicrophoneTemperature,
		MM:   VoltageMatching,
		Kpv:  PolarisingVoltage,
		Kp:   StaticPressure,
		Kmv:  MicrophoneVolume,
		SPLr: Resolution,
	}, nil
}

// Combined is the root sum of squares of the standard uncertainties, rounded
// to 3 decimals. Certificate terms (IVu, Au, Mu) are divided by 2, the
// rectangular ones by √3.
func (b Budget) Combined() float64 {
	sqrt3 := math.Sqrt(3)
	normal := []float64{b.IVu, b.Au, b.Mu}
	rect := []float64{b.IVe, b.Ae, b.Mp, b.Mt, b.MM, b.Kpv, b.Kp, b.Kmv, b.SPLr}
	var total float64
	for _, v := range normal {
		total += math.Pow(v/2, 2)
	}
	for _, v := range rect {
		total += math.Pow(v/sqrt3, 2)
	}
	return tolerance.Round(math.Sqrt(total), 3)
}

// SPL is the linear sum of the budget terms referred to 20 µPa.
func (b Budget) SPL() float64 {
	return b.IVu + b.IVe - 20*math.Log10(ReferencePressure) - b.Au + b.Ae - b.Mu + b.Mp + b.Mt +
		b.MM + b.Kpv + b.Kp + b.Kmv + b.SPLr
}

// StdDev is the population standard deviation.
func StdDev(values []float64) float64 {
	_, variance, _, _ := dsptime.Moments(values)
	return math.Sqrt(variance)
}

// Measurement is one SPL determination, the input of Calculate.
type Measurement struct {
	Attenuation float64
	SPL         float64
	Frequency   float64
}

// Result is the expanded (k=2) uncertainty of a series of measurements.
type Result struct {
	Budget    Budget  `json:"budget"`
	Total     float64 `json:"total"`
	THD       float64 `json:"thd"`
	SPL       float64 `json:"spl"`
	TypeA     float64 `json:"typeA"`
	Frequency float64 `json:"frequency"`
}

// Calculate evaluates the budget for a series of measurements.
func Calculate(ms []Measurement) (Result, error) {
	if len(ms) == 0 {
		return Result{}, fmt.Errorf("no measurements")
	}
	attens := make([]float64, len(ms))
	spls := make([]float64, len(ms))
	freqs := make([]float64, len(ms))
	for i, m := range ms {
		attens[i], spls[i], freqs[i] = m.Attenuation, m.SPL, m.Frequency
	}
	b, err := NewBudget(instrument.Mean(attens))
	if err != nil {
		return Result{}, err
	}
	return Result{
		Budget:    b,
		Total:     b.Combined() * 2,
		THD:       b.Au * 2,
		SPL:       b.SPL(),
		TypeA:     StdDev(spls),
		Frequency: StdDev(freqs) * 2,
	}, nil
}

// Range is an inclusive preferred range for an environment condition.
type Range struct {
	Name string
	Unit string
	Min  float64
	Max  float64
}

var (
	TemperatureRange       = Range{Name: "Temperature", Unit: "oC", Min: 20, Max: 26}
	HumidityRange          = Range{Name: "Humidity", Unit: "%", Min: 30, Max: 70}
	PressureRange          = Range{Name: "Pressure", Unit: "hPa", Min: 1003, Max: 1023}
	PolarisingVoltageRange = Range{Name: "Polarisation voltage", Unit: "V", Min: 198, Max: 202}
)

// Check returns a warning when v is outside the range, or "".
func (r Range) Check(v float64) string {
	if v >= r.Min && v <= r.Max {
		return ""
	}
	return fmt.Sprintf("%s %g %s outside preferred range of %g+-%g.", r.Name, v, r.Unit, (r.Min+r.Max)/2, (r.Max-r.Min)/2)
}
