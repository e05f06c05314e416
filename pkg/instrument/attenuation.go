package instrument

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const (
	MinAttenuation = 0.0
	MaxAttenuation = 99.99
)

// FormatAttenuation renders db the way attenuators and calibration sheets
// expect it: zero padded, two decimals ("05.20", "99.00").
func FormatAttenuation(db float64) (string, error) {
	s := fmt.Sprintf("%05.2f", db)
	if math.IsNaN(db) || math.IsInf(db, 0) || db < MinAttenuation || len(s) != 5 {
		return "", pkgerrors.Errorf("attenuation %g dB outside %.2f..%.2f", db, MinAttenuation, MaxAttenuation)
	}
	return s, nil
}

// ParseAttenuation accepts a formatted value ("20.53") or the raw four digit
// form returned by attenuators ("2053").
func ParseAttenuation(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) == 4 && !strings.Contains(s, ".") {
		s = s[:2] + "." + s[2:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid attenuation %q", s)
	}
	if v < MinAttenuation || v > MaxAttenuation {
		return 0, pkgerrors.Errorf("attenuation %g dB outside %.2f..%.2f", v, MinAttenuation, MaxAttenuation)
	}
	return v, nil
}

// LeadingDigit returns the tens digit of the formatted attenuation.
func LeadingDigit(db float64) (int, error) {
	s, err := FormatAttenuation(db)
	if err != nil {
		return 0, err
	}
	return int(s[0] - '0'), nil
}
