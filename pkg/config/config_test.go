package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/calibration"
)

const sampleCalibration = `
standard: "61672-3"
linear_operating_range: {min: 25, max: 140}
level_ranges:
  - [140, 25]
  - [120, 20]
frequencies: [1000, 125, 8000]
case_corrections: {1000: 0.0, 125: 0.1, 8000: -0.4}
windshield_corrections: {1000: 0.0, 125: 0.0, 8000: 0.3}
calibrator:
  manufacturer: Bruel & Kjaer
  type: "4231"
  serial_number: "2341542"
  spl: 94.0
  free_field_correction: -0.15
  windscreen_correction: 0.0
  pressure_correction: 0.0
  spl_tolerance: 0.3
slm_type: 1
`

func TestParseCalibration(t *testing.T) {
	c, err := ParseCalibration([]byte(sampleCalibration))
	require.NoError(t, err)

	assert.Equal(t, calibration.Standard61672_3, c.Standard)
	assert.Equal(t, LevelRange{Upper: 140, Lower: 25}, c.ReferenceLevelRange())
	assert.Equal(t, LevelRange{Upper: 120, Lower: 20}, c.LeastSensitive())
	assert.InDelta(t, 93.85, c.Calibrator.CorrectedSPL(), 1e-9)

	v, err := c.WindshieldCorrection(8000)
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)

	_, err = c.CaseCorrection(4000)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "case_corrections", cfgErr.Key)
}

func TestLeastSensitiveOverride(t *testing.T) {
	c, err := ParseCalibration([]byte(sampleCalibration + "least_sensitive_level_range: [130, 30]\n"))
	require.NoError(t, err)
	assert.Equal(t, LevelRange{Upper: 130, Lower: 30}, c.LeastSensitive())
}

func TestParseCalibrationRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"unknown key", sampleCalibration + "colour: blue\n", ""},
		{"bad level range", `level_ranges: [[140]]`, ""},
		{"bad standard", strings.ReplaceAll(sampleCalibration, `"61672-3"`, `"1234"`), "standard"},
		{"missing correction", strings.ReplaceAll(sampleCalibration, "8000: -0.4", "4000: -0.4"), "case_corrections"},
		{"untabulated frequency", strings.ReplaceAll(strings.ReplaceAll(strings.ReplaceAll(sampleCalibration, "8000]", "7000]"), "8000: -0.4", "7000: -0.4"), "8000: 0.3", "7000: 0.3"), "frequencies"},
		{"reference tone off 1 kHz", sampleCalibration + "generator_frequency: 8000\n", "generator_frequency"},
		{"negative generator voltage", sampleCalibration + "generator_voltage: -1\n", "generator_voltage"},
		{"inverted range", strings.ReplaceAll(sampleCalibration, "{min: 25, max: 140}", "{min: 140, max: 25}"), "linear_operating_range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCalibration([]byte(tt.yaml))
			require.Error(t, err)
			if tt.key != "" {
				var cfgErr *Error
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, tt.key, cfgErr.Key)
			}
		})
	}
}

func TestLoadCalibrationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCalibration), 0o644))
	c, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Len(t, c.Frequencies, 3)

	_, err = LoadCalibration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadStation(t *testing.T) {
	t.Setenv("SLMCAL_SIMULATE", "true")
	t.Setenv("SLMCAL_COUNTER_ADDRESS", "9")

	path := filepath.Join(t.TempDir(), "slmcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: 3s\ngenerator: 21\n"), 0o644))

	s, err := LoadStation(NewViper(), path)
	require.NoError(t, err)
	assert.True(t, s.Simulate)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, 21, s.Generator)
	assert.Equal(t, 16, s.Voltmeter)
	assert.Equal(t, 9, s.Counter.Address)
}

func TestStationValidate(t *testing.T) {
	s := &Station{Timeout: time.Second, Voltmeter: 40}
	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "controller")
	assert.Contains(t, err.Error(), "voltmeter")
}
