package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/calibration"
)

func TestRender(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tables := []calibration.Table{
		{
			Procedure: calibration.ProcedureAcousticTest,
			Title:     "Acoustic Test",
			Columns:   []string{"Reading", "Result"},
			Rows:      [][]string{{"93.9", "PASS"}, {"100.25", "FAIL"}},
			Notes:     []string{"Corrected SPL 93.85 dB"},
		},
		{
			Procedure: calibration.ProcedureMicrophoneSPL,
			Title:     "Environment",
			Columns:   []string{"", "Pressure (hPa)"},
			Rows:      [][]string{{"Initial", "1013.00"}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, New(&buf).Render(tables))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"Acoustic Test",
		"Reading  Result",
		"93.9     PASS",
		"100.25   FAIL",
		"Corrected SPL 93.85 dB",
		"",
		"Environment",
		"         Pressure (hPa)",
		"Initial  1013.00",
	}, lines)
}

func TestWidths(t *testing.T) {
	w := Widths(calibration.Table{
		Columns: []string{"a", "bb"},
		Rows:    [][]string{{"ccc", "d", "extra"}},
	})
	assert.Equal(t, []int{3, 2, 5}, w)
}
