package main

import (
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/report"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

// NewTablesCommand .
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "tables",
		Short:   "Print the frequency weighting corrections and limits",
		GroupID: gAdvanced,
		Long: `Print the tabulated frequency weighting corrections and the class 1 and
class 2 acceptance limits used to classify the frequency weighting test.

The "filter" columns are the response of the weighting filters at each
frequency, as a cross check for the tabulated values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := weightingTables()
			if err != nil {
				return err
			}
			return report.New(os.Stdout).Render(tables)
		},
	}
}

func weightingTables() ([]calibration.Table, error) {
	corr := calibration.Table{
		Title:   "Frequency weightings (dB)",
		Columns: []string{"Frequency (Hz)"},
		Notes:   []string{"IEC 61672-1 nominal values, relative to 1 kHz"},
	}
	for _, w := range tolerance.Weightings() {
		corr.Columns = append(corr.Columns, string(w), string(w)+" filter")
	}

	limits := calibration.Table{
		Title:   "Frequency weighting limits (dB)",
		Columns: []string{"Frequency (Hz)", "Class 1 min", "Class 1 max", "Class 2 min", "Class 2 max"},
	}

	for _, f := range tolerance.Frequencies() {
		row := []string{formatHz(f)}
		for _, w := range tolerance.Weightings() {
			c, err := tolerance.Correction(f, w)
			if err != nil {
				return nil, err
			}
			a, err := tolerance.AnalogWeighting(f, w)
			if err != nil {
				return nil, err
			}
			row = append(row, formatDB(c), formatDB(a))
		}
		corr.Rows = append(corr.Rows, row)

		lrow := []string{formatHz(f)}
		for _, class := range []tolerance.Class{tolerance.Class1, tolerance.Class2} {
			b, err := tolerance.Limits(f, class)
			if err != nil {
				return nil, err
			}
			lrow = append(lrow, formatDB(b.Min), formatDB(b.Max))
		}
		limits.Rows = append(limits.Rows, lrow)
	}

	return []calibration.Table{corr, limits}, nil
}

func formatHz(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatDB(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf"
	}
	v = math.Round(v*10) / 10
	if v == 0 {
		v = 0 // no "-0.0"
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
