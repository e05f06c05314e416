// Package report renders result tables as aligned text for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/tolerance"
)

var (
	titleColor = color.New(color.Bold, color.Underline)
	headColor  = color.New(color.Bold)
	passColor  = color.New(color.FgGreen)
	failColor  = color.New(color.Bold, color.FgRed)
	noteColor  = color.New(color.Faint)
)

// Writer renders tables to an io.Writer.
type Writer struct {
	out io.Writer
	// Gap is the number of spaces between columns.
	Gap int
}

func New(out io.Writer) *Writer {
	return &Writer{out: out, Gap: 2}
}

// Render writes every table, each preceded by its title and followed by
// its notes.
func (w *Writer) Render(tables []calibration.Table) error {
	for i, t := range tables {
		if i > 0 {
			if _, err := fmt.Fprintln(w.out); err != nil {
				return err
			}
		}
		if err := w.table(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) table(t calibration.Table) error {
	var b strings.Builder
	b.WriteString(titleColor.Sprint(t.Title))
	b.WriteByte('\n')

	widths := Widths(t)
	b.WriteString(w.line(t.Columns, widths, func(_ int, s string) string { return headColor.Sprint(s) }))
	for _, row := range t.Rows {
		b.WriteString(w.line(row, widths, paintCell))
	}
	for _, n := range t.Notes {
		b.WriteString(noteColor.Sprint(n))
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w.out, b.String())
	return err
}

// line pads before painting so escape codes do not skew the alignment.
func (w *Writer) line(cells []string, widths []int, paint func(col int, s string) string) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteString(strings.Repeat(" ", w.Gap))
		}
		pad := 0
		if i < len(widths) {
			pad = widths[i] - utf8.RuneCountInString(c)
		}
		b.WriteString(paint(i, c))
		if i < len(cells)-1 && pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	b.WriteByte('\n')
	return b.String()
}

// Widths returns the display width of each column.
func Widths(t calibration.Table) []int {
	n := len(t.Columns)
	for _, r := range t.Rows {
		n = max(n, len(r))
	}
	widths := make([]int, n)
	measure := func(cells []string) {
		for i, c := range cells {
			widths[i] = max(widths[i], utf8.RuneCountInString(c))
		}
	}
	measure(t.Columns)
	for _, r := range t.Rows {
		measure(r)
	}
	return widths
}

func paintCell(_ int, s string) string {
	switch s {
	case string(tolerance.Pass):
		return passColor.Sprint(s)
	case string(tolerance.Failed), tolerance.Fail.String():
		return failColor.Sprint(s)
	}
	return s
}
