// Package scpimeter reads single values from query-response instruments such
// as frequency counters, distortion analyzers and pressure indicators.
package scpimeter

import (
	"context"
	"regexp"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/instrument/bus"
)

var _ instrument.Meter = (*Meter)(nil)

var number = regexp.MustCompile(`[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// Meter sends Query and parses the first number of the reply. An empty Query
// only reads, for talk-only instruments.
type Meter struct {
	Name  string
	Query string
	conn  bus.Conn
}

func New(name string, conn bus.Conn, query string) *Meter {
	return &Meter{Name: name, Query: query, conn: conn}
}

func (m *Meter) Read(ctx context.Context) (float64, error) {
	var (
		raw string
		err error
	)
	if m.Query == "" {
		raw, err = m.conn.Read(ctx)
	} else {
		raw, err = m.conn.Query(ctx, m.Query)
	}
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to read %s", m.Name)
	}
	return ParseNumber(raw)
}

// ParseNumber returns the first decimal number in raw.
func ParseNumber(raw string) (float64, error) {
	s := number.FindString(raw)
	if s == "" {
		return 0, pkgerrors.Errorf("no number in reply %q", raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid number in reply %q", raw)
	}
	return v, nil
}
