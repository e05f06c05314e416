// Package el100 drives a GDS EL100 programmable attenuator.
//
// The attenuator is programmed with four characters, one per digit of the
// "%05.2f" rendering of the attenuation: tens from '@', units from 'P',
// tenths from '`' and hundredths from 'p'. It reports its setting as four
// bare digits ("2053" for 20.53 dB).
package el100

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/instrument/bus"
)

// DefaultAddress is the GPIB address the bench uses for the attenuator.
const DefaultAddress = 3

var _ instrument.Attenuator = (*EL100)(nil)

// digit bases of the tens, units, tenths and hundredths characters.
var bases = [4]byte{64, 80, 96, 112}

type EL100 struct {
	conn bus.Conn
}

func New(conn bus.Conn) *EL100 {
	return &EL100{conn: conn}
}

// Encode returns the command string that sets db.
func Encode(db float64) (string, error) {
	s, err := instrument.FormatAttenuation(db)
	if err != nil {
		return "", err
	}
	digits := []byte{s[0], s[1], s[3], s[4]}
	out := make([]byte, 4)
	for i, d := range digits {
		out[i] = bases[i] + (d - '0')
	}
	return string(out), nil
}

func (e *EL100) Set(ctx context.Context, db float64) error {
	cmd, err := Encode(db)
	if err != nil {
		return err
	}
	logrus.WithField("attenuation", db).Info("setting EL100")
	return e.conn.Write(ctx, cmd)
}

func (e *EL100) Get(ctx context.Context) (float64, error) {
	raw, err := e.conn.Read(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to read EL100")
	}
	if len(raw) < 4 {
		return 0, pkgerrors.Errorf("short EL100 reply %q", raw)
	}
	return instrument.ParseAttenuation(raw[:4])
}
