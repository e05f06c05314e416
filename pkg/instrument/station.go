package instrument

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Station bundles the instruments of one calibration bench. Only one
// procedure may drive the bench at a time; it must hold the bus lock for its
// whole run.
type Station struct {
	Voltmeter  Voltmeter
	Generator  Generator
	Attenuator Attenuator

	lock chan struct{}
}

// NewStation returns a Station with a free bus lock.
func NewStation(v Voltmeter, g Generator, a Attenuator) *Station {
	return &Station{
		Voltmeter:  v,
		Generator:  g,
		Attenuator: a,
		lock:       make(chan struct{}, 1),
	}
}

// Acquire blocks until the bus lock is free or ctx is done. The returned
// function releases the lock and must be called exactly once.
func (s *Station) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.lock <- struct{}{}:
		logrus.Debug("instrument bus acquired")
		return func() {
			<-s.lock
			logrus.Debug("instrument bus released")
		}, nil
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(ctx.Err(), "waiting for instrument bus")
	}
}

// Reset turns the generator off and sets the attenuator. It is run before
// and after every procedure.
func (s *Station) Reset(ctx context.Context, db float64) error {
	if err := s.Generator.TurnOff(ctx); err != nil {
		return pkgerrors.Wrap(err, "failed to turn off generator")
	}
	if err := s.Attenuator.Set(ctx, db); err != nil {
		return pkgerrors.Wrapf(err, "failed to set attenuator to %.2f dB", db)
	}
	return nil
}
