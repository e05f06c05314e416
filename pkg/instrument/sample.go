package instrument

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Seconds converts a float number of seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ReadN reads m times, waiting interval between readings.
func ReadN(ctx context.Context, m Meter, times int, interval time.Duration) ([]float64, error) {
	if times < 1 {
		return nil, pkgerrors.Errorf("invalid number of readings %d", times)
	}
	out := make([]float64, 0, times)
	for i := 0; i < times; i++ {
		if i > 0 {
			if err := Sleep(ctx, interval); err != nil {
				return nil, err
			}
		}
		v, err := m.Read(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Mean returns the arithmetic mean of values, or 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
