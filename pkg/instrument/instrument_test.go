package instrument

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAttenuation(t *testing.T) {
	tests := []struct {
		in      float64
		want    string
		wantErr bool
	}{
		{0, "00.00", false},
		{5.2, "05.20", false},
		{20.53, "20.53", false},
		{99.99, "99.99", false},
		{100, "", true},
		{-0.5, "", true},
		{math.NaN(), "", true},
		{math.Inf(1), "", true},
		{math.Inf(-1), "", true},
	}
	for _, tt := range tests {
		got, err := FormatAttenuation(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%g", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseAttenuation(t *testing.T) {
	v, err := ParseAttenuation("2053")
	require.NoError(t, err)
	assert.Equal(t, 20.53, v)

	v, err = ParseAttenuation(" 09.90\r\n")
	require.NoError(t, err)
	assert.Equal(t, 9.9, v)

	_, err = ParseAttenuation("ab.cd")
	assert.Error(t, err)
}

func TestLeadingDigit(t *testing.T) {
	d, err := LeadingDigit(5.2)
	require.NoError(t, err)
	assert.Equal(t, 0, d)
	d, err = LeadingDigit(63.4)
	require.NoError(t, err)
	assert.Equal(t, 6, d)
}

func TestStationLockIsExclusive(t *testing.T) {
	s := NewStation(nil, nil, nil)
	release, err := s.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := s.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}
