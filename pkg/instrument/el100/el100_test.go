package el100

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/instrument/bus/bustest"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		db      float64
		want    string
		wantErr bool
	}{
		{0, "@P`p", false},
		{20.53, "BPes", false},
		{99.99, "IYiy", false},
		{5.2, "@Ubp", false},
		{120, "", true},
		{math.NaN(), "", true},
	}
	for _, tt := range tests {
		got, err := Encode(tt.db)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%g", tt.db)
	}
}

func TestSetAndGet(t *testing.T) {
	rec := bustest.New("2053", "0")
	e := New(rec)
	ctx := context.Background()

	require.NoError(t, e.Set(ctx, 9.9))
	assert.Equal(t, []string{"@Yip"}, rec.Writes)

	v, err := e.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.53, v)

	_, err = e.Get(ctx)
	assert.Error(t, err)
}
