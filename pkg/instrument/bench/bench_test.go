package bench

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/spl"
)

func TestOpenSimulated(t *testing.T) {
	b, err := Open(context.Background(), &config.Station{Simulate: true, Timeout: time.Second})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	release, err := b.Station.Acquire(ctx)
	require.NoError(t, err)
	release()

	v, err := b.Station.Voltmeter.ReadVoltage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	sb := b.SPL()
	vpol, err := sb.Scanner.Scan(ctx, spl.ChannelPolarisingVoltage, "VOLT:DC", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{200, 200}, vpol)
	assert.Same(t, b.Station.Generator, sb.Generator)
}

func TestOpenUnreachableController(t *testing.T) {
	_, err := Open(context.Background(), &config.Station{Controller: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
