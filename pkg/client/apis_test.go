package client

import (
	"context"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/daemon"
	"github.com/charlie0129/slmcal/pkg/events"
	"github.com/charlie0129/slmcal/pkg/instrument/fake"
	"github.com/charlie0129/slmcal/pkg/version"
)

func startDaemon(t *testing.T) (*daemon.Server, *Client) {
	t.Helper()
	cfg := &config.Calibration{
		Standard:              calibration.Standard61672_3,
		LinearOperatingRange:  config.Range{Min: 85, Max: 100},
		LevelRanges:           []config.LevelRange{{Upper: 140, Lower: 25}},
		Frequencies:           []float64{1000},
		CaseCorrections:       map[float64]float64{1000: 0},
		WindshieldCorrections: map[float64]float64{1000: 0},
		Calibrator:            config.Calibrator{SPL: 94, SPLTolerance: 0.3},
		SLMType:               1,
	}
	st, _, _, _ := fake.NewStation()
	ctx, cancel := context.WithCancel(context.Background())
	s := daemon.NewServer(ctx, cfg, st)

	sock := filepath.Join(t.TempDir(), "d.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	srv := httptest.NewUnstartedServer(s.Router())
	srv.Listener = l
	srv.Start()
	t.Cleanup(func() {
		cancel()
		s.Wait()
		srv.Close()
	})
	return s, NewClient(sock)
}

func TestClient(t *testing.T) {
	s, c := startDaemon(t)
	ctx := context.Background()

	v, err := c.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.Get(), v)

	ids, err := c.GetProcedures(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 8)

	p, err := c.GetPrompt(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	err = c.Answer(ctx, 0, "94")
	assert.ErrorIs(t, err, ErrNotFound)

	plan, err := c.StartRun(ctx, calibration.ProcedureSelfGeneratedNoise)
	require.NoError(t, err)
	assert.Equal(t, []calibration.Procedure{calibration.ProcedureSelfGeneratedNoise}, plan)

	require.Eventually(t, func() bool {
		p, err = c.GetPrompt(ctx)
		return err == nil && p != nil
	}, 2*time.Second, time.Millisecond)
	assert.True(t, p.Acknowledge)
	require.NoError(t, c.Answer(ctx, p.ID, ""))

	st, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, calibration.ProcedureSelfGeneratedNoise, st.Procedure)

	require.NoError(t, c.CancelRun(ctx))
	s.Wait()
	st, err = c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, calibration.PhaseCancelled, st.Phase)

	tables, err := c.GetResults(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	yaml, err := c.GetConfig(ctx)
	require.NoError(t, err)
	assert.Contains(t, yaml, "61672-3")
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := c.GetStatus(context.Background())
	assert.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestParseEvents(t *testing.T) {
	stream := "event:operator.prompt\ndata:{\"id\":1,\n" +
		"data: \"text\":\"hi\"}\n\n" +
		": comment\n\n" +
		"event: run.finished\ndata: {\"message\":\"done\"}\n\n"
	var got []events.Event
	require.NoError(t, ParseEvents(strings.NewReader(stream), func(ev events.Event) bool {
		got = append(got, ev)
		return true
	}))
	require.Len(t, got, 2)
	assert.Equal(t, events.OperatorPrompt, got[0].Name)
	p, err := events.DecodeAs[events.OperatorPromptEvent](got[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "hi", p.Text)
	assert.Equal(t, events.RunFinished, got[1].Name)

	n := 0
	require.NoError(t, ParseEvents(strings.NewReader(stream), func(events.Event) bool {
		n++
		return false
	}))
	assert.Equal(t, 1, n)
}
