package procedure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/events"
	"github.com/charlie0129/slmcal/pkg/instrument/fake"
	"github.com/charlie0129/slmcal/pkg/operator"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRunnerPlan(t *testing.T) {
	st, _, _, _ := fake.NewStation()
	r := NewRunner(testCalibration(), st, operator.NewScripted(), nil)

	all, err := r.Plan(nil)
	require.NoError(t, err)
	assert.Len(t, all, 8)

	got, err := r.Plan([]calibration.Procedure{calibration.ProcedureToneburstResponse, calibration.ProcedureAcousticTest})
	require.NoError(t, err)
	assert.Equal(t, []calibration.Procedure{calibration.ProcedureAcousticTest, calibration.ProcedureToneburstResponse}, got)

	_, err = r.Plan([]calibration.Procedure{calibration.ProcedureTimeAveraging})
	assert.Error(t, err)
}

func TestRunnerRun(t *testing.T) {
	st, _, gen, att := fake.NewStation()
	op := operator.NewScripted(
		"93.9", "93.8", "93.9",
		"20", "21", "22", "30", "30", "30", "40", "41", "39",
	)
	hub := events.NewEventHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	r := NewRunner(testCalibration(), st, op, hub)
	r.Sleep = noSleep
	ids := []calibration.Procedure{calibration.ProcedureAcousticTest, calibration.ProcedureSelfGeneratedNoise}
	require.NoError(t, r.Run(context.Background(), ids))

	status := r.Status()
	assert.Equal(t, calibration.PhaseDone, status.Phase)
	assert.Len(t, status.RunID, 36)
	assert.Equal(t, ids, status.Completed)
	assert.Empty(t, status.Pending)
	assert.Equal(t, 2, status.Tables)
	assert.False(t, status.FinishedAt.IsZero())
	assert.Nil(t, status.Prompt)
	assert.False(t, r.Running())

	tables := r.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, calibration.ProcedureAcousticTest, tables[0].Procedure)
	assert.Equal(t, calibration.ProcedureSelfGeneratedNoise, tables[1].Procedure)
	require.Len(t, r.Results(), 2)
	assert.IsType(t, &SelfGeneratedNoise{}, r.Results()[1])

	first := <-ch
	assert.Equal(t, events.RunStarted, first.Name)

	assert.False(t, gen.On)
	assert.Equal(t, 0.0, att.Value)
}

func TestRunnerStopsAtFirstError(t *testing.T) {
	st, _, gen, att := fake.NewStation()
	att.Adjust = []float64{40}
	r := NewRunner(testCalibration(), st, operator.NewScripted(), nil)
	r.Sleep = noSleep

	ids := []calibration.Procedure{calibration.ProcedureFrequencyWeighting, calibration.ProcedureLinearity}
	err := r.Run(context.Background(), ids)
	require.ErrorIs(t, err, operator.ErrScriptExhausted)

	status := r.Status()
	assert.Equal(t, calibration.PhaseError, status.Phase)
	assert.NotEmpty(t, status.LastError)
	assert.Empty(t, status.Completed)
	assert.Equal(t, ids, status.Pending)

	// reset after the failure
	assert.False(t, gen.On)
	assert.Equal(t, 0.0, att.Value)
}

func TestRunnerCancelled(t *testing.T) {
	st, _, _, _ := fake.NewStation()
	r := NewRunner(testCalibration(), st, operator.NewScripted(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, []calibration.Procedure{calibration.ProcedureAcousticTest})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, calibration.PhaseCancelled, r.Status().Phase)
}

func TestRunnerRejectsConcurrentRun(t *testing.T) {
	st, _, _, _ := fake.NewStation()
	remote := operator.NewRemote(nil)
	r := NewRunner(testCalibration(), st, remote, nil)
	ids := []calibration.Procedure{calibration.ProcedureAcousticTest}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, ids) }()

	require.Eventually(t, func() bool { return r.Status().Prompt != nil }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, r.Running())
	assert.ErrorIs(t, r.Run(context.Background(), ids), ErrRunInProgress)

	status := r.Status()
	assert.Equal(t, calibration.ProcedureAcousticTest, status.Procedure)
	assert.Equal(t, calibration.PhaseSetup, status.Phase)
	assert.True(t, status.Prompt.Acknowledge)

	require.NoError(t, remote.Answer(0, ""))
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	assert.Equal(t, calibration.PhaseCancelled, r.Status().Phase)
}
