package operator

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/slmcal/pkg/events"
)

func TestAskNumber(t *testing.T) {
	ctx := context.Background()
	ch := NewScripted(" 94.3 ", "ninety")

	v, err := AskNumber(ctx, ch, "Linearity", "What is the SLM value?")
	require.NoError(t, err)
	assert.Equal(t, 94.3, v)

	_, err = AskNumber(ctx, ch, "Linearity", "What is the SLM value?")
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "ninety", inputErr.Answer)

	_, err = AskNumber(ctx, ch, "", "again?")
	require.ErrorIs(t, err, ErrScriptExhausted)
}

func TestAskYesNo(t *testing.T) {
	ctx := context.Background()
	ch := NewScripted("Y", "n", "yes", "maybe")
	want := []bool{true, false, true, false}
	for _, w := range want {
		got, err := AskYesNo(ctx, ch, "", "Do we have an overload in the Sound Level Meter? (y / n)")
		require.NoError(t, err)
		assert.Equal(t, w, got)
	}
}

func TestScriptedWaitDoesNotConsume(t *testing.T) {
	ch := NewScripted("1")
	require.NoError(t, ch.Wait(context.Background(), "t", "Please reset your SLM."))
	ch.Notify("done")
	assert.Equal(t, 1, ch.Remaining())
	assert.Len(t, ch.Transcript, 2)
	assert.Empty(t, ch.Prompts())
}

func TestConsole(t *testing.T) {
	in := strings.NewReader("93.9\n\nn\n")
	var out bytes.Buffer
	c := NewConsoleWith(in, &out, false)
	ctx := context.Background()

	v, err := AskNumber(ctx, c, "Acoustic Test", "What is the SLM reading (dB)?")
	require.NoError(t, err)
	assert.Equal(t, 93.9, v)
	require.NoError(t, c.Wait(ctx, "", "Please reset your SLM."))
	yes, err := AskYesNo(ctx, c, "", "Overload? (y / n)")
	require.NoError(t, err)
	assert.False(t, yes)

	_, err = c.Prompt(ctx, "", "more?")
	assert.Error(t, err)
	assert.Contains(t, out.String(), "What is the SLM reading (dB)?")
}

func TestRemote(t *testing.T) {
	hub := events.NewEventHub()
	sub := hub.Subscribe()
	r := NewRemote(hub)
	ctx := context.Background()

	require.ErrorIs(t, r.Answer(0, "x"), ErrNoPendingPrompt)

	done := make(chan float64, 1)
	go func() {
		v, err := AskNumber(ctx, r, "Peak C", "What is the SLM LCpeakMax value (dB)?")
		if err == nil {
			done <- v
		}
	}()

	ev := <-sub
	p, err := events.DecodeAs[events.OperatorPromptEvent](ev)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.Pending() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, p.ID, r.Pending().ID)

	require.ErrorIs(t, r.Answer(p.ID+1, "1"), ErrStalePrompt)
	require.NoError(t, r.Answer(p.ID, "131.2"))
	assert.Equal(t, 131.2, <-done)
	assert.Nil(t, r.Pending())
}

func TestRemoteCancel(t *testing.T) {
	r := NewRemote(nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Wait(ctx, "", "Please connect the SLM.") }()
	require.Eventually(t, func() bool { return r.Pending() != nil }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
	assert.Nil(t, r.Pending())
}
