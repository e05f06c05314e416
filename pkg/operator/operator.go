// Package operator is the dialog between a running procedure and the person
// at the bench. Every call blocks until the operator answers; there is no
// timeout, only cancellation through the context.
package operator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Channel is a blocking question/answer dialog with the operator.
type Channel interface {
	// Prompt shows text and returns the operator's free-form answer.
	Prompt(ctx context.Context, title, text string) (string, error)
	// Wait shows text and returns once the operator acknowledges it.
	Wait(ctx context.Context, title, text string) error
	// Notify shows a message that needs no answer.
	Notify(text string)
}

// InputError is returned when an answer cannot be used.
type InputError struct {
	Question string
	Answer   string
	Err      error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid answer %q to %q: %v", e.Answer, e.Question, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// AskNumber prompts for a decimal number such as an SLM reading in dB.
func AskNumber(ctx context.Context, ch Channel, title, text string) (float64, error) {
	answer, err := ch.Prompt(ctx, title, text)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(answer), 64)
	if err != nil {
		return 0, &InputError{Question: text, Answer: answer, Err: err}
	}
	return v, nil
}

// AskYesNo prompts a y/n question. Only "y" or "yes" (any case) is yes.
func AskYesNo(ctx context.Context, ch Channel, title, text string) (bool, error) {
	answer, err := ch.Prompt(ctx, title, text)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
