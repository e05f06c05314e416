package operator

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a Scripted channel runs out of answers.
var ErrScriptExhausted = errors.New("operator script exhausted")

// Exchange is one recorded step of a dialog.
type Exchange struct {
	Kind   string // "prompt", "wait" or "notify"
	Title  string
	Text   string
	Answer string
}

// Scripted answers prompts from a fixed list and records the dialog. Waits
// are acknowledged without consuming an answer.
type Scripted struct {
	mu         sync.Mutex
	answers    []string
	Transcript []Exchange
}

func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

func (s *Scripted) Prompt(ctx context.Context, title, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.answers) == 0 {
		s.Transcript = append(s.Transcript, Exchange{Kind: "prompt", Title: title, Text: text})
		return "", ErrScriptExhausted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	s.Transcript = append(s.Transcript, Exchange{Kind: "prompt", Title: title, Text: text, Answer: a})
	return a, nil
}

func (s *Scripted) Wait(ctx context.Context, title, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transcript = append(s.Transcript, Exchange{Kind: "wait", Title: title, Text: text})
	return nil
}

func (s *Scripted) Notify(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Transcript = append(s.Transcript, Exchange{Kind: "notify", Text: text})
}

// Remaining returns how many answers are left.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Prompts returns the texts of all prompts asked so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.Transcript {
		if e.Kind == "prompt" {
			out = append(out, e.Text)
		}
	}
	return out
}
