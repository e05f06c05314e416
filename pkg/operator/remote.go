package operator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/events"
)

var (
	// ErrNoPendingPrompt is returned when an answer arrives with nothing asked.
	ErrNoPendingPrompt = errors.New("no pending prompt")
	// ErrStalePrompt is returned when an answer names an older prompt.
	ErrStalePrompt = errors.New("answer does not match the pending prompt")
)

// Remote is a Channel answered over the daemon's HTTP API. At most one
// prompt is pending at a time.
type Remote struct {
	hub *events.EventHub

	mu      sync.Mutex
	nextID  int64
	pending *calibration.Prompt
	answers chan string
	notices []string
}

func NewRemote(hub *events.EventHub) *Remote {
	return &Remote{hub: hub, answers: make(chan string, 1)}
}

func (r *Remote) ask(ctx context.Context, title, text string, ack bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.nextID++
	p := &calibration.Prompt{
		ID:          r.nextID,
		Title:       title,
		Text:        text,
		Acknowledge: ack,
		AskedAt:     time.Now(),
	}
	r.pending = p
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"id":    p.ID,
		"title": title,
	}).Infof("waiting for operator: %s", text)
	r.hub.Publish(events.OperatorPrompt, events.OperatorPromptEvent{
		ID:          p.ID,
		Title:       title,
		Text:        text,
		Acknowledge: ack,
		Ts:          p.AskedAt.Unix(),
	})

	select {
	case a := <-r.answers:
		return a, nil
	case <-ctx.Done():
		r.mu.Lock()
		if r.pending == p {
			r.pending = nil
		} else {
			// answered while cancelling
			select {
			case <-r.answers:
			default:
			}
		}
		r.mu.Unlock()
		return "", ctx.Err()
	}
}

func (r *Remote) Prompt(ctx context.Context, title, text string) (string, error) {
	return r.ask(ctx, title, text, false)
}

func (r *Remote) Wait(ctx context.Context, title, text string) error {
	_, err := r.ask(ctx, title, text, true)
	return err
}

func (r *Remote) Notify(text string) {
	r.mu.Lock()
	r.notices = append(r.notices, text)
	r.mu.Unlock()
	logrus.Info(text)
	r.hub.Publish(events.OperatorNotice, events.NoticeEvent{Message: text, Ts: time.Now().Unix()})
}

// Pending returns a copy of the prompt waiting for an answer, or nil.
func (r *Remote) Pending() *calibration.Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return nil
	}
	p := *r.pending
	return &p
}

// Notices returns the notifications shown so far.
func (r *Remote) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

// Answer delivers the answer to prompt id. An id of 0 answers whatever is
// pending.
func (r *Remote) Answer(id int64, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return ErrNoPendingPrompt
	}
	if id != 0 && id != r.pending.ID {
		return ErrStalePrompt
	}
	pid := r.pending.ID
	r.pending = nil
	r.answers <- answer
	r.hub.Publish(events.OperatorReply, events.OperatorReplyEvent{ID: pid, Answer: answer, Ts: time.Now().Unix()})
	return nil
}
