// Package bustest provides a recording bus.Conn for driver tests.
package bustest

import (
	"context"
	"errors"
	"sync"
)

// ErrNoReply is returned when a read finds the reply queue empty.
var ErrNoReply = errors.New("bustest: no reply queued")

// Recorder records every command written to it and answers reads from a
// queue of canned replies.
type Recorder struct {
	mu      sync.Mutex
	Writes  []string
	Replies []string
}

func New(replies ...string) *Recorder {
	return &Recorder{Replies: replies}
}

func (r *Recorder) Write(_ context.Context, cmd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Writes = append(r.Writes, cmd)
	return nil
}

func (r *Recorder) Read(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Replies) == 0 {
		return "", ErrNoReply
	}
	reply := r.Replies[0]
	r.Replies = r.Replies[1:]
	return reply, nil
}

func (r *Recorder) Query(ctx context.Context, cmd string) (string, error) {
	if err := r.Write(ctx, cmd); err != nil {
		return "", err
	}
	return r.Read(ctx)
}
