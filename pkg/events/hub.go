package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventHub fans out events to subscribers. A nil hub drops everything, so
// callers need not check whether events are wired.
//
// The last phase change and the open prompt of a run are retained and
// replayed to new subscribers, so a client joining mid-run sees where the
// run stands and what it waits on.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}

	phase  *Event
	prompt *Event
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]struct{})} }

func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	for _, ev := range []*Event{h.phase, h.prompt} {
		if ev != nil {
			ch <- *ev
		}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Warn("failed to marshal event")
		return
	}
	msg := Event{Name: name, Data: b}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.retain(msg)
	for ch := range h.subs {
		// drop if the subscriber is slow
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *EventHub) retain(msg Event) {
	switch msg.Name {
	case ProcedurePhase:
		h.phase = &msg
	case OperatorPrompt:
		h.prompt = &msg
	case OperatorReply:
		h.prompt = nil
	case RunStarted:
		h.phase, h.prompt = nil, nil
	case RunFinished:
		h.prompt = nil
	}
}
