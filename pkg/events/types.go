package events

import "encoding/json"

// Event name constants
const (
	RunStarted     = "run.started"
	RunFinished    = "run.finished"
	ProcedurePhase = "procedure.phase"
	ResultTable    = "procedure.table"
	OperatorPrompt = "operator.prompt"
	OperatorReply  = "operator.reply"
	OperatorNotice = "operator.notice"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ProcedurePhaseEvent is the typed payload for procedure.phase.
type ProcedurePhaseEvent struct {
	Procedure string `json:"procedure"`
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message,omitempty"`
	Ts        int64  `json:"ts"`
}

// OperatorPromptEvent is the typed payload for operator.prompt.
type OperatorPromptEvent struct {
	ID          int64  `json:"id"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	Acknowledge bool   `json:"acknowledge"`
	Ts          int64  `json:"ts"`
}

// OperatorReplyEvent is the typed payload for operator.reply.
type OperatorReplyEvent struct {
	ID     int64  `json:"id"`
	Answer string `json:"answer"`
	Ts     int64  `json:"ts"`
}

// NoticeEvent is the typed payload for operator.notice and run events.
type NoticeEvent struct {
	Message string `json:"message"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.OperatorPromptEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.ID, payload.Text)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
