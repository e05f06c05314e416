package procedure

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/events"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/operator"
)

// Observer is told about every phase change and every result table.
type Observer interface {
	Phase(proc calibration.Procedure, from, to calibration.Phase, msg string)
	Table(t calibration.Table)
}

// ErrRunInProgress is returned when a run is started while another one is
// still going.
var ErrRunInProgress = errors.New("a calibration run is already in progress")

// DefaultResetTimeout bounds the instrument reset after a procedure.
const DefaultResetTimeout = 10 * time.Second

// pendingPrompter is implemented by channels that can report the question
// currently shown to the operator.
type pendingPrompter interface {
	Pending() *calibration.Prompt
}

// Runner executes procedures one after another. Each procedure holds the
// station's bus lock for its whole run and the station is reset after it,
// whatever the outcome.
type Runner struct {
	cfg      *config.Calibration
	station  *instrument.Station
	operator operator.Channel
	hub      *events.EventHub

	// Sleep replaces the pause between readings when set.
	Sleep        func(ctx context.Context, d time.Duration) error
	ResetTimeout time.Duration

	mu      sync.Mutex
	running bool
	status  calibration.Status
	tables  []calibration.Table
	results []Procedure
}

// NewRunner returns an idle runner. hub may be nil.
func NewRunner(cfg *config.Calibration, st *instrument.Station, op operator.Channel, hub *events.EventHub) *Runner {
	return &Runner{
		cfg:          cfg,
		station:      st,
		operator:     op,
		hub:          hub,
		ResetTimeout: DefaultResetTimeout,
		status: calibration.Status{
			Standard: cfg.Standard,
			Phase:    calibration.PhaseIdle,
		},
	}
}

// Plan returns the procedures of the configured standard, restricted to
// only when it is not empty. The standard's order is kept.
func (r *Runner) Plan(only []calibration.Procedure) ([]calibration.Procedure, error) {
	all, err := r.cfg.Standard.Procedures()
	if err != nil {
		return nil, err
	}
	if len(only) == 0 {
		return all, nil
	}
	want := make(map[calibration.Procedure]bool, len(only))
	for _, id := range only {
		want[id] = true
	}
	var out []calibration.Procedure
	for _, id := range all {
		if want[id] {
			out = append(out, id)
			delete(want, id)
		}
	}
	for id := range want {
		return nil, fmt.Errorf("procedure %q is not part of standard %s", string(id), r.cfg.Standard)
	}
	return out, nil
}

// Status returns a snapshot of the current or last run.
func (r *Runner) Status() calibration.Status {
	r.mu.Lock()
	st := r.status
	st.Completed = append([]calibration.Procedure{}, r.status.Completed...)
	st.Pending = append([]calibration.Procedure{}, r.status.Pending...)
	st.Tables = len(r.tables)
	r.mu.Unlock()

	if pp, ok := r.operator.(pendingPrompter); ok {
		st.Prompt = pp.Pending()
	}
	return st
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Tables returns every table produced by the current or last run, in order.
func (r *Runner) Tables() []calibration.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]calibration.Table(nil), r.tables...)
}

// Results returns the finished procedures with their typed rows.
func (r *Runner) Results() []Procedure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Procedure(nil), r.results...)
}

// Run executes ids in order and stops at the first error. Cancelling ctx
// aborts the procedure at its next prompt or tuner iteration.
func (r *Runner) Run(ctx context.Context, ids []calibration.Procedure) error {
	procs := make([]Procedure, 0, len(ids))
	for _, id := range ids {
		p, err := New(id)
		if err != nil {
			return err
		}
		procs = append(procs, p)
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunInProgress
	}
	r.running = true
	r.status = calibration.Status{
		RunID:     uuid.NewString(),
		Standard:  r.cfg.Standard,
		Phase:     calibration.PhaseIdle,
		StartedAt: time.Now(),
		Completed: []calibration.Procedure{},
		Pending:   append([]calibration.Procedure{}, ids...),
	}
	r.tables = nil
	r.results = nil
	runID := r.status.RunID
	r.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"run":      runID,
		"standard": r.cfg.Standard,
	})
	log.WithField("procedures", ids).Info("calibration run started")
	r.hub.Publish(events.RunStarted, events.NoticeEvent{
		Message: fmt.Sprintf("run %s started: %d procedures", runID, len(ids)),
		Ts:      time.Now().Unix(),
	})

	var runErr error
	for _, p := range procs {
		if runErr = r.runOne(ctx, p); runErr != nil {
			break
		}
	}

	r.mu.Lock()
	r.running = false
	r.status.FinishedAt = time.Now()
	r.status.Procedure = ""
	switch {
	case runErr == nil:
		r.status.Phase = calibration.PhaseDone
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		r.status.Phase = calibration.PhaseCancelled
		r.status.LastError = runErr.Error()
	default:
		r.status.Phase = calibration.PhaseError
		r.status.LastError = runErr.Error()
	}
	phase := r.status.Phase
	r.mu.Unlock()

	if runErr != nil {
		log.WithError(runErr).WithField("phase", phase).Error("calibration run stopped")
	} else {
		log.Info("calibration run finished")
	}
	r.hub.Publish(events.RunFinished, events.NoticeEvent{
		Message: fmt.Sprintf("run %s finished: %s", runID, phase),
		Ts:      time.Now().Unix(),
	})
	return runErr
}

func (r *Runner) runOne(ctx context.Context, p Procedure) (err error) {
	id := p.ID()
	release, err := r.station.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s := NewSession(r.cfg, r.station, r.operator, runnerObserver{r})
	if r.Sleep != nil {
		s.Sleep = r.Sleep
	}
	s.begin(id)

	r.mu.Lock()
	r.status.Procedure = id
	r.status.Phase = calibration.PhaseIdle
	r.mu.Unlock()

	log := logrus.WithField("procedure", id)
	log.Infof("starting %s", Title(id))
	start := time.Now()

	defer func() {
		// Reset even when ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.ResetTimeout)
		defer cancel()
		if rerr := r.station.Reset(rctx, 0); rerr != nil {
			log.WithError(rerr).Warn("failed to reset instruments")
			if err == nil {
				err = rerr
			}
		}
	}()

	if err := p.Run(ctx, s); err != nil {
		return pkgerrors.Wrapf(err, "%s", id)
	}

	r.mu.Lock()
	r.status.Completed = append(r.status.Completed, id)
	for i, pending := range r.status.Pending {
		if pending == id {
			r.status.Pending = append(r.status.Pending[:i], r.status.Pending[i+1:]...)
			break
		}
	}
	r.results = append(r.results, p)
	r.mu.Unlock()

	log.WithField("elapsed", time.Since(start).Round(time.Second)).Info("procedure finished")
	return nil
}

type runnerObserver struct{ r *Runner }

func (o runnerObserver) Phase(proc calibration.Procedure, from, to calibration.Phase, msg string) {
	o.r.mu.Lock()
	o.r.status.Phase = to
	o.r.mu.Unlock()
	o.r.hub.Publish(events.ProcedurePhase, events.ProcedurePhaseEvent{
		Procedure: string(proc),
		From:      string(from),
		To:        string(to),
		Message:   msg,
		Ts:        time.Now().Unix(),
	})
}

func (o runnerObserver) Table(t calibration.Table) {
	o.r.mu.Lock()
	o.r.tables = append(o.r.tables, t)
	o.r.mu.Unlock()
	o.r.hub.Publish(events.ResultTable, t)
}
