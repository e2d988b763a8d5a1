// Package job implements the Job Orchestrator (spec.md §4.8): accepts a
// validated request, assigns an id, runs the pipeline on an isolated
// goroutine, multiplexes progress to subscribers, and persists the
// finalized report. Grounded on the teacher's DebateManager/
// DebateOrchestrator pair (pkg/core/debate/manager.go,
// pkg/core/debate/orchestrator.go): a mutex-guarded map of per-job state
// plus a background cleanup goroutine, generalized from a single debate
// flow to the engine's Queued/Running/terminal state machine.
package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ncrc/justdata/pkg/core/engerr"
	"github.com/ncrc/justdata/pkg/core/filterset"
	"github.com/ncrc/justdata/pkg/core/logging"
	"github.com/ncrc/justdata/pkg/core/pipeline"
	"github.com/ncrc/justdata/pkg/core/progress"
	"github.com/ncrc/justdata/pkg/core/recipe"
	"github.com/ncrc/justdata/pkg/core/report"
	"github.com/ncrc/justdata/pkg/core/store"
)

// State is one of the job state machine's values (spec.md §4.8).
type State string

const (
	Queued    State = "Queued"
	Running   State = "Running"
	Succeeded State = "Succeeded"
	Failed    State = "Failed"
	Cancelled State = "Cancelled"
)

func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// Status is the snapshot returned by Orchestrator.Get.
type Status struct {
	JobID       string
	State       State
	LastEvent   progress.Event
	ReportID    string
	FailReason  string
	SubmittedAt time.Time
}

// job is the orchestrator's internal record for one submitted request.
type job struct {
	id        string
	state     State
	lastEvent progress.Event
	failCode  string

	channel *progress.Channel
	cancel  context.CancelFunc

	submittedAt time.Time
	updatedAt   time.Time
}

// Orchestrator is the process-wide job table (spec.md §5: "the Job
// Orchestrator's job table (guarded by a mutex — all transitions go
// through it)").
type Orchestrator struct {
	mu   sync.RWMutex
	jobs map[string]*job

	pipeline *pipeline.Pipeline
	store    *store.Store
	log      *zap.Logger

	wallClock time.Duration
	stop      chan struct{}
}

// New constructs an Orchestrator and starts its background janitor
// goroutine (grounded on DebateManager.cleanup's hourly ticker).
func New(p *pipeline.Pipeline, st *store.Store, log *zap.Logger, wallClock time.Duration) *Orchestrator {
	if wallClock <= 0 {
		wallClock = 20 * time.Minute
	}
	o := &Orchestrator{
		jobs:      make(map[string]*job),
		pipeline:  p,
		store:     st,
		log:       log,
		wallClock: wallClock,
		stop:      make(chan struct{}),
	}
	go o.janitor()
	return o
}

// Submit validates the request, assigns a job id, and spawns the pipeline
// on an isolated goroutine, returning immediately (spec.md §4.8
// "submit(request) -> jobId. Synchronous; validates the request").
func (o *Orchestrator) Submit(fs filterset.FilterSet, rec recipe.Recipe) (string, error) {
	canon := fs.Canonicalize()
	if err := canon.Validate(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	ctx, cancelWall := context.WithTimeout(ctx, o.wallClock)

	j := &job{
		id:          id,
		state:       Queued,
		channel:     progress.New(),
		cancel:      func() { cancelWall(); cancel() },
		submittedAt: time.Now(),
		updatedAt:   time.Now(),
	}

	o.mu.Lock()
	o.jobs[id] = j
	o.mu.Unlock()

	go o.run(ctx, j, canon, rec)

	return id, nil
}

func (o *Orchestrator) run(ctx context.Context, j *job, fs filterset.FilterSet, rec recipe.Recipe) {
	o.setState(j, Running, "")
	if o.log != nil {
		logging.ForJob(o.log, j.id, string(rec.Name)).Info("job started", zap.String("state", string(Running)))
	}

	go o.trackProgress(j)

	rep, err := o.pipeline.Run(ctx, j.id, fs, rec, j.channel)
	if err != nil {
		o.finish(j, nil, err)
		return
	}
	o.finish(j, rep, nil)
}

// trackProgress mirrors every event the pipeline publishes into j.lastEvent
// so Get() can report the latest status without each caller subscribing to
// the channel itself.
func (o *Orchestrator) trackProgress(j *job) {
	sub, backlog := j.channel.Subscribe()
	if len(backlog) > 0 {
		o.mu.Lock()
		j.lastEvent = backlog[len(backlog)-1]
		o.mu.Unlock()
	}
	for e := range sub {
		o.mu.Lock()
		j.lastEvent = e
		o.mu.Unlock()
	}
}

// finish transitions a job to its terminal state and, on success, persists
// the report (spec.md §4.8 state machine; §3 "A Report comes into
// existence only when all pipeline stages for its job have completed
// without fatal error").
func (o *Orchestrator) finish(j *job, rep *report.Report, err error) {
	if err == nil {
		o.store.Save(rep)
		o.setState(j, Succeeded, "")
		o.publishTerminal(j, Succeeded, "")
		return
	}

	var cancelled *engerr.Cancelled
	var timeout *engerr.Timeout
	switch {
	case errors.As(err, &cancelled):
		o.setState(j, Cancelled, "")
		o.publishTerminal(j, Cancelled, "")
	case errors.As(err, &timeout):
		o.setState(j, Failed, "timeout")
		o.publishTerminal(j, Failed, "timeout")
	default:
		o.setState(j, Failed, err.Error())
		o.publishTerminal(j, Failed, err.Error())
	}
}

func (o *Orchestrator) publishTerminal(j *job, state State, reason string) {
	// Derived from the channel's own published history, not the
	// asynchronously-updated j.lastEvent cache (trackProgress runs on a
	// separate goroutine and is not guaranteed to have observed the
	// pipeline's final event yet) — Seq must stay strictly monotonic
	// (spec.md §5, testable properties 7/9).
	seq := j.channel.NextSeq()

	stateLabel := string(state)
	if reason != "" {
		stateLabel += ":" + reason
	}
	j.channel.Publish(progress.Event{
		Seq:      seq,
		Percent:  100,
		Status:   string(state),
		Terminal: true,
		State:    stateLabel,
	})
}

func (o *Orchestrator) setState(j *job, s State, failCode string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j.state = s
	j.failCode = failCode
	j.updatedAt = time.Now()
}

// Subscribe returns a channel delivering ordered progress events until the
// job is terminal, plus the backlog already published (spec.md §4.8).
func (o *Orchestrator) Subscribe(jobID string) (<-chan progress.Event, []progress.Event, error) {
	o.mu.RLock()
	j, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil, nil, errNotFound
	}
	ch, backlog := j.channel.Subscribe()
	return ch, backlog, nil
}

// Cancel signals the running pipeline; returns false if the job is already
// terminal (spec.md §4.8 "cancel(jobId) -> bool").
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.RLock()
	j, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return false
	}
	o.mu.RLock()
	terminal := j.state.Terminal()
	o.mu.RUnlock()
	if terminal {
		return false
	}
	j.cancel()
	return true
}

// Get returns the current status of jobID.
func (o *Orchestrator) Get(jobID string) (Status, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return Status{}, errNotFound
	}
	return Status{
		JobID:       j.id,
		State:       j.state,
		LastEvent:   j.lastEvent,
		ReportID:    j.id,
		FailReason:  j.failCode,
		SubmittedAt: j.submittedAt,
	}, nil
}

var errNotFound = errors.New("job: not found")

// janitor evicts terminal job records last updated more than 24 hours ago
// (a fixed age, independent of the report store's TTL) so the job table
// does not grow unbounded, mirroring
// DebateManager.cleanup's hourly sweep.
func (o *Orchestrator) janitor() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.mu.Lock()
			for id, j := range o.jobs {
				if j.state.Terminal() && time.Since(j.updatedAt) > 24*time.Hour {
					delete(o.jobs, id)
				}
			}
			o.mu.Unlock()
		case <-o.stop:
			return
		}
	}
}

// Close stops the background janitor.
func (o *Orchestrator) Close() {
	close(o.stop)
}
