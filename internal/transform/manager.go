package transform

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/classify"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
)

// ReasonCancelled is the failure reason of a cancelled job.
const ReasonCancelled = "cancelled"

var errManagerClosed = errors.New("transform: manager closed")

// finishedRetention is how long terminal jobs stay queryable.
const finishedRetention = time.Hour

// Job tracks one conversion. It lives only in memory: after a restart a
// job has to be re-triggered.
type Job struct {
	ID                 string              `json:"id"`
	SourcePath         string              `json:"source_path"`
	Partition          models.Partition    `json:"partition"`
	ExpectedOutputName string              `json:"expected_output_name"`
	TriggeredAt        time.Time           `json:"triggered_at"`
	Status             models.JobStatus    `json:"status"`
	Error              string              `json:"error,omitempty"`
	Retryable          bool                `json:"retryable,omitempty"`
	Output             *storage.ObjectInfo `json:"output,omitempty"`
	FinishedAt         *time.Time          `json:"finished_at,omitempty"`
}

type jobEntry struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Manager triggers jobs and runs their pollers.
type Manager struct {
	trigger Trigger
	poller  *Poller
	clock   Clock
	logger  *slog.Logger
	onDone  func(Job)

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	jobs   map[string]*jobEntry
	closed bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithOnDone registers a callback for jobs reaching a terminal state.
func WithOnDone(fn func(Job)) ManagerOption {
	return func(m *Manager) { m.onDone = fn }
}

// NewManager creates a manager. The poller's clock also stamps jobs.
func NewManager(trigger Trigger, poller *Poller, opts ...ManagerOption) *Manager {
	base, stop := context.WithCancel(context.Background())
	m := &Manager{
		trigger: trigger,
		poller:  poller,
		clock:   poller.clock,
		logger:  slog.Default(),
		base:    base,
		stop:    stop,
		jobs:    make(map[string]*jobEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start records the freshness cutoff, triggers the job and returns while
// polling continues in the background. A trigger failure is returned
// immediately and the job is recorded as failed.
func (m *Manager) Start(ctx context.Context, a models.Artifact) (Job, error) {
	e, err := m.begin(ctx, a)
	if err != nil {
		return m.view(e), err
	}
	m.launch(e)
	return m.view(e), nil
}

// Run triggers the job and waits for it to finish. Ending ctx cancels it.
func (m *Manager) Run(ctx context.Context, a models.Artifact) (Job, error) {
	e, err := m.begin(ctx, a)
	if err != nil {
		return m.view(e), err
	}
	m.launch(e)

	select {
	case <-e.done:
	case <-ctx.Done():
		e.cancel()
		<-e.done
	}
	return m.view(e), e.err
}

// Get returns a snapshot of a job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Job{}, apperr.New(apperr.KindNotFound, "job", id, "unknown job")
	}
	return e.job, nil
}

// List returns every tracked job, newest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	out := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out
}

// Cancel stops polling for a job. Cancelling a finished job is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return apperr.New(apperr.KindNotFound, "job", id, "unknown job")
	}
	e.cancel()
	<-e.done
	return nil
}

// Close cancels every running job and waits for the pollers to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.stop()
	m.wg.Wait()
}

func (m *Manager) begin(ctx context.Context, a models.Artifact) (*jobEntry, error) {
	source := a.Partition.ObjectPath(a.Name)
	e := &jobEntry{
		job: Job{
			ID:                 uuid.NewString(),
			SourcePath:         source,
			Partition:          a.Partition,
			ExpectedOutputName: ExpectedOutputName(a.Name),
		},
		done: make(chan struct{}),
	}

	if !classify.NeedsTransform(a) {
		err := apperr.New(apperr.KindValidation, "transform", a.Path(),
			"only tabular Locations/Rooms documents are converted")
		e.job.Status = models.JobFailed
		e.job.Error = err.Error()
		close(e.done)
		return e, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(e.done)
		return e, errManagerClosed
	}
	e.ctx, e.cancel = context.WithCancel(m.base)
	// The cutoff is taken before the trigger so output written by a fast
	// job still counts as fresh.
	e.job.TriggeredAt = m.clock.Now()
	m.mu.Unlock()

	if err := m.trigger.Trigger(ctx, source); err != nil {
		m.finish(e, nil, err)
		e.cancel()
		close(e.done)
		m.register(e)
		return e, err
	}
	e.job.Status = models.JobTriggered
	// Only jobs with a known status become visible to Get and List.
	if !m.register(e) {
		m.finish(e, nil, context.Canceled)
		e.cancel()
		close(e.done)
		return e, errManagerClosed
	}
	m.logger.Info("transform: triggered",
		slog.String("job", e.job.ID),
		slog.String("source", source),
		slog.String("expected", e.job.ExpectedOutputName))
	return e, nil
}

// register adds e to the registry and, for a live job, reserves its poller
// in wg so Close waits for it. It reports false once the manager is closed;
// failed jobs are recorded regardless.
func (m *Manager) register(e *jobEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	if e.job.Status.Terminal() {
		m.jobs[e.job.ID] = e
		return true
	}
	if m.closed {
		return false
	}
	m.jobs[e.job.ID] = e
	m.wg.Add(1)
	return true
}

func (m *Manager) launch(e *jobEntry) {
	go func() {
		defer m.wg.Done()
		defer close(e.done)
		defer e.cancel()

		m.setStatus(e, models.JobPolling)
		out, err := m.poller.Poll(e.ctx, e.job.Partition, e.job.ExpectedOutputName, e.job.TriggeredAt)
		if err != nil {
			m.finish(e, nil, err)
			return
		}
		m.finish(e, &out, nil)
	}()
}

func (m *Manager) finish(e *jobEntry, out *storage.ObjectInfo, err error) {
	now := m.clock.Now()
	m.mu.Lock()
	e.err = err
	e.job.FinishedAt = &now
	e.job.Output = out
	switch {
	case err == nil:
		e.job.Status = models.JobSucceeded
	case errors.Is(err, context.Canceled):
		e.job.Status = models.JobFailed
		e.job.Error = ReasonCancelled
	case errors.Is(err, apperr.ErrTimeout):
		e.job.Status = models.JobTimedOut
		e.job.Error = err.Error()
		e.job.Retryable = true
	default:
		e.job.Status = models.JobFailed
		e.job.Error = err.Error()
		e.job.Retryable = apperr.Retryable(err)
	}
	job := e.job
	m.mu.Unlock()

	attrs := []any{slog.String("job", job.ID), slog.String("status", string(job.Status))}
	if job.Error != "" {
		attrs = append(attrs, slog.String("error", job.Error))
	}
	if job.Status == models.JobSucceeded {
		m.logger.Info("transform: job finished", attrs...)
	} else {
		m.logger.Warn("transform: job finished", attrs...)
	}
	if m.onDone != nil {
		m.onDone(job)
	}
}

func (m *Manager) setStatus(e *jobEntry, s models.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !e.job.Status.Terminal() {
		e.job.Status = s
	}
}

func (m *Manager) view(e *jobEntry) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return e.job
}

// prune drops terminal jobs past retention. Caller holds mu.
func (m *Manager) prune() {
	cutoff := m.clock.Now().Add(-finishedRetention)
	for id, e := range m.jobs {
		if e.job.Status.Terminal() && e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}
