// Package generation drives generation jobs from submission to a finished
// project: it inserts the placeholder, polls the job status on its own ticker
// and swaps in the result.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/metrics"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/poller"
	"github.com/BroadApps-official/App-056/internal/realtime"
)

var (
	ErrUnknownJob     = errors.New("generation: unknown job")
	ErrClosed         = errors.New("generation: orchestrator closed")
	ErrInvalidRequest = errors.New("generation: invalid request")
)

const (
	notificationTitle = "AI Generation Complete!"
	notificationBody  = "Your AI-generated image is ready."
)

// Client is the part of the remote API the orchestrator needs.
type Client interface {
	SubmitGeneration(ctx context.Context, userID string, req models.GenerationRequest) (models.GenerationJob, error)
	JobStatus(ctx context.Context, userID, jobID string) (models.JobStatus, error)
}

type ProjectStore interface {
	Insert(ctx context.Context, p models.Project) error
	UpdateImage(ctx context.Context, id, imageURL string) error
	MarkFailed(ctx context.Context, id, reason string) error
	Loading(ctx context.Context) ([]models.Project, error)
}

type Entitlement interface {
	Require() error
}

// UserDirectory resolves the notification opt-in of a user.
type UserDirectory interface {
	Get(ctx context.Context, id string) (models.User, error)
}

// CompletionHook runs after a job completed and its project was updated.
type CompletionHook func(ctx context.Context, job models.JobView)

type Deps struct {
	Client   Client
	Projects ProjectStore
	// Gate and Users are optional.
	Gate  Entitlement
	Users UserDirectory
	Bus   realtime.Bus
}

type Options struct {
	PollInterval time.Duration
	NotifyAfter  time.Duration
	MaxFailures  int
	Deadline     time.Duration
	// Retention is how long a finished job stays listed. The project itself is
	// kept in the store.
	Retention time.Duration
}

type job struct {
	view   models.JobView
	cancel context.CancelFunc
}

type Orchestrator struct {
	deps Deps
	opts Options
	log  *logger.Logger
	now  func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	hooks  []CompletionHook
	closed bool
}

func New(deps Deps, opts Options, log *logger.Logger) *Orchestrator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		deps: deps,
		opts: opts,
		log:  log.With("service", "GenerationOrchestrator"),
		now:  func() time.Time { return time.Now().UTC() },
		ctx:  ctx,
		stop: stop,
		jobs: make(map[string]*job),
	}
}

// OnCompleted registers a hook called for every completed job.
func (o *Orchestrator) OnCompleted(hook CompletionHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, hook)
}

// Submit sends the request, stores the placeholder project and starts polling.
// When the remote submit fails nothing is stored and the returned view is in
// the failed state alongside the error.
func (o *Orchestrator) Submit(ctx context.Context, userID string, req models.GenerationRequest) (models.JobView, error) {
	if err := req.Validate(); err != nil {
		return models.JobView{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if o.deps.Gate != nil {
		if err := o.deps.Gate.Require(); err != nil {
			return models.JobView{}, err
		}
	}
	if o.isClosed() {
		return models.JobView{}, ErrClosed
	}

	metrics.JobSubmitted(string(req.Mode))
	started := o.now()
	view := models.JobView{
		UserID:    userID,
		Mode:      req.Mode,
		Category:  req.Mode.Category(),
		State:     models.JobSubmitting,
		StartedAt: started,
	}

	remote, err := o.deps.Client.SubmitGeneration(ctx, userID, req)
	if err == nil && remote.JobID == "" {
		err = errors.New("submit response carried no job id")
	}
	if err != nil {
		o.log.Warn("Generation submit failed", "user_id", userID, "mode", req.Mode, "error", err)
		metrics.JobFinished("submit_failed")
		view.State = models.JobFailed
		view.Error = err.Error()
		view.FinishedAt = &started
		return view, err
	}

	view.JobID = remote.JobID
	view.GenerationID = remote.GenerationID
	view.ServerStatus = remote.Status

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return models.JobView{}, ErrClosed
	}
	if existing, ok := o.jobs[view.JobID]; ok {
		current := existing.view
		o.mu.Unlock()
		o.log.Debug("Job already tracked", "job_id", view.JobID)
		return current, nil
	}
	o.jobs[view.JobID] = &job{view: view}
	o.mu.Unlock()

	placeholder := models.NewPlaceholder(view.JobID, userID, req.Mode, started)
	if err := o.deps.Projects.Insert(ctx, placeholder); err != nil {
		o.mu.Lock()
		delete(o.jobs, view.JobID)
		o.mu.Unlock()
		metrics.JobFinished("submit_failed")
		return models.JobView{}, fmt.Errorf("failed to store placeholder: %w", err)
	}

	o.log.Info("Generation submitted", "job_id", view.JobID, "user_id", userID, "mode", req.Mode)
	view, err = o.start(view.JobID)
	if err == nil && view.State == models.JobCancelled {
		// Cancel ran before the placeholder existed, so mark it here.
		if err := o.deps.Projects.MarkFailed(context.WithoutCancel(ctx), view.JobID, "cancelled"); err != nil {
			o.log.Error("Failed to mark project failed", "job_id", view.JobID, "error", err)
		}
	}
	return view, err
}

// Resume re-attaches pollers to projects left loading by a previous run.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	loading, err := o.deps.Projects.Loading(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, p := range loading {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return resumed, ErrClosed
		}
		if _, ok := o.jobs[p.ID]; ok {
			o.mu.Unlock()
			continue
		}
		o.jobs[p.ID] = &job{view: models.JobView{
			JobID:     p.ID,
			UserID:    p.UserID,
			Mode:      p.Mode,
			Category:  p.Category,
			State:     models.JobSubmitting,
			StartedAt: p.CreatedAt,
		}}
		o.mu.Unlock()

		if _, err := o.start(p.ID); err != nil {
			return resumed, err
		}
		resumed++
	}

	if resumed > 0 {
		o.log.Info("Resumed pending generations", "count", resumed)
	}
	return resumed, nil
}

func (o *Orchestrator) start(jobID string) (models.JobView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	j, ok := o.jobs[jobID]
	if !ok {
		return models.JobView{}, ErrUnknownJob
	}
	if o.closed {
		return j.view, ErrClosed
	}
	if j.view.State.Terminal() {
		return j.view, nil
	}

	ctx, cancel := context.WithCancel(o.ctx)
	j.cancel = cancel
	j.view.State = models.JobPolling

	o.wg.Add(2)
	go o.poll(ctx, jobID, j.view.UserID)
	go o.countdown(ctx, jobID, j.view.UserID)
	return j.view, nil
}

func (o *Orchestrator) poll(ctx context.Context, jobID, userID string) {
	defer o.wg.Done()
	metrics.PollerStarted()
	defer metrics.PollerStopped()

	log := o.log.With("job_id", jobID)
	var last models.JobStatus

	err := poller.Run(ctx, poller.Options{
		Interval:    o.opts.PollInterval,
		MaxFailures: o.opts.MaxFailures,
		Deadline:    o.opts.Deadline,
		OnError: func(err error, consecutive int) {
			metrics.PollRequest(false)
			o.update(jobID, func(v *models.JobView) { v.PollFailures = consecutive })
			log.Warn("Status poll failed", "consecutive", consecutive, "error", err)
		},
	}, func(ctx context.Context) (bool, error) {
		status, err := o.deps.Client.JobStatus(ctx, userID, jobID)
		if err != nil {
			return false, err
		}
		metrics.PollRequest(true)
		last = status
		o.update(jobID, func(v *models.JobView) {
			v.ServerStatus = status.Status
			v.PollFailures = 0
		})
		return models.IsCompletedStatus(status.Status) || models.IsFailedStatus(status.Status), nil
	})

	switch {
	case errors.Is(err, context.Canceled):
		// Cancelled or shutting down; a pending project is picked up by Resume.
		return
	case err != nil:
		o.fail(jobID, "status polling gave up: "+err.Error())
	case models.IsCompletedStatus(last.Status):
		o.complete(jobID, last)
	default:
		o.fail(jobID, "generation "+strings.ToLower(last.Status))
	}
}

// countdown flips NotifyAvailable once the job has run for NotifyAfter.
func (o *Orchestrator) countdown(ctx context.Context, jobID, userID string) {
	defer o.wg.Done()
	if o.opts.NotifyAfter <= 0 {
		return
	}

	timer := time.NewTimer(o.opts.NotifyAfter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if _, ok := o.update(jobID, func(v *models.JobView) { v.NotifyAvailable = true }); !ok {
		return
	}
	o.publish(realtime.EventNotifyAvailable, userID, realtime.NotifyAvailablePayload(jobID))
}

func (o *Orchestrator) complete(jobID string, status models.JobStatus) {
	url := status.Result()
	if url == "" {
		o.fail(jobID, "job completed without a result")
		return
	}

	view, ok := o.finish(jobID, models.JobCompleted, func(v *models.JobView) { v.ResultURL = url })
	if !ok {
		return
	}
	metrics.JobFinished("completed")

	ctx := context.WithoutCancel(o.ctx)
	if err := o.deps.Projects.UpdateImage(ctx, jobID, url); err != nil {
		o.log.Error("Failed to store generation result", "job_id", jobID, "error", err)
	}
	o.log.Info("Generation completed", "job_id", jobID, "user_id", view.UserID)

	o.notify(ctx, view)
	o.publish(realtime.EventGenerationCompleted, view.UserID, realtime.GenerationCompletedPayload(view))

	o.mu.Lock()
	hooks := append([]CompletionHook(nil), o.hooks...)
	o.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, view)
	}
}

func (o *Orchestrator) fail(jobID, reason string) {
	view, ok := o.finish(jobID, models.JobFailed, func(v *models.JobView) { v.Error = reason })
	if !ok {
		return
	}
	metrics.JobFinished("failed")
	o.log.Warn("Generation failed", "job_id", jobID, "reason", reason)

	if err := o.deps.Projects.MarkFailed(context.WithoutCancel(o.ctx), jobID, reason); err != nil {
		o.log.Error("Failed to mark project failed", "job_id", jobID, "error", err)
	}
	o.publish(realtime.EventGenerationFailed, view.UserID, realtime.GenerationFailedPayload(view))
}

// Cancel stops polling jobID. A response still in flight is discarded.
func (o *Orchestrator) Cancel(jobID string) error {
	view, ok := o.finish(jobID, models.JobCancelled, func(v *models.JobView) { v.Error = "cancelled" })
	if !ok {
		return ErrUnknownJob
	}
	metrics.JobFinished("cancelled")
	o.log.Info("Generation cancelled", "job_id", jobID)

	if err := o.deps.Projects.MarkFailed(context.WithoutCancel(o.ctx), jobID, "cancelled"); err != nil {
		o.log.Error("Failed to mark project failed", "job_id", jobID, "error", err)
	}
	o.publish(realtime.EventGenerationFailed, view.UserID, realtime.GenerationFailedPayload(view))
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, view models.JobView) {
	if o.deps.Users == nil {
		return
	}
	user, err := o.deps.Users.Get(ctx, view.UserID)
	if err != nil {
		o.log.Debug("Skipping notification; user lookup failed", "user_id", view.UserID, "error", err)
		return
	}
	if !user.NotificationsEnabled {
		return
	}
	o.publish(realtime.EventNotification, view.UserID, realtime.NotificationPayload(view.JobID, notificationTitle, notificationBody))
}

func (o *Orchestrator) Job(jobID string) (models.JobView, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prune()
	j, ok := o.jobs[jobID]
	if !ok {
		return models.JobView{}, false
	}
	return j.view, true
}

// Jobs lists the user's running jobs and those finished within Retention,
// newest first.
func (o *Orchestrator) Jobs(userID string) []models.JobView {
	o.mu.Lock()
	o.prune()
	out := make([]models.JobView, 0, len(o.jobs))
	for _, j := range o.jobs {
		if j.view.UserID == userID {
			out = append(out, j.view)
		}
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].JobID < out[k].JobID
		}
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	return out
}

// Close stops every poller and waits for them to return. Jobs still running
// keep their loading projects.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.stop()
	o.wg.Wait()
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// update applies fn to a job that is still running.
func (o *Orchestrator) update(jobID string, fn func(*models.JobView)) (models.JobView, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok || j.view.State.Terminal() {
		return models.JobView{}, false
	}
	fn(&j.view)
	return j.view, true
}

// finish moves a running job into state. Only the first caller wins, so a late
// poll result cannot overwrite a cancel or the other way round.
func (o *Orchestrator) finish(jobID string, state models.JobState, fn func(*models.JobView)) (models.JobView, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok || j.view.State.Terminal() {
		return models.JobView{}, false
	}
	now := o.now()
	j.view.State = state
	j.view.FinishedAt = &now
	if fn != nil {
		fn(&j.view)
	}
	if j.cancel != nil {
		j.cancel()
	}
	view := j.view
	o.prune()
	return view, true
}

// prune drops jobs finished more than Retention ago. o.mu must be held.
func (o *Orchestrator) prune() {
	cutoff := o.now().Add(-o.opts.Retention)
	for id, j := range o.jobs {
		if j.view.State.Terminal() && j.view.FinishedAt != nil && j.view.FinishedAt.Before(cutoff) {
			delete(o.jobs, id)
		}
	}
}

func (o *Orchestrator) publish(typ realtime.EventType, userID string, payload map[string]interface{}) {
	if o.deps.Bus == nil {
		return
	}
	if err := o.deps.Bus.Publish(context.WithoutCancel(o.ctx), realtime.Event{Type: typ, UserID: userID, Payload: payload}); err != nil {
		o.log.Warn("Failed to publish generation event", "event", typ, "error", err)
	}
}
