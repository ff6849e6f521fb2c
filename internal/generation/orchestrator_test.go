package generation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BroadApps-official/App-056/internal/avatarapi"
	"github.com/BroadApps-official/App-056/internal/generation"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/realtime"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/BroadApps-official/App-056/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	interval = 10 * time.Millisecond
	waitFor  = 2 * time.Second
)

// scriptedClient hands out job ids in order and answers status polls from a
// per-job script. The last entry of a script repeats. "ERR" answers with a
// transport error.
type scriptedClient struct {
	mu        sync.Mutex
	ids       []string
	submitErr error
	scripts   map[string][]string
	held      map[string]chan struct{}
	calls     map[string]int
}

func newScriptedClient(ids ...string) *scriptedClient {
	return &scriptedClient{
		ids:     ids,
		scripts: make(map[string][]string),
		held:    make(map[string]chan struct{}),
		calls:   make(map[string]int),
	}
}

func (c *scriptedClient) script(jobID string, statuses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[jobID] = statuses
}

// hold keeps jobID IN_QUEUE until the returned func is called.
func (c *scriptedClient) hold(jobID string) func() {
	ch := make(chan struct{})
	c.mu.Lock()
	c.held[jobID] = ch
	c.mu.Unlock()
	return func() { close(ch) }
}

func (c *scriptedClient) SubmitGeneration(ctx context.Context, userID string, req models.GenerationRequest) (models.GenerationJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return models.GenerationJob{}, c.submitErr
	}
	if len(c.ids) == 0 {
		return models.GenerationJob{}, errors.New("no more ids")
	}
	id := c.ids[0]
	c.ids = c.ids[1:]
	return models.GenerationJob{JobID: id, Mode: req.Mode, Status: models.StatusQueued}, nil
}

func (c *scriptedClient) JobStatus(ctx context.Context, userID, jobID string) (models.JobStatus, error) {
	c.mu.Lock()
	c.calls[jobID]++
	n := c.calls[jobID]
	script := c.scripts[jobID]
	held := c.held[jobID]
	c.mu.Unlock()

	if held != nil {
		select {
		case <-held:
		default:
			return models.JobStatus{Status: models.StatusQueued}, nil
		}
	}
	if len(script) == 0 {
		return models.JobStatus{Status: models.StatusQueued}, nil
	}
	idx := n - 1
	if idx >= len(script) {
		idx = len(script) - 1
	}
	status := script[idx]
	if status == "ERR" {
		return models.JobStatus{}, &avatarapi.Error{Kind: avatarapi.KindTransport, Op: "job status", Err: errors.New("offline")}
	}
	out := models.JobStatus{Status: status}
	if models.IsCompletedStatus(status) {
		url := "https://cdn.example/" + jobID + ".jpg"
		out.ResultURL = &url
	}
	return out, nil
}

func (c *scriptedClient) pollCount(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[jobID]
}

type denyGate struct{}

func (denyGate) Require() error { return errors.New("premium required") }

type harness struct {
	client   *scriptedClient
	projects *store.Projects
	users    *store.Users
	bus      *realtime.MemoryBus
	orch     *generation.Orchestrator
}

func newHarness(t *testing.T, client *scriptedClient, opts generation.Options) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	bus := realtime.NewMemoryBus(log)
	h := &harness{
		client:   client,
		projects: store.NewProjects(db, bus, log),
		users:    store.NewUsers(db, log),
		bus:      bus,
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = interval
	}
	h.orch = generation.New(generation.Deps{
		Client:   client,
		Projects: h.projects,
		Users:    h.users,
		Bus:      bus,
	}, opts, log)
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) waitState(t *testing.T, jobID string, state models.JobState) models.JobView {
	t.Helper()
	var view models.JobView
	require.Eventually(t, func() bool {
		v, ok := h.orch.Job(jobID)
		view = v
		return ok && v.State == state
	}, waitFor, interval/2)
	return view
}

func template() models.GenerationRequest {
	return models.GenerationRequest{Mode: models.ModeTemplate, TemplateID: 5, AvatarID: 9}
}

func TestSubmit_CompletesAfterQueueAndProcessing(t *testing.T) {
	client := newScriptedClient("J1")
	client.script("J1", models.StatusQueued, models.StatusProcessing, models.StatusCompleted)
	h := newHarness(t, client, generation.Options{})

	view, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	assert.Equal(t, "J1", view.JobID)
	assert.Equal(t, models.JobPolling, view.State)

	p, err := h.projects.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.True(t, p.IsLoading)
	assert.Equal(t, models.PlaceholderImage, p.ImageURL)
	assert.Equal(t, models.CategoryPreset, p.Category)

	done := h.waitState(t, "J1", models.JobCompleted)
	assert.Equal(t, "https://cdn.example/J1.jpg", done.ResultURL)
	assert.NotNil(t, done.FinishedAt)

	p, err = h.projects.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.False(t, p.IsLoading)
	assert.Equal(t, "https://cdn.example/J1.jpg", p.ImageURL)

	polls := client.pollCount("J1")
	assert.Equal(t, 3, polls)
	time.Sleep(5 * interval)
	assert.Equal(t, polls, client.pollCount("J1"), "no polls after completion")
}

func TestSubmit_ConcurrentJobsAreIndependent(t *testing.T) {
	client := newScriptedClient("A", "B")
	client.script("A", models.StatusCompleted)
	release := client.hold("B")
	h := newHarness(t, client, generation.Options{})

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	_, err = h.orch.Submit(context.Background(), "u1", models.GenerationRequest{Mode: models.ModeTextToImage, Prompt: "a fox"})
	require.NoError(t, err)

	h.waitState(t, "A", models.JobCompleted)
	b, ok := h.orch.Job("B")
	require.True(t, ok)
	assert.Equal(t, models.JobPolling, b.State)

	pb, err := h.projects.Get(context.Background(), "B")
	require.NoError(t, err)
	assert.True(t, pb.IsLoading)
	assert.Equal(t, models.CategoryArtwork, pb.Category)

	client.script("B", models.StatusCompleted)
	release()
	h.waitState(t, "B", models.JobCompleted)

	lists, err := h.projects.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, lists.Presets, 1)
	assert.Len(t, lists.Artworks, 1)
	assert.Len(t, h.orch.Jobs("u1"), 2)
}

func TestSubmit_DeletedProjectIsNotResurrected(t *testing.T) {
	client := newScriptedClient("J1")
	client.script("J1", models.StatusCompleted)
	release := client.hold("J1")
	h := newHarness(t, client, generation.Options{})

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	require.NoError(t, h.projects.Delete(context.Background(), "J1"))

	release()
	h.waitState(t, "J1", models.JobCompleted)

	_, err = h.projects.Get(context.Background(), "J1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmit_RemoteFailureStoresNothing(t *testing.T) {
	client := newScriptedClient()
	client.submitErr = &avatarapi.Error{Kind: avatarapi.KindApplication, Op: "generate", Message: "bad template"}
	h := newHarness(t, client, generation.Options{})

	view, err := h.orch.Submit(context.Background(), "u1", template())
	require.Error(t, err)
	assert.True(t, avatarapi.IsApplication(err))
	assert.Equal(t, models.JobFailed, view.State)

	lists, err := h.projects.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, lists.Presets)
	assert.Empty(t, h.orch.Jobs("u1"))
}

func TestSubmit_InvalidRequest(t *testing.T) {
	h := newHarness(t, newScriptedClient("J1"), generation.Options{})
	_, err := h.orch.Submit(context.Background(), "u1", models.GenerationRequest{Mode: models.ModeGodMode, AvatarID: 1})
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)
}

func TestSubmit_RequiresEntitlement(t *testing.T) {
	client := newScriptedClient("J1")
	db := testutil.DB(t)
	orch := generation.New(generation.Deps{
		Client:   client,
		Projects: store.NewProjects(db, nil, testutil.Logger(t)),
		Gate:     denyGate{},
	}, generation.Options{PollInterval: interval}, testutil.Logger(t))
	t.Cleanup(orch.Close)

	_, err := orch.Submit(context.Background(), "u1", template())
	require.Error(t, err)
	assert.Equal(t, 0, client.pollCount("J1"))
}

func TestPoll_FailureMarkerMarksProjectFailed(t *testing.T) {
	client := newScriptedClient("J1")
	client.script("J1", models.StatusProcessing, "FAILED")
	h := newHarness(t, client, generation.Options{})

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	view := h.waitState(t, "J1", models.JobFailed)
	assert.Contains(t, view.Error, "failed")

	p, err := h.projects.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.True(t, p.IsFailed)
	assert.False(t, p.IsLoading)
}

func TestPoll_GivesUpAfterConsecutiveErrors(t *testing.T) {
	client := newScriptedClient("J1")
	client.script("J1", "ERR")
	h := newHarness(t, client, generation.Options{MaxFailures: 3})

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	view := h.waitState(t, "J1", models.JobFailed)
	assert.Equal(t, 3, view.PollFailures)
	assert.Equal(t, 3, client.pollCount("J1"))
}

func TestPoll_TransientErrorsAreSwallowed(t *testing.T) {
	client := newScriptedClient("J1")
	client.script("J1", "ERR", "ERR", models.StatusProcessing, "ERR", models.StatusCompleted)
	h := newHarness(t, client, generation.Options{MaxFailures: 3})

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	view := h.waitState(t, "J1", models.JobCompleted)
	assert.Equal(t, 0, view.PollFailures)
}

func TestCancel_StopsPolling(t *testing.T) {
	client := newScriptedClient("J1")
	h := newHarness(t, client, generation.Options{})

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.pollCount("J1") > 0 }, waitFor, interval/2)

	require.NoError(t, h.orch.Cancel("J1"))
	view, ok := h.orch.Job("J1")
	require.True(t, ok)
	assert.Equal(t, models.JobCancelled, view.State)

	polls := client.pollCount("J1")
	time.Sleep(5 * interval)
	assert.LessOrEqual(t, client.pollCount("J1"), polls+1)

	assert.ErrorIs(t, h.orch.Cancel("J1"), generation.ErrUnknownJob)
	assert.ErrorIs(t, h.orch.Cancel("nope"), generation.ErrUnknownJob)

	p, err := h.projects.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.True(t, p.IsFailed)
}

func TestNotify_CountdownAndOptIn(t *testing.T) {
	client := newScriptedClient("J1")
	release := client.hold("J1")
	client.script("J1", models.StatusCompleted)
	h := newHarness(t, client, generation.Options{NotifyAfter: 2 * interval})

	_, _, err := h.users.Ensure(context.Background(), "u1", models.GenderFemale)
	require.NoError(t, err)
	_, err = h.users.SetNotifications(context.Background(), "u1", true)
	require.NoError(t, err)

	events, stop := h.bus.Subscribe("u1")
	defer stop()

	_, err = h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, _ := h.orch.Job("J1")
		return v.NotifyAvailable
	}, waitFor, interval/2)

	release()
	h.waitState(t, "J1", models.JobCompleted)

	seen := map[realtime.EventType]bool{}
	timeout := time.After(waitFor)
	for !seen[realtime.EventGenerationCompleted] {
		select {
		case evt := <-events:
			seen[evt.Type] = true
		case <-timeout:
			t.Fatal("generation_completed not published")
		}
	}
	assert.True(t, seen[realtime.EventNotifyAvailable])
	assert.True(t, seen[realtime.EventNotification])
	assert.True(t, seen[realtime.EventProjectCreated])
}

func TestResume_ReattachesLoadingProjects(t *testing.T) {
	client := newScriptedClient()
	client.script("OLD", models.StatusCompleted)
	h := newHarness(t, client, generation.Options{})

	require.NoError(t, h.projects.Insert(context.Background(),
		models.NewPlaceholder("OLD", "u1", models.ModeGodMode, time.Now().UTC())))

	n, err := h.orch.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h.waitState(t, "OLD", models.JobCompleted)
	p, err := h.projects.Get(context.Background(), "OLD")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/OLD.jpg", p.ImageURL)

	n, err = h.orch.Resume(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOnCompleted_HookSeesResult(t *testing.T) {
	client := newScriptedClient("J1")
	client.script("J1", models.StatusCompleted)
	h := newHarness(t, client, generation.Options{})

	got := make(chan models.JobView, 1)
	h.orch.OnCompleted(func(ctx context.Context, job models.JobView) { got <- job })

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)

	select {
	case job := <-got:
		assert.Equal(t, "J1", job.JobID)
		assert.Equal(t, "u1", job.UserID)
	case <-time.After(waitFor):
		t.Fatal("hook not called")
	}
}

func TestClose_RejectsNewWork(t *testing.T) {
	h := newHarness(t, newScriptedClient("J1"), generation.Options{})
	h.orch.Close()
	_, err := h.orch.Submit(context.Background(), "u1", template())
	assert.ErrorIs(t, err, generation.ErrClosed)
}

// cancellingStore cancels the job while its placeholder is being inserted, the
// window between registering a job and starting its poller.
type cancellingStore struct {
	*store.Projects
	orch *generation.Orchestrator
}

func (s *cancellingStore) Insert(ctx context.Context, p models.Project) error {
	if err := s.orch.Cancel(p.ID); err != nil {
		return err
	}
	return s.Projects.Insert(ctx, p)
}

func TestSubmit_CancelBeforePollingStarts(t *testing.T) {
	client := newScriptedClient("J1")
	client.script("J1", models.StatusCompleted)
	db := testutil.DB(t)
	projects := store.NewProjects(db, nil, testutil.Logger(t))
	cs := &cancellingStore{Projects: projects}
	cs.orch = generation.New(generation.Deps{Client: client, Projects: cs}, generation.Options{PollInterval: interval}, testutil.Logger(t))
	t.Cleanup(cs.orch.Close)

	view, err := cs.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, view.State)

	time.Sleep(5 * interval)
	assert.Equal(t, 0, client.pollCount("J1"))
	current, ok := cs.orch.Job("J1")
	require.True(t, ok)
	assert.Equal(t, models.JobCancelled, current.State)

	p, err := projects.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.True(t, p.IsFailed)
	assert.False(t, p.IsLoading)
}

func TestJobs_FinishedJobsArePruned(t *testing.T) {
	client := newScriptedClient("J1", "J2")
	client.script("J1", models.StatusCompleted)
	release := client.hold("J2")
	defer release()
	h := newHarness(t, client, generation.Options{Retention: 10 * interval})

	_, err := h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	_, err = h.orch.Submit(context.Background(), "u1", template())
	require.NoError(t, err)
	h.waitState(t, "J1", models.JobCompleted)

	require.Eventually(t, func() bool {
		_, ok := h.orch.Job("J1")
		return !ok
	}, waitFor, interval)

	jobs := h.orch.Jobs("u1")
	require.Len(t, jobs, 1)
	assert.Equal(t, "J2", jobs[0].JobID)

	p, err := h.projects.Get(context.Background(), "J1")
	require.NoError(t, err)
	assert.False(t, p.IsLoading)
}
