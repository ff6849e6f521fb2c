package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/BroadApps-official/App-056/internal/realtime"
	"github.com/BroadApps-official/App-056/internal/store"
	"github.com/BroadApps-official/App-056/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProjects(t *testing.T) (*store.Projects, *realtime.MemoryBus) {
	t.Helper()
	bus := realtime.NewMemoryBus(logger.NewNop())
	return store.NewProjects(testutil.DB(t), bus, testutil.Logger(t)), bus
}

func placeholder(id string, mode models.GenerationMode, at time.Time) models.Project {
	return models.NewPlaceholder(id, "u1", mode, at)
}

func TestProjects_InsertIsIdempotent(t *testing.T) {
	projects, bus := newProjects(t)
	ctx := context.Background()
	events, stop := bus.Subscribe("u1")
	defer stop()

	p := placeholder("J1", models.ModeTemplate, time.Now())
	require.NoError(t, projects.Insert(ctx, p))
	require.NoError(t, projects.Insert(ctx, p))

	lists, err := projects.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lists.Presets, 1)
	assert.Empty(t, lists.Artworks)
	assert.Equal(t, models.PlaceholderImage, lists.Presets[0].ImageURL)
	assert.True(t, lists.Presets[0].IsLoading)

	evt := <-events
	assert.Equal(t, realtime.EventProjectCreated, evt.Type)
	select {
	case extra := <-events:
		t.Fatalf("unexpected second event %v", extra.Type)
	default:
	}
}

func TestProjects_UpdateImage(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()
	require.NoError(t, projects.Insert(ctx, placeholder("J1", models.ModeTextToImage, time.Now())))

	require.NoError(t, projects.UpdateImage(ctx, "J1", "https://x/r.png"))
	once, err := projects.Get(ctx, "J1")
	require.NoError(t, err)

	require.NoError(t, projects.UpdateImage(ctx, "J1", "https://x/r.png"))
	twice, err := projects.Get(ctx, "J1")
	require.NoError(t, err)

	assert.Equal(t, "https://x/r.png", once.ImageURL)
	assert.False(t, once.IsLoading)
	assert.Equal(t, once.ImageURL, twice.ImageURL)
	assert.Equal(t, once.IsLoading, twice.IsLoading)
	assert.Equal(t, once.UpdatedAt, twice.UpdatedAt)
}

func TestProjects_UpdateMissingIsNoop(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()

	require.NoError(t, projects.UpdateImage(ctx, "gone", "https://x/r.png"))
	_, err := projects.Get(ctx, "gone")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProjects_DeleteThenUpdateDoesNotResurrect(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()
	require.NoError(t, projects.Insert(ctx, placeholder("J1", models.ModeTemplate, time.Now())))

	require.NoError(t, projects.Delete(ctx, "J1"))
	require.NoError(t, projects.UpdateImage(ctx, "J1", "https://x/r.png"))
	require.NoError(t, projects.MarkFailed(ctx, "J1", "late"))

	lists, err := projects.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, lists.Presets)
	assert.ErrorIs(t, projects.Delete(ctx, "J1"), store.ErrNotFound)
}

func TestProjects_MarkFailed(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()
	require.NoError(t, projects.Insert(ctx, placeholder("J1", models.ModeTemplate, time.Now())))
	require.NoError(t, projects.Insert(ctx, placeholder("J2", models.ModeTemplate, time.Now())))
	require.NoError(t, projects.UpdateImage(ctx, "J2", "https://x/2.png"))

	require.NoError(t, projects.MarkFailed(ctx, "J1", "too many failures"))
	require.NoError(t, projects.MarkFailed(ctx, "J2", "too many failures"))

	failed, err := projects.Get(ctx, "J1")
	require.NoError(t, err)
	assert.True(t, failed.IsFailed)
	assert.False(t, failed.IsLoading)
	assert.Equal(t, "too many failures", failed.FailureReason)

	done, err := projects.Get(ctx, "J2")
	require.NoError(t, err)
	assert.False(t, done.IsFailed)
	assert.Equal(t, "https://x/2.png", done.ImageURL)
}

func TestProjects_ListOrderAndBuckets(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, projects.Insert(ctx, placeholder("old", models.ModeTemplate, base)))
	require.NoError(t, projects.Insert(ctx, placeholder("new", models.ModeTemplate, base.Add(time.Hour))))
	require.NoError(t, projects.Insert(ctx, placeholder("b", models.ModeGodMode, base)))
	require.NoError(t, projects.Insert(ctx, placeholder("a", models.ModeTextToImage, base)))

	lists, err := projects.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lists.Presets, 2)
	require.Len(t, lists.Artworks, 2)
	assert.Equal(t, "new", lists.Presets[0].ID)
	assert.Equal(t, "old", lists.Presets[1].ID)
	assert.Equal(t, "a", lists.Artworks[0].ID)
	assert.Equal(t, "b", lists.Artworks[1].ID)
}

func TestProjects_DeleteManyAndSelection(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, projects.Insert(ctx, placeholder(id, models.ModeTextToImage, time.Now())))
	}
	other := models.NewPlaceholder("X", "u2", models.ModeTextToImage, time.Now())
	require.NoError(t, projects.Insert(ctx, other))

	require.NoError(t, projects.SetSelected(ctx, "A", true))
	a, err := projects.Get(ctx, "A")
	require.NoError(t, err)
	assert.True(t, a.IsSelected)
	assert.ErrorIs(t, projects.SetSelected(ctx, "missing", true), store.ErrNotFound)

	removed, err := projects.DeleteMany(ctx, "u1", []string{"A", "B", "X", "missing"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, removed)

	_, err = projects.Get(ctx, "X")
	assert.NoError(t, err)
	lists, err := projects.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, lists.Artworks, 1)
	assert.Equal(t, "C", lists.Artworks[0].ID)
}

func TestProjects_Loading(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()
	require.NoError(t, projects.Insert(ctx, placeholder("J1", models.ModeTemplate, time.Now())))
	require.NoError(t, projects.Insert(ctx, placeholder("J2", models.ModeTemplate, time.Now())))
	require.NoError(t, projects.UpdateImage(ctx, "J2", "https://x/2.png"))

	loading, err := projects.Loading(ctx)
	require.NoError(t, err)
	require.Len(t, loading, 1)
	assert.Equal(t, "J1", loading[0].ID)
}

func TestProjects_ConcurrentUpdateAndDelete(t *testing.T) {
	projects, _ := newProjects(t)
	ctx := context.Background()
	require.NoError(t, projects.Insert(ctx, placeholder("J1", models.ModeTemplate, time.Now())))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, projects.UpdateImage(ctx, "J1", "https://x/r.png"))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, projects.Delete(ctx, "J1"))
	}()
	wg.Wait()

	_, err := projects.Get(ctx, "J1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
