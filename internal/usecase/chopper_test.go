package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/models/ports"
	"data-chopper/internal/pkg/config"
	"data-chopper/internal/pkg/metrics"
	"data-chopper/internal/repository/memory"
)

type chopFixture struct {
	uc    *chopUseCase
	store *memory.Store
	queue *memory.Queue
}

func newChopFixture(t *testing.T, env string, store ports.RecordStore, mem *memory.Store) chopFixture {
	t.Helper()

	settings := config.DefaultSettings()
	settings.BatchSize = 10
	logger := zaptest.NewLogger(t)
	m := metrics.NewNop()
	queue := memory.NewQueue()

	gate := NewEnvironmentGate(env, settings.AllowedEnvironments, m, logger)
	uc := NewChopUseCase(mem, store, queue, gate, settings, m, logger).(*chopUseCase)
	uc.sampler = NewSampler(rand.New(rand.NewPCG(3, 4)))

	return chopFixture{uc: uc, store: mem, queue: queue}
}

func seedStore() (*memory.Store, map[string][]int64) {
	store := memory.NewStore()
	blog := store.AddCollection("blog", "Blog")
	news := store.AddCollection("news", "News")

	ids := map[string][]int64{
		"blog/live":     store.AddRecords(blog.ID, "live", 100),
		"blog/disabled": store.AddRecords(blog.ID, "disabled", 10),
		"news/live":     store.AddRecords(news.ID, "live", 5),
	}
	return store, ids
}

func runTasks(t *testing.T, q *memory.Queue, runID string) []entities.BatchDeletionTask {
	t.Helper()
	tasks, err := q.ListByRun(context.Background(), runID)
	require.NoError(t, err)
	return tasks
}

func TestChopUseCase_PlanChop(t *testing.T) {
	store, ids := seedStore()
	f := newChopFixture(t, "dev", store, store)

	plan := entities.ChopPlan{
		CollectionHandles: []string{"blog", "news"},
		Percent:           90,
		MinimumRetained:   1,
		SoftDelete:        true,
		Origin:            entities.OriginAPI,
	}

	report, err := f.uc.PlanChop(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, "LIVE", report.Mode)
	assert.Equal(t, []string{"blog", "news"}, report.Collections)
	assert.Equal(t, 3, report.TasksQueued)
	assert.Equal(t, 90+9+4, report.EntriesQueued)

	tasks := runTasks(t, f.queue, report.RunID)
	require.Len(t, tasks, 3)

	seen := make(map[int64]struct{})
	for _, task := range tasks {
		key := task.CollectionHandle + "/" + task.Status
		partition, ok := ids[key]
		require.True(t, ok, "unexpected partition %s", key)

		assert.Equal(t, entities.TaskPending, task.State)
		assert.Equal(t, report.RunID, task.RunID)
		assert.True(t, task.SoftDelete)
		assert.False(t, task.DryRun)
		assert.Equal(t, 10, task.BatchSize)
		assert.Equal(t, plan.Percent, task.Plan.Percent)

		for _, id := range task.EntryIDs {
			assert.Contains(t, partition, id)
			_, dup := seen[id]
			assert.False(t, dup, "id %d selected twice", id)
			seen[id] = struct{}{}
		}
	}

	// Планирование ничего не удаляет
	for _, id := range ids["blog/live"] {
		exists, trashed := store.State(id)
		assert.True(t, exists)
		assert.False(t, trashed)
	}
}

func TestChopUseCase_PlanChop_StatusFilter(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "dev", store, store)

	report, err := f.uc.PlanChop(context.Background(), entities.ChopPlan{
		CollectionHandles: []string{"blog"},
		Percent:           50,
		Statuses:          []string{"disabled", "expired"},
		MinimumRetained:   0,
	})
	require.NoError(t, err)

	tasks := runTasks(t, f.queue, report.RunID)
	require.Len(t, tasks, 1)
	assert.Equal(t, "disabled", tasks[0].Status)
	assert.Len(t, tasks[0].EntryIDs, 5)
}

func TestChopUseCase_PlanChop_NoMatchingStatuses(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "dev", store, store)

	report, err := f.uc.PlanChop(context.Background(), entities.ChopPlan{
		CollectionHandles: []string{"news"},
		Percent:           50,
		Statuses:          []string{"disabled"},
	})
	require.NoError(t, err)
	assert.Zero(t, report.TasksQueued)
	assert.Empty(t, runTasks(t, f.queue, report.RunID))
}

func TestChopUseCase_PlanChop_AllCollections(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "dev", store, store)

	report, err := f.uc.PlanChop(context.Background(), entities.ChopPlan{Percent: 100, MinimumRetained: 5})
	require.NoError(t, err)

	// news/live остается целиком из-за минимума
	assert.Equal(t, []string{"blog", "news"}, report.Collections)
	assert.Equal(t, 2, report.TasksQueued)
	assert.Equal(t, 95+5, report.EntriesQueued)
}

func TestChopUseCase_PlanChop_UnknownCollections(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "dev", store, store)

	report, err := f.uc.PlanChop(context.Background(), entities.ChopPlan{
		CollectionHandles: []string{"missing", "gone"},
		Percent:           90,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Collections)
	assert.Zero(t, report.TasksQueued)
}

func TestChopUseCase_PlanChop_Validation(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "dev", store, store)

	_, err := f.uc.PlanChop(context.Background(), entities.ChopPlan{Percent: 0, MinimumRetained: -1})

	var verr *entities.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "percent")
	assert.Contains(t, verr.Fields, "minimum_retained")
}

func TestChopUseCase_PlanChop_EnvironmentDenied(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "production", store, store)

	report, err := f.uc.PlanChop(context.Background(), entities.ChopPlan{Percent: 90})
	require.Nil(t, report)

	var denied *entities.EnvironmentDenied
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "production", denied.Environment)
	assert.True(t, denied.ProductionLike)

	_, err = f.uc.Preview(context.Background(), entities.ChopPlan{Percent: 90})
	require.True(t, errors.As(err, &denied))
}

func TestChopUseCase_ChopEntries(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "staging", store, store)

	report, err := f.uc.ChopEntries(context.Background(), []string{"blog"}, 10,
		entities.WithStatuses("live", "disabled"),
		entities.WithMinimumRetained(0),
		entities.WithDryRun(true),
	)
	require.NoError(t, err)

	assert.Equal(t, "DRY RUN", report.Mode)
	assert.Equal(t, 2, report.TasksQueued)
	assert.Equal(t, 10+1, report.EntriesQueued)

	for _, task := range runTasks(t, f.queue, report.RunID) {
		assert.True(t, task.DryRun)
		assert.Equal(t, entities.OriginAPI, task.Plan.Origin)
	}
}

func TestChopUseCase_DefaultPlan(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "dev", store, store)

	plan := f.uc.DefaultPlan(entities.OriginCLI)
	assert.Equal(t, 90, plan.Percent)
	assert.Equal(t, 1, plan.MinimumRetained)
	assert.Equal(t, []string{"live"}, plan.Statuses)
	assert.Empty(t, plan.CollectionHandles)
	assert.True(t, plan.SoftDelete)
	assert.Equal(t, entities.OriginCLI, plan.Origin)
	require.NoError(t, plan.Validate())
}

func TestChopUseCase_Preview(t *testing.T) {
	store, _ := seedStore()
	f := newChopFixture(t, "dev", store, store)

	previews, err := f.uc.Preview(context.Background(), entities.ChopPlan{
		CollectionHandles: []string{"blog", "news"},
		Percent:           90,
		MinimumRetained:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, []entities.PartitionPreview{
		{Collection: "blog", Status: "disabled", Total: 10, Requested: 9, Quota: 8, LimitedByFloor: true},
		{Collection: "blog", Status: "live", Total: 100, Requested: 90, Quota: 90},
		{Collection: "news", Status: "live", Total: 5, Requested: 5, Quota: 3, LimitedByFloor: true},
	}, previews)
	assert.Empty(t, runTasks(t, f.queue, ""))
}

// lockedStore отказывает в блокировке выбранных коллекций
type lockedStore struct {
	*memory.Store
	busy     map[string]bool
	released []string
}

func (s *lockedStore) TryAcquireLock(_ context.Context, handle string) (bool, func(), error) {
	if s.busy[handle] {
		return false, nil, nil
	}
	return true, func() { s.released = append(s.released, handle) }, nil
}

func TestChopUseCase_PlanChop_SkipsLockedCollections(t *testing.T) {
	mem, _ := seedStore()
	store := &lockedStore{Store: mem, busy: map[string]bool{"news": true}}
	f := newChopFixture(t, "dev", store, mem)

	report, err := f.uc.PlanChop(context.Background(), entities.ChopPlan{Percent: 50, MinimumRetained: 0})
	require.NoError(t, err)

	assert.Equal(t, []string{"blog"}, report.Collections)
	assert.Equal(t, 2, report.TasksQueued)
	assert.Equal(t, []string{"blog"}, store.released)
}
