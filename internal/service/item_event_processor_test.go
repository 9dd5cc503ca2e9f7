package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/pkg/jobs"
)

type patternCacheRepo struct {
	mu       sync.Mutex
	patterns []string
	failures int
}

func (r *patternCacheRepo) Get(context.Context, string, interface{}) error { return errors.New("miss") }

func (r *patternCacheRepo) Set(context.Context, string, interface{}, time.Duration) error { return nil }

func (r *patternCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return 0, errors.New("redis unavailable")
	}
	r.patterns = append(r.patterns, pattern)
	return 1, nil
}

type auditStub struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (a *auditStub) Create(_ context.Context, entry *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *auditStub) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func TestItemEventProcessorInline(t *testing.T) {
	repo := &patternCacheRepo{}
	audit := &auditStub{}
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, nil, true)
	processor := NewItemEventProcessor(cache, audit, metrics, nil)

	change := models.ItemChange{
		Action:           models.AuditActionItemUpdate,
		ItemID:           "item-1",
		Slug:             "chilahati-station",
		Category:         "tourist-spots",
		PreviousCategory: "transport",
		ActorID:          "admin-1",
	}
	require.NoError(t, processor.Publish(context.Background(), change))

	assert.Equal(t, []string{"taxonomy:*", "search:*"}, repo.patterns)
	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.Equal(t, models.AuditActionItemUpdate, entry.Action)
	assert.Equal(t, "archive_item", entry.Resource)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "item-1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "admin-1", *entry.UserID)
	assert.JSONEq(t, `{"category":"transport"}`, string(entry.OldValues))
}

type recordingQueue struct {
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(ctx context.Context, job jobs.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestItemEventProcessorPublishOutlivesCanceledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	change := models.ItemChange{Action: models.AuditActionItemCreate, ItemID: "item-1", Category: "transport", ActorID: "admin-1"}

	queue := &recordingQueue{}
	queued := NewItemEventProcessor(nil, nil, nil, nil)
	queued.Attach(queue)
	require.NoError(t, queued.Publish(ctx, change))
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, change, queue.jobs[0].Payload)

	repo := &patternCacheRepo{}
	audit := &auditStub{}
	inline := NewItemEventProcessor(NewCacheService(repo, nil, time.Minute, nil, true), audit, nil, nil)
	require.NoError(t, inline.Publish(ctx, change))
	assert.Equal(t, []string{"taxonomy:*", "search:*"}, repo.patterns)
	assert.Equal(t, 1, audit.count())
}

func TestItemEventProcessorRejectsUnknownPayload(t *testing.T) {
	processor := NewItemEventProcessor(nil, nil, nil, nil)
	err := processor.Handle(context.Background(), jobs.Job{Type: JobTypeItemChanged, Payload: "oops"})
	assert.Error(t, err)
}

func TestItemEventProcessorRetriesThroughQueue(t *testing.T) {
	repo := &patternCacheRepo{failures: 1}
	audit := &auditStub{}
	metrics := NewMetricsService()
	cache := NewCacheService(repo, metrics, time.Minute, nil, true)
	processor := NewItemEventProcessor(cache, audit, metrics, nil)

	queue := jobs.NewQueue("item-events", processor.Handle, jobs.QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	queue.Start(context.Background())
	processor.Attach(queue)

	require.NoError(t, processor.Publish(context.Background(), models.ItemChange{Action: models.AuditActionItemCreate, ItemID: "item-1"}))

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, queue.Stop(stopCtx))

	assert.Equal(t, 1, audit.count(), "failed attempt must not write an audit row")
	stats := queue.Stats()
	assert.EqualValues(t, 1, stats.Processed)
	assert.EqualValues(t, 1, stats.Retried)

	// Once the queue is closed changes are still handled inline.
	require.NoError(t, processor.Publish(context.Background(), models.ItemChange{Action: models.AuditActionItemDelete, ItemID: "item-1"}))
	assert.Equal(t, 2, audit.count())
}
