package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/pkg/jobs"
)

// JobTypeItemChanged tags queued archive write events.
const JobTypeItemChanged = "item.changed"

const auditResourceArchiveItem = "archive_item"

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// ItemEventProcessor performs the follow-up work of an archive write:
// dropping stale taxonomy and search cache entries and recording an audit row.
type ItemEventProcessor struct {
	cache   *CacheService
	audit   auditWriter
	metrics *MetricsService
	queue   jobQueue
	logger  *zap.Logger
}

// NewItemEventProcessor constructs the processor. Without an attached queue
// Publish handles changes inline.
func NewItemEventProcessor(cache *CacheService, audit auditWriter, metrics *MetricsService, logger *zap.Logger) *ItemEventProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemEventProcessor{cache: cache, audit: audit, metrics: metrics, logger: logger}
}

// Attach routes published changes through queue.
func (p *ItemEventProcessor) Attach(queue jobQueue) {
	p.queue = queue
}

// Publish hands a change to the queue, or processes it immediately when no
// queue is attached. The change is already committed, so cancellation of the
// caller's request does not stop it.
func (p *ItemEventProcessor) Publish(ctx context.Context, change models.ItemChange) error {
	ctx = context.WithoutCancel(ctx)
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeItemChanged, Payload: change}
	if p.queue == nil {
		return p.Handle(ctx, job)
	}
	if err := p.queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrQueueClosed) {
			p.logger.Warn("events queue closed, handling change inline", zap.String("item_id", change.ItemID))
			return p.Handle(ctx, job)
		}
		return err
	}
	return nil
}

// Handle is the jobs.Handler for item changes. Cache invalidation runs
// before the audit insert so a retried job never writes two audit rows.
func (p *ItemEventProcessor) Handle(ctx context.Context, job jobs.Job) (err error) {
	defer func() { p.metrics.RecordEventJob(err) }()

	change, ok := job.Payload.(models.ItemChange)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.Type)
	}

	for _, pattern := range []string{taxonomyCachePrefix + "*", searchCachePrefix + "*"} {
		if err := p.cache.Invalidate(ctx, pattern); err != nil {
			return fmt.Errorf("invalidate %s: %w", pattern, err)
		}
	}

	if p.audit == nil {
		return nil
	}
	entry, err := auditEntry(job.ID, change)
	if err != nil {
		return err
	}
	if err := p.audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	p.logger.Debug("item change processed", zap.String("item_id", change.ItemID), zap.String("action", change.Action), zap.Int("attempt", job.Attempt))
	return nil
}

func auditEntry(jobID string, change models.ItemChange) (*models.AuditLog, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("encode item change: %w", err)
	}
	entry := &models.AuditLog{
		ID:        jobID,
		Action:    change.Action,
		Resource:  auditResourceArchiveItem,
		NewValues: payload,
		CreatedAt: change.At,
	}
	if change.ActorID != "" {
		actor := change.ActorID
		entry.UserID = &actor
	}
	if change.ItemID != "" {
		itemID := change.ItemID
		entry.ResourceID = &itemID
	}
	if change.PreviousCategory != "" {
		previous, _ := json.Marshal(map[string]string{"category": change.PreviousCategory})
		entry.OldValues = previous
	}
	return entry, nil
}
