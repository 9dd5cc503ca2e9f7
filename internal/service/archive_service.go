package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/repository"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

type archiveStore interface {
	Create(ctx context.Context, item *models.ArchiveItem) error
	GetByID(ctx context.Context, id string) (*models.ArchiveItem, error)
	GetBySlug(ctx context.Context, slug string) (*models.ArchiveItem, error)
	Update(ctx context.Context, item *models.ArchiveItem, categoryChanged bool) error
	Delete(ctx context.Context, id string) error
}

type itemEventPublisher interface {
	Publish(ctx context.Context, change models.ItemChange) error
}

// ArchiveServiceConfig controls the submission workflow.
type ArchiveServiceConfig struct {
	DefaultStatus     models.ItemStatus
	AllowContributors bool
}

// SubmissionResult is a stored item plus any recovered input problems.
type SubmissionResult struct {
	Item     *models.ArchiveItem
	Warnings []*appErrors.Error
}

// ArchiveService is the item lifecycle manager: every create, update and
// delete goes through it so sub-type normalization is never bypassed.
type ArchiveService struct {
	store      archiveStore
	normalizer *SubmissionNormalizer
	registry   *taxonomy.Registry
	events     itemEventPublisher
	metrics    *MetricsService
	cfg        ArchiveServiceConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewArchiveService constructs the lifecycle manager.
func NewArchiveService(registry *taxonomy.Registry, store archiveStore, events itemEventPublisher, metrics *MetricsService, cfg ArchiveServiceConfig, logger *zap.Logger) *ArchiveService {
	if registry == nil {
		registry = taxonomy.Default()
	}
	if !cfg.DefaultStatus.Valid() {
		cfg.DefaultStatus = models.StatusPublished
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{
		store:      store,
		normalizer: NewSubmissionNormalizer(registry),
		registry:   registry,
		events:     events,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Create stores a new item authored by the caller.
func (s *ArchiveService) Create(ctx context.Context, claims *models.JWTClaims, raw map[string]interface{}) (*SubmissionResult, error) {
	if err := s.authorizeSubmit(claims); err != nil {
		return nil, err
	}
	sub, err := s.normalizer.NormalizeSubmission(raw, "")
	if err != nil {
		return nil, err
	}

	item := &models.ArchiveItem{AuthorID: claims.UserID, AuthorName: claims.FullName, CreatedAt: s.now().UTC()}
	applySubmission(item, sub)
	item.Status = s.resolveStatus(claims, sub.Status, "")

	err = s.store.Create(ctx, item)
	s.metrics.RecordItemWrite(models.AuditActionItemCreate, err)
	if err != nil {
		return nil, s.translateWriteError(err, "failed to create archive item")
	}
	s.logDegraded(sub, item)

	s.publish(ctx, models.ItemChange{
		Action:   models.AuditActionItemCreate,
		ItemID:   item.ID,
		Slug:     item.Slug,
		Category: item.Category,
		ActorID:  claims.UserID,
	})
	return &SubmissionResult{Item: item, Warnings: sub.Warnings}, nil
}

// Update replaces an item's content. A category change is written as a
// separate first step by the store.
func (s *ArchiveService) Update(ctx context.Context, claims *models.JWTClaims, id string, raw map[string]interface{}) (*SubmissionResult, error) {
	if err := s.authorizeSubmit(claims); err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claims.IsStaff() && (!claims.OwnsItem(existing) || existing.Status != models.StatusDraft) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "contributors may only edit their own drafts")
	}

	category := strings.TrimSpace(stringValue(raw["category"]))
	if category == "" {
		category = existing.Category
	}
	// The slug is the item's public address; an edit that omits it keeps it.
	if strings.TrimSpace(stringValue(raw["slug"])) == "" {
		raw = withValue(raw, "slug", existing.Slug)
	}
	sub, err := s.normalizer.NormalizeSubmission(raw, category)
	if err != nil {
		return nil, err
	}

	previousCategory := existing.Category
	item := *existing
	applySubmission(&item, sub)
	item.Status = s.resolveStatus(claims, sub.Status, existing.Status)
	categoryChanged := taxonomy.Normalize(previousCategory) != taxonomy.Normalize(item.Category)

	err = s.store.Update(ctx, &item, categoryChanged)
	s.metrics.RecordItemWrite(models.AuditActionItemUpdate, err)
	if err != nil {
		return nil, s.translateWriteError(err, "failed to update archive item")
	}
	s.logDegraded(sub, &item)

	change := models.ItemChange{
		Action:   models.AuditActionItemUpdate,
		ItemID:   item.ID,
		Slug:     item.Slug,
		Category: item.Category,
		ActorID:  claims.UserID,
	}
	if categoryChanged {
		change.PreviousCategory = previousCategory
	}
	s.publish(ctx, change)
	return &SubmissionResult{Item: &item, Warnings: sub.Warnings}, nil
}

// Delete removes an item permanently. Staff only.
func (s *ArchiveService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if !claims.IsStaff() {
		return appErrors.Clone(appErrors.ErrForbidden, "only staff may delete archive items")
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	err = s.store.Delete(ctx, id)
	s.metrics.RecordItemWrite(models.AuditActionItemDelete, err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "archive item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete archive item")
	}

	s.publish(ctx, models.ItemChange{
		Action:   models.AuditActionItemDelete,
		ItemID:   existing.ID,
		Slug:     existing.Slug,
		Category: existing.Category,
		ActorID:  claims.UserID,
	})
	return nil
}

// GetForEdit loads an item for the edit form, mirroring its
// category-specific sub-type into the generic input.
func (s *ArchiveService) GetForEdit(ctx context.Context, claims *models.JWTClaims, id string) (*dto.EditableItem, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claims.IsStaff() && !claims.OwnsItem(item) {
		return nil, appErrors.ErrForbidden
	}
	desc, _ := s.registry.Resolve(item.Category)
	return &dto.EditableItem{ArchiveItem: *item, SubType: EditableSubType(item, desc)}, nil
}

// GetBySlug returns an item for reading. Drafts are reported as missing to
// anyone but their author and staff.
func (s *ArchiveService) GetBySlug(ctx context.Context, claims *models.JWTClaims, slug string) (*models.ArchiveItem, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "archive item not found")
	}
	start := time.Now()
	item, err := s.store.GetBySlug(ctx, slug)
	s.metrics.ObserveStoreQuery("get_by_slug", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "archive item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archive item")
	}
	if !claims.CanView(item) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "archive item not found")
	}
	item.BodyContent = item.BodyContent.Sorted()
	return item, nil
}

func (s *ArchiveService) load(ctx context.Context, id string) (*models.ArchiveItem, error) {
	start := time.Now()
	item, err := s.store.GetByID(ctx, id)
	s.metrics.ObserveStoreQuery("get_by_id", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "archive item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archive item")
	}
	return item, nil
}

func (s *ArchiveService) authorizeSubmit(claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	if claims.IsStaff() {
		return nil
	}
	if claims.Role == models.RoleContributor && s.cfg.AllowContributors {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "submissions are restricted to staff")
}

// resolveStatus picks the stored status: contributors always write drafts,
// staff get their choice, then the current status, then the default.
func (s *ArchiveService) resolveStatus(claims *models.JWTClaims, requested, current models.ItemStatus) models.ItemStatus {
	if !claims.IsStaff() {
		return models.StatusDraft
	}
	if requested.Valid() {
		return requested
	}
	if current.Valid() {
		return current
	}
	return s.cfg.DefaultStatus
}

func (s *ArchiveService) translateWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrSlugTaken) {
		return appErrors.ErrDuplicateSlug
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "archive item not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *ArchiveService) publish(ctx context.Context, change models.ItemChange) {
	if s.events == nil {
		return
	}
	change.At = s.now().UTC()
	if err := s.events.Publish(ctx, change); err != nil {
		s.logger.Warn("failed to publish item change", zap.String("item_id", change.ItemID), zap.String("action", change.Action), zap.Error(err))
	}
}

func (s *ArchiveService) logDegraded(sub *Submission, item *models.ArchiveItem) {
	for _, w := range sub.Warnings {
		s.logger.Warn("submission stored with degraded input", zap.String("item_id", item.ID), zap.String("slug", item.Slug), zap.String("warning", w.Code))
	}
}

func applySubmission(item *models.ArchiveItem, sub *Submission) {
	item.Title = sub.Title
	item.Slug = sub.Slug
	item.Category = sub.Category
	item.Thumbnail = sub.Thumbnail
	item.BodyContent = sub.BodyContent
	item.Tags = sub.Tags
	item.Details = sub.Details
}

func withValue(raw map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out[key] = value
	return out
}
