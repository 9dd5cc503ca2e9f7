package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

const discoveryConcurrency = 4

type taxonomyStore interface {
	List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchiveItem, error)
	DistinctValues(ctx context.Context, field string, categoryKeys []string) ([]string, error)
}

// TaxonomyService decides how a category is browsed: by sub-type menu or as
// a flat item list.
type TaxonomyService struct {
	registry *taxonomy.Registry
	store    taxonomyStore
	cache    *CacheService
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewTaxonomyService constructs the resolver.
func NewTaxonomyService(registry *taxonomy.Registry, store taxonomyStore, cache *CacheService, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *TaxonomyService {
	if registry == nil {
		registry = taxonomy.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaxonomyService{registry: registry, store: store, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

// Categories lists registered categories in registry order.
func (s *TaxonomyService) Categories() []dto.CategorySummary {
	descs := s.registry.Categories()
	out := make([]dto.CategorySummary, 0, len(descs))
	for _, d := range descs {
		out = append(out, dto.CategorySummary{
			ID:           d.ID,
			Label:        d.Label,
			Family:       d.Family,
			SubTypeField: d.SubTypeField,
			SubTypes:     append([]string(nil), d.SubTypes...),
			Aliases:      append([]string(nil), d.Aliases...),
		})
	}
	return out
}

// ListSubCategories resolves the browse mode for a category. A registered
// sub-type enum answers directly, even with no stored items. Otherwise the
// stored items are scanned for sub-type values; when none exist the
// category is listed flat. Unregistered categories with no stored items
// fail with ErrUnknownCategory.
func (s *TaxonomyService) ListSubCategories(ctx context.Context, category string) (*dto.SubCategoryListing, error) {
	key := taxonomy.Normalize(category)
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrUnknownCategory, "category is required")
	}

	cacheKey := taxonomyCachePrefix + "sub:" + key
	var cached dto.SubCategoryListing
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	desc, lookupErr := s.registry.Resolve(category)
	registered := lookupErr == nil

	var listing *dto.SubCategoryListing
	if registered && desc.HasEnum() {
		listing = &dto.SubCategoryListing{
			Mode:     dto.ModeSubmenu,
			Category: desc.ID,
			Title:    "Explore " + desc.Label,
			Field:    desc.SubTypeField,
			Values:   append([]string(nil), desc.SubTypes...),
			Items:    []models.ArchiveItem{},
			Source:   dto.SourceRegistry,
		}
		s.metrics.RecordResolution(ResolutionRegistry)
	} else {
		var err error
		listing, err = s.resolveFromStore(ctx, category, key, desc)
		if err != nil {
			return nil, err
		}
	}

	s.cache.Set(ctx, cacheKey, listing, s.cacheTTL)
	return listing, nil
}

func (s *TaxonomyService) resolveFromStore(ctx context.Context, category, key string, desc *taxonomy.VariantDescriptor) (*dto.SubCategoryListing, error) {
	id, label, keys := describe(category, key, desc)

	field, values, err := s.discoverSubTypes(ctx, keys)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve sub-categories")
	}
	if field != "" {
		s.logger.Debug("sub-categories discovered from stored items", zap.String("category", id), zap.String("field", field), zap.Int("values", len(values)))
		s.metrics.RecordResolution(ResolutionDiscovery)
		return &dto.SubCategoryListing{
			Mode:     dto.ModeSubmenu,
			Category: id,
			Title:    "Explore " + label,
			Field:    field,
			Values:   values,
			Items:    []models.ArchiveItem{},
			Source:   dto.SourceDiscovery,
		}, nil
	}

	start := time.Now()
	items, err := s.store.List(ctx, models.ArchiveFilter{CategoryKeys: keys, Status: models.StatusPublished})
	s.metrics.ObserveStoreQuery("list_category", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list category items")
	}
	if items == nil {
		items = []models.ArchiveItem{}
	}
	if desc == nil && len(items) == 0 {
		s.metrics.RecordResolution(ResolutionUnknown)
		return nil, appErrors.Clone(appErrors.ErrUnknownCategory, fmt.Sprintf("unknown category %q", category))
	}
	s.metrics.RecordResolution(ResolutionFlat)
	return &dto.SubCategoryListing{
		Mode:     dto.ModeFlat,
		Category: id,
		Title:    label,
		Values:   []string{},
		Items:    items,
	}, nil
}

// discoverSubTypes queries every candidate sub-type field concurrently and
// returns the first field, in registry order, that has any non-blank value.
func (s *TaxonomyService) discoverSubTypes(ctx context.Context, categoryKeys []string) (string, []string, error) {
	fields := s.registry.SubTypeFields()
	results := make([][]string, len(fields))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(discoveryConcurrency)
	for i, field := range fields {
		i, field := i, field
		eg.Go(func() error {
			start := time.Now()
			values, err := s.store.DistinctValues(egCtx, field, categoryKeys)
			s.metrics.ObserveStoreQuery("distinct_subtypes", time.Since(start))
			if err != nil {
				return fmt.Errorf("discover %s: %w", field, err)
			}
			results[i] = nonBlank(values)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return "", nil, err
	}

	for i, field := range fields {
		if len(results[i]) > 0 {
			return field, results[i], nil
		}
	}
	return "", nil, nil
}

// ListItems returns the published items of a category, optionally narrowed
// to a sub-type matched against every candidate sub-type field.
func (s *TaxonomyService) ListItems(ctx context.Context, category, subType string) (*dto.ItemListing, error) {
	key := taxonomy.Normalize(category)
	if key == "" {
		return nil, appErrors.Clone(appErrors.ErrUnknownCategory, "category is required")
	}
	subType = strings.TrimSpace(subType)

	cacheKey := taxonomyCachePrefix + "items:" + key + ":" + strings.ToLower(subType)
	var cached dto.ItemListing
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	desc, _ := s.registry.Resolve(category)
	id, label, keys := describe(category, key, desc)

	if canonical, ok := desc.CanonicalSubType(subType); ok {
		subType = canonical
	}

	start := time.Now()
	items, err := s.store.List(ctx, models.ArchiveFilter{
		CategoryKeys:  keys,
		Status:        models.StatusPublished,
		SubType:       subType,
		SubTypeFields: s.registry.SubTypeFields(),
	})
	s.metrics.ObserveStoreQuery("list_subtype", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list category items")
	}
	if items == nil {
		items = []models.ArchiveItem{}
	}
	if desc == nil && len(items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrUnknownCategory, fmt.Sprintf("unknown category %q", category))
	}

	title := label
	if subType != "" {
		title = subType
	}
	listing := &dto.ItemListing{Category: id, Title: title, SubType: subType, Items: items}
	s.cache.Set(ctx, cacheKey, listing, s.cacheTTL)
	return listing, nil
}

// describe returns id, label and store match keys for a category. Unknown
// categories use the normalized key as-is.
func describe(category, key string, desc *taxonomy.VariantDescriptor) (string, string, []string) {
	if desc != nil {
		return desc.ID, desc.Label, desc.MatchKeys()
	}
	return key, strings.TrimSpace(category), []string{key}
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
