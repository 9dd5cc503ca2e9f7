package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/repository"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

type searchStore interface {
	Search(ctx context.Context, predicate repository.SearchPredicate) ([]models.ArchiveItem, error)
}

// SearchConfig tunes paging and caching of search results.
type SearchConfig struct {
	PageSize int
	CacheTTL time.Duration
}

// SearchService answers free-text queries over published items.
type SearchService struct {
	registry *taxonomy.Registry
	store    searchStore
	cache    *CacheService
	metrics  *MetricsService
	cfg      SearchConfig
	logger   *zap.Logger
}

// NewSearchService constructs the service.
func NewSearchService(registry *taxonomy.Registry, store searchStore, cache *CacheService, metrics *MetricsService, cfg SearchConfig, logger *zap.Logger) *SearchService {
	if registry == nil {
		registry = taxonomy.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{registry: registry, store: store, cache: cache, metrics: metrics, cfg: cfg, logger: logger}
}

// Search returns one page of ranked results. A blank query returns an empty
// first page without touching the store.
func (s *SearchService) Search(ctx context.Context, req dto.SearchRequest) (*dto.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	page := req.Page
	if page < 1 {
		page = 1
	}
	if query == "" {
		return emptySearch(), nil
	}

	var scope *taxonomy.VariantDescriptor
	if strings.TrimSpace(req.Category) != "" {
		desc, err := s.registry.Resolve(req.Category)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrUnknownCategory, fmt.Sprintf("unknown category %q", req.Category))
		}
		scope = desc
	}

	scopeID := ""
	if scope != nil {
		scopeID = scope.ID
	}
	cacheKey := fmt.Sprintf("%s%s:%d:%s", searchCachePrefix, scopeID, page, strings.ToLower(query))
	var cached dto.SearchResponse
	if s.cache.Get(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	predicate, err := repository.BuildSearchPredicate(s.registry, query, scope)
	if err != nil {
		if errors.Is(err, repository.ErrEmptyQuery) {
			return emptySearch(), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build search")
	}

	start := time.Now()
	candidates, err := s.store.Search(ctx, predicate)
	s.metrics.ObserveStoreQuery("search", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search archive")
	}
	ranked := RankResults(query, candidates)
	s.metrics.ObserveSearch(len(ranked), time.Since(start))

	p := Paginate(ranked, page, s.cfg.PageSize)
	resp := &dto.SearchResponse{
		Results:      p.Items,
		Query:        query,
		Category:     scopeID,
		CurrentPage:  p.CurrentPage,
		TotalPages:   p.TotalPages,
		TotalResults: p.TotalResults,
	}
	s.cache.Set(ctx, cacheKey, resp, s.cfg.CacheTTL)
	return resp, nil
}

func emptySearch() *dto.SearchResponse {
	return &dto.SearchResponse{
		Results:     []models.ArchiveItem{},
		Query:       "",
		CurrentPage: 1,
	}
}
