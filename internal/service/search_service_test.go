package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/repository"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

type searchStoreStub struct {
	items      []models.ArchiveItem
	calls      int
	predicates []repository.SearchPredicate
}

func (s *searchStoreStub) Search(_ context.Context, predicate repository.SearchPredicate) ([]models.ArchiveItem, error) {
	s.calls++
	s.predicates = append(s.predicates, predicate)
	return s.items, nil
}

func searchFixture(n int) []models.ArchiveItem {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]models.ArchiveItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.ArchiveItem{
			ID:        fmt.Sprintf("item-%02d", i),
			Title:     fmt.Sprintf("Entry %02d about the river", i),
			Status:    models.StatusPublished,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}
	return items
}

func TestSearchEmptyQuerySkipsStore(t *testing.T) {
	store := &searchStoreStub{items: searchFixture(3)}
	svc := NewSearchService(nil, store, nil, nil, SearchConfig{}, nil)

	resp, err := svc.Search(context.Background(), dto.SearchRequest{Query: "   ", Page: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, store.calls)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, 1, resp.CurrentPage)
	assert.Equal(t, 0, resp.TotalResults)
}

func TestSearchPaginatesAfterRanking(t *testing.T) {
	items := searchFixture(12)
	items = append(items, models.ArchiveItem{ID: "river", Title: "River Teesta", CreatedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)})
	store := &searchStoreStub{items: items}
	svc := NewSearchService(nil, store, nil, NewMetricsService(), SearchConfig{PageSize: 10}, nil)

	first, err := svc.Search(context.Background(), dto.SearchRequest{Query: "river"})
	require.NoError(t, err)
	assert.Equal(t, 13, first.TotalResults)
	assert.Equal(t, 2, first.TotalPages)
	require.Len(t, first.Results, 10)
	assert.Equal(t, "river", first.Results[0].ID, "title prefix match ranks first")
	assert.Equal(t, "item-11", first.Results[1].ID, "then newest first")

	second, err := svc.Search(context.Background(), dto.SearchRequest{Query: "river", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, second.CurrentPage)
	require.Len(t, second.Results, 3)
	assert.Equal(t, "item-00", second.Results[2].ID)

	beyond, err := svc.Search(context.Background(), dto.SearchRequest{Query: "river", Page: 5})
	require.NoError(t, err)
	assert.Empty(t, beyond.Results)
	assert.Equal(t, 13, beyond.TotalResults)
}

func TestSearchCategoryScope(t *testing.T) {
	store := &searchStoreStub{}
	svc := NewSearchService(nil, store, nil, nil, SearchConfig{}, nil)

	resp, err := svc.Search(context.Background(), dto.SearchRequest{Query: "train", Category: "Transport"})
	require.NoError(t, err)
	assert.Equal(t, "transport", resp.Category)
	require.Len(t, store.predicates, 1)
	assert.Len(t, store.predicates[0].Args, 2)

	_, err = svc.Search(context.Background(), dto.SearchRequest{Query: "train", Category: "festivals"})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnknownCategory))
	assert.Equal(t, 1, store.calls)
}

func TestSearchCachesPages(t *testing.T) {
	store := &searchStoreStub{items: searchFixture(2)}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewSearchService(nil, store, cache, nil, SearchConfig{}, nil)

	_, err := svc.Search(context.Background(), dto.SearchRequest{Query: "River"})
	require.NoError(t, err)
	resp, err := svc.Search(context.Background(), dto.SearchRequest{Query: "river"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, 2, resp.TotalResults)

	require.NoError(t, cache.Invalidate(context.Background(), searchCachePrefix+"*"))
	_, err = svc.Search(context.Background(), dto.SearchRequest{Query: "river"})
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestSearchRecordsStoreQueryTiming(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewSearchService(nil, &searchStoreStub{items: searchFixture(2)}, nil, metrics, SearchConfig{PageSize: 10}, nil)

	_, err := svc.Search(context.Background(), dto.SearchRequest{Query: "river"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, metrics.Snapshot().StoreQueries)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `archive_store_query_duration_seconds_count{query="search"} 1`)
}
