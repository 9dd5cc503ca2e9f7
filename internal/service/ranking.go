package service

import (
	"sort"
	"strings"

	"github.com/chilahati-archive/archive-api/internal/models"
)

// relevance buckets, lower ranks first
const (
	rankTitlePrefix = iota
	rankTitleContains
	rankOtherField
)

func titleRank(query, title string) int {
	title = strings.ToLower(title)
	switch {
	case strings.HasPrefix(title, query):
		return rankTitlePrefix
	case strings.Contains(title, query):
		return rankTitleContains
	default:
		return rankOtherField
	}
}

// RankResults orders matched items in place and returns them: titles that
// start with the query first, then titles containing it, then everything
// else; ties go to the newest item and finally to the smaller id, so the
// order is total and pages never overlap.
func RankResults(query string, items []models.ArchiveItem) []models.ArchiveItem {
	q := strings.ToLower(strings.TrimSpace(query))
	type ranked struct {
		rank int
		item models.ArchiveItem
	}
	buf := make([]ranked, len(items))
	for i := range items {
		buf[i] = ranked{rank: titleRank(q, items[i].Title), item: items[i]}
	}
	sort.SliceStable(buf, func(i, j int) bool {
		a, b := &buf[i], &buf[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
			return a.item.CreatedAt.After(b.item.CreatedAt)
		}
		return a.item.ID < b.item.ID
	})
	for i := range buf {
		items[i] = buf[i].item
	}
	return items
}

// Page is one slice of a globally ordered result set.
type Page struct {
	Items        []models.ArchiveItem
	CurrentPage  int
	TotalPages   int
	TotalResults int
}

// Paginate slices an already ranked set. Pages start at 1; pages past the
// end are empty but still report the totals.
func Paginate(items []models.ArchiveItem, page, size int) Page {
	if size <= 0 {
		size = 10
	}
	if page < 1 {
		page = 1
	}
	total := len(items)
	result := Page{
		Items:        []models.ArchiveItem{},
		CurrentPage:  page,
		TotalPages:   (total + size - 1) / size,
		TotalResults: total,
	}
	start := (page - 1) * size
	if start >= total {
		return result
	}
	end := start + size
	if end > total {
		end = total
	}
	result.Items = items[start:end]
	return result
}
