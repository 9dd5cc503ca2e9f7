package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilahati-archive/archive-api/internal/models"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
	"github.com/chilahati-archive/archive-api/pkg/export"
)

type exportStoreStub struct {
	items  []models.ArchiveItem
	filter models.ArchiveFilter
}

func (s *exportStoreStub) List(_ context.Context, filter models.ArchiveFilter) ([]models.ArchiveItem, error) {
	s.filter = filter
	return s.items, nil
}

func TestExportServiceCSV(t *testing.T) {
	store := &exportStoreStub{items: []models.ArchiveItem{{
		Title:     "Chilahati Station",
		Slug:      "chilahati-station",
		Category:  "transport",
		Status:    models.StatusPublished,
		Details:   &models.LocationDetails{TransportType: "Train"},
		CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}}}
	svc := NewExportService(nil, store, nil, nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	result, err := svc.Export(context.Background(), "Transport", export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "transport_20240601_120000.csv", result.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, models.StatusPublished, store.filter.Status)
	assert.Contains(t, store.filter.CategoryKeys, "transport")

	body := strings.TrimPrefix(string(result.Payload), "\ufeff")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Title,Slug,Category,Sub-type,Status,Created At", lines[0])
	assert.Equal(t, "Chilahati Station,chilahati-station,transport,Train,published,2024-05-01T08:00:00Z", lines[1])
}

func TestExportServicePDF(t *testing.T) {
	svc := NewExportService(nil, &exportStoreStub{}, nil, nil, nil)
	result, err := svc.Export(context.Background(), "tourist-spots", export.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasPrefix(string(result.Payload), "%PDF-"))
}

func TestExportServiceUnknownCategory(t *testing.T) {
	svc := NewExportService(nil, &exportStoreStub{}, nil, nil, nil)
	_, err := svc.Export(context.Background(), "festivals", export.FormatCSV)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnknownCategory))
}
