package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
	"github.com/chilahati-archive/archive-api/pkg/export"
)

type exportStore interface {
	List(ctx context.Context, filter models.ArchiveFilter) ([]models.ArchiveItem, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

var exportHeaders = []string{"Title", "Slug", "Category", "Sub-type", "Status", "Created At"}

// ExportResult is a rendered catalog ready to be sent as an attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders a category's published items as CSV or PDF.
type ExportService struct {
	registry *taxonomy.Registry
	store    exportStore
	csv      datasetRenderer
	pdf      datasetRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the package defaults.
func NewExportService(registry *taxonomy.Registry, store exportStore, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if registry == nil {
		registry = taxonomy.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{registry: registry, store: store, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export renders every published item of category in the requested format.
func (s *ExportService) Export(ctx context.Context, category string, format export.Format) (*ExportResult, error) {
	desc, err := s.registry.Resolve(category)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownCategory, fmt.Sprintf("unknown category %q", category))
	}

	items, err := s.store.List(ctx, models.ArchiveFilter{
		CategoryKeys: desc.MatchKeys(),
		Status:       models.StatusPublished,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archive items")
	}

	dataset := buildCatalogDataset(desc, items)
	var renderer datasetRenderer
	switch format {
	case export.FormatCSV:
		renderer = s.csv
	case export.FormatPDF:
		renderer = s.pdf
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}

	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("catalog exported", zap.String("category", desc.ID), zap.String("format", string(format)), zap.Int("rows", len(items)))

	return &ExportResult{
		Filename:    fmt.Sprintf("%s_%s.%s", desc.ID, s.now().UTC().Format("20060102_150405"), format),
		ContentType: format.ContentType(),
		Payload:     payload,
		Rows:        len(items),
	}, nil
}

func buildCatalogDataset(desc *taxonomy.VariantDescriptor, items []models.ArchiveItem) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for i := range items {
		item := &items[i]
		subType := ""
		if desc.SubTypeField != "" {
			subType = item.SubType(desc.SubTypeField)
		}
		rows = append(rows, map[string]string{
			"Title":      item.Title,
			"Slug":       item.Slug,
			"Category":   item.Category,
			"Sub-type":   subType,
			"Status":     string(item.Status),
			"Created At": item.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Title:   strings.TrimSpace(desc.Label + " catalog"),
		Headers: exportHeaders,
		Rows:    rows,
	}
}
