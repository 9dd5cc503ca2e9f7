package dto

import (
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
)

// ListingMode tells the client whether to render a sub-menu or items.
type ListingMode string

const (
	ModeFlat    ListingMode = "FLAT"
	ModeSubmenu ListingMode = "SUBMENU"
)

// Sub-category sources.
const (
	SourceRegistry  = "registry"
	SourceDiscovery = "discovery"
)

// SubCategoryListing is the resolver result for one category. Values is
// filled in SUBMENU mode, Items in FLAT mode; the other stays empty.
type SubCategoryListing struct {
	Mode     ListingMode          `json:"mode"`
	Category string               `json:"category"`
	Title    string               `json:"title"`
	Field    string               `json:"field,omitempty"`
	Values   []string             `json:"values"`
	Items    []models.ArchiveItem `json:"items"`
	Source   string               `json:"source,omitempty"`
}

// ItemListing is the published item list of a category, optionally narrowed
// to one sub-type.
type ItemListing struct {
	Category string               `json:"category"`
	Title    string               `json:"title"`
	SubType  string               `json:"subType,omitempty"`
	Items    []models.ArchiveItem `json:"items"`
}

// SearchResponse is one page of ranked free-text results.
type SearchResponse struct {
	Results      []models.ArchiveItem `json:"results"`
	Query        string               `json:"query"`
	Category     string               `json:"category,omitempty"`
	CurrentPage  int                  `json:"currentPage"`
	TotalPages   int                  `json:"totalPages"`
	TotalResults int                  `json:"totalResults"`
}

// SearchRequest captures search query parameters.
type SearchRequest struct {
	Query    string `form:"q"`
	Page     int    `form:"page"`
	Category string `form:"category"`
}

// CategorySummary describes a registered category for navigation.
type CategorySummary struct {
	ID           string          `json:"id"`
	Label        string          `json:"label"`
	Family       taxonomy.Family `json:"family"`
	SubTypeField string          `json:"subTypeField,omitempty"`
	SubTypes     []string        `json:"subTypes,omitempty"`
	Aliases      []string        `json:"aliases,omitempty"`
}

// EditableItem is an item prepared for the edit form: the category-specific
// sub-type is mirrored into the generic SubType input.
type EditableItem struct {
	models.ArchiveItem
	SubType string `json:"subType,omitempty"`
}

// ExportRequest captures catalog export parameters.
type ExportRequest struct {
	Category string `form:"category" binding:"required"`
	Format   string `form:"format" binding:"omitempty,oneof=csv pdf CSV PDF"`
}
