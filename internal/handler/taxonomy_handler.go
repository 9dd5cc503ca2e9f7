package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/pkg/response"
)

type taxonomyService interface {
	Categories() []dto.CategorySummary
	ListSubCategories(ctx context.Context, category string) (*dto.SubCategoryListing, error)
	ListItems(ctx context.Context, category, subType string) (*dto.ItemListing, error)
}

// TaxonomyHandler serves the category browse pages.
type TaxonomyHandler struct {
	service taxonomyService
	maxAge  time.Duration
}

// NewTaxonomyHandler constructs the handler. Listings only contain
// published items, so they may be cached publicly for maxAge.
func NewTaxonomyHandler(service taxonomyService, maxAge time.Duration) *TaxonomyHandler {
	return &TaxonomyHandler{service: service, maxAge: maxAge}
}

// Categories godoc
// @Summary List registered categories
// @Tags Taxonomy
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *TaxonomyHandler) Categories(c *gin.Context) {
	response.Public(c, h.service.Categories(), nil, h.maxAge)
}

// SubCategories godoc
// @Summary Resolve how a category is browsed
// @Description Returns a SUBMENU of sub-type values or a FLAT item list.
// @Tags Taxonomy
// @Produce json
// @Param category path string true "Category identifier or alias"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /archive/{category} [get]
func (h *TaxonomyHandler) SubCategories(c *gin.Context) {
	listing, err := h.service.ListSubCategories(c.Request.Context(), c.Param("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Public(c, listing, nil, h.maxAge)
}

// Items godoc
// @Summary List published items of a sub-category
// @Tags Taxonomy
// @Produce json
// @Param category path string true "Category identifier or alias"
// @Param subType path string true "Sub-type value"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /archive/{category}/{subType} [get]
func (h *TaxonomyHandler) Items(c *gin.Context) {
	listing, err := h.service.ListItems(c.Request.Context(), c.Param("category"), c.Param("subType"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Public(c, listing, nil, h.maxAge)
}
