package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/internal/models"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
	"github.com/chilahati-archive/archive-api/pkg/response"
)

type searchService interface {
	Search(ctx context.Context, req dto.SearchRequest) (*dto.SearchResponse, error)
}

// searchQuery keeps page as text so a malformed value falls back to the
// first page instead of failing the request.
type searchQuery struct {
	Query    string `form:"q"`
	Page     string `form:"page"`
	Category string `form:"category"`
}

// SearchHandler serves free-text search.
type SearchHandler struct {
	service  searchService
	pageSize int
}

// NewSearchHandler constructs the handler.
func NewSearchHandler(service searchService, pageSize int) *SearchHandler {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &SearchHandler{service: service, pageSize: pageSize}
}

// Search godoc
// @Summary Search published items
// @Tags Search
// @Produce json
// @Param q query string false "Query"
// @Param page query int false "Page (1-based)"
// @Param category query string false "Restrict to a category"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	var query searchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid search parameters"))
		return
	}
	req := dto.SearchRequest{Query: query.Query, Page: pageNumber(query.Page), Category: query.Category}
	result, err := h.service.Search(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{
		Page:       result.CurrentPage,
		PageSize:   h.pageSize,
		TotalCount: result.TotalResults,
		TotalPages: result.TotalPages,
	}
	response.JSON(c, http.StatusOK, result, pagination)
}

// pageNumber reads the leading digits of raw; anything unusable is page 1.
func pageNumber(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	page, err := strconv.Atoi(raw[:end])
	if err != nil || page < 1 {
		return 1
	}
	return page
}
