package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/service"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
	"github.com/chilahati-archive/archive-api/pkg/export"
	"github.com/chilahati-archive/archive-api/pkg/response"
)

type archiveService interface {
	Create(ctx context.Context, claims *models.JWTClaims, raw map[string]interface{}) (*service.SubmissionResult, error)
	Update(ctx context.Context, claims *models.JWTClaims, id string, raw map[string]interface{}) (*service.SubmissionResult, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
	GetForEdit(ctx context.Context, claims *models.JWTClaims, id string) (*dto.EditableItem, error)
	GetBySlug(ctx context.Context, claims *models.JWTClaims, slug string) (*models.ArchiveItem, error)
}

type exportService interface {
	Export(ctx context.Context, category string, format export.Format) (*service.ExportResult, error)
}

// ArchiveHandler manages item reading and the admin item endpoints.
type ArchiveHandler struct {
	service archiveService
	exports exportService
}

// NewArchiveHandler constructs the handler. A nil export service disables
// the export endpoint.
func NewArchiveHandler(service archiveService, exports exportService) *ArchiveHandler {
	return &ArchiveHandler{service: service, exports: exports}
}

// Entry godoc
// @Summary Read an item by slug
// @Description Drafts are only visible to their author and staff.
// @Tags Archive
// @Produce json
// @Param slug path string true "Item slug"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /entries/{slug} [get]
func (h *ArchiveHandler) Entry(c *gin.Context) {
	item, err := h.service.GetBySlug(c.Request.Context(), claimsFromContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Submit a new item
// @Tags Admin
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Security BearerAuth
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/items [post]
func (h *ArchiveHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	raw, err := bindSubmission(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Create(c.Request.Context(), claims, raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result.Item, response.Warnings(result.Warnings...))
}

// Get godoc
// @Summary Load an item for editing
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Router /admin/items/{id} [get]
func (h *ArchiveHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	item, err := h.service.GetForEdit(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Replace an item
// @Description A blank category keeps the current one.
// @Tags Admin
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/items/{id} [put]
func (h *ArchiveHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	raw, err := bindSubmission(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Update(c.Request.Context(), claims, c.Param("id"), raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Item, nil, response.Warnings(result.Warnings...))
}

// Delete godoc
// @Summary Delete an item permanently
// @Tags Admin
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Success 204
// @Router /admin/items/{id} [delete]
func (h *ArchiveHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export a category catalog
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param category query string true "Category"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} binary
// @Router /admin/export [get]
func (h *ArchiveHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "category is required and format must be csv or pdf"))
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), req.Category, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
