package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chilahati-archive/archive-api/internal/middleware"
)

// Routes bundles the handlers mounted by RegisterRoutes.
type Routes struct {
	Prefix   string
	Tokens   middleware.TokenValidator
	Taxonomy *TaxonomyHandler
	Search   *SearchHandler
	Archive  *ArchiveHandler
	Metrics  *MetricsHandler
}

// RegisterRoutes mounts the public, reader and admin endpoints on r.
func RegisterRoutes(r gin.IRouter, routes Routes) {
	if routes.Metrics != nil {
		r.GET("/health", routes.Metrics.Health)
		r.GET("/ready", routes.Metrics.Ready)
		r.GET("/metrics", routes.Metrics.Prometheus)
	}

	prefix := "/" + strings.Trim(routes.Prefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	api := r.Group(prefix)

	api.GET("/categories", routes.Taxonomy.Categories)
	api.GET("/archive/:category", routes.Taxonomy.SubCategories)
	api.GET("/archive/:category/:subType", routes.Taxonomy.Items)
	api.GET("/search", routes.Search.Search)
	api.GET("/entries/:slug", middleware.OptionalJWT(routes.Tokens), routes.Archive.Entry)

	admin := api.Group("/admin", middleware.JWT(routes.Tokens))
	admin.POST("/items", routes.Archive.Create)
	admin.GET("/items/:id", routes.Archive.Get)
	admin.PUT("/items/:id", routes.Archive.Update)
	admin.DELETE("/items/:id", middleware.RequireStaff(), routes.Archive.Delete)
	admin.GET("/export", middleware.RequireStaff(), routes.Archive.Export)
	if routes.Metrics != nil {
		admin.GET("/metrics/summary", middleware.RequireStaff(), routes.Metrics.Summary)
	}
}
