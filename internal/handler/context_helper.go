package handler

import (
	"mime"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chilahati-archive/archive-api/internal/middleware"
	"github.com/chilahati-archive/archive-api/internal/models"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

// maxFormMemory bounds multipart parsing of the item form.
const maxFormMemory = 8 << 20

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// bindSubmission reads the item form as a loose map. JSON bodies are decoded
// as-is; url-encoded and multipart forms keep single values as strings and
// repeated keys as lists.
func bindSubmission(c *gin.Context) (map[string]interface{}, error) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := c.Request.ParseForm(); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid form payload")
		}
		return formValues(c.Request.PostForm), nil
	case "multipart/form-data":
		if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid form payload")
		}
		return formValues(c.Request.MultipartForm.Value), nil
	default:
		raw := make(map[string]interface{})
		if err := c.ShouldBindJSON(&raw); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid item payload")
		}
		return raw, nil
	}
}

func formValues(values map[string][]string) map[string]interface{} {
	raw := make(map[string]interface{}, len(values))
	for key, list := range values {
		key = strings.TrimSuffix(key, "[]")
		switch len(list) {
		case 0:
		case 1:
			raw[key] = list[0]
		default:
			items := make([]interface{}, len(list))
			for i, v := range list {
				items[i] = v
			}
			raw[key] = items
		}
	}
	return raw
}
