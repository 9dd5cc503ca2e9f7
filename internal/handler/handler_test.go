package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilahati-archive/archive-api/internal/dto"
	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/service"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
	"github.com/chilahati-archive/archive-api/pkg/export"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type fakeTaxonomy struct {
	lastCategory string
	lastSubType  string
}

func (f *fakeTaxonomy) Categories() []dto.CategorySummary {
	return []dto.CategorySummary{{ID: "transport", Label: "Transport"}}
}

func (f *fakeTaxonomy) ListSubCategories(_ context.Context, category string) (*dto.SubCategoryListing, error) {
	f.lastCategory = category
	if category == "festivals" {
		return nil, appErrors.ErrUnknownCategory
	}
	return &dto.SubCategoryListing{Mode: dto.ModeSubmenu, Category: "transport", Field: "transportType", Values: []string{"Bus", "Train"}}, nil
}

func (f *fakeTaxonomy) ListItems(_ context.Context, category, subType string) (*dto.ItemListing, error) {
	f.lastCategory, f.lastSubType = category, subType
	return &dto.ItemListing{Category: category, Title: subType, SubType: subType, Items: []models.ArchiveItem{}}, nil
}

type fakeSearch struct {
	last dto.SearchRequest
}

func (f *fakeSearch) Search(_ context.Context, req dto.SearchRequest) (*dto.SearchResponse, error) {
	f.last = req
	return &dto.SearchResponse{Results: []models.ArchiveItem{}, Query: req.Query, CurrentPage: 2, TotalPages: 3, TotalResults: 25}, nil
}

type fakeArchive struct {
	lastClaims *models.JWTClaims
	lastRaw    map[string]interface{}
	lastID     string
	createErr  error
	warnings   []*appErrors.Error
}

func (f *fakeArchive) Create(_ context.Context, claims *models.JWTClaims, raw map[string]interface{}) (*service.SubmissionResult, error) {
	f.lastClaims, f.lastRaw = claims, raw
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &service.SubmissionResult{Item: &models.ArchiveItem{ID: "item-1", Slug: "chilahati-station"}, Warnings: f.warnings}, nil
}

func (f *fakeArchive) Update(_ context.Context, claims *models.JWTClaims, id string, raw map[string]interface{}) (*service.SubmissionResult, error) {
	f.lastClaims, f.lastID, f.lastRaw = claims, id, raw
	return &service.SubmissionResult{Item: &models.ArchiveItem{ID: id}}, nil
}

func (f *fakeArchive) Delete(_ context.Context, claims *models.JWTClaims, id string) error {
	f.lastClaims, f.lastID = claims, id
	return nil
}

func (f *fakeArchive) GetForEdit(_ context.Context, claims *models.JWTClaims, id string) (*dto.EditableItem, error) {
	f.lastClaims, f.lastID = claims, id
	return &dto.EditableItem{ArchiveItem: models.ArchiveItem{ID: id}, SubType: "Train"}, nil
}

func (f *fakeArchive) GetBySlug(_ context.Context, claims *models.JWTClaims, slug string) (*models.ArchiveItem, error) {
	f.lastClaims = claims
	if claims == nil {
		return nil, appErrors.ErrNotFound
	}
	return &models.ArchiveItem{ID: "item-1", Slug: slug, Status: models.StatusDraft}, nil
}

type fakeExport struct {
	format export.Format
}

func (f *fakeExport) Export(_ context.Context, category string, format export.Format) (*service.ExportResult, error) {
	f.format = format
	return &service.ExportResult{Filename: category + ".csv", ContentType: format.ContentType(), Payload: []byte("Title\n")}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type testServer struct {
	router   *gin.Engine
	identity *service.IdentityService
	taxonomy *fakeTaxonomy
	search   *fakeSearch
	archive  *fakeArchive
	exports  *fakeExport
}

func newTestServer(t *testing.T, store pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{
		identity: service.NewIdentityService(service.IdentityConfig{Secret: "secret", Issuer: "chilahati-archive", Expiry: time.Hour}),
		taxonomy: &fakeTaxonomy{},
		search:   &fakeSearch{},
		archive:  &fakeArchive{},
		exports:  &fakeExport{},
	}
	ts.router = gin.New()
	RegisterRoutes(ts.router, Routes{
		Prefix:   "/api/v1",
		Tokens:   ts.identity,
		Taxonomy: NewTaxonomyHandler(ts.taxonomy, time.Minute),
		Search:   NewSearchHandler(ts.search, 10),
		Archive:  NewArchiveHandler(ts.archive, ts.exports),
		Metrics:  NewMetricsHandler(service.NewMetricsService(), store),
	})
	return ts
}

func (ts *testServer) token(t *testing.T, role models.UserRole) string {
	t.Helper()
	token, _, err := ts.identity.IssueToken("user-1", role, "Test User")
	require.NoError(t, err)
	return "Bearer " + token
}

func (ts *testServer) do(method, target, auth, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSubCategoriesPublicCache(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/archive/transport", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	var listing dto.SubCategoryListing
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &listing))
	assert.Equal(t, dto.ModeSubmenu, listing.Mode)

	rec = ts.do(http.MethodGet, "/api/v1/archive/festivals", "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_CATEGORY", decode(t, rec).Error.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestItemsPassesSubType(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/v1/archive/Emergency%20services/Health", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Emergency services", ts.taxonomy.lastCategory)
	assert.Equal(t, "Health", ts.taxonomy.lastSubType)
}

func TestSearchBindsQueryAndPagination(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/v1/search?q=river&page=2&category=transport", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.SearchRequest{Query: "river", Page: 2, Category: "transport"}, ts.search.last)
	env := decode(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 25, env.Pagination.TotalCount)
	assert.Equal(t, 3, env.Pagination.TotalPages)

	for raw, want := range map[string]int{"abc": 1, "": 1, "0": 1, "-2": 1, "3rd": 3, "99999999999999999999": 1} {
		rec = ts.do(http.MethodGet, "/api/v1/search?q=river&page="+url.QueryEscape(raw), "", "", "")
		require.Equal(t, http.StatusOK, rec.Code, raw)
		assert.Equal(t, want, ts.search.last.Page, raw)
	}
}

func TestEntryOptionalAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/entries/draft-item", "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/entries/draft-item", ts.token(t, models.RoleContributor), "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ts.archive.lastClaims)
	assert.Equal(t, "user-1", ts.archive.lastClaims.UserID)
}

func TestAdminCreateJSONWithWarnings(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.archive.warnings = []*appErrors.Error{appErrors.ErrParseDegraded}

	rec := ts.do(http.MethodPost, "/api/v1/admin/items", "", "application/json", `{"title":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/admin/items", ts.token(t, models.RoleAdmin), "application/json", `{"title":"Chilahati Station","category":"transport","tags":["rail"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Chilahati Station", ts.archive.lastRaw["title"])
	assert.Equal(t, []interface{}{"rail"}, ts.archive.lastRaw["tags"])
	env := decode(t, rec)
	require.Contains(t, env.Meta, "warnings")
	warnings := env.Meta["warnings"].([]interface{})
	require.Len(t, warnings, 1)
	assert.Equal(t, "PARSE_DEGRADED", warnings[0].(map[string]interface{})["code"])
}

func TestAdminCreateFormPost(t *testing.T) {
	ts := newTestServer(t, nil)
	form := url.Values{}
	form.Set("title", "Chilahati Station")
	form.Set("category", "transport")
	form.Add("tags[]", "rail")
	form.Add("tags[]", "history")

	rec := ts.do(http.MethodPost, "/api/v1/admin/items", ts.token(t, models.RoleSupervisor), "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "transport", ts.archive.lastRaw["category"])
	assert.Equal(t, []interface{}{"rail", "history"}, ts.archive.lastRaw["tags"])
}

func TestAdminCreateMapsDuplicateSlug(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.archive.createErr = appErrors.ErrDuplicateSlug

	rec := ts.do(http.MethodPost, "/api/v1/admin/items", ts.token(t, models.RoleAdmin), "application/json", `{"title":"Chilahati Station"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_SLUG", decode(t, rec).Error.Code)
}

func TestAdminCreateRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodPost, "/api/v1/admin/items", ts.token(t, models.RoleAdmin), "application/json", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEditAndUpdate(t *testing.T) {
	ts := newTestServer(t, nil)
	auth := ts.token(t, models.RoleContributor)

	rec := ts.do(http.MethodGet, "/api/v1/admin/items/item-9", auth, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var editable map[string]interface{}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &editable))
	assert.Equal(t, "Train", editable["subType"])
	assert.Equal(t, "item-9", editable["id"])

	rec = ts.do(http.MethodPut, "/api/v1/admin/items/item-9", auth, "application/json", `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "item-9", ts.archive.lastID)
}

func TestAdminDeleteStaffOnly(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodDelete, "/api/v1/admin/items/item-1", ts.token(t, models.RoleContributor), "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/v1/admin/items/item-1", ts.token(t, models.RoleAdmin), "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "item-1", ts.archive.lastID)
}

func TestAdminExport(t *testing.T) {
	ts := newTestServer(t, nil)
	auth := ts.token(t, models.RoleAdmin)

	rec := ts.do(http.MethodGet, "/api/v1/admin/export?category=transport&format=CSV", auth, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.FormatCSV, ts.exports.format)
	assert.Equal(t, `attachment; filename="transport.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Title\n", rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/v1/admin/export?format=pdf", auth, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/admin/export?category=transport&format=xls", auth, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, fakePinger{})
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "", "", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/ready", "", "", "").Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/metrics", "", "", "").Code)

	down := newTestServer(t, fakePinger{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(http.MethodGet, "/ready", "", "", "").Code)
}
