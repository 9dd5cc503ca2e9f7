package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

func newNormalizer() *SubmissionNormalizer {
	return NewSubmissionNormalizer(taxonomy.Default())
}

func TestNormalizeRewritesGenericSubType(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":   "Chilahati Bus Stand",
		"subType": "bus",
	}, "Transport")
	require.NoError(t, err)

	assert.Equal(t, "transport", sub.Category)
	details, ok := sub.Details.(*models.LocationDetails)
	require.True(t, ok, "got %T", sub.Details)
	assert.Equal(t, "Bus", details.TransportType)
	assert.Empty(t, details.SubType)

	encoded, err := json.Marshal(sub.Details)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), `"subType"`)
}

func TestNormalizeServiceTypeFromGenericInput(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":              "Fire Station",
		"subType":            "fire",
		"Emergency services": "Police",
		"is24Hours":          "on",
	}, "Emergency services")
	require.NoError(t, err)

	assert.Equal(t, "emergency-services", sub.Category)
	details := sub.Details.(*models.LocationDetails)
	assert.Equal(t, "Fire", details.ServiceType)
	require.NotNil(t, details.Is24Hours)
	assert.True(t, *details.Is24Hours)
}

func TestNormalizeRejectsUnknownCategory(t *testing.T) {
	_, err := newNormalizer().NormalizeSubmission(map[string]interface{}{"title": "x"}, "Festivals")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnknownCategory))
}

func TestNormalizeCategoryFromPayload(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{"title": "Pottery", "category": "Occupations"}, "")
	require.NoError(t, err)
	assert.Equal(t, "occupation", sub.Category)
}

func TestNormalizeRejectsInvalidSubType(t *testing.T) {
	_, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":   "City Hospital",
		"subType": "Hospital",
	}, "institution")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestNormalizeDropsSubTypeForFlatCategory(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":   "Liberation War",
		"subType": "War",
	}, "history")
	require.NoError(t, err)
	encoded, err := json.Marshal(sub.Details)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(encoded))
}

func TestNormalizeOpenSubTypeKeepsValue(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":   "Poet",
		"subType": " Poet ",
	}, "notable-people")
	require.NoError(t, err)
	assert.Equal(t, "Poet", sub.Details.(*models.PersonDetails).SubType)
}

func TestNormalizeBodyParseFailureDegrades(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":           "Broken Body",
		"bodyContentJSON": "[{not json",
	}, "history")
	require.NoError(t, err)
	assert.Empty(t, sub.BodyContent)
	require.Len(t, sub.Warnings, 1)
	assert.Equal(t, appErrors.ErrParseDegraded.Code, sub.Warnings[0].Code)
}

func TestNormalizeBodyOrder(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":           "Ordered",
		"bodyContentJSON": `[{"type":"paragraph","content":"c","order":2},{"type":"heading","content":"a","order":0},{"type":"quote","content":"b","order":1}]`,
	}, "culture")
	require.NoError(t, err)
	require.Len(t, sub.BodyContent, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{sub.BodyContent[0].Order, sub.BodyContent[1].Order, sub.BodyContent[2].Order})
	assert.Equal(t, []interface{}{"a", "b", "c"}, []interface{}{sub.BodyContent[0].Content, sub.BodyContent[1].Content, sub.BodyContent[2].Content})
	assert.Empty(t, sub.Warnings)
}

func TestNormalizeBodyFromDecodedArray(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title": "Decoded",
		"bodyContent": []interface{}{
			map[string]interface{}{"type": "image", "content": map[string]interface{}{"url": "/a.jpg"}},
			map[string]interface{}{"type": "Paragraph", "content": "text"},
		},
	}, "culture")
	require.NoError(t, err)
	require.Len(t, sub.BodyContent, 2)
	assert.Equal(t, models.BlockImage, sub.BodyContent[0].Type)
	assert.Equal(t, 1, sub.BodyContent[1].Order)
	assert.Equal(t, models.BlockParagraph, sub.BodyContent[1].Type)
}

func TestNormalizeCoordinates(t *testing.T) {
	n := newNormalizer()
	sub, err := n.NormalizeSubmission(map[string]interface{}{"title": "Station", "lat": "26.21", "lng": 88.91}, "transport")
	require.NoError(t, err)
	require.NotNil(t, sub.Details.(*models.LocationDetails).Coordinates)
	assert.Equal(t, models.Coordinates{Lat: 26.21, Lng: 88.91}, *sub.Details.(*models.LocationDetails).Coordinates)

	for _, raw := range []map[string]interface{}{
		{"title": "Station", "lat": "26.21"},
		{"title": "Station", "lat": "abc", "lng": "88.9"},
		{"title": "Station", "lat": "NaN", "lng": "88.9"},
		{"title": "Station", "lat": "", "lng": ""},
	} {
		sub, err := n.NormalizeSubmission(raw, "transport")
		require.NoError(t, err)
		assert.Nil(t, sub.Details.(*models.LocationDetails).Coordinates, "%v", raw)
	}

	sub, err = n.NormalizeSubmission(map[string]interface{}{"title": "Map", "coordinates": map[string]interface{}{"lat": 1.5, "lng": 2.5}}, "map")
	require.NoError(t, err)
	assert.Equal(t, 2.5, sub.Details.(*models.LocationDetails).Coordinates.Lng)
}

func TestNormalizeDateAliases(t *testing.T) {
	n := newNormalizer()
	sub, err := n.NormalizeSubmission(map[string]interface{}{"title": "Victory Day", "dateOfIncident": "1971-12-16"}, "history")
	require.NoError(t, err)
	narrative := sub.Details.(*models.NarrativeDetails)
	require.NotNil(t, narrative.EventDate)
	assert.True(t, narrative.EventDate.Equal(time.Date(1971, 12, 16, 0, 0, 0, 0, time.UTC)))

	sub, err = n.NormalizeSubmission(map[string]interface{}{"title": "High School", "established": "1950-01-01T00:00:00Z"}, "institution")
	require.NoError(t, err)
	require.NotNil(t, sub.Details.(*models.LocationDetails).EstablishedDate)

	_, err = n.NormalizeSubmission(map[string]interface{}{"title": "Bad", "eventDate": "16/12/1971"}, "history")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestNormalizeEnvelope(t *testing.T) {
	n := newNormalizer()
	sub, err := n.NormalizeSubmission(map[string]interface{}{
		"title":     "  Chilahati Railway Station! ",
		"tags":      "rail, border, Rail , ",
		"thumbnail": " /uploads/station.jpg ",
		"status":    "Draft",
	}, "transport")
	require.NoError(t, err)
	assert.Equal(t, "Chilahati Railway Station!", sub.Title)
	assert.Equal(t, "chilahati-railway-station", sub.Slug)
	assert.Equal(t, []string{"rail", "border"}, sub.Tags)
	require.NotNil(t, sub.Thumbnail)
	assert.Equal(t, "/uploads/station.jpg", *sub.Thumbnail)
	assert.Equal(t, models.StatusDraft, sub.Status)

	_, err = n.NormalizeSubmission(map[string]interface{}{"slug": "no-title"}, "transport")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title is required")

	_, err = n.NormalizeSubmission(map[string]interface{}{"title": "x", "slug": "bad slug"}, "transport")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = n.NormalizeSubmission(map[string]interface{}{"title": "x", "status": "archived"}, "transport")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestNormalizeOccupationEnumAndLists(t *testing.T) {
	sub, err := newNormalizer().NormalizeSubmission(map[string]interface{}{
		"title":            "Blacksmith",
		"occupationStatus": "declining",
		"toolsUsed":        []interface{}{"Hammer", " Anvil ", ""},
		"unknownField":     "dropped",
	}, "occupation")
	require.NoError(t, err)
	details := sub.Details.(*models.OccupationDetails)
	assert.Equal(t, models.OccupationDeclining, details.OccupationStatus)
	assert.Equal(t, []string{"Hammer", "Anvil"}, details.ToolsUsed)

	_, err = newNormalizer().NormalizeSubmission(map[string]interface{}{"title": "x", "occupationStatus": "Booming"}, "occupation")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSlugifyNonLatinTitle(t *testing.T) {
	slug := Slugify("চিলাহাটি")
	assert.Regexp(t, `^item-[0-9a-f]{8}$`, slug)
	assert.Equal(t, "", Slugify("   "))
}

func TestEditableSubType(t *testing.T) {
	desc, err := taxonomy.Default().Resolve("transport")
	require.NoError(t, err)
	item := &models.ArchiveItem{Category: "transport", Details: &models.LocationDetails{TransportType: "Train"}}
	assert.Equal(t, "Train", EditableSubType(item, desc))

	flat, err := taxonomy.Default().Resolve("history")
	require.NoError(t, err)
	assert.Equal(t, "", EditableSubType(item, flat))
}
