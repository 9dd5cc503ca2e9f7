package service

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

// genericSubTypeKey is the category-agnostic sub-type input of the item form.
const genericSubTypeKey = "subType"

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugStripper = regexp.MustCompile(`[^a-z0-9]+`)
)

// Submission is author input after normalization, ready to be applied to an
// ArchiveItem. Status is empty when the author did not choose one.
type Submission struct {
	Title       string
	Slug        string
	Category    string
	Descriptor  *taxonomy.VariantDescriptor
	Status      models.ItemStatus
	Thumbnail   *string
	BodyContent models.BodyContent
	Tags        []string
	Details     models.Variant
	Warnings    []*appErrors.Error
}

type envelopeInput struct {
	Title  string `json:"title" validate:"required,max=300"`
	Slug   string `json:"slug" validate:"required,max=200,slug"`
	Status string `json:"status" validate:"omitempty,oneof=draft published"`
}

type rawBlock struct {
	Type    string      `json:"type"`
	Content interface{} `json:"content"`
	Order   interface{} `json:"order"`
}

// SubmissionNormalizer turns loosely typed form input into a Submission
// using the category registry.
type SubmissionNormalizer struct {
	registry *taxonomy.Registry
	validate *validator.Validate
}

// NewSubmissionNormalizer constructs a normalizer bound to the registry.
func NewSubmissionNormalizer(registry *taxonomy.Registry) *SubmissionNormalizer {
	if registry == nil {
		registry = taxonomy.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return &SubmissionNormalizer{registry: registry, validate: v}
}

// NormalizeSubmission validates raw input for category. An empty category
// falls back to raw["category"]. Unregistered categories fail with
// ErrUnknownCategory; malformed fields fail with ErrValidation. A body that
// cannot be parsed is replaced by an empty body and reported in Warnings.
func (n *SubmissionNormalizer) NormalizeSubmission(raw map[string]interface{}, category string) (*Submission, error) {
	if strings.TrimSpace(category) == "" {
		category = stringValue(raw["category"])
	}
	desc, err := n.registry.Resolve(category)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnknownCategory, fmt.Sprintf("unknown category %q", category))
	}

	sub := &Submission{
		Title:      strings.TrimSpace(stringValue(raw["title"])),
		Slug:       strings.ToLower(strings.TrimSpace(stringValue(raw["slug"]))),
		Category:   desc.ID,
		Descriptor: desc,
		Tags:       uniqueStrings(listValue(raw["tags"])),
	}
	if sub.Slug == "" {
		sub.Slug = Slugify(sub.Title)
	}
	if thumb := strings.TrimSpace(stringValue(raw["thumbnail"])); thumb != "" {
		sub.Thumbnail = &thumb
	}

	status := strings.ToLower(strings.TrimSpace(stringValue(raw["status"])))
	if err := n.validateEnvelope(envelopeInput{Title: sub.Title, Slug: sub.Slug, Status: status}); err != nil {
		return nil, err
	}
	sub.Status = models.ItemStatus(status)

	body, degraded := parseBody(raw)
	sub.BodyContent = body
	if degraded {
		sub.Warnings = append(sub.Warnings, appErrors.ErrParseDegraded)
	}

	attrs, err := n.normalizeAttributes(raw, desc)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode attributes")
	}
	details, err := models.DecodeVariant(desc.Family, encoded)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category attributes")
	}
	sub.Details = details
	return sub, nil
}

func (n *SubmissionNormalizer) validateEnvelope(in envelopeInput) error {
	err := n.validate.Struct(in)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return appErrors.Clone(appErrors.ErrValidation, fe.Field()+" is required")
		case "slug":
			return appErrors.Clone(appErrors.ErrValidation, "slug must contain only lowercase letters, digits and single hyphens")
		default:
			return appErrors.Clone(appErrors.ErrValidation, "invalid "+fe.Field())
		}
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission")
}

// normalizeAttributes keeps only the fields owned by the category's variant,
// coerced to their declared kinds.
func (n *SubmissionNormalizer) normalizeAttributes(raw map[string]interface{}, desc *taxonomy.VariantDescriptor) (map[string]interface{}, error) {
	attrs := make(map[string]interface{}, len(desc.Fields))

	if desc.SubTypeField != "" {
		value := strings.TrimSpace(stringValue(raw[desc.SubTypeField]))
		if value == "" {
			value = strings.TrimSpace(stringValue(raw[genericSubTypeKey]))
		}
		if value != "" {
			canonical, ok := desc.CanonicalSubType(value)
			if !ok {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be one of %s", desc.SubTypeField, strings.Join(desc.SubTypes, ", ")))
			}
			attrs[desc.SubTypeField] = canonical
		}
	}

	aliases := n.registry.DateAliases(desc.Family)
	for _, name := range desc.Fields {
		if name == desc.SubTypeField {
			continue
		}
		spec, ok := n.registry.Field(name)
		if !ok {
			continue
		}
		if spec.Kind == taxonomy.KindCoordinates {
			if coords := coordinatesValue(raw); coords != nil {
				attrs[name] = coords
			}
			continue
		}

		value, present := raw[name]
		if !present || isBlank(value) {
			value, present = aliasedValue(raw, aliases, name)
		}
		if !present || isBlank(value) {
			continue
		}

		coerced, err := coerceField(spec, value)
		if err != nil {
			return nil, err
		}
		if coerced != nil {
			attrs[name] = coerced
		}
	}
	return attrs, nil
}

func aliasedValue(raw map[string]interface{}, aliases map[string]string, canonical string) (interface{}, bool) {
	keys := make([]string, 0, len(aliases))
	for alias, target := range aliases {
		if target == canonical {
			keys = append(keys, alias)
		}
	}
	sort.Strings(keys)
	for _, alias := range keys {
		if v, ok := raw[alias]; ok && !isBlank(v) {
			return v, true
		}
	}
	return nil, false
}

func coerceField(spec taxonomy.FieldSpec, value interface{}) (interface{}, error) {
	switch spec.Kind {
	case taxonomy.KindString:
		if s := strings.TrimSpace(stringValue(value)); s != "" {
			return s, nil
		}
	case taxonomy.KindList:
		if list := listValue(value); len(list) > 0 {
			return list, nil
		}
	case taxonomy.KindDate:
		t, err := parseDate(stringValue(value))
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a date (YYYY-MM-DD)", spec.Name))
		}
		return t, nil
	case taxonomy.KindBool:
		b, err := boolValue(value)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, spec.Name+" must be true or false")
		}
		return b, nil
	case taxonomy.KindEnum:
		s := strings.TrimSpace(stringValue(value))
		for _, allowed := range spec.Values {
			if strings.EqualFold(allowed, s) {
				return allowed, nil
			}
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be one of %s", spec.Name, strings.Join(spec.Values, ", ")))
	}
	return nil, nil
}

// parseBody reads bodyContentJSON (a serialized block list) or bodyContent
// (already decoded). It reports degraded when input was present but could
// not be parsed.
func parseBody(raw map[string]interface{}) (models.BodyContent, bool) {
	source, ok := raw["bodyContentJSON"]
	if !ok || isBlank(source) {
		source, ok = raw["bodyContent"]
	}
	if !ok || source == nil {
		return models.BodyContent{}, false
	}

	var payload []byte
	switch v := source.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return models.BodyContent{}, false
		}
		payload = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return models.BodyContent{}, true
		}
		payload = encoded
	}

	var blocks []rawBlock
	if err := json.Unmarshal(payload, &blocks); err != nil {
		return models.BodyContent{}, true
	}

	body := make(models.BodyContent, 0, len(blocks))
	for i, b := range blocks {
		blockType := strings.ToLower(strings.TrimSpace(b.Type))
		if blockType == "" {
			continue
		}
		order, ok := intValue(b.Order)
		if !ok {
			order = i
		}
		body = append(body, models.ContentBlock{Type: models.BlockType(blockType), Content: b.Content, Order: order})
	}
	return body.Sorted(), false
}

// coordinatesValue accepts lat/lng keys or a coordinates object and keeps the
// pair only when both parts are finite numbers.
func coordinatesValue(raw map[string]interface{}) *models.Coordinates {
	latRaw, lngRaw := raw["lat"], raw["lng"]
	if obj, ok := raw["coordinates"].(map[string]interface{}); ok && (isBlank(latRaw) || isBlank(lngRaw)) {
		latRaw, lngRaw = obj["lat"], obj["lng"]
	}
	lat, okLat := floatValue(latRaw)
	lng, okLng := floatValue(lngRaw)
	if !okLat || !okLng {
		return nil
	}
	return &models.Coordinates{Lat: lat, Lng: lng}
}

// Slugify derives a URL-safe slug from a title. Titles without any ASCII
// letters or digits get a random slug.
func Slugify(title string) string {
	slug := strings.Trim(slugStripper.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 120 {
		slug = strings.TrimRight(slug[:120], "-")
	}
	if slug == "" && strings.TrimSpace(title) != "" {
		slug = "item-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	return slug
}

// EditableSubType mirrors the category-specific sub-type into the generic
// form input when an item is loaded for editing.
func EditableSubType(item *models.ArchiveItem, desc *taxonomy.VariantDescriptor) string {
	if desc == nil || desc.SubTypeField == "" {
		return ""
	}
	return item.SubType(desc.SubTypeField)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	}
	return false
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	}
	return ""
}

func listValue(v interface{}) []string {
	var parts []string
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			parts = append(parts, stringValue(item))
		}
	case []string:
		parts = t
	case string:
		parts = strings.Split(t, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

func boolValue(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "yes":
			return true, nil
		case "off", "no":
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(t))
	}
	return false, fmt.Errorf("not a boolean: %v", v)
}

func floatValue(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func intValue(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	}
	return 0, false
}
