// Package taxonomy holds the category registry: the one table mapping a
// category tag to its variant family, sub-type field, sub-type values and
// attribute fields. The resolver, the search predicate builder and the
// submission normalizer all read from it.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultRegistryYAML []byte

// ErrCategoryNotFound is returned when a category is not registered.
var ErrCategoryNotFound = errors.New("taxonomy: category not registered")

// Family groups categories sharing a variant payload shape.
type Family string

const (
	FamilyLocation   Family = "location"
	FamilyPerson     Family = "person"
	FamilyNarrative  Family = "narrative"
	FamilyOccupation Family = "occupation"
)

// FieldKind describes how a variant attribute is stored and coerced.
type FieldKind string

const (
	KindString      FieldKind = "string"
	KindList        FieldKind = "list"
	KindDate        FieldKind = "date"
	KindBool        FieldKind = "bool"
	KindCoordinates FieldKind = "coordinates"
	KindEnum        FieldKind = "enum"
)

// FieldSpec declares one variant attribute.
type FieldSpec struct {
	Name   string    `yaml:"name"`
	Kind   FieldKind `yaml:"kind"`
	Values []string  `yaml:"values"`
}

// Textual reports whether the field holds searchable prose.
func (f FieldSpec) Textual() bool {
	return f.Kind == KindString || f.Kind == KindList || f.Kind == KindEnum
}

type familyDoc struct {
	Fields      []string          `yaml:"fields"`
	DateAliases map[string]string `yaml:"dateAliases"`
}

type categoryDoc struct {
	ID           string   `yaml:"id"`
	Label        string   `yaml:"label"`
	Family       Family   `yaml:"family"`
	Aliases      []string `yaml:"aliases"`
	SubTypeField string   `yaml:"subTypeField"`
	SubTypes     []string `yaml:"subTypes"`
	Fields       []string `yaml:"fields"`
}

type registryDoc struct {
	SubTypeFields []string             `yaml:"subTypeFields"`
	Fields        []FieldSpec          `yaml:"fields"`
	SearchFields  []string             `yaml:"searchFields"`
	Families      map[Family]familyDoc `yaml:"families"`
	Categories    []categoryDoc        `yaml:"categories"`
}

// Registry is immutable after Load and safe for concurrent reads.
type Registry struct {
	categories    []*VariantDescriptor
	byKey         map[string]*VariantDescriptor
	fields        map[string]FieldSpec
	subTypeFields []string
	searchFields  []string
	dateAliases   map[Family]map[string]string
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry built from the embedded table.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Load(defaultRegistryYAML)
		if err != nil {
			panic(fmt.Sprintf("taxonomy: invalid embedded registry: %v", err))
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// Load parses and validates a registry document.
func Load(data []byte) (*Registry, error) {
	var doc registryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	reg := &Registry{
		byKey:         make(map[string]*VariantDescriptor),
		fields:        make(map[string]FieldSpec, len(doc.Fields)),
		subTypeFields: append([]string(nil), doc.SubTypeFields...),
		dateAliases:   make(map[Family]map[string]string, len(doc.Families)),
	}
	if len(reg.subTypeFields) == 0 {
		return nil, errors.New("registry declares no sub-type fields")
	}

	for _, f := range doc.Fields {
		if f.Name == "" {
			return nil, errors.New("field without name")
		}
		if _, dup := reg.fields[f.Name]; dup {
			return nil, fmt.Errorf("field %q declared twice", f.Name)
		}
		switch f.Kind {
		case KindString, KindList, KindDate, KindBool, KindCoordinates:
		case KindEnum:
			if len(f.Values) == 0 {
				return nil, fmt.Errorf("enum field %q has no values", f.Name)
			}
		default:
			return nil, fmt.Errorf("field %q has unknown kind %q", f.Name, f.Kind)
		}
		reg.fields[f.Name] = f
	}
	for _, name := range reg.subTypeFields {
		if _, ok := reg.fields[name]; !ok {
			return nil, fmt.Errorf("sub-type field %q is not declared", name)
		}
	}
	for _, name := range doc.SearchFields {
		spec, ok := reg.fields[name]
		if !ok {
			return nil, fmt.Errorf("search field %q is not declared", name)
		}
		if !spec.Textual() {
			return nil, fmt.Errorf("search field %q is not textual", name)
		}
		reg.searchFields = append(reg.searchFields, name)
	}

	for family, fdoc := range doc.Families {
		for _, name := range fdoc.Fields {
			if _, ok := reg.fields[name]; !ok {
				return nil, fmt.Errorf("family %s uses undeclared field %q", family, name)
			}
		}
		aliases := make(map[string]string, len(fdoc.DateAliases))
		for alias, target := range fdoc.DateAliases {
			spec, ok := reg.fields[target]
			if !ok || spec.Kind != KindDate {
				return nil, fmt.Errorf("family %s date alias %q targets non-date field %q", family, alias, target)
			}
			aliases[alias] = target
		}
		reg.dateAliases[family] = aliases
	}

	for _, c := range doc.Categories {
		desc, err := reg.buildDescriptor(c, doc.Families)
		if err != nil {
			return nil, err
		}
		for _, key := range desc.matchKeys {
			if existing, dup := reg.byKey[key]; dup && existing != desc {
				return nil, fmt.Errorf("category key %q used by both %s and %s", key, existing.ID, desc.ID)
			}
			reg.byKey[key] = desc
		}
		reg.categories = append(reg.categories, desc)
	}
	if len(reg.categories) == 0 {
		return nil, errors.New("registry declares no categories")
	}
	return reg, nil
}

func (r *Registry) buildDescriptor(c categoryDoc, families map[Family]familyDoc) (*VariantDescriptor, error) {
	id := Normalize(c.ID)
	if id == "" {
		return nil, errors.New("category without id")
	}
	if id != c.ID {
		return nil, fmt.Errorf("category id %q is not canonical (want %q)", c.ID, id)
	}
	fdoc, ok := families[c.Family]
	if !ok {
		return nil, fmt.Errorf("category %s uses unknown family %q", c.ID, c.Family)
	}
	if c.SubTypeField != "" && !r.IsSubTypeField(c.SubTypeField) {
		return nil, fmt.Errorf("category %s sub-type field %q is not a candidate field", c.ID, c.SubTypeField)
	}
	if c.SubTypeField == "" && len(c.SubTypes) > 0 {
		return nil, fmt.Errorf("category %s lists sub-types without a sub-type field", c.ID)
	}
	for _, v := range c.SubTypes {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("category %s has a blank sub-type value", c.ID)
		}
	}

	desc := &VariantDescriptor{
		ID:           c.ID,
		Label:        c.Label,
		Family:       c.Family,
		SubTypeField: c.SubTypeField,
		SubTypes:     append([]string(nil), c.SubTypes...),
		fieldSet:     make(map[string]struct{}),
	}
	if desc.Label == "" {
		desc.Label = c.ID
	}
	addField := func(name string) error {
		if _, ok := r.fields[name]; !ok {
			return fmt.Errorf("category %s uses undeclared field %q", c.ID, name)
		}
		if _, seen := desc.fieldSet[name]; seen {
			return nil
		}
		desc.fieldSet[name] = struct{}{}
		desc.Fields = append(desc.Fields, name)
		return nil
	}
	for _, name := range fdoc.Fields {
		if err := addField(name); err != nil {
			return nil, err
		}
	}
	for _, name := range c.Fields {
		if err := addField(name); err != nil {
			return nil, err
		}
	}
	if c.SubTypeField != "" {
		if err := addField(c.SubTypeField); err != nil {
			return nil, err
		}
	}

	keys := map[string]struct{}{id: {}}
	desc.matchKeys = []string{id}
	for _, alias := range c.Aliases {
		key := Normalize(alias)
		if key == "" {
			continue
		}
		if _, seen := keys[key]; seen {
			continue
		}
		keys[key] = struct{}{}
		desc.matchKeys = append(desc.matchKeys, key)
		desc.Aliases = append(desc.Aliases, alias)
	}
	return desc, nil
}

// Resolve finds the descriptor for a category identifier or alias.
func (r *Registry) Resolve(category string) (*VariantDescriptor, error) {
	key := Normalize(category)
	if key == "" {
		return nil, ErrCategoryNotFound
	}
	if desc, ok := r.byKey[key]; ok {
		return desc, nil
	}
	return nil, ErrCategoryNotFound
}

// Categories returns descriptors in registry order.
func (r *Registry) Categories() []*VariantDescriptor {
	return append([]*VariantDescriptor(nil), r.categories...)
}

// SubTypeFields returns every candidate sub-type field in fixed order.
func (r *Registry) SubTypeFields() []string {
	return append([]string(nil), r.subTypeFields...)
}

// IsSubTypeField reports whether name is a candidate sub-type field.
func (r *Registry) IsSubTypeField(name string) bool {
	for _, f := range r.subTypeFields {
		if f == name {
			return true
		}
	}
	return false
}

// SearchFields returns the closed list of variant fields covered by free-text search.
func (r *Registry) SearchFields() []string {
	return append([]string(nil), r.searchFields...)
}

// Field returns the spec for a declared field.
func (r *Registry) Field(name string) (FieldSpec, bool) {
	spec, ok := r.fields[name]
	return spec, ok
}

// DateAliases maps alias keys to the canonical date field for a family.
func (r *Registry) DateAliases(family Family) map[string]string {
	src := r.dateAliases[family]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// TextFields returns the search fields that belong to the descriptor, in
// registry search order.
func (r *Registry) TextFields(desc *VariantDescriptor) []string {
	if desc == nil {
		return nil
	}
	out := make([]string, 0, len(r.searchFields))
	for _, name := range r.searchFields {
		if desc.HasField(name) {
			out = append(out, name)
		}
	}
	return out
}

var separatorRun = regexp.MustCompile(`[\s_\-]+`)

// Normalize folds a category string to its lookup key: lower-case, trimmed,
// with runs of spaces, underscores and hyphens collapsed to one hyphen.
func Normalize(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	key = separatorRun.ReplaceAllString(key, "-")
	return strings.Trim(key, "-")
}
