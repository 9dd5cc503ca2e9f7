package taxonomy

import "strings"

// VariantDescriptor describes one registered category. Treat as read-only.
type VariantDescriptor struct {
	ID           string   `json:"id" yaml:"id"`
	Label        string   `json:"label" yaml:"label"`
	Family       Family   `json:"family" yaml:"family"`
	Aliases      []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	SubTypeField string   `json:"subTypeField,omitempty" yaml:"subTypeField,omitempty"`
	SubTypes     []string `json:"subTypes,omitempty" yaml:"subTypes,omitempty"`
	Fields       []string `json:"fields" yaml:"fields"`

	fieldSet  map[string]struct{}
	matchKeys []string
}

// HasEnum reports whether the category offers a fixed sub-type menu.
func (d *VariantDescriptor) HasEnum() bool {
	return d != nil && d.SubTypeField != "" && len(d.SubTypes) > 0
}

// HasField reports whether the variant owns the attribute.
func (d *VariantDescriptor) HasField(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.fieldSet[name]
	return ok
}

// MatchKeys returns the normalized identifier followed by normalized aliases.
func (d *VariantDescriptor) MatchKeys() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.matchKeys...)
}

// CanonicalSubType matches value against the enum case-insensitively and
// returns the registered spelling. Categories without an enum accept any
// non-blank value as-is.
func (d *VariantDescriptor) CanonicalSubType(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if d == nil || value == "" || d.SubTypeField == "" {
		return "", false
	}
	if len(d.SubTypes) == 0 {
		return value, true
	}
	for _, allowed := range d.SubTypes {
		if strings.EqualFold(allowed, value) {
			return allowed, true
		}
	}
	return "", false
}
