package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chilahati-archive/archive-api/internal/taxonomy"
)

// Variant is the category-specific payload attached to an ArchiveItem.
// Exactly one variant exists per item and its concrete type follows the
// category's family.
type Variant interface {
	Family() taxonomy.Family
	// SubTypeValue returns the value stored under a sub-type field name, or
	// "" when the variant has no such field.
	SubTypeValue(field string) string
}

// Coordinates is a finite latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationDetails covers institutions, emergency services, transport,
// tourist spots, organizations, social works and map entries.
type LocationDetails struct {
	LocationLink      string       `json:"locationLink,omitempty"`
	Coordinates       *Coordinates `json:"coordinates,omitempty"`
	Address           string       `json:"address,omitempty"`
	ContactPhone      string       `json:"contactPhone,omitempty"`
	SubType           string       `json:"subType,omitempty"`
	ServiceType       string       `json:"serviceType,omitempty"`
	TransportType     string       `json:"transportType,omitempty"`
	OrgType           string       `json:"orgType,omitempty"`
	MapType           string       `json:"mapType,omitempty"`
	EstablishedDate   *time.Time   `json:"establishedDate,omitempty"`
	HeadOfInstitution string       `json:"headOfInstitution,omitempty"`
	EntryFee          string       `json:"entryFee,omitempty"`
	BestTimeToVisit   string       `json:"bestTimeToVisit,omitempty"`
	Is24Hours         *bool        `json:"is24Hours,omitempty"`
	Destinations      []string     `json:"destinations,omitempty"`
	FocusArea         string       `json:"focusArea,omitempty"`
	FoundedBy         string       `json:"foundedBy,omitempty"`
	MissionStatement  string       `json:"missionStatement,omitempty"`
}

// Family implements Variant.
func (LocationDetails) Family() taxonomy.Family { return taxonomy.FamilyLocation }

// SubTypeValue implements Variant.
func (d LocationDetails) SubTypeValue(field string) string {
	switch field {
	case "subType":
		return d.SubType
	case "serviceType":
		return d.ServiceType
	case "transportType":
		return d.TransportType
	case "orgType":
		return d.OrgType
	case "mapType":
		return d.MapType
	}
	return ""
}

// PersonDetails covers notable people, freedom fighters, students and talents.
type PersonDetails struct {
	SubType       string     `json:"subType,omitempty"`
	PersonType    string     `json:"personType,omitempty"`
	DateOfBirth   *time.Time `json:"dateOfBirth,omitempty"`
	DateOfDeath   *time.Time `json:"dateOfDeath,omitempty"`
	Education     string     `json:"education,omitempty"`
	Achievements  []string   `json:"achievements,omitempty"`
	Profession    string     `json:"profession,omitempty"`
	SectorNo      string     `json:"sectorNo,omitempty"`
	PassingYear   string     `json:"passingYear,omitempty"`
	CurrentStatus string     `json:"currentStatus,omitempty"`
}

// Family implements Variant.
func (PersonDetails) Family() taxonomy.Family { return taxonomy.FamilyPerson }

// SubTypeValue implements Variant.
func (d PersonDetails) SubTypeValue(field string) string {
	switch field {
	case "subType":
		return d.SubType
	case "personType":
		return d.PersonType
	}
	return ""
}

// NarrativeDetails covers history, culture, heritage and stories.
type NarrativeDetails struct {
	HeritageType    string     `json:"heritageType,omitempty"`
	NarrativeType   string     `json:"narrativeType,omitempty"`
	Period          string     `json:"period,omitempty"`
	EventDate       *time.Time `json:"eventDate,omitempty"`
	Significance    string     `json:"significance,omitempty"`
	InvolvedParties []string   `json:"involvedParties,omitempty"`
}

// Family implements Variant.
func (NarrativeDetails) Family() taxonomy.Family { return taxonomy.FamilyNarrative }

// SubTypeValue implements Variant.
func (d NarrativeDetails) SubTypeValue(field string) string {
	switch field {
	case "heritageType":
		return d.HeritageType
	case "narrativeType":
		return d.NarrativeType
	}
	return ""
}

// OccupationStatus tracks whether a traditional occupation survives.
type OccupationStatus string

const (
	OccupationThriving  OccupationStatus = "Thriving"
	OccupationDeclining OccupationStatus = "Declining"
	OccupationExtinct   OccupationStatus = "Extinct"
)

// OccupationDetails covers traditional occupations.
type OccupationDetails struct {
	TraditionalName  string           `json:"traditionalName,omitempty"`
	ToolsUsed        []string         `json:"toolsUsed,omitempty"`
	OccupationStatus OccupationStatus `json:"occupationStatus,omitempty"`
}

// Family implements Variant.
func (OccupationDetails) Family() taxonomy.Family { return taxonomy.FamilyOccupation }

// SubTypeValue implements Variant.
func (OccupationDetails) SubTypeValue(string) string { return "" }

// UnclassifiedDetails keeps the raw attributes of items whose category is
// not in the registry, so they still list and discover sub-types.
type UnclassifiedDetails map[string]interface{}

// Family implements Variant.
func (UnclassifiedDetails) Family() taxonomy.Family { return "" }

// SubTypeValue implements Variant.
func (d UnclassifiedDetails) SubTypeValue(field string) string {
	if v, ok := d[field].(string); ok {
		return v
	}
	return ""
}

// NewVariant returns an empty payload for the family.
func NewVariant(family taxonomy.Family) Variant {
	switch family {
	case taxonomy.FamilyLocation:
		return &LocationDetails{}
	case taxonomy.FamilyPerson:
		return &PersonDetails{}
	case taxonomy.FamilyNarrative:
		return &NarrativeDetails{}
	case taxonomy.FamilyOccupation:
		return &OccupationDetails{}
	default:
		return UnclassifiedDetails{}
	}
}

// DecodeVariant decodes stored attributes into the family's payload type.
func DecodeVariant(family taxonomy.Family, raw []byte) (Variant, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return NewVariant(family), nil
	}
	var err error
	switch family {
	case taxonomy.FamilyLocation:
		var d LocationDetails
		if err = json.Unmarshal(raw, &d); err == nil {
			return &d, nil
		}
	case taxonomy.FamilyPerson:
		var d PersonDetails
		if err = json.Unmarshal(raw, &d); err == nil {
			return &d, nil
		}
	case taxonomy.FamilyNarrative:
		var d NarrativeDetails
		if err = json.Unmarshal(raw, &d); err == nil {
			return &d, nil
		}
	case taxonomy.FamilyOccupation:
		var d OccupationDetails
		if err = json.Unmarshal(raw, &d); err == nil {
			return &d, nil
		}
	default:
		d := UnclassifiedDetails{}
		if err = json.Unmarshal(raw, &d); err == nil {
			return d, nil
		}
	}
	return nil, fmt.Errorf("decode %s variant: %w", family, err)
}
