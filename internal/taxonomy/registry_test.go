package taxonomy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Emergency services":    "emergency-services",
		"  emergency-services ": "emergency-services",
		"Tourist_Spots":         "tourist-spots",
		"interactive -- map":    "interactive-map",
		"TRANSPORT":             "transport",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestDefaultRegistryResolvesHistoricalSpellings(t *testing.T) {
	reg := Default()

	for _, spelling := range []string{"Emergency services", "Emergency", "emergency-services", "EMERGENCY_SERVICES"} {
		desc, err := reg.Resolve(spelling)
		require.NoError(t, err, spelling)
		assert.Equal(t, "emergency-services", desc.ID)
		assert.Equal(t, "serviceType", desc.SubTypeField)
	}

	desc, err := reg.Resolve("education")
	require.NoError(t, err)
	assert.Equal(t, "institution", desc.ID)

	desc, err = reg.Resolve("TouristSpot")
	require.NoError(t, err)
	assert.Equal(t, "tourist-spots", desc.ID)
	assert.False(t, desc.HasEnum())

	_, err = reg.Resolve("spaceships")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
	_, err = reg.Resolve("   ")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestDescriptorFields(t *testing.T) {
	reg := Default()

	transport, err := reg.Resolve("transport")
	require.NoError(t, err)
	want := []string{"locationLink", "coordinates", "address", "contactPhone", "destinations", "transportType"}
	if diff := cmp.Diff(want, transport.Fields); diff != "" {
		t.Fatalf("transport fields mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Bus", "Train", "Auto-Stand"}, transport.SubTypes)
	assert.Equal(t, []string{"address", "transportType", "destinations"}, reg.TextFields(transport))

	occupation, err := reg.Resolve("occupations")
	require.NoError(t, err)
	assert.Equal(t, FamilyOccupation, occupation.Family)
	assert.True(t, occupation.HasField("occupationStatus"))
	assert.False(t, occupation.HasField("address"))
	spec, ok := reg.Field("occupationStatus")
	require.True(t, ok)
	assert.Equal(t, []string{"Thriving", "Declining", "Extinct"}, spec.Values)
}

func TestSubTypeFieldOrderIsFixed(t *testing.T) {
	reg := Default()
	assert.Equal(t, []string{
		"subType", "personType", "heritageType", "narrativeType",
		"serviceType", "transportType", "orgType", "mapType",
	}, reg.SubTypeFields())

	fields := reg.SubTypeFields()
	fields[0] = "mutated"
	assert.Equal(t, "subType", reg.SubTypeFields()[0])
}

func TestSearchFieldsClosedList(t *testing.T) {
	fields := Default().SearchFields()
	assert.Len(t, fields, 22)
	assert.Contains(t, fields, "involvedParties")
	assert.Contains(t, fields, "occupationStatus")
	assert.NotContains(t, fields, "locationLink")
	assert.NotContains(t, fields, "coordinates")
}

func TestCanonicalSubType(t *testing.T) {
	reg := Default()
	transport, _ := reg.Resolve("transport")
	v, ok := transport.CanonicalSubType("bus")
	assert.True(t, ok)
	assert.Equal(t, "Bus", v)
	_, ok = transport.CanonicalSubType("Ferry")
	assert.False(t, ok)

	people, _ := reg.Resolve("notable-people")
	v, ok = people.CanonicalSubType(" Artist ")
	assert.True(t, ok)
	assert.Equal(t, "Artist", v)

	spots, _ := reg.Resolve("tourist-spots")
	_, ok = spots.CanonicalSubType("Park")
	assert.False(t, ok)
}

func TestDateAliases(t *testing.T) {
	aliases := Default().DateAliases(FamilyNarrative)
	assert.Equal(t, "eventDate", aliases["dateOfIncident"])
	aliases["dateOfIncident"] = "changed"
	assert.Equal(t, "eventDate", Default().DateAliases(FamilyNarrative)["dateOfIncident"])
}

func TestLoadRejectsInconsistentTables(t *testing.T) {
	cases := map[string]string{
		"alias collision": `
subTypeFields: [subType]
fields: [{name: subType, kind: string}]
families: {location: {fields: []}}
categories:
  - {id: a, family: location, aliases: [shared]}
  - {id: b, family: location, aliases: [shared]}
`,
		"unknown sub-type field": `
subTypeFields: [subType]
fields: [{name: subType, kind: string}, {name: kind, kind: string}]
families: {location: {fields: []}}
categories:
  - {id: a, family: location, subTypeField: kind}
`,
		"non canonical id": `
subTypeFields: [subType]
fields: [{name: subType, kind: string}]
families: {location: {fields: []}}
categories:
  - {id: Tourist Spots, family: location}
`,
		"undeclared field": `
subTypeFields: [subType]
fields: [{name: subType, kind: string}]
families: {location: {fields: [address]}}
categories:
  - {id: a, family: location}
`,
		"non textual search field": `
subTypeFields: [subType]
fields: [{name: subType, kind: string}, {name: is24Hours, kind: bool}]
searchFields: [is24Hours]
families: {location: {fields: []}}
categories:
  - {id: a, family: location}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(doc))
			assert.Error(t, err)
		})
	}
}
