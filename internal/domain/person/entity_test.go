package person

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/people-hub/peoplehub/internal/domain/shared"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		person Person
		want   string
	}{
		{"all parts", Person{LastName: "Ivanov", FirstName: "Ivan", MiddleName: "Ivanovich"}, "Ivanov Ivan Ivanovich"},
		{"no middle", Person{LastName: "Smith", FirstName: "John"}, "Smith John"},
		{"blank middle", Person{LastName: "Smith", FirstName: "John", MiddleName: "  "}, "Smith John"},
		{"only first", Person{FirstName: "Anna"}, "Anna"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.person.DisplayName())
		})
	}
}

func TestNew_ValidatesNames(t *testing.T) {
	_, err := New("", "Ivan", "", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New("Ivanov", " ", "", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(strings.Repeat("x", MaxNameLength+1), "Ivan", "", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)

	p, err := New(" Ivanov ", "Ivan", "", []string{"a@EXAMPLE.com", "a@example.com", " b@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Ivanov", p.LastName)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, p.Emails)
}

func TestApplyEnrichment_OverwritesOnlyThreeFields(t *testing.T) {
	p := &Person{
		ID:        7,
		LastName:  "Smith",
		FirstName: "John",
		Emails:    []string{"john@example.com"},
		Friends:   []ID{3},
		Gender:    GenderFemale,
		Age:       AgeOf(80),
	}

	p.ApplyEnrichment(Enrichment{Gender: GenderMale, Nationality: "US"})

	assert.Equal(t, GenderMale, p.Gender)
	assert.Nil(t, p.Age)
	assert.Equal(t, CountryCode("US"), p.Nationality)
	assert.Equal(t, "Smith", p.LastName)
	assert.Equal(t, []string{"john@example.com"}, p.Emails)
	assert.Equal(t, []ID{3}, p.Friends)
}

func TestParseGender(t *testing.T) {
	g, ok := ParseGender("Male")
	assert.True(t, ok)
	assert.Equal(t, GenderMale, g)

	g, ok = ParseGender("other")
	assert.False(t, ok)
	assert.Equal(t, GenderUnknown, g)
}

func TestEnrichmentEqual(t *testing.T) {
	a := Enrichment{Gender: GenderMale, Age: AgeOf(30), Nationality: "FR"}
	b := Enrichment{Gender: GenderMale, Age: AgeOf(30), Nationality: "FR"}
	assert.True(t, a.Equal(b))

	b.Age = nil
	assert.False(t, a.Equal(b))
	assert.True(t, Enrichment{}.Equal(Enrichment{}))
}

func TestListOptionsNormalize(t *testing.T) {
	assert.Equal(t, ListOptions{Limit: 50}, ListOptions{}.Normalize())
	assert.Equal(t, ListOptions{Limit: 10, Offset: 0}, ListOptions{Limit: 10, Offset: -1}.Normalize())
}
