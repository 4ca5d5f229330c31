package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

func testCities() []catalog.City {
	return []catalog.City{
		{ID: 1, Name: "Marrakech", NameVariants: []string{"Marrakesh", "Murakush"}},
		{ID: 2, Name: "Essaouira", NameVariants: []string{"Mogador"}},
		{ID: 3, Name: "Fès", NameVariants: []string{"Fez"}},
		{ID: 4, Name: "Rabat"},
	}
}

func TestCityMatcherExact(t *testing.T) {
	m := NewCityMatcher(testCities())

	tests := []struct {
		raw    string
		wantID int64
	}{
		{"Marrakech", 1},
		{"marrakesh", 1},
		{"MOGADOR", 2},
		{"Fès", 3},
		{"fes", 3},
		{"  Rabat  ", 4},
	}
	for _, tt := range tests {
		got := m.Match(tt.raw)
		require.NotNil(t, got, "raw=%q", tt.raw)
		assert.Equal(t, tt.wantID, got.ID, "raw=%q", tt.raw)
	}
}

func TestCityMatcherFuzzy(t *testing.T) {
	m := NewCityMatcher(testCities())

	got := m.Match("Marakech")
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)

	got = m.Match("Essouira")
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)
}

func TestCityMatcherMiss(t *testing.T) {
	m := NewCityMatcher(testCities())

	assert.Nil(t, m.Match("Casablanca"))
	assert.Nil(t, m.Match(""))
	assert.Nil(t, m.Match("Festival 2025"))
}

func TestCityMatcherDuplicateVariantLowerIDWins(t *testing.T) {
	cities := []catalog.City{
		{ID: 7, Name: "Salé", NameVariants: []string{"Sala"}},
		{ID: 3, Name: "Sala Al Jadida", NameVariants: []string{"Sala"}},
	}
	m := NewCityMatcher(cities)

	got := m.Match("Sala")
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.ID)
}
