package normalize

import (
	"github.com/agnivade/levenshtein"

	"github.com/mawsim/catalog/internal/domain/catalog"
)

// LevenshteinCeiling is the maximum edit distance for a fuzzy city match.
// Anything farther is treated as unknown; the matcher never guesses.
const LevenshteinCeiling = 2

// CityMatcher resolves raw city strings against the canonical city table
// using diacritic-insensitive normalized names plus every recorded variant.
type CityMatcher struct {
	cities  []catalog.City
	byExact map[string]int // normalized variant -> index into cities
}

// NewCityMatcher builds a matcher over the canonical table. When two cities
// share a normalized variant the lower id wins, keeping matches
// deterministic.
func NewCityMatcher(cities []catalog.City) *CityMatcher {
	m := &CityMatcher{
		cities:  cities,
		byExact: make(map[string]int, len(cities)*2),
	}
	for i, city := range cities {
		m.addVariant(Text(city.Name), i)
		for _, variant := range city.NameVariants {
			m.addVariant(Text(variant), i)
		}
	}
	return m
}

func (m *CityMatcher) addVariant(normalized string, idx int) {
	if normalized == "" {
		return
	}
	if existing, ok := m.byExact[normalized]; ok {
		if m.cities[existing].ID <= m.cities[idx].ID {
			return
		}
	}
	m.byExact[normalized] = idx
}

// Match returns the canonical city for a raw name, or nil when nothing is
// within the Levenshtein ceiling. Exact normalized matches win; otherwise the
// nearest city by edit distance, ties broken by lower city id.
func (m *CityMatcher) Match(raw string) *catalog.City {
	normalized := Text(raw)
	if normalized == "" {
		return nil
	}

	if idx, ok := m.byExact[normalized]; ok {
		city := m.cities[idx]
		return &city
	}

	bestIdx := -1
	bestDistance := LevenshteinCeiling + 1
	for variant, idx := range m.byExact {
		distance := levenshtein.ComputeDistance(normalized, variant)
		if distance > LevenshteinCeiling {
			continue
		}
		if distance < bestDistance ||
			(distance == bestDistance && bestIdx >= 0 && m.cities[idx].ID < m.cities[bestIdx].ID) {
			bestDistance = distance
			bestIdx = idx
		}
	}
	if bestIdx < 0 {
		return nil
	}
	city := m.cities[bestIdx]
	return &city
}
