// Package fingerprint produces the content-addressed dedup keys the resolver
// looks up. Each fingerprint is a SHA-256 over normalized components joined
// by a separator byte that cannot appear in any component, hex-encoded to a
// uniform 64-character key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/mawsim/catalog/internal/domain/catalog"
	"github.com/mawsim/catalog/internal/normalize"
)

// separator is ASCII unit separator. Components are normalized text, ISO
// dates, and decimal ids, none of which can contain it.
const separator = byte(0x1f)

// fuzzyTokenCount is how many leading name tokens the fuzzy_name key keeps.
const fuzzyTokenCount = 3

// Input carries the normalized fields a fingerprint derives from.
type Input struct {
	NormalizedName string
	StartDate      time.Time
	CityID         *int64
}

// Generate emits every fingerprint derivable from the input. Missing
// components suppress the kinds that require them: all four kinds need a
// city, the name kinds need a name.
func Generate(input Input) []catalog.Fingerprint {
	if input.CityID == nil || input.StartDate.IsZero() {
		return nil
	}

	date := input.StartDate.UTC().Format("2006-01-02")
	week := normalize.ISOWeekStart(input.StartDate).Format("2006-01-02")
	city := strconv.FormatInt(*input.CityID, 10)

	fingerprints := make([]catalog.Fingerprint, 0, 4)
	if input.NormalizedName != "" {
		fingerprints = append(fingerprints,
			catalog.Fingerprint{Kind: catalog.FingerprintExact, Hash: digest(input.NormalizedName, date, city)},
			catalog.Fingerprint{Kind: catalog.FingerprintFuzzyName, Hash: digest(normalize.FirstTokens(input.NormalizedName, fuzzyTokenCount), date, city)},
		)
	}
	fingerprints = append(fingerprints,
		catalog.Fingerprint{Kind: catalog.FingerprintDateLocation, Hash: digest(date, city)},
		catalog.Fingerprint{Kind: catalog.FingerprintWeekLocation, Hash: digest(week, city)},
	)
	return fingerprints
}

// ForEvent derives the fingerprint set an event owns from its current
// canonical attributes.
func ForEvent(event *catalog.Event) []catalog.Fingerprint {
	cityID := event.CityID
	fingerprints := Generate(Input{
		NormalizedName: normalize.Text(event.Name),
		StartDate:      event.StartDate,
		CityID:         &cityID,
	})
	for i := range fingerprints {
		fingerprints[i].EventID = event.ID
	}
	return fingerprints
}

func digest(components ...string) string {
	h := sha256.New()
	for i, component := range components {
		if i > 0 {
			h.Write([]byte{separator})
		}
		h.Write([]byte(component))
	}
	return hex.EncodeToString(h.Sum(nil))
}
