// Package reconcile turns raw provider records into canonical catalog
// writes: normalization, duplicate detection, history validation, and
// translation into an idempotent WriteSet.
package reconcile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

// brandMappings standardizes common brand spellings. Brands not listed
// are title-cased word by word.
var brandMappings = map[string]string{
	"ah":            "AH",
	"ah biologisch": "AH Biologisch",
	"ah basic":      "AH Basic",
	"ah excellent":  "AH Excellent",
	"jumbo":         "Jumbo",
	"dr. oetker":    "Dr. Oetker",
	"dr oetker":     "Dr. Oetker",
	"coca cola":     "Coca-Cola",
	"coca-cola":     "Coca-Cola",
}

// noiseWords are dropped from canonical names. They describe preparation
// or marketing, not identity.
var noiseWords = map[string]bool{
	"airfryer":    true,
	"oven":        true,
	"microwave":   true,
	"bio":         true,
	"biologisch":  true,
	"naturel":     true,
	"original":    true,
	"classic":     true,
	"traditional": true,
}

// providerPrefixes maps a provider to name prefixes it stamps on its own
// products. Stripping them keeps cross-provider keys aligned.
var providerPrefixes = map[string][]string{
	domain.ProviderAlbertHeijn: {"ah ", "albert heijn "},
	domain.ProviderJumbo:       {"jumbo "},
	domain.ProviderDirk:        {"dirk "},
	domain.ProviderEtos:        {"etos "},
	domain.ProviderHoogvliet:   {"hoogvliet "},
	domain.ProviderKruidvat:    {"kruidvat "},
}

var (
	multipackPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*x\s*(\d+(?:\.\d+)?)\s*(ml|l|g|kg)\b`)
	packPattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)-?pack\b`)
	unitPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ml|l|liter|milliliter)\b`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(g|kg|gram|kilogram)\b`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(stuks?|st)\b`),
	}
	punctuation = regexp.MustCompile(`[^\w\s&-]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// unitStandardization folds unit spellings onto ml/l/g/kg/stuks.
var unitStandardization = map[string]string{
	"ml": "ml", "milliliter": "ml", "liter": "l", "l": "l",
	"g": "g", "gram": "g", "kg": "kg", "kilogram": "kg",
	"stuks": "stuks", "stuk": "stuks", "st": "stuks",
}

// NormalizeBrand standardizes a brand name.
func NormalizeBrand(brand string) string {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return ""
	}
	if mapped, ok := brandMappings[strings.ToLower(brand)]; ok {
		return mapped
	}
	words := strings.Fields(brand)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// ExtractUnits pulls unit type and size out of a product name. Multipacks
// like "6 x 250 ml" yield the total volume.
func ExtractUnits(name string) (string, float64) {
	lower := strings.ToLower(name)

	if m := multipackPattern.FindStringSubmatch(lower); m != nil {
		count, err1 := strconv.ParseFloat(m[1], 64)
		each, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return unitStandardization[m[3]], count * each
		}
	}

	for _, p := range unitPatterns {
		m := p.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		size, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if unit, ok := unitStandardization[m[2]]; ok {
			return unit, size
		}
		return m[2], size
	}

	if m := packPattern.FindStringSubmatch(lower); m != nil {
		if size, err := strconv.ParseFloat(m[1], 64); err == nil {
			return "stuks", size
		}
	}

	return "", 0
}

// NormalizeName produces the canonical product name: lower-cased,
// whitespace-collapsed, with the provider prefix, embedded units, noise
// words, and stray punctuation removed.
func NormalizeName(provider, name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = whitespace.ReplaceAllString(normalized, " ")

	for _, prefix := range providerPrefixes[provider] {
		if strings.HasPrefix(normalized, prefix) {
			normalized = normalized[len(prefix):]
			break
		}
	}

	normalized = multipackPattern.ReplaceAllString(normalized, "")
	for _, p := range unitPatterns {
		normalized = p.ReplaceAllString(normalized, "")
	}
	normalized = packPattern.ReplaceAllString(normalized, "")

	words := strings.Fields(normalized)
	kept := words[:0]
	for _, w := range words {
		if !noiseWords[w] {
			kept = append(kept, w)
		}
	}
	normalized = strings.Join(kept, " ")

	normalized = punctuation.ReplaceAllString(normalized, "")
	normalized = whitespace.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// Normalize derives the canonical identity for one raw record. Records
// without a usable name or with a non-positive price are rejected as
// parse failures; the run skips them and moves on.
func Normalize(rec *domain.RawRecord) (*domain.NormalizedEntity, error) {
	name := NormalizeName(rec.Provider, rec.Name)
	if name == "" {
		return nil, domain.NewFailure(domain.FailureRecordParse, "record has no usable name", nil)
	}
	if rec.Price <= 0 {
		return nil, domain.NewFailure(domain.FailureRecordParse, "record has non-positive price", nil)
	}

	unitType, unitSize := ExtractUnits(rec.Name)

	return &domain.NormalizedEntity{
		CanonicalName: name,
		Brand:         NormalizeBrand(rec.Brand),
		Tokens:        strings.Fields(name),
		Barcode:       strings.TrimSpace(rec.Barcode),
		UnitType:      unitType,
		UnitSize:      unitSize,
		Provider:      rec.Provider,
		LocalID:       rec.LocalID,
	}, nil
}
