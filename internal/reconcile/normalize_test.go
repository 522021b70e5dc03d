package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/jvbeek/pricewatch/internal/core/domain"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		name     string
		provider string
		input    string
		want     string
	}{
		{"provider prefix stripped", domain.ProviderAlbertHeijn, "AH Halfvolle Melk 1.5l", "halfvolle melk"},
		{"full provider name stripped", domain.ProviderAlbertHeijn, "Albert Heijn Volkoren Brood", "volkoren brood"},
		{"noise words removed", domain.ProviderJumbo, "Jumbo Pizza Margherita Airfryer", "pizza margherita"},
		{"whitespace collapsed", domain.ProviderDirk, "Dirk  Verse   Jus", "verse jus"},
		{"units removed", domain.ProviderEtos, "Shampoo 300 ml", "shampoo"},
		{"multipack removed", domain.ProviderJumbo, "Jumbo Cola 6 x 250 ml", "cola"},
		{"punctuation dropped", domain.ProviderKruidvat, "Vitamine C (forte)!", "vitamine c forte"},
		{"ampersand kept", domain.ProviderJumbo, "Jumbo Zoet & Zout Mix", "zoet & zout mix"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeName(tc.provider, tc.input); got != tc.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeBrand(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"ah", "AH"},
		{"ah biologisch", "AH Biologisch"},
		{"dr oetker", "Dr. Oetker"},
		{"dr. oetker", "Dr. Oetker"},
		{"coca cola", "Coca-Cola"},
		{"COCA-COLA", "Coca-Cola"},
		{"unilever", "Unilever"},
		{"heinz tomato", "Heinz Tomato"},
		{"  ", ""},
	}

	for _, tc := range cases {
		if got := NormalizeBrand(tc.input); got != tc.want {
			t.Errorf("NormalizeBrand(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestExtractUnits(t *testing.T) {
	cases := []struct {
		input    string
		wantType string
		wantSize float64
	}{
		{"Halfvolle Melk 1.5 l", "l", 1.5},
		{"Melk 1.5l", "l", 1.5},
		{"Chips 200 g", "g", 200},
		{"Rijst 1 kilogram", "kg", 1},
		{"Cola 6 x 250 ml", "ml", 1500},
		{"Eieren 10 stuks", "stuks", 10},
		{"Bier 4-pack", "stuks", 4},
		{"Verse jus", "", 0},
	}

	for _, tc := range cases {
		gotType, gotSize := ExtractUnits(tc.input)
		if gotType != tc.wantType || gotSize != tc.wantSize {
			t.Errorf("ExtractUnits(%q) = (%q, %v), want (%q, %v)",
				tc.input, gotType, gotSize, tc.wantType, tc.wantSize)
		}
	}
}

func TestNormalize(t *testing.T) {
	rec := &domain.RawRecord{
		Provider:   domain.ProviderAlbertHeijn,
		LocalID:    "wi12345",
		Name:       "AH Halfvolle Melk 1.5l",
		Brand:      "ah",
		Price:      1.39,
		Barcode:    "8710400011234",
		CapturedAt: time.Now(),
	}

	e, err := Normalize(rec)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if e.CanonicalName != "halfvolle melk" {
		t.Errorf("CanonicalName = %q", e.CanonicalName)
	}
	if e.Brand != "AH" {
		t.Errorf("Brand = %q", e.Brand)
	}
	if e.UnitType != "l" || e.UnitSize != 1.5 {
		t.Errorf("units = (%q, %v)", e.UnitType, e.UnitSize)
	}
	if e.Key() != "ean:8710400011234" {
		t.Errorf("Key = %q", e.Key())
	}
}

func TestNormalize_Rejects(t *testing.T) {
	cases := []struct {
		name string
		rec  *domain.RawRecord
	}{
		{"empty name", &domain.RawRecord{Provider: domain.ProviderJumbo, Name: "  ", Price: 1.0}},
		{"name reduces to nothing", &domain.RawRecord{Provider: domain.ProviderJumbo, Name: "Jumbo 500 g", Price: 1.0}},
		{"zero price", &domain.RawRecord{Provider: domain.ProviderJumbo, Name: "Brood", Price: 0}},
		{"negative price", &domain.RawRecord{Provider: domain.ProviderJumbo, Name: "Brood", Price: -0.5}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.rec)
			if err == nil {
				t.Fatal("expected error")
			}
			var f *domain.Failure
			if !errors.As(err, &f) || f.Kind != domain.FailureRecordParse {
				t.Errorf("error = %v, want record parse failure", err)
			}
		})
	}
}
