package utils

import "testing"

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "Playa de la Fossa", "Playa de la Fossa", 1, 1},
		{"case and punctuation", "Peñón de Ifach!", "peñón de ifach", 1, 1},
		{"reordered words", "Restaurant La Pepica", "La Pepica Restaurant", 1, 1},
		{"partial overlap", "Museo de Arte", "Museo del Prado", 0.33, 0.34},
		{"disjoint", "Ecomare", "Playa Arenal", 0, 0.29},
		{"empty", "", "Anything", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NameSimilarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("NameSimilarity(%q, %q) = %.3f, want [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestNameSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{{"Bar Central", "Central Bar Calpe"}, {"De Koog Strand", "Strand Paal 20"}}
	for _, p := range pairs {
		if NameSimilarity(p[0], p[1]) != NameSimilarity(p[1], p[0]) {
			t.Errorf("similarity not symmetric for %q / %q", p[0], p[1])
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Restaurant La Pepica": "restaurant-la-pepica",
		"  Peñón de Ifach  ":   "penon-de-ifach",
		"Café 't Pakhuus!":     "cafe-t-pakhuus",
		"Museum -- Kaap Skil":  "museum-kaap-skil",
		"":                     "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := map[string]string{
		"www.Ecomare.nl/":           "https://ecomare.nl",
		"http://www.example.com/a/": "http://example.com/a",
		"":                          "",
	}
	for in, want := range tests {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
	if !SameWebsite("https://www.lapepica.com/menu", "lapepica.com") {
		t.Error("expected same website")
	}
}
