package utils

import (
	"strings"
	"unicode"
)

// NormalizeName lowercases s and strips everything that is not a letter,
// digit or whitespace. Runs of whitespace collapse to a single space.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NameSimilarity returns the word overlap of two names in [0,1]:
// |common words| / max(|words a|, |words b|). Identical normalized names
// score 1.0; a name with no words scores 0.
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	wa := wordSet(na)
	wb := wordSet(nb)
	common := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			common++
		}
	}
	denom := len(wa)
	if len(wb) > denom {
		denom = len(wb)
	}
	return float64(common) / float64(denom)
}

func wordSet(s string) map[string]struct{} {
	words := strings.Fields(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

var foldReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ä", "a", "ã", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "ö", "o", "õ", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ñ", "n", "ç", "c", "ß", "ss", "ĳ", "ij",
)

// Slugify turns a POI name into a lowercase, hyphen separated ASCII slug.
func Slugify(name string) string {
	s := foldReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
	var b strings.Builder
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
