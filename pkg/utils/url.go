package utils

import (
	"regexp"
	"strings"
)

var (
	wwwPrefix    = regexp.MustCompile(`^(https?://)www\.`)
	schemePrefix = regexp.MustCompile(`^https?://`)
	pathSuffix   = regexp.MustCompile(`/.*$`)
)

// NormalizeURL lowercases, adds protocol if missing, removes www. and the
// trailing slash. Providers format the same website differently; this
// gives one canonical form for storage and comparison.
func NormalizeURL(u string) string {
	n := strings.ToLower(strings.TrimSpace(u))
	if n == "" {
		return ""
	}
	if !strings.HasPrefix(n, "http://") && !strings.HasPrefix(n, "https://") {
		n = "https://" + n
	}
	n = wwwPrefix.ReplaceAllString(n, "$1")
	return strings.TrimSuffix(n, "/")
}

// ExtractDomain returns just the host portion of a URL-like string.
func ExtractDomain(u string) string {
	d := schemePrefix.ReplaceAllString(NormalizeURL(u), "")
	return pathSuffix.ReplaceAllString(d, "")
}

// SameWebsite reports whether two URLs point at the same host.
func SameWebsite(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return ExtractDomain(a) == ExtractDomain(b)
}
