package resolver

import "regexp"

const (
	minDiscoveredIDLen = 6
	maxDiscoveredIDLen = 7
)

// idPatterns locate an internal id in a search result page, in the order
// they are tried.
var idPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)cltrNo\s*[=:]?\s*['"]?(\d+)`),
	regexp.MustCompile(`(?i)href=["'][^"']*?cltrNo[=:]?(\d+)`),
	regexp.MustCompile(`(?i)onclick[^>]*?cltrNo\D{0,3}(\d+)`),
	regexp.MustCompile(`(?i)data-cltrno\s*=?\s*['"]?(\d+)`),
}

// DiscoverID returns the first six or seven digit internal id referenced by a
// search result page.
func DiscoverID(doc string) string {
	for _, pattern := range idPatterns {
		for _, m := range pattern.FindAllStringSubmatch(doc, -1) {
			if n := len(m[1]); n >= minDiscoveredIDLen && n <= maxDiscoveredIDLen {
				return m[1]
			}
		}
	}
	return ""
}
