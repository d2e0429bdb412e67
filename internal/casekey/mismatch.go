package casekey

import (
	"strings"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
)

// stripKey strips key prefixes and surrounding whitespace.
func stripKey(s string) string {
	s = strings.ReplaceAll(s, "case:", "")
	s = strings.ReplaceAll(s, onbidPrefix, "")
	return strings.TrimSpace(s)
}

// DetectMismatch reports whether the requested identifier disagrees with the
// identifiers extracted from the fetched document. Empty extracted values
// mean "not found".
func DetectMismatch(requested, caseNo, internalID string, key auction.CaseKey) bool {
	want := stripKey(requested)

	if caseNo != "" && internalID != "" {
		return want != stripKey(caseNo) && want != stripKey(internalID)
	}

	if want == stripKey(key.String()) {
		return false
	}
	if caseNo != "" && want == stripKey(caseNo) {
		return false
	}
	if internalID != "" && want == stripKey(internalID) {
		return false
	}
	return true
}
