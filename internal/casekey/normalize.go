// Package casekey turns raw user identifiers into canonical case keys and
// compares them against identifiers found in fetched documents.
package casekey

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
)

var (
	urlScheme      = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)
	queryIDPattern = regexp.MustCompile(`(?i)cltrNo=(\d+)`)
	pathIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/op/cta/cltrdtl/collateralRealEstateDetail\.do\?cltrNo=(\d+)`),
		regexp.MustCompile(`/auction/case/(\d+)`),
	}
)

const onbidPrefix = "onbid:"

// Normalized is the outcome of Normalize.
type Normalized struct {
	// Requested echoes the input.
	Requested string
	Key       auction.CaseKey
	// CaseNo is set only for case-number input.
	CaseNo *string
	Kind   auction.SourceKind
}

// Normalize classifies raw and builds its case key. Malformed input is always
// reported as invalid with no key.
func Normalize(raw string) Normalized {
	out := Normalized{Requested: raw, Kind: auction.SourceInvalid}
	input := strings.TrimSpace(raw)
	if input == "" {
		return out
	}

	if urlScheme.MatchString(input) {
		if id, ok := internalIDFromURL(input); ok {
			if key, valid := auction.InternalIDKey(id); valid {
				out.Key = key
				out.Kind = auction.SourceURL
			}
		}
		return out
	}

	if rest, ok := strings.CutPrefix(input, onbidPrefix); ok {
		if key, valid := auction.InternalIDKey(rest); valid {
			out.Key = key
			out.Kind = auction.SourceURL
		}
		return out
	}

	if key, ok := auction.CaseNumberKey(input); ok {
		out.Key = key
		out.CaseNo = auction.Ptr(input)
		out.Kind = auction.SourceCase
	}
	return out
}

func internalIDFromURL(u string) (string, bool) {
	if m := queryIDPattern.FindStringSubmatch(u); m != nil {
		return m[1], true
	}
	for _, pattern := range pathIDPatterns {
		if m := pattern.FindStringSubmatch(u); m != nil {
			return m[1], true
		}
	}
	return "", false
}
