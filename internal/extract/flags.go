package extract

import (
	"regexp"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
)

var (
	shareOnlyPattern    = regexp.MustCompile(`(?i)(공유지분|지분\s*매각|공유\s*매각)`)
	noLandRightPattern  = regexp.MustCompile(`(?i)대지권\s*[:：]?\s*(미등기|없음)`)
	buildingOnlyPattern = regexp.MustCompile(`(?i)(건물만\s*매각|토지\s*제외)`)
	vatPattern          = regexp.MustCompile(`(?i)(부가가치세|VAT)\s*(별도|과세)`)
	specialTermsPattern = regexp.MustCompile(`(?i)(특약|유의사항|매수인\s*책임|인수\s*사항)`)
)

// DetectFlags evaluates each risk flag independently over text.
func DetectFlags(text string) auction.FlagSet {
	return auction.FlagSet{
		ShareOnly:     shareOnlyPattern.MatchString(text),
		NoLandRight:   noLandRightPattern.MatchString(text),
		BuildingOnly:  buildingOnlyPattern.MatchString(text),
		VATApplicable: vatPattern.MatchString(text),
		SpecialTerms:  specialTermsPattern.MatchString(text),
	}
}
