// Package validator decides whether a fetched document is a genuine listing
// page or an error, search or login page served with status 200.
package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

var errorPhrases = []string{
	"요청하신 페이지를 찾을 수 없거나",
	"시스템에 다른 문제가 발생했습니다",
	"이전페이지에서 다시 시도해 보시기 바랍니다",
	"이용에 불편을 드려 죄송합니다",
	"error 404",
	"페이지를 찾을 수 없습니다",
	"통합검색 결과는 0",
	"검색 결과는 0",
	"결과는 0건",
	"검색결과가 없습니다",
}

var (
	strictFieldLabels = []string{"사건번호", "용도", "소재지", "감정가", "최저입찰가"}
	strictPriceShapes = []*regexp.Regexp{
		regexp.MustCompile(`\d+억\s*\d*만원`),
		regexp.MustCompile(`\d+,\d+,\d+원`),
		regexp.MustCompile(`\d+만원`),
	}
	relaxedAuctionKeywords = []string{"감정가", "최저입찰가", "매각", "입찰마감", "공고번호"}
	relaxedPriceKeywords   = []string{"만원", "억원", "원", "₩"}
	detailLabels           = []string{"감정가", "최저입찰가", "차수"}
)

const (
	strictMinFields    = 3
	strictMinChars     = 10_000
	relaxedMinKeywords = 2
	detailMinLabels    = 2
	loginWord          = "로그인"
	saleWord           = "매각"
	bidWord            = "입찰"
)

// Reject reasons reported by RejectReason.
const (
	rejectErrorPhrase = "error_phrase"
	rejectFewFields   = "few_fields"
	rejectNoPrice     = "no_price"
	rejectTooShort    = "too_short"
	rejectFewKeywords = "few_keywords"
	rejectLoginPage   = "login_page"
	rejectNone        = ""
)

// Validator applies the genuineness checks for one execution mode.
type Validator struct {
	strict bool
	logger *zap.Logger
}

// New builds a Validator. Strict mode applies the stronger field, price and
// size checks.
func New(strict bool, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{strict: strict, logger: logger.Named("validator")}
}

// IsErrorOrEmptyPage reports whether doc must be rejected.
func (v *Validator) IsErrorOrEmptyPage(doc string) bool {
	reason := v.RejectReason(doc)
	if reason != rejectNone {
		v.logger.Debug("document rejected", zap.String("reason", reason), zap.Bool("strict", v.strict))
		return true
	}
	return false
}

// RejectReason returns a short reason code, or "" when doc is acceptable.
func (v *Validator) RejectReason(doc string) string {
	lower := strings.ToLower(doc)
	for _, phrase := range errorPhrases {
		if strings.Contains(lower, phrase) {
			return rejectErrorPhrase
		}
	}

	if v.strict {
		if countContained(doc, strictFieldLabels) < strictMinFields {
			return rejectFewFields
		}
		if !anyMatch(doc, strictPriceShapes) {
			return rejectNoPrice
		}
		if utf8.RuneCountInString(doc) < strictMinChars {
			return rejectTooShort
		}
	} else if countContained(doc, relaxedAuctionKeywords) < relaxedMinKeywords &&
		countContained(doc, relaxedPriceKeywords) < relaxedMinKeywords {
		return rejectFewKeywords
	}

	if strings.Count(doc, loginWord) > strings.Count(doc, saleWord) && !strings.Contains(doc, bidWord) {
		return rejectLoginPage
	}
	return rejectNone
}

// IsDetailPage reports whether doc carries at least two of the detail labels
// and, when expectedID is set, references that internal id.
func IsDetailPage(doc, expectedID string) bool {
	if doc == "" {
		return false
	}
	if countContained(doc, detailLabels) < detailMinLabels {
		return false
	}
	if expectedID == "" {
		return true
	}
	pattern, err := regexp.Compile(`(?i)cltrNo\s*[=:]?\s*['"]?` + regexp.QuoteMeta(expectedID) + `(?:\D|$)`)
	if err != nil {
		return false
	}
	return pattern.MatchString(doc)
}

func countContained(doc string, needles []string) int {
	n := 0
	for _, needle := range needles {
		if strings.Contains(doc, needle) {
			n++
		}
	}
	return n
}

func anyMatch(doc string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(doc) {
			return true
		}
	}
	return false
}
