package extract

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/textparse"
)

const snippetChars = 300

var (
	caseNumberLabels = []string{"사건번호", "사건 번호", "사건No"}
	caseNumberInText = regexp.MustCompile(`\d{4}-\d{5}-\d{3}`)
	internalIDInText = regexp.MustCompile(`(?i)cltrNo\s*[=:]?\s*['"]?(\d+)`)
	// assetKeywords back up the asset type label, in priority order.
	assetKeywords = []string{"압류재산", "국유재산", "수탁재산", "신탁공매"}
)

// Extraction is everything read from one document.
type Extraction struct {
	Record auction.Record
	Flags  auction.FlagSet
	// CaseNo and InternalID are the identifiers the document itself carries;
	// empty when not found.
	CaseNo     string
	InternalID string
	// Text is the full visible text the flags were evaluated on.
	Text string
}

// Extractor applies the label table to documents.
type Extractor struct {
	rules  []rule
	logger *zap.Logger
}

// New builds an Extractor over the built-in label table.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{rules: fieldRules, logger: logger.Named("extract")}
}

// Extract parses src and reads every field it can. Missing fields stay nil.
func (e *Extractor) Extract(src string) Extraction {
	doc, err := Parse(src)
	if err != nil {
		e.logger.Warn("unparseable document", zap.Error(err))
		return Extraction{}
	}
	return e.ExtractDocument(doc)
}

// ExtractDocument reads fields from an already parsed document.
func (e *Extractor) ExtractDocument(doc *Document) Extraction {
	text := doc.Text()
	out := Extraction{Text: text, Flags: DetectFlags(text)}

	for _, r := range e.rules {
		if !e.apply(doc, r, &out.Record) {
			e.logger.Debug("field not found", zap.String("field", r.field))
		}
	}

	if out.Record.AssetType == nil {
		for _, kw := range assetKeywords {
			if strings.Contains(text, kw) {
				out.Record.AssetType = auction.Ptr(kw)
				break
			}
		}
	}
	if out.Record.Round == nil {
		out.Record.Round = textparse.ParseRound(text)
	}
	if out.Record.LandRight == nil && out.Flags.NoLandRight {
		out.Record.LandRight = auction.Ptr(false)
	}
	if text != "" {
		out.Record.RawTextSnippet = auction.Ptr(truncateRunes(text, snippetChars))
	}

	out.CaseNo = e.caseNumber(doc)
	if m := internalIDInText.FindStringSubmatch(doc.Source()); m != nil {
		out.InternalID = m[1]
	}
	return out
}

// apply tries the DOM strategy for every label before the path-query
// fallback.
func (e *Extractor) apply(doc *Document, r rule, rec *auction.Record) bool {
	for _, label := range r.labels {
		for _, candidate := range doc.domCandidates(label, r.selfValue) {
			if r.assign(rec, candidate) {
				return true
			}
		}
	}
	for _, label := range r.labels {
		for _, candidate := range doc.pathCandidates(label) {
			if r.assign(rec, candidate) {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) caseNumber(doc *Document) string {
	for _, label := range caseNumberLabels {
		for _, candidate := range doc.domCandidates(label, false) {
			if auction.IsCaseNumber(candidate) {
				return candidate
			}
		}
		for _, candidate := range doc.pathCandidates(label) {
			if auction.IsCaseNumber(candidate) {
				return candidate
			}
		}
	}
	return caseNumberInText.FindString(doc.Source())
}
