// Package attachment finds supplementary documents referenced by a listing
// and persists them per case.
package attachment

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
)

// indicator is a keyword pattern and the document kind it announces.
type indicator struct {
	pattern *regexp.Regexp
	name    string
}

var indicators = []indicator{
	{regexp.MustCompile(`(?i)첨부.*?파일`), "첨부파일"},
	{regexp.MustCompile(`감정평가서`), "감정평가서"},
	{regexp.MustCompile(`[재제]산명세서`), "재산명세서"},
	{regexp.MustCompile(`토지.*?대장`), "토지대장"},
	{regexp.MustCompile(`건축물.*?대장`), "건축물대장"},
	{regexp.MustCompile(`등기.*?부`), "등기부"},
	{regexp.MustCompile(`(?i)파일.*?다운로드`), "첨부파일"},
}

// Detect reports whether doc announces attachments. A document without any
// indicator yields NONE and no candidates, which is a normal state for
// listings that are not yet finalized.
func Detect(doc string) (auction.AttachmentState, []auction.AttachmentCandidate) {
	var kinds []string
	seen := map[string]bool{}
	for _, ind := range indicators {
		if ind.pattern.MatchString(doc) && !seen[ind.name] {
			seen[ind.name] = true
			kinds = append(kinds, ind.name)
		}
	}
	if len(kinds) == 0 {
		return auction.AttachmentNone, nil
	}

	if links := linkCandidates(doc); len(links) > 0 {
		return auction.AttachmentReady, links
	}
	candidates := make([]auction.AttachmentCandidate, 0, len(kinds))
	for _, kind := range kinds {
		candidates = append(candidates, auction.AttachmentCandidate{Name: kind})
	}
	return auction.AttachmentReady, candidates
}

// linkCandidates collects named links from table rows of attachment tables.
func linkCandidates(doc string) []auction.AttachmentCandidate {
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil
	}
	var out []auction.AttachmentCandidate
	seen := map[string]bool{}
	dom.Find("table").Each(func(_ int, table *goquery.Selection) {
		text := table.Text()
		if !strings.Contains(text, "첨부") && !strings.Contains(text, "파일") {
			return
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			if row.Find("td, th").Length() < 2 {
				return
			}
			row.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				href, _ := a.Attr("href")
				href = strings.TrimSpace(href)
				name := strings.Join(strings.Fields(a.Text()), " ")
				if href == "" || name == "" || seen[href] {
					return
				}
				seen[href] = true
				out = append(out, auction.AttachmentCandidate{Name: name, URL: href})
			})
		})
	})
	return out
}
