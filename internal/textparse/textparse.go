// Package textparse converts Korean listing text fragments into numbers.
package textparse

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	eok = 100_000_000
	man = 10_000
)

var (
	separators   = regexp.MustCompile(`[,\s]+`)
	eokComponent = regexp.MustCompile(`(\d+(?:\.\d+)?)억`)
	manComponent = regexp.MustCompile(`(\d+(?:\.\d+)?)(천|백)?만`)
	bareDigits   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	wonRemainder = regexp.MustCompile(`^(\d+(?:\.\d+)?)원?(?:$|\D)`)
	areaPattern  = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*(?:㎡|m²|m2|평)`)
	roundPattern = regexp.MustCompile(`(\d+)\s*(?:회차|차)`)
)

// ParseMoney sums the 억 and 만 components of text, each counted at most once,
// plus the 원 digits written directly after the last of them. Without any unit
// component the first digit group is the amount. A full amount restated in
// units, as in "150,000,000원(1억5천만원)", is therefore counted once. It
// returns nil when text contains no digit group.
func ParseMoney(text string) *float64 {
	compact := separators.ReplaceAllString(text, "")
	if !bareDigits.MatchString(compact) {
		return nil
	}

	total := 0.0
	unitEnd := -1
	if loc := eokComponent.FindStringSubmatchIndex(compact); loc != nil {
		total += parseFloat(compact[loc[2]:loc[3]]) * eok
		unitEnd = loc[1]
	}
	if loc := manComponent.FindStringSubmatchIndex(compact); loc != nil {
		scale := float64(man)
		if loc[4] >= 0 {
			scale *= subUnit(compact[loc[4]:loc[5]])
		}
		total += parseFloat(compact[loc[2]:loc[3]]) * scale
		unitEnd = max(unitEnd, loc[1])
	}

	if unitEnd < 0 {
		total = parseFloat(bareDigits.FindString(compact))
		return &total
	}
	if m := wonRemainder.FindStringSubmatch(compact[unitEnd:]); m != nil {
		total += parseFloat(m[1])
	}
	return &total
}

func subUnit(s string) float64 {
	switch s {
	case "천":
		return 1000
	case "백":
		return 100
	default:
		return 1
	}
}

// ParseArea returns the number immediately preceding an area unit.
func ParseArea(text string) *float64 {
	m := areaPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseRound extracts an auction round such as "3차" or "2회차".
func ParseRound(text string) *int {
	m := roundPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
