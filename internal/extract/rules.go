package extract

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/onbid-case-resolver/internal/auction"
	"github.com/JakeFAU/onbid-case-resolver/internal/textparse"
)

const shortFieldMaxChars = 100

// rule binds one semantic field to its labels and value parser. assign
// returns false when the candidate text does not yield a value.
type rule struct {
	field  string
	labels []string
	// selfValue also offers the label element's own text, for values
	// written together with their label such as "1회차".
	selfValue bool
	assign    func(rec *auction.Record, value string) bool
}

// fieldRules is the single label table driving extraction. Longer labels
// come first so that a more specific label wins.
var fieldRules = []rule{
	{field: "asset_type", labels: []string{"자산구분", "물건종류"}, assign: shortText(func(r *auction.Record, v string) { r.AssetType = &v })},
	{field: "use_type", labels: []string{"용도"}, assign: shortText(func(r *auction.Record, v string) { r.UseType = &v })},
	{field: "address", labels: []string{"소재지", "위치", "주소", "소재"}, assign: address},
	{field: "appraisal_price", labels: []string{"감정가격", "감정가"}, assign: money(func(r *auction.Record, v *float64) { r.AppraisalPrice = v })},
	{field: "min_bid_price", labels: []string{"최저입찰가격", "최저입찰가"}, assign: money(func(r *auction.Record, v *float64) { r.MinBidPrice = v })},
	{field: "round", labels: []string{"입찰차수", "차수", "회차"}, selfValue: true, assign: round},
	{field: "building_area_m2", labels: []string{"건물면적", "연면적"}, assign: area(func(r *auction.Record, v *float64) { r.BuildingAreaM2 = v })},
	{field: "land_area_m2", labels: []string{"토지면적", "대지면적"}, assign: area(func(r *auction.Record, v *float64) { r.LandAreaM2 = v })},
	{field: "land_right", labels: []string{"대지권"}, assign: landRight},
	{field: "duty_deadline", labels: []string{"대금납부기한", "배분요구종기", "배분종기"}, assign: shortText(func(r *auction.Record, v string) { r.DutyDeadline = &v })},
}

func shortText(set func(*auction.Record, string)) func(*auction.Record, string) bool {
	return func(rec *auction.Record, value string) bool {
		if value == "" || utf8.RuneCountInString(value) > shortFieldMaxChars {
			return false
		}
		set(rec, value)
		return true
	}
}

func address(rec *auction.Record, value string) bool {
	n := utf8.RuneCountInString(value)
	if n <= 5 || n > 3*shortFieldMaxChars {
		return false
	}
	rec.Address = &value
	return true
}

func money(set func(*auction.Record, *float64)) func(*auction.Record, string) bool {
	return func(rec *auction.Record, value string) bool {
		if utf8.RuneCountInString(value) > shortFieldMaxChars {
			return false
		}
		v := textparse.ParseMoney(value)
		if v == nil || *v <= 0 {
			return false
		}
		set(rec, v)
		return true
	}
}

func area(set func(*auction.Record, *float64)) func(*auction.Record, string) bool {
	return func(rec *auction.Record, value string) bool {
		if utf8.RuneCountInString(value) > shortFieldMaxChars {
			return false
		}
		v := textparse.ParseArea(value)
		if v == nil {
			return false
		}
		set(rec, v)
		return true
	}
}

func round(rec *auction.Record, value string) bool {
	if v := textparse.ParseRound(value); v != nil {
		rec.Round = v
		return true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && n > 0 && n < 1000 {
		rec.Round = &n
		return true
	}
	return false
}

func landRight(rec *auction.Record, value string) bool {
	switch {
	case value == "" || utf8.RuneCountInString(value) > shortFieldMaxChars:
		return false
	case strings.Contains(value, "미등기"), strings.Contains(value, "없음"), strings.Contains(value, "미포함"):
		rec.LandRight = auction.Ptr(false)
	case strings.Contains(value, "있음"), strings.Contains(value, "등기"), strings.Contains(value, "포함"):
		rec.LandRight = auction.Ptr(true)
	default:
		return false
	}
	return true
}
