package resolver

import (
	"fmt"
	"net/url"
	"strings"
)

// Placeholders substituted into templates.
const (
	idPlaceholder   = "{id}"
	casePlaceholder = "{case}"
)

// Templates are the upstream URL shapes tried during resolution. Paths are
// relative to BaseURL unless they are absolute URLs.
type Templates struct {
	BaseURL    string   `mapstructure:"base_url"`
	URLDetail  string   `mapstructure:"url_detail"`
	Search     []string `mapstructure:"search"`
	DetailByID []string `mapstructure:"detail_by_id"`
	Legacy     []string `mapstructure:"legacy"`
}

// DefaultTemplates returns the known onbid URL shapes.
func DefaultTemplates() Templates {
	return Templates{
		BaseURL:   "https://www.onbid.co.kr",
		URLDetail: "/op/cta/cltrdtl/collateralRealEstateDetail.do?cltrNo={id}",
		Search: []string{
			"/op/ppa/plnmmn/publicAnnounceList.do?q={case}",
			"/op/ppa/plnmmn/publicAnnounceList.do?searchKeyword={case}",
			"/op/search/searchIntegral.do?keyword={case}",
		},
		DetailByID: []string{
			"/op/ppa/plnmmn/publicAnnounceRlstDetail.do?cltrNo={id}",
			"/op/scrap/announceDetail.do?cltrNo={id}",
			"/op/cta/cltrdtl/collateralRealEstateDetail.do?cltrNo={id}",
		},
		Legacy: []string{
			"/op/ppa/plnmmn/publicAnnounceRlstDetail.do?keyword={case}",
			"/op/ppa/plnmmn/publicAnnounceDetail.do?searchKeyword={case}",
			"/op/gj/cltrdtl/goodsDetail.do?searchKeyword={case}",
		},
	}
}

// Validate checks that every template carries the placeholder it needs.
func (t Templates) Validate() error {
	if _, err := url.Parse(t.BaseURL); err != nil || t.BaseURL == "" {
		return fmt.Errorf("templates: invalid base url %q", t.BaseURL)
	}
	if !strings.Contains(t.URLDetail, idPlaceholder) {
		return fmt.Errorf("templates: url_detail must contain %s", idPlaceholder)
	}
	groups := []struct {
		name        string
		items       []string
		placeholder string
	}{
		{"search", t.Search, casePlaceholder},
		{"detail_by_id", t.DetailByID, idPlaceholder},
		{"legacy", t.Legacy, casePlaceholder},
	}
	for _, g := range groups {
		if len(g.items) == 0 {
			return fmt.Errorf("templates: %s must not be empty", g.name)
		}
		for _, item := range g.items {
			if !strings.Contains(item, g.placeholder) {
				return fmt.Errorf("templates: %s entry %q must contain %s", g.name, item, g.placeholder)
			}
		}
	}
	return nil
}

func (t Templates) expand(template, placeholder, value string) string {
	path := strings.ReplaceAll(template, placeholder, url.QueryEscape(value))
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(t.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (t Templates) expandAll(templates []string, placeholder, value string) []string {
	out := make([]string, 0, len(templates))
	for _, tpl := range templates {
		out = append(out, t.expand(tpl, placeholder, value))
	}
	return out
}
