package extract

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const followingText = "following::text()[normalize-space()][1]"

// domCandidates returns value candidates for label using element adjacency:
// a "label: value" remainder inside the same element, the next sibling, then
// the parent's next sibling. Elements where label only starts a longer word
// ("용도지역" for "용도") are skipped.
func (d *Document) domCandidates(label string, selfValue bool) []string {
	var out []string
	d.dom.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "script" || goquery.NodeName(s) == "style" {
			return
		}
		own := ownText(s)
		after, ok := labelRemainder(own, label)
		if !ok {
			return
		}
		if rest := inlineValue(after); rest != "" {
			out = append(out, rest)
		}
		if next := s.Next(); next.Length() > 0 {
			out = append(out, collapse(next.Text()))
		}
		if next := s.Parent().Next(); next.Length() > 0 {
			out = append(out, collapse(next.Text()))
		}
		if selfValue {
			out = append(out, own)
		}
	})
	return out
}

// pathCandidates is the fallback strategy: the first non-blank text node
// following any text node holding label as a whole word.
func (d *Document) pathCandidates(label string) []string {
	nodes, err := htmlquery.QueryAll(d.root, fmt.Sprintf("//text()[contains(.,'%s')]", label))
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if inScript(n) {
			continue
		}
		if _, ok := labelRemainder(collapse(n.Data), label); !ok {
			continue
		}
		next, err := htmlquery.Query(n, followingText)
		if err != nil || next == nil || inScript(next) {
			continue
		}
		if v := collapse(next.Data); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func inScript(n *html.Node) bool {
	return n.Parent != nil && (n.Parent.Data == "script" || n.Parent.Data == "style")
}

// labelRemainder returns the text after the first occurrence of label that
// is not immediately followed by a letter or digit.
func labelRemainder(text, label string) (string, bool) {
	for from := 0; from < len(text); {
		idx := strings.Index(text[from:], label)
		if idx < 0 {
			return "", false
		}
		end := from + idx + len(label)
		if end == len(text) {
			return "", true
		}
		if r, _ := utf8.DecodeRuneInString(text[end:]); !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return text[end:], true
		}
		from = end
	}
	return "", false
}

// inlineValue accepts a same-element value only after an explicit colon.
func inlineValue(after string) string {
	after = strings.TrimLeft(after, " \t")
	for _, sep := range []string{":", "："} {
		if rest, ok := strings.CutPrefix(after, sep); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
				b.WriteByte(' ')
			}
		}
	}
	return collapse(b.String())
}
