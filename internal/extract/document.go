// Package extract pulls structured listing fields, risk flags and
// identifiers out of an upstream HTML document.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var whitespace = regexp.MustCompile(`\s+`)

// Document is a parsed HTML page shared by the DOM and path-query strategies.
type Document struct {
	source string
	root   *html.Node
	dom    *goquery.Document
}

// Parse builds a Document from raw HTML. The tokenizer is lenient, so only
// reader failures surface as errors.
func Parse(src string) (*Document, error) {
	root, err := htmlquery.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{source: src, root: root, dom: goquery.NewDocumentFromNode(root)}, nil
}

// Source returns the raw HTML.
func (d *Document) Source() string {
	return d.source
}

// Text returns the visible text with scripts and styles removed and
// whitespace collapsed.
func (d *Document) Text() string {
	clone := goquery.CloneDocument(d.dom)
	clone.Find("script, style, noscript").Remove()
	return collapse(clone.Text())
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
