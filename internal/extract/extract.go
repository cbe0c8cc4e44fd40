// Package extract turns one XHTML content document into a section label and
// its ordered paragraph blocks.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// labelSelectors are tried in order; the first non-empty match names the
// section.
var labelSelectors = []string{"h1", "h2", "h3", "title"}

const blockSelector = "p, li, pre"

var blankLine = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Extract returns the section label and paragraphs of markup. name is used as
// the label when the document has no heading or title. Malformed markup is
// recovered on a best-effort basis; Extract never fails.
func Extract(name string, markup []byte) (string, []string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return name, nil
	}
	label := Label(doc)
	if label == "" {
		label = name
	}
	return label, Paragraphs(doc)
}

// Label returns the text of the highest-priority heading in doc, or "" when
// there is none.
func Label(doc *goquery.Document) string {
	for _, sel := range labelSelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if text := strings.Join(textNodes(node), " "); text != "" {
			return text
		}
	}
	return ""
}

// Paragraphs collects every paragraph, list item and preformatted block in
// document order. Documents without such blocks fall back to the body text
// split on blank lines.
func Paragraphs(doc *goquery.Document) []string {
	var out []string
	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		clean := normalize
		if goquery.NodeName(s) == "pre" {
			clean = preformatted
		}
		if text := clean(strings.Join(textNodes(s), "\n")); text != "" {
			out = append(out, text)
		}
	})
	if len(out) > 0 {
		return out
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	body := strings.Join(textNodes(root), "\n")
	for _, segment := range blankLine.Split(body, -1) {
		if text := normalize(segment); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// textNodes returns the trimmed, non-empty text nodes under s in document
// order. Script and style contents are ignored.
func textNodes(s *goquery.Selection) []string {
	var out []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := strings.TrimSpace(c.Text()); t != "" {
					out = append(out, t)
				}
			case "#comment", "script", "style":
			default:
				walk(c)
			}
		})
	}
	walk(s)
	return out
}

// normalize trims every line and drops empty ones, so internal line breaks
// collapse to a single newline.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// preformatted drops empty lines and trailing spaces but keeps the
// indentation of lines inside a text node.
func preformatted(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimRight(l, " \t\r\f\v"); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
