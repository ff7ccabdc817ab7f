package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxLinksPerPage caps link discovery on pathological pages.
const maxLinksPerPage = 512

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\f]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// pageExtract is the readable view of one rendered document.
type pageExtract struct {
	Title       string
	Description string
	Content     string
	Links       []string
}

// extractPage parses rendered HTML and pulls the title, the meta
// description, the text under selector (falling back to body when the
// selector matches nothing), and outbound links resolved against base.
func extractPage(html string, base *url.URL, selector string) (pageExtract, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return pageExtract{}, fmt.Errorf("parse html: %w", err)
	}

	out := pageExtract{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: extractLinks(doc, base),
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		out.Description = strings.TrimSpace(desc)
	}

	if selector == "" {
		selector = "body"
	}
	container := doc.Find(selector)
	if container.Length() == 0 {
		container = doc.Find("body")
	}
	container.Find("script, style, noscript, template").Remove()
	out.Content = normalizeText(container.Text())
	return out, nil
}

// extractLinks collects unique absolute http(s) links from anchor tags.
// Relative references resolve against base (the fetched page's URL, not
// the seed). Unparseable references are dropped silently.
func extractLinks(doc *goquery.Document, base *url.URL) []string {
	if base == nil {
		return nil
	}
	seen := make(map[string]struct{})
	links := make([]string, 0, 16)
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "data:") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return true
		}
		abs.Fragment = ""
		key := abs.String()
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		links = append(links, key)
		return len(links) < maxLinksPerPage
	})
	return links
}

// normalizeText collapses horizontal whitespace runs per line and squeezes
// long blank-line runs down to single paragraph breaks, so extracted text
// stays splittable on blank lines.
func normalizeText(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	joined = newlineRun.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}
