package crawler

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
)

// defaultJSKeywords are markers that a probe response is a JS shell rather
// than a rendered document.
var defaultJSKeywords = [][]byte{
	[]byte("enable javascript"),
	[]byte("javascript is required"),
	[]byte("javascript is disabled"),
	[]byte("you need to enable javascript"),
	[]byte("<div id=\"root\"></div>"),
	[]byte("<div id=\"app\"></div>"),
}

// HeuristicDetector decides whether a probed page needs headless rendering
// using cheap HTML signals: suspiciously small bodies, JS-required
// markers, and extraction selectors that match nothing or yield no text.
type HeuristicDetector struct {
	minHTMLBytes int
	keywords     [][]byte
}

// NewHeuristicDetector constructs a detector. minBytes <= 0 disables the
// size signal.
func NewHeuristicDetector(minBytes int) *HeuristicDetector {
	return &HeuristicDetector{
		minHTMLBytes: minBytes,
		keywords:     defaultJSKeywords,
	}
}

// NeedsJS inspects a probe body for signals that JS rendering is required.
// selector is the extraction target the crawl will use; a selector that
// yields no text in the probe HTML is the strongest promotion signal.
func (d *HeuristicDetector) NeedsJS(body []byte, selector string) bool {
	if d == nil {
		return false
	}
	if d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes {
		return true
	}
	if d.containsKeywords(body) {
		return true
	}
	return d.selectorEmpty(body, selector)
}

func (d *HeuristicDetector) containsKeywords(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (d *HeuristicDetector) selectorEmpty(body []byte, selector string) bool {
	if len(body) == 0 {
		return true
	}
	if selector == "" {
		selector = "body"
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	container := doc.Find(selector)
	if container.Length() == 0 {
		return true
	}
	container.Find("script, style, noscript").Remove()
	return len(bytes.TrimSpace([]byte(container.Text()))) == 0
}
