package diagnostics

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scrapix/pkg/browser"
)

// Probe lists what Inspect looks for in a captured page.
type Probe struct {
	Thumbnail           browser.Selector
	Images              []browser.Selector
	Consent             []browser.Selector
	ImagesLink          browser.Selector
	ChallengeIndicators []string
}

// Count is the number of matches for one selector. Supported is false
// when the selector cannot be evaluated against static HTML.
type Count struct {
	Selector  string
	Matches   int
	Supported bool
}

// Report summarises a captured page.
type Report struct {
	Title      string
	Thumbnails Count
	Images     []Count
	ImageURLs  []string
	Consent    []Count
	ImagesLink Count
	Challenge  bool
}

// Inspect parses html and evaluates probe against it.
func Inspect(html string, probe Probe) (*Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	r := &Report{
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		Thumbnails: count(doc, probe.Thumbnail),
		ImagesLink: count(doc, probe.ImagesLink),
		Challenge:  detect(doc, probe.ChallengeIndicators),
	}
	for _, sel := range probe.Images {
		r.Images = append(r.Images, count(doc, sel))
		if matches, ok := match(doc, sel); ok {
			matches.Each(func(_ int, s *goquery.Selection) {
				if src := s.AttrOr("src", ""); strings.HasPrefix(src, "http") {
					r.ImageURLs = append(r.ImageURLs, src)
				}
			})
		}
	}
	for _, sel := range probe.Consent {
		r.Consent = append(r.Consent, count(doc, sel))
	}
	return r, nil
}

// DetectChallenge reports whether any CSS indicator matches html.
func DetectChallenge(html string, indicators []string) bool {
	if len(indicators) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return detect(doc, indicators)
}

func detect(doc *goquery.Document, indicators []string) bool {
	for _, ind := range indicators {
		if ind != "" && doc.Find(ind).Length() > 0 {
			return true
		}
	}
	return false
}

func count(doc *goquery.Document, sel browser.Selector) Count {
	c := Count{Selector: sel.String()}
	if sel == (browser.Selector{}) {
		return c
	}
	matches, ok := match(doc, sel)
	if !ok {
		return c
	}
	c.Supported = true
	c.Matches = matches.Length()
	return c
}

// match resolves sel with CSS where possible and by visible text for link
// text selectors. XPath selectors are not supported.
func match(doc *goquery.Document, sel browser.Selector) (*goquery.Selection, bool) {
	if css, ok := sel.CSS(); ok {
		return doc.Find(css), true
	}
	if sel.Text == "" {
		return nil, false
	}
	tag := sel.Tag
	if tag == "" {
		tag = "*"
	}
	want := strings.Join(strings.Fields(sel.Text), " ")
	return doc.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Join(strings.Fields(s.Text()), " ") == want
	}), true
}
