package content

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Metadata is what an extraction pass learned from the document head and
// structured markup, independent of the body text.
type Metadata struct {
	Title          string   `json:"title"`
	Descriptions   []string `json:"descriptions"`    // description, og:description, twitter:description, in that order
	DateCandidates []string `json:"date_candidates"` // raw strings, best first
}

// Bodies is the result of the paired extraction passes over one document.
type Bodies struct {
	Primary   string   // precision pass, comment regions excluded
	Inclusive string   // inclusive pass, comment regions kept
	Meta      Metadata // head and structured-markup by-products
}

// Extractor produces candidate article bodies from raw HTML. Implementations
// favor recall: ambiguous blocks are kept, not dropped.
type Extractor interface {
	ExtractBodies(html []byte) (Bodies, error)
	// ExtractPlain is the last-resort single pass used when the paired
	// extraction fails entirely.
	ExtractPlain(html []byte) (string, error)
}

// boilerplateSelectors are removed in every pass.
const boilerplateSelectors = "script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .cookie-banner, .newsletter-signup, .social-share"

// commentSelectors are removed only in the precision pass.
const commentSelectors = ".comments, #comments, .comment, .comment-list, .comments-area, #disqus_thread, .respond, #respond, .comentarios, #comentarios"

// contentSelectors locate the main article container, most specific first.
var contentSelectors = []string{
	"article",
	"main",
	"[role='main']",
	".article-body",
	".post-content",
	".entry-content",
	".post-body",
	".main-content",
	".content",
	"#content",
}

// blockSelectors are the elements whose text forms paragraphs.
const blockSelectors = "p, h1, h2, h3, h4, li, blockquote"

var ldDatePublishedRe = regexp.MustCompile(`"datePublished"\s*:\s*"([^"]+)"`)

// GoqueryExtractor is the default Extractor.
type GoqueryExtractor struct{}

// NewGoqueryExtractor returns the default HTML body extractor.
func NewGoqueryExtractor() *GoqueryExtractor {
	return &GoqueryExtractor{}
}

// ExtractBodies runs the precision and inclusive passes and collects
// document metadata. The two passes parse the document independently so the
// removals of one never leak into the other.
func (e *GoqueryExtractor) ExtractBodies(html []byte) (Bodies, error) {
	precisionDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Bodies{}, fmt.Errorf("failed to parse document: %w", err)
	}
	inclusiveDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Bodies{}, fmt.Errorf("failed to parse document: %w", err)
	}

	meta := extractMetadata(precisionDoc)

	precisionDoc.Find(boilerplateSelectors).Remove()
	precisionDoc.Find(commentSelectors).Remove()
	primary := collectBody(precisionDoc)

	inclusiveDoc.Find(boilerplateSelectors).Remove()
	inclusive := collectBody(inclusiveDoc)

	return Bodies{Primary: primary, Inclusive: inclusive, Meta: meta}, nil
}

// ExtractPlain strips boilerplate and returns the body text as one block.
func (e *GoqueryExtractor) ExtractPlain(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse document: %w", err)
	}
	doc.Find(boilerplateSelectors).Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	return collapseWhitespace(text), nil
}

// collectBody pulls paragraph text from the best matching content container,
// widening to the whole body when no container matches.
func collectBody(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		if body := blocksText(container); body != "" {
			return body
		}
	}

	// No recognizable container: take every paragraph under body.
	if body := blocksText(doc.Find("body")); body != "" {
		return body
	}
	return strings.TrimSpace(doc.Find("body").Text())
}

// blocksText joins the trimmed text of block elements with blank lines.
func blocksText(sel *goquery.Selection) string {
	var blocks []string
	sel.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (a p inside a li) would duplicate text; only leaves count.
		if s.Find(blockSelectors).Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text != "" {
			blocks = append(blocks, collapseWhitespace(text))
		}
	})
	return strings.Join(blocks, "\n\n")
}

// extractMetadata reads head tags and JSON-LD before any removals happen.
func extractMetadata(doc *goquery.Document) Metadata {
	meta := Metadata{
		Title: strings.TrimSpace(doc.Find("head title").First().Text()),
	}

	for _, sel := range []string{
		"meta[name='description']",
		"meta[property='og:description']",
		"meta[name='twitter:description']",
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				meta.Descriptions = append(meta.Descriptions, trimmed)
			}
		}
	}

	for _, sel := range []string{
		"meta[property='article:published_time']",
		"meta[name='date']",
		"meta[itemprop='datePublished']",
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				meta.DateCandidates = append(meta.DateCandidates, trimmed)
			}
		}
	}
	if datetime, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		if trimmed := strings.TrimSpace(datetime); trimmed != "" {
			meta.DateCandidates = append(meta.DateCandidates, trimmed)
		}
	}
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := ldDatePublishedRe.FindStringSubmatch(s.Text()); m != nil {
			meta.DateCandidates = append(meta.DateCandidates, m[1])
			return false
		}
		return true
	})

	return meta
}

var spacesRe = regexp.MustCompile(`[ \t]+`)
var newlinesRe = regexp.MustCompile(`\n{3,}`)

// collapseWhitespace squeezes runs of spaces and 3+ newlines.
func collapseWhitespace(s string) string {
	s = spacesRe.ReplaceAllString(s, " ")
	s = newlinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
