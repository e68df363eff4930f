// Package content turns raw article HTML into one clean body text plus a
// validated publication date. It reconciles two extraction passes, merging
// paragraphs the precision pass missed and splicing in meta-tag summaries
// the page never repeats in its body.
package content

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"vigia/internal/dates"
	"vigia/internal/logger"
)

const (
	signatureLength   = 100  // runes of a paragraph used as its identity
	minLineLength     = 20   // runes for the line-split fallback
	minSentenceLength = 20   // runes for meta-similarity sentences
	minPrimaryWords   = 5    // primary paragraphs shorter than this skip Jaccard
	minMetaTokens     = 10   // meta strings shorter than this are ignored
	paragraphCeiling  = 0.70 // Jaccard above which a secondary paragraph is a duplicate
	sentenceCeiling   = 0.60 // Jaccard above which a meta string is already covered
)

var (
	blankLineRe  = regexp.MustCompile(`\n[ \t]*\n`)
	sentenceEndRe = regexp.MustCompile(`[.!?]+`)
)

// Reconciler merges extraction passes into a single article body.
type Reconciler struct {
	extractor Extractor
	minYear   int
	now       func() time.Time
	log       *slog.Logger
}

// NewReconciler builds a Reconciler around an extractor. minYear bounds the
// publication dates it will accept.
func NewReconciler(extractor Extractor, minYear int) *Reconciler {
	return &Reconciler{
		extractor: extractor,
		minYear:   minYear,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.Component("content"),
	}
}

// Reconcile produces (body, metadata, publication date) from raw HTML. Any
// of the three may be nil. Failures degrade through the precision body, then
// a plain single-pass extraction, then nil results; Reconcile never fails.
func (r *Reconciler) Reconcile(html []byte) (*string, *Metadata, *time.Time) {
	bodies, err := r.extractor.ExtractBodies(html)
	if err != nil {
		r.log.Warn("paired extraction failed, trying plain pass", "error", err.Error())
		plain, perr := r.extractor.ExtractPlain(html)
		if perr != nil || strings.TrimSpace(plain) == "" {
			return nil, nil, nil
		}
		plain = strings.TrimSpace(plain)
		return &plain, nil, nil
	}

	body := r.mergeBodies(bodies.Primary, bodies.Inclusive)
	if body == "" {
		body = strings.TrimSpace(bodies.Primary)
	}
	if body == "" {
		plain, perr := r.extractor.ExtractPlain(html)
		if perr != nil || strings.TrimSpace(plain) == "" {
			return nil, nil, nil
		}
		body = strings.TrimSpace(plain)
	}

	body = spliceMeta(body, bodies.Meta.Descriptions)
	published := r.metadataDate(bodies.Meta)
	meta := bodies.Meta
	return &body, &meta, published
}

// mergeBodies runs the paragraph-level merge, falling back to the precision
// body if anything in the merge goes wrong.
func (r *Reconciler) mergeBodies(primary, secondary string) (merged string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("paragraph merge failed, keeping precision body", "panic", fmt.Sprint(rec))
			merged = strings.TrimSpace(primary)
		}
	}()

	primaryParas := splitParagraphs(primary)
	secondaryParas := splitParagraphs(secondary)
	return strings.Join(mergeParagraphs(primaryParas, secondaryParas), "\n\n")
}

// metadataDate returns the first usable date among the extractor candidates.
func (r *Reconciler) metadataDate(meta Metadata) *time.Time {
	now := r.now()
	for _, candidate := range meta.DateCandidates {
		if t, err := dates.ParseAt(candidate, now, r.minYear); err == nil {
			return &t
		}
	}
	return nil
}

// splitParagraphs breaks a body on blank lines. When that produces a single
// block, it falls back to individual lines of at least minLineLength runes.
// A short single block is kept whole rather than discarded.
func splitParagraphs(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	var paras []string
	for _, part := range blankLineRe.Split(body, -1) {
		if p := strings.TrimSpace(part); p != "" {
			paras = append(paras, p)
		}
	}
	if len(paras) > 1 {
		return paras
	}

	var lines []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) >= minLineLength {
			lines = append(lines, line)
		}
	}
	if len(lines) > 0 {
		return lines
	}
	return paras
}

// signature is a paragraph's identity: its lowercased first 100 runes.
func signature(p string) string {
	s := strings.ToLower(strings.TrimSpace(p))
	if runes := []rune(s); len(runes) > signatureLength {
		s = string(runes[:signatureLength])
	}
	return strings.TrimSpace(s)
}

// wordSet lowercases and splits s into its unique words.
func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard is word-set similarity in [0,1]. Empty operands score 0.
func jaccard(a, b string) float64 {
	as, bs := wordSet(a), wordSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for w := range as {
		if _, ok := bs[w]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

// mergeParagraphs keeps the primary paragraphs in order and appends each
// secondary paragraph that is not a duplicate of a primary one, by exact
// signature or by Jaccard similarity above paragraphCeiling against primary
// paragraphs of at least minPrimaryWords words.
func mergeParagraphs(primary, secondary []string) []string {
	merged := make([]string, 0, len(primary)+len(secondary))
	merged = append(merged, primary...)

	sigs := make(map[string]struct{}, len(primary))
	for _, p := range primary {
		sigs[signature(p)] = struct{}{}
	}

	for _, p := range secondary {
		if _, ok := sigs[signature(p)]; ok {
			continue
		}
		duplicate := false
		for _, prim := range primary {
			if len(strings.Fields(prim)) < minPrimaryWords {
				continue
			}
			if jaccard(p, prim) > paragraphCeiling {
				duplicate = true
				break
			}
		}
		if !duplicate {
			merged = append(merged, p)
		}
	}
	return merged
}

// splitSentences returns the body's sentences of at least minSentenceLength
// runes.
func splitSentences(body string) []string {
	var sentences []string
	for _, part := range sentenceEndRe.Split(body, -1) {
		s := strings.TrimSpace(part)
		if utf8.RuneCountInString(s) >= minSentenceLength {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// spliceMeta prepends meta descriptions the body does not already cover.
// Meta content is assumed to summarize the article, so it goes first.
func spliceMeta(body string, descriptions []string) string {
	for _, desc := range descriptions {
		if len(strings.Fields(desc)) < minMetaTokens {
			continue
		}
		if strings.Contains(body, desc) {
			continue
		}
		covered := false
		for _, sentence := range splitSentences(body) {
			if jaccard(desc, sentence) > sentenceCeiling {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		if body == "" {
			body = desc
		} else {
			body = desc + "\n\n" + body
		}
	}
	return body
}
