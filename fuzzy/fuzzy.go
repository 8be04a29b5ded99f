// Package fuzzy is the Fast-Fuzzy Preprocessor (§4.4): at write time it
// expands a text value into a set of normalized, symmetric-delete
// variants and writes them into the field's shadow field instead of the
// original. At query time the query builder (package query) targets the
// shadow field instead and flips the default boolean operator to AND.
//
// No library in the teacher or the rest of the retrieved pack implements
// SymSpell-style symmetric-delete correction (see DESIGN.md), so the
// expansion itself is grown directly from strings. The unicode+case
// folding step underneath it uses golang.org/x/text (an indirect dep of
// the teacher and the rest of the pack) rather than hand-rolled rune
// filtering.
package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/lnx-search/lnx-engine/schema"
)

var caser = cases.Fold()

// maxDeleteDistance bounds the symmetric-delete expansion: each
// generated variant differs from the normalized input by at most this
// many character deletions. 1 matches the query side's Levenshtein-1
// fuzziness (§4.3 Fuzzy), keeping the accelerated path equivalent to the
// non-accelerated one for single-edit typos.
const maxDeleteDistance = 1

// Preprocessor normalizes and expands text for the fast-fuzzy shadow
// fields of one schema. It holds the schema's stopword set; construct a
// fresh Preprocessor whenever the index's stopword list changes.
type Preprocessor struct {
	stopwords map[string]struct{}
}

// NewPreprocessor builds a Preprocessor using stopwords as the strip
// list (the index's currently loaded stopword list, per §4.4).
func NewPreprocessor(stopwords []string) *Preprocessor {
	sw := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		sw[strings.ToLower(w)] = struct{}{}
	}
	return &Preprocessor{stopwords: sw}
}

// ExpandDocument rewrites d in place: for every field in s with a shadow
// field (§4.4: fast-fuzzy enabled and the field holds text), it derives
// the shadow field's value from the original and stores it under
// schema.ShadowFieldName(field). Fields without a shadow declaration are
// left untouched and the preprocessor is bypassed for them.
func (p *Preprocessor) ExpandDocument(s *schema.Schema, d schema.Document) {
	for _, f := range s.Fields() {
		shadow, ok := schema.ShadowField(f)
		if !ok {
			continue
		}
		raw, ok := d[f.Name]
		if !ok {
			continue
		}
		text, ok := raw.(string)
		if !ok {
			continue
		}
		d[shadow.Name] = strings.Join(p.ExpandTerm(text), " ")
	}
}

// ExpandTerm normalizes value (unicode + case folding, optional stopword
// strip) and returns the normalized tokens plus every symmetric-delete
// variant within maxDeleteDistance, deduplicated. The result is what
// gets indexed into a shadow field, and also what a fast-fuzzy query at
// search time is matched against after the same normalization.
func (p *Preprocessor) ExpandTerm(value string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(tok string) {
		if tok == "" {
			return
		}
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}

	for _, raw := range strings.Fields(value) {
		norm := normalize(raw)
		if norm == "" {
			continue
		}
		if _, stop := p.stopwords[norm]; stop {
			continue
		}

		add(norm)
		for _, variant := range deletions(norm, maxDeleteDistance) {
			add(variant)
		}
	}

	return out
}

// Normalize applies the same unicode+case folding used for shadow-field
// terms, without stopword filtering or symmetric-delete expansion. The
// query builder does not call it: shadow-field queries go through the
// field's analyzer.
func Normalize(value string) string {
	return normalize(value)
}

func normalize(s string) string {
	s = caser.String(s)
	s = norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// deletions returns every distinct string reachable from s by deleting
// up to dist runes, the core of the symmetric-delete algorithm: indexing
// every deletion variant of a word lets a query-time deletion variant of
// a misspelling land on the same shadow-field term.
func deletions(s string, dist int) []string {
	if dist <= 0 || len(s) == 0 {
		return nil
	}

	runes := []rune(s)
	seen := make(map[string]struct{})
	var out []string

	var recurse func(cur []rune, remaining int)
	recurse = func(cur []rune, remaining int) {
		if remaining == 0 || len(cur) <= 1 {
			return
		}
		for i := range cur {
			next := make([]rune, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			str := string(next)
			if _, dup := seen[str]; !dup {
				seen[str] = struct{}{}
				out = append(out, str)
			}
			recurse(next, remaining-1)
		}
	}
	recurse(runes, dist)

	return out
}
