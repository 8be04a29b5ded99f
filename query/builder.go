package query

import (
	"strings"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/lnx-search/lnx-engine/internal/kinderror"
	"github.com/lnx-search/lnx-engine/schema"
)

// defaultMoreLikeThisStopwords is the built-in stopword set for
// MoreLikeThis when the index has no stopword list loaded (§4.3
// More-Like-This).
var defaultMoreLikeThisStopwords = map[string]struct{}{"for": {}}

const (
	mltMinTermFreq = 1
	mltMinWordLen  = 2
	mltMaxWordLen  = 5
	mltBoost       = 1.0
)

// Builder translates a Payload into a bleve query against a fixed
// Schema. One Builder is constructed per index and reused across
// searches; it is immutable and safe for concurrent use.
type Builder struct {
	schema                  *schema.Schema
	setConjunctionByDefault bool
	fastFuzzyEnabled        bool
	stopwords               map[string]struct{}
	synonyms                map[string][]string
}

// Synonym is a word and its replicated synonym set, mirrored here (rather
// than imported from the store package) so query stays free of a
// dependency on the durable-store contract.
type Synonym struct {
	Word     string
	Synonyms []string
}

// NewBuilder constructs a Builder. setConjunctionByDefault mirrors the
// index config flag of the same name (§4.3 Normal); stopwords is the
// index's loaded stopword list (possibly empty, in which case
// MoreLikeThis falls back to defaultMoreLikeThisStopwords); synonyms is
// the index's loaded synonym table (§3 Data model: "loaded into the
// query builder at construction and on change" — callers rebuild a
// Builder and swap it in whenever either list changes).
func NewBuilder(s *schema.Schema, setConjunctionByDefault bool, stopwords []string, synonyms []Synonym) *Builder {
	fastFuzzy := false
	for _, f := range s.Fields() {
		if f.FastFuzzy {
			fastFuzzy = true
			break
		}
	}

	sw := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		sw[strings.ToLower(w)] = struct{}{}
	}
	if len(sw) == 0 {
		sw = defaultMoreLikeThisStopwords
	}

	syn := make(map[string][]string, len(synonyms))
	for _, s := range synonyms {
		word := strings.ToLower(s.Word)
		variants := make([]string, len(s.Synonyms))
		for i, v := range s.Synonyms {
			variants[i] = strings.ToLower(v)
		}
		syn[word] = variants
	}

	return &Builder{
		schema:                  s,
		setConjunctionByDefault: setConjunctionByDefault,
		fastFuzzyEnabled:        fastFuzzy,
		stopwords:               sw,
		synonyms:                syn,
	}
}

// expand returns term plus every loaded synonym of term (§3 Data model),
// lowercased to match the case-insensitive synonym table.
func (b *Builder) expand(term string) []string {
	out := []string{term}
	if variants, ok := b.synonyms[strings.ToLower(term)]; ok {
		out = append(out, variants...)
	}
	return out
}

// Build dispatches on payload.Mode. likeFieldTerms supplies the
// tokenized field contents of payload.RefDocument for ModeMoreLikeThis;
// excludeDocID is the reference document's own id, excluded from the
// MoreLikeThis result set (§4.3 More-Like-This, S5: "excluding the
// reference document itself"). The reader pool resolves RefAddress to
// both of these via Pool.Fetch before calling Build (the Builder itself
// holds no index handle).
func (b *Builder) Build(payload Payload, likeFieldTerms map[string][]string, excludeDocID string) (bquery.Query, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	switch payload.Mode {
	case ModeNormal:
		return b.buildNormal(payload.Query)
	case ModeFuzzy:
		return b.buildFuzzy(payload.Query)
	case ModeMoreLikeThis:
		return b.buildMoreLikeThis(likeFieldTerms, excludeDocID)
	default:
		return nil, kinderror.New(kinderror.InvalidQuery, errUnknownMode)
	}
}

var errUnknownMode = errUnknownModeErr{}

type errUnknownModeErr struct{}

func (errUnknownModeErr) Error() string { return "query: unknown mode" }

// searchTarget is a field to match against plus the boost to apply, with
// shadow-field substitution already resolved (§4.4).
type searchTarget struct {
	field string
	boost float64
}

// targets returns the fields the Normal/Fuzzy query should hit. For each
// declared searchable field, if fast-fuzzy is enabled and a shadow field
// exists, the shadow field is targeted instead of the original (§4.4: "If
// a shadow field is not present for a declared search field, the
// preprocessor is bypassed for that field").
func (b *Builder) targets() []searchTarget {
	var out []searchTarget
	for _, f := range b.schema.Fields() {
		if !f.IsSearchable() {
			continue
		}
		boost := f.Boost
		if boost == 0 {
			boost = 1.0
		}

		name := f.Name
		if shadow, ok := schema.ShadowField(f); ok {
			name = shadow.Name
		}
		out = append(out, searchTarget{field: name, boost: boost})
	}
	return out
}

// useConjunction reports whether the default boolean operator for this
// query is AND rather than OR (§4.3 Normal, §4.4).
func (b *Builder) useConjunction() bool {
	return b.setConjunctionByDefault || b.fastFuzzyEnabled
}

// buildNormal implements §4.3 Normal: per-term, per-field boosted match
// queries ORed within a term, then combined across terms by the default
// conjunction operator.
func (b *Builder) buildNormal(q string) (bquery.Query, error) {
	terms := strings.Fields(q)
	targets := b.targets()
	if len(targets) == 0 {
		return nil, kinderror.New(kinderror.InvalidQuery, errNoSearchFields)
	}

	var termQueries []bquery.Query
	for _, term := range terms {
		var perField []bquery.Query
		for _, variant := range b.expand(term) {
			for _, t := range targets {
				mq := bleve.NewMatchQuery(variant)
				mq.SetField(t.field)
				mq.SetBoost(t.boost)
				perField = append(perField, mq)
			}
		}
		termQueries = append(termQueries, bleve.NewDisjunctionQuery(perField))
	}

	if b.useConjunction() {
		return bleve.NewConjunctionQuery(termQueries), nil
	}
	return bleve.NewDisjunctionQuery(termQueries), nil
}

// buildFuzzy implements §4.3 Fuzzy (standard path, fast-fuzzy disabled):
// whitespace-tokenized, lowercased terms, each emitting a Levenshtein-1
// fuzzy query per indexed text field, ORed together. Each fuzzy query
// matches whole terms within one edit; it is not prefix-matched.
//
// When fast-fuzzy is enabled for the schema, the query is built as in
// buildNormal instead: exact matches against the shadow fields, with the
// default operator flipped to AND (§4.4).
func (b *Builder) buildFuzzy(q string) (bquery.Query, error) {
	if b.fastFuzzyEnabled {
		return b.buildNormal(q)
	}

	var should []bquery.Query
	for _, raw := range strings.Fields(q) {
		term := strings.ToLower(raw)
		if term == "" {
			continue
		}
		for _, variant := range b.expand(term) {
			for _, f := range b.schema.Fields() {
				if f.Type != schema.FieldText || !f.Indexed {
					continue
				}
				fq := bleve.NewFuzzyQuery(variant)
				fq.SetField(f.Name)
				fq.SetFuzziness(1)
				should = append(should, fq)
			}
		}
	}

	if len(should) == 0 {
		return nil, kinderror.New(kinderror.InvalidQuery, errEmptyFuzzyQuery)
	}
	return bleve.NewDisjunctionQuery(should), nil
}

// buildMoreLikeThis implements §4.3 More-Like-This. likeFieldTerms holds
// the reference document's field values, already tokenized by the
// caller; terms are filtered by word length and the stopword set, then
// combined into a boosted disjunction. Only these per-term constraints
// are applied; no min/max-doc-frequency filtering is done, here or in
// the reader pool.
// excludeDocID, when non-empty, is added as a MustNot clause so the
// reference document never appears in its own similarity results (S5).
func (b *Builder) buildMoreLikeThis(likeFieldTerms map[string][]string, excludeDocID string) (bquery.Query, error) {
	type candidate struct {
		field string
		term  string
	}
	freq := make(map[candidate]int)

	for field, terms := range likeFieldTerms {
		for _, raw := range terms {
			term := strings.ToLower(raw)
			if len(term) < mltMinWordLen || len(term) > mltMaxWordLen {
				continue
			}
			if _, stop := b.stopwords[term]; stop {
				continue
			}
			freq[candidate{field: field, term: term}]++
		}
	}

	var should []bquery.Query
	for c, count := range freq {
		if count < mltMinTermFreq {
			continue
		}
		mq := bleve.NewMatchQuery(c.term)
		mq.SetField(c.field)
		mq.SetBoost(mltBoost)
		should = append(should, mq)
	}

	if len(should) == 0 {
		return nil, kinderror.New(kinderror.InvalidQuery, errEmptyMoreLikeThis)
	}

	similarity := bleve.NewDisjunctionQuery(should)
	if excludeDocID == "" {
		return similarity, nil
	}

	return bleve.NewBooleanQuery(nil,
		[]bquery.Query{similarity},
		[]bquery.Query{bleve.NewDocIDQuery([]string{excludeDocID})},
	), nil
}

var (
	errNoSearchFields    = simpleErr("query: schema declares no searchable fields")
	errEmptyFuzzyQuery   = simpleErr("query: fuzzy query has no usable terms")
	errEmptyMoreLikeThis = simpleErr("query: reference document has no usable terms")
)

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
