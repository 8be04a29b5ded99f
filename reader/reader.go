// Package reader is the Reader Pool (§4.2): a semaphore-bounded
// admission layer in front of a worker pool that executes queries
// against a local bleve index and returns ranked, paginated hits.
//
// Grounded on original_source/engine/src/index.rs's IndexReaderHandler
// (a tokio semaphore gating a rayon thread pool) and the teacher's
// queryport/client/scan_client.go concurrent dispatch style.
package reader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/semaphore"

	"github.com/lnx-search/lnx-engine/internal/kinderror"
	"github.com/lnx-search/lnx-engine/internal/metrics"
	"github.com/lnx-search/lnx-engine/query"
	"github.com/lnx-search/lnx-engine/schema"
)

// refCacheCapacity bounds the RefAddress→doc-id resolution cache (§4.2
// Result shape: a ref_address is only guaranteed resolvable "within a
// specific searcher snapshot" — this cache is that snapshot's memory,
// not a durable index). Oldest entries are evicted FIFO once full.
const refCacheCapacity = 4096

// Hit is a single ranked result (§4.2 Contract).
type Hit struct {
	RefAddress query.RefAddress
	Doc        schema.Document
}

// Results is QueryResults (§4.2 Contract).
type Results struct {
	Hits          []Hit
	Count         int
	TimeTakenSecs float64
}

// Pool is the reader pool for a single index: it bounds concurrent
// searches at maxConcurrency permits and dispatches admitted searches to
// a worker pool of the same size (§4.2 Admission, Execution).
type Pool struct {
	indexName string
	idx       bleve.Index
	schema    *schema.Schema
	builder   atomic.Pointer[query.Builder]

	segment uint32 // this node's segment ordinal, for RefAddress encoding

	sem    *semaphore.Weighted
	workCh chan func()

	refMu    sync.Mutex
	refToDoc map[query.RefAddress]string
	refOrder []query.RefAddress
}

// New constructs a reader Pool over idx. maxConcurrency bounds both the
// admission semaphore and the dispatch worker count (§4.2 Admission:
// "dispatches the search to a thread pool of exactly max_concurrency
// threads"). segment identifies this node's shard for RefAddress
// encoding (§4.2 Result shape).
func New(indexName string, idx bleve.Index, s *schema.Schema, builder *query.Builder, maxConcurrency int, segment uint32) *Pool {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	p := &Pool{
		indexName: indexName,
		idx:       idx,
		schema:    s,
		segment:   segment,
		sem:       semaphore.NewWeighted(int64(maxConcurrency)),
		workCh:    make(chan func()),
		refToDoc:  make(map[query.RefAddress]string),
	}
	p.builder.Store(builder)

	for i := 0; i < maxConcurrency; i++ {
		go p.worker()
	}
	return p
}

// SetBuilder swaps in a freshly-built query.Builder, e.g. after a
// stopword or synonym mutation (§3 Data model: "loaded into the query
// builder at construction and on change"). Safe to call concurrently
// with in-flight searches.
func (p *Pool) SetBuilder(builder *query.Builder) {
	p.builder.Store(builder)
}

func (p *Pool) worker() {
	for fn := range p.workCh {
		fn()
	}
}

// Search executes payload against the pool's index (§4.2 Contract).
// likeFieldTerms is forwarded to the query builder for ModeMoreLikeThis
// (see query.Builder.Build); callers may leave it nil, in which case
// Search resolves payload.RefDocument itself via Fetch. Either way, the
// reference document's own id is excluded from the result set (S5).
func (p *Pool) Search(ctx context.Context, payload query.Payload, likeFieldTerms map[string][]string) (*Results, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	var excludeDocID string
	if payload.Mode == query.ModeMoreLikeThis && payload.RefDocument != nil {
		doc, docID, err := p.Fetch(ctx, *payload.RefDocument)
		if err != nil {
			return nil, err
		}
		excludeDocID = docID
		if likeFieldTerms == nil {
			likeFieldTerms = FieldTerms(doc)
		}
	}

	bq, err := p.builder.Load().Build(payload, likeFieldTerms, excludeDocID)
	if err != nil {
		return nil, err
	}

	type outcome struct {
		results *Results
		err     error
	}
	done := make(chan outcome, 1)

	select {
	case p.workCh <- func() {
		r, err := p.execute(bq, payload)
		done <- outcome{r, err}
	}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case o := <-done:
		return o.results, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// execute runs the search on the calling worker goroutine, holding no
// permit of its own (the caller already holds one) — the worker pool is
// the "dedicated thread" half of §4.2 Execution. Wall-clock time
// excludes admission wait, per §4.2 Result shape.
func (p *Pool) execute(bq bquery.Query, payload query.Payload) (*Results, error) {
	timer := metrics.NewTimer()
	metrics.SearchRequestsTotal.WithLabelValues(p.indexName, payload.Mode.String()).Inc()
	defer timer.ObserveSeconds(metrics.SearchDuration.WithLabelValues(p.indexName))

	start := time.Now()

	limit, offset := payload.Limit, payload.Offset
	if limit <= 0 {
		limit = 10
	}

	// Collect enough hits to satisfy offset+limit; bleve's own collector
	// applies the window, covering §4.2 Pagination (including the
	// offset > matches → empty-hits, not-an-error case).
	req := bleve.NewSearchRequestOptions(bq, limit, offset, false)
	req.Fields = []string{"*"}

	if sortField, ok := p.resolveOrderBy(payload.OrderBy); ok {
		req.SortBy([]string{"-" + sortField, "-_score", "_id"})
	} else {
		req.SortBy([]string{"-_score", "_id"})
	}

	result, err := p.idx.SearchInContext(context.Background(), req)
	if err != nil {
		return nil, kinderror.Wrap(kinderror.BackendError, err, "reader: search")
	}

	hits := make([]Hit, 0, len(result.Hits))
	for ordinal, dh := range result.Hits {
		ref := query.RefAddress{SegmentOrdinal: p.segment, DocOrdinal: uint32(ordinal)}
		p.rememberRef(ref, dh.ID)
		hits = append(hits, Hit{
			RefAddress: ref,
			Doc:        fieldsToDocument(dh.Fields),
		})
	}

	return &Results{
		Hits:          hits,
		Count:         len(hits),
		TimeTakenSecs: time.Since(start).Seconds(),
	}, nil
}

// rememberRef records which document a RefAddress pointed to in this
// searcher snapshot, so a later Fetch (e.g. for MoreLikeThis) can
// resolve it. DocOrdinal is only a stable handle within the snapshot
// that produced it (§3 Glossary), not across arbitrary calls, so the
// cache — not the ordinal arithmetic — is what makes resolution work.
func (p *Pool) rememberRef(ref query.RefAddress, docID string) {
	p.refMu.Lock()
	defer p.refMu.Unlock()

	if _, exists := p.refToDoc[ref]; !exists {
		if len(p.refOrder) >= refCacheCapacity {
			oldest := p.refOrder[0]
			p.refOrder = p.refOrder[1:]
			delete(p.refToDoc, oldest)
		}
		p.refOrder = append(p.refOrder, ref)
	}
	p.refToDoc[ref] = docID
}

func (p *Pool) lookupRef(ref query.RefAddress) (string, bool) {
	p.refMu.Lock()
	defer p.refMu.Unlock()
	docID, ok := p.refToDoc[ref]
	return docID, ok
}

// Fetch resolves a RefAddress previously returned by Search back to its
// document and primary-key id (§4.2 Result shape, §8 S5). It only
// succeeds for addresses handed out by this Pool and still held in its
// snapshot cache; an unknown or expired address is kinderror.NotFound.
func (p *Pool) Fetch(ctx context.Context, ref query.RefAddress) (schema.Document, string, error) {
	docID, ok := p.lookupRef(ref)
	if !ok {
		return nil, "", kinderror.New(kinderror.NotFound, errRefAddressUnresolved)
	}

	q := bleve.NewDocIDQuery([]string{docID})
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = []string{"*"}

	result, err := p.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, "", kinderror.Wrap(kinderror.BackendError, err, "reader: fetch")
	}
	if len(result.Hits) == 0 {
		return nil, "", kinderror.New(kinderror.NotFound, errRefAddressUnresolved)
	}

	return fieldsToDocument(result.Hits[0].Fields), docID, nil
}

var errRefAddressUnresolved = refAddressUnresolvedErr{}

type refAddressUnresolvedErr struct{}

func (refAddressUnresolvedErr) Error() string {
	return "reader: ref_address does not resolve to a document in this snapshot"
}

// resolveOrderBy implements §4.2 Ordering: order_by must name a fast
// field of the schema, otherwise it is silently ignored and score
// ordering is used.
func (p *Pool) resolveOrderBy(orderBy string) (string, bool) {
	if orderBy == "" {
		return "", false
	}
	f, ok := p.schema.Field(orderBy)
	if !ok || !f.Fast {
		return "", false
	}
	return orderBy, true
}

// FieldTerms tokenizes the stored fields of a fetched document into the
// shape query.Builder.Build expects for ModeMoreLikeThis.
func FieldTerms(doc schema.Document) map[string][]string {
	out := make(map[string][]string, len(doc))
	for name, v := range doc {
		if s, ok := v.(string); ok {
			out[name] = splitWords(s)
		}
	}
	return out
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

func fieldsToDocument(fields map[string]interface{}) schema.Document {
	d := make(schema.Document, len(fields))
	for k, v := range fields {
		d[k] = v
	}
	return d
}
