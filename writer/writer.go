// Package writer is the Writer Actor (§4.1): the single-threaded applier
// of mutations to a local bleve index, run on a dedicated goroutine
// pinned off the rest of the runtime's scheduling, fed by a bounded
// channel with an explicit waiter queue for fair FIFO back-pressure.
//
// Grounded on secondary/indexer/queue.go's rotating-buffer queue (the
// bounded-capacity, block-on-full idiom) and secondary/common/util.go's
// FailsafeOp/FailsafeOpAsync gen-server pattern (a command channel plus a
// finch closed on shutdown to unblock every waiting caller).
package writer

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/blevesearch/bleve/v2"

	"github.com/lnx-search/lnx-engine/fuzzy"
	"github.com/lnx-search/lnx-engine/internal/kinderror"
	"github.com/lnx-search/lnx-engine/internal/metrics"
	"github.com/lnx-search/lnx-engine/schema"
)

// queueCapacity is the writer's bounded channel capacity (§4.1 Queue):
// kept small because each operation touches disk.
const queueCapacity = 20

// OpKind enumerates the operations the writer actor accepts (§4.1
// Contract).
type OpKind int

const (
	OpAddDocument OpKind = iota
	OpDeleteTerm
	OpDeleteAll
	OpCommit
	OpRollback
	OpShutdown
)

// Op is a single enqueued mutation. TransactionID is caller-supplied and
// threaded through failure logs (§4.1 Failure) so a caller can correlate
// a logged failure with the write that produced it.
type Op struct {
	Kind          OpKind
	DocID         string
	Doc           schema.Document
	DeleteField   string
	DeleteValue   string
	TransactionID string

	done chan error
}

// waiter is a one-shot registration for a producer blocked on a full
// queue; the actor wakes waiters in registration order whenever it
// drains a message (§4.1 Queue).
type waiter chan struct{}

// Writer is the per-index writer actor handle. Callers only ever see
// Enqueue; the applier loop and its queue are private.
type Writer struct {
	indexName string
	idx       bleve.Index
	log       zerolog.Logger

	schema *schema.Schema
	pre    atomic.Pointer[fuzzy.Preprocessor]

	reqch  chan *Op
	finch  chan struct{}
	donech chan struct{}

	waiters chan waiter

	batch *bleve.Batch
}

// New starts the writer actor for idx on a dedicated goroutine and
// returns the handle. The goroutine runs until Shutdown is enqueued or
// ctx is cancelled. s and pre drive the Fast-Fuzzy Preprocessor
// (§4.4): every OpAddDocument has pre.ExpandDocument(s, ...) applied
// before it is indexed, populating the schema's shadow fields.
func New(ctx context.Context, indexName string, idx bleve.Index, s *schema.Schema, pre *fuzzy.Preprocessor, log zerolog.Logger) *Writer {
	w := &Writer{
		indexName: indexName,
		idx:       idx,
		log:       log.With().Str("component", "writer").Str("index", indexName).Logger(),
		schema:    s,
		reqch:     make(chan *Op, queueCapacity),
		finch:     make(chan struct{}),
		donech:    make(chan struct{}),
		waiters:   make(chan waiter, queueCapacity),
		batch:     idx.NewBatch(),
	}
	w.pre.Store(pre)

	go w.run(ctx)
	return w
}

// SetPreprocessor swaps in a freshly-built fast-fuzzy Preprocessor, e.g.
// after a stopword mutation (the preprocessor's strip list tracks the
// index's loaded stopwords, §4.4). Safe to call concurrently with the
// actor goroutine.
func (w *Writer) SetPreprocessor(pre *fuzzy.Preprocessor) {
	w.pre.Store(pre)
}

// Enqueue submits op and blocks until the actor has accepted it into its
// queue (§4.1 Contract: "completes when queued", not when applied). If
// the queue is full, the caller registers a one-shot waiter and is woken
// in registration order (§4.1 Queue). Returns kinderror.WriterShutdown
// if the actor has exited.
func (w *Writer) Enqueue(op *Op) error {
	op.done = make(chan error, 1)

	for {
		select {
		case w.reqch <- op:
			metrics.WriterQueueDepth.WithLabelValues(w.indexName).Set(float64(len(w.reqch)))
			return nil
		case <-w.finch:
			return kinderror.New(kinderror.WriterShutdown, errWriterClosed)
		default:
		}

		wake := make(waiter)
		select {
		case w.waiters <- wake:
		case <-w.finch:
			return kinderror.New(kinderror.WriterShutdown, errWriterClosed)
		}

		select {
		case <-wake:
		case <-w.finch:
			return kinderror.New(kinderror.WriterShutdown, errWriterClosed)
		}
	}
}

// Wait blocks until op has been applied (or failed) rather than merely
// queued, for callers that need a commit barrier (§4.1, §9 Ordering
// guarantees: "commits are barriers").
func (op *Op) Wait() error {
	return <-op.done
}

// Shutdown enqueues the terminal message and waits for the actor
// goroutine to exit, draining remaining waiters with a cancellation
// signal first so no caller deadlocks (§4.1 Failure).
func (w *Writer) Shutdown() {
	op := &Op{Kind: OpShutdown, done: make(chan error, 1)}
	_ = w.Enqueue(op)
	<-w.donech
}

var errWriterClosed = errors.New("writer: actor has shut down")

// run is the dedicated-thread applier loop (§4.1 Execution). It drains
// all currently-available messages in a batch (wave-batch policy), wakes
// waiters once per drain, then blocks for the next message.
func (w *Writer) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.donech)
	defer close(w.finch)

	for {
		var op *Op
		select {
		case op = <-w.reqch:
		case <-ctx.Done():
			w.drainWaiters()
			return
		}

		shutdown := w.applyWave(op)
		w.wakeWaiters()

		if shutdown {
			return
		}
	}
}

// applyWave applies first plus every op currently queued without
// blocking, then returns whether a Shutdown was observed.
func (w *Writer) applyWave(first *Op) bool {
	pending := []*Op{first}

drain:
	for {
		select {
		case op := <-w.reqch:
			pending = append(pending, op)
		default:
			break drain
		}
	}

	for _, op := range pending {
		if op.Kind == OpShutdown {
			w.flushBatch("shutdown")
			op.done <- nil
			return true
		}
		w.apply(op)
	}
	return false
}

func (w *Writer) apply(op *Op) {
	var err error
	switch op.Kind {
	case OpAddDocument:
		if pre := w.pre.Load(); pre != nil && w.schema != nil {
			pre.ExpandDocument(w.schema, op.Doc)
		}
		err = w.batch.Index(op.DocID, op.Doc)
	case OpDeleteTerm:
		err = w.applyDeleteTerm(op.DeleteField, op.DeleteValue)
	case OpDeleteAll:
		err = w.applyDeleteAll()
	case OpCommit:
		err = w.flushBatch("commit")
	case OpRollback:
		w.batch = w.idx.NewBatch()
	}

	opName := opKindName(op.Kind)
	metrics.WriterOpsTotal.WithLabelValues(w.indexName, opName).Inc()

	if err != nil {
		metrics.WriterOpFailuresTotal.WithLabelValues(w.indexName, opName).Inc()
		w.log.Error().
			Str("op_type", opName).
			Str("transaction_id", op.TransactionID).
			Err(err).
			Msg("writer: operation failed")
	}
	op.done <- err
}

func (w *Writer) applyDeleteTerm(field, value string) error {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	req := bleve.NewSearchRequestOptions(q, 10_000, 0, false)
	req.Fields = []string{}

	result, err := w.idx.Search(req)
	if err != nil {
		return err
	}
	for _, hit := range result.Hits {
		w.batch.Delete(hit.ID)
	}
	return nil
}

func (w *Writer) applyDeleteAll() error {
	ids, err := allDocIDs(w.idx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		w.batch.Delete(id)
	}
	return nil
}

func allDocIDs(idx bleve.Index) ([]string, error) {
	q := bleve.NewMatchAllQuery()
	req := bleve.NewSearchRequestOptions(q, 10_000, 0, false)
	result, err := idx.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// flushBatch commits the pending batch to the index. On failure the
// batch is left pending and retried on the next commit (§4.1 Failure:
// "the uncommitted batch remains pending").
func (w *Writer) flushBatch(reason string) error {
	if w.batch.Size() == 0 {
		return nil
	}
	start := time.Now()
	err := w.idx.Batch(w.batch)
	if err != nil {
		w.log.Error().Str("reason", reason).Err(err).Msg("writer: commit failed, batch retained")
		return kinderror.Wrap(kinderror.BackendError, err, "writer: batch commit")
	}
	w.log.Debug().Str("reason", reason).Dur("took", time.Since(start)).Int("ops", w.batch.Size()).Msg("writer: batch committed")
	w.batch = w.idx.NewBatch()
	return nil
}

func (w *Writer) wakeWaiters() {
	for {
		select {
		case wake := <-w.waiters:
			close(wake)
		default:
			return
		}
	}
}

func (w *Writer) drainWaiters() {
	for {
		select {
		case wake := <-w.waiters:
			close(wake)
		default:
			return
		}
	}
}

func opKindName(k OpKind) string {
	switch k {
	case OpAddDocument:
		return "add_document"
	case OpDeleteTerm:
		return "delete_term"
	case OpDeleteAll:
		return "delete_all"
	case OpCommit:
		return "commit"
	case OpRollback:
		return "rollback"
	case OpShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}
