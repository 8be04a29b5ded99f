package writer

import (
	"context"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnx-search/lnx-engine/fuzzy"
	"github.com/lnx-search/lnx-engine/schema"
)

func newTestWriter(t *testing.T) (*Writer, bleve.Index, context.CancelFunc) {
	t.Helper()

	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	s, err := schema.New("id",
		schema.Field{Name: "id", Type: schema.FieldText, Indexed: true, Stored: true},
		schema.Field{Name: "title", Type: schema.FieldText, Indexed: true, Stored: true},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w := New(ctx, "books", idx, s, fuzzy.NewPreprocessor(nil), zerolog.Nop())
	return w, idx, cancel
}

func mustWait(t *testing.T, op *Op) {
	t.Helper()
	require.NoError(t, op.Wait())
}

func TestApplyAddDocumentPopulatesFastFuzzyShadowField(t *testing.T) {
	s, err := schema.New("id",
		schema.Field{Name: "id", Type: schema.FieldText, Indexed: true, Stored: true},
		schema.Field{Name: "title", Type: schema.FieldText, Indexed: true, Stored: true, FastFuzzy: true},
	)
	require.NoError(t, err)

	idx, err := bleve.NewMemOnly(s.ToBleveMapping())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := New(ctx, "books", idx, s, fuzzy.NewPreprocessor(nil), zerolog.Nop())
	defer w.Shutdown()

	add := &Op{Kind: OpAddDocument, DocID: "u1", Doc: map[string]interface{}{"id": "u1", "title": "Rust"}}
	require.NoError(t, w.Enqueue(add))
	mustWait(t, add)

	commit := &Op{Kind: OpCommit}
	require.NoError(t, w.Enqueue(commit))
	mustWait(t, commit)

	shadow := schema.ShadowFieldName("title")
	q := bleve.NewTermQuery("rust")
	q.SetField(shadow)
	result, err := idx.Search(bleve.NewSearchRequestOptions(q, 10, 0, false))
	require.NoError(t, err)
	require.Equal(t, uint64(1), result.Total, "ExpandDocument must populate the fast-fuzzy shadow field before indexing")
}

func TestEnqueueAddThenCommitMakesDocVisible(t *testing.T) {
	w, idx, cancel := newTestWriter(t)
	defer cancel()
	defer w.Shutdown()

	add := &Op{Kind: OpAddDocument, DocID: "u1", Doc: map[string]interface{}{"title": "Rust"}, TransactionID: "tx1"}
	require.NoError(t, w.Enqueue(add))
	mustWait(t, add)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count, "a document must not be visible before commit")

	commit := &Op{Kind: OpCommit, TransactionID: "tx1"}
	require.NoError(t, w.Enqueue(commit))
	mustWait(t, commit)

	count, err = idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestRollbackDiscardsUncommittedBatch(t *testing.T) {
	w, idx, cancel := newTestWriter(t)
	defer cancel()
	defer w.Shutdown()

	add := &Op{Kind: OpAddDocument, DocID: "u1", Doc: map[string]interface{}{"title": "Rust"}}
	require.NoError(t, w.Enqueue(add))
	mustWait(t, add)

	rollback := &Op{Kind: OpRollback}
	require.NoError(t, w.Enqueue(rollback))
	mustWait(t, rollback)

	commit := &Op{Kind: OpCommit}
	require.NoError(t, w.Enqueue(commit))
	mustWait(t, commit)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEnqueueOrderingWithinAWave(t *testing.T) {
	w, idx, cancel := newTestWriter(t)
	defer cancel()
	defer w.Shutdown()

	// Enqueue every op before waiting on any, so the actor can pick them
	// up together in one wave.
	ops := make([]*Op, 0, 5)
	for i := 0; i < 5; i++ {
		op := &Op{Kind: OpAddDocument, DocID: "u1", Doc: map[string]interface{}{"title": "v" + string(rune('0'+i))}}
		require.NoError(t, w.Enqueue(op))
		ops = append(ops, op)
	}
	for _, op := range ops {
		mustWait(t, op)
	}

	commit := &Op{Kind: OpCommit}
	require.NoError(t, w.Enqueue(commit))
	mustWait(t, commit)

	doc, err := idx.Document("u1")
	require.NoError(t, err)
	require.NotNil(t, doc, "later AddDocument ops for the same primary key must replace earlier ones")

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{"u1"}), 1, 0, false)
	req.Fields = []string{"title"}
	result, err := idx.Search(req)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "v4", result.Hits[0].Fields["title"], "the last enqueued version must win")
}

func TestShutdownUnblocksPendingEnqueue(t *testing.T) {
	w, _, cancel := newTestWriter(t)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not complete")
	}

	err := w.Enqueue(&Op{Kind: OpAddDocument, DocID: "u2", Doc: map[string]interface{}{}})
	assert.Error(t, err, "enqueue on a shut-down writer must fail")
}

// TestQueueCapacityBlocksThenDrains drives §8 property 5 / scenario S3: a
// full queue suspends the next Enqueue until the actor drains, and the
// suspended call then completes once room frees up.
func TestQueueCapacityBlocksThenDrains(t *testing.T) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the writer without starting its actor goroutine, so nothing
	// drains the queue while it is filled with queueCapacity ops; the
	// actor is started only after the next Enqueue has been seen to
	// suspend.
	w := &Writer{
		indexName: "books",
		idx:       idx,
		log:       zerolog.Nop(),
		reqch:     make(chan *Op, queueCapacity),
		finch:     make(chan struct{}),
		donech:    make(chan struct{}),
		waiters:   make(chan waiter, queueCapacity),
		batch:     idx.NewBatch(),
	}

	ops := make([]*Op, 0, queueCapacity)
	for i := 0; i < queueCapacity; i++ {
		op := &Op{Kind: OpAddDocument, DocID: "u1", Doc: map[string]interface{}{"title": "x"}}
		require.NoError(t, w.Enqueue(op))
		ops = append(ops, op)
	}

	blocked := &Op{Kind: OpAddDocument, DocID: "u2", Doc: map[string]interface{}{"title": "y"}}
	enqueued := make(chan error, 1)
	go func() { enqueued <- w.Enqueue(blocked) }()

	select {
	case <-enqueued:
		t.Fatal("the 21st enqueue must suspend until the actor drains the queue")
	case <-time.After(50 * time.Millisecond):
	}

	go w.run(ctx)
	defer w.Shutdown()

	for _, op := range ops {
		mustWait(t, op)
	}

	select {
	case err := <-enqueued:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("the suspended enqueue did not complete after the queue drained")
	}
	mustWait(t, blocked)
}
