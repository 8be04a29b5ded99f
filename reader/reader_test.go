package reader

import (
	"context"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnx-search/lnx-engine/query"
	"github.com/lnx-search/lnx-engine/schema"
)

func newTestPoolWithConcurrency(t *testing.T, maxConcurrency int) (*Pool, bleve.Index) {
	t.Helper()

	s, err := schema.New("id",
		schema.Field{Name: "id", Type: schema.FieldText, Indexed: true, Stored: true},
		schema.Field{Name: "title", Type: schema.FieldText, Indexed: true, Stored: true, Tokenized: true, Boost: 1},
		schema.Field{Name: "rank", Type: schema.FieldInteger, Indexed: true, Stored: true, Fast: true},
	)
	require.NoError(t, err)

	idx, err := bleve.NewMemOnly(s.ToBleveMapping())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.Index("d1", map[string]interface{}{"id": "d1", "title": "rust programming", "rank": 2}))
	require.NoError(t, idx.Index("d2", map[string]interface{}{"id": "d2", "title": "go programming", "rank": 1}))
	require.NoError(t, idx.Index("d3", map[string]interface{}{"id": "d3", "title": "rust systems language", "rank": 3}))

	builder := query.NewBuilder(s, false, nil, nil)
	p := New("books", idx, s, builder, maxConcurrency, 7)
	return p, idx
}

func newTestPool(t *testing.T) (*Pool, bleve.Index) {
	t.Helper()
	return newTestPoolWithConcurrency(t, 2)
}

func TestSearchReturnsRankedHits(t *testing.T) {
	p, _ := newTestPool(t)

	res, err := p.Search(context.Background(), query.Payload{
		Mode:  query.ModeNormal,
		Query: "programming",
		Limit: 10,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
}

func TestSearchOrderByFastField(t *testing.T) {
	p, _ := newTestPool(t)

	res, err := p.Search(context.Background(), query.Payload{
		Mode:    query.ModeNormal,
		Query:   "programming",
		Limit:   10,
		OrderBy: "rank",
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "d1", res.Hits[0].Doc["id"], "higher rank value must sort first")
}

func TestSearchOffsetBeyondMatchesReturnsEmptyNotError(t *testing.T) {
	p, _ := newTestPool(t)

	res, err := p.Search(context.Background(), query.Payload{
		Mode:   query.ModeNormal,
		Query:  "programming",
		Limit:  10,
		Offset: 100,
	}, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
}

func TestMoreLikeThisResolvesRefAddressAndExcludesItself(t *testing.T) {
	p, _ := newTestPool(t)

	s1, err := p.Search(context.Background(), query.Payload{
		Mode:  query.ModeNormal,
		Query: "rust programming",
		Limit: 10,
	}, nil)
	require.NoError(t, err)

	var ref query.RefAddress
	var found bool
	for _, h := range s1.Hits {
		if h.Doc["id"] == "d1" {
			ref = h.RefAddress
			found = true
		}
	}
	require.True(t, found, "d1 must appear in the \"rust programming\" search results")

	s2, err := p.Search(context.Background(), query.Payload{
		Mode:        query.ModeMoreLikeThis,
		RefDocument: &ref,
		Limit:       10,
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, s2.Hits, "d3 shares the \"rust\" term with d1")

	for _, h := range s2.Hits {
		assert.NotEqual(t, "d1", h.Doc["id"], "more-like-this must exclude the reference document itself")
	}
}

func TestFetchUnknownRefAddressIsNotFound(t *testing.T) {
	p, _ := newTestPool(t)

	_, _, err := p.Fetch(context.Background(), query.RefAddress{SegmentOrdinal: 99, DocOrdinal: 99})
	assert.Error(t, err)
}

// TestSearchBlocksUntilAdmissionPermitFrees drives §8 property 6: once
// maxConcurrency permits are held, an additional Search must suspend at
// admission until one is released.
func TestSearchBlocksUntilAdmissionPermitFrees(t *testing.T) {
	p, _ := newTestPoolWithConcurrency(t, 1)

	require.NoError(t, p.sem.Acquire(context.Background(), 1))

	done := make(chan error, 1)
	go func() {
		_, err := p.Search(context.Background(), query.Payload{
			Mode:  query.ModeNormal,
			Query: "programming",
			Limit: 10,
		}, nil)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Search must suspend at admission while the sole permit is held")
	case <-time.After(50 * time.Millisecond):
	}

	p.sem.Release(1)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Search did not complete after the admission permit was released")
	}
}

func TestFieldTermsSplitsStoredText(t *testing.T) {
	terms := FieldTerms(schema.Document{"title": "go programming language", "rank": 1})
	assert.Equal(t, []string{"go", "programming", "language"}, terms["title"])
	_, ok := terms["rank"]
	assert.False(t, ok, "non-string fields are not tokenized")
}
