package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnx-search/lnx-engine/store"
)

func TestPermissionHas(t *testing.T) {
	p := PermSearchIndex | PermModifyDocuments
	assert.True(t, p.Has(PermSearchIndex))
	assert.False(t, p.Has(PermModifyAuth))
}

func TestRequiredPermissionTable(t *testing.T) {
	cases := []struct {
		path string
		want Permission
		ok   bool
	}{
		{"/auth", PermModifyAuth, true},
		{"/auth/abc-123", PermModifyAuth, true},
		{"/indexes", PermModifyEngine, true},
		{"/indexes/books/search", PermSearchIndex, true},
		{"/indexes/books/stopwords", PermModifyStopWords, true},
		{"/indexes/books/documents", PermModifyDocuments, true},
		{"/unknown", 0, false},
	}
	for _, tc := range cases {
		got, ok := RequiredPermission(tc.path)
		assert.Equal(t, tc.ok, ok, tc.path)
		if ok {
			assert.Equal(t, tc.want, got, tc.path)
		}
	}
}

func TestIssueLookupRevoke(t *testing.T) {
	ms := store.NewMemoryStore()
	mgr := NewManager(ms)
	ctx := context.Background()

	tok, err := mgr.Issue(ctx, "ci", PermSearchIndex, "", nil)
	require.NoError(t, err)

	got, err := mgr.Lookup(ctx, tok.ID.String())
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.True(t, got.Permissions.Has(PermSearchIndex))

	require.NoError(t, mgr.Revoke(ctx, tok.ID))

	_, err = mgr.Lookup(ctx, tok.ID.String())
	assert.Error(t, err, "a revoked token must fail lookup")
}

func TestIssueWithUserAndAllowedIndexesRoundTrips(t *testing.T) {
	ms := store.NewMemoryStore()
	mgr := NewManager(ms)
	ctx := context.Background()

	tok, err := mgr.Issue(ctx, "ci", PermSearchIndex, "alice", []string{"books", "movies"})
	require.NoError(t, err)
	assert.Equal(t, "alice", tok.User)
	assert.Equal(t, []string{"books", "movies"}, tok.AllowedIndexes)

	got, err := mgr.Lookup(ctx, tok.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, []string{"books", "movies"}, got.AllowedIndexes)
}

func TestTokenAllowsIndex(t *testing.T) {
	unrestricted := &Token{}
	assert.True(t, unrestricted.AllowsIndex("anything"))

	restricted := &Token{AllowedIndexes: []string{"books", "movies"}}
	assert.True(t, restricted.AllowsIndex("books"))
	assert.False(t, restricted.AllowsIndex("music"))
}
