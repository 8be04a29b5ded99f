package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lnx-search/lnx-engine/index"
	"github.com/lnx-search/lnx-engine/schema"
	"github.com/lnx-search/lnx-engine/store"
)

func testContext(t *testing.T, name string) *index.Context {
	t.Helper()
	s, err := schema.New("id", schema.Field{Name: "id", Type: schema.FieldText, Indexed: true, Stored: true})
	require.NoError(t, err)
	ictx, err := index.New(name, s, index.PollingMode{Continuous: false}, nil)
	require.NoError(t, err)
	return ictx
}

func TestOpenInsertsAndGetReturnsIt(t *testing.T) {
	r := New()
	ictx := testContext(t, "books")
	backend := store.NewMemoryStore()
	base := t.TempDir()

	is, err := r.Open(context.Background(), ictx, backend, Config{BasePath: base, MaxConcurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = is.Destroy(base) })

	got, ok := r.Get("books")
	require.True(t, ok)
	assert.Same(t, is, got)
}

func TestOpenRejectsDuplicateName(t *testing.T) {
	r := New()
	ictx := testContext(t, "books")
	backend := store.NewMemoryStore()
	base := t.TempDir()

	is, err := r.Open(context.Background(), ictx, backend, Config{BasePath: base, MaxConcurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = is.Destroy(base) })

	_, err = r.Open(context.Background(), ictx, backend, Config{BasePath: base, MaxConcurrency: 1})
	assert.Error(t, err)
}

func TestRemoveThenDestroyClearsOnDiskData(t *testing.T) {
	r := New()
	ictx := testContext(t, "books")
	backend := store.NewMemoryStore()
	base := t.TempDir()

	_, err := r.Open(context.Background(), ictx, backend, Config{BasePath: base, MaxConcurrency: 1})
	require.NoError(t, err)

	is, ok := r.Remove("books")
	require.True(t, ok)

	require.NoError(t, is.Destroy(base))

	_, ok = r.Get("books")
	assert.False(t, ok)
	assert.NoDirExists(t, ictx.DataDir(base))
	assert.NoDirExists(t, ictx.MetaDir(base))
}

func TestAddSynonymsPersistsAndRecordsTimestamp(t *testing.T) {
	r := New()
	ictx := testContext(t, "books")
	backend := store.NewMemoryStore()
	base := t.TempDir()

	is, err := r.Open(context.Background(), ictx, backend, Config{BasePath: base, MaxConcurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = is.Destroy(base) })

	_, _, err = is.Meta.LastSettingsUpdate()
	require.NoError(t, err)

	require.NoError(t, is.AddSynonyms(context.Background(), []store.Synonym{{Word: "rust", Synonyms: []string{"ferris"}}}))

	backendSynonyms, err := backend.FetchSynonyms(context.Background())
	require.NoError(t, err)
	require.Len(t, backendSynonyms, 1)
	assert.Equal(t, "rust", backendSynonyms[0].Word)

	_, ok, err := is.Meta.LastSettingsUpdate()
	require.NoError(t, err)
	assert.True(t, ok, "AddSynonyms must persist a settings-mutation timestamp")

	_, ok, err = backend.GetLastUpdateTimestamp(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "AddSynonyms must propagate the settings-mutation timestamp to the durable store")
}

func TestAddStopwordsPersistsToDurableStore(t *testing.T) {
	r := New()
	ictx := testContext(t, "books")
	backend := store.NewMemoryStore()
	base := t.TempDir()

	is, err := r.Open(context.Background(), ictx, backend, Config{BasePath: base, MaxConcurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = is.Destroy(base) })

	require.NoError(t, is.AddStopwords(context.Background(), []string{"the"}))

	words, err := backend.FetchStopwords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"the"}, words)
}

func TestSettingRoundTripsThroughLocalCache(t *testing.T) {
	r := New()
	ictx := testContext(t, "books")
	backend := store.NewMemoryStore()
	base := t.TempDir()

	is, err := r.Open(context.Background(), ictx, backend, Config{BasePath: base, MaxConcurrency: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = is.Destroy(base) })

	require.NoError(t, is.StoreSetting(context.Background(), "stopwords", []byte(`["for"]`)))

	data, ok, err := is.LoadSetting(context.Background(), "stopwords")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["for"]`, string(data))
}
