// Package registry is the Index Store & Registry (§4.6): a process-wide
// map of index name to a running IndexStore — the durable-store handle,
// local inverted index, writer actor, and poller bundled together.
//
// Grounded on original_source/lnx-storage/src/stores.rs's IndexStore
// (the Deref-to-DocStore wrapper carrying ctx/index/store/meta_store
// together) and on orcaman/concurrent-map/v2 for the sharded registry
// map (mined from the rest of the retrieved pack; the teacher itself has
// no direct analogue of a cluster-wide name registry).
package registry

import (
	"context"
	"fmt"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/blevesearch/bleve/v2"

	"github.com/lnx-search/lnx-engine/fuzzy"
	"github.com/lnx-search/lnx-engine/index"
	"github.com/lnx-search/lnx-engine/internal/kinderror"
	"github.com/lnx-search/lnx-engine/meta"
	"github.com/lnx-search/lnx-engine/poller"
	"github.com/lnx-search/lnx-engine/query"
	"github.com/lnx-search/lnx-engine/reader"
	"github.com/lnx-search/lnx-engine/store"
	"github.com/lnx-search/lnx-engine/writer"
)

// IndexStore bundles everything a running index needs (§4.6): the
// durable store handle, the local bleve index, the writer actor, the
// reader pool, the poller, and the local meta store.
type IndexStore struct {
	Ctx    *index.Context
	Index  bleve.Index
	Store  store.Store
	Meta   *meta.Store
	Writer *writer.Writer
	Reader *reader.Pool
	Poller *poller.Poller

	setConjunction bool
	cancel         context.CancelFunc
}

// StoreSetting caches a settings blob both locally and in the durable store
// (§4.6 Settings passthrough).
func (s *IndexStore) StoreSetting(ctx context.Context, key string, data []byte) error {
	if err := s.Meta.StoreSettings(key, data); err != nil {
		return err
	}
	return s.Store.UpdateSettings(ctx, key, data)
}

// LoadSetting reads a cached settings blob, falling back to the durable
// store on a local cache miss (§4.6 Settings passthrough).
func (s *IndexStore) LoadSetting(ctx context.Context, key string) ([]byte, bool, error) {
	if data, ok, err := s.Meta.LoadSettings(key); err != nil {
		return nil, false, err
	} else if ok {
		return data, true, nil
	}
	return s.Store.LoadSettings(ctx, key)
}

// RemoveSetting removes a settings blob from both the local cache and
// the durable store.
func (s *IndexStore) RemoveSetting(ctx context.Context, key string) error {
	if err := s.Meta.RemoveSettings(key); err != nil {
		return err
	}
	return s.Store.RemoveSettings(ctx, key)
}

// AddStopwords adds words to the durable stopword list, then refreshes
// the query builder and fast-fuzzy preprocessor so the change takes
// effect on the next search or write (§3 Data model: "on change").
func (s *IndexStore) AddStopwords(ctx context.Context, words []string) error {
	if err := s.Store.AddStopwords(ctx, words); err != nil {
		return err
	}
	return s.refreshSettings(ctx)
}

// RemoveStopwords removes words from the durable stopword list and
// refreshes the builder/preprocessor.
func (s *IndexStore) RemoveStopwords(ctx context.Context, words []string) error {
	if err := s.Store.RemoveStopwords(ctx, words); err != nil {
		return err
	}
	return s.refreshSettings(ctx)
}

// AddSynonyms adds synonym entries to the durable store and refreshes
// the query builder so the new entries are loaded immediately (§3 Data
// model: synonyms are "loaded into the query builder at construction
// and on change").
func (s *IndexStore) AddSynonyms(ctx context.Context, syns []store.Synonym) error {
	if err := s.Store.AddSynonyms(ctx, syns); err != nil {
		return err
	}
	return s.refreshSettings(ctx)
}

// RemoveSynonyms removes synonym entries for words from the durable
// store and refreshes the query builder.
func (s *IndexStore) RemoveSynonyms(ctx context.Context, words []string) error {
	if err := s.Store.RemoveSynonyms(ctx, words); err != nil {
		return err
	}
	return s.refreshSettings(ctx)
}

// refreshSettings re-fetches stopwords and synonyms from the durable
// store, rebuilds the query builder and fast-fuzzy preprocessor, and
// atomically swaps both into the running reader pool and writer actor.
// It also records the settings-mutation timestamp in both the local
// meta store and the durable store, kept separate from the poller's
// watermark (see meta.Store.SetLastSettingsUpdate).
func (s *IndexStore) refreshSettings(ctx context.Context) error {
	stopwords, err := s.Store.FetchStopwords(ctx)
	if err != nil {
		return err
	}
	synonyms, err := s.Store.FetchSynonyms(ctx)
	if err != nil {
		return err
	}

	builder := query.NewBuilder(s.Ctx.Schema(), s.setConjunction, stopwords, toQuerySynonyms(synonyms))
	s.Reader.SetBuilder(builder)
	s.Writer.SetPreprocessor(fuzzy.NewPreprocessor(stopwords))

	now := time.Now().UTC()
	if err := s.Meta.SetLastSettingsUpdate(now); err != nil {
		return err
	}
	return s.Store.SetUpdateTimestamp(ctx, now)
}

func toQuerySynonyms(syns []store.Synonym) []query.Synonym {
	out := make([]query.Synonym, len(syns))
	for i, s := range syns {
		out[i] = query.Synonym{Word: s.Word, Synonyms: s.Synonyms}
	}
	return out
}

// Destroy stops the poller and writer, then deletes the on-disk
// directory (§4.6: "stops poller and writer, then deletes the on-disk
// directory").
func (s *IndexStore) Destroy(basePath string) error {
	s.cancel()
	s.Writer.Shutdown()
	if err := s.Index.Close(); err != nil {
		return kinderror.Wrap(kinderror.Internal, err, "registry: close local index")
	}
	if err := s.Meta.Close(); err != nil {
		return kinderror.Wrap(kinderror.Internal, err, "registry: close meta store")
	}
	if err := s.Store.Close(); err != nil {
		return kinderror.Wrap(kinderror.Internal, err, "registry: close durable store")
	}
	return s.Ctx.ClearLocalData(basePath)
}

// Registry is the process-wide index_name → IndexStore map (§4.6).
type Registry struct {
	entries cmap.ConcurrentMap[string, *IndexStore]
}

func New() *Registry {
	return &Registry{entries: cmap.New[*IndexStore]()}
}

// Config bundles the knobs Open needs beyond the index context itself.
type Config struct {
	BasePath       string
	MaxConcurrency int
	Stopwords      []string
	SetConjunction bool
}

// Open implements §4.6 `new`: it allocates the local inverted index,
// starts the writer and poller, and inserts the running IndexStore into
// the registry. Inserting a duplicate name is rejected.
func (r *Registry) Open(ctx context.Context, ictx *index.Context, backend store.Store, cfg Config) (*IndexStore, error) {
	if _, exists := r.entries.Get(ictx.Name()); exists {
		return nil, kinderror.New(kinderror.Internal, fmt.Errorf("registry: index %q already open", ictx.Name()))
	}

	idx, err := ictx.OpenOrCreate(cfg.BasePath)
	if err != nil {
		return nil, err
	}

	metaStore, err := meta.Open(ictx.MetaDir(cfg.BasePath) + "/local.db")
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	log := zerolog.Nop()

	stopwords := cfg.Stopwords
	if backendWords, err := backend.FetchStopwords(ctx); err == nil && len(backendWords) > 0 {
		stopwords = backendWords
	}
	synonyms, err := backend.FetchSynonyms(ctx)
	if err != nil {
		_ = metaStore.Close()
		_ = idx.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	pre := fuzzy.NewPreprocessor(stopwords)
	w := writer.New(runCtx, ictx.Name(), idx, ictx.Schema(), pre, log)

	builder := query.NewBuilder(ictx.Schema(), cfg.SetConjunction, stopwords, toQuerySynonyms(synonyms))
	rp := reader.New(ictx.Name(), idx, ictx.Schema(), builder, cfg.MaxConcurrency, ictx.ID())

	pm := poller.Mode{
		Continuous: ictx.PollingMode().Continuous,
		Interval:   time.Duration(ictx.PollingMode().Interval),
	}
	pl := poller.New(ictx.Name(), ictx.NodeID(), backend, metaStore, w, pm, ictx.Schema().PrimaryKey(), log)

	is := &IndexStore{
		Ctx:            ictx,
		Index:          idx,
		Store:          backend,
		Meta:           metaStore,
		Writer:         w,
		Reader:         rp,
		Poller:         pl,
		setConjunction: cfg.SetConjunction,
		cancel:         cancel,
	}

	r.entries.Set(ictx.Name(), is)

	go func() {
		if err := pl.Run(runCtx, ictx.DataDir(cfg.BasePath)); err != nil {
			log.Error().Str("index", ictx.Name()).Err(err).Msg("registry: poller exited with error")
		}
	}()

	return is, nil
}

// Get returns the running IndexStore for name, if any (§4.6 `get`).
func (r *Registry) Get(name string) (*IndexStore, bool) {
	return r.entries.Get(name)
}

// Remove removes name from the registry and returns its IndexStore so
// the caller can Destroy it (§4.6 `remove`).
func (r *Registry) Remove(name string) (*IndexStore, bool) {
	is, ok := r.entries.Get(name)
	if !ok {
		return nil, false
	}
	r.entries.Remove(name)
	return is, true
}

// Names lists every currently-open index name.
func (r *Registry) Names() []string {
	return r.entries.Keys()
}
