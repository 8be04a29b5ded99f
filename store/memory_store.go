package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lnx-search/lnx-engine/schema"
)

// MemoryStore is an in-process fake implementing Store, used by tests that
// exercise the writer/poller/reader without a live durable store. It
// reproduces the same ordering and idempotence guarantees (§3, §8.4).
type MemoryStore struct {
	mu sync.Mutex

	docs      map[string]DocWrite
	changeLog []ChangeLogEntry
	stopwords map[string]struct{}
	synonyms  map[string][]string
	settings  map[string][]byte
	updateTS  *time.Time
	heartbeat map[uuid.UUID]time.Time
	nextSeg   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]DocWrite),
		stopwords: make(map[string]struct{}),
		synonyms:  make(map[string][]string),
		settings:  make(map[string][]byte),
		heartbeat: make(map[uuid.UUID]time.Time),
	}
}

func (m *MemoryStore) AddDocuments(ctx context.Context, docs []DocWrite) (map[SegmentID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[SegmentID]struct{}, len(docs))
	for _, d := range docs {
		seg := SegmentID(m.nextSeg % 8)
		m.nextSeg++

		m.docs[d.DocID] = d
		m.changeLog = append(m.changeLog, ChangeLogEntry{
			Segment: seg, At: time.Now().UTC(), Kind: ChangeAdd, DocID: d.DocID, Doc: d.Doc,
		})
		touched[seg] = struct{}{}
	}
	return touched, nil
}

func (m *MemoryStore) RemoveDocuments(ctx context.Context, docIDs []string) (map[SegmentID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seg := SegmentID(m.nextSeg % 8)
	m.nextSeg++

	for _, id := range docIDs {
		delete(m.docs, id)
	}
	m.changeLog = append(m.changeLog, ChangeLogEntry{
		Segment: seg, At: time.Now().UTC(), Kind: ChangeRemove, DocIDs: docIDs,
	})
	return map[SegmentID]struct{}{seg: {}}, nil
}

func (m *MemoryStore) ClearDocuments(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs = make(map[string]DocWrite)
	m.changeLog = append(m.changeLog, ChangeLogEntry{Segment: 0, At: time.Now().UTC(), Kind: ChangeClear})
	return nil
}

func (m *MemoryStore) FetchDocument(ctx context.Context, fields []string, docID string) (*FetchedDoc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[docID]
	if !ok {
		return nil, nil
	}
	return &FetchedDoc{DocID: d.DocID, Doc: filterFields(d.Doc, fields)}, nil
}

func (m *MemoryStore) IterDocuments(ctx context.Context, fields []string, chunkSize int, segment *SegmentID) (DocumentIterator, error) {
	m.mu.Lock()
	var all []FetchedDoc
	for _, d := range m.docs {
		all = append(all, FetchedDoc{DocID: d.DocID, Doc: filterFields(d.Doc, fields)})
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].DocID < all[j].DocID })

	return &memDocIterator{docs: all, chunkSize: chunkSize}, nil
}

type memDocIterator struct {
	docs      []FetchedDoc
	chunkSize int
	pos       int
}

func (it *memDocIterator) Next(ctx context.Context) ([]FetchedDoc, error) {
	if it.pos >= len(it.docs) {
		return nil, nil
	}
	end := it.pos + it.chunkSize
	if end > len(it.docs) {
		end = len(it.docs)
	}
	chunk := it.docs[it.pos:end]
	it.pos = end
	return chunk, nil
}

func (it *memDocIterator) Close() error { return nil }

func filterFields(d schema.Document, fields []string) schema.Document {
	if len(fields) == 0 {
		return d.Clone()
	}
	out := make(schema.Document, len(fields))
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = v
		}
	}
	return out
}

func (m *MemoryStore) AppendChanges(ctx context.Context, entry ChangeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeLog = append(m.changeLog, entry)
	return nil
}

func (m *MemoryStore) GetPendingChanges(ctx context.Context, from time.Time) (ChangeLogIterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ChangeLogEntry
	for _, e := range m.changeLog {
		if e.At.After(from) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Segment != out[j].Segment {
			return out[i].Segment < out[j].Segment
		}
		return out[i].At.Before(out[j].At)
	})
	return &memChangeIterator{entries: out}, nil
}

type memChangeIterator struct {
	entries []ChangeLogEntry
	pos     int
}

func (it *memChangeIterator) Next(ctx context.Context) (*ChangeLogEntry, error) {
	if it.pos >= len(it.entries) {
		return nil, nil
	}
	e := it.entries[it.pos]
	it.pos++
	return &e, nil
}

func (it *memChangeIterator) Close() error { return nil }

func (m *MemoryStore) CountPendingChanges(ctx context.Context, from time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, e := range m.changeLog {
		if e.At.After(from) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) AddStopwords(ctx context.Context, words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range words {
		m.stopwords[w] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) RemoveStopwords(ctx context.Context, words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range words {
		delete(m.stopwords, w)
	}
	return nil
}

func (m *MemoryStore) FetchStopwords(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.stopwords))
	for w := range m.stopwords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) AddSynonyms(ctx context.Context, syns []Synonym) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range syns {
		m.synonyms[s.Word] = s.Synonyms
	}
	return nil
}

func (m *MemoryStore) RemoveSynonyms(ctx context.Context, words []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range words {
		delete(m.synonyms, w)
	}
	return nil
}

func (m *MemoryStore) FetchSynonyms(ctx context.Context) ([]Synonym, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Synonym, 0, len(m.synonyms))
	for w, syns := range m.synonyms {
		out = append(out, Synonym{Word: w, Synonyms: syns})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out, nil
}

func (m *MemoryStore) SetUpdateTimestamp(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := at
	m.updateTS = &t
	return nil
}

func (m *MemoryStore) GetLastUpdateTimestamp(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateTS == nil {
		return time.Time{}, false, nil
	}
	return *m.updateTS, true, nil
}

func (m *MemoryStore) LoadIndexFromPeer(ctx context.Context, outDir string) (bool, error) {
	return false, nil
}

func (m *MemoryStore) UpdateSettings(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.settings[key] = cp
	return nil
}

func (m *MemoryStore) RemoveSettings(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}

func (m *MemoryStore) LoadSettings(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Heartbeat(ctx context.Context, nodeID uuid.UUID, purgeDelta time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.heartbeat[nodeID] = now
	for id, seen := range m.heartbeat {
		if now.Sub(seen) > purgeDelta {
			delete(m.heartbeat, id)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
