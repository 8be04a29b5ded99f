// Package store defines the Durable Store collaborator contract (§6): the
// trait-shaped interface the core consumes for documents, the change-log,
// and per-index meta (stopwords, synonyms, settings, heartbeats). Concrete
// backends (a gocql-backed wide-column implementation, or an in-memory
// fake for tests) implement Store; the core knows nothing of their wire
// format.
//
// Grounded on original_source/storage-backends/scylladb/src/index_store.rs
// (trait shape) and .../scylladb-backend/src/tables.rs (table layout).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lnx-search/lnx-engine/schema"
)

// SegmentID is the opaque, server-assigned grouping handle documents are
// batched under for replication (§3 Document).
type SegmentID int64

// ChangeKind distinguishes the three kinds of change-log entry (§3
// Change-log entry).
type ChangeKind int

const (
	ChangeAdd ChangeKind = iota
	ChangeRemove
	ChangeClear
)

// ChangeLogEntry is a single partitioned, ordered mutation record (§3).
// Partition key is Segment; within a segment entries are ordered by At,
// which must be strictly increasing and monotonic per writer.
type ChangeLogEntry struct {
	Segment SegmentID
	At      time.Time
	Kind    ChangeKind

	// DocIDs carries the affected primary keys for ChangeRemove. For
	// ChangeAdd, Doc is populated instead (a full document); for
	// ChangeClear neither is set.
	DocIDs []string
	Doc    schema.Document
	DocID  string
}

// Synonym is a single word and its synonym set, as replicated through the
// durable store's meta surface.
type Synonym struct {
	Word     string
	Synonyms []string
}

// Store is the durable-store collaborator contract (§6). All methods are
// fallible and take a context for cancellation; implementations must
// treat connection/backend failures as kinderror.BackendError.
type Store interface {
	// Documents.
	AddDocuments(ctx context.Context, docs []DocWrite) (map[SegmentID]struct{}, error)
	RemoveDocuments(ctx context.Context, docIDs []string) (map[SegmentID]struct{}, error)
	ClearDocuments(ctx context.Context) error
	FetchDocument(ctx context.Context, fields []string, docID string) (*FetchedDoc, error)
	IterDocuments(ctx context.Context, fields []string, chunkSize int, segment *SegmentID) (DocumentIterator, error)

	// Change-log.
	AppendChanges(ctx context.Context, entry ChangeLogEntry) error
	GetPendingChanges(ctx context.Context, from time.Time) (ChangeLogIterator, error)
	CountPendingChanges(ctx context.Context, from time.Time) (int, error)

	// Meta: stopwords / synonyms.
	AddStopwords(ctx context.Context, words []string) error
	RemoveStopwords(ctx context.Context, words []string) error
	FetchStopwords(ctx context.Context) ([]string, error)
	AddSynonyms(ctx context.Context, syns []Synonym) error
	RemoveSynonyms(ctx context.Context, words []string) error
	FetchSynonyms(ctx context.Context) ([]Synonym, error)

	// Meta: replication / settings / peers.
	SetUpdateTimestamp(ctx context.Context, at time.Time) error
	GetLastUpdateTimestamp(ctx context.Context) (time.Time, bool, error)
	LoadIndexFromPeer(ctx context.Context, outDir string) (bool, error)
	UpdateSettings(ctx context.Context, key string, data []byte) error
	RemoveSettings(ctx context.Context, key string) error
	LoadSettings(ctx context.Context, key string) ([]byte, bool, error)

	// Heartbeat (supplemented feature, see SPEC_FULL.md): advertises this
	// node as live and purges peer rows older than purgeDelta.
	Heartbeat(ctx context.Context, nodeID uuid.UUID, purgeDelta time.Duration) error

	Close() error
}

// DocWrite is a single document write, keyed by its primary key (§3).
type DocWrite struct {
	DocID string
	Doc   schema.Document
}

// FetchedDoc is the result of FetchDocument: the document's storage
// identity plus its (possibly field-filtered) content.
type FetchedDoc struct {
	DocID   string
	Segment SegmentID
	Doc     schema.Document
}

// DocumentIterator yields chunks of documents, matching the original's
// chunked async iterator (§6 iter_documents).
type DocumentIterator interface {
	Next(ctx context.Context) ([]FetchedDoc, error)
	Close() error
}

// ChangeLogIterator yields change-log entries in (segment, timestamp)
// order, matching §6 get_pending_changes.
type ChangeLogIterator interface {
	Next(ctx context.Context) (*ChangeLogEntry, error)
	Close() error
}
