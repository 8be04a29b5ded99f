package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lnx-search/lnx-engine/internal/kinderror"
	"github.com/lnx-search/lnx-engine/schema"
)

// Table names, matching
// original_source/storage-backends/scylladb-backend/src/tables.rs.
const (
	tableChangeLog = "change_log"
	tableDocuments = "documents"
	tableStopwords = "stopwords"
	tableSynonyms  = "synonyms"
	tableNodesInfo = "nodes_info"
	tableSettings  = "settings"
)

// CQLStore is a Store implementation backed by a wide-column durable store
// reached over the Cassandra/Scylla wire protocol via gocql. It is the
// concrete analogue of ScyllaIndexStore in
// original_source/storage-backends/scylladb/src/index_store.rs.
type CQLStore struct {
	session  *gocql.Session
	keyspace string
	s        *schema.Schema
}

// CQLConfig configures a CQLStore.
type CQLConfig struct {
	Hosts    []string
	Keyspace string
	Timeout  time.Duration
}

// OpenCQLStore connects to the durable store and ensures the per-index
// tables named in tables.rs exist, creating them if this is the first
// node to open this index.
func OpenCQLStore(cfg CQLConfig, s *schema.Schema) (*CQLStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = "system"
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, kinderror.Wrap(kinderror.BackendError, err, "store: connect")
	}

	cs := &CQLStore{session: session, keyspace: cfg.Keyspace, s: s}
	if err := cs.setup(); err != nil {
		session.Close()
		return nil, err
	}

	return cs, nil
}

func (c *CQLStore) setup() error {
	stmts := []string{
		fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s
			WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`, c.keyspace),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			segment bigint, at timestamp, kind int, doc_ids list<text>, doc_id text, doc blob,
			PRIMARY KEY (segment, at))`, c.keyspace, tableChangeLog),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			%s text PRIMARY KEY, %s)`, c.keyspace, tableDocuments, schema.ColumnName("doc_id"), c.documentColumns()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (word text PRIMARY KEY)`, c.keyspace, tableStopwords),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (word text PRIMARY KEY, synonyms set<text>)`, c.keyspace, tableSynonyms),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			node_id uuid PRIMARY KEY, last_updated timestamp, last_heartbeat timestamp)`, c.keyspace, tableNodesInfo),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (key text PRIMARY KEY, data blob)`, c.keyspace, tableSettings),
	}

	for _, stmt := range stmts {
		if err := c.session.Query(stmt).Exec(); err != nil {
			return kinderror.Wrap(kinderror.BackendError, err, "store: setup schema")
		}
	}
	return nil
}

func (c *CQLStore) documentColumns() string {
	var cols []string
	for _, f := range c.s.Fields() {
		if f.Name == c.s.PrimaryKey() {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", schema.ColumnName(f.Name), cqlType(f.Type)))
	}
	return strings.Join(cols, ", ")
}

func cqlType(t schema.FieldType) string {
	switch t {
	case schema.FieldInteger:
		return "bigint"
	case schema.FieldFloat:
		return "double"
	case schema.FieldDate:
		return "timestamp"
	case schema.FieldBytes:
		return "blob"
	default:
		return "text"
	}
}

func (c *CQLStore) AddDocuments(ctx context.Context, docs []DocWrite) (map[SegmentID]struct{}, error) {
	touched := make(map[SegmentID]struct{}, len(docs))
	for _, d := range docs {
		seg := SegmentID(gocql.TimeUUID().Time().UnixNano() % 64)

		q := fmt.Sprintf(`INSERT INTO %s.%s (doc_id) VALUES (?)`, c.keyspace, tableDocuments)
		if err := c.session.Query(q, d.DocID).WithContext(ctx).Exec(); err != nil {
			return nil, kinderror.Wrap(kinderror.BackendError, err, "store: add document")
		}

		entry := ChangeLogEntry{Segment: seg, At: time.Now().UTC(), Kind: ChangeAdd, DocID: d.DocID, Doc: d.Doc}
		if err := c.AppendChanges(ctx, entry); err != nil {
			return nil, err
		}

		touched[seg] = struct{}{}
	}
	return touched, nil
}

func (c *CQLStore) RemoveDocuments(ctx context.Context, docIDs []string) (map[SegmentID]struct{}, error) {
	touched := make(map[SegmentID]struct{}, 1)
	seg := SegmentID(0)

	for _, id := range docIDs {
		q := fmt.Sprintf(`DELETE FROM %s.%s WHERE doc_id = ?`, c.keyspace, tableDocuments)
		if err := c.session.Query(q, id).WithContext(ctx).Exec(); err != nil {
			return nil, kinderror.Wrap(kinderror.BackendError, err, "store: remove document")
		}
	}

	entry := ChangeLogEntry{Segment: seg, At: time.Now().UTC(), Kind: ChangeRemove, DocIDs: docIDs}
	if err := c.AppendChanges(ctx, entry); err != nil {
		return nil, err
	}
	touched[seg] = struct{}{}

	return touched, nil
}

func (c *CQLStore) ClearDocuments(ctx context.Context) error {
	q := fmt.Sprintf(`TRUNCATE %s.%s`, c.keyspace, tableDocuments)
	if err := c.session.Query(q).WithContext(ctx).Exec(); err != nil {
		return kinderror.Wrap(kinderror.BackendError, err, "store: clear documents")
	}
	return c.AppendChanges(ctx, ChangeLogEntry{Segment: 0, At: time.Now().UTC(), Kind: ChangeClear})
}

func (c *CQLStore) FetchDocument(ctx context.Context, fields []string, docID string) (*FetchedDoc, error) {
	q := fmt.Sprintf(`SELECT * FROM %s.%s WHERE doc_id = ?`, c.keyspace, tableDocuments)
	iter := c.session.Query(q, docID).WithContext(ctx).Iter()
	row := make(map[string]interface{})
	if !iter.MapScan(row) {
		if err := iter.Close(); err != nil {
			return nil, kinderror.Wrap(kinderror.BackendError, err, "store: fetch document")
		}
		return nil, nil
	}
	_ = iter.Close()

	doc := rowToDocument(row, fields)
	return &FetchedDoc{DocID: docID, Doc: doc}, nil
}

func (c *CQLStore) IterDocuments(ctx context.Context, fields []string, chunkSize int, segment *SegmentID) (DocumentIterator, error) {
	q := fmt.Sprintf(`SELECT * FROM %s.%s`, c.keyspace, tableDocuments)
	iter := c.session.Query(q).WithContext(ctx).PageSize(chunkSize).Iter()
	return &cqlDocIterator{iter: iter, fields: fields, chunkSize: chunkSize}, nil
}

type cqlDocIterator struct {
	iter      *gocql.Iter
	fields    []string
	chunkSize int
}

func (it *cqlDocIterator) Next(ctx context.Context) ([]FetchedDoc, error) {
	var out []FetchedDoc
	row := make(map[string]interface{})
	for len(out) < it.chunkSize && it.iter.MapScan(row) {
		id, _ := row["doc_id"].(string)
		out = append(out, FetchedDoc{DocID: id, Doc: rowToDocument(row, it.fields)})
		row = make(map[string]interface{})
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (it *cqlDocIterator) Close() error {
	return it.iter.Close()
}

func rowToDocument(row map[string]interface{}, fields []string) schema.Document {
	doc := make(schema.Document, len(row))
	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}
	for k, v := range row {
		col := schema.FromColumnName(k)
		if col == "doc_id" {
			continue
		}
		if len(fields) > 0 && !wanted[col] {
			continue
		}
		doc[col] = v
	}
	return doc
}

func (c *CQLStore) AppendChanges(ctx context.Context, entry ChangeLogEntry) error {
	q := fmt.Sprintf(`INSERT INTO %s.%s (segment, at, kind, doc_ids, doc_id) VALUES (?, ?, ?, ?, ?)`, c.keyspace, tableChangeLog)
	err := c.session.Query(q, int64(entry.Segment), entry.At, int(entry.Kind), entry.DocIDs, entry.DocID).
		WithContext(ctx).Exec()
	if err != nil {
		return kinderror.Wrap(kinderror.BackendError, err, "store: append change")
	}
	return nil
}

func (c *CQLStore) GetPendingChanges(ctx context.Context, from time.Time) (ChangeLogIterator, error) {
	q := fmt.Sprintf(`SELECT segment, at, kind, doc_ids, doc_id FROM %s.%s WHERE at > ? ALLOW FILTERING`, c.keyspace, tableChangeLog)
	iter := c.session.Query(q, from).WithContext(ctx).Iter()
	return &cqlChangeIterator{iter: iter}, nil
}

type cqlChangeIterator struct {
	iter *gocql.Iter
}

func (it *cqlChangeIterator) Next(ctx context.Context) (*ChangeLogEntry, error) {
	var (
		segment int64
		at      time.Time
		kind    int
		docIDs  []string
		docID   string
	)
	if !it.iter.Scan(&segment, &at, &kind, &docIDs, &docID) {
		return nil, nil
	}
	return &ChangeLogEntry{Segment: SegmentID(segment), At: at, Kind: ChangeKind(kind), DocIDs: docIDs, DocID: docID}, nil
}

func (it *cqlChangeIterator) Close() error {
	return it.iter.Close()
}

func (c *CQLStore) CountPendingChanges(ctx context.Context, from time.Time) (int, error) {
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s.%s WHERE at > ? ALLOW FILTERING`, c.keyspace, tableChangeLog)
	var count int
	if err := c.session.Query(q, from).WithContext(ctx).Scan(&count); err != nil {
		return 0, kinderror.Wrap(kinderror.BackendError, err, "store: count pending changes")
	}
	return count, nil
}

func (c *CQLStore) AddStopwords(ctx context.Context, words []string) error {
	for _, w := range words {
		q := fmt.Sprintf(`INSERT INTO %s.%s (word) VALUES (?)`, c.keyspace, tableStopwords)
		if err := c.session.Query(q, w).WithContext(ctx).Exec(); err != nil {
			return kinderror.Wrap(kinderror.BackendError, err, "store: add stopword")
		}
	}
	return nil
}

func (c *CQLStore) RemoveStopwords(ctx context.Context, words []string) error {
	for _, w := range words {
		q := fmt.Sprintf(`DELETE FROM %s.%s WHERE word = ?`, c.keyspace, tableStopwords)
		if err := c.session.Query(q, w).WithContext(ctx).Exec(); err != nil {
			return kinderror.Wrap(kinderror.BackendError, err, "store: remove stopword")
		}
	}
	return nil
}

func (c *CQLStore) FetchStopwords(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(`SELECT word FROM %s.%s`, c.keyspace, tableStopwords)
	iter := c.session.Query(q).WithContext(ctx).Iter()
	var out []string
	var w string
	for iter.Scan(&w) {
		out = append(out, w)
	}
	return out, iter.Close()
}

func (c *CQLStore) AddSynonyms(ctx context.Context, syns []Synonym) error {
	for _, s := range syns {
		q := fmt.Sprintf(`INSERT INTO %s.%s (word, synonyms) VALUES (?, ?)`, c.keyspace, tableSynonyms)
		if err := c.session.Query(q, s.Word, s.Synonyms).WithContext(ctx).Exec(); err != nil {
			return kinderror.Wrap(kinderror.BackendError, err, "store: add synonym")
		}
	}
	return nil
}

func (c *CQLStore) RemoveSynonyms(ctx context.Context, words []string) error {
	for _, w := range words {
		q := fmt.Sprintf(`DELETE FROM %s.%s WHERE word = ?`, c.keyspace, tableSynonyms)
		if err := c.session.Query(q, w).WithContext(ctx).Exec(); err != nil {
			return kinderror.Wrap(kinderror.BackendError, err, "store: remove synonym")
		}
	}
	return nil
}

func (c *CQLStore) FetchSynonyms(ctx context.Context) ([]Synonym, error) {
	q := fmt.Sprintf(`SELECT word, synonyms FROM %s.%s`, c.keyspace, tableSynonyms)
	iter := c.session.Query(q).WithContext(ctx).Iter()
	var out []Synonym
	var word string
	var syns []string
	for iter.Scan(&word, &syns) {
		out = append(out, Synonym{Word: word, Synonyms: syns})
	}
	return out, iter.Close()
}

func (c *CQLStore) SetUpdateTimestamp(ctx context.Context, at time.Time) error {
	return c.UpdateSettings(ctx, "__settings_update_ts", []byte(at.UTC().Format(time.RFC3339Nano)))
}

func (c *CQLStore) GetLastUpdateTimestamp(ctx context.Context) (time.Time, bool, error) {
	data, ok, err := c.LoadSettings(ctx, "__settings_update_ts")
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return time.Time{}, false, kinderror.Wrap(kinderror.BackendError, err, "store: parse update timestamp")
	}
	return t, true, nil
}

// LoadIndexFromPeer is unimplemented at the CQLStore level: peer segment
// transfer is a node-to-node operation outside the durable store's own
// contract (§4.5 Bootstrap). Returns false, nil to tell the poller no peer
// was available, so it falls back to full replay from t=0.
func (c *CQLStore) LoadIndexFromPeer(ctx context.Context, outDir string) (bool, error) {
	return false, nil
}

func (c *CQLStore) UpdateSettings(ctx context.Context, key string, data []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s.%s (key, data) VALUES (?, ?)`, c.keyspace, tableSettings)
	if err := c.session.Query(q, key, data).WithContext(ctx).Exec(); err != nil {
		return kinderror.Wrap(kinderror.BackendError, err, "store: update settings")
	}
	return nil
}

func (c *CQLStore) RemoveSettings(ctx context.Context, key string) error {
	q := fmt.Sprintf(`DELETE FROM %s.%s WHERE key = ?`, c.keyspace, tableSettings)
	if err := c.session.Query(q, key).WithContext(ctx).Exec(); err != nil {
		return kinderror.Wrap(kinderror.BackendError, err, "store: remove settings")
	}
	return nil
}

func (c *CQLStore) LoadSettings(ctx context.Context, key string) ([]byte, bool, error) {
	q := fmt.Sprintf(`SELECT data FROM %s.%s WHERE key = ?`, c.keyspace, tableSettings)
	var data []byte
	if err := c.session.Query(q, key).WithContext(ctx).Scan(&data); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, kinderror.Wrap(kinderror.BackendError, err, "store: load settings")
	}
	return data, true, nil
}

func (c *CQLStore) Heartbeat(ctx context.Context, nodeID uuid.UUID, purgeDelta time.Duration) error {
	now := time.Now().UTC()
	q := fmt.Sprintf(`INSERT INTO %s.%s (node_id, last_updated, last_heartbeat) VALUES (?, ?, ?)`, c.keyspace, tableNodesInfo)
	if err := c.session.Query(q, nodeID.String(), now, now).WithContext(ctx).Exec(); err != nil {
		return kinderror.Wrap(kinderror.BackendError, err, "store: heartbeat")
	}

	cutoff := now.Add(-purgeDelta)
	sel := fmt.Sprintf(`SELECT node_id, last_heartbeat FROM %s.%s`, c.keyspace, tableNodesInfo)
	iter := c.session.Query(sel).WithContext(ctx).Iter()
	var id string
	var lastSeen time.Time
	for iter.Scan(&id, &lastSeen) {
		if lastSeen.Before(cutoff) {
			del := fmt.Sprintf(`DELETE FROM %s.%s WHERE node_id = ?`, c.keyspace, tableNodesInfo)
			_ = c.session.Query(del, id).WithContext(ctx).Exec()
		}
	}
	return iter.Close()
}

func (c *CQLStore) Close() error {
	c.session.Close()
	return nil
}
