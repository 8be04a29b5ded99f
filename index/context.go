// Package index holds the Index Context: the immutable per-index identity
// and schema binding, and the on-disk layout helpers for a local index.
//
// Grounded on original_source/lnx-common/src/index/context.rs.
package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/lnx-search/lnx-engine/schema"
)

// keyspacePrefix namespaces the derived keyspace identifier so it does not
// collide with other uses of the durable store's namespace.
const keyspacePrefix = "lnx"

// processNodeID is generated once per process and shared by every Context
// created in it (§3: the node identifier is fresh per process).
var processNodeID = uuid.New()

// PollingMode selects how the Change-Log Poller observes the durable
// store, per §4.5.
type PollingMode struct {
	// Continuous polls the durable store on a fixed interval when true;
	// when false the poller only runs when externally triggered
	// (OnDemand).
	Continuous bool

	// Interval is the polling period for Continuous mode. Clamped to a
	// 10ms floor by the poller package (§9 open question (b)).
	Interval int64 // nanoseconds; kept as an int64 so Context stays comparable
}

// Context is the immutable descriptor for a single logical index,
// identical cluster-wide for any node serving the same index name (§3
// Index Context).
type Context struct {
	name          string
	schema        *schema.Schema
	pollingMode   PollingMode
	storageConfig []byte // opaque JSON, nil if unset

	// nodeID is fresh per process (§3), used to identify this node's row
	// in the durable store's heartbeat table.
	nodeID uuid.UUID
}

// New constructs a Context for the given index name and schema. storageConfig
// is an opaque JSON document forwarded verbatim to the durable store
// backend; pass nil if the backend needs none.
func New(name string, s *schema.Schema, mode PollingMode, storageConfig []byte) (*Context, error) {
	if name == "" {
		return nil, fmt.Errorf("index: name must not be empty")
	}
	if s == nil {
		return nil, fmt.Errorf("index: schema must not be nil")
	}

	return &Context{
		name:          name,
		schema:        s,
		pollingMode:   mode,
		storageConfig: storageConfig,
		nodeID:        processNodeID,
	}, nil
}

func (c *Context) Name() string              { return c.name }
func (c *Context) Schema() *schema.Schema    { return c.schema }
func (c *Context) PollingMode() PollingMode  { return c.pollingMode }
func (c *Context) StorageConfig() []byte     { return c.storageConfig }
func (c *Context) NodeID() uuid.UUID         { return c.nodeID }

// ID is a stable 32-bit hash of the index name, used to name the on-disk
// directory and the remote keyspace (§3).
func (c *Context) ID() uint32 {
	return uint32(xxhash.Sum64String(c.name))
}

// Keyspace is the durable store's namespace for this index, derived from
// the index id.
func (c *Context) Keyspace() string {
	return fmt.Sprintf("%s_%d", keyspacePrefix, c.ID())
}

// DataDir returns the on-disk directory for the local inverted index
// (§6 On-disk layout): {base}/{index_id}/data.
func (c *Context) DataDir(basePath string) string {
	return filepath.Join(basePath, fmt.Sprint(c.ID()), "data")
}

// MetaDir returns the on-disk directory for the local embedded meta store:
// {base}/{index_id}/meta.
func (c *Context) MetaDir(basePath string) string {
	return filepath.Join(basePath, fmt.Sprint(c.ID()), "meta")
}

// EnsureDirs creates both the data and meta directories if they do not
// already exist, per "Created on first access" (§3 Local inverted index).
func (c *Context) EnsureDirs(basePath string) error {
	if err := os.MkdirAll(c.DataDir(basePath), 0o755); err != nil {
		return fmt.Errorf("index: create data dir: %w", err)
	}
	if err := os.MkdirAll(c.MetaDir(basePath), 0o755); err != nil {
		return fmt.Errorf("index: create meta dir: %w", err)
	}
	return nil
}

// ClearLocalData removes {base}/{index_id} entirely, atomically from the
// caller's perspective (§3, §6): this is the backing operation for
// destroy().
func (c *Context) ClearLocalData(basePath string) error {
	return os.RemoveAll(filepath.Join(basePath, fmt.Sprint(c.ID())))
}
