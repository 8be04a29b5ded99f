package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"

	"github.com/lnx-search/lnx-engine/internal/kinderror"
	"github.com/lnx-search/lnx-engine/schema"
)

// schemaFileName records the schema a local index was created with, so a
// later open can detect drift and fail fast with SchemaMismatch.
const schemaFileName = "lnx-schema.json"

// OpenOrCreate opens the on-disk bleve index for ctx under basePath,
// creating it (and writing the schema fingerprint) on first access. If the
// index already exists, its recorded schema is compared against ctx's
// current schema; any mismatch is a fatal SchemaMismatch (§3 Schema
// invariant, §7).
func (c *Context) OpenOrCreate(basePath string) (bleve.Index, error) {
	if err := c.EnsureDirs(basePath); err != nil {
		return nil, err
	}

	dataDir := c.DataDir(basePath)
	fingerprintPath := filepath.Join(filepath.Dir(dataDir), schemaFileName)

	if _, err := os.Stat(filepath.Join(dataDir, "index_meta.json")); err == nil {
		if err := c.checkSchemaFingerprint(fingerprintPath); err != nil {
			return nil, err
		}
		idx, err := bleve.Open(dataDir)
		if err != nil {
			return nil, fmt.Errorf("index: open %s: %w", dataDir, err)
		}
		return idx, nil
	}

	idx, err := bleve.New(dataDir, c.schema.ToBleveMapping())
	if err != nil {
		return nil, fmt.Errorf("index: create %s: %w", dataDir, err)
	}

	if err := c.writeSchemaFingerprint(fingerprintPath); err != nil {
		_ = idx.Close()
		return nil, err
	}

	return idx, nil
}

func (c *Context) writeSchemaFingerprint(path string) error {
	data, err := schema.Fingerprint(c.schema)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Context) checkSchemaFingerprint(path string) error {
	want, err := schema.Fingerprint(c.schema)
	if err != nil {
		return err
	}

	got, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Pre-existing index from before fingerprinting was introduced;
		// accept it rather than treat it as a mismatch.
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: read schema fingerprint: %w", err)
	}

	if string(got) != string(want) {
		return kinderror.New(kinderror.SchemaMismatch,
			fmt.Errorf("index: on-disk schema for %q does not match the declared schema", c.name))
	}
	return nil
}
