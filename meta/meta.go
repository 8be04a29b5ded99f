// Package meta is the local embedded meta store: the replication
// watermark, cached settings blobs, and the last-applied-timestamp
// bookkeeping the Change-Log Poller and Registry need beside the local
// inverted index.
//
// Grounded on original_source/lnx-storage/src/stores.rs's IndexStore.meta_store
// (a sled::Db); the corpus's closest equivalent embedded KV store is
// go.etcd.io/bbolt (see cuemby-warren/go.mod, evalgo-org-eve/go.mod).
package meta

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketWatermark   = []byte("watermark")
	bucketSettings    = []byte("settings")
	bucketReplication = []byte("replication")

	keyLastApplied    = []byte("last_applied_at")
	keySettingsUpdate = []byte("last_settings_update_at")
)

// Store is the per-index embedded meta store. It is safe for concurrent
// use by multiple goroutines.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path, per the
// on-disk layout's {base}/{index_id}/meta directory (index.Context.MetaDir).
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "meta: open")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketWatermark); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSettings); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketReplication)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "meta: create buckets")
	}

	return &Store{db: db}, nil
}

// Close releases the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetWatermark persists the Change-Log Poller's last-applied timestamp
// (§4.5), so a restart resumes from where it left off rather than
// replaying from t=0.
func (s *Store) SetWatermark(at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWatermark)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))
		return b.Put(keyLastApplied, buf)
	})
}

// Watermark returns the last persisted poller watermark. ok is false if
// none has ever been set, meaning the poller must bootstrap (§4.5
// Bootstrap).
func (s *Store) Watermark() (at time.Time, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWatermark)
		v := b.Get(keyLastApplied)
		if v == nil {
			return nil
		}
		nanos := int64(binary.BigEndian.Uint64(v))
		at = time.Unix(0, nanos).UTC()
		ok = true
		return nil
	})
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "meta: read watermark")
	}
	return at, ok, nil
}

// SetLastSettingsUpdate persists the time a stopword or synonym mutation
// was last observed for this index, kept separate from the poller's
// watermark (§3 Data model: "settings replication timestamp separate
// from the watermark") so a settings refresh and a document-change
// replay never contend over the same bucket key.
func (s *Store) SetLastSettingsUpdate(at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplication)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))
		return b.Put(keySettingsUpdate, buf)
	})
}

// LastSettingsUpdate returns the last persisted settings-mutation
// timestamp. ok is false if no mutation has ever been observed.
func (s *Store) LastSettingsUpdate() (at time.Time, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplication)
		v := b.Get(keySettingsUpdate)
		if v == nil {
			return nil
		}
		nanos := int64(binary.BigEndian.Uint64(v))
		at = time.Unix(0, nanos).UTC()
		ok = true
		return nil
	})
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "meta: read settings update timestamp")
	}
	return at, ok, nil
}

// StoreSettings caches an opaque settings blob under key, mirroring
// stores.rs's IndexStore.store (write-through cache in front of the
// durable store's settings table).
func (s *Store) StoreSettings(key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), data)
	})
}

// RemoveSettings deletes a cached settings blob, mirroring IndexStore.remove.
func (s *Store) RemoveSettings(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Delete([]byte(key))
	})
}

// LoadSettings returns a cached settings blob, mirroring IndexStore.load.
// ok is false on a cache miss; callers fall back to the durable store.
func (s *Store) LoadSettings(key string) (data []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get([]byte(key))
		if v == nil {
			return nil
		}
		data = append([]byte(nil), v...)
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "meta: load settings")
	}
	return data, ok, nil
}
