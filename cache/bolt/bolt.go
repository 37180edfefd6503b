// Package bolt the bbolt backed cache
package bolt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"golang.org/x/exp/slog"
)

const (
	defaultBatchSize = 100000
	DefaultPath      = "cache"
	defaultInterval  = 10 * time.Minute
	defaultKeysClean = 64
	fillPercent      = 0.9
)

var (
	expireBucketName = []byte("expire")
	// ErrKeyNotFound not found the key
	ErrKeyNotFound = errors.New("key not found")
)

// DB a bbolt.DB instance
type DB struct {
	bucketName []byte
	db         *bbolt.DB
	interval   time.Duration
	logger     *slog.Logger
	closedC    chan struct{}
}

// NewDB creates a new DB instance.
// If interval is 0 expired keys are cleaned every 10 minutes,
// a negative interval disables the cleaning.
func NewDB(path, name string, interval time.Duration) (*DB, error) {
	if path == "" {
		path = DefaultPath
	}
	err := os.MkdirAll(path, 0700)
	if err != nil {
		return nil, err
	}
	db, err := bbolt.Open(filepath.Join(path, name), 0600, &bbolt.Options{
		Timeout:         1 * time.Second,
		InitialMmapSize: 1024,
	})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err = tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists(expireBucketName); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if interval == 0 {
		interval = defaultInterval
	}
	c := &DB{
		bucketName: []byte(name),
		interval:   interval,
		db:         db,
		logger:     slog.Default().With(slog.String("cache", name)),
		closedC:    make(chan struct{}),
	}
	go c.expire()
	return c, nil
}

// Put method writes kv according to the bucket.
func (db *DB) Put(key, value []byte) (err error) {
	return db.PutWithTimeout(key, value, 0)
}

// PutWithTimeout method writes kv with timeout according to the bucket.
func (db *DB) PutWithTimeout(key, value []byte, timeout time.Duration) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(db.bucketName).Put(key, value); err != nil {
			return err
		}
		expireBucket := tx.Bucket(expireBucketName)
		if timeout <= 0 {
			return expireBucket.Delete(key)
		}
		// put the deadline to expire bucket
		buf := new(bytes.Buffer)
		if err := binary.Write(buf, binary.BigEndian, time.Now().Add(timeout).UnixNano()); err != nil {
			return err
		}
		return expireBucket.Put(key, buf.Bytes())
	})
}

// Get reads the value from the bucket with key.
// It returns ErrKeyNotFound for a missing or expired key.
func (db *DB) Get(key []byte) (value []byte, err error) {
	err = db.db.View(func(tx *bbolt.Tx) error {
		if ddl := tx.Bucket(expireBucketName).Get(key); ddl != nil {
			// scan deadline of the key
			if time.Now().UnixNano() > int64(binary.BigEndian.Uint64(ddl)) {
				return ErrKeyNotFound
			}
		}
		v := tx.Bucket(db.bucketName).Get(key)
		if v == nil {
			return ErrKeyNotFound
		}
		// the slice is only valid inside the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	return
}

// Delete a specified key from DB.
func (db *DB) Delete(key []byte) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(expireBucketName).Delete(key); err != nil {
			return err
		}
		return tx.Bucket(db.bucketName).Delete(key)
	})
}

// DeleteBatch delete data in batch.
func (db *DB) DeleteBatch(keys [][]byte) error {
	for offset := 0; offset < len(keys); offset += defaultBatchSize {
		end := offset + defaultBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		err := db.db.Update(func(tx *bbolt.Tx) error {
			bucket, expireBucket := tx.Bucket(db.bucketName), tx.Bucket(expireBucketName)
			bucket.FillPercent = fillPercent
			for _, key := range keys[offset:end] {
				if err := bucket.Delete(key); err != nil {
					return err
				}
				if err := expireBucket.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (db *DB) Close() error {
	close(db.closedC)
	if err := db.db.Sync(); err != nil {
		return err
	}
	return db.db.Close()
}

// expired returns the expired keys once the expire bucket holds enough of them.
func (db *DB) expired(now int64) (keys [][]byte, err error) {
	err = db.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(expireBucketName)
		if bucket.Stats().KeyN < defaultKeysClean {
			return nil
		}
		return bucket.ForEach(func(k, ddl []byte) error {
			if now > int64(binary.BigEndian.Uint64(ddl)) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
	})
	return
}

// expire timing scan the expired keys and delete them.
func (db *DB) expire() {
	if db.interval < 0 {
		return
	}
	ticker := time.NewTicker(db.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			keys, err := db.expired(time.Now().UnixNano())
			if err != nil {
				db.logger.Error("error scanning expired keys", "error", err)
				continue
			}
			if err = db.DeleteBatch(keys); err != nil {
				db.logger.Error("error cleaning expired keys", "error", err)
			}
		case <-db.closedC:
			return
		}
	}
}
