package bbolt

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/ainotebook/notebase/database/storage"
)

type collection struct {
	name    string
	meta    *bbolt.Bucket
	bucket  *bbolt.Bucket
	records *bbolt.Bucket
	refs    *bbolt.Bucket
}

func getCollection(tx *bbolt.Tx, name string) (*collection, error) {
	bucket := tx.Bucket([]byte(name))
	if bucket == nil || name == string(metaBucketName) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNoCollection, name)
	}
	return &collection{
		name:    name,
		meta:    tx.Bucket(metaBucketName),
		bucket:  bucket,
		records: bucket.Bucket(recordsBucketName),
		refs:    bucket.Bucket(refsBucketName),
	}, nil
}

func uniqueKey(collection, index string) []byte {
	return []byte(indexBucketPrefix + collection + ":" + index)
}

// indexes returns the declared indexes of the collection and whether they
// are unique.
func (c *collection) indexes() map[string]bool {
	indexes := make(map[string]bool)
	prefix := []byte(indexBucketPrefix + c.name + ":")
	cursor := c.meta.Cursor()
	for key, value := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, value = cursor.Next() {
		indexes[string(key[len(prefix):])] = len(value) == 1 && value[0] == 1
	}
	return indexes
}

func (c *collection) put(entry *storage.Entry) (id uint64, err error) {
	id, err = storage.AssignID(entry.ID, c.bucket.Sequence())
	if err != nil {
		return 0, err
	}
	if id > c.bucket.Sequence() {
		err = c.bucket.SetSequence(id)
		if err != nil {
			return 0, err
		}
	}

	// update indexes
	err = c.removeFromIndexes(id)
	if err != nil {
		return 0, err
	}
	for index, unique := range c.indexes() {
		value, ok := entry.Index[index]
		if !ok {
			continue
		}
		err = c.addToIndex(index, unique, value, id)
		if err != nil {
			return 0, err
		}
	}
	refs, err := storage.EncodeIndexValues(entry.Index)
	if err != nil {
		return 0, err
	}
	err = c.refs.Put(storage.EncodeID(id), refs)
	if err != nil {
		return 0, err
	}

	return id, c.records.Put(storage.EncodeID(id), entry.Data)
}

func (c *collection) addToIndex(index string, unique bool, value string, id uint64) error {
	indexBucket := c.bucket.Bucket([]byte(indexBucketPrefix + index))
	if indexBucket == nil {
		return fmt.Errorf("%w: %s.%s", storage.ErrNoIndex, c.name, index)
	}

	if unique {
		prefix := storage.IndexPrefix(value)
		cursor := indexBucket.Cursor()
		for key, _ := cursor.Seek(prefix); key != nil && bytes.HasPrefix(key, prefix); key, _ = cursor.Next() {
			if existingID, ok := storage.ParseIndexKey(key, value); ok && existingID != id {
				return fmt.Errorf("%w: %s.%s=%q", storage.ErrConstraint, c.name, index, value)
			}
		}
	}

	return indexBucket.Put(storage.IndexKey(value, id), nil)
}

func (c *collection) removeFromIndexes(id uint64) error {
	refs := c.refs.Get(storage.EncodeID(id))
	if refs == nil {
		return nil
	}
	values, err := storage.DecodeIndexValues(refs)
	if err != nil {
		return err
	}

	for index, value := range values {
		indexBucket := c.bucket.Bucket([]byte(indexBucketPrefix + index))
		if indexBucket == nil {
			continue
		}
		err = indexBucket.Delete(storage.IndexKey(value, id))
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *collection) delete(id uint64) error {
	err := c.removeFromIndexes(id)
	if err != nil {
		return err
	}
	err = c.refs.Delete(storage.EncodeID(id))
	if err != nil {
		return err
	}
	return c.records.Delete(storage.EncodeID(id))
}

func (c *collection) clear() error {
	// recreate all sub buckets, the sequence of the collection bucket is kept
	names := [][]byte{recordsBucketName, refsBucketName}
	for index := range c.indexes() {
		names = append(names, []byte(indexBucketPrefix+index))
	}
	for _, name := range names {
		err := c.bucket.DeleteBucket(name)
		if err != nil {
			return err
		}
		_, err = c.bucket.CreateBucket(name)
		if err != nil {
			return err
		}
	}
	return nil
}

type schema struct {
	tx *bbolt.Tx
}

func (s *schema) HasCollection(name string) (bool, error) {
	if err := storage.CheckName(name); err != nil {
		return false, err
	}
	return s.tx.Bucket([]byte(name)) != nil, nil
}

func (s *schema) CreateCollection(name string) error {
	if err := storage.CheckName(name); err != nil {
		return err
	}

	bucket, err := s.tx.CreateBucket([]byte(name))
	if err != nil {
		if err == bbolt.ErrBucketExists { //nolint:errorlint // bbolt returns the sentinel directly.
			return fmt.Errorf("%w: %s", storage.ErrCollectionExists, name)
		}
		return err
	}
	_, err = bucket.CreateBucket(recordsBucketName)
	if err != nil {
		return err
	}
	_, err = bucket.CreateBucket(refsBucketName)
	return err
}

func (s *schema) CreateIndex(collectionName, index string, unique bool) error {
	if err := storage.CheckName(index); err != nil {
		return err
	}
	c, err := getCollection(s.tx, collectionName)
	if err != nil {
		return err
	}

	_, err = c.bucket.CreateBucket([]byte(indexBucketPrefix + index))
	if err != nil {
		if err == bbolt.ErrBucketExists { //nolint:errorlint // bbolt returns the sentinel directly.
			return fmt.Errorf("%w: %s.%s", storage.ErrIndexExists, collectionName, index)
		}
		return err
	}
	flag := []byte{0}
	if unique {
		flag[0] = 1
	}
	err = c.meta.Put(uniqueKey(collectionName, index), flag)
	if err != nil {
		return err
	}

	// index existing entries
	return c.refs.ForEach(func(key, refs []byte) error {
		id, err := storage.DecodeID(key)
		if err != nil {
			return err
		}
		values, err := storage.DecodeIndexValues(refs)
		if err != nil {
			return err
		}
		value, ok := values[index]
		if !ok {
			return nil
		}
		return c.addToIndex(index, unique, value, id)
	})
}
