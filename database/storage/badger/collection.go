package badger

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger"

	"github.com/ainotebook/notebase/database/storage"
)

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

type collection struct {
	name string
	txn  *badger.Txn
}

func collectionKey(name string) []byte {
	return []byte("c:" + name)
}

func getCollection(txn *badger.Txn, name string) (*collection, error) {
	_, err := txn.Get(collectionKey(name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNoCollection, name)
		}
		return nil, err
	}
	return &collection{
		name: name,
		txn:  txn,
	}, nil
}

func (c *collection) sequenceKey() []byte {
	return []byte("s:" + c.name)
}

func (c *collection) recordPrefix() []byte {
	return []byte("r:" + c.name + ":")
}

func (c *collection) recordKey(id uint64) []byte {
	return append(c.recordPrefix(), storage.EncodeID(id)...)
}

func (c *collection) refPrefix() []byte {
	return []byte("x:" + c.name + ":")
}

func (c *collection) refKey(id uint64) []byte {
	return append(c.refPrefix(), storage.EncodeID(id)...)
}

func (c *collection) uniquePrefix() []byte {
	return []byte("u:" + c.name + ":")
}

func (c *collection) indexPrefix(index string) []byte {
	return []byte("i:" + c.name + ":" + index + ":")
}

func (c *collection) indexKey(index, value string, id uint64) []byte {
	return append(c.indexPrefix(index), storage.IndexKey(value, id)...)
}

// indexes returns the declared indexes of the collection and whether they
// are unique.
func (c *collection) indexes() map[string]bool {
	indexes := make(map[string]bool)
	prefix := c.uniquePrefix()
	it := c.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			continue
		}
		indexes[string(item.Key()[len(prefix):])] = bytes.Equal(value, []byte{1})
	}
	return indexes
}

func (c *collection) sequence() (uint64, error) {
	value, err := getValue(c.txn, c.sequenceKey())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return storage.DecodeID(value)
}

func (c *collection) put(entry *storage.Entry) (uint64, error) {
	seq, err := c.sequence()
	if err != nil {
		return 0, err
	}

	id, err := storage.AssignID(entry.ID, seq)
	if err != nil {
		return 0, err
	}
	if id > seq {
		err = c.txn.Set(c.sequenceKey(), storage.EncodeID(id))
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
	err = c.txn.Set(c.refKey(id), refs)
	if err != nil {
		return 0, err
	}

	return id, c.txn.Set(c.recordKey(id), entry.Data)
}

func (c *collection) addToIndex(index string, unique bool, value string, id uint64) error {
	if unique {
		indexPrefix := c.indexPrefix(index)
		prefix := append(indexPrefix, storage.IndexPrefix(value)...) //nolint:gocritic // indexPrefix is a fresh slice.
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := c.txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			existingID, ok := storage.ParseIndexKey(it.Item().Key()[len(indexPrefix):], value)
			if ok && existingID != id {
				return fmt.Errorf("%w: %s.%s=%q", storage.ErrConstraint, c.name, index, value)
			}
		}
	}

	return c.txn.Set(c.indexKey(index, value, id), []byte{})
}

func (c *collection) removeFromIndexes(id uint64) error {
	refs, err := getValue(c.txn, c.refKey(id))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	values, err := storage.DecodeIndexValues(refs)
	if err != nil {
		return err
	}

	indexes := c.indexes()
	for index, value := range values {
		if _, ok := indexes[index]; !ok {
			continue
		}
		err = c.txn.Delete(c.indexKey(index, value, id))
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
	err = c.txn.Delete(c.refKey(id))
	if err != nil {
		return err
	}
	return c.txn.Delete(c.recordKey(id))
}

type schema struct {
	txn *badger.Txn
}

func (s *schema) HasCollection(name string) (bool, error) {
	if err := storage.CheckName(name); err != nil {
		return false, err
	}
	_, err := s.txn.Get(collectionKey(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *schema) CreateCollection(name string) error {
	exists, err := s.HasCollection(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", storage.ErrCollectionExists, name)
	}
	return s.txn.Set(collectionKey(name), []byte{1})
}

func (s *schema) CreateIndex(collectionName, index string, unique bool) error {
	if err := storage.CheckName(index); err != nil {
		return err
	}
	c, err := getCollection(s.txn, collectionName)
	if err != nil {
		return err
	}
	if _, ok := c.indexes()[index]; ok {
		return fmt.Errorf("%w: %s.%s", storage.ErrIndexExists, collectionName, index)
	}

	flag := []byte{0}
	if unique {
		flag[0] = 1
	}
	err = s.txn.Set(append(c.uniquePrefix(), index...), flag)
	if err != nil {
		return err
	}

	// index existing entries
	type ref struct {
		id    uint64
		value string
	}
	var refs []ref
	prefix := c.refPrefix()
	it := s.txn.NewIterator(badger.DefaultIteratorOptions)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		id, err := storage.DecodeID(item.Key()[len(prefix):])
		if err != nil {
			it.Close()
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return err
		}
		values, err := storage.DecodeIndexValues(data)
		if err != nil {
			it.Close()
			return err
		}
		if value, ok := values[index]; ok {
			refs = append(refs, ref{id: id, value: value})
		}
	}
	it.Close()

	for _, r := range refs {
		if err := c.addToIndex(index, unique, r.value, r.id); err != nil {
			return err
		}
	}
	return nil
}
