package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/ainotebook/notebase/formats/varint"
)

// MaxID is the highest ID an entry may have. IDs must fit into a signed
// 64 bit integer for all storages.
const MaxID uint64 = math.MaxInt64

// AssignID returns the ID an entry is stored with, given the current
// sequence of the collection. An ID of 0 takes the next one from the
// sequence.
func AssignID(id, sequence uint64) (uint64, error) {
	switch {
	case id > MaxID:
		return 0, fmt.Errorf("%w: %d", ErrIDOutOfRange, id)
	case id != 0:
		return id, nil
	case sequence >= MaxID:
		return 0, fmt.Errorf("%w: sequence exhausted", ErrIDOutOfRange)
	default:
		return sequence + 1, nil
	}
}

// EncodeID encodes an ID as a big endian byte slice, so that the byte order
// matches the numeric order.
func EncodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// DecodeID decodes an ID encoded by EncodeID.
func DecodeID(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid id length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// IndexKey returns the key of an index entry: the length prefixed value
// followed by the encoded ID.
func IndexKey(value string, id uint64) []byte {
	return append(IndexPrefix(value), EncodeID(id)...)
}

// IndexPrefix returns the prefix of all index entries with the given value.
func IndexPrefix(value string) []byte {
	return varint.PrependLength([]byte(value))
}

// ParseIndexKey returns the ID of an index entry, if the key belongs to the
// given value.
func ParseIndexKey(key []byte, value string) (id uint64, ok bool) {
	block, read, err := varint.GetNextBlock(key)
	if err != nil || string(block) != value {
		return 0, false
	}
	id, err = DecodeID(key[read:])
	if err != nil {
		return 0, false
	}
	return id, true
}

// EncodeIndexValues serializes the index values of an entry.
func EncodeIndexValues(values map[string]string) ([]byte, error) {
	if len(values) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(values)
}

// DecodeIndexValues parses index values serialized by EncodeIndexValues.
func DecodeIndexValues(data []byte) (map[string]string, error) {
	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	err := json.Unmarshal(data, &values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index values: %w", err)
	}
	return values, nil
}
