package record

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ainotebook/notebase/database/accessor"
	"github.com/ainotebook/notebase/formats/dsd"
)

// Record is a single entry of a collection. The ID is assigned by the
// collection's key generator, a zero ID means the record was not stored yet.
// Name is required and is covered by a non-unique index.
type Record struct {
	ID   uint64                 `json:"id,omitempty" cbor:"id,omitempty" msgpack:"id,omitempty"`
	Name string                 `json:"name" cbor:"name" msgpack:"name"`
	Data map[string]interface{} `json:"data,omitempty" cbor:"data,omitempty" msgpack:"data,omitempty"`
}

// New returns a new record without an ID.
func New(name string, data map[string]interface{}) *Record {
	return &Record{
		Name: name,
		Data: data,
	}
}

// MaxID is the highest ID a record may have.
const MaxID uint64 = math.MaxInt64

// Validate checks if the record may be stored.
func (r *Record) Validate() error {
	switch {
	case r.Name == "":
		return ErrMissingName
	case r.ID > MaxID:
		return fmt.Errorf("%w: %d", ErrIDOutOfRange, r.ID)
	}
	return nil
}

// String returns a short description of the record.
func (r *Record) String() string {
	return fmt.Sprintf("<Record %d: %s>", r.ID, r.Name)
}

// Marshal serializes the record with the given dsd format and compression.
func (r *Record) Marshal(format, compression uint8) ([]byte, error) {
	format, ok := dsd.ValidateSerializationFormat(format)
	if !ok {
		return nil, fmt.Errorf("%w: %d", dsd.ErrUnknownFormat, format)
	}
	switch format {
	case dsd.STRING, dsd.BYTES:
		return nil, fmt.Errorf("%w: records cannot be stored as %s", dsd.ErrIncompatibleFormat, dsd.FormatName(format))
	}

	if compression == dsd.AUTO {
		compression = dsd.NONE
	}
	return dsd.DumpAndCompress(r, format, compression)
}

// Unmarshal parses a record that was serialized with Marshal.
func Unmarshal(data []byte) (*Record, error) {
	r := &Record{}
	_, err := dsd.Load(data, r)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Accessor returns an accessor on a JSON snapshot of the record. Use Apply
// to write back changes made through the accessor.
func (r *Record) Accessor() (*accessor.JSONAccessor, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	snapshot := string(data)
	return accessor.NewJSONAccessor(&snapshot), nil
}

// Apply replaces the content of the record with the content of the
// accessor. The ID is kept.
func (r *Record) Apply(a *accessor.JSONAccessor) error {
	updated := &Record{}
	err := json.Unmarshal([]byte(a.JSON()), updated)
	if err != nil {
		return fmt.Errorf("failed to parse record: %w", err)
	}
	if updated.ID != r.ID {
		return ErrImmutableID
	}
	if err := updated.Validate(); err != nil {
		return err
	}

	r.Name = updated.Name
	r.Data = updated.Data
	return nil
}

// SetAttribute sets the attribute at the given path, eg. "name" or
// "data.tags.0". Type changes of existing attributes are refused.
func (r *Record) SetAttribute(path string, value interface{}) error {
	acc, err := r.Accessor()
	if err != nil {
		return err
	}
	if err := acc.Set(path, value); err != nil {
		return err
	}
	return r.Apply(acc)
}

// DeleteAttribute removes the attribute at the given path. The name cannot
// be removed.
func (r *Record) DeleteAttribute(path string) error {
	acc, err := r.Accessor()
	if err != nil {
		return err
	}
	if err := acc.Delete(path); err != nil {
		return fmt.Errorf("%w: %s", err, path)
	}
	return r.Apply(acc)
}
