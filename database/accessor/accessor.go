package accessor

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const emptyString = ""

// JSONAccessor is a json string with get functions.
type JSONAccessor struct {
	json *string
}

// NewJSONAccessor adds the Accessor interface to a JSON string.
func NewJSONAccessor(json *string) *JSONAccessor {
	return &JSONAccessor{
		json: json,
	}
}

// Set sets the value identified by key.
func (ja *JSONAccessor) Set(key string, value interface{}) error {
	result := gjson.Get(*ja.json, key)
	if result.Exists() {
		switch value.(type) {
		case string:
			if result.Type != gjson.String {
				return newInvalidJSONValueTypeError(key, result, value)
			}
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			if result.Type != gjson.Number {
				return newInvalidJSONValueTypeError(key, result, value)
			}
		case bool:
			if result.Type != gjson.True && result.Type != gjson.False {
				return newInvalidJSONValueTypeError(key, result, value)
			}
		}
	}

	updated, err := sjson.Set(*ja.json, key, value)
	if err != nil {
		return err
	}
	*ja.json = updated
	return nil
}

// Delete removes the value identified by key.
func (ja *JSONAccessor) Delete(key string) error {
	if !gjson.Get(*ja.json, key).Exists() {
		return ErrUnknownField
	}

	updated, err := sjson.Delete(*ja.json, key)
	if err != nil {
		return err
	}
	*ja.json = updated
	return nil
}

// GetString returns the string found by the given json key and whether it could be successfully extracted.
func (ja *JSONAccessor) GetString(key string) (value string, ok bool) {
	result := gjson.Get(*ja.json, key)
	if !result.Exists() || result.Type != gjson.String {
		return emptyString, false
	}
	return result.String(), true
}

// GetInt returns the int found by the given json key and whether it could be successfully extracted.
func (ja *JSONAccessor) GetInt(key string) (value int64, ok bool) {
	result := gjson.Get(*ja.json, key)
	if !result.Exists() || result.Type != gjson.Number {
		return 0, false
	}
	return result.Int(), true
}

// GetRaw returns the raw JSON of the value found by the given json key and
// whether it exists.
func (ja *JSONAccessor) GetRaw(key string) (value string, ok bool) {
	result := gjson.Get(*ja.json, key)
	if !result.Exists() {
		return emptyString, false
	}
	return result.Raw, true
}

// Exists returns whether the given key exists.
func (ja *JSONAccessor) Exists(key string) bool {
	result := gjson.Get(*ja.json, key)
	return result.Exists()
}

// JSON returns the current JSON string.
func (ja *JSONAccessor) JSON() string {
	return *ja.json
}
