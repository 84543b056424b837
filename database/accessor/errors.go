package accessor

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/tidwall/gjson"
)

// Common error definitions.
var (
	ErrUnknownField = errors.New("field does not exist")
	ErrTypeMismatch = errors.New("value type does not match field type")
)

// InvalidValueTypeError describes an error when trying to set a value
// of an invalid type to a field.
type InvalidValueTypeError struct {
	FieldName string
	FieldKind string
	ValueKind string
}

// Unwrap returns ErrTypeMismatch.
func (ivte *InvalidValueTypeError) Unwrap() error {
	return ErrTypeMismatch
}

func (ivte *InvalidValueTypeError) Error() string {
	return fmt.Sprintf("tried to set field %s (%s) to a %s value", ivte.FieldName, ivte.FieldKind, ivte.ValueKind)
}

func newInvalidJSONValueTypeError(key string, field gjson.Result, value interface{}) *InvalidValueTypeError {
	return &InvalidValueTypeError{
		FieldName: key,
		FieldKind: field.Type.String(),
		ValueKind: reflect.ValueOf(value).Kind().String(),
	}
}
