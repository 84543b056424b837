package dsd

// dynamic structured data
// check here for some benchmarks: https://github.com/alecthomas/go_serialization_benchmarks

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/ghodss/yaml"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ainotebook/notebase/formats/varint"
)

var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("dsd: failed to create cbor decoder: %s", err))
	}
}

// Load loads an dsd structured data blob into the given interface.
func Load(data []byte, t interface{}) (format uint8, err error) {
	format, read, err := loadFormat(data)
	if err != nil {
		return 0, err
	}

	switch format {
	case GZIP:
		return DecompressAndLoad(data[read:], format, t)
	default:
		return format, LoadAsFormat(data[read:], format, t)
	}
}

// LoadAsFormat loads a data blob into the interface using the specified format.
func LoadAsFormat(data []byte, format uint8, t interface{}) (err error) {
	switch format {
	case STRING:
		s, ok := t.(*string)
		if !ok {
			return fmt.Errorf("%w: cannot load string into %T", ErrIncompatibleFormat, t)
		}
		*s = string(data)
	case BYTES:
		b, ok := t.(*[]byte)
		if !ok {
			return fmt.Errorf("%w: cannot load bytes into %T", ErrIncompatibleFormat, t)
		}
		*b = append((*b)[:0], data...)
	case JSON:
		err = json.Unmarshal(data, t)
		if err != nil {
			return fmt.Errorf("dsd: failed to unpack json: %w, data: %s", err, string(data))
		}
	case CBOR:
		err = cborDecMode.Unmarshal(data, t)
		if err != nil {
			return fmt.Errorf("dsd: failed to unpack cbor: %w", err)
		}
	case MsgPack:
		err = msgpack.Unmarshal(data, t)
		if err != nil {
			return fmt.Errorf("dsd: failed to unpack msgpack: %w", err)
		}
	case YAML:
		err = yaml.Unmarshal(data, t)
		if err != nil {
			return fmt.Errorf("dsd: failed to unpack yaml: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}
	return nil
}

func loadFormat(data []byte) (format uint8, read int, err error) {
	format, read, err = varint.Unpack8(data)
	if err != nil {
		return 0, 0, err
	}
	if len(data) <= read {
		return 0, 0, ErrNoMoreSpace
	}

	return format, read, nil
}

// Dump stores the interface as a dsd formatted data structure.
func Dump(t interface{}, format uint8) ([]byte, error) {
	data, format, err := dump(t, format)
	if err != nil {
		return nil, err
	}

	// prepend format identifier
	return append(varint.Pack8(format), data...), nil
}

// DumpWithoutIdentifier stores the interface as a data structure, without
// a format identifier, but will resolve special cases.
func DumpWithoutIdentifier(t interface{}, format uint8) ([]byte, error) {
	data, _, err := dump(t, format)
	return data, err
}

func dump(t interface{}, format uint8) (data []byte, usedFormat uint8, err error) {
	if format == AUTO {
		switch t.(type) {
		case string:
			format = STRING
		case []byte:
			format = BYTES
		default:
			format = DefaultSerializationFormat
		}
	}

	switch format {
	case STRING:
		s, ok := t.(string)
		if !ok {
			return nil, 0, fmt.Errorf("%w: cannot dump %T as string", ErrIncompatibleFormat, t)
		}
		data = []byte(s)
	case BYTES:
		b, ok := t.([]byte)
		if !ok {
			return nil, 0, fmt.Errorf("%w: cannot dump %T as bytes", ErrIncompatibleFormat, t)
		}
		data = b
	case JSON:
		data, err = json.Marshal(t)
		if err != nil {
			return nil, 0, err
		}
	case CBOR:
		data, err = cbor.Marshal(t)
		if err != nil {
			return nil, 0, err
		}
	case MsgPack:
		data, err = msgpack.Marshal(t)
		if err != nil {
			return nil, 0, err
		}
	case YAML:
		data, err = yaml.Marshal(t)
		if err != nil {
			return nil, 0, err
		}
	default:
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}

	return data, format, nil
}
