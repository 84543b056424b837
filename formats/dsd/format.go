package dsd

import "errors"

// Errors.
var (
	ErrIncompatibleFormat = errors.New("dsd: format is incompatible with operation")
	ErrIsRaw              = errors.New("dsd: given data is in raw format")
	ErrNoMoreSpace        = errors.New("dsd: no more space left after reading dsd type")
	ErrUnknownFormat      = errors.New("dsd: format is unknown")
)

// Format types.
const (
	AUTO = 0

	// Special.
	NONE = 1 // no compression

	// Serialization types.
	CBOR    = 67 // C
	JSON    = 74 // J
	MsgPack = 77 // M
	STRING  = 83 // S
	BYTES   = 88 // X
	YAML    = 89 // Y

	// Compression types.
	GZIP = 90 // Z
)

// Default Formats.
var (
	DefaultSerializationFormat uint8 = JSON
	DefaultCompressionFormat   uint8 = GZIP
)

// ValidateSerializationFormat validates if the format is for serialization,
// and returns the validated format as well as the result of the validation.
// If called on the AUTO format, it returns the default serialization format.
func ValidateSerializationFormat(format uint8) (validatedFormat uint8, ok bool) {
	switch format {
	case AUTO:
		return DefaultSerializationFormat, true
	case CBOR, JSON, MsgPack, STRING, BYTES, YAML:
		return format, true
	default:
		return 0, false
	}
}

// ValidateCompressionFormat validates if the format is for compression,
// and returns the validated format as well as the result of the validation.
// If called on the AUTO format, it returns the default compression format.
func ValidateCompressionFormat(format uint8) (validatedFormat uint8, ok bool) {
	switch format {
	case AUTO:
		return DefaultCompressionFormat, true
	case NONE, GZIP:
		return format, true
	default:
		return 0, false
	}
}

// ParseFormat returns the serialization format for the given name.
func ParseFormat(name string) (format uint8, ok bool) {
	switch name {
	case "", "auto":
		return AUTO, true
	case "json":
		return JSON, true
	case "cbor":
		return CBOR, true
	case "msgpack":
		return MsgPack, true
	case "yaml":
		return YAML, true
	default:
		return 0, false
	}
}

// FormatName returns the name of the given format.
func FormatName(format uint8) string {
	switch format {
	case AUTO:
		return "auto"
	case NONE:
		return "none"
	case CBOR:
		return "cbor"
	case JSON:
		return "json"
	case MsgPack:
		return "msgpack"
	case STRING:
		return "string"
	case BYTES:
		return "bytes"
	case YAML:
		return "yaml"
	case GZIP:
		return "gzip"
	default:
		return "unknown"
	}
}
