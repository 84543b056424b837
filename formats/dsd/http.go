package dsd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTP Related Errors.
var (
	ErrMissingBody        = errors.New("dsd: missing http body")
	ErrMissingContentType = errors.New("dsd: missing http content type")
)

const (
	httpHeaderContentType = "Content-Type"
	httpHeaderAccept      = "Accept"
)

// LoadFromHTTPRequest loads the data from the body into the given interface.
func LoadFromHTTPRequest(r *http.Request, t interface{}) (format uint8, err error) {
	if r.Body == nil {
		return 0, ErrMissingBody
	}
	defer func() {
		_ = r.Body.Close()
	}()

	return loadFromHTTP(r.Body, r.Header.Get(httpHeaderContentType), t)
}

// LoadFromHTTPResponse loads the data from the body into the given interface.
func LoadFromHTTPResponse(resp *http.Response, t interface{}) (format uint8, err error) {
	if resp.Body == nil {
		return 0, ErrMissingBody
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return loadFromHTTP(resp.Body, resp.Header.Get(httpHeaderContentType), t)
}

func loadFromHTTP(body io.Reader, mimeType string, t interface{}) (format uint8, err error) {
	// Read full body.
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("dsd: failed to read http body: %w", err)
	}

	// Get mime type from header, then check, clean and verify it.
	if mimeType == "" {
		return 0, ErrMissingContentType
	}
	format, ok := MimeTypeToFormat[extractMimeType(mimeType)]
	if !ok || format == AUTO {
		return 0, ErrIncompatibleFormat
	}

	// Parse data..
	return format, LoadAsFormat(data, format, t)
}

// DumpToHTTPRequest dumps the given data to the HTTP request using the given
// format. It also sets the Accept header to the same format.
func DumpToHTTPRequest(r *http.Request, t interface{}, format uint8) error {
	format, ok := ValidateSerializationFormat(format)
	if !ok {
		return ErrIncompatibleFormat
	}
	mimeType, ok := FormatToMimeType[format]
	if !ok {
		return ErrIncompatibleFormat
	}

	// Serialize data.
	data, err := DumpWithoutIdentifier(t, format)
	if err != nil {
		return fmt.Errorf("dsd: failed to serialize: %w", err)
	}

	// Add data to request.
	r.Header.Set(httpHeaderContentType, mimeType)
	r.Header.Set(httpHeaderAccept, mimeType)
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.ContentLength = int64(len(data))

	return nil
}

// DumpToHTTPResponse dumps the data to the HTTP response, using the format
// requested in the Accept header of the request.
func DumpToHTTPResponse(w http.ResponseWriter, r *http.Request, status int, t interface{}, fallbackFormat uint8) error {
	format, ok := MimeTypeToFormat[extractMimeType(r.Header.Get(httpHeaderAccept))]
	if !ok || format == AUTO {
		format = fallbackFormat
	}
	format, ok = ValidateSerializationFormat(format)
	if !ok {
		return ErrIncompatibleFormat
	}
	mimeType, ok := FormatToMimeType[format]
	if !ok {
		return ErrIncompatibleFormat
	}

	// Serialize data.
	data, err := DumpWithoutIdentifier(t, format)
	if err != nil {
		return fmt.Errorf("dsd: failed to serialize: %w", err)
	}

	// Write data to response
	w.Header().Set(httpHeaderContentType, mimeType)
	w.WriteHeader(status)
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("dsd: failed to write response: %w", err)
	}
	return nil
}

func extractMimeType(mimeType string) string {
	if strings.Contains(mimeType, ",") {
		mimeType, _, _ = strings.Cut(mimeType, ",")
	}
	if strings.Contains(mimeType, ";") {
		mimeType, _, _ = strings.Cut(mimeType, ";")
	}
	if strings.Contains(mimeType, "/") {
		_, mimeType, _ = strings.Cut(mimeType, "/")
	}
	mimeType = strings.TrimPrefix(mimeType, "x-")
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Format and MimeType mappings.
var (
	FormatToMimeType = map[uint8]string{
		CBOR:    "application/cbor",
		JSON:    "application/json",
		MsgPack: "application/msgpack",
		YAML:    "application/yaml",
	}
	MimeTypeToFormat = map[string]uint8{
		"cbor":    CBOR,
		"json":    JSON,
		"msgpack": MsgPack,
		"yaml":    YAML,
		"yml":     YAML,
		"*":       AUTO,
	}
)
