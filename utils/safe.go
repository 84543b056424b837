package utils

import (
	"encoding/hex"
	"strings"
)

// HexPreview returns the first line of a hex dump of data, covering up to
// 16 bytes. Use it to show unparsable data in logs and errors.
func HexPreview(data []byte) string {
	if len(data) == 0 {
		return "<empty>"
	}

	firstLine, _, _ := strings.Cut(hex.Dump(data), "\n")
	return strings.TrimPrefix(firstLine, "00000000  ")
}
