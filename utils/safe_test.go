package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexPreview(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "<empty>", HexPreview(nil))
	preview := HexPreview([]byte("J{}"))
	assert.True(t, strings.HasPrefix(preview, "4a 7b 7d"), preview)
	assert.True(t, strings.HasSuffix(preview, "|J{}|"), preview)
	assert.NotContains(t, HexPreview(make([]byte, 64)), "\n")
}
