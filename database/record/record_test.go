package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainotebook/notebase/database/accessor"
	"github.com/ainotebook/notebase/formats/dsd"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, New("shopping", nil).Validate())
	assert.ErrorIs(t, New("", nil).Validate(), ErrMissingName)

	r := New("shopping", nil)
	r.ID = MaxID
	assert.NoError(t, r.Validate())
	r.ID = MaxID + 1
	assert.ErrorIs(t, r.Validate(), ErrIDOutOfRange)
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	r := &Record{
		ID:   3,
		Name: "shopping",
		Data: map[string]interface{}{
			"content": "milk",
			"nested": map[string]interface{}{
				"image": "none",
			},
		},
	}

	for _, format := range []uint8{dsd.JSON, dsd.CBOR, dsd.MsgPack, dsd.YAML} {
		for _, compression := range []uint8{dsd.NONE, dsd.GZIP} {
			data, err := r.Marshal(format, compression)
			require.NoError(t, err)

			loaded, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, r, loaded, "format %s, compression %s", dsd.FormatName(format), dsd.FormatName(compression))
		}
	}

	_, err := r.Marshal(dsd.STRING, dsd.NONE)
	assert.ErrorIs(t, err, dsd.ErrIncompatibleFormat)

	_, err = Unmarshal([]byte{})
	assert.Error(t, err)
}

func TestDeleteAttribute(t *testing.T) {
	t.Parallel()

	r := New("todo", map[string]interface{}{"content": "write tests", "image": "list.png"})
	r.ID = 2

	require.NoError(t, r.DeleteAttribute("data.image"))
	assert.Equal(t, map[string]interface{}{"content": "write tests"}, r.Data)

	assert.ErrorIs(t, r.DeleteAttribute("data.image"), accessor.ErrUnknownField)
	assert.ErrorIs(t, r.DeleteAttribute("name"), ErrMissingName)
	assert.ErrorIs(t, r.DeleteAttribute("id"), ErrImmutableID)
	assert.Equal(t, uint64(2), r.ID)
	assert.Equal(t, "todo", r.Name)
}

func TestSetAttribute(t *testing.T) {
	t.Parallel()

	r := New("todo", map[string]interface{}{"content": "write tests"})
	r.ID = 2

	require.NoError(t, r.SetAttribute("data.content", "write more tests"))
	require.NoError(t, r.SetAttribute("name", "todo list"))
	require.NoError(t, r.SetAttribute("data.image", "list.png"))

	assert.Equal(t, uint64(2), r.ID)
	assert.Equal(t, "todo list", r.Name)
	assert.Equal(t, "write more tests", r.Data["content"])
	assert.Equal(t, "list.png", r.Data["image"])

	assert.ErrorIs(t, r.SetAttribute("id", 5), ErrImmutableID)
	assert.ErrorIs(t, r.SetAttribute("name", ""), ErrMissingName)
	assert.Equal(t, uint64(2), r.ID)
	assert.Equal(t, "todo list", r.Name)

	acc, err := r.Accessor()
	require.NoError(t, err)
	content, ok := acc.GetString("data.content")
	assert.True(t, ok)
	assert.Equal(t, "write more tests", content)
}
