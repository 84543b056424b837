package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainotebook/notebase/database"
	"github.com/ainotebook/notebase/database/record"
	_ "github.com/ainotebook/notebase/database/storage/hashmap"
	"github.com/ainotebook/notebase/formats/dsd"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/utils"
)

func TestMain(m *testing.M) {
	testRoot, err := os.MkdirTemp("", "notebase-notes-")
	if err != nil {
		fmt.Printf("failed to create temp dir: %s\n", err)
		os.Exit(1)
	}

	log.SetLogLevel(log.ErrorLevel)
	if err := log.Start(); err != nil {
		fmt.Printf("failed to start logging: %s\n", err)
		os.Exit(1)
	}
	err = database.Initialize(utils.NewDirStructure(testRoot, utils.PublicReadPermission))
	if err != nil {
		fmt.Printf("failed to initialize database: %s\n", err)
		os.Exit(1)
	}

	exitCode := m.Run()

	if err := database.Shutdown(); err != nil {
		fmt.Printf("failed to shut down database: %s\n", err)
		exitCode = 1
	}
	log.Shutdown()
	_ = os.RemoveAll(testRoot)
	os.Exit(exitCode)
}

// testClock returns a clock that advances by one second on every call.
func testClock() func() time.Time {
	current := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newTestService(t *testing.T, opts ...database.Option) *Service {
	t.Helper()

	opts = append([]database.Option{database.WithStorageType("hashmap")}, opts...)
	store := database.New("notes-"+t.Name(), "notes", opts...)
	t.Cleanup(func() {
		_ = store.DeleteDatabase(context.Background())
	})

	s := NewService(store)
	s.now = testClock()
	return s
}

func strPtr(s string) *string {
	return &s
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t)

	created, err := s.Create(ctx, 7, "groceries", "milk, eggs", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, created.CreateTime, created.UpdateTime)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateEmptyFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t)

	created, err := s.Create(ctx, 0, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), created.UserID)
	assert.Empty(t, created.Title)
	assert.Empty(t, created.Content)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	notes, err := s.ListByUser(ctx, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, created.ID, notes[0].ID)

	// blank titles are found as such, not by their record name
	_, err = s.Create(ctx, 1, untitled, "named", "")
	require.NoError(t, err)
	notes, err = s.FindByTitle(ctx, "")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, created.ID, notes[0].ID)
	notes, err = s.FindByTitle(ctx, untitled)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "named", notes[0].Content)
}

func TestFromRecord(t *testing.T) {
	t.Parallel()

	// records without a title attribute use their name
	n, err := fromRecord(&record.Record{
		ID:   4,
		Name: "imported",
		Data: map[string]interface{}{attrUserID: 2, attrContent: "text"},
	})
	require.NoError(t, err)
	assert.Equal(t, "imported", n.Title)
	assert.Equal(t, uint64(2), n.UserID)
	assert.Equal(t, "text", n.Content)

	_, err = fromRecord(&record.Record{
		ID:   5,
		Name: "broken",
		Data: map[string]interface{}{attrUserID: "two"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"two"`)
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t)

	first, err := s.Create(ctx, 1, "first", "one", "")
	require.NoError(t, err)
	second, err := s.Create(ctx, 1, "second", "two", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, 2, "other", "not mine", "")
	require.NoError(t, err)

	notes, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, second.ID, notes[0].ID)
	assert.Equal(t, first.ID, notes[1].ID)

	// updating the first note moves it to the top
	_, err = s.Update(ctx, first.ID, &Changes{Content: strPtr("one, edited")})
	require.NoError(t, err)
	notes, err = s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, first.ID, notes[0].ID)

	// ListByUser keeps creation order
	notes, err = s.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, first.ID, notes[0].ID)

	notes, err = s.List(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

func TestFindByTitle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t)

	_, err := s.Create(ctx, 1, "todo", "a", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, 2, "todo", "b", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, 1, "ideas", "c", "")
	require.NoError(t, err)

	notes, err := s.FindByTitle(ctx, "todo")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "a", notes[0].Content)
	assert.Equal(t, "b", notes[1].Content)

	// renaming updates the title index
	_, err = s.Update(ctx, notes[0].ID, &Changes{Title: strPtr("done")})
	require.NoError(t, err)
	notes, err = s.FindByTitle(ctx, "todo")
	require.NoError(t, err)
	assert.Len(t, notes, 1)
	notes, err = s.FindByTitle(ctx, "done")
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t, database.WithFormat(dsd.CBOR))

	created, err := s.Create(ctx, 1, "title", "content", "cat.png")
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, &Changes{Content: strPtr("new content")})
	require.NoError(t, err)
	assert.Equal(t, "title", updated.Title)
	assert.Equal(t, "new content", updated.Content)
	assert.Equal(t, "cat.png", updated.Image)
	assert.Equal(t, created.CreateTime, updated.CreateTime)
	assert.True(t, updated.UpdateTime.After(created.UpdateTime))

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	updated, err = s.Update(ctx, created.ID, &Changes{Title: strPtr("")})
	require.NoError(t, err)
	assert.Empty(t, updated.Title)
	got, err = s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Title)
	notes, err := s.FindByTitle(ctx, "title")
	require.NoError(t, err)
	assert.Empty(t, notes)

	_, err = s.Update(ctx, 42, &Changes{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestService(t)

	created, err := s.Create(ctx, 1, "title", "content", "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, created.ID))
	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, created.ID), ErrNotFound)
}

func TestMarshalJSON(t *testing.T) {
	t.Parallel()

	n := &Note{
		ID:         3,
		UserID:     1,
		Title:      "title",
		Content:    "content",
		CreateTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdateTime: time.Date(2024, 3, 2, 8, 30, 5, 0, time.UTC),
	}
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 3,
		"user_id": 1,
		"title": "title",
		"content": "content",
		"image": "",
		"create_time": "2024-03-01 12:00:00",
		"update_time": "2024-03-02 08:30:05"
	}`, string(data))
}
