package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ainotebook/notebase/database"
	_ "github.com/ainotebook/notebase/database/storage/hashmap"
	"github.com/ainotebook/notebase/log"
	"github.com/ainotebook/notebase/notes"
	"github.com/ainotebook/notebase/utils"
)

func TestMain(m *testing.M) {
	testRoot, err := os.MkdirTemp("", "notebase-api-")
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

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store := database.New("api-"+t.Name(), "notes", database.WithStorageType("hashmap"))
	t.Cleanup(func() {
		_ = store.DeleteDatabase(context.Background())
	})
	return NewServer(notes.NewService(store))
}

type testResponse struct {
	Success *bool       `json:"success"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Note    *testNote   `json:"note"`
	Notes   []*testNote `json:"notes"`
}

type testNote struct {
	ID         uint64 `json:"id"`
	UserID     uint64 `json:"user_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Image      string `json:"image"`
	CreateTime string `json:"create_time"`
	UpdateTime string `json:"update_time"`
}

func do(t *testing.T, s *Server, method, path, reqBody string) (int, *testResponse) {
	t.Helper()

	var reader io.Reader
	if reqBody != "" {
		reader = strings.NewReader(reqBody)
	}
	req := httptest.NewRequest(method, path, reader)
	if reqBody != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	resp := &testResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp), rec.Body.String())
	return rec.Code, resp
}

func TestNotesAPI(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	// create
	code, resp := do(t, s, http.MethodPost, "/api/notes", `{"user_id": 1, "title": "first", "content": "hello"}`)
	require.Equal(t, http.StatusCreated, code)
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	assert.Equal(t, msgCreated, resp.Message)
	require.NotNil(t, resp.Note)
	assert.Equal(t, uint64(1), resp.Note.ID)
	assert.Equal(t, "first", resp.Note.Title)
	assert.Len(t, resp.Note.CreateTime, len("2006-01-02 15:04:05"))

	code, _ = do(t, s, http.MethodPost, "/api/notes", `{"user_id": 1, "title": "second", "content": "world", "image": "a.png"}`)
	require.Equal(t, http.StatusCreated, code)

	// get
	code, resp = do(t, s, http.MethodGet, "/api/notes/2", "")
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Note)
	assert.Equal(t, "a.png", resp.Note.Image)

	// list
	code, resp = do(t, s, http.MethodGet, "/api/notes?user_id=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Notes, 2)

	code, resp = do(t, s, http.MethodGet, "/api/notes?user_id=2", "")
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, resp.Notes)
	assert.Empty(t, resp.Notes)

	// update
	code, resp = do(t, s, http.MethodPut, "/api/notes/1", `{"content": "edited"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, msgUpdated, resp.Message)
	require.NotNil(t, resp.Note)
	assert.Equal(t, "first", resp.Note.Title)
	assert.Equal(t, "edited", resp.Note.Content)

	// notes of user
	code, resp = do(t, s, http.MethodGet, "/api/users/1", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Notes, 2)
	assert.Equal(t, uint64(1), resp.Notes[0].ID)

	// delete
	code, resp = do(t, s, http.MethodDelete, "/api/notes/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, msgDeleted, resp.Message)

	code, resp = do(t, s, http.MethodGet, "/api/notes/1", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, msgNotFound, resp.Error)
}

func TestNotesAPIErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, tc := range []struct {
		name, method, path, body string
		code                     int
		err                      string
	}{
		{"MissingUserID", http.MethodGet, "/api/notes", "", http.StatusBadRequest, msgMissingUserID},
		{"InvalidUserID", http.MethodGet, "/api/notes?user_id=abc", "", http.StatusBadRequest, msgMissingUserID},
		{"UnknownNote", http.MethodGet, "/api/notes/42", "", http.StatusNotFound, msgNotFound},
		{"HugeNoteID", http.MethodGet, "/api/notes/18446744073709551615", "", http.StatusNotFound, msgNotFound},
		{"UnknownUser", http.MethodGet, "/api/users/42", "", http.StatusNotFound, msgNoUserNotes},
		{"UpdateUnknown", http.MethodPut, "/api/notes/42", `{"title": "x"}`, http.StatusNotFound, msgNotFound},
		{"DeleteUnknown", http.MethodDelete, "/api/notes/42", "", http.StatusNotFound, msgNotFound},
		{"CreateWithoutUser", http.MethodPost, "/api/notes", `{"title": "a", "content": "b"}`, http.StatusBadRequest, "Missing user_id parameter"},
		{"CreateWithoutTitle", http.MethodPost, "/api/notes", `{"user_id": 1, "content": "b"}`, http.StatusBadRequest, "Missing title parameter"},
		{"CreateWithoutContent", http.MethodPost, "/api/notes", `{"user_id": 1, "title": "a"}`, http.StatusBadRequest, "Missing content parameter"},
	} {
		code, resp := do(t, s, tc.method, tc.path, tc.body)
		assert.Equal(t, tc.code, code, tc.name)
		assert.Equal(t, tc.err, resp.Error, tc.name)
	}

	// present but empty fields are accepted
	code, resp := do(t, s, http.MethodPost, "/api/notes", `{"user_id": 0, "title": "", "content": ""}`)
	assert.Equal(t, http.StatusCreated, code)
	require.NotNil(t, resp.Note)
	assert.Empty(t, resp.Note.Title)
	assert.Empty(t, resp.Note.Content)

	// body without content type
	req := httptest.NewRequest(http.MethodPost, "/api/notes", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// wrong method
	req = httptest.NewRequest(http.MethodPatch, "/api/notes/1", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetaEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "database": "connected"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"notebase"`)

	// produce at least one store metric
	do(t, s, http.MethodGet, "/api/notes?user_id=1", "")
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notebase_store_ops_total")
}

func TestServe(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health") //nolint:noctx
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
}
