package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/gitnotes/internal/checksum"
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/testutil"
)

// testEnv sets up a temp repository, service and router for testing.
// A non-empty authToken enables token auth.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sse http.Handler) (*noteservice.Service, http.Handler) {
	t.Helper()
	repo := testutil.Repo(t)
	svc := noteservice.NewService(repo, testutil.Interpreter(t, repo))
	return svc, NewRouter(svc, authEnabled, authToken, sse)
}

func do(t *testing.T, router http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createNote(t *testing.T, router http.Handler, path, content string) NoteDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Path: path, Content: content, Tags: []string{"t"}})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s status = %d, body = %s", path, w.Code, w.Body.String())
	}
	var note NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	return note
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	created := createNote(t, router, "hello", "# Hello\nWorld")
	if created.Path != "hello" || len(created.ID) != 5 {
		t.Fatalf("created = %+v", created)
	}

	for _, target := range []string{"/notes/hello", "/notes/" + string(created.ID)} {
		w := do(t, router, http.MethodGet, target, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get %s status = %d", target, w.Code)
		}
		var note NoteDetail
		if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
			t.Fatal(err)
		}
		if note.Content != "# Hello\nWorld" {
			t.Errorf("content = %q", note.Content)
		}
		if w.Header().Get("ETag") != checksum.ETag(note.Checksum) {
			t.Errorf("etag = %q, checksum = %q", w.Header().Get("ETag"), note.Checksum)
		}
	}
}

func TestGetNoteEncodedPath(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "work/todo", "x")

	w := do(t, router, http.MethodGet, "/notes/work%2Ftodo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "dup", "a")

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Path: "dup", Content: "b"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
}

func TestCreateValidation(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Content: "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing path = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	note := createNote(t, router, "lock", "v1")
	content := "v2"

	w := do(t, router, http.MethodPut, "/notes/lock", UpdateNoteRequest{Content: &content},
		"If-Match", checksum.ETag(checksum.String("stale")))
	if w.Code != http.StatusConflict {
		t.Fatalf("stale update = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPut, "/notes/lock", UpdateNoteRequest{Content: &content, AddTags: []string{"extra"}},
		"If-Match", checksum.ETag(note.Checksum))
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var updated NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Content != "v2" || len(updated.Tags) != 2 {
		t.Errorf("updated = %+v", updated)
	}

	w = do(t, router, http.MethodGet, "/notes/lock?history=HEAD~1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"content":"v1"`) {
		t.Errorf("history get = %d, %s", w.Code, w.Body.String())
	}
}

func TestUpdateWithoutContent(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "a", "x")

	w := do(t, router, http.MethodPut, "/notes/a", map[string]any{"clear_tags": true})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing content = %d, want 400", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	content := "x"

	w := do(t, router, http.MethodPut, "/notes/missing", UpdateNoteRequest{Content: &content})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes/nonexistent", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
	var body errResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("error body = %s", w.Body.String())
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "d/a", "a")
	createNote(t, router, "d/b", "b")

	if w := do(t, router, http.MethodDelete, "/notes/d", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-recursive directory delete = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/d/a", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/d/a", nil); w.Code != http.StatusNotFound {
		t.Errorf("after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/d?recursive=true", nil); w.Code != http.StatusNoContent {
		t.Fatalf("recursive delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/notes/d/b", nil); w.Code != http.StatusNotFound {
		t.Errorf("after recursive delete = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "work/a", "x")
	createNote(t, router, "home/b", "y")

	w := do(t, router, http.MethodGet, "/notes", nil)
	var resp NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}

	w = do(t, router, http.MethodGet, "/notes?path=^work/", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Notes[0].Path != "work/a" {
		t.Errorf("filtered = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/notes?tag=missing", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 || resp.Notes == nil {
		t.Errorf("no match = %+v", resp)
	}

	if w := do(t, router, http.MethodGet, "/notes?path=(", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad regex = %d, want 400", w.Code)
	}
}

func TestMoveAndTree(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "inbox/a", "x")
	createNote(t, router, "inbox/b", "y")

	w := do(t, router, http.MethodPost, "/move", MoveRequest{Source: "inbox/*", Destination: "archive"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/tree", nil)
	var nodes []TreeNode
	if err := json.Unmarshal(w.Body.Bytes(), &nodes); err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Name != "archive" || len(nodes[0].Children) != 2 {
		t.Fatalf("tree = %+v", nodes)
	}
	if nodes[0].Children[0].ID == "" {
		t.Errorf("leaf without id: %+v", nodes[0].Children[0])
	}

	if w := do(t, router, http.MethodPost, "/move", MoveRequest{Source: "nope", Destination: "x"}); w.Code != http.StatusNotFound {
		t.Errorf("move missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/move", MoveRequest{Source: "archive/a"}); w.Code != http.StatusBadRequest {
		t.Errorf("move without destination = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "s", "find the needle\n")

	w := do(t, router, http.MethodGet, "/search?q=NEEDLE", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %d, want 1", len(resp.Results))
	}

	w = do(t, router, http.MethodGet, "/search?q=NEEDLE&case_sensitive=true", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("case sensitive results = %d, want 0", len(resp.Results))
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestLogAndUndo(t *testing.T) {
	_, router := testEnv(t, "")
	createNote(t, router, "keep", "x")
	createNote(t, router, "drop", "y")

	w := do(t, router, http.MethodGet, "/log", nil)
	var resp LogResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(resp.Commits))
	}

	if w := do(t, router, http.MethodPost, "/undo", UndoRequest{Commit: resp.Commits[0].Hash}); w.Code != http.StatusNoContent {
		t.Fatalf("undo = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodGet, "/notes/drop", nil); w.Code != http.StatusNotFound {
		t.Errorf("undone note = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodGet, "/log?count=1", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Commits) != 1 {
		t.Errorf("limited log = %d, want 1", len(resp.Commits))
	}
	if w := do(t, router, http.MethodGet, "/log?count=x", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad count = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/undo", UndoRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("undo without commit = %d, want 400", w.Code)
	}
}

// Auth middleware tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	w := do(t, router, http.MethodGet, "/notes", nil, "Authorization", "Bearer secret")
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret")

	w := do(t, router, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnvFull(t, false, "ignored", nil)

	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("disabled auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvFull(t, true, "secret", blockingSSE)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvFull(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("SSE with valid token = %d, %q", w.Code, w.Header().Get("Content-Type"))
	}
}

// Resource tests.

func uploadFile(t *testing.T, router http.Handler, filename, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/resources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServeResource(t *testing.T) {
	_, router := testEnv(t, "")
	content := []byte("\x89PNG fake image")

	w := uploadFile(t, router, "plot.png", "img/plot.png", content)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ResourceUploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Name != "img/plot.png" || resp.Size != int64(len(content)) || resp.URL != "/api/resources/img/plot.png" {
		t.Errorf("resp = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/resources/img/plot.png", nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), content) {
		t.Errorf("serve = %d, %q", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/resources", nil)
	var list ResourceListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Resources) != 1 || list.Resources[0] != "img/plot.png" {
		t.Errorf("list = %+v", list)
	}
}

func TestUploadResource_DefaultName(t *testing.T) {
	_, router := testEnv(t, "")

	w := uploadFile(t, router, "notes.txt", "", []byte("x"))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"name":"notes.txt"`) {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestServeResource_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/resources/missing.png", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing resource = %d, want 404", w.Code)
	}
}

func TestServeResource_TraversalBlocked(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/resources/..%2Fnotes%2F00001.md", nil); w.Code != http.StatusBadRequest {
		t.Errorf("traversal = %d, want 400", w.Code)
	}
}

func TestUploadResource_InvalidName(t *testing.T) {
	_, router := testEnv(t, "")

	if w := uploadFile(t, router, "a.png", "../escape.png", []byte("x")); w.Code != http.StatusBadRequest {
		t.Errorf("escaping name = %d, want 400", w.Code)
	}
}

func TestUploadResource_MissingFileField(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", "x.png")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/resources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", w.Code)
	}
}
