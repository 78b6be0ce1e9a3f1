package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/codelens/codelens/internal/config"
	"github.com/codelens/codelens/internal/embedding"
	"github.com/codelens/codelens/internal/generation"
	"github.com/codelens/codelens/internal/indexer"
	"github.com/codelens/codelens/internal/ingest"
	"github.com/codelens/codelens/internal/qa"
	"github.com/codelens/codelens/internal/search"
	"github.com/codelens/codelens/internal/storage"
	"github.com/codelens/codelens/internal/vector"
)

func newTestServer(t *testing.T) (*Server, *generation.MockGenerator) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Storage.IndexDir = filepath.Join(t.TempDir(), "indexes")
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, cfg.Answer.HistoryLimit)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	vstore, err := vector.NewStore(cfg.Storage.IndexDir)
	if err != nil {
		t.Fatal(err)
	}

	emb := embedding.NewMockEmbedder(32)
	gen := &generation.MockGenerator{Response: "The code handles authentication. [1]"}

	idx := indexer.NewIndexer(emb, vstore, &cfg.Indexing)
	searcher := search.NewSearcher(vstore, emb)
	composer := qa.NewComposer(searcher, gen, &cfg.Answer)
	fetcher := ingest.NewFetcher("", int64(cfg.Indexing.MaxZipMB)<<20)

	srv := NewServer(idx, composer, store, vstore, fetcher, cfg, zap.NewNop(), true)
	return srv, gen
}

func zipUpload(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, content := range files {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "project.zip")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.Copy(fw, &archive); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, mw.FormDataContentType()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func uploadSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	body, contentType := zipUpload(t, map[string]string{
		"auth.py": "def login(user):\n    return check(user)\n",
		"app.py":  "from auth import login\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" {
		t.Fatal("no session_id in upload response")
	}
	return resp.SessionID
}

func TestUploadCreatesSession(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	sessionID := uploadSession(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/sessions/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}
	var session struct {
		SourceType string `json:"source_type"`
		Stats      struct {
			FilesIndexed int `json:"files_indexed"`
			TotalChunks  int `json:"total_chunks"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatal(err)
	}
	if session.SourceType != "zip" {
		t.Errorf("source_type = %q", session.SourceType)
	}
	if session.Stats.FilesIndexed != 2 || session.Stats.TotalChunks != 2 {
		t.Errorf("stats = %+v", session.Stats)
	}
}

func TestUploadNoIndexableContent(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	body, contentType := zipUpload(t, map[string]string{
		"photo.png": "binary stuff",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no indexable") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUploadRejectsNonZip(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "project.tar.gz")
	_, _ = fw.Write([]byte("data"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskAndHistory(t *testing.T) {
	srv, gen := newTestServer(t)
	handler := srv.Router()
	sessionID := uploadSession(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/ask", map[string]interface{}{
		"session_id": sessionID,
		"question":   "how does login work?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ask status = %d, body %s", rec.Code, rec.Body.String())
	}
	var ask struct {
		QAID     string `json:"qa_id"`
		Answer   string `json:"answer"`
		Snippets []struct {
			File     string `json:"file"`
			Language string `json:"language"`
		} `json:"snippets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ask); err != nil {
		t.Fatal(err)
	}
	if ask.Answer != "The code handles authentication. [1]" {
		t.Errorf("answer = %q", ask.Answer)
	}
	if ask.QAID == "" {
		t.Error("no qa_id in response")
	}
	if len(ask.Snippets) == 0 || ask.Snippets[0].Language != "python" {
		t.Errorf("snippets = %+v", ask.Snippets)
	}
	if calls := gen.Calls(); len(calls) != 1 {
		t.Errorf("generator calls = %d, want 1", len(calls))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/history/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history struct {
		Count   int `json:"count"`
		History []struct {
			QAID     string `json:"qa_id"`
			Question string `json:"question"`
		} `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if history.Count != 1 || history.History[0].Question != "how does login work?" {
		t.Errorf("history = %+v", history)
	}
}

func TestAskValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	cases := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"bad session id", map[string]interface{}{"session_id": "not-a-uuid", "question": "q"}},
		{"empty question", map[string]interface{}{"session_id": "b3b2b6f0-0000-4000-8000-000000000000", "question": "   "}},
		{"too long question", map[string]interface{}{
			"session_id": "b3b2b6f0-0000-4000-8000-000000000000",
			"question":   strings.Repeat("x", 2001),
		}},
	}
	for _, tc := range cases {
		rec := doJSON(t, handler, http.MethodPost, "/api/ask", tc.payload)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestAskWithoutIndex(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rec := doJSON(t, handler, http.MethodPost, "/api/ask", map[string]interface{}{
		"session_id": "b3b2b6f0-0000-4000-8000-000000000000",
		"question":   "anything",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "re-upload") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTagSearchAndDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	sessionID := uploadSession(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/ask", map[string]interface{}{
		"session_id": sessionID,
		"question":   "where is the login handler?",
	})
	var ask struct {
		QAID string `json:"qa_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ask); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/tag", map[string]interface{}{
		"qa_id": ask.QAID,
		"tags":  []string{"auth"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("tag status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/search-history", map[string]interface{}{
		"session_id": sessionID,
		"query":      "login",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("search-history status = %d", rec.Code)
	}
	var results struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if results.Count != 1 {
		t.Errorf("search count = %d, want 1", results.Count)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/history/"+ask.QAID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/api/history/"+ask.QAID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete status = %d, want 404", rec.Code)
	}
}

func TestTagNormalization(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	sessionID := uploadSession(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/ask", map[string]interface{}{
		"session_id": sessionID,
		"question":   "where is the login handler?",
	})
	var ask struct {
		QAID string `json:"qa_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ask); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/tag", map[string]interface{}{
		"qa_id": ask.QAID,
		"tags":  []string{"  MIXED-Case  ", strings.Repeat("x", 50), "   "},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("tag status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/history/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history struct {
		Records []struct {
			Tags []string `json:"tags"`
		} `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if len(history.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(history.Records))
	}
	got := history.Records[0].Tags
	want := []string{"mixed-case", strings.Repeat("x", 32)}
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tag[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	tooMany := make([]string, 21)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("tag-%d", i)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/tag", map[string]interface{}{
		"qa_id": ask.QAID,
		"tags":  tooMany,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("over-limit tag status = %d, want 400", rec.Code)
	}
}

func TestExport(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	sessionID := uploadSession(t, handler)

	doJSON(t, handler, http.MethodPost, "/api/ask", map[string]interface{}{
		"session_id": sessionID,
		"question":   "how does login work?",
	})

	rec := doJSON(t, handler, http.MethodGet, "/api/export/"+sessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "markdown") {
		t.Errorf("content-type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"# CodeLens Session Export", "how does login work?", "```python"} {
		if !strings.Contains(body, want) {
			t.Errorf("export missing %q", want)
		}
	}
}

func TestExportMissingSession(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rec := doJSON(t, handler, http.MethodGet, "/api/export/b3b2b6f0-0000-4000-8000-000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionIDValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	for _, path := range []string{
		"/api/sessions/not-a-uuid",
		"/api/history/not-a-uuid",
		"/api/export/not-a-uuid",
	} {
		rec := doJSON(t, handler, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		LLM      string `json:"llm"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Database != "ok" || health.LLM != "configured" {
		t.Errorf("health = %+v", health)
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	uploadSession(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status struct {
		Sessions int `json:"sessions"`
		Config   struct {
			ChunkSize int    `json:"chunk_size"`
			TopK      int    `json:"top_k"`
			Model     string `json:"embedding_model"`
		} `json:"config"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Sessions != 1 {
		t.Errorf("sessions = %d, want 1", status.Sessions)
	}
	if status.Config.ChunkSize != 60 || status.Config.TopK != 8 {
		t.Errorf("config = %+v", status.Config)
	}
}

func TestGitHubInvalidURL(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rec := doJSON(t, handler, http.MethodPost, "/api/github", map[string]interface{}{
		"url": "https://example.com/not/github",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "github.com/owner/repo") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHistoryLimitParam(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	sessionID := uploadSession(t, handler)

	for i := 0; i < 3; i++ {
		doJSON(t, handler, http.MethodPost, "/api/ask", map[string]interface{}{
			"session_id": sessionID,
			"question":   fmt.Sprintf("question %d", i),
		})
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/history/"+sessionID+"?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var history struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if history.Count != 2 {
		t.Errorf("count = %d, want 2", history.Count)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/history/"+sessionID+"?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}
