package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codelens/codelens/internal/embedding"
	"github.com/codelens/codelens/internal/generation"
	"github.com/codelens/codelens/internal/indexer"
	"github.com/codelens/codelens/internal/ingest"
	"github.com/codelens/codelens/internal/models"
	"github.com/codelens/codelens/internal/storage"
	"github.com/codelens/codelens/internal/vector"
	"github.com/codelens/codelens/pkg/utils"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.Indexing.MaxZipMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing 'file' field")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		s.respondError(w, http.StatusBadRequest, "only .zip archives are accepted")
		return
	}

	archive, err := os.CreateTemp("", "codelens-upload-*.zip")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.Remove(archive.Name())
	if _, err := io.Copy(archive, io.LimitReader(file, maxBytes+1)); err != nil {
		_ = archive.Close()
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if err := archive.Close(); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if info, err := os.Stat(archive.Name()); err == nil && info.Size() > maxBytes {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("archive exceeds the %d MB limit", s.config.Indexing.MaxZipMB))
		return
	}

	sessionID := uuid.NewString()
	sourceDir := filepath.Join(s.config.Storage.UploadDir, sessionID)

	if err := ingest.ExtractZip(archive.Name(), sourceDir, maxBytes); err != nil {
		s.rollbackSession(sessionID, sourceDir)
		s.logger.Error("zip extraction failed", zap.Error(err))
		s.respondMappedError(w, err)
		return
	}

	s.createIndexedSession(w, r, sessionID, sourceDir, sourceDir, header.Filename, "zip")
}

type githubRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	var req githubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	sessionID := uuid.NewString()
	sourceDir := filepath.Join(s.config.Storage.UploadDir, sessionID)

	root, err := s.fetcher.Fetch(r.Context(), req.URL, sourceDir)
	if err != nil {
		s.rollbackSession(sessionID, sourceDir)
		s.logger.Error("github fetch failed", zap.String("url", req.URL), zap.Error(err))
		s.respondMappedError(w, err)
		return
	}

	s.createIndexedSession(w, r, sessionID, sourceDir, root, req.URL, "github")
}

// createIndexedSession indexes sourceRoot, persists the session record, and
// responds with the created session. Any failure rolls back the session
// directory and index artifact.
func (s *Server) createIndexedSession(w http.ResponseWriter, r *http.Request, sessionID, sessionDir, sourceRoot, source, sourceType string) {
	stats, err := s.indexer.Index(r.Context(), sessionID, sourceRoot)
	if err != nil {
		s.rollbackSession(sessionID, sessionDir)
		s.logger.Error("indexing failed", zap.String("session_id", sessionID), zap.Error(err))
		s.respondMappedError(w, err)
		return
	}

	session := &models.Session{
		ID:         sessionID,
		Source:     source,
		SourceType: sourceType,
		Stats:      *stats,
	}
	if err := s.storage.CreateSession(r.Context(), session); err != nil {
		s.rollbackSession(sessionID, sessionDir)
		s.logger.Error("session create failed", zap.String("session_id", sessionID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to save session")
		return
	}

	s.logger.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("source_type", sourceType),
		zap.Int("total_chunks", stats.TotalChunks))
	s.respondJSON(w, http.StatusCreated, session)
}

func (s *Server) rollbackSession(sessionID, sessionDir string) {
	if err := os.RemoveAll(sessionDir); err != nil {
		s.logger.Warn("rollback: failed to remove session dir", zap.String("dir", sessionDir), zap.Error(err))
	}
	if err := s.vstore.Delete(sessionID); err != nil {
		s.logger.Warn("rollback: failed to remove index", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.storage.GetSession(r.Context(), id)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, session)
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Refactor  bool   `json:"refactor"`
}

type askResponse struct {
	QAID string `json:"qa_id"`
	*models.QAResult
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	if max := s.config.Answer.MaxQuestionChars; max > 0 && utf8.RuneCountInString(question) > max {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("question exceeds %d characters", max))
		return
	}

	result, err := s.composer.Answer(r.Context(), req.SessionID, question, req.Refactor)
	if err != nil {
		s.logger.Error("answer failed", zap.String("session_id", req.SessionID), zap.Error(err))
		s.respondMappedError(w, err)
		return
	}

	record := &models.QARecord{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Question:  question,
		Answer:    result.Answer,
		Snippets:  result.Snippets,
	}
	if err := s.storage.SaveQA(r.Context(), record); err != nil {
		// The answer is already computed; losing history is not fatal.
		s.logger.Warn("failed to save history", zap.String("session_id", req.SessionID), zap.Error(err))
	}

	s.respondJSON(w, http.StatusOK, askResponse{QAID: record.ID, QAResult: result})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < limit {
			limit = n
		}
	}

	records, err := s.storage.GetHistory(r.Context(), id)
	if err != nil {
		s.logger.Error("history lookup failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if len(records) > limit {
		records = records[:limit]
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"history":    recordsOrEmpty(records),
		"count":      len(records),
	})
}

type searchHistoryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	var req searchHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}

	records, err := s.storage.SearchHistory(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.logger.Error("history search failed", zap.String("session_id", req.SessionID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to search history")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": req.SessionID,
		"results":    recordsOrEmpty(records),
		"count":      len(records),
	})
}

type tagRequest struct {
	QAID string   `json:"qa_id"`
	Tags []string `json:"tags"`
}

const (
	maxTags   = 20
	maxTagLen = 32
)

// normalizeTags trims and lowercases each tag, truncates to maxTagLen
// characters, and drops tags that are empty after trimming.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if runes := []rune(tag); len(runes) > maxTagLen {
			tag = string(runes[:maxTagLen])
		}
		out = append(out, tag)
	}
	return out
}

func (s *Server) handleTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := uuid.Parse(req.QAID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid qa id")
		return
	}
	if len(req.Tags) > maxTags {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("at most %d tags are allowed", maxTags))
		return
	}

	if err := s.storage.UpdateTags(r.Context(), req.QAID, normalizeTags(req.Tags)); err != nil {
		s.respondMappedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"qa_id": req.QAID, "status": "tagged"})
}

func (s *Server) handleDeleteQA(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid qa id")
		return
	}
	if err := s.storage.DeleteQA(r.Context(), id); err != nil {
		s.respondMappedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"qa_id": id, "status": "deleted"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionID(w, r)
	if !ok {
		return
	}
	session, err := s.storage.GetSession(r.Context(), id)
	if err != nil {
		s.respondMappedError(w, err)
		return
	}
	records, err := s.storage.GetHistory(r.Context(), id)
	if err != nil {
		s.logger.Error("export: history lookup failed", zap.String("session_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=codelens-%s.md", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(exportMarkdown(session, records)))
}

// exportMarkdown renders a session's history as a markdown document, newest
// question first. Snippet text is truncated to keep exports readable.
func exportMarkdown(session *models.Session, records []*models.QARecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# CodeLens Session Export\n\n")
	fmt.Fprintf(&b, "- **Source**: %s (%s)\n", session.Source, session.SourceType)
	fmt.Fprintf(&b, "- **Indexed**: %d files, %d chunks\n", session.Stats.FilesIndexed, session.Stats.TotalChunks)
	fmt.Fprintf(&b, "- **Created**: %s\n\n", session.CreatedAt.Format(time.RFC3339))

	if len(records) == 0 {
		b.WriteString("No questions asked yet.\n")
		return b.String()
	}

	for i, rec := range records {
		fmt.Fprintf(&b, "## Q%d: %s\n\n", i+1, rec.Question)
		if len(rec.Tags) > 0 {
			fmt.Fprintf(&b, "*Tags: %s*\n\n", strings.Join(rec.Tags, ", "))
		}
		fmt.Fprintf(&b, "%s\n\n", rec.Answer)
		for _, sn := range rec.Snippets {
			fmt.Fprintf(&b, "### %s (lines %d-%d)\n\n", sn.File, sn.LineStart, sn.LineEnd)
			fmt.Fprintf(&b, "```%s\n%s\n```\n\n", sn.Language, utils.Truncate(sn.Raw, 600))
		}
	}
	return b.String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	dbStatus := "ok"
	status := "ok"
	if err := s.storage.Ping(r.Context()); err != nil {
		dbStatus = "error"
		status = "degraded"
	}
	llmStatus := "configured"
	if !s.llmConfigured {
		llmStatus = "not configured"
		status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"database":   dbStatus,
		"llm":        llmStatus,
		"latency_ms": time.Since(start).Milliseconds(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := s.storage.CountSessions(ctx)
	if err != nil {
		s.logger.Error("status: count sessions failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	qaCount, err := s.storage.CountQA(ctx)
	if err != nil {
		s.logger.Error("status: count history failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	resp := map[string]interface{}{
		"sessions":   sessions,
		"qa_records": qaCount,
	}
	if diskBytes, err := s.vstore.DiskUsageBytes(); err == nil {
		resp["index_disk_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"chunk_size":           s.config.Indexing.ChunkSize,
		"chunk_overlap":        s.config.Indexing.ChunkOverlap,
		"max_file_kb":          s.config.Indexing.MaxFileKB,
		"max_zip_mb":           s.config.Indexing.MaxZipMB,
		"embedding_model":      s.config.Embedding.Model,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"answer_model":         s.config.Answer.Model,
		"top_k":                s.config.Answer.TopK,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// sessionID validates the {id} route parameter as a UUID.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return "", false
	}
	return id, true
}

// respondMappedError translates component errors into API responses with
// actionable messages. Unrecognized errors become a generic 500.
func (s *Server) respondMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, embedding.ErrMissingAPIKey), errors.Is(err, generation.ErrMissingAPIKey):
		s.respondError(w, http.StatusBadRequest, "GEMINI_API_KEY is not configured on the server")
	case errors.Is(err, indexer.ErrNoIndexableContent):
		s.respondError(w, http.StatusBadRequest, "no indexable source files found in the upload")
	case errors.Is(err, indexer.ErrIndexingInProgress):
		s.respondError(w, http.StatusConflict, "indexing is already in progress for this session")
	case errors.Is(err, vector.ErrIndexNotFound):
		s.respondError(w, http.StatusBadRequest, "no index found for this session; re-upload the codebase")
	case errors.Is(err, ingest.ErrArchiveTooLarge):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrInvalidRepoURL):
		s.respondError(w, http.StatusBadRequest, "url must look like github.com/owner/repo")
	case errors.Is(err, ingest.ErrRepoNotFound):
		s.respondError(w, http.StatusBadRequest, "repository not found or not accessible")
	case errors.Is(err, storage.ErrSessionNotFound):
		s.respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, storage.ErrRecordNotFound):
		s.respondError(w, http.StatusNotFound, "history record not found")
	case errors.Is(err, embedding.ErrService), errors.Is(err, generation.ErrService):
		s.respondError(w, http.StatusInternalServerError, "the AI service is unavailable, please try again")
	default:
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func recordsOrEmpty(records []*models.QARecord) []*models.QARecord {
	if records == nil {
		return []*models.QARecord{}
	}
	return records
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
