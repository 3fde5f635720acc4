package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docqa/internal/apperr"
	"docqa/internal/extract"
	"docqa/internal/helper"
	"docqa/internal/ingest"
	"docqa/internal/render"
	"docqa/internal/store"
)

// Projects

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID   string `json:"project_id"`
		ProjectName string `json:"project_name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ProjectID == "" {
		id, err := helper.GenerateUUID()
		if err != nil {
			writeError(w, err)
			return
		}
		body.ProjectID = id
	}

	project := &store.Project{ProjectID: body.ProjectID, ProjectName: body.ProjectName}
	if err := store.CreateProject(r.Context(), s.db, project); err != nil {
		writeError(w, apperr.Wrap(apperr.ValidationError, err, "cannot create project"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"project_id": body.ProjectID})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := store.ListProjects(r.Context(), s.db)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// Documents

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, apperr.Wrap(apperr.ValidationError, err, "invalid multipart form"))
		return
	}
	projectID := r.FormValue("project_id")
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Wrap(apperr.ValidationError, err, "missing file"))
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".docx") {
		writeError(w, apperr.New(apperr.ValidationError, "only .docx files are supported"))
		return
	}
	if _, err := store.GetProject(ctx, s.db, projectID); err != nil {
		writeError(w, err)
		return
	}

	doc, err := store.FindDocument(ctx, s.db, projectID, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc == nil {
		doc = &store.Document{ProjectID: projectID, OriginalFilename: header.Filename}
		if err := store.CreateDocument(ctx, s.db, doc); err != nil {
			writeError(w, err)
			return
		}
	}
	versionNumber, err := store.NextVersionNumber(ctx, s.db, doc.DocBaseID)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := helper.EnsureDir(s.cfg.Storage.DocsPath); err != nil {
		writeError(w, err)
		return
	}
	storedFilename := strconv.FormatInt(doc.DocBaseID, 10) + "_v" + strconv.Itoa(versionNumber) +
		"_" + time.Now().Format("20060102_150405") + ".docx"
	storedFilepath := filepath.Join(s.cfg.Storage.DocsPath, storedFilename)
	out, err := os.Create(storedFilepath)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, err)
		return
	}
	if err := out.Close(); err != nil {
		writeError(w, err)
		return
	}

	version := &store.DocumentVersion{
		DocBaseID:      doc.DocBaseID,
		VersionNumber:  versionNumber,
		StoredFilename: storedFilename,
		StoredFilepath: storedFilepath,
		Status:         store.StatusProcessing,
		IsLatest:       true,
	}
	if err := store.CreateVersion(ctx, s.db, version); err != nil {
		writeError(w, err)
		return
	}

	if err := s.jobs.Enqueue(ingest.Job{
		FilePath:  storedFilepath,
		VersionID: version.VersionID,
		DocBaseID: doc.DocBaseID,
		ProjectID: projectID,
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":        "document uploaded, processing",
		"version_id":     version.VersionID,
		"version_number": versionNumber,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	documents, err := store.ListDocuments(r.Context(), s.db, projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documents})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	docBaseID, err := pathID(r, "doc_base_id")
	if err != nil {
		writeError(w, err)
		return
	}
	versions, err := store.ListVersions(r.Context(), s.db, docBaseID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// Versions

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "version_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := store.SoftDeleteVersion(r.Context(), s.db, versionID); err != nil {
		writeError(w, err)
		return
	}
	// a soft-deleted version is gone from the user's view, so its
	// index is purged as well
	if err := s.vectors.Purge(versionID); err != nil {
		log.Error().Err(err).Int64("version_id", versionID).Msg("purging version index")
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "version deleted"})
}

func (s *Server) handleVersionContent(w http.ResponseWriter, r *http.Request) {
	versionID, err := pathID(r, "version_id")
	if err != nil {
		writeError(w, err)
		return
	}
	version, err := store.GetVersion(r.Context(), s.db, versionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if version.Status != store.StatusReady {
		writeError(w, apperr.New(apperr.ValidationError, "version %d is not ready", versionID))
		return
	}
	blocks, err := extract.Extract(version.StoredFilepath)
	if err != nil {
		writeError(w, err)
		return
	}
	html, err := render.BlocksToHTML(versionID, blocks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": html})
}

// Chat

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VersionID int64 `json:"version_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if _, err := store.GetVersion(r.Context(), s.db, body.VersionID); err != nil {
		writeError(w, err)
		return
	}
	session := &store.ChatSession{VersionID: body.VersionID}
	if err := store.CreateChatSession(r.Context(), s.db, session); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"session_id": session.SessionID})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := pathID(r, "session_id")
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeError(w, apperr.New(apperr.ValidationError, "query must not be empty"))
		return
	}

	session, err := store.GetChatSession(ctx, s.db, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	apiKey, err := store.GetAPIKey(ctx, s.db)
	if err != nil {
		writeError(w, err)
		return
	}
	if apiKey == "" {
		apiKey = s.cfg.ChatLLM.Key
	}
	if apiKey == "" {
		writeError(w, apperr.New(apperr.ValidationError, "LLM API key is not configured"))
		return
	}

	userMessage := &store.Message{SessionID: sessionID, Sender: store.SenderUser, Text: body.Query}
	if err := store.SaveMessage(ctx, s.db, userMessage); err != nil {
		writeError(w, err)
		return
	}

	answer, err := s.rag.Answer(ctx, body.Query, session.VersionID, apiKey)
	if err != nil {
		// a failed answer is surfaced, never saved as a chat message
		writeError(w, err)
		return
	}

	sources, err := json.Marshal(answer.Sources)
	if err != nil {
		writeError(w, err)
		return
	}
	systemMessage := &store.Message{
		SessionID:         sessionID,
		Sender:            store.SenderSystem,
		Text:              answer.Text,
		RetrievedChunkIDs: string(sources),
	}
	if err := store.SaveMessage(ctx, s.db, systemMessage); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":  answer.Text,
		"sources": answer.Sources,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "session_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := store.GetChatSession(r.Context(), s.db, sessionID); err != nil {
		writeError(w, err)
		return
	}
	messages, err := store.ListMessages(r.Context(), s.db, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// Settings

func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.APIKey == "" {
		writeError(w, apperr.New(apperr.ValidationError, "api_key must not be empty"))
		return
	}
	if err := store.SetAPIKey(r.Context(), s.db, body.APIKey); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "API key updated"})
}

func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	apiKey, err := store.GetAPIKey(r.Context(), s.db)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"configured": apiKey != ""})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, apperr.New(apperr.ValidationError, "invalid %s", name)
	}
	return id, nil
}
