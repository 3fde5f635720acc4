package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"docqa/internal/chunk"
	"docqa/internal/config"
	"docqa/internal/ingest"
	"docqa/internal/llm"
	"docqa/internal/rag"
	"docqa/internal/store"
	"docqa/internal/vectorstore"
)

type hashEmbedder struct{}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 16)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%16]++
	}
	return vec, nil
}

// stubLLM mimics the chat completions endpoint.
func stubLLM(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, answer)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	srv *httptest.Server
	db  *bun.DB
}

func newTestEnv(t *testing.T, llmURL string) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.DocsPath = filepath.Join(t.TempDir(), "docs")
	cfg.ChatLLM = config.LLMConfig{BaseURL: llmURL, Model: "test-model", TimeoutSeconds: 5}
	cfg.RAG = config.RAGConfig{ChunkSize: 512, ChunkOverlap: 50, TopK: 5}

	sqldb, err := store.ConnectDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db := store.NewDB(sqldb, false)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.InitDB(context.Background(), db))

	vectors := vectorstore.NewMemoryStore(hashEmbedder{})
	splitter, err := chunk.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	require.NoError(t, err)
	jobs := ingest.NewService(db, vectors, splitter)
	ragSvc := rag.NewService(vectors, llm.NewClient(&cfg.ChatLLM), cfg.RAG.TopK)

	srv := httptest.NewServer(New(cfg, db, vectors, ragSvc, jobs).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, db: db}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *testEnv) delete(t *testing.T, path string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, e.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]json.RawMessage {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]json.RawMessage{}
	require.NoError(t, json.Unmarshal(data, &body), "body: %s", data)
	return body
}

func rawString(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

// testDocx builds a docx with two paragraphs and one table.
func testDocx(t *testing.T) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	write := func(name, content string) {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	write("[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`)
	write("word/document.xml", `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Invoices are payable within thirty days.</w:t></w:r></w:p>
<w:p><w:r><w:t>Late payments accrue interest monthly.</w:t></w:r></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>Tier</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Rate</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>Gold</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>2%</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body>
</w:document>`)
	write("word/_rels/document.xml.rels", `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`)

	require.NoError(t, w.Close())
	return buf.Bytes()
}

func (e *testEnv) upload(t *testing.T, projectID, filename string, data []byte) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	buf := new(bytes.Buffer)
	form := multipart.NewWriter(buf)
	require.NoError(t, form.WriteField("project_id", projectID))
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	resp, err := http.Post(e.srv.URL+"/api/documents/upload", form.FormDataContentType(), buf)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func (e *testEnv) waitReady(t *testing.T, versionID int64) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		v, err := store.GetVersion(context.Background(), e.db, versionID)
		require.NoError(t, err)
		switch v.Status {
		case store.StatusReady:
			return
		case store.StatusError:
			t.Fatalf("ingestion failed: %s", v.ErrorMessage)
		}
		if time.Now().After(deadline) {
			t.Fatal("version never became ready")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestUploadAskFlow(t *testing.T) {
	llmSrv := stubLLM(t, "Invoices are payable within thirty days.")
	env := newTestEnv(t, llmSrv.URL)

	resp, body := env.postJSON(t, "/api/projects", map[string]string{"project_id": "p1", "project_name": "Contracts"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "p1", rawString(t, body["project_id"]))

	resp, body = env.upload(t, "p1", "terms.docx", testDocx(t))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var versionID int64
	require.NoError(t, json.Unmarshal(body["version_id"], &versionID))
	env.waitReady(t, versionID)

	resp, body = env.get(t, "/api/documents/p1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var docs []store.DocumentListing
	require.NoError(t, json.Unmarshal(body["documents"], &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, store.StatusReady, docs[0].Status)

	resp, _ = env.postJSON(t, "/api/settings/api-key", map[string]string{"api_key": "sk-test"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.get(t, "/api/settings/api-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "true", string(body["configured"]))

	resp, body = env.postJSON(t, "/api/chat/sessions", map[string]int64{"version_id": versionID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sessionID int64
	require.NoError(t, json.Unmarshal(body["session_id"], &sessionID))

	resp, body = env.postJSON(t, fmt.Sprintf("/api/chat/%d/messages", sessionID),
		map[string]string{"query": "When are invoices payable?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Invoices are payable within thirty days.", rawString(t, body["answer"]))

	var sources []string
	require.NoError(t, json.Unmarshal(body["sources"], &sources))
	require.NotEmpty(t, sources)
	assert.Equal(t, fmt.Sprintf("doc_%d_paragraph_0", versionID), sources[0])

	resp, body = env.get(t, fmt.Sprintf("/api/chat/%d/messages", sessionID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var messages []store.Message
	require.NoError(t, json.Unmarshal(body["messages"], &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, store.SenderUser, messages[0].Sender)
	assert.Equal(t, store.SenderSystem, messages[1].Sender)
	assert.Contains(t, messages[1].RetrievedChunkIDs, "doc_")
}

func TestVersionContent(t *testing.T) {
	llmSrv := stubLLM(t, "n/a")
	env := newTestEnv(t, llmSrv.URL)

	env.postJSON(t, "/api/projects", map[string]string{"project_id": "p1"})
	_, body := env.upload(t, "p1", "terms.docx", testDocx(t))
	var versionID int64
	require.NoError(t, json.Unmarshal(body["version_id"], &versionID))
	env.waitReady(t, versionID)

	resp, body := env.get(t, fmt.Sprintf("/api/versions/%d/content", versionID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := rawString(t, body["html"])
	assert.Contains(t, html, fmt.Sprintf(`id="doc_%d_paragraph_0"`, versionID))
	assert.Contains(t, html, "Invoices are payable within thirty days.")
	assert.Contains(t, html, "<table>")
}

func TestUploadValidation(t *testing.T) {
	llmSrv := stubLLM(t, "n/a")
	env := newTestEnv(t, llmSrv.URL)
	env.postJSON(t, "/api/projects", map[string]string{"project_id": "p1"})

	resp, body := env.upload(t, "p1", "notes.txt", []byte("plain text"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "validation_error")

	resp, body = env.upload(t, "ghost", "terms.docx", testDocx(t))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "not_found")
}

func TestDeleteVersionRules(t *testing.T) {
	llmSrv := stubLLM(t, "n/a")
	env := newTestEnv(t, llmSrv.URL)
	env.postJSON(t, "/api/projects", map[string]string{"project_id": "p1"})

	_, body := env.upload(t, "p1", "terms.docx", testDocx(t))
	var v1 int64
	require.NoError(t, json.Unmarshal(body["version_id"], &v1))
	env.waitReady(t, v1)

	// re-uploading the same filename creates version 2
	_, body = env.upload(t, "p1", "terms.docx", testDocx(t))
	var v2 int64
	require.NoError(t, json.Unmarshal(body["version_id"], &v2))
	env.waitReady(t, v2)
	require.NotEqual(t, v1, v2)

	resp, _ := env.delete(t, fmt.Sprintf("/api/versions/%d", v2))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "latest version is protected")

	resp, _ = env.delete(t, fmt.Sprintf("/api/versions/%d", v1))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.get(t, fmt.Sprintf("/api/versions/%d/content", v1))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSendMessageWithoutAPIKey(t *testing.T) {
	llmSrv := stubLLM(t, "n/a")
	env := newTestEnv(t, llmSrv.URL)
	env.postJSON(t, "/api/projects", map[string]string{"project_id": "p1"})

	_, body := env.upload(t, "p1", "terms.docx", testDocx(t))
	var versionID int64
	require.NoError(t, json.Unmarshal(body["version_id"], &versionID))
	env.waitReady(t, versionID)

	_, body = env.postJSON(t, "/api/chat/sessions", map[string]int64{"version_id": versionID})
	var sessionID int64
	require.NoError(t, json.Unmarshal(body["session_id"], &sessionID))

	resp, body := env.postJSON(t, fmt.Sprintf("/api/chat/%d/messages", sessionID),
		map[string]string{"query": "anything"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "API key")
}
