package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/quickread/quickread-backend/internal/clients/extractor"
	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/data/repos/testutil"
	"github.com/quickread/quickread-backend/internal/handlers"
	"github.com/quickread/quickread-backend/internal/ingest"
	"github.com/quickread/quickread-backend/internal/middleware"
	"github.com/quickread/quickread-backend/internal/server"
	"github.com/quickread/quickread-backend/internal/services"
	"github.com/quickread/quickread-backend/internal/sessionstore"
	"github.com/quickread/quickread-backend/internal/vector"
)

type stubModel struct{}

func (stubModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		var sum float32
		for _, r := range txt {
			sum += float32(r)
		}
		out[i] = []float32{float32(len(txt)), sum, 1}
	}
	return out, nil
}

func (stubModel) GenerateText(_ context.Context, _, user string) (string, error) {
	if strings.Contains(user, "Question:") {
		return "stub answer", nil
	}
	if strings.Contains(user, "generate 3-4") {
		return "What is this document mainly about?", nil
	}
	return "## Overview\nstub summary", nil
}

func (stubModel) EmbedModelName() string { return "stub-embed" }

type stubExtractor struct{}

func (stubExtractor) ExtractPDF(_ context.Context, _ string, _ io.Reader) (*extractor.Result, error) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Paragraph %d of the stub document with enough words to chunk. ", i)
	}
	return &extractor.Result{Text: b.String()}, nil
}

func (stubExtractor) ExtractURL(_ context.Context, url string) (*extractor.Result, error) {
	return &extractor.Result{Text: "Content fetched from " + url + ", long enough to keep."}, nil
}

// client plays a browser: it keeps the session cookie across requests.
type client struct {
	t      *testing.T
	router *gin.Engine
	cookie *http.Cookie
}

func newClient(t *testing.T) *client {
	t.Helper()
	t.Setenv("EMBED_SYNC", "true")
	gin.SetMode(gin.TestMode)

	gdb := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	documentRepo := repos.NewDocumentRepo(gdb, log)
	chunkRepo := repos.NewChunkRepo(gdb, log)
	embeddingRepo := repos.NewEmbeddingRepo(gdb, log)
	store := vector.NewStore(log, chunkRepo, embeddingRepo)
	model := stubModel{}
	embedding := services.NewEmbeddingService(gdb, log, services.EmbeddingConfig{BatchSize: 20, MaxChunkChars: 8000}, chunkRepo, embeddingRepo, model)
	retriever := services.NewRetriever(log, store, chunkRepo, embeddingRepo, model)
	synth := services.NewSynthesizer(log, services.SynthesizerConfig{}, chunkRepo, model, retriever, nil)
	manager := services.NewSessionManager(gdb, log, sessionstore.NewMemoryStore(), documentRepo, chunkRepo, embeddingRepo,
		stubExtractor{}, nil, ingest.NewChunker(ingest.DefaultChunkerConfig()), embedding, synth)

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler:   handlers.NewDocumentHandler(manager, 1<<20),
		AnswerHandler:     handlers.NewAnswerHandler(manager),
		SessionMiddleware: middleware.NewSessionMiddleware(false),
	})
	return &client{t: t, router: router}
}

func (c *client) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == middleware.SessionCookie {
			c.cookie = ck
		}
	}
	return w
}

func (c *client) uploadPDF(filename string, data []byte) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(c.t, err)
	_, err = fw.Write(data)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())
	return c.do(http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	c := newClient(t)
	w := c.do(http.MethodGet, "/healthcheck", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestUploadFlow(t *testing.T) {
	c := newClient(t)

	w := c.uploadPDF("report.pdf", []byte("%PDF-stub"))
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[services.IngestResult](t, w)
	require.NotEmpty(t, result.FileID)
	require.Greater(t, result.ChunkCount, 0)

	w = c.do(http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[services.StatusResult](t, w)
	require.Equal(t, result.FileID, status.ActiveFileID)
	require.Equal(t, status.TotalChunks, status.Embedded)
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	c := newClient(t)
	w := c.uploadPDF("notes.txt", []byte("hello"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decode[handlers.ErrorEnvelope](t, w)
	require.Equal(t, "validation_error", envelope.Error.Code)
}

func TestUpload_RequiresFileField(t *testing.T) {
	c := newClient(t)
	w := c.do(http.MethodPost, "/api/upload", strings.NewReader("{}"), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAsk_WithoutDocument(t *testing.T) {
	c := newClient(t)
	w := c.do(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"anything?"}`), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decode[handlers.ErrorEnvelope](t, w)
	require.Equal(t, "no_active_document", envelope.Error.Code)
}

func TestAsk_MissingQuestion(t *testing.T) {
	c := newClient(t)
	w := c.do(http.MethodPost, "/api/ask", strings.NewReader(`{}`), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskAfterUpload(t *testing.T) {
	c := newClient(t)
	require.Equal(t, http.StatusOK, c.uploadPDF("doc.pdf", []byte("pdf")).Code)

	w := c.do(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"What is in paragraph 3?"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	answer := decode[services.AnswerResult](t, w)
	require.Equal(t, "stub answer", answer.Answer)
}

func TestAnalyzeURL(t *testing.T) {
	c := newClient(t)

	w := c.do(http.MethodPost, "/api/analyze-url", strings.NewReader(`{"url":"ftp://bad"}`), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/api/analyze-url", strings.NewReader(`{"url":"https://example.com/post"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[services.IngestResult](t, w)
	require.True(t, strings.HasPrefix(result.FileID, "url_"))
}

func TestSummarizeAndDownload(t *testing.T) {
	c := newClient(t)
	require.Equal(t, http.StatusOK, c.uploadPDF("annual.pdf", []byte("pdf")).Code)

	w := c.do(http.MethodPost, "/api/download-summary", nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = c.do(http.MethodPost, "/api/summarize", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[services.SummaryResult](t, w)
	require.NotEmpty(t, summary.Summary)

	w = c.do(http.MethodPost, "/api/summarize", nil, "")
	require.True(t, decode[services.SummaryResult](t, w).Cached)

	w = c.do(http.MethodPost, "/api/download-summary", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Disposition"), "summary-annual.md")
	require.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	require.Equal(t, summary.Summary, w.Body.String())

	w = c.do(http.MethodPost, "/api/clear-summary", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = c.do(http.MethodPost, "/api/summarize", nil, "")
	require.False(t, decode[services.SummaryResult](t, w).Cached)
}

func TestSuggestedQuestions(t *testing.T) {
	c := newClient(t)
	require.Equal(t, http.StatusOK, c.uploadPDF("doc.pdf", []byte("pdf")).Code)

	w := c.do(http.MethodPost, "/api/suggested-questions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[services.SuggestResult](t, w)
	require.NotEmpty(t, result.Questions)
}

func TestRemove(t *testing.T) {
	c := newClient(t)

	w := c.do(http.MethodPost, "/api/remove", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, decode[services.RemoveResult](t, w).Removed)

	require.Equal(t, http.StatusOK, c.uploadPDF("doc.pdf", []byte("pdf")).Code)
	w = c.do(http.MethodPost, "/api/remove", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode[services.RemoveResult](t, w).Removed)

	w = c.do(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"still there?"}`), "application/json")
	require.Equal(t, http.StatusBadRequest, w.Code)
	envelope := decode[handlers.ErrorEnvelope](t, w)
	require.Equal(t, "no_active_document", envelope.Error.Code)
}

func TestSessionCookieIsMinted(t *testing.T) {
	c := newClient(t)
	c.do(http.MethodGet, "/api/status", nil, "")
	require.NotNil(t, c.cookie)
	require.NotEmpty(t, c.cookie.Value)
}
