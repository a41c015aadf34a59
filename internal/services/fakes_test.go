package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/quickread/quickread-backend/internal/clients/extractor"
	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/sessionstore"
	"github.com/quickread/quickread-backend/internal/vector"
)

// fakeModel is a deterministic stand-in for the OpenAI client. Embeddings
// are derived from the text so similar inputs stay stable across calls;
// texts listed in failTexts fail their whole batch.
type fakeModel struct {
	mu          sync.Mutex
	embedCalls  int
	embedTexts  int
	genCalls    int
	genPrompts  []string
	failTexts   map[string]bool
	failAllGen  bool
	genResponse func(system, user string) (string, error)
}

func (f *fakeModel) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	f.embedTexts += len(texts)
	for _, txt := range texts {
		if f.failTexts[txt] {
			return nil, fmt.Errorf("embedding rejected")
		}
	}
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

func (f *fakeModel) GenerateText(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	f.genPrompts = append(f.genPrompts, user)
	if f.failAllGen {
		return "", fmt.Errorf("generation unavailable")
	}
	if f.genResponse != nil {
		return f.genResponse(system, user)
	}
	return "generated text", nil
}

func (f *fakeModel) EmbedModelName() string { return "fake-embed" }

func (f *fakeModel) stats() (embedCalls, embedTexts, genCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls, f.embedTexts, f.genCalls
}

// fakeExtractor serves canned text per source.
type fakeExtractor struct {
	pdfText string
	urlText map[string]string
	err     error
}

func (f *fakeExtractor) ExtractPDF(_ context.Context, _ string, _ io.Reader) (*extractor.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extractor.Result{Text: f.pdfText, Metadata: map[string]any{"pages": 1}}, nil
}

func (f *fakeExtractor) ExtractURL(_ context.Context, url string) (*extractor.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extractor.Result{Text: f.urlText[url]}, nil
}

// fakeBucket records stored objects so tests can assert on orphan cleanup.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]bool
	uploads int
	failUp  bool
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string]bool{}} }

func (f *fakeBucket) UploadFile(_ context.Context, key, _ string, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUp {
		return fmt.Errorf("bucket unavailable")
	}
	_, _ = io.Copy(io.Discard, r)
	f.objects[key] = true
	f.uploads++
	return nil
}

func (f *fakeBucket) DeleteFile(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) GetPublicURL(key string) string { return "https://cdn.test/" + key }

func (f *fakeBucket) state() (objects, uploads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects), f.uploads
}

// flakySessionStore fails writes on demand.
type flakySessionStore struct {
	sessionstore.Store
	failSave bool
}

func (f *flakySessionStore) Save(ctx context.Context, session *domain.Session) error {
	if f.failSave {
		return fmt.Errorf("session store unavailable")
	}
	return f.Store.Save(ctx, session)
}

// fakeRetriever returns fixed matches.
type fakeRetriever struct {
	result RetrievalResult
	err    error
	lastQ  string
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, query string, _ int) (RetrievalResult, error) {
	f.lastQ = query
	if f.err != nil {
		return RetrievalResult{}, f.err
	}
	return f.result, nil
}

func matchesOf(contents ...string) []vector.Match {
	out := make([]vector.Match, len(contents))
	for i, c := range contents {
		out[i] = vector.Match{ChunkIndex: i, Content: c, Score: 1 - float64(i)*0.1}
	}
	return out
}

func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence %d carries some document content worth keeping. ", i)
	}
	return b.String()
}
