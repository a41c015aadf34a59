package services

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quickread/quickread-backend/internal/clients/extractor"
	"github.com/quickread/quickread-backend/internal/clients/gcp"
	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/ingest"
	"github.com/quickread/quickread-backend/internal/pkg/env"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
	"github.com/quickread/quickread-backend/internal/sessionstore"
)

// IngestResult is what upload and analyze-url return to the caller.
type IngestResult struct {
	FileID     string       `json:"file_id"`
	Filename   string       `json:"filename,omitempty"`
	SourceType string       `json:"source_type"`
	PublicURL  string       `json:"public_url,omitempty"`
	ChunkCount int          `json:"chunk_count"`
	Duplicate  bool         `json:"duplicate,omitempty"`
	Embedding  *EmbedReport `json:"embedding,omitempty"`
}

// StatusResult reports the session state plus embedding coverage of the
// active document.
type StatusResult struct {
	State        domain.SessionState `json:"state"`
	ActiveFileID string              `json:"active_file_id,omitempty"`
	Filename     string              `json:"filename,omitempty"`
	SourceType   string              `json:"source_type,omitempty"`
	HasSummary   bool                `json:"has_summary"`
	Embedded     int64               `json:"embedded_chunks"`
	TotalChunks  int64               `json:"total_chunks"`
}

type SummaryResult struct {
	Summary string `json:"summary"`
	Cached  bool   `json:"cached,omitempty"`
}

type RemoveResult struct {
	Removed bool   `json:"removed"`
	FileID  string `json:"file_id,omitempty"`
}

// SessionManager owns the per-session lifecycle: which document is active,
// when stored rows are replaced, and what cached state survives. All writes
// for one session are serialized behind a per-session lock.
type SessionManager struct {
	db          *gorm.DB
	log         *logger.Logger
	sessions    sessionstore.Store
	documents   repos.DocumentRepo
	chunks      repos.ChunkRepo
	embeds      repos.EmbeddingRepo
	extractor   extractor.Client
	bucket      gcp.BucketService
	chunker     *ingest.Chunker
	embedding   EmbeddingService
	synthesizer Synthesizer
	locks       *keyedMutex

	embedSync    bool
	embedTimeout time.Duration
}

func NewSessionManager(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions sessionstore.Store,
	documentRepo repos.DocumentRepo,
	chunkRepo repos.ChunkRepo,
	embeddingRepo repos.EmbeddingRepo,
	extractorClient extractor.Client,
	bucket gcp.BucketService,
	chunker *ingest.Chunker,
	embedding EmbeddingService,
	synthesizer Synthesizer,
) *SessionManager {
	log := baseLog.With("service", "SessionManager")
	return &SessionManager{
		db:           db,
		log:          log,
		sessions:     sessions,
		documents:    documentRepo,
		chunks:       chunkRepo,
		embeds:       embeddingRepo,
		extractor:    extractorClient,
		bucket:       bucket,
		chunker:      chunker,
		embedding:    embedding,
		synthesizer:  synthesizer,
		locks:        newKeyedMutex(),
		embedSync:    env.GetBool("EMBED_SYNC", false, log),
		embedTimeout: time.Duration(env.GetInt("EMBED_ASYNC_TIMEOUT_SECONDS", 300, log)) * time.Second,
	}
}

func (m *SessionManager) session(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = domain.NewSession(sessionID)
	}
	return sess, nil
}

// Upload ingests a PDF: extract, chunk, store the original, persist, make it
// the session's active document. The previous document's rows are removed in
// the same transaction that installs the new ones.
func (m *SessionManager) Upload(ctx context.Context, sessionID, filename string, data []byte) (IngestResult, error) {
	if !strings.EqualFold(path.Ext(filename), ".pdf") {
		return IngestResult{}, domain.NewError(domain.CodeValidation, "only PDF uploads are supported")
	}
	if len(data) == 0 {
		return IngestResult{}, domain.NewError(domain.CodeValidation, "uploaded file is empty")
	}

	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return IngestResult{}, err
	}

	fileID := ingest.FileIDForUpload(filename)
	src := ingest.SourceInfo{
		Type:             domain.SourceTypePDF,
		OriginalFilename: ingest.SafeFilename(filename),
		SourcePath:       "uploads/" + fileID,
		FileSize:         int64(len(data)),
	}
	if m.bucket != nil {
		src.PublicURL = m.bucket.GetPublicURL(src.SourcePath)
	}

	res, err := m.extractor.ExtractPDF(ctx, src.OriginalFilename, bytes.NewReader(data))
	if err != nil {
		return IngestResult{}, domain.WrapError(domain.CodeExtractionFailed, "PDF extraction failed", err)
	}
	// The original is only written to the bucket once ingest has decided the
	// document is new; a duplicate or a failed extraction must not leave an
	// unreferenced object behind.
	storeOriginal := func(ctx context.Context) error {
		if m.bucket == nil {
			return nil
		}
		return m.bucket.UploadFile(ctx, src.SourcePath, "application/pdf", bytes.NewReader(data))
	}
	return m.ingest(ctx, sess, fileID, src, res, storeOriginal)
}

// AnalyzeURL ingests a web page the same way Upload ingests a PDF.
func (m *SessionManager) AnalyzeURL(ctx context.Context, rawURL string, sessionID string) (IngestResult, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return IngestResult{}, domain.NewError(domain.CodeValidation, "a valid http(s) URL is required")
	}

	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return IngestResult{}, err
	}

	src := ingest.SourceInfo{
		Type:             domain.SourceTypeURL,
		OriginalFilename: parsed.Host,
		SourcePath:       parsed.String(),
		PublicURL:        parsed.String(),
	}
	res, err := m.extractor.ExtractURL(ctx, parsed.String())
	if err != nil {
		return IngestResult{}, domain.WrapError(domain.CodeExtractionFailed, "URL extraction failed", err)
	}
	return m.ingest(ctx, sess, ingest.FileIDForURL(parsed.String()), src, res, nil)
}

// ingest is the shared commit path. The caller holds the session lock.
// storeOriginal, when non-nil, persists the source bytes and runs only after
// the duplicate short-circuit has ruled the document new.
func (m *SessionManager) ingest(ctx context.Context, sess *domain.Session, fileID string, src ingest.SourceInfo, res *extractor.Result, storeOriginal func(context.Context) error) (IngestResult, error) {
	doc, text, err := ingest.Normalize(fileID, src, res)
	if err != nil {
		return IngestResult{}, err
	}

	// Re-ingesting identical content keeps the active document and its
	// chunks, embeddings and cached summary.
	if sess.HasActiveDocument() {
		current, err := m.documents.GetByFileID(ctx, nil, sess.ActiveFileID)
		if err != nil {
			return IngestResult{}, err
		}
		if current != nil && current.ContentHash == doc.ContentHash {
			count, err := m.chunks.CountByFileID(ctx, nil, current.FileID)
			if err != nil {
				return IngestResult{}, err
			}
			return IngestResult{
				FileID:     current.FileID,
				Filename:   current.OriginalFilename,
				SourceType: current.SourceType,
				PublicURL:  current.PublicURL,
				ChunkCount: int(count),
				Duplicate:  true,
			}, nil
		}
	}

	pieces := m.chunker.Split(text)
	if len(pieces) == 0 {
		return IngestResult{}, domain.NewError(domain.CodeExtractionEmpty, "extracted text is empty")
	}
	rows := make([]*domain.Chunk, len(pieces))
	for i, p := range pieces {
		rows[i] = &domain.Chunk{FileID: fileID, ChunkIndex: i, Content: p}
	}

	if storeOriginal != nil {
		if err := storeOriginal(ctx); err != nil {
			return IngestResult{}, domain.WrapError(domain.CodeExternalService, "could not store uploaded file", err)
		}
	}

	previous := sess.ActiveFileID
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if previous != "" && previous != fileID {
			if err := m.deleteRows(ctx, tx, previous); err != nil {
				return err
			}
		}
		// The same fileID may already exist from a prior session or a
		// re-analysis of the same URL; replace its rows wholesale.
		if err := m.deleteRows(ctx, tx, fileID); err != nil {
			return err
		}
		if err := m.documents.Create(ctx, tx, doc); err != nil {
			return err
		}
		return m.chunks.CreateBatch(ctx, tx, rows)
	})
	if err != nil {
		m.removeOriginal(ctx, doc)
		return IngestResult{}, err
	}

	sess.SetActive(fileID)
	if err := m.sessions.Save(ctx, sess); err != nil {
		// The session never learned about the new rows; take them back out so
		// the database does not accumulate documents no session points at.
		if cleanupErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return m.deleteRows(ctx, tx, fileID)
		}); cleanupErr != nil {
			m.log.Warn("Could not roll back ingested rows after session save failure",
				"file_id", fileID, "error", cleanupErr.Error())
		}
		m.removeOriginal(ctx, doc)
		return IngestResult{}, err
	}

	result := IngestResult{
		FileID:     fileID,
		Filename:   doc.OriginalFilename,
		SourceType: doc.SourceType,
		PublicURL:  doc.PublicURL,
		ChunkCount: len(rows),
	}
	if m.embedSync {
		report, err := m.embedding.EnsureEmbedded(ctx, fileID)
		if err != nil {
			m.log.Warn("Synchronous embedding failed", "file_id", fileID, "error", err.Error())
		} else {
			result.Embedding = &report
		}
	} else {
		go m.embedInBackground(fileID)
	}
	return result, nil
}

func (m *SessionManager) embedInBackground(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.embedTimeout)
	defer cancel()
	report, err := m.embedding.EnsureEmbedded(ctx, fileID)
	if err != nil {
		m.log.Warn("Background embedding failed", "file_id", fileID, "error", err.Error())
		return
	}
	m.log.Info("Background embedding finished",
		"file_id", fileID, "embedded", report.Embedded, "total", report.Total)
}

// removeOriginal deletes a stored upload object. Only PDFs have one; a
// failed delete is logged, not surfaced.
func (m *SessionManager) removeOriginal(ctx context.Context, doc *domain.Document) {
	if m.bucket == nil || doc == nil || doc.SourceType != domain.SourceTypePDF || doc.SourcePath == "" {
		return
	}
	if err := m.bucket.DeleteFile(ctx, doc.SourcePath); err != nil {
		m.log.Warn("Could not delete stored original", "file_id", doc.FileID, "error", err.Error())
	}
}

// deleteRows removes a document and everything hanging off it, children
// first so the pass works without relying on database-side cascades.
func (m *SessionManager) deleteRows(ctx context.Context, tx *gorm.DB, fileID string) error {
	if err := m.embeds.DeleteByFileID(ctx, tx, fileID); err != nil {
		return err
	}
	if err := m.chunks.DeleteByFileID(ctx, tx, fileID); err != nil {
		return err
	}
	_, err := m.documents.Delete(ctx, tx, fileID)
	return err
}

func (m *SessionManager) activeDocument(ctx context.Context, sess *domain.Session) (*domain.Document, error) {
	if !sess.HasActiveDocument() {
		return nil, domain.NewError(domain.CodeNoActiveDocument, "no document has been uploaded or analyzed yet")
	}
	doc, err := m.documents.GetByFileID(ctx, nil, sess.ActiveFileID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.NewError(domain.CodeDocumentNotFound, "the active document no longer exists")
	}
	return doc, nil
}

// Summarize returns the cached summary when present, otherwise generates
// one and caches it on the session.
func (m *SessionManager) Summarize(ctx context.Context, sessionID string) (SummaryResult, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return SummaryResult{}, err
	}
	doc, err := m.activeDocument(ctx, sess)
	if err != nil {
		return SummaryResult{}, err
	}
	if sess.Summary != "" {
		return SummaryResult{Summary: sess.Summary, Cached: true}, nil
	}

	summary, err := m.synthesizer.Summarize(ctx, doc.FileID)
	if err != nil {
		return SummaryResult{}, err
	}
	sess.SetSummary(summary)
	if err := m.sessions.Save(ctx, sess); err != nil {
		return SummaryResult{}, err
	}
	return SummaryResult{Summary: summary}, nil
}

func (m *SessionManager) Ask(ctx context.Context, sessionID, question string) (AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return AnswerResult{}, domain.NewError(domain.CodeValidation, "question must not be empty")
	}

	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return AnswerResult{}, err
	}
	doc, err := m.activeDocument(ctx, sess)
	if err != nil {
		return AnswerResult{}, err
	}
	return m.synthesizer.Ask(ctx, doc.FileID, question)
}

func (m *SessionManager) SuggestQuestions(ctx context.Context, sessionID string) (SuggestResult, error) {
	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return SuggestResult{}, err
	}
	doc, err := m.activeDocument(ctx, sess)
	if err != nil {
		return SuggestResult{}, err
	}
	result, err := m.synthesizer.SuggestQuestions(ctx, doc.FileID)
	if err != nil {
		return SuggestResult{}, err
	}
	if !sess.QuestionsGenerated && !result.Fallback {
		sess.QuestionsGenerated = true
		if err := m.sessions.Save(ctx, sess); err != nil {
			m.log.Warn("Could not persist session after question generation", "error", err.Error())
		}
	}
	return result, nil
}

// ClearSummary drops the cached summary so the next summarize regenerates.
func (m *SessionManager) ClearSummary(ctx context.Context, sessionID string) error {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := m.activeDocument(ctx, sess); err != nil {
		return err
	}
	sess.ClearSummary()
	return m.sessions.Save(ctx, sess)
}

// Remove deletes the active document, its stored rows and its original
// object, then resets the session. Removing with no active document is not
// an error.
func (m *SessionManager) Remove(ctx context.Context, sessionID string) (RemoveResult, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return RemoveResult{}, err
	}
	if !sess.HasActiveDocument() {
		return RemoveResult{Removed: false}, nil
	}
	fileID := sess.ActiveFileID

	doc, err := m.documents.GetByFileID(ctx, nil, fileID)
	if err != nil {
		return RemoveResult{}, err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return m.deleteRows(ctx, tx, fileID)
	})
	if err != nil {
		return RemoveResult{}, err
	}

	m.removeOriginal(ctx, doc)

	sess.Reset()
	if err := m.sessions.Save(ctx, sess); err != nil {
		return RemoveResult{}, err
	}
	return RemoveResult{Removed: true, FileID: fileID}, nil
}

func (m *SessionManager) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return StatusResult{}, err
	}
	status := StatusResult{State: sess.State, HasSummary: sess.Summary != ""}
	if !sess.HasActiveDocument() {
		return status, nil
	}

	doc, err := m.documents.GetByFileID(ctx, nil, sess.ActiveFileID)
	if err != nil {
		return StatusResult{}, err
	}
	if doc == nil {
		// The rows behind the session's document are gone; report the
		// session as empty rather than a loaded state with nothing in it.
		return StatusResult{State: domain.SessionEmpty}, nil
	}
	status.ActiveFileID = doc.FileID
	status.Filename = doc.OriginalFilename
	status.SourceType = doc.SourceType

	embedded, total, err := m.embedding.Coverage(ctx, doc.FileID)
	if err != nil {
		return StatusResult{}, err
	}
	status.Embedded = embedded
	status.TotalChunks = total
	return status, nil
}

// DownloadSummary returns the cached summary as a named markdown document.
func (m *SessionManager) DownloadSummary(ctx context.Context, sessionID string) (filename string, content string, err error) {
	sess, err := m.session(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	doc, err := m.activeDocument(ctx, sess)
	if err != nil {
		return "", "", err
	}
	if sess.Summary == "" {
		return "", "", domain.NewError(domain.CodeValidation, "no summary has been generated yet")
	}

	base := strings.TrimSuffix(doc.OriginalFilename, path.Ext(doc.OriginalFilename))
	if base == "" {
		base = "document"
	}
	return fmt.Sprintf("summary-%s.md", base), sess.Summary, nil
}
