package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quickread/quickread-backend/internal/clients/openai"
	"github.com/quickread/quickread-backend/internal/data/repos"
	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
	"github.com/quickread/quickread-backend/internal/vector"
)

// EmbedReport is the PartialCoverage status of a document: how much of it is
// usable for similarity retrieval. It is a status, never an error.
type EmbedReport struct {
	Total     int   `json:"total"`
	Embedded  int   `json:"embedded"`
	Newly     int   `json:"newly"`
	Failed    []int `json:"failed,omitempty"`
	Skipped   []int `json:"skipped,omitempty"`
	Remaining int   `json:"remaining"`
}

func (r EmbedReport) Partial() bool { return r.Remaining > 0 }

type EmbeddingService interface {
	// EnsureEmbedded embeds every chunk of the document that does not yet
	// have a vector. Idempotent: already-embedded chunks cost zero model
	// calls. Earlier batches stay committed when a later batch fails.
	EnsureEmbedded(ctx context.Context, fileID string) (EmbedReport, error)
	// Coverage reports embedded/total without touching the model.
	Coverage(ctx context.Context, fileID string) (embedded int64, total int64, err error)
}

type embeddingService struct {
	db     *gorm.DB
	log    *logger.Logger
	cfg    EmbeddingConfig
	chunks repos.ChunkRepo
	embeds repos.EmbeddingRepo
	model  openai.Client
}

func NewEmbeddingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg EmbeddingConfig,
	chunkRepo repos.ChunkRepo,
	embeddingRepo repos.EmbeddingRepo,
	model openai.Client,
) EmbeddingService {
	return &embeddingService{
		db:     db,
		log:    baseLog.With("service", "EmbeddingService"),
		cfg:    cfg,
		chunks: chunkRepo,
		embeds: embeddingRepo,
		model:  model,
	}
}

func (s *embeddingService) Coverage(ctx context.Context, fileID string) (int64, int64, error) {
	total, err := s.chunks.CountByFileID(ctx, nil, fileID)
	if err != nil {
		return 0, 0, err
	}
	embedded, err := s.embeds.CountByFileID(ctx, nil, fileID)
	if err != nil {
		return 0, 0, err
	}
	return embedded, total, nil
}

func (s *embeddingService) EnsureEmbedded(ctx context.Context, fileID string) (EmbedReport, error) {
	report := EmbedReport{}
	if err := s.cfg.validate(); err != nil {
		return report, err
	}

	chunks, err := s.chunks.GetByFileID(ctx, nil, fileID)
	if err != nil {
		return report, err
	}
	report.Total = len(chunks)
	if len(chunks) == 0 {
		return report, nil
	}

	existing, err := s.embeds.GetByFileID(ctx, nil, fileID)
	if err != nil {
		return report, err
	}
	have := make(map[uuid.UUID]bool, len(existing))
	for _, e := range existing {
		if e != nil {
			have[e.ChunkID] = true
		}
	}
	report.Embedded = len(have)

	var missing []*domain.Chunk
	for _, ch := range chunks {
		if ch == nil || have[ch.ChunkID] {
			continue
		}
		if len([]rune(ch.Content)) > s.cfg.MaxChunkChars {
			// The model would reject it; report instead of silently dropping.
			report.Skipped = append(report.Skipped, ch.ChunkIndex)
			continue
		}
		missing = append(missing, ch)
	}

	for start := 0; start < len(missing); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		if err := ctx.Err(); err != nil {
			report.Remaining = report.Total - report.Embedded
			return report, err
		}

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		vecs, err := s.model.Embed(ctx, texts)
		if err == nil && len(vecs) == len(batch) {
			n, persistErr := s.persist(ctx, batch, vecs)
			if persistErr != nil {
				report.Remaining = report.Total - report.Embedded
				return report, persistErr
			}
			report.Newly += n
			report.Embedded += n
			continue
		}

		// The batch failed as a whole; retry member-by-member so one bad
		// chunk does not sink its batchmates.
		s.log.Warn("Embedding batch failed, retrying chunks individually",
			"file_id", fileID, "batch_size", len(batch), "error", errString(err))
		for _, ch := range batch {
			single, singleErr := s.model.Embed(ctx, []string{ch.Content})
			if singleErr != nil || len(single) != 1 {
				report.Failed = append(report.Failed, ch.ChunkIndex)
				s.log.Warn("Chunk embedding failed",
					"file_id", fileID, "chunk_index", ch.ChunkIndex, "error", errString(singleErr))
				continue
			}
			n, persistErr := s.persist(ctx, []*domain.Chunk{ch}, single)
			if persistErr != nil {
				report.Remaining = report.Total - report.Embedded
				return report, persistErr
			}
			report.Newly += n
			report.Embedded += n
		}
	}

	report.Remaining = report.Total - report.Embedded
	if report.Partial() {
		s.log.Info("Document partially embedded",
			"file_id", fileID,
			"embedded", report.Embedded,
			"total", report.Total,
			"failed", len(report.Failed),
			"skipped", len(report.Skipped),
		)
	}
	return report, nil
}

func (s *embeddingService) persist(ctx context.Context, batch []*domain.Chunk, vecs [][]float32) (int, error) {
	rows := make([]*domain.Embedding, 0, len(batch))
	for i, ch := range batch {
		raw, err := vector.EncodeVector(vecs[i])
		if err != nil {
			return 0, err
		}
		rows = append(rows, &domain.Embedding{
			ChunkID:   ch.ChunkID,
			Vector:    raw,
			ModelName: s.model.EmbedModelName(),
			Dimension: len(vecs[i]),
		})
	}
	if err := s.embeds.UpsertBatch(ctx, nil, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func errString(err error) string {
	if err == nil {
		return "short embedding response"
	}
	return err.Error()
}
