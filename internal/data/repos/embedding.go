package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

type EmbeddingRepo interface {
	UpsertBatch(ctx context.Context, tx *gorm.DB, embeddings []*domain.Embedding) error
	GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Embedding, error)
	GetByFileID(ctx context.Context, tx *gorm.DB, fileID string) ([]*domain.Embedding, error)
	CountByFileID(ctx context.Context, tx *gorm.DB, fileID string) (int64, error)
	DeleteByFileID(ctx context.Context, tx *gorm.DB, fileID string) error
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: baseLog.With("repo", "EmbeddingRepo")}
}

// UpsertBatch overwrites on conflict so a re-embed with a new model replaces
// the old vector instead of failing.
func (r *embeddingRepo) UpsertBatch(ctx context.Context, tx *gorm.DB, embeddings []*domain.Embedding) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(embeddings) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, e := range embeddings {
		if e != nil && e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vector", "model_name", "dimension"}),
		}).
		Create(embeddings).Error
}

func (r *embeddingRepo) GetByChunkIDs(ctx context.Context, tx *gorm.DB, chunkIDs []uuid.UUID) ([]*domain.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Embedding
	if len(chunkIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chunk_id IN ?", chunkIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *embeddingRepo) GetByFileID(ctx context.Context, tx *gorm.DB, fileID string) ([]*domain.Embedding, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Embedding
	if fileID == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chunk_id IN (?)", transaction.WithContext(ctx).
			Model(&domain.Chunk{}).
			Select("chunk_id").
			Where("file_id = ?", fileID)).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *embeddingRepo) CountByFileID(ctx context.Context, tx *gorm.DB, fileID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if fileID == "" {
		return 0, nil
	}
	err := transaction.WithContext(ctx).
		Model(&domain.Embedding{}).
		Where("chunk_id IN (?)", transaction.WithContext(ctx).
			Model(&domain.Chunk{}).
			Select("chunk_id").
			Where("file_id = ?", fileID)).
		Count(&count).Error
	return count, err
}

func (r *embeddingRepo) DeleteByFileID(ctx context.Context, tx *gorm.DB, fileID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if fileID == "" {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("chunk_id IN (?)", transaction.WithContext(ctx).
			Model(&domain.Chunk{}).
			Select("chunk_id").
			Where("file_id = ?", fileID)).
		Delete(&domain.Embedding{}).Error
}
