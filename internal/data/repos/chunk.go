package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

type ChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error
	GetByFileID(ctx context.Context, tx *gorm.DB, fileID string) ([]*domain.Chunk, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error)
	CountByFileID(ctx context.Context, tx *gorm.DB, fileID string) (int64, error)
	DeleteByFileID(ctx context.Context, tx *gorm.DB, fileID string) error
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*domain.Chunk) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if c != nil && c.ChunkID == uuid.Nil {
			c.ChunkID = uuid.New()
		}
	}

	// Keep batches small because Content is large.
	const batchSize = 100
	return transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error
}

// GetByFileID returns the document's chunks in chunk_index order, which is
// the document order used for summarization coverage.
func (r *chunkRepo) GetByFileID(ctx context.Context, tx *gorm.DB, fileID string) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Chunk
	if fileID == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*domain.Chunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Chunk
	if len(ids) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("chunk_id IN ?", ids).
		Order("chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) CountByFileID(ctx context.Context, tx *gorm.DB, fileID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if fileID == "" {
		return 0, nil
	}
	err := transaction.WithContext(ctx).
		Model(&domain.Chunk{}).
		Where("file_id = ?", fileID).
		Count(&count).Error
	return count, err
}

func (r *chunkRepo) DeleteByFileID(ctx context.Context, tx *gorm.DB, fileID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if fileID == "" {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("file_id = ?", fileID).
		Delete(&domain.Chunk{}).Error
}
