package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/quickread/quickread-backend/internal/domain"
	"github.com/quickread/quickread-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *domain.Document) error
	GetByFileID(ctx context.Context, tx *gorm.DB, fileID string) (*domain.Document, error)
	Delete(ctx context.Context, tx *gorm.DB, fileID string) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, doc *domain.Document) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if doc == nil {
		return nil
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	return transaction.WithContext(ctx).Create(doc).Error
}

// GetByFileID returns (nil, nil) when the document does not exist; callers
// decide whether absence is document_not_found or no_active_document.
func (r *documentRepo) GetByFileID(ctx context.Context, tx *gorm.DB, fileID string) (*domain.Document, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if fileID == "" {
		return nil, nil
	}
	var doc domain.Document
	err := transaction.WithContext(ctx).
		Where("file_id = ?", fileID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepo) Delete(ctx context.Context, tx *gorm.DB, fileID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if fileID == "" {
		return 0, nil
	}
	res := transaction.WithContext(ctx).
		Where("file_id = ?", fileID).
		Delete(&domain.Document{})
	return res.RowsAffected, res.Error
}
