package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/quickread/quickread-backend/internal/domain"
)

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, fileID string) *domain.Document {
	tb.Helper()
	doc := &domain.Document{
		FileID:           fileID,
		OriginalFilename: "doc.pdf",
		SourceType:       domain.SourceTypePDF,
		SourcePath:       "pdfs/" + fileID,
		FileSize:         1024,
		ContentHash:      "hash-" + fileID,
		Metadata:         datatypes.JSON([]byte(`{}`)),
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, fileID string, index int, content string) *domain.Chunk {
	tb.Helper()
	c := &domain.Chunk{
		ChunkID:       uuid.New(),
		FileID:        fileID,
		ChunkIndex:    index,
		Content:       content,
		ChunkMetadata: datatypes.JSON([]byte(`{}`)),
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func SeedEmbedding(tb testing.TB, ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, vector []float32) *domain.Embedding {
	tb.Helper()
	raw, err := json.Marshal(vector)
	if err != nil {
		tb.Fatalf("marshal vector: %v", err)
	}
	e := &domain.Embedding{
		ChunkID:   chunkID,
		Vector:    datatypes.JSON(raw),
		ModelName: "test-embed",
		Dimension: len(vector),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed embedding: %v", err)
	}
	return e
}
